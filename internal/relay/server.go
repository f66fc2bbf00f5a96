// =============================================================================
// 文件: internal/relay/server.go
// 描述: 信令中继服务器 - 房间内广播连接协商消息
// =============================================================================
package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ayushpath123/WebRTC-FTP-Implementation/internal/signaling"
)

// 超时参数
const (
	writeTimeout = 10 * time.Second
	readTimeout  = 5 * time.Minute
)

// Server 中继服务器
// 职责仅限信令：把一个成员的 offer/answer/candidate 原样广播给同房间
// 的其他成员 (不回显给发送者)。数据面流量不经过这里。
type Server struct {
	addr     string
	path     string
	logLevel int

	upgrader   websocket.Upgrader
	httpServer *http.Server
	reg        *registry

	stopCh chan struct{}
	wg     sync.WaitGroup

	activeConns int64
}

// NewServer 创建中继服务器
func NewServer(addr, path, logLevel string) *Server {
	level := 1
	switch logLevel {
	case "debug":
		level = 2
	case "error":
		level = 0
	}

	return &Server{
		addr:     addr,
		path:     path,
		logLevel: level,
		reg:      newRegistry(),
		stopCh:   make(chan struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  8 * 1024,
			WriteBufferSize: 8 * 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true // 信令消息不含敏感数据，允许所有来源
			},
		},
	}
}

// Handler 构造 HTTP 处理器 (测试可直接挂到 httptest)
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(s.path, s.handleWebSocket)
	mux.HandleFunc("/", s.handleIndex)
	return mux
}

// Start 启动服务器
func (s *Server) Start(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:    s.addr,
		Handler: s.Handler(),
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log(0, "HTTP 服务器错误: %v", err)
		}
	}()

	s.log(1, "中继服务器已启动: %s%s", s.addr, s.path)
	return nil
}

// Stop 停止服务器
func (s *Server) Stop() {
	close(s.stopCh)

	if s.httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.httpServer.Shutdown(ctx)
	}
	s.wg.Wait()
}

// RoomCount 当前房间数
func (s *Server) RoomCount() int {
	return s.reg.roomCount()
}

// RoomSize 指定房间的成员数
func (s *Server) RoomSize(roomID string) int {
	return s.reg.roomSize(roomID)
}

// ActiveConns 活跃连接数
func (s *Server) ActiveConns() int64 {
	return atomic.LoadInt64(&s.activeConns)
}

// handleWebSocket 处理一条信令连接
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log(2, "WebSocket 升级失败: %v", err)
		return
	}

	atomic.AddInt64(&s.activeConns, 1)
	s.log(2, "信令连接: %s", r.RemoteAddr)

	currentRoom := ""
	defer func() {
		if currentRoom != "" {
			s.reg.leave(currentRoom, conn)
		}
		conn.Close()
		atomic.AddInt64(&s.activeConns, -1)
	}()

	for {
		select {
		case <-s.stopCh:
			return
		default:
		}

		conn.SetReadDeadline(time.Now().Add(readTimeout))
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}

		var msg struct {
			Type   string `json:"type"`
			RoomID string `json:"roomId"`
		}
		if err := json.Unmarshal(data, &msg); err != nil {
			continue // 畸形消息忽略
		}

		switch {
		case msg.Type == signaling.TypeJoin:
			if msg.RoomID == "" {
				continue
			}
			if currentRoom != "" && currentRoom != msg.RoomID {
				s.reg.leave(currentRoom, conn)
			}
			m := s.reg.join(msg.RoomID, conn)
			currentRoom = msg.RoomID

			joined, _ := json.Marshal(signaling.Message{Type: signaling.TypeJoined, RoomID: msg.RoomID})
			if err := m.write(joined); err != nil {
				return
			}
			s.log(2, "加入房间 %s (成员 %d)", msg.RoomID, s.reg.roomSize(msg.RoomID))

		case signaling.IsSignal(msg.Type):
			// 只转发成员在自己房间里的协商消息，原样广播给其他成员
			if currentRoom == "" || msg.RoomID != currentRoom {
				continue
			}
			for _, other := range s.reg.others(msg.RoomID, conn) {
				if err := other.write(data); err != nil {
					s.log(2, "广播失败: %v", err)
				}
			}

		default:
			// 未知类型忽略，保持向前兼容
		}
	}
}

// handleIndex 状态页
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprintf(w, "signaling relay: %d rooms, %d connections\n", s.RoomCount(), s.ActiveConns())
}

func (s *Server) log(level int, format string, args ...interface{}) {
	if level > s.logLevel {
		return
	}
	prefix := map[int]string{0: "[ERROR]", 1: "[INFO]", 2: "[DEBUG]"}[level]
	fmt.Printf("%s %s [Relay] %s\n", prefix, time.Now().Format("15:04:05"), fmt.Sprintf(format, args...))
}
