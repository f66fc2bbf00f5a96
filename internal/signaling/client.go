// =============================================================================
// 文件: internal/signaling/client.go
// 描述: 信令客户端 - 连接中继服务器、加入房间、收发协商消息
// =============================================================================
package signaling

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// 超时参数
const (
	writeTimeout = 10 * time.Second
	readTimeout  = 5 * time.Minute
)

// 错误定义
var ErrClientClosed = fmt.Errorf("信令客户端已关闭")

// Client 信令客户端
type Client struct {
	conn    *websocket.Conn
	writeMu sync.Mutex

	joinedCh chan string

	mu       sync.Mutex
	onSignal func(msg Message)

	stopCh    chan struct{}
	closeOnce sync.Once
}

// Dial 连接中继服务器并启动读循环
func Dial(ctx context.Context, url string) (*Client, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("连接信令服务器失败: %w", err)
	}

	c := &Client{
		conn:     conn,
		joinedCh: make(chan string, 1),
		stopCh:   make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

// Join 加入房间，等待服务器的 joined 确认
func (c *Client) Join(ctx context.Context, roomID string) error {
	if err := c.Send(Message{Type: TypeJoin, RoomID: roomID}); err != nil {
		return err
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-c.stopCh:
		return ErrClientClosed
	case joined := <-c.joinedCh:
		if joined != roomID {
			return fmt.Errorf("joined 房间不匹配: got %q, want %q", joined, roomID)
		}
		return nil
	}
}

// OnSignal 注册协商消息回调 (offer/answer/candidate)
func (c *Client) OnSignal(fn func(msg Message)) {
	c.mu.Lock()
	c.onSignal = fn
	c.mu.Unlock()
}

// Send 发送信令消息
func (c *Client) Send(msg Message) error {
	select {
	case <-c.stopCh:
		return ErrClientClosed
	default:
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteJSON(&msg)
}

// Close 关闭客户端
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		close(c.stopCh)
		c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		c.conn.Close()
	})
	return nil
}

// readLoop 读循环
func (c *Client) readLoop() {
	defer c.Close()

	for {
		select {
		case <-c.stopCh:
			return
		default:
		}

		c.conn.SetReadDeadline(time.Now().Add(readTimeout))
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			continue // 畸形消息忽略
		}

		switch {
		case msg.Type == TypeJoined:
			select {
			case c.joinedCh <- msg.RoomID:
			default:
			}
		case IsSignal(msg.Type):
			c.mu.Lock()
			fn := c.onSignal
			c.mu.Unlock()
			if fn != nil {
				fn(msg)
			}
		}
	}
}
