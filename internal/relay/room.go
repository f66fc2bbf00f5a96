// =============================================================================
// 文件: internal/relay/room.go
// 描述: 房间注册表 - 首次 join 懒创建，成员清零即销毁
// =============================================================================
package relay

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// member 房间成员，写操作经成员锁串行化
type member struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

// write 向成员写一条文本消息
func (m *member) write(data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return m.conn.WriteMessage(websocket.TextMessage, data)
}

// room 信令房间
type room struct {
	id      string
	members map[*websocket.Conn]*member
}

// registry 房间注册表
type registry struct {
	mu    sync.Mutex
	rooms map[string]*room
}

func newRegistry() *registry {
	return &registry{rooms: make(map[string]*room)}
}

// join 加入房间 (不存在则创建)，返回成员句柄
func (r *registry) join(roomID string, conn *websocket.Conn) *member {
	r.mu.Lock()
	defer r.mu.Unlock()

	rm, ok := r.rooms[roomID]
	if !ok {
		rm = &room{id: roomID, members: make(map[*websocket.Conn]*member)}
		r.rooms[roomID] = rm
	}

	m, ok := rm.members[conn]
	if !ok {
		m = &member{conn: conn}
		rm.members[conn] = m
	}
	return m
}

// leave 离开房间，成员清零时销毁房间
func (r *registry) leave(roomID string, conn *websocket.Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rm, ok := r.rooms[roomID]
	if !ok {
		return
	}
	delete(rm.members, conn)
	if len(rm.members) == 0 {
		delete(r.rooms, roomID)
	}
}

// others 房间内除 sender 外的所有成员
func (r *registry) others(roomID string, sender *websocket.Conn) []*member {
	r.mu.Lock()
	defer r.mu.Unlock()

	rm, ok := r.rooms[roomID]
	if !ok {
		return nil
	}

	out := make([]*member, 0, len(rm.members))
	for conn, m := range rm.members {
		if conn != sender {
			out = append(out, m)
		}
	}
	return out
}

// roomCount 当前房间数
func (r *registry) roomCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rooms)
}

// roomSize 指定房间的成员数 (不存在为 0)
func (r *registry) roomSize(roomID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	rm, ok := r.rooms[roomID]
	if !ok {
		return 0
	}
	return len(rm.members)
}
