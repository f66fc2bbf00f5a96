// =============================================================================
// 文件: internal/transport/pipe.go
// 描述: 内存管道通道 - 带可配置丢包/复制的成对通道，异步交付
// =============================================================================
package transport

import (
	"sync"
	"sync/atomic"
)

// pipeQueueSize 投递队列容量，溢出直接丢弃 (不可靠语义)
const pipeQueueSize = 256

// PipeEndpoint 管道端点
// 投递是异步的：写入方不会在 Send 内直接执行对端回调，
// 模拟真实传输的解耦，也避免会话锁的重入。
type PipeEndpoint struct {
	peer   *PipeEndpoint
	queue  chan []byte
	stopCh chan struct{}
	closed int32
	once   sync.Once

	mu        sync.Mutex
	onMessage func(data []byte)

	// 故障注入
	sendCount int64
	dropFn    func(n int64) bool // 返回 true 表示丢弃第 n 条消息
	dupFn     func(n int64) bool // 返回 true 表示复制第 n 条消息
}

// NewPipe 创建一对互联的端点
func NewPipe() (*PipeEndpoint, *PipeEndpoint) {
	a := newPipeEndpoint()
	b := newPipeEndpoint()
	a.peer, b.peer = b, a
	go a.deliverLoop()
	go b.deliverLoop()
	return a, b
}

func newPipeEndpoint() *PipeEndpoint {
	return &PipeEndpoint{
		queue:  make(chan []byte, pipeQueueSize),
		stopCh: make(chan struct{}),
	}
}

// Send 发送消息到对端
func (p *PipeEndpoint) Send(data []byte) error {
	if !p.IsOpen() || !p.peer.IsOpen() {
		return ErrChannelClosed
	}
	if len(data) > MaxMessageSize {
		return ErrMessageTooLarge
	}

	msg := make([]byte, len(data))
	copy(msg, data)

	n := atomic.AddInt64(&p.sendCount, 1)
	if p.dropFn != nil && p.dropFn(n) {
		return nil // 静默丢包，上层自会重传
	}

	p.peer.enqueue(msg)
	if p.dupFn != nil && p.dupFn(n) {
		dup := make([]byte, len(msg))
		copy(dup, msg)
		p.peer.enqueue(dup)
	}
	return nil
}

// enqueue 入队，队列满时丢弃
func (p *PipeEndpoint) enqueue(msg []byte) {
	select {
	case p.queue <- msg:
	default:
	}
}

// IsOpen 端点是否打开
func (p *PipeEndpoint) IsOpen() bool {
	return atomic.LoadInt32(&p.closed) == 0
}

// SetOnMessage 注册入站消息回调
func (p *PipeEndpoint) SetOnMessage(fn func(data []byte)) {
	p.mu.Lock()
	p.onMessage = fn
	p.mu.Unlock()
}

// SetDropFunc 配置丢包注入 (按发送序号判定)
func (p *PipeEndpoint) SetDropFunc(fn func(n int64) bool) {
	p.dropFn = fn
}

// SetDupFunc 配置重复注入 (按发送序号判定)
func (p *PipeEndpoint) SetDupFunc(fn func(n int64) bool) {
	p.dupFn = fn
}

// Close 关闭端点
func (p *PipeEndpoint) Close() error {
	p.once.Do(func() {
		atomic.StoreInt32(&p.closed, 1)
		close(p.stopCh)
	})
	return nil
}

// deliverLoop 交付循环
func (p *PipeEndpoint) deliverLoop() {
	for {
		select {
		case <-p.stopCh:
			return
		case msg := <-p.queue:
			p.mu.Lock()
			fn := p.onMessage
			p.mu.Unlock()
			if fn != nil {
				fn(msg)
			}
		}
	}
}
