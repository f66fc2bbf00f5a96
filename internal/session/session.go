// =============================================================================
// 文件: internal/session/session.go
// 描述: 可靠性会话 - 停等式 ARQ 状态机 (单帧在途、确认匹配、超时重传)
// =============================================================================
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ayushpath123/WebRTC-FTP-Implementation/internal/protocol"
)

// 错误定义
var (
	ErrSessionClosed   = fmt.Errorf("会话已关闭")
	ErrRetryExhausted  = fmt.Errorf("重传次数耗尽")
	ErrSendWaitTimeout = fmt.Errorf("等待发送窗口超时")
)

// Channel 不可靠传输通道 (外部协作者)
// 只要求两件事: 能在打开的通道上发出一条字节消息、能报告通道是否打开。
// 入站消息由通道的持有者推入 HandleIncoming。
type Channel interface {
	Send(data []byte) error
	IsOpen() bool
}

// Handler 会话事件回调
type Handler interface {
	// OnDeliver 成功解码一个 data 帧负载时调用 (至少一次语义，重复帧同样交付)
	OnDeliver(p protocol.Payload)

	// OnStats 每次状态变化后携带最新统计快照调用
	OnStats(s Stats)

	// OnSendFailed 重传耗尽或会话关闭导致交付失败时调用
	OnSendFailed(seq uint32, p protocol.Payload, err error)
}

// Config 会话配置
type Config struct {
	RetransmitTimeout time.Duration // 重传间隔
	MaxRetries        int           // 最大重传次数，超过后上报交付失败
	PollInterval      time.Duration // WaitUntilSent 轮询间隔
	SendWaitTimeout   time.Duration // WaitUntilSent 最长等待时间
	RTTHistorySize    int           // RTT 历史容量，满后淘汰最旧样本
}

// 默认参数
const (
	DefaultRetransmitTimeout = 600 * time.Millisecond
	DefaultMaxRetries        = 10
	DefaultPollInterval      = 10 * time.Millisecond
	DefaultSendWaitTimeout   = 30 * time.Second
	DefaultRTTHistorySize    = 40
)

// DefaultConfig 默认配置
func DefaultConfig() *Config {
	return &Config{
		RetransmitTimeout: DefaultRetransmitTimeout,
		MaxRetries:        DefaultMaxRetries,
		PollInterval:      DefaultPollInterval,
		SendWaitTimeout:   DefaultSendWaitTimeout,
		RTTHistorySize:    DefaultRTTHistorySize,
	}
}

// Session 可靠性会话
// 所有状态只在 Send / HandleIncoming / 重传定时器回调中变更，
// 三者通过 mu 串行化；通道写入持锁进行，回调在锁外调用。
type Session struct {
	channel Channel
	config  *Config
	handler Handler

	mu       sync.Mutex
	nextSeq  uint32 // 下一个要分配的序列号 (模 2^32 回绕)
	inflight *inflightFrame
	timer    *time.Timer
	closed   bool

	seen  *seenFilter
	stats statsState
}

// inflightFrame 在途帧 (awaitingAck 为 nil 即空闲)
type inflightFrame struct {
	seq     uint32
	payload protocol.Payload
	raw     []byte // 重传时原样重发
	sentAt  time.Time
	retries int
}

// New 创建会话
func New(channel Channel, config *Config, handler Handler) *Session {
	if config == nil {
		config = DefaultConfig()
	}
	return &Session{
		channel: channel,
		config:  config,
		handler: handler,
		seen:    newSeenFilter(),
		stats:   newStatsState(config.RTTHistorySize),
	}
}

// Send 发送负载
// 会话空闲且通道打开时接受发送并返回 true；否则返回 false 且不产生任何
// 状态变化，这是唯一的背压信号，调用方需轮询重试 (见 WaitUntilSent)。
func (s *Session) Send(payload protocol.Payload) bool {
	s.mu.Lock()

	if s.closed || s.inflight != nil || s.channel == nil || !s.channel.IsOpen() {
		s.mu.Unlock()
		return false
	}

	seq := s.nextSeq
	raw, err := protocol.EncodeFrame(protocol.NewDataFrame(seq, payload))
	if err != nil {
		s.mu.Unlock()
		return false
	}

	if err := s.channel.Send(raw); err != nil {
		s.mu.Unlock()
		return false
	}

	s.inflight = &inflightFrame{
		seq:     seq,
		payload: payload,
		raw:     raw,
		sentAt:  time.Now(),
	}
	s.nextSeq++ // uint32 自然回绕
	s.stats.sent++
	s.stats.bytesSent += uint64(len(raw))
	s.armTimerLocked(seq)

	snap := s.stats.snapshot()
	s.mu.Unlock()

	s.emitStats(snap)
	return true
}

// WaitUntilSent 轮询直到 Send 接受负载
// 有界轮询而非阻塞 I/O：固定间隔重试，受 ctx 和整体超时约束。
func (s *Session) WaitUntilSent(ctx context.Context, payload protocol.Payload) error {
	if s.Send(payload) {
		return nil
	}

	ticker := time.NewTicker(s.config.PollInterval)
	defer ticker.Stop()

	deadline := time.NewTimer(s.config.SendWaitTimeout)
	defer deadline.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			return ErrSendWaitTimeout
		case <-ticker.C:
			if s.Send(payload) {
				return nil
			}
			if s.IsClosed() {
				return ErrSessionClosed
			}
		}
	}
}

// HandleIncoming 处理入站传输消息
// 畸形输入静默丢弃：传输层可能交付残缺或过期格式的字节。
func (s *Session) HandleIncoming(raw []byte) {
	frame, err := protocol.DecodeFrame(raw)
	if err != nil {
		return
	}

	switch frame.Type {
	case protocol.FrameData:
		s.handleData(frame, len(raw))
	case protocol.FrameAck:
		s.handleAck(frame)
	}
}

// handleData 处理数据帧：计数、回 ACK、向上交付
// 每个成功解码的数据帧都回 ACK，包括重复帧 (至少一次语义)。
func (s *Session) handleData(frame *protocol.Frame, rawLen int) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}

	s.stats.received++
	s.stats.bytesReceived += uint64(rawLen)
	if !s.seen.checkAndMark(frame.Seq) {
		s.stats.duplicates++
	}

	if ackRaw, err := protocol.EncodeFrame(protocol.NewAckFrame(frame.Seq)); err == nil && s.channel != nil {
		s.channel.Send(ackRaw)
	}

	snap := s.stats.snapshot()
	s.mu.Unlock()

	s.emitStats(snap)
	if s.handler != nil {
		s.handler.OnDeliver(frame.Payload)
	}
}

// handleAck 处理确认帧
// 只有与当前在途序列号相等的 ACK 才生效，过期或无关的 ACK 被忽略。
// 这是发送端回到空闲、可以接受下一次 Send 的唯一途径。
func (s *Session) handleAck(frame *protocol.Frame) {
	s.mu.Lock()
	if s.closed || s.inflight == nil || s.inflight.seq != frame.Seq {
		s.mu.Unlock()
		return
	}

	rtt := time.Since(s.inflight.sentAt)
	s.stats.acks++
	s.stats.recordRTT(rtt)

	s.inflight = nil
	s.stopTimerLocked()

	snap := s.stats.snapshot()
	s.mu.Unlock()

	s.emitStats(snap)
}

// onRetransmitTimeout 重传定时器回调
// 在途帧未被确认则原样重发并重新武装定时器，直到确认、关闭或重试耗尽。
func (s *Session) onRetransmitTimeout(seq uint32) {
	s.mu.Lock()
	if s.closed || s.inflight == nil || s.inflight.seq != seq {
		s.mu.Unlock()
		return
	}

	inf := s.inflight

	if inf.retries >= s.config.MaxRetries {
		// 重试耗尽：交付失败上报，绝不静默放弃
		s.inflight = nil
		s.timer = nil
		s.stats.failed++
		snap := s.stats.snapshot()
		s.mu.Unlock()

		s.emitStats(snap)
		if s.handler != nil {
			s.handler.OnSendFailed(seq, inf.payload,
				fmt.Errorf("%w: seq=%d 重试 %d 次无确认", ErrRetryExhausted, seq, inf.retries))
		}
		return
	}

	if s.channel != nil {
		s.channel.Send(inf.raw)
	}
	inf.retries++
	s.stats.sent++
	s.stats.retransmits++
	s.armTimerLocked(seq)

	snap := s.stats.snapshot()
	s.mu.Unlock()

	s.emitStats(snap)
}

// Close 关闭会话 (终态)
// 取消重传定时器，之后的 Send 一律失败；在途帧按交付失败上报。
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.stopTimerLocked()
	inf := s.inflight
	s.inflight = nil
	s.mu.Unlock()

	if inf != nil && s.handler != nil {
		s.handler.OnSendFailed(inf.seq, inf.payload, ErrSessionClosed)
	}
	return nil
}

// Idle 发送端是否空闲 (无在途帧)
func (s *Session) Idle() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inflight == nil && !s.closed
}

// IsClosed 会话是否已关闭
func (s *Session) IsClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Snapshot 获取当前统计快照
func (s *Session) Snapshot() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats.snapshot()
}

func (s *Session) armTimerLocked(seq uint32) {
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(s.config.RetransmitTimeout, func() {
		s.onRetransmitTimeout(seq)
	})
}

func (s *Session) stopTimerLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

func (s *Session) emitStats(snap Stats) {
	if s.handler != nil {
		s.handler.OnStats(snap)
	}
}
