// =============================================================================
// 文件: internal/transport/webrtc.go
// 描述: WebRTC 数据通道传输 - 无序、零重传，可靠性交给上层会话
// =============================================================================
package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/ayushpath123/WebRTC-FTP-Implementation/internal/signaling"
)

// 连接参数
const (
	dataChannelLabel = "ftp-data"
	connectTimeout   = 30 * time.Second
)

// 错误定义
var ErrConnectTimeout = fmt.Errorf("对等连接建立超时")

// WebRTCConfig 对等连接配置
type WebRTCConfig struct {
	STUNServers []string
}

// DefaultWebRTCConfig 返回默认配置
func DefaultWebRTCConfig() *WebRTCConfig {
	return &WebRTCConfig{
		STUNServers: []string{"stun:stun.l.google.com:19302"},
	}
}

// DataChannelConn 数据通道连接，实现 Channel 接口
// 通道以 Ordered=false / MaxRetransmits=0 打开，行为近似 UDP：
// 消息可能丢失、乱序、重复，由上层会话负责补偿。
type DataChannelConn struct {
	pc *webrtc.PeerConnection
	dc *webrtc.DataChannel

	mu        sync.Mutex
	onMessage func(data []byte)

	closeOnce sync.Once
}

func newDataChannelConn(pc *webrtc.PeerConnection, dc *webrtc.DataChannel) *DataChannelConn {
	c := &DataChannelConn{pc: pc, dc: dc}
	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		c.mu.Lock()
		fn := c.onMessage
		c.mu.Unlock()
		if fn != nil {
			fn(msg.Data)
		}
	})
	return c
}

// Send 发送一条消息
func (c *DataChannelConn) Send(data []byte) error {
	if len(data) > MaxMessageSize {
		return ErrMessageTooLarge
	}
	if !c.IsOpen() {
		return ErrChannelNotOpen
	}
	return c.dc.Send(data)
}

// IsOpen 通道是否可写
func (c *DataChannelConn) IsOpen() bool {
	return c.dc.ReadyState() == webrtc.DataChannelStateOpen
}

// SetOnMessage 注册消息回调
func (c *DataChannelConn) SetOnMessage(fn func(data []byte)) {
	c.mu.Lock()
	c.onMessage = fn
	c.mu.Unlock()
}

// Close 关闭通道和对等连接
func (c *DataChannelConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.dc.Close()
		err = c.pc.Close()
	})
	return err
}

// PeerConnector 对等连接协商器
// 通过信令客户端交换 offer/answer/candidate，产出已打开的数据通道。
type PeerConnector struct {
	cfg    *WebRTCConfig
	sig    *signaling.Client
	roomID string
}

// NewPeerConnector 创建协商器 (信令客户端须已加入房间)
func NewPeerConnector(cfg *WebRTCConfig, sig *signaling.Client, roomID string) *PeerConnector {
	if cfg == nil {
		cfg = DefaultWebRTCConfig()
	}
	return &PeerConnector{cfg: cfg, sig: sig, roomID: roomID}
}

func (p *PeerConnector) newPeerConnection() (*webrtc.PeerConnection, error) {
	var servers []webrtc.ICEServer
	for _, u := range p.cfg.STUNServers {
		servers = append(servers, webrtc.ICEServer{URLs: []string{u}})
	}
	return webrtc.NewPeerConnection(webrtc.Configuration{ICEServers: servers})
}

// candidateBuffer 远端描述就绪前缓存候选
type candidateBuffer struct {
	mu      sync.Mutex
	remote  bool
	pc      *webrtc.PeerConnection
	pending []webrtc.ICECandidateInit
}

func (b *candidateBuffer) add(init webrtc.ICECandidateInit) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.remote {
		b.pending = append(b.pending, init)
		return nil
	}
	return b.pc.AddICECandidate(init)
}

// flush 远端描述设置完成后补投缓存的候选
func (b *candidateBuffer) flush() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.remote = true
	for _, init := range b.pending {
		if err := b.pc.AddICECandidate(init); err != nil {
			return err
		}
	}
	b.pending = nil
	return nil
}

// Dial 发起方：创建数据通道、发送 offer、等待通道打开
func (p *PeerConnector) Dial(ctx context.Context) (*DataChannelConn, error) {
	pc, err := p.newPeerConnection()
	if err != nil {
		return nil, fmt.Errorf("创建对等连接失败: %w", err)
	}

	ordered := false
	var maxRetransmits uint16 = 0
	dc, err := pc.CreateDataChannel(dataChannelLabel, &webrtc.DataChannelInit{
		Ordered:        &ordered,
		MaxRetransmits: &maxRetransmits,
	})
	if err != nil {
		pc.Close()
		return nil, fmt.Errorf("创建数据通道失败: %w", err)
	}

	conn := newDataChannelConn(pc, dc)
	openCh := make(chan struct{})
	dc.OnOpen(func() { close(openCh) })

	buf := &candidateBuffer{pc: pc}
	answerCh := make(chan string, 1)
	p.sig.OnSignal(func(msg signaling.Message) {
		switch msg.Type {
		case signaling.TypeAnswer:
			select {
			case answerCh <- msg.SDP:
			default:
			}
		case signaling.TypeCandidate:
			var init webrtc.ICECandidateInit
			if err := json.Unmarshal(msg.Candidate, &init); err == nil {
				buf.add(init)
			}
		}
	})

	pc.OnICECandidate(func(cand *webrtc.ICECandidate) {
		if cand == nil {
			return
		}
		raw, err := json.Marshal(cand.ToJSON())
		if err != nil {
			return
		}
		p.sig.Send(signaling.Message{Type: signaling.TypeCandidate, RoomID: p.roomID, Candidate: raw})
	})

	offer, err := pc.CreateOffer(nil)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("创建 offer 失败: %w", err)
	}
	if err := pc.SetLocalDescription(offer); err != nil {
		conn.Close()
		return nil, fmt.Errorf("设置本地描述失败: %w", err)
	}
	if err := p.sig.Send(signaling.Message{Type: signaling.TypeOffer, RoomID: p.roomID, SDP: offer.SDP}); err != nil {
		conn.Close()
		return nil, err
	}

	// 等待对端 answer
	var answerSDP string
	select {
	case <-ctx.Done():
		conn.Close()
		return nil, ctx.Err()
	case <-time.After(connectTimeout):
		conn.Close()
		return nil, ErrConnectTimeout
	case answerSDP = <-answerCh:
	}

	if err := pc.SetRemoteDescription(webrtc.SessionDescription{
		Type: webrtc.SDPTypeAnswer,
		SDP:  answerSDP,
	}); err != nil {
		conn.Close()
		return nil, fmt.Errorf("设置远端描述失败: %w", err)
	}
	if err := buf.flush(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("投递 ICE 候选失败: %w", err)
	}

	select {
	case <-ctx.Done():
		conn.Close()
		return nil, ctx.Err()
	case <-time.After(connectTimeout):
		conn.Close()
		return nil, ErrConnectTimeout
	case <-openCh:
	}
	return conn, nil
}

// Accept 应答方：等待 offer、回复 answer、等待对端的数据通道打开
func (p *PeerConnector) Accept(ctx context.Context) (*DataChannelConn, error) {
	pc, err := p.newPeerConnection()
	if err != nil {
		return nil, fmt.Errorf("创建对等连接失败: %w", err)
	}

	connCh := make(chan *DataChannelConn, 1)
	pc.OnDataChannel(func(dc *webrtc.DataChannel) {
		conn := newDataChannelConn(pc, dc)
		dc.OnOpen(func() {
			select {
			case connCh <- conn:
			default:
			}
		})
	})

	buf := &candidateBuffer{pc: pc}
	offerCh := make(chan string, 1)
	p.sig.OnSignal(func(msg signaling.Message) {
		switch msg.Type {
		case signaling.TypeOffer:
			select {
			case offerCh <- msg.SDP:
			default:
			}
		case signaling.TypeCandidate:
			var init webrtc.ICECandidateInit
			if err := json.Unmarshal(msg.Candidate, &init); err == nil {
				buf.add(init)
			}
		}
	})

	pc.OnICECandidate(func(cand *webrtc.ICECandidate) {
		if cand == nil {
			return
		}
		raw, err := json.Marshal(cand.ToJSON())
		if err != nil {
			return
		}
		p.sig.Send(signaling.Message{Type: signaling.TypeCandidate, RoomID: p.roomID, Candidate: raw})
	})

	var offerSDP string
	select {
	case <-ctx.Done():
		pc.Close()
		return nil, ctx.Err()
	case <-time.After(connectTimeout):
		pc.Close()
		return nil, ErrConnectTimeout
	case offerSDP = <-offerCh:
	}

	if err := pc.SetRemoteDescription(webrtc.SessionDescription{
		Type: webrtc.SDPTypeOffer,
		SDP:  offerSDP,
	}); err != nil {
		pc.Close()
		return nil, fmt.Errorf("设置远端描述失败: %w", err)
	}
	if err := buf.flush(); err != nil {
		pc.Close()
		return nil, fmt.Errorf("投递 ICE 候选失败: %w", err)
	}

	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		pc.Close()
		return nil, fmt.Errorf("创建 answer 失败: %w", err)
	}
	if err := pc.SetLocalDescription(answer); err != nil {
		pc.Close()
		return nil, fmt.Errorf("设置本地描述失败: %w", err)
	}
	if err := p.sig.Send(signaling.Message{Type: signaling.TypeAnswer, RoomID: p.roomID, SDP: answer.SDP}); err != nil {
		pc.Close()
		return nil, err
	}

	select {
	case <-ctx.Done():
		pc.Close()
		return nil, ctx.Err()
	case <-time.After(connectTimeout):
		pc.Close()
		return nil, ErrConnectTimeout
	case conn := <-connCh:
		return conn, nil
	}
}
