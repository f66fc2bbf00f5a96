// =============================================================================
// 文件: internal/protocol/frame.go
// 描述: 协议帧编解码 - Data/Ack 帧与负载变体的 JSON 线上表示
// =============================================================================
package protocol

import (
	"encoding/json"
	"fmt"
)

// 帧类型
const (
	FrameData = "data"
	FrameAck  = "ack"
)

// 负载类型
const (
	KindText         = "text"
	KindFileMeta     = "file-meta"
	KindFileChunk    = "file-chunk"
	KindFileComplete = "file-complete"
)

// 错误定义
var (
	ErrFrameTooShort  = fmt.Errorf("帧数据为空")
	ErrUnknownFrame   = fmt.Errorf("未知帧类型")
	ErrUnknownPayload = fmt.Errorf("未知负载类型")
	ErrMissingPayload = fmt.Errorf("data 帧缺少负载")
)

// Frame 协议帧
// 线上格式: {"t":"data","seq":N,"payload":{...}} 或 {"t":"ack","seq":N}
type Frame struct {
	Type    string
	Seq     uint32
	Payload Payload // 仅 data 帧携带
}

// Payload 应用负载 (tagged union)
type Payload interface {
	Kind() string
}

// TextPayload 文本消息
type TextPayload struct {
	Text string `json:"text"`
}

// FileMetaPayload 文件元信息 (一次传输的首帧)
type FileMetaPayload struct {
	Name        string `json:"name"`
	Size        uint64 `json:"size"`
	MimeType    string `json:"type"`
	TotalChunks uint32 `json:"totalChunks"`
}

// FileChunkPayload 文件分块
type FileChunkPayload struct {
	Index uint32 // 分块索引 (0-based)
	Data  []byte // 原始字节，编码时走 base64 桥
}

// FileCompletePayload 传输结束信号
type FileCompletePayload struct{}

func (TextPayload) Kind() string         { return KindText }
func (FileMetaPayload) Kind() string     { return KindFileMeta }
func (FileChunkPayload) Kind() string    { return KindFileChunk }
func (FileCompletePayload) Kind() string { return KindFileComplete }

// wireFrame 线上帧信封
type wireFrame struct {
	T       string          `json:"t"`
	Seq     uint32          `json:"seq"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// wirePayload 线上负载信封 (平铺所有变体字段)
type wirePayload struct {
	Kind        string  `json:"kind"`
	Text        string  `json:"text,omitempty"`
	Name        string  `json:"name,omitempty"`
	Size        uint64  `json:"size,omitempty"`
	MimeType    string  `json:"type,omitempty"`
	TotalChunks uint32  `json:"totalChunks,omitempty"`
	Index       *uint32 `json:"index,omitempty"`
	Data        string  `json:"data,omitempty"`
}

// NewDataFrame 创建数据帧
func NewDataFrame(seq uint32, payload Payload) *Frame {
	return &Frame{Type: FrameData, Seq: seq, Payload: payload}
}

// NewAckFrame 创建确认帧
func NewAckFrame(seq uint32) *Frame {
	return &Frame{Type: FrameAck, Seq: seq}
}

// EncodeFrame 编码协议帧
func EncodeFrame(f *Frame) ([]byte, error) {
	wf := wireFrame{T: f.Type, Seq: f.Seq}

	switch f.Type {
	case FrameAck:
		// ack 帧不携带负载

	case FrameData:
		if f.Payload == nil {
			return nil, ErrMissingPayload
		}
		raw, err := encodePayload(f.Payload)
		if err != nil {
			return nil, err
		}
		wf.Payload = raw

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFrame, f.Type)
	}

	return json.Marshal(&wf)
}

// DecodeFrame 解码协议帧
func DecodeFrame(data []byte) (*Frame, error) {
	if len(data) == 0 {
		return nil, ErrFrameTooShort
	}

	var wf wireFrame
	if err := json.Unmarshal(data, &wf); err != nil {
		return nil, fmt.Errorf("解析帧失败: %w", err)
	}

	f := &Frame{Type: wf.T, Seq: wf.Seq}

	switch wf.T {
	case FrameAck:
		return f, nil

	case FrameData:
		if len(wf.Payload) == 0 {
			return nil, ErrMissingPayload
		}
		p, err := decodePayload(wf.Payload)
		if err != nil {
			return nil, err
		}
		f.Payload = p
		return f, nil

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFrame, wf.T)
	}
}

// encodePayload 编码负载
func encodePayload(p Payload) (json.RawMessage, error) {
	wp := wirePayload{Kind: p.Kind()}

	switch v := p.(type) {
	case TextPayload:
		wp.Text = v.Text
	case *TextPayload:
		wp.Text = v.Text

	case FileMetaPayload:
		wp.Name, wp.Size, wp.MimeType, wp.TotalChunks = v.Name, v.Size, v.MimeType, v.TotalChunks
	case *FileMetaPayload:
		wp.Name, wp.Size, wp.MimeType, wp.TotalChunks = v.Name, v.Size, v.MimeType, v.TotalChunks

	case FileChunkPayload:
		idx := v.Index
		wp.Index = &idx
		wp.Data = EncodeChunkData(v.Data)
	case *FileChunkPayload:
		idx := v.Index
		wp.Index = &idx
		wp.Data = EncodeChunkData(v.Data)

	case FileCompletePayload, *FileCompletePayload:
		// 只有 kind

	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownPayload, p)
	}

	return json.Marshal(&wp)
}

// decodePayload 解码负载
func decodePayload(raw json.RawMessage) (Payload, error) {
	var wp wirePayload
	if err := json.Unmarshal(raw, &wp); err != nil {
		return nil, fmt.Errorf("解析负载失败: %w", err)
	}

	switch wp.Kind {
	case KindText:
		return TextPayload{Text: wp.Text}, nil

	case KindFileMeta:
		return FileMetaPayload{
			Name:        wp.Name,
			Size:        wp.Size,
			MimeType:    wp.MimeType,
			TotalChunks: wp.TotalChunks,
		}, nil

	case KindFileChunk:
		if wp.Index == nil {
			return nil, fmt.Errorf("file-chunk 缺少 index")
		}
		data, err := DecodeChunkData(wp.Data)
		if err != nil {
			return nil, err
		}
		return FileChunkPayload{Index: *wp.Index, Data: data}, nil

	case KindFileComplete:
		return FileCompletePayload{}, nil

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownPayload, wp.Kind)
	}
}
