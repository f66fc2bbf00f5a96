// =============================================================================
// 文件: internal/transfer/receiver.go
// 描述: 文件传输协议 - 接收端槽位缓冲重组
// =============================================================================
package transfer

import (
	"fmt"
	"sync"

	"github.com/ayushpath123/WebRTC-FTP-Implementation/internal/protocol"
)

// 错误定义
var (
	ErrIncompleteTransfer = fmt.Errorf("传输不完整")
	ErrSizeMismatch       = fmt.Errorf("重组大小与元信息不一致")
)

// ReceivedFile 重组完成的文件
type ReceivedFile struct {
	Name     string
	MimeType string
	Size     uint64
	Data     []byte
}

// RecvProgress 接收进度回调
type RecvProgress func(receivedChunks, totalChunks uint32)

// Receiver 文件接收端
// 注册为会话的交付回调，按负载类型分发。槽位缓冲在 FileMeta 到来时
// 创建，FileComplete 处理后销毁；未完成时来了新的 FileMeta 则旧缓冲
// 被直接替换 (隐式放弃)。
type Receiver struct {
	mu             sync.Mutex
	meta           *protocol.FileMetaPayload
	slots          [][]byte // nil 槽位 = 尚未收到
	receivedChunks uint32

	onText     func(text string)
	onFile     func(f ReceivedFile)
	onError    func(err error)
	onProgress RecvProgress
}

// NewReceiver 创建接收端
func NewReceiver() *Receiver {
	return &Receiver{}
}

// OnText 注册文本消息回调
func (r *Receiver) OnText(fn func(string)) { r.onText = fn }

// OnFile 注册文件完成回调
func (r *Receiver) OnFile(fn func(ReceivedFile)) { r.onFile = fn }

// OnError 注册传输错误回调
func (r *Receiver) OnError(fn func(error)) { r.onError = fn }

// OnProgress 注册进度回调
func (r *Receiver) OnProgress(fn RecvProgress) { r.onProgress = fn }

// HandlePayload 处理会话交付的负载
// 作为 session.Handler 的 OnDeliver 接线使用。
func (r *Receiver) HandlePayload(p protocol.Payload) {
	switch v := p.(type) {
	case protocol.TextPayload:
		if r.onText != nil {
			r.onText(v.Text)
		}
	case protocol.FileMetaPayload:
		r.handleMeta(v)
	case protocol.FileChunkPayload:
		r.handleChunk(v)
	case protocol.FileCompletePayload:
		r.handleComplete()
	}
}

// handleMeta 开始一次新的传输
func (r *Receiver) handleMeta(meta protocol.FileMetaPayload) {
	r.mu.Lock()
	r.meta = &meta
	r.slots = make([][]byte, meta.TotalChunks)
	r.receivedChunks = 0
	total := meta.TotalChunks
	progress := r.onProgress
	r.mu.Unlock()

	if progress != nil {
		progress(0, total)
	}
}

// handleChunk 幂等写入槽位 (后写覆盖先写)
func (r *Receiver) handleChunk(chunk protocol.FileChunkPayload) {
	r.mu.Lock()
	if r.meta == nil || chunk.Index >= uint32(len(r.slots)) {
		// 没有进行中的传输或索引越界，忽略
		r.mu.Unlock()
		return
	}

	if r.slots[chunk.Index] == nil {
		r.receivedChunks++
	}
	r.slots[chunk.Index] = chunk.Data

	received, total := r.receivedChunks, r.meta.TotalChunks
	progress := r.onProgress
	r.mu.Unlock()

	if progress != nil {
		progress(received, total)
	}
}

// handleComplete 按槽位顺序拼接并交付
// 完成信号不被无条件信任：槽位必须全部填满，否则快速失败上报
// 不完整传输错误。重复的 FileComplete (缓冲已销毁) 被静默忽略。
func (r *Receiver) handleComplete() {
	r.mu.Lock()
	if r.meta == nil {
		r.mu.Unlock()
		return
	}

	meta := *r.meta
	slots := r.slots
	received := r.receivedChunks
	r.meta = nil
	r.slots = nil
	r.receivedChunks = 0
	r.mu.Unlock()

	if received != meta.TotalChunks {
		r.fail(fmt.Errorf("%w: %q 收到 %d/%d 块", ErrIncompleteTransfer, meta.Name, received, meta.TotalChunks))
		return
	}

	size := 0
	for _, slot := range slots {
		size += len(slot)
	}
	if uint64(size) != meta.Size {
		r.fail(fmt.Errorf("%w: %q 重组 %d 字节, 元信息 %d 字节", ErrSizeMismatch, meta.Name, size, meta.Size))
		return
	}

	data := make([]byte, 0, size)
	for _, slot := range slots {
		data = append(data, slot...)
	}

	if r.onFile != nil {
		r.onFile(ReceivedFile{
			Name:     meta.Name,
			MimeType: meta.MimeType,
			Size:     meta.Size,
			Data:     data,
		})
	}
}

// Active 是否有进行中的传输
func (r *Receiver) Active() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.meta != nil
}

func (r *Receiver) fail(err error) {
	if r.onError != nil {
		r.onError(err)
	}
}
