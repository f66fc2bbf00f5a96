// =============================================================================
// 文件: internal/transfer/sender.go
// 描述: 文件传输协议 - 发送端分块 (FileMeta -> FileChunk* -> FileComplete)
// =============================================================================
package transfer

import (
	"context"
	"fmt"
	"io"

	"github.com/ayushpath123/WebRTC-FTP-Implementation/internal/protocol"
	"github.com/ayushpath123/WebRTC-FTP-Implementation/internal/session"
)

// DefaultChunkSize 默认原始分块大小
// 编码后的帧必须装进传输层的单条消息限制，16 KiB 原始分块经 base64
// 膨胀后仍有富余。
const DefaultChunkSize = 16 * 1024

// SendProgress 发送进度回调
type SendProgress func(sentChunks, totalChunks uint32)

// Sender 文件发送端
// 完全构建在可靠性会话之上：每个分块经 WaitUntilSent 推入，窗口为 1
// 的停等纪律保证 FileMeta -> FileChunk* -> FileComplete 的发出顺序。
type Sender struct {
	sess       *session.Session
	chunkSize  int
	onProgress SendProgress
}

// NewSender 创建发送端
func NewSender(sess *session.Session, chunkSize int) *Sender {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &Sender{sess: sess, chunkSize: chunkSize}
}

// OnProgress 注册进度回调
func (s *Sender) OnProgress(fn SendProgress) {
	s.onProgress = fn
}

// SendFile 发送一个大小已知的字节源
func (s *Sender) SendFile(ctx context.Context, name, mimeType string, r io.Reader, size uint64) error {
	totalChunks := TotalChunks(size, s.chunkSize)

	meta := protocol.FileMetaPayload{
		Name:        name,
		Size:        size,
		MimeType:    mimeType,
		TotalChunks: totalChunks,
	}
	if err := s.sess.WaitUntilSent(ctx, meta); err != nil {
		return fmt.Errorf("发送文件元信息失败: %w", err)
	}

	remaining := size
	for index := uint32(0); index < totalChunks; index++ {
		n := uint64(s.chunkSize)
		if remaining < n {
			n = remaining
		}

		chunk := make([]byte, n)
		if _, err := io.ReadFull(r, chunk); err != nil {
			return fmt.Errorf("读取分块 %d 失败: %w", index, err)
		}
		remaining -= n

		if err := s.sess.WaitUntilSent(ctx, protocol.FileChunkPayload{Index: index, Data: chunk}); err != nil {
			return fmt.Errorf("发送分块 %d 失败: %w", index, err)
		}
		if s.onProgress != nil {
			s.onProgress(index+1, totalChunks)
		}
	}

	if err := s.sess.WaitUntilSent(ctx, protocol.FileCompletePayload{}); err != nil {
		return fmt.Errorf("发送结束信号失败: %w", err)
	}
	return nil
}

// TotalChunks 计算分块总数 ceil(size / chunkSize)
func TotalChunks(size uint64, chunkSize int) uint32 {
	if size == 0 || chunkSize <= 0 {
		return 0
	}
	return uint32((size + uint64(chunkSize) - 1) / uint64(chunkSize))
}
