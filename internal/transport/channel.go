// =============================================================================
// 文件: internal/transport/channel.go
// 描述: 传输通道抽象 - 尽力而为的离散消息通道
// =============================================================================
package transport

import "fmt"

// MaxMessageSize 单条传输消息的安全上限
// 分块大小必须保证编码后的帧装得进这个限制。
const MaxMessageSize = 64 * 1024

// 错误定义
var (
	ErrChannelClosed   = fmt.Errorf("通道已关闭")
	ErrChannelNotOpen  = fmt.Errorf("通道未打开")
	ErrMessageTooLarge = fmt.Errorf("消息超出传输上限")
)

// Channel 不可靠消息通道
// 只承诺尽力而为：消息可能丢失、重复或乱序，可靠性完全由上层会话构建。
// 入站消息经 SetOnMessage 注册的回调推给持有者。
type Channel interface {
	// Send 发送一条离散字节消息
	Send(data []byte) error

	// IsOpen 通道是否打开
	IsOpen() bool

	// SetOnMessage 注册入站消息回调 (须在流量开始前注册)
	SetOnMessage(fn func(data []byte))

	// Close 关闭通道
	Close() error
}
