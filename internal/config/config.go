// =============================================================================
// 文件: internal/config/config.go
// 描述: 配置管理 - 会话/传输/中继/信令参数校验、端口冲突检测
// =============================================================================
package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ayushpath123/WebRTC-FTP-Implementation/internal/protocol"
	"github.com/ayushpath123/WebRTC-FTP-Implementation/internal/transport"
)

// Config 主配置
type Config struct {
	LogLevel string `yaml:"log_level"`

	Session   SessionConfig   `yaml:"session"`
	Transfer  TransferConfig  `yaml:"transfer"`
	Relay     RelayConfig     `yaml:"relay"`
	Signaling SignalingConfig `yaml:"signaling"`
	WebRTC    WebRTCConfig    `yaml:"webrtc"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// SessionConfig 可靠会话配置
type SessionConfig struct {
	TimeoutMs         int `yaml:"timeout_ms"`
	MaxRetries        int `yaml:"max_retries"`
	PollIntervalMs    int `yaml:"poll_interval_ms"`
	SendWaitTimeoutMs int `yaml:"send_wait_timeout_ms"`
	RTTHistorySize    int `yaml:"rtt_history_size"`
}

// TransferConfig 文件传输配置
type TransferConfig struct {
	ChunkSize int `yaml:"chunk_size"`
}

// RelayConfig 信令中继服务器配置
type RelayConfig struct {
	Listen string `yaml:"listen"`
	Path   string `yaml:"path"`
}

// SignalingConfig 信令客户端配置
type SignalingConfig struct {
	URL    string `yaml:"url"`
	RoomID string `yaml:"room_id"`
}

// WebRTCConfig 对等连接配置
type WebRTCConfig struct {
	STUNServers []string `yaml:"stun_servers"`
}

// MetricsConfig 监控配置
type MetricsConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Listen      string `yaml:"listen"`
	Path        string `yaml:"path"`
	HealthPath  string `yaml:"health_path"`
	EnablePprof bool   `yaml:"enable_pprof"`
}

// frameOverhead 帧头 + 载荷信封的 JSON 开销上限
const frameOverhead = 256

// Load 加载配置
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取配置失败: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		LogLevel: "info",

		Session: SessionConfig{
			TimeoutMs:         600,
			MaxRetries:        10,
			PollIntervalMs:    10,
			SendWaitTimeoutMs: 30000,
			RTTHistorySize:    40,
		},

		Transfer: TransferConfig{
			ChunkSize: 16 * 1024,
		},

		Relay: RelayConfig{
			Listen: ":8080",
			Path:   "/ws",
		},

		Signaling: SignalingConfig{
			URL:    "ws://127.0.0.1:8080/ws",
			RoomID: "",
		},

		WebRTC: WebRTCConfig{
			STUNServers: []string{"stun:stun.l.google.com:19302"},
		},

		Metrics: MetricsConfig{
			Enabled:     false,
			Listen:      ":9100",
			Path:        "/metrics",
			HealthPath:  "/health",
			EnablePprof: false,
		},
	}
}

// Validate 验证配置
func (c *Config) Validate() error {
	switch c.LogLevel {
	case "", "error", "info", "debug":
	default:
		return fmt.Errorf("无效的 log_level: %s (支持: error, info, debug)", c.LogLevel)
	}

	// 验证会话参数
	if c.Session.TimeoutMs < 50 || c.Session.TimeoutMs > 60000 {
		return fmt.Errorf("session.timeout_ms 需在 50-60000 之间")
	}
	if c.Session.MaxRetries < 1 || c.Session.MaxRetries > 50 {
		return fmt.Errorf("session.max_retries 需在 1-50 之间")
	}
	if c.Session.PollIntervalMs < 1 || c.Session.PollIntervalMs > 1000 {
		return fmt.Errorf("session.poll_interval_ms 需在 1-1000 之间")
	}
	if c.Session.SendWaitTimeoutMs < c.Session.TimeoutMs {
		return fmt.Errorf("session.send_wait_timeout_ms 不得小于 timeout_ms")
	}
	if c.Session.RTTHistorySize < 1 || c.Session.RTTHistorySize > 1024 {
		return fmt.Errorf("session.rtt_history_size 需在 1-1024 之间")
	}

	// 验证分块大小：编码后加上帧头必须能装进一条传输消息
	if c.Transfer.ChunkSize < 1024 {
		return fmt.Errorf("transfer.chunk_size 不得小于 1024")
	}
	if encoded := protocol.EncodedChunkSize(c.Transfer.ChunkSize) + frameOverhead; encoded > transport.MaxMessageSize {
		return fmt.Errorf("transfer.chunk_size (%d) 编码后超过传输消息上限 %d",
			c.Transfer.ChunkSize, transport.MaxMessageSize)
	}

	// 验证中继监听地址，并检测与监控端口冲突
	relayPort, err := parsePort(c.Relay.Listen)
	if err != nil {
		return fmt.Errorf("relay.listen 端口格式错误: %w", err)
	}
	if !strings.HasPrefix(c.Relay.Path, "/") {
		return fmt.Errorf("relay.path 必须以 / 开头")
	}

	if c.Metrics.Enabled {
		metricsPort, err := parsePort(c.Metrics.Listen)
		if err != nil {
			return fmt.Errorf("metrics.listen 端口格式错误: %w", err)
		}
		if metricsPort == relayPort {
			return fmt.Errorf("metrics.listen 端口 (%d) 与 relay.listen 冲突", metricsPort)
		}
	}

	return nil
}

// parsePort 从监听地址解析端口号
func parsePort(addr string) (int, error) {
	_, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return 0, err
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port < 1 || port > 65535 {
		return 0, fmt.Errorf("无效端口: %s", portStr)
	}
	return port, nil
}

// GenerateExampleConfig 生成示例配置
func GenerateExampleConfig() string {
	return `# WebRTC 文件传输配置
# 日志级别: error, info, debug
log_level: info

# 可靠会话 (停等 ARQ)
session:
  timeout_ms: 600          # 重传定时器
  max_retries: 10          # 重试耗尽后上报发送失败
  poll_interval_ms: 10     # 发送等待轮询间隔
  send_wait_timeout_ms: 30000
  rtt_history_size: 40

# 文件传输
transfer:
  chunk_size: 16384        # 分块字节数 (编码后须能装进一条传输消息)

# 信令中继服务器 (ftp-relay)
relay:
  listen: ":8080"
  path: /ws

# 信令客户端 (ftp-peer)
signaling:
  url: ws://127.0.0.1:8080/ws
  room_id: demo-room

# 对等连接
webrtc:
  stun_servers:
    - stun:stun.l.google.com:19302

# 监控
metrics:
  enabled: false
  listen: ":9100"
  path: /metrics
  health_path: /health
  enable_pprof: false
`
}

// WriteExampleConfig 写入示例配置文件
func WriteExampleConfig(path string) error {
	return os.WriteFile(path, []byte(GenerateExampleConfig()), 0644)
}
