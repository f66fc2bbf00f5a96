// =============================================================================
// 文件: internal/metrics/collectors.go
// 描述: Prometheus 指标收集器定义
// =============================================================================
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/ayushpath123/WebRTC-FTP-Implementation/internal/session"
)

// =============================================================================
// 会话收集器
// =============================================================================

// SessionCollector 可靠会话指标收集器
// 采集时拉取会话统计快照，不持有会话锁之外的状态。
type SessionCollector struct {
	snapshot func() session.Stats

	sentDesc          *prometheus.Desc
	receivedDesc      *prometheus.Desc
	acksDesc          *prometheus.Desc
	retransmitsDesc   *prometheus.Desc
	duplicatesDesc    *prometheus.Desc
	failedDesc        *prometheus.Desc
	bytesSentDesc     *prometheus.Desc
	bytesReceivedDesc *prometheus.Desc
	lastRTTDesc       *prometheus.Desc
}

// NewSessionCollector 创建会话收集器
func NewSessionCollector(snapshot func() session.Stats) *SessionCollector {
	namespace := "webftp"
	subsystem := "session"

	return &SessionCollector{
		snapshot: snapshot,

		sentDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, subsystem, "frames_sent_total"),
			"Total data frames sent (including retransmits)",
			nil, nil,
		),
		receivedDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, subsystem, "frames_received_total"),
			"Total data frames received",
			nil, nil,
		),
		acksDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, subsystem, "acks_received_total"),
			"Total matching acknowledgements received",
			nil, nil,
		),
		retransmitsDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, subsystem, "retransmits_total"),
			"Total frame retransmissions",
			nil, nil,
		),
		duplicatesDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, subsystem, "duplicates_total"),
			"Total duplicate data frames observed",
			nil, nil,
		),
		failedDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, subsystem, "send_failures_total"),
			"Total frames abandoned after retry exhaustion",
			nil, nil,
		),
		bytesSentDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, subsystem, "bytes_sent_total"),
			"Total payload bytes sent",
			nil, nil,
		),
		bytesReceivedDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, subsystem, "bytes_received_total"),
			"Total payload bytes received",
			nil, nil,
		),
		lastRTTDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, subsystem, "last_rtt_seconds"),
			"Round trip time of the most recent acknowledged frame",
			nil, nil,
		),
	}
}

// Describe 实现 prometheus.Collector 接口
func (c *SessionCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.sentDesc
	ch <- c.receivedDesc
	ch <- c.acksDesc
	ch <- c.retransmitsDesc
	ch <- c.duplicatesDesc
	ch <- c.failedDesc
	ch <- c.bytesSentDesc
	ch <- c.bytesReceivedDesc
	ch <- c.lastRTTDesc
}

// Collect 实现 prometheus.Collector 接口
func (c *SessionCollector) Collect(ch chan<- prometheus.Metric) {
	s := c.snapshot()

	ch <- prometheus.MustNewConstMetric(c.sentDesc, prometheus.CounterValue, float64(s.Sent))
	ch <- prometheus.MustNewConstMetric(c.receivedDesc, prometheus.CounterValue, float64(s.Received))
	ch <- prometheus.MustNewConstMetric(c.acksDesc, prometheus.CounterValue, float64(s.Acks))
	ch <- prometheus.MustNewConstMetric(c.retransmitsDesc, prometheus.CounterValue, float64(s.Retransmits))
	ch <- prometheus.MustNewConstMetric(c.duplicatesDesc, prometheus.CounterValue, float64(s.Duplicates))
	ch <- prometheus.MustNewConstMetric(c.failedDesc, prometheus.CounterValue, float64(s.Failed))
	ch <- prometheus.MustNewConstMetric(c.bytesSentDesc, prometheus.CounterValue, float64(s.BytesSent))
	ch <- prometheus.MustNewConstMetric(c.bytesReceivedDesc, prometheus.CounterValue, float64(s.BytesReceived))
	ch <- prometheus.MustNewConstMetric(c.lastRTTDesc, prometheus.GaugeValue, s.LastRTT.Seconds())
}

// =============================================================================
// 中继收集器
// =============================================================================

// RelayStats 中继统计数据接口
type RelayStats interface {
	RoomCount() int
	ActiveConns() int64
}

// RelayCollector 信令中继指标收集器
type RelayCollector struct {
	statsProvider RelayStats

	roomsDesc *prometheus.Desc
	connsDesc *prometheus.Desc
}

// NewRelayCollector 创建中继收集器
func NewRelayCollector(provider RelayStats) *RelayCollector {
	namespace := "webftp"
	subsystem := "relay"

	return &RelayCollector{
		statsProvider: provider,

		roomsDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, subsystem, "rooms"),
			"Number of active signaling rooms",
			nil, nil,
		),
		connsDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, subsystem, "connections"),
			"Number of active signaling connections",
			nil, nil,
		),
	}
}

// Describe 实现 prometheus.Collector 接口
func (c *RelayCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.roomsDesc
	ch <- c.connsDesc
}

// Collect 实现 prometheus.Collector 接口
func (c *RelayCollector) Collect(ch chan<- prometheus.Metric) {
	ch <- prometheus.MustNewConstMetric(c.roomsDesc, prometheus.GaugeValue, float64(c.statsProvider.RoomCount()))
	ch <- prometheus.MustNewConstMetric(c.connsDesc, prometheus.GaugeValue, float64(c.statsProvider.ActiveConns()))
}
