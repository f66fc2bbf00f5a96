// =============================================================================
// 文件: internal/session/stats.go
// 描述: 会话统计 - 计数器累积与有界 RTT 历史，只读快照对外
// =============================================================================
package session

import "time"

// Stats 统计快照 (不可变副本，消费者只读)
type Stats struct {
	Sent        uint64 // 发出的 data 帧数 (含重传)
	Received    uint64 // 收到的 data 帧数 (含重复)
	Acks        uint64 // 匹配成功的确认数
	Retransmits uint64 // 重传次数
	Duplicates  uint64 // 判定为重复的入站 data 帧数
	Failed      uint64 // 重试耗尽/关闭导致的交付失败数

	BytesSent     uint64
	BytesReceived uint64

	LastRTT    time.Duration
	RTTHistory []time.Duration // 最多 RTTHistorySize 个样本，旧样本先淘汰
}

// statsState 会话内部统计，由 Session.mu 保护
type statsState struct {
	sent        uint64
	received    uint64
	acks        uint64
	retransmits uint64
	duplicates  uint64
	failed      uint64

	bytesSent     uint64
	bytesReceived uint64

	lastRTT    time.Duration
	rttHistory []time.Duration
	rttCap     int
}

func newStatsState(rttCap int) statsState {
	if rttCap <= 0 {
		rttCap = DefaultRTTHistorySize
	}
	return statsState{
		rttHistory: make([]time.Duration, 0, rttCap),
		rttCap:     rttCap,
	}
}

// recordRTT 记录一次 RTT 样本，容量满时淘汰最旧的
func (st *statsState) recordRTT(rtt time.Duration) {
	st.lastRTT = rtt
	if len(st.rttHistory) >= st.rttCap {
		copy(st.rttHistory, st.rttHistory[1:])
		st.rttHistory = st.rttHistory[:len(st.rttHistory)-1]
	}
	st.rttHistory = append(st.rttHistory, rtt)
}

// snapshot 生成只读快照 (RTT 历史为副本)
func (st *statsState) snapshot() Stats {
	history := make([]time.Duration, len(st.rttHistory))
	copy(history, st.rttHistory)

	return Stats{
		Sent:          st.sent,
		Received:      st.received,
		Acks:          st.acks,
		Retransmits:   st.retransmits,
		Duplicates:    st.duplicates,
		Failed:        st.failed,
		BytesSent:     st.bytesSent,
		BytesReceived: st.bytesReceived,
		LastRTT:       st.lastRTT,
		RTTHistory:    history,
	}
}
