// =============================================================================
// 文件: internal/session/seen.go
// 描述: 重复帧识别 - 双布隆过滤器轮换窗口
// =============================================================================
package session

import (
	"encoding/binary"

	"github.com/bits-and-blooms/bloom/v3"
)

const (
	// 布隆过滤器参数
	seenExpectedItems  = 8192
	seenFalsePositive  = 0.0001
	seenRotateAfterAdd = seenExpectedItems
)

// seenFilter 已见序列号窗口
// 协议是至少一次语义：重复的 data 帧照常确认并交付，这里只为统计
// 分类 (stats.duplicates)。双过滤器轮换避免长会话下过滤器饱和，
// 代价是轮换边界附近的极旧重复可能被当作新帧，统计可接受。
// 由 Session.mu 串行调用，自身不加锁。
type seenFilter struct {
	current  *bloom.BloomFilter
	previous *bloom.BloomFilter
	added    int
}

func newSeenFilter() *seenFilter {
	return &seenFilter{
		current: bloom.NewWithEstimates(seenExpectedItems, seenFalsePositive),
	}
}

// checkAndMark 检查并标记序列号
// 返回 true 表示首次见到，false 表示重复
func (f *seenFilter) checkAndMark(seq uint32) bool {
	var key [4]byte
	binary.BigEndian.PutUint32(key[:], seq)

	if f.current.Test(key[:]) {
		return false
	}
	if f.previous != nil && f.previous.Test(key[:]) {
		return false
	}

	f.current.Add(key[:])
	f.added++

	if f.added >= seenRotateAfterAdd {
		f.previous = f.current
		f.current = bloom.NewWithEstimates(seenExpectedItems, seenFalsePositive)
		f.added = 0
	}
	return true
}
