// =============================================================================
// 文件: internal/session/seen_test.go
// 描述: 重复帧识别窗口测试
// =============================================================================
package session

import "testing"

func TestSeenFilterMarksDuplicates(t *testing.T) {
	f := newSeenFilter()

	if !f.checkAndMark(1) {
		t.Error("首次见到的序列号应返回 true")
	}
	if f.checkAndMark(1) {
		t.Error("重复序列号应返回 false")
	}
	if !f.checkAndMark(2) {
		t.Error("新序列号应返回 true")
	}
}

func TestSeenFilterRotationKeepsRecentWindow(t *testing.T) {
	f := newSeenFilter()

	// 填满触发一次轮换
	for i := uint32(0); i < seenRotateAfterAdd; i++ {
		f.checkAndMark(i)
	}
	if f.previous == nil {
		t.Fatal("应已发生轮换")
	}

	// 轮换后上一窗口仍然可查
	if f.checkAndMark(seenRotateAfterAdd - 1) {
		t.Error("上一窗口内的序列号仍应判定为重复")
	}
	if !f.checkAndMark(seenRotateAfterAdd + 100) {
		t.Error("全新序列号应返回 true")
	}
}

func BenchmarkSeenFilterCheckAndMark(b *testing.B) {
	f := newSeenFilter()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		f.checkAndMark(uint32(i))
	}
}
