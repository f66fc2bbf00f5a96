// =============================================================================
// 文件: internal/transport/pipe_test.go
// 描述: 内存管道测试 - 交付、丢包/重复注入、消息上限
// =============================================================================
package transport

import (
	"bytes"
	"sync"
	"testing"
	"time"
)

func collect(ep *PipeEndpoint) (*sync.Mutex, *[][]byte) {
	var mu sync.Mutex
	var got [][]byte
	ep.SetOnMessage(func(data []byte) {
		mu.Lock()
		got = append(got, data)
		mu.Unlock()
	})
	return &mu, &got
}

func waitCount(t *testing.T, mu *sync.Mutex, got *[][]byte, want int) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		n := len(*got)
		mu.Unlock()
		if n >= want {
			return
		}
		time.Sleep(time.Millisecond)
	}
	mu.Lock()
	defer mu.Unlock()
	t.Fatalf("等待 %d 条消息超时, 实收 %d", want, len(*got))
}

func TestPipeDelivers(t *testing.T) {
	a, b := NewPipe()
	defer a.Close()
	defer b.Close()

	mu, got := collect(b)

	if err := a.Send([]byte("hello")); err != nil {
		t.Fatalf("发送失败: %v", err)
	}
	waitCount(t, mu, got, 1)

	mu.Lock()
	defer mu.Unlock()
	if !bytes.Equal((*got)[0], []byte("hello")) {
		t.Errorf("交付内容不正确: %q", (*got)[0])
	}
}

func TestPipeDropInjection(t *testing.T) {
	a, b := NewPipe()
	defer a.Close()
	defer b.Close()

	mu, got := collect(b)
	a.SetDropFunc(func(n int64) bool { return n == 1 })

	if err := a.Send([]byte("lost")); err != nil {
		t.Fatalf("丢弃的发送也应返回 nil: %v", err)
	}
	if err := a.Send([]byte("kept")); err != nil {
		t.Fatalf("发送失败: %v", err)
	}
	waitCount(t, mu, got, 1)

	mu.Lock()
	defer mu.Unlock()
	if len(*got) != 1 || !bytes.Equal((*got)[0], []byte("kept")) {
		t.Errorf("第 1 条应被丢弃: %q", *got)
	}
}

func TestPipeDupInjection(t *testing.T) {
	a, b := NewPipe()
	defer a.Close()
	defer b.Close()

	mu, got := collect(b)
	a.SetDupFunc(func(n int64) bool { return n == 1 })

	if err := a.Send([]byte("twice")); err != nil {
		t.Fatalf("发送失败: %v", err)
	}
	waitCount(t, mu, got, 2)

	mu.Lock()
	defer mu.Unlock()
	if !bytes.Equal((*got)[0], (*got)[1]) {
		t.Error("重复交付的两条消息应一致")
	}
}

func TestPipeRejectsOversizedMessage(t *testing.T) {
	a, b := NewPipe()
	defer a.Close()
	defer b.Close()

	if err := a.Send(make([]byte, MaxMessageSize+1)); err != ErrMessageTooLarge {
		t.Errorf("超限消息应被拒绝: %v", err)
	}
}

func TestPipeClosedEndpointRejectsSend(t *testing.T) {
	a, b := NewPipe()
	b.Close()

	if err := a.Send([]byte("x")); err != ErrChannelClosed {
		t.Errorf("对端关闭后发送应失败: %v", err)
	}

	a.Close()
	if a.IsOpen() {
		t.Error("关闭后 IsOpen 应为 false")
	}
}
