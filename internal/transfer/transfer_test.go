// =============================================================================
// 文件: internal/transfer/transfer_test.go
// 描述: 文件传输协议测试 - 分块计算、槽位重组、端到端往返
// =============================================================================
package transfer

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ayushpath123/WebRTC-FTP-Implementation/internal/protocol"
	"github.com/ayushpath123/WebRTC-FTP-Implementation/internal/session"
	"github.com/ayushpath123/WebRTC-FTP-Implementation/internal/transport"
)

func TestTotalChunks(t *testing.T) {
	cases := []struct {
		size      uint64
		chunkSize int
		want      uint32
	}{
		{0, 16384, 0},
		{1, 16384, 1},
		{16384, 16384, 1},
		{16385, 16384, 2},
		{40000, 16384, 3},
		{3 * 16384, 16384, 3},
	}

	for _, c := range cases {
		if got := TotalChunks(c.size, c.chunkSize); got != c.want {
			t.Errorf("TotalChunks(%d, %d) = %d, want %d", c.size, c.chunkSize, got, c.want)
		}
	}
}

func TestReceiverReassemblesInOrder(t *testing.T) {
	r := NewReceiver()
	var got *ReceivedFile
	r.OnFile(func(f ReceivedFile) { got = &f })
	r.OnError(func(err error) { t.Fatalf("不应出错: %v", err) })

	r.HandlePayload(protocol.FileMetaPayload{Name: "a.bin", Size: 6, MimeType: "application/octet-stream", TotalChunks: 2})
	r.HandlePayload(protocol.FileChunkPayload{Index: 0, Data: []byte("abc")})
	r.HandlePayload(protocol.FileChunkPayload{Index: 1, Data: []byte("def")})
	r.HandlePayload(protocol.FileCompletePayload{})

	if got == nil {
		t.Fatal("应交付文件")
	}
	if !bytes.Equal(got.Data, []byte("abcdef")) {
		t.Errorf("重组数据不正确: %q", got.Data)
	}
	if got.Name != "a.bin" || got.Size != 6 {
		t.Errorf("元信息不正确: %+v", got)
	}
	if r.Active() {
		t.Error("完成后缓冲应销毁")
	}
}

func TestReceiverOutOfOrderChunks(t *testing.T) {
	r := NewReceiver()
	var got *ReceivedFile
	r.OnFile(func(f ReceivedFile) { got = &f })

	r.HandlePayload(protocol.FileMetaPayload{Name: "b.bin", Size: 6, TotalChunks: 2})
	r.HandlePayload(protocol.FileChunkPayload{Index: 1, Data: []byte("def")})
	r.HandlePayload(protocol.FileChunkPayload{Index: 0, Data: []byte("abc")})
	r.HandlePayload(protocol.FileCompletePayload{})

	if got == nil || !bytes.Equal(got.Data, []byte("abcdef")) {
		t.Fatal("乱序分块应按索引重组")
	}
}

func TestReceiverDuplicateChunkIdempotent(t *testing.T) {
	r := NewReceiver()
	var got *ReceivedFile
	r.OnFile(func(f ReceivedFile) { got = &f })
	r.OnError(func(err error) { t.Fatalf("不应出错: %v", err) })

	r.HandlePayload(protocol.FileMetaPayload{Name: "c.bin", Size: 6, TotalChunks: 2})
	r.HandlePayload(protocol.FileChunkPayload{Index: 0, Data: []byte("abc")})
	r.HandlePayload(protocol.FileChunkPayload{Index: 0, Data: []byte("abc")}) // 重复写入
	r.HandlePayload(protocol.FileChunkPayload{Index: 1, Data: []byte("def")})
	r.HandlePayload(protocol.FileCompletePayload{})

	if got == nil || !bytes.Equal(got.Data, []byte("abcdef")) {
		t.Fatal("重复分块不得破坏重组")
	}
}

func TestReceiverIncompleteFailsFast(t *testing.T) {
	r := NewReceiver()
	var gotErr error
	r.OnFile(func(f ReceivedFile) { t.Fatal("不完整传输不应交付") })
	r.OnError(func(err error) { gotErr = err })

	r.HandlePayload(protocol.FileMetaPayload{Name: "d.bin", Size: 9, TotalChunks: 3})
	r.HandlePayload(protocol.FileChunkPayload{Index: 0, Data: []byte("abc")})
	r.HandlePayload(protocol.FileCompletePayload{})

	if !errors.Is(gotErr, ErrIncompleteTransfer) {
		t.Errorf("应上报不完整传输错误: %v", gotErr)
	}
	if r.Active() {
		t.Error("失败后缓冲应销毁")
	}
}

func TestReceiverIgnoresStrayPayloads(t *testing.T) {
	r := NewReceiver()
	r.OnFile(func(f ReceivedFile) { t.Fatal("不应交付") })
	r.OnError(func(err error) { t.Fatalf("不应出错: %v", err) })

	// 没有元信息时的分块和结束信号直接忽略
	r.HandlePayload(protocol.FileChunkPayload{Index: 0, Data: []byte("abc")})
	r.HandlePayload(protocol.FileCompletePayload{})

	// 索引越界的分块忽略
	r.HandlePayload(protocol.FileMetaPayload{Name: "e.bin", Size: 3, TotalChunks: 1})
	r.HandlePayload(protocol.FileChunkPayload{Index: 9, Data: []byte("abc")})
}

func TestReceiverNewMetaAbandonsPrevious(t *testing.T) {
	r := NewReceiver()
	var got *ReceivedFile
	r.OnFile(func(f ReceivedFile) { got = &f })
	r.OnError(func(err error) { t.Fatalf("不应出错: %v", err) })

	r.HandlePayload(protocol.FileMetaPayload{Name: "old.bin", Size: 100, TotalChunks: 7})
	r.HandlePayload(protocol.FileChunkPayload{Index: 0, Data: make([]byte, 50)})

	// 新传输开始，旧缓冲被替换
	r.HandlePayload(protocol.FileMetaPayload{Name: "new.bin", Size: 3, TotalChunks: 1})
	r.HandlePayload(protocol.FileChunkPayload{Index: 0, Data: []byte("xyz")})
	r.HandlePayload(protocol.FileCompletePayload{})

	if got == nil || got.Name != "new.bin" || !bytes.Equal(got.Data, []byte("xyz")) {
		t.Fatal("新传输应正常完成")
	}
}

func TestReceiverEmptyFile(t *testing.T) {
	r := NewReceiver()
	var got *ReceivedFile
	r.OnFile(func(f ReceivedFile) { got = &f })
	r.OnError(func(err error) { t.Fatalf("不应出错: %v", err) })

	r.HandlePayload(protocol.FileMetaPayload{Name: "empty.bin", Size: 0, TotalChunks: 0})
	r.HandlePayload(protocol.FileCompletePayload{})

	if got == nil || len(got.Data) != 0 {
		t.Fatal("零字节文件应交付空数据")
	}
}

// =============================================================================
// 端到端往返: 两个会话隔着有损内存管道
// =============================================================================

// noopHandler 发送侧会话处理器
type noopHandler struct{}

func (noopHandler) OnDeliver(protocol.Payload)                   {}
func (noopHandler) OnStats(session.Stats)                        {}
func (noopHandler) OnSendFailed(uint32, protocol.Payload, error) {}

// recvHandler 接收侧会话处理器，转发给重组器
type recvHandler struct {
	recv *Receiver
}

func (h *recvHandler) OnDeliver(p protocol.Payload)                 { h.recv.HandlePayload(p) }
func (h *recvHandler) OnStats(session.Stats)                        {}
func (h *recvHandler) OnSendFailed(uint32, protocol.Payload, error) {}

func fastConfig() *session.Config {
	cfg := session.DefaultConfig()
	cfg.RetransmitTimeout = 30 * time.Millisecond
	cfg.PollInterval = 2 * time.Millisecond
	cfg.SendWaitTimeout = 10 * time.Second
	return cfg
}

func makeTestData(n int) []byte {
	data := make([]byte, n)
	for i := range data {
		data[i] = byte(i*31 + i/251)
	}
	return data
}

func TestFileRoundTripOverLossyPipe(t *testing.T) {
	a, b := transport.NewPipe()
	defer a.Close()
	defer b.Close()

	// 丢掉第 2 条出站消息和一条返程确认，重传机制必须补上
	a.SetDropFunc(func(n int64) bool { return n == 2 })
	b.SetDropFunc(func(n int64) bool { return n == 3 })

	sendSess := session.New(a, fastConfig(), noopHandler{})
	recv := NewReceiver()
	recvSess := session.New(b, fastConfig(), &recvHandler{recv: recv})

	a.SetOnMessage(sendSess.HandleIncoming)
	b.SetOnMessage(recvSess.HandleIncoming)

	fileCh := make(chan ReceivedFile, 1)
	recv.OnFile(func(f ReceivedFile) { fileCh <- f })
	recv.OnError(func(err error) { t.Errorf("接收失败: %v", err) })

	var lastTotal uint32
	recv.OnProgress(func(received, total uint32) { lastTotal = total })

	data := makeTestData(40000)
	sender := NewSender(sendSess, 16384)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := sender.SendFile(ctx, "data.bin", "application/octet-stream", bytes.NewReader(data), uint64(len(data))); err != nil {
		t.Fatalf("发送失败: %v", err)
	}

	select {
	case f := <-fileCh:
		if !bytes.Equal(f.Data, data) {
			t.Error("重组数据与原始数据不一致")
		}
		if f.Name != "data.bin" || f.Size != 40000 {
			t.Errorf("元信息不正确: %+v", f.Name)
		}
	case <-time.After(20 * time.Second):
		t.Fatal("等待文件交付超时")
	}

	// 40000 / 16384 -> 3 块
	if lastTotal != 3 {
		t.Errorf("totalChunks 不正确: got %d, want 3", lastTotal)
	}

	// 丢包必然引起重传
	if snap := sendSess.Snapshot(); snap.Retransmits == 0 {
		t.Error("应观测到重传")
	}
	// 确认被丢弃会造成接收端重复帧
	if snap := recvSess.Snapshot(); snap.Duplicates == 0 {
		t.Error("应观测到重复帧")
	}
}

func TestTextRoundTripOverPipe(t *testing.T) {
	a, b := transport.NewPipe()
	defer a.Close()
	defer b.Close()

	sendSess := session.New(a, fastConfig(), noopHandler{})
	recv := NewReceiver()
	recvSess := session.New(b, fastConfig(), &recvHandler{recv: recv})

	a.SetOnMessage(sendSess.HandleIncoming)
	b.SetOnMessage(recvSess.HandleIncoming)

	textCh := make(chan string, 4)
	recv.OnText(func(text string) { textCh <- text })

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	for _, msg := range []string{"one", "two", "three"} {
		if err := sendSess.WaitUntilSent(ctx, protocol.TextPayload{Text: msg}); err != nil {
			t.Fatalf("发送 %q 失败: %v", msg, err)
		}
	}

	for _, want := range []string{"one", "two", "three"} {
		select {
		case got := <-textCh:
			if got != want {
				t.Errorf("交付顺序不正确: got %q, want %q", got, want)
			}
		case <-time.After(5 * time.Second):
			t.Fatalf("等待 %q 超时", want)
		}
	}
}
