// =============================================================================
// 文件: internal/protocol/frame_test.go
// 描述: 协议帧编解码测试
// =============================================================================
package protocol

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestEncodeDecodeAckFrame(t *testing.T) {
	encoded, err := EncodeFrame(NewAckFrame(42))
	if err != nil {
		t.Fatalf("编码失败: %v", err)
	}

	if !strings.Contains(string(encoded), `"t":"ack"`) {
		t.Errorf("线上格式不正确: %s", encoded)
	}
	if strings.Contains(string(encoded), "payload") {
		t.Errorf("ack 帧不应携带负载: %s", encoded)
	}

	decoded, err := DecodeFrame(encoded)
	if err != nil {
		t.Fatalf("解码失败: %v", err)
	}
	if decoded.Type != FrameAck || decoded.Seq != 42 {
		t.Errorf("解码结果不正确: type=%s seq=%d", decoded.Type, decoded.Seq)
	}
	if decoded.Payload != nil {
		t.Errorf("ack 帧负载应为 nil: %v", decoded.Payload)
	}
}

func TestEncodeDecodeTextFrame(t *testing.T) {
	f := NewDataFrame(7, TextPayload{Text: "hello"})

	encoded, err := EncodeFrame(f)
	if err != nil {
		t.Fatalf("编码失败: %v", err)
	}

	decoded, err := DecodeFrame(encoded)
	if err != nil {
		t.Fatalf("解码失败: %v", err)
	}

	text, ok := decoded.Payload.(TextPayload)
	if !ok {
		t.Fatalf("负载类型不正确: %T", decoded.Payload)
	}
	if text.Text != "hello" {
		t.Errorf("文本不匹配: got %q", text.Text)
	}
}

func TestEncodeDecodeFileMetaFrame(t *testing.T) {
	meta := FileMetaPayload{
		Name:        "report.pdf",
		Size:        40000,
		MimeType:    "application/pdf",
		TotalChunks: 3,
	}

	encoded, err := EncodeFrame(NewDataFrame(1, meta))
	if err != nil {
		t.Fatalf("编码失败: %v", err)
	}

	// 字段名必须与线上协议一致
	for _, field := range []string{`"kind":"file-meta"`, `"name"`, `"size"`, `"type"`, `"totalChunks"`} {
		if !strings.Contains(string(encoded), field) {
			t.Errorf("缺少字段 %s: %s", field, encoded)
		}
	}

	decoded, err := DecodeFrame(encoded)
	if err != nil {
		t.Fatalf("解码失败: %v", err)
	}
	got, ok := decoded.Payload.(FileMetaPayload)
	if !ok {
		t.Fatalf("负载类型不正确: %T", decoded.Payload)
	}
	if got != meta {
		t.Errorf("元信息不匹配: got %+v, want %+v", got, meta)
	}
}

func TestEncodeDecodeFileChunkFrame(t *testing.T) {
	raw := []byte{0x00, 0x01, 0xFE, 0xFF, 0x7F}
	chunk := FileChunkPayload{Index: 2, Data: raw}

	encoded, err := EncodeFrame(NewDataFrame(3, chunk))
	if err != nil {
		t.Fatalf("编码失败: %v", err)
	}

	// 二进制字节必须经过文本安全编码
	var probe struct {
		Payload struct {
			Data string `json:"data"`
		} `json:"payload"`
	}
	if err := json.Unmarshal(encoded, &probe); err != nil {
		t.Fatalf("线上格式不是合法 JSON: %v", err)
	}
	if probe.Payload.Data != EncodeChunkData(raw) {
		t.Errorf("分块数据编码不正确: %s", probe.Payload.Data)
	}

	decoded, err := DecodeFrame(encoded)
	if err != nil {
		t.Fatalf("解码失败: %v", err)
	}
	got, ok := decoded.Payload.(FileChunkPayload)
	if !ok {
		t.Fatalf("负载类型不正确: %T", decoded.Payload)
	}
	if got.Index != 2 || !bytes.Equal(got.Data, raw) {
		t.Errorf("分块不匹配: index=%d data=%v", got.Index, got.Data)
	}
}

func TestChunkIndexZeroSurvivesRoundTrip(t *testing.T) {
	// index=0 是合法值，不能被 omitempty 吞掉
	encoded, err := EncodeFrame(NewDataFrame(1, FileChunkPayload{Index: 0, Data: []byte("x")}))
	if err != nil {
		t.Fatalf("编码失败: %v", err)
	}

	decoded, err := DecodeFrame(encoded)
	if err != nil {
		t.Fatalf("解码失败: %v", err)
	}
	if got := decoded.Payload.(FileChunkPayload); got.Index != 0 {
		t.Errorf("index 不正确: %d", got.Index)
	}
}

func TestEncodeDecodeFileCompleteFrame(t *testing.T) {
	encoded, err := EncodeFrame(NewDataFrame(9, FileCompletePayload{}))
	if err != nil {
		t.Fatalf("编码失败: %v", err)
	}
	if !strings.Contains(string(encoded), `"kind":"file-complete"`) {
		t.Errorf("线上格式不正确: %s", encoded)
	}

	decoded, err := DecodeFrame(encoded)
	if err != nil {
		t.Fatalf("解码失败: %v", err)
	}
	if _, ok := decoded.Payload.(FileCompletePayload); !ok {
		t.Errorf("负载类型不正确: %T", decoded.Payload)
	}
}

func TestDecodeMalformedFrame(t *testing.T) {
	cases := [][]byte{
		nil,
		[]byte(""),
		[]byte("not json"),
		[]byte(`{"t":"bogus","seq":1}`),
		[]byte(`{"t":"data","seq":1}`),
		[]byte(`{"t":"data","seq":1,"payload":{"kind":"mystery"}}`),
		[]byte(`{"t":"data","seq":1,"payload":{"kind":"file-chunk","data":"@@@"}}`),
		[]byte(`{"t":"data","seq":1,"payload":{"kind":"file-chunk","data":"QQ=="}}`),
	}

	for _, raw := range cases {
		if _, err := DecodeFrame(raw); err == nil {
			t.Errorf("应该解码失败: %s", raw)
		}
	}
}

func TestChunkDataRoundTrip(t *testing.T) {
	raw := make([]byte, 1024)
	for i := range raw {
		raw[i] = byte(i * 31)
	}

	decoded, err := DecodeChunkData(EncodeChunkData(raw))
	if err != nil {
		t.Fatalf("解码失败: %v", err)
	}
	if !bytes.Equal(decoded, raw) {
		t.Error("分块数据往返不一致")
	}
}

func BenchmarkEncodeChunkFrame(b *testing.B) {
	f := NewDataFrame(1, FileChunkPayload{Index: 1, Data: make([]byte, 16*1024)})

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = EncodeFrame(f)
	}
}

func BenchmarkDecodeChunkFrame(b *testing.B) {
	encoded, _ := EncodeFrame(NewDataFrame(1, FileChunkPayload{Index: 1, Data: make([]byte, 16*1024)}))

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = DecodeFrame(encoded)
	}
}
