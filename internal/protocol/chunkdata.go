// =============================================================================
// 文件: internal/protocol/chunkdata.go
// 描述: 二进制<->文本桥 - 文件分块字节的传输安全编码
// =============================================================================
package protocol

import (
	"encoding/base64"
	"fmt"
)

// chunkEncoding 分块字节编码
// 独立成对的 encode/decode，便于替换为其他文本安全编码
var chunkEncoding = base64.StdEncoding

// EncodeChunkData 字节 -> 文本
func EncodeChunkData(data []byte) string {
	return chunkEncoding.EncodeToString(data)
}

// DecodeChunkData 文本 -> 字节
func DecodeChunkData(text string) ([]byte, error) {
	data, err := chunkEncoding.DecodeString(text)
	if err != nil {
		return nil, fmt.Errorf("解码分块数据失败: %w", err)
	}
	return data, nil
}

// EncodedChunkSize 计算编码后的文本长度
func EncodedChunkSize(rawLen int) int {
	return chunkEncoding.EncodedLen(rawLen)
}
