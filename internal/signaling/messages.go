// =============================================================================
// 文件: internal/signaling/messages.go
// 描述: 信令协议消息 - 房间加入与连接协商中继
// =============================================================================
package signaling

import "encoding/json"

// 消息类型
const (
	TypeJoin      = "join"
	TypeJoined    = "joined"
	TypeOffer     = "offer"
	TypeAnswer    = "answer"
	TypeCandidate = "candidate"
)

// Message 信令消息
// join/joined 只用 Type + RoomID；offer/answer 携带 SDP；
// candidate 携带原样转发的 ICE 候选 JSON。
type Message struct {
	Type      string          `json:"type"`
	RoomID    string          `json:"roomId"`
	SDP       string          `json:"sdp,omitempty"`
	Candidate json.RawMessage `json:"candidate,omitempty"`
}

// IsSignal 是否是需要中继转发的协商消息
func IsSignal(msgType string) bool {
	switch msgType {
	case TypeOffer, TypeAnswer, TypeCandidate:
		return true
	}
	return false
}
