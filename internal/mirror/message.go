// Package mirror 通过 WebSocket 把播放状态广播给镜像窗口，
// 镜像窗口据此同步渲染同一张嘴型。
package mirror

import (
	"encoding/json"
	"fmt"
)

// TypeStateUpdate 是播放状态更新消息的类型标签。
const TypeStateUpdate = "STATE_UPDATE"

// Message 是镜像通道上的消息信封，Type 标识负载的种类。
type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// StatePayload 是 STATE_UPDATE 消息的负载。
type StatePayload struct {
	IsPlaying   bool    `json:"isPlaying"`
	Openness    float64 `json:"opennessValue"`
	ActiveIndex int     `json:"activeIndex"`
}

// EncodeState 把播放状态打包成一条 STATE_UPDATE 消息。
func EncodeState(p StatePayload) ([]byte, error) {
	payload, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("[mirror] 序列化状态失败: %w", err)
	}
	return json.Marshal(Message{Type: TypeStateUpdate, Payload: payload})
}

// DecodeState 解析一条镜像消息并校验类型标签。
// 类型不是 STATE_UPDATE 或负载形状不符时返回错误。
func DecodeState(data []byte) (StatePayload, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return StatePayload{}, fmt.Errorf("[mirror] 解析消息失败: %w", err)
	}
	if msg.Type != TypeStateUpdate {
		return StatePayload{}, fmt.Errorf("[mirror] 未知的消息类型: %q", msg.Type)
	}

	var p StatePayload
	if err := json.Unmarshal(msg.Payload, &p); err != nil {
		return StatePayload{}, fmt.Errorf("[mirror] 解析状态负载失败: %w", err)
	}
	return p, nil
}
