package sequencer

import "github.com/google/uuid"

// Role 表示一条台词的角色分工。
type Role int

const (
	// RoleTsukkomi — 吐槽役（捧哏）。
	RoleTsukkomi Role = iota
	// RoleBoke — 装傻役（逗哏）。
	RoleBoke
)

var roleNames = [...]string{
	"tsukkomi",
	"boke",
}

func (r Role) String() string {
	if int(r) < len(roleNames) {
		return roleNames[r]
	}
	return "unknown"
}

// Transport 是单个段的音频播放句柄。
// Start 异步开始播放，结束（或失败）时从独立 goroutine 恰好回调一次
// onEnd（不得在 Start 内同步回调）；Stop 同步停止并复位，停止后不再
// 触发 onEnd。
type Transport interface {
	Start(onEnd func(err error)) error
	Stop()
	// PositionMs 返回当前播放位置（毫秒）。
	PositionMs() float64
}

// Segment 是一条可播放的台词：角色、文本和它独占的音频句柄。
// 每个段自己持有 Transport，避免按下标并联索引在替换时错位。
type Segment struct {
	ID        string
	Role      Role
	Text      string
	SpeakerID int
	Transport Transport
}

// NewSegment 创建一个带唯一 ID 的段。
func NewSegment(role Role, text string, speakerID int, tr Transport) *Segment {
	return &Segment{
		ID:        uuid.NewString(),
		Role:      role,
		Text:      text,
		SpeakerID: speakerID,
		Transport: tr,
	}
}

// PlaybackState 是推送给订阅者的瞬时播放状态。
type PlaybackState struct {
	IsPlaying   bool
	ActiveIndex int // -1 表示空闲
	Openness    float64
}
