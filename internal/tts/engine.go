package tts

import (
	"context"

	"github.com/iabetor/manzai-stage/internal/timing"
)

// Result 是一次合成的产物。
// Timing 可能为空：不提供时间数据的引擎返回零值，口型保持闭合。
type Result struct {
	// Samples 单声道 float32 音频样本
	Samples []float32
	// SampleRate 采样率（Hz）
	SampleRate int
	// Timing mora 时间数据
	Timing timing.Data
	// WAV 原始 WAV 数据（供缓存落盘），不是所有引擎都提供
	WAV []byte
}

// Engine 定义语音合成后端接口。
type Engine interface {
	// Synthesize 将文本转换为音频。
	// speakerID 由引擎自行解释，不支持多话者的引擎可忽略。
	Synthesize(ctx context.Context, text string, speakerID int) (Result, error)
	// Name 返回引擎名称，用于日志
	Name() string
}
