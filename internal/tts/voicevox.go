package tts

import (
	"context"
	"fmt"

	"github.com/iabetor/manzai-stage/internal/audio"
	"github.com/iabetor/manzai-stage/internal/logger"
	"github.com/iabetor/manzai-stage/internal/voicevox"
)

// VoicevoxEngine 使用 VOICEVOX 引擎合成语音。
// 这是首选引擎：除音频外还提供 mora 时间数据，口型可以随语音张合。
type VoicevoxEngine struct {
	client *voicevox.Client
}

// NewVoicevoxEngine 创建 VOICEVOX 合成引擎。
func NewVoicevoxEngine(client *voicevox.Client) *VoicevoxEngine {
	return &VoicevoxEngine{client: client}
}

func (e *VoicevoxEngine) Name() string { return "voicevox" }

// Synthesize 合成文本：一次 audio_query 同时产出音频和时间数据。
func (e *VoicevoxEngine) Synthesize(ctx context.Context, text string, speakerID int) (Result, error) {
	logger.Debugf("[tts] voicevox: 正在合成 %d 个字符，话者=%d", len([]rune(text)), speakerID)

	wav, td, err := e.client.Synthesize(ctx, text, speakerID)
	if err != nil {
		return Result{}, fmt.Errorf("[tts] voicevox 合成失败: %w", err)
	}

	samples, rate, err := audio.DecodeWAV(wav)
	if err != nil {
		return Result{}, fmt.Errorf("[tts] voicevox WAV 解码失败: %w", err)
	}

	logger.Debugf("[tts] voicevox: 得到 %d 个样本，采样率 %d Hz，%d 个韵律短语",
		len(samples), rate, len(td.Phrases))

	return Result{Samples: samples, SampleRate: rate, Timing: td, WAV: wav}, nil
}
