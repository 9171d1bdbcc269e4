package tts

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/hajimehoshi/go-mp3"
	"github.com/pp-group/edge-tts-go/biz/service/tts/edge"

	"github.com/iabetor/manzai-stage/internal/audio"
	"github.com/iabetor/manzai-stage/internal/logger"
)

// EdgeEngine 使用微软 Edge TTS 作为 VOICEVOX 不可用时的兜底引擎，
// 通过 edge-tts-go 获取 MP3 音频，再用 go-mp3 解码为 PCM。
// Edge TTS 不提供 mora 时间数据，Result.Timing 为空，播放时口型保持闭合。
type EdgeEngine struct {
	voice string
}

// NewEdgeEngine 创建指定语音的 Edge TTS 引擎。
func NewEdgeEngine(voice string) *EdgeEngine {
	return &EdgeEngine{voice: voice}
}

func (e *EdgeEngine) Name() string { return "edge" }

// Synthesize 将文本合成为单声道 float32 音频样本。speakerID 被忽略。
func (e *EdgeEngine) Synthesize(ctx context.Context, text string, speakerID int) (Result, error) {
	logger.Debugf("[tts] edge-tts: 正在合成 %d 个字符，语音=%s", len([]rune(text)), e.voice)

	// 创建 Communicate 实例并通过 Stream() 获取 MP3 音频块
	comm, err := edge.NewCommunicate(text, edge.WithVoice(e.voice))
	if err != nil {
		return Result{}, fmt.Errorf("[tts] edge-tts 创建实例失败: %w", err)
	}

	ch, err := comm.Stream()
	if err != nil {
		return Result{}, fmt.Errorf("[tts] edge-tts 开始流式合成失败: %w", err)
	}

	// 从 channel 收集所有音频数据
	var mp3Buf bytes.Buffer
	for msg := range ch {
		select {
		case <-ctx.Done():
			return Result{}, ctx.Err()
		default:
		}
		// Stream() 返回的 map 中，type=="audio" 的条目包含音频数据
		if msgType, ok := msg["type"].(string); ok && msgType == "audio" {
			if data, ok := msg["data"].([]byte); ok {
				mp3Buf.Write(data)
			}
		}
	}

	mp3Data := mp3Buf.Bytes()
	if len(mp3Data) == 0 {
		return Result{}, fmt.Errorf("[tts] edge-tts: 未收到音频数据")
	}

	// 解码 MP3 为原始 PCM
	decoder, err := mp3.NewDecoder(bytes.NewReader(mp3Data))
	if err != nil {
		return Result{}, fmt.Errorf("[tts] MP3 解码失败: %w", err)
	}

	sampleRate := decoder.SampleRate()

	pcmData, err := io.ReadAll(decoder)
	if err != nil {
		return Result{}, fmt.Errorf("[tts] 读取 PCM 数据失败: %w", err)
	}

	// go-mp3 输出立体声 signed 16-bit LE，混为单声道
	samples := audio.StereoBytesToMonoFloat32(pcmData)

	logger.Debugf("[tts] edge-tts: 解码得到 %d 个单声道样本，采样率 %d Hz",
		len(samples), sampleRate)

	return Result{Samples: samples, SampleRate: sampleRate}, nil
}
