package audio

import (
	"bytes"
	"fmt"

	"github.com/go-audio/wav"
)

// DecodeWAV 将 WAV 数据解码为单声道 float32 样本。
// 多声道取各声道平均，样本按位深归一化到 [-1.0, 1.0]。
func DecodeWAV(data []byte) ([]float32, int, error) {
	dec := wav.NewDecoder(bytes.NewReader(data))
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, 0, fmt.Errorf("解码 WAV 失败: %w", err)
	}
	if buf == nil || buf.Format == nil || len(buf.Data) == 0 {
		return nil, 0, fmt.Errorf("WAV 数据为空")
	}

	channels := buf.Format.NumChannels
	if channels <= 0 {
		channels = 1
	}
	sampleRate := buf.Format.SampleRate

	bitDepth := int(dec.BitDepth)
	if bitDepth == 0 {
		bitDepth = 16
	}
	scale := float32(int64(1) << (bitDepth - 1))

	numFrames := len(buf.Data) / channels
	samples := make([]float32, numFrames)
	for i := 0; i < numFrames; i++ {
		var sum float32
		for ch := 0; ch < channels; ch++ {
			sum += float32(buf.Data[i*channels+ch]) / scale
		}
		mono := sum / float32(channels)
		if mono > 1.0 {
			mono = 1.0
		} else if mono < -1.0 {
			mono = -1.0
		}
		samples[i] = mono
	}

	return samples, sampleRate, nil
}
