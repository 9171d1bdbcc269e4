package audio

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/gen2brain/malgo"

	"github.com/iabetor/manzai-stage/internal/logger"
)

// Player 使用 malgo (miniaudio) 管理播放上下文。
// 每条台词通过 NewClip 获得自己的播放句柄，互不共享设备。
type Player struct {
	ctx      *malgo.AllocatedContext
	channels uint32
	mu       sync.Mutex
	closed   bool
}

// NewPlayer 创建一个新的音频播放实例。
// channels: 声道数，通常为 1（单声道）
func NewPlayer(channels int) (*Player, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("初始化播放上下文失败: %w", err)
	}

	return &Player{
		ctx:      ctx,
		channels: uint32(channels),
	}, nil
}

// NewClip 为一段 float32 音频创建独立的播放句柄。
func (p *Player) NewClip(samples []float32, sampleRate int) *Clip {
	return &Clip{
		player:     p,
		samples:    samples,
		sampleRate: sampleRate,
	}
}

// Close 释放所有资源。
func (p *Player) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return
	}
	p.closed = true

	if p.ctx != nil {
		_ = p.ctx.Uninit()
		p.ctx.Free()
		p.ctx = nil
	}
}

// Clip 是单段音频的播放句柄，实现 sequencer.Transport：
// Start 异步播放并在自然结束时回调一次 onEnd，Stop 同步停止且
// 不触发 onEnd，PositionMs 随播放推进。
type Clip struct {
	player     *Player
	samples    []float32
	sampleRate int

	// posBytes 记录已送入设备的 PCM 字节数，回调线程写、任意线程读。
	posBytes atomic.Int64

	mu      sync.Mutex
	device  *malgo.Device
	stopCh  chan struct{}
	running bool
}

// Start 初始化播放设备并开始异步播放。
// 空音频视为立即播完（仍然异步回调 onEnd）。
func (c *Clip) Start(onEnd func(err error)) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		return fmt.Errorf("片段已在播放")
	}

	c.player.mu.Lock()
	closed := c.player.closed
	c.player.mu.Unlock()
	if closed {
		return fmt.Errorf("播放器已关闭")
	}

	pcmBytes := Float32ToBytes(c.samples)
	c.posBytes.Store(0)
	if len(pcmBytes) == 0 {
		go onEnd(nil)
		return nil
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Playback)
	deviceConfig.Playback.Format = malgo.FormatS16
	deviceConfig.Playback.Channels = c.player.channels
	deviceConfig.SampleRate = uint32(c.sampleRate)
	deviceConfig.PeriodSizeInFrames = 512
	deviceConfig.Periods = 2

	pos := 0
	done := make(chan struct{}, 1)

	callbacks := malgo.DeviceCallbacks{
		Data: func(outputSamples, inputSamples []byte, frameCount uint32) {
			bytesNeeded := int(frameCount) * int(c.player.channels) * 2
			if pos >= len(pcmBytes) {
				// 数据播完，填充静音并通知结束
				for i := range outputSamples[:bytesNeeded] {
					outputSamples[i] = 0
				}
				select {
				case done <- struct{}{}:
				default:
				}
				return
			}

			end := pos + bytesNeeded
			if end > len(pcmBytes) {
				end = len(pcmBytes)
			}
			copy(outputSamples, pcmBytes[pos:end])
			if end-pos < bytesNeeded {
				for i := end - pos; i < bytesNeeded; i++ {
					outputSamples[i] = 0
				}
			}
			pos = end
			c.posBytes.Store(int64(pos))
		},
	}

	device, err := malgo.InitDevice(c.player.ctx.Context, deviceConfig, callbacks)
	if err != nil {
		return fmt.Errorf("初始化播放设备失败: %w", err)
	}
	if err := device.Start(); err != nil {
		device.Uninit()
		return fmt.Errorf("启动播放设备失败: %w", err)
	}

	c.device = device
	c.stopCh = make(chan struct{})
	c.running = true

	go c.wait(done, c.stopCh, onEnd)
	return nil
}

// wait 等待自然播完或被 Stop 打断。只有自然播完才回调 onEnd。
func (c *Clip) wait(done <-chan struct{}, stop <-chan struct{}, onEnd func(err error)) {
	select {
	case <-done:
		c.teardown()
		logger.Debug("[audio] 片段播放完成")
		onEnd(nil)
	case <-stop:
		// Stop() 已释放设备
	}
}

// Stop 同步停止播放并释放设备。未在播放时为空操作。
func (c *Clip) Stop() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	close(c.stopCh)
	device := c.device
	c.device = nil
	c.running = false
	c.mu.Unlock()

	if device != nil {
		device.Stop()
		device.Uninit()
	}
	logger.Debug("[audio] 片段播放已停止")
}

func (c *Clip) teardown() {
	c.mu.Lock()
	device := c.device
	c.device = nil
	c.running = false
	c.mu.Unlock()

	if device != nil {
		device.Stop()
		device.Uninit()
	}
}

// PositionMs 返回当前播放位置（毫秒）。
func (c *Clip) PositionMs() float64 {
	if c.sampleRate <= 0 || c.player.channels == 0 {
		return 0
	}
	frames := c.posBytes.Load() / int64(2*c.player.channels)
	return float64(frames) * 1000 / float64(c.sampleRate)
}

// DurationMs 返回片段总时长（毫秒）。
func (c *Clip) DurationMs() float64 {
	if c.sampleRate <= 0 || c.player.channels == 0 {
		return 0
	}
	frames := len(c.samples) / int(c.player.channels)
	return float64(frames) * 1000 / float64(c.sampleRate)
}
