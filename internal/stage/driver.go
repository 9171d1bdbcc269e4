// Package stage 驱动舞台上的角色：渲染驱动每帧把播放位置换算成
// 口部开合度推给渲染目标，空闲动作让角色在不说话时也保持生动。
package stage

import (
	"context"
	"time"

	"github.com/iabetor/manzai-stage/internal/lipsync"
	"github.com/iabetor/manzai-stage/internal/logger"
	"github.com/iabetor/manzai-stage/internal/mirror"
	"github.com/iabetor/manzai-stage/internal/sequencer"
)

// Target 是渲染目标：接收每帧的口部开合度。
type Target interface {
	SetMouthOpenness(v float64)
}

// Driver 是渲染驱动。播放期间按固定帧率采样活跃段的播放位置，
// 计算口部开合度并推给渲染目标和镜像窗口；回到空闲时強制闭口
// 并停掉自己的帧定时器。
type Driver struct {
	seq    *sequencer.Sequencer
	target Target
	hub    *mirror.Hub
	fps    int

	// 订阅回调在序列器锁内执行，只能做非阻塞唤醒
	wake chan struct{}
}

// NewDriver 创建渲染驱动并订阅序列器的状态变化。
// hub 可以为 nil（镜像未启用）。
func NewDriver(seq *sequencer.Sequencer, target Target, hub *mirror.Hub, fps int) *Driver {
	if fps <= 0 {
		fps = 30
	}
	d := &Driver{
		seq:    seq,
		target: target,
		hub:    hub,
		fps:    fps,
		wake:   make(chan struct{}, 1),
	}
	seq.Subscribe(func(sequencer.PlaybackState) {
		select {
		case d.wake <- struct{}{}:
		default:
		}
	})
	return d
}

// Run 运行帧循环，阻塞直到 ctx 被取消。
// 定时器只在播放期间运转，空闲时整个循环停在状态变化上。
func (d *Driver) Run(ctx context.Context) {
	interval := time.Second / time.Duration(d.fps)
	var ticker *time.Ticker

	stopTicker := func() {
		if ticker != nil {
			ticker.Stop()
			ticker = nil
		}
	}
	defer stopTicker()

	logger.Infof("[stage] 渲染驱动已启动（%d fps）", d.fps)

	for {
		var tick <-chan time.Time
		if ticker != nil {
			tick = ticker.C
		}

		select {
		case <-ctx.Done():
			d.applyIdle()
			return
		case <-d.wake:
			if d.seq.Playing() {
				if ticker == nil {
					ticker = time.NewTicker(interval)
				}
				d.frame()
			} else {
				stopTicker()
				d.applyIdle()
			}
		case <-tick:
			d.frame()
		}
	}
}

// frame 采样一帧：播放位置 → 开合度 → 渲染目标 + 镜像。
func (d *Driver) frame() {
	pos, td, ok := d.seq.Frame()
	if !ok {
		d.applyIdle()
		return
	}

	v := lipsync.Openness(td, pos)
	d.seq.SetOpenness(v)
	d.target.SetMouthOpenness(v)

	st := d.seq.State()
	d.hub.SendState(mirror.StatePayload{
		IsPlaying:   st.IsPlaying,
		Openness:    v,
		ActiveIndex: st.ActiveIndex,
	})
}

// applyIdle 强制闭口并向镜像推一次空闲状态。
func (d *Driver) applyIdle() {
	d.seq.SetOpenness(0)
	d.target.SetMouthOpenness(0)
	d.hub.SendState(mirror.StatePayload{
		IsPlaying:   false,
		Openness:    0,
		ActiveIndex: -1,
	})
}
