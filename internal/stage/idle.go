package stage

import (
	"context"
	"math"
	"time"
)

// MotionTarget 接收空闲动作参数（眨眼、呼吸）。
type MotionTarget interface {
	SetEyeOpenness(v float64)
	SetBodyOffset(v float64)
}

const (
	// blinkDurationMs 一次眨眼的闭合时长
	blinkDurationMs = 150
	// breathPeriodMs 呼吸起伏的周期
	breathPeriodMs = 4000
	// breathAmplitude 呼吸起伏的幅度
	breathAmplitude = 0.02
)

// IdleMotion 在墙钟上驱动眨眼和呼吸。
// 无论角色是否在说话都持续运行，说话时嘴动、眼和身体照常。
type IdleMotion struct {
	target        MotionTarget
	blinkInterval time.Duration
	fps           int
}

// NewIdleMotion 创建空闲动作驱动。
func NewIdleMotion(target MotionTarget, blinkIntervalMs, fps int) *IdleMotion {
	if blinkIntervalMs <= 0 {
		blinkIntervalMs = 4000
	}
	if fps <= 0 {
		fps = 30
	}
	return &IdleMotion{
		target:        target,
		blinkInterval: time.Duration(blinkIntervalMs) * time.Millisecond,
		fps:           fps,
	}
}

// Run 运行空闲动作循环，阻塞直到 ctx 被取消。
func (m *IdleMotion) Run(ctx context.Context) {
	ticker := time.NewTicker(time.Second / time.Duration(m.fps))
	defer ticker.Stop()

	start := time.Now()
	for {
		select {
		case <-ctx.Done():
			m.target.SetEyeOpenness(1)
			m.target.SetBodyOffset(0)
			return
		case <-ticker.C:
			elapsed := time.Since(start)
			m.target.SetEyeOpenness(m.eyeAt(elapsed))
			m.target.SetBodyOffset(m.breathAt(elapsed))
		}
	}
}

// eyeAt 返回 t 时刻的眼部开合度：每 blinkInterval 闭合一次，
// 闭合期内用正弦做平滑过渡。
func (m *IdleMotion) eyeAt(t time.Duration) float64 {
	phaseMs := float64(t.Milliseconds() % m.blinkInterval.Milliseconds())
	if phaseMs >= blinkDurationMs {
		return 1
	}
	// 0→1→0 的闭合曲线，眼开度取反
	return 1 - math.Sin(phaseMs/blinkDurationMs*math.Pi)
}

// breathAt 返回 t 时刻的身体起伏偏移。
func (m *IdleMotion) breathAt(t time.Duration) float64 {
	phase := float64(t.Milliseconds()%breathPeriodMs) / breathPeriodMs
	return breathAmplitude * math.Sin(2*math.Pi*phase)
}
