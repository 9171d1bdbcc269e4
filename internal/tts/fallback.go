package tts

import (
	"context"
	"fmt"

	"github.com/iabetor/manzai-stage/internal/logger"
)

// FallbackEngine 先尝试首选引擎，失败后切换到兜底引擎。
// backup 为 nil 时等价于只用 primary。
type FallbackEngine struct {
	primary Engine
	backup  Engine
}

// NewFallbackEngine 创建带兜底的合成引擎。
func NewFallbackEngine(primary, backup Engine) *FallbackEngine {
	return &FallbackEngine{primary: primary, backup: backup}
}

func (e *FallbackEngine) Name() string { return e.primary.Name() }

func (e *FallbackEngine) Synthesize(ctx context.Context, text string, speakerID int) (Result, error) {
	res, err := e.primary.Synthesize(ctx, text, speakerID)
	if err == nil {
		return res, nil
	}
	if e.backup == nil {
		return Result{}, err
	}
	if ctx.Err() != nil {
		return Result{}, err
	}

	logger.Warnf("[tts] 引擎 %s 合成失败，切换到 %s: %v", e.primary.Name(), e.backup.Name(), err)

	res, berr := e.backup.Synthesize(ctx, text, speakerID)
	if berr != nil {
		return Result{}, fmt.Errorf("[tts] 兜底引擎也失败: %w (首选引擎: %v)", berr, err)
	}
	return res, nil
}
