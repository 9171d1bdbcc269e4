package tts

import (
	"context"
	"errors"
	"testing"
)

type stubEngine struct {
	name  string
	res   Result
	err   error
	calls int
}

func (s *stubEngine) Name() string { return s.name }

func (s *stubEngine) Synthesize(ctx context.Context, text string, speakerID int) (Result, error) {
	s.calls++
	return s.res, s.err
}

func TestFallbackUsesPrimaryWhenHealthy(t *testing.T) {
	primary := &stubEngine{name: "a", res: Result{SampleRate: 24000}}
	backup := &stubEngine{name: "b"}
	e := NewFallbackEngine(primary, backup)

	res, err := e.Synthesize(context.Background(), "こん", 1)
	if err != nil {
		t.Fatalf("Synthesize failed: %v", err)
	}
	if res.SampleRate != 24000 {
		t.Errorf("got sample rate %d, want 24000", res.SampleRate)
	}
	if backup.calls != 0 {
		t.Error("backup should not be called when primary succeeds")
	}
}

func TestFallbackSwitchesOnPrimaryFailure(t *testing.T) {
	primary := &stubEngine{name: "a", err: errors.New("down")}
	backup := &stubEngine{name: "b", res: Result{SampleRate: 44100}}
	e := NewFallbackEngine(primary, backup)

	res, err := e.Synthesize(context.Background(), "こん", 1)
	if err != nil {
		t.Fatalf("Synthesize failed: %v", err)
	}
	if res.SampleRate != 44100 {
		t.Errorf("got sample rate %d, want backup's 44100", res.SampleRate)
	}
	// 兜底无时间数据
	if !res.Timing.Empty() {
		t.Error("backup result should carry empty timing")
	}
}

func TestFallbackBothFail(t *testing.T) {
	primary := &stubEngine{name: "a", err: errors.New("down")}
	backup := &stubEngine{name: "b", err: errors.New("also down")}
	e := NewFallbackEngine(primary, backup)

	if _, err := e.Synthesize(context.Background(), "こん", 1); err == nil {
		t.Error("expected error when both engines fail")
	}
}

func TestFallbackNoBackup(t *testing.T) {
	primary := &stubEngine{name: "a", err: errors.New("down")}
	e := NewFallbackEngine(primary, nil)

	if _, err := e.Synthesize(context.Background(), "こん", 1); err == nil {
		t.Error("expected primary error to propagate without backup")
	}
}

func TestFallbackHonorsCancelledContext(t *testing.T) {
	primary := &stubEngine{name: "a", err: context.Canceled}
	backup := &stubEngine{name: "b", res: Result{SampleRate: 44100}}
	e := NewFallbackEngine(primary, backup)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := e.Synthesize(ctx, "こん", 1); err == nil {
		t.Error("expected error with cancelled context")
	}
	if backup.calls != 0 {
		t.Error("backup should not run after context cancellation")
	}
}
