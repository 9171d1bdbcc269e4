package sequencer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/iabetor/manzai-stage/internal/timing"
)

// activeCount 跨所有 fakeTransport 统计同时处于播放状态的数量，
// 用于验证"同一时刻至多一个段活跃"不变式。
type activeCount struct {
	mu  sync.Mutex
	n   int
	max int
}

func (a *activeCount) inc() {
	a.mu.Lock()
	a.n++
	if a.n > a.max {
		a.max = a.n
	}
	a.mu.Unlock()
}

func (a *activeCount) dec() {
	a.mu.Lock()
	a.n--
	a.mu.Unlock()
}

type fakeTransport struct {
	mu       sync.Mutex
	counter  *activeCount
	startErr error
	pos      float64
	starts   int
	stops    int
	onEnd    func(error)
}

func (f *fakeTransport) Start(onEnd func(error)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startErr != nil {
		return f.startErr
	}
	f.starts++
	f.onEnd = onEnd
	if f.counter != nil {
		f.counter.inc()
	}
	return nil
}

func (f *fakeTransport) Stop() {
	f.mu.Lock()
	if f.onEnd != nil && f.counter != nil {
		f.counter.dec()
	}
	f.onEnd = nil
	f.stops++
	f.mu.Unlock()
}

func (f *fakeTransport) PositionMs() float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pos
}

// finish 模拟异步的"播放结束"事件。
func (f *fakeTransport) finish(err error) {
	f.mu.Lock()
	fn := f.onEnd
	f.onEnd = nil
	if fn != nil && f.counter != nil {
		f.counter.dec()
	}
	f.mu.Unlock()
	if fn != nil {
		fn(err)
	}
}

// takeOnEnd 取走结束回调，模拟"事件已在途但尚未送达"。
func (f *fakeTransport) takeOnEnd() func(error) {
	f.mu.Lock()
	fn := f.onEnd
	f.onEnd = nil
	if fn != nil && f.counter != nil {
		f.counter.dec()
	}
	f.mu.Unlock()
	return fn
}

type stateRecorder struct {
	mu     sync.Mutex
	states []PlaybackState
}

func (r *stateRecorder) record(st PlaybackState) {
	r.mu.Lock()
	r.states = append(r.states, st)
	r.mu.Unlock()
}

func (r *stateRecorder) all() []PlaybackState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]PlaybackState(nil), r.states...)
}

func makeSegments(counter *activeCount, n int) ([]*Segment, []*fakeTransport) {
	segs := make([]*Segment, n)
	trs := make([]*fakeTransport, n)
	for i := range segs {
		trs[i] = &fakeTransport{counter: counter}
		role := RoleTsukkomi
		if i%2 == 1 {
			role = RoleBoke
		}
		segs[i] = NewSegment(role, "セリフ", 1, trs[i])
	}
	return segs, trs
}

func TestSequencer_InitialStateIsIdle(t *testing.T) {
	s := New(nil)
	st := s.State()
	if st.IsPlaying || st.ActiveIndex != -1 {
		t.Fatalf("expected idle state, got %+v", st)
	}
	if s.Start(context.Background()) {
		t.Error("Start with empty list should return false")
	}
}

func TestSequencer_AutoAdvanceThroughAllSegments(t *testing.T) {
	const n = 3
	counter := &activeCount{}
	segs, trs := makeSegments(counter, n)

	s := New(nil)
	rec := &stateRecorder{}
	s.Subscribe(rec.record)
	s.Replace(segs)

	if !s.Start(context.Background()) {
		t.Fatal("Start should succeed with non-empty list")
	}

	for i := 0; i < n; i++ {
		st := s.State()
		if !st.IsPlaying || st.ActiveIndex != i {
			t.Fatalf("after %d ended events: expected Playing(%d), got %+v", i, i, st)
		}
		trs[i].finish(nil)
	}

	st := s.State()
	if st.IsPlaying || st.ActiveIndex != -1 {
		t.Fatalf("after all segments ended: expected idle, got %+v", st)
	}

	// 恰好 N 次"开始段"推送 + 结尾一次空闲推送
	var starts, idles int
	for _, st := range rec.all() {
		if st.IsPlaying {
			starts++
		} else {
			idles++
		}
	}
	if starts != n {
		t.Errorf("expected %d playing notifications, got %d", n, starts)
	}
	// Replace 本身也推送一次空闲
	if idles != 2 {
		t.Errorf("expected 2 idle notifications (replace + terminal), got %d", idles)
	}
	if counter.max > 1 {
		t.Errorf("at most one transport may be active, saw %d", counter.max)
	}
}

func TestSequencer_StopHaltsTransport(t *testing.T) {
	counter := &activeCount{}
	segs, trs := makeSegments(counter, 2)
	s := New(nil)
	s.Replace(segs)
	s.Start(context.Background())

	s.Stop()
	st := s.State()
	if st.IsPlaying || st.ActiveIndex != -1 {
		t.Fatalf("expected idle after Stop, got %+v", st)
	}
	if trs[0].stops == 0 {
		t.Error("Stop should halt the active transport")
	}
	// 空闲状态重复 Stop 无害
	s.Stop()
}

func TestSequencer_ReplaceWhilePlayingStopsFirst(t *testing.T) {
	counter := &activeCount{}
	segs, trs := makeSegments(counter, 2)
	s := New(nil)
	s.Replace(segs)
	s.Start(context.Background())

	newSegs, _ := makeSegments(counter, 1)
	s.Replace(newSegs)

	if trs[0].stops == 0 {
		t.Error("Replace while playing should stop the active transport")
	}
	st := s.State()
	if st.IsPlaying || st.ActiveIndex != -1 {
		t.Fatalf("expected idle after Replace, got %+v", st)
	}
	if s.Count() != 1 {
		t.Errorf("expected new list installed, got %d segments", s.Count())
	}
	if counter.max > 1 {
		t.Errorf("at most one transport may be active, saw %d", counter.max)
	}
}

func TestSequencer_StaleEndedEventIsDiscarded(t *testing.T) {
	counter := &activeCount{}
	segs, trs := makeSegments(counter, 2)
	s := New(nil)
	s.Replace(segs)
	s.Start(context.Background())

	// 段 A 的结束事件已在途，但尚未送达
	delayed := trs[0].takeOnEnd()
	if delayed == nil {
		t.Fatal("transport 0 should have been started")
	}

	newSegs, newTrs := makeSegments(counter, 1)
	s.Replace(newSegs)
	s.Start(context.Background())

	// 迟到的事件此刻才送达，必须被世代号拦下
	delayed(nil)

	st := s.State()
	if !st.IsPlaying || st.ActiveIndex != 0 {
		t.Fatalf("stale ended event must not cause a transition, got %+v", st)
	}
	if newTrs[0].starts != 1 {
		t.Errorf("new segment should be started exactly once, got %d", newTrs[0].starts)
	}
}

func TestSequencer_StartFailureSkipsForward(t *testing.T) {
	counter := &activeCount{}
	segs, trs := makeSegments(counter, 3)
	trs[0].startErr = errors.New("device busy")
	trs[1].startErr = errors.New("device busy")

	s := New(nil)
	rec := &stateRecorder{}
	s.Subscribe(rec.record)
	s.Replace(segs)
	s.Start(context.Background())

	// 前两段启动失败被跳过，第三段正常播放
	st := s.State()
	if !st.IsPlaying || st.ActiveIndex != 2 {
		t.Fatalf("expected Playing(2) after two start failures, got %+v", st)
	}
	trs[2].finish(nil)
	if s.State().IsPlaying {
		t.Error("expected idle after last segment")
	}
}

func TestSequencer_AllFailuresReachTerminalIdle(t *testing.T) {
	counter := &activeCount{}
	segs, trs := makeSegments(counter, 2)
	trs[0].startErr = errors.New("no device")
	trs[1].startErr = errors.New("no device")

	s := New(nil)
	s.Replace(segs)
	if !s.Start(context.Background()) {
		t.Fatal("Start should accept a non-empty list even if segments fail")
	}

	// 唯一对外可见的失败形态：一次终态空闲
	st := s.State()
	if st.IsPlaying || st.ActiveIndex != -1 {
		t.Fatalf("expected terminal idle when every segment fails, got %+v", st)
	}
}

func TestSequencer_PlaybackErrorAdvances(t *testing.T) {
	counter := &activeCount{}
	segs, trs := makeSegments(counter, 2)
	s := New(nil)
	s.Replace(segs)
	s.Start(context.Background())

	// 播放中途失败按结束处理
	trs[0].finish(errors.New("decode error"))
	st := s.State()
	if !st.IsPlaying || st.ActiveIndex != 1 {
		t.Fatalf("expected advance to segment 1 after playback error, got %+v", st)
	}
}

func TestSequencer_ActiveIndexAlwaysValid(t *testing.T) {
	counter := &activeCount{}
	segs, trs := makeSegments(counter, 2)
	s := New(nil)

	check := func(step string) {
		st := s.State()
		if st.ActiveIndex != -1 && (st.ActiveIndex < 0 || st.ActiveIndex >= s.Count()) {
			t.Fatalf("%s: activeIndex %d out of range", step, st.ActiveIndex)
		}
		if !st.IsPlaying && st.ActiveIndex != -1 {
			t.Fatalf("%s: idle state must have activeIndex -1, got %d", step, st.ActiveIndex)
		}
	}

	check("initial")
	s.Replace(segs)
	check("replace")
	s.Start(context.Background())
	check("start")
	trs[0].finish(nil)
	check("advance")
	s.Stop()
	check("stop")
	s.Replace(nil)
	check("replace empty")
}

func TestSequencer_TimingFetchedForActiveSegment(t *testing.T) {
	td := timing.Data{Phrases: []timing.AccentPhrase{
		{Moras: []timing.Mora{{Text: "コ", StartMs: 0, EndMs: 100}}},
	}}
	fetcher := func(ctx context.Context, text string, speakerID int) (timing.Data, error) {
		return td, nil
	}

	counter := &activeCount{}
	segs, _ := makeSegments(counter, 1)
	s := New(fetcher)
	s.Replace(segs)
	s.Start(context.Background())

	deadline := time.Now().Add(2 * time.Second)
	for {
		_, got, ok := s.Frame()
		if ok && !got.Empty() {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("timing data never arrived for active segment")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestSequencer_StaleTimingFetchDiscarded(t *testing.T) {
	release := make(chan struct{})
	fetched := make(chan struct{})
	fetcher := func(ctx context.Context, text string, speakerID int) (timing.Data, error) {
		<-release
		defer close(fetched)
		return timing.Data{Phrases: []timing.AccentPhrase{
			{Moras: []timing.Mora{{Text: "ア", StartMs: 0, EndMs: 100}}},
		}}, nil
	}

	counter := &activeCount{}
	segs, _ := makeSegments(counter, 1)
	s := New(fetcher)
	s.Replace(segs)
	s.Start(context.Background())

	// 旧段的获取尚未完成时替换列表并重新开始
	newSegs, _ := makeSegments(counter, 1)
	s.Replace(newSegs)
	// 新段不再发起获取，便于观察旧结果是否被误用
	s.mu.Lock()
	s.fetcher = nil
	s.mu.Unlock()
	s.Start(context.Background())

	close(release)
	<-fetched
	time.Sleep(20 * time.Millisecond)

	_, td, ok := s.Frame()
	if !ok {
		t.Fatal("expected playing state")
	}
	if !td.Empty() {
		t.Error("stale timing fetch result must be discarded")
	}
}

// 反复 Start/Stop，让在途的时间数据获取与下一次 Start 重叠。
// 获取 goroutine 使用的 context 必须在锁内随启动一并取走，
// 与后续 Start 的赋值共享字段会被竞态检测器标红。
func TestSequencer_StartStopCycleWithInFlightFetch(t *testing.T) {
	fetcher := func(ctx context.Context, text string, speakerID int) (timing.Data, error) {
		select {
		case <-ctx.Done():
			return timing.Data{}, ctx.Err()
		case <-time.After(time.Millisecond):
		}
		return timing.Data{Phrases: []timing.AccentPhrase{
			{Moras: []timing.Mora{{Text: "ア", StartMs: 0, EndMs: 100}}},
		}}, nil
	}

	counter := &activeCount{}
	segs, _ := makeSegments(counter, 1)
	s := New(fetcher)
	s.Replace(segs)

	for i := 0; i < 200; i++ {
		ctx, cancel := context.WithCancel(context.Background())
		if !s.Start(ctx) {
			t.Fatalf("Start returned false on cycle %d", i)
		}
		s.Stop()
		cancel()
	}

	if s.Playing() {
		t.Error("sequencer should be idle after final Stop")
	}
	if counter.max > 1 {
		t.Errorf("at most one transport may be active, saw %d", counter.max)
	}
}

func TestSequencer_FrameWhenIdle(t *testing.T) {
	s := New(nil)
	if _, _, ok := s.Frame(); ok {
		t.Error("Frame should report ok=false when idle")
	}
}
