package sequencer

import (
	"context"
	"sync"

	"github.com/iabetor/manzai-stage/internal/logger"
	"github.com/iabetor/manzai-stage/internal/timing"
)

// TimingFetcher 获取一条台词的发音时间数据。
// 失败时返回错误，调用方将其视为"无数据"（口形保持闭合），绝不致命。
type TimingFetcher func(ctx context.Context, text string, speakerID int) (timing.Data, error)

// Sequencer 持有一组有序的台词段并严格按顺序播放：
// 同一时刻至多一个段的 Transport 处于播放状态，播放结束自动前进，
// 全部播完（或全部失败）回到空闲。每次状态转换都会向订阅者推送
// PlaybackState。
//
// 所有转换都在锁内一次完成，异步回调（播放结束、时间数据到达）
// 携带世代号，与当前世代不符的一律丢弃，保证被替换段的迟到事件
// 不会引发错位前进。
type Sequencer struct {
	mu       sync.Mutex
	fetcher  TimingFetcher
	segments []*Segment

	active   int // -1 = 空闲
	playing  bool
	openness float64

	// gen 每次启动/停止/替换都会递增，用于丢弃过期回调。
	gen uint64

	// 当前活跃段的时间数据，段激活时异步获取，切换段时丢弃。
	timing timing.Data

	subs []func(PlaybackState)

	// fetchCtx 在 Start 时记录，自动前进的段沿用同一 context。
	fetchCtx context.Context
}

// New 创建空闲状态的 Sequencer。fetcher 可以为 nil（不获取时间数据）。
func New(fetcher TimingFetcher) *Sequencer {
	return &Sequencer{
		fetcher: fetcher,
		active:  -1,
	}
}

// Subscribe 注册状态订阅者。回调在锁内执行，必须快速返回，
// 并且不得反过来调用 Sequencer 的方法。
func (s *Sequencer) Subscribe(fn func(PlaybackState)) {
	s.mu.Lock()
	s.subs = append(s.subs, fn)
	s.mu.Unlock()
}

// Replace 原子地替换整个段列表。若正在播放则先停止当前段。
// 替换后处于空闲状态，任何旧段的迟到回调都会被世代号拦下。
func (s *Sequencer) Replace(segments []*Segment) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.gen++
	if s.playing && s.active >= 0 && s.active < len(s.segments) {
		s.segments[s.active].Transport.Stop()
	}
	s.segments = segments
	s.toIdleLocked()
	logger.Infof("[sequencer] 段列表已替换: %d 段", len(segments))
}

// Start 从段 0 开始播放。空闲且列表非空时返回 true。
func (s *Sequencer) Start(ctx context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.playing || len(s.segments) == 0 {
		return false
	}
	s.fetchCtx = ctx
	s.startLocked(0)
	return true
}

// Stop 停止播放并回到空闲。对空闲状态调用是无害的空操作。
func (s *Sequencer) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.playing {
		return
	}
	// 先作废世代号，再同步停止，停止引发的任何回调都会被丢弃
	s.gen++
	if s.active >= 0 && s.active < len(s.segments) {
		s.segments[s.active].Transport.Stop()
	}
	s.toIdleLocked()
}

// State 返回当前播放状态快照。
func (s *Sequencer) State() PlaybackState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stateLocked()
}

// Playing 报告是否处于播放状态。
func (s *Sequencer) Playing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.playing
}

// Count 返回当前段数。
func (s *Sequencer) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.segments)
}

// SetOpenness 刷新状态中的口部开合度（每帧由渲染驱动调用），不触发推送。
func (s *Sequencer) SetOpenness(v float64) {
	s.mu.Lock()
	s.openness = v
	s.mu.Unlock()
}

// Frame 返回活跃段的播放位置与时间数据，供渲染驱动每帧采样。
// 非播放状态返回 ok=false。时间数据尚未到达时返回空数据，
// 采样结果自然为 0（口形闭合）。
func (s *Sequencer) Frame() (posMs float64, td timing.Data, ok bool) {
	s.mu.Lock()
	if !s.playing || s.active < 0 || s.active >= len(s.segments) {
		s.mu.Unlock()
		return 0, timing.Data{}, false
	}
	tr := s.segments[s.active].Transport
	td = s.timing
	s.mu.Unlock()

	// PositionMs 只读原子位置，不需要持锁
	return tr.PositionMs(), td, true
}

// startLocked 激活段 i：递增世代号、启动它的 Transport、
// 发起时间数据获取并推送状态。启动失败按"播放结束"处理（跳过前进）。
func (s *Sequencer) startLocked(i int) {
	s.gen++
	g := s.gen
	s.active = i
	s.playing = true
	s.openness = 0
	s.timing = timing.Data{}

	seg := s.segments[i]
	logger.Infof("[sequencer] 开始段 %d/%d [%s] %s", i+1, len(s.segments), seg.Role, seg.Text)
	s.notifyLocked()

	if s.fetcher != nil {
		// fetchCtx 在锁内取出后随 goroutine 带走，之后的 Start 重新赋值
		// 不会与本次获取产生共享读写
		ctx := s.fetchCtx
		if ctx == nil {
			ctx = context.Background()
		}
		go s.fetchTiming(ctx, g, seg)
	}

	err := seg.Transport.Start(func(err error) {
		s.segmentEnded(g, err)
	})
	if err != nil {
		logger.Warnf("[sequencer] 段 %d 启动失败，跳过: %v", i, err)
		s.advanceLocked()
	}
}

// fetchTiming 异步获取活跃段的时间数据；结果到达时段已被替换则丢弃。
func (s *Sequencer) fetchTiming(ctx context.Context, g uint64, seg *Segment) {
	td, err := s.fetcher(ctx, seg.Text, seg.SpeakerID)

	s.mu.Lock()
	defer s.mu.Unlock()
	if g != s.gen {
		return // 段已切换，结果作废
	}
	if err != nil {
		logger.Warnf("[sequencer] 获取时间数据失败（口形保持闭合）: %v", err)
		return
	}
	s.timing = td
}

// segmentEnded 处理 Transport 的结束回调。
func (s *Sequencer) segmentEnded(g uint64, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if g != s.gen {
		return // 过期世代的结束事件
	}
	if err != nil {
		logger.Warnf("[sequencer] 段 %d 播放失败，跳过: %v", s.active, err)
	}
	s.advanceLocked()
}

// advanceLocked 前进到下一段，没有下一段则回到空闲。
func (s *Sequencer) advanceLocked() {
	next := s.active + 1
	if next < len(s.segments) {
		s.startLocked(next)
		return
	}
	logger.Info("[sequencer] 全部段播放完毕")
	s.toIdleLocked()
}

// toIdleLocked 复位到空闲状态并推送。
func (s *Sequencer) toIdleLocked() {
	s.active = -1
	s.playing = false
	s.openness = 0
	s.timing = timing.Data{}
	s.notifyLocked()
}

func (s *Sequencer) stateLocked() PlaybackState {
	return PlaybackState{
		IsPlaying:   s.playing,
		ActiveIndex: s.active,
		Openness:    s.openness,
	}
}

// notifyLocked 在锁内向所有订阅者推送当前状态。
func (s *Sequencer) notifyLocked() {
	st := s.stateLocked()
	for _, fn := range s.subs {
		fn(st)
	}
}
