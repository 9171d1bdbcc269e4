package stage

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/iabetor/manzai-stage/internal/audio"
	"github.com/iabetor/manzai-stage/internal/config"
	"github.com/iabetor/manzai-stage/internal/database"
	"github.com/iabetor/manzai-stage/internal/logger"
	"github.com/iabetor/manzai-stage/internal/mirror"
	"github.com/iabetor/manzai-stage/internal/script"
	"github.com/iabetor/manzai-stage/internal/sequencer"
	"github.com/iabetor/manzai-stage/internal/timing"
	"github.com/iabetor/manzai-stage/internal/tts"
	"github.com/iabetor/manzai-stage/internal/voicecache"
	"github.com/iabetor/manzai-stage/internal/voicevox"
)

// Stage 是主编排器，将所有组件串联在一起：
// 台本生成 → 逐句合成 → 顺序播放 → 每帧口型 → 镜像广播。
type Stage struct {
	cfg *config.Config

	vvClient  *voicevox.Client
	generator script.Generator
	engine    tts.Engine

	db    *database.DB
	cache *voicecache.Cache

	player *audio.Player
	seq    *sequencer.Sequencer

	driver *Driver
	idle   *IdleMotion

	hub       *mirror.Hub
	mirrorSrv *http.Server
}

// New 根据配置创建并初始化完整的舞台。
// target 是渲染目标；没有真实渲染端时传 NopTarget。
func New(cfg *config.Config, target Target) (*Stage, error) {
	s := &Stage{cfg: cfg}

	s.vvClient = voicevox.NewClient(cfg.Voicevox.BaseURL,
		time.Duration(cfg.Voicevox.TimeoutSecs)*time.Second)

	// 引擎可用性探测只影响日志，合成失败时有 Edge 兜底
	st := s.vvClient.CheckAvailability(context.Background())
	if st.Available {
		logger.Infof("[stage] VOICEVOX %s 可用，%d 个话者（%dms）",
			st.Version, st.SpeakerCount, st.ResponseTimeMs)
	} else {
		logger.Warnf("[stage] VOICEVOX 不可用: %s", st.Err)
	}

	// 台本生成器
	if cfg.Script.UseMock {
		s.generator = script.NewMockGenerator()
		logger.Info("[stage] 使用内置演示台本")
	} else {
		s.generator = script.NewOllamaGenerator(cfg.Script.OllamaURL, cfg.Script.Model,
			script.NewPromptStore(cfg.Script.TemplatesDir))
	}

	// TTS：VOICEVOX 为主，按配置挂兜底引擎
	primary := tts.NewVoicevoxEngine(s.vvClient)
	switch cfg.TTS.Fallback {
	case "edge":
		s.engine = tts.NewFallbackEngine(primary, tts.NewEdgeEngine(cfg.TTS.Edge.Voice))
		logger.Info("[stage] 已启用 TTS 兜底引擎: edge")
	case "":
		s.engine = primary
	default:
		logger.Warnf("[stage] 未知的 TTS 兜底引擎: %s", cfg.TTS.Fallback)
		s.engine = primary
	}

	// 语音缓存（可选，失败不阻止启动）
	if cfg.Cache.Enabled {
		db, err := database.Open(filepath.Join(cfg.Cache.DataDir, "manzai.db"))
		if err != nil {
			logger.Warnf("[stage] 打开数据库失败（缓存已禁用）: %v", err)
		} else if err := db.Migrate(); err != nil {
			logger.Warnf("[stage] 数据库迁移失败（缓存已禁用）: %v", err)
			db.Close()
		} else {
			cache, err := voicecache.New(db, cfg.Cache.DataDir)
			if err != nil {
				logger.Warnf("[stage] 创建语音缓存失败（缓存已禁用）: %v", err)
				db.Close()
			} else {
				s.db = db
				s.cache = cache
				logger.Infof("[stage] 语音缓存已启用，%d 条索引", cache.Count())
			}
		}
	}

	// 音频播放
	player, err := audio.NewPlayer(cfg.Audio.Channels)
	if err != nil {
		return nil, fmt.Errorf("初始化音频播放失败: %w", err)
	}
	s.player = player

	// 序列器：激活段时异步取它的时间数据
	s.seq = sequencer.New(func(ctx context.Context, text string, speakerID int) (timing.Data, error) {
		return s.vvClient.Timing(ctx, text, speakerID)
	})

	// 镜像
	if cfg.Mirror.Enabled {
		s.hub = mirror.NewHub()
		mux := http.NewServeMux()
		mux.Handle("/mirror", s.hub.Handler())
		s.mirrorSrv = &http.Server{Addr: cfg.Mirror.ListenAddr, Handler: mux}
	}

	// 渲染驱动与空闲动作
	s.driver = NewDriver(s.seq, target, s.hub, cfg.Stage.FPS)
	if cfg.Stage.IdleMotion {
		if mt, ok := target.(MotionTarget); ok {
			s.idle = NewIdleMotion(mt, cfg.Stage.BlinkIntervalMs, cfg.Stage.FPS)
		}
	}

	logger.Info("[stage] 所有组件初始化完成")
	return s, nil
}

// Sequencer 暴露序列器，供调用方查询状态或手动控制。
func (s *Stage) Sequencer() *sequencer.Sequencer {
	return s.seq
}

// Prepare 为一个话题准备演出：生成台本并逐句合成，
// 完成后把整组段装入序列器（替换原有的一组）。
func (s *Stage) Prepare(ctx context.Context, topic string) error {
	lines, err := s.generator.Generate(ctx, topic)
	if err != nil {
		return fmt.Errorf("生成台本失败: %w", err)
	}
	logger.Infof("[stage] 台本就绪，共 %d 行，开始合成", len(lines))
	s.saveScript(topic, lines)

	segments := make([]*sequencer.Segment, 0, len(lines))
	for i, line := range lines {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		role, speakerID := s.castLine(line.Role)
		res, err := s.synthesizeLine(ctx, line.Text, speakerID)
		if err != nil {
			// 单句失败跳过，演出照常进行
			logger.Warnf("[stage] 第 %d 行合成失败，已跳过: %v", i, err)
			continue
		}

		clip := s.player.NewClip(res.Samples, res.SampleRate)
		segments = append(segments, sequencer.NewSegment(role, line.Text, speakerID, clip))
	}

	if len(segments) == 0 {
		return fmt.Errorf("没有可播放的段（%d 行全部合成失败）", len(lines))
	}

	s.seq.Replace(segments)
	logger.Infof("[stage] 已装入 %d 个段", len(segments))
	return nil
}

// saveScript 把生成的台本写入历史表。失败只记日志，不影响演出。
func (s *Stage) saveScript(topic string, lines []script.Line) {
	if s.db == nil {
		return
	}
	encoded, err := json.Marshal(lines)
	if err != nil {
		logger.Warnf("[stage] 序列化台本失败: %v", err)
		return
	}
	if err := s.db.SaveScript(database.ScriptRecord{
		ID:    uuid.NewString(),
		Topic: topic,
		Model: s.cfg.Script.Model,
		Lines: string(encoded),
	}); err != nil {
		logger.Warnf("[stage] 保存台本历史失败: %v", err)
	}
}

// castLine 把台本角色映射到序列器角色和话者 ID。
func (s *Stage) castLine(r script.Role) (sequencer.Role, int) {
	if r == script.RoleBoke {
		return sequencer.RoleBoke, s.cfg.Voicevox.BokeSpeaker
	}
	return sequencer.RoleTsukkomi, s.cfg.Voicevox.TsukkomiSpeaker
}

// synthesizeLine 合成一句台词，优先走缓存。
func (s *Stage) synthesizeLine(ctx context.Context, text string, speakerID int) (tts.Result, error) {
	if entry, ok := s.cache.Lookup(speakerID, text); ok {
		logger.Debugf("[stage] 缓存命中: %q", text)
		return tts.Result{
			Samples:    entry.Samples,
			SampleRate: entry.SampleRate,
			Timing:     entry.Timing,
		}, nil
	}

	res, err := s.engine.Synthesize(ctx, text, speakerID)
	if err != nil {
		return tts.Result{}, err
	}

	// 只缓存带时间数据的 VOICEVOX 结果；兜底引擎不提供 WAV
	if len(res.WAV) > 0 && !res.Timing.Empty() {
		s.cache.Store(speakerID, text, res.WAV, res.Timing, res.Timing.DurationMs())
	}
	return res, nil
}

// Start 从头开始播放已装入的段。
func (s *Stage) Start(ctx context.Context) bool {
	return s.seq.Start(ctx)
}

// Stop 停止播放。
func (s *Stage) Stop() {
	s.seq.Stop()
}

// Run 启动渲染驱动、空闲动作和镜像服务，阻塞直到 ctx 被取消。
func (s *Stage) Run(ctx context.Context) error {
	if s.mirrorSrv != nil {
		go func() {
			logger.Infof("[stage] 镜像服务监听 %s", s.mirrorSrv.Addr)
			if err := s.mirrorSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Errorf("[stage] 镜像服务异常退出: %v", err)
			}
		}()
	}

	if s.idle != nil {
		go s.idle.Run(ctx)
	}

	s.driver.Run(ctx)
	return ctx.Err()
}

// Close 释放所有资源。
func (s *Stage) Close() {
	logger.Info("[stage] 正在关闭...")

	s.seq.Stop()

	if s.mirrorSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		s.mirrorSrv.Shutdown(shutdownCtx)
		cancel()
	}
	if s.hub != nil {
		s.hub.Close()
	}
	if s.player != nil {
		s.player.Close()
	}
	if s.db != nil {
		s.db.Close()
	}

	logger.Info("[stage] 已关闭")
}

// NopTarget 丢弃所有渲染参数，用于无渲染端运行和测试。
type NopTarget struct{}

func (NopTarget) SetMouthOpenness(float64) {}
func (NopTarget) SetEyeOpenness(float64)   {}
func (NopTarget) SetBodyOffset(float64)    {}
