package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config 是 manzai-stage 的顶层配置结构。
type Config struct {
	Voicevox VoicevoxConfig `yaml:"voicevox"`
	Script   ScriptConfig   `yaml:"script"`
	TTS      TTSConfig      `yaml:"tts"`
	Stage    StageConfig    `yaml:"stage"`
	Mirror   MirrorConfig   `yaml:"mirror"`
	Audio    AudioConfig    `yaml:"audio"`
	Cache    CacheConfig    `yaml:"cache"`
	Log      LogConfig      `yaml:"log"`
}

// VoicevoxConfig VOICEVOX 引擎配置。
type VoicevoxConfig struct {
	BaseURL string `yaml:"base_url"`
	// TsukkomiSpeaker / BokeSpeaker 是两个角色使用的话者 style ID。
	TsukkomiSpeaker int `yaml:"tsukkomi_speaker"`
	BokeSpeaker     int `yaml:"boke_speaker"`
	// TimeoutSecs 单次 HTTP 请求超时（秒）。
	TimeoutSecs int `yaml:"timeout_secs"`
}

// ScriptConfig 台本生成配置。
type ScriptConfig struct {
	OllamaURL    string `yaml:"ollama_url"`
	Model        string `yaml:"model"`
	TemplatesDir string `yaml:"templates_dir"`
	// UseMock 为 true 时跳过 Ollama，使用内置台本（调试用）。
	UseMock bool `yaml:"use_mock"`
}

// TTSConfig 合成回退配置。主引擎固定为 VOICEVOX。
type TTSConfig struct {
	// Fallback 目前仅支持 "edge"，为空则不启用回退。
	Fallback string     `yaml:"fallback"`
	Edge     EdgeConfig `yaml:"edge"`
}

// EdgeConfig Edge TTS 配置。
type EdgeConfig struct {
	Voice string `yaml:"voice"`
}

// StageConfig 渲染驱动配置。
type StageConfig struct {
	// FPS 口形采样帧率。
	FPS int `yaml:"fps"`
	// IdleMotion 是否开启待机动作（眨眼/呼吸）。
	IdleMotion bool `yaml:"idle_motion"`
	// BlinkIntervalMs 平均眨眼间隔（毫秒）。
	BlinkIntervalMs int `yaml:"blink_interval_ms"`
}

// MirrorConfig 镜像窗口广播配置。
type MirrorConfig struct {
	Enabled bool `yaml:"enabled"`
	// ListenAddr WebSocket 监听地址，如 ":8700"。
	ListenAddr string `yaml:"listen_addr"`
}

// AudioConfig 音频播放配置。
type AudioConfig struct {
	Channels int `yaml:"channels"`
}

// CacheConfig 合成结果缓存配置。
type CacheConfig struct {
	Enabled bool   `yaml:"enabled"`
	DataDir string `yaml:"data_dir"`
}

// LogConfig 日志配置。
type LogConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// Load 读取 YAML 配置文件并返回 Config。
// 支持 ${VAR_NAME} 形式的环境变量展开。
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件 %s 失败: %w", path, err)
	}

	// 展开环境变量，如 ${MANZAI_OLLAMA_URL}
	expanded := os.Expand(string(data), func(key string) string {
		return os.Getenv(key)
	})

	cfg := &Config{}
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("解析配置文件 %s 失败: %w", path, err)
	}

	setDefaults(cfg)
	return cfg, nil
}

// Default 返回填充了默认值的配置（无配置文件时使用）。
func Default() *Config {
	cfg := &Config{}
	setDefaults(cfg)
	return cfg
}

// setDefaults 为未设置的配置项填充默认值。
func setDefaults(cfg *Config) {
	if cfg.Voicevox.BaseURL == "" {
		cfg.Voicevox.BaseURL = "http://localhost:50021"
	}
	if cfg.Voicevox.TsukkomiSpeaker == 0 {
		cfg.Voicevox.TsukkomiSpeaker = 1
	}
	if cfg.Voicevox.BokeSpeaker == 0 {
		cfg.Voicevox.BokeSpeaker = 3
	}
	if cfg.Voicevox.TimeoutSecs == 0 {
		cfg.Voicevox.TimeoutSecs = 30
	}

	if cfg.Script.OllamaURL == "" {
		cfg.Script.OllamaURL = "http://localhost:11434"
	}
	if cfg.Script.Model == "" {
		cfg.Script.Model = "llama3"
	}
	if cfg.Script.TemplatesDir == "" {
		cfg.Script.TemplatesDir = "./templates"
	}

	if cfg.TTS.Edge.Voice == "" {
		cfg.TTS.Edge.Voice = "ja-JP-NanamiNeural"
	}

	if cfg.Stage.FPS == 0 {
		cfg.Stage.FPS = 30
	}
	if cfg.Stage.BlinkIntervalMs == 0 {
		cfg.Stage.BlinkIntervalMs = 4000
	}

	if cfg.Mirror.ListenAddr == "" {
		cfg.Mirror.ListenAddr = ":8700"
	}

	if cfg.Audio.Channels == 0 {
		cfg.Audio.Channels = 1
	}

	if cfg.Cache.DataDir == "" {
		home, _ := os.UserHomeDir()
		if home != "" {
			cfg.Cache.DataDir = home + "/.manzai-stage"
		} else {
			cfg.Cache.DataDir = "./.manzai-stage-data"
		}
	} else if strings.HasPrefix(cfg.Cache.DataDir, "~/") {
		// Go 不会自动展开 ~，需要手动替换为用户主目录
		home, _ := os.UserHomeDir()
		if home != "" {
			cfg.Cache.DataDir = home + cfg.Cache.DataDir[1:]
		}
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
}
