// Package voicecache 缓存合成过的台词：WAV 落盘、索引进 SQLite。
// 同一话者念同一句台词时直接命中，不再调用合成引擎。
package voicecache

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"github.com/iabetor/manzai-stage/internal/audio"
	"github.com/iabetor/manzai-stage/internal/database"
	"github.com/iabetor/manzai-stage/internal/logger"
	"github.com/iabetor/manzai-stage/internal/timing"
)

// Entry 是一次缓存命中返回的内容。
type Entry struct {
	Samples    []float32
	SampleRate int
	Timing     timing.Data
}

// Cache 管理合成语音的文件缓存和 SQLite 索引。
// Cache 为 nil 时所有操作都是未命中/空操作，调用方无需判断缓存是否启用。
type Cache struct {
	db  *database.DB
	dir string
}

// New 创建语音缓存。dataDir 下的 voicecache/ 子目录存放 WAV 文件。
func New(db *database.DB, dataDir string) (*Cache, error) {
	dir := filepath.Join(dataDir, "voicecache")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("创建语音缓存目录失败: %w", err)
	}
	return &Cache{db: db, dir: dir}, nil
}

// Key 计算缓存键：话者 ID 和台词文本的散列。
func Key(speakerID int, text string) string {
	sum := sha1.Sum([]byte(fmt.Sprintf("%d:%s", speakerID, text)))
	return hex.EncodeToString(sum[:])
}

// Lookup 查找缓存。命中时返回解码后的样本和时间数据。
// 索引有记录但文件丢失按未命中处理。
func (c *Cache) Lookup(speakerID int, text string) (Entry, bool) {
	if c == nil {
		return Entry{}, false
	}

	key := Key(speakerID, text)

	var timingJSON string
	err := c.db.QueryRow(
		`SELECT timing FROM voice_cache WHERE cache_key = ?`, key,
	).Scan(&timingJSON)
	if err != nil {
		return Entry{}, false
	}

	wav, err := os.ReadFile(c.filePath(key))
	if err != nil {
		logger.Debugf("[voicecache] 索引命中但文件丢失: %s", key)
		return Entry{}, false
	}

	samples, rate, err := audio.DecodeWAV(wav)
	if err != nil {
		logger.Warnf("[voicecache] 缓存 WAV 解码失败: %v", err)
		return Entry{}, false
	}

	if _, err := c.db.Exec(
		`UPDATE voice_cache SET hit_count = hit_count + 1, last_hit = CURRENT_TIMESTAMP
		 WHERE cache_key = ?`, key,
	); err != nil {
		logger.Debugf("[voicecache] 更新命中计数失败: %v", err)
	}

	return Entry{
		Samples:    samples,
		SampleRate: rate,
		Timing:     timing.Unmarshal([]byte(timingJSON)),
	}, true
}

// Store 写入一条合成结果：WAV 落盘后登记索引。
// 任一步失败只记日志，缓存失败不影响播放。
func (c *Cache) Store(speakerID int, text string, wav []byte, td timing.Data, durationMs float64) {
	if c == nil {
		return
	}

	key := Key(speakerID, text)

	// 先写临时文件再改名，避免留下半截 WAV
	path := c.filePath(key)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, wav, 0644); err != nil {
		logger.Warnf("[voicecache] 写入缓存文件失败: %v", err)
		return
	}
	if err := os.Rename(tmp, path); err != nil {
		logger.Warnf("[voicecache] 缓存文件改名失败: %v", err)
		os.Remove(tmp)
		return
	}

	timingJSON, err := timing.Marshal(td)
	if err != nil {
		timingJSON = []byte("{}")
	}

	if _, err := c.db.Exec(
		`INSERT INTO voice_cache (cache_key, speaker_id, text, timing, duration_ms, size)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(cache_key) DO UPDATE SET
		   timing = excluded.timing,
		   duration_ms = excluded.duration_ms,
		   size = excluded.size,
		   last_hit = CURRENT_TIMESTAMP`,
		key, speakerID, text, string(timingJSON), durationMs, len(wav),
	); err != nil {
		logger.Warnf("[voicecache] 写入缓存索引失败: %v", err)
	}
}

// Count 返回索引中的条目数。
func (c *Cache) Count() int {
	if c == nil {
		return 0
	}
	var n int
	if err := c.db.QueryRow(`SELECT COUNT(*) FROM voice_cache`).Scan(&n); err != nil {
		return 0
	}
	return n
}

func (c *Cache) filePath(key string) string {
	return filepath.Join(c.dir, key+".wav")
}
