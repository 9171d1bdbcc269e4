package database

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/iabetor/manzai-stage/internal/logger"
	_ "modernc.org/sqlite"
)

// DB 是统一的 SQLite 数据库连接。
// 所有模块共享同一个数据库文件，便于事务和备份。
type DB struct {
	*sql.DB
	path string
}

// Open 打开或创建数据库。
// dbPath: 数据库文件路径，如果为空则使用默认路径 ~/.manzai-stage/manzai.db
func Open(dbPath string) (*DB, error) {
	if dbPath == "" {
		home, _ := os.UserHomeDir()
		if home != "" {
			dbPath = filepath.Join(home, ".manzai-stage", "manzai.db")
		} else {
			dbPath = "./manzai.db"
		}
	}

	// 确保目录存在
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("创建数据库目录失败: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("打开数据库失败: %w", err)
	}

	// 设置 WAL 模式（更好的并发性能）
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("设置 WAL 模式失败: %w", err)
	}

	// 启用外键约束
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("启用外键约束失败: %w", err)
	}

	logger.Infof("[database] 数据库已打开: %s", dbPath)

	return &DB{DB: db, path: dbPath}, nil
}

// Path 返回数据库文件路径。
func (db *DB) Path() string {
	return db.path
}

// Migrate 运行数据库迁移。
func (db *DB) Migrate() error {
	migrations := []string{
		// 语音合成缓存索引表
		`CREATE TABLE IF NOT EXISTS voice_cache (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			cache_key TEXT NOT NULL UNIQUE,
			speaker_id INTEGER NOT NULL,
			text TEXT NOT NULL,
			timing TEXT DEFAULT '',
			duration_ms REAL DEFAULT 0,
			size INTEGER DEFAULT 0,
			hit_count INTEGER DEFAULT 0,
			cached_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			last_hit DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		// 生成过的台本表
		`CREATE TABLE IF NOT EXISTS scripts (
			id TEXT PRIMARY KEY,
			topic TEXT NOT NULL,
			model TEXT DEFAULT '',
			lines TEXT NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
	}

	for _, m := range migrations {
		if _, err := db.Exec(m); err != nil {
			return fmt.Errorf("数据库迁移失败: %w", err)
		}
	}

	// 创建索引
	indexes := []string{
		`CREATE INDEX IF NOT EXISTS idx_voice_cache_speaker ON voice_cache(speaker_id)`,
		`CREATE INDEX IF NOT EXISTS idx_voice_cache_last_hit ON voice_cache(last_hit)`,
		`CREATE INDEX IF NOT EXISTS idx_scripts_topic ON scripts(topic)`,
	}

	for _, idx := range indexes {
		if _, err := db.Exec(idx); err != nil {
			logger.Warnf("[database] 创建索引失败: %v", err)
		}
	}

	logger.Info("[database] 数据库迁移完成")
	return nil
}

// ScriptRecord 是一条生成过的台本记录。
type ScriptRecord struct {
	ID        string
	Topic     string
	Model     string
	Lines     string // JSON 编码的台词行
	CreatedAt string
}

// SaveScript 记录一次生成的台本。
func (db *DB) SaveScript(rec ScriptRecord) error {
	_, err := db.Exec(
		`INSERT INTO scripts (id, topic, model, lines) VALUES (?, ?, ?, ?)`,
		rec.ID, rec.Topic, rec.Model, rec.Lines,
	)
	if err != nil {
		return fmt.Errorf("保存台本失败: %w", err)
	}
	return nil
}

// RecentScripts 按时间倒序返回最近生成的台本。
func (db *DB) RecentScripts(limit int) ([]ScriptRecord, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := db.Query(
		`SELECT id, topic, model, lines, created_at FROM scripts
		 ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("查询台本历史失败: %w", err)
	}
	defer rows.Close()

	var recs []ScriptRecord
	for rows.Next() {
		var r ScriptRecord
		if err := rows.Scan(&r.ID, &r.Topic, &r.Model, &r.Lines, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("读取台本记录失败: %w", err)
		}
		recs = append(recs, r)
	}
	return recs, rows.Err()
}

// Close 关闭数据库连接。
func (db *DB) Close() error {
	if db.DB != nil {
		return db.DB.Close()
	}
	return nil
}
