// Package cache implements a content-addressed response cache: a
// single-file embedded key-value store, keyed by a SHA-256 hash over
// the exact serialized (messages, model) pair sent to the backend, so
// retries and reruns of identical requests are free.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/jbellis/llmap/internal/metrics"
)

// Mode governs which operations the Cache permits.
type Mode string

const (
	ModeNone      Mode = "none"
	ModeRead      Mode = "read"
	ModeWrite     Mode = "write"
	ModeReadWrite Mode = "read/write"
)

// ParseMode validates a mode string from the LLMAP_CACHE environment
// variable.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeNone, ModeRead, ModeWrite, ModeReadWrite:
		return Mode(s), nil
	default:
		return "", fmt.Errorf("LLMAP_CACHE must be one of: none, read, write, read/write (got %q)", s)
	}
}

func (m Mode) canRead() bool  { return m == ModeRead || m == ModeReadWrite }
func (m Mode) canWrite() bool { return m == ModeWrite || m == ModeReadWrite }

// Row is the single table backing the cache: one row per cache key.
type Row struct {
	CacheKey  string `gorm:"column:cache_key;primaryKey"`
	Answer    string `gorm:"column:answer"`
	CreatedAt time.Time
}

func (Row) TableName() string { return "responses" }

// Entry is what callers get back from a cache hit.
type Entry struct {
	Answer    string
	CreatedAt time.Time
}

// Cache is the get/set/delete contract every cache backend implements.
// Implementations must be safe for concurrent use by many worker
// goroutines.
type Cache interface {
	Get(key string) (*Entry, bool, error)
	Set(key, answer string) error
	Delete(key string) error
	Mode() Mode
}

// sqliteCache is the embedded single-file store. It wraps a *gorm.DB
// opened through gorm.io/driver/sqlite, with a bounded connection pool.
type sqliteCache struct {
	db      *gorm.DB
	mode    Mode
	metrics *metrics.Collector
}

// DefaultDir returns the per-user cache directory llmap uses, honoring
// XDG_CACHE_HOME when set.
func DefaultDir() (string, error) {
	if xdg := os.Getenv("XDG_CACHE_HOME"); xdg != "" {
		return filepath.Join(xdg, "llmap"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, ".cache", "llmap"), nil
}

// Open creates (if needed) and opens the on-disk cache at dir/cache.db.
// When mode is ModeNone, Open still returns a working Cache whose Get
// always misses and whose Set/Delete are no-ops, so callers never need
// to special-case "no cache" at the call site. mcol may be nil; every
// Collector method tolerates a nil receiver.
func Open(dir string, mode Mode, logger *zap.Logger, mcol *metrics.Collector) (Cache, error) {
	if mode == ModeNone {
		return &noopCache{}, nil
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	dbPath := filepath.Join(dir, "cache.db")

	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open cache db %s: %w", dbPath, err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("unwrap sql.DB: %w", err)
	}
	// A handful of connections is plenty for a single-file embedded store;
	// sqlite serializes writers regardless.
	sqlDB.SetMaxOpenConns(10)

	if err := db.AutoMigrate(&Row{}); err != nil {
		return nil, fmt.Errorf("migrate cache schema: %w", err)
	}

	logger.Debug("cache opened", zap.String("path", dbPath), zap.String("mode", string(mode)))
	return &sqliteCache{db: db, mode: mode, metrics: mcol}, nil
}

func (c *sqliteCache) Mode() Mode { return c.mode }

func (c *sqliteCache) Get(key string) (*Entry, bool, error) {
	if !c.mode.canRead() {
		return nil, false, nil
	}
	var row Row
	err := c.db.Where("cache_key = ?", key).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		c.metrics.ObserveCacheMiss()
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("cache get: %w", err)
	}
	c.metrics.ObserveCacheHit()
	return &Entry{Answer: row.Answer, CreatedAt: row.CreatedAt}, true, nil
}

func (c *sqliteCache) Set(key, answer string) error {
	if !c.mode.canWrite() {
		return nil
	}
	row := Row{CacheKey: key, Answer: answer, CreatedAt: time.Now()}
	// Upsert: last writer wins.
	err := c.db.Save(&row).Error
	if err != nil {
		return fmt.Errorf("cache set: %w", err)
	}
	return nil
}

func (c *sqliteCache) Delete(key string) error {
	if err := c.db.Delete(&Row{}, "cache_key = ?", key).Error; err != nil {
		return fmt.Errorf("cache delete: %w", err)
	}
	return nil
}

// noopCache implements Mode() == none: every Get misses, every Set and
// Delete succeeds trivially.
type noopCache struct{}

func (noopCache) Mode() Mode                        { return ModeNone }
func (noopCache) Get(string) (*Entry, bool, error)  { return nil, false, nil }
func (noopCache) Set(string, string) error          { return nil }
func (noopCache) Delete(string) error               { return nil }

// Key computes the deterministic SHA-256 cache key for a (messages,
// model) pair. Any change to message content or ordering changes the
// key, which is what makes the cache safe to share across reruns of
// the same question.
func Key(messagesJSON []byte, model string) string {
	h := sha256.New()
	h.Write(messagesJSON)
	h.Write([]byte{0})
	h.Write([]byte(model))
	return hex.EncodeToString(h.Sum(nil))
}

// MarshalForKey serializes messages the same way on every call so Key
// is stable across process runs (struct field order is fixed by Go's
// encoding/json, which always emits struct fields in declaration order).
func MarshalForKey(v any) ([]byte, error) {
	return json.Marshal(v)
}
