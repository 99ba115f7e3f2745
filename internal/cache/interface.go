package cache

import (
	"errors"
	"time"

	"github.com/annel0/voxel-surface/internal/mesher"
	"github.com/annel0/voxel-surface/internal/vec"
)

// ColdStorage постоянное хранилище мешей за горячим кешем.
// Реализуется storage.WorldStorage.
type ColdStorage interface {
	SaveMesh(coord vec.Vec3, fingerprint uint64, mesh *mesher.ChunkMesh) error
	LoadMesh(coord vec.Vec3, fingerprint uint64) (*mesher.ChunkMesh, error)
	DeleteMesh(coord vec.Vec3) error
}

// CacheMetrics содержит метрики производительности кеша.
type CacheMetrics struct {
	TotalRequests int64   `json:"total_requests"`
	CacheHits     int64   `json:"cache_hits"`
	CacheMisses   int64   `json:"cache_misses"`
	ColdHits      int64   `json:"cold_hits"`
	HitRatio      float64 `json:"hit_ratio"`

	// Write-Behind метрики
	PendingWrites int64 `json:"pending_writes"`
	FlushedWrites int64 `json:"flushed_writes"`
	FailedWrites  int64 `json:"failed_writes"`
}

// CacheConfig содержит конфигурацию для кеша.
type CacheConfig struct {
	RedisURL      string `yaml:"redis_url"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`
	// KeyPrefix префикс ключей, чтобы несколько миров делили один Redis
	KeyPrefix string `yaml:"key_prefix"`

	TTL time.Duration `yaml:"ttl"`

	// Write-Behind конфигурация
	WriteBehindEnabled   bool          `yaml:"write_behind_enabled"`
	WriteBehindInterval  time.Duration `yaml:"write_behind_interval"`
	WriteBehindBatchSize int           `yaml:"write_behind_batch_size"`

	MaxConnections int           `yaml:"max_connections"`
	PoolTimeout    time.Duration `yaml:"pool_timeout"`
}

// ErrCacheMiss меш отсутствует в кеше
var ErrCacheMiss = errors.New("cache miss")
