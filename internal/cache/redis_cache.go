package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/annel0/voxel-surface/internal/logging"
	"github.com/annel0/voxel-surface/internal/mesher"
	"github.com/annel0/voxel-surface/internal/storage"
	"github.com/annel0/voxel-surface/internal/vec"
)

// RedisMeshStore горячий кеш мешей в Redis поверх постоянного хранилища.
// Меш хранится вместе с отпечатком содержимого чанка и выдаётся только
// при совпадении отпечатка.
//
// Особенности:
// - Read-Through: промах в Redis читается из Cold Storage и догружается в кеш
// - Write-Behind: запись в Cold Storage пакетами с настраиваемым интервалом
// - Close дописывает очередь Write-Behind
type RedisMeshStore struct {
	client      *redis.Client
	config      *CacheConfig
	coldStorage ColdStorage
	log         *logging.Logger

	// Write-Behind
	writeBehindQueue chan *writeItem
	writeBehindStop  chan struct{}
	writeBehindWg    sync.WaitGroup
	closeOnce        sync.Once

	metrics CacheMetrics
}

// writeItem представляет элемент в очереди Write-Behind.
type writeItem struct {
	Coord       vec.Vec3
	Fingerprint uint64
	Mesh        *mesher.ChunkMesh
}

// cachedMesh значение ключа в Redis
type cachedMesh struct {
	Fingerprint uint64            `json:"fingerprint"`
	Mesh        *mesher.ChunkMesh `json:"mesh"`
}

// NewRedisMeshStore подключается к Redis. coldStorage может быть nil.
func NewRedisMeshStore(config *CacheConfig, coldStorage ColdStorage) (*RedisMeshStore, error) {
	applyDefaults(config)

	rdb := redis.NewClient(&redis.Options{
		Addr:         config.RedisURL,
		Password:     config.RedisPassword,
		DB:           config.RedisDB,
		PoolSize:     config.MaxConnections,
		PoolTimeout:  config.PoolTimeout,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	})

	// Проверяем соединение
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	c := &RedisMeshStore{
		client:      rdb,
		config:      config,
		coldStorage: coldStorage,
		log:         logging.GetStorageLogger(),
	}

	if config.WriteBehindEnabled && coldStorage != nil {
		c.writeBehindQueue = make(chan *writeItem, config.WriteBehindBatchSize*2)
		c.writeBehindStop = make(chan struct{})
		c.startWriteBehind()
	}

	c.log.Info("🧠 Redis кеш мешей: %s (Write-Behind: %v)", config.RedisURL, config.WriteBehindEnabled)
	return c, nil
}

func applyDefaults(config *CacheConfig) {
	if config.KeyPrefix == "" {
		config.KeyPrefix = "voxel"
	}
	if config.TTL == 0 {
		config.TTL = time.Hour
	}
	if config.WriteBehindInterval == 0 {
		config.WriteBehindInterval = 5 * time.Second
	}
	if config.WriteBehindBatchSize == 0 {
		config.WriteBehindBatchSize = 100
	}
	if config.MaxConnections == 0 {
		config.MaxConnections = 10
	}
	if config.PoolTimeout == 0 {
		config.PoolTimeout = 30 * time.Second
	}
}

func meshKey(prefix string, c vec.Vec3) string {
	return fmt.Sprintf("%s:mesh:%d:%d:%d", prefix, c.X, c.Y, c.Z)
}

// SaveMesh пишет меш в Redis; в Cold Storage синхронно или через Write-Behind
func (r *RedisMeshStore) SaveMesh(coord vec.Vec3, fingerprint uint64, mesh *mesher.ChunkMesh) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := r.set(ctx, coord, fingerprint, mesh); err != nil {
		return err
	}
	if r.coldStorage == nil {
		return nil
	}
	if r.writeBehindQueue == nil {
		return r.coldStorage.SaveMesh(coord, fingerprint, mesh)
	}

	item := &writeItem{Coord: coord, Fingerprint: fingerprint, Mesh: mesh}
	select {
	case r.writeBehindQueue <- item:
		atomic.AddInt64(&r.metrics.PendingWrites, 1)
		return nil
	default:
		// Очередь полна, пишем синхронно
		r.log.Warn("⚠️ Очередь Write-Behind полна, синхронная запись %s", coord)
		return r.coldStorage.SaveMesh(coord, fingerprint, mesh)
	}
}

func (r *RedisMeshStore) set(ctx context.Context, coord vec.Vec3, fingerprint uint64, mesh *mesher.ChunkMesh) error {
	data, err := json.Marshal(cachedMesh{Fingerprint: fingerprint, Mesh: mesh})
	if err != nil {
		return err
	}
	if err := r.client.Set(ctx, meshKey(r.config.KeyPrefix, coord), data, r.config.TTL).Err(); err != nil {
		return fmt.Errorf("redis set error: %w", err)
	}
	return nil
}

// LoadMesh ищет меш в Redis, затем в Cold Storage. Промах возвращает
// ошибку, совместимую с storage.ErrNotFound.
func (r *RedisMeshStore) LoadMesh(coord vec.Vec3, fingerprint uint64) (*mesher.ChunkMesh, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	atomic.AddInt64(&r.metrics.TotalRequests, 1)

	data, err := r.client.Get(ctx, meshKey(r.config.KeyPrefix, coord)).Bytes()
	switch {
	case err == nil:
		var cm cachedMesh
		if err := json.Unmarshal(data, &cm); err != nil {
			return nil, fmt.Errorf("разбор меша %s из Redis: %w", coord, err)
		}
		if cm.Fingerprint == fingerprint && cm.Mesh != nil {
			atomic.AddInt64(&r.metrics.CacheHits, 1)
			return cm.Mesh, nil
		}
	case !errors.Is(err, redis.Nil):
		return nil, fmt.Errorf("redis get error: %w", err)
	}
	atomic.AddInt64(&r.metrics.CacheMisses, 1)

	// Read-Through
	if r.coldStorage != nil {
		mesh, err := r.coldStorage.LoadMesh(coord, fingerprint)
		if err == nil {
			atomic.AddInt64(&r.metrics.ColdHits, 1)
			if err := r.set(ctx, coord, fingerprint, mesh); err != nil {
				r.log.Warn("⚠️ Не удалось догрузить меш %s в Redis: %v", coord, err)
			}
			return mesh, nil
		}
		if !errors.Is(err, storage.ErrNotFound) {
			return nil, err
		}
	}
	return nil, fmt.Errorf("%w: %w", ErrCacheMiss, storage.ErrNotFound)
}

// DeleteMesh удаляет меш из обоих уровней
func (r *RedisMeshStore) DeleteMesh(coord vec.Vec3) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.client.Del(ctx, meshKey(r.config.KeyPrefix, coord)).Err(); err != nil {
		return fmt.Errorf("redis delete error: %w", err)
	}
	if r.coldStorage != nil {
		return r.coldStorage.DeleteMesh(coord)
	}
	return nil
}

// GetMetrics снимок метрик
func (r *RedisMeshStore) GetMetrics() CacheMetrics {
	m := CacheMetrics{
		TotalRequests: atomic.LoadInt64(&r.metrics.TotalRequests),
		CacheHits:     atomic.LoadInt64(&r.metrics.CacheHits),
		CacheMisses:   atomic.LoadInt64(&r.metrics.CacheMisses),
		ColdHits:      atomic.LoadInt64(&r.metrics.ColdHits),
		PendingWrites: atomic.LoadInt64(&r.metrics.PendingWrites),
		FlushedWrites: atomic.LoadInt64(&r.metrics.FlushedWrites),
		FailedWrites:  atomic.LoadInt64(&r.metrics.FailedWrites),
	}
	if m.TotalRequests > 0 {
		m.HitRatio = float64(m.CacheHits) / float64(m.TotalRequests)
	}
	return m
}

// startWriteBehind запускает фоновую запись в Cold Storage
func (r *RedisMeshStore) startWriteBehind() {
	r.writeBehindWg.Add(1)
	go func() {
		defer r.writeBehindWg.Done()
		ticker := time.NewTicker(r.config.WriteBehindInterval)
		defer ticker.Stop()

		batch := make([]*writeItem, 0, r.config.WriteBehindBatchSize)
		for {
			select {
			case item := <-r.writeBehindQueue:
				batch = append(batch, item)
				if len(batch) >= r.config.WriteBehindBatchSize {
					batch = r.flush(batch)
				}
			case <-ticker.C:
				batch = r.flush(batch)
			case <-r.writeBehindStop:
				// Дописываем остаток очереди
				for {
					select {
					case item := <-r.writeBehindQueue:
						batch = append(batch, item)
					default:
						r.flush(batch)
						return
					}
				}
			}
		}
	}()
}

// flush пишет пакет; для одного чанка пишется только последний меш
func (r *RedisMeshStore) flush(batch []*writeItem) []*writeItem {
	if len(batch) == 0 {
		return batch
	}
	latest := make(map[vec.Vec3]*writeItem, len(batch))
	for _, item := range batch {
		latest[item.Coord] = item
	}
	for _, item := range latest {
		if err := r.coldStorage.SaveMesh(item.Coord, item.Fingerprint, item.Mesh); err != nil {
			atomic.AddInt64(&r.metrics.FailedWrites, 1)
			r.log.Error("❌ Write-Behind %s: %v", item.Coord, err)
			continue
		}
		atomic.AddInt64(&r.metrics.FlushedWrites, 1)
	}
	atomic.AddInt64(&r.metrics.PendingWrites, -int64(len(batch)))
	return batch[:0]
}

// Close дописывает Write-Behind и закрывает клиент Redis
func (r *RedisMeshStore) Close() error {
	var err error
	r.closeOnce.Do(func() {
		if r.writeBehindStop != nil {
			close(r.writeBehindStop)
			r.writeBehindWg.Wait()
		}
		err = r.client.Close()
	})
	return err
}
