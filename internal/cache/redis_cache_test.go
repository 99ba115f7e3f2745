package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annel0/voxel-surface/internal/lighting"
	"github.com/annel0/voxel-surface/internal/mesher"
	"github.com/annel0/voxel-surface/internal/micro"
	"github.com/annel0/voxel-surface/internal/storage"
	"github.com/annel0/voxel-surface/internal/vec"
	"github.com/annel0/voxel-surface/internal/world"
	"github.com/annel0/voxel-surface/internal/world/block"
)

func testMesh(t *testing.T, coord vec.Vec3) (*world.Chunk, *mesher.ChunkMesh) {
	t.Helper()
	reg := block.DefaultRegistry()
	c := world.NewChunk(coord, 8)
	c.Fill(0, 0, 0, 8, 2, 8, block.Block{ID: block.StoneBlockID})
	occ := micro.NewBuilder(reg).Build(c)
	mesh, err := mesher.New(reg, lighting.DefaultConfig()).Mesh(mesher.Input{Chunk: c, Occupancy: occ})
	require.NoError(t, err)
	return c, mesh
}

// setupRedis пропускает тест без локального Redis
func setupRedis(t *testing.T, config *CacheConfig, cold ColdStorage) *RedisMeshStore {
	t.Helper()
	config.RedisURL = "localhost:6379"
	config.KeyPrefix = "voxel_test_" + t.Name()
	store, err := NewRedisMeshStore(config, cold)
	if err != nil {
		t.Skipf("Redis not available, skipping test: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestMeshKey(t *testing.T) {
	assert.Equal(t, "voxel:mesh:-1:2:3", meshKey("voxel", vec.Vec3{X: -1, Y: 2, Z: 3}))
}

func TestApplyDefaults(t *testing.T) {
	cfg := &CacheConfig{TTL: time.Minute}
	applyDefaults(cfg)
	assert.Equal(t, "voxel", cfg.KeyPrefix)
	assert.Equal(t, time.Minute, cfg.TTL)
	assert.Equal(t, 100, cfg.WriteBehindBatchSize)
	assert.Equal(t, 10, cfg.MaxConnections)
}

func TestRedisRoundTrip(t *testing.T) {
	store := setupRedis(t, &CacheConfig{}, nil)
	c, mesh := testMesh(t, vec.Vec3{X: 3})

	require.NoError(t, store.SaveMesh(c.Coord, c.Fingerprint(), mesh))
	got, err := store.LoadMesh(c.Coord, c.Fingerprint())
	require.NoError(t, err)
	assert.Equal(t, mesh.QuadCount(), got.QuadCount())

	_, err = store.LoadMesh(c.Coord, c.Fingerprint()+1)
	assert.ErrorIs(t, err, storage.ErrNotFound)
	assert.ErrorIs(t, err, ErrCacheMiss)

	require.NoError(t, store.DeleteMesh(c.Coord))
	_, err = store.LoadMesh(c.Coord, c.Fingerprint())
	assert.ErrorIs(t, err, storage.ErrNotFound)

	m := store.GetMetrics()
	assert.EqualValues(t, 3, m.TotalRequests)
	assert.EqualValues(t, 1, m.CacheHits)
}

func TestReadThroughAndWriteBehind(t *testing.T) {
	cold, err := storage.NewWorldStorage(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { cold.Close() })

	c, mesh := testMesh(t, vec.Vec3{Z: -4})
	require.NoError(t, cold.SaveMesh(c.Coord, c.Fingerprint(), mesh))

	store := setupRedis(t, &CacheConfig{
		WriteBehindEnabled:  true,
		WriteBehindInterval: 10 * time.Millisecond,
	}, cold)
	require.NoError(t, store.client.Del(context.Background(), meshKey(store.config.KeyPrefix, c.Coord)).Err())

	// Промах в Redis читается из Badger
	got, err := store.LoadMesh(c.Coord, c.Fingerprint())
	require.NoError(t, err)
	assert.Equal(t, mesh.QuadCount(), got.QuadCount())
	assert.EqualValues(t, 1, store.GetMetrics().ColdHits)

	// Write-Behind доносит новый меш до Badger
	c2, mesh2 := testMesh(t, vec.Vec3{Z: 5})
	require.NoError(t, store.SaveMesh(c2.Coord, c2.Fingerprint(), mesh2))
	require.Eventually(t, func() bool {
		_, err := cold.LoadMesh(c2.Coord, c2.Fingerprint())
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)
}
