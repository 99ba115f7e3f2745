package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annel0/voxel-surface/internal/lighting"
	"github.com/annel0/voxel-surface/internal/mesher"
	"github.com/annel0/voxel-surface/internal/micro"
	"github.com/annel0/voxel-surface/internal/vec"
	"github.com/annel0/voxel-surface/internal/world"
	"github.com/annel0/voxel-surface/internal/world/block"
)

func setupTestStorage(t *testing.T) *WorldStorage {
	t.Helper()
	ws, err := NewWorldStorage(t.TempDir())
	require.NoError(t, err, "не удалось создать хранилище")
	t.Cleanup(func() { ws.Close() })
	return ws
}

func testChunk(coord vec.Vec3) *world.Chunk {
	c := world.NewChunk(coord, 8)
	c.Fill(0, 0, 0, 8, 3, 8, block.Block{ID: block.StoneBlockID})
	c.Set(4, 3, 4, block.Block{ID: block.WaterBlockID})
	return c
}

func testMesh(t *testing.T, c *world.Chunk) *mesher.ChunkMesh {
	t.Helper()
	reg := block.DefaultRegistry()
	occ := micro.NewBuilder(reg).Build(c)
	mesh, err := mesher.New(reg, lighting.DefaultConfig()).Mesh(mesher.Input{Chunk: c, Occupancy: occ})
	require.NoError(t, err)
	return mesh
}

func TestSaveAndLoadChunk(t *testing.T) {
	ws := setupTestStorage(t)
	c := testChunk(vec.Vec3{X: -2, Y: 1, Z: 5})

	require.NoError(t, ws.SaveChunk(c))
	loaded, err := ws.LoadChunk(c.Coord)
	require.NoError(t, err)
	assert.Equal(t, c.Coord, loaded.Coord)
	assert.Equal(t, c.Fingerprint(), loaded.Fingerprint())

	_, err = ws.LoadChunk(vec.Vec3{X: 99})
	assert.ErrorIs(t, err, ErrNotFound)

	coords, err := ws.ChunkCoords()
	require.NoError(t, err)
	assert.Equal(t, []vec.Vec3{c.Coord}, coords)
}

func TestMeshRequiresMatchingFingerprint(t *testing.T) {
	ws := setupTestStorage(t)
	c := testChunk(vec.Vec3{X: 1})
	mesh := testMesh(t, c)

	require.NoError(t, ws.SaveMesh(c.Coord, c.Fingerprint(), mesh))

	got, err := ws.LoadMesh(c.Coord, c.Fingerprint())
	require.NoError(t, err)
	assert.Equal(t, mesh.QuadCount(), got.QuadCount())
	assert.Equal(t, mesh.Stats, got.Stats)
	assert.ElementsMatch(t, mesh.Quads(), got.Quads())

	_, err = ws.LoadMesh(c.Coord, c.Fingerprint()+1)
	assert.ErrorIs(t, err, ErrNotFound, "меш другого содержимого не отдаётся")

	require.NoError(t, ws.DeleteMesh(c.Coord))
	_, err = ws.LoadMesh(c.Coord, c.Fingerprint())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestClosedStorage(t *testing.T) {
	ws, err := NewWorldStorage(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, ws.Close())
	require.NoError(t, ws.Close())

	assert.ErrorIs(t, ws.SaveChunk(testChunk(vec.Vec3{})), ErrNotReady)
	_, err = ws.LoadMesh(vec.Vec3{}, 0)
	assert.ErrorIs(t, err, ErrNotReady)
}
