package runtime

import (
	"sort"
	"sync"

	"github.com/annel0/voxel-surface/internal/mesher"
	"github.com/annel0/voxel-surface/internal/vec"
)

// MeshSink получатель готовых мешей (рендерер или кеш)
type MeshSink interface {
	ApplyMesh(coord vec.Vec3, mesh *mesher.ChunkMesh)
	DropMesh(coord vec.Vec3)
}

// MeshStore долговременное хранилище мешей
type MeshStore interface {
	SaveMesh(coord vec.Vec3, fingerprint uint64, mesh *mesher.ChunkMesh) error
	LoadMesh(coord vec.Vec3, fingerprint uint64) (*mesher.ChunkMesh, error)
	DeleteMesh(coord vec.Vec3) error
}

// MeshSummary краткое описание меша для отладочного API
type MeshSummary struct {
	Coord   vec.Vec3         `json:"coord"`
	Quads   int              `json:"quads"`
	Batches int              `json:"batches"`
	Stats   mesher.MeshStats `json:"stats"`
}

// MeshCache потокобезопасный MeshSink в памяти
type MeshCache struct {
	mu     sync.RWMutex
	meshes map[vec.Vec3]*mesher.ChunkMesh
}

// NewMeshCache создаёт пустой кеш
func NewMeshCache() *MeshCache {
	return &MeshCache{meshes: make(map[vec.Vec3]*mesher.ChunkMesh)}
}

func (c *MeshCache) ApplyMesh(coord vec.Vec3, mesh *mesher.ChunkMesh) {
	c.mu.Lock()
	c.meshes[coord] = mesh
	c.mu.Unlock()
}

func (c *MeshCache) DropMesh(coord vec.Vec3) {
	c.mu.Lock()
	delete(c.meshes, coord)
	c.mu.Unlock()
}

// Mesh текущий меш чанка
func (c *MeshCache) Mesh(coord vec.Vec3) (*mesher.ChunkMesh, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	m, ok := c.meshes[coord]
	return m, ok
}

// Len число мешей
func (c *MeshCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.meshes)
}

// Summaries сводка по всем мешам в порядке координат
func (c *MeshCache) Summaries() []MeshSummary {
	c.mu.RLock()
	out := make([]MeshSummary, 0, len(c.meshes))
	for coord, m := range c.meshes {
		out = append(out, MeshSummary{
			Coord:   coord,
			Quads:   m.QuadCount(),
			Batches: len(m.Batches),
			Stats:   m.Stats,
		})
	}
	c.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Coord.Less(out[j].Coord) })
	return out
}
