package world

import (
	"sort"
	"sync"

	"github.com/annel0/voxel-surface/internal/vec"
	"github.com/annel0/voxel-surface/internal/world/block"
)

// Source доступ на чтение к снимкам чанков
type Source interface {
	Chunk(coord vec.Vec3) (*Chunk, bool)
}

// Store хранилище загруженных чанков в памяти.
// Чанки неизменяемы: SetBlock заменяет чанк копией.
type Store struct {
	mu        sync.RWMutex
	chunkSize int
	chunks    map[vec.Vec3]*Chunk
}

// NewStore создаёт пустое хранилище
func NewStore(chunkSize int) *Store {
	return &Store{
		chunkSize: chunkSize,
		chunks:    make(map[vec.Vec3]*Chunk),
	}
}

// ChunkSize размер кубического чанка
func (s *Store) ChunkSize() int { return s.chunkSize }

// Chunk возвращает снимок чанка
func (s *Store) Chunk(coord vec.Vec3) (*Chunk, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.chunks[coord]
	return c, ok
}

// Put публикует чанк. Вызывающий не должен больше менять переданный чанк.
func (s *Store) Put(c *Chunk) {
	s.mu.Lock()
	s.chunks[c.Coord] = c
	s.mu.Unlock()
}

// Remove выгружает чанк
func (s *Store) Remove(coord vec.Vec3) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.chunks[coord]
	delete(s.chunks, coord)
	return ok
}

// Coords отсортированный список загруженных чанков
func (s *Store) Coords() []vec.Vec3 {
	s.mu.RLock()
	out := make([]vec.Vec3, 0, len(s.chunks))
	for c := range s.chunks {
		out = append(out, c)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Less(out[j]) })
	return out
}

// Len число загруженных чанков
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.chunks)
}

// BlockAt блок по мировым координатам; незагруженные чанки дают воздух
func (s *Store) BlockAt(pos vec.Vec3) block.Block {
	c, ok := s.Chunk(pos.ToChunkCoords(s.chunkSize))
	if !ok {
		return block.Air
	}
	l := pos.LocalInChunk(s.chunkSize)
	return c.Get(l.X, l.Y, l.Z)
}

// SetBlock меняет блок по мировым координатам копированием чанка.
// Возвращает координату изменённого чанка и false, если чанк не загружен или блок не изменился.
func (s *Store) SetBlock(pos vec.Vec3, b block.Block) (vec.Vec3, bool) {
	coord := pos.ToChunkCoords(s.chunkSize)
	l := pos.LocalInChunk(s.chunkSize)

	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.chunks[coord]
	if !ok {
		return coord, false
	}
	if c.Get(l.X, l.Y, l.Z) == b {
		return coord, false
	}
	next := c.Clone()
	next.Set(l.X, l.Y, l.Z, b)
	s.chunks[coord] = next
	return coord, true
}

// AffectedChunks чанки, чья сборка зависит от блока pos: сам чанк и
// соседи, для которых блок лежит на общей границе.
func AffectedChunks(pos vec.Vec3, chunkSize int) []vec.Vec3 {
	coord := pos.ToChunkCoords(chunkSize)
	l := pos.LocalInChunk(chunkSize)
	out := []vec.Vec3{coord}
	for _, f := range block.Faces {
		d := f.Delta()
		edge := (d.X > 0 && l.X == chunkSize-1) || (d.X < 0 && l.X == 0) ||
			(d.Y > 0 && l.Y == chunkSize-1) || (d.Y < 0 && l.Y == 0) ||
			(d.Z > 0 && l.Z == chunkSize-1) || (d.Z < 0 && l.Z == 0)
		if edge {
			out = append(out, coord.Add(d))
		}
	}
	return out
}
