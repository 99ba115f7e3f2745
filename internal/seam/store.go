package seam

import (
	"sort"
	"sync"

	"github.com/annel0/voxel-surface/internal/lighting"
	"github.com/annel0/voxel-surface/internal/micro"
	"github.com/annel0/voxel-surface/internal/vec"
	"github.com/annel0/voxel-surface/internal/world"
	"github.com/annel0/voxel-surface/internal/world/block"
)

// FaceBorder граничные данные одной грани чанка: плоскость занятости
// и плоскости освещённости по каналам.
type FaceBorder struct {
	Coord     vec.Vec3
	Face      block.Face
	Occupancy *micro.Plane
	Light     *lighting.Plane
	// Revision назначается хранилищем при публикации
	Revision uint64
}

// Equal совпадают ли данные границ (ревизии не сравниваются)
func (b *FaceBorder) Equal(o *FaceBorder) bool {
	if b == nil || o == nil {
		return b == o
	}
	return b.Occupancy.Equal(o.Occupancy) && b.Light.Equal(o.Light)
}

// Update уведомление об изменении грани
type Update struct {
	Coord    vec.Vec3   `json:"coord"`
	Face     block.Face `json:"face"`
	Revision uint64     `json:"revision"`
}

// Key адрес грани
type Key struct {
	Coord vec.Vec3
	Face  block.Face
}

// Store хранилище опубликованных границ. Ревизия грани растёт только при
// изменении данных и переживает выгрузку чанка.
type Store struct {
	mu      sync.RWMutex
	borders map[Key]*FaceBorder
	revs    map[Key]uint64
}

// NewStore создаёт пустое хранилище
func NewStore() *Store {
	return &Store{
		borders: make(map[Key]*FaceBorder),
		revs:    make(map[Key]uint64),
	}
}

// Publish сохраняет границу. Ревизия увеличивается, только если данные
// изменились; иначе обновляется лишь SourceRev плоскости занятости.
func (s *Store) Publish(b FaceBorder) (changed bool, rev uint64) {
	k := Key{Coord: b.Coord, Face: b.Face}
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.borders[k]
	if ok && cur.Equal(&b) {
		if b.Occupancy != nil && cur.Occupancy != nil && b.Occupancy.SourceRev > cur.Occupancy.SourceRev {
			occ := cur.Occupancy.Clone()
			occ.SourceRev = b.Occupancy.SourceRev
			upd := *cur
			upd.Occupancy = occ
			s.borders[k] = &upd
		}
		return false, cur.Revision
	}

	rev = s.revs[k] + 1
	s.revs[k] = rev
	b.Revision = rev
	s.borders[k] = &b
	return true, rev
}

// PublishAll публикует шесть граней чанка и возвращает маску изменённых
// граней и уведомления по ним
func (s *Store) PublishAll(borders [6]FaceBorder) (mask uint8, updates []Update) {
	for _, f := range block.Faces {
		b := borders[f]
		b.Face = f
		changed, rev := s.Publish(b)
		if changed {
			mask |= 1 << f
			updates = append(updates, Update{Coord: b.Coord, Face: f, Revision: rev})
		}
	}
	return mask, updates
}

// Get опубликованная граница
func (s *Store) Get(coord vec.Vec3, f block.Face) (*FaceBorder, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.borders[Key{Coord: coord, Face: f}]
	return b, ok
}

// Revision текущая ревизия грани (0, если ещё не публиковалась)
func (s *Store) Revision(coord vec.Vec3, f block.Face) uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.revs[Key{Coord: coord, Face: f}]
}

// NeighborBorders обращённые к чанку границы соседей по индексу нашей грани:
// для грани f это грань f.Opposite() соседа coord+f.Delta()
func (s *Store) NeighborBorders(coord vec.Vec3) [6]*FaceBorder {
	var out [6]*FaceBorder
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, f := range block.Faces {
		out[f] = s.borders[Key{Coord: world.NeighborCoord(coord, f), Face: f.Opposite()}]
	}
	return out
}

// NeighborRevisions ревизии обращённых к чанку границ соседей
func (s *Store) NeighborRevisions(coord vec.Vec3) [6]uint64 {
	var out [6]uint64
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, f := range block.Faces {
		out[f] = s.revs[Key{Coord: world.NeighborCoord(coord, f), Face: f.Opposite()}]
	}
	return out
}

// Remove удаляет границы выгружаемого чанка. Счётчики ревизий сохраняются,
// поэтому повторная загрузка продолжает их монотонно.
func (s *Store) Remove(coord vec.Vec3) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, f := range block.Faces {
		k := Key{Coord: coord, Face: f}
		if _, ok := s.borders[k]; ok {
			delete(s.borders, k)
			n++
		}
	}
	return n
}

// Borders все границы чанка, по индексу грани
func (s *Store) Borders(coord vec.Vec3) [6]*FaceBorder {
	var out [6]*FaceBorder
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, f := range block.Faces {
		out[f] = s.borders[Key{Coord: coord, Face: f}]
	}
	return out
}

// Coords чанки, у которых есть опубликованные границы
func (s *Store) Coords() []vec.Vec3 {
	s.mu.RLock()
	seen := make(map[vec.Vec3]struct{})
	for k := range s.borders {
		seen[k.Coord] = struct{}{}
	}
	s.mu.RUnlock()
	out := make([]vec.Vec3, 0, len(seen))
	for c := range seen {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Less(out[j]) })
	return out
}

// Len число опубликованных граней
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.borders)
}
