package world

import (
	"github.com/annel0/voxel-surface/internal/vec"
	"github.com/annel0/voxel-surface/internal/world/block"
)

// Neighborhood снимок чанка и его шести соседей по граням.
// Соседи индексируются block.Face; отсутствующий сосед равен nil.
type Neighborhood struct {
	Center    *Chunk
	Neighbors [6]*Chunk
}

// SnapshotNeighborhood собирает окрестность из источника
func SnapshotNeighborhood(src Source, center *Chunk) Neighborhood {
	n := Neighborhood{Center: center}
	for _, f := range block.Faces {
		if c, ok := src.Chunk(center.Coord.Add(f.Delta())); ok {
			n.Neighbors[f] = c
		}
	}
	return n
}

// Neighbor сосед по грани
func (n Neighborhood) Neighbor(f block.Face) (*Chunk, bool) {
	c := n.Neighbors[f]
	return c, c != nil
}

// Block блок в локальных координатах центрального чанка; координаты
// могут выходить за границу не более чем по одной оси на один слой.
// Блоки незагруженных соседей возвращаются как воздух, loaded=false.
func (n Neighborhood) Block(x, y, z int) (b block.Block, loaded bool) {
	c := n.Center
	if c.InBounds(x, y, z) {
		return c.Get(x, y, z), true
	}
	f, ok := outsideFace(c, x, y, z)
	if !ok {
		return block.Air, false
	}
	nb := n.Neighbors[f]
	if nb == nil {
		return block.Air, false
	}
	d := f.Delta()
	lx := x - d.X*c.SX
	ly := y - d.Y*c.SY
	lz := z - d.Z*c.SZ
	if !nb.InBounds(lx, ly, lz) {
		return block.Air, false
	}
	return nb.Get(lx, ly, lz), true
}

func outsideFace(c *Chunk, x, y, z int) (block.Face, bool) {
	out := 0
	var f block.Face
	if x < 0 {
		f, out = block.NegX, out+1
	} else if x >= c.SX {
		f, out = block.PosX, out+1
	}
	if y < 0 {
		f, out = block.NegY, out+1
	} else if y >= c.SY {
		f, out = block.PosY, out+1
	}
	if z < 0 {
		f, out = block.NegZ, out+1
	} else if z >= c.SZ {
		f, out = block.PosZ, out+1
	}
	return f, out == 1
}

// NeighborCoord координата соседа по грани
func NeighborCoord(coord vec.Vec3, f block.Face) vec.Vec3 {
	return coord.Add(f.Delta())
}
