package micro

import (
	"github.com/annel0/voxel-surface/internal/world"
	"github.com/annel0/voxel-surface/internal/world/block"
)

// Builder разворачивает сетку блоков в микро-поле занятости
type Builder struct {
	reg *block.Registry
}

// NewBuilder создаёт построитель для реестра
func NewBuilder(reg *block.Registry) *Builder {
	return &Builder{reg: reg}
}

// Build строит поле занятости чанка (без виртуальных слоёв)
func (b *Builder) Build(c *world.Chunk) *Occupancy {
	o := NewOccupancy(c.SX, c.SY, c.SZ)
	b.BuildInto(o, c)
	return o
}

// BuildInto строит поле в переданный буфер
func (b *Builder) BuildInto(o *Occupancy, c *world.Chunk) {
	o.Reset(c.SX, c.SY, c.SZ)
	for y := 0; y < c.SY; y++ {
		for z := 0; z < c.SZ; z++ {
			for x := 0; x < c.SX; x++ {
				blk := c.Get(x, y, z)
				if blk.ID == block.AirBlockID {
					continue
				}
				t := b.reg.Lookup(blk.ID)
				switch {
				case t.Shape == block.ShapeCube:
					b.fill(o, x, y, z, 0xFF, t)
				case t.Shape.IsMicro():
					b.fill(o, x, y, z, t.Occ8(blk.State), t)
				case t.Shape == block.ShapeWater:
					b.mark(o.Water, o, x, y, z)
				case t.Shape.IsThin():
					b.mark(o.Thin, o, x, y, z)
				}
			}
		}
	}
}

func (b *Builder) fill(o *Occupancy, x, y, z int, occ uint8, t *block.Type) {
	for my := 0; my < S; my++ {
		for mz := 0; mz < S; mz++ {
			for mx := 0; mx < S; mx++ {
				if block.OccBit(occ, mx, my, mz) {
					o.setSolidCell(o.Index(x*S+mx, y*S+my, z*S+mz), t)
				}
			}
		}
	}
}

func (b *Builder) mark(set Bitset, o *Occupancy, x, y, z int) {
	for my := 0; my < S; my++ {
		for mz := 0; mz < S; mz++ {
			for mx := 0; mx < S; mx++ {
				set.Set(o.Index(x*S+mx, y*S+my, z*S+mz))
			}
		}
	}
}

// ExportPlane строит плоскость занятости положительной грани чанка
// (последний микро-слой по оси) для публикации соседям.
func ExportPlane(o *Occupancy, c *world.Chunk, reg *block.Registry, face block.Face) *Plane {
	axis := face.Axis()
	w, h := o.PlaneDims(axis)
	p := NewPlane(axis, w, h)

	layer := 0
	if face.IsPositive() {
		switch axis {
		case block.AxisX:
			layer = o.MX - 1
		case block.AxisY:
			layer = o.MY - 1
		default:
			layer = o.MZ - 1
		}
	}

	for v := 0; v < h; v++ {
		for u := 0; u < w; u++ {
			x, y, z := PlaneToCell(axis, layer, u, v)
			i := o.Index(x, y, z)
			k := v*w + u
			blk := c.Get(x/S, y/S, z/S)
			if o.Solid.Get(i) {
				p.Flags[k] |= FlagSolid
				p.Material[k] = reg.MaterialFor(blk, face)
			} else if o.Water.Get(i) {
				p.Flags[k] |= FlagWater
				p.Material[k] = reg.MaterialFor(blk, face)
			}
		}
	}
	return p
}
