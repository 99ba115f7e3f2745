package mesher

import (
	"github.com/annel0/voxel-surface/internal/lighting"
	"github.com/annel0/voxel-surface/internal/micro"
	"github.com/annel0/voxel-surface/internal/world"
	"github.com/annel0/voxel-surface/internal/world/block"
)

var fullBox = []block.MicroBox{{0, 0, 0, micro.S, micro.S, micro.S}}

// Accumulator накапливает паритет граней чанка. Каждый бокс переключает
// шесть прямоугольников на своих граничных плоскостях; внутренние грани
// соседних боксов взаимно гасятся.
type Accumulator struct {
	reg   *block.Registry
	cfg   lighting.Config
	keys  *KeyTable
	occ   *micro.Occupancy
	light *lighting.Sampler

	Solid *FaceGrids
	Water *FaceGrids

	err error
}

// NewAccumulator создаёт аккумулятор с собственными сетками
func NewAccumulator(reg *block.Registry, cfg lighting.Config) *Accumulator {
	return &Accumulator{
		reg:   reg,
		cfg:   cfg,
		keys:  NewKeyTable(),
		Solid: &FaceGrids{},
		Water: &FaceGrids{},
	}
}

// Keys таблица ключей последнего накопления
func (a *Accumulator) Keys() *KeyTable { return a.keys }

// Accumulate строит сетки граней чанка. occ должен содержать засеянные
// виртуальные слои; light может быть nil (все грани с нулевой яркостью).
func (a *Accumulator) Accumulate(c *world.Chunk, occ *micro.Occupancy, light *lighting.Sampler) error {
	a.occ, a.light, a.err = occ, light, nil
	a.keys.Reset()
	a.Solid.Reset(occ.MX, occ.MY, occ.MZ)
	a.Water.Reset(occ.MX, occ.MY, occ.MZ)

	for y := 0; y < c.SY; y++ {
		for z := 0; z < c.SZ; z++ {
			for x := 0; x < c.SX; x++ {
				blk := c.Get(x, y, z)
				if blk.ID == block.AirBlockID {
					continue
				}
				t := a.reg.Lookup(blk.ID)
				switch {
				case t.Shape == block.ShapeCube:
					a.toggleBoxes(a.Solid, blk, x, y, z, fullBox)
				case t.Shape.IsMicro():
					a.toggleBoxes(a.Solid, blk, x, y, z, block.BoxesForOcc(t.Occ8(blk.State)))
				case t.Shape == block.ShapeWater:
					a.toggleBoxes(a.Water, blk, x, y, z, fullBox)
				}
			}
		}
	}
	a.toggleSeams()
	return a.err
}

func (a *Accumulator) toggleBoxes(g *FaceGrids, blk block.Block, bx, by, bz int, boxes []block.MicroBox) {
	ox, oy, oz := bx*micro.S, by*micro.S, bz*micro.S
	for _, b := range boxes {
		x0, y0, z0 := ox+int(b[0]), oy+int(b[1]), oz+int(b[2])
		x1, y1, z1 := ox+int(b[3]), oy+int(b[4]), oz+int(b[5])

		// X: u=z, v=y
		a.toggleRect(g, block.AxisX, x0, z0, z1, y0, y1, blk, block.NegX)
		a.toggleRect(g, block.AxisX, x1, z0, z1, y0, y1, blk, block.PosX)
		// Y: u=x, v=z
		a.toggleRect(g, block.AxisY, y0, x0, x1, z0, z1, blk, block.NegY)
		a.toggleRect(g, block.AxisY, y1, x0, x1, z0, z1, blk, block.PosY)
		// Z: u=x, v=y
		a.toggleRect(g, block.AxisZ, z0, x0, x1, y0, y1, blk, block.NegZ)
		a.toggleRect(g, block.AxisZ, z1, x0, x1, y0, y1, blk, block.PosZ)
	}
}

func (a *Accumulator) toggleRect(g *FaceGrids, axis block.Axis, plane, u0, u1, v0, v1 int, blk block.Block, face block.Face) {
	mat := a.reg.MaterialFor(blk, face)
	for v := v0; v < v1; v++ {
		for u := u0; u < u1; u++ {
			a.toggle(g, axis, plane, u, v, face.IsPositive(), mat)
		}
	}
}

// toggle переключает паритет; ключ ставится только при появлении грани
func (a *Accumulator) toggle(g *FaceGrids, axis block.Axis, plane, u, v int, positive bool, mat block.MaterialID) {
	fg := &g.Axes[axis]
	i := fg.Index(plane, u, v)
	if !fg.Parity.Toggle(i) {
		fg.Key[i] = 0
		return
	}
	var light uint8
	if a.light != nil {
		light = a.cfg.Quantize(a.light.FaceLight(axis, plane, u, v))
	}
	k, err := a.keys.Key(mat, light)
	if err != nil && a.err == nil {
		a.err = err
	}
	fg.Key[i] = k
	fg.Orient.Put(i, positive)
}

// toggleSeams переносит положительные грани виртуального слоя на плоскость 0
func (a *Accumulator) toggleSeams() {
	for ax := 0; ax < 3; ax++ {
		axis := block.Axis(ax)
		p := a.occ.Seams[ax]
		if p == nil || a.occ.Tiers[ax] == micro.TierMissing {
			continue
		}
		for v := 0; v < p.H; v++ {
			for u := 0; u < p.W; u++ {
				k := v*p.W + u
				switch {
				case p.Flags[k]&micro.FlagSolid != 0:
					a.toggle(a.Solid, axis, 0, u, v, true, p.Material[k])
				case p.Flags[k]&micro.FlagWater != 0:
					a.toggle(a.Water, axis, 0, u, v, true, p.Material[k])
				}
			}
		}
	}
}

// waterVisible водяная грань видна, только если с другой стороны нет
// ни твёрдой ячейки, ни воды
func (a *Accumulator) waterVisible(axis block.Axis, plane, u, v int, positive bool) bool {
	layer := plane
	if !positive {
		layer = plane - 1
	}
	x, y, z := micro.PlaneToCell(axis, layer, u, v)
	return !a.occ.CellSolid(x, y, z) && !a.occ.CellWater(x, y, z)
}
