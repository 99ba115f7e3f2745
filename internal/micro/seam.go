package micro

import (
	"github.com/annel0/voxel-surface/internal/world"
	"github.com/annel0/voxel-surface/internal/world/block"
)

// SeamInput данные соседа по одной отрицательной грани
type SeamInput struct {
	// Plane опубликованная плоскость положительной грани соседа (может быть nil)
	Plane *Plane
	// RequiredRev минимальная ревизия геометрии соседа, с которой плоскость пригодна
	RequiredRev uint64
}

// SeamSeeder заполняет виртуальные слои -X/-Y/-Z поля занятости
type SeamSeeder struct {
	reg *block.Registry
}

// NewSeamSeeder создаёт сеятель швов
func NewSeamSeeder(reg *block.Registry) *SeamSeeder {
	return &SeamSeeder{reg: reg}
}

// Seed заполняет виртуальные слои. inputs индексируются осью.
// Предпочитается точная плоскость соседа; иначе выборка сетки соседа,
// при которой микро-формы считаются полностью твёрдыми.
func (s *SeamSeeder) Seed(o *Occupancy, n world.Neighborhood, inputs [3]SeamInput) [3]SeamTier {
	for a := 0; a < 3; a++ {
		axis := block.Axis(a)
		face := block.FaceFor(axis, false)
		in := inputs[a]
		dst := o.Seams[a]

		if in.Plane != nil && in.Plane.SourceRev >= in.RequiredRev &&
			in.Plane.W == dst.W && in.Plane.H == dst.H {
			copy(dst.Flags, in.Plane.Flags)
			copy(dst.Material, in.Plane.Material)
			dst.SourceRev = in.Plane.SourceRev
			o.Tiers[a] = TierPlane
			continue
		}

		nb, ok := n.Neighbor(face)
		if !ok {
			o.Tiers[a] = TierMissing
			continue
		}
		s.sample(dst, nb, axis)
		o.Tiers[a] = TierSampled
	}
	return o.Tiers
}

// sample заполняет слой по последнему слою блоков соседа
func (s *SeamSeeder) sample(dst *Plane, nb *world.Chunk, axis block.Axis) {
	posFace := block.FaceFor(axis, true)
	for v := 0; v < dst.H; v++ {
		for u := 0; u < dst.W; u++ {
			k := v*dst.W + u
			dst.Flags[k] = 0
			dst.Material[k] = 0

			// Блок соседа на его положительной границе
			var bx, by, bz int
			switch axis {
			case block.AxisX:
				bx, by, bz = nb.SX-1, v/S, u/S
			case block.AxisY:
				bx, by, bz = u/S, nb.SY-1, v/S
			default:
				bx, by, bz = u/S, v/S, nb.SZ-1
			}
			blk := nb.Get(bx, by, bz)
			t := s.reg.Lookup(blk.ID)
			switch {
			case t.Solid():
				dst.Flags[k] = FlagSolid
				dst.Material[k] = s.reg.MaterialFor(blk, posFace)
			case t.Shape == block.ShapeWater:
				dst.Flags[k] = FlagWater
				dst.Material[k] = s.reg.MaterialFor(blk, posFace)
			}
		}
	}
}
