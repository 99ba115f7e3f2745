package mesher

import (
	"github.com/annel0/voxel-surface/internal/lighting"
	"github.com/annel0/voxel-surface/internal/micro"
	"github.com/annel0/voxel-surface/internal/vec"
	"github.com/annel0/voxel-surface/internal/world"
	"github.com/annel0/voxel-surface/internal/world/block"
)

// thinBox бокс шаблона в шестнадцатых долях блока [x0,y0,z0,x1,y1,z1]
type thinBox [6]uint8

// Шаблоны тонких декораций. Рукава индексируются боковой гранью.
var (
	panePost = thinBox{7, 0, 7, 9, 16, 9}
	paneArms = map[block.Face][]thinBox{
		block.PosX: {{9, 0, 7, 16, 16, 9}},
		block.NegX: {{0, 0, 7, 7, 16, 9}},
		block.PosZ: {{7, 0, 9, 9, 16, 16}},
		block.NegZ: {{7, 0, 0, 9, 16, 7}},
	}

	fencePost = thinBox{6, 0, 6, 10, 16, 10}
	fenceArms = map[block.Face][]thinBox{
		block.PosX: {{10, 6, 7, 16, 9, 9}, {10, 12, 7, 16, 15, 9}},
		block.NegX: {{0, 6, 7, 6, 9, 9}, {0, 12, 7, 6, 15, 9}},
		block.PosZ: {{7, 6, 10, 9, 9, 16}, {7, 12, 10, 9, 15, 16}},
		block.NegZ: {{7, 6, 0, 9, 9, 6}, {7, 12, 0, 9, 15, 6}},
	}

	carpetBox = thinBox{0, 0, 0, 16, 1, 16}

	sideFaces = [4]block.Face{block.PosX, block.NegX, block.PosZ, block.NegZ}
)

// thinPass добавляет тонкие декорации. Они не участвуют в паритете:
// выдаются все шесть граней каждого бокса шаблона.
func (m *Mesher) thinPass(c *world.Chunk, nb world.Neighborhood, light *lighting.Sampler, out []Quad) []Quad {
	var boxes []thinBox
	for y := 0; y < c.SY; y++ {
		for z := 0; z < c.SZ; z++ {
			for x := 0; x < c.SX; x++ {
				blk := c.Get(x, y, z)
				t := m.reg.Lookup(blk.ID)
				if !t.Shape.IsThin() {
					continue
				}
				boxes = m.template(boxes[:0], t, nb, x, y, z)
				lvl := m.thinLight(light, x, y, z)
				for _, b := range boxes {
					out = m.boxQuads(out, blk, b, x, y, z, lvl)
				}
			}
		}
	}
	return out
}

func (m *Mesher) template(dst []thinBox, t *block.Type, nb world.Neighborhood, x, y, z int) []thinBox {
	switch t.Shape {
	case block.ShapeCarpet:
		return append(dst, carpetBox)
	case block.ShapePane:
		dst = append(dst, panePost)
		for _, f := range sideFaces {
			if m.connects(t.Shape, nb, x, y, z, f) {
				dst = append(dst, paneArms[f]...)
			}
		}
	case block.ShapeFence:
		dst = append(dst, fencePost)
		for _, f := range sideFaces {
			if m.connects(t.Shape, nb, x, y, z, f) {
				dst = append(dst, fenceArms[f]...)
			}
		}
	}
	return dst
}

// connects соединяется ли декорация с соседом: такая же форма или полный куб
func (m *Mesher) connects(shape block.Shape, nb world.Neighborhood, x, y, z int, f block.Face) bool {
	d := f.Delta()
	b, loaded := nb.Block(x+d.X, y+d.Y, z+d.Z)
	if !loaded {
		return false
	}
	s := m.reg.Shape(b)
	return s == shape || s == block.ShapeCube
}

// thinLight максимум яркости по микро-ячейкам блока
func (m *Mesher) thinLight(light *lighting.Sampler, x, y, z int) uint8 {
	if light == nil {
		return 0
	}
	var v uint8
	for my := 0; my < micro.S; my++ {
		for mz := 0; mz < micro.S; mz++ {
			for mx := 0; mx < micro.S; mx++ {
				if l := light.CellLight(x*micro.S+mx, y*micro.S+my, z*micro.S+mz); l > v {
					v = l
				}
			}
		}
	}
	return m.cfg.Quantize(v)
}

func (m *Mesher) boxQuads(out []Quad, blk block.Block, b thinBox, x, y, z int, light uint8) []Quad {
	const k = 1.0 / 16
	x0, y0, z0 := float32(x)+float32(b[0])*k, float32(y)+float32(b[1])*k, float32(z)+float32(b[2])*k
	x1, y1, z1 := float32(x)+float32(b[3])*k, float32(y)+float32(b[4])*k, float32(z)+float32(b[5])*k
	dx, dy, dz := x1-x0, y1-y0, z1-z0

	add := func(f block.Face, o vec.Vec3Float, su, sv float32) {
		out = append(out, Quad{
			Origin:   o,
			Size:     [2]float32{su, sv},
			Face:     f,
			Material: m.reg.MaterialFor(blk, f),
			Light:    light,
		})
	}
	// X: u=z, v=y; Y: u=x, v=z; Z: u=x, v=y
	add(block.NegX, vec.Vec3Float{X: x0, Y: y0, Z: z0}, dz, dy)
	add(block.PosX, vec.Vec3Float{X: x1, Y: y0, Z: z0}, dz, dy)
	add(block.NegY, vec.Vec3Float{X: x0, Y: y0, Z: z0}, dx, dz)
	add(block.PosY, vec.Vec3Float{X: x0, Y: y1, Z: z0}, dx, dz)
	add(block.NegZ, vec.Vec3Float{X: x0, Y: y0, Z: z0}, dx, dy)
	add(block.PosZ, vec.Vec3Float{X: x0, Y: y0, Z: z1}, dx, dy)
	return out
}
