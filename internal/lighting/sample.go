package lighting

import (
	"github.com/annel0/voxel-surface/internal/micro"
	"github.com/annel0/voxel-surface/internal/world/block"
)

// Sampler отдаёт яркость микро-граней по полю чанка и плоскостям соседей
type Sampler struct {
	Field *Field
	// Neighbors плоскости освещённости соседей по индексу нашей грани
	Neighbors [6]*Plane
}

// cell максимум по каналам в ячейке; координата за границей читает плоскость соседа
func (s *Sampler) cell(x, y, z int) uint8 {
	f := s.Field
	if x >= 0 && y >= 0 && z >= 0 && x < f.MX && y < f.MY && z < f.MZ {
		return f.Max(f.index(x, y, z))
	}
	var face block.Face
	switch {
	case x < 0:
		face = block.NegX
	case x >= f.MX:
		face = block.PosX
	case y < 0:
		face = block.NegY
	case y >= f.MY:
		face = block.PosY
	case z < 0:
		face = block.NegZ
	default:
		face = block.PosZ
	}
	p := s.Neighbors[face]
	if p == nil {
		return 0
	}
	_, u, v := micro.CellToPlane(face.Axis(), x, y, z)
	if u < 0 || v < 0 || u >= p.W || v >= p.H {
		return 0
	}
	k := v*p.W + u
	m := p.Values[0][k]
	for c := 1; c < len(p.Values); c++ {
		if p.Values[c][k] > m {
			m = p.Values[c][k]
		}
	}
	return m
}

// FaceLight яркость микро-грани на плоскости plane оси axis в точке (u,v):
// максимум двух прилегающих ячеек по всем каналам.
func (s *Sampler) FaceLight(axis block.Axis, plane, u, v int) uint8 {
	x0, y0, z0 := micro.PlaneToCell(axis, plane-1, u, v)
	x1, y1, z1 := micro.PlaneToCell(axis, plane, u, v)
	a := s.cell(x0, y0, z0)
	b := s.cell(x1, y1, z1)
	if a > b {
		return a
	}
	return b
}

// CellLight максимум по каналам в микро-ячейке (для тонких декораций)
func (s *Sampler) CellLight(x, y, z int) uint8 {
	return s.cell(x, y, z)
}
