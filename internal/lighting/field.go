package lighting

import (
	"github.com/annel0/voxel-surface/internal/micro"
	"github.com/annel0/voxel-surface/internal/world/block"
)

// Config параметры модели освещения
type Config struct {
	MaxLight uint8
	// Attenuation затухание за один микро-шаг по каналам
	Attenuation [micro.NumChannels]uint8
	// BeaconUp затухание канала маяка при шаге строго вверх
	BeaconUp uint8
	// Bins число уровней квантования яркости в ключе мешера
	Bins int
}

// DefaultConfig параметры по умолчанию
func DefaultConfig() Config {
	return Config{
		MaxLight:    255,
		Attenuation: [micro.NumChannels]uint8{16, 16, 16},
		BeaconUp:    1,
		Bins:        16,
	}
}

// Step затухание канала ch при шаге в направлении f
func (c Config) Step(ch micro.Channel, f block.Face) uint8 {
	if ch == micro.Beacon && f == block.PosY {
		return c.BeaconUp
	}
	return c.Attenuation[ch]
}

// Quantize приводит яркость к одному из Bins уровней в диапазоне 0..255
func (c Config) Quantize(v uint8) uint8 {
	bins := c.Bins
	if bins <= 1 {
		return 255
	}
	if bins >= 256 {
		return v
	}
	bin := int(v) * bins / 256
	return uint8(bin * 255 / (bins - 1))
}

// Field поле освещённости чанка в микро-разрешении по каналам
type Field struct {
	MX, MY, MZ int
	Values     [micro.NumChannels][]uint8
}

// NewField создаёт нулевое поле
func NewField(mx, my, mz int) *Field {
	f := &Field{MX: mx, MY: my, MZ: mz}
	n := mx * my * mz
	for c := range f.Values {
		f.Values[c] = make([]uint8, n)
	}
	return f
}

// Get значение канала в ячейке
func (f *Field) Get(ch micro.Channel, i int) uint8 { return f.Values[ch][i] }

// Max максимум по каналам
func (f *Field) Max(i int) uint8 {
	m := f.Values[0][i]
	for c := 1; c < len(f.Values); c++ {
		if v := f.Values[c][i]; v > m {
			m = v
		}
	}
	return m
}

// Clone копия поля
func (f *Field) Clone() *Field {
	cp := &Field{MX: f.MX, MY: f.MY, MZ: f.MZ}
	for c := range f.Values {
		cp.Values[c] = append([]uint8(nil), f.Values[c]...)
	}
	return cp
}

// Equal побайтовое сравнение полей
func (f *Field) Equal(o *Field) bool {
	if f.MX != o.MX || f.MY != o.MY || f.MZ != o.MZ {
		return false
	}
	for c := range f.Values {
		a, b := f.Values[c], o.Values[c]
		for i := range a {
			if a[i] != b[i] {
				return false
			}
		}
	}
	return true
}

func (f *Field) index(x, y, z int) int { return (y*f.MZ+z)*f.MX + x }

// Downsample максимум по каждому блоку 2×2×2 (для выборки в шейдере)
func (f *Field) Downsample() []uint8 {
	sx, sy, sz := f.MX/micro.S, f.MY/micro.S, f.MZ/micro.S
	out := make([]uint8, sx*sy*sz)
	for y := 0; y < f.MY; y++ {
		for z := 0; z < f.MZ; z++ {
			for x := 0; x < f.MX; x++ {
				v := f.Max(f.index(x, y, z))
				k := ((y/micro.S)*sz+z/micro.S)*sx + x/micro.S
				if v > out[k] {
					out[k] = v
				}
			}
		}
	}
	return out
}

// Plane граничный слой освещённости одной грани чанка.
// Раскладка (u,v) та же, что у micro.Plane.
type Plane struct {
	Axis   block.Axis
	W, H   int
	Values [micro.NumChannels][]uint8
}

// Equal совпадают ли значения плоскостей
func (p *Plane) Equal(o *Plane) bool {
	if p == nil || o == nil {
		return p == o
	}
	if p.Axis != o.Axis || p.W != o.W || p.H != o.H {
		return false
	}
	for c := range p.Values {
		for i := range p.Values[c] {
			if p.Values[c][i] != o.Values[c][i] {
				return false
			}
		}
	}
	return true
}

// Get значение канала в (u,v)
func (p *Plane) Get(ch micro.Channel, u, v int) uint8 { return p.Values[ch][v*p.W+u] }

// ExportPlane извлекает граничный слой поля на грани face
func (f *Field) ExportPlane(face block.Face) *Plane {
	axis := face.Axis()
	w, h := micro.PlaneDims(axis, f.MX, f.MY, f.MZ)
	p := &Plane{Axis: axis, W: w, H: h}
	for c := range p.Values {
		p.Values[c] = make([]uint8, w*h)
	}
	layer := 0
	if face.IsPositive() {
		layer = f.extent(axis) - 1
	}
	for v := 0; v < h; v++ {
		for u := 0; u < w; u++ {
			x, y, z := micro.PlaneToCell(axis, layer, u, v)
			i := f.index(x, y, z)
			for c := range p.Values {
				p.Values[c][v*w+u] = f.Values[c][i]
			}
		}
	}
	return p
}

// ExportPlanes граничные слои всех шести граней, индекс block.Face
func (f *Field) ExportPlanes() [6]*Plane {
	var out [6]*Plane
	for _, face := range block.Faces {
		out[face] = f.ExportPlane(face)
	}
	return out
}

func (f *Field) extent(axis block.Axis) int {
	switch axis {
	case block.AxisX:
		return f.MX
	case block.AxisY:
		return f.MY
	default:
		return f.MZ
	}
}
