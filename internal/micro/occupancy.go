package micro

import (
	"math/bits"

	"github.com/annel0/voxel-surface/internal/world/block"
)

// S число микро-ячеек на блок по каждой оси
const S = 2

// Channel канал освещения
type Channel uint8

const (
	Sky Channel = iota
	BlockLight
	Beacon
	NumChannels
)

func (c Channel) String() string {
	switch c {
	case Sky:
		return "sky"
	case BlockLight:
		return "block"
	case Beacon:
		return "beacon"
	default:
		return "unknown"
	}
}

// Channels все каналы
var Channels = [NumChannels]Channel{Sky, BlockLight, Beacon}

// SeamTier источник данных виртуального слоя
type SeamTier uint8

const (
	// TierMissing сосед не загружен, слой пуст
	TierMissing SeamTier = iota
	// TierSampled слой получен выборкой сетки соседа (консервативно)
	TierSampled
	// TierPlane слой скопирован из опубликованной плоскости соседа
	TierPlane
)

func (t SeamTier) String() string {
	switch t {
	case TierPlane:
		return "plane"
	case TierSampled:
		return "sampled"
	default:
		return "missing"
	}
}

// Флаги ячейки плоскости занятости
const (
	FlagSolid uint8 = 1 << 0
	FlagWater uint8 = 1 << 1
)

// Plane двумерный срез микро-ячеек одной грани. Для оси X: u=z, v=y;
// для Y: u=x, v=z; для Z: u=x, v=y. Индекс ячейки v*W+u.
type Plane struct {
	Axis     block.Axis
	W, H     int
	Flags    []uint8
	Material []block.MaterialID
	// SourceRev ревизия геометрии, из которой построена плоскость
	SourceRev uint64
}

// NewPlane создаёт пустую плоскость
func NewPlane(axis block.Axis, w, h int) *Plane {
	return &Plane{
		Axis:     axis,
		W:        w,
		H:        h,
		Flags:    make([]uint8, w*h),
		Material: make([]block.MaterialID, w*h),
	}
}

// Solid твёрдая ли ячейка (u,v)
func (p *Plane) Solid(u, v int) bool { return p.Flags[v*p.W+u]&FlagSolid != 0 }

// Water вода ли в ячейке (u,v)
func (p *Plane) Water(u, v int) bool { return p.Flags[v*p.W+u]&FlagWater != 0 }

// Equal совпадают ли данные плоскостей (без учёта SourceRev)
func (p *Plane) Equal(o *Plane) bool {
	if p == nil || o == nil {
		return p == o
	}
	if p.Axis != o.Axis || p.W != o.W || p.H != o.H {
		return false
	}
	for i := range p.Flags {
		if p.Flags[i] != o.Flags[i] || p.Material[i] != o.Material[i] {
			return false
		}
	}
	return true
}

// Clone копия плоскости
func (p *Plane) Clone() *Plane {
	cp := *p
	cp.Flags = append([]uint8(nil), p.Flags...)
	cp.Material = append([]block.MaterialID(nil), p.Material...)
	return &cp
}

// Occupancy поле занятости чанка в микро-разрешении с виртуальным
// слоем на гранях -X/-Y/-Z (микро-координата -1).
type Occupancy struct {
	SX, SY, SZ int
	MX, MY, MZ int

	Solid Bitset
	Water Bitset
	Thin  Bitset

	// opaque[c] твёрдые ячейки, непрозрачные для канала c
	opaque [NumChannels]Bitset

	// Seams виртуальные слои, индексируются осью
	Seams [3]*Plane
	Tiers [3]SeamTier
}

// NewOccupancy выделяет поле для чанка sx×sy×sz
func NewOccupancy(sx, sy, sz int) *Occupancy {
	o := &Occupancy{}
	o.Reset(sx, sy, sz)
	return o
}

// Reset переинициализирует поле, переиспользуя память
func (o *Occupancy) Reset(sx, sy, sz int) {
	o.SX, o.SY, o.SZ = sx, sy, sz
	o.MX, o.MY, o.MZ = sx*S, sy*S, sz*S
	n := o.MX * o.MY * o.MZ
	o.Solid = o.Solid.Resize(n)
	o.Water = o.Water.Resize(n)
	o.Thin = o.Thin.Resize(n)
	for c := range o.opaque {
		o.opaque[c] = o.opaque[c].Resize(n)
	}
	for a := 0; a < 3; a++ {
		w, h := o.PlaneDims(block.Axis(a))
		p := o.Seams[a]
		if p == nil || p.W != w || p.H != h {
			o.Seams[a] = NewPlane(block.Axis(a), w, h)
		} else {
			for i := range p.Flags {
				p.Flags[i] = 0
				p.Material[i] = 0
			}
			p.SourceRev = 0
		}
		o.Tiers[a] = TierMissing
	}
}

// Len число микро-ячеек
func (o *Occupancy) Len() int { return o.MX * o.MY * o.MZ }

// Index линейный индекс микро-ячейки
func (o *Occupancy) Index(x, y, z int) int {
	return (y*o.MZ+z)*o.MX + x
}

// Coords обратное преобразование индекса
func (o *Occupancy) Coords(i int) (x, y, z int) {
	x = i % o.MX
	i /= o.MX
	z = i % o.MZ
	y = i / o.MZ
	return
}

// InBounds внутри ли чанка микро-координаты
func (o *Occupancy) InBounds(x, y, z int) bool {
	return x >= 0 && y >= 0 && z >= 0 && x < o.MX && y < o.MY && z < o.MZ
}

// PlaneDims размеры плоскости, перпендикулярной оси
func (o *Occupancy) PlaneDims(axis block.Axis) (w, h int) {
	return PlaneDims(axis, o.MX, o.MY, o.MZ)
}

// PlaneDims размеры плоскости (u,v) для микро-размеров mx,my,mz
func PlaneDims(axis block.Axis, mx, my, mz int) (w, h int) {
	switch axis {
	case block.AxisX:
		return mz, my
	case block.AxisY:
		return mx, mz
	default:
		return mx, my
	}
}

// PlaneToCell переводит (слой, u, v) в микро-координаты
func PlaneToCell(axis block.Axis, layer, u, v int) (x, y, z int) {
	switch axis {
	case block.AxisX:
		return layer, v, u
	case block.AxisY:
		return u, layer, v
	default:
		return u, v, layer
	}
}

// CellToPlane переводит микро-координаты в (слой, u, v)
func CellToPlane(axis block.Axis, x, y, z int) (layer, u, v int) {
	switch axis {
	case block.AxisX:
		return x, z, y
	case block.AxisY:
		return y, x, z
	default:
		return z, x, y
	}
}

// CellSolid твёрдая ли микро-ячейка; координата -1 ровно по одной оси
// читает виртуальный слой соседа.
func (o *Occupancy) CellSolid(x, y, z int) bool {
	if o.InBounds(x, y, z) {
		return o.Solid.Get(o.Index(x, y, z))
	}
	p, u, v, ok := o.seamCell(x, y, z)
	return ok && p.Solid(u, v)
}

// CellWater вода ли в микро-ячейке (включая виртуальный слой)
func (o *Occupancy) CellWater(x, y, z int) bool {
	if o.InBounds(x, y, z) {
		return o.Water.Get(o.Index(x, y, z))
	}
	p, u, v, ok := o.seamCell(x, y, z)
	return ok && p.Water(u, v)
}

func (o *Occupancy) seamCell(x, y, z int) (*Plane, int, int, bool) {
	var axis block.Axis
	switch {
	case x == -1 && y >= 0 && z >= 0 && y < o.MY && z < o.MZ:
		axis = block.AxisX
	case y == -1 && x >= 0 && z >= 0 && x < o.MX && z < o.MZ:
		axis = block.AxisY
	case z == -1 && x >= 0 && y >= 0 && x < o.MX && y < o.MY:
		axis = block.AxisZ
	default:
		return nil, 0, 0, false
	}
	_, u, v := CellToPlane(axis, x, y, z)
	return o.Seams[axis], u, v, true
}

// Passable пропускает ли ячейка свет канала
func (o *Occupancy) Passable(ch Channel, i int) bool {
	return !o.opaque[ch].Get(i)
}

// FaceOpen открыта ли общая микро-грань между соседними ячейками a и b
// для канала ch. Грань закрыта, если хотя бы одна из ячеек непрозрачна.
// Непрозрачные ячейки канала всегда подмножество Solid (см. CheckOpacity),
// поэтому закрытая грань между твёрдой ячейкой и пустотой всегда совпадает
// с поверхностью по паритету. Прозрачные твёрдые блоки (стекло) дают
// поверхность, но свет пропускают.
func (o *Occupancy) FaceOpen(ch Channel, a, b int) bool {
	return !o.opaque[ch].Get(a) && !o.opaque[ch].Get(b)
}

// CheckOpacity ищет ячейку, непрозрачную для канала, но не твёрдую.
// Возвращает (канал, индекс) или (0, -1), если нарушений нет.
func (o *Occupancy) CheckOpacity() (Channel, int) {
	for _, ch := range Channels {
		for w, word := range o.opaque[ch] {
			if extra := word &^ o.Solid[w]; extra != 0 {
				return ch, w*64 + bits.TrailingZeros64(extra)
			}
		}
	}
	return 0, -1
}

// setSolidCell помечает микро-ячейку твёрдым блоком типа t
func (o *Occupancy) setSolidCell(i int, t *block.Type) {
	o.Solid.Set(i)
	if t.BlocksSkylight {
		o.opaque[Sky].Set(i)
	}
	if !t.PropagatesLight {
		o.opaque[BlockLight].Set(i)
		o.opaque[Beacon].Set(i)
	}
}

// Opaque набор непрозрачных для канала ячеек (только чтение)
func (o *Occupancy) Opaque(ch Channel) Bitset { return o.opaque[ch] }
