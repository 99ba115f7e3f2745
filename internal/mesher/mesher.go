package mesher

import (
	"fmt"
	"sort"
	"sync"

	"github.com/annel0/voxel-surface/internal/lighting"
	"github.com/annel0/voxel-surface/internal/micro"
	"github.com/annel0/voxel-surface/internal/vec"
	"github.com/annel0/voxel-surface/internal/world"
	"github.com/annel0/voxel-surface/internal/world/block"
)

// MicroScale размер микро-ячейки в блоках
const MicroScale float32 = 1.0 / micro.S

// Quad прямоугольник поверхности в локальных координатах чанка (блоки).
// Size задаёт протяжённость вдоль осей u и v плоскости грани.
type Quad struct {
	Origin   vec.Vec3Float
	Size     [2]float32
	Face     block.Face
	Material block.MaterialID
	Light    uint8
	Liquid   bool
}

// Batch квады одного материала
type Batch struct {
	Material block.MaterialID
	Liquid   bool
	Quads    []Quad
}

// MeshStats счётчики построения
type MeshStats struct {
	Solid int
	Water int
	Thin  int
	Keys  int
}

// ChunkMesh результат мешинга чанка
type ChunkMesh struct {
	Coord   vec.Vec3
	Batches []Batch
	Stats   MeshStats
	// LightField максимум яркости по каждому блоку, индекс (y*SZ+z)*SX+x.
	// Заполняется только при включённом экспорте поля.
	LightField []uint8 `json:",omitempty"`
}

// QuadCount общее число квадов
func (m *ChunkMesh) QuadCount() int {
	n := 0
	for _, b := range m.Batches {
		n += len(b.Quads)
	}
	return n
}

// Quads все квады подряд в порядке батчей
func (m *ChunkMesh) Quads() []Quad {
	out := make([]Quad, 0, m.QuadCount())
	for _, b := range m.Batches {
		out = append(out, b.Quads...)
	}
	return out
}

// Input данные одного задания мешинга
type Input struct {
	Chunk *world.Chunk
	// Neighborhood нужен тонким декорациям для связности через шов
	Neighborhood world.Neighborhood
	// Occupancy поле занятости с засеянными виртуальными слоями
	Occupancy *micro.Occupancy
	// Light выборка яркости граней, nil даёт нулевую яркость
	Light *lighting.Sampler
	// Verify сверять паритет с занятостью после накопления
	Verify bool
}

type scratch struct {
	acc   *Accumulator
	mask  []uint32
	rects []Rect
}

// Mesher строит геометрию поверхности чанка. Безопасен для
// одновременного использования из нескольких воркеров.
type Mesher struct {
	reg  *block.Registry
	cfg  lighting.Config
	pool sync.Pool
}

// New создаёт мешер
func New(reg *block.Registry, cfg lighting.Config) *Mesher {
	m := &Mesher{reg: reg, cfg: cfg}
	m.pool.New = func() interface{} {
		return &scratch{acc: NewAccumulator(reg, cfg)}
	}
	return m
}

// Mesh накапливает паритет, жадно сливает грани и добавляет тонкие декорации
func (m *Mesher) Mesh(in Input) (*ChunkMesh, error) {
	s := m.pool.Get().(*scratch)
	defer m.pool.Put(s)

	if err := s.acc.Accumulate(in.Chunk, in.Occupancy, in.Light); err != nil {
		return nil, fmt.Errorf("накопление граней чанка %s: %w", in.Chunk.Coord, err)
	}
	if in.Verify {
		if err := Verify(in.Occupancy, s.acc.Solid); err != nil {
			return nil, fmt.Errorf("чанк %s: %w", in.Chunk.Coord, err)
		}
	}

	var quads []Quad
	quads = m.emitGrids(s, s.acc.Solid, false, quads)
	solid := len(quads)
	quads = m.emitGrids(s, s.acc.Water, true, quads)
	water := len(quads) - solid

	nb := in.Neighborhood
	if nb.Center == nil {
		nb.Center = in.Chunk
	}
	quads = m.thinPass(in.Chunk, nb, in.Light, quads)

	mesh := &ChunkMesh{
		Coord:   in.Chunk.Coord,
		Batches: batchByMaterial(quads),
		Stats: MeshStats{
			Solid: solid,
			Water: water,
			Thin:  len(quads) - solid - water,
			Keys:  s.acc.keys.Len(),
		},
	}
	return mesh, nil
}

// emitGrids выдаёт плоскости 0..extent-1 каждой оси. Плоскость extent
// принадлежит соседу с положительной стороны и не выдаётся никогда.
func (m *Mesher) emitGrids(s *scratch, g *FaceGrids, water bool, out []Quad) []Quad {
	for ax := range g.Axes {
		fg := &g.Axes[ax]
		axis := fg.Axis
		n := fg.W * fg.H
		if cap(s.mask) < n {
			s.mask = make([]uint32, n)
		}
		mask := s.mask[:n]

		for p := 0; p < fg.Planes-1; p++ {
			filled := false
			for v := 0; v < fg.H; v++ {
				for u := 0; u < fg.W; u++ {
					i := fg.Index(p, u, v)
					k := v*fg.W + u
					mask[k] = 0
					if !fg.Parity.Get(i) {
						continue
					}
					positive := fg.Orient.Get(i)
					if water && !s.acc.waterVisible(axis, p, u, v, positive) {
						continue
					}
					code := uint32(fg.Key[i]) << 1
					if positive {
						code |= 1
					}
					mask[k] = code
					filled = true
				}
			}
			if !filled {
				continue
			}
			s.rects = greedyMerge(mask, fg.W, fg.H, s.rects[:0])
			for _, r := range s.rects {
				out = append(out, m.rectQuad(s.acc.keys, axis, p, r, water))
			}
		}
	}
	return out
}

func (m *Mesher) rectQuad(keys *KeyTable, axis block.Axis, plane int, r Rect, water bool) Quad {
	mat, light := keys.Entry(uint16(r.Code >> 1))
	x, y, z := micro.PlaneToCell(axis, plane, r.U, r.V)
	return Quad{
		Origin: vec.Vec3Float{
			X: float32(x) * MicroScale,
			Y: float32(y) * MicroScale,
			Z: float32(z) * MicroScale,
		},
		Size:     [2]float32{float32(r.W) * MicroScale, float32(r.H) * MicroScale},
		Face:     block.FaceFor(axis, r.Code&1 == 1),
		Material: mat,
		Light:    light,
		Liquid:   water,
	}
}

// batchByMaterial группирует квады: сначала непрозрачные, затем жидкость,
// внутри по возрастанию материала
func batchByMaterial(quads []Quad) []Batch {
	type bk struct {
		liquid bool
		mat    block.MaterialID
	}
	idx := make(map[bk]int)
	var batches []Batch
	for _, q := range quads {
		k := bk{q.Liquid, q.Material}
		i, ok := idx[k]
		if !ok {
			i = len(batches)
			idx[k] = i
			batches = append(batches, Batch{Material: q.Material, Liquid: q.Liquid})
		}
		batches[i].Quads = append(batches[i].Quads, q)
	}
	sort.SliceStable(batches, func(i, j int) bool {
		if batches[i].Liquid != batches[j].Liquid {
			return !batches[i].Liquid
		}
		return batches[i].Material < batches[j].Material
	})
	return batches
}
