package lighting

import (
	"sort"

	"github.com/annel0/voxel-surface/internal/micro"
	"github.com/annel0/voxel-surface/internal/world"
	"github.com/annel0/voxel-surface/internal/world/block"
)

// Seed начальное значение ячейки
type Seed struct {
	Cell  int32
	Level uint8
}

// Sources набор источников по каналам, отсортированный по ячейке
type Sources struct {
	Seeds [micro.NumChannels][]Seed
}

// Count общее число источников
func (s *Sources) Count() int {
	n := 0
	for _, ss := range s.Seeds {
		n += len(ss)
	}
	return n
}

// Level уровень источника в ячейке (0 если нет)
func (s *Sources) Level(ch micro.Channel, cell int) uint8 {
	ss := s.Seeds[ch]
	i := sort.Search(len(ss), func(i int) bool { return int(ss[i].Cell) >= cell })
	if i < len(ss) && int(ss[i].Cell) == cell {
		return ss[i].Level
	}
	return 0
}

// Inputs данные для сбора источников
type Inputs struct {
	Chunk    *world.Chunk
	Registry *block.Registry
	// Neighbors граничные плоскости освещённости соседей по индексу нашей грани
	Neighbors [6]*Plane
	// SkyOpen над чанком нет загруженного соседа: колонки открыты небу
	SkyOpen bool
}

// Collector собирает источники света
type Collector struct {
	cfg Config
}

// NewCollector создаёт сборщик источников
func NewCollector(cfg Config) *Collector {
	return &Collector{cfg: cfg}
}

type seedSet map[int32]uint8

func (s seedSet) add(cell int, level uint8) {
	if level == 0 {
		return
	}
	if cur, ok := s[int32(cell)]; !ok || level > cur {
		s[int32(cell)] = level
	}
}

func (s seedSet) sorted() []Seed {
	out := make([]Seed, 0, len(s))
	for c, l := range s {
		out = append(out, Seed{Cell: c, Level: l})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Cell < out[j].Cell })
	return out
}

// Collect собирает небесные колонки, излучатели и затравки из швов
func (c *Collector) Collect(occ *micro.Occupancy, in Inputs) *Sources {
	var sets [micro.NumChannels]seedSet
	for ch := range sets {
		sets[ch] = make(seedSet)
	}

	c.collectSky(occ, in, sets[micro.Sky])
	c.collectEmitters(occ, in, sets)
	c.collectSeams(occ, in, sets)

	out := &Sources{}
	for ch := range sets {
		out.Seeds[ch] = sets[ch].sorted()
	}
	return out
}

func (c *Collector) collectSky(occ *micro.Occupancy, in Inputs, set seedSet) {
	top := in.Neighbors[block.PosY]
	step := c.cfg.Step(micro.Sky, block.NegY)
	for z := 0; z < occ.MZ; z++ {
		for x := 0; x < occ.MX; x++ {
			exposed := in.SkyOpen
			var above uint8
			if top != nil {
				above = top.Get(micro.Sky, x, z)
				exposed = above == c.cfg.MaxLight
			}
			if exposed {
				for y := occ.MY - 1; y >= 0; y-- {
					i := occ.Index(x, y, z)
					if !occ.Passable(micro.Sky, i) {
						break
					}
					set.add(i, c.cfg.MaxLight)
				}
				continue
			}
			if above > step {
				i := occ.Index(x, occ.MY-1, z)
				if occ.Passable(micro.Sky, i) {
					set.add(i, above-step)
				}
			}
		}
	}
}

func (c *Collector) collectEmitters(occ *micro.Occupancy, in Inputs, sets [micro.NumChannels]seedSet) {
	ch := in.Chunk
	for y := 0; y < ch.SY; y++ {
		for z := 0; z < ch.SZ; z++ {
			for x := 0; x < ch.SX; x++ {
				b := ch.Get(x, y, z)
				level, beacon := in.Registry.Emission(b)
				if level == 0 {
					continue
				}
				channel := micro.BlockLight
				if beacon {
					channel = micro.Beacon
				}
				c.seedEmitter(occ, x, y, z, channel, level, sets[channel])
			}
		}
	}
}

// seedEmitter: открытые ячейки самого блока и открытые ячейки,
// смежные с его закрытыми ячейками, получают уровень излучения.
func (c *Collector) seedEmitter(occ *micro.Occupancy, bx, by, bz int, ch micro.Channel, level uint8, set seedSet) {
	for my := 0; my < micro.S; my++ {
		for mz := 0; mz < micro.S; mz++ {
			for mx := 0; mx < micro.S; mx++ {
				x, y, z := bx*micro.S+mx, by*micro.S+my, bz*micro.S+mz
				i := occ.Index(x, y, z)
				if occ.Passable(ch, i) {
					set.add(i, level)
					continue
				}
				for _, f := range block.Faces {
					d := f.Delta()
					nx, ny, nz := x+d.X, y+d.Y, z+d.Z
					if !occ.InBounds(nx, ny, nz) {
						continue
					}
					j := occ.Index(nx, ny, nz)
					if occ.Passable(ch, j) {
						set.add(j, level)
					}
				}
			}
		}
	}
}

func (c *Collector) collectSeams(occ *micro.Occupancy, in Inputs, sets [micro.NumChannels]seedSet) {
	for _, f := range block.Faces {
		p := in.Neighbors[f]
		if p == nil {
			continue
		}
		axis := f.Axis()
		w, h := occ.PlaneDims(axis)
		if p.W != w || p.H != h {
			continue
		}
		layer := 0
		if f.IsPositive() {
			layer = extentOf(occ, axis) - 1
		}
		travel := f.Opposite()
		for _, ch := range micro.Channels {
			// Верхняя плоскость неба обработана колонками
			if ch == micro.Sky && f == block.PosY {
				continue
			}
			step := c.cfg.Step(ch, travel)
			for v := 0; v < h; v++ {
				for u := 0; u < w; u++ {
					val := p.Get(ch, u, v)
					if val <= step {
						continue
					}
					x, y, z := micro.PlaneToCell(axis, layer, u, v)
					i := occ.Index(x, y, z)
					if occ.Passable(ch, i) {
						sets[ch].add(i, val-step)
					}
				}
			}
		}
	}
}

func extentOf(occ *micro.Occupancy, axis block.Axis) int {
	switch axis {
	case block.AxisX:
		return occ.MX
	case block.AxisY:
		return occ.MY
	default:
		return occ.MZ
	}
}
