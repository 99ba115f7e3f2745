package lighting

import (
	"math/bits"

	"github.com/annel0/voxel-surface/internal/micro"
	"github.com/annel0/voxel-surface/internal/world/block"
)

// State результат расчёта освещения, пригодный для инкрементального обновления
type State struct {
	Field   *Field
	Sources *Sources
	// Opaque снимок непрозрачности по каналам на момент расчёта
	Opaque [micro.NumChannels]micro.Bitset
}

// Propagator заливка света по микро-сетке. Экземпляр не потокобезопасен:
// по одному на воркер или задание.
type Propagator struct {
	cfg Config
	q   bucketQueue
	dq  fifo

	// Stats счётчики последнего запуска
	Stats PropagationStats
}

// PropagationStats счётчики работы
type PropagationStats struct {
	Pops      int
	Stale     int
	Retracted int
	Frontier  int
}

// NewPropagator создаёт пропагатор
func NewPropagator(cfg Config) *Propagator {
	return &Propagator{cfg: cfg}
}

// Config параметры модели
func (p *Propagator) Config() Config { return p.cfg }

// Solve полный расчёт освещения от нуля
func (p *Propagator) Solve(occ *micro.Occupancy, src *Sources) *State {
	p.Stats = PropagationStats{}
	field := NewField(occ.MX, occ.MY, occ.MZ)
	for _, ch := range micro.Channels {
		p.q.reset()
		vals := field.Values[ch]
		for _, s := range src.Seeds[ch] {
			if s.Level > vals[s.Cell] {
				vals[s.Cell] = s.Level
				p.q.push(int(s.Cell), s.Level)
			}
		}
		p.flood(occ, ch, vals)
	}
	return newState(field, src, occ)
}

func newState(field *Field, src *Sources, occ *micro.Occupancy) *State {
	st := &State{Field: field, Sources: src}
	for _, ch := range micro.Channels {
		st.Opaque[ch] = append(micro.Bitset(nil), occ.Opaque(ch)...)
	}
	return st
}

// Update пересчитывает освещение после смены источников и/или занятости.
// Двухфазно: затемнение снимает свет, поддержанный только исчезнувшими
// путями, затем заливка из фронтира и всех оставшихся источников.
// prev не изменяется.
func (p *Propagator) Update(prev *State, occ *micro.Occupancy, src *Sources) *State {
	if prev == nil || prev.Field.MX != occ.MX || prev.Field.MY != occ.MY || prev.Field.MZ != occ.MZ {
		return p.Solve(occ, src)
	}
	p.Stats = PropagationStats{}
	field := prev.Field.Clone()

	var frontier []int32
	for _, ch := range micro.Channels {
		vals := field.Values[ch]
		p.dq = fifo{cells: p.dq.cells[:0], levels: p.dq.levels[:0]}
		frontier = frontier[:0]

		frontier = p.retractOpacity(occ, ch, prev.Opaque[ch], vals, frontier)
		p.retractSeeds(ch, prev.Sources, src, vals)
		frontier = p.decrease(occ, ch, vals, frontier)

		p.q.reset()
		for _, c := range frontier {
			if v := vals[c]; v > 0 {
				p.q.push(int(c), v)
			}
		}
		for _, s := range src.Seeds[ch] {
			if s.Level > vals[s.Cell] {
				vals[s.Cell] = s.Level
			}
			p.q.push(int(s.Cell), vals[s.Cell])
		}
		p.flood(occ, ch, vals)
	}
	return newState(field, src, occ)
}

// retractOpacity обрабатывает ячейки, сменившие прозрачность
func (p *Propagator) retractOpacity(occ *micro.Occupancy, ch micro.Channel, before micro.Bitset, vals []uint8, frontier []int32) []int32 {
	now := occ.Opaque(ch)
	if len(before) != len(now) {
		return frontier
	}
	for w := range now {
		diff := before[w] ^ now[w]
		for diff != 0 {
			bit := diff & -diff
			diff &^= bit
			i := w*64 + bits.TrailingZeros64(bit)
			if i >= len(vals) {
				continue
			}
			if now[w]&bit != 0 {
				// Ячейка закрылась: снимаем её свет
				if v := vals[i]; v > 0 {
					vals[i] = 0
					p.dq.push(i, v)
				}
				continue
			}
			// Ячейка открылась: соседи снова могут светить в неё
			p.forNeighbors(occ, i, func(j int, _ block.Face) {
				if vals[j] > 0 {
					frontier = append(frontier, int32(j))
				}
			})
		}
	}
	return frontier
}

// retractSeeds ставит в очередь затемнения исчезнувшие или ослабшие источники,
// которые действительно задавали значение своей ячейки.
func (p *Propagator) retractSeeds(ch micro.Channel, old, cur *Sources, vals []uint8) {
	if old == nil {
		return
	}
	for _, s := range old.Seeds[ch] {
		if cur.Level(ch, int(s.Cell)) >= s.Level {
			continue
		}
		if vals[s.Cell] == s.Level {
			vals[s.Cell] = 0
			p.dq.push(int(s.Cell), s.Level)
		}
	}
}

// decrease фаза затемнения. Сосед обнуляется, только если его значение
// в точности равно вкладу снятого пути; иные ненулевые соседи уходят во фронтир.
func (p *Propagator) decrease(occ *micro.Occupancy, ch micro.Channel, vals []uint8, frontier []int32) []int32 {
	for {
		a, va, ok := p.dq.pop()
		if !ok {
			return frontier
		}
		p.forNeighbors(occ, a, func(b int, dir block.Face) {
			vb := vals[b]
			if vb == 0 {
				return
			}
			step := p.cfg.Step(ch, dir)
			if va > step && vb == va-step {
				vals[b] = 0
				p.dq.push(b, vb)
				p.Stats.Retracted++
				return
			}
			frontier = append(frontier, int32(b))
			p.Stats.Frontier++
		})
	}
}

// flood фаза заливки по корзинной очереди
func (p *Propagator) flood(occ *micro.Occupancy, ch micro.Channel, vals []uint8) {
	for {
		a, level, ok := p.q.pop()
		if !ok {
			return
		}
		p.Stats.Pops++
		if vals[a] != level {
			p.Stats.Stale++
			continue
		}
		p.forNeighbors(occ, a, func(b int, dir block.Face) {
			if !occ.FaceOpen(ch, a, b) {
				return
			}
			step := p.cfg.Step(ch, dir)
			if level <= step {
				return
			}
			nv := level - step
			if nv > vals[b] {
				vals[b] = nv
				p.q.push(b, nv)
			}
		})
	}
}

// forNeighbors обходит шесть соседей ячейки внутри чанка, dir задаёт направление шага
func (p *Propagator) forNeighbors(occ *micro.Occupancy, i int, fn func(j int, dir block.Face)) {
	x, y, z := occ.Coords(i)
	sy := occ.MX * occ.MZ
	if y+1 < occ.MY {
		fn(i+sy, block.PosY)
	}
	if y > 0 {
		fn(i-sy, block.NegY)
	}
	if x+1 < occ.MX {
		fn(i+1, block.PosX)
	}
	if x > 0 {
		fn(i-1, block.NegX)
	}
	if z+1 < occ.MZ {
		fn(i+occ.MX, block.PosZ)
	}
	if z > 0 {
		fn(i-occ.MX, block.NegZ)
	}
}
