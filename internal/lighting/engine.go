package lighting

import (
	"github.com/annel0/voxel-surface/internal/micro"
)

// Engine объединяет сбор источников и заливку для одного задания
type Engine struct {
	collector  *Collector
	propagator *Propagator
}

// NewEngine создаёт движок освещения
func NewEngine(cfg Config) *Engine {
	return &Engine{
		collector:  NewCollector(cfg),
		propagator: NewPropagator(cfg),
	}
}

// Run собирает источники и считает освещение. При наличии prev
// выполняется инкрементальное двухфазное обновление.
func (e *Engine) Run(occ *micro.Occupancy, in Inputs, prev *State) *State {
	src := e.collector.Collect(occ, in)
	if prev != nil {
		return e.propagator.Update(prev, occ, src)
	}
	return e.propagator.Solve(occ, src)
}

// Stats счётчики последнего запуска
func (e *Engine) Stats() PropagationStats { return e.propagator.Stats }

// Config параметры модели
func (e *Engine) Config() Config { return e.propagator.cfg }

// CheckSealed проверяет, что свет не хранится в непрозрачных ячейках.
// Возвращает индекс первой нарушающей ячейки или -1.
func CheckSealed(occ *micro.Occupancy, f *Field) (micro.Channel, int) {
	for _, ch := range micro.Channels {
		vals := f.Values[ch]
		for i, v := range vals {
			if v > 0 && !occ.Passable(ch, i) {
				return ch, i
			}
		}
	}
	return 0, -1
}
