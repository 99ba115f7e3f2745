package revision

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/annel0/voxel-surface/internal/vec"
	"github.com/annel0/voxel-surface/internal/world/block"
)

var (
	// ErrNotLoaded чанк не загружен
	ErrNotLoaded = errors.New("чанк не загружен")
	// ErrRegression ревизия уменьшилась
	ErrRegression = errors.New("ревизия уменьшилась")
)

// Record ревизии чанка
type Record struct {
	GeometryRev uint64    `json:"geometry_rev"`
	LightingRev uint64    `json:"lighting_rev"`
	Consumed    [6]uint64 `json:"consumed"`
	// Built ревизия геометрии последнего принятого результата
	Built uint64 `json:"built"`
}

// Stamp ревизии, увиденные заданием при создании снимка
type Stamp struct {
	Coord       vec.Vec3
	GeometryRev uint64
	LightingRev uint64
	// Consumed ревизии обращённых к чанку границ соседей по индексу нашей грани
	Consumed [6]uint64
}

// Verdict решение по результату задания
type Verdict int

const (
	Accepted Verdict = iota
	StaleGeometry
	StaleLighting
	StaleSeam
	Unloaded
)

func (v Verdict) String() string {
	switch v {
	case Accepted:
		return "accepted"
	case StaleGeometry:
		return "stale_geometry"
	case StaleLighting:
		return "stale_lighting"
	case StaleSeam:
		return "stale_seam"
	case Unloaded:
		return "unloaded"
	default:
		return fmt.Sprintf("verdict(%d)", int(v))
	}
}

// Coordinator владеет записями ревизий загруженных чанков.
// Ревизии монотонны и переживают выгрузку.
type Coordinator struct {
	mu      sync.RWMutex
	records map[vec.Vec3]*Record
	// retired ревизии выгруженных чанков для продолжения счёта
	retired map[vec.Vec3]Record
}

// NewCoordinator создаёт координатор
func NewCoordinator() *Coordinator {
	return &Coordinator{
		records: make(map[vec.Vec3]*Record),
		retired: make(map[vec.Vec3]Record),
	}
}

// Load регистрирует чанк. Повторная загрузка продолжает ревизии и
// увеличивает геометрию, поскольку содержимое могло измениться.
func (c *Coordinator) Load(coord vec.Vec3) Record {
	c.mu.Lock()
	defer c.mu.Unlock()
	if r, ok := c.records[coord]; ok {
		return *r
	}
	r := c.retired[coord]
	delete(c.retired, coord)
	r.GeometryRev++
	r.Consumed = [6]uint64{}
	c.records[coord] = &r
	return r
}

// Unload снимает чанк с учёта
func (c *Coordinator) Unload(coord vec.Vec3) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.records[coord]
	if !ok {
		return false
	}
	c.retired[coord] = *r
	delete(c.records, coord)
	return true
}

// Loaded загружен ли чанк
func (c *Coordinator) Loaded(coord vec.Vec3) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.records[coord]
	return ok
}

// NoteEdit увеличивает ревизию геометрии после правки
func (c *Coordinator) NoteEdit(coord vec.Vec3) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.records[coord]
	if !ok {
		return 0, fmt.Errorf("правка %s: %w", coord, ErrNotLoaded)
	}
	r.GeometryRev++
	return r.GeometryRev, nil
}

// NoteLighting увеличивает ревизию освещения (изменился свет соседа)
func (c *Coordinator) NoteLighting(coord vec.Vec3) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.records[coord]
	if !ok {
		return 0, fmt.Errorf("освещение %s: %w", coord, ErrNotLoaded)
	}
	r.LightingRev++
	return r.LightingRev, nil
}

// GeometryRev текущая ревизия геометрии (0 для незагруженного)
func (c *Coordinator) GeometryRev(coord vec.Vec3) uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if r, ok := c.records[coord]; ok {
		return r.GeometryRev
	}
	return 0
}

// Stamp фиксирует ревизии для нового задания
func (c *Coordinator) Stamp(coord vec.Vec3, seamRevs [6]uint64) (Stamp, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	r, ok := c.records[coord]
	if !ok {
		return Stamp{}, fmt.Errorf("снимок %s: %w", coord, ErrNotLoaded)
	}
	return Stamp{
		Coord:       coord,
		GeometryRev: r.GeometryRev,
		LightingRev: r.LightingRev,
		Consumed:    seamRevs,
	}, nil
}

// Accept решает судьбу результата: принимается, только если ревизии чанка
// не изменились и ни одна обращённая граница соседа не новее прочитанной
func (c *Coordinator) Accept(s Stamp, current [6]uint64) Verdict {
	c.mu.RLock()
	defer c.mu.RUnlock()
	r, ok := c.records[s.Coord]
	switch {
	case !ok:
		return Unloaded
	case r.GeometryRev != s.GeometryRev:
		return StaleGeometry
	case r.LightingRev != s.LightingRev:
		return StaleLighting
	}
	for _, f := range block.Faces {
		if current[f] > s.Consumed[f] {
			return StaleSeam
		}
	}
	return Accepted
}

// Commit записывает принятый результат. Уменьшение прочитанной ревизии
// границы или собранной геометрии считается нарушением инварианта.
func (c *Coordinator) Commit(s Stamp) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.records[s.Coord]
	if !ok {
		return fmt.Errorf("фиксация %s: %w", s.Coord, ErrNotLoaded)
	}
	if s.GeometryRev < r.Built {
		return fmt.Errorf("%w: %s геометрия %d < %d", ErrRegression, s.Coord, s.GeometryRev, r.Built)
	}
	for _, f := range block.Faces {
		if s.Consumed[f] < r.Consumed[f] {
			return fmt.Errorf("%w: %s грань %v %d < %d", ErrRegression, s.Coord, f, s.Consumed[f], r.Consumed[f])
		}
	}
	r.Consumed = s.Consumed
	r.Built = s.GeometryRev
	return nil
}

// Record копия записи чанка
func (c *Coordinator) Record(coord vec.Vec3) (Record, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	r, ok := c.records[coord]
	if !ok {
		return Record{}, false
	}
	return *r, true
}

// Coords загруженные чанки в порядке Y, Z, X
func (c *Coordinator) Coords() []vec.Vec3 {
	c.mu.RLock()
	out := make([]vec.Vec3, 0, len(c.records))
	for k := range c.records {
		out = append(out, k)
	}
	c.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Less(out[j]) })
	return out
}

// Len число загруженных чанков
func (c *Coordinator) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.records)
}
