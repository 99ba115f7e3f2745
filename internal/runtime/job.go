package runtime

import (
	"errors"
	"fmt"
	"time"

	"github.com/annel0/voxel-surface/internal/lighting"
	"github.com/annel0/voxel-surface/internal/mesher"
	"github.com/annel0/voxel-surface/internal/micro"
	"github.com/annel0/voxel-surface/internal/revision"
	"github.com/annel0/voxel-surface/internal/seam"
	"github.com/annel0/voxel-surface/internal/vec"
	"github.com/annel0/voxel-surface/internal/world"
)

var (
	// ErrInvariant нарушение инварианта мешера или освещения
	ErrInvariant = errors.New("нарушение инварианта")
	// ErrClosed планировщик остановлен
	ErrClosed = errors.New("планировщик остановлен")
)

// Lane полоса приоритета заданий. Меньшее значение обслуживается раньше.
type Lane uint8

const (
	LaneEdit Lane = iota
	LaneLight
	LaneBackground
	numLanes
)

// Lanes все полосы в порядке приоритета
var Lanes = [numLanes]Lane{LaneEdit, LaneLight, LaneBackground}

func (l Lane) String() string {
	switch l {
	case LaneEdit:
		return "edit"
	case LaneLight:
		return "light"
	case LaneBackground:
		return "background"
	default:
		return fmt.Sprintf("lane(%d)", uint8(l))
	}
}

// Job неизменяемый снимок всего, что нужно воркеру для сборки чанка
type Job struct {
	ID    uint64
	Lane  Lane
	Stamp revision.Stamp

	Neighborhood world.Neighborhood
	// Borders обращённые к чанку границы соседей по индексу нашей грани
	Borders [6]*seam.FaceBorder
	// NeighborGeometry текущие ревизии геометрии соседей на момент снимка
	NeighborGeometry [6]uint64
	// PrevLight последнее принятое освещение чанка (nil при первой сборке)
	PrevLight   *lighting.State
	SkyOpen     bool
	Verify      bool
	ExportLight bool
}

// Coord координата собираемого чанка
func (j *Job) Coord() vec.Vec3 { return j.Stamp.Coord }

// StaleNotice полезная нагрузка ChunkStale: результат отброшен и задание повторено
type StaleNotice struct {
	Coord   vec.Vec3 `json:"coord"`
	JobID   uint64   `json:"job_id"`
	Verdict string   `json:"verdict"`
}

// Timings длительности стадий задания
type Timings struct {
	Occupancy time.Duration `json:"occupancy"`
	Lighting  time.Duration `json:"lighting"`
	Mesh      time.Duration `json:"mesh"`
	Export    time.Duration `json:"export"`
	Total     time.Duration `json:"total"`
}

// Result итог задания. Err != nil означает, что остальные поля не заполнены.
type Result struct {
	Job     *Job
	Mesh    *mesher.ChunkMesh
	Light   *lighting.State
	Borders [6]seam.FaceBorder
	// Tiers источник виртуального слоя по осям отрицательных граней
	Tiers   [3]micro.SeamTier
	Timings Timings
	Err     error
}
