package mesher

import (
	"errors"
	"fmt"

	"github.com/annel0/voxel-surface/internal/micro"
	"github.com/annel0/voxel-surface/internal/world/block"
)

// ErrParityMismatch накопленный паритет не совпадает с занятостью
var ErrParityMismatch = errors.New("паритет граней расходится с занятостью")

// Verify сверяет паритет твёрдых граней с прямым XOR занятости по обе
// стороны каждой плоскости. Ячейки за плоскостью extent считаются пустыми:
// туда попадают только собственные положительные грани чанка.
// Перед сверкой проверяется, что закрытые для света ячейки твёрдые:
// иначе свет упирался бы в грань, которой нет в меше.
func Verify(occ *micro.Occupancy, g *FaceGrids) error {
	if ch, cell := occ.CheckOpacity(); cell >= 0 {
		x, y, z := occ.Coords(cell)
		return fmt.Errorf("%w: ячейка (%d,%d,%d) закрыта для канала %v, но не твёрдая", ErrParityMismatch, x, y, z, ch)
	}
	for ax := range g.Axes {
		fg := &g.Axes[ax]
		axis := block.Axis(ax)
		last := fg.Planes - 1
		for p := 0; p <= last; p++ {
			for v := 0; v < fg.H; v++ {
				for u := 0; u < fg.W; u++ {
					x0, y0, z0 := micro.PlaneToCell(axis, p-1, u, v)
					a := occ.CellSolid(x0, y0, z0)
					b := false
					if p < last {
						x1, y1, z1 := micro.PlaneToCell(axis, p, u, v)
						b = occ.CellSolid(x1, y1, z1)
					}
					i := fg.Index(p, u, v)
					got := fg.Parity.Get(i)
					if got != (a != b) {
						return fmt.Errorf("%w: ось %v, плоскость %d, (%d,%d)", ErrParityMismatch, axis, p, u, v)
					}
					if got && fg.Orient.Get(i) != a {
						return fmt.Errorf("%w: ориентация, ось %v, плоскость %d, (%d,%d)", ErrParityMismatch, axis, p, u, v)
					}
				}
			}
		}
	}
	return nil
}
