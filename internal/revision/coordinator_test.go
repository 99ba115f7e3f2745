package revision

import (
	"testing"

	"github.com/annel0/voxel-surface/internal/vec"
	"github.com/annel0/voxel-surface/internal/world/block"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcceptMatrix(t *testing.T) {
	coord := vec.Vec3{X: 2}
	seams := [6]uint64{block.NegX: 4, block.PosY: 1}

	tests := []struct {
		name    string
		mutate  func(c *Coordinator)
		current [6]uint64
		want    Verdict
	}{
		{"без изменений", nil, seams, Accepted},
		{"правка во время задания", func(c *Coordinator) { c.NoteEdit(coord) }, seams, StaleGeometry},
		{"свет соседа", func(c *Coordinator) { c.NoteLighting(coord) }, seams, StaleLighting},
		{"шов новее прочитанного", nil, [6]uint64{block.NegX: 5, block.PosY: 1}, StaleSeam},
		{"шов старее не мешает", nil, [6]uint64{block.NegX: 4}, Accepted},
		{"чанк выгружен", func(c *Coordinator) { c.Unload(coord) }, seams, Unloaded},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewCoordinator()
			c.Load(coord)
			stamp, err := c.Stamp(coord, seams)
			require.NoError(t, err)
			if tt.mutate != nil {
				tt.mutate(c)
			}
			assert.Equal(t, tt.want, c.Accept(stamp, tt.current))
		})
	}
}

func TestRevisionsAreMonotoneAcrossReload(t *testing.T) {
	c := NewCoordinator()
	coord := vec.Vec3{}
	r := c.Load(coord)
	assert.Equal(t, uint64(1), r.GeometryRev)

	rev, err := c.NoteEdit(coord)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), rev)
	_, err = c.NoteLighting(coord)
	require.NoError(t, err)

	assert.True(t, c.Unload(coord))
	assert.False(t, c.Loaded(coord))
	_, err = c.NoteEdit(coord)
	assert.ErrorIs(t, err, ErrNotLoaded)

	r = c.Load(coord)
	assert.Equal(t, uint64(3), r.GeometryRev, "повторная загрузка продолжает счёт")
	assert.Equal(t, uint64(1), r.LightingRev)
}

func TestCommitRejectsRegression(t *testing.T) {
	c := NewCoordinator()
	coord := vec.Vec3{Y: 1}
	c.Load(coord)

	newer, _ := c.Stamp(coord, [6]uint64{block.NegY: 3})
	older := newer
	older.Consumed[block.NegY] = 2

	require.NoError(t, c.Commit(newer))
	rec, ok := c.Record(coord)
	require.True(t, ok)
	assert.Equal(t, uint64(3), rec.Consumed[block.NegY])
	assert.Equal(t, newer.GeometryRev, rec.Built)

	assert.ErrorIs(t, c.Commit(older), ErrRegression)
}

func TestStampUnknownChunk(t *testing.T) {
	c := NewCoordinator()
	_, err := c.Stamp(vec.Vec3{X: 9}, [6]uint64{})
	assert.ErrorIs(t, err, ErrNotLoaded)
	assert.Equal(t, uint64(0), c.GeometryRev(vec.Vec3{X: 9}))
}

func TestCoordsSorted(t *testing.T) {
	c := NewCoordinator()
	c.Load(vec.Vec3{X: 1, Y: 1})
	c.Load(vec.Vec3{X: 5})
	c.Load(vec.Vec3{Z: -1})
	assert.Equal(t, 3, c.Len())
	assert.Equal(t, []vec.Vec3{{Z: -1}, {X: 5}, {X: 1, Y: 1}}, c.Coords())
}

func TestVerdictString(t *testing.T) {
	assert.Equal(t, "stale_seam", StaleSeam.String())
	assert.Equal(t, "verdict(42)", Verdict(42).String())
}
