package micro

import (
	"testing"

	"github.com/annel0/voxel-surface/internal/vec"
	"github.com/annel0/voxel-surface/internal/world"
	"github.com/annel0/voxel-surface/internal/world/block"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func blk(id block.BlockID, state uint16) block.Block { return block.Block{ID: id, State: state} }

func TestBitsetOps(t *testing.T) {
	b := NewBitset(130)
	b.Set(0)
	b.Set(129)
	assert.True(t, b.Get(129))
	assert.False(t, b.Toggle(0))
	assert.True(t, b.Toggle(64))
	assert.Equal(t, 2, b.Count())

	c := NewBitset(130)
	c.Set(64)
	c.Set(129)
	assert.True(t, b.Equal(c))

	r := b.Resize(10)
	assert.Equal(t, 0, r.Count(), "Resize обнуляет набор")
}

func TestBuilderShapes(t *testing.T) {
	reg := block.DefaultRegistry()
	c := world.NewChunk(vec.Vec3{}, 4)
	c.Set(0, 0, 0, blk(block.StoneBlockID, 0))
	c.Set(1, 0, 0, blk(block.SlabBlockID, 0))
	c.Set(2, 0, 0, blk(block.SlabBlockID, block.SlabTopBit))
	c.Set(3, 0, 0, blk(block.WaterBlockID, 0))
	c.Set(0, 1, 0, blk(block.GlassPaneBlockID, 0))
	c.Set(1, 1, 0, blk(block.GlassBlockID, 0))

	o := NewBuilder(reg).Build(c)
	assert.Equal(t, 8, o.MX)

	// Камень: все 8 ячеек
	for my := 0; my < 2; my++ {
		for mx := 0; mx < 2; mx++ {
			assert.True(t, o.CellSolid(mx, my, 0))
		}
	}
	// Нижняя плита
	assert.True(t, o.CellSolid(2, 0, 0))
	assert.False(t, o.CellSolid(2, 1, 0))
	// Верхняя плита
	assert.False(t, o.CellSolid(4, 0, 1))
	assert.True(t, o.CellSolid(4, 1, 1))
	// Вода не твёрдая
	assert.False(t, o.CellSolid(6, 0, 0))
	assert.True(t, o.CellWater(6, 0, 0))
	// Тонкая декорация исключена из занятости
	assert.False(t, o.CellSolid(0, 2, 0))
	assert.True(t, o.Thin.Get(o.Index(0, 2, 0)))

	// 8 (камень) + 4 + 4 (плиты) + 8 (стекло)
	assert.Equal(t, 24, o.Solid.Count())
}

func TestFaceOpenRespectsChannelFlags(t *testing.T) {
	reg := block.DefaultRegistry()
	c := world.NewChunk(vec.Vec3{}, 2)
	c.Set(0, 0, 0, blk(block.GlassBlockID, 0))
	c.Set(1, 0, 0, blk(block.StoneBlockID, 0))
	o := NewBuilder(reg).Build(c)

	glass := o.Index(1, 0, 0)
	air := o.Index(1, 2, 0)
	above := o.Index(1, 1, 0)
	stone := o.Index(2, 0, 0)

	assert.True(t, o.FaceOpen(Sky, glass, above), "стекло пропускает небесный свет")
	assert.True(t, o.FaceOpen(BlockLight, glass, above), "стекло пропускает блочный свет")
	assert.False(t, o.FaceOpen(Sky, glass, stone), "камень закрывает грань")
	assert.False(t, o.FaceOpen(BlockLight, stone, air))
	assert.True(t, o.Passable(Beacon, air))
}

func TestGlassIsSolidButOpenToLight(t *testing.T) {
	reg := block.DefaultRegistry()
	c := world.NewChunk(vec.Vec3{}, 2)
	c.Set(0, 0, 0, blk(block.GlassBlockID, 0))
	c.Set(1, 0, 0, blk(block.GlassBlockID, 0))
	c.Set(0, 1, 0, blk(block.StoneBlockID, 0))
	o := NewBuilder(reg).Build(c)

	a, b := o.Index(1, 0, 0), o.Index(2, 0, 0)
	assert.True(t, o.CellSolid(1, 0, 0) && o.CellSolid(2, 0, 0), "стекло участвует в паритете")
	for _, ch := range Channels {
		assert.True(t, o.FaceOpen(ch, a, b), "грань стекло-стекло открыта для канала %v", ch)
	}
	ch, cell := o.CheckOpacity()
	assert.Equal(t, -1, cell, "непрозрачная нетвёрдая ячейка канала %v", ch)

	// Порча: непрозрачность без занятости
	o.Solid.Clear(o.Index(0, 2, 0))
	_, cell = o.CheckOpacity()
	assert.Equal(t, o.Index(0, 2, 0), cell)
}

func TestCoordsRoundTrip(t *testing.T) {
	o := NewOccupancy(3, 2, 4)
	for i := 0; i < o.Len(); i++ {
		x, y, z := o.Coords(i)
		require.Equal(t, i, o.Index(x, y, z))
	}
	for a := block.Axis(0); a < 3; a++ {
		l, u, v := CellToPlane(a, 1, 2, 3)
		x, y, z := PlaneToCell(a, l, u, v)
		assert.Equal(t, [3]int{1, 2, 3}, [3]int{x, y, z})
	}
}

func setupSeamWorld(t *testing.T) (*block.Registry, *world.Store, *world.Chunk, *world.Chunk) {
	t.Helper()
	reg := block.DefaultRegistry()
	s := world.NewStore(4)
	center := world.NewChunk(vec.Vec3{}, 4)
	west := world.NewChunk(vec.Vec3{X: -1}, 4)
	west.Set(3, 0, 0, blk(block.StoneBlockID, 0))
	west.Set(3, 1, 0, blk(block.SlabBlockID, 0))
	west.Set(3, 2, 0, blk(block.WaterBlockID, 0))
	s.Put(center)
	s.Put(west)
	return reg, s, center, west
}

func TestSeamSeederFallsBackToSampling(t *testing.T) {
	reg, s, center, _ := setupSeamWorld(t)
	o := NewBuilder(reg).Build(center)
	n := world.SnapshotNeighborhood(s, center)

	tiers := NewSeamSeeder(reg).Seed(o, n, [3]SeamInput{})
	assert.Equal(t, TierSampled, tiers[block.AxisX])
	assert.Equal(t, TierMissing, tiers[block.AxisY])
	assert.Equal(t, TierMissing, tiers[block.AxisZ])

	assert.True(t, o.CellSolid(-1, 0, 0), "полный куб соседа")
	assert.True(t, o.CellSolid(-1, 3, 1), "плита при выборке консервативно твёрдая целиком")
	assert.True(t, o.CellWater(-1, 4, 0))
	assert.False(t, o.CellSolid(-1, 6, 0))
	assert.False(t, o.CellSolid(-1, -1, 0), "диагональ вне виртуального слоя")

	stone, _ := reg.Materials.ID("stone")
	assert.Equal(t, stone, o.Seams[block.AxisX].Material[0])
}

func TestSeamSeederPrefersFreshPlane(t *testing.T) {
	reg, s, center, west := setupSeamWorld(t)
	b := NewBuilder(reg)

	westOcc := b.Build(west)
	plane := ExportPlane(westOcc, west, reg, block.PosX)
	plane.SourceRev = 5

	n := world.SnapshotNeighborhood(s, center)

	o := b.Build(center)
	tiers := NewSeamSeeder(reg).Seed(o, n, [3]SeamInput{{Plane: plane, RequiredRev: 5}})
	assert.Equal(t, TierPlane, tiers[block.AxisX])
	assert.True(t, o.CellSolid(-1, 2, 0), "точная плоскость: нижняя половина плиты")
	assert.False(t, o.CellSolid(-1, 3, 0), "точная плоскость: верхняя половина плиты пуста")

	o2 := b.Build(center)
	tiers = NewSeamSeeder(reg).Seed(o2, n, [3]SeamInput{{Plane: plane, RequiredRev: 6}})
	assert.Equal(t, TierSampled, tiers[block.AxisX], "устаревшая плоскость не используется")
	assert.True(t, o2.CellSolid(-1, 3, 0))
}

func TestExportPlaneMatchesSamplingForCubes(t *testing.T) {
	reg := block.DefaultRegistry()
	west := world.NewChunk(vec.Vec3{X: -1}, 4)
	west.Fill(3, 0, 0, 4, 2, 4, blk(block.StoneBlockID, 0))
	west.Fill(3, 2, 0, 4, 3, 4, blk(block.WaterBlockID, 0))

	plane := ExportPlane(NewBuilder(reg).Build(west), west, reg, block.PosX)

	sampled := NewPlane(block.AxisX, plane.W, plane.H)
	NewSeamSeeder(reg).sample(sampled, west, block.AxisX)
	assert.True(t, plane.Equal(sampled), "для полных кубов выборка и плоскость совпадают")
}
