package mesher

import (
	"math/rand"
	"sync"
	"testing"

	"github.com/annel0/voxel-surface/internal/lighting"
	"github.com/annel0/voxel-surface/internal/micro"
	"github.com/annel0/voxel-surface/internal/vec"
	"github.com/annel0/voxel-surface/internal/world"
	"github.com/annel0/voxel-surface/internal/world/block"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var reg = block.DefaultRegistry()

func stone() block.Block { return block.Block{ID: block.StoneBlockID} }
func water() block.Block { return block.Block{ID: block.WaterBlockID} }

func newMesher() *Mesher { return New(reg, lighting.DefaultConfig()) }

// input строит вход мешера с виртуальными слоями, полученными выборкой соседей
func input(t *testing.T, store *world.Store, coord vec.Vec3) Input {
	t.Helper()
	c, ok := store.Chunk(coord)
	require.True(t, ok, "чанк %s не загружен", coord)
	nb := world.SnapshotNeighborhood(store, c)
	occ := micro.NewBuilder(reg).Build(c)
	micro.NewSeamSeeder(reg).Seed(occ, nb, [3]micro.SeamInput{})
	return Input{Chunk: c, Neighborhood: nb, Occupancy: occ, Verify: true}
}

func single(t *testing.T, c *world.Chunk) *ChunkMesh {
	t.Helper()
	store := world.NewStore(c.SX)
	store.Put(c)
	mesh, err := newMesher().Mesh(input(t, store, c.Coord))
	require.NoError(t, err)
	return mesh
}

// microArea площадь квада в микро-ячейках
func microArea(q Quad) int {
	return int(q.Size[0]*micro.S) * int(q.Size[1]*micro.S)
}

func TestGreedyMergeRectangles(t *testing.T) {
	// 1 1 2
	// 1 1 2
	// 0 1 1
	mask := []uint32{
		1, 1, 2,
		1, 1, 2,
		0, 1, 1,
	}
	rects := greedyMerge(mask, 3, 3, nil)
	require.Len(t, rects, 3)
	assert.Equal(t, Rect{U: 0, V: 0, W: 2, H: 2, Code: 1}, rects[0])
	assert.Equal(t, Rect{U: 2, V: 0, W: 1, H: 2, Code: 2}, rects[1])
	assert.Equal(t, Rect{U: 1, V: 2, W: 2, H: 1, Code: 1}, rects[2])
	for _, c := range mask {
		assert.Zero(t, c, "маска обнуляется")
	}
}

func TestKeyTableReservesZero(t *testing.T) {
	kt := NewKeyTable()
	a, err := kt.Key(3, 17)
	require.NoError(t, err)
	b, _ := kt.Key(3, 34)
	again, _ := kt.Key(3, 17)
	assert.Equal(t, uint16(1), a)
	assert.Equal(t, uint16(2), b)
	assert.Equal(t, a, again)
	m, l := kt.Entry(b)
	assert.Equal(t, block.MaterialID(3), m)
	assert.Equal(t, uint8(34), l)
	assert.Equal(t, 2, kt.Len())

	kt.Reset()
	assert.Equal(t, 0, kt.Len())
}

func TestCubeInsideChunkGivesSixQuads(t *testing.T) {
	c := world.NewChunk(vec.Vec3{}, 16)
	c.Fill(4, 4, 4, 12, 12, 12, stone())
	mesh := single(t, c)

	quads := mesh.Quads()
	require.Len(t, quads, 6)
	faces := map[block.Face]bool{}
	for _, q := range quads {
		faces[q.Face] = true
		assert.Equal(t, [2]float32{8, 8}, q.Size)
	}
	assert.Len(t, faces, 6)
	assert.Equal(t, 6, mesh.Stats.Solid)
}

func TestSolidChunkAndPositiveNeighboursGiveSixFaces(t *testing.T) {
	store := world.NewStore(8)
	solid := world.NewChunk(vec.Vec3{}, 8)
	solid.Fill(0, 0, 0, 8, 8, 8, stone())
	store.Put(solid)
	for _, f := range []block.Face{block.PosX, block.PosY, block.PosZ} {
		store.Put(world.NewChunk(vec.Vec3{}.Add(f.Delta()), 8))
	}

	m := newMesher()
	total := 0
	for _, coord := range store.Coords() {
		mesh, err := m.Mesh(input(t, store, coord))
		require.NoError(t, err)
		total += mesh.QuadCount()
		if coord != (vec.Vec3{}) {
			require.Equal(t, 1, mesh.QuadCount(), "сосед %s выдаёт положительную грань шва", coord)
			q := mesh.Quads()[0]
			assert.True(t, q.Face.IsPositive())
		}
	}
	assert.Equal(t, 6, total)
}

func TestSharedPlaneCancels(t *testing.T) {
	store := world.NewStore(8)
	a := world.NewChunk(vec.Vec3{}, 8)
	a.Fill(7, 0, 0, 8, 8, 8, stone())
	b := world.NewChunk(vec.Vec3{X: 1}, 8)
	b.Fill(0, 0, 0, 1, 8, 8, stone())
	store.Put(a)
	store.Put(b)

	m := newMesher()
	meshA, err := m.Mesh(input(t, store, a.Coord))
	require.NoError(t, err)
	meshB, err := m.Mesh(input(t, store, b.Coord))
	require.NoError(t, err)

	for _, q := range meshA.Quads() {
		if q.Face.Axis() == block.AxisX {
			assert.NotEqual(t, float32(8), q.Origin.X, "плоскость extent не выдаётся")
		}
	}
	for _, q := range meshB.Quads() {
		if q.Face.Axis() == block.AxisX {
			assert.NotEqual(t, float32(0), q.Origin.X, "общая плоскость гасится")
		}
	}
	assert.Equal(t, 1, countFace(meshA, block.NegX))
	assert.Equal(t, 1, countFace(meshB, block.PosX))
}

func countFace(m *ChunkMesh, f block.Face) int {
	n := 0
	for _, q := range m.Quads() {
		if q.Face == f {
			n++
		}
	}
	return n
}

func TestRandomFillMatchesXorGroundTruth(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	palette := []block.BlockID{block.StoneBlockID, block.SlabBlockID, block.StairsBlockID, block.BrickPillarBlockID}
	m := newMesher()

	for iter := 0; iter < 10; iter++ {
		store := world.NewStore(4)
		for _, coord := range []vec.Vec3{{}, {X: -1}, {Y: -1}, {Z: -1}} {
			c := world.NewChunk(coord, 4)
			for i := 0; i < 30; i++ {
				id := palette[rng.Intn(len(palette))]
				c.Set(rng.Intn(4), rng.Intn(4), rng.Intn(4), block.Block{ID: id, State: uint16(rng.Intn(8))})
			}
			store.Put(c)
		}

		in := input(t, store, vec.Vec3{})
		mesh, err := m.Mesh(in)
		require.NoError(t, err)

		occ := in.Occupancy
		for ax := 0; ax < 3; ax++ {
			axis := block.Axis(ax)
			w, h := occ.PlaneDims(axis)
			extent := [3]int{occ.MX, occ.MY, occ.MZ}[ax]
			want := 0
			for p := 0; p < extent; p++ {
				for v := 0; v < h; v++ {
					for u := 0; u < w; u++ {
						x0, y0, z0 := micro.PlaneToCell(axis, p-1, u, v)
						x1, y1, z1 := micro.PlaneToCell(axis, p, u, v)
						if occ.CellSolid(x0, y0, z0) != occ.CellSolid(x1, y1, z1) {
							want++
						}
					}
				}
			}
			got := 0
			for _, q := range mesh.Quads() {
				if q.Face.Axis() == axis && !q.Liquid {
					got += microArea(q)
				}
			}
			assert.Equal(t, want, got, "итерация %d, ось %v", iter, axis)
		}
	}
}

func TestPlaneTierMatchesSamplingForCubes(t *testing.T) {
	store := world.NewStore(4)
	a := world.NewChunk(vec.Vec3{}, 4)
	a.Fill(3, 0, 0, 4, 2, 4, stone())
	a.Set(3, 3, 1, block.Block{ID: block.GrassBlockID})
	b := world.NewChunk(vec.Vec3{X: 1}, 4)
	b.Set(0, 0, 0, stone())
	store.Put(a)
	store.Put(b)

	m := newMesher()
	sampled, err := m.Mesh(input(t, store, b.Coord))
	require.NoError(t, err)

	occA := micro.NewBuilder(reg).Build(a)
	plane := micro.ExportPlane(occA, a, reg, block.PosX)
	plane.SourceRev = 3

	in := input(t, store, b.Coord)
	tiers := micro.NewSeamSeeder(reg).Seed(in.Occupancy, in.Neighborhood, [3]micro.SeamInput{
		block.AxisX: {Plane: plane, RequiredRev: 3},
	})
	require.Equal(t, micro.TierPlane, tiers[block.AxisX])
	fromPlane, err := m.Mesh(in)
	require.NoError(t, err)

	assert.ElementsMatch(t, sampled.Quads(), fromPlane.Quads())
}

func TestPlaneTierIsExactForMicroShapes(t *testing.T) {
	store := world.NewStore(4)
	a := world.NewChunk(vec.Vec3{}, 4)
	a.Set(3, 0, 0, block.Block{ID: block.SlabBlockID}) // нижняя половина
	b := world.NewChunk(vec.Vec3{X: 1}, 4)
	store.Put(a)
	store.Put(b)

	occA := micro.NewBuilder(reg).Build(a)
	plane := micro.ExportPlane(occA, a, reg, block.PosX)
	in := input(t, store, b.Coord)
	micro.NewSeamSeeder(reg).Seed(in.Occupancy, in.Neighborhood, [3]micro.SeamInput{
		block.AxisX: {Plane: plane},
	})
	mesh, err := newMesher().Mesh(in)
	require.NoError(t, err)

	require.Equal(t, 1, mesh.QuadCount())
	q := mesh.Quads()[0]
	assert.Equal(t, block.PosX, q.Face)
	assert.Equal(t, 2, microArea(q), "грань плиты 2×1 микро-ячейки")
	assert.Equal(t, float32(0.5), q.Size[1])
}

func TestAccumulateIsIdempotent(t *testing.T) {
	c := world.NewGenerator(5, 8).Generate(vec.Vec3{})
	occ := micro.NewBuilder(reg).Build(c)

	a := NewAccumulator(reg, lighting.DefaultConfig())
	b := NewAccumulator(reg, lighting.DefaultConfig())
	require.NoError(t, a.Accumulate(c, occ, nil))
	require.NoError(t, b.Accumulate(c, occ, nil))
	assert.True(t, a.Solid.Equal(b.Solid))
	assert.True(t, a.Water.Equal(b.Water))

	// Повторный проход тем же аккумулятором
	require.NoError(t, a.Accumulate(c, occ, nil))
	assert.True(t, a.Solid.Equal(b.Solid))
	assert.NoError(t, Verify(occ, a.Solid))
}

func TestVerifyDetectsCorruption(t *testing.T) {
	c := world.NewChunk(vec.Vec3{}, 4)
	c.Set(1, 1, 1, stone())
	occ := micro.NewBuilder(reg).Build(c)
	acc := NewAccumulator(reg, lighting.DefaultConfig())
	require.NoError(t, acc.Accumulate(c, occ, nil))
	require.NoError(t, Verify(occ, acc.Solid))

	fg := &acc.Solid.Axes[block.AxisY]
	fg.Parity.Toggle(fg.Index(5, 0, 0))
	assert.ErrorIs(t, Verify(occ, acc.Solid), ErrParityMismatch)
}

func TestGlassFacesMatchStone(t *testing.T) {
	build := func(b block.Block) *ChunkMesh {
		c := world.NewChunk(vec.Vec3{}, 4)
		c.Fill(1, 1, 1, 3, 2, 2, b)
		return single(t, c)
	}
	glass := build(block.Block{ID: block.GlassBlockID})
	assert.Equal(t, 6, glass.QuadCount(), "грань стекло-стекло гасится как у камня")
	assert.Equal(t, build(stone()).QuadCount(), glass.QuadCount())

	// Закрытая для света ячейка без занятости ловится сверкой
	c := world.NewChunk(vec.Vec3{}, 4)
	c.Set(1, 1, 1, stone())
	occ := micro.NewBuilder(reg).Build(c)
	acc := NewAccumulator(reg, lighting.DefaultConfig())
	require.NoError(t, acc.Accumulate(c, occ, nil))
	occ.Solid.Clear(occ.Index(2, 2, 2))
	assert.ErrorIs(t, Verify(occ, acc.Solid), ErrParityMismatch)
}

func TestWaterFaces(t *testing.T) {
	t.Run("одиночный блок воды", func(t *testing.T) {
		c := world.NewChunk(vec.Vec3{}, 4)
		c.Set(1, 1, 1, water())
		mesh := single(t, c)
		assert.Equal(t, 6, mesh.Stats.Water)
		for _, b := range mesh.Batches {
			assert.True(t, b.Liquid)
		}
	})

	t.Run("вода на камне", func(t *testing.T) {
		c := world.NewChunk(vec.Vec3{}, 4)
		c.Set(1, 1, 1, water())
		c.Set(1, 0, 1, stone())
		mesh := single(t, c)
		assert.Equal(t, 5, mesh.Stats.Water, "нижняя грань воды скрыта")
		assert.Equal(t, 6, mesh.Stats.Solid, "верх камня виден сквозь воду")
	})

	t.Run("вода к воде", func(t *testing.T) {
		c := world.NewChunk(vec.Vec3{}, 4)
		c.Set(1, 1, 1, water())
		c.Set(2, 1, 1, water())
		mesh := single(t, c)
		assert.Equal(t, 6, mesh.Stats.Water)
	})

	t.Run("вода над камнем соседа", func(t *testing.T) {
		store := world.NewStore(4)
		below := world.NewChunk(vec.Vec3{Y: -1}, 4)
		below.Fill(0, 3, 0, 4, 4, 4, stone())
		top := world.NewChunk(vec.Vec3{}, 4)
		top.Fill(0, 0, 0, 4, 1, 4, water())
		store.Put(below)
		store.Put(top)

		mesh, err := newMesher().Mesh(input(t, store, top.Coord))
		require.NoError(t, err)
		for _, q := range mesh.Quads() {
			assert.NotEqual(t, block.NegY, q.Face, "дно воды на камне не выдаётся")
		}
		assert.Equal(t, 2, countFace(mesh, block.PosY), "верх воды и верх камня соседа под ней")
	})
}

func TestSlabAndStairs(t *testing.T) {
	c := world.NewChunk(vec.Vec3{}, 4)
	c.Set(1, 1, 1, block.Block{ID: block.SlabBlockID, State: block.SlabTopBit})
	mesh := single(t, c)
	require.Equal(t, 6, mesh.QuadCount())
	for _, q := range mesh.Quads() {
		switch q.Face {
		case block.PosY:
			assert.Equal(t, float32(2), q.Origin.Y)
		case block.NegY:
			assert.Equal(t, float32(1.5), q.Origin.Y)
		}
	}

	st := world.NewChunk(vec.Vec3{}, 4)
	st.Set(1, 1, 1, block.Block{ID: block.StairsBlockID})
	mesh = single(t, st)
	area := 0
	for _, q := range mesh.Quads() {
		area += microArea(q)
	}
	// 6 ячеек ступеней и 7 внутренних стыков: 36-14 открытых микро-граней
	assert.Equal(t, 22, area)
}

func TestThinTemplates(t *testing.T) {
	pane := block.Block{ID: block.GlassPaneBlockID}

	c := world.NewChunk(vec.Vec3{}, 4)
	c.Set(1, 1, 1, pane)
	assert.Equal(t, 6, single(t, c).Stats.Thin, "одиночная панель: только столб")

	c = world.NewChunk(vec.Vec3{}, 4)
	c.Set(0, 1, 1, pane)
	c.Set(1, 1, 1, pane)
	c.Set(2, 1, 1, pane)
	// 2 крайних по столбу и рукаву, средняя со столбом и двумя рукавами
	assert.Equal(t, (2+2+3)*6, single(t, c).Stats.Thin)

	c = world.NewChunk(vec.Vec3{}, 4)
	c.Set(1, 0, 1, block.Block{ID: block.FenceBlockID})
	c.Set(2, 0, 1, stone())
	mesh := single(t, c)
	assert.Equal(t, (1+2)*6, mesh.Stats.Thin)
	assert.Equal(t, 6, mesh.Stats.Solid)

	c = world.NewChunk(vec.Vec3{}, 4)
	c.Set(1, 0, 1, block.Block{ID: block.CarpetBlockID})
	mesh = single(t, c)
	assert.Equal(t, 6, mesh.Stats.Thin)
	for _, q := range mesh.Quads() {
		if q.Face == block.PosY {
			assert.InDelta(t, 1.0/16, q.Origin.Y, 1e-6)
		}
	}
}

func TestPaneConnectsAcrossSeam(t *testing.T) {
	store := world.NewStore(4)
	a := world.NewChunk(vec.Vec3{}, 4)
	a.Set(3, 0, 0, block.Block{ID: block.GlassPaneBlockID})
	b := world.NewChunk(vec.Vec3{X: 1}, 4)
	b.Set(0, 0, 0, stone())
	store.Put(a)
	store.Put(b)

	mesh, err := newMesher().Mesh(input(t, store, a.Coord))
	require.NoError(t, err)
	assert.Equal(t, 2*6, mesh.Stats.Thin)
}

func TestLightBinsEnterKeys(t *testing.T) {
	c := world.NewChunk(vec.Vec3{}, 8)
	c.Fill(0, 0, 0, 8, 1, 8, stone())
	c.Fill(0, 3, 0, 4, 4, 8, stone()) // навес над половиной пола
	occ := micro.NewBuilder(reg).Build(c)

	cfg := lighting.DefaultConfig()
	st := lighting.NewEngine(cfg).Run(occ, lighting.Inputs{Chunk: c, Registry: reg, SkyOpen: true}, nil)
	lit, err := New(reg, cfg).Mesh(Input{
		Chunk:     c,
		Occupancy: occ,
		Light:     &lighting.Sampler{Field: st.Field},
		Verify:    true,
	})
	require.NoError(t, err)
	dark, err := New(reg, cfg).Mesh(Input{Chunk: c, Occupancy: occ})
	require.NoError(t, err)

	assert.Greater(t, lit.QuadCount(), dark.QuadCount(), "разные уровни яркости не сливаются")
	seen255 := false
	for _, q := range lit.Quads() {
		assert.Zero(t, q.Light%17, "яркость квантована")
		if q.Light == 255 {
			seen255 = true
		}
	}
	assert.True(t, seen255)
}

func TestMeshConcurrentWorkersAgree(t *testing.T) {
	c := world.NewGenerator(9, 8).Generate(vec.Vec3{})
	store := world.NewStore(8)
	store.Put(c)
	m := newMesher()
	want, err := m.Mesh(input(t, store, c.Coord))
	require.NoError(t, err)

	var wg sync.WaitGroup
	results := make([]*ChunkMesh, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			occ := micro.NewBuilder(reg).Build(c)
			mesh, err := m.Mesh(Input{Chunk: c, Occupancy: occ})
			if err == nil {
				results[i] = mesh
			}
		}(i)
	}
	wg.Wait()
	for _, r := range results {
		require.NotNil(t, r)
		assert.Equal(t, want.Batches, r.Batches)
	}
}
