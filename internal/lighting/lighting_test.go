package lighting

import (
	"math/rand"
	"testing"

	"github.com/annel0/voxel-surface/internal/micro"
	"github.com/annel0/voxel-surface/internal/vec"
	"github.com/annel0/voxel-surface/internal/world"
	"github.com/annel0/voxel-surface/internal/world/block"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var reg = block.DefaultRegistry()

func glow() block.Block  { return block.Block{ID: block.GlowstoneBlockID} }
func stone() block.Block { return block.Block{ID: block.StoneBlockID} }

// solve полный расчёт для чанка без соседей и без неба
func solve(t *testing.T, c *world.Chunk, skyOpen bool) (*micro.Occupancy, *State) {
	t.Helper()
	occ := micro.NewBuilder(reg).Build(c)
	e := NewEngine(DefaultConfig())
	st := e.Run(occ, Inputs{Chunk: c, Registry: reg, SkyOpen: skyOpen}, nil)
	ch, bad := CheckSealed(occ, st.Field)
	require.Equal(t, -1, bad, "свет в непрозрачной ячейке канала %v", ch)
	return occ, st
}

// bruteForce эталон: для каждого источника BFS по открытым граням,
// значение ячейки = max(0, max(L - att*d)).
func bruteForce(occ *micro.Occupancy, seeds []Seed, ch micro.Channel, att int) []uint8 {
	out := make([]uint8, occ.Len())
	dist := make([]int, occ.Len())
	for _, s := range seeds {
		for i := range dist {
			dist[i] = -1
		}
		queue := []int{int(s.Cell)}
		dist[s.Cell] = 0
		for len(queue) > 0 {
			a := queue[0]
			queue = queue[1:]
			v := int(s.Level) - att*dist[a]
			if v <= 0 {
				continue
			}
			if uint8(v) > out[a] {
				out[a] = uint8(v)
			}
			x, y, z := occ.Coords(a)
			for _, f := range block.Faces {
				d := f.Delta()
				nx, ny, nz := x+d.X, y+d.Y, z+d.Z
				if !occ.InBounds(nx, ny, nz) {
					continue
				}
				b := occ.Index(nx, ny, nz)
				if dist[b] >= 0 || !occ.FaceOpen(ch, a, b) {
					continue
				}
				dist[b] = dist[a] + 1
				queue = append(queue, b)
			}
		}
	}
	return out
}

func TestEmitterFalloffScenario(t *testing.T) {
	c := world.NewChunk(vec.Vec3{}, 16)
	c.Set(8, 8, 8, glow())
	occ, st := solve(t, c, false)

	// Соседняя с излучателем ячейка получает уровень излучения,
	// каждый следующий открытый микро-шаг снимает 16.
	for k := 0; k < 14; k++ {
		x := 18 + k
		if x >= occ.MX {
			break
		}
		want := 200 - 16*k
		if want < 0 {
			want = 0
		}
		got := st.Field.Get(micro.BlockLight, occ.Index(x, 16, 16))
		assert.Equal(t, uint8(want), got, "k=%d", k)
	}

	want := bruteForce(occ, st.Sources.Seeds[micro.BlockLight], micro.BlockLight, 16)
	assert.Equal(t, want, st.Field.Values[micro.BlockLight])
	assert.Equal(t, 0, len(st.Sources.Seeds[micro.Sky]), "без неба нет небесных источников")
}

func TestSealedPlaneBlocksLight(t *testing.T) {
	c := world.NewChunk(vec.Vec3{}, 16)
	c.Set(10, 8, 8, glow())
	c.Fill(12, 0, 0, 13, 16, 16, stone())
	occ, st := solve(t, c, false)

	// Ячейка сразу за стеной закрыта от излучателя
	assert.Equal(t, uint8(0), st.Field.Get(micro.BlockLight, occ.Index(26, 16, 16)))
	for y := 0; y < occ.MY; y++ {
		for z := 0; z < occ.MZ; z++ {
			for x := 26; x < occ.MX; x++ {
				require.Equal(t, uint8(0), st.Field.Get(micro.BlockLight, occ.Index(x, y, z)))
			}
		}
	}
	assert.Equal(t, uint8(200), st.Field.Get(micro.BlockLight, occ.Index(22, 16, 16)))
	assert.Equal(t, uint8(184), st.Field.Get(micro.BlockLight, occ.Index(23, 16, 16)))
}

func TestGlassWallPassesLight(t *testing.T) {
	c := world.NewChunk(vec.Vec3{}, 16)
	c.Set(10, 8, 8, glow())
	c.Fill(12, 0, 0, 13, 16, 16, block.Block{ID: block.GlassBlockID})
	occ, st := solve(t, c, false)

	// Стекло твёрдое для мешера, но свет проходит насквозь с обычным затуханием
	assert.True(t, occ.CellSolid(24, 16, 16))
	assert.Equal(t, uint8(168), st.Field.Get(micro.BlockLight, occ.Index(24, 16, 16)))
	assert.Equal(t, uint8(136), st.Field.Get(micro.BlockLight, occ.Index(26, 16, 16)))
}

func TestMonotonicityRandomFill(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for iter := 0; iter < 5; iter++ {
		c := world.NewChunk(vec.Vec3{}, 4)
		for i := 0; i < 20; i++ {
			c.Set(rng.Intn(4), rng.Intn(4), rng.Intn(4), stone())
		}
		c.Set(rng.Intn(4), rng.Intn(4), rng.Intn(4), block.Block{ID: block.SlabBlockID})
		c.Set(rng.Intn(4), rng.Intn(4), rng.Intn(4), glow())
		c.Set(rng.Intn(4), rng.Intn(4), rng.Intn(4), block.Block{ID: block.LampBlockID})

		occ, st := solve(t, c, false)
		want := bruteForce(occ, st.Sources.Seeds[micro.BlockLight], micro.BlockLight, 16)
		assert.Equal(t, want, st.Field.Values[micro.BlockLight], "итерация %d", iter)
	}
}

func TestSolveIsIdempotent(t *testing.T) {
	g := world.NewGenerator(3, 8)
	c := g.Generate(vec.Vec3{})
	c.Set(4, 4, 4, glow())
	_, a := solve(t, c, true)
	_, b := solve(t, c, true)
	assert.True(t, a.Field.Equal(b.Field))
}

func TestRemovalLeavesOnlyOtherEmitter(t *testing.T) {
	cfg := DefaultConfig()
	builder := micro.NewBuilder(reg)

	both := world.NewChunk(vec.Vec3{}, 8)
	both.Set(1, 4, 4, glow()) // A
	both.Set(6, 4, 4, glow()) // B

	onlyB := world.NewChunk(vec.Vec3{}, 8)
	onlyB.Set(6, 4, 4, glow())

	e := NewEngine(cfg)
	occBoth := builder.Build(both)
	prev := e.Run(occBoth, Inputs{Chunk: both, Registry: reg}, nil)

	occB := builder.Build(onlyB)
	updated := e.Run(occB, Inputs{Chunk: onlyB, Registry: reg}, prev)
	assert.Greater(t, e.Stats().Retracted, 0, "затемнение должно сработать")

	fresh := NewEngine(cfg).Run(occB, Inputs{Chunk: onlyB, Registry: reg}, nil)
	assert.True(t, updated.Field.Equal(fresh.Field), "после удаления A поле равно вкладу одного B")

	// Ячейка C между излучателями освещалась обоими
	cIdx := occB.Index(7, 8, 8)
	assert.Greater(t, prev.Field.Get(micro.BlockLight, cIdx), uint8(0))
	assert.Equal(t, fresh.Field.Get(micro.BlockLight, cIdx), updated.Field.Get(micro.BlockLight, cIdx))

	// Прежнее состояние не изменено
	again := NewEngine(cfg).Run(occBoth, Inputs{Chunk: both, Registry: reg}, nil)
	assert.True(t, prev.Field.Equal(again.Field))
}

func TestIncrementalMatchesFullUnderRandomEdits(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	cfg := DefaultConfig()
	builder := micro.NewBuilder(reg)
	inc := NewEngine(cfg)

	c := world.NewChunk(vec.Vec3{}, 4)
	palette := []block.Block{block.Air, stone(), glow(), {ID: block.GlassBlockID}, {ID: block.SlabBlockID}, {ID: block.BeaconBlockID}}

	var prev *State
	for step := 0; step < 40; step++ {
		c.Set(rng.Intn(4), rng.Intn(4), rng.Intn(4), palette[rng.Intn(len(palette))])
		skyOpen := step%3 != 0

		occ := builder.Build(c)
		in := Inputs{Chunk: c, Registry: reg, SkyOpen: skyOpen}
		prev = inc.Run(occ, in, prev)
		full := NewEngine(cfg).Run(occ, in, nil)
		require.True(t, prev.Field.Equal(full.Field), "шаг %d: инкрементальный расчёт разошёлся с полным", step)
	}
}

func TestSkyColumnsStopAtFirstSolid(t *testing.T) {
	c := world.NewChunk(vec.Vec3{}, 4)
	c.Fill(0, 2, 0, 2, 3, 4, stone()) // крыша над половиной чанка
	occ, st := solve(t, c, true)

	sky := st.Field.Values[micro.Sky]
	assert.Equal(t, uint8(255), sky[occ.Index(6, 0, 0)], "открытая колонка освещена до дна")
	assert.Equal(t, uint8(255), sky[occ.Index(0, 7, 0)], "над крышей")
	assert.Equal(t, uint8(0), sky[occ.Index(0, 4, 0)], "внутри крыши света нет")
	// Под крышей свет приходит сбоку с затуханием
	under := sky[occ.Index(3, 0, 0)]
	assert.Equal(t, uint8(255-16), under)
	assert.Equal(t, uint8(255-16*4), sky[occ.Index(0, 0, 0)])
}

func TestSkyFromUpperPlane(t *testing.T) {
	c := world.NewChunk(vec.Vec3{}, 2)
	occ := micro.NewBuilder(reg).Build(c)

	top := &Plane{Axis: block.AxisY, W: 4, H: 4}
	for ch := range top.Values {
		top.Values[ch] = make([]uint8, 16)
	}
	top.Values[micro.Sky][0] = 255 // колонка (0,0) открыта
	top.Values[micro.Sky][5] = 100 // колонка (1,1): рассеянный свет

	e := NewEngine(DefaultConfig())
	st := e.Run(occ, Inputs{Chunk: c, Registry: reg, Neighbors: [6]*Plane{block.PosY: top}}, nil)
	sky := st.Field.Values[micro.Sky]
	assert.Equal(t, uint8(255), sky[occ.Index(0, 0, 0)])
	assert.Equal(t, uint8(255-16), sky[occ.Index(1, 0, 0)])
	assert.Equal(t, uint8(255-16), sky[occ.Index(1, 3, 0)], "сосед открытой колонки")
	assert.Equal(t, uint8(255-32), sky[occ.Index(1, 3, 1)], "сбоку ярче, чем рассеянный сверху")
}

func TestSeamSeedingFromNeighborPlane(t *testing.T) {
	c := world.NewChunk(vec.Vec3{}, 2)
	c.Set(0, 1, 0, stone())
	occ := micro.NewBuilder(reg).Build(c)

	west := &Plane{Axis: block.AxisX, W: 4, H: 4}
	for ch := range west.Values {
		west.Values[ch] = make([]uint8, 16)
	}
	// u=z, v=y
	west.Values[micro.BlockLight][0*4+0] = 100
	west.Values[micro.BlockLight][3*4+0] = 100 // y=3 упирается в камень

	st := NewEngine(DefaultConfig()).Run(occ, Inputs{Chunk: c, Registry: reg, Neighbors: [6]*Plane{block.NegX: west}}, nil)
	bl := st.Field.Values[micro.BlockLight]
	assert.Equal(t, uint8(84), bl[occ.Index(0, 0, 0)])
	assert.Equal(t, uint8(68), bl[occ.Index(1, 0, 0)])
	assert.Equal(t, uint8(0), bl[occ.Index(0, 3, 0)], "закрытая ячейка не засевается")
}

func TestBeaconAttenuatesSlowlyUpward(t *testing.T) {
	c := world.NewChunk(vec.Vec3{}, 8)
	c.Set(4, 0, 4, block.Block{ID: block.BeaconBlockID})
	occ, st := solve(t, c, false)

	b := st.Field.Values[micro.Beacon]
	assert.Equal(t, uint8(255), b[occ.Index(8, 2, 8)])
	assert.Equal(t, uint8(254), b[occ.Index(8, 3, 8)])
	assert.Equal(t, uint8(255-13), b[occ.Index(8, 15, 8)])
	assert.Equal(t, uint8(255), b[occ.Index(10, 1, 8)])
	assert.Equal(t, uint8(255-16), b[occ.Index(11, 1, 8)], "вбок затухание обычное")
	assert.Equal(t, uint8(0), st.Field.Get(micro.BlockLight, occ.Index(10, 1, 8)), "маяк не светит в блочный канал")
}

func TestQuantizeBins(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, uint8(0), cfg.Quantize(0))
	assert.Equal(t, uint8(0), cfg.Quantize(15))
	assert.Equal(t, uint8(17), cfg.Quantize(16))
	assert.Equal(t, uint8(255), cfg.Quantize(255))
	cfg.Bins = 256
	assert.Equal(t, uint8(123), cfg.Quantize(123))
}

func TestExportPlaneAndDownsample(t *testing.T) {
	c := world.NewChunk(vec.Vec3{}, 2)
	c.Set(1, 0, 0, glow())
	_, st := solve(t, c, false)

	planes := st.Field.ExportPlanes()
	for _, f := range block.Faces {
		require.NotNil(t, planes[f])
		assert.Equal(t, f.Axis(), planes[f].Axis)
	}
	// +X слой лежит внутри излучателя, света в нём нет
	assert.Equal(t, uint8(0), planes[block.PosX].Get(micro.BlockLight, 0, 0))
	// -X слой в одном шаге от затравки x=1
	assert.Equal(t, uint8(184), planes[block.NegX].Get(micro.BlockLight, 0, 0))

	ds := st.Field.Downsample()
	assert.Len(t, ds, 8)
	assert.Equal(t, uint8(200), ds[0])
}

func TestSamplerUsesNeighborPlaneAcrossSeam(t *testing.T) {
	f := NewField(4, 4, 4)
	f.Values[micro.Sky][f.index(0, 1, 2)] = 50
	west := &Plane{Axis: block.AxisX, W: 4, H: 4}
	for ch := range west.Values {
		west.Values[ch] = make([]uint8, 16)
	}
	west.Values[micro.BlockLight][1*4+2] = 90

	s := &Sampler{Field: f, Neighbors: [6]*Plane{block.NegX: west}}
	assert.Equal(t, uint8(90), s.FaceLight(block.AxisX, 0, 2, 1))
	assert.Equal(t, uint8(50), s.FaceLight(block.AxisX, 1, 2, 1))
	assert.Equal(t, uint8(0), s.FaceLight(block.AxisX, 4, 2, 1), "без восточного соседа")
}

func TestBucketQueueOrder(t *testing.T) {
	var q bucketQueue
	q.push(1, 10)
	q.push(2, 200)
	q.push(3, 50)
	c, l, ok := q.pop()
	require.True(t, ok)
	assert.Equal(t, 2, c)
	assert.Equal(t, uint8(200), l)
	_, l, _ = q.pop()
	assert.Equal(t, uint8(50), l)
	_, l, _ = q.pop()
	assert.Equal(t, uint8(10), l)
	_, _, ok = q.pop()
	assert.False(t, ok)
}
