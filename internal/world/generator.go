package world

import (
	"math/rand"

	"github.com/annel0/voxel-surface/internal/util"
	"github.com/annel0/voxel-surface/internal/vec"
	"github.com/annel0/voxel-surface/internal/world/block"
)

// Generator простой генератор рельефа для демо и нагрузочных тестов
type Generator struct {
	Seed       int64
	ChunkSize  int
	NoiseScale float64 // Масштаб шума высот
	BaseHeight int     // Средняя высота поверхности
	Amplitude  int     // Размах высот
	SeaLevel   int
	CaveScale  float64
	// LampChance вероятность светящегося блока в пещере
	LampChance float64

	noise *util.Noise
}

// NewGenerator создаёт генератор
func NewGenerator(seed int64, chunkSize int) *Generator {
	return &Generator{
		Seed:       seed,
		ChunkSize:  chunkSize,
		NoiseScale: 0.03,
		BaseHeight: chunkSize,
		Amplitude:  chunkSize / 2,
		SeaLevel:   chunkSize - 2,
		CaveScale:  0.08,
		LampChance: 0.002,
		noise:      util.NewNoise(seed),
	}
}

// heightAt высота поверхности в мировой колонке
func (g *Generator) heightAt(wx, wz int) int {
	h := g.noise.Noise2D(float64(wx)*g.NoiseScale, float64(wz)*g.NoiseScale)
	return g.BaseHeight + int((h-0.5)*2*float64(g.Amplitude))
}

// Generate строит чанк по координатам
func (g *Generator) Generate(coord vec.Vec3) *Chunk {
	s := g.ChunkSize
	c := NewChunk(coord, s)
	origin := c.Origin()

	// Детерминированный сид на чанк
	rng := rand.New(rand.NewSource(g.Seed + int64(coord.X*31) + int64(coord.Y*17) + int64(coord.Z*13)))

	for z := 0; z < s; z++ {
		for x := 0; x < s; x++ {
			wx, wz := origin.X+x, origin.Z+z
			height := g.heightAt(wx, wz)
			for y := 0; y < s; y++ {
				wy := origin.Y + y
				c.Set(x, y, z, g.blockAt(wx, wy, wz, height, rng))
			}
		}
	}
	return c
}

func (g *Generator) blockAt(wx, wy, wz, height int, rng *rand.Rand) block.Block {
	switch {
	case wy > height:
		if wy <= g.SeaLevel {
			return block.Block{ID: block.WaterBlockID}
		}
		if wy == height+1 && height > g.SeaLevel && rng.Float64() < 0.02 {
			return block.Block{ID: block.SlabBlockID}
		}
		return block.Air
	case wy == height:
		if height <= g.SeaLevel+1 {
			return block.Block{ID: block.SandBlockID}
		}
		return block.Block{ID: block.GrassBlockID}
	case wy > height-3:
		return block.Block{ID: block.DirtBlockID}
	}

	if wy > 1 && g.noise.Noise3D(float64(wx)*g.CaveScale, float64(wy)*g.CaveScale, float64(wz)*g.CaveScale) > 0.72 {
		if rng.Float64() < g.LampChance {
			return block.Block{ID: block.GlowstoneBlockID}
		}
		return block.Air
	}
	return block.Block{ID: block.StoneBlockID}
}

// Populate генерирует чанки в кубе [-radius, radius] по X/Z и [0, height) по Y
func (g *Generator) Populate(store *Store, radius, height int) []vec.Vec3 {
	var coords []vec.Vec3
	for cy := 0; cy < height; cy++ {
		for cz := -radius; cz <= radius; cz++ {
			for cx := -radius; cx <= radius; cx++ {
				coord := vec.Vec3{X: cx, Y: cy, Z: cz}
				store.Put(g.Generate(coord))
				coords = append(coords, coord)
			}
		}
	}
	return coords
}
