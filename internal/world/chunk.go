package world

import (
	"encoding/binary"
	"fmt"
	"hash/fnv"

	"github.com/annel0/voxel-surface/internal/vec"
	"github.com/annel0/voxel-surface/internal/world/block"
)

// Chunk плотная сетка блоков одного чанка.
// Опубликованный в Store чанк неизменяем: правки создают копию (см. Store.SetBlock),
// поэтому задание сборки может держать ссылку без блокировок.
type Chunk struct {
	Coord      vec.Vec3
	SX, SY, SZ int
	blocks     []block.Block
}

// NewChunk создаёт кубический чанк size³, заполненный воздухом
func NewChunk(coord vec.Vec3, size int) *Chunk {
	return NewChunkDims(coord, size, size, size)
}

// NewChunkDims создаёт чанк произвольных размеров
func NewChunkDims(coord vec.Vec3, sx, sy, sz int) *Chunk {
	if sx <= 0 || sy <= 0 || sz <= 0 {
		panic(fmt.Sprintf("некорректные размеры чанка %dx%dx%d", sx, sy, sz))
	}
	return &Chunk{
		Coord:  coord,
		SX:     sx,
		SY:     sy,
		SZ:     sz,
		blocks: make([]block.Block, sx*sy*sz),
	}
}

// Index линейный индекс блока (x быстрее всего, затем z, затем y)
func (c *Chunk) Index(x, y, z int) int {
	return (y*c.SZ+z)*c.SX + x
}

// InBounds лежат ли локальные координаты внутри чанка
func (c *Chunk) InBounds(x, y, z int) bool {
	return x >= 0 && y >= 0 && z >= 0 && x < c.SX && y < c.SY && z < c.SZ
}

// Get возвращает блок, вне границ воздух
func (c *Chunk) Get(x, y, z int) block.Block {
	if !c.InBounds(x, y, z) {
		return block.Air
	}
	return c.blocks[c.Index(x, y, z)]
}

// Set записывает блок. Допустимо только до публикации чанка в Store.
func (c *Chunk) Set(x, y, z int, b block.Block) {
	if !c.InBounds(x, y, z) {
		return
	}
	c.blocks[c.Index(x, y, z)] = b
}

// Fill заполняет бокс [x0,x1)×[y0,y1)×[z0,z1) блоком
func (c *Chunk) Fill(x0, y0, z0, x1, y1, z1 int, b block.Block) {
	for y := y0; y < y1; y++ {
		for z := z0; z < z1; z++ {
			for x := x0; x < x1; x++ {
				c.Set(x, y, z, b)
			}
		}
	}
}

// Clone глубокая копия
func (c *Chunk) Clone() *Chunk {
	cp := *c
	cp.blocks = make([]block.Block, len(c.blocks))
	copy(cp.blocks, c.blocks)
	return &cp
}

// Dims размеры чанка
func (c *Chunk) Dims() (int, int, int) { return c.SX, c.SY, c.SZ }

// Origin мировая координата угла (0,0,0) чанка
func (c *Chunk) Origin() vec.Vec3 {
	return vec.Vec3{X: c.Coord.X * c.SX, Y: c.Coord.Y * c.SY, Z: c.Coord.Z * c.SZ}
}

// CountNonAir число непустых блоков
func (c *Chunk) CountNonAir() int {
	n := 0
	for _, b := range c.blocks {
		if b.ID != block.AirBlockID {
			n++
		}
	}
	return n
}

// Blocks возвращает срез блоков только для чтения (для сериализации)
func (c *Chunk) Blocks() []block.Block { return c.blocks }

// ChunkFromBlocks восстанавливает чанк из среза блоков
func ChunkFromBlocks(coord vec.Vec3, sx, sy, sz int, blocks []block.Block) (*Chunk, error) {
	if len(blocks) != sx*sy*sz {
		return nil, fmt.Errorf("размер данных %d не совпадает с %dx%dx%d", len(blocks), sx, sy, sz)
	}
	c := NewChunkDims(coord, sx, sy, sz)
	copy(c.blocks, blocks)
	return c, nil
}

// Fingerprint хеш содержимого чанка (FNV-64a по размерам и блокам)
func (c *Chunk) Fingerprint() uint64 {
	h := fnv.New64a()
	var buf [6]byte
	binary.LittleEndian.PutUint16(buf[0:], uint16(c.SX))
	binary.LittleEndian.PutUint16(buf[2:], uint16(c.SY))
	binary.LittleEndian.PutUint16(buf[4:], uint16(c.SZ))
	h.Write(buf[:])
	for _, b := range c.blocks {
		binary.LittleEndian.PutUint16(buf[0:], uint16(b.ID))
		binary.LittleEndian.PutUint16(buf[2:], b.State)
		h.Write(buf[:4])
	}
	return h.Sum64()
}
