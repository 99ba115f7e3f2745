package mesher

import (
	"errors"
	"fmt"

	"github.com/annel0/voxel-surface/internal/micro"
	"github.com/annel0/voxel-surface/internal/world/block"
)

// ErrKeyOverflow исчерпан диапазон ключей uint16
var ErrKeyOverflow = errors.New("переполнение таблицы ключей граней")

// FaceGrid паритет граней одной оси. Плоскость p лежит между микро-слоями
// p-1 и p; плоскостей на одну больше, чем слоёв. Раскладка (u,v) совпадает
// с micro.Plane, индекс (p*H+v)*W+u.
type FaceGrid struct {
	Axis   block.Axis
	Planes int
	W, H   int

	Parity micro.Bitset
	// Orient 1, если видимая грань смотрит в положительную сторону оси
	Orient micro.Bitset
	// Key индекс в KeyTable, 0 означает отсутствие грани
	Key []uint16
}

func (g *FaceGrid) reset(axis block.Axis, planes, w, h int) {
	g.Axis, g.Planes, g.W, g.H = axis, planes, w, h
	n := planes * w * h
	g.Parity = g.Parity.Resize(n)
	g.Orient = g.Orient.Resize(n)
	if cap(g.Key) >= n {
		g.Key = g.Key[:n]
		for i := range g.Key {
			g.Key[i] = 0
		}
	} else {
		g.Key = make([]uint16, n)
	}
}

// Index линейный индекс ячейки плоскости
func (g *FaceGrid) Index(plane, u, v int) int {
	return (plane*g.H+v)*g.W + u
}

// Count число установленных граней на плоскостях [from, to)
func (g *FaceGrid) Count(from, to int) int {
	n := 0
	for i := from * g.W * g.H; i < to*g.W*g.H; i++ {
		if g.Parity.Get(i) {
			n++
		}
	}
	return n
}

// Equal совпадают ли паритет, ориентация и ключи
func (g *FaceGrid) Equal(o *FaceGrid) bool {
	if g.Axis != o.Axis || g.Planes != o.Planes || g.W != o.W || g.H != o.H {
		return false
	}
	if !g.Parity.Equal(o.Parity) || !g.Orient.Equal(o.Orient) {
		return false
	}
	for i := range g.Key {
		if g.Key[i] != o.Key[i] {
			return false
		}
	}
	return true
}

// FaceGrids три оси одного набора граней (твёрдые или вода)
type FaceGrids struct {
	Axes [3]FaceGrid
}

// Reset подгоняет сетки под микро-размеры чанка
func (fg *FaceGrids) Reset(mx, my, mz int) {
	fg.Axes[block.AxisX].reset(block.AxisX, mx+1, mz, my)
	fg.Axes[block.AxisY].reset(block.AxisY, my+1, mx, mz)
	fg.Axes[block.AxisZ].reset(block.AxisZ, mz+1, mx, my)
}

// Equal совпадают ли все три оси
func (fg *FaceGrids) Equal(o *FaceGrids) bool {
	for a := range fg.Axes {
		if !fg.Axes[a].Equal(&o.Axes[a]) {
			return false
		}
	}
	return true
}

type keyEntry struct {
	Material block.MaterialID
	Light    uint8
}

// KeyTable сопоставляет паре (материал, уровень яркости) компактный ключ.
// Ключ 0 зарезервирован.
type KeyTable struct {
	index   map[keyEntry]uint16
	entries []keyEntry
}

// NewKeyTable создаёт пустую таблицу
func NewKeyTable() *KeyTable {
	t := &KeyTable{index: make(map[keyEntry]uint16)}
	t.Reset()
	return t
}

// Reset очищает таблицу, сохраняя память
func (t *KeyTable) Reset() {
	for k := range t.index {
		delete(t.index, k)
	}
	t.entries = append(t.entries[:0], keyEntry{})
}

// Key возвращает ключ пары, добавляя её при необходимости
func (t *KeyTable) Key(m block.MaterialID, light uint8) (uint16, error) {
	e := keyEntry{Material: m, Light: light}
	if k, ok := t.index[e]; ok {
		return k, nil
	}
	if len(t.entries) > 0xFFFF {
		return 0, fmt.Errorf("%w: материал %d, яркость %d", ErrKeyOverflow, m, light)
	}
	k := uint16(len(t.entries))
	t.entries = append(t.entries, e)
	t.index[e] = k
	return k, nil
}

// Entry расшифровывает ключ
func (t *KeyTable) Entry(k uint16) (block.MaterialID, uint8) {
	e := t.entries[k]
	return e.Material, e.Light
}

// Len число ключей без зарезервированного
func (t *KeyTable) Len() int { return len(t.entries) - 1 }
