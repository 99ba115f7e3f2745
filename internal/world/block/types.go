package block

import "fmt"

// BlockID представляет идентификатор блока
type BlockID uint16

// MaterialID идентификатор материала; 0 означает «неизвестный»
type MaterialID uint16

// Block блок в сетке чанка: тип и биты состояния
type Block struct {
	ID    BlockID `json:"id"`
	State uint16  `json:"state,omitempty"`
}

// Air пустой блок
var Air = Block{}

// Shape классификация формы блока
type Shape uint8

const (
	ShapeAir Shape = iota
	ShapeCube
	ShapeSlab
	ShapeStairs
	ShapeBoxes
	ShapeWater
	ShapePane
	ShapeFence
	ShapeCarpet
)

var shapeNames = map[Shape]string{
	ShapeAir:    "air",
	ShapeCube:   "cube",
	ShapeSlab:   "slab",
	ShapeStairs: "stairs",
	ShapeBoxes:  "boxes",
	ShapeWater:  "water",
	ShapePane:   "pane",
	ShapeFence:  "fence",
	ShapeCarpet: "carpet",
}

func (s Shape) String() string {
	if n, ok := shapeNames[s]; ok {
		return n
	}
	return fmt.Sprintf("shape(%d)", uint8(s))
}

// ParseShape разбирает имя формы
func ParseShape(name string) (Shape, bool) {
	for s, n := range shapeNames {
		if n == name {
			return s, true
		}
	}
	return ShapeAir, false
}

// IsMicro формы, занимающие часть из 8 микро-ячеек
func (s Shape) IsMicro() bool {
	return s == ShapeSlab || s == ShapeStairs || s == ShapeBoxes
}

// IsSolid формы, участвующие в паритетном мешинге
func (s Shape) IsSolid() bool {
	return s == ShapeCube || s.IsMicro()
}

// IsThin тонкие декорации, обрабатываемые шаблонным проходом
func (s Shape) IsThin() bool {
	return s == ShapePane || s == ShapeFence || s == ShapeCarpet
}

// Биты состояния
const (
	SlabTopBit      uint16 = 1 << 0 // плита в верхней половине
	StairsFacingMsk uint16 = 0x3    // 0=+X 1=-X 2=+Z 3=-Z
	StairsUpsideBit uint16 = 1 << 2 // перевёрнутая лестница
)

// Materials материалы по ролям граней
type Materials struct {
	Top    MaterialID
	Bottom MaterialID
	Side   MaterialID
}

// For материал для роли
func (m Materials) For(role FaceRole) MaterialID {
	switch role {
	case RoleTop:
		return m.Top
	case RoleBottom:
		return m.Bottom
	default:
		return m.Side
	}
}

// Type описание типа блока в реестре
type Type struct {
	ID        BlockID
	Name      string
	Shape     Shape
	Materials Materials
	// BlocksSkylight твёрдая ячейка гасит небесный свет
	BlocksSkylight bool
	// PropagatesLight твёрдая ячейка пропускает блочный свет (стекло)
	PropagatesLight bool
	Emission        uint8
	// Beacon излучение идёт в канал маяка, а не в блочный
	Beacon bool
	// boxOcc маска для ShapeBoxes
	boxOcc uint8
}

// Solid участвует ли блок в паритетном мешинге
func (t *Type) Solid() bool { return t.Shape.IsSolid() }

// Occ8 маска занятости 2×2×2 для состояния. Бит (y<<2)|(z<<1)|x.
func (t *Type) Occ8(state uint16) uint8 {
	switch t.Shape {
	case ShapeCube:
		return 0xFF
	case ShapeSlab:
		if state&SlabTopBit != 0 {
			return MaskY1
		}
		return MaskY0
	case ShapeStairs:
		return stairsOcc(state)
	case ShapeBoxes:
		return t.boxOcc
	default:
		return 0
	}
}

// Маски граней микро-куба
const (
	MaskX0 uint8 = 0x55
	MaskX1 uint8 = 0xAA
	MaskY0 uint8 = 0x0F
	MaskY1 uint8 = 0xF0
	MaskZ0 uint8 = 0x33
	MaskZ1 uint8 = 0xCC
)

func stairsOcc(state uint16) uint8 {
	var half uint8
	switch state & StairsFacingMsk {
	case 0:
		half = MaskX1
	case 1:
		half = MaskX0
	case 2:
		half = MaskZ1
	default:
		half = MaskZ0
	}
	if state&StairsUpsideBit != 0 {
		return MaskY1 | (half & MaskY0)
	}
	return MaskY0 | (half & MaskY1)
}

// OccBit установлен ли бит микро-ячейки (mx,my,mz ∈ {0,1})
func OccBit(occ uint8, mx, my, mz int) bool {
	return occ&(1<<uint(((my&1)<<2)|((mz&1)<<1)|(mx&1))) != 0
}

// MicroBox прямоугольный бокс в полушагах [x0,y0,z0,x1,y1,z1], значения 0..2
type MicroBox [6]uint8

// OccFromBoxes маска занятости по набору боксов
func OccFromBoxes(boxes []MicroBox) uint8 {
	var occ uint8
	for _, b := range boxes {
		for y := b[1]; y < b[4]; y++ {
			for z := b[2]; z < b[5]; z++ {
				for x := b[0]; x < b[3]; x++ {
					occ |= 1 << ((y << 2) | (z << 1) | x)
				}
			}
		}
	}
	return occ
}

var boxesTable = buildBoxesTable()

func buildBoxesTable() [256][]MicroBox {
	var t [256][]MicroBox
	for i := range t {
		t[i] = genBoxesForOcc(uint8(i))
	}
	return t
}

// genBoxesForOcc жадно раскладывает маску на боксы по слоям Y
func genBoxesForOcc(occ uint8) []MicroBox {
	var out []MicroBox
	for y := 0; y < 2; y++ {
		var grid, used [2][2]bool // [z][x]
		for z := 0; z < 2; z++ {
			for x := 0; x < 2; x++ {
				grid[z][x] = OccBit(occ, x, y, z)
			}
		}
		for z := 0; z < 2; z++ {
			for x := 0; x < 2; x++ {
				if !grid[z][x] || used[z][x] {
					continue
				}
				w := 1
				if x == 0 && grid[z][1] && !used[z][1] {
					w = 2
				}
				h := 1
				if z == 0 {
					ok := true
					for xi := x; xi < x+w; xi++ {
						if !grid[1][xi] || used[1][xi] {
							ok = false
							break
						}
					}
					if ok {
						h = 2
					}
				}
				for dz := 0; dz < h; dz++ {
					for dx := 0; dx < w; dx++ {
						used[z+dz][x+dx] = true
					}
				}
				out = append(out, MicroBox{uint8(x), uint8(y), uint8(z), uint8(x + w), uint8(y + 1), uint8(z + h)})
			}
		}
	}
	return out
}

// BoxesForOcc разложение маски на непересекающиеся боксы
func BoxesForOcc(occ uint8) []MicroBox {
	return boxesTable[occ]
}
