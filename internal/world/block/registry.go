package block

import (
	"errors"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// ErrInvalidDefinition ошибка валидации описания блока или материала
var ErrInvalidDefinition = errors.New("некорректное описание блока")

// MaterialCatalog отображение имени материала в MaterialID
type MaterialCatalog struct {
	names  []string
	byName map[string]MaterialID
}

// NewMaterialCatalog создаёт каталог; ID 0 зарезервирован под «unknown»
func NewMaterialCatalog() *MaterialCatalog {
	return &MaterialCatalog{
		names:  []string{"unknown"},
		byName: map[string]MaterialID{"unknown": 0},
	}
}

// Ensure возвращает ID материала, регистрируя новый при необходимости
func (mc *MaterialCatalog) Ensure(name string) MaterialID {
	if id, ok := mc.byName[name]; ok {
		return id
	}
	id := MaterialID(len(mc.names))
	mc.names = append(mc.names, name)
	mc.byName[name] = id
	return id
}

// ID ищет материал по имени
func (mc *MaterialCatalog) ID(name string) (MaterialID, bool) {
	id, ok := mc.byName[name]
	return id, ok
}

// Name имя материала
func (mc *MaterialCatalog) Name(id MaterialID) string {
	if int(id) < len(mc.names) {
		return mc.names[id]
	}
	return "unknown"
}

// Len число материалов вместе с unknown
func (mc *MaterialCatalog) Len() int { return len(mc.names) }

// Registry реестр типов блоков. После построения только читается.
type Registry struct {
	Materials *MaterialCatalog
	types     []*Type
	byName    map[string]BlockID
}

// NewRegistry создаёт пустой реестр
func NewRegistry() *Registry {
	return &Registry{
		Materials: NewMaterialCatalog(),
		byName:    make(map[string]BlockID),
	}
}

// Register добавляет тип в реестр
func (r *Registry) Register(t Type) error {
	if t.Name == "" {
		return fmt.Errorf("%w: пустое имя блока %d", ErrInvalidDefinition, t.ID)
	}
	if _, dup := r.byName[t.Name]; dup {
		return fmt.Errorf("%w: дублирующееся имя %q", ErrInvalidDefinition, t.Name)
	}
	if int(t.ID) < len(r.types) && r.types[t.ID] != nil {
		return fmt.Errorf("%w: дублирующийся id %d (%s)", ErrInvalidDefinition, t.ID, t.Name)
	}
	if t.Emission > 0 && t.Shape == ShapeAir {
		return fmt.Errorf("%w: воздух %q не может излучать свет", ErrInvalidDefinition, t.Name)
	}
	for int(t.ID) >= len(r.types) {
		r.types = append(r.types, nil)
	}
	tt := t
	r.types[t.ID] = &tt
	r.byName[t.Name] = t.ID
	return nil
}

// Get возвращает тип по ID
func (r *Registry) Get(id BlockID) (*Type, bool) {
	if int(id) < len(r.types) && r.types[id] != nil {
		return r.types[id], true
	}
	return nil, false
}

// Lookup тип блока; неизвестные ID трактуются как воздух
func (r *Registry) Lookup(id BlockID) *Type {
	if t, ok := r.Get(id); ok {
		return t
	}
	return &airType
}

var airType = Type{Name: "air", Shape: ShapeAir}

// IDByName ищет ID по имени
func (r *Registry) IDByName(name string) (BlockID, bool) {
	id, ok := r.byName[name]
	return id, ok
}

// MustBlock блок по имени; паникует для неизвестного имени (для тестов и демо)
func (r *Registry) MustBlock(name string, state uint16) Block {
	id, ok := r.byName[name]
	if !ok {
		panic(fmt.Sprintf("неизвестный блок %q", name))
	}
	return Block{ID: id, State: state}
}

// Names отсортированные имена блоков
func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.byName))
	for n := range r.byName {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Shape форма блока
func (r *Registry) Shape(b Block) Shape { return r.Lookup(b.ID).Shape }

// Occ8 маска занятости блока
func (r *Registry) Occ8(b Block) uint8 { return r.Lookup(b.ID).Occ8(b.State) }

// MaterialFor материал грани блока
func (r *Registry) MaterialFor(b Block, f Face) MaterialID {
	return r.Lookup(b.ID).Materials.For(f.Role())
}

// IsSolid участвует ли блок в паритетном мешинге
func (r *Registry) IsSolid(b Block) bool { return r.Lookup(b.ID).Solid() }

// IsFullCube полный куб
func (r *Registry) IsFullCube(b Block) bool { return r.Lookup(b.ID).Shape == ShapeCube }

// Emission уровень излучения и признак маяка
func (r *Registry) Emission(b Block) (uint8, bool) {
	t := r.Lookup(b.ID)
	return t.Emission, t.Beacon
}

//================ YAML =================//

// FileDef корневая структура YAML реестра
type FileDef struct {
	Materials []string   `yaml:"materials"`
	Blocks    []BlockDef `yaml:"blocks"`
}

// MaterialsDef материалы блока; all задаёт значение по умолчанию
type MaterialsDef struct {
	All    string `yaml:"all"`
	Top    string `yaml:"top"`
	Bottom string `yaml:"bottom"`
	Side   string `yaml:"side"`
}

// BlockDef описание блока в YAML
type BlockDef struct {
	ID              BlockID      `yaml:"id"`
	Name            string       `yaml:"name"`
	Shape           string       `yaml:"shape"`
	Materials       MaterialsDef `yaml:"materials"`
	BlocksSkylight  *bool        `yaml:"blocks_skylight"`
	PropagatesLight *bool        `yaml:"propagates_light"`
	Emission        int          `yaml:"emission"`
	Beacon          bool         `yaml:"beacon"`
	Boxes           [][]int      `yaml:"boxes"`
}

// LoadRegistryFile читает реестр из YAML файла
func LoadRegistryFile(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("чтение реестра блоков %s: %w", path, err)
	}
	return LoadRegistry(data)
}

// LoadRegistry разбирает и валидирует YAML реестр
func LoadRegistry(data []byte) (*Registry, error) {
	var def FileDef
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("разбор реестра блоков: %w", err)
	}
	return BuildRegistry(def)
}

// BuildRegistry строит реестр из описания
func BuildRegistry(def FileDef) (*Registry, error) {
	r := NewRegistry()
	declared := make(map[string]bool, len(def.Materials))
	for _, m := range def.Materials {
		if m == "" {
			return nil, fmt.Errorf("%w: пустое имя материала", ErrInvalidDefinition)
		}
		declared[m] = true
		r.Materials.Ensure(m)
	}

	resolve := func(block, name, fallback string) (MaterialID, error) {
		if name == "" {
			name = fallback
		}
		if name == "" {
			return 0, nil
		}
		if !declared[name] {
			return 0, fmt.Errorf("%w: блок %q ссылается на неизвестный материал %q", ErrInvalidDefinition, block, name)
		}
		id, _ := r.Materials.ID(name)
		return id, nil
	}

	for _, bd := range def.Blocks {
		shape, ok := ParseShape(bd.Shape)
		if !ok {
			return nil, fmt.Errorf("%w: блок %q: неизвестная форма %q", ErrInvalidDefinition, bd.Name, bd.Shape)
		}
		if bd.Emission < 0 || bd.Emission > 255 {
			return nil, fmt.Errorf("%w: блок %q: излучение %d вне 0..255", ErrInvalidDefinition, bd.Name, bd.Emission)
		}

		t := Type{
			ID:              bd.ID,
			Name:            bd.Name,
			Shape:           shape,
			BlocksSkylight:  shape.IsSolid(),
			PropagatesLight: !shape.IsSolid(),
			Emission:        uint8(bd.Emission),
			Beacon:          bd.Beacon,
		}
		if bd.BlocksSkylight != nil {
			t.BlocksSkylight = *bd.BlocksSkylight
		}
		if bd.PropagatesLight != nil {
			t.PropagatesLight = *bd.PropagatesLight
		}

		var err error
		if t.Materials.Top, err = resolve(bd.Name, bd.Materials.Top, bd.Materials.All); err != nil {
			return nil, err
		}
		if t.Materials.Bottom, err = resolve(bd.Name, bd.Materials.Bottom, bd.Materials.All); err != nil {
			return nil, err
		}
		if t.Materials.Side, err = resolve(bd.Name, bd.Materials.Side, bd.Materials.All); err != nil {
			return nil, err
		}

		if shape == ShapeBoxes {
			boxes, err := parseBoxes(bd)
			if err != nil {
				return nil, err
			}
			t.boxOcc = OccFromBoxes(boxes)
		} else if len(bd.Boxes) > 0 {
			return nil, fmt.Errorf("%w: блок %q: boxes допустимы только для формы boxes", ErrInvalidDefinition, bd.Name)
		}

		if err := r.Register(t); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func parseBoxes(bd BlockDef) ([]MicroBox, error) {
	if len(bd.Boxes) == 0 {
		return nil, fmt.Errorf("%w: блок %q: форма boxes без боксов", ErrInvalidDefinition, bd.Name)
	}
	out := make([]MicroBox, 0, len(bd.Boxes))
	for i, raw := range bd.Boxes {
		if len(raw) != 6 {
			return nil, fmt.Errorf("%w: блок %q: бокс %d должен иметь 6 координат", ErrInvalidDefinition, bd.Name, i)
		}
		var b MicroBox
		for j, v := range raw {
			if v < 0 || v > 2 {
				return nil, fmt.Errorf("%w: блок %q: бокс %d вне диапазона 0..2", ErrInvalidDefinition, bd.Name, i)
			}
			b[j] = uint8(v)
		}
		if b[0] >= b[3] || b[1] >= b[4] || b[2] >= b[5] {
			return nil, fmt.Errorf("%w: блок %q: бокс %d пустой", ErrInvalidDefinition, bd.Name, i)
		}
		out = append(out, b)
	}
	return out, nil
}
