package block

import (
	_ "embed"
	"fmt"
)

// Константы ID блоков встроенного реестра
const (
	AirBlockID         BlockID = 0
	StoneBlockID       BlockID = 1
	GrassBlockID       BlockID = 2
	WaterBlockID       BlockID = 3
	SandBlockID        BlockID = 4
	DirtBlockID        BlockID = 5
	GlassBlockID       BlockID = 6
	SlabBlockID        BlockID = 7
	StairsBlockID      BlockID = 8
	GlowstoneBlockID   BlockID = 9
	LampBlockID        BlockID = 10
	BeaconBlockID      BlockID = 11
	GlassPaneBlockID   BlockID = 12
	FenceBlockID       BlockID = 13
	CarpetBlockID      BlockID = 14
	BrickPillarBlockID BlockID = 15
)

//go:embed default_blocks.yaml
var defaultBlocksYAML []byte

// DefaultRegistry строит встроенный реестр блоков
func DefaultRegistry() *Registry {
	r, err := LoadRegistry(defaultBlocksYAML)
	if err != nil {
		panic(fmt.Sprintf("встроенный реестр блоков некорректен: %v", err))
	}
	return r
}
