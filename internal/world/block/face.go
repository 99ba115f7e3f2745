package block

import "github.com/annel0/voxel-surface/internal/vec"

// Face одна из шести сторон вокселя
type Face uint8

const (
	PosY Face = iota
	NegY
	PosX
	NegX
	PosZ
	NegZ
)

// Faces все стороны в каноническом порядке
var Faces = [6]Face{PosY, NegY, PosX, NegX, PosZ, NegZ}

// Axis ось, перпендикулярная грани
type Axis uint8

const (
	AxisX Axis = iota
	AxisY
	AxisZ
)

// FaceRole роль грани при выборе материала
type FaceRole uint8

const (
	RoleTop FaceRole = iota
	RoleBottom
	RoleSide
)

var faceNames = [6]string{"+Y", "-Y", "+X", "-X", "+Z", "-Z"}

var faceDeltas = [6]vec.Vec3{
	{X: 0, Y: 1, Z: 0},
	{X: 0, Y: -1, Z: 0},
	{X: 1, Y: 0, Z: 0},
	{X: -1, Y: 0, Z: 0},
	{X: 0, Y: 0, Z: 1},
	{X: 0, Y: 0, Z: -1},
}

func (f Face) String() string {
	if int(f) < len(faceNames) {
		return faceNames[f]
	}
	return "?"
}

// Delta единичный вектор нормали
func (f Face) Delta() vec.Vec3 { return faceDeltas[f] }

// Opposite противоположная грань
func (f Face) Opposite() Face { return f ^ 1 }

// IsPositive true для +X/+Y/+Z
func (f Face) IsPositive() bool { return f&1 == 0 }

// Axis ось нормали грани
func (f Face) Axis() Axis {
	switch f {
	case PosX, NegX:
		return AxisX
	case PosY, NegY:
		return AxisY
	default:
		return AxisZ
	}
}

// Role роль грани для выбора материала
func (f Face) Role() FaceRole {
	switch f {
	case PosY:
		return RoleTop
	case NegY:
		return RoleBottom
	default:
		return RoleSide
	}
}

// FaceFor возвращает грань по оси и знаку
func FaceFor(axis Axis, positive bool) Face {
	var f Face
	switch axis {
	case AxisX:
		f = PosX
	case AxisY:
		f = PosY
	default:
		f = PosZ
	}
	if !positive {
		f++
	}
	return f
}

// NegativeFaces грани, чьи слои сеются от соседей
var NegativeFaces = [3]Face{NegX, NegY, NegZ}
