package hal

import "fmt"

// Format is a vertex format usable as triangle geometry input
type Format int32

const (
	FormatUndefined Format = iota
	FormatR32G32Sfloat
	FormatR32G32B32Sfloat
	FormatR16G16Sfloat
	FormatR16G16B16A16Sfloat
	FormatR16G16Snorm
	FormatR16G16B16A16Snorm
)

var formatNames = map[Format]string{
	FormatUndefined:          "Undefined",
	FormatR32G32Sfloat:       "R32G32Sfloat",
	FormatR32G32B32Sfloat:    "R32G32B32Sfloat",
	FormatR16G16Sfloat:       "R16G16Sfloat",
	FormatR16G16B16A16Sfloat: "R16G16B16A16Sfloat",
	FormatR16G16Snorm:        "R16G16Snorm",
	FormatR16G16B16A16Snorm:  "R16G16B16A16Snorm",
}

func (f Format) String() string {
	name, ok := formatNames[f]
	if !ok {
		return fmt.Sprintf("Format(%d)", int32(f))
	}
	return name
}

// Size returns the number of bytes one vertex of this format occupies, or 0 for unknown formats
func (f Format) Size() uint64 {
	switch f {
	case FormatR32G32Sfloat, FormatR16G16B16A16Sfloat, FormatR16G16B16A16Snorm:
		return 8
	case FormatR32G32B32Sfloat:
		return 12
	case FormatR16G16Sfloat, FormatR16G16Snorm:
		return 4
	}
	return 0
}

// IndexType is the width of triangle indices
type IndexType int32

const (
	IndexTypeU16 IndexType = iota
	IndexTypeU32
)

func (t IndexType) String() string {
	switch t {
	case IndexTypeU16:
		return "U16"
	case IndexTypeU32:
		return "U32"
	}
	return fmt.Sprintf("IndexType(%d)", int32(t))
}

func (t IndexType) Size() uint64 {
	if t == IndexTypeU16 {
		return 2
	}
	return 4
}
