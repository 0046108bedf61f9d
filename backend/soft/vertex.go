package soft

import (
	"encoding/binary"
	"math"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/accel/hal"
)

func float32bits(f float32) uint32     { return math.Float32bits(f) }
func float32frombits(b uint32) float32 { return math.Float32frombits(b) }

// halfToFloat32 widens an IEEE 754 binary16 value
func halfToFloat32(h uint16) float32 {
	sign := uint32(h>>15) << 31
	exponent := uint32(h>>10) & 0x1F
	mantissa := uint32(h) & 0x3FF

	switch {
	case exponent == 0 && mantissa == 0:
		return math.Float32frombits(sign)
	case exponent == 0:
		// subnormal: renormalize into a float32 normal
		exponent = 127 - 15 + 1
		for mantissa&0x400 == 0 {
			mantissa <<= 1
			exponent--
		}
		mantissa &= 0x3FF
		return math.Float32frombits(sign | exponent<<23 | mantissa<<13)
	case exponent == 0x1F:
		return math.Float32frombits(sign | 0xFF<<23 | mantissa<<13)
	}
	return math.Float32frombits(sign | (exponent+127-15)<<23 | mantissa<<13)
}

func snorm16ToFloat32(v uint16) float32 {
	return max(float32(int16(v))/32767, -1)
}

// decodeVertex reads the position stored at the start of src. Two component formats have z = 0.
func decodeVertex(format hal.Format, src []byte) ([3]float32, error) {
	if uint64(len(src)) < format.Size() {
		return [3]float32{}, errors.Newf("%d bytes cannot hold a %s vertex", len(src), format)
	}

	var out [3]float32
	switch format {
	case hal.FormatR32G32B32Sfloat:
		for axis := 0; axis < 3; axis++ {
			out[axis] = math.Float32frombits(binary.LittleEndian.Uint32(src[axis*4:]))
		}
	case hal.FormatR32G32Sfloat:
		for axis := 0; axis < 2; axis++ {
			out[axis] = math.Float32frombits(binary.LittleEndian.Uint32(src[axis*4:]))
		}
	case hal.FormatR16G16B16A16Sfloat:
		for axis := 0; axis < 3; axis++ {
			out[axis] = halfToFloat32(binary.LittleEndian.Uint16(src[axis*2:]))
		}
	case hal.FormatR16G16Sfloat:
		for axis := 0; axis < 2; axis++ {
			out[axis] = halfToFloat32(binary.LittleEndian.Uint16(src[axis*2:]))
		}
	case hal.FormatR16G16B16A16Snorm:
		for axis := 0; axis < 3; axis++ {
			out[axis] = snorm16ToFloat32(binary.LittleEndian.Uint16(src[axis*2:]))
		}
	case hal.FormatR16G16Snorm:
		for axis := 0; axis < 2; axis++ {
			out[axis] = snorm16ToFloat32(binary.LittleEndian.Uint16(src[axis*2:]))
		}
	default:
		return out, errors.Newf("unsupported vertex format %s", format)
	}
	return out, nil
}
