package hal

import (
	"encoding/binary"
	"math"
)

const (
	TransformMatrixSize = 48
	AabbPositionsSize   = 24
	InstanceSize        = 64
)

// TransformMatrix is a row-major 3x4 affine transform, matching VkTransformMatrixKHR and
// D3D12_RAYTRACING_INSTANCE_DESC.Transform. The fourth column is the translation.
type TransformMatrix [3][4]float32

func IdentityTransform() TransformMatrix {
	return TransformMatrix{
		{1, 0, 0, 0},
		{0, 1, 0, 0},
		{0, 0, 1, 0},
	}
}

func TranslationTransform(x, y, z float32) TransformMatrix {
	m := IdentityTransform()
	m[0][3] = x
	m[1][3] = y
	m[2][3] = z
	return m
}

func ScaleTransform(x, y, z float32) TransformMatrix {
	return TransformMatrix{
		{x, 0, 0, 0},
		{0, y, 0, 0},
		{0, 0, z, 0},
	}
}

func (m TransformMatrix) TransformPoint(p [3]float32) [3]float32 {
	var out [3]float32
	for row := 0; row < 3; row++ {
		out[row] = m[row][0]*p[0] + m[row][1]*p[1] + m[row][2]*p[2] + m[row][3]
	}
	return out
}

// TransformVector applies the linear part only
func (m TransformMatrix) TransformVector(v [3]float32) [3]float32 {
	var out [3]float32
	for row := 0; row < 3; row++ {
		out[row] = m[row][0]*v[0] + m[row][1]*v[1] + m[row][2]*v[2]
	}
	return out
}

// Mul returns the transform applying other first, then m
func (m TransformMatrix) Mul(other TransformMatrix) TransformMatrix {
	var out TransformMatrix
	for row := 0; row < 3; row++ {
		for col := 0; col < 4; col++ {
			out[row][col] = m[row][0]*other[0][col] + m[row][1]*other[1][col] + m[row][2]*other[2][col]
		}
		out[row][3] += m[row][3]
	}
	return out
}

// Inverse returns the inverse affine transform. It is false if the linear part is singular.
func (m TransformMatrix) Inverse() (TransformMatrix, bool) {
	a, b, c := m[0][0], m[0][1], m[0][2]
	d, e, f := m[1][0], m[1][1], m[1][2]
	g, h, i := m[2][0], m[2][1], m[2][2]

	c00 := e*i - f*h
	c01 := f*g - d*i
	c02 := d*h - e*g
	det := a*c00 + b*c01 + c*c02
	if det == 0 || math.IsNaN(float64(det)) {
		return TransformMatrix{}, false
	}
	inv := 1 / det

	var out TransformMatrix
	out[0][0] = c00 * inv
	out[0][1] = (c*h - b*i) * inv
	out[0][2] = (b*f - c*e) * inv
	out[1][0] = c01 * inv
	out[1][1] = (a*i - c*g) * inv
	out[1][2] = (c*d - a*f) * inv
	out[2][0] = c02 * inv
	out[2][1] = (b*g - a*h) * inv
	out[2][2] = (a*e - b*d) * inv

	t := [3]float32{m[0][3], m[1][3], m[2][3]}
	for row := 0; row < 3; row++ {
		out[row][3] = -(out[row][0]*t[0] + out[row][1]*t[1] + out[row][2]*t[2])
	}
	return out, true
}

// Encode writes the 48 byte little-endian form of m. It panics if dst is too short.
func (m TransformMatrix) Encode(dst []byte) {
	_ = dst[TransformMatrixSize-1]
	for row := 0; row < 3; row++ {
		for col := 0; col < 4; col++ {
			binary.LittleEndian.PutUint32(dst[(row*4+col)*4:], math.Float32bits(m[row][col]))
		}
	}
}

func DecodeTransformMatrix(src []byte) TransformMatrix {
	_ = src[TransformMatrixSize-1]
	var m TransformMatrix
	for row := 0; row < 3; row++ {
		for col := 0; col < 4; col++ {
			m[row][col] = math.Float32frombits(binary.LittleEndian.Uint32(src[(row*4+col)*4:]))
		}
	}
	return m
}

// AabbPositions is an axis aligned box, matching VkAabbPositionsKHR and D3D12_RAYTRACING_AABB
type AabbPositions struct {
	Min [3]float32
	Max [3]float32
}

// EmptyAabb returns a box that contains nothing and is the identity for Union
func EmptyAabb() AabbPositions {
	inf := float32(math.Inf(1))
	return AabbPositions{
		Min: [3]float32{inf, inf, inf},
		Max: [3]float32{-inf, -inf, -inf},
	}
}

func (a AabbPositions) IsEmpty() bool {
	return a.Min[0] > a.Max[0] || a.Min[1] > a.Max[1] || a.Min[2] > a.Max[2]
}

func (a AabbPositions) Union(other AabbPositions) AabbPositions {
	for axis := 0; axis < 3; axis++ {
		a.Min[axis] = min(a.Min[axis], other.Min[axis])
		a.Max[axis] = max(a.Max[axis], other.Max[axis])
	}
	return a
}

func (a AabbPositions) Extend(p [3]float32) AabbPositions {
	return a.Union(AabbPositions{Min: p, Max: p})
}

func (a AabbPositions) Centroid() [3]float32 {
	return [3]float32{
		(a.Min[0] + a.Max[0]) * 0.5,
		(a.Min[1] + a.Max[1]) * 0.5,
		(a.Min[2] + a.Max[2]) * 0.5,
	}
}

// SurfaceArea returns the box's surface area, or 0 for an empty box
func (a AabbPositions) SurfaceArea() float32 {
	if a.IsEmpty() {
		return 0
	}
	dx := a.Max[0] - a.Min[0]
	dy := a.Max[1] - a.Min[1]
	dz := a.Max[2] - a.Min[2]
	return 2 * (dx*dy + dy*dz + dz*dx)
}

// Transform returns the bounds of the box after applying m
func (a AabbPositions) Transform(m TransformMatrix) AabbPositions {
	if a.IsEmpty() {
		return a
	}

	var out AabbPositions
	for row := 0; row < 3; row++ {
		out.Min[row] = m[row][3]
		out.Max[row] = m[row][3]
		for col := 0; col < 3; col++ {
			lo := m[row][col] * a.Min[col]
			hi := m[row][col] * a.Max[col]
			out.Min[row] += min(lo, hi)
			out.Max[row] += max(lo, hi)
		}
	}
	return out
}

// Encode writes the 24 byte little-endian form of a. It panics if dst is too short.
func (a AabbPositions) Encode(dst []byte) {
	_ = dst[AabbPositionsSize-1]
	for axis := 0; axis < 3; axis++ {
		binary.LittleEndian.PutUint32(dst[axis*4:], math.Float32bits(a.Min[axis]))
		binary.LittleEndian.PutUint32(dst[12+axis*4:], math.Float32bits(a.Max[axis]))
	}
}

func DecodeAabbPositions(src []byte) AabbPositions {
	_ = src[AabbPositionsSize-1]
	var a AabbPositions
	for axis := 0; axis < 3; axis++ {
		a.Min[axis] = math.Float32frombits(binary.LittleEndian.Uint32(src[axis*4:]))
		a.Max[axis] = math.Float32frombits(binary.LittleEndian.Uint32(src[12+axis*4:]))
	}
	return a
}
