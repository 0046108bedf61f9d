package hal

import (
	"encoding/binary"
	"fmt"
)

// Instance is the 64 byte TLAS input record read directly by hardware. The layout matches
// VkAccelerationStructureInstanceKHR and D3D12_RAYTRACING_INSTANCE_DESC:
//
//	bytes  0..47  TransformMatrix
//	bytes 48..51  custom index (low 24 bits) | mask (high 8 bits)
//	bytes 52..55  shader binding table record offset (low 24 bits) | flags (high 8 bits)
//	bytes 56..63  acceleration structure reference
type Instance struct {
	Transform                      TransformMatrix
	instanceCustomIndexAndMask     uint32
	instanceSBTOffsetAndFlags      uint32
	AccelerationStructureReference uint64
}

// NewInstance returns an instance of the structure at reference with an identity transform and all
// packed fields zero
func NewInstance(reference uint64) Instance {
	return Instance{
		Transform:                      IdentityTransform(),
		AccelerationStructureReference: reference,
	}
}

func must24Bits(field string, n uint32) {
	if !fitsIn24Bits(n) {
		panic(fmt.Sprintf("%s %d does not fit in 24 bits", field, n))
	}
}

// SetInstanceCustomIndex sets the value reported to shaders as InstanceCustomIndex. It panics if
// customIndex does not fit in 24 bits.
func (i *Instance) SetInstanceCustomIndex(customIndex uint32) {
	must24Bits("instance custom index", customIndex)
	i.instanceCustomIndexAndMask = replaceBits(i.instanceCustomIndexAndMask, customIndex, low24Mask)
}

func (i *Instance) InstanceCustomIndex() uint32 {
	return i.instanceCustomIndexAndMask & low24Mask
}

// SetMask sets the visibility mask ANDed with a ray's cull mask
func (i *Instance) SetMask(mask uint8) {
	i.instanceCustomIndexAndMask = replaceBits(i.instanceCustomIndexAndMask, uint32(mask)<<high8Shift, high8Mask)
}

func (i *Instance) Mask() uint8 {
	return uint8(i.instanceCustomIndexAndMask >> high8Shift)
}

// SetInstanceShaderBindingTableRecordOffset panics if offset does not fit in 24 bits
func (i *Instance) SetInstanceShaderBindingTableRecordOffset(offset uint32) {
	must24Bits("shader binding table record offset", offset)
	i.instanceSBTOffsetAndFlags = replaceBits(i.instanceSBTOffsetAndFlags, offset, low24Mask)
}

func (i *Instance) InstanceShaderBindingTableRecordOffset() uint32 {
	return i.instanceSBTOffsetAndFlags & low24Mask
}

func (i *Instance) SetFlags(flags InstanceFlags) {
	i.instanceSBTOffsetAndFlags = replaceBits(i.instanceSBTOffsetAndFlags, uint32(flags)<<high8Shift, high8Mask)
}

func (i *Instance) Flags() InstanceFlags {
	return InstanceFlags(i.instanceSBTOffsetAndFlags >> high8Shift)
}

// Encode writes the 64 byte little-endian record. It panics if dst is too short.
func (i *Instance) Encode(dst []byte) {
	_ = dst[InstanceSize-1]
	i.Transform.Encode(dst)
	binary.LittleEndian.PutUint32(dst[48:], i.instanceCustomIndexAndMask)
	binary.LittleEndian.PutUint32(dst[52:], i.instanceSBTOffsetAndFlags)
	binary.LittleEndian.PutUint64(dst[56:], i.AccelerationStructureReference)
}

func DecodeInstance(src []byte) Instance {
	_ = src[InstanceSize-1]
	return Instance{
		Transform:                      DecodeTransformMatrix(src),
		instanceCustomIndexAndMask:     binary.LittleEndian.Uint32(src[48:]),
		instanceSBTOffsetAndFlags:      binary.LittleEndian.Uint32(src[52:]),
		AccelerationStructureReference: binary.LittleEndian.Uint64(src[56:]),
	}
}

// EncodeInstances packs instances back to back, ready to upload as GeometryInstances input
func EncodeInstances(instances []Instance) []byte {
	data := make([]byte, len(instances)*InstanceSize)
	for index := range instances {
		instances[index].Encode(data[index*InstanceSize:])
	}
	return data
}

// EncodeAabbs packs boxes back to back with a stride of AabbPositionsSize
func EncodeAabbs(boxes []AabbPositions) []byte {
	data := make([]byte, len(boxes)*AabbPositionsSize)
	for index, box := range boxes {
		box.Encode(data[index*AabbPositionsSize:])
	}
	return data
}
