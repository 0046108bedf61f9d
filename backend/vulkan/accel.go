package vulkan

import (
	"fmt"
	"log/slog"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/accel/hal"
	"github.com/vkngwrapper/accel/memutils"
)

type accelerationStructure struct {
	structureType hal.AccelerationStructureType
	buffer        *buffer
	offset        uint64
	size          uint64

	handle  Handle
	address uint64
	name    string
}

var _ hal.AccelerationStructure = &accelerationStructure{}

func (a *accelerationStructure) Type() hal.AccelerationStructureType { return a.structureType }
func (a *accelerationStructure) Size() uint64                        { return a.size }

func (a *accelerationStructure) String() string {
	if a.name != "" {
		return a.name
	}
	return fmt.Sprintf("%s@%#x", a.structureType, a.address)
}

// storageAddress is the device address of the structure's region of its backing buffer, which
// serialized blobs are read from and written to
func (a *accelerationStructure) storageAddress() uint64 {
	return a.buffer.address + a.offset
}

func (d *Device) structureFrom(handle hal.AccelerationStructure) *accelerationStructure {
	as, ok := handle.(*accelerationStructure)
	if !ok {
		panic(errors.AssertionFailedf("acceleration structure %T was not created by a vulkan device", handle))
	}
	return as
}

// translateGeometry converts desc to its Vulkan form. Buffers are resolved to device addresses, so the
// result of a size query built from unbound buffers simply carries zero addresses, which Vulkan ignores.
func (d *Device) translateGeometry(desc *hal.GeometryDesc, structureType hal.AccelerationStructureType) BuildGeometryInfo {
	info := BuildGeometryInfo{
		Type:       uint32(structureType),
		Flags:      uint32(desc.Flags),
		Mode:       BuildModeBuild,
		Geometries: make([]GeometryInfo, 0, len(desc.Geometries)),
	}

	for _, geometry := range desc.Geometries {
		vulkanGeometry := GeometryInfo{
			Flags: uint32(geometry.Flags),
		}

		switch data := geometry.Data.(type) {
		case hal.GeometryTriangles:
			vulkanGeometry.Type = GeometryTypeTriangles
			vulkanGeometry.Triangles = TrianglesData{
				VertexFormat: vertexFormats[data.VertexFormat],
				VertexData:   d.addressAt(data.VertexBuffer, data.VertexBufferOffset),
				VertexStride: data.VertexBufferStride,
				MaxVertex:    data.MaxVertex,
				IndexType:    indexTypeNone,
			}
			if data.Index != nil {
				vulkanGeometry.Triangles.IndexType = indexTypeUint16
				if data.Index.Type == hal.IndexTypeU32 {
					vulkanGeometry.Triangles.IndexType = indexTypeUint32
				}
				vulkanGeometry.Triangles.IndexData = d.addressAt(data.Index.Buffer, data.Index.Offset)
			}
			if data.Transform != nil {
				vulkanGeometry.Triangles.TransformData = d.addressAt(data.Transform.Buffer, data.Transform.Offset)
			}
		case hal.GeometryAabbs:
			vulkanGeometry.Type = GeometryTypeAabbs
			vulkanGeometry.Aabbs = AabbsData{
				Data:   d.addressAt(data.Buffer, data.BufferOffset),
				Stride: data.BufferStride,
			}
		case hal.GeometryInstances:
			vulkanGeometry.Type = GeometryTypeInstances
			vulkanGeometry.Instances = InstancesData{
				Data: d.addressAt(data.Buffer, data.BufferOffset),
			}
		}

		info.Geometries = append(info.Geometries, vulkanGeometry)
	}

	return info
}

func (d *Device) GetAccelerationStructureBuildRequirements(desc *hal.GeometryDesc, maxPrimitiveCounts []uint32) hal.SizeRequirements {
	if len(maxPrimitiveCounts) != len(desc.Geometries) {
		panic(fmt.Sprintf("%d primitive counts were provided for %d geometries", len(maxPrimitiveCounts), len(desc.Geometries)))
	}
	desc.MustValidateShape()

	sizes := d.accel.GetBuildSizes(d.translateGeometry(desc, desc.Type), maxPrimitiveCounts)

	requirements := hal.SizeRequirements{
		AccelerationStructureSize: sizes.AccelerationStructureSize,
		BuildScratchSize:          sizes.BuildScratchSize,
	}
	if desc.Flags.Contains(hal.BuildAllowUpdate) {
		requirements.UpdateScratchSize = sizes.UpdateScratchSize
	}
	return requirements
}

func (d *Device) CreateAccelerationStructure(desc hal.AccelerationStructureCreateDesc) (hal.AccelerationStructure, error) {
	d.logger.Debug("Device::CreateAccelerationStructure",
		slog.String("type", desc.Type.String()),
		slog.Uint64("offset", desc.BufferOffset),
		slog.Uint64("size", desc.Size))

	if desc.Buffer == nil {
		return nil, errors.Wrap(hal.ErrCreation, "acceleration structure needs a backing buffer")
	}
	buf := d.bufferFrom(desc.Buffer)

	if desc.Type < hal.AccelerationStructureTypeTopLevel || desc.Type > hal.AccelerationStructureTypeGeneric {
		return nil, errors.Wrapf(hal.ErrCreation, "unknown acceleration structure type %s", desc.Type)
	}
	if desc.Size == 0 {
		return nil, errors.Wrap(hal.ErrCreation, "acceleration structure size must be greater than 0")
	}
	if !memutils.IsAligned(desc.BufferOffset, hal.AccelerationStructureAlignment) {
		return nil, errors.Wrapf(hal.ErrCreation, "buffer offset %d is not a multiple of %d", desc.BufferOffset, hal.AccelerationStructureAlignment)
	}
	if !buf.usage.Contains(hal.BufferUsageAccelerationStructureStorage) {
		return nil, errors.Wrapf(hal.ErrCreation, "buffer usage %s lacks BufferUsageAccelerationStructureStorage", buf.usage)
	}
	if err := memutils.CheckRange(desc.BufferOffset, desc.Size, buf.size); err != nil {
		return nil, hal.Classify(err, hal.ErrCreation)
	}
	if _, _, bound := buf.binding(); !bound {
		return nil, errors.Wrap(hal.ErrCreation, "backing buffer is not bound to memory")
	}

	handle, res, err := d.accel.CreateAccelerationStructure(CreateInfo{
		Buffer: buf.vulkan,
		Offset: desc.BufferOffset,
		Size:   desc.Size,
		Type:   uint32(desc.Type),
	})
	if err != nil {
		return nil, hal.Classify(translateResult(res, err, "failed to create acceleration structure"), hal.ErrCreation)
	}

	return &accelerationStructure{
		structureType: desc.Type,
		buffer:        buf,
		offset:        desc.BufferOffset,
		size:          desc.Size,
		handle:        handle,
		address:       d.accel.GetDeviceAddress(handle),
	}, nil
}

func (d *Device) GetAccelerationStructureAddress(handle hal.AccelerationStructure) uint64 {
	return d.structureFrom(handle).address
}

func (d *Device) SetAccelerationStructureName(handle hal.AccelerationStructure, name string) {
	d.structureFrom(handle).name = name
}

func (d *Device) DestroyAccelerationStructure(handle hal.AccelerationStructure) {
	as := d.structureFrom(handle)
	d.logger.Debug("Device::DestroyAccelerationStructure", slog.String("structure", as.String()))

	if as.handle == 0 {
		panic("acceleration structure was destroyed twice")
	}
	d.accel.DestroyAccelerationStructure(as.handle)
	as.handle = 0
}
