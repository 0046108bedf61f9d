package vulkan

import (
	"log/slog"
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/accel/hal"
	"github.com/vkngwrapper/accel/internal/utils"
	"github.com/vkngwrapper/accel/memutils"
	"github.com/vkngwrapper/core/v2/common"
	"github.com/vkngwrapper/core/v2/core1_0"
	"github.com/vkngwrapper/core/v2/core1_1"
	"github.com/vkngwrapper/core/v2/core1_2"
)

// memory wraps a VkDeviceMemory. Vulkan forbids mapping a memory object twice, so the map state is
// tracked here to fail early with ErrMapFailed.
type memory struct {
	typeID     hal.MemoryTypeID
	properties hal.MemoryPropertyFlags
	size       uint64

	mapLock    utils.OptionalMutex
	vulkan     core1_0.DeviceMemory
	mapped     bool
	mapSegment hal.Segment
	freed      bool
}

var _ hal.Memory = &memory{}

func (m *memory) Size() uint64             { return m.size }
func (m *memory) TypeID() hal.MemoryTypeID { return m.typeID }

func (m *memory) isNonCoherent() bool {
	return m.properties&(hal.MemoryPropertyCPUVisible|hal.MemoryPropertyCoherent) == hal.MemoryPropertyCPUVisible
}

func (m *memory) resolveSegment(segment hal.Segment) (hal.Segment, error) {
	if segment.Size == hal.WholeSize {
		if segment.Offset > m.size {
			return segment, errors.Wrapf(memutils.ErrRangeOverflow, "offset %d is past the end of %d byte memory", segment.Offset, m.size)
		}
		segment.Size = m.size - segment.Offset
	}
	return segment, memutils.CheckRange(segment.Offset, segment.Size, m.size)
}

func (d *Device) memoryFrom(handle hal.Memory) *memory {
	mem, ok := handle.(*memory)
	if !ok {
		panic(errors.AssertionFailedf("memory %T was not created by a vulkan device", handle))
	}
	return mem
}

func (d *Device) AllocateMemory(memoryType hal.MemoryTypeID, size uint64) (hal.Memory, error) {
	d.logger.Debug("Device::AllocateMemory", slog.Int("type", int(memoryType)), slog.Uint64("size", size))

	if size == 0 {
		return nil, errors.Wrap(hal.ErrOutOfDeviceMemory, "allocation size must be greater than 0")
	}

	err := d.heaps.AllocateBlock(memoryType, size)
	if err != nil {
		return nil, err
	}

	allocateInfo := core1_0.MemoryAllocateInfo{
		AllocationSize:  int(size),
		MemoryTypeIndex: int(memoryType),
	}
	// Buffers created with BufferUsageShaderDeviceAddress may be bound to any allocation
	if d.extensions.BufferDeviceAddress != nil && d.extensions.MemoryAllocateFlags {
		allocateInfo.NextOptions = common.NextOptions{
			Next: core1_1.MemoryAllocateFlagsInfo{
				Flags: core1_2.MemoryAllocateDeviceAddress,
			},
		}
	}

	vulkanMemory, res, err := d.device.AllocateMemory(d.callbacks, allocateInfo)
	if err != nil {
		d.heaps.FreeBlock(memoryType, size)
		return nil, translateResult(res, err, "failed to allocate device memory")
	}

	return &memory{
		typeID:     memoryType,
		properties: d.memoryProperties.Types[memoryType].Properties,
		size:       size,
		mapLock: utils.OptionalMutex{
			UseMutex: !d.externallySynchronized,
		},
		vulkan: vulkanMemory,
	}, nil
}

func (d *Device) FreeMemory(handle hal.Memory) {
	mem := d.memoryFrom(handle)
	d.logger.Debug("Device::FreeMemory", slog.Uint64("size", mem.size))

	mem.mapLock.Lock()
	defer mem.mapLock.Unlock()

	if mem.freed {
		panic("memory was freed twice")
	}
	// Freeing implicitly unmaps
	mem.freed = true
	mem.mapped = false
	mem.vulkan.Free(d.callbacks)

	d.heaps.FreeBlock(mem.typeID, mem.size)
}

func (d *Device) MapMemory(handle hal.Memory, segment hal.Segment) ([]byte, error) {
	mem := d.memoryFrom(handle)

	if !mem.properties.Contains(hal.MemoryPropertyCPUVisible) {
		return nil, errors.Wrapf(hal.ErrMapFailed, "memory type %d is not CPU visible", mem.typeID)
	}

	segment, err := mem.resolveSegment(segment)
	if err != nil {
		return nil, hal.Classify(err, hal.ErrMapFailed)
	}

	mem.mapLock.Lock()
	defer mem.mapLock.Unlock()

	if mem.freed {
		return nil, errors.Wrap(hal.ErrMapFailed, "memory has been freed")
	}
	if mem.mapped {
		return nil, errors.Wrap(hal.ErrMapFailed, "memory is already mapped")
	}

	ptr, res, err := mem.vulkan.Map(int(segment.Offset), int(segment.Size), 0)
	if err != nil {
		return nil, hal.Classify(translateResult(res, err, "failed to map memory"), hal.ErrMapFailed)
	}
	if segment.Size > 0 && ptr == nil {
		return nil, errors.Wrap(hal.ErrMapFailed, "driver returned a nil mapping")
	}

	mem.mapped = true
	mem.mapSegment = segment

	if segment.Size == 0 {
		return []byte{}, nil
	}
	return unsafe.Slice((*byte)(ptr), segment.Size), nil
}

func (d *Device) UnmapMemory(handle hal.Memory) {
	mem := d.memoryFrom(handle)

	mem.mapLock.Lock()
	defer mem.mapLock.Unlock()

	if !mem.mapped {
		d.logger.Warn("Device::UnmapMemory called on memory that is not mapped")
		return
	}
	mem.mapped = false
	mem.vulkan.Unmap()
}

func (d *Device) FlushMappedMemoryRanges(ranges []hal.MappedRange) error {
	vulkanRanges, err := d.mappedRanges(ranges)
	if err != nil || len(vulkanRanges) == 0 {
		return err
	}

	res, err := d.device.FlushMappedMemoryRanges(vulkanRanges)
	return translateResult(res, err, "failed to flush mapped memory")
}

func (d *Device) InvalidateMappedMemoryRanges(ranges []hal.MappedRange) error {
	vulkanRanges, err := d.mappedRanges(ranges)
	if err != nil || len(vulkanRanges) == 0 {
		return err
	}

	res, err := d.device.InvalidateMappedMemoryRanges(vulkanRanges)
	return translateResult(res, err, "failed to invalidate mapped memory")
}

// mappedRanges validates ranges and converts the non-coherent ones. Coherent memory needs no cache
// maintenance and is left out.
func (d *Device) mappedRanges(ranges []hal.MappedRange) ([]core1_0.MappedMemoryRange, error) {
	var vulkanRanges []core1_0.MappedMemoryRange

	for index, mappedRange := range ranges {
		mem := d.memoryFrom(mappedRange.Memory)

		segment, err := mem.resolveSegment(mappedRange.Segment)
		if err != nil {
			return nil, errors.Wrapf(err, "range %d", index)
		}

		mem.mapLock.Lock()
		mapped, mapSegment := mem.mapped, mem.mapSegment
		mem.mapLock.Unlock()

		if !mapped {
			return nil, errors.Newf("range %d: memory is not mapped", index)
		}
		if segment.Offset < mapSegment.Offset || segment.Offset+segment.Size > mapSegment.Offset+mapSegment.Size {
			return nil, errors.Newf("range %d: [%d, %d) is outside the mapped range [%d, %d)", index,
				segment.Offset, segment.Offset+segment.Size, mapSegment.Offset, mapSegment.Offset+mapSegment.Size)
		}
		if !mem.isNonCoherent() {
			continue
		}

		end := segment.Offset + segment.Size
		atomSize := d.limits.NonCoherentAtomSize
		if !memutils.IsAligned(segment.Offset, atomSize) || (!memutils.IsAligned(end, atomSize) && end != mem.size) {
			return nil, errors.Newf("range %d: [%d, %d) must be aligned to %d bytes or reach the end of the memory",
				index, segment.Offset, end, atomSize)
		}

		vulkanRanges = append(vulkanRanges, core1_0.MappedMemoryRange{
			Memory: mem.vulkan,
			Offset: int(segment.Offset),
			Size:   int(segment.Size),
		})
	}

	return vulkanRanges, nil
}
