package soft

import (
	"log/slog"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/accel/hal"
	"github.com/vkngwrapper/accel/memutils"
)

// memory is one device memory allocation. data is what the device sees. Non-coherent host-visible
// memory also has a shadow that stands in for the host cache: mapped writes land in the shadow and only
// reach data when flushed.
type memory struct {
	typeID     hal.MemoryTypeID
	properties hal.MemoryPropertyFlags
	size       uint64
	address    uint64

	data   []byte
	shadow []byte

	mapLock    sync.Mutex
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

// resolveSegment turns a WholeSize segment into a concrete one and bounds checks it
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
		panic(errors.AssertionFailedf("memory %T was not created by a soft device", handle))
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

	properties := d.profile.Memory.Types[memoryType].Properties
	mem := &memory{
		typeID:     memoryType,
		properties: properties,
		size:       size,
		address:    d.reserveAddressRange(size),
		data:       make([]byte, size),
	}
	if mem.isNonCoherent() {
		mem.shadow = make([]byte, size)
	}

	return mem, nil
}

func (d *Device) FreeMemory(handle hal.Memory) {
	mem := d.memoryFrom(handle)
	d.logger.Debug("Device::FreeMemory", slog.Uint64("size", mem.size))

	mem.mapLock.Lock()
	defer mem.mapLock.Unlock()

	if mem.freed {
		panic("memory was freed twice")
	}
	mem.freed = true
	mem.mapped = false
	memutils.DebugPoison(mem.data)

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

	mem.mapped = true
	mem.mapSegment = segment

	view := mem.data
	if mem.shadow != nil {
		// A fresh mapping starts from what the device last wrote
		copy(mem.shadow[segment.Offset:segment.Offset+segment.Size], mem.data[segment.Offset:segment.Offset+segment.Size])
		view = mem.shadow
	}

	return view[segment.Offset : segment.Offset+segment.Size : segment.Offset+segment.Size], nil
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
}

type cacheOperation int

const (
	cacheOperationFlush cacheOperation = iota
	cacheOperationInvalidate
)

func (o cacheOperation) String() string {
	if o == cacheOperationFlush {
		return "flush"
	}
	return "invalidate"
}

func (d *Device) FlushMappedMemoryRanges(ranges []hal.MappedRange) error {
	return d.flushOrInvalidate(ranges, cacheOperationFlush)
}

func (d *Device) InvalidateMappedMemoryRanges(ranges []hal.MappedRange) error {
	return d.flushOrInvalidate(ranges, cacheOperationInvalidate)
}

func (d *Device) flushOrInvalidate(ranges []hal.MappedRange, operation cacheOperation) error {
	atomSize := d.profile.Limits.NonCoherentAtomSize

	for index, mappedRange := range ranges {
		mem := d.memoryFrom(mappedRange.Memory)

		segment, err := mem.resolveSegment(mappedRange.Segment)
		if err != nil {
			return errors.Wrapf(err, "range %d", index)
		}

		err = d.applyCacheOperation(mem, segment, atomSize, operation)
		if err != nil {
			return errors.Wrapf(err, "range %d", index)
		}
	}

	return nil
}

func (d *Device) applyCacheOperation(mem *memory, segment hal.Segment, atomSize uint64, operation cacheOperation) error {
	mem.mapLock.Lock()
	defer mem.mapLock.Unlock()

	if !mem.mapped {
		return errors.Newf("cannot %s memory that is not mapped", operation)
	}
	if segment.Offset < mem.mapSegment.Offset || segment.Offset+segment.Size > mem.mapSegment.Offset+mem.mapSegment.Size {
		return errors.Newf("cannot %s [%d, %d) outside the mapped range [%d, %d)", operation,
			segment.Offset, segment.Offset+segment.Size, mem.mapSegment.Offset, mem.mapSegment.Offset+mem.mapSegment.Size)
	}

	// Coherent memory needs no cache maintenance
	if mem.shadow == nil {
		return nil
	}

	end := segment.Offset + segment.Size
	if !memutils.IsAligned(segment.Offset, atomSize) || (!memutils.IsAligned(end, atomSize) && end != mem.size) {
		return errors.Newf("cannot %s [%d, %d): non-coherent ranges must be aligned to %d bytes or reach the end of the memory",
			operation, segment.Offset, end, atomSize)
	}

	switch operation {
	case cacheOperationFlush:
		copy(mem.data[segment.Offset:end], mem.shadow[segment.Offset:end])
	case cacheOperationInvalidate:
		copy(mem.shadow[segment.Offset:end], mem.data[segment.Offset:end])
	}
	return nil
}
