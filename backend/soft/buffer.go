package soft

import (
	"log/slog"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/accel/hal"
	"github.com/vkngwrapper/accel/memutils"
)

const (
	bufferAlignment              uint64 = 64
	bufferSizeGranularity        uint64 = 4
	accelerationStorageAlignment uint64 = hal.AccelerationStructureAlignment
)

type buffer struct {
	size  uint64
	usage hal.BufferUsage

	lock      sync.Mutex
	name      string
	memory    *memory
	offset    uint64
	destroyed bool
}

var _ hal.Buffer = &buffer{}

func (b *buffer) Size() uint64           { return b.size }
func (b *buffer) Usage() hal.BufferUsage { return b.usage }

func (b *buffer) binding() (*memory, uint64, bool) {
	b.lock.Lock()
	defer b.lock.Unlock()

	return b.memory, b.offset, b.memory != nil
}

// bytes returns the device view of the whole buffer. It fails if the buffer is unbound, destroyed or
// its memory was freed, which on real hardware would be a GPU page fault.
func (b *buffer) bytes() ([]byte, error) {
	b.lock.Lock()
	defer b.lock.Unlock()

	if b.destroyed {
		return nil, errors.Newf("buffer %q has been destroyed", b.name)
	}
	if b.memory == nil {
		return nil, errors.Newf("buffer %q is not bound to memory", b.name)
	}
	if b.memory.freed {
		return nil, errors.Newf("memory of buffer %q has been freed", b.name)
	}
	return b.memory.data[b.offset : b.offset+b.size : b.offset+b.size], nil
}

// region returns size bytes at offset within the buffer's device view
func (b *buffer) region(offset, size uint64) ([]byte, error) {
	data, err := b.bytes()
	if err != nil {
		return nil, err
	}
	if err := memutils.CheckRange(offset, size, uint64(len(data))); err != nil {
		return nil, errors.Wrapf(err, "buffer %q", b.name)
	}
	return data[offset : offset+size], nil
}

func (b *buffer) requirements(typeCount int) hal.Requirements {
	alignment := bufferAlignment
	if b.usage.Contains(hal.BufferUsageAccelerationStructureStorage) {
		alignment = accelerationStorageAlignment
	}

	return hal.Requirements{
		Size:      memutils.AlignUp(b.size, bufferSizeGranularity),
		Alignment: alignment,
		TypeMask:  uint32(1)<<typeCount - 1,
	}
}

func (d *Device) bufferFrom(handle hal.Buffer) *buffer {
	buf, ok := handle.(*buffer)
	if !ok {
		panic(errors.AssertionFailedf("buffer %T was not created by a soft device", handle))
	}
	return buf
}

func (d *Device) CreateBuffer(size uint64, usage hal.BufferUsage) (hal.Buffer, error) {
	d.logger.Debug("Device::CreateBuffer", slog.Uint64("size", size), slog.String("usage", usage.String()))

	if size == 0 {
		return nil, errors.Wrap(hal.ErrCreation, "buffer size must be greater than 0")
	}
	if !usage.IsValid() {
		return nil, errors.Wrapf(hal.ErrCreation, "unsupported buffer usage %#x", int32(usage))
	}

	return &buffer{
		size:  size,
		usage: usage,
	}, nil
}

func (d *Device) GetBufferRequirements(handle hal.Buffer) hal.Requirements {
	return d.bufferFrom(handle).requirements(len(d.profile.Memory.Types))
}

func (d *Device) BindBufferMemory(memoryHandle hal.Memory, offset uint64, bufferHandle hal.Buffer) error {
	mem := d.memoryFrom(memoryHandle)
	buf := d.bufferFrom(bufferHandle)
	requirements := buf.requirements(len(d.profile.Memory.Types))

	buf.lock.Lock()
	defer buf.lock.Unlock()

	if buf.destroyed {
		return errors.Wrap(hal.ErrBind, "buffer has been destroyed")
	}
	if buf.memory != nil {
		return errors.Wrapf(hal.ErrBind, "buffer %q is already bound", buf.name)
	}
	if requirements.TypeMask&(1<<mem.typeID) == 0 {
		return errors.Wrapf(hal.ErrBind, "memory type %d is not allowed by mask %#b", mem.typeID, requirements.TypeMask)
	}
	if !memutils.IsAligned(offset, requirements.Alignment) {
		return errors.Wrapf(hal.ErrBind, "offset %d is not aligned to %d", offset, requirements.Alignment)
	}
	if err := memutils.CheckRange(offset, requirements.Size, mem.size); err != nil {
		return hal.Classify(errors.Wrap(err, "memory is too small for the buffer"), hal.ErrBind)
	}

	mem.mapLock.Lock()
	freed := mem.freed
	mem.mapLock.Unlock()
	if freed {
		return errors.Wrap(hal.ErrBind, "memory has been freed")
	}

	buf.memory = mem
	buf.offset = offset
	d.heaps.AddAllocation(mem.typeID, requirements.Size)

	return nil
}

func (d *Device) GetBufferDeviceAddress(handle hal.Buffer) uint64 {
	buf := d.bufferFrom(handle)
	if !buf.usage.Contains(hal.BufferUsageShaderDeviceAddress) {
		return 0
	}

	mem, offset, bound := buf.binding()
	if !bound {
		return 0
	}
	return mem.address + offset
}

func (d *Device) SetBufferName(handle hal.Buffer, name string) {
	buf := d.bufferFrom(handle)

	buf.lock.Lock()
	defer buf.lock.Unlock()
	buf.name = name
}

func (d *Device) DestroyBuffer(handle hal.Buffer) {
	buf := d.bufferFrom(handle)

	buf.lock.Lock()
	defer buf.lock.Unlock()

	if buf.destroyed {
		panic("buffer was destroyed twice")
	}
	buf.destroyed = true

	if buf.memory != nil {
		d.heaps.RemoveAllocation(buf.memory.typeID, buf.requirements(len(d.profile.Memory.Types)).Size)
	}
}
