package vulkan

import (
	"log/slog"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/accel/hal"
	"github.com/vkngwrapper/accel/internal/utils"
	"github.com/vkngwrapper/accel/memutils"
	"github.com/vkngwrapper/core/v2/core1_0"
	"github.com/vkngwrapper/core/v2/core1_2"
)

type buffer struct {
	size         uint64
	usage        hal.BufferUsage
	requirements hal.Requirements

	lock    utils.OptionalMutex
	vulkan  core1_0.Buffer
	name    string
	memory  *memory
	offset  uint64
	address uint64
}

var _ hal.Buffer = &buffer{}

func (b *buffer) Size() uint64           { return b.size }
func (b *buffer) Usage() hal.BufferUsage { return b.usage }

func (b *buffer) binding() (*memory, uint64, bool) {
	b.lock.Lock()
	defer b.lock.Unlock()

	return b.memory, b.offset, b.memory != nil
}

func (d *Device) bufferFrom(handle hal.Buffer) *buffer {
	buf, ok := handle.(*buffer)
	if !ok {
		panic(errors.AssertionFailedf("buffer %T was not created by a vulkan device", handle))
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
	if usage.Contains(hal.BufferUsageShaderDeviceAddress) && d.extensions.BufferDeviceAddress == nil {
		return nil, errors.Wrap(hal.ErrNotSupported, "buffer device addresses are not enabled")
	}

	vulkanBuffer, res, err := d.device.CreateBuffer(d.callbacks, core1_0.BufferCreateInfo{
		Size:        int(size),
		Usage:       translateBufferUsage(usage),
		SharingMode: core1_0.SharingModeExclusive,
	})
	if err != nil {
		return nil, hal.Classify(translateResult(res, err, "failed to create buffer"), hal.ErrCreation)
	}

	requirements := vulkanBuffer.MemoryRequirements()
	return &buffer{
		size:  size,
		usage: usage,
		requirements: hal.Requirements{
			Size:      uint64(requirements.Size),
			Alignment: uint64(requirements.Alignment),
			TypeMask:  requirements.MemoryTypeBits,
		},
		lock: utils.OptionalMutex{
			UseMutex: !d.externallySynchronized,
		},
		vulkan: vulkanBuffer,
	}, nil
}

func (d *Device) GetBufferRequirements(handle hal.Buffer) hal.Requirements {
	return d.bufferFrom(handle).requirements
}

func (d *Device) BindBufferMemory(memoryHandle hal.Memory, offset uint64, bufferHandle hal.Buffer) error {
	mem := d.memoryFrom(memoryHandle)
	buf := d.bufferFrom(bufferHandle)

	buf.lock.Lock()
	defer buf.lock.Unlock()

	if buf.memory != nil {
		return errors.Wrapf(hal.ErrBind, "buffer %q is already bound", buf.name)
	}
	if buf.requirements.TypeMask&(1<<mem.typeID) == 0 {
		return errors.Wrapf(hal.ErrBind, "memory type %d is not allowed by mask %#b", mem.typeID, buf.requirements.TypeMask)
	}
	if !memutils.IsAligned(offset, max(buf.requirements.Alignment, 1)) {
		return errors.Wrapf(hal.ErrBind, "offset %d is not aligned to %d", offset, buf.requirements.Alignment)
	}
	if err := memutils.CheckRange(offset, buf.requirements.Size, mem.size); err != nil {
		return hal.Classify(errors.Wrap(err, "memory is too small for the buffer"), hal.ErrBind)
	}

	res, err := buf.vulkan.BindBufferMemory(mem.vulkan, int(offset))
	if err != nil {
		return hal.Classify(translateResult(res, err, "failed to bind buffer memory"), hal.ErrBind)
	}

	buf.memory = mem
	buf.offset = offset
	if buf.usage.Contains(hal.BufferUsageShaderDeviceAddress) {
		address, err := d.extensions.BufferDeviceAddress.GetBufferDeviceAddress(core1_2.BufferDeviceAddressInfo{
			Buffer: buf.vulkan,
		})
		if err != nil {
			d.logger.Error("failed to query buffer device address", slog.Any("error", err))
		} else {
			buf.address = address
		}
	}
	d.heaps.AddAllocation(mem.typeID, buf.requirements.Size)

	return nil
}

func (d *Device) GetBufferDeviceAddress(handle hal.Buffer) uint64 {
	buf := d.bufferFrom(handle)

	buf.lock.Lock()
	defer buf.lock.Unlock()

	return buf.address
}

// addressAt returns the device address offset bytes into handle, or 0 for a nil buffer
func (d *Device) addressAt(handle hal.Buffer, offset uint64) uint64 {
	if handle == nil {
		return 0
	}
	address := d.GetBufferDeviceAddress(handle)
	if address == 0 {
		return 0
	}
	return address + offset
}

// SetBufferName only records the name for log messages. Debug utils object names are set by the owner
// of the VkDevice.
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

	if buf.vulkan == nil {
		panic("buffer was destroyed twice")
	}
	buf.vulkan.Destroy(d.callbacks)
	buf.vulkan = nil

	if buf.memory != nil {
		d.heaps.RemoveAllocation(buf.memory.typeID, buf.requirements.Size)
	}
}
