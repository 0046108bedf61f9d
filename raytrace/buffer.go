package raytrace

import (
	"log/slog"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/accel/hal"
	"github.com/vkngwrapper/accel/memutils"
)

// CreateEmptyBuffer creates a buffer of at least size bytes in the first CPU-visible memory type it
// accepts. The size is rounded up to the device's non-coherent atom size so the whole buffer can be
// flushed in one range.
func CreateEmptyBuffer(device hal.Device, usage hal.BufferUsage, size uint64) (hal.Buffer, hal.Memory, error) {
	return createBoundBuffer(device, usage, size, hal.MemoryPropertyCPUVisible)
}

// CreateDeviceBuffer is CreateEmptyBuffer for device-local memory. It falls back to any accepted memory
// type when the device has no device-local type.
func CreateDeviceBuffer(device hal.Device, usage hal.BufferUsage, size uint64) (hal.Buffer, hal.Memory, error) {
	buffer, memory, err := createBoundBuffer(device, usage, size, hal.MemoryPropertyDeviceLocal)
	if errors.Is(err, hal.ErrNotSupported) {
		return createBoundBuffer(device, usage, size, 0)
	}
	return buffer, memory, err
}

func createBoundBuffer(device hal.Device, usage hal.BufferUsage, size uint64, properties hal.MemoryPropertyFlags) (hal.Buffer, hal.Memory, error) {
	if size == 0 {
		return nil, nil, errors.Wrap(hal.ErrCreation, "buffer size must be greater than 0")
	}

	atomSize := max(device.Limits().NonCoherentAtomSize, 1)
	paddedSize := memutils.AlignUp(size, atomSize)

	buffer, err := device.CreateBuffer(paddedSize, usage)
	if err != nil {
		return nil, nil, err
	}

	requirements := device.GetBufferRequirements(buffer)
	typeID, ok := device.MemoryProperties().FindMemoryType(requirements.TypeMask, properties)
	if !ok {
		device.DestroyBuffer(buffer)
		return nil, nil, errors.Wrapf(hal.ErrNotSupported, "no memory type in mask %#b has %s", requirements.TypeMask, properties)
	}

	memory, err := device.AllocateMemory(typeID, requirements.Size)
	if err != nil {
		device.DestroyBuffer(buffer)
		return nil, nil, err
	}

	err = device.BindBufferMemory(memory, 0, buffer)
	if err != nil {
		device.DestroyBuffer(buffer)
		device.FreeMemory(memory)
		return nil, nil, err
	}

	return buffer, memory, nil
}

// UploadToBuffer creates a CPU-visible buffer and fills it with data. A failed map or flush is logged and
// the buffer is released.
func UploadToBuffer(logger *slog.Logger, device hal.Device, usage hal.BufferUsage, data []byte) (hal.Buffer, hal.Memory, error) {
	buffer, memory, err := CreateEmptyBuffer(device, usage, uint64(len(data)))
	if err != nil {
		return nil, nil, err
	}

	err = writeMemory(device, memory, data)
	if err != nil {
		logger.Error("failed to upload buffer contents", slog.Int("bytes", len(data)), slog.Any("error", err))
		device.DestroyBuffer(buffer)
		device.FreeMemory(memory)
		return nil, nil, err
	}

	return buffer, memory, nil
}

func writeMemory(device hal.Device, memory hal.Memory, data []byte) error {
	mapped, err := device.MapMemory(memory, hal.Segment{Size: hal.WholeSize})
	if err != nil {
		return err
	}
	defer device.UnmapMemory(memory)

	copy(mapped, data)
	return device.FlushMappedMemoryRanges([]hal.MappedRange{{
		Memory:  memory,
		Segment: hal.Segment{Size: hal.WholeSize},
	}})
}
