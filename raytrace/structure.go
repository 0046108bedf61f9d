package raytrace

import (
	"github.com/vkngwrapper/accel/hal"
)

// Structure is an acceleration structure together with the dedicated buffer and memory backing it
type Structure struct {
	AccelerationStructure hal.AccelerationStructure
	Buffer                hal.Buffer
	Memory                hal.Memory
}

// NewStructure creates a structure of the given type in a dedicated device-local buffer of size bytes
func NewStructure(device hal.Device, structureType hal.AccelerationStructureType, size uint64) (*Structure, error) {
	buffer, memory, err := CreateDeviceBuffer(device,
		hal.BufferUsageAccelerationStructureStorage|hal.BufferUsageShaderDeviceAddress, size)
	if err != nil {
		return nil, err
	}

	as, err := device.CreateAccelerationStructure(hal.AccelerationStructureCreateDesc{
		Buffer: buffer,
		Size:   size,
		Type:   structureType,
	})
	if err != nil {
		device.DestroyBuffer(buffer)
		device.FreeMemory(memory)
		return nil, err
	}

	return &Structure{
		AccelerationStructure: as,
		Buffer:                buffer,
		Memory:                memory,
	}, nil
}

// Address returns the value to place in Instance.AccelerationStructureReference
func (s *Structure) Address(device hal.Device) uint64 {
	return device.GetAccelerationStructureAddress(s.AccelerationStructure)
}

// Destroy releases the structure, then its buffer and memory. No submitted work may still use it.
func (s *Structure) Destroy(device hal.Device) {
	device.DestroyAccelerationStructure(s.AccelerationStructure)
	device.DestroyBuffer(s.Buffer)
	device.FreeMemory(s.Memory)
}
