package soft_test

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/accel/backend/soft"
	"github.com/vkngwrapper/accel/hal"
)

const mebibyte = 1024 * 1024

func TestOpenDeviceRejectsMissingFeatures(t *testing.T) {
	profile := soft.DefaultProfile()
	profile.Features = hal.FeatureBufferDeviceAddress

	adapter, err := soft.NewAdapter(nil, profile, soft.CreateOptions{})
	require.NoError(t, err)
	require.True(t, adapter.Info().Software)

	_, err = adapter.Open(hal.FeatureAccelerationStructure)
	require.ErrorIs(t, err, hal.ErrNotSupported)

	gpu, err := adapter.Open(hal.FeatureBufferDeviceAddress)
	require.NoError(t, err)
	require.Len(t, gpu.Queues, 1)
	gpu.Device.Destroy()
}

func TestCreateBufferValidation(t *testing.T) {
	device := newDevice(t)

	_, err := device.CreateBuffer(0, hal.BufferUsageStorage)
	require.ErrorIs(t, err, hal.ErrCreation)

	_, err = device.CreateBuffer(64, 0)
	require.ErrorIs(t, err, hal.ErrCreation)

	_, err = device.CreateBuffer(64, hal.BufferUsage(1<<30))
	require.ErrorIs(t, err, hal.ErrCreation)

	buffer, err := device.CreateBuffer(100, hal.BufferUsageAccelerationStructureStorage)
	require.NoError(t, err)
	requirements := device.GetBufferRequirements(buffer)
	require.Equal(t, uint64(100), requirements.Size)
	require.Equal(t, uint64(hal.AccelerationStructureAlignment), requirements.Alignment)
	require.Equal(t, uint32(0b1111), requirements.TypeMask)
}

func TestBindBufferMemory(t *testing.T) {
	device := newDevice(t)

	memory, err := device.AllocateMemory(0, 4096)
	require.NoError(t, err)
	defer device.FreeMemory(memory)

	buffer, err := device.CreateBuffer(1024, hal.BufferUsageStorage|hal.BufferUsageShaderDeviceAddress)
	require.NoError(t, err)
	require.Zero(t, device.GetBufferDeviceAddress(buffer))

	err = device.BindBufferMemory(memory, 3, buffer)
	require.ErrorIs(t, err, hal.ErrBind)

	err = device.BindBufferMemory(memory, 3840, buffer)
	require.ErrorIs(t, err, hal.ErrBind)

	require.NoError(t, device.BindBufferMemory(memory, 1024, buffer))
	require.NotZero(t, device.GetBufferDeviceAddress(buffer))

	err = device.BindBufferMemory(memory, 2048, buffer)
	require.ErrorIs(t, err, hal.ErrBind)

	other, err := device.CreateBuffer(1024, hal.BufferUsageStorage)
	require.NoError(t, err)
	require.NoError(t, device.BindBufferMemory(memory, 2048, other))
	require.Zero(t, device.GetBufferDeviceAddress(other))

	device.DestroyBuffer(buffer)
	device.DestroyBuffer(other)
}

func TestAllocateMemoryHeapLimits(t *testing.T) {
	device, _ := newLoggedDevice(t, soft.CreateOptions{HeapSizeLimits: []uint64{mebibyte, mebibyte}})

	memory, err := device.AllocateMemory(0, mebibyte)
	require.NoError(t, err)

	_, err = device.AllocateMemory(0, 1)
	require.ErrorIs(t, err, hal.ErrOutOfDeviceMemory)
	require.ErrorIs(t, err, hal.ErrOutOfMemory)

	_, err = device.AllocateMemory(1, 2*mebibyte)
	require.ErrorIs(t, err, hal.ErrOutOfHostMemory)
	require.ErrorIs(t, err, hal.ErrOutOfMemory)
	require.False(t, errors.Is(err, hal.ErrOutOfDeviceMemory))

	device.FreeMemory(memory)
	memory, err = device.AllocateMemory(0, mebibyte)
	require.NoError(t, err)
	device.FreeMemory(memory)
}

func TestMapMemory(t *testing.T) {
	device := newDevice(t)

	deviceLocal, err := device.AllocateMemory(0, 1024)
	require.NoError(t, err)
	_, err = device.MapMemory(deviceLocal, hal.Segment{Size: hal.WholeSize})
	require.ErrorIs(t, err, hal.ErrMapFailed)

	coherent, err := device.AllocateMemory(1, 1024)
	require.NoError(t, err)

	_, err = device.MapMemory(coherent, hal.Segment{Offset: 512, Size: 1024})
	require.ErrorIs(t, err, hal.ErrMapFailed)

	mapped, err := device.MapMemory(coherent, hal.Segment{Offset: 512, Size: hal.WholeSize})
	require.NoError(t, err)
	require.Len(t, mapped, 512)

	_, err = device.MapMemory(coherent, hal.Segment{Size: hal.WholeSize})
	require.ErrorIs(t, err, hal.ErrMapFailed)

	// Coherent memory needs no flush, at any granularity
	mapped[0] = 7
	require.NoError(t, device.FlushMappedMemoryRanges([]hal.MappedRange{{Memory: coherent, Segment: hal.Segment{Offset: 513, Size: 3}}}))
	device.UnmapMemory(coherent)

	mapped, err = device.MapMemory(coherent, hal.Segment{Offset: 512, Size: 1})
	require.NoError(t, err)
	require.Equal(t, byte(7), mapped[0])
	device.UnmapMemory(coherent)

	device.FreeMemory(deviceLocal)
	device.FreeMemory(coherent)
}

func TestNonCoherentMemoryNeedsFlush(t *testing.T) {
	device := newDevice(t)

	memory, err := device.AllocateMemory(2, 1024)
	require.NoError(t, err)
	defer device.FreeMemory(memory)

	mapped, err := device.MapMemory(memory, hal.Segment{Size: hal.WholeSize})
	require.NoError(t, err)
	mapped[0] = 1
	mapped[300] = 2
	device.UnmapMemory(memory)

	// Unflushed writes never reached the device
	mapped, err = device.MapMemory(memory, hal.Segment{Size: hal.WholeSize})
	require.NoError(t, err)
	require.Zero(t, mapped[0])
	require.Zero(t, mapped[300])

	mapped[0] = 1
	mapped[300] = 2

	err = device.FlushMappedMemoryRanges([]hal.MappedRange{{Memory: memory, Segment: hal.Segment{Offset: 0, Size: 100}}})
	require.Error(t, err)

	err = device.FlushMappedMemoryRanges([]hal.MappedRange{{Memory: memory, Segment: hal.Segment{Offset: 0, Size: 256}}})
	require.NoError(t, err)
	device.UnmapMemory(memory)

	mapped, err = device.MapMemory(memory, hal.Segment{Size: hal.WholeSize})
	require.NoError(t, err)
	require.Equal(t, byte(1), mapped[0])
	require.Zero(t, mapped[300])

	// Invalidating throws away host writes in favour of device contents
	mapped[0] = 9
	err = device.InvalidateMappedMemoryRanges([]hal.MappedRange{{Memory: memory, Segment: hal.Segment{Offset: 0, Size: hal.WholeSize}}})
	require.NoError(t, err)
	require.Equal(t, byte(1), mapped[0])
	device.UnmapMemory(memory)

	err = device.FlushMappedMemoryRanges([]hal.MappedRange{{Memory: memory, Segment: hal.Segment{Size: 256}}})
	require.Error(t, err)
}

func TestCreateAccelerationStructureValidation(t *testing.T) {
	device := newDevice(t)

	storage, _ := newBoundBuffer(t, device, 4096, hal.BufferUsageAccelerationStructureStorage, hal.MemoryPropertyDeviceLocal)
	plain, _ := newBoundBuffer(t, device, 4096, hal.BufferUsageStorage, hal.MemoryPropertyDeviceLocal)
	unbound, err := device.CreateBuffer(4096, hal.BufferUsageAccelerationStructureStorage)
	require.NoError(t, err)

	tests := map[string]hal.AccelerationStructureCreateDesc{
		"nil buffer":       {Size: 256, Type: hal.AccelerationStructureTypeBottomLevel},
		"misaligned":       {Buffer: storage, BufferOffset: 128, Size: 256, Type: hal.AccelerationStructureTypeBottomLevel},
		"zero size":        {Buffer: storage, Type: hal.AccelerationStructureTypeBottomLevel},
		"past the end":     {Buffer: storage, BufferOffset: 3840, Size: 512, Type: hal.AccelerationStructureTypeBottomLevel},
		"no storage usage": {Buffer: plain, Size: 256, Type: hal.AccelerationStructureTypeBottomLevel},
		"unbound":          {Buffer: unbound, Size: 256, Type: hal.AccelerationStructureTypeBottomLevel},
		"unknown type":     {Buffer: storage, Size: 256, Type: hal.AccelerationStructureType(9)},
	}
	for name, desc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := device.CreateAccelerationStructure(desc)
			require.ErrorIs(t, err, hal.ErrCreation)
		})
	}

	first, err := device.CreateAccelerationStructure(hal.AccelerationStructureCreateDesc{
		Buffer: storage, BufferOffset: 0, Size: 2048, Type: hal.AccelerationStructureTypeBottomLevel,
	})
	require.NoError(t, err)
	second, err := device.CreateAccelerationStructure(hal.AccelerationStructureCreateDesc{
		Buffer: storage, BufferOffset: 2048, Size: 2048, Type: hal.AccelerationStructureTypeGeneric,
	})
	require.NoError(t, err)

	require.Equal(t, device.GetAccelerationStructureAddress(first)+2048, device.GetAccelerationStructureAddress(second))
	require.Equal(t, soft.StateUnbuilt, device.AccelerationStructureState(first))

	device.SetAccelerationStructureName(first, "first")
	device.DestroyAccelerationStructure(first)
	device.DestroyAccelerationStructure(second)
	require.Panics(t, func() { device.DestroyAccelerationStructure(second) })
}

func TestBuildStatsString(t *testing.T) {
	device := newDevice(t)
	_, blas := buildCube(t, device, 0)
	device.SetAccelerationStructureName(blas, "cube")

	stats := device.BuildStatsString(false)
	require.Contains(t, stats, `"Heaps":[`)
	require.NotContains(t, stats, "AccelerationStructures")

	stats = device.BuildStatsString(true)
	require.Contains(t, stats, `"Name":"cube"`)
	require.Contains(t, stats, `"State":"Built"`)
	require.Contains(t, stats, `"UsedBytes":`)
}
