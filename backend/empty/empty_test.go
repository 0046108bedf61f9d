package empty_test

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/accel/backend/empty"
	"github.com/vkngwrapper/accel/hal"
)

func newDevice() *empty.Device {
	return empty.New(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestOpenMockAdapter(t *testing.T) {
	adapter := empty.NewAdapter(slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.Equal(t, "Mock Device", adapter.Info().Name)

	_, err := adapter.Open(hal.FeatureAccelerationStructure)
	require.ErrorIs(t, err, hal.ErrNotSupported)

	gpu, err := adapter.Open(0)
	require.NoError(t, err)
	require.Len(t, gpu.Queues, 1)
	require.NoError(t, gpu.Queues[0].Submit(nil, nil))
}

func TestHostMemory(t *testing.T) {
	device := newDevice()

	buffer, err := device.CreateBuffer(32, hal.BufferUsageStorage)
	require.NoError(t, err)
	requirements := device.GetBufferRequirements(buffer)
	require.Equal(t, uint64(32), requirements.Size)

	typeID, ok := device.MemoryProperties().FindMemoryType(requirements.TypeMask, hal.MemoryPropertyCPUVisible)
	require.True(t, ok)

	memory, err := device.AllocateMemory(typeID, requirements.Size)
	require.NoError(t, err)
	require.NoError(t, device.BindBufferMemory(memory, 0, buffer))

	mapped, err := device.MapMemory(memory, hal.Segment{Offset: 8, Size: hal.WholeSize})
	require.NoError(t, err)
	require.Len(t, mapped, 24)
	mapped[0] = 0xaa

	whole, err := device.MapMemory(memory, hal.Segment{Size: hal.WholeSize})
	require.NoError(t, err)
	require.Equal(t, byte(0xaa), whole[8])

	_, err = device.MapMemory(memory, hal.Segment{Offset: 16, Size: 32})
	require.ErrorIs(t, err, hal.ErrMapFailed)

	_, err = device.AllocateMemory(1, 16)
	require.ErrorIs(t, err, hal.ErrCreation)
}

func TestAccelerationStructuresUnsupported(t *testing.T) {
	device := newDevice()

	desc := &hal.GeometryDesc{
		Type:       hal.AccelerationStructureTypeTopLevel,
		Geometries: []hal.Geometry{{Data: hal.GeometryInstances{}}},
	}
	require.Equal(t, hal.SizeRequirements{}, device.GetAccelerationStructureBuildRequirements(desc, []uint32{4}))
	require.Panics(t, func() {
		device.GetAccelerationStructureBuildRequirements(desc, nil)
	})

	_, err := device.CreateAccelerationStructure(hal.AccelerationStructureCreateDesc{})
	require.ErrorIs(t, err, hal.ErrNotSupported)
	_, err = device.CreateQueryPool(hal.QueryTypeAccelerationStructureCompactedSize, 1)
	require.ErrorIs(t, err, hal.ErrNotSupported)

	cmd, err := device.CreateCommandBuffer()
	require.NoError(t, err)
	require.NoError(t, cmd.Begin())
	cmd.PipelineBarrier(hal.PipelineStageTopOfPipe, hal.PipelineStageBottomOfPipe, nil)
	require.NoError(t, cmd.Finish())

	require.NoError(t, cmd.Begin())
	cmd.CopyAccelerationStructure(nil, nil, hal.CopyModeClone)
	require.ErrorIs(t, cmd.Finish(), hal.ErrNotSupported)
}

func TestFencesAlwaysSignaled(t *testing.T) {
	device := newDevice()

	fence, err := device.CreateFence(false)
	require.NoError(t, err)
	require.NoError(t, device.ResetFence(fence))

	signaled, err := device.WaitForFence(fence, 0)
	require.NoError(t, err)
	require.True(t, signaled)
	require.NoError(t, device.WaitIdle())
}
