package raytrace_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/accel/backend/soft"
	"github.com/vkngwrapper/accel/hal"
	"github.com/vkngwrapper/accel/raytrace"
)

func TestArenaSuballocation(t *testing.T) {
	logger, device := newProfileDevice(t, soft.DefaultProfile())

	arena, err := raytrace.NewArena(logger, device, 4000, raytrace.ArenaOptions{})
	require.NoError(t, err)
	defer arena.Destroy()
	require.Equal(t, uint64(4096), arena.Buffer().Size())

	first, err := arena.CreateAccelerationStructure(hal.AccelerationStructureTypeBottomLevel, 1000)
	require.NoError(t, err)
	second, err := arena.CreateAccelerationStructure(hal.AccelerationStructureTypeBottomLevel, 1000)
	require.NoError(t, err)
	third, err := arena.CreateAccelerationStructure(hal.AccelerationStructureTypeTopLevel, 1000)
	require.NoError(t, err)

	firstAddress := device.GetAccelerationStructureAddress(first)
	require.Equal(t, firstAddress+1024, device.GetAccelerationStructureAddress(second))
	require.Equal(t, firstAddress+2048, device.GetAccelerationStructureAddress(third))

	_, err = arena.CreateAccelerationStructure(hal.AccelerationStructureTypeBottomLevel, 2000)
	require.ErrorIs(t, err, hal.ErrOutOfDeviceMemory)

	require.NoError(t, arena.DestroyAccelerationStructure(second))
	require.Error(t, arena.DestroyAccelerationStructure(second))

	// the freed slot is the tightest fit
	reused, err := arena.CreateAccelerationStructure(hal.AccelerationStructureTypeBottomLevel, 512)
	require.NoError(t, err)
	require.Equal(t, firstAddress+1024, device.GetAccelerationStructureAddress(reused))

	stats := arena.Statistics()
	require.Equal(t, 3, stats.AllocationCount)
	require.Equal(t, uint64(1000+1000+512), stats.AllocationBytes)
	require.Contains(t, arena.BuildStatsString(), `"Regions"`)

	_, err = arena.CreateAccelerationStructure(hal.AccelerationStructureTypeBottomLevel, 0)
	require.ErrorIs(t, err, hal.ErrCreation)
}

func TestArenaHostsBuiltStructures(t *testing.T) {
	logger, device := newProfileDevice(t, soft.DefaultProfile())

	mesh, err := raytrace.UploadCube(logger, device)
	require.NoError(t, err)
	defer mesh.Destroy(device)

	desc, ranges := mesh.Geometry(0)
	sizes := device.GetAccelerationStructureBuildRequirements(desc, []uint32{ranges[0].PrimitiveCount})

	arena, err := raytrace.NewArena(logger, device, 4*sizes.AccelerationStructureSize+1024, raytrace.ArenaOptions{
		ExternallySynchronized: true,
	})
	require.NoError(t, err)
	defer arena.Destroy()

	scratch, scratchMemory, err := raytrace.CreateDeviceBuffer(device, hal.BufferUsageStorage|hal.BufferUsageShaderDeviceAddress, sizes.BuildScratchSize)
	require.NoError(t, err)
	defer device.FreeMemory(scratchMemory)
	defer device.DestroyBuffer(scratch)

	padding, err := arena.CreateAccelerationStructure(hal.AccelerationStructureTypeBottomLevel, 100)
	require.NoError(t, err)
	blas, err := arena.CreateAccelerationStructure(hal.AccelerationStructureTypeBottomLevel, sizes.AccelerationStructureSize)
	require.NoError(t, err)

	err = raytrace.SubmitAndWait(logger, device, device.Queue(), 5*time.Second, func(cmd hal.CommandBuffer) {
		cmd.BuildAccelerationStructures([]hal.BuildInfo{{
			Desc: hal.BuildDesc{
				Dst:      blas,
				Geometry: desc,
				Scratch:  scratch,
			},
			Ranges: ranges,
		}})
	})
	require.NoError(t, err)

	// neighbours in the arena do not disturb the built structure
	require.NoError(t, arena.DestroyAccelerationStructure(padding))

	hit, ok, err := device.TraceRay(blas, frontRay())
	require.NoError(t, err)
	require.True(t, ok)
	require.InDelta(t, 4, hit.T, 1e-5)
}
