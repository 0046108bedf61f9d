package soft_test

import (
	"encoding/binary"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/accel/hal"
)

func TestFenceLifecycle(t *testing.T) {
	device := newDevice(t)

	fence, err := device.CreateFence(true)
	require.NoError(t, err)

	signaled, err := device.GetFenceStatus(fence)
	require.NoError(t, err)
	require.True(t, signaled)

	cmd, err := record(t, device, func(cmd hal.CommandBuffer) {})
	require.NoError(t, err)
	require.Error(t, device.Queue().Submit([]hal.CommandBuffer{cmd}, fence))

	require.NoError(t, device.ResetFence(fence))
	signaled, err = device.GetFenceStatus(fence)
	require.NoError(t, err)
	require.False(t, signaled)

	signaled, err = device.WaitForFence(fence, 10*time.Millisecond)
	require.NoError(t, err)
	require.False(t, signaled)

	require.NoError(t, device.Queue().Submit([]hal.CommandBuffer{cmd}, fence))
	signaled, err = device.WaitForFence(fence, hal.WaitForever)
	require.NoError(t, err)
	require.True(t, signaled)

	// Executed command buffers can be submitted again
	require.NoError(t, device.ResetFence(fence))
	require.NoError(t, device.Queue().Submit([]hal.CommandBuffer{cmd}, fence))
	require.NoError(t, device.WaitIdle())

	signaled, err = device.GetFenceStatus(fence)
	require.NoError(t, err)
	require.True(t, signaled)
	device.DestroyFence(fence)
}

func TestCommandBufferStates(t *testing.T) {
	device := newDevice(t)

	cmd, err := device.CreateCommandBuffer()
	require.NoError(t, err)

	require.Error(t, cmd.Finish())
	require.Error(t, device.Queue().Submit([]hal.CommandBuffer{cmd}, nil))

	require.NoError(t, cmd.Begin())
	require.Error(t, cmd.Begin())
	require.NoError(t, cmd.Finish())

	require.NoError(t, cmd.Reset())
	require.Panics(t, func() {
		cmd.PipelineBarrier(hal.PipelineStageTopOfPipe, hal.PipelineStageBottomOfPipe, nil)
	})

	device.DestroyCommandBuffer(cmd)
}

func TestConcurrentSubmissions(t *testing.T) {
	device := newDevice(t)
	_, blas := buildCube(t, device, hal.BuildAllowCompaction)

	pool, err := device.CreateQueryPool(hal.QueryTypeAccelerationStructureCompactedSize, 16)
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for index := uint32(0); index < 16; index++ {
		cmd, err := record(t, device, func(cmd hal.CommandBuffer) {
			cmd.WriteAccelerationStructuresProperties([]hal.AccelerationStructure{blas}, hal.QueryTypeAccelerationStructureCompactedSize, pool, index)
		})
		require.NoError(t, err)

		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- device.Queue().Submit([]hal.CommandBuffer{cmd}, nil)
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}
	require.NoError(t, device.Queue().WaitIdle())

	data := make([]byte, 16*8)
	available, err := device.GetQueryPoolResults(pool, 0, 16, data, 8, hal.QueryResult64)
	require.NoError(t, err)
	require.True(t, available)

	first := binary.LittleEndian.Uint64(data)
	require.NotZero(t, first)
	for index := 1; index < 16; index++ {
		require.Equal(t, first, binary.LittleEndian.Uint64(data[index*8:]))
	}
}

func TestQueryPoolResultFlags(t *testing.T) {
	device := newDevice(t)
	_, blas := buildCube(t, device, 0)

	_, err := device.CreateQueryPool(hal.QueryTypeAccelerationStructureSerializationSize, 0)
	require.ErrorIs(t, err, hal.ErrCreation)

	pool, err := device.CreateQueryPool(hal.QueryTypeAccelerationStructureSerializationSize, 2)
	require.NoError(t, err)

	data := make([]byte, 16)
	available, err := device.GetQueryPoolResults(pool, 0, 2, data, 8, hal.QueryResultWithAvailability)
	require.NoError(t, err)
	require.False(t, available)
	require.Equal(t, make([]byte, 16), data)

	_, err = device.GetQueryPoolResults(pool, 0, 2, data, 4, hal.QueryResultWithAvailability)
	require.Error(t, err)
	_, err = device.GetQueryPoolResults(pool, 1, 2, data, 8, 0)
	require.ErrorIs(t, err, hal.ErrCreation)

	submitAndWait(t, device, func(cmd hal.CommandBuffer) {
		cmd.WriteAccelerationStructuresProperties([]hal.AccelerationStructure{blas}, hal.QueryTypeAccelerationStructureSerializationSize, pool, 1)
	})

	for index := range data {
		data[index] = 0xff
	}
	available, err = device.GetQueryPoolResults(pool, 0, 2, data, 8, hal.QueryResultWithAvailability|hal.QueryResultPartial)
	require.NoError(t, err)
	require.False(t, available)

	require.Zero(t, binary.LittleEndian.Uint32(data[0:]))
	require.Zero(t, binary.LittleEndian.Uint32(data[4:]))
	require.Greater(t, binary.LittleEndian.Uint32(data[8:]), uint32(48))
	require.Equal(t, uint32(1), binary.LittleEndian.Uint32(data[12:]))

	cmd, err := record(t, device, func(cmd hal.CommandBuffer) {
		cmd.WriteAccelerationStructuresProperties([]hal.AccelerationStructure{blas}, hal.QueryTypeAccelerationStructureCompactedSize, pool, 0)
	})
	require.ErrorIs(t, err, hal.ErrCreation)
	device.DestroyCommandBuffer(cmd)
}
