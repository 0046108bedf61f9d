package metadata_test

import (
	"math"
	"testing"

	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/accel/memutils"
	"github.com/vkngwrapper/accel/memutils/metadata"
)

func allocate(t *testing.T, block metadata.BlockMetadata, size, alignment uint64, strategy metadata.AllocationStrategy) metadata.AllocationRequest {
	success, req, err := block.CreateAllocationRequest(size, alignment, strategy, math.MaxUint64)
	require.NoError(t, err)
	require.True(t, success)

	err = block.Alloc(req, req.BlockAllocationHandle)
	require.NoError(t, err)
	require.NoError(t, block.Validate())
	return req
}

func TestFreeListBasicAlloc(t *testing.T) {
	block := metadata.NewFreeListBlockMetadata()
	block.Init(1000)

	var stats memutils.DetailedStatistics
	stats.Clear()
	block.AddDetailedStatistics(&stats)

	require.Equal(t, memutils.DetailedStatistics{
		Statistics: memutils.Statistics{
			BlockCount: 1,
			BlockBytes: 1000,
		},
		UnusedRangeCount:   1,
		AllocationSizeMin:  math.MaxUint64,
		AllocationSizeMax:  0,
		UnusedRangeSizeMin: 1000,
		UnusedRangeSizeMax: 1000,
	}, stats)

	req := allocate(t, block, 100, 1, metadata.AllocationStrategyMinMemory)
	require.Equal(t, uint64(0), req.Item.Offset)

	stats.Clear()
	block.AddDetailedStatistics(&stats)
	require.Equal(t, memutils.DetailedStatistics{
		Statistics: memutils.Statistics{
			BlockCount:      1,
			BlockBytes:      1000,
			AllocationCount: 1,
			AllocationBytes: 100,
		},
		UnusedRangeCount:   1,
		AllocationSizeMin:  100,
		AllocationSizeMax:  100,
		UnusedRangeSizeMin: 900,
		UnusedRangeSizeMax: 900,
	}, stats)

	userData, err := block.AllocationUserData(req.BlockAllocationHandle)
	require.NoError(t, err)
	require.Equal(t, req.BlockAllocationHandle, userData)

	require.NoError(t, block.Free(req.BlockAllocationHandle))
	require.NoError(t, block.Validate())
	require.True(t, block.IsEmpty())
	require.Equal(t, 1, block.FreeRegionsCount())
	require.Equal(t, uint64(1000), block.SumFreeSize())
}

func TestFreeListAlignmentPadding(t *testing.T) {
	block := metadata.NewFreeListBlockMetadata()
	block.Init(4096)

	first := allocate(t, block, 100, 1, metadata.AllocationStrategyMinOffset)
	second := allocate(t, block, 512, 256, metadata.AllocationStrategyMinOffset)

	require.Equal(t, uint64(0), first.Item.Offset)
	require.Equal(t, uint64(256), second.Item.Offset)
	require.Equal(t, uint64(156), second.Padding)

	// padding and tail are both free
	require.Equal(t, 2, block.FreeRegionsCount())
	require.Equal(t, uint64(4096-100-512), block.SumFreeSize())

	offset, err := block.AllocationOffset(second.BlockAllocationHandle)
	require.NoError(t, err)
	require.Equal(t, uint64(256), offset)
}

func TestFreeListMergesNeighbours(t *testing.T) {
	block := metadata.NewFreeListBlockMetadata()
	block.Init(768)

	a := allocate(t, block, 256, 256, metadata.AllocationStrategyMinOffset)
	b := allocate(t, block, 256, 256, metadata.AllocationStrategyMinOffset)
	c := allocate(t, block, 256, 256, metadata.AllocationStrategyMinOffset)
	require.Equal(t, 0, block.FreeRegionsCount())

	require.NoError(t, block.Free(a.BlockAllocationHandle))
	require.NoError(t, block.Free(c.BlockAllocationHandle))
	require.Equal(t, 2, block.FreeRegionsCount())
	require.NoError(t, block.Validate())

	require.NoError(t, block.Free(b.BlockAllocationHandle))
	require.Equal(t, 1, block.FreeRegionsCount())
	require.True(t, block.IsEmpty())
	require.NoError(t, block.Validate())

	_, err := block.AllocationOffset(b.BlockAllocationHandle)
	require.Error(t, err)
}

func TestFreeListBestFit(t *testing.T) {
	block := metadata.NewFreeListBlockMetadata()
	block.Init(1024)

	a := allocate(t, block, 512, 1, metadata.AllocationStrategyMinOffset)
	allocate(t, block, 128, 1, metadata.AllocationStrategyMinOffset)
	b := allocate(t, block, 128, 1, metadata.AllocationStrategyMinOffset)
	allocate(t, block, 256, 1, metadata.AllocationStrategyMinOffset)

	require.NoError(t, block.Free(a.BlockAllocationHandle))
	require.NoError(t, block.Free(b.BlockAllocationHandle))

	// 128 bytes fit exactly in b's old slot, the smaller of the two holes
	req := allocate(t, block, 100, 1, metadata.AllocationStrategyMinMemory)
	require.Equal(t, uint64(640), req.Item.Offset)

	req = allocate(t, block, 100, 1, metadata.AllocationStrategyMinTime)
	require.Equal(t, uint64(0), req.Item.Offset)
}

func TestFreeListExhaustion(t *testing.T) {
	block := metadata.NewFreeListBlockMetadata()
	block.Init(512)

	allocate(t, block, 300, 1, metadata.AllocationStrategyMinMemory)

	success, _, err := block.CreateAllocationRequest(300, 1, metadata.AllocationStrategyMinMemory, math.MaxUint64)
	require.NoError(t, err)
	require.False(t, success)

	success, _, err = block.CreateAllocationRequest(100, 1, metadata.AllocationStrategyMinMemory, 350)
	require.NoError(t, err)
	require.False(t, success)

	_, _, err = block.CreateAllocationRequest(16, 3, metadata.AllocationStrategyMinMemory, math.MaxUint64)
	require.ErrorIs(t, err, memutils.PowerOfTwoError)
}

func TestFreeListStaleRequest(t *testing.T) {
	block := metadata.NewFreeListBlockMetadata()
	block.Init(512)

	success, req, err := block.CreateAllocationRequest(256, 1, metadata.AllocationStrategyMinMemory, math.MaxUint64)
	require.NoError(t, err)
	require.True(t, success)
	require.NoError(t, block.Alloc(req, nil))

	require.Error(t, block.Alloc(req, nil))
	require.Error(t, block.Free(metadata.BlockAllocationHandle(99)))
}

func TestFreeListClearAndJson(t *testing.T) {
	block := metadata.NewFreeListBlockMetadata()
	block.Init(1024)

	allocate(t, block, 256, 1, metadata.AllocationStrategyMinMemory)
	allocate(t, block, 256, 1, metadata.AllocationStrategyMinMemory)

	writer := jwriter.NewWriter()
	obj := writer.Object()
	block.BlockJsonData(obj)
	obj.End()
	require.NoError(t, writer.Error())
	require.Contains(t, string(writer.Bytes()), `"Allocations":2`)
	require.Contains(t, string(writer.Bytes()), `"UnusedBytes":512`)

	block.Clear()
	require.True(t, block.IsEmpty())
	require.Equal(t, uint64(1024), block.SumFreeSize())
	require.NoError(t, block.Validate())
}
