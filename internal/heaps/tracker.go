package heaps

import (
	"fmt"
	"sync/atomic"

	"github.com/cockroachdb/errors"
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/vkngwrapper/accel/hal"
	"github.com/vkngwrapper/accel/memutils"
)

// Budget reports usage of one heap
type Budget struct {
	Statistics memutils.Statistics
	Usage      uint64
	Budget     uint64
}

// Tracker counts device memory blocks and the resources bound inside them, per heap. A block is one
// AllocateMemory call, an allocation is one bound buffer. All counters are atomic so backends can
// call it without holding a device lock.
type Tracker struct {
	// Number of real allocations that have been made from device memory
	blockCount []atomic.Int32
	// Number of buffers bound into those allocations
	allocationCount []atomic.Int32
	blockBytes      []atomic.Int64
	allocationBytes []atomic.Int64

	memoryCount    atomic.Uint32
	maxMemoryCount uint32
	heapLimits     []uint64
	properties     hal.MemoryProperties
}

// NewTracker builds a tracker for the provided memory layout. heapSizeLimits may be empty, or hold one
// entry per heap where 0 means the heap's own size.
func NewTracker(properties hal.MemoryProperties, maxMemoryCount uint32, heapSizeLimits []uint64) (*Tracker, error) {
	heapCount := len(properties.Heaps)
	if len(heapSizeLimits) > 0 && len(heapSizeLimits) != heapCount {
		return nil, errors.Newf("%d heap size limits were provided for %d heaps", len(heapSizeLimits), heapCount)
	}

	for index, memoryType := range properties.Types {
		if memoryType.HeapIndex < 0 || memoryType.HeapIndex >= heapCount {
			return nil, errors.Newf("memory type %d refers to heap %d of %d", index, memoryType.HeapIndex, heapCount)
		}
	}

	limits := make([]uint64, heapCount)
	for heapIndex, heap := range properties.Heaps {
		limits[heapIndex] = heap.Size
		if len(heapSizeLimits) > 0 && heapSizeLimits[heapIndex] != 0 && heapSizeLimits[heapIndex] < heap.Size {
			limits[heapIndex] = heapSizeLimits[heapIndex]
		}
	}

	return &Tracker{
		blockCount:      make([]atomic.Int32, heapCount),
		allocationCount: make([]atomic.Int32, heapCount),
		blockBytes:      make([]atomic.Int64, heapCount),
		allocationBytes: make([]atomic.Int64, heapCount),
		maxMemoryCount:  maxMemoryCount,
		heapLimits:      limits,
		properties:      properties,
	}, nil
}

func (t *Tracker) HeapIndex(typeID hal.MemoryTypeID) (int, error) {
	if typeID < 0 || int(typeID) >= len(t.properties.Types) {
		return -1, errors.Wrapf(hal.ErrOutOfDeviceMemory, "unknown memory type %d", typeID)
	}
	return t.properties.Types[typeID].HeapIndex, nil
}

func (t *Tracker) outOfMemory(heapIndex int) error {
	if t.properties.Heaps[heapIndex].Flags&hal.MemoryHeapDeviceLocal != 0 {
		return hal.ErrOutOfDeviceMemory
	}
	return hal.ErrOutOfHostMemory
}

// AllocateBlock reserves size bytes of the type's heap. It fails if the heap limit or the device-wide
// allocation count would be exceeded.
func (t *Tracker) AllocateBlock(typeID hal.MemoryTypeID, size uint64) (err error) {
	heapIndex, err := t.HeapIndex(typeID)
	if err != nil {
		return err
	}

	newCount := t.memoryCount.Add(1)
	defer func() {
		if err != nil {
			// Decrement
			t.memoryCount.Add(^uint32(0))
		}
	}()
	if t.maxMemoryCount > 0 && newCount > t.maxMemoryCount {
		return errors.Wrapf(t.outOfMemory(heapIndex), "too many allocations: limit is %d", t.maxMemoryCount)
	}

	for {
		currentVal := t.blockBytes[heapIndex].Load()
		targetVal := currentVal + int64(size)

		if uint64(targetVal) > t.heapLimits[heapIndex] {
			return errors.Wrapf(t.outOfMemory(heapIndex), "heap %d: %d bytes requested, %d of %d in use",
				heapIndex, size, currentVal, t.heapLimits[heapIndex])
		}

		if t.blockBytes[heapIndex].CompareAndSwap(currentVal, targetVal) {
			break
		}
	}

	t.blockCount[heapIndex].Add(1)
	return nil
}

func (t *Tracker) FreeBlock(typeID hal.MemoryTypeID, size uint64) {
	heapIndex := t.properties.Types[typeID].HeapIndex

	newVal := t.blockBytes[heapIndex].Add(-int64(size))
	if newVal < 0 {
		panic(fmt.Sprintf("block bytes for heap %d went negative", heapIndex))
	}

	newCount := t.blockCount[heapIndex].Add(-1)
	if newCount < 0 {
		panic(fmt.Sprintf("block count for heap %d went negative", heapIndex))
	}

	// Decrement
	t.memoryCount.Add(^uint32(0))
}

func (t *Tracker) AddAllocation(typeID hal.MemoryTypeID, size uint64) {
	heapIndex := t.properties.Types[typeID].HeapIndex
	t.allocationBytes[heapIndex].Add(int64(size))
	t.allocationCount[heapIndex].Add(1)
}

func (t *Tracker) RemoveAllocation(typeID hal.MemoryTypeID, size uint64) {
	heapIndex := t.properties.Types[typeID].HeapIndex

	newVal := t.allocationBytes[heapIndex].Add(-int64(size))
	if newVal < 0 {
		panic(fmt.Sprintf("allocation bytes for heap %d went negative", heapIndex))
	}

	newCount := t.allocationCount[heapIndex].Add(-1)
	if newCount < 0 {
		panic(fmt.Sprintf("allocation count for heap %d went negative", heapIndex))
	}
}

// MemoryCount is the number of live blocks across all heaps
func (t *Tracker) MemoryCount() uint32 {
	return t.memoryCount.Load()
}

func (t *Tracker) HeapStatistics(heapIndex int) memutils.Statistics {
	return memutils.Statistics{
		BlockCount:      int(t.blockCount[heapIndex].Load()),
		AllocationCount: int(t.allocationCount[heapIndex].Load()),
		BlockBytes:      uint64(t.blockBytes[heapIndex].Load()),
		AllocationBytes: uint64(t.allocationBytes[heapIndex].Load()),
	}
}

// HeapBudgets fills one Budget per heap starting at firstHeap
func (t *Tracker) HeapBudgets(firstHeap int, budgets []Budget) {
	for i := 0; i < len(budgets); i++ {
		heapIndex := firstHeap + i

		budgets[i].Statistics = t.HeapStatistics(heapIndex)
		budgets[i].Usage = budgets[i].Statistics.BlockBytes
		budgets[i].Budget = t.heapLimits[heapIndex]
	}
}

// TotalStatistics sums every heap
func (t *Tracker) TotalStatistics() memutils.Statistics {
	var total memutils.Statistics
	for heapIndex := range t.properties.Heaps {
		stats := t.HeapStatistics(heapIndex)
		total.AddStatistics(&stats)
	}
	return total
}

// WriteJson writes a Total object and a Heaps array
func (t *Tracker) WriteJson(json jwriter.ObjectState) {
	total := t.TotalStatistics()
	totalObj := json.Name("Total").Object()
	total.WriteJson(totalObj)
	totalObj.End()

	heaps := json.Name("Heaps").Array()
	for heapIndex, heap := range t.properties.Heaps {
		heapObj := heaps.Object()
		heapObj.Name("Index").Int(heapIndex)
		heapObj.Name("Size").Float64(float64(heap.Size))
		heapObj.Name("Budget").Float64(float64(t.heapLimits[heapIndex]))
		heapObj.Name("Flags").String(heap.Flags.String())

		stats := t.HeapStatistics(heapIndex)
		statsObj := heapObj.Name("Stats").Object()
		stats.WriteJson(statsObj)
		statsObj.End()

		heapObj.End()
	}
	heaps.End()
}
