package raytrace

import (
	"log/slog"
	"math"

	"github.com/cockroachdb/errors"
	"github.com/dolthub/swiss"
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/vkngwrapper/accel/hal"
	"github.com/vkngwrapper/accel/internal/utils"
	"github.com/vkngwrapper/accel/memutils"
	"github.com/vkngwrapper/accel/memutils/metadata"
)

// ArenaOptions configure NewArena
type ArenaOptions struct {
	// ExternallySynchronized drops the arena's mutex. The caller must not use the arena from more than
	// one goroutine at a time.
	ExternallySynchronized bool
	// Strategy picks between free regions. The zero value is AllocationStrategyMinMemory.
	Strategy metadata.AllocationStrategy
}

// Arena places many acceleration structures in one device-local buffer. Each structure is suballocated
// at AccelerationStructureAlignment, and freed space is reused by later structures.
type Arena struct {
	logger   *slog.Logger
	device   hal.Device
	buffer   hal.Buffer
	memory   hal.Memory
	strategy metadata.AllocationStrategy

	lock        utils.OptionalMutex
	metadata    *metadata.FreeListBlockMetadata
	allocations *swiss.Map[hal.AccelerationStructure, metadata.BlockAllocationHandle]
}

// NewArena creates an arena backed by a buffer of at least size bytes
func NewArena(logger *slog.Logger, device hal.Device, size uint64, options ArenaOptions) (*Arena, error) {
	size = memutils.AlignUp[uint64](size, hal.AccelerationStructureAlignment)
	buffer, memory, err := CreateDeviceBuffer(device,
		hal.BufferUsageAccelerationStructureStorage|hal.BufferUsageShaderDeviceAddress, size)
	if err != nil {
		return nil, err
	}

	strategy := options.Strategy
	if strategy == 0 {
		strategy = metadata.AllocationStrategyMinMemory
	}

	arena := &Arena{
		logger:   logger,
		device:   device,
		buffer:   buffer,
		memory:   memory,
		strategy: strategy,
		lock: utils.OptionalMutex{
			UseMutex: !options.ExternallySynchronized,
		},
		metadata:    metadata.NewFreeListBlockMetadata(),
		allocations: swiss.NewMap[hal.AccelerationStructure, metadata.BlockAllocationHandle](16),
	}
	arena.metadata.Init(size)

	logger.Debug("Arena::New", slog.Uint64("size", size))
	return arena, nil
}

// Buffer returns the buffer every structure in the arena lives in
func (a *Arena) Buffer() hal.Buffer {
	return a.buffer
}

// CreateAccelerationStructure suballocates size bytes and creates a structure there. It fails with
// ErrOutOfDeviceMemory when no free region is large enough.
func (a *Arena) CreateAccelerationStructure(structureType hal.AccelerationStructureType, size uint64) (hal.AccelerationStructure, error) {
	if size == 0 {
		return nil, errors.Wrap(hal.ErrCreation, "acceleration structure size must be greater than 0")
	}

	a.lock.Lock()
	defer a.lock.Unlock()

	success, request, err := a.metadata.CreateAllocationRequest(size, hal.AccelerationStructureAlignment, a.strategy, math.MaxUint64)
	if err != nil {
		return nil, err
	}
	if !success {
		return nil, errors.Wrapf(hal.ErrOutOfDeviceMemory, "arena has %d free bytes, no region fits %d", a.metadata.SumFreeSize(), size)
	}

	err = a.metadata.Alloc(request, structureType)
	if err != nil {
		return nil, err
	}

	as, err := a.device.CreateAccelerationStructure(hal.AccelerationStructureCreateDesc{
		Buffer:       a.buffer,
		BufferOffset: request.Item.Offset,
		Size:         size,
		Type:         structureType,
	})
	if err != nil {
		freeErr := a.metadata.Free(request.BlockAllocationHandle)
		return nil, errors.CombineErrors(err, freeErr)
	}

	a.allocations.Put(as, request.BlockAllocationHandle)
	return as, nil
}

// DestroyAccelerationStructure destroys a structure created by this arena and frees its region
func (a *Arena) DestroyAccelerationStructure(as hal.AccelerationStructure) error {
	a.lock.Lock()
	defer a.lock.Unlock()

	handle, ok := a.allocations.Get(as)
	if !ok {
		return errors.New("acceleration structure was not created by this arena")
	}

	a.device.DestroyAccelerationStructure(as)
	a.allocations.Delete(as)
	return a.metadata.Free(handle)
}

// Statistics describes the arena's allocations and free regions
func (a *Arena) Statistics() memutils.DetailedStatistics {
	a.lock.Lock()
	defer a.lock.Unlock()

	var stats memutils.DetailedStatistics
	stats.Clear()
	a.metadata.AddDetailedStatistics(&stats)
	return stats
}

// BuildStatsString dumps the arena's regions as JSON
func (a *Arena) BuildStatsString() string {
	a.lock.Lock()
	defer a.lock.Unlock()

	writer := jwriter.NewWriter()
	obj := writer.Object()
	a.metadata.BlockJsonData(obj)
	obj.End()

	return string(writer.Bytes())
}

// Destroy destroys any structures still in the arena, then its buffer and memory
func (a *Arena) Destroy() {
	a.lock.Lock()
	defer a.lock.Unlock()

	if a.allocations.Count() > 0 {
		a.logger.Warn("destroying arena with live acceleration structures", slog.Int("count", a.allocations.Count()))
		a.allocations.Iter(func(as hal.AccelerationStructure, _ metadata.BlockAllocationHandle) bool {
			a.device.DestroyAccelerationStructure(as)
			return false
		})
		a.allocations = swiss.NewMap[hal.AccelerationStructure, metadata.BlockAllocationHandle](16)
	}

	a.device.DestroyBuffer(a.buffer)
	a.device.FreeMemory(a.memory)
	a.metadata.Clear()
}
