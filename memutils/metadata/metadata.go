package metadata

import (
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/vkngwrapper/accel/memutils"
)

// BlockMetadata tracks suballocations inside one contiguous region of device memory. It never touches
// the memory itself: consumers ask it where an allocation should go, commit the answer, and bind their
// resource at the returned offset.
type BlockMetadata interface {
	// Init must be called before the BlockMetadata is used. size is the number of bytes managed.
	Init(size uint64)
	// Size retrieves the size in bytes that the block was initialized with
	Size() uint64

	// Validate performs internal consistency checks on the metadata. When the implementation is
	// functioning correctly it should not be possible for this method to return an error.
	Validate() error
	// AllocationCount returns the number of suballocations currently live in the block
	AllocationCount() int
	// FreeRegionsCount returns the number of distinct free regions. Adjacent free regions are always merged.
	FreeRegionsCount() int
	// SumFreeSize returns the number of free bytes in the block
	SumFreeSize() uint64
	// IsEmpty will return true if this block has no live suballocations
	IsEmpty() bool

	// VisitAllRegions calls the provided callback once for each allocation and free region in offset order.
	VisitAllRegions(handleBlock func(handle BlockAllocationHandle, offset uint64, size uint64, userData any, free bool) error) error

	// AllocationOffset returns the offset in bytes of a live allocation
	AllocationOffset(allocHandle BlockAllocationHandle) (uint64, error)
	// AllocationUserData returns the userData value the allocation was committed with
	AllocationUserData(allocHandle BlockAllocationHandle) (any, error)

	AddDetailedStatistics(stats *memutils.DetailedStatistics)
	AddStatistics(stats *memutils.Statistics)

	// Clear instantly frees all allocations
	Clear()
	// BlockJsonData populates a json object with information about this block
	BlockJsonData(json jwriter.ObjectState)

	// CreateAllocationRequest retrieves an AllocationRequest indicating where the implementation would
	// place an allocation of allocSize bytes aligned to allocAlignment, ending no later than maxOffset.
	// The first return value is false if no free region can hold the allocation.
	CreateAllocationRequest(allocSize uint64, allocAlignment uint64, strategy AllocationStrategy, maxOffset uint64) (bool, AllocationRequest, error)
	// Alloc commits an AllocationRequest. It returns an error if the request no longer fits the
	// region it was created for.
	Alloc(request AllocationRequest, userData any) error
	// Free turns a live allocation back into free space, merging it with free neighbours.
	Free(allocHandle BlockAllocationHandle) error
}

// BlockMetadataBase holds the fields shared by BlockMetadata implementations
type BlockMetadataBase struct {
	size uint64
}

// Init sizes the block in bytes
func (m *BlockMetadataBase) Init(size uint64) {
	m.size = size
}

// Size returns the size of the block in bytes
func (m *BlockMetadataBase) Size() uint64 { return m.size }

// BlockJsonData populates a json object with information about this block
func (m *BlockMetadataBase) BlockJsonData(json jwriter.ObjectState, unusedBytes uint64, allocationCount, unusedRangeCount int) {
	json.Name("TotalBytes").Float64(float64(m.Size()))
	json.Name("UnusedBytes").Float64(float64(unusedBytes))
	json.Name("Allocations").Int(allocationCount)
	json.Name("UnusedRanges").Int(unusedRangeCount)
}
