package metadata

import (
	"github.com/cockroachdb/errors"
	"github.com/dolthub/swiss"
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/vkngwrapper/accel/memutils"
)

type freeListRegion struct {
	offset       uint64
	size         uint64
	prevPhysical *freeListRegion
	nextPhysical *freeListRegion

	free     bool
	userData any
	handle   BlockAllocationHandle
}

func (r *freeListRegion) end() uint64 {
	return r.offset + r.size
}

// FreeListBlockMetadata is a best-fit allocator over a physically ordered list of regions. It suits
// blocks holding a few dozen long-lived objects, such as acceleration structures sharing one buffer.
type FreeListBlockMetadata struct {
	BlockMetadataBase

	allocCount  int
	freeCount   int
	freeSize    uint64
	head        *freeListRegion
	nextHandle  BlockAllocationHandle
	handleToKey *swiss.Map[BlockAllocationHandle, *freeListRegion]
}

var _ BlockMetadata = &FreeListBlockMetadata{}

func NewFreeListBlockMetadata() *FreeListBlockMetadata {
	return &FreeListBlockMetadata{}
}

func (m *FreeListBlockMetadata) newRegion(offset, size uint64, free bool) *freeListRegion {
	region := &freeListRegion{
		offset: offset,
		size:   size,
		free:   free,
		handle: m.nextHandle,
	}
	m.nextHandle++
	m.handleToKey.Put(region.handle, region)
	return region
}

func (m *FreeListBlockMetadata) getRegion(handle BlockAllocationHandle) (*freeListRegion, error) {
	region, ok := m.handleToKey.Get(handle)
	if !ok {
		return nil, errors.Newf("unknown allocation handle %d", handle)
	}
	return region, nil
}

func (m *FreeListBlockMetadata) Init(size uint64) {
	m.BlockMetadataBase.Init(size)
	m.handleToKey = swiss.NewMap[BlockAllocationHandle, *freeListRegion](16)
	m.nextHandle = 0
	m.allocCount = 0
	m.freeCount = 0
	m.freeSize = 0
	m.head = nil

	if size > 0 {
		m.head = m.newRegion(0, size, true)
		m.freeCount = 1
		m.freeSize = size
	}
}

func (m *FreeListBlockMetadata) Validate() error {
	var offset uint64
	var allocCount, freeCount int
	var freeSize uint64
	var prev *freeListRegion

	for region := m.head; region != nil; region = region.nextPhysical {
		if region.offset != offset {
			return errors.Newf("region %d starts at %d, expected %d", region.handle, region.offset, offset)
		}
		if region.size == 0 {
			return errors.Newf("region %d is empty", region.handle)
		}
		if region.prevPhysical != prev {
			return errors.Newf("region %d has a broken back link", region.handle)
		}
		if mapped, ok := m.handleToKey.Get(region.handle); !ok || mapped != region {
			return errors.Newf("region %d is missing from the handle map", region.handle)
		}

		if region.free {
			if prev != nil && prev.free {
				return errors.Newf("free regions %d and %d were not merged", prev.handle, region.handle)
			}
			freeCount++
			freeSize += region.size
		} else {
			allocCount++
		}

		offset = region.end()
		prev = region
	}

	if offset != m.Size() {
		return errors.Newf("regions cover %d bytes of a %d byte block", offset, m.Size())
	}
	if allocCount != m.allocCount || freeCount != m.freeCount || freeSize != m.freeSize {
		return errors.Newf("cached counters (%d allocs, %d free, %d free bytes) disagree with regions (%d, %d, %d)",
			m.allocCount, m.freeCount, m.freeSize, allocCount, freeCount, freeSize)
	}
	if m.handleToKey.Count() != allocCount+freeCount {
		return errors.Newf("handle map holds %d entries for %d regions", m.handleToKey.Count(), allocCount+freeCount)
	}

	return nil
}

func (m *FreeListBlockMetadata) AllocationCount() int  { return m.allocCount }
func (m *FreeListBlockMetadata) FreeRegionsCount() int { return m.freeCount }
func (m *FreeListBlockMetadata) SumFreeSize() uint64   { return m.freeSize }
func (m *FreeListBlockMetadata) IsEmpty() bool         { return m.allocCount == 0 }

func (m *FreeListBlockMetadata) AddDetailedStatistics(stats *memutils.DetailedStatistics) {
	stats.BlockCount++
	stats.BlockBytes += m.Size()

	for region := m.head; region != nil; region = region.nextPhysical {
		if region.free {
			stats.AddUnusedRange(region.size)
		} else {
			stats.AddAllocation(region.size)
		}
	}
}

func (m *FreeListBlockMetadata) AddStatistics(stats *memutils.Statistics) {
	stats.BlockCount++
	stats.AllocationCount += m.allocCount
	stats.BlockBytes += m.Size()
	stats.AllocationBytes += m.Size() - m.freeSize
}

func (m *FreeListBlockMetadata) VisitAllRegions(handleBlock func(handle BlockAllocationHandle, offset uint64, size uint64, userData any, free bool) error) error {
	for region := m.head; region != nil; region = region.nextPhysical {
		err := handleBlock(region.handle, region.offset, region.size, region.userData, region.free)
		if err != nil {
			return err
		}
	}
	return nil
}

func (m *FreeListBlockMetadata) AllocationOffset(allocHandle BlockAllocationHandle) (uint64, error) {
	region, err := m.getRegion(allocHandle)
	if err != nil {
		return 0, err
	}
	return region.offset, nil
}

func (m *FreeListBlockMetadata) AllocationUserData(allocHandle BlockAllocationHandle) (any, error) {
	region, err := m.getRegion(allocHandle)
	if err != nil {
		return nil, err
	}
	if region.free {
		return nil, errors.Newf("region %d is not allocated", allocHandle)
	}
	return region.userData, nil
}

func (m *FreeListBlockMetadata) Clear() {
	m.Init(m.Size())
}

func (m *FreeListBlockMetadata) BlockJsonData(json jwriter.ObjectState) {
	m.BlockMetadataBase.BlockJsonData(json, m.freeSize, m.allocCount, m.freeCount)

	regions := json.Name("Regions").Array()
	for region := m.head; region != nil; region = region.nextPhysical {
		obj := regions.Object()
		obj.Name("Offset").Float64(float64(region.offset))
		obj.Name("Size").Float64(float64(region.size))
		obj.Name("Free").Bool(region.free)
		obj.End()
	}
	regions.End()
}

func (m *FreeListBlockMetadata) CreateAllocationRequest(allocSize uint64, allocAlignment uint64, strategy AllocationStrategy, maxOffset uint64) (bool, AllocationRequest, error) {
	if allocSize == 0 {
		return false, AllocationRequest{}, errors.New("allocation size must be greater than 0")
	}
	if allocAlignment == 0 {
		allocAlignment = 1
	}
	if err := memutils.CheckPow2(allocAlignment, "allocAlignment"); err != nil {
		return false, AllocationRequest{}, err
	}
	if allocSize > m.freeSize {
		return false, AllocationRequest{}, nil
	}

	var best *freeListRegion
	var bestOffset uint64

	for region := m.head; region != nil; region = region.nextPhysical {
		if !region.free {
			continue
		}

		offset := memutils.AlignUp(region.offset, allocAlignment)
		end := offset + allocSize
		if end < offset || end > region.end() || end > maxOffset {
			continue
		}

		// Regions are visited in offset order, so the first fit is also the lowest offset
		if strategy == AllocationStrategyMinTime || strategy == AllocationStrategyMinOffset {
			best, bestOffset = region, offset
			break
		}

		if best == nil || region.size < best.size {
			best, bestOffset = region, offset
		}
	}

	if best == nil {
		return false, AllocationRequest{}, nil
	}

	return true, AllocationRequest{
		BlockAllocationHandle: best.handle,
		Item: Suballocation{
			Offset: bestOffset,
			Size:   allocSize,
		},
		Padding: bestOffset - best.offset,
	}, nil
}

func (m *FreeListBlockMetadata) Alloc(request AllocationRequest, userData any) error {
	region, err := m.getRegion(request.BlockAllocationHandle)
	if err != nil {
		return err
	}
	if !region.free {
		return errors.Newf("region %d is no longer free", region.handle)
	}
	if region.offset+request.Padding != request.Item.Offset || request.Item.Offset+request.Item.Size > region.end() {
		return errors.Newf("region %d no longer fits the request", region.handle)
	}

	m.freeCount--
	m.freeSize -= region.size

	if request.Padding > 0 {
		padding := m.newRegion(region.offset, request.Padding, true)
		m.insertBefore(region, padding)
		m.freeCount++
		m.freeSize += padding.size
	}

	tail := region.end() - request.Item.Offset - request.Item.Size
	if tail > 0 {
		rest := m.newRegion(request.Item.Offset+request.Item.Size, tail, true)
		m.insertAfter(region, rest)
		m.freeCount++
		m.freeSize += rest.size
	}

	region.offset = request.Item.Offset
	region.size = request.Item.Size
	region.free = false
	region.userData = userData
	m.allocCount++

	memutils.DebugValidate(m)
	return nil
}

func (m *FreeListBlockMetadata) Free(allocHandle BlockAllocationHandle) error {
	region, err := m.getRegion(allocHandle)
	if err != nil {
		return err
	}
	if region.free {
		return errors.Newf("region %d is already free", allocHandle)
	}

	region.free = true
	region.userData = nil
	m.allocCount--
	m.freeCount++
	m.freeSize += region.size

	if next := region.nextPhysical; next != nil && next.free {
		m.absorbNext(region)
	}
	if prev := region.prevPhysical; prev != nil && prev.free {
		m.absorbNext(prev)
	}

	memutils.DebugValidate(m)
	return nil
}

// absorbNext merges the free region after region into region
func (m *FreeListBlockMetadata) absorbNext(region *freeListRegion) {
	next := region.nextPhysical
	region.size += next.size
	region.nextPhysical = next.nextPhysical
	if next.nextPhysical != nil {
		next.nextPhysical.prevPhysical = region
	}
	m.handleToKey.Delete(next.handle)
	m.freeCount--
}

func (m *FreeListBlockMetadata) insertBefore(region, inserted *freeListRegion) {
	inserted.prevPhysical = region.prevPhysical
	inserted.nextPhysical = region
	if region.prevPhysical != nil {
		region.prevPhysical.nextPhysical = inserted
	} else {
		m.head = inserted
	}
	region.prevPhysical = inserted
}

func (m *FreeListBlockMetadata) insertAfter(region, inserted *freeListRegion) {
	inserted.prevPhysical = region
	inserted.nextPhysical = region.nextPhysical
	if region.nextPhysical != nil {
		region.nextPhysical.prevPhysical = inserted
	}
	region.nextPhysical = inserted
}
