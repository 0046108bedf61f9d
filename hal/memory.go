package hal

// MemoryTypeID indexes MemoryProperties.Types
type MemoryTypeID int

// WholeSize, used as a Segment or MappedRange size, extends the range to the end of the memory
const WholeSize = ^uint64(0)

type MemoryType struct {
	Properties MemoryPropertyFlags
	HeapIndex  int
}

type MemoryHeap struct {
	Size  uint64
	Flags MemoryHeapFlags
}

// MemoryProperties lists the memory types and heaps a device exposes
type MemoryProperties struct {
	Types []MemoryType
	Heaps []MemoryHeap
}

// FindMemoryType returns the first type allowed by typeMask that has every property in required
func (p MemoryProperties) FindMemoryType(typeMask uint32, required MemoryPropertyFlags) (MemoryTypeID, bool) {
	for index, memoryType := range p.Types {
		if index >= 32 || typeMask&(1<<index) == 0 {
			continue
		}
		if memoryType.Properties.Contains(required) {
			return MemoryTypeID(index), true
		}
	}
	return -1, false
}

// Requirements are the memory requirements of a buffer
type Requirements struct {
	Size      uint64
	Alignment uint64
	// TypeMask has bit i set if MemoryTypeID(i) can back the buffer
	TypeMask uint32
}

// Segment is a byte range of a Memory. A Size of WholeSize reaches the end of the memory.
type Segment struct {
	Offset uint64
	Size   uint64
}

// MappedRange identifies a range of mapped memory to flush or invalidate
type MappedRange struct {
	Memory  Memory
	Segment Segment
}

// Limits are device limits relevant to acceleration structure work
type Limits struct {
	// NonCoherentAtomSize is the granularity of flushes and invalidations of non-coherent memory
	NonCoherentAtomSize uint64
	// MinAccelerationStructureScratchOffsetAlignment applies to BuildDesc.ScratchOffset
	MinAccelerationStructureScratchOffsetAlignment uint64
	MaxMemoryAllocationCount                       uint32
	MaxGeometryCount                               uint64
	MaxInstanceCount                               uint64
	MaxPrimitiveCount                              uint64
}

// Buffer is a sized, usage-flagged GPU resource. It must be bound to Memory before use.
type Buffer interface {
	Size() uint64
	Usage() BufferUsage
}

// Memory is a typed device memory allocation
type Memory interface {
	Size() uint64
	TypeID() MemoryTypeID
}
