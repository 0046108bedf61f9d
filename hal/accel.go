package hal

import (
	"fmt"
	"math"
	"time"
)

// AccelerationStructureAlignment is the required alignment of an acceleration structure's offset within
// its backing buffer
const AccelerationStructureAlignment = 256

// WaitForever, passed as a fence wait timeout, waits without a deadline
const WaitForever = time.Duration(math.MaxInt64)

type AccelerationStructureType int32

const (
	AccelerationStructureTypeTopLevel AccelerationStructureType = iota
	AccelerationStructureTypeBottomLevel
	// AccelerationStructureTypeGeneric structures have their level decided at build time on some APIs.
	// They are accepted by size queries and creation but are never a valid build destination.
	AccelerationStructureTypeGeneric
)

func (t AccelerationStructureType) String() string {
	switch t {
	case AccelerationStructureTypeTopLevel:
		return "TopLevel"
	case AccelerationStructureTypeBottomLevel:
		return "BottomLevel"
	case AccelerationStructureTypeGeneric:
		return "Generic"
	}
	return fmt.Sprintf("AccelerationStructureType(%d)", int32(t))
}

// AccelerationStructure is an opaque structure living in a region of a backing buffer
type AccelerationStructure interface {
	Type() AccelerationStructureType
	Size() uint64
}

// AccelerationStructureCreateDesc places a new structure at [BufferOffset, BufferOffset+Size) of Buffer
type AccelerationStructureCreateDesc struct {
	Buffer       Buffer
	BufferOffset uint64
	Size         uint64
	Type         AccelerationStructureType
}

// SizeRequirements are the byte counts reported by a size query
type SizeRequirements struct {
	AccelerationStructureSize uint64
	// UpdateScratchSize is 0 unless BuildAllowUpdate was requested
	UpdateScratchSize uint64
	BuildScratchSize  uint64
}

// BuildRangeDesc selects the primitives of one geometry consumed by a build
type BuildRangeDesc struct {
	PrimitiveCount uint32
	// PrimitiveOffset is a byte offset added to the index buffer for indexed triangles, and to the
	// vertex, aabb or instance buffer otherwise
	PrimitiveOffset uint32
	FirstVertex     uint32
	// TransformOffset is a byte offset added to TransformData.Offset
	TransformOffset uint32
}

// BuildDesc describes one build or update. Src is nil for a build from scratch and set for an update,
// in which case Dst may equal Src.
type BuildDesc struct {
	Src           AccelerationStructure
	Dst           AccelerationStructure
	Geometry      *GeometryDesc
	Scratch       Buffer
	ScratchOffset uint64
}

// IsUpdate reports whether the build refits an existing structure
func (d *BuildDesc) IsUpdate() bool {
	return d.Src != nil
}

// BuildInfo pairs a BuildDesc with one range per geometry
type BuildInfo struct {
	Desc   BuildDesc
	Ranges []BuildRangeDesc
}

// CopyMode selects how CopyAccelerationStructure transforms its source
type CopyMode int32

const (
	// CopyModeClone copies the source into a destination at least as large
	CopyModeClone CopyMode = iota
	// CopyModeCompact copies the source into a destination sized by a compacted size query
	CopyModeCompact
	// CopyModeSerialize writes a driver-tagged blob that can be restored with CopyModeDeserialize
	CopyModeSerialize
	CopyModeDeserialize
)

func (m CopyMode) String() string {
	switch m {
	case CopyModeClone:
		return "Clone"
	case CopyModeCompact:
		return "Compact"
	case CopyModeSerialize:
		return "Serialize"
	case CopyModeDeserialize:
		return "Deserialize"
	}
	return fmt.Sprintf("CopyMode(%d)", int32(m))
}

type QueryType int32

const (
	QueryTypeAccelerationStructureCompactedSize QueryType = iota
	QueryTypeAccelerationStructureSerializationSize
)

func (t QueryType) String() string {
	switch t {
	case QueryTypeAccelerationStructureCompactedSize:
		return "AccelerationStructureCompactedSize"
	case QueryTypeAccelerationStructureSerializationSize:
		return "AccelerationStructureSerializationSize"
	}
	return fmt.Sprintf("QueryType(%d)", int32(t))
}

// QueryPool holds Count query slots of one type
type QueryPool interface {
	Type() QueryType
	Count() uint32
}

// Fence is signaled by the queue when a submission completes
type Fence any

// MemoryBarrier orders the SrcAccess of earlier commands before the DstAccess of later ones
type MemoryBarrier struct {
	SrcAccess AccessFlags
	DstAccess AccessFlags
}

// AccelerationStructureBuildBarrier makes the results of earlier builds visible to later builds,
// copies, queries and traces
var AccelerationStructureBuildBarrier = MemoryBarrier{
	SrcAccess: AccessAccelerationStructureWrite,
	DstAccess: AccessAccelerationStructureRead,
}
