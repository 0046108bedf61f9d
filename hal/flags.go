package hal

import "github.com/vkngwrapper/core/v2/common"

// BufferUsage describes how a buffer may be used. Bit values match VkBufferUsageFlagBits.
type BufferUsage int32

var bufferUsageMapping = common.NewFlagStringMapping[BufferUsage]()

func (f BufferUsage) Register(str string) {
	bufferUsageMapping.Register(f, str)
}
func (f BufferUsage) String() string {
	return bufferUsageMapping.FlagsToString(f)
}

// Contains reports whether every bit of other is set in f
func (f BufferUsage) Contains(other BufferUsage) bool {
	return f&other == other
}

const (
	BufferUsageTransferSrc        BufferUsage = 0x00000001
	BufferUsageTransferDst        BufferUsage = 0x00000002
	BufferUsageUniform            BufferUsage = 0x00000010
	BufferUsageStorage            BufferUsage = 0x00000020
	BufferUsageIndex              BufferUsage = 0x00000040
	BufferUsageVertex             BufferUsage = 0x00000080
	BufferUsageShaderBindingTable BufferUsage = 0x00000400
	// BufferUsageShaderDeviceAddress is required for GetBufferDeviceAddress to return a non-zero address
	BufferUsageShaderDeviceAddress BufferUsage = 0x00020000
	// BufferUsageAccelerationStructureBuildInputReadOnly marks vertex, index, transform, aabb and instance
	// buffers read by builds
	BufferUsageAccelerationStructureBuildInputReadOnly BufferUsage = 0x00080000
	// BufferUsageAccelerationStructureStorage is required for buffers backing an AccelerationStructure
	BufferUsageAccelerationStructureStorage BufferUsage = 0x00100000

	bufferUsageAll = BufferUsageTransferSrc | BufferUsageTransferDst | BufferUsageUniform | BufferUsageStorage |
		BufferUsageIndex | BufferUsageVertex | BufferUsageShaderBindingTable | BufferUsageShaderDeviceAddress |
		BufferUsageAccelerationStructureBuildInputReadOnly | BufferUsageAccelerationStructureStorage
)

// IsValid reports whether f is non-empty and only uses known bits
func (f BufferUsage) IsValid() bool {
	return f != 0 && f&^bufferUsageAll == 0
}

// MemoryPropertyFlags describes a memory type
type MemoryPropertyFlags int32

var memoryPropertyMapping = common.NewFlagStringMapping[MemoryPropertyFlags]()

func (f MemoryPropertyFlags) Register(str string) {
	memoryPropertyMapping.Register(f, str)
}
func (f MemoryPropertyFlags) String() string {
	return memoryPropertyMapping.FlagsToString(f)
}

func (f MemoryPropertyFlags) Contains(other MemoryPropertyFlags) bool {
	return f&other == other
}

const (
	// MemoryPropertyDeviceLocal is memory with the fastest device access
	MemoryPropertyDeviceLocal MemoryPropertyFlags = 1 << iota
	// MemoryPropertyCPUVisible memory can be mapped into host address space
	MemoryPropertyCPUVisible
	// MemoryPropertyCoherent memory does not need flushes or invalidations around host access
	MemoryPropertyCoherent
	// MemoryPropertyCPUCached memory is cached on the host, reads through a mapping are fast
	MemoryPropertyCPUCached
	// MemoryPropertyLazilyAllocated memory may only be committed when used
	MemoryPropertyLazilyAllocated
)

// MemoryHeapFlags describes a memory heap
type MemoryHeapFlags int32

var memoryHeapMapping = common.NewFlagStringMapping[MemoryHeapFlags]()

func (f MemoryHeapFlags) Register(str string) {
	memoryHeapMapping.Register(f, str)
}
func (f MemoryHeapFlags) String() string {
	return memoryHeapMapping.FlagsToString(f)
}

const (
	MemoryHeapDeviceLocal MemoryHeapFlags = 1 << iota
)

// BuildFlags are the acceleration structure build flags. Bit values match
// VkBuildAccelerationStructureFlagBitsKHR and D3D12_RAYTRACING_ACCELERATION_STRUCTURE_BUILD_FLAGS.
type BuildFlags int32

var buildFlagsMapping = common.NewFlagStringMapping[BuildFlags]()

func (f BuildFlags) Register(str string) {
	buildFlagsMapping.Register(f, str)
}
func (f BuildFlags) String() string {
	return buildFlagsMapping.FlagsToString(f)
}

func (f BuildFlags) Contains(other BuildFlags) bool {
	return f&other == other
}

const (
	// BuildAllowUpdate permits later builds to update this structure in place
	BuildAllowUpdate BuildFlags = 1 << iota
	// BuildAllowCompaction permits compacted size queries and Compact copies
	BuildAllowCompaction
	BuildPreferFastTrace
	BuildPreferFastBuild
	BuildLowMemory
)

// GeometryFlags apply to a single geometry within a build
type GeometryFlags int32

var geometryFlagsMapping = common.NewFlagStringMapping[GeometryFlags]()

func (f GeometryFlags) Register(str string) {
	geometryFlagsMapping.Register(f, str)
}
func (f GeometryFlags) String() string {
	return geometryFlagsMapping.FlagsToString(f)
}

const (
	// GeometryOpaque geometry never invokes any-hit shaders
	GeometryOpaque GeometryFlags = 1 << iota
	// GeometryNoDuplicateAnyHitInvocation guarantees a single any-hit invocation per primitive
	GeometryNoDuplicateAnyHitInvocation
)

// InstanceFlags occupy the top 8 bits of the second packed word of an Instance
type InstanceFlags uint8

const (
	InstanceTriangleFacingCullDisable InstanceFlags = 1 << iota
	InstanceTriangleFrontCounterclockwise
	InstanceForceOpaque
	InstanceForceNoOpaque
)

var instanceFlagNames = []string{
	"InstanceTriangleFacingCullDisable",
	"InstanceTriangleFrontCounterclockwise",
	"InstanceForceOpaque",
	"InstanceForceNoOpaque",
}

func (f InstanceFlags) Contains(other InstanceFlags) bool {
	return f&other == other
}

func (f InstanceFlags) String() string {
	if f == 0 {
		return "None"
	}

	var str string
	for bit, name := range instanceFlagNames {
		if f&(1<<bit) == 0 {
			continue
		}
		if str != "" {
			str += "|"
		}
		str += name
	}
	return str
}

// AccessFlags classify memory accesses for PipelineBarrier
type AccessFlags int32

var accessFlagsMapping = common.NewFlagStringMapping[AccessFlags]()

func (f AccessFlags) Register(str string) {
	accessFlagsMapping.Register(f, str)
}
func (f AccessFlags) String() string {
	return accessFlagsMapping.FlagsToString(f)
}

func (f AccessFlags) Contains(other AccessFlags) bool {
	return f&other == other
}

const (
	AccessShaderRead AccessFlags = 1 << iota
	AccessShaderWrite
	AccessTransferRead
	AccessTransferWrite
	AccessHostRead
	AccessHostWrite
	AccessAccelerationStructureRead
	AccessAccelerationStructureWrite
)

// PipelineStage identifies where in the pipeline a barrier waits or signals
type PipelineStage int32

var pipelineStageMapping = common.NewFlagStringMapping[PipelineStage]()

func (f PipelineStage) Register(str string) {
	pipelineStageMapping.Register(f, str)
}
func (f PipelineStage) String() string {
	return pipelineStageMapping.FlagsToString(f)
}

const (
	PipelineStageTopOfPipe PipelineStage = 1 << iota
	PipelineStageTransfer
	PipelineStageHost
	PipelineStageAccelerationStructureBuild
	PipelineStageRayTracingShader
	PipelineStageBottomOfPipe
)

// Features are optional device capabilities
type Features int32

var featuresMapping = common.NewFlagStringMapping[Features]()

func (f Features) Register(str string) {
	featuresMapping.Register(f, str)
}
func (f Features) String() string {
	return featuresMapping.FlagsToString(f)
}

func (f Features) Contains(other Features) bool {
	return f&other == other
}

const (
	FeatureAccelerationStructure Features = 1 << iota
	FeatureRayTracingPipeline
	FeatureRayQuery
	FeatureBufferDeviceAddress
)

// QueryResultFlags control GetQueryPoolResults
type QueryResultFlags int32

var queryResultMapping = common.NewFlagStringMapping[QueryResultFlags]()

func (f QueryResultFlags) Register(str string) {
	queryResultMapping.Register(f, str)
}
func (f QueryResultFlags) String() string {
	return queryResultMapping.FlagsToString(f)
}

const (
	// QueryResult64 writes results as uint64 instead of uint32
	QueryResult64 QueryResultFlags = 1 << iota
	// QueryResultWait blocks until every requested query is available
	QueryResultWait
	// QueryResultWithAvailability writes an availability word after each result
	QueryResultWithAvailability
	// QueryResultPartial writes whatever is known for unavailable queries
	QueryResultPartial
)

func init() {
	BufferUsageTransferSrc.Register("BufferUsageTransferSrc")
	BufferUsageTransferDst.Register("BufferUsageTransferDst")
	BufferUsageUniform.Register("BufferUsageUniform")
	BufferUsageStorage.Register("BufferUsageStorage")
	BufferUsageIndex.Register("BufferUsageIndex")
	BufferUsageVertex.Register("BufferUsageVertex")
	BufferUsageShaderBindingTable.Register("BufferUsageShaderBindingTable")
	BufferUsageShaderDeviceAddress.Register("BufferUsageShaderDeviceAddress")
	BufferUsageAccelerationStructureBuildInputReadOnly.Register("BufferUsageAccelerationStructureBuildInputReadOnly")
	BufferUsageAccelerationStructureStorage.Register("BufferUsageAccelerationStructureStorage")

	MemoryPropertyDeviceLocal.Register("MemoryPropertyDeviceLocal")
	MemoryPropertyCPUVisible.Register("MemoryPropertyCPUVisible")
	MemoryPropertyCoherent.Register("MemoryPropertyCoherent")
	MemoryPropertyCPUCached.Register("MemoryPropertyCPUCached")
	MemoryPropertyLazilyAllocated.Register("MemoryPropertyLazilyAllocated")

	MemoryHeapDeviceLocal.Register("MemoryHeapDeviceLocal")

	BuildAllowUpdate.Register("BuildAllowUpdate")
	BuildAllowCompaction.Register("BuildAllowCompaction")
	BuildPreferFastTrace.Register("BuildPreferFastTrace")
	BuildPreferFastBuild.Register("BuildPreferFastBuild")
	BuildLowMemory.Register("BuildLowMemory")

	GeometryOpaque.Register("GeometryOpaque")
	GeometryNoDuplicateAnyHitInvocation.Register("GeometryNoDuplicateAnyHitInvocation")

	AccessShaderRead.Register("AccessShaderRead")
	AccessShaderWrite.Register("AccessShaderWrite")
	AccessTransferRead.Register("AccessTransferRead")
	AccessTransferWrite.Register("AccessTransferWrite")
	AccessHostRead.Register("AccessHostRead")
	AccessHostWrite.Register("AccessHostWrite")
	AccessAccelerationStructureRead.Register("AccessAccelerationStructureRead")
	AccessAccelerationStructureWrite.Register("AccessAccelerationStructureWrite")

	PipelineStageTopOfPipe.Register("PipelineStageTopOfPipe")
	PipelineStageTransfer.Register("PipelineStageTransfer")
	PipelineStageHost.Register("PipelineStageHost")
	PipelineStageAccelerationStructureBuild.Register("PipelineStageAccelerationStructureBuild")
	PipelineStageRayTracingShader.Register("PipelineStageRayTracingShader")
	PipelineStageBottomOfPipe.Register("PipelineStageBottomOfPipe")

	FeatureAccelerationStructure.Register("FeatureAccelerationStructure")
	FeatureRayTracingPipeline.Register("FeatureRayTracingPipeline")
	FeatureRayQuery.Register("FeatureRayQuery")
	FeatureBufferDeviceAddress.Register("FeatureBufferDeviceAddress")

	QueryResult64.Register("QueryResult64")
	QueryResultWait.Register("QueryResultWait")
	QueryResultWithAvailability.Register("QueryResultWithAvailability")
	QueryResultPartial.Register("QueryResultPartial")
}
