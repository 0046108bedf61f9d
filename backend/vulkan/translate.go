package vulkan

import (
	"github.com/vkngwrapper/accel/hal"
	"github.com/vkngwrapper/core/v2/core1_0"
)

// VkFormat values of the vertex formats acceleration structures accept
var vertexFormats = map[hal.Format]core1_0.Format{
	hal.FormatR32G32Sfloat:       core1_0.Format(103),
	hal.FormatR32G32B32Sfloat:    core1_0.Format(106),
	hal.FormatR16G16Sfloat:       core1_0.Format(83),
	hal.FormatR16G16B16A16Sfloat: core1_0.Format(97),
	hal.FormatR16G16Snorm:        core1_0.Format(78),
	hal.FormatR16G16B16A16Snorm:  core1_0.Format(92),
}

const (
	indexTypeUint16 core1_0.IndexType = 0
	indexTypeUint32 core1_0.IndexType = 1
	// VK_INDEX_TYPE_NONE_KHR
	indexTypeNone core1_0.IndexType = 1000165000
)

const (
	pipelineStageAccelerationStructureBuild core1_0.PipelineStageFlags = 0x02000000
	pipelineStageRayTracingShader           core1_0.PipelineStageFlags = 0x00200000

	accessAccelerationStructureRead  core1_0.AccessFlags = 0x00200000
	accessAccelerationStructureWrite core1_0.AccessFlags = 0x00400000
)

const (
	queryTypeCompactedSize     core1_0.QueryType = 1000150000
	queryTypeSerializationSize core1_0.QueryType = 1000150001
)

var pipelineStages = []struct {
	stage  hal.PipelineStage
	vulkan core1_0.PipelineStageFlags
}{
	{hal.PipelineStageTopOfPipe, core1_0.PipelineStageTopOfPipe},
	{hal.PipelineStageTransfer, core1_0.PipelineStageTransfer},
	{hal.PipelineStageHost, core1_0.PipelineStageHost},
	{hal.PipelineStageAccelerationStructureBuild, pipelineStageAccelerationStructureBuild},
	{hal.PipelineStageRayTracingShader, pipelineStageRayTracingShader},
	{hal.PipelineStageBottomOfPipe, core1_0.PipelineStageBottomOfPipe},
}

var accessFlags = []struct {
	access hal.AccessFlags
	vulkan core1_0.AccessFlags
}{
	{hal.AccessShaderRead, core1_0.AccessShaderRead},
	{hal.AccessShaderWrite, core1_0.AccessShaderWrite},
	{hal.AccessTransferRead, core1_0.AccessTransferRead},
	{hal.AccessTransferWrite, core1_0.AccessTransferWrite},
	{hal.AccessHostRead, core1_0.AccessHostRead},
	{hal.AccessHostWrite, core1_0.AccessHostWrite},
	{hal.AccessAccelerationStructureRead, accessAccelerationStructureRead},
	{hal.AccessAccelerationStructureWrite, accessAccelerationStructureWrite},
}

var memoryProperties = []struct {
	property hal.MemoryPropertyFlags
	vulkan   core1_0.MemoryPropertyFlags
}{
	{hal.MemoryPropertyDeviceLocal, core1_0.MemoryPropertyDeviceLocal},
	{hal.MemoryPropertyCPUVisible, core1_0.MemoryPropertyHostVisible},
	{hal.MemoryPropertyCoherent, core1_0.MemoryPropertyHostCoherent},
	{hal.MemoryPropertyCPUCached, core1_0.MemoryPropertyHostCached},
	{hal.MemoryPropertyLazilyAllocated, core1_0.MemoryPropertyLazilyAllocated},
}

func translatePipelineStages(stages hal.PipelineStage) core1_0.PipelineStageFlags {
	var flags core1_0.PipelineStageFlags
	for _, entry := range pipelineStages {
		if stages&entry.stage != 0 {
			flags |= entry.vulkan
		}
	}
	return flags
}

func translateAccess(access hal.AccessFlags) core1_0.AccessFlags {
	var flags core1_0.AccessFlags
	for _, entry := range accessFlags {
		if access.Contains(entry.access) {
			flags |= entry.vulkan
		}
	}
	return flags
}

func translateMemoryProperties(properties *core1_0.PhysicalDeviceMemoryProperties) hal.MemoryProperties {
	var out hal.MemoryProperties

	for _, memoryType := range properties.MemoryTypes {
		var flags hal.MemoryPropertyFlags
		for _, entry := range memoryProperties {
			if memoryType.PropertyFlags&entry.vulkan != 0 {
				flags |= entry.property
			}
		}
		out.Types = append(out.Types, hal.MemoryType{
			Properties: flags,
			HeapIndex:  memoryType.HeapIndex,
		})
	}

	for _, heap := range properties.MemoryHeaps {
		var flags hal.MemoryHeapFlags
		if heap.Flags&core1_0.MemoryHeapDeviceLocal != 0 {
			flags |= hal.MemoryHeapDeviceLocal
		}
		out.Heaps = append(out.Heaps, hal.MemoryHeap{
			Size:  uint64(heap.Size),
			Flags: flags,
		})
	}

	return out
}

// translateBufferUsage converts usage to Vulkan. hal usage bits are VkBufferUsageFlagBits.
func translateBufferUsage(usage hal.BufferUsage) core1_0.BufferUsageFlags {
	return core1_0.BufferUsageFlags(usage)
}

func translateQueryType(queryType hal.QueryType) (core1_0.QueryType, bool) {
	switch queryType {
	case hal.QueryTypeAccelerationStructureCompactedSize:
		return queryTypeCompactedSize, true
	case hal.QueryTypeAccelerationStructureSerializationSize:
		return queryTypeSerializationSize, true
	}
	return 0, false
}

// translateQueryResultFlags converts flags to Vulkan. hal query result bits are VkQueryResultFlagBits.
func translateQueryResultFlags(flags hal.QueryResultFlags) core1_0.QueryResultFlags {
	return core1_0.QueryResultFlags(flags)
}
