package vulkan

import (
	"github.com/vkngwrapper/core/v2/common"
	"github.com/vkngwrapper/core/v2/core1_0"
)

//go:generate mockgen -source accel_driver.go -destination ./mocks/accel_driver.go -package mocks

// Handle is a VkAccelerationStructureKHR
type Handle uint64

// BuildMode mirrors VkBuildAccelerationStructureModeKHR
type BuildMode int32

const (
	BuildModeBuild BuildMode = iota
	BuildModeUpdate
)

// GeometryType mirrors VkGeometryTypeKHR
type GeometryType int32

const (
	GeometryTypeTriangles GeometryType = iota
	GeometryTypeAabbs
	GeometryTypeInstances
)

// CopyMode mirrors VkCopyAccelerationStructureModeKHR
type CopyMode int32

const (
	CopyModeClone CopyMode = iota
	CopyModeCompact
	CopyModeSerialize
	CopyModeDeserialize
)

// TrianglesData mirrors VkAccelerationStructureGeometryTrianglesDataKHR. Every buffer is given by its
// device address.
type TrianglesData struct {
	VertexFormat  core1_0.Format
	VertexData    uint64
	VertexStride  uint64
	MaxVertex     uint32
	IndexType     core1_0.IndexType
	IndexData     uint64
	TransformData uint64
}

// AabbsData mirrors VkAccelerationStructureGeometryAabbsDataKHR
type AabbsData struct {
	Data   uint64
	Stride uint64
}

// InstancesData mirrors VkAccelerationStructureGeometryInstancesDataKHR. Instances are always packed,
// never an array of pointers.
type InstancesData struct {
	Data uint64
}

// GeometryInfo mirrors VkAccelerationStructureGeometryKHR. Only the member selected by Type is read.
type GeometryInfo struct {
	Type      GeometryType
	Flags     uint32
	Triangles TrianglesData
	Aabbs     AabbsData
	Instances InstancesData
}

// BuildGeometryInfo mirrors VkAccelerationStructureBuildGeometryInfoKHR
type BuildGeometryInfo struct {
	Type           uint32
	Flags          uint32
	Mode           BuildMode
	Src            Handle
	Dst            Handle
	Geometries     []GeometryInfo
	ScratchAddress uint64
}

// BuildRangeInfo mirrors VkAccelerationStructureBuildRangeInfoKHR
type BuildRangeInfo struct {
	PrimitiveCount  uint32
	PrimitiveOffset uint32
	FirstVertex     uint32
	TransformOffset uint32
}

// BuildSizes mirrors VkAccelerationStructureBuildSizesInfoKHR
type BuildSizes struct {
	AccelerationStructureSize uint64
	UpdateScratchSize         uint64
	BuildScratchSize          uint64
}

// CreateInfo mirrors VkAccelerationStructureCreateInfoKHR
type CreateInfo struct {
	Buffer core1_0.Buffer
	Offset uint64
	Size   uint64
	Type   uint32
}

// AccelerationStructureProperties mirrors VkPhysicalDeviceAccelerationStructurePropertiesKHR
type AccelerationStructureProperties struct {
	MaxGeometryCount          uint64
	MaxInstanceCount          uint64
	MaxPrimitiveCount         uint64
	MinScratchOffsetAlignment uint64
}

// AccelerationStructureDriver issues VK_KHR_acceleration_structure commands. Host builds are never
// used, so every command is recorded into a command buffer. Implementations load the entry points with
// vkGetDeviceProcAddr for the device they were created for.
type AccelerationStructureDriver interface {
	Properties() AccelerationStructureProperties
	GetBuildSizes(info BuildGeometryInfo, maxPrimitiveCounts []uint32) BuildSizes

	CreateAccelerationStructure(info CreateInfo) (Handle, common.VkResult, error)
	DestroyAccelerationStructure(handle Handle)
	GetDeviceAddress(handle Handle) uint64

	CmdBuildAccelerationStructures(commandBuffer core1_0.CommandBuffer, infos []BuildGeometryInfo, ranges [][]BuildRangeInfo)
	CmdCopyAccelerationStructure(commandBuffer core1_0.CommandBuffer, src, dst Handle, mode CopyMode)
	CmdCopyAccelerationStructureToMemory(commandBuffer core1_0.CommandBuffer, src Handle, dstAddress uint64)
	CmdCopyMemoryToAccelerationStructure(commandBuffer core1_0.CommandBuffer, srcAddress uint64, dst Handle)
	CmdWriteAccelerationStructuresProperties(commandBuffer core1_0.CommandBuffer, handles []Handle, queryType core1_0.QueryType, queryPool core1_0.QueryPool, firstQuery int)
}
