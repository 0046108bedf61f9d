package hal

import "time"

// Device creates and destroys resources and answers size queries. Handles passed to a Device must have
// been created by the same Device. Destroy and Free methods must not be called while submitted work
// may still reference the object.
type Device interface {
	Limits() Limits
	MemoryProperties() MemoryProperties
	Features() Features

	// CreateBuffer fails with ErrCreation if size is 0 or usage is empty or unknown
	CreateBuffer(size uint64, usage BufferUsage) (Buffer, error)
	GetBufferRequirements(buffer Buffer) Requirements
	// BindBufferMemory binds buffer to memory at offset, once. It fails with ErrBind on misalignment,
	// insufficient memory size, an incompatible memory type or a second bind.
	BindBufferMemory(memory Memory, offset uint64, buffer Buffer) error
	// GetBufferDeviceAddress returns 0 unless the buffer has BufferUsageShaderDeviceAddress and is bound
	GetBufferDeviceAddress(buffer Buffer) uint64
	SetBufferName(buffer Buffer, name string)
	DestroyBuffer(buffer Buffer)

	// AllocateMemory fails with ErrOutOfDeviceMemory or ErrOutOfHostMemory if the type's heap cannot fit size
	AllocateMemory(memoryType MemoryTypeID, size uint64) (Memory, error)
	// MapMemory returns a host view of the segment. It fails with ErrMapFailed if the memory is not
	// CPU visible or is already mapped.
	MapMemory(memory Memory, segment Segment) ([]byte, error)
	UnmapMemory(memory Memory)
	FlushMappedMemoryRanges(ranges []MappedRange) error
	InvalidateMappedMemoryRanges(ranges []MappedRange) error
	FreeMemory(memory Memory)

	// GetAccelerationStructureBuildRequirements is a pure query: identical inputs give identical results
	// and no GPU work happens. maxPrimitiveCounts holds one upper bound per geometry; a length mismatch
	// panics, as does a GeometryDesc failing ValidateShape.
	GetAccelerationStructureBuildRequirements(desc *GeometryDesc, maxPrimitiveCounts []uint32) SizeRequirements
	// CreateAccelerationStructure fails with ErrCreation if the offset is not a multiple of
	// AccelerationStructureAlignment, the buffer is unbound or lacks BufferUsageAccelerationStructureStorage,
	// or the region runs past the end of the buffer.
	CreateAccelerationStructure(desc AccelerationStructureCreateDesc) (AccelerationStructure, error)
	// GetAccelerationStructureAddress returns the value to store in Instance.AccelerationStructureReference
	GetAccelerationStructureAddress(as AccelerationStructure) uint64
	SetAccelerationStructureName(as AccelerationStructure, name string)
	// DestroyAccelerationStructure releases the handle but not its backing buffer
	DestroyAccelerationStructure(as AccelerationStructure)

	CreateQueryPool(queryType QueryType, count uint32) (QueryPool, error)
	// GetQueryPoolResults writes queryCount results, stride bytes apart, into data. It returns false
	// when some result was not available and QueryResultWait was not requested.
	GetQueryPoolResults(pool QueryPool, firstQuery, queryCount uint32, data []byte, stride uint64, flags QueryResultFlags) (bool, error)
	DestroyQueryPool(pool QueryPool)

	CreateCommandBuffer() (CommandBuffer, error)
	DestroyCommandBuffer(cmd CommandBuffer)

	CreateFence(signaled bool) (Fence, error)
	ResetFence(fence Fence) error
	GetFenceStatus(fence Fence) (bool, error)
	// WaitForFence returns false, nil if the timeout elapsed first. Pass WaitForever to wait indefinitely.
	WaitForFence(fence Fence, timeout time.Duration) (bool, error)
	DestroyFence(fence Fence)

	WaitIdle() error
	// Destroy waits for outstanding work and releases the device. Objects created from it must already
	// have been destroyed.
	Destroy()
}

// CommandBuffer records work for a Queue. Recording is single threaded. Errors found while recording
// are sticky and returned from Finish; later commands are dropped until Reset.
type CommandBuffer interface {
	Begin() error
	Finish() error
	Reset() error

	PipelineBarrier(srcStages, dstStages PipelineStage, barriers []MemoryBarrier)
	// BuildAccelerationStructures panics if a BuildInfo has a different number of ranges than geometries,
	// or a GeometryDesc mixes variants
	BuildAccelerationStructures(infos []BuildInfo)
	CopyAccelerationStructure(src, dst AccelerationStructure, mode CopyMode)
	WriteAccelerationStructuresProperties(structures []AccelerationStructure, queryType QueryType, pool QueryPool, firstQuery uint32)
	ResetQueryPool(pool QueryPool, firstQuery, queryCount uint32)
}

// Queue executes submitted command buffers in submission order
type Queue interface {
	// Submit returns once the work is queued. fence may be nil.
	Submit(cmds []CommandBuffer, fence Fence) error
	WaitIdle() error
}

// AdapterInfo describes a physical device
type AdapterInfo struct {
	Name     string
	Vendor   uint32
	DeviceID uint32
	Software bool
}

// Adapter is a physical device that can be opened
type Adapter interface {
	Info() AdapterInfo
	Features() Features
	// Open creates a logical device with the requested features
	Open(features Features) (*Gpu, error)
}

// Gpu is an opened device together with its queues
type Gpu struct {
	Device Device
	Queues []Queue
}
