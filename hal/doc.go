// Package hal is the backend-agnostic surface for building ray tracing acceleration structures.
//
// It holds the resource handles (buffers, memory, acceleration structures, query pools, fences), the
// geometry descriptions fed into builds, the size query results, and the GPU-resident byte layouts
// that hardware reads directly: Instance (64 bytes), TransformMatrix (48 bytes) and AabbPositions
// (24 bytes). Backends under backend/ implement Device, CommandBuffer and Queue.
//
// The usual flow is: describe geometry with a GeometryDesc, ask the Device for SizeRequirements,
// allocate buffers of those sizes, create an AccelerationStructure in the storage buffer, then record
// BuildAccelerationStructures into a CommandBuffer and submit it to a Queue. Builds, copies and
// property writes are asynchronous; a Fence or Queue.WaitIdle tells the host when they are done.
package hal
