// Package empty is a backend that accepts resource and synchronization calls without a GPU. Buffers and
// memory are plain host allocations, fences are always signaled, and anything touching acceleration
// structures fails with hal.ErrNotSupported. It stands in for a device in code paths that never build.
package empty

import (
	"log/slog"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/accel/hal"
	"github.com/vkngwrapper/accel/memutils"
)

const heapSize = 64 * 1024

var errNotSupported = errors.Wrap(hal.ErrNotSupported, "the empty backend has no acceleration structure support")

// Adapter is the single mock adapter of the empty backend
type Adapter struct {
	logger *slog.Logger
}

var _ hal.Adapter = &Adapter{}

func NewAdapter(logger *slog.Logger) *Adapter {
	return &Adapter{logger: logger}
}

func (a *Adapter) Info() hal.AdapterInfo {
	return hal.AdapterInfo{
		Name:     "Mock Device",
		DeviceID: 1234,
		Software: true,
	}
}

func (a *Adapter) Features() hal.Features {
	return 0
}

func (a *Adapter) Open(features hal.Features) (*hal.Gpu, error) {
	if features != 0 {
		return nil, errors.Wrapf(hal.ErrNotSupported, "requested features %s", features)
	}

	device := New(a.logger)
	return &hal.Gpu{
		Device: device,
		Queues: []hal.Queue{Queue{}},
	}, nil
}

type buffer struct {
	size  uint64
	usage hal.BufferUsage
}

func (b *buffer) Size() uint64           { return b.size }
func (b *buffer) Usage() hal.BufferUsage { return b.usage }

type memory struct {
	data []byte
}

func (m *memory) Size() uint64             { return uint64(len(m.data)) }
func (m *memory) TypeID() hal.MemoryTypeID { return 0 }

type commandBuffer struct {
	err error
}

func (c *commandBuffer) Begin() error {
	c.err = nil
	return nil
}

func (c *commandBuffer) Finish() error {
	return c.err
}

func (c *commandBuffer) Reset() error {
	c.err = nil
	return nil
}

func (c *commandBuffer) PipelineBarrier(srcStages, dstStages hal.PipelineStage, barriers []hal.MemoryBarrier) {
}

func (c *commandBuffer) BuildAccelerationStructures(infos []hal.BuildInfo) {
	for _, info := range infos {
		if info.Desc.Geometry == nil || len(info.Ranges) != len(info.Desc.Geometry.Geometries) {
			panic("build info must have one range per geometry")
		}
		info.Desc.Geometry.MustValidateShape()
	}
	c.err = errNotSupported
}

func (c *commandBuffer) CopyAccelerationStructure(src, dst hal.AccelerationStructure, mode hal.CopyMode) {
	c.err = errNotSupported
}

func (c *commandBuffer) WriteAccelerationStructuresProperties(structures []hal.AccelerationStructure, queryType hal.QueryType, pool hal.QueryPool, firstQuery uint32) {
	c.err = errNotSupported
}

func (c *commandBuffer) ResetQueryPool(pool hal.QueryPool, firstQuery, queryCount uint32) {
	c.err = errNotSupported
}

// Queue completes every submission immediately
type Queue struct{}

func (Queue) Submit(cmds []hal.CommandBuffer, fence hal.Fence) error { return nil }
func (Queue) WaitIdle() error                                        { return nil }

// Device is the empty backend's device
type Device struct {
	logger *slog.Logger
}

var _ hal.Device = &Device{}

// New opens the mock adapter's device
func New(logger *slog.Logger) *Device {
	return &Device{logger: logger}
}

func (d *Device) Limits() hal.Limits {
	return hal.Limits{NonCoherentAtomSize: 1}
}

func (d *Device) MemoryProperties() hal.MemoryProperties {
	return hal.MemoryProperties{
		Types: []hal.MemoryType{{
			Properties: hal.MemoryPropertyDeviceLocal | hal.MemoryPropertyCPUVisible |
				hal.MemoryPropertyCoherent | hal.MemoryPropertyCPUCached,
		}},
		Heaps: []hal.MemoryHeap{{Size: heapSize}},
	}
}

func (d *Device) Features() hal.Features {
	return 0
}

func (d *Device) CreateBuffer(size uint64, usage hal.BufferUsage) (hal.Buffer, error) {
	return &buffer{size: size, usage: usage}, nil
}

func (d *Device) GetBufferRequirements(handle hal.Buffer) hal.Requirements {
	return hal.Requirements{
		Size:      handle.(*buffer).size,
		Alignment: 1,
		TypeMask:  ^uint32(0),
	}
}

func (d *Device) BindBufferMemory(memory hal.Memory, offset uint64, buffer hal.Buffer) error {
	return nil
}

func (d *Device) GetBufferDeviceAddress(buffer hal.Buffer) uint64 {
	return 0
}

func (d *Device) SetBufferName(buffer hal.Buffer, name string) {}

func (d *Device) DestroyBuffer(buffer hal.Buffer) {}

func (d *Device) AllocateMemory(memoryType hal.MemoryTypeID, size uint64) (hal.Memory, error) {
	if memoryType != 0 {
		return nil, errors.Wrapf(hal.ErrCreation, "memory type %d does not exist", memoryType)
	}
	return &memory{data: make([]byte, size)}, nil
}

func (d *Device) MapMemory(handle hal.Memory, segment hal.Segment) ([]byte, error) {
	mem := handle.(*memory)
	size := segment.Size
	if size == hal.WholeSize {
		size = mem.Size() - min(segment.Offset, mem.Size())
	}

	err := memutils.CheckRange(segment.Offset, size, mem.Size())
	if err != nil {
		return nil, hal.Classify(err, hal.ErrMapFailed)
	}
	return mem.data[segment.Offset : segment.Offset+size], nil
}

func (d *Device) UnmapMemory(memory hal.Memory) {}

func (d *Device) FlushMappedMemoryRanges(ranges []hal.MappedRange) error {
	return nil
}

func (d *Device) InvalidateMappedMemoryRanges(ranges []hal.MappedRange) error {
	return nil
}

func (d *Device) FreeMemory(memory hal.Memory) {}

// GetAccelerationStructureBuildRequirements checks the same contract as a real device and reports
// zero sizes
func (d *Device) GetAccelerationStructureBuildRequirements(desc *hal.GeometryDesc, maxPrimitiveCounts []uint32) hal.SizeRequirements {
	desc.MustValidateShape()
	if len(maxPrimitiveCounts) != len(desc.Geometries) {
		panic("maxPrimitiveCounts must have one entry per geometry")
	}
	return hal.SizeRequirements{}
}

func (d *Device) CreateAccelerationStructure(desc hal.AccelerationStructureCreateDesc) (hal.AccelerationStructure, error) {
	return nil, errNotSupported
}

func (d *Device) GetAccelerationStructureAddress(as hal.AccelerationStructure) uint64 {
	return 0
}

func (d *Device) SetAccelerationStructureName(as hal.AccelerationStructure, name string) {}

func (d *Device) DestroyAccelerationStructure(as hal.AccelerationStructure) {}

func (d *Device) CreateQueryPool(queryType hal.QueryType, count uint32) (hal.QueryPool, error) {
	return nil, errNotSupported
}

func (d *Device) GetQueryPoolResults(pool hal.QueryPool, firstQuery, queryCount uint32, data []byte, stride uint64, flags hal.QueryResultFlags) (bool, error) {
	return false, errNotSupported
}

func (d *Device) DestroyQueryPool(pool hal.QueryPool) {}

func (d *Device) CreateCommandBuffer() (hal.CommandBuffer, error) {
	return &commandBuffer{}, nil
}

func (d *Device) DestroyCommandBuffer(cmd hal.CommandBuffer) {}

func (d *Device) CreateFence(signaled bool) (hal.Fence, error) {
	return struct{}{}, nil
}

func (d *Device) ResetFence(fence hal.Fence) error {
	return nil
}

func (d *Device) GetFenceStatus(fence hal.Fence) (bool, error) {
	return true, nil
}

func (d *Device) WaitForFence(fence hal.Fence, timeout time.Duration) (bool, error) {
	return true, nil
}

func (d *Device) DestroyFence(fence hal.Fence) {}

func (d *Device) WaitIdle() error {
	return nil
}

func (d *Device) Destroy() {
	d.logger.Debug("Device::Destroy")
}
