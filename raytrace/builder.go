package raytrace

import (
	"log/slog"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/accel/hal"
)

// Builder builds, updates and compacts acceleration structures with one submission per operation,
// waiting for each before returning
type Builder struct {
	logger  *slog.Logger
	device  hal.Device
	queue   hal.Queue
	timeout time.Duration
}

func NewBuilder(logger *slog.Logger, device hal.Device, queue hal.Queue, timeout time.Duration) *Builder {
	return &Builder{
		logger:  logger,
		device:  device,
		queue:   queue,
		timeout: timeout,
	}
}

func primitiveCounts(ranges []hal.BuildRangeDesc) []uint32 {
	counts := make([]uint32, len(ranges))
	for i, buildRange := range ranges {
		counts[i] = buildRange.PrimitiveCount
	}
	return counts
}

func (b *Builder) newScratch(size uint64) (hal.Buffer, hal.Memory, error) {
	return CreateDeviceBuffer(b.device, hal.BufferUsageStorage|hal.BufferUsageShaderDeviceAddress, max(size, 1))
}

func (b *Builder) destroyScratch(buffer hal.Buffer, memory hal.Memory) {
	b.device.DestroyBuffer(buffer)
	b.device.FreeMemory(memory)
}

// recordBuild records info followed by a barrier that publishes the result to later builds and traces
func recordBuild(cmd hal.CommandBuffer, info hal.BuildInfo) {
	cmd.BuildAccelerationStructures([]hal.BuildInfo{info})
	cmd.PipelineBarrier(hal.PipelineStageAccelerationStructureBuild,
		hal.PipelineStageAccelerationStructureBuild|hal.PipelineStageRayTracingShader,
		[]hal.MemoryBarrier{hal.AccelerationStructureBuildBarrier})
}

// Build sizes a new structure of desc.Type for ranges, builds desc into it and waits for the build
func (b *Builder) Build(desc *hal.GeometryDesc, ranges []hal.BuildRangeDesc) (*Structure, error) {
	sizes := b.device.GetAccelerationStructureBuildRequirements(desc, primitiveCounts(ranges))

	structure, err := NewStructure(b.device, desc.Type, sizes.AccelerationStructureSize)
	if err != nil {
		return nil, err
	}

	scratch, scratchMemory, err := b.newScratch(sizes.BuildScratchSize)
	if err != nil {
		structure.Destroy(b.device)
		return nil, err
	}

	err = SubmitAndWait(b.logger, b.device, b.queue, b.timeout, func(cmd hal.CommandBuffer) {
		recordBuild(cmd, hal.BuildInfo{
			Desc: hal.BuildDesc{
				Dst:      structure.AccelerationStructure,
				Geometry: desc,
				Scratch:  scratch,
			},
			Ranges: ranges,
		})
	})
	if errors.Is(err, hal.ErrWaitTimeout) {
		// the build may still be using both
		return nil, err
	}
	b.destroyScratch(scratch, scratchMemory)
	if err != nil {
		structure.Destroy(b.device)
		return nil, errors.Wrapf(err, "failed to build %s acceleration structure", desc.Type)
	}

	b.logger.Debug("Builder::Build",
		slog.String("type", desc.Type.String()),
		slog.Uint64("size", sizes.AccelerationStructureSize),
		slog.Uint64("scratch", sizes.BuildScratchSize))
	return structure, nil
}

// BuildTopLevel uploads instances and builds a top level structure over them
func (b *Builder) BuildTopLevel(instances []hal.Instance, flags hal.BuildFlags) (*Structure, error) {
	if len(instances) == 0 {
		return nil, errors.Wrap(hal.ErrCreation, "a top level build needs at least one instance")
	}

	buffer, memory, err := UploadToBuffer(b.logger, b.device,
		hal.BufferUsageAccelerationStructureBuildInputReadOnly|hal.BufferUsageShaderDeviceAddress,
		hal.EncodeInstances(instances))
	if err != nil {
		return nil, err
	}

	desc := &hal.GeometryDesc{
		Flags: flags,
		Type:  hal.AccelerationStructureTypeTopLevel,
		Geometries: []hal.Geometry{{
			Data: hal.GeometryInstances{Buffer: buffer},
		}},
	}
	structure, err := b.Build(desc, []hal.BuildRangeDesc{{PrimitiveCount: uint32(len(instances))}})
	if errors.Is(err, hal.ErrWaitTimeout) {
		return nil, err
	}

	b.device.DestroyBuffer(buffer)
	b.device.FreeMemory(memory)
	return structure, err
}

// Update refits structure in place from desc, which must match the geometry it was built from apart
// from vertex, aabb or instance contents. The structure must have been built with BuildAllowUpdate.
func (b *Builder) Update(structure *Structure, desc *hal.GeometryDesc, ranges []hal.BuildRangeDesc) error {
	sizes := b.device.GetAccelerationStructureBuildRequirements(desc, primitiveCounts(ranges))
	if !desc.Flags.Contains(hal.BuildAllowUpdate) {
		return errors.Wrap(hal.ErrCreation, "update requires BuildAllowUpdate")
	}

	scratch, scratchMemory, err := b.newScratch(sizes.UpdateScratchSize)
	if err != nil {
		return err
	}

	err = SubmitAndWait(b.logger, b.device, b.queue, b.timeout, func(cmd hal.CommandBuffer) {
		recordBuild(cmd, hal.BuildInfo{
			Desc: hal.BuildDesc{
				Src:      structure.AccelerationStructure,
				Dst:      structure.AccelerationStructure,
				Geometry: desc,
				Scratch:  scratch,
			},
			Ranges: ranges,
		})
	})
	if errors.Is(err, hal.ErrWaitTimeout) {
		return err
	}
	b.destroyScratch(scratch, scratchMemory)
	return err
}
