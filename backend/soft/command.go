package soft

import (
	"fmt"
	"log/slog"
	"slices"
	"sync/atomic"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/accel/hal"
	"github.com/vkngwrapper/accel/memutils"
)

type commandBufferState int32

const (
	commandBufferInitial commandBufferState = iota
	commandBufferRecording
	commandBufferExecutable
	commandBufferPending
	commandBufferInvalid
)

func (s commandBufferState) String() string {
	switch s {
	case commandBufferInitial:
		return "Initial"
	case commandBufferRecording:
		return "Recording"
	case commandBufferExecutable:
		return "Executable"
	case commandBufferPending:
		return "Pending"
	case commandBufferInvalid:
		return "Invalid"
	}
	return fmt.Sprintf("commandBufferState(%d)", int32(s))
}

// command is one recorded operation. execute runs on the queue worker; an error is a GPU fault and
// loses the device.
type command interface {
	execute(d *Device) error
}

type commandBuffer struct {
	device *Device
	state  atomic.Int32

	commands []command
	err      error
	hazards  hazardTracker
}

var _ hal.CommandBuffer = &commandBuffer{}

func (d *Device) commandBufferFrom(handle hal.CommandBuffer) *commandBuffer {
	cmd, ok := handle.(*commandBuffer)
	if !ok || cmd.device != d {
		panic(errors.AssertionFailedf("command buffer %T was not created by this device", handle))
	}
	return cmd
}

func (d *Device) CreateCommandBuffer() (hal.CommandBuffer, error) {
	return &commandBuffer{device: d}, nil
}

func (d *Device) DestroyCommandBuffer(handle hal.CommandBuffer) {
	cmd := d.commandBufferFrom(handle)
	if cmd.currentState() == commandBufferPending {
		panic("command buffer was destroyed while pending")
	}
	cmd.state.Store(int32(commandBufferInvalid))
	cmd.commands = nil
}

func (c *commandBuffer) currentState() commandBufferState {
	return commandBufferState(c.state.Load())
}

func (c *commandBuffer) clear() {
	c.commands = nil
	c.err = nil
	c.hazards.reset()
}

func (c *commandBuffer) Begin() error {
	state := c.currentState()
	if state == commandBufferPending || state == commandBufferRecording {
		return errors.Newf("cannot begin a command buffer in the %s state", state)
	}

	c.clear()
	c.state.Store(int32(commandBufferRecording))
	return nil
}

// Finish ends recording. The first error met while recording is returned and the buffer becomes invalid.
func (c *commandBuffer) Finish() error {
	if state := c.currentState(); state != commandBufferRecording {
		return errors.Newf("cannot finish a command buffer in the %s state", state)
	}

	if c.err != nil {
		c.state.Store(int32(commandBufferInvalid))
		return c.err
	}

	c.state.Store(int32(commandBufferExecutable))
	return nil
}

func (c *commandBuffer) Reset() error {
	if state := c.currentState(); state == commandBufferPending {
		return errors.New("cannot reset a pending command buffer")
	}

	c.clear()
	c.state.Store(int32(commandBufferInitial))
	return nil
}

// recording panics outside Begin/Finish and reports false once a recording error is sticky
func (c *commandBuffer) recording() bool {
	if state := c.currentState(); state != commandBufferRecording {
		panic(fmt.Sprintf("command recorded into a command buffer in the %s state", state))
	}
	return c.err == nil
}

func (c *commandBuffer) fail(err error) {
	c.device.logger.Debug("CommandBuffer::fail", slog.Any("error", err))
	if c.err == nil {
		c.err = err
	}
}

func (c *commandBuffer) PipelineBarrier(srcStages, dstStages hal.PipelineStage, barriers []hal.MemoryBarrier) {
	if !c.recording() {
		return
	}

	for _, barrier := range barriers {
		if barrier.SrcAccess&hal.AccessAccelerationStructureWrite != 0 &&
			barrier.DstAccess&(hal.AccessAccelerationStructureRead|hal.AccessAccelerationStructureWrite) != 0 {
			c.hazards.barrier()
		}
	}
	c.commands = append(c.commands, barrierCommand{srcStages: srcStages, dstStages: dstStages})
}

// recordedBuild is a snapshot of one BuildInfo taken at record time, so callers may reuse their
// descriptions once the call returns
type recordedBuild struct {
	src           *accelerationStructure
	dst           *accelerationStructure
	geometry      hal.GeometryDesc
	ranges        []hal.BuildRangeDesc
	scratch       *buffer
	scratchOffset uint64
	scratchSize   uint64
}

func (c *commandBuffer) BuildAccelerationStructures(infos []hal.BuildInfo) {
	// Contract checks panic even when the buffer already holds an error
	for index, info := range infos {
		if info.Desc.Geometry == nil {
			panic(fmt.Sprintf("build %d has no geometry description", index))
		}
		if len(info.Ranges) != len(info.Desc.Geometry.Geometries) {
			panic(fmt.Sprintf("build %d has %d ranges for %d geometries", index, len(info.Ranges), len(info.Desc.Geometry.Geometries)))
		}
		info.Desc.Geometry.MustValidateShape()
	}

	if !c.recording() {
		return
	}

	builds := make([]recordedBuild, 0, len(infos))
	for index, info := range infos {
		build, err := c.recordBuild(info)
		if err != nil {
			c.fail(errors.Wrapf(err, "build %d", index))
			return
		}
		builds = append(builds, build)
	}

	for _, build := range builds {
		if build.src != nil {
			c.hazards.read(c.device.logger, build.src, "BuildAccelerationStructures")
		}
		c.hazards.write(build.dst)
	}
	c.commands = append(c.commands, buildCommand{builds: builds})
}

func (c *commandBuffer) recordBuild(info hal.BuildInfo) (recordedBuild, error) {
	d := c.device
	desc := info.Desc

	if desc.Dst == nil {
		return recordedBuild{}, errors.Wrap(hal.ErrCreation, "build has no destination")
	}
	dst := d.structureFrom(desc.Dst)
	if dst.structureType == hal.AccelerationStructureTypeGeneric {
		return recordedBuild{}, errors.Wrapf(hal.ErrInvalidBuildDestination, "destination %s", dst)
	}
	if desc.Geometry.Type != hal.AccelerationStructureTypeGeneric && desc.Geometry.Type != dst.structureType {
		return recordedBuild{}, errors.Wrapf(hal.ErrCreation, "%s geometry cannot be built into %s structure %s",
			desc.Geometry.Type, dst.structureType, dst)
	}

	geometry := hal.GeometryDesc{
		Flags:      desc.Geometry.Flags,
		Type:       dst.structureType,
		Geometries: slices.Clone(desc.Geometry.Geometries),
	}
	if err := geometry.Validate(); err != nil {
		return recordedBuild{}, err
	}

	limits := d.profile.Limits
	if uint64(len(geometry.Geometries)) > limits.MaxGeometryCount {
		return recordedBuild{}, errors.Wrapf(hal.ErrCreation, "%d geometries exceed the limit of %d",
			len(geometry.Geometries), limits.MaxGeometryCount)
	}

	counts := make([]uint32, len(info.Ranges))
	var primitives uint64
	for index, buildRange := range info.Ranges {
		counts[index] = buildRange.PrimitiveCount
		primitives += uint64(buildRange.PrimitiveCount)
	}
	maxPrimitives := limits.MaxPrimitiveCount
	if dst.structureType == hal.AccelerationStructureTypeTopLevel {
		maxPrimitives = limits.MaxInstanceCount
	}
	if primitives > maxPrimitives {
		return recordedBuild{}, errors.Wrapf(hal.ErrCreation, "%d primitives exceed the limit of %d", primitives, maxPrimitives)
	}

	build := recordedBuild{
		dst:           dst,
		geometry:      geometry,
		ranges:        slices.Clone(info.Ranges),
		scratchOffset: desc.ScratchOffset,
	}

	requirements := buildRequirements(&geometry, counts)
	build.scratchSize = requirements.BuildScratchSize

	if desc.IsUpdate() {
		if !geometry.Flags.Contains(hal.BuildAllowUpdate) {
			return recordedBuild{}, errors.Wrap(hal.ErrCreation, "updates must be recorded with BuildAllowUpdate")
		}
		build.src = d.structureFrom(desc.Src)
		if build.src.structureType != dst.structureType {
			return recordedBuild{}, errors.Wrapf(hal.ErrCreation, "cannot update %s structure %s into %s structure %s",
				build.src.structureType, build.src, dst.structureType, dst)
		}
		build.scratchSize = requirements.UpdateScratchSize
	}

	if build.scratchSize > 0 {
		if desc.Scratch == nil {
			return recordedBuild{}, errors.Wrapf(hal.ErrCreation, "build needs %d bytes of scratch", build.scratchSize)
		}
		build.scratch = d.bufferFrom(desc.Scratch)
		if !memutils.IsAligned(desc.ScratchOffset, limits.MinAccelerationStructureScratchOffsetAlignment) {
			return recordedBuild{}, errors.Wrapf(hal.ErrCreation, "scratch offset %d is not a multiple of %d",
				desc.ScratchOffset, limits.MinAccelerationStructureScratchOffsetAlignment)
		}
		if err := memutils.CheckRange(desc.ScratchOffset, build.scratchSize, build.scratch.size); err != nil {
			return recordedBuild{}, hal.Classify(errors.Wrap(err, "scratch buffer is too small"), hal.ErrCreation)
		}
		if _, _, bound := build.scratch.binding(); !bound {
			return recordedBuild{}, errors.Wrap(hal.ErrCreation, "scratch buffer is not bound to memory")
		}
	}

	return build, nil
}

func (c *commandBuffer) CopyAccelerationStructure(srcHandle, dstHandle hal.AccelerationStructure, mode hal.CopyMode) {
	if !c.recording() {
		return
	}

	src := c.device.structureFrom(srcHandle)
	dst := c.device.structureFrom(dstHandle)
	if src == dst {
		c.fail(errors.Wrapf(hal.ErrCreation, "cannot copy %s onto itself", src))
		return
	}
	if mode < hal.CopyModeClone || mode > hal.CopyModeDeserialize {
		c.fail(errors.Wrapf(hal.ErrCreation, "unknown copy mode %s", mode))
		return
	}
	if (mode == hal.CopyModeClone || mode == hal.CopyModeCompact) && dst.structureType != hal.AccelerationStructureTypeGeneric &&
		src.structureType != hal.AccelerationStructureTypeGeneric && dst.structureType != src.structureType {
		c.fail(errors.Wrapf(hal.ErrCreation, "cannot copy %s structure %s into %s structure %s",
			src.structureType, src, dst.structureType, dst))
		return
	}

	c.hazards.read(c.device.logger, src, "CopyAccelerationStructure")
	c.hazards.write(dst)
	c.commands = append(c.commands, copyCommand{src: src, dst: dst, mode: mode})
}

func (c *commandBuffer) WriteAccelerationStructuresProperties(structures []hal.AccelerationStructure, queryType hal.QueryType, poolHandle hal.QueryPool, firstQuery uint32) {
	if !c.recording() {
		return
	}

	pool := c.device.queryPoolFrom(poolHandle)
	if pool.queryType != queryType {
		c.fail(errors.Wrapf(hal.ErrCreation, "%s queries cannot be written to a %s pool", queryType, pool.queryType))
		return
	}
	if err := pool.checkRange(firstQuery, uint32(len(structures))); err != nil {
		c.fail(err)
		return
	}

	targets := make([]*accelerationStructure, 0, len(structures))
	for _, handle := range structures {
		as := c.device.structureFrom(handle)
		c.hazards.read(c.device.logger, as, "WriteAccelerationStructuresProperties")
		targets = append(targets, as)
	}

	c.commands = append(c.commands, queryCommand{
		structures: targets,
		queryType:  queryType,
		pool:       pool,
		firstQuery: firstQuery,
	})
}

func (c *commandBuffer) ResetQueryPool(poolHandle hal.QueryPool, firstQuery, queryCount uint32) {
	if !c.recording() {
		return
	}

	pool := c.device.queryPoolFrom(poolHandle)
	if err := pool.checkRange(firstQuery, queryCount); err != nil {
		c.fail(err)
		return
	}
	c.commands = append(c.commands, resetQueryCommand{pool: pool, firstQuery: firstQuery, queryCount: queryCount})
}

// hazardTracker remembers structures written since the last acceleration structure barrier. It only
// warns: callers own synchronization.
type hazardTracker struct {
	written map[*accelerationStructure]struct{}
}

func (h *hazardTracker) reset() {
	h.written = nil
}

func (h *hazardTracker) barrier() {
	clear(h.written)
}

func (h *hazardTracker) write(as *accelerationStructure) {
	if h.written == nil {
		h.written = make(map[*accelerationStructure]struct{})
	}
	h.written[as] = struct{}{}
}

func (h *hazardTracker) read(logger *slog.Logger, as *accelerationStructure, operation string) {
	if _, ok := h.written[as]; !ok {
		return
	}
	logger.Warn("acceleration structure read without a barrier after its last write",
		slog.String("structure", as.String()),
		slog.String("operation", operation),
		slog.String("missing", hal.AccessAccelerationStructureWrite.String()+" -> "+hal.AccessAccelerationStructureRead.String()))
}
