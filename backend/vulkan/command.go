package vulkan

import (
	"fmt"
	"log/slog"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/accel/hal"
	"github.com/vkngwrapper/accel/memutils"
	"github.com/vkngwrapper/core/v2/core1_0"
)

type commandBufferState int32

const (
	commandBufferInitial commandBufferState = iota
	commandBufferRecording
	commandBufferExecutable
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
	case commandBufferInvalid:
		return "Invalid"
	}
	return fmt.Sprintf("commandBufferState(%d)", int32(s))
}

// commandBuffer validates commands the way the other backends do and forwards the valid ones to a
// VkCommandBuffer allocated from the device's command pool
type commandBuffer struct {
	device *Device
	vulkan core1_0.CommandBuffer
	state  commandBufferState
	err    error
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
	d.poolLock.Lock()
	defer d.poolLock.Unlock()

	buffers, res, err := d.device.AllocateCommandBuffers(core1_0.CommandBufferAllocateInfo{
		CommandPool:        d.commandPool,
		Level:              core1_0.CommandBufferLevelPrimary,
		CommandBufferCount: 1,
	})
	if err != nil {
		return nil, hal.Classify(translateResult(res, err, "failed to allocate command buffer"), hal.ErrCreation)
	}

	return &commandBuffer{
		device: d,
		vulkan: buffers[0],
	}, nil
}

func (d *Device) DestroyCommandBuffer(handle hal.CommandBuffer) {
	cmd := d.commandBufferFrom(handle)
	if cmd.vulkan == nil {
		panic("command buffer was destroyed twice")
	}

	d.poolLock.Lock()
	defer d.poolLock.Unlock()

	d.device.FreeCommandBuffers([]core1_0.CommandBuffer{cmd.vulkan})
	cmd.vulkan = nil
	cmd.state = commandBufferInvalid
}

func (c *commandBuffer) Begin() error {
	if c.state == commandBufferRecording {
		return errors.New("command buffer is already recording")
	}

	res, err := c.vulkan.Begin(core1_0.CommandBufferBeginInfo{})
	if err != nil {
		return translateResult(res, err, "failed to begin command buffer")
	}

	c.err = nil
	c.state = commandBufferRecording
	return nil
}

// Finish ends recording. The first error met while recording is returned and the buffer becomes invalid.
func (c *commandBuffer) Finish() error {
	if c.state != commandBufferRecording {
		return errors.Newf("cannot finish a command buffer in the %s state", c.state)
	}

	res, err := c.vulkan.End()
	if err != nil {
		c.state = commandBufferInvalid
		return translateResult(res, err, "failed to end command buffer")
	}

	if c.err != nil {
		c.state = commandBufferInvalid
		return c.err
	}

	c.state = commandBufferExecutable
	return nil
}

func (c *commandBuffer) Reset() error {
	res, err := c.vulkan.Reset(0)
	if err != nil {
		return translateResult(res, err, "failed to reset command buffer")
	}

	c.err = nil
	c.state = commandBufferInitial
	return nil
}

func (c *commandBuffer) recording() bool {
	if c.state != commandBufferRecording {
		panic(fmt.Sprintf("command recorded into a command buffer in the %s state", c.state))
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

	vulkanBarriers := make([]core1_0.MemoryBarrier, 0, len(barriers))
	for _, barrier := range barriers {
		vulkanBarriers = append(vulkanBarriers, core1_0.MemoryBarrier{
			SrcAccessMask: translateAccess(barrier.SrcAccess),
			DstAccessMask: translateAccess(barrier.DstAccess),
		})
	}

	err := c.vulkan.CmdPipelineBarrier(translatePipelineStages(srcStages), translatePipelineStages(dstStages), 0, vulkanBarriers, nil, nil)
	if err != nil {
		c.fail(errors.Wrap(err, "failed to record pipeline barrier"))
	}
}

func (c *commandBuffer) BuildAccelerationStructures(infos []hal.BuildInfo) {
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

	vulkanInfos := make([]BuildGeometryInfo, 0, len(infos))
	vulkanRanges := make([][]BuildRangeInfo, 0, len(infos))
	for index, info := range infos {
		vulkanInfo, err := c.translateBuild(info)
		if err != nil {
			c.fail(errors.Wrapf(err, "build %d", index))
			return
		}

		ranges := make([]BuildRangeInfo, 0, len(info.Ranges))
		for _, buildRange := range info.Ranges {
			ranges = append(ranges, BuildRangeInfo{
				PrimitiveCount:  buildRange.PrimitiveCount,
				PrimitiveOffset: buildRange.PrimitiveOffset,
				FirstVertex:     buildRange.FirstVertex,
				TransformOffset: buildRange.TransformOffset,
			})
		}

		vulkanInfos = append(vulkanInfos, vulkanInfo)
		vulkanRanges = append(vulkanRanges, ranges)
	}

	c.device.accel.CmdBuildAccelerationStructures(c.vulkan, vulkanInfos, vulkanRanges)
}

func (c *commandBuffer) translateBuild(info hal.BuildInfo) (BuildGeometryInfo, error) {
	d := c.device
	desc := info.Desc

	if desc.Dst == nil {
		return BuildGeometryInfo{}, errors.Wrap(hal.ErrCreation, "build has no destination")
	}
	dst := d.structureFrom(desc.Dst)
	if dst.structureType == hal.AccelerationStructureTypeGeneric {
		return BuildGeometryInfo{}, errors.Wrapf(hal.ErrInvalidBuildDestination, "destination %s", dst)
	}
	if desc.Geometry.Type != hal.AccelerationStructureTypeGeneric && desc.Geometry.Type != dst.structureType {
		return BuildGeometryInfo{}, errors.Wrapf(hal.ErrCreation, "%s geometry cannot be built into %s structure %s",
			desc.Geometry.Type, dst.structureType, dst)
	}

	geometry := *desc.Geometry
	geometry.Type = dst.structureType
	if err := geometry.Validate(); err != nil {
		return BuildGeometryInfo{}, err
	}

	if uint64(len(geometry.Geometries)) > d.limits.MaxGeometryCount {
		return BuildGeometryInfo{}, errors.Wrapf(hal.ErrCreation, "%d geometries exceed the limit of %d",
			len(geometry.Geometries), d.limits.MaxGeometryCount)
	}

	counts := make([]uint32, len(info.Ranges))
	var primitives uint64
	for index, buildRange := range info.Ranges {
		counts[index] = buildRange.PrimitiveCount
		primitives += uint64(buildRange.PrimitiveCount)
	}
	maxPrimitives := d.limits.MaxPrimitiveCount
	if dst.structureType == hal.AccelerationStructureTypeTopLevel {
		maxPrimitives = d.limits.MaxInstanceCount
	}
	if primitives > maxPrimitives {
		return BuildGeometryInfo{}, errors.Wrapf(hal.ErrCreation, "%d primitives exceed the limit of %d", primitives, maxPrimitives)
	}

	vulkanInfo := d.translateGeometry(&geometry, dst.structureType)
	vulkanInfo.Dst = dst.handle

	requirements := d.GetAccelerationStructureBuildRequirements(&geometry, counts)
	scratchSize := requirements.BuildScratchSize

	if desc.IsUpdate() {
		if !geometry.Flags.Contains(hal.BuildAllowUpdate) {
			return BuildGeometryInfo{}, errors.Wrap(hal.ErrCreation, "updates must be recorded with BuildAllowUpdate")
		}
		src := d.structureFrom(desc.Src)
		if src.structureType != dst.structureType {
			return BuildGeometryInfo{}, errors.Wrapf(hal.ErrCreation, "cannot update %s structure %s into %s structure %s",
				src.structureType, src, dst.structureType, dst)
		}
		vulkanInfo.Mode = BuildModeUpdate
		vulkanInfo.Src = src.handle
		scratchSize = requirements.UpdateScratchSize
	}

	if scratchSize > 0 {
		if desc.Scratch == nil {
			return BuildGeometryInfo{}, errors.Wrapf(hal.ErrCreation, "build needs %d bytes of scratch", scratchSize)
		}
		scratch := d.bufferFrom(desc.Scratch)
		if !memutils.IsAligned(desc.ScratchOffset, d.limits.MinAccelerationStructureScratchOffsetAlignment) {
			return BuildGeometryInfo{}, errors.Wrapf(hal.ErrCreation, "scratch offset %d is not a multiple of %d",
				desc.ScratchOffset, d.limits.MinAccelerationStructureScratchOffsetAlignment)
		}
		if err := memutils.CheckRange(desc.ScratchOffset, scratchSize, scratch.size); err != nil {
			return BuildGeometryInfo{}, hal.Classify(errors.Wrap(err, "scratch buffer is too small"), hal.ErrCreation)
		}
		address := d.addressAt(scratch, desc.ScratchOffset)
		if address == 0 {
			return BuildGeometryInfo{}, errors.Wrap(hal.ErrCreation, "scratch buffer has no device address")
		}
		vulkanInfo.ScratchAddress = address
	}

	return vulkanInfo, nil
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
	if (mode == hal.CopyModeClone || mode == hal.CopyModeCompact) && dst.structureType != hal.AccelerationStructureTypeGeneric &&
		src.structureType != hal.AccelerationStructureTypeGeneric && dst.structureType != src.structureType {
		c.fail(errors.Wrapf(hal.ErrCreation, "cannot copy %s structure %s into %s structure %s",
			src.structureType, src, dst.structureType, dst))
		return
	}

	accel := c.device.accel
	switch mode {
	case hal.CopyModeClone:
		accel.CmdCopyAccelerationStructure(c.vulkan, src.handle, dst.handle, CopyModeClone)
	case hal.CopyModeCompact:
		accel.CmdCopyAccelerationStructure(c.vulkan, src.handle, dst.handle, CopyModeCompact)
	case hal.CopyModeSerialize:
		// The blob lands in the destination's storage, where a later Deserialize reads it back
		if dst.buffer.address == 0 {
			c.fail(errors.Wrapf(hal.ErrCreation, "serialization target %s has no device address", dst))
			return
		}
		accel.CmdCopyAccelerationStructureToMemory(c.vulkan, src.handle, dst.storageAddress())
	case hal.CopyModeDeserialize:
		if src.buffer.address == 0 {
			c.fail(errors.Wrapf(hal.ErrCreation, "serialized source %s has no device address", src))
			return
		}
		accel.CmdCopyMemoryToAccelerationStructure(c.vulkan, src.storageAddress(), dst.handle)
	default:
		c.fail(errors.Wrapf(hal.ErrCreation, "unknown copy mode %s", mode))
	}
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

	handles := make([]Handle, 0, len(structures))
	for _, handle := range structures {
		handles = append(handles, c.device.structureFrom(handle).handle)
	}

	vulkanType, _ := translateQueryType(queryType)
	c.device.accel.CmdWriteAccelerationStructuresProperties(c.vulkan, handles, vulkanType, pool.vulkan, int(firstQuery))
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
	c.vulkan.CmdResetQueryPool(pool.vulkan, int(firstQuery), int(queryCount))
}
