package soft

import (
	"encoding/binary"
	"log/slog"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/vkngwrapper/accel/hal"
	"github.com/vkngwrapper/accel/memutils"
)

// Serialized structures start with a header naming the producing driver, so that a structure is never
// deserialized by a device with a different layout:
//
//	driver uuid         16 bytes
//	compatibility uuid  16 bytes
//	serialized size     8 bytes
//	blob size           8 bytes
const serializedHeaderSize = 48

type barrierCommand struct {
	srcStages hal.PipelineStage
	dstStages hal.PipelineStage
}

// Execution is in order on one worker, so barriers have nothing left to do
func (c barrierCommand) execute(d *Device) error {
	return nil
}

type buildCommand struct {
	builds []recordedBuild
}

func (c buildCommand) execute(d *Device) error {
	for index := range c.builds {
		build := &c.builds[index]

		var err error
		if build.src != nil {
			err = d.executeUpdate(build)
		} else {
			err = d.executeBuild(build)
		}
		if err != nil {
			return errors.Wrapf(err, "building %s", build.dst)
		}
	}
	return nil
}

// poisonScratch checks the scratch range is still backed and clobbers it. Builds keep their working
// set on the host, but callers must not rely on scratch contents either way.
func (d *Device) poisonScratch(build *recordedBuild) error {
	if build.scratch == nil {
		return nil
	}
	scratch, err := build.scratch.region(build.scratchOffset, build.scratchSize)
	if err != nil {
		return errors.Wrap(err, "scratch")
	}
	memutils.DebugPoison(scratch)
	return nil
}

func (d *Device) executeBuild(build *recordedBuild) error {
	if err := d.poisonScratch(build); err != nil {
		return err
	}

	kind, _ := build.geometry.Kind()
	recBytes := recordSize(kind)

	geometries := make([]blobGeometry, len(build.geometry.Geometries))
	var refs []primitiveRef

	for geometryIndex, geometry := range build.geometry.Geometries {
		buildRange := build.ranges[geometryIndex]
		reader, err := d.newPrimitiveReader(geometry, buildRange)
		if err != nil {
			return errors.Wrapf(err, "geometry %d", geometryIndex)
		}

		geometries[geometryIndex] = blobGeometry{flags: geometry.Flags, primitiveCount: buildRange.PrimitiveCount}
		for primitive := uint32(0); primitive < buildRange.PrimitiveCount; primitive++ {
			rec := make([]byte, recBytes)
			bounds, active, err := reader.read(primitive, rec)
			if err != nil {
				return errors.Wrapf(err, "geometry %d primitive %d", geometryIndex, primitive)
			}
			if !active {
				continue
			}

			putRecordIdentity(rec, kind, uint32(geometryIndex), primitive)
			refs = append(refs, primitiveRef{bounds: bounds, centroid: bounds.Centroid(), record: rec})
			geometries[geometryIndex].recordCount++
		}
	}

	nodes := newBvhBuilder(refs, build.geometry.Flags).build()

	storage, err := build.dst.storage()
	if err != nil {
		return err
	}
	out, err := newBlob(storage, blobHeader{
		structureType: build.dst.structureType,
		kind:          kind,
		flags:         build.geometry.Flags,
		geometryCount: uint32(len(geometries)),
		nodeCount:     uint32(len(nodes)),
		recordCount:   uint32(len(refs)),
		bounds:        nodes[0].bounds,
	})
	if err != nil {
		return err
	}

	for index, geometry := range geometries {
		out.setGeometry(uint32(index), geometry)
	}
	for index, node := range nodes {
		out.setNode(uint32(index), node)
	}
	for index, ref := range refs {
		copy(out.record(uint32(index)), ref.record)
	}

	build.dst.setState(StateBuilt)
	d.logger.Debug("Device::executeBuild",
		slog.String("structure", build.dst.String()),
		slog.Int("records", len(refs)),
		slog.Int("nodes", len(nodes)),
		slog.Uint64("usedSize", out.header.usedSize))
	return nil
}

func (d *Device) executeUpdate(build *recordedBuild) error {
	if err := d.poisonScratch(build); err != nil {
		return err
	}

	srcStorage, err := build.src.storage()
	if err != nil {
		return err
	}
	src, err := openBlob(srcStorage)
	if err != nil {
		return errors.Wrapf(err, "update source %s", build.src)
	}

	kind, _ := build.geometry.Kind()
	switch {
	case !src.header.flags.Contains(hal.BuildAllowUpdate):
		return errors.Newf("update source %s was built without BuildAllowUpdate", build.src)
	case src.header.flags != build.geometry.Flags:
		return errors.Newf("update flags %s differ from build flags %s", build.geometry.Flags, src.header.flags)
	case int(src.header.geometryCount) != len(build.geometry.Geometries):
		return errors.Newf("update has %d geometries, source has %d", len(build.geometry.Geometries), src.header.geometryCount)
	case src.header.geometryCount > 0 && src.header.kind != kind:
		return errors.Newf("update geometry is %s, source holds %s", kind, src.header.kind)
	}

	readers := make([]primitiveReader, len(build.geometry.Geometries))
	for index, geometry := range build.geometry.Geometries {
		if count := src.geometry(uint32(index)).primitiveCount; count != build.ranges[index].PrimitiveCount {
			return errors.Newf("geometry %d has %d primitives, source was built with %d",
				index, build.ranges[index].PrimitiveCount, count)
		}
		readers[index], err = d.newPrimitiveReader(geometry, build.ranges[index])
		if err != nil {
			return errors.Wrapf(err, "geometry %d", index)
		}
	}

	dstStorage := srcStorage
	if build.dst != build.src {
		dstStorage, err = build.dst.storage()
		if err != nil {
			return err
		}
		if err := memutils.CheckRange(0, src.header.usedSize, uint64(len(dstStorage))); err != nil {
			return errors.Wrapf(err, "update destination %s", build.dst)
		}
		copy(dstStorage, src.data)
	}

	out, err := openBlob(dstStorage)
	if err != nil {
		return err
	}

	recordBounds := make([]hal.AabbPositions, out.header.recordCount)
	for index := range recordBounds {
		geometryIndex, primitive := out.recordIdentity(uint32(index))
		bounds, active, err := readers[geometryIndex].read(primitive, out.record(uint32(index)))
		if err != nil {
			return errors.Wrapf(err, "geometry %d primitive %d", geometryIndex, primitive)
		}
		if !active {
			bounds = hal.EmptyAabb()
		}
		recordBounds[index] = bounds
	}

	nodes := make([]blobNode, out.header.nodeCount)
	for index := range nodes {
		nodes[index] = out.node(uint32(index))
	}
	refit(nodes, recordBounds)
	for index, node := range nodes {
		out.setNode(uint32(index), node)
	}

	out.header.bounds = nodes[0].bounds
	out.writeHeader()

	build.dst.setState(StateUpdated)
	d.logger.Debug("Device::executeUpdate", slog.String("src", build.src.String()), slog.String("dst", build.dst.String()))
	return nil
}

type copyCommand struct {
	src  *accelerationStructure
	dst  *accelerationStructure
	mode hal.CopyMode
}

func (c copyCommand) execute(d *Device) error {
	srcStorage, err := c.src.storage()
	if err != nil {
		return err
	}
	dstStorage, err := c.dst.storage()
	if err != nil {
		return err
	}

	if c.mode == hal.CopyModeDeserialize {
		return d.deserialize(srcStorage, dstStorage, c.dst)
	}

	src, err := openBlob(srcStorage)
	if err != nil {
		return errors.Wrapf(err, "%s copy source %s", c.mode, c.src)
	}

	switch c.mode {
	case hal.CopyModeClone:
		if c.dst.size < c.src.size {
			return errors.Newf("clone destination %s holds %d bytes, source %s holds %d", c.dst, c.dst.size, c.src, c.src.size)
		}
		copy(dstStorage, src.data)
		c.dst.setState(c.src.currentState())

	case hal.CopyModeCompact:
		if !src.header.flags.Contains(hal.BuildAllowCompaction) {
			return errors.Newf("compaction source %s was built without BuildAllowCompaction", c.src)
		}
		if err := memutils.CheckRange(0, src.header.usedSize, uint64(len(dstStorage))); err != nil {
			return errors.Wrapf(err, "compaction destination %s", c.dst)
		}
		copy(dstStorage, src.data)
		c.dst.setState(StateCompacted)

	case hal.CopyModeSerialize:
		total := serializedHeaderSize + src.header.usedSize
		if err := memutils.CheckRange(0, total, uint64(len(dstStorage))); err != nil {
			return errors.Wrapf(err, "serialization destination %s", c.dst)
		}
		driver := d.profile.DriverUUID
		compatibility := compatibilityUUID(driver)
		copy(dstStorage[0:16], driver[:])
		copy(dstStorage[16:32], compatibility[:])
		binary.LittleEndian.PutUint64(dstStorage[32:], total)
		binary.LittleEndian.PutUint64(dstStorage[40:], src.header.usedSize)
		copy(dstStorage[serializedHeaderSize:], src.data)
		c.dst.setState(StateUnbuilt)
	}

	d.logger.Debug("Device::executeCopy",
		slog.String("mode", c.mode.String()),
		slog.String("src", c.src.String()),
		slog.String("dst", c.dst.String()))
	return nil
}

// compatibilityUUID changes whenever the blob layout does
func compatibilityUUID(driver uuid.UUID) uuid.UUID {
	return uuid.NewSHA1(driver, []byte("acceleration structure blob v1"))
}

func (d *Device) deserialize(src []byte, dst []byte, target *accelerationStructure) error {
	if len(src) < serializedHeaderSize {
		return errors.New("serialized structure is truncated")
	}

	driver, err := uuid.FromBytes(src[0:16])
	if err != nil {
		return err
	}
	compatibility, err := uuid.FromBytes(src[16:32])
	if err != nil {
		return err
	}
	if driver != d.profile.DriverUUID || compatibility != compatibilityUUID(d.profile.DriverUUID) {
		return errors.Newf("serialized structure from driver %s is not compatible with driver %s", driver, d.profile.DriverUUID)
	}

	total := binary.LittleEndian.Uint64(src[32:])
	size := binary.LittleEndian.Uint64(src[40:])
	if total != serializedHeaderSize+size || total > uint64(len(src)) {
		return errors.Newf("serialized structure claims %d bytes, source holds %d", total, len(src))
	}
	if err := memutils.CheckRange(0, size, uint64(len(dst))); err != nil {
		return errors.Wrapf(err, "deserialization destination %s", target)
	}

	copy(dst, src[serializedHeaderSize:total])
	restored, err := openBlob(dst)
	if err != nil {
		return errors.Wrap(err, "deserialized structure")
	}
	if target.structureType != hal.AccelerationStructureTypeGeneric && restored.header.structureType != target.structureType {
		return errors.Newf("deserialized %s structure into %s structure %s", restored.header.structureType, target.structureType, target)
	}

	target.setState(StateBuilt)
	return nil
}

type queryCommand struct {
	structures []*accelerationStructure
	queryType  hal.QueryType
	pool       *queryPool
	firstQuery uint32
}

func (c queryCommand) execute(d *Device) error {
	for index, as := range c.structures {
		storage, err := as.storage()
		if err != nil {
			return err
		}
		built, err := openBlob(storage)
		if err != nil {
			return errors.Wrapf(err, "%s query of %s", c.queryType, as)
		}

		var value uint64
		switch c.queryType {
		case hal.QueryTypeAccelerationStructureCompactedSize:
			if !built.header.flags.Contains(hal.BuildAllowCompaction) {
				return errors.Newf("compacted size query of %s, which was built without BuildAllowCompaction", as)
			}
			value = built.header.usedSize
		case hal.QueryTypeAccelerationStructureSerializationSize:
			value = serializedHeaderSize + built.header.usedSize
		}

		c.pool.write(c.firstQuery+uint32(index), value)
	}
	return nil
}

type resetQueryCommand struct {
	pool       *queryPool
	firstQuery uint32
	queryCount uint32
}

func (c resetQueryCommand) execute(d *Device) error {
	c.pool.reset(c.firstQuery, c.queryCount)
	return nil
}
