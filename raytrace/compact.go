package raytrace

import (
	"encoding/binary"
	"log/slog"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/accel/hal"
)

// QuerySize runs a single compacted size or serialization size query against structure
func (b *Builder) QuerySize(structure *Structure, queryType hal.QueryType) (uint64, error) {
	pool, err := b.device.CreateQueryPool(queryType, 1)
	if err != nil {
		return 0, err
	}

	err = SubmitAndWait(b.logger, b.device, b.queue, b.timeout, func(cmd hal.CommandBuffer) {
		cmd.ResetQueryPool(pool, 0, 1)
		cmd.WriteAccelerationStructuresProperties([]hal.AccelerationStructure{structure.AccelerationStructure}, queryType, pool, 0)
	})
	if errors.Is(err, hal.ErrWaitTimeout) {
		return 0, err
	}
	defer b.device.DestroyQueryPool(pool)
	if err != nil {
		return 0, err
	}

	var result [8]byte
	_, err = b.device.GetQueryPoolResults(pool, 0, 1, result[:], 8, hal.QueryResult64|hal.QueryResultWait)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(result[:]), nil
}

// Compact copies structure into a new structure sized by a compacted size query, destroys the original
// and points structure at the copy. The structure's device address changes, so top level structures
// referencing it must be rebuilt. It must have been built with BuildAllowCompaction.
func (b *Builder) Compact(structure *Structure) error {
	compactedSize, err := b.QuerySize(structure, hal.QueryTypeAccelerationStructureCompactedSize)
	if err != nil {
		return errors.Wrap(err, "failed to query compacted size")
	}

	compacted, err := NewStructure(b.device, structure.AccelerationStructure.Type(), compactedSize)
	if err != nil {
		return err
	}

	err = SubmitAndWait(b.logger, b.device, b.queue, b.timeout, func(cmd hal.CommandBuffer) {
		cmd.CopyAccelerationStructure(structure.AccelerationStructure, compacted.AccelerationStructure, hal.CopyModeCompact)
		cmd.PipelineBarrier(hal.PipelineStageAccelerationStructureBuild,
			hal.PipelineStageAccelerationStructureBuild|hal.PipelineStageRayTracingShader,
			[]hal.MemoryBarrier{hal.AccelerationStructureBuildBarrier})
	})
	if errors.Is(err, hal.ErrWaitTimeout) {
		return err
	}
	if err != nil {
		compacted.Destroy(b.device)
		return errors.Wrap(err, "failed to compact acceleration structure")
	}

	b.logger.Debug("Builder::Compact",
		slog.Uint64("originalSize", structure.AccelerationStructure.Size()),
		slog.Uint64("compactedSize", compactedSize))

	structure.Destroy(b.device)
	*structure = *compacted
	return nil
}
