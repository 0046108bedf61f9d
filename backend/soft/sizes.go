package soft

import (
	"fmt"

	"github.com/vkngwrapper/accel/hal"
	"github.com/vkngwrapper/accel/memutils"
)

const (
	sizeGranularity uint64 = hal.AccelerationStructureAlignment

	// A build keeps one bounds + centroid + index entry per primitive in scratch
	scratchBaseSize           uint64 = 256
	scratchPerPrimitive       uint64 = 40
	updateScratchPerPrimitive uint64 = 24
)

// worstCaseNodes bounds the node count of a BVH over primitiveCount primitives with at least one
// primitive per leaf
func worstCaseNodes(primitiveCount uint64) uint64 {
	if primitiveCount == 0 {
		return 1
	}
	return 2*primitiveCount - 1
}

func buildRequirements(desc *hal.GeometryDesc, primitiveCounts []uint32) hal.SizeRequirements {
	if len(primitiveCounts) != len(desc.Geometries) {
		panic(fmt.Sprintf("%d primitive counts were provided for %d geometries", len(primitiveCounts), len(desc.Geometries)))
	}
	desc.MustValidateShape()

	var primitives uint64
	for _, count := range primitiveCounts {
		primitives += uint64(count)
	}

	kind, ok := desc.Kind()
	if !ok {
		return hal.SizeRequirements{
			AccelerationStructureSize: memutils.AlignUp(blobSize(0, 1, 0, 0), sizeGranularity),
		}
	}

	requirements := hal.SizeRequirements{
		AccelerationStructureSize: memutils.AlignUp(
			blobSize(uint64(len(desc.Geometries)), worstCaseNodes(primitives), primitives, recordSize(kind)),
			sizeGranularity,
		),
		BuildScratchSize: memutils.AlignUp(scratchBaseSize+primitives*scratchPerPrimitive, sizeGranularity),
	}

	if desc.Flags.Contains(hal.BuildAllowUpdate) {
		requirements.UpdateScratchSize = memutils.AlignUp(scratchBaseSize+primitives*updateScratchPerPrimitive, sizeGranularity)
	}

	return requirements
}

func (d *Device) GetAccelerationStructureBuildRequirements(desc *hal.GeometryDesc, maxPrimitiveCounts []uint32) hal.SizeRequirements {
	return buildRequirements(desc, maxPrimitiveCounts)
}
