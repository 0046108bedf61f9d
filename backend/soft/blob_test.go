package soft

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/accel/hal"
)

func TestHalfToFloat32(t *testing.T) {
	require.Equal(t, float32(0), halfToFloat32(0x0000))
	require.Equal(t, float32(1), halfToFloat32(0x3C00))
	require.Equal(t, float32(-2), halfToFloat32(0xC000))
	require.Equal(t, float32(65504), halfToFloat32(0x7BFF))
	require.Equal(t, float32(math.Ldexp(1, -24)), halfToFloat32(0x0001))
	require.True(t, math.IsInf(float64(halfToFloat32(0x7C00)), 1))
	require.True(t, math.IsNaN(float64(halfToFloat32(0x7E00))))
}

func TestDecodeVertex(t *testing.T) {
	vertex, err := decodeVertex(hal.FormatR16G16Snorm, []byte{0xFF, 0x7F, 0x01, 0x80})
	require.NoError(t, err)
	require.Equal(t, [3]float32{1, -1, 0}, vertex)

	vertex, err = decodeVertex(hal.FormatR16G16B16A16Sfloat, []byte{0x00, 0x3C, 0x00, 0xC0, 0x00, 0x00, 0x00, 0x3C})
	require.NoError(t, err)
	require.Equal(t, [3]float32{1, -2, 0}, vertex)

	_, err = decodeVertex(hal.FormatR32G32B32Sfloat, make([]byte, 8))
	require.Error(t, err)
	_, err = decodeVertex(hal.FormatUndefined, make([]byte, 16))
	require.Error(t, err)
}

func randomRefs(rng *rand.Rand, count int) []primitiveRef {
	refs := make([]primitiveRef, count)
	for index := range refs {
		var box hal.AabbPositions
		for axis := 0; axis < 3; axis++ {
			box.Min[axis] = rng.Float32() * 100
			box.Max[axis] = box.Min[axis] + rng.Float32()*5
		}
		refs[index] = primitiveRef{bounds: box, centroid: box.Centroid(), record: []byte{byte(index)}}
	}
	return refs
}

// checkTree walks the tree from node and returns the records it covers
func checkTree(t *testing.T, nodes []blobNode, refs []primitiveRef, node uint32, covered []bool) {
	current := nodes[node]
	if current.isLeaf() {
		first, count := current.leafRange()
		for record := first; record < first+count; record++ {
			require.False(t, covered[record])
			covered[record] = true
			require.Equal(t, current.bounds.Union(refs[record].bounds), current.bounds)
		}
		return
	}

	require.Greater(t, current.a, node)
	require.Greater(t, current.b, node)
	require.Equal(t, current.bounds, nodes[current.a].bounds.Union(nodes[current.b].bounds))
	checkTree(t, nodes, refs, current.a, covered)
	checkTree(t, nodes, refs, current.b, covered)
}

func TestBvhCoversEveryPrimitive(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	flagSets := []hal.BuildFlags{0, hal.BuildPreferFastTrace, hal.BuildPreferFastBuild, hal.BuildLowMemory}

	for _, flags := range flagSets {
		for _, count := range []int{1, 2, 3, 7, 64, 500} {
			builder := newBvhBuilder(randomRefs(rng, count), flags)
			nodes := builder.build()
			require.LessOrEqual(t, uint64(len(nodes)), worstCaseNodes(uint64(count)))

			covered := make([]bool, count)
			checkTree(t, nodes, builder.refs, 0, covered)
			for _, ok := range covered {
				require.True(t, ok)
			}
		}
	}

	empty := newBvhBuilder(nil, 0).build()
	require.Len(t, empty, 1)
	require.True(t, empty[0].isLeaf())
	require.True(t, empty[0].bounds.IsEmpty())
}

func TestRefit(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	builder := newBvhBuilder(randomRefs(rng, 40), 0)
	nodes := builder.build()

	moved := make([]hal.AabbPositions, len(builder.refs))
	for index, ref := range builder.refs {
		moved[index] = ref.bounds.Transform(hal.TranslationTransform(0, 50, 0))
	}
	refit(nodes, moved)

	for index := range builder.refs {
		builder.refs[index].bounds = moved[index]
	}
	checkTree(t, nodes, builder.refs, 0, make([]bool, 40))

	expected := hal.EmptyAabb()
	for _, box := range moved {
		expected = expected.Union(box)
	}
	require.Equal(t, expected, nodes[0].bounds)
}

func TestSizeQueryCoversBuiltBlob(t *testing.T) {
	rng := rand.New(rand.NewSource(3))

	for _, kind := range []hal.GeometryKind{hal.GeometryKindTriangles, hal.GeometryKindAabbs, hal.GeometryKindInstances} {
		var data hal.GeometryData
		structureType := hal.AccelerationStructureTypeBottomLevel
		switch kind {
		case hal.GeometryKindTriangles:
			data = hal.GeometryTriangles{}
		case hal.GeometryKindAabbs:
			data = hal.GeometryAabbs{}
		case hal.GeometryKindInstances:
			data = hal.GeometryInstances{}
			structureType = hal.AccelerationStructureTypeTopLevel
		}

		for _, count := range []int{1, 5, 100, 1000} {
			desc := &hal.GeometryDesc{Type: structureType, Geometries: []hal.Geometry{{Data: data}}}
			requirements := buildRequirements(desc, []uint32{uint32(count)})

			nodes := newBvhBuilder(randomRefs(rng, count), hal.BuildPreferFastTrace).build()
			used := blobSize(1, uint64(len(nodes)), uint64(count), recordSize(kind))
			require.LessOrEqual(t, used, requirements.AccelerationStructureSize)
			require.Greater(t, requirements.BuildScratchSize, uint64(0))
		}
	}
}

func TestBlobHeader(t *testing.T) {
	data := make([]byte, 1024)
	header := blobHeader{
		structureType: hal.AccelerationStructureTypeBottomLevel,
		kind:          hal.GeometryKindAabbs,
		flags:         hal.BuildAllowUpdate | hal.BuildAllowCompaction,
		geometryCount: 2,
		nodeCount:     3,
		recordCount:   4,
		bounds:        hal.AabbPositions{Min: [3]float32{-1, -2, -3}, Max: [3]float32{1, 2, 3}},
	}

	out, err := newBlob(data, header)
	require.NoError(t, err)
	out.setNode(1, blobNode{bounds: header.bounds, a: 2, b: leafFlag | 2})
	putRecordIdentity(out.record(3), hal.GeometryKindAabbs, 1, 9)

	opened, err := openBlob(data)
	require.NoError(t, err)
	require.Equal(t, out.header, opened.header)
	require.Equal(t, uint64(64+2*16+3*32+4*32), opened.header.usedSize)

	node := opened.node(1)
	require.True(t, node.isLeaf())
	first, count := node.leafRange()
	require.Equal(t, uint32(2), first)
	require.Equal(t, uint32(2), count)
	require.Equal(t, header.bounds, node.bounds)

	geometryIndex, primitiveIndex := opened.recordIdentity(3)
	require.Equal(t, uint32(1), geometryIndex)
	require.Equal(t, uint32(9), primitiveIndex)

	_, err = openBlob(make([]byte, 1024))
	require.ErrorIs(t, err, errNotBuilt)

	_, err = openBlob(data[:100])
	require.Error(t, err)

	_, err = newBlob(make([]byte, 128), header)
	require.Error(t, err)
}
