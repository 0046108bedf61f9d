package soft

import (
	"encoding/binary"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/accel/hal"
	"github.com/vkngwrapper/accel/memutils"
)

// primitiveReader fetches the primitives of one geometry for one build range, as the GPU would while
// executing a build. read encodes the primitive into the front of rec and returns its bounds. A false
// result marks an inactive primitive: a degenerate aabb or an instance with a null reference.
type primitiveReader interface {
	read(primitive uint32, rec []byte) (hal.AabbPositions, bool, error)
}

func (d *Device) newPrimitiveReader(geometry hal.Geometry, buildRange hal.BuildRangeDesc) (primitiveReader, error) {
	switch data := geometry.Data.(type) {
	case hal.GeometryTriangles:
		return d.newTriangleReader(data, buildRange)
	case hal.GeometryAabbs:
		bytes, err := d.bufferFrom(data.Buffer).bytes()
		if err != nil {
			return nil, err
		}
		return &aabbReader{data: bytes, base: data.BufferOffset + uint64(buildRange.PrimitiveOffset), stride: data.BufferStride}, nil
	case hal.GeometryInstances:
		bytes, err := d.bufferFrom(data.Buffer).bytes()
		if err != nil {
			return nil, err
		}
		return &instanceReader{device: d, data: bytes, base: data.BufferOffset + uint64(buildRange.PrimitiveOffset)}, nil
	}
	return nil, errors.AssertionFailedf("unknown geometry data %T", geometry.Data)
}

type triangleReader struct {
	geometry    hal.GeometryTriangles
	buildRange  hal.BuildRangeDesc
	vertices    []byte
	vertexBase  uint64
	indices     []byte
	indexBase   uint64
	transform   hal.TransformMatrix
	transformed bool
}

func (d *Device) newTriangleReader(geometry hal.GeometryTriangles, buildRange hal.BuildRangeDesc) (*triangleReader, error) {
	reader := &triangleReader{
		geometry:   geometry,
		buildRange: buildRange,
		vertexBase: geometry.VertexBufferOffset,
	}

	var err error
	reader.vertices, err = d.bufferFrom(geometry.VertexBuffer).bytes()
	if err != nil {
		return nil, errors.Wrap(err, "vertex buffer")
	}

	if geometry.Index != nil {
		reader.indices, err = d.bufferFrom(geometry.Index.Buffer).bytes()
		if err != nil {
			return nil, errors.Wrap(err, "index buffer")
		}
		reader.indexBase = geometry.Index.Offset + uint64(buildRange.PrimitiveOffset)
	} else {
		reader.vertexBase += uint64(buildRange.PrimitiveOffset)
	}

	if geometry.Transform != nil {
		matrix, err := d.bufferFrom(geometry.Transform.Buffer).region(
			geometry.Transform.Offset+uint64(buildRange.TransformOffset), hal.TransformMatrixSize)
		if err != nil {
			return nil, errors.Wrap(err, "transform buffer")
		}
		reader.transform = hal.DecodeTransformMatrix(matrix)
		reader.transformed = true
	}

	return reader, nil
}

func (r *triangleReader) vertexIndex(primitive uint32, corner uint32) (uint64, error) {
	first := uint64(r.buildRange.FirstVertex)
	if r.geometry.Index == nil {
		return first + uint64(primitive)*3 + uint64(corner), nil
	}

	size := r.geometry.Index.Type.Size()
	offset := r.indexBase + (uint64(primitive)*3+uint64(corner))*size
	if err := memutils.CheckRange(offset, size, uint64(len(r.indices))); err != nil {
		return 0, errors.Wrap(err, "index read")
	}

	if r.geometry.Index.Type == hal.IndexTypeU16 {
		return first + uint64(binary.LittleEndian.Uint16(r.indices[offset:])), nil
	}
	return first + uint64(binary.LittleEndian.Uint32(r.indices[offset:])), nil
}

func (r *triangleReader) read(primitive uint32, rec []byte) (hal.AabbPositions, bool, error) {
	var triangle [3][3]float32
	bounds := hal.EmptyAabb()

	for corner := uint32(0); corner < 3; corner++ {
		index, err := r.vertexIndex(primitive, corner)
		if err != nil {
			return bounds, false, err
		}
		if index > uint64(r.geometry.MaxVertex) {
			return bounds, false, errors.Newf("vertex index %d exceeds max vertex %d", index, r.geometry.MaxVertex)
		}

		offset := r.vertexBase + index*r.geometry.VertexBufferStride
		if err := memutils.CheckRange(offset, r.geometry.VertexFormat.Size(), uint64(len(r.vertices))); err != nil {
			return bounds, false, errors.Wrap(err, "vertex read")
		}

		vertex, err := decodeVertex(r.geometry.VertexFormat, r.vertices[offset:])
		if err != nil {
			return bounds, false, err
		}
		if r.transformed {
			vertex = r.transform.TransformPoint(vertex)
		}

		triangle[corner] = vertex
		bounds = bounds.Extend(vertex)
	}

	encodeTriangle(rec, triangle)
	return bounds, true, nil
}

type aabbReader struct {
	data   []byte
	base   uint64
	stride uint64
}

func (r *aabbReader) read(primitive uint32, rec []byte) (hal.AabbPositions, bool, error) {
	offset := r.base + uint64(primitive)*r.stride
	if err := memutils.CheckRange(offset, hal.AabbPositionsSize, uint64(len(r.data))); err != nil {
		return hal.AabbPositions{}, false, errors.Wrap(err, "aabb read")
	}

	copy(rec[:hal.AabbPositionsSize], r.data[offset:offset+hal.AabbPositionsSize])
	box := hal.DecodeAabbPositions(rec)
	if box.IsEmpty() {
		return hal.EmptyAabb(), false, nil
	}
	return box, true, nil
}

type instanceReader struct {
	device *Device
	data   []byte
	base   uint64
}

func (r *instanceReader) read(primitive uint32, rec []byte) (hal.AabbPositions, bool, error) {
	offset := r.base + uint64(primitive)*hal.InstanceSize
	if err := memutils.CheckRange(offset, hal.InstanceSize, uint64(len(r.data))); err != nil {
		return hal.AabbPositions{}, false, errors.Wrap(err, "instance read")
	}

	copy(rec[:hal.InstanceSize], r.data[offset:offset+hal.InstanceSize])
	instance := hal.DecodeInstance(rec)
	if instance.AccelerationStructureReference == 0 {
		return hal.EmptyAabb(), false, nil
	}

	bottom, err := r.device.resolveInstance(instance.AccelerationStructureReference)
	if err != nil {
		return hal.AabbPositions{}, false, err
	}
	return bottom.header.bounds.Transform(instance.Transform), true, nil
}

// resolveInstance follows an instance reference to a built bottom level structure
func (d *Device) resolveInstance(reference uint64) (*blob, error) {
	as, ok := d.structureAt(reference)
	if !ok {
		return nil, errors.Newf("instance references unknown acceleration structure %#x", reference)
	}

	storage, err := as.storage()
	if err != nil {
		return nil, err
	}
	bottom, err := openBlob(storage)
	if err != nil {
		return nil, errors.Wrapf(err, "instance reference %s", as)
	}
	if bottom.header.structureType != hal.AccelerationStructureTypeBottomLevel {
		return nil, errors.Newf("instance references %s structure %s", bottom.header.structureType, as)
	}
	return bottom, nil
}
