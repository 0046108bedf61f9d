package raytrace

import (
	"encoding/binary"
	"log/slog"
	"math"

	"github.com/vkngwrapper/accel/hal"
)

// CubeVertices are the corners of a cube spanning -1..1 on every axis, front face first
var CubeVertices = [8][3]float32{
	{-1, 1, -1},
	{1, 1, -1},
	{1, -1, -1},
	{-1, -1, -1},

	{-1, 1, 1},
	{1, 1, 1},
	{1, -1, 1},
	{-1, -1, 1},
}

// CubeIndices are the twelve clockwise triangles of CubeVertices in a left-handed, +Y up space
var CubeIndices = [36]uint16{
	0, 1, 2, 3, 0, 2, // front
	4, 5, 1, 0, 4, 1, // top
	4, 0, 3, 7, 4, 3, // left
	1, 5, 6, 2, 1, 6, // right
	3, 2, 6, 7, 3, 6, // bottom
	5, 4, 7, 6, 5, 7, // back
}

// Mesh is an indexed triangle mesh uploaded as build input
type Mesh struct {
	Vertices       hal.Buffer
	VertexMemory   hal.Memory
	Indices        hal.Buffer
	IndexMemory    hal.Memory
	VertexCount    uint32
	PrimitiveCount uint32
}

// UploadMesh uploads Rgb32Sfloat positions and u16 indices into CPU-visible build input buffers
func UploadMesh(logger *slog.Logger, device hal.Device, vertices [][3]float32, indices []uint16) (*Mesh, error) {
	usage := hal.BufferUsageAccelerationStructureBuildInputReadOnly | hal.BufferUsageShaderDeviceAddress

	vertexData := make([]byte, 0, len(vertices)*12)
	for _, vertex := range vertices {
		for _, component := range vertex {
			vertexData = binary.LittleEndian.AppendUint32(vertexData, math.Float32bits(component))
		}
	}
	indexData := make([]byte, 0, len(indices)*2)
	for _, index := range indices {
		indexData = binary.LittleEndian.AppendUint16(indexData, index)
	}

	vertexBuffer, vertexMemory, err := UploadToBuffer(logger, device, usage, vertexData)
	if err != nil {
		return nil, err
	}

	indexBuffer, indexMemory, err := UploadToBuffer(logger, device, usage, indexData)
	if err != nil {
		device.DestroyBuffer(vertexBuffer)
		device.FreeMemory(vertexMemory)
		return nil, err
	}

	return &Mesh{
		Vertices:       vertexBuffer,
		VertexMemory:   vertexMemory,
		Indices:        indexBuffer,
		IndexMemory:    indexMemory,
		VertexCount:    uint32(len(vertices)),
		PrimitiveCount: uint32(len(indices) / 3),
	}, nil
}

// UploadCube uploads CubeVertices and CubeIndices
func UploadCube(logger *slog.Logger, device hal.Device) (*Mesh, error) {
	return UploadMesh(logger, device, CubeVertices[:], CubeIndices[:])
}

// Geometry describes the mesh as the single opaque geometry of a bottom level build
func (m *Mesh) Geometry(flags hal.BuildFlags) (*hal.GeometryDesc, []hal.BuildRangeDesc) {
	desc := &hal.GeometryDesc{
		Flags: flags,
		Type:  hal.AccelerationStructureTypeBottomLevel,
		Geometries: []hal.Geometry{{
			Flags: hal.GeometryOpaque,
			Data: hal.GeometryTriangles{
				VertexFormat:       hal.FormatR32G32B32Sfloat,
				VertexBuffer:       m.Vertices,
				VertexBufferStride: 12,
				MaxVertex:          m.VertexCount - 1,
				Index: &hal.IndexData{
					Buffer: m.Indices,
					Type:   hal.IndexTypeU16,
				},
			},
		}},
	}

	return desc, []hal.BuildRangeDesc{{PrimitiveCount: m.PrimitiveCount}}
}

func (m *Mesh) Destroy(device hal.Device) {
	device.DestroyBuffer(m.Vertices)
	device.FreeMemory(m.VertexMemory)
	device.DestroyBuffer(m.Indices)
	device.FreeMemory(m.IndexMemory)
}
