package soft_test

import (
	"bytes"
	"log/slog"
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/accel/backend/soft"
	"github.com/vkngwrapper/accel/hal"
)

// syncBuffer collects log output written from the queue worker and the test goroutine
type syncBuffer struct {
	lock sync.Mutex
	buf  bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.lock.Lock()
	defer b.lock.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.lock.Lock()
	defer b.lock.Unlock()
	return b.buf.String()
}

func newDevice(t *testing.T) *soft.Device {
	device, _ := newLoggedDevice(t, soft.CreateOptions{})
	return device
}

func newLoggedDevice(t *testing.T, options soft.CreateOptions) (*soft.Device, *syncBuffer) {
	logs := &syncBuffer{}
	logger := slog.New(slog.NewTextHandler(logs, &slog.HandlerOptions{Level: slog.LevelDebug}))

	device, err := soft.New(logger, soft.DefaultProfile(), options)
	require.NoError(t, err)
	t.Cleanup(device.Destroy)

	return device, logs
}

// newBoundBuffer creates a buffer backed by its own allocation of the first type with properties
func newBoundBuffer(t *testing.T, device *soft.Device, size uint64, usage hal.BufferUsage, properties hal.MemoryPropertyFlags) (hal.Buffer, hal.Memory) {
	buffer, err := device.CreateBuffer(size, usage)
	require.NoError(t, err)

	requirements := device.GetBufferRequirements(buffer)
	typeID, ok := device.MemoryProperties().FindMemoryType(requirements.TypeMask, properties)
	require.True(t, ok)

	memory, err := device.AllocateMemory(typeID, requirements.Size)
	require.NoError(t, err)
	require.NoError(t, device.BindBufferMemory(memory, 0, buffer))

	return buffer, memory
}

func uploadBuffer(t *testing.T, device *soft.Device, data []byte, usage hal.BufferUsage) hal.Buffer {
	buffer, _ := uploadBufferMemory(t, device, data, usage)
	return buffer
}

// uploadBufferMemory fills a new coherent buffer with data
func uploadBufferMemory(t *testing.T, device *soft.Device, data []byte, usage hal.BufferUsage) (hal.Buffer, hal.Memory) {
	buffer, memory := newBoundBuffer(t, device, uint64(len(data)), usage,
		hal.MemoryPropertyCPUVisible|hal.MemoryPropertyCoherent)

	mapped, err := device.MapMemory(memory, hal.Segment{Size: hal.WholeSize})
	require.NoError(t, err)
	copy(mapped, data)
	device.UnmapMemory(memory)

	return buffer, memory
}

func newStructure(t *testing.T, device *soft.Device, structureType hal.AccelerationStructureType, size uint64) hal.AccelerationStructure {
	buffer, _ := newBoundBuffer(t, device, size,
		hal.BufferUsageAccelerationStructureStorage|hal.BufferUsageShaderDeviceAddress, hal.MemoryPropertyDeviceLocal)

	as, err := device.CreateAccelerationStructure(hal.AccelerationStructureCreateDesc{
		Buffer: buffer,
		Size:   size,
		Type:   structureType,
	})
	require.NoError(t, err)
	return as
}

func newScratch(t *testing.T, device *soft.Device, size uint64) hal.Buffer {
	buffer, _ := newBoundBuffer(t, device, max(size, 1),
		hal.BufferUsageStorage|hal.BufferUsageShaderDeviceAddress, hal.MemoryPropertyDeviceLocal)
	return buffer
}

// record records a command buffer and returns the error from Finish
func record(t *testing.T, device *soft.Device, fn func(cmd hal.CommandBuffer)) (hal.CommandBuffer, error) {
	cmd, err := device.CreateCommandBuffer()
	require.NoError(t, err)
	require.NoError(t, cmd.Begin())
	fn(cmd)
	return cmd, cmd.Finish()
}

// submitAndWait records, submits and waits for fn's commands
func submitAndWait(t *testing.T, device *soft.Device, fn func(cmd hal.CommandBuffer)) {
	cmd, err := record(t, device, fn)
	require.NoError(t, err)

	fence, err := device.CreateFence(false)
	require.NoError(t, err)
	defer device.DestroyFence(fence)

	require.NoError(t, device.Queue().Submit([]hal.CommandBuffer{cmd}, fence))
	signaled, err := device.WaitForFence(fence, hal.WaitForever)
	require.NoError(t, err)
	require.True(t, signaled)
}

var cubeVertices = []float32{
	-1, -1, -1,
	1, -1, -1,
	1, 1, -1,
	-1, 1, -1,
	-1, -1, 1,
	1, -1, 1,
	1, 1, 1,
	-1, 1, 1,
}

var cubeIndices = []uint16{
	0, 1, 2, 0, 2, 3, // -z
	4, 6, 5, 4, 7, 6, // +z
	0, 4, 5, 0, 5, 1, // -y
	3, 2, 6, 3, 6, 7, // +y
	0, 3, 7, 0, 7, 4, // -x
	1, 5, 6, 1, 6, 2, // +x
}

func float32Bytes(values []float32) []byte {
	out := make([]byte, 0, len(values)*4)
	for _, value := range values {
		bits := math.Float32bits(value)
		out = append(out, byte(bits), byte(bits>>8), byte(bits>>16), byte(bits>>24))
	}
	return out
}

func uint16Bytes(values []uint16) []byte {
	out := make([]byte, 0, len(values)*2)
	for _, value := range values {
		out = append(out, byte(value), byte(value>>8))
	}
	return out
}

type cube struct {
	desc   *hal.GeometryDesc
	ranges []hal.BuildRangeDesc
}

func newCube(t *testing.T, device *soft.Device, flags hal.BuildFlags) cube {
	inputUsage := hal.BufferUsageAccelerationStructureBuildInputReadOnly | hal.BufferUsageShaderDeviceAddress
	vertices := uploadBuffer(t, device, float32Bytes(cubeVertices), inputUsage)
	indices := uploadBuffer(t, device, uint16Bytes(cubeIndices), inputUsage)

	return cube{
		desc: &hal.GeometryDesc{
			Flags: flags,
			Type:  hal.AccelerationStructureTypeBottomLevel,
			Geometries: []hal.Geometry{{
				Flags: hal.GeometryOpaque,
				Data: hal.GeometryTriangles{
					VertexFormat:       hal.FormatR32G32B32Sfloat,
					VertexBuffer:       vertices,
					VertexBufferStride: 12,
					MaxVertex:          7,
					Index:              &hal.IndexData{Buffer: indices, Type: hal.IndexTypeU16},
				},
			}},
		},
		ranges: []hal.BuildRangeDesc{{PrimitiveCount: 12}},
	}
}

// buildCube builds the cube into a new bottom level structure and waits for it
func buildCube(t *testing.T, device *soft.Device, flags hal.BuildFlags) (cube, hal.AccelerationStructure) {
	geometry := newCube(t, device, flags)
	sizes := device.GetAccelerationStructureBuildRequirements(geometry.desc, []uint32{12})

	blas := newStructure(t, device, hal.AccelerationStructureTypeBottomLevel, sizes.AccelerationStructureSize)
	scratch := newScratch(t, device, sizes.BuildScratchSize)

	submitAndWait(t, device, func(cmd hal.CommandBuffer) {
		cmd.BuildAccelerationStructures([]hal.BuildInfo{{
			Desc:   hal.BuildDesc{Dst: blas, Geometry: geometry.desc, Scratch: scratch},
			Ranges: geometry.ranges,
		}})
	})
	return geometry, blas
}

func straightRay(origin, direction [3]float32) soft.Ray {
	return soft.Ray{Origin: origin, Direction: direction, TMin: 0, TMax: 1000, CullMask: 0xff}
}
