package vulkan_test

import (
	"io"
	"log/slog"
	"testing"
	"time"
	"unsafe"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/accel/backend/vulkan"
	drivermocks "github.com/vkngwrapper/accel/backend/vulkan/mocks"
	"github.com/vkngwrapper/accel/hal"
	"github.com/vkngwrapper/core/v2/common"
	"github.com/vkngwrapper/core/v2/core1_0"
	"github.com/vkngwrapper/core/v2/core1_1"
	"github.com/vkngwrapper/core/v2/core1_2"
	"github.com/vkngwrapper/core/v2/mocks"
	mock_buffer_device_address "github.com/vkngwrapper/extensions/v2/khr_buffer_device_address/mocks"
)

const (
	typeDeviceLocal = iota
	typeCoherent
	typeCached
)

type testDevice struct {
	device      *mocks.MockDevice
	addresses   *mock_buffer_device_address.MockShim
	accel       *drivermocks.MockAccelerationStructureDriver
	queue       *mocks.MockQueue
	commandPool *mocks.MockCommandPool
	hal         *vulkan.Device
}

func readyDevice(t *testing.T, ctrl *gomock.Controller, options vulkan.CreateOptions) testDevice {
	physicalDevice := mocks.NewMockPhysicalDevice(ctrl)
	device := mocks.NewMockDevice(ctrl)
	addresses := mock_buffer_device_address.NewMockShim(ctrl)
	accel := drivermocks.NewMockAccelerationStructureDriver(ctrl)
	queue := mocks.NewMockQueue(ctrl)
	commandPool := mocks.NewMockCommandPool(ctrl)

	physicalDevice.EXPECT().Properties().Return(&core1_0.PhysicalDeviceProperties{
		DriverName: "Test GPU",
		DriverType: core1_0.PhysicalDeviceTypeDiscreteGPU,
		Limits: &core1_0.PhysicalDeviceLimits{
			NonCoherentAtomSize:      64,
			MaxMemoryAllocationCount: 16,
		},
	}, nil).AnyTimes()
	physicalDevice.EXPECT().MemoryProperties().Return(&core1_0.PhysicalDeviceMemoryProperties{
		MemoryTypes: []core1_0.MemoryType{
			{PropertyFlags: core1_0.MemoryPropertyDeviceLocal, HeapIndex: 0},
			{PropertyFlags: core1_0.MemoryPropertyHostVisible | core1_0.MemoryPropertyHostCoherent, HeapIndex: 1},
			{PropertyFlags: core1_0.MemoryPropertyHostVisible | core1_0.MemoryPropertyHostCached, HeapIndex: 1},
		},
		MemoryHeaps: []core1_0.MemoryHeap{
			{Size: 1 << 20, Flags: core1_0.MemoryHeapDeviceLocal},
			{Size: 1 << 20},
		},
	}).AnyTimes()
	accel.EXPECT().Properties().Return(vulkan.AccelerationStructureProperties{
		MaxGeometryCount:          16,
		MaxInstanceCount:          1024,
		MaxPrimitiveCount:         1 << 20,
		MinScratchOffsetAlignment: 128,
	})

	device.EXPECT().CreateCommandPool(gomock.Nil(), core1_0.CommandPoolCreateInfo{
		Flags:            core1_0.CommandPoolCreateResetBuffer,
		QueueFamilyIndex: options.QueueFamilyIndex,
	}).Return(commandPool, core1_0.VKSuccess, nil)
	device.EXPECT().GetQueue(options.QueueFamilyIndex, 0).Return(queue)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	halDevice, err := vulkan.NewWithExtensionData(logger, physicalDevice, device, accel, &vulkan.ExtensionData{
		BufferDeviceAddress:    addresses,
		MemoryAllocateFlags:    true,
		AccelerationStructure:  true,
		DeferredHostOperations: true,
	}, options)
	require.NoError(t, err)

	return testDevice{
		device:      device,
		addresses:   addresses,
		accel:       accel,
		queue:       queue,
		commandPool: commandPool,
		hal:         halDevice,
	}
}

func expectAllocation(rig testDevice, ctrl *gomock.Controller, memoryType int, size int) *mocks.MockDeviceMemory {
	memory := mocks.EasyMockDeviceMemory(ctrl)
	rig.device.EXPECT().AllocateMemory(gomock.Nil(), core1_0.MemoryAllocateInfo{
		AllocationSize:  size,
		MemoryTypeIndex: memoryType,
		NextOptions: common.NextOptions{
			Next: core1_1.MemoryAllocateFlagsInfo{
				Flags: core1_2.MemoryAllocateDeviceAddress,
			},
		},
	}).Return(memory, core1_0.VKSuccess, nil)
	return memory
}

func expectBuffer(rig testDevice, ctrl *gomock.Controller, size int, usage hal.BufferUsage, requirements core1_0.MemoryRequirements) *mocks.MockBuffer {
	buffer := mocks.NewMockBuffer(ctrl)
	rig.device.EXPECT().CreateBuffer(gomock.Nil(), core1_0.BufferCreateInfo{
		Size:        size,
		Usage:       core1_0.BufferUsageFlags(usage),
		SharingMode: core1_0.SharingModeExclusive,
	}).Return(buffer, core1_0.VKSuccess, nil)
	buffer.EXPECT().MemoryRequirements().Return(&requirements)
	return buffer
}

func TestDescribeAdapter(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	physicalDevice := mocks.NewMockPhysicalDevice(ctrl)
	physicalDevice.EXPECT().Properties().Return(&core1_0.PhysicalDeviceProperties{
		DriverName: "llvmpipe (LLVM 15.0.7, 256 bits)",
		DriverType: core1_0.PhysicalDeviceTypeCPU,
		VendorID:   0x10005,
		DeviceID:   3,
	}, nil)

	info, err := vulkan.DescribeAdapter(physicalDevice)
	require.NoError(t, err)
	require.Equal(t, hal.AdapterInfo{
		Name:     "llvmpipe (LLVM 15.0.7, 256 bits)",
		Vendor:   0x10005,
		DeviceID: 3,
		Software: true,
	}, info)
}

func TestNewRequiresAccelerationStructures(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	_, err := vulkan.NewWithExtensionData(logger, mocks.NewMockPhysicalDevice(ctrl), mocks.NewMockDevice(ctrl),
		drivermocks.NewMockAccelerationStructureDriver(ctrl), &vulkan.ExtensionData{
			AccelerationStructure: true,
		}, vulkan.CreateOptions{})
	require.ErrorIs(t, err, hal.ErrNotSupported)
}

func TestDeviceLimitsAndMemory(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	rig := readyDevice(t, ctrl, vulkan.CreateOptions{QueueFamilyIndex: 2})

	require.Equal(t, hal.Limits{
		NonCoherentAtomSize:                            64,
		MinAccelerationStructureScratchOffsetAlignment: 128,
		MaxMemoryAllocationCount:                       16,
		MaxGeometryCount:                               16,
		MaxInstanceCount:                               1024,
		MaxPrimitiveCount:                              1 << 20,
	}, rig.hal.Limits())

	require.Equal(t, hal.MemoryProperties{
		Types: []hal.MemoryType{
			{Properties: hal.MemoryPropertyDeviceLocal, HeapIndex: 0},
			{Properties: hal.MemoryPropertyCPUVisible | hal.MemoryPropertyCoherent, HeapIndex: 1},
			{Properties: hal.MemoryPropertyCPUVisible | hal.MemoryPropertyCPUCached, HeapIndex: 1},
		},
		Heaps: []hal.MemoryHeap{
			{Size: 1 << 20, Flags: hal.MemoryHeapDeviceLocal},
			{Size: 1 << 20},
		},
	}, rig.hal.MemoryProperties())
	require.Equal(t, hal.FeatureAccelerationStructure|hal.FeatureBufferDeviceAddress, rig.hal.Features())

	rig.device.EXPECT().WaitIdle().Return(core1_0.VKSuccess, nil)
	rig.commandPool.EXPECT().Destroy(gomock.Nil())
	rig.hal.Destroy()
}

func TestBufferBinding(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	rig := readyDevice(t, ctrl, vulkan.CreateOptions{})
	usage := hal.BufferUsageStorage | hal.BufferUsageShaderDeviceAddress

	buffer := expectBuffer(rig, ctrl, 100, usage, core1_0.MemoryRequirements{
		Size:           256,
		Alignment:      256,
		MemoryTypeBits: 0b011,
	})
	halBuffer, err := rig.hal.CreateBuffer(100, usage)
	require.NoError(t, err)
	require.Equal(t, hal.Requirements{Size: 256, Alignment: 256, TypeMask: 0b011}, rig.hal.GetBufferRequirements(halBuffer))
	require.Equal(t, uint64(0), rig.hal.GetBufferDeviceAddress(halBuffer))

	memory := expectAllocation(rig, ctrl, typeDeviceLocal, 1024)
	halMemory, err := rig.hal.AllocateMemory(typeDeviceLocal, 1024)
	require.NoError(t, err)

	err = rig.hal.BindBufferMemory(halMemory, 128, halBuffer)
	require.ErrorIs(t, err, hal.ErrBind)

	err = rig.hal.BindBufferMemory(halMemory, 1024, halBuffer)
	require.ErrorIs(t, err, hal.ErrBind)

	buffer.EXPECT().BindBufferMemory(memory, 512).Return(core1_0.VKSuccess, nil)
	rig.addresses.EXPECT().GetBufferDeviceAddress(core1_2.BufferDeviceAddressInfo{Buffer: buffer}).Return(uint64(0x10000), nil)
	require.NoError(t, rig.hal.BindBufferMemory(halMemory, 512, halBuffer))
	require.Equal(t, uint64(0x10000), rig.hal.GetBufferDeviceAddress(halBuffer))

	err = rig.hal.BindBufferMemory(halMemory, 0, halBuffer)
	require.ErrorIs(t, err, hal.ErrBind)

	stats := rig.hal.Heaps().HeapStatistics(0)
	require.Equal(t, 1, stats.BlockCount)
	require.Equal(t, 1, stats.AllocationCount)

	buffer.EXPECT().Destroy(gomock.Nil())
	rig.hal.DestroyBuffer(halBuffer)
	memory.EXPECT().Free(gomock.Nil())
	rig.hal.FreeMemory(halMemory)

	stats = rig.hal.Heaps().HeapStatistics(0)
	require.Equal(t, 0, stats.BlockCount)
	require.Equal(t, 0, stats.AllocationCount)
}

func TestCreateBufferValidation(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	rig := readyDevice(t, ctrl, vulkan.CreateOptions{})

	_, err := rig.hal.CreateBuffer(0, hal.BufferUsageStorage)
	require.ErrorIs(t, err, hal.ErrCreation)

	_, err = rig.hal.CreateBuffer(16, 0)
	require.ErrorIs(t, err, hal.ErrCreation)

	rig.device.EXPECT().CreateBuffer(gomock.Nil(), gomock.Any()).Return(nil, core1_0.VKErrorOutOfDeviceMemory, core1_0.VKErrorOutOfDeviceMemory.ToError())
	_, err = rig.hal.CreateBuffer(16, hal.BufferUsageStorage)
	require.ErrorIs(t, err, hal.ErrCreation)
	require.ErrorIs(t, err, hal.ErrOutOfDeviceMemory)
}

func TestAllocateMemoryFailures(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	rig := readyDevice(t, ctrl, vulkan.CreateOptions{
		HeapSizeLimits: []uint64{4096, 0},
	})

	_, err := rig.hal.AllocateMemory(typeDeviceLocal, 8192)
	require.ErrorIs(t, err, hal.ErrOutOfDeviceMemory)

	rig.device.EXPECT().AllocateMemory(gomock.Nil(), gomock.Any()).Return(nil, core1_0.VKErrorOutOfHostMemory, core1_0.VKErrorOutOfHostMemory.ToError())
	_, err = rig.hal.AllocateMemory(typeCoherent, 4096)
	require.ErrorIs(t, err, hal.ErrOutOfHostMemory)
	require.Equal(t, 0, rig.hal.Heaps().HeapStatistics(1).BlockCount)

	memory := expectAllocation(rig, ctrl, typeDeviceLocal, 4096)
	halMemory, err := rig.hal.AllocateMemory(typeDeviceLocal, 4096)
	require.NoError(t, err)

	_, err = rig.hal.MapMemory(halMemory, hal.Segment{Size: hal.WholeSize})
	require.ErrorIs(t, err, hal.ErrMapFailed)

	memory.EXPECT().Free(gomock.Nil())
	rig.hal.FreeMemory(halMemory)
}

func TestMapNonCoherentMemory(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	rig := readyDevice(t, ctrl, vulkan.CreateOptions{})

	memory := expectAllocation(rig, ctrl, typeCached, 1000)
	halMemory, err := rig.hal.AllocateMemory(typeCached, 1000)
	require.NoError(t, err)

	data := make([]byte, 1000)
	memory.EXPECT().Map(0, 1000, core1_0.MemoryMapFlags(0)).Return(unsafe.Pointer(&data[0]), core1_0.VKSuccess, nil)

	mapped, err := rig.hal.MapMemory(halMemory, hal.Segment{Size: hal.WholeSize})
	require.NoError(t, err)
	require.Len(t, mapped, 1000)
	mapped[3] = 7
	require.Equal(t, byte(7), data[3])

	_, err = rig.hal.MapMemory(halMemory, hal.Segment{Size: hal.WholeSize})
	require.ErrorIs(t, err, hal.ErrMapFailed)

	rig.device.EXPECT().FlushMappedMemoryRanges([]core1_0.MappedMemoryRange{
		{
			Memory: memory,
			Offset: 0,
			Size:   128,
		},
	}).Return(core1_0.VKSuccess, nil)
	require.NoError(t, rig.hal.FlushMappedMemoryRanges([]hal.MappedRange{
		{Memory: halMemory, Segment: hal.Segment{Offset: 0, Size: 128}},
	}))

	// The tail may be unaligned as long as it reaches the end of the memory
	rig.device.EXPECT().InvalidateMappedMemoryRanges([]core1_0.MappedMemoryRange{
		{
			Memory: memory,
			Offset: 960,
			Size:   40,
		},
	}).Return(core1_0.VKSuccess, nil)
	require.NoError(t, rig.hal.InvalidateMappedMemoryRanges([]hal.MappedRange{
		{Memory: halMemory, Segment: hal.Segment{Offset: 960, Size: hal.WholeSize}},
	}))

	require.Error(t, rig.hal.FlushMappedMemoryRanges([]hal.MappedRange{
		{Memory: halMemory, Segment: hal.Segment{Offset: 10, Size: 64}},
	}))

	memory.EXPECT().Unmap()
	rig.hal.UnmapMemory(halMemory)

	require.Error(t, rig.hal.FlushMappedMemoryRanges([]hal.MappedRange{
		{Memory: halMemory, Segment: hal.Segment{Size: hal.WholeSize}},
	}))

	memory.EXPECT().Free(gomock.Nil())
	rig.hal.FreeMemory(halMemory)
}

func TestCoherentMemorySkipsCacheMaintenance(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	rig := readyDevice(t, ctrl, vulkan.CreateOptions{})

	memory := expectAllocation(rig, ctrl, typeCoherent, 256)
	halMemory, err := rig.hal.AllocateMemory(typeCoherent, 256)
	require.NoError(t, err)

	data := make([]byte, 192)
	memory.EXPECT().Map(64, 192, core1_0.MemoryMapFlags(0)).Return(unsafe.Pointer(&data[0]), core1_0.VKSuccess, nil)

	_, err = rig.hal.MapMemory(halMemory, hal.Segment{Offset: 64, Size: hal.WholeSize})
	require.NoError(t, err)

	require.NoError(t, rig.hal.FlushMappedMemoryRanges([]hal.MappedRange{
		{Memory: halMemory, Segment: hal.Segment{Offset: 65, Size: 3}},
	}))
	require.Error(t, rig.hal.FlushMappedMemoryRanges([]hal.MappedRange{
		{Memory: halMemory, Segment: hal.Segment{Offset: 0, Size: 64}},
	}))

	// Freeing a mapped allocation implicitly unmaps it
	memory.EXPECT().Free(gomock.Nil())
	rig.hal.FreeMemory(halMemory)
}

func TestFences(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	rig := readyDevice(t, ctrl, vulkan.CreateOptions{})

	fence := mocks.NewMockFence(ctrl)
	rig.device.EXPECT().CreateFence(gomock.Nil(), core1_0.FenceCreateInfo{
		Flags: core1_0.FenceCreateSignaled,
	}).Return(fence, core1_0.VKSuccess, nil)

	halFence, err := rig.hal.CreateFence(true)
	require.NoError(t, err)

	fence.EXPECT().Status().Return(core1_0.VKSuccess, nil)
	signaled, err := rig.hal.GetFenceStatus(halFence)
	require.NoError(t, err)
	require.True(t, signaled)

	rig.device.EXPECT().ResetFences([]core1_0.Fence{fence}).Return(core1_0.VKSuccess, nil)
	require.NoError(t, rig.hal.ResetFence(halFence))

	fence.EXPECT().Status().Return(core1_0.VKNotReady, nil)
	signaled, err = rig.hal.GetFenceStatus(halFence)
	require.NoError(t, err)
	require.False(t, signaled)

	rig.device.EXPECT().WaitForFences(true, time.Second, []core1_0.Fence{fence}).Return(core1_0.VKTimeout, nil)
	signaled, err = rig.hal.WaitForFence(halFence, time.Second)
	require.NoError(t, err)
	require.False(t, signaled)

	rig.device.EXPECT().WaitForFences(true, hal.WaitForever, []core1_0.Fence{fence}).Return(core1_0.VKErrorDeviceLost, core1_0.VKErrorDeviceLost.ToError())
	_, err = rig.hal.WaitForFence(halFence, hal.WaitForever)
	require.ErrorIs(t, err, hal.ErrDeviceLost)

	fence.EXPECT().Destroy(gomock.Nil())
	rig.hal.DestroyFence(halFence)
}
