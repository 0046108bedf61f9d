package vulkan

import (
	"github.com/vkngwrapper/accel/hal"
	"github.com/vkngwrapper/core/v2/core1_0"
	"github.com/vkngwrapper/core/v2/core1_1"
	"github.com/vkngwrapper/core/v2/core1_2"
	"github.com/vkngwrapper/extensions/v2/khr_buffer_device_address"
	khr_buffer_device_address_shim "github.com/vkngwrapper/extensions/v2/khr_buffer_device_address/shim"
	"github.com/vkngwrapper/extensions/v2/khr_device_group"
)

// Ray tracing extensions have no vkngwrapper package, so only their names are checked here. The entry
// points are reached through an AccelerationStructureDriver.
const (
	AccelerationStructureExtensionName  = "VK_KHR_acceleration_structure"
	DeferredHostOperationsExtensionName = "VK_KHR_deferred_host_operations"
	RayQueryExtensionName               = "VK_KHR_ray_query"
	RayTracingPipelineExtensionName     = "VK_KHR_ray_tracing_pipeline"
)

type ExtensionData struct {
	BufferDeviceAddress khr_buffer_device_address_shim.Shim
	// MemoryAllocateFlags is set when MemoryAllocateFlagsInfo can be chained onto allocations, which
	// device addresses require
	MemoryAllocateFlags    bool
	AccelerationStructure  bool
	DeferredHostOperations bool
	RayQuery               bool
	RayTracingPipeline     bool
}

func NewExtensionData(device core1_0.Device) *ExtensionData {
	data := &ExtensionData{}

	device11 := core1_1.PromoteDevice(device)
	if device11 != nil {
		// Core 1.1 active - that means MemoryAllocateFlagsInfo from khr_device_group is core
		data.MemoryAllocateFlags = true
	}

	device12 := core1_2.PromoteDevice(device)
	if device12 != nil {
		// Core 1.2 active - that means we can use khr_buffer_device_address
		data.BufferDeviceAddress = device12
	}

	// khr_device_group if core 1.1 is not active
	if !data.MemoryAllocateFlags && device.IsDeviceExtensionActive(khr_device_group.ExtensionName) {
		data.MemoryAllocateFlags = true
	}

	// khr_buffer_device_address if core 1.2 is not active
	if data.BufferDeviceAddress == nil && device.IsDeviceExtensionActive(khr_buffer_device_address.ExtensionName) {
		extension := khr_buffer_device_address.CreateExtensionFromDevice(device)
		data.BufferDeviceAddress = khr_buffer_device_address_shim.NewShim(extension, device)
	}

	data.AccelerationStructure = device.IsDeviceExtensionActive(AccelerationStructureExtensionName)
	data.DeferredHostOperations = device.IsDeviceExtensionActive(DeferredHostOperationsExtensionName)
	data.RayQuery = device.IsDeviceExtensionActive(RayQueryExtensionName)
	data.RayTracingPipeline = device.IsDeviceExtensionActive(RayTracingPipelineExtensionName)

	return data
}

// Features reports the hal features the active extensions provide
func (d *ExtensionData) Features() (features hal.Features) {
	if d.BufferDeviceAddress != nil {
		features |= hal.FeatureBufferDeviceAddress
	}
	// building on the device needs addresses for every input
	if d.AccelerationStructure && d.DeferredHostOperations && d.BufferDeviceAddress != nil {
		features |= hal.FeatureAccelerationStructure
	}
	if d.RayQuery {
		features |= hal.FeatureRayQuery
	}
	if d.RayTracingPipeline {
		features |= hal.FeatureRayTracingPipeline
	}
	return features
}
