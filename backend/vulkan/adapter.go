package vulkan

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/accel/hal"
	"github.com/vkngwrapper/core/v2/common"
	"github.com/vkngwrapper/core/v2/core1_0"
	"github.com/vkngwrapper/extensions/v2/khr_buffer_device_address"
	"github.com/vkngwrapper/extensions/v2/khr_device_group"
)

// DescribeAdapter reports the identity of physicalDevice
func DescribeAdapter(physicalDevice core1_0.PhysicalDevice) (hal.AdapterInfo, error) {
	properties, err := physicalDevice.Properties()
	if err != nil {
		return hal.AdapterInfo{}, errors.Wrap(err, "failed to read physical device properties")
	}

	return hal.AdapterInfo{
		Name:     properties.DriverName,
		Vendor:   uint32(properties.VendorID),
		DeviceID: uint32(properties.DeviceID),
		Software: properties.DriverType == core1_0.PhysicalDeviceTypeCPU,
	}, nil
}

// SupportedFeatures reports the hal features a device created from physicalDevice could enable. It
// mirrors ExtensionData.Features, but reads available extensions instead of active ones.
func SupportedFeatures(physicalDevice core1_0.PhysicalDevice) (hal.Features, error) {
	properties, err := physicalDevice.Properties()
	if err != nil {
		return 0, errors.Wrap(err, "failed to read physical device properties")
	}

	available, res, err := physicalDevice.EnumerateDeviceExtensionProperties()
	if err != nil {
		return 0, translateResult(res, err, "failed to enumerate device extensions")
	}
	has := func(name string) bool {
		_, ok := available[name]
		return ok
	}

	data := ExtensionData{
		AccelerationStructure:  has(AccelerationStructureExtensionName),
		DeferredHostOperations: has(DeferredHostOperationsExtensionName),
		RayQuery:               has(RayQueryExtensionName),
		RayTracingPipeline:     has(RayTracingPipelineExtensionName),
	}

	var features hal.Features
	if properties.APIVersion.IsAtLeast(common.Vulkan1_2) || has(khr_buffer_device_address.ExtensionName) {
		features |= hal.FeatureBufferDeviceAddress
	}
	if data.AccelerationStructure && data.DeferredHostOperations && features.Contains(hal.FeatureBufferDeviceAddress) {
		features |= hal.FeatureAccelerationStructure
	}
	if data.RayQuery {
		features |= hal.FeatureRayQuery
	}
	if data.RayTracingPipeline {
		features |= hal.FeatureRayTracingPipeline
	}
	return features, nil
}

// RequiredDeviceExtensions lists the device extensions to enable for New to accept a device of the
// given API version
func RequiredDeviceExtensions(apiVersion common.APIVersion) []string {
	extensions := []string{
		AccelerationStructureExtensionName,
		DeferredHostOperationsExtensionName,
	}
	if !apiVersion.IsAtLeast(common.Vulkan1_1) {
		extensions = append(extensions, khr_device_group.ExtensionName)
	}
	if !apiVersion.IsAtLeast(common.Vulkan1_2) {
		extensions = append(extensions, khr_buffer_device_address.ExtensionName)
	}
	return extensions
}
