package commands

import (
	"fmt"
	"io"
	"runtime"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
	"github.com/vkngwrapper/accel/backend/vulkan"
	"github.com/vkngwrapper/accel/hal"
	"github.com/vkngwrapper/core/v2"
	"github.com/vkngwrapper/core/v2/common"
	"github.com/vkngwrapper/core/v2/core1_0"
	"github.com/vkngwrapper/extensions/v2/khr_portability_enumeration"
)

func newVulkanInfoCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "vulkan-info",
		Short: "List Vulkan devices and the ray tracing features they support",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVulkanInfo(cmd.OutOrStdout())
		},
	}
}

func runVulkanInfo(out io.Writer) error {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	loader, err := core.CreateSystemLoader()
	if err != nil {
		return hal.Classify(errors.Wrap(err, "no Vulkan loader"), hal.ErrNotSupported)
	}

	instanceExtensions, _, err := loader.AvailableExtensions()
	if err != nil {
		return errors.Wrap(err, "failed to enumerate instance extensions")
	}

	var extensionNames []string
	var flags core1_0.InstanceCreateFlags
	if _, ok := instanceExtensions[khr_portability_enumeration.ExtensionName]; ok {
		extensionNames = append(extensionNames, khr_portability_enumeration.ExtensionName)
		flags |= khr_portability_enumeration.InstanceCreateEnumeratePortability
	}

	instance, _, err := loader.CreateInstance(nil, core1_0.InstanceCreateInfo{
		ApplicationName:       "raytrace",
		ApplicationVersion:    common.CreateVersion(1, 0, 0),
		EngineName:            "accel",
		EngineVersion:         common.CreateVersion(1, 0, 0),
		APIVersion:            common.Vulkan1_2,
		EnabledExtensionNames: extensionNames,
		Flags:                 flags,
	})
	if err != nil {
		return errors.Wrap(err, "failed to create Vulkan instance")
	}
	defer instance.Destroy(nil)

	physicalDevices, _, err := instance.EnumeratePhysicalDevices()
	if err != nil {
		return errors.Wrap(err, "failed to enumerate physical devices")
	}

	for index, physicalDevice := range physicalDevices {
		if err := describeVulkanDevice(out, index, physicalDevice); err != nil {
			return err
		}
	}
	return nil
}

func describeVulkanDevice(out io.Writer, index int, physicalDevice core1_0.PhysicalDevice) error {
	info, err := vulkan.DescribeAdapter(physicalDevice)
	if err != nil {
		return err
	}
	features, err := vulkan.SupportedFeatures(physicalDevice)
	if err != nil {
		return err
	}
	properties, err := physicalDevice.Properties()
	if err != nil {
		return errors.Wrap(err, "failed to read physical device properties")
	}

	fmt.Fprintf(out, "device %d: %q vendor %#x device %#x api %s software=%t\n",
		index, info.Name, info.Vendor, info.DeviceID, properties.APIVersion, info.Software)
	fmt.Fprintf(out, "  features: %s\n", features)
	if features.Contains(hal.FeatureAccelerationStructure) {
		fmt.Fprintf(out, "  enable: %v\n", vulkan.RequiredDeviceExtensions(properties.APIVersion))
	}
	return nil
}
