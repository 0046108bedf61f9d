package vulkan

import (
	"log/slog"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/accel/hal"
	"github.com/vkngwrapper/accel/internal/heaps"
	"github.com/vkngwrapper/accel/internal/utils"
	"github.com/vkngwrapper/core/v2/core1_0"
	"github.com/vkngwrapper/core/v2/driver"
)

// Device implements hal.Device on top of a VkDevice owned by the caller. The device must have been
// created with VK_KHR_acceleration_structure, VK_KHR_deferred_host_operations and buffer device
// addresses enabled.
type Device struct {
	logger     *slog.Logger
	device     core1_0.Device
	accel      AccelerationStructureDriver
	extensions *ExtensionData
	callbacks  *driver.AllocationCallbacks

	externallySynchronized bool

	limits           hal.Limits
	memoryProperties hal.MemoryProperties
	features         hal.Features
	heaps            *heaps.Tracker

	poolLock    utils.OptionalMutex
	commandPool core1_0.CommandPool
	queue       *Queue
}

var _ hal.Device = &Device{}

// New wraps device. accel issues the acceleration structure commands and must have been loaded for
// the same device.
func New(logger *slog.Logger, physicalDevice core1_0.PhysicalDevice, device core1_0.Device, accel AccelerationStructureDriver, options CreateOptions) (*Device, error) {
	return NewWithExtensionData(logger, physicalDevice, device, accel, NewExtensionData(device), options)
}

// NewWithExtensionData wraps device using extension data the caller already detected
func NewWithExtensionData(logger *slog.Logger, physicalDevice core1_0.PhysicalDevice, device core1_0.Device, accel AccelerationStructureDriver, extensions *ExtensionData, options CreateOptions) (*Device, error) {
	if accel == nil {
		return nil, errors.New("an AccelerationStructureDriver is required")
	}

	features := extensions.Features()
	if !features.Contains(hal.FeatureAccelerationStructure) {
		return nil, errors.Wrapf(hal.ErrNotSupported, "device is missing acceleration structure support, active features are %s", features)
	}

	properties, err := physicalDevice.Properties()
	if err != nil {
		return nil, errors.Wrap(err, "failed to read physical device properties")
	}
	memoryProperties := translateMemoryProperties(physicalDevice.MemoryProperties())

	accelProperties := accel.Properties()
	limits := hal.Limits{
		NonCoherentAtomSize:                            max(uint64(properties.Limits.NonCoherentAtomSize), 1),
		MinAccelerationStructureScratchOffsetAlignment: max(accelProperties.MinScratchOffsetAlignment, 1),
		MaxMemoryAllocationCount:                       uint32(properties.Limits.MaxMemoryAllocationCount),
		MaxGeometryCount:                               accelProperties.MaxGeometryCount,
		MaxInstanceCount:                               accelProperties.MaxInstanceCount,
		MaxPrimitiveCount:                              accelProperties.MaxPrimitiveCount,
	}

	tracker, err := heaps.NewTracker(memoryProperties, limits.MaxMemoryAllocationCount, options.HeapSizeLimits)
	if err != nil {
		return nil, err
	}

	commandPool, res, err := device.CreateCommandPool(options.VulkanCallbacks, core1_0.CommandPoolCreateInfo{
		Flags:            core1_0.CommandPoolCreateResetBuffer,
		QueueFamilyIndex: options.QueueFamilyIndex,
	})
	if err != nil {
		return nil, translateResult(res, err, "failed to create command pool")
	}

	d := &Device{
		logger:     logger,
		device:     device,
		accel:      accel,
		extensions: extensions,
		callbacks:  options.VulkanCallbacks,

		externallySynchronized: options.ExternallySynchronized,

		limits:           limits,
		memoryProperties: memoryProperties,
		features:         features,
		heaps:            tracker,

		poolLock: utils.OptionalMutex{
			UseMutex: !options.ExternallySynchronized,
		},
		commandPool: commandPool,
	}
	d.queue = &Queue{
		device: d,
		lock: utils.OptionalMutex{
			UseMutex: !options.ExternallySynchronized,
		},
		vulkan: device.GetQueue(options.QueueFamilyIndex, 0),
	}

	logger.Debug("Device::New", slog.String("device", properties.DriverName), slog.String("features", features.String()))
	return d, nil
}

func (d *Device) Limits() hal.Limits {
	return d.limits
}

func (d *Device) MemoryProperties() hal.MemoryProperties {
	return d.memoryProperties
}

func (d *Device) Features() hal.Features {
	return d.features
}

// Queue returns the queue the device was created for
func (d *Device) Queue() hal.Queue {
	return d.queue
}

// Heaps exposes per-heap block and allocation counters
func (d *Device) Heaps() *heaps.Tracker {
	return d.heaps
}

func (d *Device) WaitIdle() error {
	res, err := d.device.WaitIdle()
	return translateResult(res, err, "failed to wait for device")
}

// Destroy releases the objects the wrapper created. The VkDevice itself belongs to the caller.
func (d *Device) Destroy() {
	d.logger.Debug("Device::Destroy")

	err := d.WaitIdle()
	if err != nil {
		d.logger.Error("failed to wait for device before destroying it", slog.Any("error", err))
	}

	d.poolLock.Lock()
	defer d.poolLock.Unlock()

	if d.commandPool != nil {
		d.commandPool.Destroy(d.callbacks)
		d.commandPool = nil
	}
}
