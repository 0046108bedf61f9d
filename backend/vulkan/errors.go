package vulkan

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/accel/hal"
	"github.com/vkngwrapper/core/v2/common"
	"github.com/vkngwrapper/core/v2/core1_0"
)

// translateResult classifies a failed Vulkan call with the hal sentinel that matches its result
func translateResult(res common.VkResult, err error, operation string) error {
	if err == nil {
		return nil
	}

	err = errors.Wrap(err, operation)
	switch res {
	case core1_0.VKErrorOutOfHostMemory:
		return hal.Classify(err, hal.ErrOutOfHostMemory)
	case core1_0.VKErrorOutOfDeviceMemory, core1_0.VKErrorTooManyObjects:
		return hal.Classify(err, hal.ErrOutOfDeviceMemory)
	case core1_0.VKErrorDeviceLost:
		return hal.Classify(err, hal.ErrDeviceLost)
	case core1_0.VKErrorMemoryMapFailed:
		return hal.Classify(err, hal.ErrMapFailed)
	case core1_0.VKErrorExtensionNotPresent, core1_0.VKErrorFeatureNotPresent:
		return hal.Classify(err, hal.ErrNotSupported)
	}
	return err
}
