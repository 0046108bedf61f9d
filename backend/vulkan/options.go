package vulkan

import (
	"github.com/vkngwrapper/core/v2/driver"
)

// CreateOptions configures a Vulkan device wrapper
type CreateOptions struct {
	// ExternallySynchronized drops the mutexes guarding the command pool and memory maps. Only set it when
	// every call into the device comes from one goroutine.
	ExternallySynchronized bool
	// VulkanCallbacks are passed to every Vulkan create, allocate, destroy and free call
	VulkanCallbacks *driver.AllocationCallbacks
	// QueueFamilyIndex is the family of the queue used for submission and of the internal command pool.
	// The family must support compute or graphics work.
	QueueFamilyIndex int
	// HeapSizeLimits optionally caps each heap below its reported size. A 0 entry means no cap.
	HeapSizeLimits []uint64
}
