package vulkan

import (
	"log/slog"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/accel/hal"
	"github.com/vkngwrapper/accel/internal/utils"
	"github.com/vkngwrapper/core/v2/core1_0"
)

type fence struct {
	vulkan core1_0.Fence
}

func (d *Device) fenceFrom(handle hal.Fence) *fence {
	f, ok := handle.(*fence)
	if !ok {
		panic(errors.AssertionFailedf("fence %T was not created by a vulkan device", handle))
	}
	return f
}

func (d *Device) CreateFence(signaled bool) (hal.Fence, error) {
	var flags core1_0.FenceCreateFlags
	if signaled {
		flags = core1_0.FenceCreateSignaled
	}

	vulkanFence, res, err := d.device.CreateFence(d.callbacks, core1_0.FenceCreateInfo{
		Flags: flags,
	})
	if err != nil {
		return nil, hal.Classify(translateResult(res, err, "failed to create fence"), hal.ErrCreation)
	}
	return &fence{vulkan: vulkanFence}, nil
}

func (d *Device) ResetFence(handle hal.Fence) error {
	res, err := d.device.ResetFences([]core1_0.Fence{d.fenceFrom(handle).vulkan})
	return translateResult(res, err, "failed to reset fence")
}

func (d *Device) GetFenceStatus(handle hal.Fence) (bool, error) {
	res, err := d.fenceFrom(handle).vulkan.Status()
	if err != nil {
		return false, translateResult(res, err, "failed to read fence status")
	}
	return res == core1_0.VKSuccess, nil
}

func (d *Device) WaitForFence(handle hal.Fence, timeout time.Duration) (bool, error) {
	res, err := d.device.WaitForFences(true, timeout, []core1_0.Fence{d.fenceFrom(handle).vulkan})
	if err != nil {
		return false, translateResult(res, err, "failed to wait for fence")
	}
	return res != core1_0.VKTimeout, nil
}

func (d *Device) DestroyFence(handle hal.Fence) {
	f := d.fenceFrom(handle)
	if f.vulkan == nil {
		panic("fence was destroyed twice")
	}
	f.vulkan.Destroy(d.callbacks)
	f.vulkan = nil
}

// Queue submits to one VkQueue. Vulkan requires queue access to be externally synchronized, which the
// lock provides unless the device was created ExternallySynchronized.
type Queue struct {
	device *Device
	lock   utils.OptionalMutex
	vulkan core1_0.Queue
}

var _ hal.Queue = &Queue{}

func (q *Queue) Submit(cmds []hal.CommandBuffer, fenceHandle hal.Fence) error {
	q.device.logger.Debug("Queue::Submit", slog.Int("commandBuffers", len(cmds)))

	vulkanCmds := make([]core1_0.CommandBuffer, 0, len(cmds))
	for _, handle := range cmds {
		cmd := q.device.commandBufferFrom(handle)
		if cmd.state != commandBufferExecutable {
			return errors.Newf("cannot submit a command buffer in the %s state", cmd.state)
		}
		vulkanCmds = append(vulkanCmds, cmd.vulkan)
	}

	var vulkanFence core1_0.Fence
	if fenceHandle != nil {
		vulkanFence = q.device.fenceFrom(fenceHandle).vulkan
	}

	q.lock.Lock()
	defer q.lock.Unlock()

	res, err := q.vulkan.Submit(vulkanFence, []core1_0.SubmitInfo{
		{
			CommandBuffers: vulkanCmds,
		},
	})
	return translateResult(res, err, "failed to submit command buffers")
}

func (q *Queue) WaitIdle() error {
	q.lock.Lock()
	defer q.lock.Unlock()

	res, err := q.vulkan.WaitIdle()
	return translateResult(res, err, "failed to wait for queue")
}
