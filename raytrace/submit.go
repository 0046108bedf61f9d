package raytrace

import (
	"log/slog"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/accel/hal"
)

// SubmitAndWait records fn into a new command buffer, submits it and waits up to timeout for the queue
// to finish it. A recording error from fn is returned from Finish before anything is submitted.
//
// When the wait times out or the device is lost, the command buffer and fence may still be owned by the
// queue and are left alive. A timeout returns ErrWaitTimeout.
func SubmitAndWait(logger *slog.Logger, device hal.Device, queue hal.Queue, timeout time.Duration, fn func(cmd hal.CommandBuffer)) error {
	cmd, err := device.CreateCommandBuffer()
	if err != nil {
		return err
	}

	err = cmd.Begin()
	if err != nil {
		device.DestroyCommandBuffer(cmd)
		return err
	}
	fn(cmd)
	err = cmd.Finish()
	if err != nil {
		device.DestroyCommandBuffer(cmd)
		return errors.Wrap(err, "failed to record commands")
	}

	fence, err := device.CreateFence(false)
	if err != nil {
		device.DestroyCommandBuffer(cmd)
		return err
	}

	err = queue.Submit([]hal.CommandBuffer{cmd}, fence)
	if err != nil {
		device.DestroyFence(fence)
		device.DestroyCommandBuffer(cmd)
		return err
	}

	signaled, err := device.WaitForFence(fence, timeout)
	if err == nil && !signaled {
		logger.Warn("submission did not finish in time, leaving its command buffer and fence alive",
			slog.Duration("timeout", timeout))
		return errors.Wrapf(hal.ErrWaitTimeout, "submission did not finish within %s", timeout)
	}
	if err != nil {
		return err
	}

	device.DestroyFence(fence)
	device.DestroyCommandBuffer(cmd)
	return nil
}
