package soft

import (
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/accel/hal"
)

type fence struct {
	device *Device

	lock      sync.Mutex
	signaled  chan struct{}
	isSignal  bool
	pending   int
	destroyed bool
}

func (d *Device) fenceFrom(handle hal.Fence) *fence {
	f, ok := handle.(*fence)
	if !ok || f.device != d {
		panic(errors.AssertionFailedf("fence %T was not created by this device", handle))
	}
	return f
}

// enqueue marks the fence as owned by a submission. A fence can only be submitted unsignaled, once.
func (f *fence) enqueue() error {
	f.lock.Lock()
	defer f.lock.Unlock()

	switch {
	case f.destroyed:
		return errors.New("fence has been destroyed")
	case f.isSignal:
		return errors.New("fence is already signaled, reset it before submitting")
	case f.pending > 0:
		return errors.New("fence is already in use by a pending submission")
	}
	f.pending++
	return nil
}

// complete releases the submission's hold on the fence and signals it if the work ran
func (f *fence) complete(signal bool) {
	f.lock.Lock()
	defer f.lock.Unlock()

	if f.pending > 0 {
		f.pending--
	}
	if signal {
		f.signalLocked()
	}
}

func (f *fence) signalLocked() {
	if !f.isSignal {
		f.isSignal = true
		close(f.signaled)
	}
}

func (f *fence) status() (chan struct{}, bool) {
	f.lock.Lock()
	defer f.lock.Unlock()
	return f.signaled, f.isSignal
}

func (d *Device) CreateFence(signaled bool) (hal.Fence, error) {
	f := &fence{
		device:   d,
		signaled: make(chan struct{}),
	}
	if signaled {
		f.signalLocked()
	}
	return f, nil
}

func (d *Device) ResetFence(handle hal.Fence) error {
	f := d.fenceFrom(handle)

	f.lock.Lock()
	defer f.lock.Unlock()

	if f.pending > 0 {
		return errors.New("cannot reset a fence used by a pending submission")
	}
	if f.isSignal {
		f.isSignal = false
		f.signaled = make(chan struct{})
	}
	return nil
}

func (d *Device) GetFenceStatus(handle hal.Fence) (bool, error) {
	if _, signaled := d.fenceFrom(handle).status(); signaled {
		return true, nil
	}
	return false, d.lostError()
}

func (d *Device) WaitForFence(handle hal.Fence, timeout time.Duration) (bool, error) {
	signaledChan, signaled := d.fenceFrom(handle).status()
	if signaled {
		return true, nil
	}
	if err := d.lostError(); err != nil {
		return false, err
	}

	var expired <-chan time.Time
	if timeout != hal.WaitForever {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case <-signaledChan:
		return true, nil
	case <-d.lost:
		return false, d.lostError()
	case <-expired:
		return false, nil
	}
}

func (d *Device) DestroyFence(handle hal.Fence) {
	f := d.fenceFrom(handle)

	f.lock.Lock()
	defer f.lock.Unlock()

	if f.pending > 0 {
		panic("fence was destroyed while used by a pending submission")
	}
	f.destroyed = true
}
