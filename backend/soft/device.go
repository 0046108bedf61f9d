package soft

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/cockroachdb/errors"
	"github.com/dolthub/swiss"
	"github.com/vkngwrapper/accel/hal"
	"github.com/vkngwrapper/accel/internal/heaps"
	"github.com/vkngwrapper/accel/internal/utils"
)

const (
	// firstDeviceAddress keeps 0 free to mean "no address"
	firstDeviceAddress    uint64 = 1 << 32
	addressSpaceAlignment uint64 = 1 << 16
)

// Device is a software device. Memory lives in host slices, a single worker goroutine plays the part
// of the GPU queue, and builds write a real BVH into the acceleration structure's backing buffer.
type Device struct {
	logger   *slog.Logger
	profile  Profile
	features hal.Features
	heaps    *heaps.Tracker

	nextAddress atomic.Uint64

	objectsLock         utils.OptionalRWMutex
	structuresByAddress *swiss.Map[uint64, *accelerationStructure]

	lostOnce sync.Once
	lostLock sync.Mutex
	lostErr  error
	lost     chan struct{}

	queue *queue
}

var _ hal.Device = &Device{}

func newDevice(logger *slog.Logger, profile Profile, features hal.Features, options CreateOptions) (*Device, error) {
	tracker, err := heaps.NewTracker(profile.Memory, profile.Limits.MaxMemoryAllocationCount, options.HeapSizeLimits)
	if err != nil {
		return nil, err
	}

	device := &Device{
		logger:   logger,
		profile:  profile,
		features: features,
		heaps:    tracker,
		objectsLock: utils.OptionalRWMutex{
			UseMutex: !options.ExternallySynchronized,
		},
		structuresByAddress: swiss.NewMap[uint64, *accelerationStructure](64),
		lost:                make(chan struct{}),
	}
	device.nextAddress.Store(firstDeviceAddress)

	depth := options.SubmissionQueueDepth
	if depth <= 0 {
		depth = defaultSubmissionQueueDepth
	}
	device.queue = newQueue(device, depth)

	logger.Debug("Device::New", slog.String("profile", profile.Name), slog.String("features", features.String()))
	return device, nil
}

func (d *Device) Limits() hal.Limits {
	return d.profile.Limits
}

func (d *Device) MemoryProperties() hal.MemoryProperties {
	return d.profile.Memory
}

func (d *Device) Features() hal.Features {
	return d.features
}

// Queue returns the device's only queue
func (d *Device) Queue() hal.Queue {
	return d.queue
}

// reserveAddressRange hands out a unique device virtual address range of at least size bytes
func (d *Device) reserveAddressRange(size uint64) uint64 {
	span := (max(size, 1) + addressSpaceAlignment - 1) &^ (addressSpaceAlignment - 1)
	return d.nextAddress.Add(span) - span
}

// markLost records the first GPU fault. Every later wait and submission fails with ErrDeviceLost.
func (d *Device) markLost(cause error) {
	d.lostOnce.Do(func() {
		d.logger.Error("device lost", slog.Any("error", cause))

		d.lostLock.Lock()
		d.lostErr = hal.Classify(errors.Wrap(cause, "device lost"), hal.ErrDeviceLost)
		d.lostLock.Unlock()

		close(d.lost)
	})
}

// lostError returns nil until the device has been lost
func (d *Device) lostError() error {
	d.lostLock.Lock()
	defer d.lostLock.Unlock()
	return d.lostErr
}

// IsLost reports whether a GPU fault has occurred
func (d *Device) IsLost() bool {
	return d.lostError() != nil
}

func (d *Device) WaitIdle() error {
	return d.queue.WaitIdle()
}

func (d *Device) Destroy() {
	d.logger.Debug("Device::Destroy")
	d.queue.shutdown()
}

func (d *Device) registerStructure(as *accelerationStructure) {
	d.objectsLock.Lock()
	defer d.objectsLock.Unlock()

	d.structuresByAddress.Put(as.address, as)
}

func (d *Device) unregisterStructure(as *accelerationStructure) {
	d.objectsLock.Lock()
	defer d.objectsLock.Unlock()

	if current, ok := d.structuresByAddress.Get(as.address); ok && current == as {
		d.structuresByAddress.Delete(as.address)
	}
}

// structureAt resolves an Instance.AccelerationStructureReference
func (d *Device) structureAt(address uint64) (*accelerationStructure, bool) {
	d.objectsLock.RLock()
	defer d.objectsLock.RUnlock()

	return d.structuresByAddress.Get(address)
}
