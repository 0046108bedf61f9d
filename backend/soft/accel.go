package soft

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/accel/hal"
	"github.com/vkngwrapper/accel/memutils"
)

// State is the build state of an acceleration structure as last executed by the queue
type State int32

const (
	StateUnbuilt State = iota
	StateBuilt
	StateUpdated
	StateCompacted
)

func (s State) String() string {
	switch s {
	case StateUnbuilt:
		return "Unbuilt"
	case StateBuilt:
		return "Built"
	case StateUpdated:
		return "Updated"
	case StateCompacted:
		return "Compacted"
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

type accelerationStructure struct {
	structureType hal.AccelerationStructureType
	buffer        *buffer
	offset        uint64
	size          uint64
	address       uint64

	lock      sync.Mutex
	name      string
	state     State
	destroyed bool
}

var _ hal.AccelerationStructure = &accelerationStructure{}

func (a *accelerationStructure) Type() hal.AccelerationStructureType { return a.structureType }
func (a *accelerationStructure) Size() uint64                        { return a.size }

func (a *accelerationStructure) String() string {
	a.lock.Lock()
	defer a.lock.Unlock()

	if a.name != "" {
		return a.name
	}
	return fmt.Sprintf("%s@%#x", a.structureType, a.address)
}

func (a *accelerationStructure) setState(state State) {
	a.lock.Lock()
	defer a.lock.Unlock()
	a.state = state
}

func (a *accelerationStructure) currentState() State {
	a.lock.Lock()
	defer a.lock.Unlock()
	return a.state
}

// storage returns the device bytes of the structure's region
func (a *accelerationStructure) storage() ([]byte, error) {
	a.lock.Lock()
	destroyed := a.destroyed
	a.lock.Unlock()

	if destroyed {
		return nil, errors.Newf("acceleration structure %s has been destroyed", a)
	}
	return a.buffer.region(a.offset, a.size)
}

func (d *Device) structureFrom(handle hal.AccelerationStructure) *accelerationStructure {
	as, ok := handle.(*accelerationStructure)
	if !ok {
		panic(errors.AssertionFailedf("acceleration structure %T was not created by a soft device", handle))
	}
	return as
}

func (d *Device) CreateAccelerationStructure(desc hal.AccelerationStructureCreateDesc) (hal.AccelerationStructure, error) {
	d.logger.Debug("Device::CreateAccelerationStructure",
		slog.String("type", desc.Type.String()),
		slog.Uint64("offset", desc.BufferOffset),
		slog.Uint64("size", desc.Size))

	if desc.Buffer == nil {
		return nil, errors.Wrap(hal.ErrCreation, "acceleration structure needs a backing buffer")
	}
	buf := d.bufferFrom(desc.Buffer)

	if desc.Type < hal.AccelerationStructureTypeTopLevel || desc.Type > hal.AccelerationStructureTypeGeneric {
		return nil, errors.Wrapf(hal.ErrCreation, "unknown acceleration structure type %s", desc.Type)
	}
	if desc.Size == 0 {
		return nil, errors.Wrap(hal.ErrCreation, "acceleration structure size must be greater than 0")
	}
	if !memutils.IsAligned(desc.BufferOffset, hal.AccelerationStructureAlignment) {
		return nil, errors.Wrapf(hal.ErrCreation, "buffer offset %d is not a multiple of %d", desc.BufferOffset, hal.AccelerationStructureAlignment)
	}
	if !buf.usage.Contains(hal.BufferUsageAccelerationStructureStorage) {
		return nil, errors.Wrapf(hal.ErrCreation, "buffer usage %s lacks BufferUsageAccelerationStructureStorage", buf.usage)
	}
	if err := memutils.CheckRange(desc.BufferOffset, desc.Size, buf.size); err != nil {
		return nil, hal.Classify(err, hal.ErrCreation)
	}

	mem, memOffset, bound := buf.binding()
	if !bound {
		return nil, errors.Wrap(hal.ErrCreation, "backing buffer is not bound to memory")
	}

	as := &accelerationStructure{
		structureType: desc.Type,
		buffer:        buf,
		offset:        desc.BufferOffset,
		size:          desc.Size,
		address:       mem.address + memOffset + desc.BufferOffset,
	}
	d.registerStructure(as)

	return as, nil
}

func (d *Device) GetAccelerationStructureAddress(handle hal.AccelerationStructure) uint64 {
	return d.structureFrom(handle).address
}

func (d *Device) SetAccelerationStructureName(handle hal.AccelerationStructure, name string) {
	as := d.structureFrom(handle)

	as.lock.Lock()
	defer as.lock.Unlock()
	as.name = name
}

func (d *Device) DestroyAccelerationStructure(handle hal.AccelerationStructure) {
	as := d.structureFrom(handle)
	d.logger.Debug("Device::DestroyAccelerationStructure", slog.String("structure", as.String()))

	as.lock.Lock()
	if as.destroyed {
		as.lock.Unlock()
		panic("acceleration structure was destroyed twice")
	}
	as.destroyed = true
	as.lock.Unlock()

	d.unregisterStructure(as)
}

// AccelerationStructureState returns the state left by the last executed command touching handle
func (d *Device) AccelerationStructureState(handle hal.AccelerationStructure) State {
	return d.structureFrom(handle).currentState()
}
