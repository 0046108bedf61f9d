package soft

import (
	"log/slog"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/vkngwrapper/accel/hal"
)

type submission struct {
	id    uuid.UUID
	cmds  []*commandBuffer
	fence *fence
}

// queue executes submissions in order on a single worker goroutine
type queue struct {
	device      *Device
	submissions chan submission

	sendLock sync.RWMutex
	closed   bool

	idleLock sync.Mutex
	idle     *sync.Cond
	inFlight int

	done chan struct{}
}

var _ hal.Queue = &queue{}

func newQueue(device *Device, depth int) *queue {
	q := &queue{
		device:      device,
		submissions: make(chan submission, depth),
		done:        make(chan struct{}),
	}
	q.idle = sync.NewCond(&q.idleLock)

	go q.run()
	return q
}

func (q *queue) Submit(cmds []hal.CommandBuffer, fenceHandle hal.Fence) error {
	if err := q.device.lostError(); err != nil {
		return err
	}

	sub := submission{
		id:   uuid.New(),
		cmds: make([]*commandBuffer, 0, len(cmds)),
	}
	if fenceHandle != nil {
		sub.fence = q.device.fenceFrom(fenceHandle)
		if err := sub.fence.enqueue(); err != nil {
			return err
		}
	}

	for index, handle := range cmds {
		cmd := q.device.commandBufferFrom(handle)
		if !cmd.state.CompareAndSwap(int32(commandBufferExecutable), int32(commandBufferPending)) {
			for _, pending := range sub.cmds {
				pending.state.Store(int32(commandBufferExecutable))
			}
			if sub.fence != nil {
				sub.fence.complete(false)
			}
			return errors.Newf("command buffer %d is %s, not Executable", index, cmd.currentState())
		}
		sub.cmds = append(sub.cmds, cmd)
	}

	q.idleLock.Lock()
	q.inFlight++
	q.idleLock.Unlock()

	q.sendLock.RLock()
	defer q.sendLock.RUnlock()
	if q.closed {
		q.finish(sub, false)
		return errors.New("queue has been shut down")
	}

	q.device.logger.Debug("Queue::Submit", slog.String("submission", sub.id.String()), slog.Int("commandBuffers", len(cmds)))
	q.submissions <- sub
	return nil
}

func (q *queue) run() {
	defer close(q.done)

	for sub := range q.submissions {
		q.finish(sub, q.execute(sub))
	}
}

// execute runs every command of the submission and reports whether all of them completed
func (q *queue) execute(sub submission) bool {
	device := q.device
	if device.IsLost() {
		return false
	}

	for cmdIndex, cmd := range sub.cmds {
		for commandIndex, c := range cmd.commands {
			if err := c.execute(device); err != nil {
				device.markLost(errors.Wrapf(err, "submission %s, command buffer %d, command %d", sub.id, cmdIndex, commandIndex))
				return false
			}
		}
	}
	return true
}

// finish releases the submission's command buffers, signals its fence if it completed and wakes
// idle waiters
func (q *queue) finish(sub submission, completed bool) {
	for _, cmd := range sub.cmds {
		cmd.state.CompareAndSwap(int32(commandBufferPending), int32(commandBufferExecutable))
	}
	if sub.fence != nil {
		sub.fence.complete(completed)
	}

	q.idleLock.Lock()
	q.inFlight--
	q.idleLock.Unlock()
	q.idle.Broadcast()
}

// WaitIdle blocks until every submission has executed. It returns ErrDeviceLost if any of them faulted.
func (q *queue) WaitIdle() error {
	q.idleLock.Lock()
	for q.inFlight > 0 {
		q.idle.Wait()
	}
	q.idleLock.Unlock()

	return q.device.lostError()
}

func (q *queue) shutdown() {
	q.sendLock.Lock()
	if q.closed {
		q.sendLock.Unlock()
		return
	}
	q.closed = true
	close(q.submissions)
	q.sendLock.Unlock()

	<-q.done
}
