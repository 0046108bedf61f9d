package hal

import (
	"github.com/cockroachdb/errors"
)

var (
	// ErrOutOfMemory is matched by both ErrOutOfHostMemory and ErrOutOfDeviceMemory
	ErrOutOfMemory = errors.New("out of memory")
	// ErrOutOfHostMemory is returned when host-side storage for an object could not be obtained
	ErrOutOfHostMemory = errors.Wrap(ErrOutOfMemory, "host")
	// ErrOutOfDeviceMemory is returned when a memory heap cannot satisfy an allocation
	ErrOutOfDeviceMemory = errors.Wrap(ErrOutOfMemory, "device")

	// ErrCreation is returned when an object description is malformed. It is a caller bug and is never retried.
	ErrCreation = errors.New("creation failed")
	// ErrBind is returned when memory cannot be bound to a buffer: misaligned, undersized, incompatible
	// memory type, or already bound
	ErrBind = errors.New("bind failed")
	// ErrMapFailed is returned when memory cannot be mapped into host address space
	ErrMapFailed = errors.New("memory map failed")
	// ErrDeviceLost is returned by every wait and submission once the device has faulted. The device
	// cannot be recovered.
	ErrDeviceLost = errors.New("device lost")
	// ErrWaitTimeout is returned by helpers whose signature cannot express a timed out wait as false.
	// Waiting again may succeed.
	ErrWaitTimeout = errors.New("wait timed out")
	// ErrNotSupported is returned by backends that do not implement an operation
	ErrNotSupported = errors.New("not supported")

	// ErrInvalidBuildDestination is recorded when a build targets a Generic acceleration structure
	ErrInvalidBuildDestination = errors.Wrap(ErrCreation, "build destination must be a top or bottom level acceleration structure")
)

type classifiedError struct {
	cause error
	kind  error
}

func (e *classifiedError) Error() string { return e.cause.Error() }
func (e *classifiedError) Unwrap() error { return e.cause }

func (e *classifiedError) Is(target error) bool {
	return errors.Is(e.kind, target)
}

// Classify returns err unchanged in message and cause chain, but matching kind (and everything kind
// wraps) under errors.Is. Classifications stack, so an error can carry ErrCreation and
// ErrOutOfDeviceMemory at once.
func Classify(err error, kind error) error {
	if err == nil {
		return nil
	}
	return &classifiedError{cause: err, kind: kind}
}
