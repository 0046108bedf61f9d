package hal_test

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/accel/hal"
)

func TestOutOfMemoryKindsAreDistinct(t *testing.T) {
	require.ErrorIs(t, hal.ErrOutOfHostMemory, hal.ErrOutOfMemory)
	require.ErrorIs(t, hal.ErrOutOfDeviceMemory, hal.ErrOutOfMemory)
	require.NotErrorIs(t, hal.ErrOutOfDeviceMemory, hal.ErrOutOfHostMemory)
	require.NotErrorIs(t, hal.ErrOutOfHostMemory, hal.ErrOutOfDeviceMemory)
	require.False(t, errors.Is(hal.ErrOutOfHostMemory, hal.ErrOutOfDeviceMemory))
	require.ErrorIs(t, hal.ErrInvalidBuildDestination, hal.ErrCreation)
}

func TestClassify(t *testing.T) {
	require.NoError(t, hal.Classify(nil, hal.ErrBind))

	cause := errors.New("range overflow")
	err := hal.Classify(errors.Wrap(cause, "memory is too small for the buffer"), hal.ErrBind)
	require.Equal(t, "memory is too small for the buffer: range overflow", err.Error())
	require.ErrorIs(t, err, hal.ErrBind)
	require.ErrorIs(t, err, cause)
	require.True(t, errors.Is(err, hal.ErrBind))
	require.NotErrorIs(t, err, hal.ErrCreation)

	wrapped := errors.Wrap(err, "bind")
	require.ErrorIs(t, wrapped, hal.ErrBind)
	require.True(t, errors.Is(wrapped, cause))
}

func TestClassifyStacks(t *testing.T) {
	driverErr := errors.New("VK_ERROR_OUT_OF_DEVICE_MEMORY")
	err := hal.Classify(hal.Classify(driverErr, hal.ErrOutOfDeviceMemory), hal.ErrCreation)

	require.ErrorIs(t, err, hal.ErrCreation)
	require.ErrorIs(t, err, hal.ErrOutOfDeviceMemory)
	require.ErrorIs(t, err, hal.ErrOutOfMemory)
	require.ErrorIs(t, err, driverErr)
	require.NotErrorIs(t, err, hal.ErrOutOfHostMemory)
	require.False(t, errors.Is(err, hal.ErrOutOfHostMemory))
	require.True(t, errors.Is(err, hal.ErrOutOfMemory))
}
