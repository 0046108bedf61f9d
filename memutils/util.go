package memutils

import (
	"github.com/cockroachdb/errors"
	"golang.org/x/exp/constraints"
)

type Number interface {
	constraints.Unsigned | ~int | ~int32 | ~int64
}

func CheckPow2[T Number](number T, name string) error {
	if number == 0 || number&(number-1) != 0 {
		return errors.Wrapf(PowerOfTwoError, "%s is %d", name, number)
	}
	return nil
}

// AlignUp rounds value up to the next multiple of alignment, which must be a power of two. An alignment
// of 0 is treated as 1.
func AlignUp[T constraints.Unsigned](value T, alignment T) T {
	if alignment <= 1 {
		return value
	}
	return (value + alignment - 1) &^ (alignment - 1)
}

// AlignDown rounds value down to the previous multiple of alignment, which must be a power of two.
func AlignDown[T constraints.Unsigned](value T, alignment T) T {
	if alignment <= 1 {
		return value
	}
	return value &^ (alignment - 1)
}

// IsAligned reports whether value is a multiple of alignment
func IsAligned[T constraints.Unsigned](value T, alignment T) bool {
	if alignment <= 1 {
		return true
	}
	return value&(alignment-1) == 0
}

// CheckRange verifies that [offset, offset+size) lies inside a region of regionSize bytes
func CheckRange(offset, size, regionSize uint64) error {
	end := offset + size
	if end < offset || end > regionSize {
		return errors.Wrapf(ErrRangeOverflow, "offset %d size %d region %d", offset, size, regionSize)
	}
	return nil
}
