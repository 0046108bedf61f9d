package memutils

import "github.com/cockroachdb/errors"

// PowerOfTwoError is the error returned from CheckPow2 or other methods if the number being tested is not a power of two
var PowerOfTwoError error = errors.New("number must be a power of two")

// ErrRangeOverflow is returned when an offset plus a size cannot be represented or runs past the end of a region
var ErrRangeOverflow error = errors.New("range exceeds region bounds")
