package hal

import "golang.org/x/exp/constraints"

const (
	low24Mask  uint32 = 0x00FFFFFF
	high8Mask  uint32 = 0xFF000000
	high8Shift        = 24
)

// replaceBits replaces the bits of dest selected by mask with the same bits of new
func replaceBits[T constraints.Unsigned](dest, new, mask T) T {
	return dest ^ ((dest ^ new) & mask)
}

func fitsIn24Bits(n uint32) bool {
	return n < 1<<24
}
