package filestats

// MaxNibbleLevel is the highest magnitude level a 4-bit field can hold.
const MaxNibbleLevel = 15

// asNibble maps a hit count to the largest level L in [0,15] with
// hits >= 2^L - 1. Counts above 2^15 - 1 saturate at 15.
func asNibble(hits uint64) uint8 {
	var level uint8
	for l := uint8(1); l <= MaxNibbleLevel; l++ {
		if hits < (uint64(1)<<l)-1 {
			break
		}
		level = l
	}
	return level
}

// NibbleThreshold returns the smallest hit count encoded as level.
func NibbleThreshold(level uint8) uint64 {
	if level > MaxNibbleLevel {
		level = MaxNibbleLevel
	}
	return (uint64(1) << level) - 1
}

func packNibbles(low, high uint64) byte {
	return asNibble(low) | asNibble(high)<<4
}
