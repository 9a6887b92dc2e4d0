package rewards

import "math/bits"

// TickBitmap tracks initialized ticks, one bit per tick compressed by tick
// spacing, in 64-tick words. A bit is set iff the tick's liquidityGross != 0.
type TickBitmap map[int16]uint64

func bitmapPosition(compressed int32) (word int16, bit uint) {
	word = int16(compressed >> 6)
	bit = uint(compressed & 63)
	return word, bit
}

// Flip toggles the bit for the given compressed tick.
func (b TickBitmap) Flip(compressed int32) {
	word, bit := bitmapPosition(compressed)
	b[word] ^= 1 << bit
	if b[word] == 0 {
		delete(b, word)
	}
}

// IsSet reports whether the compressed tick is initialized.
func (b TickBitmap) IsSet(compressed int32) bool {
	word, bit := bitmapPosition(compressed)
	return b[word]&(1<<bit) != 0
}

// NextAbove returns the smallest initialized compressed tick strictly greater
// than from and not greater than to.
func (b TickBitmap) NextAbove(from, to int32) (int32, bool) {
	if from >= to {
		return 0, false
	}
	start := from + 1
	startWord, startBit := bitmapPosition(start)
	endWord, _ := bitmapPosition(to)

	for word := startWord; word <= endWord; word++ {
		mask := b[word]
		if word == startWord {
			mask &= ^uint64(0) << startBit
		}
		if mask == 0 {
			continue
		}
		bit := uint(bits.TrailingZeros64(mask))
		candidate := int32(word)<<6 | int32(bit)
		if candidate > to {
			return 0, false
		}
		return candidate, true
	}
	return 0, false
}

// NextBelow returns the largest initialized compressed tick not greater than
// from and strictly greater than to.
func (b TickBitmap) NextBelow(from, to int32) (int32, bool) {
	if from <= to {
		return 0, false
	}
	startWord, startBit := bitmapPosition(from)
	endWord, _ := bitmapPosition(to + 1)

	for word := startWord; word >= endWord; word-- {
		mask := b[word]
		if word == startWord {
			mask &= ^uint64(0) >> (63 - startBit)
		}
		if mask == 0 {
			continue
		}
		bit := uint(63 - bits.LeadingZeros64(mask))
		candidate := int32(word)<<6 | int32(bit)
		if candidate <= to {
			return 0, false
		}
		return candidate, true
	}
	return 0, false
}
