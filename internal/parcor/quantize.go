package parcor

import (
	"math"

	"github.com/mycophonic/sla/internal/slamath"
)

// LowOrderThreshold is PARCOR_COEF_LOW_ORDER_THRESHOULD: coefficients at
// order < LowOrderThreshold are stored in 16 bits, the rest in 8 bits.
const LowOrderThreshold = 4

// MaxRShift is the largest per-channel right-shift the block side info can
// encode (4 bits, §6.2: rshift is packed in 4 bits, so 0..15).
const MaxRShift = 15

// Bits returns the storage width in bits for the coefficient at the given
// order (order 0 is never stored; orders 1..LowOrderThreshold-1 get 16
// bits, the rest get 8).
func Bits(order int) int {
	if order < LowOrderThreshold {
		return 16
	}

	return 8
}

func rangeFor(bits int) (lo, hi int32) {
	half := int32(1) << (bits - 1)

	return -half, half - 1
}

// Quantize converts floating-point PARCOR coefficients k[0..order]
// (k[0] unused) into their Q1.15 integer form, picks the largest
// per-channel shift in [0,MaxRShift] for which every coefficient scaled
// up by 2^rshift still fits 16 bits, and stores the top Bits(i) bits of
// each scaled coefficient, so Reconstruct recovers the Q1.15 value
// (exactly for 16-bit orders, less the dropped low bits for 8-bit ones).
//
// Rounding at the quantization boundary can push a coefficient one past
// its signed range (spec §9); Quantize clips rather than wraps.
func Quantize(k []float64, order int) (stored []int32, rshift int) {
	q15 := make([]int32, order+1)

	for i := 1; i <= order; i++ {
		v := int64(math.Round(k[i] * (1 << 15)))
		if v > 32767 {
			v = 32767
		} else if v < -32768 {
			v = -32768
		}

		q15[i] = int32(v)
	}

	rshift = chooseRShift(q15, order)

	stored = make([]int32, order+1)
	for i := 1; i <= order; i++ {
		bits := Bits(i)
		lo, hi := rangeFor(bits)

		v := slamath.ASR32(q15[i]<<uint(rshift), uint(16-bits))
		if v < lo {
			v = lo
		} else if v > hi {
			v = hi
		}

		stored[i] = v
	}

	return stored, rshift
}

func chooseRShift(q15 []int32, order int) int {
	for rshift := MaxRShift; rshift > 0; rshift-- {
		ok := true

		for i := 1; i <= order; i++ {
			v := q15[i] << uint(rshift)
			lo, hi := rangeFor(16)

			if v < lo || v > hi {
				ok = false

				break
			}
		}

		if ok {
			return rshift
		}
	}

	return 0
}

// Reconstruct widens stored coefficients back to a Q1.15 fixed-point form
// usable directly by Lattice.Predict/Synthesize: each stored value is
// left-shifted to a 16-bit base then arithmetically right-shifted by
// rshift, per §3's interpretation rule.
func Reconstruct(stored []int32, order, rshift int) []int32 {
	k := make([]int32, order+1)

	for i := 1; i <= order; i++ {
		bits := Bits(i)
		widened := stored[i] << (16 - bits)
		k[i] = slamath.ASR32(widened, uint(rshift))
	}

	return k
}
