// Package rice implements the adaptive recursive Rice / Golomb / Gamma
// entropy coder (§4.8) used for residual samples. Three atomic codes
// (Gamma, Golomb(m), and the unary/zero-run primitive bitio already
// provides) compose into the recursive-Rice scheme that adapts its
// parameter per channel via an exponential moving average.
package rice

import (
	"math/bits"

	"github.com/mycophonic/sla/internal/bitio"
)

// writeUnary emits q zero bits followed by a terminating one bit.
func writeUnary(w *bitio.Writer, q uint32) error {
	for q >= 32 {
		if err := w.PutBits(0, 32); err != nil {
			return err
		}

		q -= 32
	}

	// q zero bits then a one bit, packed as a single (q+1)-bit field.
	return w.PutBits(1, uint(q+1))
}

// GammaEncode writes v using an Elias-gamma-style code: 0 encodes as the
// single bit 1; otherwise ceil(log2(v+2))-1 zero bits followed by the
// ceil(log2(v+2))-bit binary representation of v+1 (whose leading 1 bit
// doubles as the unary terminator, so no separate stop bit is needed).
func GammaEncode(w *bitio.Writer, v uint32) error {
	numBits := bits.Len32(v + 1)

	if numBits > 1 {
		if err := w.PutBits(0, uint(numBits-1)); err != nil {
			return err
		}
	}

	return w.PutBits(uint64(v+1), uint(numBits))
}

// GammaDecode reads a value encoded by GammaEncode.
func GammaDecode(r *bitio.Reader) (uint32, error) {
	zeros, err := r.GetZeroRunLength()
	if err != nil {
		return 0, err
	}

	rest, err := r.GetBits(uint(zeros))
	if err != nil {
		return 0, err
	}

	v := (uint32(1)<<zeros | uint32(rest)) - 1

	return v, nil
}

// golombBits returns ceil(log2(m)) and the truncated-binary cutoff used to
// split the remainder between b-1 and b bit codewords.
func golombBits(m uint32) (b int, cutoff uint32) {
	if m <= 1 {
		return 0, 0
	}

	b = bits.Len32(m - 1)
	cutoff = uint32(1)<<b - m

	return b, cutoff
}

// golombEncodeRemainder writes rem (0 <= rem < m) using the classic
// length-balanced truncated-binary split, degenerating to a plain
// fixed-width (Rice) code when m is a power of two.
func golombEncodeRemainder(w *bitio.Writer, rem, m uint32) error {
	b, cutoff := golombBits(m)
	if b == 0 {
		return nil
	}

	if rem < cutoff {
		return w.PutBits(uint64(rem), uint(b-1))
	}

	return w.PutBits(uint64(rem+cutoff), uint(b))
}

// golombDecodeRemainder is the inverse of golombEncodeRemainder.
func golombDecodeRemainder(r *bitio.Reader, m uint32) (uint32, error) {
	b, cutoff := golombBits(m)
	if b == 0 {
		return 0, nil
	}

	first, err := r.GetBits(uint(b - 1))
	if err != nil {
		return 0, err
	}

	if uint32(first) < cutoff {
		return uint32(first), nil
	}

	extra, err := r.GetBits(1)
	if err != nil {
		return 0, err
	}

	full := uint32(first)<<1 | uint32(extra)

	return full - cutoff, nil
}

// GolombEncode writes v as a quotient (v/m, in unary) followed by a
// truncated-binary remainder, degenerating to plain Rice coding when m is
// a power of two.
func GolombEncode(w *bitio.Writer, v, m uint32) error {
	q := v / m
	rem := v % m

	if err := writeUnary(w, q); err != nil {
		return err
	}

	return golombEncodeRemainder(w, rem, m)
}

// GolombDecode is the inverse of GolombEncode.
func GolombDecode(r *bitio.Reader, m uint32) (uint32, error) {
	q, err := r.GetZeroRunLength()
	if err != nil {
		return 0, err
	}

	rem, err := golombDecodeRemainder(r, m)
	if err != nil {
		return 0, err
	}

	return q*m + rem, nil
}
