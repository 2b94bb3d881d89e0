package rice

import "github.com/mycophonic/sla/internal/bitio"

// NumParameters is CODER_NUM_RECURSIVERICE_PARAMETER: the number of
// adaptive levels the recursive coder maintains per channel/sub-block.
// Each level keeps its own exponential moving average of residual
// magnitude; a value that overflows every level's bucket falls through to
// a Gamma-coded escape.
const NumParameters = 2

// QuotPartThreshold bounds the final level's Golomb quotient: a quotient
// at or beyond this many unary bits is abandoned in favour of the Gamma
// escape, so no single outlier sample can blow up the bitstream.
const QuotPartThreshold = 32

// emaNumerator and emaDenominatorShift implement the parameter update
// param <- (119*param + 9*value + 64) >> 7 in Q24.8 fixed point: weight
// 119/128 on history, 9/128 on the new magnitude (both scaled into Q24.8
// by the <<8 on value), rounded by the +64 bias before the >>7 rescale.
const (
	emaHistoryWeight = 119
	emaValueWeight   = 9
	emaRoundBias     = 1 << 6
	emaShift         = 7
)

// Coder is the adaptive recursive Rice/Golomb/Gamma entropy coder (§4.8).
// One Coder is used per channel; Reset re-seeds it at every block boundary
// with that block's stored initial parameter so blocks decode
// independently (§5).
type Coder struct {
	params [NumParameters]uint32 // Q24.8 fixed point running means
}

// NewCoder returns a Coder seeded with the given initial parameter (a
// plain integer mean magnitude, as stored in the block header).
func NewCoder(initial uint32) *Coder {
	c := &Coder{}
	c.Reset(initial)

	return c
}

// Reset re-seeds every level with the same initial parameter.
func (c *Coder) Reset(initial uint32) {
	seed := initial << 8
	for i := range c.params {
		c.params[i] = seed
	}
}

// levelM derives this level's Golomb parameter from its running mean: the
// optimal Rice parameter for a Laplace-distributed source is close to half
// the mean, rounded up to the nearest power of two so Golomb degenerates
// to a plain Rice code.
func (c *Coder) levelM(level int) uint32 {
	mean := c.params[level] >> 9 // Q24.8 -> integer mean, halved
	if mean < 1 {
		mean = 1
	}

	return roundUpPow2(mean)
}

func roundUpPow2(v uint32) uint32 {
	if v&(v-1) == 0 {
		return v
	}

	p := uint32(1)
	for p < v {
		p <<= 1
	}

	return p
}

func (c *Coder) update(levels int, value uint32) {
	for i := 0; i < levels; i++ {
		p := c.params[i]
		c.params[i] = (emaHistoryWeight*p + emaValueWeight*(value<<8) + emaRoundBias) >> emaShift
	}
}

// EncodeValue writes the unsigned value produced by folding a residual
// through slamath.SintToUint.
func (c *Coder) EncodeValue(w *bitio.Writer, value uint32) error {
	remaining := value

	for level := 0; level < NumParameters-1; level++ {
		m := c.levelM(level)

		if remaining < m {
			if err := writeUnary(w, uint32(level)); err != nil {
				return err
			}

			if err := golombEncodeRemainder(w, remaining, m); err != nil {
				return err
			}

			c.update(level+1, value)

			return nil
		}

		remaining -= m
	}

	last := NumParameters - 1
	m := c.levelM(last)
	quotient := remaining / m

	if quotient < QuotPartThreshold {
		if err := writeUnary(w, uint32(last)); err != nil {
			return err
		}

		if err := GolombEncode(w, remaining, m); err != nil {
			return err
		}

		c.update(NumParameters, value)

		return nil
	}

	if err := writeUnary(w, uint32(NumParameters)); err != nil {
		return err
	}

	if err := GammaEncode(w, remaining); err != nil {
		return err
	}

	c.update(NumParameters, value)

	return nil
}

// DecodeValue is the inverse of EncodeValue.
func (c *Coder) DecodeValue(r *bitio.Reader) (uint32, error) {
	marker, err := r.GetZeroRunLength()
	if err != nil {
		return 0, err
	}

	var base uint32

	last := NumParameters - 1

	switch {
	case int(marker) < last:
		m := c.levelM(int(marker))

		rem, err := golombDecodeRemainder(r, m)
		if err != nil {
			return 0, err
		}

		for j := 0; j < int(marker); j++ {
			base += c.levelM(j)
		}

		total := base + rem
		c.update(int(marker)+1, total)

		return total, nil

	case int(marker) == last:
		m := c.levelM(last)

		full, err := GolombDecode(r, m)
		if err != nil {
			return 0, err
		}

		for j := 0; j < last; j++ {
			base += c.levelM(j)
		}

		total := base + full
		c.update(NumParameters, total)

		return total, nil

	default:
		v, err := GammaDecode(r)
		if err != nil {
			return 0, err
		}

		for j := 0; j < last; j++ {
			base += c.levelM(j)
		}

		total := base + v
		c.update(NumParameters, total)

		return total, nil
	}
}
