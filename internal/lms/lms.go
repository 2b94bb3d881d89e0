// Package lms implements the joint FIR+IIR adaptive filter that runs after
// the long-term predictor (§4.6): a single filter whose tap set spans both
// the raw input history and its own past residuals, adapted sample by
// sample with a sign-log step table rather than a flat sign-sign nudge, so
// large errors move weights faster than small ones.
package lms

import "math/bits"

// PredictionShift is the fixed-point shift applied to the joint FIR+IIR
// accumulator to produce a prediction.
const PredictionShift = 10

// DeltaWeightShift scales the sign-log adaptation table, independent of
// PredictionShift: it controls how fast weights move per sample, not the
// prediction's fixed-point scale.
const DeltaWeightShift = 9

// MinOrder is the smallest allowed order; orders must be a power of two so
// the history ring's wraparound is a mask instead of a modulo.
const MinOrder = 4

// logTableHalfWidth bounds the magnitude of sign(residual)*ceil(log2(|residual|+1)):
// a 32-bit residual's magnitude never needs more than 32 bits to represent.
const logTableHalfWidth = 32

// signLogTable[idx][s] is the adaptation step added to a tap whose paired
// history sample has sign s (0 = negative, 1 = non-negative), for a
// residual whose signed log index is idx (idx - logTableHalfWidth recovers
// sign(residual)*ceil(log2(|residual|+1))).
var signLogTable [2*logTableHalfWidth + 1][2]int32

func init() {
	for idx := range signLogTable {
		diff := int32(idx - logTableHalfWidth)

		mag := diff
		if mag < 0 {
			mag = -mag
		}

		step := (mag << DeltaWeightShift) >> 5

		sign := int32(1)
		if diff < 0 {
			sign = -1
		}

		signLogTable[idx][1] = sign * step
		signLogTable[idx][0] = -sign * step
	}
}

func logIndex(residual int32) int {
	var abs uint32
	if residual < 0 {
		abs = uint32(-int64(residual)) //nolint:gosec // magnitude of a 32-bit value always fits uint32
	} else {
		abs = uint32(residual)
	}

	logCeil := bits.Len32(abs)

	switch {
	case residual > 0:
		return logTableHalfWidth + logCeil
	case residual < 0:
		return logTableHalfWidth - logCeil
	default:
		return logTableHalfWidth
	}
}

func signIndex(v int32) int {
	if v < 0 {
		return 0
	}

	return 1
}

// Filter is the joint adaptive predictor: fir taps pair with the input
// history, iir taps pair with the filter's own past residuals, and both
// sets share one ring position so every sample advances them together.
type Filter struct {
	order int
	mask  int

	fir []int32
	iir []int32

	xBuf []int32
	pBuf []int32

	pos int

	warmup   int
	warmLeft int
}

// NewFilter returns a Filter of the given order, which must be a power of
// two >= MinOrder. warmup is the number of leading samples the filter
// passes through unchanged while it fills its delay line, per §4.6.
func NewFilter(order, warmup int) *Filter {
	return &Filter{
		order:  order,
		mask:   order - 1,
		fir:    make([]int32, order),
		iir:    make([]int32, order),
		xBuf:   make([]int32, order),
		pBuf:   make([]int32, order),
		warmup: warmup,
	}
}

// Reset clears weights and history and restarts the warm-up window, run at
// every block boundary so blocks decode independently (§5).
func (f *Filter) Reset() {
	for i := range f.fir {
		f.fir[i] = 0
		f.iir[i] = 0
		f.xBuf[i] = 0
		f.pBuf[i] = 0
	}

	f.pos = 0
	f.warmLeft = f.warmup
}

func (f *Filter) predict() int32 {
	var acc int64

	idx := f.pos

	for i := 0; i < f.order; i++ {
		idx = (idx - 1) & f.mask
		acc += int64(f.fir[i]) * int64(f.xBuf[idx])
		acc += int64(f.iir[i]) * int64(f.pBuf[idx])
	}

	return int32((acc + (1 << (PredictionShift - 1))) >> PredictionShift) //nolint:gosec // bounded by sample/weight magnitudes
}

func (f *Filter) update(residual int32) {
	logIdx := logIndex(residual)

	idx := f.pos

	for i := 0; i < f.order; i++ {
		idx = (idx - 1) & f.mask
		f.fir[i] += signLogTable[logIdx][signIndex(f.xBuf[idx])]
		f.iir[i] += signLogTable[logIdx][signIndex(f.pBuf[idx])]
	}
}

func (f *Filter) push(x, residual int32) {
	f.xBuf[f.pos] = x
	f.pBuf[f.pos] = residual
	f.pos = (f.pos + 1) & f.mask
}

// Process runs the forward (encoder) direction for one sample, returning
// the residual and updating weights/history. For the first warmup samples
// of a block it passes x through unchanged while still filling the delay
// line, so the filter has real history by the time it starts predicting.
func (f *Filter) Process(x int32) int32 {
	if f.warmLeft > 0 {
		f.warmLeft--
		f.push(x, x)

		return x
	}

	pred := f.predict()
	e := x - pred

	f.update(e)
	f.push(x, e)

	return e
}

// Unprocess is the exact inverse of Process.
func (f *Filter) Unprocess(e int32) int32 {
	if f.warmLeft > 0 {
		f.warmLeft--
		f.push(e, e)

		return e
	}

	pred := f.predict()
	x := e + pred

	f.update(e)
	f.push(x, e)

	return x
}
