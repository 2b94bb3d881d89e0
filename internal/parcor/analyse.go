// Package parcor implements PARCOR (partial autocorrelation, i.e.
// reflection-coefficient) linear prediction: autocorrelation plus
// Levinson-Durbin analysis on the encoder's double-precision path (§4.3),
// and the bit-exact int32 lattice predictor/synthesiser shared by encoder
// and decoder (§4.4).
package parcor

import "math"

// SilenceEpsilon is the |r[0]| threshold below which a block is considered
// quasi-silent and analysis is skipped in favour of an all-zero result.
const SilenceEpsilon = 1e-9

// laplaceConstant is beta in the code-length estimator: the entropy of a
// unit-variance Laplace-distributed residual, in bits.
const laplaceConstant = 1.9427

// Autocorrelate computes r[0..order] from samples using the direct
// inner-product definition, accumulating two lags per inner-loop pass
// (the "blocked" formulation the spec calls out) purely to keep the loop
// body doing useful work in pairs; the numeric result is the same
// textbook autocorrelation a naive single-lag loop would produce.
func Autocorrelate(samples []float64, order int) []float64 {
	r := make([]float64, order+1)
	n := len(samples)

	for k := 0; k <= order; k += 2 {
		var acc0, acc1 float64

		for i := k; i < n; i++ {
			acc0 += samples[i] * samples[i-k]
		}

		if k+1 <= order {
			for i := k + 1; i < n; i++ {
				acc1 += samples[i] * samples[i-k-1]
			}
		}

		r[k] = acc0

		if k+1 <= order {
			r[k+1] = acc1
		}
	}

	return r
}

// LevinsonDurbin runs the Levinson-Durbin recursion on autocorrelations
// r[0..order] and returns PARCOR coefficients k[0..order] (k[0] always
// zero). ok is false if the recursion hit a non-positive error variance or
// an unstable (|gamma|>=1) reflection coefficient, in which case the
// caller should fall back to an all-zero (no prediction) result.
func LevinsonDurbin(r []float64, order int) (k []float64, ok bool) {
	k = make([]float64, order+1)

	if order == 0 {
		return k, true
	}

	a := make([]float64, order+1) // current predictor coefficients, a[1..d]
	u := make([]float64, order+1) // scratch: previous stage's a, used while updating

	e := r[0]
	if e <= 0 {
		return k, false
	}

	for d := 1; d <= order; d++ {
		acc := r[d]
		for j := 1; j < d; j++ {
			acc -= a[j] * r[d-j]
		}

		gamma := acc / e
		if math.Abs(gamma) >= 1 {
			return k, false
		}

		copy(u, a)

		a[d] = gamma
		for j := 1; j < d; j++ {
			a[j] = u[j] - gamma*u[d-j]
		}

		e *= 1 - gamma*gamma
		if e < 0 {
			return k, false
		}

		k[d] = -gamma
	}

	return k, true
}

// Analyse computes PARCOR coefficients for samples at the given order,
// handling the quasi-silence and under-determined edge cases by returning
// an all-zero coefficient vector (meaning "no prediction") instead of an
// error — a numerically degenerate block is not a fatal condition.
func Analyse(samples []float64, order int) []float64 {
	zero := make([]float64, order+1)

	if len(samples) < order || order == 0 {
		return zero
	}

	r := Autocorrelate(samples, order)
	if math.Abs(r[0]) < SilenceEpsilon {
		return zero
	}

	k, ok := LevinsonDurbin(r, order)
	if !ok {
		return zero
	}

	return k
}

// CodeLengthEstimate estimates the average bits per sample the lattice
// predictor with coefficients k would achieve on samples, combining the
// residual-power term with the per-stage variance reduction PARCOR
// contributes and the Laplace entropy constant. The result is clamped to
// at least 1/8 bit per sample (the block partitioner requires a
// monotonically useful cost even for perfectly predicted blocks).
func CodeLengthEstimate(samples []float64, k []float64) float64 {
	if len(samples) == 0 {
		return 0.125
	}

	var sumSq float64
	for _, x := range samples {
		sumSq += x * x
	}

	meanPower := sumSq / float64(len(samples))
	if meanPower < SilenceEpsilon {
		meanPower = SilenceEpsilon
	}

	bits := math.Log2(meanPower)/2 + laplaceConstant

	for _, ki := range k {
		v := 1 - ki*ki
		if v < SilenceEpsilon {
			v = SilenceEpsilon
		}

		bits += math.Log2(v) / 2
	}

	if bits < 0.125 {
		bits = 0.125
	}

	return bits
}
