package longterm

import "math"

// MinLag and MaxLag bound the pitch period search range, in samples.
const (
	MinLag = 32
	MaxLag = 1024
)

// SilenceEpsilon mirrors parcor.SilenceEpsilon: below this energy a block
// is treated as silent and long-term prediction is skipped.
const SilenceEpsilon = 1e-9

// refinementSteps is the number of iterative-refinement passes solveTaps
// runs on top of the initial pivoted LU solve (§4.5).
const refinementSteps = 2

// Result is the outcome of long-term analysis for one channel of one
// block: a lag and len(Taps) floating-point tap weights, or Lag==0 meaning
// "no long-term prediction for this block" (§4.5 edge case).
type Result struct {
	Lag  int
	Taps []float64
}

// Analyse searches samples for the best pitch lag in [MinLag,MaxLag] and
// solves the numTaps-tap Toeplitz normal equations around it. numTaps must
// be odd (the predictor is centred on the chosen lag). It returns Lag==0
// if the block is quasi-silent, too short to search, or has no
// autocorrelation peak above the floor. If the solve fails or yields an
// unstable tap set, it keeps the lag and falls back to a single central
// tap picked directly from the normalised autocorrelation.
func Analyse(samples []float64, numTaps int) Result {
	n := len(samples)
	if n < MinLag*2 {
		return Result{}
	}

	var energy float64
	for _, x := range samples {
		energy += x * x
	}

	if energy/float64(n) < SilenceEpsilon {
		return Result{}
	}

	maxLag := MaxLag
	if maxLag > n-1 {
		maxLag = n - 1
	}

	if maxLag < MinLag {
		return Result{}
	}

	r := autocorrelateFFT(samples, maxLag)
	if r[0] <= 0 {
		return Result{}
	}

	lag := pickPeakLag(r, MinLag, maxLag)
	if lag == 0 {
		return Result{}
	}

	taps, ok := solveTaps(samples, lag, numTaps)
	if !ok {
		taps = make([]float64, numTaps)
		taps[numTaps/2] = r[lag] / r[0]
	}

	// Instability fallback (§4.5): a tap set whose coefficients sum in
	// magnitude to 1 or more can amplify rather than predict.
	var absSum float64
	for _, t := range taps {
		absSum += math.Abs(t)
	}

	if absSum >= 1 {
		taps = make([]float64, numTaps)
		taps[numTaps/2] = r[lag] / r[0]
	}

	return Result{Lag: lag, Taps: taps}
}

// pickPeakLag returns the lag in [lo,hi] with the largest normalised
// autocorrelation, or 0 if no candidate clears a minimal correlation
// floor (a flat or noise-like spectrum has no useful pitch period).
func pickPeakLag(r []float64, lo, hi int) int {
	const minNormalizedPeak = 0.05

	best := 0
	bestVal := minNormalizedPeak * r[0]

	for lag := lo; lag <= hi; lag++ {
		if r[lag] > bestVal {
			bestVal = r[lag]
			best = lag
		}
	}

	return best
}

// solveTaps builds the numTaps x numTaps Toeplitz normal-equation system
// centred on lag and solves it via LU decomposition with partial
// pivoting, followed by refinementSteps of iterative refinement. ok is
// false if the system is singular to working precision.
func solveTaps(samples []float64, lag, numTaps int) (taps []float64, ok bool) {
	n := len(samples)
	half := numTaps / 2

	// Reference vector: samples shifted by lag, offset by the tap index so
	// column j corresponds to delay (lag + j - half).
	start := lag + half
	if start >= n {
		return nil, false
	}

	count := n - start

	a := make([][]float64, numTaps)
	for i := range a {
		a[i] = make([]float64, numTaps)
	}

	b := make([]float64, numTaps)

	for i := 0; i < numTaps; i++ {
		di := lag + i - half

		for j := 0; j < numTaps; j++ {
			dj := lag + j - half
			a[i][j] = dotShifted(samples, di, dj, count, start)
		}

		b[i] = dotShifted(samples, di, 0, count, start)
	}

	x, ok := luSolve(a, b)
	if !ok {
		return nil, false
	}

	for i := 0; i < refinementSteps; i++ {
		x = refine(a, b, x)
	}

	return x, true
}

// dotShifted computes sum over count samples of samples[k-di]*samples[k-dj]
// for k starting at start.
func dotShifted(samples []float64, di, dj, count, start int) float64 {
	var sum float64

	for k := start; k < start+count; k++ {
		sum += samples[k-di] * samples[k-dj]
	}

	return sum
}

// luSolve solves a*x = b for a square system via Gaussian elimination
// with partial pivoting. a and b are not modified.
func luSolve(a [][]float64, b []float64) (x []float64, ok bool) {
	order := len(b)

	m := make([][]float64, order)
	for i := range m {
		m[i] = append([]float64(nil), a[i]...)
	}

	v := append([]float64(nil), b...)

	for col := 0; col < order; col++ {
		pivot := col
		best := math.Abs(m[col][col])

		for row := col + 1; row < order; row++ {
			if mag := math.Abs(m[row][col]); mag > best {
				best = mag
				pivot = row
			}
		}

		if best < 1e-12 {
			return nil, false
		}

		if pivot != col {
			m[col], m[pivot] = m[pivot], m[col]
			v[col], v[pivot] = v[pivot], v[col]
		}

		for row := col + 1; row < order; row++ {
			factor := m[row][col] / m[col][col]

			for k := col; k < order; k++ {
				m[row][k] -= factor * m[col][k]
			}

			v[row] -= factor * v[col]
		}
	}

	x = make([]float64, order)

	for i := order - 1; i >= 0; i-- {
		sum := v[i]

		for j := i + 1; j < order; j++ {
			sum -= m[i][j] * x[j]
		}

		x[i] = sum / m[i][i]
	}

	return x, true
}

// refine performs one step of iterative refinement: x <- x + solve(a, b -
// a*x), improving the accuracy of the LU solve above without a second
// full pivoted elimination.
func refine(a [][]float64, b, x []float64) []float64 {
	order := len(b)
	residual := make([]float64, order)

	for i := 0; i < order; i++ {
		sum := b[i]

		for j := 0; j < order; j++ {
			sum -= a[i][j] * x[j]
		}

		residual[i] = sum
	}

	correction, ok := luSolve(a, residual)
	if !ok {
		return x
	}

	out := make([]float64, order)
	for i := range out {
		out[i] = x[i] + correction[i]
	}

	return out
}
