// Package longterm implements the long-term (pitch) predictor (§4.5): an
// FFT-based lag search on the encoder's double-precision analysis path,
// a small Toeplitz tap solve around the chosen lag, and the bit-exact
// int32 delay-line predictor/synthesiser shared by both directions.
package longterm

import "math"

// fftForward computes the in-place radix-2 decimation-in-time FFT of data,
// whose length must be a power of two. This is analysis-only: every
// caller in this package works on the double-precision path, so there is
// no bit-exactness requirement to ground a library dependency against,
// and the corpus carries no FFT library (checked across every example
// repo's go.mod and source) so a small hand-rolled transform is the only
// option here.
func fftForward(data []complex128) {
	fftInPlace(data, false)
}

// fftInverse computes the in-place inverse FFT, including the 1/N scale.
func fftInverse(data []complex128) {
	fftInPlace(data, true)
	n := complex(float64(len(data)), 0)

	for i := range data {
		data[i] /= n
	}
}

func fftInPlace(data []complex128, inverse bool) {
	n := len(data)
	bitReverse(data)

	for size := 2; size <= n; size <<= 1 {
		half := size / 2
		angleStep := -2 * math.Pi / float64(size)

		if inverse {
			angleStep = -angleStep
		}

		for start := 0; start < n; start += size {
			for k := 0; k < half; k++ {
				angle := angleStep * float64(k)
				twiddle := complex(math.Cos(angle), math.Sin(angle))

				even := data[start+k]
				odd := data[start+k+half] * twiddle

				data[start+k] = even + odd
				data[start+k+half] = even - odd
			}
		}
	}
}

func bitReverse(data []complex128) {
	n := len(data)

	for i, j := 1, 0; i < n; i++ {
		bit := n >> 1

		for ; j&bit != 0; bit >>= 1 {
			j &^= bit
		}

		j |= bit

		if i < j {
			data[i], data[j] = data[j], data[i]
		}
	}
}

// nextPow2 returns the smallest power of two >= v.
func nextPow2(v int) int {
	p := 1
	for p < v {
		p <<= 1
	}

	return p
}

// autocorrelateFFT computes r[0..maxLag] for samples via the Wiener-
// Khinchin theorem: zero-pad to avoid circular wraparound, transform,
// take the power spectrum, and transform back.
func autocorrelateFFT(samples []float64, maxLag int) []float64 {
	n := len(samples)
	size := nextPow2(n + maxLag + 1)

	buf := make([]complex128, size)
	for i, x := range samples {
		buf[i] = complex(x, 0)
	}

	fftForward(buf)

	for i := range buf {
		buf[i] = buf[i] * complex(real(buf[i]), -imag(buf[i]))
	}

	fftInverse(buf)

	r := make([]float64, maxLag+1)
	for lag := 0; lag <= maxLag; lag++ {
		r[lag] = real(buf[lag])
	}

	return r
}
