package rice

import "github.com/mycophonic/sla/internal/bitio"

// LowThresholdParameter is CODER_LOW_THRESHOULD_PARAMETER: when a block's
// initial parameter (averaged across channels) falls below this, the
// recursive/adaptive machinery is skipped entirely in favour of a single
// fixed Golomb code — cheaper to decode and no worse on already-quiet
// material, where the EMA would spend most of the block converging.
const LowThresholdParameter = 4

// FixedM derives the constant Golomb parameter used by the low-parameter
// fast path from a block's stored initial parameter.
func FixedM(initial uint32) uint32 {
	mean := initial >> 1
	if mean < 1 {
		mean = 1
	}

	return roundUpPow2(mean)
}

// EncodeFixed writes value with the constant-parameter Golomb code, no
// adaptation.
func EncodeFixed(w *bitio.Writer, value, m uint32) error {
	return GolombEncode(w, value, m)
}

// DecodeFixed is the inverse of EncodeFixed.
func DecodeFixed(r *bitio.Reader, m uint32) (uint32, error) {
	return GolombDecode(r, m)
}
