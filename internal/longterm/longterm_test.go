package longterm

import (
	"math"
	"testing"
)

func sineSamples(n int, period float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.Sin(2 * math.Pi * float64(i) / period)
	}

	return out
}

func TestAnalyseFindsPeriodicLag(t *testing.T) {
	samples := sineSamples(4000, 100)

	res := Analyse(samples, 3)
	if res.Lag == 0 {
		t.Fatal("Analyse returned Lag=0 for a clearly periodic signal")
	}

	if res.Lag < 90 || res.Lag > 110 {
		t.Fatalf("Analyse lag = %d, want near 100", res.Lag)
	}
}

func TestAnalyseSilence(t *testing.T) {
	samples := make([]float64, 4000)

	res := Analyse(samples, 3)
	if res.Lag != 0 {
		t.Fatalf("Analyse(silence).Lag = %d, want 0", res.Lag)
	}
}

func TestFilterRoundTrip(t *testing.T) {
	lag := 64
	taps := []int32{2000, 20000, 2000}

	n := 2000
	input := make([]int32, n)

	for i := range input {
		input[i] = int32(1000 * math.Sin(2*math.Pi*float64(i)/float64(lag)))
	}

	encoded := make([]int32, n)
	copy(encoded, input)

	enc := NewFilter(lag, taps)
	enc.Predict(encoded)

	decoded := make([]int32, n)
	copy(decoded, encoded)

	dec := NewFilter(lag, taps)
	dec.Synthesize(decoded)

	for i := range input {
		if decoded[i] != input[i] {
			t.Fatalf("sample %d: got %d, want %d", i, decoded[i], input[i])
		}
	}
}

func TestFilterDisabled(t *testing.T) {
	f := NewFilter(0, []int32{0, 0, 0})

	samples := []int32{1, 2, 3, 4, 5}
	cp := append([]int32(nil), samples...)

	f.Predict(samples)

	for i := range samples {
		if samples[i] != cp[i] {
			t.Fatalf("disabled filter modified sample %d", i)
		}
	}
}
