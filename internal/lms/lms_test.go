package lms

import (
	"math"
	"math/rand"
	"testing"
)

func TestFilterRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(1))

	n := 2000
	input := make([]int32, n)

	for i := range input {
		input[i] = int32(5000 * math.Sin(2*math.Pi*float64(i)/37) + float64(rng.Intn(200)-100))
	}

	enc := NewFilter(16, 16)

	residual := make([]int32, n)
	for i, x := range input {
		residual[i] = enc.Process(x)
	}

	dec := NewFilter(16, 16)

	for i, r := range residual {
		got := dec.Unprocess(r)
		if got != input[i] {
			t.Fatalf("sample %d: got %d, want %d", i, got, input[i])
		}
	}
}

func TestFilterRoundTripTwoTones(t *testing.T) {
	rng := rand.New(rand.NewSource(2))

	n := 3000
	input := make([]int32, n)

	for i := range input {
		input[i] = int32(8000*math.Sin(2*math.Pi*float64(i)/53) +
			3000*math.Sin(2*math.Pi*float64(i)/11) +
			float64(rng.Intn(50)-25))
	}

	enc := NewFilter(32, 8)
	encoded := make([]int32, n)

	for i, x := range input {
		encoded[i] = enc.Process(x)
	}

	dec := NewFilter(32, 8)
	decoded := make([]int32, n)

	for i, e := range encoded {
		decoded[i] = dec.Unprocess(e)
	}

	for i := range input {
		if decoded[i] != input[i] {
			t.Fatalf("sample %d: got %d, want %d", i, decoded[i], input[i])
		}
	}
}

func TestFilterConvergesOnTone(t *testing.T) {
	n := 5000
	input := make([]int32, n)

	for i := range input {
		input[i] = int32(10000 * math.Sin(2*math.Pi*float64(i)/23))
	}

	enc := NewFilter(32, 8)
	encoded := make([]int32, n)

	for i, x := range input {
		encoded[i] = enc.Process(x)
	}

	var earlySum, lateSum int64

	for i := 0; i < 200; i++ {
		earlySum += int64(abs32(encoded[i]))
	}

	for i := n - 200; i < n; i++ {
		lateSum += int64(abs32(encoded[i]))
	}

	if lateSum >= earlySum {
		t.Fatalf("residual magnitude did not shrink: early=%d late=%d", earlySum, lateSum)
	}
}

func abs32(v int32) int32 {
	if v < 0 {
		return -v
	}

	return v
}
