package partition

import (
	"context"
	"testing"
)

func TestOptimiseCoversWholeRange(t *testing.T) {
	total := 20000

	cost := func(lo, hi int) float64 {
		return float64(hi - lo) // uniform cost: any valid partition is optimal
	}

	plan := Optimise(total, 1024, 8192, cost)

	if plan.Bounds[0] != 0 {
		t.Fatalf("first bound = %d, want 0", plan.Bounds[0])
	}

	if plan.Bounds[len(plan.Bounds)-1] != total {
		t.Fatalf("last bound = %d, want %d", plan.Bounds[len(plan.Bounds)-1], total)
	}

	for i := 1; i < len(plan.Bounds); i++ {
		length := plan.Bounds[i] - plan.Bounds[i-1]
		if length < 1024 || length > 8192 {
			t.Fatalf("block %d has invalid length %d", i, length)
		}
	}
}

func TestOptimiseShortInputFallsBack(t *testing.T) {
	cost := func(lo, hi int) float64 { return float64(hi - lo) }

	plan := Optimise(100, 1024, 8192, cost)

	if len(plan.Bounds) != 2 || plan.Bounds[0] != 0 || plan.Bounds[1] != 100 {
		t.Fatalf("unexpected plan for short input: %+v", plan)
	}
}

func TestOptimiseEmpty(t *testing.T) {
	plan := Optimise(0, 1024, 8192, func(lo, hi int) float64 { return 0 })
	if len(plan.Bounds) != 1 || plan.Bounds[0] != 0 {
		t.Fatalf("unexpected plan for empty input: %+v", plan)
	}
}

func TestEstimatePerChannel(t *testing.T) {
	channels := [][]float64{
		make([]float64, 4000),
		make([]float64, 4000),
	}

	plans, err := EstimatePerChannel(context.Background(), channels, func(samples []float64) Plan {
		return Optimise(len(samples), 1024, 8192, func(lo, hi int) float64 { return float64(hi - lo) })
	})
	if err != nil {
		t.Fatal(err)
	}

	if len(plans) != 2 {
		t.Fatalf("got %d plans, want 2", len(plans))
	}
}
