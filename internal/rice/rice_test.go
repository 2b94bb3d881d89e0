package rice

import (
	"testing"

	"github.com/mycophonic/sla/internal/bitio"
)

func TestGammaRoundTrip(t *testing.T) {
	values := []uint32{0, 1, 2, 3, 4, 7, 8, 15, 16, 255, 256, 65535, 1 << 20}

	buf := make([]byte, 4096)
	w := bitio.NewWriter(buf)

	for _, v := range values {
		if err := GammaEncode(w, v); err != nil {
			t.Fatalf("GammaEncode(%d): %v", v, err)
		}
	}

	if err := w.Flush(); err != nil {
		t.Fatal(err)
	}

	r := bitio.NewReader(w.Bytes())

	for _, want := range values {
		got, err := GammaDecode(r)
		if err != nil {
			t.Fatalf("GammaDecode: %v", err)
		}

		if got != want {
			t.Fatalf("GammaDecode = %d, want %d", got, want)
		}
	}
}

func TestGolombRoundTrip(t *testing.T) {
	ms := []uint32{1, 2, 3, 4, 5, 7, 8, 16, 100}
	values := []uint32{0, 1, 2, 3, 10, 50, 99, 1000}

	for _, m := range ms {
		buf := make([]byte, 4096)
		w := bitio.NewWriter(buf)

		for _, v := range values {
			if err := GolombEncode(w, v, m); err != nil {
				t.Fatalf("m=%d GolombEncode(%d): %v", m, v, err)
			}
		}

		if err := w.Flush(); err != nil {
			t.Fatal(err)
		}

		r := bitio.NewReader(w.Bytes())

		for _, want := range values {
			got, err := GolombDecode(r, m)
			if err != nil {
				t.Fatalf("m=%d GolombDecode: %v", m, err)
			}

			if got != want {
				t.Fatalf("m=%d GolombDecode = %d, want %d", m, got, want)
			}
		}
	}
}

func TestCoderRoundTripSmallValues(t *testing.T) {
	values := []uint32{0, 0, 1, 0, 2, 1, 0, 3, 1, 0, 0, 2}

	buf := make([]byte, 4096)
	w := bitio.NewWriter(buf)
	enc := NewCoder(1)

	for _, v := range values {
		if err := enc.EncodeValue(w, v); err != nil {
			t.Fatalf("EncodeValue(%d): %v", v, err)
		}
	}

	if err := w.Flush(); err != nil {
		t.Fatal(err)
	}

	r := bitio.NewReader(w.Bytes())
	dec := NewCoder(1)

	for i, want := range values {
		got, err := dec.DecodeValue(r)
		if err != nil {
			t.Fatalf("DecodeValue[%d]: %v", i, err)
		}

		if got != want {
			t.Fatalf("DecodeValue[%d] = %d, want %d", i, got, want)
		}
	}
}

func TestCoderRoundTripWithOutliers(t *testing.T) {
	values := []uint32{5, 6, 4, 5, 100000, 5, 6, 0, 1, 2, 3000000, 4}

	buf := make([]byte, 8192)
	w := bitio.NewWriter(buf)
	enc := NewCoder(5)

	for _, v := range values {
		if err := enc.EncodeValue(w, v); err != nil {
			t.Fatalf("EncodeValue(%d): %v", v, err)
		}
	}

	if err := w.Flush(); err != nil {
		t.Fatal(err)
	}

	r := bitio.NewReader(w.Bytes())
	dec := NewCoder(5)

	for i, want := range values {
		got, err := dec.DecodeValue(r)
		if err != nil {
			t.Fatalf("DecodeValue[%d]: %v", i, err)
		}

		if got != want {
			t.Fatalf("DecodeValue[%d] = %d, want %d", i, got, want)
		}
	}
}

func TestFixedRoundTrip(t *testing.T) {
	m := FixedM(3)
	values := []uint32{0, 1, 2, 3, 4, 10, 50}

	buf := make([]byte, 4096)
	w := bitio.NewWriter(buf)

	for _, v := range values {
		if err := EncodeFixed(w, v, m); err != nil {
			t.Fatal(err)
		}
	}

	if err := w.Flush(); err != nil {
		t.Fatal(err)
	}

	r := bitio.NewReader(w.Bytes())

	for _, want := range values {
		got, err := DecodeFixed(r, m)
		if err != nil {
			t.Fatal(err)
		}

		if got != want {
			t.Fatalf("DecodeFixed = %d, want %d", got, want)
		}
	}
}

func TestInitialParameter(t *testing.T) {
	if got := InitialParameter(nil); got != 1 {
		t.Fatalf("InitialParameter(nil) = %d, want 1", got)
	}

	got := InitialParameter([]uint32{0, 0, 0, 0})
	if got != 1 {
		t.Fatalf("InitialParameter(all-zero) = %d, want 1", got)
	}

	got = InitialParameter([]uint32{2, 4, 6, 8})
	if got != 5 {
		t.Fatalf("InitialParameter = %d, want 5", got)
	}
}
