package sla_test

import (
	"math"
	"math/rand"
	"testing"

	"github.com/mycophonic/sla"
)

func sineInt32(n int, freq, sampleRate float64, amp int32) []int32 {
	out := make([]int32, n)
	for i := range out {
		out[i] = int32(float64(amp) * math.Sin(2*math.Pi*freq*float64(i)/sampleRate))
	}

	return out
}

func noiseInt32(n int, amp int32, seed int64) []int32 {
	r := rand.New(rand.NewSource(seed)) //nolint:gosec // deterministic test fixture, not security-sensitive
	out := make([]int32, n)

	for i := range out {
		out[i] = int32(r.Intn(int(2*amp+1))) - amp
	}

	return out
}

func nyquistInt32(n int, amp int32) []int32 {
	out := make([]int32, n)
	for i := range out {
		if i%2 == 0 {
			out[i] = amp
		} else {
			out[i] = -amp
		}
	}

	return out
}

func chirpInt32(n int, f0, f1, sampleRate float64, amp int32) []int32 {
	out := make([]int32, n)
	for i := range out {
		t := float64(i) / sampleRate
		freq := f0 + (f1-f0)*t/(float64(n)/sampleRate)
		out[i] = int32(float64(amp) * math.Sin(2*math.Pi*freq*t))
	}

	return out
}

func roundTripBlocks(t *testing.T, channels int, blocks [][][]int32, chanProc sla.ChannelProcessMethod) {
	t.Helper()

	cfg := sla.EncoderConfig{
		Format: sla.PCMFormat{
			SampleRate: 44100,
			BitDepth:   sla.Depth16,
			Channels:   uint(channels), //nolint:gosec // channels is a small positive test fixture count
		},
		MaxBlockSizeSamples: 4096,
		ChannelProc:         chanProc,
	}

	enc, err := sla.NewEncoder(cfg)
	if err != nil {
		t.Fatalf("NewEncoder: %v", err)
	}

	dec, err := sla.NewDecoder(sla.NewDecoderFromHeader(enc.Header(0)))
	if err != nil {
		t.Fatalf("NewDecoder: %v", err)
	}

	out := make([][]int32, channels)
	for i := range out {
		out[i] = make([]int32, cfg.MaxBlockSizeSamples)
	}

	for bi, block := range blocks {
		info, payload, err := enc.EncodeBlock(block)
		if err != nil {
			t.Fatalf("block %d: EncodeBlock: %v", bi, err)
		}

		if _, err := dec.DecodeBlock(info.NumSamples, payload, out); err != nil {
			t.Fatalf("block %d: DecodeBlock: %v", bi, err)
		}

		for ch := range block {
			for i, want := range block[ch] {
				if got := out[ch][i]; got != want {
					t.Fatalf("block %d channel %d sample %d = %d, want %d", bi, ch, i, got, want)
				}
			}
		}
	}
}

func TestRoundTripScenariosMono(t *testing.T) {
	const n = 4096

	scenarios := map[string][]int32{
		"silence":  make([]int32, n),
		"constant": constantInt32(n, 1234),
		"sine":     sineInt32(n, 440, 44100, 20000),
		"noise":    noiseInt32(n, 20000, 1),
		"nyquist":  nyquistInt32(n, 20000),
		"chirp":    chirpInt32(n, 20, 18000, 44100, 20000),
	}

	for name, samples := range scenarios {
		t.Run(name, func(t *testing.T) {
			roundTripBlocks(t, 1, [][][]int32{{samples}}, sla.ChannelProcessNone)
		})
	}
}

func TestRoundTripStereoMidSide(t *testing.T) {
	const n = 4096

	left := sineInt32(n, 440, 44100, 20000)
	right := sineInt32(n, 441, 44100, 19000)

	roundTripBlocks(t, 2, [][][]int32{{left, right}}, sla.ChannelProcessMidSide)
}

func TestRoundTripStereoIndependent(t *testing.T) {
	const n = 4096

	left := noiseInt32(n, 15000, 2)
	right := noiseInt32(n, 15000, 3)

	roundTripBlocks(t, 2, [][][]int32{{left, right}}, sla.ChannelProcessNone)
}

func TestRoundTripMultipleBlocksAreIndependent(t *testing.T) {
	const n = 2048

	blocks := [][][]int32{
		{make([]int32, n)},               // silence
		{sineInt32(n, 300, 44100, 20000)}, // tonal
		{noiseInt32(n, 20000, 4)},         // noisy, forces the cascade to adapt from scratch
		{make([]int32, n)},                // back to silence
	}

	roundTripBlocks(t, 1, blocks, sla.ChannelProcessNone)
}

func TestRoundTripAdversarialRawFallback(t *testing.T) {
	const n = 4096

	// Pure noise at full amplitude tends to expand under the predictor
	// cascade; this exercises the BlockDataRawPCM fallback path.
	samples := noiseInt32(n, math.MaxInt16, 5)

	roundTripBlocks(t, 1, [][][]int32{{samples}}, sla.ChannelProcessNone)
}

func TestHeaderRoundTrip(t *testing.T) {
	h := sla.HeaderInfo{
		Format: sla.PCMFormat{
			SampleRate: 48000,
			BitDepth:   sla.Depth24,
			Channels:   2,
		},
		NumSamples:           123456789,
		OffsetLshift:         3,
		MaxBlockSizeSamples:  8192,
		ChannelProcessMethod: sla.ChannelProcessMidSide,
		ParcorOrder:          16,
		LongTermOrder:        3,
		LMSOrder:             32,
	}

	buf := sla.EncodeHeader(h)
	if len(buf) != sla.HeaderSize {
		t.Fatalf("EncodeHeader length = %d, want %d", len(buf), sla.HeaderSize)
	}

	got, err := sla.DecodeHeader(buf)
	if err != nil {
		t.Fatalf("DecodeHeader: %v", err)
	}

	if got != h {
		t.Fatalf("DecodeHeader round trip = %+v, want %+v", got, h)
	}
}

func TestHeaderCRCTamperDetected(t *testing.T) {
	h := sla.HeaderInfo{
		Format: sla.PCMFormat{SampleRate: 44100, BitDepth: sla.Depth16, Channels: 1},
	}

	buf := sla.EncodeHeader(h)
	buf[10] ^= 0xFF

	if _, err := sla.DecodeHeader(buf); sla.Kind(err) != sla.ErrKindCRCMismatch {
		t.Fatalf("DecodeHeader after tamper: kind = %v, want ErrKindCRCMismatch", sla.Kind(err))
	}
}

func TestHeaderRejectsBadSignature(t *testing.T) {
	h := sla.HeaderInfo{Format: sla.PCMFormat{SampleRate: 44100, BitDepth: sla.Depth16, Channels: 1}}
	buf := sla.EncodeHeader(h)
	buf[0] = 'X'

	if _, err := sla.DecodeHeader(buf); sla.Kind(err) != sla.ErrKindInvalidFormat {
		t.Fatalf("DecodeHeader with bad signature: kind = %v, want ErrKindInvalidFormat", sla.Kind(err))
	}
}

func TestHeaderRejectsTruncated(t *testing.T) {
	h := sla.HeaderInfo{Format: sla.PCMFormat{SampleRate: 44100, BitDepth: sla.Depth16, Channels: 1}}
	buf := sla.EncodeHeader(h)

	if _, err := sla.DecodeHeader(buf[:sla.HeaderSize-1]); sla.Kind(err) != sla.ErrKindTruncated {
		t.Fatalf("DecodeHeader truncated: kind = %v, want ErrKindTruncated", sla.Kind(err))
	}
}

func TestSignatureMagicBytes(t *testing.T) {
	if sla.Signature != "SL*\x01" {
		t.Fatalf("Signature = %q, want %q", sla.Signature, "SL*\x01")
	}

	h := sla.HeaderInfo{Format: sla.PCMFormat{SampleRate: 44100, BitDepth: sla.Depth16, Channels: 1}}
	buf := sla.EncodeHeader(h)

	want := []byte{'S', 'L', '*', 0x01}
	if len(buf) < len(want) || string(buf[:len(want)]) != string(want) {
		t.Fatalf("header leading bytes = %v, want %v", buf[:len(want)], want)
	}
}

func TestRoundTripDepth8(t *testing.T) {
	const n = 4096

	samples := make([]int32, n)
	for i := range samples {
		samples[i] = int32(int8(64 * math.Sin(2*math.Pi*440*float64(i)/44100)))
	}

	cfg := sla.EncoderConfig{
		Format: sla.PCMFormat{
			SampleRate: 44100,
			BitDepth:   sla.Depth8,
			Channels:   1,
		},
		MaxBlockSizeSamples: n,
	}

	enc, err := sla.NewEncoder(cfg)
	if err != nil {
		t.Fatalf("NewEncoder: %v", err)
	}

	dec, err := sla.NewDecoder(sla.NewDecoderFromHeader(enc.Header(0)))
	if err != nil {
		t.Fatalf("NewDecoder: %v", err)
	}

	info, payload, err := enc.EncodeBlock([][]int32{samples})
	if err != nil {
		t.Fatalf("EncodeBlock: %v", err)
	}

	out := [][]int32{make([]int32, n)}
	if _, err := dec.DecodeBlock(info.NumSamples, payload, out); err != nil {
		t.Fatalf("DecodeBlock: %v", err)
	}

	for i, want := range samples {
		if got := out[0][i]; got != want {
			t.Fatalf("sample %d = %d, want %d", i, got, want)
		}
	}
}

func constantInt32(n int, v int32) []int32 {
	out := make([]int32, n)
	for i := range out {
		out[i] = v
	}

	return out
}
