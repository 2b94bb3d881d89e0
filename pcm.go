package sla

import "fmt"

// deinterleave splits little-endian packed PCM bytes into one int32 slice
// per channel. 20-bit samples are read from their 3-byte, left-aligned-in-24
// container and right-shifted back down, matching BitDepth.BytesPerSample's
// documented packing.
func deinterleave(pcm []byte, format PCMFormat) ([][]int32, error) {
	bps := format.BitDepth.BytesPerSample()
	channels := int(format.Channels)
	frame := bps * channels

	if frame == 0 || len(pcm)%frame != 0 {
		return nil, fmt.Errorf("pcm length %d not a multiple of frame size %d: %w", len(pcm), frame, ErrInvalidFormat)
	}

	n := len(pcm) / frame
	out := make([][]int32, channels)

	for ch := range out {
		out[ch] = make([]int32, n)
	}

	pos := 0

	for i := 0; i < n; i++ {
		for ch := 0; ch < channels; ch++ {
			out[ch][i] = readSample(pcm[pos:pos+bps], format.BitDepth)
			pos += bps
		}
	}

	return out, nil
}

// interleave is the inverse of deinterleave.
func interleave(channels [][]int32, format PCMFormat) []byte {
	bps := format.BitDepth.BytesPerSample()
	n := len(channels[0])
	out := make([]byte, n*bps*len(channels))
	pos := 0

	for i := 0; i < n; i++ {
		for ch := range channels {
			writeSample(out[pos:pos+bps], channels[ch][i], format.BitDepth)
			pos += bps
		}
	}

	return out
}

func readSample(b []byte, depth BitDepth) int32 {
	switch depth {
	case Depth8:
		return int32(int8(b[0])) //nolint:gosec // 8-bit sample is inherently signed-byte sized
	case Depth16:
		return int32(int16(uint16(b[0]) | uint16(b[1])<<8))
	case Depth24:
		return signExtend24(uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16)
	case Depth20:
		return signExtend24(uint32(b[0])|uint32(b[1])<<8|uint32(b[2])<<16) >> 4
	case Depth32:
		return int32(uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24) //nolint:gosec // bit pattern reinterpretation
	default:
		return 0
	}
}

func writeSample(b []byte, v int32, depth BitDepth) {
	switch depth {
	case Depth8:
		b[0] = byte(v) //nolint:gosec // truncation is intentional: v is an 8-bit sample value
	case Depth16:
		u := uint16(v) //nolint:gosec // truncation is intentional: v is a 16-bit sample value
		b[0], b[1] = byte(u), byte(u>>8)
	case Depth24:
		u := uint32(v) //nolint:gosec // truncation is intentional: v is a 24-bit sample value
		b[0], b[1], b[2] = byte(u), byte(u>>8), byte(u>>16)
	case Depth20:
		u := uint32(v) << 4 //nolint:gosec // truncation is intentional: v is a 20-bit sample value, left-aligned in 24
		b[0], b[1], b[2] = byte(u), byte(u>>8), byte(u>>16)
	case Depth32:
		u := uint32(v) //nolint:gosec // bit pattern reinterpretation
		b[0], b[1], b[2], b[3] = byte(u), byte(u>>8), byte(u>>16), byte(u>>24)
	}
}

func signExtend24(u uint32) int32 {
	if u&0x800000 != 0 {
		u |= 0xFF000000
	}

	return int32(u) //nolint:gosec // bit pattern reinterpretation after manual sign extension
}
