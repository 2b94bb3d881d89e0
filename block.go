package sla

import (
	"fmt"

	"github.com/mycophonic/sla/internal/bitio"
	"github.com/mycophonic/sla/internal/parcor"
)

// Block data types (§6.2): how a block's channel payloads were produced,
// stored once per block (not per channel) so the decoder knows which
// stages to reverse.
type BlockDataType uint8

// Block data types, matching §6.2's example assignment.
const (
	// BlockDataCompressed is the normal path: full predictor cascade plus
	// entropy coding.
	BlockDataCompressed BlockDataType = iota
	// BlockDataRawPCM means the cascade/entropy coder expanded the block
	// (this happens on adversarial or already-noise-like input, or when
	// the PARCOR code-length estimate says it isn't worth trying), so the
	// post-channel-processing samples are stored verbatim instead.
	BlockDataRawPCM
	// BlockDataSilence means every sample in the block is zero; no
	// payload follows the block data type marker at all.
	BlockDataSilence
)

// pitchFieldBits, pitchBias: the pitch field is packed in 10 bits storing
// (lag-1), since a lag of exactly longterm.MaxLag (1024) would not
// otherwise fit.
const (
	pitchFieldBits = 10
	pitchBias      = 1
)

// BlockChannelInfo carries the per-channel side information a Compressed
// block stores ahead of its entropy-coded payload: the PARCOR
// coefficients, optional long-term predictor parameters, and the initial
// Rice parameter the entropy coder seeds from.
type BlockChannelInfo struct {
	ParcorCoefShift int32
	ParcorCoef      []int32 // length ParcorOrder+1, index 0 unused

	LongTermLag  int
	LongTermTaps []int32 // quantised Q1.15 taps; only valid if LongTermLag != 0

	InitialRiceParameter uint32
	UseFixedRice         bool // low-parameter fast path (§4.8)
}

// BlockInfo describes one block's worth of multi-channel audio: its
// length in samples, the channel process method in effect for this block
// (the encoder reports ChannelProcessNone for silent blocks and the
// stream's method otherwise; the decoder always reports the file header's
// method, since that field lives in the file header, not the block),
// the wire-level data type, and each channel's side information.
type BlockInfo struct {
	NumSamples  int
	ChannelProc ChannelProcessMethod
	DataType    BlockDataType

	ChannelInfos []BlockChannelInfo
}

func mask64(bits uint) uint64 {
	if bits >= 64 {
		return ^uint64(0)
	}

	return (uint64(1) << bits) - 1
}

func signExtend(v uint64, bits uint) int32 {
	if bits < 64 && v&(1<<(bits-1)) != 0 {
		v -= uint64(1) << bits
	}

	return int32(v) //nolint:gosec // bit widths here never exceed 16
}

func putSigned(w *bitio.Writer, v int32, bits uint) error {
	return w.PutBits(uint64(uint32(v))&mask64(bits), bits) //nolint:gosec // two's complement truncation is intentional
}

func getSigned(r *bitio.Reader, bits uint) (int32, error) {
	v, err := r.GetBits(bits)
	if err != nil {
		return 0, err
	}

	return signExtend(v, bits), nil
}

// writeChannelSideInfo packs one Compressed channel's rshift, PARCOR
// coefficients (at their documented per-order bit widths), optional pitch
// lag and long-term taps, and initial Rice parameter (§6.2).
func writeChannelSideInfo(w *bitio.Writer, ch BlockChannelInfo, parcorOrder, bitPerSample int) error {
	if err := w.PutBits(uint64(ch.ParcorCoefShift), 4); err != nil { //nolint:gosec // rshift bounded by parcor.MaxRShift (0..15)
		return err
	}

	for i := 1; i <= parcorOrder; i++ {
		bits := uint(parcor.Bits(i))
		if err := putSigned(w, ch.ParcorCoef[i], bits); err != nil {
			return err
		}
	}

	if ch.LongTermLag != 0 {
		if err := w.PutBits(1, 1); err != nil {
			return err
		}

		if err := w.PutBits(uint64(ch.LongTermLag-pitchBias), pitchFieldBits); err != nil { //nolint:gosec // lag bounded by longterm.MaxLag
			return err
		}

		for _, tap := range ch.LongTermTaps {
			if err := putSigned(w, tap, 16); err != nil {
				return err
			}
		}
	} else if err := w.PutBits(0, 1); err != nil {
		return err
	}

	initial := uint64(ch.InitialRiceParameter)
	if max := mask64(uint(bitPerSample)); initial > max {
		initial = max
	}

	return w.PutBits(initial, uint(bitPerSample))
}

func readChannelSideInfo(r *bitio.Reader, parcorOrder, longTermOrder, bitPerSample int) (BlockChannelInfo, error) {
	var ch BlockChannelInfo

	rshift, err := r.GetBits(4)
	if err != nil {
		return ch, err
	}

	ch.ParcorCoefShift = int32(rshift) //nolint:gosec // 4-bit field

	ch.ParcorCoef = make([]int32, parcorOrder+1)

	for i := 1; i <= parcorOrder; i++ {
		bits := uint(parcor.Bits(i))

		v, err := getSigned(r, bits)
		if err != nil {
			return ch, err
		}

		ch.ParcorCoef[i] = v
	}

	pitchFlag, err := r.GetBits(1)
	if err != nil {
		return ch, err
	}

	if pitchFlag != 0 {
		lag, err := r.GetBits(pitchFieldBits)
		if err != nil {
			return ch, err
		}

		ch.LongTermLag = int(lag) + pitchBias

		ch.LongTermTaps = make([]int32, longTermOrder)
		for i := range ch.LongTermTaps {
			v, err := getSigned(r, 16)
			if err != nil {
				return ch, err
			}

			ch.LongTermTaps[i] = v
		}
	}

	initial, err := r.GetBits(uint(bitPerSample))
	if err != nil {
		return ch, err
	}

	ch.InitialRiceParameter = uint32(initial) //nolint:gosec // bitPerSample <= 32

	return ch, nil
}

// EncodeBlockSideInfo packs info's block-wide data type marker and, for
// Compressed blocks, every channel's side information, into w. It does
// not byte-align or write residuals; the caller does that afterward.
func EncodeBlockSideInfo(w *bitio.Writer, info BlockInfo, parcorOrder, bitPerSample int) error {
	if err := w.PutBits(uint64(info.DataType), 2); err != nil {
		return err
	}

	if info.DataType != BlockDataCompressed {
		return nil
	}

	for _, ch := range info.ChannelInfos {
		if err := writeChannelSideInfo(w, ch, parcorOrder, bitPerSample); err != nil {
			return err
		}
	}

	return nil
}

// DecodeBlockSideInfo parses the block-wide data type marker and, for
// Compressed blocks, every channel's side information, from r.
// numSamples comes from the block's byte-aligned prefix and channelProc
// from the file header (both supplied by the caller); they are attached to
// the returned BlockInfo verbatim.
func DecodeBlockSideInfo(r *bitio.Reader, numSamples int, channelProc ChannelProcessMethod, numChannels, parcorOrder, longTermOrder, bitPerSample int) (BlockInfo, error) {
	dataType, err := r.GetBits(2)
	if err != nil {
		return BlockInfo{}, fmt.Errorf("%w: %w", ErrTruncated, err)
	}

	info := BlockInfo{
		NumSamples:  numSamples,
		ChannelProc: channelProc,
		DataType:    BlockDataType(dataType), //nolint:gosec // 2-bit field
	}

	if info.DataType != BlockDataCompressed {
		return info, nil
	}

	info.ChannelInfos = make([]BlockChannelInfo, numChannels)

	for ch := 0; ch < numChannels; ch++ {
		chInfo, err := readChannelSideInfo(r, parcorOrder, longTermOrder, bitPerSample)
		if err != nil {
			return BlockInfo{}, fmt.Errorf("channel %d: %w: %w", ch, ErrTruncated, err)
		}

		info.ChannelInfos[ch] = chInfo
	}

	return info, nil
}
