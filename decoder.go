package sla

import (
	"fmt"

	"github.com/mycophonic/sla/internal/bitio"
	"github.com/mycophonic/sla/internal/lms"
	"github.com/mycophonic/sla/internal/longterm"
	"github.com/mycophonic/sla/internal/parcor"
	"github.com/mycophonic/sla/internal/rice"
	"github.com/mycophonic/sla/internal/slamath"
)

// DecoderConfig parameterises a new Decoder. Its fields mirror the
// encode-side HeaderInfo the stream was produced with; NewDecoderFromHeader
// builds one directly from a decoded file header.
type DecoderConfig struct {
	Format              PCMFormat
	MaxBlockSizeSamples int
	ParcorOrder         int
	LongTermOrder       int // 0 means long-term prediction was disabled
	LMSOrder            int
	ChannelProc         ChannelProcessMethod
	OffsetLshift        int
}

// NewDecoderFromHeader derives a DecoderConfig from a decoded HeaderInfo.
func NewDecoderFromHeader(h HeaderInfo) DecoderConfig {
	return DecoderConfig{
		Format:              h.Format,
		MaxBlockSizeSamples: int(h.MaxBlockSizeSamples),
		ParcorOrder:         int(h.ParcorOrder),
		LongTermOrder:       int(h.LongTermOrder),
		LMSOrder:            int(h.LMSOrder),
		ChannelProc:         h.ChannelProcessMethod,
		OffsetLshift:        int(h.OffsetLshift),
	}
}

// Decoder decodes the blocks of one audio stream, the exact inverse of
// Encoder. A Decoder is not safe for concurrent use; run one per stream.
type Decoder struct {
	cfg    DecoderConfig
	states []*channelState
}

// NewDecoder returns a Decoder configured for cfg.
func NewDecoder(cfg DecoderConfig) (*Decoder, error) {
	if cfg.Format.Channels == 0 || cfg.Format.Channels > MaxChannels {
		return nil, fmt.Errorf("%d channels: %w", cfg.Format.Channels, ErrUnsupportedParameter)
	}

	if cfg.MaxBlockSizeSamples <= 0 {
		cfg.MaxBlockSizeSamples = DefaultMaxBlockSizeSamples
	}

	if cfg.ParcorOrder <= 0 {
		cfg.ParcorOrder = DefaultParcorOrder
	}

	if cfg.LMSOrder <= 0 {
		cfg.LMSOrder = DefaultLMSOrder
	}

	cfg.LMSOrder = int(slamath.RoundUpToPowerOfTwo(uint32(cfg.LMSOrder))) //nolint:gosec // order is a small positive tap count
	if cfg.LMSOrder < lms.MinOrder {
		cfg.LMSOrder = lms.MinOrder
	}

	states := make([]*channelState, cfg.Format.Channels)
	for i := range states {
		states[i] = newChannelState(cfg.MaxBlockSizeSamples, cfg.ParcorOrder, cfg.LMSOrder)
	}

	return &Decoder{cfg: cfg, states: states}, nil
}

// bitPerSample mirrors Encoder.bitPerSample: the working bit width once
// offset_lshift has been stripped.
func (d *Decoder) bitPerSample() int {
	return int(d.cfg.Format.BitDepth) - d.cfg.OffsetLshift
}

// DecodeBlock reconstructs one block's channels from a raw per-block
// payload (as produced by Encoder.EncodeBlock), writing the result into
// out[i][:numSamples]. out must have one slice per channel, each with
// capacity at least numSamples. It parses the block's own side info from
// payload and returns it alongside any error, since side info and
// entropy-coded residuals share one continuous bit stream that only the
// decoder (not the caller) knows how to split.
func (d *Decoder) DecodeBlock(numSamples int, payload []byte, out [][]int32) (BlockInfo, error) {
	for i := range out {
		out[i] = out[i][:numSamples]
	}

	r := bitio.NewReader(payload)

	info, err := DecodeBlockSideInfo(r, numSamples, d.cfg.ChannelProc, int(d.cfg.Format.Channels), d.cfg.ParcorOrder, d.cfg.LongTermOrder, d.bitPerSample())
	if err != nil {
		return BlockInfo{}, err
	}

	r.Flush()

	switch info.DataType {
	case BlockDataSilence:
		for _, ch := range out {
			for i := range ch {
				ch[i] = 0
			}
		}

	case BlockDataRawPCM:
		if err := d.decodeRaw(r, info.ChannelProc, out); err != nil {
			return BlockInfo{}, err
		}

	default:
		for _, s := range d.states {
			s.reset()
		}

		if err := d.entropyDecodeInterleaved(r, info); err != nil {
			return BlockInfo{}, fmt.Errorf("%w: %w", ErrTruncated, err)
		}

		for ch, chInfo := range info.ChannelInfos {
			d.synthesizeChannel(d.states[ch], chInfo, out[ch][:numSamples])
		}
	}

	if info.ChannelProc == ChannelProcessMidSide {
		mid, side := out[0], out[1]
		for i := 0; i < numSamples; i++ {
			mid[i], side[i] = slamath.MSDecode(mid[i], side[i])
		}
	}

	d.applyOffsetLshift(out)

	return info, nil
}

func (d *Decoder) decodeRaw(r *bitio.Reader, channelProc ChannelProcessMethod, out [][]int32) error {
	n := len(out[0])
	bps := d.bitPerSample()

	for i := 0; i < n; i++ {
		for ch := range out {
			bits := uint(bps) //nolint:gosec // bitPerSample is derived from a small BitDepth constant
			if ch == 1 && channelProc == ChannelProcessMidSide {
				bits++
			}

			v, err := getSigned(r, bits)
			if err != nil {
				return fmt.Errorf("%w: %w", ErrTruncated, err)
			}

			out[ch][i] = v
		}
	}

	return nil
}

// entropyDecodeInterleaved decodes every channel's residual for sample i
// before moving to sample i+1, the exact inverse of
// Encoder.entropyEncodeInterleaved, filling every channel's unsigned
// scratch buffer. Whether the fixed-Golomb fast path is in effect is
// derived from the transmitted initial parameters exactly as the encoder
// derived it, since the decision bit itself is never written to the wire.
func (d *Decoder) entropyDecodeInterleaved(r *bitio.Reader, info BlockInfo) error {
	n := info.NumSamples

	initials := make([]uint32, len(info.ChannelInfos))
	for ch, chInfo := range info.ChannelInfos {
		initials[ch] = chInfo.InitialRiceParameter
	}

	useFixed := averageBelowThreshold(initials)

	ms := make([]uint32, len(info.ChannelInfos))

	for ch, chInfo := range info.ChannelInfos {
		if useFixed {
			ms[ch] = rice.FixedM(chInfo.InitialRiceParameter)
		} else {
			d.states[ch].coder.Reset(chInfo.InitialRiceParameter)
		}
	}

	for i := 0; i < n; i++ {
		for ch := range info.ChannelInfos {
			s := d.states[ch]

			var (
				v   uint32
				err error
			)

			if useFixed {
				v, err = rice.DecodeFixed(r, ms[ch])
			} else {
				v, err = s.coder.DecodeValue(r)
			}

			if err != nil {
				return err
			}

			s.unsigned[i] = v
		}
	}

	return nil
}

// synthesizeChannel unfolds s.unsigned back into signed residuals and runs
// the inverse predictor cascade over them in the exact reverse order
// Encoder.encodeChannelCascade applied it: LMS, long-term, PARCOR lattice,
// then de-emphasis. The result is written into samples.
func (d *Decoder) synthesizeChannel(s *channelState, info BlockChannelInfo, samples []int32) {
	n := len(samples)

	for i := 0; i < n; i++ {
		samples[i] = slamath.UintToSint(s.unsigned[i])
	}

	for i, v := range samples {
		samples[i] = s.lmsFilter.Unprocess(v)
	}

	if info.LongTermLag != 0 {
		longterm.NewFilter(info.LongTermLag, info.LongTermTaps).Synthesize(samples)
	}

	coef := parcor.Reconstruct(info.ParcorCoef, d.cfg.ParcorOrder, int(info.ParcorCoefShift))
	s.lat.Synthesize(samples, coef)

	s.emphI.De(samples)
}

func (d *Decoder) applyOffsetLshift(out [][]int32) {
	if d.cfg.OffsetLshift == 0 {
		return
	}

	shift := uint(d.cfg.OffsetLshift) //nolint:gosec // validated < bit depth by DecodeHeader
	for _, ch := range out {
		for i, v := range ch {
			ch[i] = v << shift
		}
	}
}
