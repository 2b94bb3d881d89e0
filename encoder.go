package sla

import (
	"fmt"

	"github.com/mycophonic/sla/internal/bitio"
	"github.com/mycophonic/sla/internal/emphasis"
	"github.com/mycophonic/sla/internal/lms"
	"github.com/mycophonic/sla/internal/longterm"
	"github.com/mycophonic/sla/internal/parcor"
	"github.com/mycophonic/sla/internal/rice"
	"github.com/mycophonic/sla/internal/slamath"
	"github.com/mycophonic/sla/internal/window"
)

// EncoderConfig parameterises a new Encoder. Every field has a usable
// zero-value-adjacent default applied by NewEncoder, mirroring the
// teacher's PCMFormat-driven encode entry points.
type EncoderConfig struct {
	Format PCMFormat

	// MaxBlockSizeSamples bounds every block this Encoder emits; it also
	// sizes every preallocated scratch buffer.
	MaxBlockSizeSamples int

	ParcorOrder int

	LongTermOff   bool // set true to disable the long-term predictor stage
	LongTermOrder int  // tap count; forced odd by setDefaults

	LMSOrder int // joint adaptive filter tap count; forced to a power of two

	WindowFunction window.Type

	ChannelProc ChannelProcessMethod

	// OffsetLshift is the number of trailing zero bits every sample in the
	// stream shares, stripped before the predictor cascade runs and
	// restored on decode (§4.2). Encode callers normally leave this at 0
	// and let Encode (in stream.go) compute it for the whole stream; it is
	// exposed here so EncodeBlock's block-level bit-width accounting stays
	// in one place.
	OffsetLshift int
}

func (c *EncoderConfig) setDefaults() {
	if c.MaxBlockSizeSamples <= 0 {
		c.MaxBlockSizeSamples = DefaultMaxBlockSizeSamples
	}

	if c.ParcorOrder <= 0 {
		c.ParcorOrder = DefaultParcorOrder
	}

	if c.LongTermOrder <= 0 {
		c.LongTermOrder = DefaultLongTermOrder
	}

	if c.LongTermOrder%2 == 0 {
		c.LongTermOrder++
	}

	if c.LMSOrder <= 0 {
		c.LMSOrder = DefaultLMSOrder
	}

	c.LMSOrder = int(slamath.RoundUpToPowerOfTwo(uint32(c.LMSOrder))) //nolint:gosec // order is a small positive tap count
	if c.LMSOrder < lms.MinOrder {
		c.LMSOrder = lms.MinOrder
	}

	if c.WindowFunction == window.Rect {
		c.WindowFunction = DefaultWindowFunction
	}

	if c.OffsetLshift < 0 {
		c.OffsetLshift = 0
	}
}

// longTermOrder returns the tap count actually in effect: 0 if the
// long-term stage is disabled, else the configured odd order.
func (c *EncoderConfig) longTermOrder() int {
	if c.LongTermOff {
		return 0
	}

	return c.LongTermOrder
}

// channelState is every piece of reusable, preallocated per-channel
// scratch state an Encoder or Decoder needs. Buffers are sized once at
// construction to MaxBlockSizeSamples and reused (via reset) for every
// block, so steady-state block processing performs no heap allocation
// except in longterm.Filter, whose history ring is necessarily sized by
// that block's chosen lag (documented in DESIGN.md).
type channelState struct {
	work       []int32   // the channel's samples, mutated in place stage by stage
	rawScratch []int32   // pristine post-channel-process copy, for the raw fallback
	asFloat    []float64 // scratch float64 view used only for analysis
	windowed   []float64 // windowed copy of asFloat, used only for autocorrelation
	unsigned   []uint32  // residual magnitudes, folded for entropy coding

	emphD     *emphasis.Double
	emphI     *emphasis.Int32
	lat       *parcor.Lattice
	lmsFilter *lms.Filter
	coder     *rice.Coder
}

func newChannelState(maxBlock, parcorOrder, lmsOrder int) *channelState {
	return &channelState{
		work:       make([]int32, maxBlock),
		rawScratch: make([]int32, maxBlock),
		asFloat:    make([]float64, maxBlock),
		windowed:   make([]float64, maxBlock),
		unsigned:   make([]uint32, maxBlock),
		emphD:      &emphasis.Double{},
		emphI:      &emphasis.Int32{},
		lat:        parcor.NewLattice(parcorOrder),
		lmsFilter:  lms.NewFilter(lmsOrder, lmsOrder),
		coder:      rice.NewCoder(1),
	}
}

func (s *channelState) reset() {
	s.emphD.Reset()
	s.emphI.Reset()
	s.lat.Reset()
	s.lmsFilter.Reset()
}

// Encoder encodes one audio stream's worth of blocks. An Encoder is not
// safe for concurrent use; run one per stream.
type Encoder struct {
	cfg     EncoderConfig
	states  []*channelState // one per logical (post channel-process) channel
	payload []byte          // scratch buffer sized for the worst case (raw PCM)
	info    BlockInfo
}

// NewEncoder returns an Encoder configured for cfg.
func NewEncoder(cfg EncoderConfig) (*Encoder, error) {
	cfg.setDefaults()

	if cfg.Format.Channels == 0 || cfg.Format.Channels > MaxChannels {
		return nil, fmt.Errorf("%d channels: %w", cfg.Format.Channels, ErrUnsupportedParameter)
	}

	if cfg.ChannelProc == ChannelProcessMidSide && cfg.Format.Channels != 2 {
		cfg.ChannelProc = ChannelProcessNone
	}

	if bitDepth := int(cfg.Format.BitDepth); cfg.OffsetLshift >= bitDepth {
		cfg.OffsetLshift = bitDepth - 1
	}

	states := make([]*channelState, cfg.Format.Channels)
	for i := range states {
		states[i] = newChannelState(cfg.MaxBlockSizeSamples, cfg.ParcorOrder, cfg.LMSOrder)
	}

	maxPayload := cfg.MaxBlockSizeSamples*(int(cfg.Format.Channels)*4+1) + BlockHeaderSize

	return &Encoder{
		cfg:     cfg,
		states:  states,
		payload: make([]byte, maxPayload),
		info: BlockInfo{
			ChannelInfos: make([]BlockChannelInfo, cfg.Format.Channels),
		},
	}, nil
}

// Header returns the file header for the stream this Encoder will
// produce, given the total per-channel sample count. NumBlocks,
// MaxBlockSizeBytes, and MaxBitPerSecond are left zero; Encode (in
// stream.go) fills them in once every block has actually been produced.
func (e *Encoder) Header(numSamples uint64) HeaderInfo {
	return HeaderInfo{
		Format:               e.cfg.Format,
		NumSamples:           uint32(numSamples), //nolint:gosec // bounded by the input PCM buffer length
		OffsetLshift:         uint8(e.cfg.OffsetLshift),
		ParcorOrder:          uint8(e.cfg.ParcorOrder),         //nolint:gosec // validated by setDefaults/caller
		LongTermOrder:        uint8(e.cfg.longTermOrder()),     //nolint:gosec // validated by setDefaults/caller
		LMSOrder:             uint8(e.cfg.LMSOrder),            //nolint:gosec // validated by setDefaults/caller
		ChannelProcessMethod: e.cfg.ChannelProc,
		MaxBlockSizeSamples:  uint16(e.cfg.MaxBlockSizeSamples), //nolint:gosec // bounded by config
	}
}

// bitPerSample is the per-sample working bit width once offset_lshift has
// been stripped: the wire width the initial Rice parameter field and the
// raw fallback storage are both sized against.
func (e *Encoder) bitPerSample() int {
	return int(e.cfg.Format.BitDepth) - e.cfg.OffsetLshift
}

// EncodeBlock encodes one block of per-channel samples (channels[i] holds
// that channel's samples for this block, all the same length, already
// shifted by the stream's offset_lshift) and returns the block's side
// information plus its serialised payload. The returned payload aliases
// the Encoder's internal scratch buffer and is only valid until the next
// EncodeBlock call.
func (e *Encoder) EncodeBlock(channels [][]int32) (BlockInfo, []byte, error) {
	n := len(channels[0])

	e.info.NumSamples = n
	e.info.ChannelProc = e.cfg.ChannelProc

	if allSilent(channels) {
		e.info.ChannelProc = ChannelProcessNone
		e.info.DataType = BlockDataSilence

		w := bitio.NewWriter(e.payload)
		if err := EncodeBlockSideInfo(w, e.info, e.cfg.ParcorOrder, e.bitPerSample()); err != nil {
			return e.info, nil, err
		}

		if err := w.Flush(); err != nil {
			return e.info, nil, err
		}

		return e.info, w.Bytes(), nil
	}

	work := e.prepareChannels(channels)

	w := bitio.NewWriter(e.payload)

	if e.tryEncodeCompressed(w, work) {
		if err := w.Flush(); err == nil {
			return e.info, w.Bytes(), nil
		}
	}

	return e.encodeRawFallback()
}

// prepareChannels applies the optional mid/side transform and returns the
// working int32 slices the predictor cascade will run on (aliases of
// e.states[i].work), after snapshotting the pristine post-channel-process
// values into rawScratch for a possible raw fallback.
func (e *Encoder) prepareChannels(channels [][]int32) [][]int32 {
	n := len(channels[0])
	work := make([][]int32, len(e.states))

	if e.info.ChannelProc == ChannelProcessMidSide {
		mid, side := e.states[0].work[:n], e.states[1].work[:n]

		for i := 0; i < n; i++ {
			mid[i], side[i] = slamath.MSEncode(channels[0][i], channels[1][i])
		}

		work[0], work[1] = mid, side
	} else {
		for ch := range e.states {
			copy(e.states[ch].work[:n], channels[ch])
			work[ch] = e.states[ch].work[:n]
		}
	}

	for ch := range e.states {
		copy(e.states[ch].rawScratch[:n], work[ch])
	}

	return work
}

// analyseChannel runs the float64 analysis path: double-precision
// pre-emphasis, then a windowed copy (§4.3) feeds autocorrelation and
// Levinson-Durbin so the block's hard edges don't leak energy into the
// PARCOR estimate. It returns the PARCOR coefficients and the estimated
// bits/sample the lattice predictor would achieve, used by
// tryEncodeCompressed to decide whether the cascade is worth running at
// all (§4.10 step 4).
func (e *Encoder) analyseChannel(s *channelState, samples []int32) (k []float64, estimate float64) {
	n := len(samples)

	for i, v := range samples {
		s.asFloat[i] = float64(v)
	}

	s.emphD.Pre(s.asFloat[:n])

	copy(s.windowed[:n], s.asFloat[:n])
	window.Apply(s.windowed[:n], e.cfg.WindowFunction)

	k = parcor.Analyse(s.windowed[:n], e.cfg.ParcorOrder)
	estimate = parcor.CodeLengthEstimate(s.windowed[:n], k)

	return k, estimate
}

// tryEncodeCompressed runs the full predictor cascade and entropy coder
// over work, writing into w. It returns false (leaving w in an undefined
// state) if the average code-length estimate says the cascade is not
// worth running, or the payload would not fit the worst-case buffer.
func (e *Encoder) tryEncodeCompressed(w *bitio.Writer, work [][]int32) bool {
	ks := make([][]float64, len(work))

	var totalEstimate float64

	for ch, samples := range work {
		s := e.states[ch]
		s.reset()

		k, estimate := e.analyseChannel(s, samples)
		ks[ch] = k
		totalEstimate += estimate
	}

	avgEstimate := totalEstimate / float64(len(work))
	if avgEstimate >= EstimateCodeLengthThreshold*float64(e.bitPerSample()) {
		return false
	}

	e.info.DataType = BlockDataCompressed

	initials := make([]uint32, len(work))

	for ch, samples := range work {
		s := e.states[ch]

		info := e.encodeChannelCascade(s, samples, ks[ch])
		e.info.ChannelInfos[ch] = info
		initials[ch] = info.InitialRiceParameter
	}

	useFixed := averageBelowThreshold(initials)
	for ch := range e.info.ChannelInfos {
		e.info.ChannelInfos[ch].UseFixedRice = useFixed
	}

	if err := EncodeBlockSideInfo(w, e.info, e.cfg.ParcorOrder, e.bitPerSample()); err != nil {
		return false
	}

	if err := w.Flush(); err != nil {
		return false
	}

	if err := e.entropyEncodeInterleaved(w, work); err != nil {
		return false
	}

	return true
}

// encodeChannelCascade runs pre-emphasis, PARCOR, optional long-term, and
// the joint LMS filter over samples in place (samples ends up holding the
// final residual) and returns the block's side information for this
// channel. k is the PARCOR coefficient vector analyseChannel already
// computed.
func (e *Encoder) encodeChannelCascade(s *channelState, samples []int32, k []float64) BlockChannelInfo {
	stored, rshift := parcor.Quantize(k, e.cfg.ParcorOrder)
	coef := parcor.Reconstruct(stored, e.cfg.ParcorOrder, rshift)

	s.emphI.Pre(samples)
	s.lat.Predict(samples, coef)

	info := BlockChannelInfo{
		ParcorCoefShift: int32(rshift), //nolint:gosec // rshift bounded by parcor.MaxRShift
		ParcorCoef:      append([]int32(nil), stored...),
	}

	if order := e.cfg.longTermOrder(); order > 0 {
		for i, v := range samples {
			s.asFloat[i] = float64(v)
		}

		lt := longterm.Analyse(s.asFloat[:len(samples)], order)
		if lt.Lag != 0 {
			taps := longterm.QuantizeTaps(lt.Taps)
			longterm.NewFilter(lt.Lag, taps).Predict(samples)
			info.LongTermLag = lt.Lag
			info.LongTermTaps = taps
		}
	}

	for i, v := range samples {
		samples[i] = s.lmsFilter.Process(v)
	}

	for i, v := range samples {
		s.unsigned[i] = slamath.SintToUint(v)
	}

	info.InitialRiceParameter = rice.InitialParameter(s.unsigned[:len(samples)])

	return info
}

// entropyEncodeInterleaved writes every channel's residual for sample i
// before moving to sample i+1 (§4.8), matching the decoder's requirement
// that all channels share one continuous entropy-coded bit stream.
func (e *Encoder) entropyEncodeInterleaved(w *bitio.Writer, work [][]int32) error {
	n := len(work[0])
	useFixed := e.info.ChannelInfos[0].UseFixedRice

	ms := make([]uint32, len(work))

	for ch, info := range e.info.ChannelInfos {
		if useFixed {
			ms[ch] = rice.FixedM(info.InitialRiceParameter)
		} else {
			e.states[ch].coder.Reset(info.InitialRiceParameter)
		}
	}

	for i := 0; i < n; i++ {
		for ch := range work {
			s := e.states[ch]

			var err error
			if useFixed {
				err = rice.EncodeFixed(w, s.unsigned[i], ms[ch])
			} else {
				err = s.coder.EncodeValue(w, s.unsigned[i])
			}

			if err != nil {
				return err
			}
		}
	}

	return nil
}

// encodeRawFallback stores every channel's pristine post-channel-process
// samples (rawScratch) verbatim, two's-complement truncated to
// bitPerSample bits (one extra bit for the side channel under mid/side,
// §3's note that the side signal can exceed the format's nominal range).
// It always succeeds: the payload buffer was sized for exactly this case.
func (e *Encoder) encodeRawFallback() (BlockInfo, []byte, error) {
	e.info.DataType = BlockDataRawPCM

	w := bitio.NewWriter(e.payload)
	if err := EncodeBlockSideInfo(w, e.info, e.cfg.ParcorOrder, e.bitPerSample()); err != nil {
		return e.info, nil, err
	}

	bps := e.bitPerSample()

	for i := 0; i < e.info.NumSamples; i++ {
		for ch := range e.states {
			bits := uint(bps) //nolint:gosec // bitPerSample is derived from a small BitDepth constant
			if ch == 1 && e.info.ChannelProc == ChannelProcessMidSide {
				bits++
			}

			if err := putSigned(w, e.states[ch].rawScratch[i], bits); err != nil {
				return e.info, nil, err
			}
		}
	}

	if err := w.Flush(); err != nil {
		return e.info, nil, err
	}

	return e.info, w.Bytes(), nil
}

func allSilent(channels [][]int32) bool {
	for _, ch := range channels {
		for _, v := range ch {
			if v != 0 {
				return false
			}
		}
	}

	return true
}

func averageBelowThreshold(initials []uint32) bool {
	var sum uint64
	for _, v := range initials {
		sum += uint64(v)
	}

	avg := sum / uint64(len(initials))

	return avg < rice.LowThresholdParameter
}
