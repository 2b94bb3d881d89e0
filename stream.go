package sla

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math/bits"

	"github.com/mycophonic/sla/internal/byteio"
	"github.com/mycophonic/sla/internal/crc16"
	"github.com/mycophonic/sla/internal/parcor"
	"github.com/mycophonic/sla/internal/partition"
)

// maxUint16 is the largest value block_num_samples (a 16-bit wire field,
// §6.2) can hold.
const maxUint16 = 1<<16 - 1

// commonOffsetLshift returns the number of trailing zero bits shared by
// every sample across every channel (§4.2): the largest k for which every
// sample is a multiple of 2^k, capped so the working bit depth after
// stripping it never reaches zero. A silent stream reports 0; stripping a
// pointless shift off silence buys nothing.
func commonOffsetLshift(channels [][]int32, bitDepth BitDepth) int {
	var orAll uint32

	for _, ch := range channels {
		for _, v := range ch {
			orAll |= uint32(v) //nolint:gosec // only the bit pattern matters here, not the numeric value
		}
	}

	if orAll == 0 {
		return 0
	}

	maxShift := int(bitDepth) - 1
	if maxShift <= 0 {
		return 0
	}

	tz := bits.TrailingZeros32(orAll)
	if tz > maxShift {
		tz = maxShift
	}

	return tz
}

// Encode writes pcm (interleaved samples in format) to w as a complete SLA
// stream: the file header followed by one block per partition-optimised
// span of the input, each framed with a sync code and a CRC-16 (§6.2,
// §6.4). It mirrors wav.Encode's "whole buffer in, whole
// stream out" shape so the CLI can treat every codec identically.
func Encode(w io.Writer, pcm []byte, format PCMFormat) error {
	channels, err := deinterleave(pcm, format)
	if err != nil {
		return err
	}

	total := len(channels[0])

	shift := commonOffsetLshift(channels, format.BitDepth)
	if shift > 0 {
		for _, ch := range channels {
			for i, v := range ch {
				ch[i] = v >> uint(shift) //nolint:gosec // shift is bounded below bit depth by commonOffsetLshift
			}
		}
	}

	cfg := EncoderConfig{Format: format, OffsetLshift: shift}
	if format.Channels == 2 {
		cfg.ChannelProc = ChannelProcessMidSide
	}

	enc, err := NewEncoder(cfg)
	if err != nil {
		return fmt.Errorf("constructing encoder: %w", err)
	}

	header := enc.Header(uint64(total)) //nolint:gosec // total is bounded by the input PCM buffer length

	bounds := planBlocks(channels, total, int(header.MaxBlockSizeSamples), enc.cfg)

	var body bytes.Buffer

	var (
		numBlocks       uint32
		maxBlockBytes   uint32
		maxBlockSamples uint16
	)

	block := make([][]int32, len(channels))

	for i := 0; i+1 < len(bounds); i++ {
		lo, hi := bounds[i], bounds[i+1]

		for ch := range channels {
			block[ch] = channels[ch][lo:hi]
		}

		info, payload, err := enc.EncodeBlock(block)
		if err != nil {
			return fmt.Errorf("encoding block at sample %d: %w", lo, err)
		}

		written, err := writeBlock(&body, info, payload)
		if err != nil {
			return fmt.Errorf("writing block at sample %d: %w", lo, err)
		}

		numBlocks++

		if uint32(written) > maxBlockBytes { //nolint:gosec // written is bounded by the payload buffer size
			maxBlockBytes = uint32(written) //nolint:gosec
		}

		if n := hi - lo; n > int(maxBlockSamples) {
			maxBlockSamples = uint16(n) //nolint:gosec // bounded by header.MaxBlockSizeSamples
		}
	}

	header.NumBlocks = numBlocks
	header.MaxBlockSizeBytes = maxBlockBytes

	if maxBlockSamples > 0 && header.Format.SampleRate > 0 {
		header.MaxBitPerSecond = uint32( //nolint:gosec // bounded by realistic sample rates and block sizes
			uint64(maxBlockBytes) * 8 * uint64(header.Format.SampleRate) / uint64(maxBlockSamples), //nolint:gosec // SampleRate is validated positive
		)
	}

	if _, err := w.Write(EncodeHeader(header)); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}

	if _, err := w.Write(body.Bytes()); err != nil {
		return fmt.Errorf("writing blocks: %w", err)
	}

	return nil
}

// silentRunLength returns the length of the maximal run of all-zero
// samples (across every channel) starting at start; 0 if the sample at
// start is not silent in every channel.
func silentRunLength(channels [][]int32, start int) int {
	total := len(channels[0])

	i := start

	for i < total {
		silent := true

		for _, ch := range channels {
			if ch[i] != 0 {
				silent = false

				break
			}
		}

		if !silent {
			break
		}

		i++
	}

	return i - start
}

// blockCostFunc returns a partition.CostFunc estimating the combined
// coding cost, across every channel, of the span [stretchStart+lo,
// stretchStart+hi) — one shared cost so partition.Optimise produces a
// single boundary set usable by every channel of a block (§4.9).
func blockCostFunc(channels [][]int32, stretchStart, parcorOrder int) partition.CostFunc {
	return func(lo, hi int) float64 {
		absLo, absHi := stretchStart+lo, stretchStart+hi
		n := absHi - absLo

		buf := make([]float64, n)

		var total float64

		for _, ch := range channels {
			samples := ch[absLo:absHi]
			for i, v := range samples {
				buf[i] = float64(v)
			}

			k := parcor.Analyse(buf, parcorOrder)
			total += parcor.CodeLengthEstimate(buf, k) * float64(n)
		}

		return total + blockHeaderBitEstimate + longPathPenaltyBits
	}
}

// planBlocks partitions [0,total) into block boundaries: maximal silent
// runs of at least MinBlockNumSamples become one or more dedicated Silent
// blocks (chunked to fit both maxBlock and the 16-bit block_num_samples
// wire field), and the non-silent stretches between them are each
// independently partition-optimised (§4.9, §4.10 step 4's silence fast
// path).
func planBlocks(channels [][]int32, total, maxBlock int, cfg EncoderConfig) []int {
	if total <= 0 {
		return []int{0}
	}

	bounds := []int{0}
	stretchStart := 0

	flushStretch := func(end int) {
		if end <= stretchStart {
			return
		}

		cost := blockCostFunc(channels, stretchStart, cfg.ParcorOrder)
		plan := partition.Optimise(end-stretchStart, MinBlockNumSamples, maxBlock, cost)

		for _, b := range plan.Bounds[1:] {
			bounds = append(bounds, stretchStart+b)
		}
	}

	pos := 0

	for pos < total {
		runLen := silentRunLength(channels, pos)

		if runLen >= MinBlockNumSamples {
			flushStretch(pos)

			end := pos + runLen
			for pos < end {
				chunk := end - pos
				if chunk > maxUint16 {
					chunk = maxUint16
				}

				if chunk > maxBlock {
					chunk = maxBlock
				}

				pos += chunk
				bounds = append(bounds, pos)
			}

			stretchStart = pos

			continue
		}

		pos += runLen + 1
		if pos > total {
			pos = total
		}
	}

	flushStretch(total)

	return bounds
}

func writeBlock(w io.Writer, info BlockInfo, payload []byte) (int, error) {
	var prefix [BlockHeaderSize]byte

	byteio.PutUint16(prefix[0:2], BlockSyncCode)
	byteio.PutUint32(prefix[2:6], uint32(BlockHeaderSize-2+len(payload))) //nolint:gosec // payload bounded by MaxBlockSizeSamples*channels*4

	var numSamplesBuf [2]byte
	byteio.PutUint16(numSamplesBuf[:], uint16(info.NumSamples)) //nolint:gosec // bounded by the 16-bit block_num_samples wire field
	byteio.PutUint16(prefix[8:10], uint16(info.NumSamples))     //nolint:gosec

	crc := crc16.Update(0, crc16.IBMTable, numSamplesBuf[:])
	crc = crc16.Update(crc, crc16.IBMTable, payload)
	byteio.PutUint16(prefix[6:8], crc)

	if _, err := w.Write(prefix[:]); err != nil {
		return 0, err
	}

	if len(payload) > 0 {
		if _, err := w.Write(payload); err != nil {
			return 0, err
		}
	}

	return BlockHeaderSize + len(payload), nil
}

func readBlock(r io.Reader) (numSamples int, payload []byte, err error) {
	var prefix [BlockHeaderSize]byte

	if _, err := io.ReadFull(r, prefix[:]); err != nil {
		return 0, nil, fmt.Errorf("%w: %w", ErrTruncated, err)
	}

	if byteio.Uint16(prefix[0:2]) != BlockSyncCode {
		return 0, nil, ErrSyncLost
	}

	nextOffset := byteio.Uint32(prefix[2:6])
	wantCRC := byteio.Uint16(prefix[6:8])
	samples := byteio.Uint16(prefix[8:10])

	if nextOffset < BlockHeaderSize-2 {
		return 0, nil, fmt.Errorf("next_block_offset %d: %w", nextOffset, ErrInvalidFormat)
	}

	bodyLen := int(nextOffset) - (BlockHeaderSize - 2)

	payload = make([]byte, bodyLen)
	if bodyLen > 0 {
		if _, err := io.ReadFull(r, payload); err != nil {
			return 0, nil, fmt.Errorf("%w: %w", ErrTruncated, err)
		}
	}

	var numSamplesBuf [2]byte
	byteio.PutUint16(numSamplesBuf[:], samples)

	gotCRC := crc16.Update(0, crc16.IBMTable, numSamplesBuf[:])
	gotCRC = crc16.Update(gotCRC, crc16.IBMTable, payload)

	if gotCRC != wantCRC {
		return 0, nil, ErrCRCMismatch
	}

	return int(samples), payload, nil
}

// Decode reads a complete SLA stream from rs and returns its PCM samples
// (interleaved, native bit depth) and format, the same shape every other
// codec package in this module returns.
func Decode(rs io.ReadSeeker) ([]byte, PCMFormat, error) {
	sd, err := NewStreamDecoder(rs)
	if err != nil {
		return nil, PCMFormat{}, err
	}

	channels := make([][]int32, sd.header.Format.Channels)
	for ch := range channels {
		channels[ch] = make([]int32, 0, sd.header.NumSamples)
	}

	scratch := make([][]int32, sd.header.Format.Channels)
	for ch := range scratch {
		scratch[ch] = make([]int32, sd.header.MaxBlockSizeSamples)
	}

	for {
		info, err := sd.Next(scratch)
		if errors.Is(err, io.EOF) {
			break
		}

		if err != nil {
			return nil, sd.header.Format, err
		}

		for ch := range channels {
			channels[ch] = append(channels[ch], scratch[ch][:info.NumSamples]...)
		}
	}

	return interleave(channels, sd.header.Format), sd.header.Format, nil
}

// StreamDecoder reads one block at a time from an SLA stream, for callers
// that want to start consuming samples before the whole file is read (the
// CLI's "play" command, or any other incremental consumer).
type StreamDecoder struct {
	r      io.Reader
	dec    *Decoder
	header HeaderInfo
	total  uint64
}

// NewStreamDecoder reads and validates the stream header, then returns a
// StreamDecoder ready to serve blocks via Next.
func NewStreamDecoder(r io.Reader) (*StreamDecoder, error) {
	headerBuf := make([]byte, HeaderSize)
	if _, err := io.ReadFull(r, headerBuf); err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}

	header, err := DecodeHeader(headerBuf)
	if err != nil {
		return nil, fmt.Errorf("decoding header: %w", err)
	}

	dec, err := NewDecoder(NewDecoderFromHeader(header))
	if err != nil {
		return nil, fmt.Errorf("constructing decoder: %w", err)
	}

	return &StreamDecoder{r: r, dec: dec, header: header}, nil
}

// Header returns the stream's file header.
func (sd *StreamDecoder) Header() HeaderInfo {
	return sd.header
}

// Next decodes the next block into out, one slice per channel, each sized
// at least MaxBlockSizeSamples. It returns io.EOF once every sample named
// by the header has been delivered.
func (sd *StreamDecoder) Next(out [][]int32) (BlockInfo, error) {
	if sd.total >= sd.header.NumSamples {
		return BlockInfo{}, io.EOF
	}

	numSamples, payload, err := readBlock(sd.r)
	if err != nil {
		return BlockInfo{}, fmt.Errorf("reading block at sample %d: %w", sd.total, err)
	}

	info, err := sd.dec.DecodeBlock(numSamples, payload, out)
	if err != nil {
		return BlockInfo{}, fmt.Errorf("decoding block at sample %d: %w", sd.total, err)
	}

	sd.total += uint64(numSamples) //nolint:gosec // numSamples is bounded by the 16-bit block_num_samples wire field

	return info, nil
}
