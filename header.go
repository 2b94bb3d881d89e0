package sla

import (
	"fmt"

	"github.com/mycophonic/sla/internal/byteio"
	"github.com/mycophonic/sla/internal/crc16"
)

// HeaderInfo is the fixed 43-byte file header (§6.1): everything a decoder
// needs to allocate its working buffers before reading the first block.
type HeaderInfo struct {
	Format PCMFormat

	NumSamples uint32 // per-channel sample count

	OffsetLshift uint8 // trailing zero bits common to every sample, stripped before coding

	ParcorOrder    uint8
	LongTermOrder  uint8 // odd tap count, 0 = long-term prediction disabled
	LMSOrder       uint8
	ChannelProcessMethod ChannelProcessMethod

	NumBlocks uint32

	MaxBlockSizeSamples uint16
	MaxBlockSizeBytes   uint32
	MaxBitPerSecond     uint32
}

// EncodeHeader serialises h into a fresh HeaderSize-byte buffer, laid out
// exactly per §6.1's offset table.
func EncodeHeader(h HeaderInfo) []byte {
	buf := make([]byte, HeaderSize)
	c := byteio.NewCursor(buf)

	copy(c.Buf[0:4], Signature)
	c.Skip(4)

	c.PutUint32(HeaderSize) // offset to first block: header is immediately followed by it

	c.Skip(2) // CRC-16, patched in below once everything else is written

	c.PutUint32(FormatVersion)
	c.PutUint8(uint8(h.Format.Channels)) //nolint:gosec // validated against MaxChannels by the caller
	c.PutUint32(h.NumSamples)
	c.PutUint32(uint32(h.Format.SampleRate)) //nolint:gosec // sample rates fit comfortably in uint32
	c.PutUint8(uint8(h.Format.BitDepth))     //nolint:gosec // bit depth is one of the BitDepth constants
	c.PutUint8(h.OffsetLshift)
	c.PutUint8(h.ParcorOrder)
	c.PutUint8(h.LongTermOrder)
	c.PutUint8(h.LMSOrder)
	c.PutUint8(uint8(h.ChannelProcessMethod))
	c.PutUint32(h.NumBlocks)
	c.PutUint16(h.MaxBlockSizeSamples)
	c.PutUint32(h.MaxBlockSizeBytes)
	c.PutUint32(h.MaxBitPerSecond)

	crc := crc16.Checksum(buf[10:HeaderSize])
	byteio.PutUint16(buf[8:10], crc)

	return buf
}

// DecodeHeader parses and validates a HeaderSize-byte buffer.
func DecodeHeader(buf []byte) (HeaderInfo, error) {
	var h HeaderInfo

	if len(buf) < HeaderSize {
		return h, ErrTruncated
	}

	if string(buf[0:4]) != Signature {
		return h, ErrInvalidFormat
	}

	wantCRC := byteio.Uint16(buf[8:10])
	gotCRC := crc16.Checksum(buf[10:HeaderSize])

	if wantCRC != gotCRC {
		return h, ErrCRCMismatch
	}

	c := byteio.NewCursor(buf)
	c.Skip(10)

	version := c.GetUint32()
	if version != FormatVersion {
		return h, fmt.Errorf("version %d: %w", version, ErrInvalidFormat)
	}

	channels := c.GetUint8()
	if channels == 0 || channels > MaxChannels {
		return h, fmt.Errorf("%d channels: %w", channels, ErrUnsupportedParameter)
	}

	numSamples := c.GetUint32()
	sampleRate := c.GetUint32()

	bitDepth, err := ToBitDepth(c.GetUint8())
	if err != nil {
		return h, fmt.Errorf("%w: %w", err, ErrUnsupportedParameter)
	}

	offsetLshift := c.GetUint8()
	if offsetLshift >= uint8(bitDepth) {
		return h, fmt.Errorf("offset_lshift %d >= bit depth %d: %w", offsetLshift, bitDepth, ErrInvalidFormat)
	}

	parcorOrder := c.GetUint8()
	longTermOrder := c.GetUint8()
	lmsOrder := c.GetUint8()

	chanProc := ChannelProcessMethod(c.GetUint8())
	if chanProc == ChannelProcessMidSide && channels != 2 {
		return h, fmt.Errorf("mid-side with %d channels: %w", channels, ErrUnsupportedParameter)
	}

	numBlocks := c.GetUint32()
	maxBlockSamples := c.GetUint16()
	maxBlockBytes := c.GetUint32()
	maxBitPerSecond := c.GetUint32()

	h = HeaderInfo{
		Format: PCMFormat{
			SampleRate: int(sampleRate),
			BitDepth:   bitDepth,
			Channels:   uint(channels),
		},
		NumSamples:           numSamples,
		OffsetLshift:         offsetLshift,
		ParcorOrder:          parcorOrder,
		LongTermOrder:        longTermOrder,
		LMSOrder:             lmsOrder,
		ChannelProcessMethod: chanProc,
		NumBlocks:            numBlocks,
		MaxBlockSizeSamples:  maxBlockSamples,
		MaxBlockSizeBytes:    maxBlockBytes,
		MaxBitPerSecond:      maxBitPerSecond,
	}

	return h, nil
}
