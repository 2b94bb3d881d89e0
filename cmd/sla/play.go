package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/hajimehoshi/oto/v2"
	"github.com/urfave/cli/v3"

	"github.com/mycophonic/sla"
	"github.com/mycophonic/sla/detect"
	"github.com/mycophonic/sla/internal/streamqueue"
)

// playQueueCapacity bounds how many decoded blocks may sit ahead of the
// audio device before the decode loop blocks. A handful of blocks is
// enough to absorb device jitter without holding a whole file in memory.
const playQueueCapacity = 8

func playCommand() *cli.Command {
	return &cli.Command{
		Name:      "play",
		Usage:     "Decode and play an audio file through the system's audio device",
		ArgsUsage: "<file>",
		Action:    runPlay,
	}
}

func runPlay(ctx context.Context, cmd *cli.Command) error {
	if cmd.NArg() != 1 {
		return fmt.Errorf("%w: got %d", errInvalidArgCount, cmd.NArg())
	}

	path := cmd.Args().First()

	file, err := os.Open(path) //nolint:gosec // CLI tool opens user-specified audio files
	if err != nil {
		return fmt.Errorf("opening %s: %w", path, err)
	}

	codec, err := detect.Identify(file)
	if err != nil {
		file.Close()

		return fmt.Errorf("detecting codec: %w", err)
	}

	if codec == detect.SLA {
		defer file.Close()

		return playSLAStream(ctx, file)
	}

	file.Close()

	pcm, format, err := decodeForeign(path)
	if err != nil {
		return err
	}

	return playPCM(ctx, pcm, format)
}

// playSLAStream decodes an SLA stream one block at a time, pushing each
// block's 16-bit PCM onto a streamqueue.Queue that an oto player drains
// concurrently, so playback starts before the whole file is decoded.
func playSLAStream(ctx context.Context, rs io.ReadSeeker) error {
	sd, err := sla.NewStreamDecoder(rs)
	if err != nil {
		return err
	}

	header := sd.Header()
	queue := streamqueue.New(playQueueCapacity)
	decodeErr := make(chan error, 1)

	go func() {
		decodeErr <- decodeSLAIntoQueue(sd, queue)
	}()

	if err := playQueue(ctx, queue, header.Format); err != nil {
		return err
	}

	return <-decodeErr
}

func decodeSLAIntoQueue(sd *sla.StreamDecoder, queue *streamqueue.Queue) error {
	defer queue.Close()

	header := sd.Header()

	scratch := make([][]int32, header.Format.Channels)
	for ch := range scratch {
		scratch[ch] = make([]int32, header.MaxBlockSizeSamples)
	}

	for {
		info, err := sd.Next(scratch)
		if err == io.EOF { //nolint:errorlint // sentinel returned directly by StreamDecoder.Next
			return nil
		}

		if err != nil {
			return err
		}

		packet := interleave16(scratch, info.NumSamples, header.Format)
		if err := queue.Push(packet); err != nil {
			return fmt.Errorf("queuing decoded block: %w", err)
		}
	}
}

// interleave16 packs the first n samples of each channel in scratch into
// signed 16-bit little-endian interleaved PCM, downconverting from the
// stream's native bit depth the same way a DAC's volume control would.
func interleave16(scratch [][]int32, n int, format sla.PCMFormat) []byte {
	out := make([]byte, n*len(scratch)*2)
	pos := 0

	if format.BitDepth == sla.Depth8 {
		for i := 0; i < n; i++ {
			for ch := range scratch {
				v := int16(scratch[ch][i]) << 8 //nolint:gosec // 8-bit samples need an upward scale, not a shift-down
				out[pos], out[pos+1] = byte(v), byte(v>>8)
				pos += 2
			}
		}

		return out
	}

	shift := bitDepthShiftTo16(format.BitDepth)

	for i := 0; i < n; i++ {
		for ch := range scratch {
			v := int16(scratch[ch][i] >> shift) //nolint:gosec // intentional downconversion to 16-bit playback
			out[pos], out[pos+1] = byte(v), byte(v>>8)
			pos += 2
		}
	}

	return out
}

func bitDepthShiftTo16(depth sla.BitDepth) uint {
	switch depth {
	case sla.Depth24:
		return 8
	case sla.Depth20:
		return 4
	case sla.Depth32:
		return 16
	case sla.Depth16, sla.Depth8:
		return 0
	default:
		return 0
	}
}

// playPCM plays a fully-decoded PCM buffer, downconverting to 16-bit and
// chunking it through the same streamqueue path playSLAStream uses, so
// both entry points exercise identical playback plumbing.
func playPCM(ctx context.Context, pcm []byte, format sla.PCMFormat) error {
	pcm16 := downconvertTo16(pcm, format)

	const chunkBytes = 32 * 1024

	queue := streamqueue.New(playQueueCapacity)

	go func() {
		defer queue.Close()

		for off := 0; off < len(pcm16); off += chunkBytes {
			end := off + chunkBytes
			if end > len(pcm16) {
				end = len(pcm16)
			}

			chunk := make([]byte, end-off)
			copy(chunk, pcm16[off:end])

			if err := queue.Push(chunk); err != nil {
				return
			}
		}
	}()

	return playQueue(ctx, queue, format)
}

// downconvertTo16 reduces packed PCM of any supported bit depth to signed
// 16-bit little-endian samples. For the 3-byte formats (24-bit direct,
// 20-bit left-aligned in 24 per BytesPerSample's packing) left-shifting
// the top byte into an int32's sign position and arithmetic-shifting back
// down by 16 recovers a 16-bit sample in one step for both depths alike;
// the 32-bit format needs that same final >>16 from its native range.
func downconvertTo16(pcm []byte, format sla.PCMFormat) []byte {
	if format.BitDepth == sla.Depth16 {
		return pcm
	}

	bps := format.BitDepth.BytesPerSample()
	n := len(pcm) / bps
	out := make([]byte, n*2)

	for i := 0; i < n; i++ {
		src := pcm[i*bps : i*bps+bps]

		var v int32

		switch format.BitDepth {
		case sla.Depth24, sla.Depth20:
			v = int32(src[2])<<24 | int32(src[1])<<16 | int32(src[0])<<8 //nolint:gosec // left-aligned per BytesPerSample's packing
		case sla.Depth32:
			v = int32(uint32(src[0]) | uint32(src[1])<<8 | uint32(src[2])<<16 | uint32(src[3])<<24) //nolint:gosec // reinterpretation
		case sla.Depth8:
			v = int32(int8(src[0])) << 24 //nolint:gosec // left-align an 8-bit sample into the same int32 range as the others
		case sla.Depth16:
			// unreachable: handled by the early return above.
		}

		sample := int16(v >> 16) //nolint:gosec // intentional downconversion to 16-bit playback
		out[i*2], out[i*2+1] = byte(sample), byte(sample>>8)
	}

	return out
}

// queueReader adapts a streamqueue.Queue to io.Reader for oto's Player,
// buffering the tail of a packet across Read calls when the caller's
// buffer is smaller than one decoded block.
type queueReader struct {
	queue   *streamqueue.Queue
	pending []byte
}

func (r *queueReader) Read(p []byte) (int, error) {
	for len(r.pending) == 0 {
		packet, ok := r.queue.Pop()
		if !ok {
			return 0, io.EOF
		}

		r.pending = packet
	}

	n := copy(p, r.pending)
	r.pending = r.pending[n:]

	return n, nil
}

func playQueue(ctx context.Context, queue *streamqueue.Queue, format sla.PCMFormat) error {
	const bytesPerSample16 = 2

	otoCtx, ready, err := oto.NewContext(format.SampleRate, int(format.Channels), bytesPerSample16)
	if err != nil {
		return fmt.Errorf("opening audio device: %w", err)
	}

	<-ready

	player := otoCtx.NewPlayer(&queueReader{queue: queue})
	defer player.Close()

	player.Play()

	for player.IsPlaying() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(100 * time.Millisecond):
		}
	}

	return nil
}
