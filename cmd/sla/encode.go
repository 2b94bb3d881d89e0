package main

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/mycophonic/sla"
	"github.com/mycophonic/sla/aac"
	"github.com/mycophonic/sla/alac"
	"github.com/mycophonic/sla/detect"
	"github.com/mycophonic/sla/flac"
	"github.com/mycophonic/sla/mp3"
	"github.com/mycophonic/sla/vorbis"
	"github.com/mycophonic/sla/wav"
)

func encodeCommand() *cli.Command {
	return &cli.Command{
		Name:      "encode",
		Usage:     "Encode raw PCM (or an already-decodable foreign file) to SLA",
		ArgsUsage: "<file>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Value:   "-",
				Usage:   "output file path (- for stdout)",
			},
			&cli.BoolFlag{
				Name:  "from-foreign",
				Usage: "<file> is FLAC/MP3/Vorbis/ALAC/WAV/AAC, not raw PCM; transcode it to SLA",
			},
			&cli.IntFlag{
				Name:    "sample-rate",
				Aliases: []string{"r"},
				Usage:   "sample rate in Hz (required for raw PCM input)",
			},
			&cli.IntFlag{
				Name:    "bit-depth",
				Aliases: []string{"b"},
				Usage:   "bit depth: 16, 20, 24, or 32 (required for raw PCM input)",
			},
			&cli.IntFlag{
				Name:    "channels",
				Aliases: []string{"c"},
				Usage:   "number of channels, 1-8 (required for raw PCM input)",
			},
		},
		Action: runEncode,
	}
}

func runEncode(_ context.Context, cmd *cli.Command) error {
	if cmd.NArg() != 1 {
		return fmt.Errorf("%w: got %d", errInvalidArgCount, cmd.NArg())
	}

	path := cmd.Args().First()

	var (
		pcm    []byte
		format sla.PCMFormat
		err    error
	)

	if cmd.Bool("from-foreign") {
		pcm, format, err = decodeForeign(path)
	} else {
		pcm, format, err = readRawPCM(cmd, path)
	}

	if err != nil {
		return err
	}

	return writeSLA(cmd.String("output"), pcm, format)
}

// decodeForeign decodes path using the same codec dispatch runDecode uses,
// so "encode --from-foreign" can transcode anything this module can
// already read into native SLA.
func decodeForeign(path string) ([]byte, sla.PCMFormat, error) {
	file, err := os.Open(path) //nolint:gosec // CLI tool opens user-specified audio files
	if err != nil {
		return nil, sla.PCMFormat{}, fmt.Errorf("opening %s: %w", path, err)
	}
	defer file.Close()

	codec, err := detect.Identify(file)
	if err != nil {
		return nil, sla.PCMFormat{}, fmt.Errorf("detecting codec: %w", err)
	}

	var decode decodeFunc

	switch codec {
	case detect.SLA:
		decode = sla.Decode
	case detect.FLAC:
		decode = flac.Decode
	case detect.MP3:
		decode = mp3.Decode
	case detect.Vorbis:
		decode = vorbis.Decode
	case detect.ALAC:
		decode = alac.Decode
	case detect.WAV:
		decode = wav.Decode
	case detect.AAC:
		decode = aac.Decode
	case detect.Unknown:
		return nil, sla.PCMFormat{}, fmt.Errorf("%s: %w", path, errUnsupportedFormat)
	}

	pcm, format, err := decode(file)
	if err != nil {
		return nil, sla.PCMFormat{}, fmt.Errorf("decoding %s %s: %w", codec, path, err)
	}

	return pcm, format, nil
}

func readRawPCM(cmd *cli.Command, path string) ([]byte, sla.PCMFormat, error) {
	pcm, err := os.ReadFile(path) //nolint:gosec // CLI tool reads user-specified audio files
	if err != nil {
		return nil, sla.PCMFormat{}, fmt.Errorf("reading %s: %w", path, err)
	}

	bitDepth, err := sla.ToBitDepth(
		uint8(cmd.Int("bit-depth")), //nolint:gosec // CLI value validated by ToBitDepth
	)
	if err != nil {
		return nil, sla.PCMFormat{}, fmt.Errorf("invalid bit depth: %w", err)
	}

	format := sla.PCMFormat{
		SampleRate: cmd.Int("sample-rate"),
		BitDepth:   bitDepth,
		Channels:   uint(cmd.Int("channels")), //nolint:gosec // CLI value is 1-8
	}

	return pcm, format, nil
}

func writeSLA(output string, pcm []byte, format sla.PCMFormat) error {
	if output == "-" {
		if err := sla.Encode(os.Stdout, pcm, format); err != nil {
			return fmt.Errorf("encoding: %w", err)
		}

		return nil
	}

	file, err := os.Create(output) //nolint:gosec // CLI tool creates user-specified output files
	if err != nil {
		return fmt.Errorf("creating output file: %w", err)
	}
	defer file.Close()

	if err := sla.Encode(file, pcm, format); err != nil {
		return fmt.Errorf("encoding: %w", err)
	}

	return nil
}
