package main

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/mycophonic/sla"
)

func infoCommand() *cli.Command {
	return &cli.Command{
		Name:      "info",
		Usage:     "Print an SLA file's header without decoding any block",
		ArgsUsage: "<file>",
		Action:    runInfo,
	}
}

func runInfo(_ context.Context, cmd *cli.Command) error {
	if cmd.NArg() != 1 {
		return fmt.Errorf("%w: got %d", errInvalidArgCount, cmd.NArg())
	}

	path := cmd.Args().First()

	file, err := os.Open(path) //nolint:gosec // CLI tool opens user-specified audio files
	if err != nil {
		return fmt.Errorf("opening %s: %w", path, err)
	}
	defer file.Close()

	buf := make([]byte, sla.HeaderSize)
	if _, err := file.Read(buf); err != nil {
		return fmt.Errorf("reading header: %w", err)
	}

	header, err := sla.DecodeHeader(buf)
	if err != nil {
		return fmt.Errorf("decoding header: %w", err)
	}

	fmt.Printf("sample rate:     %d Hz\n", header.Format.SampleRate)
	fmt.Printf("bit depth:       %d\n", header.Format.BitDepth)
	fmt.Printf("channels:        %d\n", header.Format.Channels)
	fmt.Printf("samples/channel: %d\n", header.NumSamples)
	fmt.Printf("max block size:  %d samples\n", header.MaxBlockSizeSamples)
	fmt.Printf("channel process: %s\n", header.ChannelProcessMethod)
	fmt.Printf("parcor order:    %d\n", header.ParcorOrder)
	fmt.Printf("long-term order: %d\n", header.LongTermOrder)
	fmt.Printf("lms order:       %d\n", header.LMSOrder)
	fmt.Printf("offset lshift:   %d\n", header.OffsetLshift)

	return nil
}
