// Package main provides the sla CLI for encoding, decoding, inspecting, and
// playing back SLA audio streams, plus transcoding the foreign formats this
// module can already decode into SLA.
package main

import (
	"context"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/mycophonic/primordium/app"

	"github.com/mycophonic/sla/internal/slalog"
	"github.com/mycophonic/sla/version"
)

func main() {
	ctx := context.Background()
	app.New(ctx, version.Name())

	log := slalog.Default()

	appl := &cli.Command{
		Name:    version.Name(),
		Usage:   "Audio decoding cli",
		Version: version.Version() + " (" + version.Commit() + " - " + version.Date() + ")",
		Commands: []*cli.Command{
			decodeCommand(),
			encodeCommand(),
			infoCommand(),
			playCommand(),
		},
	}

	if err := appl.Run(ctx, os.Args); err != nil {
		log.Error().Err(err).Msg("command failed")

		os.Exit(1)
	}
}
