// TransitPulse - Transit Delay Feature Layers and Regional Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/transitpulse

// Command transitctl drives a running TransitPulse daemon through its ops
// API and publishes GTFS-Realtime feeds onto the observation stream.
//
//	transitctl refresh                 # full refresh, every layer
//	transitctl refresh --incremental   # skipped when the raw log did not grow
//	transitctl refresh --layer enriched
//	transitctl refresh --concurrent    # parallel Base rebuild
//	transitctl archive
//	transitctl ledger
//	transitctl publish-feed --file feed.pb
package main

import (
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/tomtom215/transitpulse/internal/logging"

	_ "time/tzdata"
)

func main() {
	logging.Init(logging.Config{
		Level:     os.Getenv("LOG_LEVEL"),
		Format:    "console",
		Timestamp: true,
		Output:    os.Stderr,
	})

	if err := newApp().Run(os.Args); err != nil {
		logging.Fatal().Err(err).Send()
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "transitctl",
		Usage: "Operate a TransitPulse daemon",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "api",
				Usage:   "Base URL of the ops API",
				Value:   "http://localhost:8089",
				EnvVars: []string{"TRANSITPULSE_API"},
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Usage: "HTTP timeout; refresh runs can be long",
				Value: 15 * time.Minute,
			},
		},
		Commands: []*cli.Command{
			refreshCommand(),
			archiveCommand(),
			reloadReferenceCommand(),
			ledgerCommand(),
			publishFeedCommand(),
		},
	}
}
