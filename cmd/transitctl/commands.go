// TransitPulse - Transit Delay Feature Layers and Regional Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/transitpulse

package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/goccy/go-json"
	"github.com/urfave/cli/v2"

	"github.com/tomtom215/transitpulse/internal/config"
	"github.com/tomtom215/transitpulse/internal/ingest"
	"github.com/tomtom215/transitpulse/internal/logging"
	"github.com/tomtom215/transitpulse/internal/models"
)

func clientFrom(c *cli.Context) (*Client, error) {
	return NewClient(c.String("api"), c.Duration("timeout"))
}

func refreshCommand() *cli.Command {
	return &cli.Command{
		Name:  "refresh",
		Usage: "Refresh the feature layers",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "layer", Usage: "Refresh a single layer (base, enriched, analytics)"},
			&cli.BoolFlag{Name: "incremental", Usage: "Skip when the raw log has not grown"},
			&cli.BoolFlag{Name: "concurrent", Usage: "Rebuild Base with parallel partitions"},
		},
		Action: func(c *cli.Context) error {
			set := 0
			for _, f := range []bool{c.String("layer") != "", c.Bool("incremental"), c.Bool("concurrent")} {
				if f {
					set++
				}
			}
			if set > 1 {
				return errors.New("--layer, --incremental and --concurrent are mutually exclusive")
			}

			client, err := clientFrom(c)
			if err != nil {
				return err
			}

			var res *models.RefreshResult
			switch {
			case c.String("layer") != "":
				layer := models.Layer(c.String("layer"))
				if !layer.Valid() {
					return fmt.Errorf("unknown layer %q", layer)
				}
				res, err = client.RefreshLayer(c.Context, layer)
			case c.Bool("incremental"):
				res, err = client.RefreshIncremental(c.Context)
			case c.Bool("concurrent"):
				res, err = client.RefreshBaseConcurrent(c.Context)
			default:
				res, err = client.Refresh(c.Context)
			}
			if err != nil {
				return err
			}
			printRefresh(c.App.Writer, res)
			return nil
		},
	}
}

func archiveCommand() *cli.Command {
	return &cli.Command{
		Name:  "archive",
		Usage: "Rebuild Analytics over the retention window; the raw log is never touched",
		Action: func(c *cli.Context) error {
			client, err := clientFrom(c)
			if err != nil {
				return err
			}
			res, err := client.Archive(c.Context)
			if err != nil {
				return err
			}
			fmt.Fprintf(c.App.Writer, "cutoff %s  analytics %d -> %d  raw log %d -> %d  version %d  (%s)\n",
				res.Cutoff.Format(time.RFC3339),
				res.AnalyticsRowsBefore, res.AnalyticsRowsAfter,
				res.RawRowsBefore, res.RawRowsAfter,
				res.Version, res.Duration.Round(time.Millisecond))
			return nil
		},
	}
}

func reloadReferenceCommand() *cli.Command {
	return &cli.Command{
		Name:  "reload-reference",
		Usage: "Re-read routes, trips, stops and regions and re-assign changed stops",
		Action: func(c *cli.Context) error {
			client, err := clientFrom(c)
			if err != nil {
				return err
			}
			res, err := client.ReloadReference(c.Context)
			if err != nil {
				return err
			}
			fmt.Fprintf(c.App.Writer, "%s  version %d  stops changed %d  reassigned %d  unassigned %d\n",
				res.Mode, res.Version, res.StopsChanged, res.Reassigned, res.Unassigned)
			return nil
		},
	}
}

func ledgerCommand() *cli.Command {
	return &cli.Command{
		Name:  "ledger",
		Usage: "Show refresh state per layer",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "json", Usage: "Print raw JSON"},
		},
		Action: func(c *cli.Context) error {
			client, err := clientFrom(c)
			if err != nil {
				return err
			}
			entries, err := client.Ledger(c.Context)
			if err != nil {
				return err
			}
			if c.Bool("json") {
				enc := json.NewEncoder(c.App.Writer)
				enc.SetIndent("", "  ")
				return enc.Encode(entries)
			}
			printLedger(c.App.Writer, entries)
			return nil
		},
	}
}

func publishFeedCommand() *cli.Command {
	return &cli.Command{
		Name:  "publish-feed",
		Usage: "Publish a serialized GTFS-Realtime FeedMessage to the observation stream",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "file", Usage: "Feed file, - for stdin", Required: true},
			&cli.StringFlag{Name: "nats-url", Value: "nats://127.0.0.1:4222", EnvVars: []string{"NATS_URL"}},
			&cli.StringFlag{Name: "subject", Value: "transit.observations", EnvVars: []string{"NATS_SUBJECT"}},
		},
		Action: func(c *cli.Context) error {
			data, err := readInput(c.String("file"))
			if err != nil {
				return err
			}
			pub, err := ingest.NewPublisher(&config.NATSConfig{URL: c.String("nats-url")}, ingest.NewLogger())
			if err != nil {
				return err
			}
			defer pub.Close()

			if err := ingest.PublishFeed(pub, c.String("subject"), data); err != nil {
				return err
			}
			logging.Info().Int("bytes", len(data)).Str("subject", c.String("subject")).Msg("Feed published")
			return nil
		},
	}
}

func readInput(path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(path)
}

func printRefresh(w io.Writer, res *models.RefreshResult) {
	if res == nil {
		return
	}
	if res.Skipped {
		fmt.Fprintf(w, "%s refresh skipped: nothing new in the raw log\n", res.Mode)
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "LAYER\tVERSION\tROWS\tDURATION")
	for _, l := range res.Layers {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%s\n", l.Layer, l.Version, l.Rows, l.Duration.Round(time.Millisecond))
	}
	_ = tw.Flush()
	fmt.Fprintf(w, "%s refresh finished in %s\n", res.Mode, res.Duration.Round(time.Millisecond))
}

func printLedger(w io.Writer, entries []models.LedgerEntry) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "LAYER\tSTATUS\tVERSION\tROWS\tLAST SUCCESS\tERROR")
	for _, e := range entries {
		last := "-"
		if e.LastSuccessTime != nil {
			last = e.LastSuccessTime.Format(time.RFC3339)
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%s\t%s\n", e.Layer, e.Status, e.Version, e.RowsAffected, last, e.ErrorMessage)
	}
	_ = tw.Flush()
}
