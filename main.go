package main

import (
	"fmt"
	"os"

	"github.com/statutelab/lexharvest/internal/harvest"
	"github.com/statutelab/lexharvest/pkg/db"
	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:  "lexharvest",
		Usage: "Harvest statutory codes: hierarchy, section manifest, and full text with version resolution",
		Commands: []*cli.Command{
			{
				Name:   "harvest",
				Usage:  "Run the full pipeline for the configured corpora",
				Action: harvest.HarvestAction,
				Flags: append(commonFlags(),
					&cli.IntFlag{
						Name:  "workers",
						Usage: "Extraction worker count (overrides config)",
					},
					&cli.BoolFlag{
						Name:  "force-fetch",
						Usage: "Ignore cached raw pages and refetch everything",
					},
					&cli.StringFlag{
						Name:  "output-dir",
						Usage: "Artifact output directory (overrides config)",
					},
				),
			},
			{
				Name:   "reconcile",
				Usage:  "Retry the gap of a previous harvest until complete or attempts run out",
				Action: harvest.ReconcileAction,
				Flags: append(commonFlags(),
					&cli.IntFlag{
						Name:  "max-attempts",
						Usage: "Retry passes before reporting a residual gap (overrides config)",
					},
					&cli.BoolFlag{
						Name:  "force-fetch",
						Usage: "Ignore cached raw pages and refetch everything",
					},
				),
			},
			{
				Name:   "status",
				Usage:  "Show per-corpus completion status",
				Action: harvest.StatusAction,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "db",
						Value: db.DefaultDBName,
						Usage: "Path to the bookkeeping database",
					},
					&cli.StringFlag{
						Name:  "corpus",
						Usage: "Limit to one corpus id",
					},
					&cli.BoolFlag{
						Name:  "quiet",
						Usage: "Only log errors",
					},
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func commonFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:  "config",
			Value: "config.yaml",
			Usage: "Path to the corpus configuration file",
		},
		&cli.StringFlag{
			Name:  "db",
			Value: db.DefaultDBName,
			Usage: "Path to the bookkeeping database",
		},
		&cli.StringFlag{
			Name:  "corpus",
			Usage: "Limit to one corpus id (default: all configured)",
		},
		&cli.BoolFlag{
			Name:  "quiet",
			Usage: "Only log errors",
		},
	}
}
