// Command skireport serves and queries ski resort condition reports.
//
// Usage:
//
//	skireport                 # same as "skireport serve"
//	skireport report Alpental=washington.php?location=ALP
//	skireport regions
//	skireport locations Washington
//	skireport alerts
//	skireport ack
//	skireport check
//
// Configuration comes from the environment, optionally seeded from a .env file.
package main

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"
)

const (
	ExitSuccess      = 0
	ExitGeneralError = 1
	ExitUsageError   = 2
	ExitDataError    = 3
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("failed to load .env file", "error", err)
	}

	app := &cli.App{
		Name:   "skireport",
		Usage:  "Fetch ski resort reports and raise snow alerts",
		Action: runServe,
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Run the report controller and HTTP API",
				Action: runServe,
			},
			{
				Name:      "report",
				Usage:     "Fetch and print reports (default: configured RESORTS)",
				ArgsUsage: "[label=path]...",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Print reports as JSON",
					},
					&cli.BoolFlag{
						Name:  "nocache",
						Usage: "Bypass the report server cache",
					},
				},
				Action: runReport,
			},
			{
				Name:   "regions",
				Usage:  "List regions known to the report server",
				Action: runRegions,
			},
			{
				Name:      "locations",
				Usage:     "List locations in a region",
				ArgsUsage: "<region>",
				Action:    runLocations,
			},
			{
				Name:   "alerts",
				Usage:  "List stored snow alerts",
				Action: runAlerts,
			},
			{
				Name:   "ack",
				Usage:  "Acknowledge all snow alerts",
				Action: runAck,
			},
			{
				Name:   "check",
				Usage:  "Probe report servers, the alert store and configured resorts",
				Action: runCheck,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(ExitGeneralError)
	}
}
