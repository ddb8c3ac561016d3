package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/couchcryptid/ski-report-service/internal/config"
	"github.com/couchcryptid/ski-report-service/internal/domain"
)

func outputJSON(v any) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

func runReport(c *cli.Context) error {
	svc, err := setup()
	if err != nil {
		return err
	}
	defer svc.close()

	targets := svc.cfg.Resorts
	if c.NArg() > 0 {
		targets, err = config.ParseResorts(strings.Join(c.Args().Slice(), ";"))
		if err != nil {
			return cli.Exit(err.Error(), ExitUsageError)
		}
	}
	if len(targets) == 0 {
		return cli.Exit("Usage: skireport report <label=path>... (or set RESORTS)", ExitUsageError)
	}

	reports := make([]domain.Report, 0, len(targets))
	for _, r := range targets {
		if c.Bool("nocache") {
			reports = append(reports, svc.loader.LoadReportNoCache(c.Context, r))
		} else {
			reports = append(reports, svc.loader.LoadReport(c.Context, r))
		}
	}

	if c.Bool("json") {
		return outputJSON(reports)
	}
	for _, r := range reports {
		printReport(r, svc.cfg.AlertThreshold)
	}
	return nil
}

func printReport(r domain.Report, threshold domain.Threshold) {
	fmt.Printf("%s\n", r.Resort.Name())
	if r.HasErrors() {
		fmt.Printf("  error: %s\n\n", r.NonLocalizedError())
		return
	}
	if r.Date != "" {
		fmt.Printf("  date:   %s\n", r.Date)
	}
	fmt.Printf("  fresh:  %s", r.FreshString())
	if r.MeetsPreference(threshold) {
		fmt.Printf(" (meets %s)", threshold)
	}
	fmt.Println()
	fmt.Printf("  depth:  %s\n", r.SnowDepthsString())
	if daily := r.DailyDetails(); daily != "" {
		fmt.Printf("  daily:  %s\n", daily)
	}
	fmt.Printf("  trails: %s\n", r.TrailsString())
	fmt.Printf("  lifts:  %s\n", r.LiftsString())
	for _, w := range r.Weather {
		fmt.Printf("  %s: %s\n", w.When, w.Description)
	}
	if r.HasGeo() {
		fmt.Printf("  map:    %s\n", r.GeoURI())
	}
	if r.HasLocationComments() {
		fmt.Printf("  note:   %s\n", r.LocationComments)
	}
	fmt.Println()
}

func runRegions(c *cli.Context) error {
	svc, err := setup()
	if err != nil {
		return err
	}
	defer svc.close()

	regions, err := svc.finder.Regions(c.Context)
	if err != nil {
		return err
	}
	for _, r := range regions {
		fmt.Println(r)
	}
	return nil
}

func runLocations(c *cli.Context) error {
	if c.NArg() < 1 {
		return cli.Exit("Usage: skireport locations <region>", ExitUsageError)
	}
	svc, err := setup()
	if err != nil {
		return err
	}
	defer svc.close()

	locations, err := svc.finder.Locations(c.Context, c.Args().First())
	if err != nil {
		return err
	}
	for _, l := range locations {
		fmt.Printf("%s=%s\n", l.Label, l.Path)
	}
	return nil
}

func runAlerts(c *cli.Context) error {
	svc, err := setup()
	if err != nil {
		return err
	}
	defer svc.close()

	m, err := svc.openAlerts(c.Context)
	if err != nil {
		return err
	}
	defer m.Close()

	resorts, err := m.AlertResorts(c.Context)
	if err != nil {
		return err
	}
	if len(resorts) == 0 {
		fmt.Println("No snow alerts")
		return nil
	}
	for _, r := range resorts {
		fmt.Printf("%s (%d alerts, %d unacknowledged)\n", r.Label, r.Alerts, r.Unacked)
		alerts, err := m.Alerts(c.Context, r.ID)
		if err != nil {
			return err
		}
		for _, a := range alerts {
			mark := " "
			if !a.Acked {
				mark = "*"
			}
			fmt.Printf("  %s %s  %s\n", mark, a.Time.Local().Format("Mon Jan 2 15:04"), a.Description)
		}
	}
	return nil
}

func runAck(c *cli.Context) error {
	svc, err := setup()
	if err != nil {
		return err
	}
	defer svc.close()

	m, err := svc.openAlerts(c.Context)
	if err != nil {
		return err
	}
	defer m.Close()

	n, err := m.Acknowledge(c.Context)
	if err != nil {
		return err
	}
	fmt.Printf("Acknowledged %d alerts\n", n)
	return nil
}
