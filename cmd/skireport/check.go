package main

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/couchcryptid/ski-report-service/internal/domain"
)

// phase tracks pass/fail for a check phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

// runCheck checks the report servers, the alert store and each configured
// resort, then prints a pass/fail summary.
func runCheck(c *cli.Context) error {
	svc, err := setup()
	if err != nil {
		return err
	}
	defer svc.close()

	fmt.Println("=== Ski Report Service Check ===")
	fmt.Println()

	phases := []*phase{
		checkServer(c, svc),
		checkAlertStore(c, svc),
		checkResorts(c, svc),
	}

	allPassed := true
	for _, p := range phases {
		status := "\033[32mPASS\033[0m"
		if !p.passed() {
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(p.errors))
			allPassed = false
		}
		fmt.Printf("  %-32s %s\n", p.name, status)
	}

	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Printf("\n--- %s ---\n", p.name)
		for _, e := range p.errors {
			fmt.Printf("  %s\n", e)
		}
	}

	if !allPassed {
		return cli.Exit("", ExitDataError)
	}
	return nil
}

func checkServer(c *cli.Context, svc *service) *phase {
	p := &phase{name: "Report server"}

	url := svc.server.URL(c.Context)
	info := svc.server.Info(c.Context)
	if info.ServerVersion == domain.UnknownVersion {
		p.errorf("no report server reachable among %v", svc.cfg.ReportServers)
		return p
	}
	fmt.Printf("server:   %s (version %d, min supported %d)\n", url, info.ServerVersion, info.MinSupportedVersion)
	patterns := info.AlertPatterns()
	fmt.Printf("patterns: %d alert expressions\n", len(patterns))
	for _, pat := range patterns {
		fmt.Printf("          %s\n", pat)
	}
	if len(patterns) == 0 {
		p.errorf("server published no alert expressions")
	}
	return p
}

func checkAlertStore(c *cli.Context, svc *service) *phase {
	p := &phase{name: "Alert store"}

	m, err := svc.openAlerts(c.Context)
	if err != nil {
		p.errorf("open %s: %v", svc.cfg.AlertDBPath, err)
		return p
	}
	defer m.Close()

	n, err := m.Store().Count(c.Context)
	if err != nil {
		p.errorf("count alerts: %v", err)
		return p
	}
	fmt.Printf("alerts:   %d stored in %s\n", n, svc.cfg.AlertDBPath)
	return p
}

func checkResorts(c *cli.Context, svc *service) *phase {
	p := &phase{name: "Resort reports"}

	if len(svc.cfg.Resorts) == 0 {
		p.errorf("no resorts configured (set RESORTS)")
		return p
	}
	for _, r := range svc.cfg.Resorts {
		report := svc.loader.LoadReportNoCache(c.Context, r)
		if report.HasErrors() {
			p.errorf("%s: %s", r.Name(), report.NonLocalizedError())
			continue
		}
		fmt.Printf("resort:   %-24s fresh %s\n", r.Name(), report.FreshString())
	}
	return p
}
