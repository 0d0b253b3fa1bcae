package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"pawluxe/internal/config"
	"pawluxe/internal/deps"
	"pawluxe/internal/preflight"
	"pawluxe/internal/store"
)

type statusReport struct {
	Database     string                  `json:"database_path"`
	Dependencies []deps.Status           `json:"dependencies"`
	Directories  []preflight.Result      `json:"directories"`
	Detector     *preflight.Result       `json:"detector,omitempty"`
	Counts       store.Counts            `json:"counts"`
	Jobs         map[store.JobStatus]int `json:"jobs"`
}

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	var probeDetector bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Check dependencies, directories and database contents",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, st *store.Store) error {
				report, err := buildStatusReport(cmd.Context(), cfg, st, probeDetector)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, report)
				}
				renderStatus(cmd, report)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	cmd.Flags().BoolVar(&probeDetector, "probe-detector", true, "Contact the detection endpoint")
	return cmd
}

func buildStatusReport(ctx context.Context, cfg *config.Config, st *store.Store, probeDetector bool) (statusReport, error) {
	report := statusReport{
		Database:     st.Path(),
		Dependencies: preflight.CheckSystemDeps(cfg),
		Directories:  preflight.RunAll(ctx, cfg),
	}
	if probeDetector && strings.TrimSpace(cfg.Tracking.DetectorURL) != "" {
		result := preflight.CheckDetector(ctx, cfg.Tracking.DetectorURL)
		report.Detector = &result
	}
	counts, err := st.Counts(ctx)
	if err != nil {
		return statusReport{}, err
	}
	report.Counts = counts
	jobs, err := st.JobStats(ctx)
	if err != nil {
		return statusReport{}, err
	}
	report.Jobs = jobs
	return report, nil
}

type checkLevel int

const (
	levelInfo checkLevel = iota
	levelOK
	levelWarn
	levelError
)

var levelTags = map[checkLevel]struct{ tag, color string }{
	levelInfo:  {"INFO", "\x1b[34m"},
	levelOK:    {"OK", "\x1b[32m"},
	levelWarn:  {"WARN", "\x1b[33m"},
	levelError: {"ERROR", "\x1b[31m"},
}

const (
	ansiReset   = "\x1b[0m"
	statusWidth = 22
)

// statusSheet accumulates the sections printed by `pawluxe status`.
type statusSheet struct {
	lines    []string
	colorize bool
}

func newStatusSheet(out io.Writer) *statusSheet {
	sheet := &statusSheet{}
	if f, ok := out.(*os.File); ok {
		fd := f.Fd()
		sheet.colorize = isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
	}
	return sheet
}

func (s *statusSheet) section(title string) {
	if len(s.lines) > 0 {
		s.lines = append(s.lines, "")
	}
	header := "== " + title + " =="
	rule := strings.Repeat("-", len(header))
	if s.colorize {
		header, rule = levelTags[levelInfo].color+header+ansiReset, levelTags[levelInfo].color+rule+ansiReset
	}
	s.lines = append(s.lines, header, rule)
}

func (s *statusSheet) row(label string, level checkLevel, detail string) {
	tag := "[" + levelTags[level].tag + "]"
	if detail != "" {
		tag += " " + detail
	}
	line := fmt.Sprintf("  %-*s %s", statusWidth, label+":", tag)
	if s.colorize {
		line = levelTags[level].color + line + ansiReset
	}
	s.lines = append(s.lines, line)
}

func (s *statusSheet) count(label string, n int) {
	s.row(label, levelInfo, strconv.Itoa(n))
}

func dependencyLevel(dep deps.Status) checkLevel {
	switch {
	case dep.Available:
		return levelOK
	case dep.Optional:
		return levelWarn
	default:
		return levelError
	}
}

// jobLevel flags failed jobs and jobs left running by a crashed worker.
func jobLevel(status store.JobStatus, count int) checkLevel {
	if count > 0 && (status == store.JobFailed || status == store.JobRunning) {
		return levelWarn
	}
	return levelInfo
}

func renderStatus(cmd *cobra.Command, report statusReport) {
	out := cmd.OutOrStdout()
	sheet := newStatusSheet(out)

	sheet.section("Dependencies")
	for _, dep := range report.Dependencies {
		detail := dep.Command
		if !dep.Available {
			detail = dep.Detail
		}
		sheet.row(dep.Name, dependencyLevel(dep), detail)
	}

	sheet.section("Directories")
	for _, r := range report.Directories {
		level := levelOK
		if !r.Passed {
			level = levelError
		}
		sheet.row(r.Name, level, r.Detail)
	}
	if d := report.Detector; d != nil {
		level := levelOK
		if !d.Passed {
			level = levelWarn
		}
		sheet.row(d.Name, level, d.Detail)
	}

	sheet.section("Database")
	sheet.row("Path", levelInfo, report.Database)
	c := report.Counts
	sheet.count("Cameras", c.Cameras)
	sheet.count("Segments", c.Segments)
	sheet.count("Tracks", c.Tracks)
	sheet.count("Observations", c.Observations)
	sheet.count("Associations", c.Associations)
	sheet.count("Appearance profiles", c.Profiles)
	sheet.count("Identities", c.Identities)

	sheet.section("Export jobs")
	for _, status := range store.AllJobStatuses {
		count := report.Jobs[status]
		sheet.row(string(status), jobLevel(status, count), strconv.Itoa(count))
	}

	fmt.Fprintln(out, strings.Join(sheet.lines, "\n"))
}
