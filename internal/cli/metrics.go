package cli

import (
	"bytes"
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/x/ansi"
	"github.com/google/uuid"

	"github.com/kingrea/timeless/internal/assistant"
	"github.com/kingrea/timeless/internal/exporter"
	"github.com/kingrea/timeless/internal/model"
)

const dateLayout = "2006-01-02"

func runMetrics(_ context.Context, a *App, args []string) error {
	if len(args) == 0 {
		return usagef("usage: timeless metrics record|latest|range|export")
	}
	switch args[0] {
	case "record":
		return a.recordMetrics(args[1:])
	case "latest":
		fs := a.newFlagSet("metrics latest")
		if err := parse(fs, args[1:]); err != nil {
			return err
		}
		m, ok, err := a.repo.LatestTeamMetrics()
		if err != nil {
			return err
		}
		if !ok {
			a.printf("No metrics recorded.\n")
			return nil
		}
		a.printMetrics(m)
		return nil
	case "range":
		fs := a.newFlagSet("metrics range")
		from := fs.String("from", "", "first day, YYYY-MM-DD (required)")
		to := fs.String("to", "", "last day, YYYY-MM-DD (defaults to today)")
		if err := parse(fs, args[1:]); err != nil {
			return err
		}
		start, err := parseDay(*from)
		if err != nil {
			return usagef("metrics range: -from: %v", err)
		}
		end := a.today()
		if *to != "" {
			if end, err = parseDay(*to); err != nil {
				return usagef("metrics range: -to: %v", err)
			}
		}
		if end.Before(start) {
			return usagef("metrics range: -to is before -from")
		}
		// Include snapshots stamped at any time on the last day.
		all, err := a.repo.TeamMetricsRange(start, end.Add(24*time.Hour-time.Nanosecond))
		if err != nil {
			return err
		}
		if len(all) == 0 {
			a.printf("No metrics between %s and %s.\n", start.Format(dateLayout), end.Format(dateLayout))
			return nil
		}
		rows := make([][]string, 0, len(all))
		for _, m := range all {
			rows = append(rows, []string{
				m.Date.Format(dateLayout),
				fmt.Sprintf("%.2f", m.HealthScore()),
				fmt.Sprint(m.ActiveMembers),
				fmt.Sprint(m.CompletedTasks),
				fmt.Sprint(m.BlockersCount),
				fmt.Sprintf("%.1f", m.AverageSatisfaction),
				fmt.Sprintf("%.1f", m.Velocity),
			})
		}
		a.table([]string{"DATE", "HEALTH", "ACTIVE", "DONE", "BLOCKERS", "SATISFACTION", "VELOCITY"}, rows)
		return nil
	case "export":
		fs := a.newFlagSet("metrics export")
		out := fs.String("out", a.defaultMetricsPath(), "textfile to write")
		if err := parse(fs, args[1:]); err != nil {
			return err
		}
		m, ok, err := a.repo.LatestTeamMetrics()
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("no metrics recorded; run `timeless metrics record` first")
		}
		members, err := a.repo.ListTeamMembers()
		if err != nil {
			return err
		}
		if err := exporter.WriteTextfile(*out, m, len(members)); err != nil {
			return err
		}
		a.success("Exported metrics to %s", *out)
		return nil
	}
	return usagef("unknown metrics subcommand %q", args[0])
}

func (a *App) recordMetrics(args []string) error {
	fs := a.newFlagSet("metrics record")
	date := fs.String("date", "", "snapshot day, YYYY-MM-DD (defaults to today in the team time zone)")
	active := fs.Uint("active", 0, "active members")
	completed := fs.Uint("completed", 0, "completed tasks")
	blockers := fs.Uint("blockers", 0, "open blockers")
	satisfaction := fs.Float64("satisfaction", 0, "average satisfaction, 0-10")
	velocity := fs.Float64("velocity", 0, "velocity")
	if err := parse(fs, args); err != nil {
		return err
	}
	day := a.today()
	if *date != "" {
		var err error
		if day, err = parseDay(*date); err != nil {
			return usagef("metrics record: -date: %v", err)
		}
	}
	if *satisfaction < 0 || *satisfaction > 10 {
		return usagef("metrics record: -satisfaction must be between 0 and 10")
	}
	if *velocity < 0 {
		return usagef("metrics record: -velocity must be >= 0")
	}
	for _, c := range []struct {
		name  string
		value uint
	}{{"active", *active}, {"completed", *completed}, {"blockers", *blockers}} {
		if uint64(c.value) > math.MaxUint32 {
			return usagef("metrics record: -%s must be <= %d", c.name, uint64(math.MaxUint32))
		}
	}
	m := model.NewTeamMetrics(day)
	m.ActiveMembers = uint32(*active)
	m.CompletedTasks = uint32(*completed)
	m.BlockersCount = uint32(*blockers)
	m.AverageSatisfaction = *satisfaction
	m.Velocity = *velocity
	if err := a.repo.SaveTeamMetrics(m); err != nil {
		return err
	}
	if m.HasConcerningMetrics() {
		a.journal.Warn("metrics for %s recorded, health %.1f needs attention", day.Format(dateLayout), m.HealthScore())
	} else {
		a.journal.Info("metrics for %s recorded, health %.1f", day.Format(dateLayout), m.HealthScore())
	}
	a.success("Recorded metrics for %s (health %.2f/10)", day.Format(dateLayout), m.HealthScore())
	return nil
}

func (a *App) printMetrics(m model.TeamMetrics) {
	a.heading("Team metrics · " + m.Date.Format(dateLayout))
	a.printf("  Health score:         %s\n", healthLabel(m.HealthScore()))
	a.printf("  Active members:       %d\n", m.ActiveMembers)
	a.printf("  Completed tasks:      %d\n", m.CompletedTasks)
	a.printf("  Blockers:             %d\n", m.BlockersCount)
	a.printf("  Average satisfaction: %.1f/10\n", m.AverageSatisfaction)
	a.printf("  Velocity:             %.1f\n", m.Velocity)
}

func healthLabel(score float64) string {
	text := fmt.Sprintf("%.2f/10", score)
	switch {
	case score < 4:
		return failStyle.Render(text)
	case score < 7:
		return warnStyle.Render(text)
	}
	return okStyle.Render(text)
}

const (
	reportSummary  = "summary"
	reportAnalysis = "analysis"
)

func runReport(ctx context.Context, a *App, args []string) error {
	fs := a.newFlagSet("report")
	kind := fs.String("type", reportSummary, "summary, or analysis (summary plus the assistant's analysis)")
	withAssistant := fs.Bool("assistant", false, "same as -type analysis")
	out := fs.String("out", "", "write the report to this file instead of stdout")
	if err := parse(fs, args); err != nil {
		return err
	}
	reportType := strings.ToLower(strings.TrimSpace(*kind))
	if *withAssistant {
		reportType = reportAnalysis
	}
	if reportType != reportSummary && reportType != reportAnalysis {
		return usagef("report: unknown -type %q (want %s or %s)", *kind, reportSummary, reportAnalysis)
	}
	m, ok, err := a.repo.LatestTeamMetrics()
	if err != nil {
		return err
	}
	if !ok {
		if *out != "" {
			return fmt.Errorf("no metrics recorded; run `timeless metrics record` first")
		}
		a.printf("No metrics recorded. Run `timeless metrics record` first.\n")
		return nil
	}
	if *out == "" {
		return a.renderReport(ctx, m, reportType)
	}

	var buf bytes.Buffer
	stdout := a.env.Stdout
	a.env.Stdout = &buf
	err = a.renderReport(ctx, m, reportType)
	a.env.Stdout = stdout
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(*out), 0o755); err != nil {
		return fmt.Errorf("report: create %s: %w", filepath.Dir(*out), err)
	}
	if err := os.WriteFile(*out, []byte(ansi.Strip(buf.String())), 0o644); err != nil {
		return fmt.Errorf("report: write %s: %w", *out, err)
	}
	a.journal.Info("%s report written to %s", reportType, *out)
	a.success("Wrote %s report to %s", reportType, *out)
	return nil
}

// renderReport prints the report for m through a.printf.
func (a *App) renderReport(ctx context.Context, m model.TeamMetrics, reportType string) error {
	a.heading(fmt.Sprintf("%s · %s report · %s", a.cfg.Team.Name, reportType, a.now().In(a.cfg.Location()).Format("2006-01-02 15:04 MST")))
	a.printMetrics(m)
	a.printf("\n")
	if m.HasConcerningMetrics() {
		a.warn("Metrics need attention:")
		if m.AverageSatisfaction < 5 {
			a.printf("  - satisfaction %.1f is below 5\n", m.AverageSatisfaction)
		}
		if m.ActiveMembers > 0 && m.BlockerRatio() > 0.5 {
			a.printf("  - %.2f blockers per active member\n", m.BlockerRatio())
		}
		if m.Velocity < 10 {
			a.printf("  - velocity %.1f is below 10\n", m.Velocity)
		}
	} else {
		a.success("No concerning metrics")
	}

	updates, err := a.repo.RecentStatusUpdates(defaultListLimit)
	if err != nil {
		return err
	}
	blocked := 0
	for _, u := range updates {
		if u.HasBlockers() {
			blocked++
		}
	}
	a.printf("  %d of the last %d status updates report blockers\n", blocked, len(updates))

	if reportType != reportAnalysis {
		return nil
	}
	tc, err := assistant.BuildTeamContext(a.repo)
	if err != nil {
		return err
	}
	prompt, err := assistant.AnalysisPrompt(tc)
	if err != nil {
		return err
	}
	analysis, err := a.assistant.Send(ctx, prompt)
	if err != nil {
		return assistantError(err)
	}
	a.printf("\n")
	a.heading("Assistant analysis")
	a.printf("%s\n", analysis)
	return nil
}

func runDecisions(_ context.Context, a *App, args []string) error {
	fs := a.newFlagSet("decisions")
	limit := fs.Int("limit", defaultListLimit, "maximum number of decisions")
	if err := parse(fs, args); err != nil {
		return err
	}
	decisions, err := a.repo.RecentAIDecisions(*limit)
	if err != nil {
		return err
	}
	if len(decisions) == 0 {
		a.printf("No decisions recorded.\n")
		return nil
	}
	a.heading(fmt.Sprintf("Decisions (%d)", len(decisions)))
	for _, d := range decisions {
		confidence := fmt.Sprintf("%.0f%%", d.Confidence*100)
		if d.IsHighConfidence() {
			confidence = okStyle.Render(confidence)
		}
		a.printf("%s  %s  %s  %s\n", d.ID, d.CreatedAt.Format("2006-01-02 15:04"), d.DecisionType, confidence)
		a.printf("    %s\n", d.Recommendation)
		if d.Outcome != nil {
			a.printf("    outcome: %s\n", *d.Outcome)
		}
	}
	return nil
}

func runDecideOutcome(_ context.Context, a *App, args []string) error {
	fs := a.newFlagSet("decide-outcome")
	if err := parse(fs, args); err != nil {
		return err
	}
	if fs.NArg() < 2 {
		return usagef("usage: timeless decide-outcome <decision-id> <outcome>")
	}
	id, err := uuid.Parse(fs.Arg(0))
	if err != nil {
		return usagef("invalid decision id %q", fs.Arg(0))
	}
	decision, ok, err := a.repo.GetAIDecision(id)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("no decision with id %s", id)
	}
	decision.SetOutcome(strings.Join(fs.Args()[1:], " "))
	if err := a.repo.SaveAIDecision(decision); err != nil {
		return err
	}
	a.journal.Info("outcome recorded for decision %s", shortID(decision.ID))
	a.success("Recorded outcome for %s", decision.ID)
	return nil
}

// today is the current calendar day in the team time zone, as UTC midnight.
func (a *App) today() time.Time {
	now := a.now().In(a.cfg.Location())
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}

func parseDay(value string) (time.Time, error) {
	return time.ParseInLocation(dateLayout, strings.TrimSpace(value), time.UTC)
}

func (a *App) defaultMetricsPath() string {
	return filepath.Join(a.projectDir, "metrics", "timeless.prom")
}
