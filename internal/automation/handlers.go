package automation

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/kingrea/timeless/internal/assistant"
	"github.com/kingrea/timeless/internal/exporter"
	"github.com/kingrea/timeless/internal/logbook"
	"github.com/kingrea/timeless/internal/model"
)

const (
	defaultDecisionType = "team_health"
	assistantConfidence = 0.7
)

var errNoMetrics = errors.New("no team metrics recorded")

func concerningMetrics(_ Condition, snap Snapshot) bool {
	return snap.Metrics != nil && snap.Metrics.HasConcerningMetrics()
}

func healthBelow(c Condition, snap Snapshot) bool {
	return snap.Metrics != nil && snap.Metrics.HealthScore() < c.Threshold
}

func blockersRatioAbove(c Condition, snap Snapshot) bool {
	return snap.Metrics != nil && snap.Metrics.BlockerRatio() > c.Threshold
}

func (r *Runner) backupDue(_ Condition, snap Snapshot) bool {
	if !r.deps.BackupEnabled || r.deps.Backups == nil {
		return false
	}
	if !snap.HasBackup {
		return true
	}
	return snap.Now.Sub(snap.LastBackup) >= r.deps.BackupInterval
}

func (r *Runner) createBackup(context.Context, Action, Snapshot) (string, error) {
	if r.deps.Backups == nil {
		return "", fmt.Errorf("backups are not configured")
	}
	name, err := r.deps.Backups.Create()
	if err != nil {
		return "", err
	}
	r.deps.Journal.Info("backup %s created by automation", name)
	return fmt.Sprintf("created %s", name), nil
}

func (r *Runner) recordDecision(ctx context.Context, a Action, snap Snapshot) (string, error) {
	if r.deps.Repo == nil {
		return "", fmt.Errorf("repository is not configured")
	}
	if snap.Metrics == nil {
		return "", errNoMetrics
	}
	decisionType := a.Param("type", defaultDecisionType)
	summary := describeMetrics(*snap.Metrics)

	recommendation, confidence := heuristicRecommendation(*snap.Metrics)
	source := "heuristic"
	if r.deps.Assistant != nil {
		prompt, err := assistant.DecisionPrompt(decisionType, summary)
		if err != nil {
			return "", err
		}
		reply, err := r.deps.Assistant.Send(ctx, prompt)
		switch {
		case err == nil && reply != "":
			recommendation, confidence, source = reply, assistantConfidence, "assistant"
		case errors.Is(err, assistant.ErrDisabled):
		case err != nil:
			r.deps.Logger.Warnf("automation: assistant unavailable, using heuristic: %v", err)
		}
	}
	decision := model.NewAIDecision(decisionType, summary, recommendation, confidence)
	if err := r.deps.Repo.SaveAIDecision(decision); err != nil {
		return "", err
	}
	r.deps.Journal.Info("decision %s recorded (%s, %s)", decision.ID, decisionType, source)
	return fmt.Sprintf("recorded decision %s from %s", decision.ID, source), nil
}

func (r *Runner) askAssistant(ctx context.Context, a Action, _ Snapshot) (string, error) {
	if r.deps.Assistant == nil {
		return "", assistant.ErrDisabled
	}
	prompt := a.Param("prompt", "")
	if prompt == "" {
		if r.deps.Repo == nil {
			return "", fmt.Errorf("repository is not configured")
		}
		tc, err := assistant.BuildTeamContext(r.deps.Repo)
		if err != nil {
			return "", err
		}
		if prompt, err = assistant.AnalysisPrompt(tc); err != nil {
			return "", err
		}
	}
	reply, err := r.deps.Assistant.Send(ctx, prompt)
	if err != nil {
		return "", err
	}
	r.deps.Journal.Info("assistant replied to automation prompt (%d chars)", len(reply))
	return reply, nil
}

func (r *Runner) exportMetrics(_ context.Context, a Action, snap Snapshot) (string, error) {
	if snap.Metrics == nil {
		return "", errNoMetrics
	}
	path := a.Param("path", r.deps.MetricsPath)
	if path == "" {
		return "", fmt.Errorf("no export path configured")
	}
	if err := exporter.WriteTextfile(path, *snap.Metrics, snap.Members); err != nil {
		return "", err
	}
	return fmt.Sprintf("exported metrics to %s", path), nil
}

func (r *Runner) journal(_ context.Context, a Action, _ Snapshot) (string, error) {
	if r.deps.Journal == nil {
		return "", fmt.Errorf("journal is not configured")
	}
	level, err := logbook.ParseLevel(a.Param("level", ""))
	if err != nil {
		return "", err
	}
	message := a.Param("message", "")
	if err := r.deps.Journal.Append(level, message); err != nil {
		return "", err
	}
	return message, nil
}

func describeMetrics(m model.TeamMetrics) string {
	return fmt.Sprintf("metrics for %s: health %.2f/10, %d active members, %d completed tasks, %d blockers (ratio %.2f), satisfaction %.1f/10, velocity %.1f",
		m.Date.Format("2006-01-02"), m.HealthScore(), m.ActiveMembers, m.CompletedTasks,
		m.BlockersCount, m.BlockerRatio(), m.AverageSatisfaction, m.Velocity)
}

// heuristicRecommendation is used when no assistant reply is available.
func heuristicRecommendation(m model.TeamMetrics) (string, float64) {
	score := m.HealthScore()
	var parts []string
	var confidence float64
	switch {
	case score < 4:
		parts = append(parts, fmt.Sprintf("Team health is critical (%.1f/10). Pause new commitments and run a retrospective this week.", score))
		confidence = 0.85
	case score < 6:
		parts = append(parts, fmt.Sprintf("Team health is low (%.1f/10). Review workload and rebalance assignments.", score))
		confidence = 0.75
	case score < 8:
		parts = append(parts, fmt.Sprintf("Team health is fair (%.1f/10). Watch the trend at the next check-in.", score))
		confidence = 0.6
	default:
		parts = append(parts, fmt.Sprintf("Team health is good (%.1f/10). Keep the current cadence.", score))
		confidence = 0.5
	}
	if m.ActiveMembers > 0 && m.BlockerRatio() > 0.5 {
		parts = append(parts, fmt.Sprintf("Blocker ratio is %.2f; assign an owner to every open blocker.", m.BlockerRatio()))
	}
	if m.AverageSatisfaction < 5 {
		parts = append(parts, "Satisfaction is below 5; schedule one-on-ones.")
	}
	if m.Velocity < 10 {
		parts = append(parts, "Velocity is stalled; check for hidden dependencies.")
	}
	return strings.Join(parts, " "), confidence
}
