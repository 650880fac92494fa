package automation

import (
	"context"
	"fmt"
	"time"

	"github.com/kingrea/timeless/internal/assistant"
	"github.com/kingrea/timeless/internal/logbook"
	"github.com/kingrea/timeless/internal/logging"
	"github.com/kingrea/timeless/internal/model"
)

// Repository is the persistence the runner reads and writes.
type Repository interface {
	assistant.TeamReader
	SaveAIDecision(decision model.AIDecision) error
}

// Backups creates snapshots and reports the latest one.
type Backups interface {
	Create() (string, error)
	Latest() (string, time.Time, bool, error)
}

// Deps wires the runner to the rest of the application. Assistant, Journal
// and Logger may be nil.
type Deps struct {
	Repo           Repository
	Backups        Backups
	Assistant      assistant.Client
	Journal        *logbook.Logbook
	Logger         *logging.Logger
	BackupEnabled  bool
	BackupInterval time.Duration
	// MetricsPath is where export_metrics writes when the action has no path param.
	MetricsPath string
	Now         func() time.Time
}

// Snapshot is the team state every condition of one run is evaluated against.
type Snapshot struct {
	Now        time.Time
	Metrics    *model.TeamMetrics
	Members    int
	LastBackup time.Time
	HasBackup  bool
}

// Status is the outcome of one rule.
type Status string

const (
	StatusCompleted Status = "completed"
	StatusSkipped   Status = "skipped"
	StatusFailed    Status = "failed"
)

// ActionResult records what one action produced.
type ActionResult struct {
	Kind   ActionKind
	Output string
	Err    error
}

// RuleResult records the outcome of one rule.
type RuleResult struct {
	Rule    string
	Status  Status
	Detail  string
	Actions []ActionResult
}

type conditionFunc func(Condition, Snapshot) bool

type actionFunc func(context.Context, Action, Snapshot) (string, error)

// Runner evaluates rules with explicit condition and action handler tables.
type Runner struct {
	deps       Deps
	conditions map[ConditionKind]conditionFunc
	actions    map[ActionKind]actionFunc
}

// NewRunner builds the handler tables for deps.
func NewRunner(deps Deps) *Runner {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.BackupInterval <= 0 {
		deps.BackupInterval = 24 * time.Hour
	}
	r := &Runner{deps: deps}
	r.conditions = map[ConditionKind]conditionFunc{
		ConditionAlways:             func(Condition, Snapshot) bool { return true },
		ConditionConcerningMetrics:  concerningMetrics,
		ConditionHealthBelow:        healthBelow,
		ConditionBlockersRatioAbove: blockersRatioAbove,
		ConditionBackupDue:          r.backupDue,
	}
	r.actions = map[ActionKind]actionFunc{
		ActionCreateBackup:   r.createBackup,
		ActionRecordDecision: r.recordDecision,
		ActionAskAssistant:   r.askAssistant,
		ActionExportMetrics:  r.exportMetrics,
		ActionJournal:        r.journal,
	}
	return r
}

// Validate checks the rules and that every kind they use has a handler.
func (r *Runner) Validate(rules []Rule) error {
	if err := Validate(rules); err != nil {
		return err
	}
	for _, rule := range rules {
		for _, c := range rule.When {
			if _, ok := r.conditions[c.Kind]; !ok {
				return fmt.Errorf("rule %s: no handler for condition %s", rule.Name, c.Kind)
			}
		}
		for _, a := range rule.Then {
			if _, ok := r.actions[a.Kind]; !ok {
				return fmt.Errorf("rule %s: no handler for action %s", rule.Name, a.Kind)
			}
		}
	}
	return nil
}

// Snapshot reads the state rules are evaluated against.
func (r *Runner) Snapshot() (Snapshot, error) {
	snap := Snapshot{Now: r.deps.Now().UTC()}
	if r.deps.Repo != nil {
		metrics, ok, err := r.deps.Repo.LatestTeamMetrics()
		if err != nil {
			return snap, fmt.Errorf("automation: latest metrics: %w", err)
		}
		if ok {
			snap.Metrics = &metrics
		}
		members, err := r.deps.Repo.ListTeamMembers()
		if err != nil {
			return snap, fmt.Errorf("automation: members: %w", err)
		}
		snap.Members = len(members)
	}
	if r.deps.Backups != nil {
		_, last, ok, err := r.deps.Backups.Latest()
		if err != nil {
			return snap, fmt.Errorf("automation: latest backup: %w", err)
		}
		snap.LastBackup, snap.HasBackup = last, ok
	}
	return snap, nil
}

// Run evaluates every rule against one snapshot. Actions of a rule run in
// order and the rule stops at its first failing action; later rules still run.
func (r *Runner) Run(ctx context.Context, rules []Rule) ([]RuleResult, error) {
	if err := r.Validate(rules); err != nil {
		return nil, err
	}
	snap, err := r.Snapshot()
	if err != nil {
		return nil, err
	}
	results := make([]RuleResult, 0, len(rules))
	for _, rule := range rules {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		results = append(results, r.runRule(ctx, rule, snap))
	}
	return results, nil
}

func (r *Runner) runRule(ctx context.Context, rule Rule, snap Snapshot) RuleResult {
	result := RuleResult{Rule: rule.Name}
	if rule.Disabled {
		result.Status, result.Detail = StatusSkipped, "disabled"
		return result
	}
	for _, cond := range rule.When {
		if !r.conditions[cond.Kind](cond, snap) {
			result.Status, result.Detail = StatusSkipped, fmt.Sprintf("%s not met", cond.Kind)
			r.deps.Logger.Debugf("automation: %s skipped, %s", rule.Name, result.Detail)
			return result
		}
	}
	for _, action := range rule.Then {
		out, err := r.actions[action.Kind](ctx, action, snap)
		result.Actions = append(result.Actions, ActionResult{Kind: action.Kind, Output: out, Err: err})
		if err != nil {
			result.Status, result.Detail = StatusFailed, fmt.Sprintf("%s: %v", action.Kind, err)
			r.deps.Logger.Warnf("automation: %s failed at %s: %v", rule.Name, action.Kind, err)
			r.deps.Journal.Error("automation %s failed at %s: %v", rule.Name, action.Kind, err)
			return result
		}
	}
	result.Status = StatusCompleted
	r.deps.Logger.Infof("automation: %s completed (%d actions)", rule.Name, len(rule.Then))
	return result
}
