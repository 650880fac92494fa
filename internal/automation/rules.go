// Package automation evaluates configured rules against the current team state
// and runs their actions. Condition and action kinds are closed sets; each kind
// maps to exactly one handler.
package automation

import (
	"errors"
	"fmt"
	"strings"
)

// ConditionKind names a predicate over a Snapshot.
type ConditionKind string

const (
	ConditionAlways             ConditionKind = "always"
	ConditionConcerningMetrics  ConditionKind = "concerning_metrics"
	ConditionHealthBelow        ConditionKind = "health_below"
	ConditionBlockersRatioAbove ConditionKind = "blockers_ratio_above"
	ConditionBackupDue          ConditionKind = "backup_due"
)

// ActionKind names something a rule does when its conditions hold.
type ActionKind string

const (
	ActionCreateBackup   ActionKind = "create_backup"
	ActionRecordDecision ActionKind = "record_decision"
	ActionAskAssistant   ActionKind = "ask_assistant"
	ActionExportMetrics  ActionKind = "export_metrics"
	ActionJournal        ActionKind = "journal"
)

// ConditionKinds lists every supported condition.
var ConditionKinds = []ConditionKind{
	ConditionAlways,
	ConditionConcerningMetrics,
	ConditionHealthBelow,
	ConditionBlockersRatioAbove,
	ConditionBackupDue,
}

// ActionKinds lists every supported action.
var ActionKinds = []ActionKind{
	ActionCreateBackup,
	ActionRecordDecision,
	ActionAskAssistant,
	ActionExportMetrics,
	ActionJournal,
}

// Rule fires its actions in order when every condition holds. A rule with no
// conditions always fires.
type Rule struct {
	Name     string      `yaml:"name"`
	Disabled bool        `yaml:"disabled,omitempty"`
	When     []Condition `yaml:"when"`
	Then     []Action    `yaml:"then"`
}

// Condition is one predicate of a rule.
type Condition struct {
	Kind      ConditionKind `yaml:"kind"`
	Threshold float64       `yaml:"threshold,omitempty"`
}

// Action is one step of a rule.
type Action struct {
	Kind   ActionKind        `yaml:"kind"`
	Params map[string]string `yaml:"params,omitempty"`
}

// Param returns a trimmed parameter value or fallback.
func (a Action) Param(key, fallback string) string {
	if v := strings.TrimSpace(a.Params[key]); v != "" {
		return v
	}
	return fallback
}

// Validate checks rule names and kinds without running anything.
func Validate(rules []Rule) error {
	var errs []error
	seen := map[string]struct{}{}
	for i, rule := range rules {
		name := strings.TrimSpace(rule.Name)
		if name == "" {
			errs = append(errs, fmt.Errorf("rules[%d]: name is required", i))
		} else if _, dup := seen[name]; dup {
			errs = append(errs, fmt.Errorf("rules[%d]: duplicate name %q", i, name))
		} else {
			seen[name] = struct{}{}
		}
		for j, cond := range rule.When {
			if err := cond.validate(); err != nil {
				errs = append(errs, fmt.Errorf("rules[%d].when[%d]: %w", i, j, err))
			}
		}
		if len(rule.Then) == 0 {
			errs = append(errs, fmt.Errorf("rules[%d]: at least one action is required", i))
		}
		for j, action := range rule.Then {
			if err := action.validate(); err != nil {
				errs = append(errs, fmt.Errorf("rules[%d].then[%d]: %w", i, j, err))
			}
		}
	}
	return errors.Join(errs...)
}

func (c Condition) validate() error {
	switch c.Kind {
	case ConditionAlways, ConditionConcerningMetrics, ConditionBackupDue:
		return nil
	case ConditionHealthBelow:
		if c.Threshold <= 0 || c.Threshold > 10 {
			return fmt.Errorf("%s threshold must be in (0, 10]", c.Kind)
		}
		return nil
	case ConditionBlockersRatioAbove:
		if c.Threshold < 0 {
			return fmt.Errorf("%s threshold must be >= 0", c.Kind)
		}
		return nil
	}
	return fmt.Errorf("unknown condition kind %q", c.Kind)
}

func (a Action) validate() error {
	switch a.Kind {
	case ActionCreateBackup, ActionRecordDecision, ActionAskAssistant, ActionExportMetrics:
		return nil
	case ActionJournal:
		if a.Param("message", "") == "" {
			return fmt.Errorf("%s requires a message param", a.Kind)
		}
		return nil
	}
	return fmt.Errorf("unknown action kind %q", a.Kind)
}
