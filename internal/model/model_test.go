package model

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestHealthScoreHealthyTeam(t *testing.T) {
	m := NewTeamMetrics(time.Now())
	m.ActiveMembers = 1
	m.CompletedTasks = 2
	m.AverageSatisfaction = 8.5
	m.Velocity = 75
	if got := m.HealthScore(); math.Abs(got-8.65) > 1e-9 {
		t.Fatalf("health score = %v, want 8.65", got)
	}
	if m.HasConcerningMetrics() {
		t.Fatalf("healthy metrics flagged as concerning")
	}
}

func TestConcerningMetrics(t *testing.T) {
	low := NewTeamMetrics(time.Now())
	low.AverageSatisfaction = 3
	low.Velocity = 5
	if !low.HasConcerningMetrics() {
		t.Fatalf("low satisfaction and velocity should be concerning")
	}

	blocked := NewTeamMetrics(time.Now())
	blocked.ActiveMembers = 4
	blocked.BlockersCount = 3
	blocked.AverageSatisfaction = 9
	blocked.Velocity = 50
	if !blocked.HasConcerningMetrics() {
		t.Fatalf("blocker ratio 0.75 should be concerning")
	}
}

func TestHealthScoreCapsVelocityAndBlockers(t *testing.T) {
	m := NewTeamMetrics(time.Now())
	m.ActiveMembers = 2
	m.BlockersCount = 10
	m.AverageSatisfaction = 10
	m.Velocity = 400
	// satisfaction 1.0*0.4 + velocity capped 1.0*0.3 + blockers floored 0*0.3
	if got := m.HealthScore(); math.Abs(got-7) > 1e-9 {
		t.Fatalf("health score = %v, want 7", got)
	}
	empty := NewTeamMetrics(time.Now())
	empty.AverageSatisfaction = 0
	empty.Velocity = 0
	if got := empty.HealthScore(); math.Abs(got-3) > 1e-9 {
		t.Fatalf("empty team health = %v, want 3 (blocker score 1)", got)
	}
}

func TestProjectStatusTransitions(t *testing.T) {
	p := NewProject("Apollo", "launch")
	if !p.IsActive() {
		t.Fatalf("new project should be active")
	}
	before := p.UpdatedAt
	time.Sleep(time.Millisecond)
	p.SetStatus(ProjectOnHold)
	if p.IsActive() || p.Status != ProjectOnHold {
		t.Fatalf("status = %s", p.Status)
	}
	if !p.UpdatedAt.After(before) {
		t.Fatalf("updated_at not refreshed")
	}
	for input, want := range map[string]ProjectStatus{
		"on-hold":   ProjectOnHold,
		"Completed": ProjectCompleted,
		"canceled":  ProjectCancelled,
	} {
		got, err := ParseProjectStatus(input)
		if err != nil || got != want {
			t.Fatalf("ParseProjectStatus(%q) = %s, %v", input, got, err)
		}
	}
	if _, err := ParseProjectStatus("paused"); err == nil {
		t.Fatalf("expected error for unknown status")
	}
}

func TestStatusUpdateHelpers(t *testing.T) {
	u := NewStatusUpdate(uuid.New(), "Working on feature A").WithMood("focused")
	if u.HasBlockers() {
		t.Fatalf("fresh update has no blockers")
	}
	u.AddBlocker("Waiting for API")
	u.AddAchievement("Completed design")
	if !u.HasBlockers() || len(u.Achievements) != 1 || *u.Mood != "focused" {
		t.Fatalf("unexpected update %+v", u)
	}
}

func TestDecisionConfidence(t *testing.T) {
	d := NewAIDecision("task_prioritization", "urgent tasks", "fix bugs first", 0.85)
	if !d.IsHighConfidence() {
		t.Fatalf("0.85 should be high confidence")
	}
	d.SetOutcome("bugs fixed")
	if d.Outcome == nil || *d.Outcome != "bugs fixed" {
		t.Fatalf("outcome not recorded")
	}
	if clamped := NewAIDecision("x", "", "", 1.7); clamped.Confidence != 1 {
		t.Fatalf("confidence not clamped: %v", clamped.Confidence)
	}
}

func TestEntityJSONShape(t *testing.T) {
	member := NewTeamMember("John Doe", "john@example.com", "Developer").WithSlackID("U123")
	data, err := json.Marshal(member)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	for _, key := range []string{"id", "name", "email", "slack_id", "role", "created_at", "updated_at"} {
		if _, ok := raw[key]; !ok {
			t.Fatalf("missing json key %s in %s", key, data)
		}
	}
	if raw["id"] != member.ID.String() {
		t.Fatalf("id should render as uuid string, got %v", raw["id"])
	}

	conv := NewConversation(member.ID)
	conv.AddMessage(RoleUser, "hello")
	conv.AddMessage(RoleAssistant, "hi")
	if len(conv.Messages) != 2 || conv.Messages[1].Role != RoleAssistant {
		t.Fatalf("messages out of order: %+v", conv.Messages)
	}
}

func TestConversationRecentAndClearOldMessages(t *testing.T) {
	conv := NewConversation(uuid.New())
	for _, text := range []string{"one", "two", "three", "four"} {
		conv.AddMessage(RoleUser, text)
	}

	recent := conv.RecentMessages(2)
	if len(recent) != 2 || recent[0].Content != "three" || recent[1].Content != "four" {
		t.Fatalf("recent = %+v, want three, four", recent)
	}
	if got := conv.RecentMessages(10); len(got) != 4 || got[0].Content != "one" {
		t.Fatalf("recent beyond length = %+v", got)
	}
	if got := conv.RecentMessages(0); got == nil || len(got) != 0 {
		t.Fatalf("recent(0) = %v, want empty", got)
	}
	recent[0].Content = "changed"
	if conv.Messages[2].Content != "three" {
		t.Fatalf("RecentMessages must not alias the conversation")
	}

	before := conv.UpdatedAt
	if dropped := conv.ClearOldMessages(10); dropped != 0 || !conv.UpdatedAt.Equal(before) {
		t.Fatalf("nothing to clear: dropped %d, updated_at moved %v", dropped, conv.UpdatedAt)
	}
	if dropped := conv.ClearOldMessages(1); dropped != 3 {
		t.Fatalf("dropped = %d, want 3", dropped)
	}
	if len(conv.Messages) != 1 || conv.Messages[0].Content != "four" {
		t.Fatalf("messages after clear = %+v", conv.Messages)
	}
}
