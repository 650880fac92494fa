package assistant

import (
	"context"
	"errors"
	"os/exec"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/kingrea/timeless/internal/model"
)

func requireBinary(t *testing.T, name string) {
	t.Helper()
	if _, err := exec.LookPath(name); err != nil {
		t.Skipf("%s not available: %v", name, err)
	}
}

func TestProcessReturnsTrimmedStdout(t *testing.T) {
	requireBinary(t, "echo")
	client := New(Options{Enabled: true, Command: "echo", Timeout: 5 * time.Second})
	reply, err := client.Send(context.Background(), "  hello team  ")
	if err != nil {
		t.Fatalf("Send returned error: %v", err)
	}
	if reply != "hello team" {
		t.Fatalf("reply = %q", reply)
	}
}

func TestProcessFailureIncludesStderr(t *testing.T) {
	requireBinary(t, "sh")
	client := New(Options{Enabled: true, Command: "sh", Args: []string{"-c", "echo overloaded >&2; exit 3"}})
	_, err := client.Send(context.Background(), "prompt")
	if err == nil || !strings.Contains(err.Error(), "overloaded") {
		t.Fatalf("expected stderr in error, got %v", err)
	}
}

func TestProcessMissingBinary(t *testing.T) {
	client := New(Options{Enabled: true, Command: "timeless-no-such-assistant"})
	_, err := client.Send(context.Background(), "prompt")
	if err == nil || !strings.Contains(err.Error(), "PATH") {
		t.Fatalf("expected PATH hint, got %v", err)
	}
}

func TestProcessTimeout(t *testing.T) {
	requireBinary(t, "sleep")
	client := New(Options{Enabled: true, Command: "sleep", Timeout: 50 * time.Millisecond})
	_, err := client.Send(context.Background(), "5")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestDisabledClient(t *testing.T) {
	client := New(Options{Enabled: false, Command: "echo"})
	if _, err := client.Send(context.Background(), "x"); !errors.Is(err, ErrDisabled) {
		t.Fatalf("expected ErrDisabled, got %v", err)
	}
}

type fakeTeam struct {
	members  []model.TeamMember
	projects []model.Project
	metrics  *model.TeamMetrics
	updates  []model.StatusUpdate
}

func (f fakeTeam) ListTeamMembers() ([]model.TeamMember, error) { return f.members, nil }
func (f fakeTeam) ListProjects() ([]model.Project, error)      { return f.projects, nil }
func (f fakeTeam) LatestTeamMetrics() (model.TeamMetrics, bool, error) {
	if f.metrics == nil {
		return model.TeamMetrics{}, false, nil
	}
	return *f.metrics, true, nil
}
func (f fakeTeam) RecentStatusUpdates(limit int) ([]model.StatusUpdate, error) {
	if len(f.updates) > limit {
		return f.updates[:limit], nil
	}
	return f.updates, nil
}

func TestBuildTeamContextAndPrompts(t *testing.T) {
	ada := model.NewTeamMember("Ada", "ada@example.com", "Developer")
	paused := model.NewProject("Legacy", "old billing")
	paused.SetStatus(model.ProjectOnHold)
	active := model.NewProject("Apollo", "launch")
	metrics := model.NewTeamMetrics(time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC))
	metrics.ActiveMembers = 1
	metrics.AverageSatisfaction = 8
	metrics.Velocity = 50
	update := model.NewStatusUpdate(ada.ID, "Working on feature A")
	update.AddBlocker("Waiting for API")
	stranger := model.NewStatusUpdate(uuid.New(), "Drive-by fix")

	tc, err := BuildTeamContext(fakeTeam{
		members:  []model.TeamMember{ada},
		projects: []model.Project{paused, active},
		metrics:  &metrics,
		updates:  []model.StatusUpdate{update, stranger},
	})
	if err != nil {
		t.Fatalf("BuildTeamContext returned error: %v", err)
	}
	if len(tc.ActiveProjects) != 1 || tc.ActiveProjects[0].Name != "Apollo" {
		t.Fatalf("expected only active projects, got %+v", tc.ActiveProjects)
	}
	if got := tc.Summary(); got != "1 members, 1 active projects, health 7.7/10" {
		t.Fatalf("summary = %q", got)
	}

	analysis, err := AnalysisPrompt(tc)
	if err != nil {
		t.Fatalf("AnalysisPrompt returned error: %v", err)
	}
	for _, want := range []string{"Ada, Developer", "Apollo: launch", "Ada: Working on feature A [blockers: Waiting for API]", stranger.MemberID.String()} {
		if !strings.Contains(analysis, want) {
			t.Fatalf("analysis prompt missing %q:\n%s", want, analysis)
		}
	}

	checkIn, err := CheckInPrompt(ada, []model.StatusUpdate{update}, tc)
	if err != nil {
		t.Fatalf("CheckInPrompt returned error: %v", err)
	}
	if !strings.Contains(checkIn, "Team member: Ada (Developer)") || !strings.Contains(checkIn, "(blocked by: Waiting for API)") {
		t.Fatalf("unexpected check-in prompt:\n%s", checkIn)
	}

	decision, err := DecisionPrompt("risk_review", "velocity dropped")
	if err != nil || !strings.Contains(decision, "risk_review decision") {
		t.Fatalf("unexpected decision prompt %q, %v", decision, err)
	}
}

func TestProcessRejectsOversizedPrompt(t *testing.T) {
	requireBinary(t, "true")
	client := New(Options{Enabled: true, Command: "true", Args: []string{"--"}, Timeout: 5 * time.Second})

	_, err := client.Send(context.Background(), strings.Repeat("x", MaxPromptBytes+1))
	if !errors.Is(err, ErrPromptTooLarge) {
		t.Fatalf("expected ErrPromptTooLarge, got %v", err)
	}
	if _, err := client.Send(context.Background(), strings.Repeat("x", MaxPromptBytes)); err != nil {
		t.Fatalf("prompt at the limit should be sent, got %v", err)
	}
}
