package tui

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"

	"github.com/kingrea/timeless/internal/logbook"
	"github.com/kingrea/timeless/internal/model"
)

type stubSource struct {
	members []model.TeamMember
	metrics *model.TeamMetrics
	updates []model.StatusUpdate
	err     error
}

func (s *stubSource) ListTeamMembers() ([]model.TeamMember, error) { return s.members, s.err }

func (s *stubSource) LatestTeamMetrics() (model.TeamMetrics, bool, error) {
	if s.metrics == nil {
		return model.TeamMetrics{}, false, s.err
	}
	return *s.metrics, true, s.err
}

func (s *stubSource) RecentStatusUpdates(limit int) ([]model.StatusUpdate, error) {
	if len(s.updates) > limit {
		return s.updates[:limit], s.err
	}
	return s.updates, s.err
}

func (s *stubSource) StatusUpdatesForMember(id uuid.UUID) ([]model.StatusUpdate, error) {
	var out []model.StatusUpdate
	for _, u := range s.updates {
		if u.MemberID == id {
			out = append(out, u)
		}
	}
	return out, s.err
}

func newTestSource() *stubSource {
	ada := model.NewTeamMember("Ada", "ada@example.com", "Developer")
	bob := model.NewTeamMember("Bob", "bob@example.com", "Designer")
	metrics := model.NewTeamMetrics(time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC))
	metrics.ActiveMembers = 2
	metrics.BlockersCount = 2
	metrics.AverageSatisfaction = 8
	metrics.Velocity = 50
	adaUpdate := model.NewStatusUpdate(ada.ID, "Shipping the API")
	adaUpdate.AddBlocker("Waiting for review")
	bobUpdate := model.NewStatusUpdate(bob.ID, "Polishing mockups")
	return &stubSource{
		members: []model.TeamMember{ada, bob},
		metrics: &metrics,
		updates: []model.StatusUpdate{adaUpdate, bobUpdate},
	}
}

func apply(t *testing.T, app *App, msg tea.Msg) *App {
	t.Helper()
	next, _ := app.Update(msg)
	updated, ok := next.(*App)
	if !ok {
		t.Fatalf("unexpected model type %T", next)
	}
	return updated
}

// press sends a key and runs the refresh command it returns, if any.
func press(t *testing.T, app *App, key tea.KeyMsg) *App {
	t.Helper()
	next, cmd := app.Update(key)
	updated := next.(*App)
	if cmd == nil {
		return updated
	}
	if refresh, ok := cmd().(refreshMsg); ok {
		return apply(t, updated, refresh)
	}
	return updated
}

func TestDashboardRendersTeam(t *testing.T) {
	source := newTestSource()
	book, err := logbook.New(filepath.Join(t.TempDir(), logbook.FileName))
	if err != nil {
		t.Fatalf("new logbook: %v", err)
	}
	book.Info("member Ada added")

	app := NewApp(source, WithLogbook(book), WithTitle("Platform Team"))
	app = apply(t, app, tea.WindowSizeMsg{Width: 140, Height: 40})
	app = apply(t, app, app.buildSnapshot())

	view := app.View()
	for _, want := range []string{
		"Platform Team",
		"Ada",
		"Bob",
		"Latest metrics",
		"2025-03-01",
		"4.7/10",
		"metrics need attention",
		"Shipping the API",
		"[1 blocker(s)]",
		"Polishing mockups",
		"member Ada added",
		"1 entries",
	} {
		if !strings.Contains(view, want) {
			t.Fatalf("view missing %q:\n%s", want, view)
		}
	}
}

func TestDashboardFocusesSelectedMember(t *testing.T) {
	source := newTestSource()
	app := NewApp(source)
	app = apply(t, app, tea.WindowSizeMsg{Width: 140, Height: 40})
	app = apply(t, app, app.buildSnapshot())

	app = press(t, app, tea.KeyMsg{Type: tea.KeyEnter})
	if app.focused == nil || *app.focused != source.members[0].ID {
		t.Fatalf("expected focus on first member, got %v", app.focused)
	}
	if len(app.updates) != 1 || app.updates[0].Content != "Shipping the API" {
		t.Fatalf("expected only Ada's updates, got %+v", app.updates)
	}
	if !strings.Contains(app.View(), "Updates · Ada") {
		t.Fatalf("focused heading missing:\n%s", app.View())
	}

	app = press(t, app, tea.KeyMsg{Type: tea.KeyEsc})
	if app.focused != nil || len(app.updates) != 2 {
		t.Fatalf("esc should clear focus, got %v with %d updates", app.focused, len(app.updates))
	}
}

func TestDashboardEmptyAndErrorStates(t *testing.T) {
	app := NewApp(&stubSource{})
	app = apply(t, app, app.buildSnapshot())
	view := app.View()
	for _, want := range []string{"No team members yet", "No metrics recorded.", "No status updates."} {
		if !strings.Contains(view, want) {
			t.Fatalf("empty view missing %q:\n%s", want, view)
		}
	}

	failing := NewApp(&stubSource{err: errors.New("decode team_members")})
	failing = apply(t, failing, failing.buildSnapshot())
	if !strings.Contains(failing.View(), "decode team_members") {
		t.Fatalf("error not rendered:\n%s", failing.View())
	}
}

func TestDashboardQuits(t *testing.T) {
	app := NewApp(&stubSource{})
	_, cmd := app.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	if cmd == nil {
		t.Fatalf("expected quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Fatalf("expected tea.QuitMsg")
	}
}
