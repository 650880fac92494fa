// internal/tui/app.go
//
// This is the team dashboard. It uses bubbletea, which follows The Elm
// Architecture:
//
// 1. Model: the dashboard state (members, latest metrics, recent updates)
// 2. Update: a function that updates state based on messages
// 3. View: a function that renders state to a string
//
// The flow is: User Input -> Message -> Update -> New Model -> View -> Screen

package tui

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/google/uuid"

	"github.com/kingrea/timeless/internal/logbook"
	"github.com/kingrea/timeless/internal/model"
)

const (
	boardRefreshInterval = 5 * time.Second
	recentUpdateCount    = 8
	logTailLines         = 6
)

// Source is the read side of the repository the dashboard renders.
type Source interface {
	ListTeamMembers() ([]model.TeamMember, error)
	LatestTeamMetrics() (model.TeamMetrics, bool, error)
	RecentStatusUpdates(limit int) ([]model.StatusUpdate, error)
	StatusUpdatesForMember(memberID uuid.UUID) ([]model.StatusUpdate, error)
}

// AppOption customizes App construction.
type AppOption func(*App)

// WithLogbook shows the tail of the activity journal under the board.
func WithLogbook(lb *logbook.Logbook) AppOption {
	return func(a *App) {
		a.logbook = lb
	}
}

// WithTitle overrides the header text.
func WithTitle(title string) AppOption {
	return func(a *App) {
		if strings.TrimSpace(title) != "" {
			a.title = title
		}
	}
}

// App is the bubbletea model behind `timeless dashboard`.
type App struct {
	source  Source
	logbook *logbook.Logbook
	title   string

	members   list.Model
	memberMap map[uuid.UUID]model.TeamMember
	focused   *uuid.UUID

	metrics    model.TeamMetrics
	hasMetrics bool
	updates    []model.StatusUpdate
	refreshed  time.Time

	statusMsg string
	err       error

	width  int
	height int
}

// memberItem implements list.Item for a team member.
type memberItem struct {
	member model.TeamMember
}

func (i memberItem) Title() string       { return i.member.Name }
func (i memberItem) Description() string { return fmt.Sprintf("%s · %s", i.member.Role, i.member.Email) }
func (i memberItem) FilterValue() string { return i.member.Name }

type refreshMsg struct {
	members    []model.TeamMember
	metrics    model.TeamMetrics
	hasMetrics bool
	updates    []model.StatusUpdate
	at         time.Time
	err        error
}

// NewApp creates a dashboard over source.
func NewApp(source Source, opts ...AppOption) *App {
	members := list.New(nil, list.NewDefaultDelegate(), 0, 0)
	members.Title = "Team"
	members.SetShowStatusBar(false)
	members.SetFilteringEnabled(false)
	members.SetShowHelp(false)

	app := &App{
		source:    source,
		title:     "◷ TIMELESS",
		members:   members,
		memberMap: map[uuid.UUID]model.TeamMember{},
		statusMsg: "enter: focus member · esc: all updates · r: refresh · q: quit",
	}
	for _, opt := range opts {
		if opt != nil {
			opt(app)
		}
	}
	return app
}

// Init is called once when the program starts.
func (a *App) Init() tea.Cmd {
	return a.fetchSnapshot()
}

// Update is called when a message is received.
func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.members.SetSize(max(20, a.leftWidth()-4), max(6, msg.Height-12))
		return a, nil

	case refreshMsg:
		a.applySnapshot(msg)
		return a, a.scheduleRefresh()

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			return a, tea.Quit
		case "r":
			a.statusMsg = "Refreshing..."
			return a, a.fetchSnapshot()
		case "enter":
			if item, ok := a.members.SelectedItem().(memberItem); ok {
				id := item.member.ID
				a.focused = &id
				a.statusMsg = fmt.Sprintf("Showing updates from %s", item.member.Name)
				return a, a.fetchSnapshot()
			}
			return a, nil
		case "esc":
			if a.focused != nil {
				a.focused = nil
				a.statusMsg = "Showing updates from everyone"
				return a, a.fetchSnapshot()
			}
			return a, nil
		}
	}

	var cmd tea.Cmd
	a.members, cmd = a.members.Update(msg)
	return a, cmd
}

func (a *App) applySnapshot(msg refreshMsg) {
	if msg.err != nil {
		a.err = msg.err
		return
	}
	a.err = nil
	a.refreshed = msg.at
	a.metrics, a.hasMetrics = msg.metrics, msg.hasMetrics
	a.updates = msg.updates

	items := make([]list.Item, len(msg.members))
	a.memberMap = make(map[uuid.UUID]model.TeamMember, len(msg.members))
	for i, m := range msg.members {
		items[i] = memberItem{member: m}
		a.memberMap[m.ID] = m
	}
	selected := a.members.Index()
	a.members.SetItems(items)
	if selected < len(items) {
		a.members.Select(selected)
	}
}

func (a *App) fetchSnapshot() tea.Cmd {
	return func() tea.Msg {
		return a.buildSnapshot()
	}
}

func (a *App) scheduleRefresh() tea.Cmd {
	return tea.Tick(boardRefreshInterval, func(time.Time) tea.Msg {
		return a.buildSnapshot()
	})
}

func (a *App) buildSnapshot() refreshMsg {
	members, err := a.source.ListTeamMembers()
	if err != nil {
		return refreshMsg{err: err}
	}
	metrics, ok, err := a.source.LatestTeamMetrics()
	if err != nil {
		return refreshMsg{err: err}
	}
	var updates []model.StatusUpdate
	if a.focused != nil {
		updates, err = a.source.StatusUpdatesForMember(*a.focused)
		if len(updates) > recentUpdateCount {
			updates = updates[len(updates)-recentUpdateCount:]
		}
	} else {
		updates, err = a.source.RecentStatusUpdates(recentUpdateCount)
	}
	if err != nil {
		return refreshMsg{err: err}
	}
	return refreshMsg{
		members:    members,
		metrics:    metrics,
		hasMetrics: ok,
		updates:    updates,
		at:         time.Now(),
	}
}

func (a *App) leftWidth() int {
	width := a.width
	if width <= 0 {
		width = 100
	}
	return max(30, width/3)
}

// View renders the dashboard.
func (a *App) View() string {
	width := a.width
	if width <= 0 {
		width = 100
	}
	leftWidth := a.leftWidth()
	rightWidth := width - leftWidth - 4
	if rightWidth < 30 {
		rightWidth = 0
	}

	header := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("#FF6B6B")).
		MarginBottom(1).
		Render(a.title)
	leftBox := panelStyle.Width(leftWidth).Render(a.renderMembers())
	var body string
	if rightWidth > 0 {
		right := lipgloss.JoinVertical(lipgloss.Left,
			a.renderMetricsPanel(rightWidth-4),
			"",
			a.renderUpdatesPanel(rightWidth-4),
		)
		body = lipgloss.JoinHorizontal(lipgloss.Top, leftBox, panelStyle.Width(rightWidth).Render(right))
	} else {
		body = lipgloss.JoinVertical(lipgloss.Left, leftBox, a.renderMetricsPanel(leftWidth), a.renderUpdatesPanel(leftWidth))
	}

	sections := []string{header, body}
	if logPanel := a.renderLogPanel(); logPanel != "" {
		sections = append(sections, logPanel)
	}
	footerText := a.statusMsg
	if a.err != nil {
		footerText = errorStyle.Render("Error: " + a.err.Error())
	} else if !a.refreshed.IsZero() {
		footerText = fmt.Sprintf("%s · refreshed %s", footerText, a.refreshed.Format("15:04:05"))
	}
	footer := lipgloss.NewStyle().
		Foreground(lipgloss.Color("#888888")).
		MarginTop(1).
		Render(footerText)
	sections = append(sections, footer)
	return strings.Join(sections, "\n")
}

var (
	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#444444")).
			Padding(0, 1)
	headingStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#5B8DEF"))
	mutedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#AAAAAA"))
	goodStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#3CCB7F"))
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#F5A623"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B"))
)

func (a *App) renderMembers() string {
	if len(a.members.Items()) == 0 {
		return lipgloss.JoinVertical(lipgloss.Left,
			headingStyle.Render("Team"),
			mutedStyle.Render("No team members yet. Add one with `timeless add-user`."),
		)
	}
	return a.members.View()
}

func (a *App) renderMetricsPanel(width int) string {
	title := headingStyle.Render("Latest metrics")
	if !a.hasMetrics {
		return lipgloss.JoinVertical(lipgloss.Left, title, mutedStyle.Render("No metrics recorded."))
	}
	m := a.metrics
	score := m.HealthScore()
	scoreStyle := goodStyle
	switch {
	case score < 4:
		scoreStyle = errorStyle
	case score < 7:
		scoreStyle = warnStyle
	}
	lines := []string{
		fmt.Sprintf("Date          %s", m.Date.Format("2006-01-02")),
		fmt.Sprintf("Health        %s", scoreStyle.Render(fmt.Sprintf("%.1f/10", score))),
		fmt.Sprintf("Active        %d", m.ActiveMembers),
		fmt.Sprintf("Completed     %d", m.CompletedTasks),
		fmt.Sprintf("Blockers      %d", m.BlockersCount),
		fmt.Sprintf("Satisfaction  %.1f", m.AverageSatisfaction),
		fmt.Sprintf("Velocity      %.1f", m.Velocity),
	}
	if m.HasConcerningMetrics() {
		lines = append(lines, warnStyle.Render("⚠ metrics need attention"))
	}
	body := lipgloss.NewStyle().Width(max(20, width)).Render(strings.Join(lines, "\n"))
	return lipgloss.JoinVertical(lipgloss.Left, title, body)
}

func (a *App) renderUpdatesPanel(width int) string {
	heading := "Recent updates"
	if a.focused != nil {
		if m, ok := a.memberMap[*a.focused]; ok {
			heading = "Updates · " + m.Name
		}
	}
	title := headingStyle.Render(heading)
	if len(a.updates) == 0 {
		return lipgloss.JoinVertical(lipgloss.Left, title, mutedStyle.Render("No status updates."))
	}
	lines := make([]string, 0, len(a.updates))
	for _, u := range a.updates {
		who := u.MemberID.String()[:8]
		if m, ok := a.memberMap[u.MemberID]; ok {
			who = m.Name
		}
		line := fmt.Sprintf("%s %s: %s", u.Timestamp.Format("01-02 15:04"), who, u.Content)
		if u.HasBlockers() {
			line += warnStyle.Render(fmt.Sprintf(" [%d blocker(s)]", len(u.Blockers)))
		}
		lines = append(lines, line)
	}
	body := lipgloss.NewStyle().Width(max(20, width)).Render(strings.Join(lines, "\n"))
	return lipgloss.JoinVertical(lipgloss.Left, title, body)
}

func (a *App) renderLogPanel() string {
	if a.logbook == nil {
		return ""
	}
	lines, total := a.logbook.Tail(logTailLines)
	if len(lines) == 0 {
		return ""
	}
	fileName := filepath.Base(a.logbook.Path())
	if fileName == "." || fileName == "" {
		fileName = "log"
	}
	head := headingStyle.Render(fmt.Sprintf("LOG · %s (%d entries)", fileName, total))
	body := mutedStyle.Render(strings.Join(lines, "\n"))
	return panelStyle.Render(fmt.Sprintf("%s\n%s", head, body))
}
