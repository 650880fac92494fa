package assistant

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"
	"time"

	"github.com/kingrea/timeless/internal/model"
)

const checkInPrompt = `You are a smart team manager assistant. Based on the following context:
- Team member: {{.Member.Name}} ({{.Member.Role}})
{{- if .Updates}}
- Recent activity:
{{- range .Updates}}
  - {{.Timestamp.Format "2006-01-02"}}: {{.Content}}{{if .Blockers}} (blocked by: {{join .Blockers "; "}}){{end}}
{{- end}}
{{- else}}
- Recent activity: none recorded
{{- end}}
- Team context: {{.Team}}

Write a personalized check-in message that acknowledges their current work,
asks about progress and blockers, stays supportive and fits in 2-3 sentences.`

const analysisPrompt = `You are a team management analyst. Analyze the following team data:
{{.Team}}

Provide insights on:
1. Team performance trends
2. Potential risks or blockers
3. Recommendations for improvement
4. Individual team member highlights`

const decisionPrompt = `You are advising an engineering manager on a {{.Type}} decision.
Context:
{{.Context}}

Reply with a single concrete recommendation in at most three sentences.`

var templates = template.Must(template.New("prompts").Funcs(template.FuncMap{
	"join": strings.Join,
}).Parse(`{{define "checkin"}}` + checkInPrompt + `{{end}}` +
	`{{define "analysis"}}` + analysisPrompt + `{{end}}` +
	`{{define "decision"}}` + decisionPrompt + `{{end}}`))

// CheckInPrompt asks for a personal status check-in message for member.
func CheckInPrompt(member model.TeamMember, updates []model.StatusUpdate, team TeamContext) (string, error) {
	return render("checkin", map[string]any{
		"Member":  member,
		"Updates": updates,
		"Team":    team.Summary(),
	})
}

// AnalysisPrompt asks for an analysis of the whole team.
func AnalysisPrompt(team TeamContext) (string, error) {
	return render("analysis", map[string]any{"Team": team.String()})
}

// DecisionPrompt asks for a recommendation of the given decision type.
func DecisionPrompt(decisionType, context string) (string, error) {
	return render("decision", map[string]any{"Type": decisionType, "Context": context})
}

func render(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("assistant: render %s prompt: %w", name, err)
	}
	return strings.TrimSpace(buf.String()), nil
}

// TeamReader is the part of the repository prompts need.
type TeamReader interface {
	ListTeamMembers() ([]model.TeamMember, error)
	ListProjects() ([]model.Project, error)
	LatestTeamMetrics() (model.TeamMetrics, bool, error)
	RecentStatusUpdates(limit int) ([]model.StatusUpdate, error)
}

// TeamContext is a point-in-time summary of the team fed into prompts.
type TeamContext struct {
	Members        []model.TeamMember
	ActiveProjects []model.Project
	Metrics        *model.TeamMetrics
	RecentUpdates  []model.StatusUpdate
}

const contextUpdates = 10

// BuildTeamContext loads members, active projects, the latest metrics and the
// most recent status updates.
func BuildTeamContext(repo TeamReader) (TeamContext, error) {
	var tc TeamContext
	members, err := repo.ListTeamMembers()
	if err != nil {
		return tc, err
	}
	tc.Members = members
	projects, err := repo.ListProjects()
	if err != nil {
		return tc, err
	}
	for _, p := range projects {
		if p.IsActive() {
			tc.ActiveProjects = append(tc.ActiveProjects, p)
		}
	}
	metrics, ok, err := repo.LatestTeamMetrics()
	if err != nil {
		return tc, err
	}
	if ok {
		tc.Metrics = &metrics
	}
	updates, err := repo.RecentStatusUpdates(contextUpdates)
	if err != nil {
		return tc, err
	}
	tc.RecentUpdates = updates
	return tc, nil
}

// Summary is a one-line description used inside other prompts.
func (tc TeamContext) Summary() string {
	parts := []string{fmt.Sprintf("%d members", len(tc.Members))}
	if len(tc.ActiveProjects) > 0 {
		parts = append(parts, fmt.Sprintf("%d active projects", len(tc.ActiveProjects)))
	}
	if tc.Metrics != nil {
		parts = append(parts, fmt.Sprintf("health %.1f/10", tc.Metrics.HealthScore()))
	}
	return strings.Join(parts, ", ")
}

// String renders the full context as a bullet list.
func (tc TeamContext) String() string {
	var b strings.Builder
	names := make(map[string]string, len(tc.Members))
	fmt.Fprintf(&b, "Team members (%d):\n", len(tc.Members))
	for _, m := range tc.Members {
		names[m.ID.String()] = m.Name
		fmt.Fprintf(&b, "- %s, %s\n", m.Name, m.Role)
	}
	if len(tc.ActiveProjects) > 0 {
		b.WriteString("Active projects:\n")
		for _, p := range tc.ActiveProjects {
			fmt.Fprintf(&b, "- %s: %s\n", p.Name, p.Description)
		}
	}
	if m := tc.Metrics; m != nil {
		fmt.Fprintf(&b, "Latest metrics (%s): health %.2f, %d active, %d tasks done, %d blockers, satisfaction %.1f, velocity %.1f\n",
			m.Date.Format(time.DateOnly), m.HealthScore(), m.ActiveMembers, m.CompletedTasks,
			m.BlockersCount, m.AverageSatisfaction, m.Velocity)
	} else {
		b.WriteString("Latest metrics: none recorded\n")
	}
	if len(tc.RecentUpdates) > 0 {
		b.WriteString("Recent status updates:\n")
		for _, u := range tc.RecentUpdates {
			who := names[u.MemberID.String()]
			if who == "" {
				who = u.MemberID.String()
			}
			fmt.Fprintf(&b, "- %s %s: %s", u.Timestamp.Format(time.DateOnly), who, u.Content)
			if len(u.Blockers) > 0 {
				fmt.Fprintf(&b, " [blockers: %s]", strings.Join(u.Blockers, "; "))
			}
			b.WriteString("\n")
		}
	}
	return strings.TrimRight(b.String(), "\n")
}
