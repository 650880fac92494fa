// Package model defines the records timeless keeps about a team. Entities are
// plain values: they hold no references to each other, and associations such
// as StatusUpdate.MemberID are compared by id.
package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

func now() time.Time {
	return time.Now().UTC()
}

// TeamMember is a person on the team.
type TeamMember struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	SlackID   *string   `json:"slack_id"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewTeamMember builds a member with a fresh id.
func NewTeamMember(name, email, role string) TeamMember {
	ts := now()
	return TeamMember{
		ID:        uuid.New(),
		Name:      name,
		Email:     email,
		Role:      role,
		CreatedAt: ts,
		UpdatedAt: ts,
	}
}

// WithSlackID returns a copy carrying the messaging handle.
func (m TeamMember) WithSlackID(slackID string) TeamMember {
	m.SlackID = &slackID
	m.UpdatedAt = now()
	return m
}

// Touch refreshes UpdatedAt after an in-place edit.
func (m *TeamMember) Touch() {
	m.UpdatedAt = now()
}

// ProjectStatus is the lifecycle state of a project.
type ProjectStatus string

const (
	ProjectActive    ProjectStatus = "Active"
	ProjectCompleted ProjectStatus = "Completed"
	ProjectOnHold    ProjectStatus = "OnHold"
	ProjectCancelled ProjectStatus = "Cancelled"
)

// Valid reports whether s is one of the known states.
func (s ProjectStatus) Valid() bool {
	switch s {
	case ProjectActive, ProjectCompleted, ProjectOnHold, ProjectCancelled:
		return true
	}
	return false
}

// ParseProjectStatus accepts the state names case-insensitively, including
// "on-hold" and "on_hold".
func ParseProjectStatus(value string) (ProjectStatus, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	normalized = strings.NewReplacer("-", "", "_", "", " ", "").Replace(normalized)
	switch normalized {
	case "active":
		return ProjectActive, nil
	case "completed", "complete", "done":
		return ProjectCompleted, nil
	case "onhold":
		return ProjectOnHold, nil
	case "cancelled", "canceled":
		return ProjectCancelled, nil
	}
	return "", fmt.Errorf("model: unknown project status %q", value)
}

// Project groups work the team is doing.
type Project struct {
	ID          uuid.UUID     `json:"id"`
	Name        string        `json:"name"`
	Description string        `json:"description"`
	Status      ProjectStatus `json:"status"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

// NewProject builds an active project.
func NewProject(name, description string) Project {
	ts := now()
	return Project{
		ID:          uuid.New(),
		Name:        name,
		Description: description,
		Status:      ProjectActive,
		CreatedAt:   ts,
		UpdatedAt:   ts,
	}
}

// SetStatus moves the project to status and refreshes UpdatedAt.
func (p *Project) SetStatus(status ProjectStatus) {
	p.Status = status
	p.UpdatedAt = now()
}

// IsActive reports whether the project is in the Active status.
func (p Project) IsActive() bool {
	return p.Status == ProjectActive
}

// StatusUpdate is one check-in from a team member.
type StatusUpdate struct {
	ID           uuid.UUID `json:"id"`
	MemberID     uuid.UUID `json:"member_id"`
	Content      string    `json:"content"`
	Timestamp    time.Time `json:"timestamp"`
	Mood         *string   `json:"mood"`
	Blockers     []string  `json:"blockers"`
	Achievements []string  `json:"achievements"`
}

// NewStatusUpdate builds an update stamped now.
func NewStatusUpdate(memberID uuid.UUID, content string) StatusUpdate {
	return StatusUpdate{
		ID:           uuid.New(),
		MemberID:     memberID,
		Content:      content,
		Timestamp:    now(),
		Blockers:     []string{},
		Achievements: []string{},
	}
}

// WithMood returns a copy of u with Mood set.
func (u StatusUpdate) WithMood(mood string) StatusUpdate {
	u.Mood = &mood
	return u
}

// AddBlocker appends a blocker to the update.
func (u *StatusUpdate) AddBlocker(blocker string) {
	u.Blockers = append(u.Blockers, blocker)
}

// AddAchievement appends an achievement to the update.
func (u *StatusUpdate) AddAchievement(achievement string) {
	u.Achievements = append(u.Achievements, achievement)
}

// HasBlockers reports whether any blocker was recorded.
func (u StatusUpdate) HasBlockers() bool {
	return len(u.Blockers) > 0
}

// MessageRole identifies who authored a conversation message.
type MessageRole string

const (
	RoleUser      MessageRole = "User"
	RoleAssistant MessageRole = "Assistant"
	RoleSystem    MessageRole = "System"
)

// Message is a single turn in a conversation.
type Message struct {
	ID        uuid.UUID   `json:"id"`
	Role      MessageRole `json:"role"`
	Content   string      `json:"content"`
	Timestamp time.Time   `json:"timestamp"`
}

// Conversation is an ordered exchange with one team member.
type Conversation struct {
	ID        uuid.UUID `json:"id"`
	MemberID  uuid.UUID `json:"member_id"`
	Messages  []Message `json:"messages"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewConversation starts an empty conversation with memberID.
func NewConversation(memberID uuid.UUID) Conversation {
	ts := now()
	return Conversation{
		ID:        uuid.New(),
		MemberID:  memberID,
		Messages:  []Message{},
		CreatedAt: ts,
		UpdatedAt: ts,
	}
}

// AddMessage appends a message and returns it.
func (c *Conversation) AddMessage(role MessageRole, content string) Message {
	msg := Message{
		ID:        uuid.New(),
		Role:      role,
		Content:   content,
		Timestamp: now(),
	}
	c.Messages = append(c.Messages, msg)
	c.UpdatedAt = msg.Timestamp
	return msg
}

// RecentMessages returns the last n messages, oldest first. n <= 0 yields
// an empty slice.
func (c Conversation) RecentMessages(n int) []Message {
	if n <= 0 {
		return []Message{}
	}
	start := max(len(c.Messages)-n, 0)
	return append([]Message(nil), c.Messages[start:]...)
}

// ClearOldMessages drops all but the last keepLast messages and reports how
// many were removed. updated_at only moves when something was dropped.
func (c *Conversation) ClearOldMessages(keepLast int) int {
	keepLast = max(keepLast, 0)
	if len(c.Messages) <= keepLast {
		return 0
	}
	dropped := len(c.Messages) - keepLast
	c.Messages = append([]Message{}, c.Messages[dropped:]...)
	c.UpdatedAt = now()
	return dropped
}

// AIDecision records a recommendation and, later, what came of it.
type AIDecision struct {
	ID             uuid.UUID `json:"id"`
	DecisionType   string    `json:"decision_type"`
	Context        string    `json:"context"`
	Recommendation string    `json:"recommendation"`
	Confidence     float64   `json:"confidence"`
	CreatedAt      time.Time `json:"created_at"`
	Outcome        *string   `json:"outcome"`
}

// HighConfidence is the threshold IsHighConfidence compares against.
const HighConfidence = 0.8

// NewAIDecision builds a decision; confidence is clamped to [0, 1].
func NewAIDecision(decisionType, context, recommendation string, confidence float64) AIDecision {
	return AIDecision{
		ID:             uuid.New(),
		DecisionType:   decisionType,
		Context:        context,
		Recommendation: recommendation,
		Confidence:     min(max(confidence, 0), 1),
		CreatedAt:      now(),
	}
}

// SetOutcome records what happened after the recommendation.
func (d *AIDecision) SetOutcome(outcome string) {
	d.Outcome = &outcome
}

// IsHighConfidence reports whether Confidence is at least HighConfidence.
func (d AIDecision) IsHighConfidence() bool {
	return d.Confidence >= HighConfidence
}
