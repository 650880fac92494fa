package model

import (
	"time"

	"github.com/google/uuid"
)

const (
	satisfactionWeight = 0.4
	velocityWeight     = 0.3
	blockerWeight      = 0.3
)

// TeamMetrics is a dated snapshot of team throughput and morale.
type TeamMetrics struct {
	ID                  uuid.UUID `json:"id"`
	Date                time.Time `json:"date"`
	ActiveMembers       uint32    `json:"active_members"`
	CompletedTasks      uint32    `json:"completed_tasks"`
	BlockersCount       uint32    `json:"blockers_count"`
	AverageSatisfaction float64   `json:"average_satisfaction"`
	Velocity            float64   `json:"velocity"`
}

// NewTeamMetrics builds an empty snapshot for date.
func NewTeamMetrics(date time.Time) TeamMetrics {
	return TeamMetrics{
		ID:   uuid.New(),
		Date: date.UTC(),
	}
}

// HealthScore combines satisfaction, velocity and blocker load into a 0-10 score.
func (m TeamMetrics) HealthScore() float64 {
	satisfaction := m.AverageSatisfaction / 10
	velocity := min(m.Velocity/100, 1)
	return (satisfaction*satisfactionWeight + velocity*velocityWeight + m.blockerScore()*blockerWeight) * 10
}

// HasConcerningMetrics flags low morale, a high blocker ratio or stalled velocity.
func (m TeamMetrics) HasConcerningMetrics() bool {
	return m.AverageSatisfaction < 5 ||
		(m.ActiveMembers > 0 && m.BlockerRatio() > 0.5) ||
		m.Velocity < 10
}

// BlockerRatio is blockers per active member, zero for an empty team.
func (m TeamMetrics) BlockerRatio() float64 {
	if m.ActiveMembers == 0 {
		return 0
	}
	return float64(m.BlockersCount) / float64(m.ActiveMembers)
}

func (m TeamMetrics) blockerScore() float64 {
	if m.ActiveMembers == 0 {
		return 1
	}
	return 1 - min(m.BlockerRatio(), 1)
}
