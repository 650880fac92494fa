package repository

import (
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/kingrea/timeless/internal/model"
)

// Team members

// SaveTeamMember inserts or replaces the team member with the same id.
func (r *TeamRepository) SaveTeamMember(member model.TeamMember) error {
	return upsert(r, KeyTeamMembers, member.ID.String(), member)
}

// GetTeamMember looks up a team member by id; ok is false when none exists.
func (r *TeamRepository) GetTeamMember(id uuid.UUID) (model.TeamMember, bool, error) {
	return get[model.TeamMember](r, KeyTeamMembers, id.String())
}

// ListTeamMembers returns every stored team member in id order.
func (r *TeamRepository) ListTeamMembers() ([]model.TeamMember, error) {
	return list[model.TeamMember](r, KeyTeamMembers)
}

// RemoveTeamMember deletes a team member and returns it when it existed.
func (r *TeamRepository) RemoveTeamMember(id uuid.UUID) (model.TeamMember, bool, error) {
	return remove[model.TeamMember](r, KeyTeamMembers, id.String())
}

// Projects

// SaveProject inserts or replaces the project with the same id.
func (r *TeamRepository) SaveProject(project model.Project) error {
	return upsert(r, KeyProjects, project.ID.String(), project)
}

// GetProject looks up a project by id; ok is false when none exists.
func (r *TeamRepository) GetProject(id uuid.UUID) (model.Project, bool, error) {
	return get[model.Project](r, KeyProjects, id.String())
}

// ListProjects returns every stored project in id order.
func (r *TeamRepository) ListProjects() ([]model.Project, error) {
	return list[model.Project](r, KeyProjects)
}

// RemoveProject deletes a project and returns it when it existed.
func (r *TeamRepository) RemoveProject(id uuid.UUID) (model.Project, bool, error) {
	return remove[model.Project](r, KeyProjects, id.String())
}

// Status updates

// SaveStatusUpdate inserts or replaces the status update with the same id.
func (r *TeamRepository) SaveStatusUpdate(update model.StatusUpdate) error {
	return upsert(r, KeyStatusUpdates, update.ID.String(), update)
}

// GetStatusUpdate looks up a status update by id; ok is false when none exists.
func (r *TeamRepository) GetStatusUpdate(id uuid.UUID) (model.StatusUpdate, bool, error) {
	return get[model.StatusUpdate](r, KeyStatusUpdates, id.String())
}

// ListStatusUpdates returns every stored status update in id order.
func (r *TeamRepository) ListStatusUpdates() ([]model.StatusUpdate, error) {
	return list[model.StatusUpdate](r, KeyStatusUpdates)
}

// RemoveStatusUpdate deletes a status update and returns it when it existed.
func (r *TeamRepository) RemoveStatusUpdate(id uuid.UUID) (model.StatusUpdate, bool, error) {
	return remove[model.StatusUpdate](r, KeyStatusUpdates, id.String())
}

// StatusUpdatesForMember returns the member's updates in collection order.
func (r *TeamRepository) StatusUpdatesForMember(memberID uuid.UUID) ([]model.StatusUpdate, error) {
	updates, err := r.ListStatusUpdates()
	if err != nil {
		return nil, err
	}
	return filter(updates, func(u model.StatusUpdate) bool { return u.MemberID == memberID }), nil
}

// RecentStatusUpdates returns at most limit updates, newest first.
func (r *TeamRepository) RecentStatusUpdates(limit int) ([]model.StatusUpdate, error) {
	updates, err := r.ListStatusUpdates()
	if err != nil {
		return nil, err
	}
	sort.SliceStable(updates, func(i, j int) bool {
		return newerFirst(updates[i].Timestamp, updates[j].Timestamp, updates[i].ID, updates[j].ID)
	})
	return truncate(updates, limit), nil
}

// Conversations

// SaveConversation inserts or replaces the conversation with the same id.
func (r *TeamRepository) SaveConversation(conversation model.Conversation) error {
	return upsert(r, KeyConversations, conversation.ID.String(), conversation)
}

// GetConversation looks up a conversation by id; ok is false when none exists.
func (r *TeamRepository) GetConversation(id uuid.UUID) (model.Conversation, bool, error) {
	return get[model.Conversation](r, KeyConversations, id.String())
}

// ListConversations returns every stored conversation in id order.
func (r *TeamRepository) ListConversations() ([]model.Conversation, error) {
	return list[model.Conversation](r, KeyConversations)
}

// RemoveConversation deletes a conversation and returns it when it existed.
func (r *TeamRepository) RemoveConversation(id uuid.UUID) (model.Conversation, bool, error) {
	return remove[model.Conversation](r, KeyConversations, id.String())
}

// ConversationsForMember returns the member's conversations in id order.
func (r *TeamRepository) ConversationsForMember(memberID uuid.UUID) ([]model.Conversation, error) {
	conversations, err := r.ListConversations()
	if err != nil {
		return nil, err
	}
	return filter(conversations, func(c model.Conversation) bool { return c.MemberID == memberID }), nil
}

// AI decisions

// SaveAIDecision inserts or replaces the decision with the same id.
func (r *TeamRepository) SaveAIDecision(decision model.AIDecision) error {
	return upsert(r, KeyAIDecisions, decision.ID.String(), decision)
}

// GetAIDecision looks up a decision by id; ok is false when none exists.
func (r *TeamRepository) GetAIDecision(id uuid.UUID) (model.AIDecision, bool, error) {
	return get[model.AIDecision](r, KeyAIDecisions, id.String())
}

// ListAIDecisions returns every stored decision in id order.
func (r *TeamRepository) ListAIDecisions() ([]model.AIDecision, error) {
	return list[model.AIDecision](r, KeyAIDecisions)
}

// RemoveAIDecision deletes a decision and returns it when it existed.
func (r *TeamRepository) RemoveAIDecision(id uuid.UUID) (model.AIDecision, bool, error) {
	return remove[model.AIDecision](r, KeyAIDecisions, id.String())
}

// RecentAIDecisions returns at most limit decisions, newest first.
func (r *TeamRepository) RecentAIDecisions(limit int) ([]model.AIDecision, error) {
	decisions, err := r.ListAIDecisions()
	if err != nil {
		return nil, err
	}
	sort.SliceStable(decisions, func(i, j int) bool {
		return newerFirst(decisions[i].CreatedAt, decisions[j].CreatedAt, decisions[i].ID, decisions[j].ID)
	})
	return truncate(decisions, limit), nil
}

// Team metrics

// SaveTeamMetrics inserts or replaces the metrics snapshot with the same id.
func (r *TeamRepository) SaveTeamMetrics(metrics model.TeamMetrics) error {
	return upsert(r, KeyTeamMetrics, metrics.ID.String(), metrics)
}

// GetTeamMetrics looks up a metrics snapshot by id; ok is false when none exists.
func (r *TeamRepository) GetTeamMetrics(id uuid.UUID) (model.TeamMetrics, bool, error) {
	return get[model.TeamMetrics](r, KeyTeamMetrics, id.String())
}

// ListTeamMetrics returns every stored metrics snapshot in id order.
func (r *TeamRepository) ListTeamMetrics() ([]model.TeamMetrics, error) {
	return list[model.TeamMetrics](r, KeyTeamMetrics)
}

// RemoveTeamMetrics deletes a metrics snapshot and returns it when it existed.
func (r *TeamRepository) RemoveTeamMetrics(id uuid.UUID) (model.TeamMetrics, bool, error) {
	return remove[model.TeamMetrics](r, KeyTeamMetrics, id.String())
}

// LatestTeamMetrics returns the snapshot with the greatest date. Equal dates
// resolve to the lexicographically smallest id.
func (r *TeamRepository) LatestTeamMetrics() (model.TeamMetrics, bool, error) {
	all, err := r.ListTeamMetrics()
	if err != nil || len(all) == 0 {
		return model.TeamMetrics{}, false, err
	}
	// all is in ascending id order, so only a strictly later date replaces best.
	best := all[0]
	for _, m := range all[1:] {
		if m.Date.After(best.Date) {
			best = m
		}
	}
	return best, true, nil
}

// TeamMetricsRange returns snapshots dated within [start, end], oldest first.
func (r *TeamRepository) TeamMetricsRange(start, end time.Time) ([]model.TeamMetrics, error) {
	all, err := r.ListTeamMetrics()
	if err != nil {
		return nil, err
	}
	in := filter(all, func(m model.TeamMetrics) bool {
		return !m.Date.Before(start) && !m.Date.After(end)
	})
	sort.SliceStable(in, func(i, j int) bool { return in[i].Date.Before(in[j].Date) })
	return in, nil
}

func newerFirst(a, b time.Time, aID, bID uuid.UUID) bool {
	if !a.Equal(b) {
		return a.After(b)
	}
	return aID.String() < bID.String()
}
