package repository

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/kingrea/timeless/internal/model"
	"github.com/kingrea/timeless/internal/storage"
)

func newTestRepo(t *testing.T) (*TeamRepository, string) {
	t.Helper()
	dir := t.TempDir()
	repo, err := Open(dir)
	if err != nil {
		t.Fatalf("open repository: %v", err)
	}
	return repo, dir
}

func TestTeamMemberCRUD(t *testing.T) {
	repo, _ := newTestRepo(t)
	member := model.NewTeamMember("John Doe", "john@example.com", "Developer")
	if err := repo.SaveTeamMember(member); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, ok, err := repo.GetTeamMember(member.ID)
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	if got.Name != "John Doe" || got.Email != "john@example.com" || got.Role != "Developer" {
		t.Fatalf("unexpected member %+v", got)
	}
	members, err := repo.ListTeamMembers()
	if err != nil || len(members) != 1 {
		t.Fatalf("list: %d %v", len(members), err)
	}
	removed, ok, err := repo.RemoveTeamMember(member.ID)
	if err != nil || !ok || removed.ID != member.ID {
		t.Fatalf("remove: %+v ok=%v err=%v", removed, ok, err)
	}
	members, err = repo.ListTeamMembers()
	if err != nil || len(members) != 0 {
		t.Fatalf("list after remove: %d %v", len(members), err)
	}
}

func TestRoundTripPreservesEveryField(t *testing.T) {
	repo, _ := newTestRepo(t)
	member := model.NewTeamMember("Ada", "ada@example.com", "Lead").WithSlackID("U42")
	update := model.NewStatusUpdate(member.ID, "shipping").WithMood("great")
	update.AddBlocker("review pending")
	update.AddAchievement("merged parser")
	conv := model.NewConversation(member.ID)
	conv.AddMessage(model.RoleSystem, "check-in")
	conv.AddMessage(model.RoleUser, "all good")
	decision := model.NewAIDecision("staffing", "ctx", "hire", 0.6)
	decision.SetOutcome("hired")
	metrics := model.NewTeamMetrics(time.Date(2025, 2, 3, 4, 5, 6, 7, time.UTC))
	metrics.ActiveMembers = 3
	metrics.Velocity = 42.5

	if err := repo.SaveTeamMember(member); err != nil {
		t.Fatal(err)
	}
	if err := repo.SaveStatusUpdate(update); err != nil {
		t.Fatal(err)
	}
	if err := repo.SaveConversation(conv); err != nil {
		t.Fatal(err)
	}
	if err := repo.SaveAIDecision(decision); err != nil {
		t.Fatal(err)
	}
	if err := repo.SaveTeamMetrics(metrics); err != nil {
		t.Fatal(err)
	}

	gotMember, _, _ := repo.GetTeamMember(member.ID)
	if !reflect.DeepEqual(gotMember, member) {
		t.Fatalf("member round trip:\n got %+v\nwant %+v", gotMember, member)
	}
	gotUpdate, _, _ := repo.GetStatusUpdate(update.ID)
	if !reflect.DeepEqual(gotUpdate, update) {
		t.Fatalf("status update round trip:\n got %+v\nwant %+v", gotUpdate, update)
	}
	gotConv, _, _ := repo.GetConversation(conv.ID)
	if !reflect.DeepEqual(gotConv, conv) {
		t.Fatalf("conversation round trip:\n got %+v\nwant %+v", gotConv, conv)
	}
	gotDecision, _, _ := repo.GetAIDecision(decision.ID)
	if !reflect.DeepEqual(gotDecision, decision) {
		t.Fatalf("decision round trip:\n got %+v\nwant %+v", gotDecision, decision)
	}
	gotMetrics, _, _ := repo.GetTeamMetrics(metrics.ID)
	if !reflect.DeepEqual(gotMetrics, metrics) {
		t.Fatalf("metrics round trip:\n got %+v\nwant %+v", gotMetrics, metrics)
	}
}

func TestSaveUpsertsByID(t *testing.T) {
	repo, _ := newTestRepo(t)
	project := model.NewProject("Test Project", "A test project")
	if err := repo.SaveProject(project); err != nil {
		t.Fatal(err)
	}
	project.SetStatus(model.ProjectCompleted)
	project.Description = "done"
	if err := repo.SaveProject(project); err != nil {
		t.Fatal(err)
	}
	projects, err := repo.ListProjects()
	if err != nil {
		t.Fatal(err)
	}
	if len(projects) != 1 {
		t.Fatalf("expected one project after upsert, got %d", len(projects))
	}
	if projects[0].IsActive() || projects[0].Description != "done" {
		t.Fatalf("upsert kept stale values: %+v", projects[0])
	}
}

func TestRemoveMissingLeavesCollectionUnchanged(t *testing.T) {
	repo, dir := newTestRepo(t)
	member := model.NewTeamMember("Jane", "jane@example.com", "QA")
	if err := repo.SaveTeamMember(member); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, KeyTeamMembers+".json")
	before, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	_, ok, err := repo.RemoveTeamMember(uuid.New())
	if err != nil || ok {
		t.Fatalf("remove missing: ok=%v err=%v", ok, err)
	}
	after, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(before) != string(after) {
		t.Fatalf("document changed after removing a missing id")
	}
	if _, ok, err := repo.RemoveProject(uuid.New()); err != nil || ok {
		t.Fatalf("remove from absent collection: ok=%v err=%v", ok, err)
	}
	if _, err := os.Stat(filepath.Join(dir, KeyProjects+".json")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("removing from an absent collection must not create it")
	}
}

func TestStatusUpdateQueries(t *testing.T) {
	repo, _ := newTestRepo(t)
	member := uuid.New()
	other := uuid.New()
	base := time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)
	var ids []uuid.UUID
	for i, content := range []string{"T1", "T2", "T3"} {
		u := model.NewStatusUpdate(member, content)
		u.Timestamp = base.Add(time.Duration(i) * time.Hour)
		ids = append(ids, u.ID)
		if err := repo.SaveStatusUpdate(u); err != nil {
			t.Fatal(err)
		}
	}
	foreign := model.NewStatusUpdate(other, "elsewhere")
	foreign.Timestamp = base.Add(-time.Hour)
	if err := repo.SaveStatusUpdate(foreign); err != nil {
		t.Fatal(err)
	}

	mine, err := repo.StatusUpdatesForMember(member)
	if err != nil {
		t.Fatal(err)
	}
	if len(mine) != 3 {
		t.Fatalf("expected 3 updates for member, got %d", len(mine))
	}
	recent, err := repo.RecentStatusUpdates(2)
	if err != nil {
		t.Fatal(err)
	}
	if len(recent) != 2 || recent[0].Content != "T3" || recent[1].Content != "T2" {
		t.Fatalf("recent = %+v", recent)
	}
	all, err := repo.RecentStatusUpdates(10)
	if err != nil || len(all) != 4 {
		t.Fatalf("recent(10) = %d %v", len(all), err)
	}
	none, err := repo.RecentStatusUpdates(0)
	if err != nil || len(none) != 0 {
		t.Fatalf("recent(0) = %d %v", len(none), err)
	}
}

func TestConversationsForMember(t *testing.T) {
	repo, _ := newTestRepo(t)
	member := uuid.New()
	for i := 0; i < 2; i++ {
		if err := repo.SaveConversation(model.NewConversation(member)); err != nil {
			t.Fatal(err)
		}
	}
	if err := repo.SaveConversation(model.NewConversation(uuid.New())); err != nil {
		t.Fatal(err)
	}
	convs, err := repo.ConversationsForMember(member)
	if err != nil || len(convs) != 2 {
		t.Fatalf("conversations for member = %d %v", len(convs), err)
	}
}

func TestRecentAIDecisions(t *testing.T) {
	repo, _ := newTestRepo(t)
	decision := model.NewAIDecision("task_prioritization", "urgent tasks", "fix bugs first", 0.85)
	if err := repo.SaveAIDecision(decision); err != nil {
		t.Fatal(err)
	}
	decision.SetOutcome("Recommendation followed, bugs fixed")
	if err := repo.SaveAIDecision(decision); err != nil {
		t.Fatal(err)
	}
	older := model.NewAIDecision("staffing", "", "", 0.2)
	older.CreatedAt = decision.CreatedAt.Add(-time.Hour)
	if err := repo.SaveAIDecision(older); err != nil {
		t.Fatal(err)
	}
	recent, err := repo.RecentAIDecisions(5)
	if err != nil {
		t.Fatal(err)
	}
	if len(recent) != 2 || recent[0].ID != decision.ID {
		t.Fatalf("recent decisions = %+v", recent)
	}
	if recent[0].Outcome == nil {
		t.Fatalf("outcome lost on upsert")
	}
}

func TestTeamMetricsLatestAndRange(t *testing.T) {
	repo, _ := newTestRepo(t)
	if _, ok, err := repo.LatestTeamMetrics(); err != nil || ok {
		t.Fatalf("latest on empty collection: ok=%v err=%v", ok, err)
	}
	d1 := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	d2 := d1.AddDate(0, 0, 7)
	d3 := d2.AddDate(0, 0, 7)
	var saved []model.TeamMetrics
	for _, d := range []time.Time{d3, d1, d2} {
		m := model.NewTeamMetrics(d)
		saved = append(saved, m)
		if err := repo.SaveTeamMetrics(m); err != nil {
			t.Fatal(err)
		}
	}
	latest, ok, err := repo.LatestTeamMetrics()
	if err != nil || !ok || !latest.Date.Equal(d3) {
		t.Fatalf("latest = %+v ok=%v err=%v", latest, ok, err)
	}
	inRange, err := repo.TeamMetricsRange(d1, d2)
	if err != nil {
		t.Fatal(err)
	}
	if len(inRange) != 2 || !inRange[0].Date.Equal(d1) || !inRange[1].Date.Equal(d2) {
		t.Fatalf("range = %+v", inRange)
	}
}

func TestLatestTeamMetricsTieBreaksOnSmallestID(t *testing.T) {
	repo, _ := newTestRepo(t)
	date := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	a := model.NewTeamMetrics(date)
	a.ID = uuid.MustParse("00000000-0000-0000-0000-000000000001")
	b := model.NewTeamMetrics(date)
	b.ID = uuid.MustParse("ffffffff-0000-0000-0000-000000000000")
	for _, m := range []model.TeamMetrics{b, a} {
		if err := repo.SaveTeamMetrics(m); err != nil {
			t.Fatal(err)
		}
	}
	latest, _, err := repo.LatestTeamMetrics()
	if err != nil {
		t.Fatal(err)
	}
	if latest.ID != a.ID {
		t.Fatalf("tie should resolve to smallest id, got %s", latest.ID)
	}
}

func TestMalformedDocumentSurfacesDecodeError(t *testing.T) {
	repo, dir := newTestRepo(t)
	if err := os.WriteFile(filepath.Join(dir, KeyTeamMembers+".json"), []byte("{"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := repo.ListTeamMembers()
	var decodeErr *storage.DecodeError
	if !errors.As(err, &decodeErr) {
		t.Fatalf("expected DecodeError, got %v", err)
	}
	if err := repo.SaveTeamMember(model.NewTeamMember("x", "y", "z")); err == nil {
		t.Fatalf("save must not overwrite a document it cannot parse")
	}
}

func TestConcurrentSavesThroughOneRepository(t *testing.T) {
	repo, _ := newTestRepo(t)
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := repo.SaveTeamMember(model.NewTeamMember("m", "m@example.com", "dev")); err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()
	members, err := repo.ListTeamMembers()
	if err != nil {
		t.Fatal(err)
	}
	if len(members) != 20 {
		t.Fatalf("lost updates: %d members", len(members))
	}
}

func TestCollectionEnvelopeOnDisk(t *testing.T) {
	stamp := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	dir := t.TempDir()
	repo, err := Open(dir, WithClock(func() time.Time { return stamp }))
	if err != nil {
		t.Fatal(err)
	}
	member := model.NewTeamMember("Env", "env@example.com", "dev")
	if err := repo.SaveTeamMember(member); err != nil {
		t.Fatal(err)
	}
	store, err := storage.NewStore(dir)
	if err != nil {
		t.Fatal(err)
	}
	var envelope struct {
		Items       map[string]map[string]any `json:"items"`
		LastUpdated time.Time                 `json:"last_updated"`
	}
	if _, err := store.Load(KeyTeamMembers, &envelope); err != nil {
		t.Fatal(err)
	}
	if _, ok := envelope.Items[member.ID.String()]; !ok {
		t.Fatalf("items not keyed by id: %+v", envelope.Items)
	}
	if !envelope.LastUpdated.Equal(stamp) {
		t.Fatalf("last_updated = %v, want %v", envelope.LastUpdated, stamp)
	}
	counts, err := repo.Counts()
	if err != nil {
		t.Fatal(err)
	}
	if counts[KeyTeamMembers] != 1 || counts[KeyProjects] != 0 {
		t.Fatalf("counts = %v", counts)
	}
}
