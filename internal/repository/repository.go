// Package repository exposes typed CRUD and query operations over the
// per-entity collections kept in the document store.
package repository

import (
	"fmt"
	"sync"
	"time"

	"github.com/kingrea/timeless/internal/logging"
	"github.com/kingrea/timeless/internal/storage"
)

// Document keys, one collection per entity type.
const (
	KeyTeamMembers   = "team_members"
	KeyProjects      = "projects"
	KeyStatusUpdates = "status_updates"
	KeyConversations = "conversations"
	KeyAIDecisions   = "ai_decisions"
	KeyTeamMetrics   = "team_metrics"
)

// Keys lists every collection document the repository manages.
var Keys = []string{
	KeyTeamMembers,
	KeyProjects,
	KeyStatusUpdates,
	KeyConversations,
	KeyAIDecisions,
	KeyTeamMetrics,
}

// TeamRepository stores each entity type as one Collection document and
// implements every write as load, modify, save of the whole collection.
//
// Writes through one TeamRepository are serialized per collection by an
// in-process mutex. Nothing coordinates separate processes or separate
// repository instances over the same data directory: two writers that both load
// before either saves lose one update, and the last writer replaces the whole
// collection. Callers that need that must serialize access themselves.
type TeamRepository struct {
	docs storage.Documents
	log  *logging.Logger
	now  func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// Option customizes a TeamRepository during construction.
type Option func(*TeamRepository)

// WithLogger attaches a logger for persistence events.
func WithLogger(log *logging.Logger) Option {
	return func(r *TeamRepository) {
		r.log = log
	}
}

// WithClock overrides the clock used to stamp collection last_updated values.
func WithClock(clock func() time.Time) Option {
	return func(r *TeamRepository) {
		if clock != nil {
			r.now = clock
		}
	}
}

// New builds a repository over an existing document store.
func New(docs storage.Documents, opts ...Option) *TeamRepository {
	r := &TeamRepository{
		docs:  docs,
		now:   time.Now,
		locks: map[string]*sync.Mutex{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Open creates the data directory if needed and returns a repository backed by
// a JSON document store inside it.
func Open(dataDir string, opts ...Option) (*TeamRepository, error) {
	store, err := storage.NewStore(dataDir)
	if err != nil {
		return nil, err
	}
	return New(store, opts...), nil
}

// Counts reports how many entries each collection holds.
func (r *TeamRepository) Counts() (map[string]int, error) {
	counts := make(map[string]int, len(Keys))
	for _, key := range Keys {
		var c storage.Collection[struct{}]
		if _, err := r.docs.Load(key, &c); err != nil {
			return nil, fmt.Errorf("repository: count %s: %w", key, err)
		}
		counts[key] = c.Len()
	}
	return counts, nil
}

func (r *TeamRepository) lock(key string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.locks[key]
	if !ok {
		l = &sync.Mutex{}
		r.locks[key] = l
	}
	return l
}

// load returns the collection stored under key, or an empty one.
func load[T any](r *TeamRepository, key string) (*storage.Collection[T], error) {
	c := &storage.Collection[T]{}
	found, err := r.docs.Load(key, c)
	if err != nil {
		return nil, fmt.Errorf("repository: load %s: %w", key, err)
	}
	if !found {
		c = storage.NewCollection[T]()
	}
	c.SetClock(r.now)
	return c, nil
}

func upsert[T any](r *TeamRepository, key, id string, value T) error {
	l := r.lock(key)
	l.Lock()
	defer l.Unlock()
	c, err := load[T](r, key)
	if err != nil {
		return err
	}
	c.Insert(id, value)
	if err := r.docs.Save(key, c); err != nil {
		return fmt.Errorf("repository: save %s: %w", key, err)
	}
	r.log.Debugf("%s: upserted %s (%d entries)", key, id, c.Len())
	return nil
}

func get[T any](r *TeamRepository, key, id string) (T, bool, error) {
	c, err := load[T](r, key)
	if err != nil {
		var zero T
		return zero, false, err
	}
	value, ok := c.Get(id)
	return value, ok, nil
}

func list[T any](r *TeamRepository, key string) ([]T, error) {
	c, err := load[T](r, key)
	if err != nil {
		return nil, err
	}
	return c.Values(), nil
}

// remove leaves the document untouched when id is not present.
func remove[T any](r *TeamRepository, key, id string) (T, bool, error) {
	l := r.lock(key)
	l.Lock()
	defer l.Unlock()
	var zero T
	c, err := load[T](r, key)
	if err != nil {
		return zero, false, err
	}
	removed, ok := c.Remove(id)
	if !ok {
		return zero, false, nil
	}
	if err := r.docs.Save(key, c); err != nil {
		return zero, false, fmt.Errorf("repository: save %s: %w", key, err)
	}
	r.log.Debugf("%s: removed %s (%d entries)", key, id, c.Len())
	return removed, true, nil
}

func filter[T any](values []T, keep func(T) bool) []T {
	out := make([]T, 0, len(values))
	for _, v := range values {
		if keep(v) {
			out = append(out, v)
		}
	}
	return out
}

func truncate[T any](values []T, limit int) []T {
	if limit <= 0 {
		return values[:0]
	}
	if len(values) > limit {
		return values[:limit]
	}
	return values
}
