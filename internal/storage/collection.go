package storage

import (
	"sort"
	"time"
)

// Collection maps entity ids to values for one entity type. The whole
// collection is persisted as a single document; it has no IO of its own.
type Collection[T any] struct {
	Items       map[string]T `json:"items"`
	LastUpdated time.Time    `json:"last_updated"`

	now func() time.Time
}

// NewCollection returns an empty collection stamped with the current time.
func NewCollection[T any]() *Collection[T] {
	c := &Collection[T]{Items: map[string]T{}}
	c.LastUpdated = c.clock()
	return c
}

// SetClock overrides the clock used to stamp LastUpdated.
func (c *Collection[T]) SetClock(clock func() time.Time) {
	c.now = clock
}

// Insert adds or replaces the value stored under id.
func (c *Collection[T]) Insert(id string, value T) {
	if c.Items == nil {
		c.Items = map[string]T{}
	}
	c.Items[id] = value
	c.LastUpdated = c.clock()
}

// Get returns the value stored under id.
func (c *Collection[T]) Get(id string) (T, bool) {
	value, ok := c.Items[id]
	return value, ok
}

// Remove deletes id and returns the removed value. LastUpdated only moves when
// something was actually removed.
func (c *Collection[T]) Remove(id string) (T, bool) {
	value, ok := c.Items[id]
	if !ok {
		return value, false
	}
	delete(c.Items, id)
	c.LastUpdated = c.clock()
	return value, true
}

// Len reports the number of entries.
func (c *Collection[T]) Len() int {
	return len(c.Items)
}

// IsEmpty reports whether the collection holds no entries.
func (c *Collection[T]) IsEmpty() bool {
	return len(c.Items) == 0
}

// Keys returns the ids in ascending order.
func (c *Collection[T]) Keys() []string {
	keys := make([]string, 0, len(c.Items))
	for id := range c.Items {
		keys = append(keys, id)
	}
	sort.Strings(keys)
	return keys
}

// Values returns the entries ordered by id. This is the collection order every
// unsorted query reports.
func (c *Collection[T]) Values() []T {
	values := make([]T, 0, len(c.Items))
	for _, id := range c.Keys() {
		values = append(values, c.Items[id])
	}
	return values
}

func (c *Collection[T]) clock() time.Time {
	if c.now != nil {
		return c.now().UTC()
	}
	return time.Now().UTC()
}
