// Package cache provides the process-wide resource cache of the dashboard.
// Entries hold the last known value of a remote resource, its freshness and
// the identity of the single request allowed to update it.
package cache

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of an entry.
type Status string

const (
	StatusIdle    Status = "idle"
	StatusLoading Status = "loading"
	StatusFresh   Status = "fresh"
	StatusStale   Status = "stale"
	StatusErrored Status = "errored"
)

// Entry is a read-only snapshot of a cache entry.
type Entry struct {
	Key       Key
	Value     any
	HasValue  bool
	Status    Status
	Err       error
	InFlight  string // request id of the fetch allowed to commit, "" when none
	UpdatedAt time.Time
}

// Flight is a handle on a fetch in progress.
type Flight struct {
	Key       Key
	RequestID string
	done      <-chan struct{}
}

// Done is closed once the fetch has been committed or discarded.
func (f Flight) Done() <-chan struct{} {
	return f.done
}

// Wait blocks until the fetch completes or ctx is done. Giving up waiting
// never cancels the fetch itself.
func (f Flight) Wait(ctx context.Context) error {
	select {
	case <-f.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Option customizes a Cache.
type Option func(*Cache)

// WithIDSource replaces the request id generator (uuid by default).
func WithIDSource(next func() string) Option {
	return func(c *Cache) { c.newID = next }
}

// WithClock replaces the clock used for UpdatedAt.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// Cache is a thread-safe resource cache with in-flight de-duplication.
// Entries are never evicted.
type Cache struct {
	mu      sync.Mutex
	entries map[string]*Entry
	flights map[string]chan struct{} // by request id
	newID   func() string
	now     func() time.Time
}

// New creates an empty cache.
func New(opts ...Option) *Cache {
	c := &Cache{
		entries: make(map[string]*Entry),
		flights: make(map[string]chan struct{}),
		newID:   uuid.NewString,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetOrCreate returns the entry for key, creating an idle one if needed.
func (c *Cache) GetOrCreate(key Key) Entry {
	c.mu.Lock()
	defer c.mu.Unlock()

	return *c.lookup(key)
}

// Peek returns the entry for key without creating it.
func (c *Cache) Peek(key Key) (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key.String()]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// BeginFetch starts a fetch for key. If one is already loading, its flight is
// returned with alreadyInFlight=true and the caller must wait on it instead
// of issuing a new request.
func (c *Cache) BeginFetch(key Key) (flight Flight, alreadyInFlight bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e := c.lookup(key)
	if e.Status == StatusLoading && e.InFlight != "" {
		return Flight{Key: e.Key, RequestID: e.InFlight, done: c.flights[e.InFlight]}, true
	}

	id := c.newID()
	done := make(chan struct{})
	c.flights[id] = done
	e.Status = StatusLoading
	e.InFlight = id
	return Flight{Key: e.Key, RequestID: id, done: done}, false
}

// JoinFlight returns the flight of the fetch loading key, if any. It never
// starts a fetch or creates an entry.
func (c *Cache) JoinFlight(key Key) (Flight, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key.String()]
	if !ok || e.Status != StatusLoading || e.InFlight == "" {
		return Flight{}, false
	}
	return Flight{Key: e.Key, RequestID: e.InFlight, done: c.flights[e.InFlight]}, true
}

// Resolve commits value for key if requestID is still the in-flight request.
// It reports whether the value was committed.
func (c *Cache) Resolve(key Key, requestID string, value any) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	defer c.land(requestID)

	e, ok := c.entries[key.String()]
	if !ok || e.InFlight != requestID {
		return false
	}
	e.Value = value
	e.HasValue = true
	e.Status = StatusFresh
	e.Err = nil
	e.InFlight = ""
	e.UpdatedAt = c.now()
	return true
}

// Fail records err for key if requestID is still the in-flight request. The
// last known value is kept so it can still be displayed.
func (c *Cache) Fail(key Key, requestID string, err error) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	defer c.land(requestID)

	e, ok := c.entries[key.String()]
	if !ok || e.InFlight != requestID {
		return false
	}
	e.Status = StatusErrored
	e.Err = err
	e.InFlight = ""
	e.UpdatedAt = c.now()
	return true
}

// Invalidate marks every matching entry stale and returns their keys. Values
// are kept. A matching entry that is loading loses its in-flight marker, so
// the superseded request cannot commit and the next observer refetches.
func (c *Cache) Invalidate(pred Predicate) []Key {
	c.mu.Lock()
	defer c.mu.Unlock()

	var keys []Key
	for _, e := range c.entries {
		if !pred(e.Key) {
			continue
		}
		e.Status = StatusStale
		e.InFlight = ""
		keys = append(keys, e.Key)
	}
	sortKeys(keys)
	return keys
}

// Keys returns the keys of all entries, sorted.
func (c *Cache) Keys() []Key {
	c.mu.Lock()
	defer c.mu.Unlock()

	keys := make([]Key, 0, len(c.entries))
	for _, e := range c.entries {
		keys = append(keys, e.Key)
	}
	sortKeys(keys)
	return keys
}

// Len returns the number of entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.entries)
}

// Reset drops every entry. Fetches still in flight can no longer commit.
func (c *Cache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]*Entry)
}

// lookup must be called with mu held.
func (c *Cache) lookup(key Key) *Entry {
	s := key.String()
	e, ok := c.entries[s]
	if !ok {
		e = &Entry{Key: key.clone(), Status: StatusIdle}
		c.entries[s] = e
	}
	return e
}

// land closes the flight's done channel; must be called with mu held.
func (c *Cache) land(requestID string) {
	if done, ok := c.flights[requestID]; ok {
		close(done)
		delete(c.flights, requestID)
	}
}

func sortKeys(keys []Key) {
	sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })
}
