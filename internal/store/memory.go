package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/jpalmerr/routepulse/internal/route"
)

// entry is the state kept for one route.
type entry struct {
	status StatusResult

	// window is a ring of the last WindowSize outcomes.
	window []bool
	next   int
	ups    int
}

func (e *entry) push(success bool) {
	if len(e.window) < WindowSize {
		e.window = append(e.window, success)
	} else {
		if e.window[e.next] {
			e.ups--
		}
		e.window[e.next] = success
		e.next = (e.next + 1) % WindowSize
	}
	if success {
		e.ups++
	}
	e.status.Checks = len(e.window)
	e.status.Uptime = float64(e.ups) * 100 / float64(len(e.window))
}

// tombstoneTTL bounds how long a removed route id is remembered. It only
// needs to outlast the slowest probe, retries included.
const tombstoneTTL = time.Hour

// MemoryStore is an in-memory implementation of [Store].
//
// Status results are keyed by route id, with new results replacing previous
// values. Subscribers receive updates via buffered channels (buffer size
// 100). Updates are sent non-blocking; if a subscriber's buffer is full, the
// update is dropped for that subscriber.
//
// Results of probes that started before their route was removed are
// discarded, so a late write cannot bring a removed route back.
type MemoryStore struct {
	mu          sync.RWMutex
	entries     map[string]*entry
	removed     map[string]time.Time
	subscribers map[chan StatusResult]struct{}
	subMu       sync.RWMutex
}

// NewMemoryStore creates a new in-memory [Store] implementation.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries:     make(map[string]*entry),
		removed:     make(map[string]time.Time),
		subscribers: make(map[chan StatusResult]struct{}),
	}
}

// RecordResult stores the outcome of a probe and notifies all subscribers.
// A result checked before its route was removed is ignored. It never fails.
func (m *MemoryStore) RecordResult(_ context.Context, result route.Result) error {
	m.mu.Lock()
	if at, ok := m.removed[result.RouteID]; ok {
		if !result.CheckedAt.After(at) {
			m.mu.Unlock()
			return nil
		}
		delete(m.removed, result.RouteID)
	}
	e, ok := m.entries[result.RouteID]
	if !ok {
		e = &entry{}
		m.entries[result.RouteID] = e
	}
	e.status.RouteID = result.RouteID
	e.status.Name = result.RouteName
	e.status.URL = result.URL
	e.status.Method = result.Method
	e.status.Status = result.Status()
	e.status.StatusCode = result.StatusCode
	e.status.ResponseTimeMs = result.ResponseTimeMs
	e.status.Attempts = result.Attempts
	e.status.CheckedAt = result.CheckedAt
	e.status.Error = result.Error
	e.push(result.IsSuccess)
	snapshot := e.status
	m.mu.Unlock()

	m.notifySubscribers(snapshot)
	return nil
}

// Remove forgets the given routes. Subscribers receive a final update with
// Removed set for each route that was stored.
func (m *MemoryStore) Remove(ids ...string) {
	var removed []StatusResult
	now := time.Now()

	m.mu.Lock()
	for id, at := range m.removed {
		if now.Sub(at) > tombstoneTTL {
			delete(m.removed, id)
		}
	}
	for _, id := range ids {
		m.removed[id] = now
		e, ok := m.entries[id]
		if !ok {
			continue
		}
		delete(m.entries, id)
		last := e.status
		last.Removed = true
		removed = append(removed, last)
	}
	m.mu.Unlock()

	for _, r := range removed {
		m.notifySubscribers(r)
	}
}

// Get returns the status of one route.
func (m *MemoryStore) Get(id string) (StatusResult, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.entries[id]
	if !ok {
		return StatusResult{}, false
	}
	return e.status, true
}

// GetAll returns a snapshot of all currently stored status results, ordered
// by route id.
func (m *MemoryStore) GetAll() []StatusResult {
	m.mu.RLock()
	results := make([]StatusResult, 0, len(m.entries))
	for _, e := range m.entries {
		results = append(results, e.status)
	}
	m.mu.RUnlock()

	sort.Slice(results, func(i, j int) bool {
		return results[i].RouteID < results[j].RouteID
	})
	return results
}

// Subscribe creates a new subscription and returns a channel for receiving updates.
//
// The returned channel has a buffer of 100 messages. If the buffer fills
// (slow consumer), new updates are dropped for this subscriber.
//
// Caller must call [MemoryStore.Unsubscribe] when done to prevent resource leaks.
func (m *MemoryStore) Subscribe() <-chan StatusResult {
	ch := make(chan StatusResult, 100)

	m.subMu.Lock()
	m.subscribers[ch] = struct{}{}
	m.subMu.Unlock()

	return ch
}

// Unsubscribe removes a subscription and closes its channel.
// Safe to call multiple times or with an unknown channel.
func (m *MemoryStore) Unsubscribe(ch <-chan StatusResult) {
	m.subMu.Lock()
	defer m.subMu.Unlock()

	for subCh := range m.subscribers {
		if subCh == ch {
			delete(m.subscribers, subCh)
			close(subCh)
			break
		}
	}
}

// notifySubscribers sends the result to all active subscribers without
// blocking.
func (m *MemoryStore) notifySubscribers(result StatusResult) {
	m.subMu.RLock()
	defer m.subMu.RUnlock()

	for ch := range m.subscribers {
		select {
		case ch <- result:
		default:
			// subscriber is slow, drop the message
		}
	}
}
