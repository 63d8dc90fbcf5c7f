package session

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/room4-2/asr-worker/metrics"

	"go.uber.org/zap"
)

// Entry is the in-memory state of one audio session
type Entry struct {
	ID        string
	CreatedAt time.Time

	mu            sync.Mutex
	lastPCMLength int
	lastSeen      time.Time
}

// LastPCMLength returns the most recently observed payload size
func (e *Entry) LastPCMLength() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastPCMLength
}

// LastSeen returns when the entry was last created or updated
func (e *Entry) LastSeen() time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastSeen
}

// Mirror receives registry changes, e.g. to publish them to Redis.
// Implementations must not block.
type Mirror interface {
	Created(id string, at time.Time)
	Updated(id string, pcmLength int, at time.Time)
	Removed(id string)
}

// Registry maps session ids to entries. It is safe for concurrent use;
// operations on different ids never contend on a shared lock.
type Registry struct {
	entries sync.Map // map[string]*Entry
	count   atomic.Int64

	mirror  Mirror
	metrics *metrics.Metrics
	logger  *zap.Logger
	now     func() time.Time
}

// Option configures a Registry
type Option func(*Registry)

// WithMirror publishes every change to m
func WithMirror(m Mirror) Option {
	return func(r *Registry) {
		r.mirror = m
	}
}

// WithMetrics records session counts in m
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Registry) {
		r.metrics = m
	}
}

// WithLogger sets the registry logger
func WithLogger(logger *zap.Logger) Option {
	return func(r *Registry) {
		r.logger = logger
	}
}

// withClock replaces time.Now in tests
func withClock(now func() time.Time) Option {
	return func(r *Registry) {
		r.now = now
	}
}

// NewRegistry creates an empty registry
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		logger: zap.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.Named("registry")
	return r
}

// ResolveOrCreate returns the entry for id, creating it if needed
func (r *Registry) ResolveOrCreate(id string) *Entry {
	if existing, ok := r.entries.Load(id); ok {
		return existing.(*Entry)
	}

	now := r.now()
	fresh := &Entry{ID: id, CreatedAt: now, lastSeen: now}

	// Held until Created is mirrored so a racing Update or Remove follows it
	fresh.mu.Lock()
	defer fresh.mu.Unlock()

	actual, loaded := r.entries.LoadOrStore(id, fresh)
	if loaded {
		return actual.(*Entry)
	}

	r.count.Add(1)
	if r.metrics != nil {
		r.metrics.SessionsCreated.Inc()
		r.metrics.ActiveSessions.Inc()
	}
	if r.mirror != nil {
		r.mirror.Created(id, now)
	}
	r.logger.Debug("session created", zap.String("session_id", id))

	return fresh
}

// Update records the latest payload size for id. Unknown ids are ignored.
func (r *Registry) Update(id string, pcmLength int) {
	v, ok := r.entries.Load(id)
	if !ok {
		return
	}
	entry := v.(*Entry)
	now := r.now()

	entry.mu.Lock()
	defer entry.mu.Unlock()
	entry.lastPCMLength = pcmLength
	entry.lastSeen = now

	// A concurrent Remove mirrors after this lock is released; skip entries it already deleted
	if r.mirror != nil && r.isCurrent(id, entry) {
		r.mirror.Updated(id, pcmLength, now)
	}
}

func (r *Registry) isCurrent(id string, entry *Entry) bool {
	v, ok := r.entries.Load(id)
	return ok && v.(*Entry) == entry
}

// Get returns the entry for id if it exists
func (r *Registry) Get(id string) (*Entry, bool) {
	v, ok := r.entries.Load(id)
	if !ok {
		return nil, false
	}
	return v.(*Entry), true
}

// Remove deletes the entry for id. Removing an unknown id is a no-op.
func (r *Registry) Remove(id string) {
	v, loaded := r.entries.LoadAndDelete(id)
	if !loaded {
		return
	}

	r.count.Add(-1)
	if r.metrics != nil {
		r.metrics.SessionsRemoved.Inc()
		r.metrics.ActiveSessions.Dec()
	}
	r.mirrorRemoved(v.(*Entry))
	r.logger.Debug("session removed", zap.String("session_id", id))
}

// mirrorRemoved waits for in-flight mirror calls on entry before publishing its removal
func (r *Registry) mirrorRemoved(entry *Entry) {
	if r.mirror == nil {
		return
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	r.mirror.Removed(entry.ID)
}

// Len returns the number of entries
func (r *Registry) Len() int {
	return int(r.count.Load())
}

// RemoveIdle removes entries not seen for longer than timeout and returns how many were removed
func (r *Registry) RemoveIdle(timeout time.Duration) int {
	now := r.now()
	removed := 0

	r.entries.Range(func(key, value any) bool {
		entry := value.(*Entry)
		if now.Sub(entry.LastSeen()) > timeout {
			// only delete the exact entry we inspected, not a newer one with the same id
			if r.entries.CompareAndDelete(key, entry) {
				r.count.Add(-1)
				if r.metrics != nil {
					r.metrics.SessionsRemoved.Inc()
					r.metrics.ActiveSessions.Dec()
				}
				r.mirrorRemoved(entry)
				removed++
			}
		}
		return true
	})

	if removed > 0 {
		r.logger.Info("🧹 removed idle sessions", zap.Int("count", removed), zap.Duration("timeout", timeout))
	}
	return removed
}

// StartCleanupRoutine periodically removes idle sessions until ctx is done
func (r *Registry) StartCleanupRoutine(ctx context.Context, interval, timeout time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.RemoveIdle(timeout)
		}
	}
}

// Clear removes every entry
func (r *Registry) Clear() {
	r.entries.Range(func(key, _ any) bool {
		r.Remove(key.(string))
		return true
	})
}
