// Package registry keeps the live consultation sessions of a process, keyed
// by session id. Each session is guarded by its own lock, so requests for
// different sessions never contend and requests for the same session are
// serialized.
package registry

import (
	"context"
	"crypto/rand"
	"fmt"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/atsushibanbanji-collab/visa-expert-system-v3/pkg/advisor/consultation"
	"github.com/atsushibanbanji-collab/visa-expert-system-v3/pkg/advisor/internalerr"
)

// Entry is one registered session. Its fields are only touched while the
// entry lock is held, i.e. inside Registry.With.
type Entry struct {
	mu       sync.Mutex
	id       string
	category string
	session  *consultation.Consultation
	created  time.Time
	lastUsed time.Time
	reported bool
}

// ID returns the session id.
func (e *Entry) ID() string { return e.id }

// Category returns the category the session was started for.
func (e *Entry) Category() string { return e.category }

// Session returns the consultation.
func (e *Entry) Session() *consultation.Consultation { return e.session }

// MarkReported flags the session outcome as recorded and reports whether
// this call was the first to do so.
func (e *Entry) MarkReported() bool {
	if e.reported {
		return false
	}
	e.reported = true
	return true
}

// ResetReported clears the reported flag, e.g. after a restart.
func (e *Entry) ResetReported() { e.reported = false }

// Registry maps session ids to entries.
type Registry struct {
	mu      sync.Mutex
	entries map[string]*Entry
	entropy *ulid.MonotonicEntropy
	now     func() time.Time
	logger  *zap.Logger
}

// New creates an empty registry.
func New(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		entries: make(map[string]*Entry),
		entropy: ulid.Monotonic(rand.Reader, 0),
		now:     time.Now,
		logger:  logger,
	}
}

// Create registers a session and returns its new id.
func (r *Registry) Create(category string, s *consultation.Consultation) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	id := ulid.MustNew(ulid.Timestamp(now), r.entropy).String()
	r.entries[id] = &Entry{
		id:       id,
		category: category,
		session:  s,
		created:  now,
		lastUsed: now,
	}
	r.logger.Debug("session created", zap.String("session", id), zap.String("category", category))
	return id
}

// With runs fn while holding the lock of session id. A session removed
// while With waited for its lock is reported as ErrNoSession.
func (r *Registry) With(id string, fn func(e *Entry) error) error {
	r.mu.Lock()
	e, ok := r.entries[id]
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("session %q: %w", id, internalerr.ErrNoSession)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if !r.touch(id, e) {
		return fmt.Errorf("session %q: %w", id, internalerr.ErrNoSession)
	}
	return fn(e)
}

// touch refreshes lastUsed if e is still registered under id. The caller
// holds e.mu.
func (r *Registry) touch(id string, e *Entry) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.entries[id] != e {
		return false
	}
	e.lastUsed = r.now()
	return true
}

// Delete removes session id and reports whether it existed.
func (r *Registry) Delete(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.entries[id]
	delete(r.entries, id)
	return ok
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Sweep removes sessions idle for longer than maxIdle and returns how many
// were removed. Sessions busy in With are skipped.
func (r *Registry) Sweep(maxIdle time.Duration) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := r.now().Add(-maxIdle)
	removed := 0
	for id, e := range r.entries {
		if !e.mu.TryLock() {
			continue
		}
		if e.lastUsed.Before(cutoff) {
			delete(r.entries, id)
			removed++
		}
		e.mu.Unlock()
	}
	if removed > 0 {
		r.logger.Info("expired idle sessions", zap.Int("removed", removed), zap.Int("live", len(r.entries)))
	}
	return removed
}

// RunSweeper calls Sweep every interval until ctx is done. Intervals below
// one second are raised to one second.
func (r *Registry) RunSweeper(ctx context.Context, interval, maxIdle time.Duration) error {
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			r.Sweep(maxIdle)
		}
	}
}
