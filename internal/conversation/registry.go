package conversation

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/ashureev/talent-manual/internal/debugprobe"
)

// Key identifies one browser tab of one client.
type Key struct {
	ClientID  string
	SessionID string
}

func (k Key) String() string {
	return k.ClientID + ":" + k.SessionID
}

// Entry is the per-key state hosted by the Registry.
type Entry struct {
	Controller *Controller
	Probe      *debugprobe.Probe

	lastSeen time.Time
}

// Factory builds the entry for a key seen for the first time.
type Factory func(Key) *Entry

// EvictCallback is called when the sweeper drops an idle entry.
type EvictCallback func(Key)

// Registry hosts one controller and probe per client key.
type Registry struct {
	factory Factory
	now     func() time.Time
	logger  *slog.Logger

	mu      sync.Mutex
	entries map[Key]*Entry
}

// NewRegistry creates an empty registry.
func NewRegistry(factory Factory, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		factory: factory,
		now:     time.Now,
		logger:  logger,
		entries: make(map[Key]*Entry),
	}
}

// Get returns the entry for key, creating it on first use, and marks it as
// recently seen.
func (r *Registry) Get(key Key) *Entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[key]
	if !ok {
		e = r.factory(key)
		r.entries[key] = e
		r.logger.Debug("Registry entry created", "client_key", key.String())
	}
	e.lastSeen = r.now()
	return e
}

// Lookup returns the entry for key without creating it.
func (r *Registry) Lookup(key Key) (*Entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[key]
	if ok {
		e.lastSeen = r.now()
	}
	return e, ok
}

// Len returns the number of hosted entries.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Sweep removes entries idle for longer than ttl and returns their keys.
// Abandoned sessions are dropped without notifying the backend.
func (r *Registry) Sweep(ttl time.Duration) []Key {
	r.mu.Lock()
	cutoff := r.now().Add(-ttl)
	var evicted []Key
	for key, e := range r.entries {
		if e.lastSeen.Before(cutoff) {
			delete(r.entries, key)
			evicted = append(evicted, key)
		}
	}
	r.mu.Unlock()
	return evicted
}

// StartSweeper periodically evicts idle entries until ctx is done.
func (r *Registry) StartSweeper(ctx context.Context, interval, ttl time.Duration, onEvict EvictCallback) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		r.logger.Info("Session sweeper started", "interval", interval, "ttl", ttl)

		for {
			select {
			case <-ticker.C:
				r.sweepOnce(ttl, onEvict)
			case <-ctx.Done():
				r.logger.Info("Session sweeper shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
}

func (r *Registry) sweepOnce(ttl time.Duration, onEvict EvictCallback) {
	evicted := r.Sweep(ttl)
	if len(evicted) == 0 {
		return
	}

	for _, key := range evicted {
		r.logger.Info("Session sweeper evicted idle session", "client_key", key.String())
		if onEvict != nil {
			onEvict(key)
		}
	}
	r.logger.Info("Session sweeper cleanup completed", "evicted", len(evicted))
}
