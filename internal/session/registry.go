package session

import (
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"github.com/hyperjump/docgenius/internal/indexer"
)

// Factory creates an empty session with the given ID.
type Factory func(id string) *Session

// Registry keeps live sessions keyed by ID. Sessions idle longer than the TTL expire.
type Registry struct {
	cache   *cache.Cache
	factory Factory
	base    atomic.Pointer[indexer.Snapshot]
	logger  *zap.Logger
}

// NewRegistry creates a registry whose sessions expire after ttl without access.
func NewRegistry(ttl, cleanupInterval time.Duration, factory Factory, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		cache:   cache.New(ttl, cleanupInterval),
		factory: factory,
		logger:  logger,
	}
}

// Create starts a session. It begins in StateIndexReady when a base index is set.
func (r *Registry) Create() *Session {
	id := uuid.NewString()
	s := r.factory(id)
	seed := r.base.Load()
	if seed != nil {
		s.Install(seed)
	}
	r.cache.Set(id, s, cache.DefaultExpiration)
	// A Broadcast between seeding and Set would have missed this session.
	if base := r.base.Load(); base != seed {
		s.Replace(seed, base)
	}
	r.logger.Debug("session created", zap.String("session", id))
	return s
}

// Get returns the session with id and extends its lifetime.
func (r *Registry) Get(id string) (*Session, bool) {
	x, found := r.cache.Get(id)
	if !found {
		return nil, false
	}
	s := x.(*Session)
	r.cache.Set(id, s, cache.DefaultExpiration)
	return s, true
}

// Delete removes the session with id.
func (r *Registry) Delete(id string) {
	r.cache.Delete(id)
}

// Count returns the number of live sessions.
func (r *Registry) Count() int { return r.cache.ItemCount() }

// Base returns the index new sessions start with.
func (r *Registry) Base() *indexer.Snapshot { return r.base.Load() }

// SetBase sets the index new sessions start with.
func (r *Registry) SetBase(snap *indexer.Snapshot) { r.base.Store(snap) }

// Broadcast makes snap the base index. Sessions still on the previous base, or without an
// index, switch to snap; sessions that built their own index keep it. It returns the number
// of sessions updated. Replaced snapshots are not closed here: queries may still hold them.
func (r *Registry) Broadcast(snap *indexer.Snapshot) int {
	prev := r.base.Swap(snap)
	n := 0
	for _, item := range r.cache.Items() {
		s, ok := item.Object.(*Session)
		if !ok {
			continue
		}
		if _, swapped := s.Replace(prev, snap); swapped {
			n++
			continue
		}
		if prev != nil {
			if _, swapped := s.Replace(nil, snap); swapped {
				n++
			}
		}
	}
	r.logger.Info("index broadcast", zap.Int("sessions", n), zap.Int("chunks", snap.Size()))
	return n
}
