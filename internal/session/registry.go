// Package session implements the registry of short-lived auth tokens,
// decoupled from the long-lived client connections.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/Lucius-40/lanshop/internal/errs"
	"github.com/Lucius-40/lanshop/internal/model"
)

// Registry stores active sessions keyed by token. Expiry is sliding: every
// successful Get refreshes the idle window. Safe for concurrent use from
// many connection handlers.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*model.Session
	ttl      time.Duration
	log      *zap.Logger

	now func() time.Time
}

// NewRegistry constructs a Registry with the given idle TTL.
func NewRegistry(ttl time.Duration, log *zap.Logger) *Registry {
	return &Registry{
		sessions: make(map[string]*model.Session),
		ttl:      ttl,
		log:      log,
		now:      time.Now,
	}
}

// Create issues a new random token bound to the username.
func (r *Registry) Create(username string) (*model.Session, error) {
	id, err := uuid.NewV4()
	if err != nil {
		return nil, err
	}

	s := &model.Session{
		ID:           id.String(),
		Username:     username,
		LastActivity: r.now(),
	}

	r.mu.Lock()
	r.sessions[s.ID] = s
	r.mu.Unlock()

	r.log.Info("session created", zap.String("username", username))
	cpy := *s
	return &cpy, nil
}

// Get returns the session for the token if present and not expired,
// refreshing its activity timestamp. An expired session is evicted and
// reported as errs.ErrSessionExpired.
func (r *Registry) Get(token string) (*model.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[token]
	if !ok {
		return nil, errs.ErrSessionExpired
	}
	now := r.now()
	if s.Expired(r.ttl, now) {
		delete(r.sessions, token)
		r.log.Info("session expired", zap.String("username", s.Username))
		return nil, errs.ErrSessionExpired
	}
	s.LastActivity = now
	cpy := *s
	return &cpy, nil
}

// IsValid reports whether the token maps to a live session.
func (r *Registry) IsValid(token string) bool {
	_, err := r.Get(token)
	return err == nil
}

// Remove evicts a session (explicit logout).
func (r *Registry) Remove(token string) {
	r.mu.Lock()
	s, ok := r.sessions[token]
	delete(r.sessions, token)
	r.mu.Unlock()

	if ok {
		r.log.Info("session removed", zap.String("username", s.Username))
	}
}

// Sweep evicts every expired session and returns how many were removed.
func (r *Registry) Sweep() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	removed := 0
	for token, s := range r.sessions {
		if s.Expired(r.ttl, now) {
			delete(r.sessions, token)
			removed++
		}
	}
	if removed > 0 {
		r.log.Info("swept expired sessions", zap.Int("removed", removed))
	}
	return removed
}

// Count returns the number of live (possibly expired-but-unswept) sessions.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// RunSweeper periodically sweeps until the context is cancelled.
func (r *Registry) RunSweeper(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			r.Sweep()
		}
	}
}
