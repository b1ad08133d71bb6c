package server

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/cheque-extractor/internal/async"
	"github.com/joseph-ayodele/cheque-extractor/internal/session"
)

const sessionCookie = "cheque_session"

// SessionFactory builds a new session with the given id.
type SessionFactory func(id string) *session.Session

// Registry keeps one session per browser.
type Registry struct {
	newSession SessionFactory
	ttl        time.Duration
	logger     *slog.Logger

	mu       sync.Mutex
	sessions map[string]*session.Session
}

func NewRegistry(factory SessionFactory, ttl time.Duration, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		newSession: factory,
		ttl:        ttl,
		logger:     logger,
		sessions:   make(map[string]*session.Session),
	}
}

// Lookup returns the caller's session, creating it (and setting the cookie) when needed.
func (r *Registry) Lookup(w http.ResponseWriter, req *http.Request) *session.Session {
	if c, err := req.Cookie(sessionCookie); err == nil {
		if _, perr := uuid.Parse(c.Value); perr == nil {
			r.mu.Lock()
			s, ok := r.sessions[c.Value]
			if !ok {
				s = r.newSession(c.Value)
				r.sessions[c.Value] = s
			}
			r.mu.Unlock()
			s.Touch()
			return s
		}
	}

	id := uuid.NewString()
	s := r.newSession(id)
	r.mu.Lock()
	r.sessions[id] = s
	r.mu.Unlock()

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	r.logger.Debug("server.session.created", "session_id", id)
	return s
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Sweep closes and forgets sessions idle for longer than the TTL.
func (r *Registry) Sweep(now time.Time) int {
	if r.ttl <= 0 {
		return 0
	}
	var idle []*session.Session
	r.mu.Lock()
	for id, s := range r.sessions {
		if now.Sub(s.LastActive()) > r.ttl {
			idle = append(idle, s)
			delete(r.sessions, id)
		}
	}
	r.mu.Unlock()

	for _, s := range idle {
		s.Close()
	}
	if len(idle) > 0 {
		r.logger.Info("server.session.evicted", "count", len(idle))
	}
	return len(idle)
}

// Janitor returns a poller that sweeps idle sessions every interval until stopped.
func (r *Registry) Janitor(interval time.Duration) *async.Poller {
	return async.NewPoller(func(ctx context.Context) bool {
		r.Sweep(time.Now())
		return false
	}, r.logger, async.WithInterval(interval), async.WithName("session-janitor"))
}

// CloseAll closes every session.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	all := make([]*session.Session, 0, len(r.sessions))
	for id, s := range r.sessions {
		all = append(all, s)
		delete(r.sessions, id)
	}
	r.mu.Unlock()
	for _, s := range all {
		s.Close()
	}
}
