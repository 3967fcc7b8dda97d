package service

import (
	"time"

	"go.uber.org/zap"

	"github.com/mbendtzen/game-show-backend/internal/clock"
)

// Registry holds the live sessions by game code. Eviction removes a session
// from memory only; the persisted record stays behind for later restore.
// Callers hold the coordinator lock for map access; the abandonment timers
// re-enter through the evict callback, which takes the lock itself.
type Registry struct {
	sessions map[string]*Session
	timers   map[string]*time.Timer
	clk      clock.Clock
	log      *zap.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(clk clock.Clock, log *zap.Logger) *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
		timers:   make(map[string]*time.Timer),
		clk:      clk,
		log:      log,
	}
}

// Get returns the resident session for a code.
func (r *Registry) Get(code string) (*Session, bool) {
	s, ok := r.sessions[code]
	return s, ok
}

// Put registers a session under its code.
func (r *Registry) Put(s *Session) {
	r.sessions[s.Code] = s
}

// Delete drops a session from memory and stops any pending timer for it.
func (r *Registry) Delete(code string) {
	delete(r.sessions, code)
	r.CancelEviction(code)
}

// Len returns the number of resident sessions.
func (r *Registry) Len() int {
	return len(r.sessions)
}

// Sweep evicts sessions older than maxAge and returns the evicted codes.
// The threshold applies to creation time, so long-running games are purged
// too; they restore from the store on the next join.
func (r *Registry) Sweep(maxAge time.Duration) []string {
	now := r.clk.Now()
	var evicted []string
	for code, s := range r.sessions {
		if now.Sub(s.CreatedAt) > maxAge {
			delete(r.sessions, code)
			r.CancelEviction(code)
			evicted = append(evicted, code)
		}
	}
	if len(evicted) > 0 {
		r.log.Info("registry sweep evicted sessions", zap.Strings("codes", evicted))
	}
	return evicted
}

// ScheduleEviction arms (or re-arms) the host-abandonment timer for a code.
// The timer is keyed so a later CancelEviction, or a replacement schedule,
// never leaves a stale timer racing a re-created session.
func (r *Registry) ScheduleEviction(code string, delay time.Duration, evict func(code string)) {
	if t, ok := r.timers[code]; ok {
		t.Stop()
	}
	r.timers[code] = time.AfterFunc(delay, func() {
		evict(code)
	})
	r.log.Info("scheduled abandonment eviction",
		zap.String("game_code", code),
		zap.Duration("delay", delay))
}

// CancelEviction stops the abandonment timer for a code, if armed.
func (r *Registry) CancelEviction(code string) bool {
	t, ok := r.timers[code]
	if !ok {
		return false
	}
	t.Stop()
	delete(r.timers, code)
	return true
}

// StopAllTimers cancels every pending abandonment timer (teardown path).
func (r *Registry) StopAllTimers() {
	for code, t := range r.timers {
		t.Stop()
		delete(r.timers, code)
	}
}
