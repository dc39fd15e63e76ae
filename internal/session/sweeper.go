package session

import (
	"context"
	"time"

	"wuwareport/internal/metrics"

	"github.com/rs/zerolog/log"
)

// SweepExpired removes sessions idle past the TTL and prunes their
// fingerprint groups. Blacklisted sessions are kept so the blacklist
// cannot be aged out. Candidates are collected under a read lock first;
// each is then re-checked before removal so a session that became active
// mid-sweep survives.
func (e *Engine) SweepExpired(ctx context.Context, now time.Time) int {
	e.mu.RLock()
	candidates := make([]*Session, 0)
	for _, s := range e.sessions {
		candidates = append(candidates, s)
	}
	e.mu.RUnlock()

	removed := 0
	for _, s := range candidates {
		s.mu.Lock()
		expired := !s.Blacklisted && now.Sub(s.LastActivity) > e.opts.TTL
		s.mu.Unlock()
		if !expired {
			continue
		}

		e.mu.Lock()
		// Re-check under the write lock; Resolve may have refreshed it.
		s.mu.Lock()
		expired = !s.Blacklisted && now.Sub(s.LastActivity) > e.opts.TTL
		s.mu.Unlock()
		if expired {
			delete(e.sessions, s.ID)
			if g := e.groups[s.Fingerprint]; g != nil {
				delete(g, s.ID)
				if len(g) == 0 {
					delete(e.groups, s.Fingerprint)
				}
			}
			removed++
		}
		e.mu.Unlock()

		if !expired {
			continue
		}

		// Snapshot cleanup failure for one session must not abort the
		// sweep for the rest.
		if e.store != nil {
			if err := e.store.DeleteSession(ctx, s.ID); err != nil {
				log.Error().Err(err).Str("session", s.ID).Msg("session: snapshot delete failed")
			}
		}
	}

	if removed > 0 {
		log.Debug().Int("removed", removed).Msg("session: sweep complete")
		metrics.SessionsSwept.Add(float64(removed))
	}
	return removed
}

// StartSweeper runs SweepExpired on the given interval in the
// background. The returned function stops it.
func (e *Engine) StartSweeper(interval time.Duration) func() {
	stop := make(chan struct{})

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				e.SweepExpired(context.Background(), time.Now())
			case <-stop:
				return
			}
		}
	}()

	return func() { close(stop) }
}
