package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode"
	"unicode/utf8"

	"wuwareport/internal/metrics"
	"wuwareport/internal/schema"

	"github.com/rs/zerolog/log"
)

// Admission failures. Both are terminal for the request, neither ever
// reaches persistence.
var (
	// ErrBlacklisted is a permanent rejection.
	ErrBlacklisted = errors.New("session is blacklisted")

	// ErrQuotaExceeded means the session or its fingerprint group hit
	// its submission quota; the client may retry after the window.
	ErrQuotaExceeded = errors.New("submission quota exceeded")
)

// RiskLevel is the outcome of a risk evaluation.
type RiskLevel int

const (
	RiskNone RiskLevel = iota
	RiskMedium
	RiskBlacklisted
)

// SnapshotStore persists session state so blacklist decisions survive a
// restart. Implemented by boltstore.SessionStore.
type SnapshotStore interface {
	SaveSession(ctx context.Context, s *Session) error
	DeleteSession(ctx context.Context, id string) error
	ListSessions(ctx context.Context) ([]*Session, error)
}

// Options tunes the engine. The risk numbers are a starting
// configuration, not policy.
type Options struct {
	PerSessionLimit     int
	PerFingerprintLimit int
	TTL                 time.Duration

	MediumThreshold    int
	BlacklistThreshold int

	// FreeSubmissions is how many submissions accrue no volume risk;
	// each one past that adds VolumePenalty.
	FreeSubmissions int
	VolumePenalty   int

	// ContentPenalty is added per matched content heuristic.
	ContentPenalty int
}

// Engine is the session and risk engine. The session map is guarded by
// an RWMutex; each session additionally serializes its own counter
// mutations, so cross-key reads never block on a hot session.
type Engine struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	groups   map[string]map[string]struct{} // fingerprint -> session ids

	opts  Options
	store SnapshotStore // optional
}

// NewEngine creates an engine. store may be nil, in which case no state
// survives a restart.
func NewEngine(opts Options, store SnapshotStore) *Engine {
	return &Engine{
		sessions: make(map[string]*Session),
		groups:   make(map[string]map[string]struct{}),
		opts:     opts,
		store:    store,
	}
}

// Restore loads persisted sessions, typically at startup before traffic
// is accepted. Expired entries are dropped rather than revived.
func (e *Engine) Restore(ctx context.Context) error {
	if e.store == nil {
		return nil
	}

	snaps, err := e.store.ListSessions(ctx)
	if err != nil {
		return fmt.Errorf("restore sessions: %w", err)
	}

	now := time.Now()
	e.mu.Lock()
	defer e.mu.Unlock()

	restored := 0
	for _, s := range snaps {
		if !s.Blacklisted && now.Sub(s.LastActivity) > e.opts.TTL {
			continue
		}
		e.sessions[s.ID] = s
		e.addToGroup(s)
		restored++
	}

	log.Info().Int("restored", restored).Int("persisted", len(snaps)).Msg("session: state restored")
	return nil
}

// Resolve returns the live session for token, refreshing its activity
// timestamp, or allocates a new one when the token is absent, unknown or
// expired. The second return value reports whether a new session was
// created, meaning the caller must hand the new token to the client.
func (e *Engine) Resolve(token, fingerprint, addrHash string) (*Session, bool) {
	now := time.Now()

	if token != "" {
		e.mu.RLock()
		s := e.sessions[token]
		e.mu.RUnlock()

		if s != nil {
			// A blacklisted session never ages out into a fresh
			// identity. The liveness check and the refresh share one
			// critical section so concurrent requests echoing the same
			// token cannot interleave with the sweeper's reads.
			s.mu.Lock()
			live := s.Blacklisted || now.Sub(s.LastActivity) <= e.opts.TTL
			if live {
				s.LastActivity = now
			}
			s.mu.Unlock()
			if live {
				return s, false
			}
		}
	}

	s := &Session{
		ID:           newToken(),
		Fingerprint:  fingerprint,
		AddrHash:     addrHash,
		CreatedAt:    now,
		LastActivity: now,
	}

	e.mu.Lock()
	e.sessions[s.ID] = s
	e.addToGroup(s)
	e.mu.Unlock()

	metrics.SessionsCreated.Inc()
	return s, true
}

// Admit decides whether the session may submit. It fails closed: a
// blacklisted session is rejected before any quota math, and quota
// checks reject at the limit, not past it.
func (e *Engine) Admit(s *Session) error {
	s.mu.Lock()
	blacklisted := s.Blacklisted
	count := s.Submissions
	s.mu.Unlock()

	if blacklisted {
		metrics.SubmissionsRejected.WithLabelValues("blacklisted").Inc()
		return ErrBlacklisted
	}
	if count >= e.opts.PerSessionLimit {
		metrics.SubmissionsRejected.WithLabelValues("session_quota").Inc()
		return fmt.Errorf("session limit reached: %w", ErrQuotaExceeded)
	}
	if e.groupCount(s.Fingerprint) >= e.opts.PerFingerprintLimit {
		metrics.SubmissionsRejected.WithLabelValues("fingerprint_quota").Inc()
		return fmt.Errorf("fingerprint limit reached: %w", ErrQuotaExceeded)
	}
	return nil
}

// groupCount sums the submission counts of every live session sharing a
// fingerprint. Best effort under concurrent mutation; the per-session
// quota is the hard backstop.
func (e *Engine) groupCount(fingerprint string) int {
	e.mu.RLock()
	ids := make([]string, 0, len(e.groups[fingerprint]))
	for id := range e.groups[fingerprint] {
		ids = append(ids, id)
	}
	members := make([]*Session, 0, len(ids))
	for _, id := range ids {
		if s := e.sessions[id]; s != nil {
			members = append(members, s)
		}
	}
	e.mu.RUnlock()

	total := 0
	for _, s := range members {
		s.mu.Lock()
		total += s.Submissions
		s.mu.Unlock()
	}
	return total
}

// RecordSubmission counts a successful submission. Past the free quota
// each submission also accrues volume risk.
func (e *Engine) RecordSubmission(s *Session) {
	s.mu.Lock()
	s.Submissions++
	s.LastActivity = time.Now()
	if s.Submissions > e.opts.FreeSubmissions {
		s.RiskScore += e.opts.VolumePenalty
	}
	s.mu.Unlock()
}

// ScoreContent applies abuse heuristics to the submitted fields and
// accrues risk per match. It never fails; degenerate input is simply
// suspicious, not an error.
func (e *Engine) ScoreContent(s *Session, sub schema.Submission) {
	matched := contentFlags(sub.Description)

	digest := Fingerprint(strings.TrimSpace(strings.ToLower(sub.Description)))

	s.mu.Lock()
	if s.lastDigest != "" && s.lastDigest == digest {
		matched = append(matched, "duplicate-submission")
	}
	s.lastDigest = digest
	penalty := len(matched) * e.opts.ContentPenalty
	s.RiskScore += penalty
	score := s.RiskScore
	s.mu.Unlock()

	if len(matched) > 0 {
		log.Debug().
			Str("session", s.ID).
			Strs("heuristics", matched).
			Int("risk_score", score).
			Msg("session: content heuristics matched")
		metrics.RiskHeuristicsMatched.Add(float64(len(matched)))
	}
}

// placeholder texts nobody files a genuine report with.
var placeholderTexts = []string{"test", "testing", "asdf", "qwerty", "lorem ipsum", "placeholder"}

func contentFlags(description string) []string {
	var flags []string
	trimmed := strings.TrimSpace(description)

	if longestRun(trimmed) >= 10 {
		flags = append(flags, "repeated-characters")
	}
	// Degenerate text collapses to almost nothing once whitespace and
	// repeated runs are stripped; it can satisfy the length bound while
	// carrying no signal.
	if utf8.RuneCountInString(collapseRuns(trimmed)) < schema.DescriptionMinRunes {
		flags = append(flags, "degenerate-text")
	}
	lower := strings.ToLower(trimmed)
	for _, p := range placeholderTexts {
		if lower == p {
			flags = append(flags, "placeholder-text")
			break
		}
	}
	return flags
}

// collapseRuns strips whitespace and collapses consecutive repeats of a
// rune, leaving only the distinct payload of the text.
func collapseRuns(s string) string {
	var b strings.Builder
	var prev rune
	for _, r := range s {
		if unicode.IsSpace(r) || r == prev {
			continue
		}
		b.WriteRune(r)
		prev = r
	}
	return b.String()
}

// longestRun returns the length of the longest run of one repeated rune.
func longestRun(s string) int {
	var prev rune
	run, best := 0, 0
	for _, r := range s {
		if r == prev {
			run++
		} else {
			prev, run = r, 1
		}
		if run > best {
			best = run
		}
	}
	return best
}

// EvaluateRisk inspects the accumulated score. Past the blacklist
// threshold the session is permanently blacklisted and the decision is
// persisted; past the medium threshold a signal is emitted for
// observability but nothing blocks.
func (e *Engine) EvaluateRisk(ctx context.Context, s *Session) RiskLevel {
	s.mu.Lock()
	if s.Blacklisted {
		s.mu.Unlock()
		return RiskBlacklisted
	}
	score := s.RiskScore
	var level RiskLevel
	if score > e.opts.BlacklistThreshold {
		s.Blacklisted = true
		s.BlacklistReason = fmt.Sprintf("risk score %d exceeded threshold %d", score, e.opts.BlacklistThreshold)
		level = RiskBlacklisted
	} else if score > e.opts.MediumThreshold {
		level = RiskMedium
	}
	s.mu.Unlock()

	switch level {
	case RiskBlacklisted:
		log.Warn().Str("session", s.ID).Int("risk_score", score).Msg("session: blacklisted")
		metrics.SessionsBlacklisted.Inc()
		e.persist(ctx, s)
	case RiskMedium:
		log.Warn().Str("session", s.ID).Int("risk_score", score).Msg("session: medium risk")
	}
	return level
}

// persist snapshots a session. A write failure here loses durability of
// the blacklist across restart but must not fail the request path.
func (e *Engine) persist(ctx context.Context, s *Session) {
	if e.store == nil {
		return
	}
	if err := e.store.SaveSession(ctx, s); err != nil {
		log.Error().Err(err).Str("session", s.ID).Msg("session: snapshot failed")
	}
}

// Count returns the number of live sessions.
func (e *Engine) Count() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.sessions)
}

// addToGroup registers a session under its fingerprint.
// Caller must hold e.mu.
func (e *Engine) addToGroup(s *Session) {
	g := e.groups[s.Fingerprint]
	if g == nil {
		g = make(map[string]struct{})
		e.groups[s.Fingerprint] = g
	}
	g[s.ID] = struct{}{}
}
