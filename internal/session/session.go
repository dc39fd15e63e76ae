// Package session tracks per-client submission behavior and decides
// whether a client may submit at all. Sessions are keyed by an opaque
// server-issued token; a fingerprint correlates sessions from the same
// client across token resets so quota cannot be dodged by reconnecting.
package session

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"sync"
	"time"
)

// Session is the per-token state the risk engine maintains. Submissions
// and RiskScore are monotonic; Blacklisted never reverts once set.
type Session struct {
	ID              string    `json:"id"`
	Fingerprint     string    `json:"fingerprint"`
	AddrHash        string    `json:"addr_hash"`
	CreatedAt       time.Time `json:"created_at"`
	LastActivity    time.Time `json:"last_activity"`
	Submissions     int       `json:"submissions"`
	RiskScore       int       `json:"risk_score"`
	Blacklisted     bool      `json:"blacklisted"`
	BlacklistReason string    `json:"blacklist_reason,omitempty"`

	// lastDigest is a hash of the previous submission's description,
	// used by the near-duplicate heuristic. Not persisted.
	lastDigest string

	// mu serializes mutation of this session's counters so concurrent
	// requests for the same token cannot lose an increment.
	mu sync.Mutex
}

// newToken returns a cryptographically random, unguessable session id.
func newToken() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand never fails on supported platforms; a broken
		// entropy source is not something to limp past.
		panic("session: crypto/rand unavailable: " + err.Error())
	}
	return hex.EncodeToString(buf)
}

// Fingerprint derives a stable hash from client-observable signals
// (user agent, locale, address, declared client version). The raw
// signals are never stored.
func Fingerprint(signals ...string) string {
	h := sha256.Sum256([]byte(strings.Join(signals, "\x1f")))
	return hex.EncodeToString(h[:])
}

// HashAddr hashes a client address under a configured salt so raw
// addresses never reach storage or logs.
func HashAddr(addr, salt string) string {
	h := sha256.Sum256([]byte(salt + "\x1f" + addr))
	return hex.EncodeToString(h[:])
}
