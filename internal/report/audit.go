package report

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// AuditAction identifies a state-changing operation.
type AuditAction string

const (
	AuditActionCreateReport AuditAction = "CREATE_REPORT"
	AuditActionUpdateStatus AuditAction = "UPDATE_STATUS"
	AuditActionCreateBackup AuditAction = "CREATE_BACKUP"
)

// AuditEntry is one link of the append-only audit chain. SelfHash covers
// the entry's own fields plus the previous entry's hash, so removing or
// reordering entries inside a day segment is detectable.
type AuditEntry struct {
	ID        string            `json:"id"`
	Timestamp time.Time         `json:"timestamp"`
	Action    AuditAction       `json:"action"`
	ReportID  string            `json:"report_id"`
	SessionID string            `json:"session_id,omitempty"`
	Details   map[string]string `json:"details,omitempty"`
	PrevHash  string            `json:"prev_hash,omitempty"`
	SelfHash  string            `json:"self_hash"`
}

// NewAuditEntry builds an entry without its chain fields; the store
// links it (PrevHash) and seals it (SelfHash) inside the append
// transaction so the chain head cannot race.
func NewAuditEntry(action AuditAction, reportID, sessionID string, details map[string]string) *AuditEntry {
	return &AuditEntry{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC(),
		Action:    action,
		ReportID:  reportID,
		SessionID: sessionID,
		Details:   details,
	}
}

// ComputeHash hashes the entry's attested fields together with the
// previous entry's hash.
func (e *AuditEntry) ComputeHash() string {
	input := strings.Join([]string{
		e.Timestamp.UTC().Format(time.RFC3339Nano),
		string(e.Action),
		e.ReportID,
		e.SessionID,
		e.PrevHash,
	}, "|")
	sum := sha256.Sum256([]byte(input))
	return hex.EncodeToString(sum[:])
}

// Seal links the entry to the previous hash and computes its own.
func (e *AuditEntry) Seal(prevHash string) {
	e.PrevHash = prevHash
	e.SelfHash = e.ComputeHash()
}

// VerifyChain validates one day segment of the audit log: each entry's
// hash must recompute and each PrevHash must equal the prior entry's
// SelfHash (empty for the segment's first entry).
func VerifyChain(entries []*AuditEntry) error {
	prev := ""
	for i, e := range entries {
		if e.PrevHash != prev {
			return fmt.Errorf("audit chain broken at entry %d (%s): previous hash mismatch", i, e.ID)
		}
		if e.SelfHash != e.ComputeHash() {
			return fmt.Errorf("audit chain broken at entry %d (%s): self hash mismatch", i, e.ID)
		}
		prev = e.SelfHash
	}
	return nil
}

// DaySegment formats the calendar-day key the audit log is segmented by.
func DaySegment(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}
