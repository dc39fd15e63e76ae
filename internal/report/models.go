// Package report builds, protects and serves submission records. Every
// persisted report carries an integrity hash that is recomputed on read,
// and its sensitive fields are sealed with an authenticated cipher.
package report

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"wuwareport/internal/schema"
)

// Status tracks a report through review. Transitions happen only via
// Service.UpdateStatus, never implicitly.
type Status string

const (
	StatusPending  Status = "pending"
	StatusInReview Status = "in-review"
	StatusResolved Status = "resolved"
	StatusRejected Status = "rejected"
)

// AllStatuses returns every valid status.
func AllStatuses() []Status {
	return []Status{StatusPending, StatusInReview, StatusResolved, StatusRejected}
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	for _, k := range AllStatuses() {
		if s == k {
			return true
		}
	}
	return false
}

// IDPrefix is the literal prefix of every report identifier.
const IDPrefix = "WUWA"

// idPattern matches PREFIX-<uppercase base36 timestamp>-<8 hex chars>.
var idPattern = regexp.MustCompile(`^` + IDPrefix + `-[0-9A-Z]+-[0-9a-f]{8}$`)

// NewReportID generates a globally unique report identifier of the form
// WUWA-<UPPERCASE-BASE36-TIMESTAMP>-<8-HEX-CHARS>.
func NewReportID() string {
	ts := strings.ToUpper(strconv.FormatInt(time.Now().UnixMilli(), 36))

	buf := make([]byte, 4)
	if _, err := rand.Read(buf); err != nil {
		panic("report: crypto/rand unavailable: " + err.Error())
	}
	return fmt.Sprintf("%s-%s-%s", IDPrefix, ts, hex.EncodeToString(buf))
}

// ValidID reports whether id has the report identifier shape. IDs are
// opaque, case-sensitive tokens; this only guards lookups against junk.
func ValidID(id string) bool {
	return idPattern.MatchString(id)
}

// Encrypted is a sealed field: the cipher method tag plus the encoded
// ciphertext.
type Encrypted struct {
	Method string `json:"method"`
	Data   string `json:"data"`
}

// FileArtifact is a validated, stored upload. The stored name is
// generated and has no relation to whatever the client called the file.
type FileArtifact struct {
	StoredName string    `json:"stored_name"`
	MimeType   string    `json:"mime_type"`
	SizeBytes  int64     `json:"size_bytes"`
	UploadedAt time.Time `json:"uploaded_at"`
}

// Metadata is the non-content context of a submission. Addresses and
// fingerprints are stored only as salted hashes.
type Metadata struct {
	IPHash          string    `json:"ip_hash"`
	FingerprintHash string    `json:"fingerprint_hash"`
	SessionID       string    `json:"session_id"`
	SubmittedAt     time.Time `json:"submitted_at"`
	Status          Status    `json:"status"`
}

// Report is a persisted submission record.
type Report struct {
	ID            string          `json:"id"`
	Category      schema.Category `json:"category"`
	OtherCategory string          `json:"other_category,omitempty"`
	Description   Encrypted       `json:"description"`
	UserAgent     Encrypted       `json:"user_agent"`
	Platform      schema.Platform `json:"platform"`
	Files         []FileArtifact  `json:"files,omitempty"`
	Metadata      Metadata        `json:"metadata"`
	IntegrityHash string          `json:"integrity_hash"`
}

// ComputeIntegrityHash hashes the record's identifying fields. Any
// stored report whose hash no longer recomputes is treated as unreadable.
func (r *Report) ComputeIntegrityHash() string {
	input := strings.Join([]string{
		r.ID,
		string(r.Category),
		string(r.Platform),
		r.Metadata.SubmittedAt.UTC().Format(time.RFC3339Nano),
	}, "|")
	sum := sha256.Sum256([]byte(input))
	return hex.EncodeToString(sum[:])
}

// VerifyIntegrity recomputes the integrity hash and compares it to the
// stored value.
func (r *Report) VerifyIntegrity() bool {
	return r.IntegrityHash != "" && r.IntegrityHash == r.ComputeIntegrityHash()
}

// View is the externally visible shape of a report. Sensitive fields are
// populated only when explicitly revealed.
type View struct {
	ID            string          `json:"id"`
	Category      schema.Category `json:"category"`
	OtherCategory string          `json:"other_category,omitempty"`
	Platform      schema.Platform `json:"platform"`
	Status        Status          `json:"status"`
	SubmittedAt   time.Time       `json:"submitted_at"`
	HasFiles      bool            `json:"has_files"`
	FileCount     int             `json:"file_count"`

	// Description and UserAgent are decrypted only for revealSensitive
	// reads.
	Description string `json:"description,omitempty"`
	UserAgent   string `json:"user_agent,omitempty"`
}
