package report

import (
	"context"
	"fmt"
	"sync"
	"time"

	"wuwareport/internal/filecheck"
	"wuwareport/internal/metrics"
	"wuwareport/internal/schema"

	"github.com/rs/zerolog/log"
)

// persistence retry policy for transient write failures.
const (
	writeAttempts = 3
	writeBackoff  = 50 * time.Millisecond
)

// Service owns the live report state. All reads are served from memory;
// every mutation is written durably before it is acknowledged.
type Service struct {
	mu      sync.RWMutex
	reports map[string]*Report

	store     Store
	cipher    *Cipher
	backupDir string
}

// NewService wires the report store.
func NewService(store Store, cipher *Cipher, backupDir string) *Service {
	return &Service{
		reports:   make(map[string]*Report),
		store:     store,
		cipher:    cipher,
		backupDir: backupDir,
	}
}

// Load reads all persisted reports into memory. It runs before traffic
// is accepted. A record that fails its integrity check is skipped with a
// warning rather than aborting startup.
func (s *Service) Load(ctx context.Context) error {
	persisted, err := s.store.LoadReports(ctx)
	if err != nil {
		return fmt.Errorf("load reports: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	skipped := 0
	for _, r := range persisted {
		if !r.VerifyIntegrity() {
			log.Warn().Str("report", r.ID).Msg("report: integrity check failed, skipping record")
			metrics.IntegrityFailures.Inc()
			skipped++
			continue
		}
		s.reports[r.ID] = r
	}

	log.Info().Int("loaded", len(s.reports)).Int("skipped", skipped).Msg("report: store loaded")
	return nil
}

// SaveRequest carries everything needed to persist one submission.
// Files must already have passed the validation pipeline.
type SaveRequest struct {
	Submission      schema.Submission
	UserAgent       string
	Files           []filecheck.Result
	SessionID       string
	IPHash          string
	FingerprintHash string
}

// Save validates, encrypts and durably persists a submission, appends a
// CREATE_REPORT audit entry and returns the new report id. Validation
// here is authoritative and independent of whatever the boundary checked.
func (s *Service) Save(ctx context.Context, req SaveRequest) (string, error) {
	if err := req.Submission.Validate(); err != nil {
		return "", err
	}
	if len(req.Files) > schema.MaxFiles {
		return "", &schema.ValidationError{
			Field:   "files",
			Message: fmt.Sprintf("at most %d files", schema.MaxFiles),
		}
	}
	for _, f := range req.Files {
		if !f.Accepted {
			return "", &schema.ValidationError{Field: "files", Message: "unvalidated file in submission"}
		}
	}

	desc, err := s.cipher.Seal(req.Submission.Description)
	if err != nil {
		return "", fmt.Errorf("seal description: %w", err)
	}
	ua, err := s.cipher.Seal(req.UserAgent)
	if err != nil {
		return "", fmt.Errorf("seal user agent: %w", err)
	}

	now := time.Now().UTC()
	r := &Report{
		ID:            NewReportID(),
		Category:      req.Submission.Category,
		OtherCategory: req.Submission.OtherCategory,
		Description:   desc,
		UserAgent:     ua,
		Platform:      req.Submission.Platform,
		Metadata: Metadata{
			IPHash:          req.IPHash,
			FingerprintHash: req.FingerprintHash,
			SessionID:       req.SessionID,
			SubmittedAt:     now,
			Status:          StatusPending,
		},
	}
	for _, f := range req.Files {
		r.Files = append(r.Files, FileArtifact{
			StoredName: f.StoredName,
			MimeType:   f.DeclaredMime,
			SizeBytes:  f.Size,
			UploadedAt: now,
		})
	}
	r.IntegrityHash = r.ComputeIntegrityHash()

	// Durable before acknowledged: the in-memory map is only updated
	// once the write stuck.
	if err := s.putDurable(ctx, r); err != nil {
		return "", err
	}

	s.mu.Lock()
	s.reports[r.ID] = r
	s.mu.Unlock()

	s.audit(ctx, NewAuditEntry(AuditActionCreateReport, r.ID, req.SessionID, map[string]string{
		"category": string(r.Category),
		"platform": string(r.Platform),
		"files":    fmt.Sprintf("%d", len(r.Files)),
	}))

	metrics.SubmissionsAccepted.Inc()
	log.Info().
		Str("report", r.ID).
		Str("category", string(r.Category)).
		Str("platform", string(r.Platform)).
		Int("files", len(r.Files)).
		Msg("report: created")

	return r.ID, nil
}

// putDurable writes with bounded retries before giving up on the
// record.
func (s *Service) putDurable(ctx context.Context, r *Report) error {
	var err error
	for attempt := 1; attempt <= writeAttempts; attempt++ {
		if err = s.store.PutReport(ctx, r); err == nil {
			return nil
		}
		log.Warn().Err(err).Str("report", r.ID).Int("attempt", attempt).Msg("report: write failed")
		if attempt < writeAttempts {
			select {
			case <-time.After(time.Duration(attempt) * writeBackoff):
			case <-ctx.Done():
				err = ctx.Err()
				attempt = writeAttempts
			}
		}
	}
	metrics.PersistenceFailures.Inc()
	return fmt.Errorf("%w: %v", ErrPersistence, err)
}

// Get returns a report view. A record whose integrity hash no longer
// recomputes is treated as not found; corrupted data is never returned.
func (s *Service) Get(ctx context.Context, id string, revealSensitive bool) (*View, error) {
	s.mu.RLock()
	r := s.reports[id]
	s.mu.RUnlock()

	if r == nil {
		return nil, ErrNotFound
	}
	if !r.VerifyIntegrity() {
		log.Warn().Str("report", id).Msg("report: integrity check failed on read")
		metrics.IntegrityFailures.Inc()
		return nil, ErrNotFound
	}

	v := &View{
		ID:            r.ID,
		Category:      r.Category,
		OtherCategory: r.OtherCategory,
		Platform:      r.Platform,
		Status:        r.Metadata.Status,
		SubmittedAt:   r.Metadata.SubmittedAt,
		HasFiles:      len(r.Files) > 0,
		FileCount:     len(r.Files),
	}

	if revealSensitive {
		desc, err := s.cipher.Open(r.Description)
		if err != nil {
			return nil, fmt.Errorf("open description: %w", err)
		}
		ua, err := s.cipher.Open(r.UserAgent)
		if err != nil {
			return nil, fmt.Errorf("open user agent: %w", err)
		}
		v.Description = desc
		v.UserAgent = ua
	}

	return v, nil
}

// UpdateStatus is the only way a report's status changes. The mutation
// is durable and audited with the old and new status and the actor.
func (s *Service) UpdateStatus(ctx context.Context, id string, status Status, actor string) (*View, error) {
	if !status.Valid() {
		return nil, &schema.ValidationError{Field: "status", Message: "unknown status"}
	}

	s.mu.Lock()
	r := s.reports[id]
	if r == nil {
		s.mu.Unlock()
		return nil, ErrNotFound
	}

	old := r.Metadata.Status
	updated := *r
	updated.Metadata.Status = status
	updated.IntegrityHash = updated.ComputeIntegrityHash()

	if err := s.putDurable(ctx, &updated); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	s.reports[id] = &updated
	s.mu.Unlock()

	s.audit(ctx, NewAuditEntry(AuditActionUpdateStatus, id, "", map[string]string{
		"old_status": string(old),
		"new_status": string(status),
		"actor":      actor,
	}))

	log.Info().
		Str("report", id).
		Str("old_status", string(old)).
		Str("new_status", string(status)).
		Str("actor", actor).
		Msg("report: status updated")

	return s.Get(ctx, id, false)
}

// Stats is a point-in-time aggregate over the loaded reports.
type Stats struct {
	TotalReports int            `json:"total_reports"`
	ByCategory   map[string]int `json:"by_category"`
	ByPlatform   map[string]int `json:"by_platform"`
	ByStatus     map[string]int `json:"by_status"`
	RecentCount  int            `json:"recent_count"`
}

// Statistics aggregates over a snapshot of the loaded reports. Recent
// means submitted within the last 7 days.
func (s *Service) Statistics(ctx context.Context) Stats {
	s.mu.RLock()
	snapshot := make([]*Report, 0, len(s.reports))
	for _, r := range s.reports {
		snapshot = append(snapshot, r)
	}
	s.mu.RUnlock()

	stats := Stats{
		ByCategory: make(map[string]int),
		ByPlatform: make(map[string]int),
		ByStatus:   make(map[string]int),
	}
	cutoff := time.Now().Add(-7 * 24 * time.Hour)

	for _, r := range snapshot {
		stats.TotalReports++
		stats.ByCategory[string(r.Category)]++
		stats.ByPlatform[string(r.Platform)]++
		stats.ByStatus[string(r.Metadata.Status)]++
		if r.Metadata.SubmittedAt.After(cutoff) {
			stats.RecentCount++
		}
	}
	return stats
}

// Backup snapshots the database into a timestamped location and audits
// the action.
func (s *Service) Backup(ctx context.Context) (string, error) {
	location, err := s.store.Backup(ctx, s.backupDir)
	if err != nil {
		metrics.PersistenceFailures.Inc()
		return "", fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	s.audit(ctx, NewAuditEntry(AuditActionCreateBackup, "", "", map[string]string{
		"location": location,
	}))

	log.Info().Str("location", location).Msg("report: backup created")
	return location, nil
}

// AuditLog returns one day segment of the audit log.
func (s *Service) AuditLog(ctx context.Context, day string) ([]*AuditEntry, error) {
	return s.store.LoadAudit(ctx, day)
}

// Count returns the number of loaded reports.
func (s *Service) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.reports)
}

// CountByStatus feeds the metrics collector.
func (s *Service) CountByStatus() map[string]int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]int)
	for _, r := range s.reports {
		out[string(r.Metadata.Status)]++
	}
	return out
}

// audit appends an entry. Audit failure after a durable record write is
// logged loudly but does not unwind the already-persisted operation.
func (s *Service) audit(ctx context.Context, e *AuditEntry) {
	if err := s.store.AppendAudit(ctx, e); err != nil {
		log.Error().Err(err).Str("action", string(e.Action)).Str("report", e.ReportID).Msg("report: audit append failed")
		metrics.PersistenceFailures.Inc()
		return
	}
	metrics.AuditEntriesWritten.Inc()
}
