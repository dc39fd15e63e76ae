package report

import (
	"context"
	"errors"
)

// Store failures surfaced by the service.
var (
	// ErrNotFound covers both truly absent reports and records that
	// failed their integrity check; callers cannot tell the two apart.
	ErrNotFound = errors.New("report not found")

	// ErrPersistence means a durable write failed. It always propagates
	// to the caller: an unwritten report is never reported as saved.
	ErrPersistence = errors.New("durable write failed")
)

// Store is the durable backing for reports and the audit log.
// Implemented by boltstore.
type Store interface {
	// PutReport durably writes a report record. It must not return
	// until the write is durable.
	PutReport(ctx context.Context, r *Report) error

	// LoadReports returns every persisted report. Individually
	// malformed records are skipped, not fatal.
	LoadReports(ctx context.Context) ([]*Report, error)

	// AppendAudit links the entry to the current chain head of its day
	// segment, seals it and appends it atomically.
	AppendAudit(ctx context.Context, e *AuditEntry) error

	// LoadAudit returns one day segment in append order.
	LoadAudit(ctx context.Context, day string) ([]*AuditEntry, error)

	// Backup snapshots the whole database into dir and returns the
	// snapshot location.
	Backup(ctx context.Context, dir string) (string, error)
}
