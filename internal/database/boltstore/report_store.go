package boltstore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"wuwareport/internal/report"

	"github.com/rs/zerolog/log"
	bolt "go.etcd.io/bbolt"
)

// ReportStore provides persistent storage for reports and the audit
// chain. It implements report.Store.
type ReportStore struct {
	db *bolt.DB
}

var _ report.Store = (*ReportStore)(nil)

// PutReport durably writes a report record (upsert). bbolt fsyncs
// before Update returns, which is the durability the save path needs.
func (s *ReportStore) PutReport(ctx context.Context, r *report.Report) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(BucketReports)
		if bucket == nil {
			return fmt.Errorf("bucket not found: %s", BucketReports)
		}

		return bucket.Put([]byte(r.ID), data)
	})
}

// LoadReports returns all persisted reports. Malformed records are
// skipped with a warning; integrity checking is the caller's concern.
func (s *ReportStore) LoadReports(ctx context.Context) ([]*report.Report, error) {
	var reports []*report.Report

	err := s.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(BucketReports)
		if bucket == nil {
			return nil
		}

		return bucket.ForEach(func(k, v []byte) error {
			var r report.Report
			if err := json.Unmarshal(v, &r); err != nil {
				log.Warn().Str("key", string(k)).Msg("boltstore: skipping malformed report record")
				return nil
			}
			reports = append(reports, &r)
			return nil
		})
	})

	return reports, err
}

// auditKey orders entries chronologically inside their day segment.
// Format: "day/unixnano:id".
func auditKey(e *report.AuditEntry) []byte {
	return []byte(fmt.Sprintf("%s/%d:%s", report.DaySegment(e.Timestamp), e.Timestamp.UnixNano(), e.ID))
}

// AppendAudit links the entry to its day segment's chain head, seals it
// and appends it. Head read, entry write and head update happen in one
// transaction so concurrent appends cannot fork the chain.
func (s *ReportStore) AppendAudit(ctx context.Context, e *report.AuditEntry) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		logBucket := tx.Bucket(BucketAuditLog)
		if logBucket == nil {
			return fmt.Errorf("bucket not found: %s", BucketAuditLog)
		}
		heads := tx.Bucket(BucketAuditHeads)
		if heads == nil {
			return fmt.Errorf("bucket not found: %s", BucketAuditHeads)
		}

		day := []byte(report.DaySegment(e.Timestamp))
		e.Seal(string(heads.Get(day)))

		data, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("failed to marshal audit entry: %w", err)
		}

		if err := logBucket.Put(auditKey(e), data); err != nil {
			return err
		}
		return heads.Put(day, []byte(e.SelfHash))
	})
}

// LoadAudit returns one day segment in append order.
func (s *ReportStore) LoadAudit(ctx context.Context, day string) ([]*report.AuditEntry, error) {
	var entries []*report.AuditEntry

	err := s.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(BucketAuditLog)
		if bucket == nil {
			return nil
		}

		cursor := bucket.Cursor()
		prefix := []byte(day + "/")

		for k, v := cursor.Seek(prefix); k != nil && hasPrefix(k, prefix); k, v = cursor.Next() {
			var e report.AuditEntry
			if err := json.Unmarshal(v, &e); err != nil {
				log.Warn().Str("key", string(k)).Msg("boltstore: skipping malformed audit entry")
				continue
			}
			entries = append(entries, &e)
		}

		return nil
	})

	return entries, err
}

// Backup writes a consistent snapshot of the database into dir under a
// timestamped name and returns its path.
func (s *ReportStore) Backup(ctx context.Context, dir string) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create backup directory: %w", err)
	}

	name := fmt.Sprintf("wuwareport-%s.db", time.Now().UTC().Format("20060102T150405Z"))
	path := filepath.Join(dir, name)

	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.CopyFile(path, 0600)
	})
	if err != nil {
		return "", fmt.Errorf("failed to write backup: %w", err)
	}

	return path, nil
}

// hasPrefix checks if a byte slice has a given prefix.
func hasPrefix(s, prefix []byte) bool {
	if len(s) < len(prefix) {
		return false
	}
	for i, b := range prefix {
		if s[i] != b {
			return false
		}
	}
	return true
}
