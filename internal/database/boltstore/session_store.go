package boltstore

import (
	"context"
	"encoding/json"
	"fmt"

	"wuwareport/internal/session"

	"github.com/rs/zerolog/log"
	bolt "go.etcd.io/bbolt"
)

// SessionStore implements session.SnapshotStore using BoltDB, allowing
// blacklist state to survive server restarts.
type SessionStore struct {
	db *bolt.DB
}

var _ session.SnapshotStore = (*SessionStore)(nil)

// SaveSession persists a session snapshot (upsert).
func (s *SessionStore) SaveSession(ctx context.Context, sess *session.Session) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(BucketSessions)
		if bucket == nil {
			return fmt.Errorf("bucket not found: %s", BucketSessions)
		}

		return bucket.Put([]byte(sess.ID), data)
	})
}

// DeleteSession removes a session snapshot.
func (s *SessionStore) DeleteSession(ctx context.Context, id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(BucketSessions)
		if bucket == nil {
			return nil
		}

		return bucket.Delete([]byte(id))
	})
}

// ListSessions returns all persisted session snapshots. Malformed
// entries are skipped.
func (s *SessionStore) ListSessions(ctx context.Context) ([]*session.Session, error) {
	var sessions []*session.Session

	err := s.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(BucketSessions)
		if bucket == nil {
			return nil
		}

		return bucket.ForEach(func(k, v []byte) error {
			var sess session.Session
			if err := json.Unmarshal(v, &sess); err != nil {
				log.Warn().Str("key", string(k)).Msg("boltstore: skipping malformed session snapshot")
				return nil
			}
			sessions = append(sessions, &sess)
			return nil
		})
	})

	return sessions, err
}
