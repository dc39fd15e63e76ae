package filecheck

import (
	"fmt"
	"os"
	"path/filepath"
)

// Staged holds accepted files written to disk under their stored names
// but not yet committed. A submission that fails downstream (risk
// re-check, persistence) discards the whole stage so no orphaned
// artifacts survive an aborted batch.
type Staged struct {
	dir   string
	paths []string
	done  bool
}

// Stage writes each accepted upload to dir under its stored name. On any
// write failure the files written so far are removed and an error is
// returned; a partial stage never survives.
func Stage(dir string, uploads []*Upload, results []Result) (*Staged, error) {
	if len(uploads) != len(results) {
		return nil, fmt.Errorf("stage: %d uploads but %d results", len(uploads), len(results))
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("stage: create dir: %w", err)
	}

	st := &Staged{dir: dir}
	for i, up := range uploads {
		r := results[i]
		if !r.Accepted {
			st.Discard()
			return nil, fmt.Errorf("stage: %q was not accepted", up.OriginalName)
		}

		path := filepath.Join(dir, r.StoredName)
		if err := os.WriteFile(path, up.Data, 0o600); err != nil {
			st.Discard()
			return nil, fmt.Errorf("stage: write %q: %w", r.StoredName, err)
		}
		st.paths = append(st.paths, path)
	}
	return st, nil
}

// Commit keeps the staged files in place.
func (s *Staged) Commit() {
	s.done = true
}

// Discard removes every staged file. Safe to call after Commit (no-op)
// or more than once.
func (s *Staged) Discard() {
	if s == nil || s.done {
		return
	}
	for _, p := range s.paths {
		os.Remove(p)
	}
	s.paths = nil
	s.done = true
}
