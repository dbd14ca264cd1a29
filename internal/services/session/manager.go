package session

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/eligo/internal/common"
)

// Session is an isolated, disposable automation profile for exactly one run.
// The clone is owned by the job that acquired it and deleted on release.
type Session struct {
	ID       string
	Dir      string
	FirstRun bool // no persisted profile existed; manual login required
}

// Manager clones the long-lived authenticated profile into per-run temp
// directories. The persisted profile is read-only during runs; concurrent
// jobs each get their own clone.
type Manager struct {
	profileDir string
	tempRoot   string
	logger     arbor.ILogger
}

// NewManager creates a session manager from configuration
func NewManager(config *common.SessionConfig, logger arbor.ILogger) *Manager {
	return &Manager{
		profileDir: config.ProfileDir,
		tempRoot:   config.TempDir,
		logger:     logger,
	}
}

// ProfileDir returns the persisted profile directory path.
func (m *Manager) ProfileDir() string {
	return m.profileDir
}

// ProfileExists reports whether a previously-authenticated profile is
// persisted. Existence alone signals "previously authenticated".
func (m *Manager) ProfileExists() bool {
	entries, err := os.ReadDir(m.profileDir)
	if err != nil {
		return false
	}
	return len(entries) > 0
}

// Acquire clones the persisted profile into a fresh directory scoped to the
// given job. A session is best-effort reused, never required: clone failure
// degrades to an empty profile rather than aborting the run.
func (m *Manager) Acquire(jobID string) (*Session, error) {
	dir := filepath.Join(m.tempRoot, jobID)
	firstRun := !m.ProfileExists()

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create session directory: %w", err)
	}

	if firstRun {
		m.logger.Warn().Str("job_id", jobID).Msg("No persisted profile found, starting from empty session (manual login required)")
		return &Session{ID: jobID, Dir: dir, FirstRun: true}, nil
	}

	if err := copyDir(m.profileDir, dir); err != nil {
		m.logger.Warn().
			Err(err).
			Str("job_id", jobID).
			Msg("Session clone failed, using fresh session")
		// Start over from an empty directory rather than a half-copied one.
		if rmErr := os.RemoveAll(dir); rmErr == nil {
			_ = os.MkdirAll(dir, 0755)
		}
		return &Session{ID: jobID, Dir: dir, FirstRun: false}, nil
	}

	m.logger.Debug().
		Str("job_id", jobID).
		Str("dir", dir).
		Msg("Session cloned for isolated run")

	return &Session{ID: jobID, Dir: dir, FirstRun: false}, nil
}

// Release deletes the session clone. Called in a deferred block so the clone
// is removed whether the run completed, failed, or panicked.
func (m *Manager) Release(s *Session) {
	if s == nil {
		return
	}
	if err := os.RemoveAll(s.Dir); err != nil {
		m.logger.Error().
			Err(err).
			Str("job_id", s.ID).
			Str("dir", s.Dir).
			Msg("Failed to delete session clone")
		return
	}
	m.logger.Debug().
		Str("job_id", s.ID).
		Msg("Session clone deleted")
}

// copyDir recursively copies src into dst. Symlinks and unreadable entries
// are skipped; Chrome profiles contain sockets and lock files that cannot
// (and need not) be cloned.
func copyDir(src, dst string) error {
	return filepath.WalkDir(src, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}

		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)

		if d.IsDir() {
			return os.MkdirAll(target, 0755)
		}

		if !d.Type().IsRegular() {
			return nil
		}

		in, err := os.Open(path)
		if err != nil {
			// Live profile files may be locked; skip them.
			return nil
		}
		defer in.Close()

		out, err := os.Create(target)
		if err != nil {
			return err
		}
		defer out.Close()

		_, err = io.Copy(out, in)
		return err
	})
}
