package session

import (
	"os"
	"path/filepath"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/eligo/internal/common"
)

// Sweeper periodically purges session clones orphaned by crashed runs.
// Normal runs delete their own clone; the sweeper only catches leftovers.
type Sweeper struct {
	tempRoot string
	maxAge   time.Duration
	schedule string
	cron     *cron.Cron
	logger   arbor.ILogger
}

// NewSweeper creates a sweeper over the session temp directory
func NewSweeper(config *common.SessionConfig, logger arbor.ILogger) *Sweeper {
	return &Sweeper{
		tempRoot: config.TempDir,
		maxAge:   common.ParseDurationOr(config.MaxCloneAge, 6*time.Hour),
		schedule: config.SweepSchedule,
		cron:     cron.New(),
		logger:   logger,
	}
}

// Start schedules the sweep and runs one immediately to clear leftovers from
// a previous crash.
func (s *Sweeper) Start() error {
	schedule := s.schedule
	if schedule == "" {
		schedule = "@every 1h"
	}

	if _, err := s.cron.AddFunc(schedule, s.sweep); err != nil {
		return err
	}
	s.cron.Start()

	s.logger.Info().
		Str("schedule", schedule).
		Dur("max_age", s.maxAge).
		Msg("Session sweeper started")

	go s.sweep()
	return nil
}

// Stop halts the cron schedule
func (s *Sweeper) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Debug().Msg("Session sweeper stopped")
}

// sweep removes clone directories older than maxAge
func (s *Sweeper) sweep() {
	entries, err := os.ReadDir(s.tempRoot)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warn().Err(err).Str("dir", s.tempRoot).Msg("Session sweep failed to read temp directory")
		}
		return
	}

	cutoff := time.Now().Add(-s.maxAge)
	removed := 0

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}

		dir := filepath.Join(s.tempRoot, entry.Name())
		if err := os.RemoveAll(dir); err != nil {
			s.logger.Warn().Err(err).Str("dir", dir).Msg("Failed to remove stale session clone")
			continue
		}
		removed++
	}

	if removed > 0 {
		s.logger.Info().
			Int("removed", removed).
			Msg("Purged stale session clones")
	}
}
