// Package janitor removes abandoned archive working directories.
package janitor

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/SirCrest/SDProfileManager-Windows/internal/fsys"
)

// DefaultMaxAge is used when Config.MaxAge is not positive.
const DefaultMaxAge = 24 * time.Hour

// Config configures a Janitor.
type Config struct {
	FS fsys.FS
	// Dir holds the working directories to sweep.
	Dir string
	// Schedule is a cron spec ("@every 1h", "0 3 * * *"). Empty disables
	// scheduled sweeps; Sweep can still be called directly.
	Schedule string
	// MaxAge is the minimum age of a directory before it is removed.
	MaxAge time.Duration
	// Referenced lists directories that must survive a sweep.
	Referenced func() []string
	Logger     *zap.Logger
	Now        func() time.Time
}

// Janitor sweeps stale working directories on a cron schedule.
type Janitor struct {
	fs         fsys.FS
	dir        string
	maxAge     time.Duration
	referenced func() []string
	logger     *zap.Logger
	now        func() time.Time

	cron    *cron.Cron
	entryID cron.EntryID
	sweepMu sync.Mutex // serializes sweeps
}

// New creates a janitor. An invalid schedule is an error.
func New(cfg Config) (*Janitor, error) {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = DefaultMaxAge
	}
	if cfg.Referenced == nil {
		cfg.Referenced = func() []string { return nil }
	}

	j := &Janitor{
		fs:         cfg.FS,
		dir:        cfg.Dir,
		maxAge:     cfg.MaxAge,
		referenced: cfg.Referenced,
		logger:     cfg.Logger,
		now:        cfg.Now,
		cron:       cron.New(),
	}

	if strings.TrimSpace(cfg.Schedule) != "" {
		id, err := j.cron.AddFunc(cfg.Schedule, func() { j.Sweep() })
		if err != nil {
			return nil, fmt.Errorf("janitor: invalid schedule %q: %w", cfg.Schedule, err)
		}
		j.entryID = id
	}
	return j, nil
}

// Scheduled reports whether sweeps run on a schedule.
func (j *Janitor) Scheduled() bool {
	return j.entryID != 0
}

// Start starts the scheduler.
func (j *Janitor) Start() {
	j.cron.Start()
}

// Stop stops the scheduler and waits for a running sweep to finish.
func (j *Janitor) Stop() {
	<-j.cron.Stop().Done()
}

// Sweep removes every directory under Dir that is older than MaxAge and
// not referenced. It returns the removed paths. Failures are logged and
// skipped.
func (j *Janitor) Sweep() []string {
	j.sweepMu.Lock()
	defer j.sweepMu.Unlock()

	entries, err := j.fs.ReadDir(j.dir)
	if err != nil {
		j.logger.Debug("janitor: work directory unreadable", zap.String("dir", j.dir), zap.Error(err))
		return nil
	}

	keep := make([]string, 0)
	for _, root := range j.referenced() {
		if root != "" {
			keep = append(keep, filepath.Clean(root))
		}
	}

	cutoff := j.now().Add(-j.maxAge)
	var removed []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		path := filepath.Join(j.dir, e.Name())
		info, err := j.fs.Stat(path)
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		if inUse(path, keep) {
			continue
		}
		if err := j.fs.RemoveAll(path); err != nil {
			j.logger.Warn("janitor: remove failed", zap.String("dir", path), zap.Error(err))
			continue
		}
		removed = append(removed, path)
	}

	if len(removed) > 0 {
		j.logger.Info("janitor: removed stale working directories",
			zap.Int("count", len(removed)),
			zap.Strings("dirs", removed))
	}
	return removed
}

// inUse reports whether dir is, or contains, one of the kept roots.
func inUse(dir string, keep []string) bool {
	prefix := dir + string(filepath.Separator)
	for _, root := range keep {
		if root == dir || strings.HasPrefix(root, prefix) {
			return true
		}
	}
	return false
}
