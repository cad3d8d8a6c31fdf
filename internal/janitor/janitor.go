// Package janitor periodically prunes finished sessions and sweeps stale
// render artifacts from the output directory.
package janitor

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/atessari/diaforge/internal/store"
)

// DefaultSchedule runs the sweep once every hour.
const DefaultSchedule = "0 * * * *"

// DefaultRetention keeps artifacts and terminal sessions for one day.
const DefaultRetention = 24 * time.Hour

// Sessions is the slice of Store the janitor needs.
type Sessions interface {
	PruneSessions(ctx context.Context, cutoff time.Time) (int64, error)
}

var _ Sessions = (store.Store)(nil)

// Janitor runs the retention sweep on a cron schedule.
type Janitor struct {
	sessions  Sessions
	outputDir string
	retention time.Duration
	schedule  cron.Schedule
	logger    *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// Config holds the Janitor settings. Schedule and Retention fall back to
// package defaults when empty.
type Config struct {
	Sessions  Sessions
	OutputDir string
	Schedule  string
	Retention time.Duration
	Logger    *slog.Logger
}

// New creates a Janitor, validating the cron schedule up front.
func New(cfg Config) (*Janitor, error) {
	scheduleExpr := cfg.Schedule
	if scheduleExpr == "" {
		scheduleExpr = DefaultSchedule
	}
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	schedule, err := parser.Parse(scheduleExpr)
	if err != nil {
		return nil, fmt.Errorf("parse janitor schedule %q: %w", scheduleExpr, err)
	}

	retention := cfg.Retention
	if retention <= 0 {
		retention = DefaultRetention
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Janitor{
		sessions:  cfg.Sessions,
		outputDir: cfg.OutputDir,
		retention: retention,
		schedule:  schedule,
		logger:    logger,
	}, nil
}

// Start launches the background sweep loop.
func (j *Janitor) Start(ctx context.Context) error {
	j.mu.Lock()
	if j.done != nil {
		j.mu.Unlock()
		return fmt.Errorf("janitor already started")
	}

	loopCtx, cancel := context.WithCancel(ctx)
	j.cancel = cancel
	j.done = make(chan struct{})
	j.mu.Unlock()

	go j.loop(loopCtx)
	j.logger.Info("janitor started", "retention", j.retention.String())
	return nil
}

func (j *Janitor) loop(ctx context.Context) {
	defer close(j.done)

	for {
		next := j.schedule.Next(time.Now())
		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			j.Sweep(ctx)
		}
	}
}

// Sweep runs one retention pass: terminal sessions older than the retention
// window go away along with their events, then stale render artifacts are
// unlinked from the output directory.
func (j *Janitor) Sweep(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-j.retention)

	pruned, err := j.sessions.PruneSessions(ctx, cutoff)
	if err != nil {
		j.logger.Error("failed to prune sessions", slog.String("error", err.Error()))
	} else if pruned > 0 {
		j.logger.Info("pruned sessions", slog.Int64("count", pruned))
	}

	removed, err := j.sweepArtifacts(cutoff)
	if err != nil {
		j.logger.Error("failed to sweep artifacts", slog.String("error", err.Error()))
	} else if removed > 0 {
		j.logger.Info("swept artifacts", slog.Int("count", removed))
	}
}

// sweepArtifacts unlinks .png and .puml files older than the cutoff. Other
// files in the output directory are left alone.
func (j *Janitor) sweepArtifacts(cutoff time.Time) (int, error) {
	if j.outputDir == "" {
		return 0, nil
	}

	entries, err := os.ReadDir(j.outputDir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("read output dir: %w", err)
	}

	removed := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext != ".png" && ext != ".puml" {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(j.outputDir, entry.Name())); err != nil {
			j.logger.Warn("failed to remove artifact",
				slog.String("file", entry.Name()),
				slog.String("error", err.Error()))
			continue
		}
		removed++
	}
	return removed, nil
}

// Stop gracefully shuts down the janitor.
func (j *Janitor) Stop() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.cancel == nil {
		return nil
	}

	j.cancel()
	<-j.done
	j.cancel = nil
	j.done = nil

	j.logger.Info("janitor stopped")
	return nil
}
