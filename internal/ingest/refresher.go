// ABOUTME: Knowledge-base refresh trigger and last-update bookkeeping
// ABOUTME: Delegates to an external ingestion pipeline, fire-and-forget from the core

package ingest

import (
	"context"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Refresher gates and triggers the external knowledge-file ingestion
// pipeline. The last successful refresh time lives in a small state file so
// it survives restarts; the core only reads and writes that timestamp.
type Refresher struct {
	statePath string
	maxAge    time.Duration
	command   []string
	logger    *slog.Logger

	mu      sync.Mutex
	running bool
}

// New creates a Refresher. command is the external pipeline invocation; an
// empty command makes Trigger a logged no-op.
func New(statePath string, maxAge time.Duration, command []string, logger *slog.Logger) *Refresher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Refresher{
		statePath: statePath,
		maxAge:    maxAge,
		command:   command,
		logger:    logger.With("component", "ingest"),
	}
}

// LastUpdate returns the recorded last refresh time, if any.
func (r *Refresher) LastUpdate() (time.Time, bool) {
	data, err := os.ReadFile(r.statePath)
	if err != nil {
		return time.Time{}, false
	}
	ts, err := time.Parse(time.RFC3339, strings.TrimSpace(string(data)))
	if err != nil {
		r.logger.Warn("unreadable refresh state, treating as never refreshed", "error", err)
		return time.Time{}, false
	}
	return ts, true
}

// NeedsRefresh reports whether the knowledge files are older than the
// configured maximum age. Never refreshed counts as stale.
func (r *Refresher) NeedsRefresh() bool {
	if r.maxAge <= 0 {
		return false
	}
	last, ok := r.LastUpdate()
	if !ok {
		return true
	}
	return time.Since(last) > r.maxAge
}

// Trigger starts the external pipeline in the background and returns
// immediately. Concurrent triggers collapse into one run; the timestamp is
// recorded only on success.
func (r *Refresher) Trigger(ctx context.Context) {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		r.logger.Debug("refresh already running, ignoring trigger")
		return
	}
	r.running = true
	r.mu.Unlock()

	go func() {
		defer func() {
			r.mu.Lock()
			r.running = false
			r.mu.Unlock()
		}()

		if len(r.command) == 0 {
			r.logger.Warn("no refresh command configured, skipping")
			return
		}

		r.logger.Info("starting knowledge refresh", "command", r.command[0])
		cmd := exec.CommandContext(ctx, r.command[0], r.command[1:]...)
		if out, err := cmd.CombinedOutput(); err != nil {
			r.logger.Error("knowledge refresh failed", "error", err, "output", string(out))
			return
		}

		if err := r.recordUpdate(time.Now()); err != nil {
			r.logger.Error("failed to record refresh time", "error", err)
			return
		}
		r.logger.Info("knowledge refresh completed")
	}()
}

func (r *Refresher) recordUpdate(ts time.Time) error {
	if err := os.MkdirAll(filepath.Dir(r.statePath), 0755); err != nil {
		return err
	}
	return os.WriteFile(r.statePath, []byte(ts.UTC().Format(time.RFC3339)+"\n"), 0644)
}
