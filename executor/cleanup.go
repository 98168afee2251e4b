package executor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"challengerunner/metrics"

	logrus "github.com/sirupsen/logrus"
)

// removeContainer force-removes a container. Failures are logged only, so
// that a failed cleanup never replaces the verdict of the run.
func (r *Runner) removeContainer(id string) {
	ctx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
	defer cancel()

	if err := r.engine.Remove(ctx, id); err != nil {
		r.logger.WithFields(logrus.Fields{
			"container": shortID(id),
			"error":     fmt.Errorf("%w: %w", ErrCleanupFailed, err),
		}).Warn("Failed to remove container")
		return
	}
	r.logger.WithField("container", shortID(id)).Debug("Removed container")
}

func (r *Runner) removeWorkspace(dir string) {
	if err := os.RemoveAll(dir); err != nil {
		r.logger.WithFields(logrus.Fields{
			"workspace": dir,
			"error":     fmt.Errorf("%w: %w", ErrCleanupFailed, err),
		}).Warn("Failed to remove workspace")
	}
}

// CleanupOrphanedContainers force-removes labelled containers older than
// StaleAfter, typically left behind by a crashed process. Containers this
// runner still owns, idle in the warm pool or running, are kept. A failed removal is logged and the sweep
// moves on; only a failed listing is returned as an error.
func (r *Runner) CleanupOrphanedContainers(ctx context.Context) (int, error) {
	containers, err := r.engine.List(ctx, containerLabelKey, containerLabelValue)
	if err != nil {
		return 0, fmt.Errorf("failed to list containers: %w", err)
	}

	cutoff := r.now().Add(-StaleAfter)
	removed := 0
	for _, c := range containers {
		if !c.Created.Before(cutoff) || r.owns(c.Name) {
			continue
		}
		fields := logrus.Fields{
			"container": shortID(c.ID),
			"name":      c.Name,
			"age":       r.now().Sub(c.Created).Round(time.Second),
			"warm":      c.Labels[warmLabelKey] == warmLabelValue,
		}
		if err := r.engine.Remove(ctx, c.ID); err != nil {
			r.logger.WithFields(fields).WithError(err).Warn("Failed to remove orphaned container")
			continue
		}
		r.logger.WithFields(fields).Info("Removed orphaned container")
		removed++
	}

	metrics.OrphansRemoved.Add(float64(removed))
	return removed, nil
}

// PurgeStaleWorkspaces deletes run workspaces under the workspace root that
// have not been touched for StaleAfter. The root is often the shared temp
// dir, so only entries carrying the run name prefix are considered.
func (r *Runner) PurgeStaleWorkspaces() int {
	entries, err := os.ReadDir(r.workspaceRoot)
	if err != nil {
		r.logger.WithError(err).Warn("Failed to read workspace root")
		return 0
	}

	cutoff := r.now().Add(-StaleAfter)
	purged := 0
	for _, entry := range entries {
		name := entry.Name()
		if !entry.IsDir() || !strings.HasPrefix(name, containerNamePrefix) || r.owns(name) {
			continue
		}
		info, err := entry.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}
		dir := filepath.Join(r.workspaceRoot, name)
		if err := os.RemoveAll(dir); err != nil {
			r.logger.WithFields(logrus.Fields{
				"workspace": dir,
				"error":     err,
			}).Warn("Failed to purge stale workspace")
			continue
		}
		purged++
	}

	if purged > 0 {
		metrics.OrphansRemoved.Add(float64(purged))
		r.logger.WithField("purged", purged).Info("Purged stale workspaces")
	}
	return purged
}

// StartSweeper runs the orphan sweep and the workspace purge every interval
// in the background until ctx is cancelled.
func (r *Runner) StartSweeper(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := r.CleanupOrphanedContainers(ctx); err != nil {
					r.logger.WithError(err).Warn("Orphan sweep failed")
				}
				r.PurgeStaleWorkspaces()
			}
		}
	}()
}
