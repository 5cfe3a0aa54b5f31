package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync/atomic"
	"time"

	"github.com/argus-vision/argus/internal/frames"
	"github.com/argus-vision/argus/internal/identity"
)

// Runner owns the two processing stages: a finder that scans the
// frames directory on an interval, and the per-frame face work.
type Runner struct {
	store    *frames.Store
	detector Detector
	embedder Embedder
	resolver *identity.Resolver
	interval time.Duration
	logger   *slog.Logger

	running atomic.Bool
}

func NewRunner(store *frames.Store, detector Detector, embedder Embedder, resolver *identity.Resolver, interval time.Duration, logger *slog.Logger) *Runner {
	return &Runner{
		store:    store,
		detector: detector,
		embedder: embedder,
		resolver: resolver,
		interval: interval,
		logger:   logger,
	}
}

// Start scans on the configured interval until ctx is cancelled.
func (r *Runner) Start(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.Info("frame pipeline started", "interval", r.interval.String())
	for {
		select {
		case <-ctx.Done():
			r.logger.Info("frame pipeline stopped")
			return
		case <-ticker.C:
			if _, err := r.RunOnce(ctx); err != nil {
				r.logger.Error("frame scan failed", "error", err)
			}
		}
	}
}

// RunOnce processes every pending frame and reports how many were
// consumed. Overlapping runs are skipped.
func (r *Runner) RunOnce(ctx context.Context) (int, error) {
	if !r.running.CompareAndSwap(false, true) {
		return 0, nil
	}
	defer r.running.Store(false)

	pending, err := r.store.Scan()
	if err != nil {
		return 0, fmt.Errorf("scan frames: %w", err)
	}

	processed := 0
	for _, frame := range pending {
		if ctx.Err() != nil {
			return processed, ctx.Err()
		}
		if err := r.processFrame(ctx, frame); err != nil {
			// Store failures keep the frame for the next pass; losing
			// the observation is worse than re-reading the file.
			r.logger.Error("frame processing failed", "path", frame.Path, "error", err)
			continue
		}
		processed++
	}
	return processed, nil
}

// processFrame runs detect -> embed -> resolve for one frame, then
// deletes it. Frames the detector cannot use are deleted too; they
// would otherwise be retried forever.
func (r *Runner) processFrame(ctx context.Context, frame frames.PendingFrame) error {
	data, err := os.ReadFile(frame.Path)
	if err != nil {
		return fmt.Errorf("read frame: %w", err)
	}

	faces, err := r.detector.Detect(ctx, data)
	if err != nil {
		r.logger.Warn("discarding undetectable frame", "path", frame.Path, "error", err)
		return r.store.Remove(frame.Path)
	}

	for _, face := range faces {
		embedding, err := r.embedder.Embed(ctx, face)
		if err != nil {
			r.logger.Warn("skipping unembeddable face", "path", frame.Path, "error", err)
			continue
		}

		person, created, err := r.resolver.Insert(ctx, embedding, frame.Location, frame.SeenAt)
		if err != nil {
			return fmt.Errorf("resolve face: %w", err)
		}
		r.logger.Info("face resolved",
			"person_id", person.ID, "created", created,
			"lat", frame.Location.Lat, "lng", frame.Location.Lng)
	}

	return r.store.Remove(frame.Path)
}
