// Package sweeper removes derivative artifacts that never got a record, for example
// when the process died between writing artifacts and creating the record.
package sweeper

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/princekumarofficial/gallery-service/internal/services/media"
)

// RecordChecker reports whether an image record exists
type RecordChecker interface {
	ImageExists(ctx context.Context, id string) (bool, error)
}

// Result summarizes one sweep
type Result struct {
	Scanned int
	Deleted int
	Failed  int
}

type Sweeper struct {
	objects media.ObjectStore
	records RecordChecker
	grace   time.Duration
	logger  *slog.Logger
	now     func() time.Time
}

// New creates a sweeper. Artifacts younger than grace are never touched: their
// upload may still be in flight.
func New(objects media.ObjectStore, records RecordChecker, grace time.Duration, logger *slog.Logger) *Sweeper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{
		objects: objects,
		records: records,
		grace:   grace,
		logger:  logger,
		now:     time.Now,
	}
}

// Sweep deletes old artifacts whose image id has no record
func (s *Sweeper) Sweep(ctx context.Context) (Result, error) {
	var res Result
	cutoff := s.now().Add(-s.grace)
	exists := make(map[string]bool)

	for _, prefix := range []string{media.ThumbnailPrefix, media.ImagePrefix} {
		objects, err := s.objects.List(ctx, prefix)
		if err != nil {
			return res, fmt.Errorf("list %s: %w", prefix, err)
		}

		for _, obj := range objects {
			res.Scanned++

			if obj.LastModified.After(cutoff) {
				continue
			}
			id, ok := media.ImageIDFromKey(obj.Key)
			if !ok {
				continue
			}

			found, checked := exists[id]
			if !checked {
				found, err = s.records.ImageExists(ctx, id)
				if err != nil {
					return res, fmt.Errorf("check record %s: %w", id, err)
				}
				exists[id] = found
			}
			if found {
				continue
			}

			if err := s.objects.Delete(ctx, obj.Key); err != nil {
				res.Failed++
				s.logger.Error("Failed to delete orphaned artifact",
					slog.String("key", obj.Key),
					slog.String("error", err.Error()))
				continue
			}
			res.Deleted++
			s.logger.Info("Deleted orphaned artifact", slog.String("key", obj.Key))
		}
	}

	return res, nil
}

// Start sweeps immediately and then every interval until ctx is done
func (s *Sweeper) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("Orphan sweeper started",
		slog.String("interval", interval.String()),
		slog.String("grace_period", s.grace.String()))

	s.run(ctx)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Orphan sweeper shutting down")
			return
		case <-ticker.C:
			s.run(ctx)
		}
	}
}

func (s *Sweeper) run(ctx context.Context) {
	start := time.Now()

	res, err := s.Sweep(ctx)
	if err != nil {
		s.logger.Error("Orphan sweep failed",
			slog.String("error", err.Error()),
			slog.Int64("duration_ms", time.Since(start).Milliseconds()))
		return
	}

	s.logger.Info("Completed orphan sweep",
		slog.Int("scanned", res.Scanned),
		slog.Int("deleted", res.Deleted),
		slog.Int("failed", res.Failed),
		slog.Int64("duration_ms", time.Since(start).Milliseconds()))
}
