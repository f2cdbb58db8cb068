// Package scheduler is the time-based driver of the lifecycle: it activates
// approved documents whose effective date has arrived, executes scheduled
// obsolescence and opens periodic reviews that have come due. Each tick is
// idempotent; a document already processed simply stops matching its scan.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"charter/internal/document/lifecycle"
	"charter/internal/document/models"
	doc "charter/internal/document/service"
	"charter/internal/platform/metrics"
	id "charter/pkg/domain"
	dErrors "charter/pkg/domain-errors"
	"charter/pkg/requestcontext"
)

// Service is the orchestrator surface the driver needs. Every call runs as
// the system actor and carries the tick's pinned clock.
type Service interface {
	BecomeEffective(ctx context.Context, docID id.DocumentID) (*doc.Result, error)
	BecomeObsolete(ctx context.Context, docID id.DocumentID) (*doc.Result, error)
	OpenPeriodicReview(ctx context.Context, actor id.Actor, docID id.DocumentID) (*doc.Result, error)
}

// Store is the date-indexed read surface for the three scans.
type Store interface {
	ListEffectiveDue(ctx context.Context, now time.Time) ([]*models.Document, error)
	ListObsolescenceDue(ctx context.Context, now time.Time) ([]*models.Document, error)
	ListReviewDue(ctx context.Context, now time.Time) ([]*models.Document, error)
}

// Locker serializes ticks across replicas. A nil Locker means single-node
// deployment and every tick proceeds.
type Locker interface {
	// Acquire returns false when another replica holds the tick lease.
	Acquire(ctx context.Context, ttl time.Duration) (bool, error)
	Release(ctx context.Context) error
}

// TickSummary reports what one tick did.
type TickSummary struct {
	ActivatedCount int `json:"activated_count"`
	ObsoletedCount int `json:"obsoleted_count"`
	ReviewsOpened  int `json:"reviews_opened"`
	Failures       int `json:"failures"`
}

// Driver owns the tick loop. One Driver per process; the Locker decides
// which replica's loop does the work.
type Driver struct {
	service  Service
	store    Store
	locker   Locker
	logger   *slog.Logger
	metrics  *metrics.Metrics
	interval time.Duration
}

func New(service Service, store Store, locker Locker, logger *slog.Logger, m *metrics.Metrics, interval time.Duration) *Driver {
	return &Driver{
		service:  service,
		store:    store,
		locker:   locker,
		logger:   logger,
		metrics:  m,
		interval: interval,
	}
}

// Run ticks at the configured interval until the context is cancelled. The
// first tick fires immediately so a fresh deployment catches up overdue
// documents without waiting a full interval.
func (d *Driver) Run(ctx context.Context) error {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		if _, err := d.TickLocked(ctx, time.Now()); err != nil {
			d.logger.ErrorContext(ctx, "scheduler tick failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// TickLocked runs one tick under the replica lease.
func (d *Driver) TickLocked(ctx context.Context, now time.Time) (TickSummary, error) {
	if d.locker != nil {
		held, err := d.locker.Acquire(ctx, d.interval)
		if err != nil {
			return TickSummary{}, err
		}
		if !held {
			d.logger.DebugContext(ctx, "tick skipped, lease held by another replica")
			return TickSummary{}, nil
		}
		defer func() {
			if err := d.locker.Release(ctx); err != nil {
				d.logger.WarnContext(ctx, "release tick lease", "error", err)
			}
		}()
	}
	return d.Tick(ctx, now)
}

// Tick runs the three scans once against the given clock. Failures on one
// document never stop the scan: they are logged, counted and left for the
// next tick.
func (d *Driver) Tick(ctx context.Context, now time.Time) (TickSummary, error) {
	ctx = requestcontext.WithTime(ctx, now)
	var summary TickSummary

	if d.metrics != nil {
		d.metrics.SchedulerTicksTotal.Inc()
	}

	due, err := d.store.ListEffectiveDue(ctx, now)
	if err != nil {
		return summary, err
	}
	for _, document := range due {
		if _, err := d.service.BecomeEffective(ctx, document.ID); err != nil {
			d.scanFailure(ctx, "effective", document, err, &summary)
			continue
		}
		summary.ActivatedCount++
		d.countProcessed("effective")
	}

	due, err = d.store.ListObsolescenceDue(ctx, now)
	if err != nil {
		return summary, err
	}
	for _, document := range due {
		if _, err := d.service.BecomeObsolete(ctx, document.ID); err != nil {
			d.scanFailure(ctx, "obsolescence", document, err, &summary)
			continue
		}
		summary.ObsoletedCount++
		d.countProcessed("obsolescence")
	}

	due, err = d.store.ListReviewDue(ctx, now)
	if err != nil {
		return summary, err
	}
	for _, document := range due {
		_, err := d.service.OpenPeriodicReview(ctx, lifecycle.SystemActor, document.ID)
		if err != nil {
			// A concurrent manual trigger already opened the cycle;
			// nothing left for this tick to do.
			if dErrors.HasCode(err, dErrors.CodeConflict) {
				continue
			}
			d.scanFailure(ctx, "review", document, err, &summary)
			continue
		}
		summary.ReviewsOpened++
		d.countProcessed("review")
	}

	d.logger.InfoContext(ctx, "scheduler tick completed",
		"now", now.Format(time.RFC3339),
		"activated", summary.ActivatedCount,
		"obsoleted", summary.ObsoletedCount,
		"reviews_opened", summary.ReviewsOpened,
		"failures", summary.Failures,
	)
	return summary, nil
}

func (d *Driver) scanFailure(ctx context.Context, scan string, document *models.Document, err error, summary *TickSummary) {
	summary.Failures++
	if d.metrics != nil {
		d.metrics.SchedulerDocFailures.Inc()
	}
	d.logger.ErrorContext(ctx, "scheduler document failed",
		"scan", scan,
		"document_id", document.ID.String(),
		"family_key", document.FamilyKey.String(),
		"error", err,
	)
}

func (d *Driver) countProcessed(scan string) {
	if d.metrics != nil {
		d.metrics.SchedulerDocsProcessed.WithLabelValues(scan).Inc()
	}
}
