// Package reconcile repairs builds that were committed but never had their
// tasks published.
package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/zulandar/buildyard/internal/dispatch"
	"github.com/zulandar/buildyard/internal/logging"
	"github.com/zulandar/buildyard/internal/models"
	"github.com/zulandar/buildyard/internal/notify"
	"github.com/zulandar/buildyard/internal/queue"
	"gorm.io/gorm"
)

// Opts tunes a sweep.
type Opts struct {
	// Grace is how long a build may stay undispatched before it is repaired,
	// so in-flight submissions are left alone.
	Grace    time.Duration
	Limit    int
	Notifier notify.Notifier
	Log      *slog.Logger
	Now      func() time.Time // for tests; defaults to time.Now
}

// Report summarizes one sweep.
type Report struct {
	Scanned  int
	Repaired []string // build ids
	Failed   []string // build ids still undispatched
}

// Sweep re-publishes the tasks of queued builds whose DispatchedAt is still
// NULL after the grace period. Tasks are republished with their original ids
// and in the original order, so consumers that already saw some of them
// dedupe the rest.
func Sweep(ctx context.Context, db *gorm.DB, q queue.Enqueuer, opts Opts) (Report, error) {
	log := logging.OrDefault(opts.Log)
	now := time.Now
	if opts.Now != nil {
		now = opts.Now
	}
	cutoff := now().Add(-opts.Grace)

	var builds []models.Build
	query := db.WithContext(ctx).
		Preload("Jobs", func(tx *gorm.DB) *gorm.DB { return tx.Order("created_at ASC, id ASC") }).
		Where("dispatched_at IS NULL AND status = ? AND created_at < ?", models.StatusQueued, cutoff).
		Order("created_at ASC")
	if opts.Limit > 0 {
		query = query.Limit(opts.Limit)
	}
	if err := query.Find(&builds).Error; err != nil {
		return Report{}, fmt.Errorf("reconcile: find undispatched builds: %w", err)
	}

	report := Report{Scanned: len(builds)}
	for i := range builds {
		b := &builds[i]
		if err := dispatch.Publish(ctx, db, q, b); err != nil {
			log.Error("reconcile publish failed", "build", b.ID, "error", err)
			report.Failed = append(report.Failed, b.ID)
			continue
		}
		log.Info("build re-dispatched", "build", b.ID, "collection", b.CollectionID, "jobs", len(b.Jobs))
		report.Repaired = append(report.Repaired, b.ID)
	}

	if len(report.Repaired) > 0 || len(report.Failed) > 0 {
		notify.Send(ctx, opts.Notifier, log, report.alert())
	}
	return report, nil
}

func (r Report) alert() notify.Alert {
	a := notify.Alert{
		Title:    fmt.Sprintf("Reconciled %d undispatched build(s)", len(r.Repaired)),
		Body:     "Builds were committed without their tasks being published.",
		Severity: notify.SeverityWarning,
		Fields: []notify.Field{
			{Name: "repaired", Value: strconv.Itoa(len(r.Repaired)), Short: true},
			{Name: "failed", Value: strconv.Itoa(len(r.Failed)), Short: true},
		},
	}
	if len(r.Failed) > 0 {
		a.Severity = notify.SeverityError
	}
	return a
}
