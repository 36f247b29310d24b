package application

import (
	"context"
	"sync"
	"time"

	"github.com/k-code-yt/go-storefront/internal/jobs"
	"github.com/k-code-yt/go-storefront/internal/metrics"
	"github.com/k-code-yt/go-storefront/internal/payment/domain"
	"github.com/sirupsen/logrus"
)

type ReconcilerConfig struct {
	Interval time.Duration
	Grace    time.Duration
	Batch    int
}

// Reconciler re-enqueues events that stayed unprocessed longer than Grace,
// covering an ingest whose enqueue failed after the row was written. Queue
// dedup turns events that already have a job into no-ops, so each tick
// resumes the scan where the previous one stopped and wraps around at the
// end. Old events stuck behind a dead job cannot hide newer ones.
type Reconciler struct {
	events EventRepository
	queue  JobEnqueuer
	cfg    ReconcilerConfig
	now    func() time.Time

	mu     sync.Mutex
	cursor *domain.EventCursor
}

const DefaultReconcileBatch = 100

func NewReconciler(er EventRepository, q JobEnqueuer, cfg ReconcilerConfig) *Reconciler {
	if cfg.Batch < 1 {
		cfg.Batch = DefaultReconcileBatch
	}
	return &Reconciler{
		events: er,
		queue:  q,
		cfg:    cfg,
		now:    time.Now,
	}
}

func (r *Reconciler) Run(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := r.ReconcileOnce(ctx); err != nil {
				logrus.WithError(err).Error("RECONCILE:FAILED")
			}
		}
	}
}

// ReconcileOnce scans one page and returns how many events got a new job.
func (r *Reconciler) ReconcileOnce(ctx context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	events, err := r.events.ListUnprocessed(ctx, r.now().Add(-r.cfg.Grace), r.cursor, r.cfg.Batch)
	if err != nil {
		return 0, err
	}
	if len(events) < r.cfg.Batch {
		r.cursor = nil
	} else {
		r.cursor = events[len(events)-1].Cursor()
	}

	enqueued := 0
	for _, e := range events {
		ok, err := r.queue.Enqueue(ctx, jobs.NewJob(e.ID, e.EventID, r.now()))
		if err != nil {
			logrus.WithField("eventID", e.EventID).WithError(err).Warn("RECONCILE:ENQUEUE_FAILED")
			continue
		}
		if ok {
			enqueued++
			metrics.EventsReconciled.Inc()
			logrus.WithFields(logrus.Fields{
				"eventID":    e.EventID,
				"receivedAt": e.ReceivedAt,
			}).Warn("RECONCILE:REENQUEUED")
		}
	}
	return enqueued, nil
}
