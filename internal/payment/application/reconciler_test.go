package application_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/k-code-yt/go-storefront/internal/jobs"
	"github.com/k-code-yt/go-storefront/internal/payment/application"
	"github.com/k-code-yt/go-storefront/internal/payment/domain"
	"github.com/k-code-yt/go-storefront/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReconcileOnceEnqueuesStaleEvents(t *testing.T) {
	store := testutil.NewMemStore()
	queue := testutil.NewMemQueue()
	now := time.Now()
	processed := now.Add(-time.Hour)

	stale := domain.PaymentEvent{ID: uuid.New(), EventID: "evt_stale", Type: "x", ReceivedAt: now.Add(-time.Hour)}
	fresh := domain.PaymentEvent{ID: uuid.New(), EventID: "evt_fresh", Type: "x", ReceivedAt: now}
	done := domain.PaymentEvent{ID: uuid.New(), EventID: "evt_done", Type: "x", ReceivedAt: now.Add(-2 * time.Hour), ProcessedAt: &processed}
	store.AddEvent(stale)
	store.AddEvent(fresh)
	store.AddEvent(done)

	r := application.NewReconciler(store, queue, application.ReconcilerConfig{
		Interval: time.Hour,
		Grace:    time.Minute,
		Batch:    10,
	})

	n, err := r.ReconcileOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	require.Len(t, queue.Jobs(), 1)
	assert.Equal(t, stale.ID, queue.Jobs()[0].EventID)
	assert.Equal(t, "evt_stale", queue.Jobs()[0].DedupKey)

	n, err = r.ReconcileOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n, "known jobs are not enqueued again")
	assert.Len(t, queue.Jobs(), 1)
}

func TestReconcilerReachesEventsBehindKnownJobs(t *testing.T) {
	ctx := context.Background()
	store := testutil.NewMemStore()
	queue := testutil.NewMemQueue()
	now := time.Now()

	for i, id := range []string{"evt_dead_1", "evt_dead_2"} {
		e := domain.PaymentEvent{ID: uuid.New(), EventID: id, Type: "x", ReceivedAt: now.Add(-time.Duration(3-i) * time.Hour)}
		store.AddEvent(e)
		_, err := queue.Enqueue(ctx, jobs.NewJob(e.ID, e.EventID, now))
		require.NoError(t, err)
	}
	lost := domain.PaymentEvent{ID: uuid.New(), EventID: "evt_lost", Type: "x", ReceivedAt: now.Add(-time.Hour)}
	store.AddEvent(lost)

	r := application.NewReconciler(store, queue, application.ReconcilerConfig{Interval: time.Hour, Grace: time.Minute, Batch: 2})

	n, err := r.ReconcileOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "first page only holds events with jobs")

	n, err = r.ReconcileOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	queued := queue.Jobs()
	require.Len(t, queued, 3)
	assert.Equal(t, lost.ID, queued[2].EventID)

	n, err = r.ReconcileOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "scan wrapped to the oldest events")
	assert.Len(t, queue.Jobs(), 3)
}

func TestReconcileOnceSkipsFailedEnqueues(t *testing.T) {
	store := testutil.NewMemStore()
	queue := testutil.NewMemQueue()
	store.AddEvent(domain.PaymentEvent{ID: uuid.New(), EventID: "evt_a", Type: "x", ReceivedAt: time.Now().Add(-time.Hour)})
	queue.SetErr(testutil.ErrQueueDown)

	r := application.NewReconciler(store, queue, application.ReconcilerConfig{Interval: time.Hour, Grace: time.Minute, Batch: 10})
	n, err := r.ReconcileOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestReconcilerStopsOnCancel(t *testing.T) {
	r := application.NewReconciler(testutil.NewMemStore(), testutil.NewMemQueue(), application.ReconcilerConfig{Interval: time.Millisecond, Grace: time.Minute})
	ctx, cancel := context.WithCancel(context.Background())
	exited := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(exited)
	}()
	cancel()

	select {
	case <-exited:
	case <-time.After(time.Second):
		t.Fatal("reconciler did not stop")
	}
}
