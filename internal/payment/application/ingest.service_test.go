package application_test

import (
	"context"
	"testing"
	"time"

	"github.com/k-code-yt/go-storefront/internal/metrics"
	"github.com/k-code-yt/go-storefront/internal/payment/application"
	"github.com/k-code-yt/go-storefront/internal/payment/infra/stripe"
	"github.com/k-code-yt/go-storefront/internal/testutil"
	pkgerrors "github.com/k-code-yt/go-storefront/pkg/errors"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newIngest() (*application.IngestService, *testutil.MemStore, *testutil.MemQueue) {
	store := testutil.NewMemStore()
	queue := testutil.NewMemQueue()
	verifier := stripe.NewSignatureVerifier(testutil.WebhookSecret, time.Minute)
	return application.NewIngestService(verifier, store, queue), store, queue
}

func TestIngestIsIdempotent(t *testing.T) {
	svc, store, queue := newIngest()
	payload := testutil.CheckoutCompleted("evt_dup", "cs_1", "", "pi_1")

	for range 2 {
		ack, err := svc.Ingest(context.Background(), payload, testutil.Sign(payload))
		require.NoError(t, err)
		assert.True(t, ack.Received)
	}

	assert.Equal(t, 1, store.EventCount())
	stored := store.EventByExternalID("evt_dup")
	require.NotNil(t, stored)
	assert.Equal(t, "checkout.session.completed", stored.Type)
	assert.JSONEq(t, string(payload), string(stored.Payload))
	assert.Nil(t, stored.ProcessedAt)

	queued := queue.Jobs()
	require.Len(t, queued, 1)
	assert.Equal(t, "evt_dup", queued[0].DedupKey)
	assert.Equal(t, stored.ID, queued[0].EventID)
}

func TestIngestRejectsTamperedBody(t *testing.T) {
	svc, store, queue := newIngest()
	payload := testutil.CheckoutCompleted("evt_t", "cs_1", "", "")
	header := testutil.Sign(payload)
	tampered := testutil.CheckoutCompleted("evt_t", "cs_2", "", "")

	before := promtest.ToFloat64(metrics.WebhooksRejected.WithLabelValues("invalid_signature"))
	_, err := svc.Ingest(context.Background(), tampered, header)

	require.Error(t, err)
	assert.True(t, pkgerrors.IsInvalidSignatureError(err))
	assert.True(t, pkgerrors.IsClientError(err))
	assert.Zero(t, store.EventCount())
	assert.Empty(t, queue.Jobs())
	assert.Equal(t, before+1, promtest.ToFloat64(metrics.WebhooksRejected.WithLabelValues("invalid_signature")))
}

func TestIngestMissingInputs(t *testing.T) {
	svc, store, _ := newIngest()
	payload := testutil.GenericEvent("evt_m", "charge.refunded")

	_, err := svc.Ingest(context.Background(), payload, "")
	assert.ErrorIs(t, err, pkgerrors.ErrMissingSignature)

	_, err = svc.Ingest(context.Background(), nil, testutil.Sign(payload))
	assert.ErrorIs(t, err, pkgerrors.ErrMissingBody)

	assert.Zero(t, store.EventCount())
}

func TestIngestEnqueueFailureIsRetriedByRedelivery(t *testing.T) {
	svc, store, queue := newIngest()
	payload := testutil.GenericEvent("evt_q", "payment_intent.succeeded")

	queue.SetErr(testutil.ErrQueueDown)
	_, err := svc.Ingest(context.Background(), payload, testutil.Sign(payload))
	require.ErrorIs(t, err, testutil.ErrQueueDown)
	assert.False(t, pkgerrors.IsClientError(err))
	assert.Equal(t, 1, store.EventCount(), "row is written before the enqueue")

	queue.SetErr(nil)
	_, err = svc.Ingest(context.Background(), payload, testutil.Sign(payload))
	require.NoError(t, err)
	assert.Equal(t, 1, store.EventCount())
	require.Len(t, queue.Jobs(), 1)
	assert.Equal(t, store.EventByExternalID("evt_q").ID, queue.Jobs()[0].EventID)
}
