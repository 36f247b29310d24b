package handlers

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/k-code-yt/go-storefront/internal/payment/application"
	"github.com/k-code-yt/go-storefront/internal/payment/infra/stripe"
	"github.com/k-code-yt/go-storefront/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	mux   *http.ServeMux
	store *testutil.MemStore
	queue *testutil.MemQueue
}

func newFixture(maxBody int64) *fixture {
	store := testutil.NewMemStore()
	queue := testutil.NewMemQueue()
	svc := application.NewIngestService(stripe.NewSignatureVerifier(testutil.WebhookSecret, time.Minute), store, queue)

	mux := http.NewServeMux()
	NewWebhookHandler(svc, maxBody).Register(mux)
	return &fixture{mux: mux, store: store, queue: queue}
}

func (f *fixture) post(body []byte, signature string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/stripe/webhook", bytes.NewReader(body))
	if signature != "" {
		req.Header.Set(SignatureHeader, signature)
	}
	rec := httptest.NewRecorder()
	f.mux.ServeHTTP(rec, req)
	return rec
}

func TestWebhookAcceptsSignedEvent(t *testing.T) {
	f := newFixture(0)
	payload := testutil.CheckoutCompleted("evt_h1", "cs_h1", "", "pi_h1")

	rec := f.post(payload, testutil.Sign(payload))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"received":true}`, rec.Body.String())
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	rec = f.post(payload, testutil.Sign(payload))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, f.store.EventCount())
	assert.Len(t, f.queue.Jobs(), 1)
}

func TestWebhookRejections(t *testing.T) {
	payload := testutil.GenericEvent("evt_h2", "invoice.paid")
	header := testutil.Sign(payload)

	cases := []struct {
		name    string
		body    []byte
		header  string
		wantErr string
	}{
		{"missing signature", payload, "", "Missing Stripe-Signature"},
		{"missing body", nil, header, "Missing raw body"},
		{"tampered body", bytes.Replace(payload, []byte("invoice.paid"), []byte("invoice.void"), 1), header, "Invalid signature"},
		{"garbage header", payload, "nonsense", "Invalid signature"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(0)
			rec := f.post(tc.body, tc.header)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Contains(t, rec.Body.String(), tc.wantErr)
			assert.Zero(t, f.store.EventCount())
			assert.Empty(t, f.queue.Jobs())
		})
	}
}

func TestWebhookBodyTooLarge(t *testing.T) {
	f := newFixture(64)
	payload := testutil.GenericEvent("evt_big", strings.Repeat("x", 128))

	rec := f.post(payload, testutil.Sign(payload))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Zero(t, f.store.EventCount())
}

func TestWebhookQueueFailureIs500(t *testing.T) {
	f := newFixture(0)
	f.queue.SetErr(testutil.ErrQueueDown)
	payload := testutil.GenericEvent("evt_h3", "invoice.paid")

	rec := f.post(payload, testutil.Sign(payload))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "queue unavailable")
}

func TestWebhookMethodAndHealth(t *testing.T) {
	f := newFixture(0)

	rec := httptest.NewRecorder()
	f.mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/stripe/webhook", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	rec = httptest.NewRecorder()
	f.mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}
