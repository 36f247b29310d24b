package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/k-code-yt/go-storefront/internal/metrics"
	"github.com/k-code-yt/go-storefront/internal/payment/application"
	pkgerrors "github.com/k-code-yt/go-storefront/pkg/errors"
	"github.com/sirupsen/logrus"
)

const (
	SignatureHeader     = "Stripe-Signature"
	DefaultMaxBodyBytes = 1 << 20
)

type Ingestor interface {
	Ingest(ctx context.Context, rawBody []byte, signatureHeader string) (*application.Ack, error)
}

type WebhookHandler struct {
	svc          Ingestor
	maxBodyBytes int64
}

func NewWebhookHandler(svc Ingestor, maxBodyBytes int64) *WebhookHandler {
	if maxBodyBytes <= 0 {
		maxBodyBytes = DefaultMaxBodyBytes
	}
	return &WebhookHandler{
		svc:          svc,
		maxBodyBytes: maxBodyBytes,
	}
}

// Register mounts the webhook and health routes on mux.
func (h *WebhookHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /stripe/webhook", metrics.InstrumentHandler("/stripe/webhook", h.HandleWebhook))
	mux.HandleFunc("GET /health", HandleHealth)
}

// HandleWebhook reads the body untouched; the signature covers the exact
// bytes the processor sent.
func (h *WebhookHandler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			metrics.WebhooksRejected.WithLabelValues("too_large").Inc()
			writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"error": "Payload too large"})
			return
		}
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": pkgerrors.ErrMissingBody.Message})
		return
	}

	ack, err := h.svc.Ingest(r.Context(), body, r.Header.Get(SignatureHeader))
	if err != nil {
		if pkgerrors.IsClientError(err) {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": clientMessage(err)})
			return
		}
		logrus.WithError(err).Error("WEBHOOK:INGEST_FAILED")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Internal error"})
		return
	}
	writeJSON(w, http.StatusOK, ack)
}

func HandleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func clientMessage(err error) string {
	var appErr *pkgerrors.AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return err.Error()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logrus.WithError(err).Warn("HTTP:WRITE_FAILED")
	}
}
