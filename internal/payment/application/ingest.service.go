package application

import (
	"context"
	"fmt"
	"time"

	"github.com/k-code-yt/go-storefront/internal/jobs"
	"github.com/k-code-yt/go-storefront/internal/metrics"
	"github.com/k-code-yt/go-storefront/internal/payment/domain"
	pkgerrors "github.com/k-code-yt/go-storefront/pkg/errors"
	"github.com/sirupsen/logrus"
)

type Ack struct {
	Received bool `json:"received"`
}

// IngestService records processor notifications and hands them to the work
// queue. It never waits for fulfillment.
type IngestService struct {
	verifier EventVerifier
	events   EventRepository
	queue    JobEnqueuer
	now      func() time.Time
}

func NewIngestService(v EventVerifier, er EventRepository, q JobEnqueuer) *IngestService {
	return &IngestService{
		verifier: v,
		events:   er,
		queue:    q,
		now:      time.Now,
	}
}

func (s *IngestService) Ingest(ctx context.Context, rawBody []byte, signatureHeader string) (*Ack, error) {
	if signatureHeader == "" {
		return nil, s.reject(pkgerrors.ErrMissingSignature, "missing_signature")
	}
	if len(rawBody) == 0 {
		return nil, s.reject(pkgerrors.ErrMissingBody, "missing_body")
	}

	verified, err := s.verifier.Verify(rawBody, signatureHeader)
	if err != nil {
		reason := "invalid_signature"
		if pkgerrors.IsInvalidPayloadError(err) {
			reason = "invalid_payload"
		}
		return nil, s.reject(err, reason)
	}

	event := domain.NewPaymentEvent(verified, s.now())
	id, created, err := s.events.InsertIfAbsent(ctx, event)
	if err != nil {
		return nil, fmt.Errorf("store event %s: %w", verified.EventID, err)
	}
	result := "duplicate"
	if created {
		result = "created"
	}
	metrics.EventsIngested.WithLabelValues(result).Inc()

	log := logrus.WithFields(logrus.Fields{
		"eventID":   verified.EventID,
		"eventType": verified.Type,
		"internal":  id,
	})
	log.WithField("result", result).Info("EVENT:INGESTED")

	if _, err := s.queue.Enqueue(ctx, jobs.NewJob(id, verified.EventID, s.now())); err != nil {
		log.WithError(err).Error("EVENT:ENQUEUE_FAILED")
		return nil, fmt.Errorf("enqueue event %s: %w", verified.EventID, err)
	}
	return &Ack{Received: true}, nil
}

func (s *IngestService) reject(err error, reason string) error {
	metrics.WebhooksRejected.WithLabelValues(reason).Inc()
	logrus.WithField("reason", reason).WithError(err).Warn("WEBHOOK:REJECTED")
	return err
}
