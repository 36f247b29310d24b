package application

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/k-code-yt/go-storefront/internal/jobs"
	"github.com/k-code-yt/go-storefront/internal/payment/domain"
)

type EventVerifier interface {
	Verify(payload []byte, signatureHeader string) (*domain.VerifiedEvent, error)
}

type EventRepository interface {
	InsertIfAbsent(ctx context.Context, e *domain.PaymentEvent) (uuid.UUID, bool, error)
	ListUnprocessed(ctx context.Context, receivedBefore time.Time, after *domain.EventCursor, limit int) ([]domain.PaymentEvent, error)
}

type JobEnqueuer interface {
	Enqueue(ctx context.Context, job *jobs.Job) (bool, error)
}
