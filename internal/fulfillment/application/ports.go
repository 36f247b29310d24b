package application

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/k-code-yt/go-storefront/internal/fulfillment/domain"
	paydomain "github.com/k-code-yt/go-storefront/internal/payment/domain"
)

// Store gives the worker its event lookup and a transactional view of
// orders and inventory.
type Store interface {
	GetEvent(ctx context.Context, id uuid.UUID) (*paydomain.PaymentEvent, error)
	RunInTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// Tx is the set of writes fulfillment performs atomically. Find methods
// return nil when nothing matches.
type Tx interface {
	// MarkEventProcessed sets processed_at only if it is still unset.
	MarkEventProcessed(ctx context.Context, id uuid.UUID, at time.Time) (bool, error)
	FindOrderByID(ctx context.Context, id uuid.UUID) (*domain.Order, error)
	FindOrderBySession(ctx context.Context, sessionID string) (*domain.Order, error)
	// MarkOrderPaid applies only to a PENDING order.
	MarkOrderPaid(ctx context.Context, orderID uuid.UUID, sessionID, paymentIntentID string) (bool, error)
	ListOrderItems(ctx context.Context, orderID uuid.UUID) ([]domain.OrderItem, error)
	// DecrementStock applies only when stock covers qty.
	DecrementStock(ctx context.Context, variantID uuid.UUID, qty int) (bool, error)
}

type EventDecoder func(eventType string, payload []byte) (paydomain.ProcessorEvent, error)
