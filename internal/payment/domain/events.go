package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

const EventType_CheckoutSessionCompleted = "checkout.session.completed"

// PaymentEvent is a processor notification as received. Rows are never
// deleted; ProcessedAt is set once by the fulfillment worker.
type PaymentEvent struct {
	ID          uuid.UUID       `db:"id"`
	EventID     string          `db:"event_id"`
	Type        string          `db:"type"`
	Payload     json.RawMessage `db:"payload"`
	ReceivedAt  time.Time       `db:"received_at"`
	ProcessedAt *time.Time      `db:"processed_at"`
}

func NewPaymentEvent(v *VerifiedEvent, receivedAt time.Time) *PaymentEvent {
	return &PaymentEvent{
		ID:         uuid.New(),
		EventID:    v.EventID,
		Type:       v.Type,
		Payload:    v.Payload,
		ReceivedAt: receivedAt.UTC(),
	}
}

func (e *PaymentEvent) IsProcessed() bool {
	return e.ProcessedAt != nil
}

// EventCursor is a position in (received_at, id) order.
type EventCursor struct {
	ReceivedAt time.Time
	ID         uuid.UUID
}

func (e *PaymentEvent) Cursor() *EventCursor {
	return &EventCursor{ReceivedAt: e.ReceivedAt, ID: e.ID}
}

// VerifiedEvent is what survives signature verification.
type VerifiedEvent struct {
	EventID string
	Type    string
	Payload []byte
}

// ProcessorEvent is the closed set of notifications the pipeline
// understands. Anything else decodes to UnhandledEvent.
type ProcessorEvent interface {
	processorEvent()
}

// CheckoutCompleted is a finished checkout session. OrderRef is the order id
// the checkout embedded (metadata.orderId, else client_reference_id) and may
// be empty.
type CheckoutCompleted struct {
	SessionID       string
	OrderRef        string
	PaymentIntentID string
}

type UnhandledEvent struct {
	Type string
}

func (CheckoutCompleted) processorEvent() {}
func (UnhandledEvent) processorEvent()    {}
