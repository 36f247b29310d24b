package stripe

import (
	"encoding/json"
	"fmt"

	"github.com/k-code-yt/go-storefront/internal/payment/domain"
	pkgerrors "github.com/k-code-yt/go-storefront/pkg/errors"
	stripego "github.com/stripe/stripe-go/v82"
)

// DecodeProcessorEvent maps a stored Stripe event onto the closed
// ProcessorEvent set. Malformed payloads of a handled type are permanent
// errors.
func DecodeProcessorEvent(eventType string, payload []byte) (domain.ProcessorEvent, error) {
	if eventType != string(stripego.EventTypeCheckoutSessionCompleted) {
		return domain.UnhandledEvent{Type: eventType}, nil
	}

	var event stripego.Event
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, pkgerrors.NewInvalidPayloadError(err)
	}
	if event.Data == nil || len(event.Data.Raw) == 0 {
		return nil, pkgerrors.NewInvalidPayloadError(fmt.Errorf("event %s has no data.object", event.ID))
	}

	var session stripego.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
		return nil, pkgerrors.NewInvalidPayloadError(err)
	}
	if session.ID == "" {
		return nil, pkgerrors.NewInvalidPayloadError(fmt.Errorf("event %s has no session id", event.ID))
	}

	orderRef := session.Metadata["orderId"]
	if orderRef == "" {
		orderRef = session.ClientReferenceID
	}

	completed := domain.CheckoutCompleted{
		SessionID: session.ID,
		OrderRef:  orderRef,
	}
	// payment_intent arrives as an id or, when expanded, as an object
	if session.PaymentIntent != nil {
		completed.PaymentIntentID = session.PaymentIntent.ID
	}
	return completed, nil
}
