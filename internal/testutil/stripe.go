package testutil

import (
	"encoding/json"
	"time"

	"github.com/stripe/stripe-go/v82/webhook"
)

const WebhookSecret = "whsec_storefront_test"

// CheckoutCompleted builds a checkout.session.completed event body. An
// empty orderRef leaves the metadata empty.
func CheckoutCompleted(eventID, sessionID, orderRef, paymentIntentID string) []byte {
	metadata := map[string]string{}
	if orderRef != "" {
		metadata["orderId"] = orderRef
	}
	session := map[string]any{
		"id":       sessionID,
		"object":   "checkout.session",
		"metadata": metadata,
	}
	if paymentIntentID != "" {
		session["payment_intent"] = paymentIntentID
	}
	return mustJSON(map[string]any{
		"id":          eventID,
		"object":      "event",
		"type":        "checkout.session.completed",
		"api_version": "2020-08-27",
		"data":        map[string]any{"object": session},
	})
}

func GenericEvent(eventID, eventType string) []byte {
	return mustJSON(map[string]any{
		"id":          eventID,
		"object":      "event",
		"type":        eventType,
		"api_version": "2020-08-27",
		"data":        map[string]any{"object": map[string]any{}},
	})
}

// Sign returns a Stripe-Signature header for payload signed with
// WebhookSecret at the current time.
func Sign(payload []byte) string {
	return webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    WebhookSecret,
		Timestamp: time.Now(),
	}).Header
}

func mustJSON(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}
