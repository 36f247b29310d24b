package stripe

import (
	"errors"
	"fmt"
	"time"

	"github.com/k-code-yt/go-storefront/internal/payment/domain"
	pkgerrors "github.com/k-code-yt/go-storefront/pkg/errors"
	"github.com/stripe/stripe-go/v82/webhook"
)

const DefaultTolerance = 300 * time.Second

// SignatureVerifier checks the Stripe-Signature header (t=...,v1=...) against
// the raw request body.
type SignatureVerifier struct {
	secret    string
	tolerance time.Duration
}

func NewSignatureVerifier(secret string, tolerance time.Duration) *SignatureVerifier {
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}
	return &SignatureVerifier{
		secret:    secret,
		tolerance: tolerance,
	}
}

func (v *SignatureVerifier) Verify(payload []byte, header string) (*domain.VerifiedEvent, error) {
	if header == "" {
		return nil, pkgerrors.ErrMissingSignature
	}

	event, err := webhook.ConstructEventWithOptions(payload, header, v.secret, webhook.ConstructEventOptions{
		Tolerance:                v.tolerance,
		IgnoreAPIVersionMismatch: true,
	})
	switch {
	case errors.Is(err, webhook.ErrNotSigned):
		return nil, pkgerrors.ErrMissingSignature
	case errors.Is(err, webhook.ErrInvalidHeader),
		errors.Is(err, webhook.ErrNoValidSignature),
		errors.Is(err, webhook.ErrTooOld):
		return nil, pkgerrors.NewInvalidSignatureError(err)
	case err != nil:
		return nil, pkgerrors.NewInvalidPayloadError(err)
	}

	if event.ID == "" || event.Type == "" {
		return nil, pkgerrors.NewInvalidPayloadError(fmt.Errorf("event id or type is missing"))
	}
	return &domain.VerifiedEvent{
		EventID: event.ID,
		Type:    string(event.Type),
		Payload: payload,
	}, nil
}
