// Package stripesig verifies payment provider notifications signed with
// the Stripe-Signature scheme and decodes them into typed events.
package stripesig

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/dmitrijs2005/creditkeeper/internal/server/webhooks"
	"github.com/stripe/stripe-go/v82/webhook"
)

const (
	SignatureHeader  = "Stripe-Signature"
	DefaultTolerance = 5 * time.Minute
)

type Verifier struct {
	secret    string
	tolerance time.Duration
}

// NewVerifier returns a verifier for secret. A zero tolerance falls back to
// DefaultTolerance.
func NewVerifier(secret string, tolerance time.Duration) *Verifier {
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}
	return &Verifier{secret: secret, tolerance: tolerance}
}

// Verify authenticates body against the signature header and decodes it.
// It has no side effects.
func (v *Verifier) Verify(body []byte, h http.Header) (*Event, error) {
	if v.secret == "" {
		return nil, webhooks.ErrSecretNotConfigured
	}

	err := webhook.ValidatePayloadWithTolerance(body, h.Get(SignatureHeader), v.secret, v.tolerance)
	switch {
	case errors.Is(err, webhook.ErrNotSigned):
		return nil, webhooks.ErrMissingHeaders
	case err != nil:
		return nil, fmt.Errorf("%w: %v", webhooks.ErrInvalidSignature, err)
	}

	var ev Event
	if err := json.Unmarshal(body, &ev); err != nil {
		return nil, fmt.Errorf("%w: %v", webhooks.ErrMalformedPayload, err)
	}
	if ev.Type == "" {
		return nil, fmt.Errorf("%w: missing event type", webhooks.ErrMalformedPayload)
	}
	ev.Raw = body

	return &ev, nil
}

// Sign builds the headers a provider would send for body at ts.
func Sign(secret string, body []byte, ts time.Time) http.Header {
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   body,
		Secret:    secret,
		Timestamp: ts,
	})

	h := http.Header{}
	h.Set(SignatureHeader, signed.Header)
	return h
}
