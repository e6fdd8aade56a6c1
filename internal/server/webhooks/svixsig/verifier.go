// Package svixsig verifies identity provider notifications delivered
// through Svix and decodes them into typed events.
package svixsig

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/dmitrijs2005/creditkeeper/internal/server/webhooks"
	svix "github.com/svix/svix-webhooks/go"
)

const (
	IDHeader        = "svix-id"
	TimestampHeader = "svix-timestamp"
	SignatureHeader = "svix-signature"

	secretPrefix = "whsec_"
)

type Verifier struct {
	wh *svix.Webhook
}

// NewVerifier accepts a "whsec_<base64>" or bare base64 secret. An empty or
// undecodable secret yields a verifier that rejects everything with
// ErrSecretNotConfigured.
func NewVerifier(secret string) *Verifier {
	if strings.TrimPrefix(secret, secretPrefix) == "" {
		return &Verifier{}
	}
	wh, err := svix.NewWebhook(secret)
	if err != nil {
		return &Verifier{}
	}
	return &Verifier{wh: wh}
}

// Verify authenticates body against the svix headers and decodes it.
// Timestamps more than five minutes away from now are rejected.
func (v *Verifier) Verify(body []byte, h http.Header) (*Event, error) {
	if v.wh == nil {
		return nil, webhooks.ErrSecretNotConfigured
	}

	id := h.Get(IDHeader)
	if id == "" || h.Get(TimestampHeader) == "" || h.Get(SignatureHeader) == "" {
		return nil, webhooks.ErrMissingHeaders
	}

	if err := v.wh.Verify(body, h); err != nil {
		return nil, fmt.Errorf("%w: %v", webhooks.ErrInvalidSignature, err)
	}

	var ev Event
	if err := json.Unmarshal(body, &ev); err != nil {
		return nil, fmt.Errorf("%w: %v", webhooks.ErrMalformedPayload, err)
	}
	if ev.Type == "" {
		return nil, fmt.Errorf("%w: missing event type", webhooks.ErrMalformedPayload)
	}
	ev.DeliveryID = id
	ev.Raw = body

	return &ev, nil
}

// Sign builds the svix headers for body. secret has the same format
// NewVerifier accepts.
func Sign(secret, id string, body []byte, ts time.Time) (http.Header, error) {
	wh, err := svix.NewWebhook(secret)
	if err != nil {
		return nil, err
	}
	sig, err := wh.Sign(id, ts, body)
	if err != nil {
		return nil, err
	}

	h := http.Header{}
	h.Set(IDHeader, id)
	h.Set(TimestampHeader, fmt.Sprintf("%d", ts.Unix()))
	h.Set(SignatureHeader, sig)
	return h, nil
}
