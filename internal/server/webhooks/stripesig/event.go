package stripesig

import (
	"encoding/json"
	"fmt"

	"github.com/dmitrijs2005/creditkeeper/internal/server/webhooks"
)

const EventCheckoutSessionCompleted = "checkout.session.completed"

type Event struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Created int64  `json:"created"`
	Data    struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`

	// Raw is the verified request body.
	Raw json.RawMessage `json:"-"`
}

// CheckoutSession is the subset of the checkout session object the ledger
// reads. AmountTotal is in minor currency units.
type CheckoutSession struct {
	ID            string            `json:"id"`
	AmountTotal   *int64            `json:"amount_total"`
	Currency      string            `json:"currency"`
	PaymentStatus string            `json:"payment_status"`
	Metadata      map[string]string `json:"metadata"`
}

// CheckoutSession decodes the event object as a checkout session.
func (e *Event) CheckoutSession() (*CheckoutSession, error) {
	if len(e.Data.Object) == 0 {
		return nil, fmt.Errorf("%w: empty data.object", webhooks.ErrMalformedPayload)
	}
	var s CheckoutSession
	if err := json.Unmarshal(e.Data.Object, &s); err != nil {
		return nil, fmt.Errorf("%w: %v", webhooks.ErrMalformedPayload, err)
	}
	return &s, nil
}
