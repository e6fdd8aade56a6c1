package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type Transaction struct {
	ID              string
	PaymentID       string
	Amount          decimal.Decimal
	Plan            string
	Credits         int64
	BuyerExternalID string
	CreatedAt       time.Time
}

// CreditGrant marks that the credits of a payment were applied to the buyer.
// It is keyed by payment ID independently from Transaction.
type CreditGrant struct {
	PaymentID       string
	BuyerExternalID string
	Credits         int64
	AppliedAt       time.Time
}
