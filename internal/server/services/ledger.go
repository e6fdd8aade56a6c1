package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dmitrijs2005/creditkeeper/internal/common"
	"github.com/dmitrijs2005/creditkeeper/internal/dbx"
	"github.com/dmitrijs2005/creditkeeper/internal/logging"
	"github.com/dmitrijs2005/creditkeeper/internal/server/models"
	"github.com/dmitrijs2005/creditkeeper/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/creditkeeper/internal/server/review"
	"github.com/dmitrijs2005/creditkeeper/internal/server/webhooks/stripesig"
	"github.com/shopspring/decimal"
)

const paymentsSource = "payments"

// maxAmountMinor is the largest amount transactions.amount (numeric(12, 2))
// can hold, in minor units.
const maxAmountMinor = 999_999_999_999

var withTx = dbx.WithTx

var errAlreadyCredited = errors.New("payment already credited")

// LedgerService turns verified payment notifications into ledger rows and
// credit increments. Redelivery of the same payment is expected and must
// never credit twice.
type LedgerService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	review      review.Queue
	logger      logging.Logger
	timeout     time.Duration
}

func NewLedgerService(db *sql.DB, m repomanager.RepositoryManager, q review.Queue, l logging.Logger, timeout time.Duration) *LedgerService {
	return &LedgerService{
		db:          db,
		repomanager: m,
		review:      q,
		logger:      l.With("module", "ledger"),
		timeout:     timeout,
	}
}

// checkout is a checkout session with its metadata already parsed.
type checkout struct {
	paymentID   string
	amountMinor int64
	buyerID     string
	plan        string
	credits     int64
}

func parseCheckout(s *stripesig.CheckoutSession) (*checkout, error) {
	c := &checkout{
		paymentID: strings.TrimSpace(s.ID),
		buyerID:   strings.TrimSpace(s.Metadata["buyerId"]),
		plan:      strings.TrimSpace(s.Metadata["plan"]),
	}

	switch {
	case c.paymentID == "":
		return nil, errors.New("missing payment id")
	case s.AmountTotal == nil:
		return nil, errors.New("missing amount_total")
	case *s.AmountTotal < 0:
		return nil, errors.New("negative amount_total")
	case *s.AmountTotal > maxAmountMinor:
		return nil, fmt.Errorf("amount_total %d out of range", *s.AmountTotal)
	case c.buyerID == "":
		return nil, errors.New("missing buyerId")
	case c.plan == "":
		return nil, errors.New("missing plan")
	}
	c.amountMinor = *s.AmountTotal

	n, err := strconv.ParseInt(strings.TrimSpace(s.Metadata["credits"]), 10, 64)
	if err != nil || n <= 0 {
		return nil, fmt.Errorf("invalid credits %q", s.Metadata["credits"])
	}
	c.credits = n

	return c, nil
}

// ReconcilePayment records the payment of ev and credits the buyer once.
//
// Returned errors, all matched with errors.Is:
//   - common.ErrIgnoredEvent: not a completed checkout, nothing to do;
//   - common.ErrMalformedEvent: flagged for review, nothing written;
//   - common.ErrUnknownBuyer: the ledger row exists, the credit could not be
//     applied and the payment was flagged;
//   - common.ErrTransientInfra: store failure, the notification should be
//     redelivered. Any credit missed here is applied on redelivery.
func (s *LedgerService) ReconcilePayment(ctx context.Context, ev *stripesig.Event) (*models.Transaction, error) {
	if ev.Type != stripesig.EventCheckoutSessionCompleted {
		s.logger.Debug(ctx, "ignoring payment event", "event_id", ev.ID, "type", ev.Type)
		return nil, common.ErrIgnoredEvent
	}

	session, err := ev.CheckoutSession()
	if err != nil {
		return nil, s.malformed(ctx, ev, err)
	}
	c, err := parseCheckout(session)
	if err != nil {
		return nil, s.malformed(ctx, ev, err)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	stored, created, err := s.repomanager.Transactions(s.db).CreateIfAbsent(ctx, &models.Transaction{
		PaymentID:       c.paymentID,
		Amount:          decimal.New(c.amountMinor, -2),
		Plan:            c.plan,
		Credits:         c.credits,
		BuyerExternalID: c.buyerID,
		CreatedAt:       time.Now().UTC(),
	})
	if err != nil {
		s.logger.Error(ctx, "error recording transaction", "payment_id", c.paymentID, "error", err)
		return nil, fmt.Errorf("%w: record transaction: %v", common.ErrTransientInfra, err)
	}
	if !created {
		s.logger.Info(ctx, "duplicate payment notification", "payment_id", c.paymentID)
	}

	// Credits follow the stored row, so a redelivery with edited metadata
	// cannot change what the payment is worth.
	balance, err := s.applyCredits(ctx, stored)
	switch {
	case err == nil:
		s.logger.Info(ctx, "credits applied",
			"payment_id", stored.PaymentID, "buyer", stored.BuyerExternalID,
			"credits", stored.Credits, "balance", balance)
	case errors.Is(err, errAlreadyCredited):
	case errors.Is(err, common.ErrUnknownBuyer):
		s.logger.Warn(ctx, "payment for unknown buyer", "payment_id", stored.PaymentID, "buyer", stored.BuyerExternalID)
		s.flag(ctx, ev, review.ReasonUnknownBuyer, "buyer "+stored.BuyerExternalID+" not found")
		return stored, err
	default:
		s.logger.Error(ctx, "error applying credits", "payment_id", stored.PaymentID, "error", err)
		return stored, fmt.Errorf("%w: apply credits: %v", common.ErrTransientInfra, err)
	}

	return stored, nil
}

// applyCredits writes the grant marker and the balance increment in one
// database transaction. errAlreadyCredited means an earlier delivery
// already did both.
func (s *LedgerService) applyCredits(ctx context.Context, t *models.Transaction) (int64, error) {
	var balance int64

	err := withTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		inserted, err := s.repomanager.CreditGrants(tx).Insert(ctx, &models.CreditGrant{
			PaymentID:       t.PaymentID,
			BuyerExternalID: t.BuyerExternalID,
			Credits:         t.Credits,
		})
		if err != nil {
			return err
		}
		if !inserted {
			return errAlreadyCredited
		}

		balance, err = s.repomanager.Users(tx).AddCredits(ctx, t.BuyerExternalID, t.Credits)
		if errors.Is(err, common.ErrorNotFound) {
			return common.ErrUnknownBuyer
		}
		return err
	})

	return balance, err
}

func (s *LedgerService) malformed(ctx context.Context, ev *stripesig.Event, cause error) error {
	s.logger.Warn(ctx, "malformed payment event", "event_id", ev.ID, "error", cause)
	s.flag(ctx, ev, review.ReasonMalformedEvent, cause.Error())
	return fmt.Errorf("%w: %v", common.ErrMalformedEvent, cause)
}

func (s *LedgerService) flag(ctx context.Context, ev *stripesig.Event, reason review.Reason, detail string) {
	payload, err := eventPayload(ev.Raw, ev)
	if err != nil {
		s.logger.Error(ctx, "error encoding payment event for review", "event_id", ev.ID, "error", err)
	}
	if err := s.review.Flag(ctx, review.Item{
		Source:  paymentsSource,
		Reason:  reason,
		EventID: ev.ID,
		Detail:  detail,
		Payload: payload,
	}); err != nil {
		s.logger.Error(ctx, "error flagging payment for review", "event_id", ev.ID, "error", err)
	}
}
