package httpapi

import (
	"errors"
	"io"
	"net/http"

	"github.com/dmitrijs2005/creditkeeper/internal/common"
	"github.com/dmitrijs2005/creditkeeper/internal/server/review"
	"github.com/dmitrijs2005/creditkeeper/internal/server/webhooks"
	"github.com/dmitrijs2005/creditkeeper/internal/server/webhooks/svixsig"
)

const maxWebhookBody = 1 << 20

const (
	sourcePayments = "payments"
	sourceIdentity = "identity"
)

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		writeMessage(w, http.StatusBadRequest, "Unreadable body")
		return nil, false
	}
	return body, true
}

// verifyFailed writes the response for a verification error. A signed body
// that does not decode is acknowledged and flagged, like any other
// malformed event.
func (s *Server) verifyFailed(w http.ResponseWriter, r *http.Request, source string, body []byte, err error) {
	if errors.Is(err, common.ErrMalformedEvent) {
		s.logger.Warn(r.Context(), "malformed webhook payload", "source", source, "error", err)
		s.flagPayload(r, source, body, err)
		s.metrics.WebhookOutcome(source, "malformed")
		writeMessage(w, http.StatusOK, "Event received but flagged for review")
		return
	}

	if errors.Is(err, webhooks.ErrSecretNotConfigured) {
		s.logger.Error(r.Context(), "webhook secret not configured", "source", source)
		s.metrics.WebhookOutcome(source, "misconfigured")
		writeMessage(w, http.StatusInternalServerError, "Webhook secret not configured")
		return
	}

	s.logger.Warn(r.Context(), "webhook verification failed", "source", source, "error", err)
	s.metrics.WebhookOutcome(source, "rejected")
	if errors.Is(err, webhooks.ErrMissingHeaders) {
		writeMessage(w, http.StatusBadRequest, "Missing signature headers")
		return
	}
	writeMessage(w, http.StatusBadRequest, "Invalid signature")
}

func (s *Server) flagPayload(r *http.Request, source string, body []byte, cause error) {
	if s.review == nil {
		return
	}
	if err := s.review.Flag(r.Context(), review.Item{
		Source:  source,
		Reason:  review.ReasonMalformedEvent,
		EventID: r.Header.Get(svixsig.IDHeader),
		Detail:  cause.Error(),
		Payload: body,
	}); err != nil {
		s.logger.Error(r.Context(), "error flagging webhook payload for review", "source", source, "error", err)
	}
}

func (s *Server) paymentWebhook(w http.ResponseWriter, r *http.Request) {
	body, ok := readBody(w, r)
	if !ok {
		return
	}

	ev, err := s.paymentVerifier.Verify(body, r.Header)
	if err != nil {
		s.verifyFailed(w, r, sourcePayments, body, err)
		return
	}

	tx, err := s.ledger.ReconcilePayment(r.Context(), ev)
	switch {
	case err == nil:
		s.metrics.WebhookOutcome(sourcePayments, "processed")
		writeJSON(w, http.StatusOK, map[string]string{
			"message":       "Transaction processed successfully",
			"transactionId": tx.ID,
		})
	case errors.Is(err, common.ErrIgnoredEvent):
		s.metrics.WebhookOutcome(sourcePayments, "ignored")
		writeMessage(w, http.StatusOK, "Event received")
	case errors.Is(err, common.ErrMalformedEvent):
		s.metrics.WebhookOutcome(sourcePayments, "malformed")
		writeMessage(w, http.StatusOK, "Event received but flagged for review")
	case errors.Is(err, common.ErrUnknownBuyer):
		s.metrics.WebhookOutcome(sourcePayments, "unknown_buyer")
		writeMessage(w, http.StatusOK, "Event received but flagged for review")
	default:
		s.logger.Error(r.Context(), "payment webhook failed", "event_id", ev.ID, "error", err)
		s.metrics.WebhookOutcome(sourcePayments, "error")
		writeMessage(w, http.StatusInternalServerError, "Webhook processing failed")
	}
}

func (s *Server) identityWebhook(w http.ResponseWriter, r *http.Request) {
	body, ok := readBody(w, r)
	if !ok {
		return
	}

	ev, err := s.identityVerifier.Verify(body, r.Header)
	if err != nil {
		s.verifyFailed(w, r, sourceIdentity, body, err)
		return
	}

	err = s.identity.HandleIdentityEvent(r.Context(), ev)
	switch {
	case err == nil:
		s.metrics.WebhookOutcome(sourceIdentity, "processed")
		writeMessage(w, http.StatusOK, "OK")
	case errors.Is(err, common.ErrIgnoredEvent):
		s.metrics.WebhookOutcome(sourceIdentity, "ignored")
		writeMessage(w, http.StatusOK, "Webhook processed")
	case errors.Is(err, common.ErrMalformedEvent):
		s.metrics.WebhookOutcome(sourceIdentity, "malformed")
		writeMessage(w, http.StatusOK, "Event received but flagged for review")
	default:
		s.logger.Error(r.Context(), "identity webhook failed", "type", ev.Type, "error", err)
		s.metrics.WebhookOutcome(sourceIdentity, "error")
		writeMessage(w, http.StatusInternalServerError, "Webhook processing failed")
	}
}
