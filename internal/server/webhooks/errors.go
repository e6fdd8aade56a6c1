// Package webhooks holds what the inbound notification verifiers share:
// their failure sentinels. Each provider scheme lives in its own
// subpackage so the two never share a verification code path.
package webhooks

import (
	"errors"
	"fmt"

	"github.com/dmitrijs2005/creditkeeper/internal/common"
)

var (
	// ErrSecretNotConfigured means the server has no signing secret for
	// the provider. It is a deployment error, not a client one.
	ErrSecretNotConfigured = errors.New("webhook secret not configured")

	ErrMissingHeaders = fmt.Errorf("missing webhook signature headers: %w", common.ErrVerificationFailure)

	// ErrInvalidSignature covers signatures that do not match as well as
	// timestamps outside the tolerance window.
	ErrInvalidSignature = fmt.Errorf("invalid webhook signature: %w", common.ErrVerificationFailure)

	// ErrMalformedPayload is returned for a body whose signature checked out
	// but which cannot be decoded into an event. The provider did send it, so
	// it is acknowledged and flagged rather than rejected.
	ErrMalformedPayload = fmt.Errorf("malformed webhook payload: %w", common.ErrMalformedEvent)
)
