// Package services contains server-side business logic. This file implements
// IdentityService, which keeps the local user records in line with the
// identity provider and allocates unique handles.
package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/creditkeeper/internal/common"
	"github.com/dmitrijs2005/creditkeeper/internal/logging"
	"github.com/dmitrijs2005/creditkeeper/internal/server/handles"
	"github.com/dmitrijs2005/creditkeeper/internal/server/models"
	"github.com/dmitrijs2005/creditkeeper/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/creditkeeper/internal/server/review"
	"github.com/dmitrijs2005/creditkeeper/internal/server/webhooks/svixsig"
)

const identitySource = "identity"

// maxHandleSyncAttempts bounds how often the sweep retries one handle. A
// handle that reaches it is flagged for review and no longer retried.
const maxHandleSyncAttempts = 20

// IdentityProvider is the outbound side of the identity provider.
type IdentityProvider interface {
	UpdateUsername(ctx context.Context, externalID, handle string) error
	SetLocalUserID(ctx context.Context, externalID, userID string) error
}

// Availability is the answer to a handle availability query.
type Availability struct {
	Available bool
	Message   string
}

type ProfileStatus struct {
	ProfileCompleted bool
	Handle           *string
}

type IdentityService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	provider    IdentityProvider
	review      review.Queue
	logger      logging.Logger
	timeout     time.Duration
}

// NewIdentityService wires the service. A nil provider disables pushing
// handles back; they are then stored as already synced.
func NewIdentityService(db *sql.DB, m repomanager.RepositoryManager, p IdentityProvider, q review.Queue, l logging.Logger, timeout time.Duration) *IdentityService {
	return &IdentityService{
		db:          db,
		repomanager: m,
		provider:    p,
		review:      q,
		logger:      l.With("module", "identity"),
		timeout:     timeout,
	}
}

func withProfileDefaults(p models.ProfileFields) models.ProfileFields {
	if strings.TrimSpace(p.FirstName) == "" {
		p.FirstName = common.DefaultFirstName
	}
	if strings.TrimSpace(p.LastName) == "" {
		p.LastName = common.DefaultLastName
	}
	if strings.TrimSpace(p.Photo) == "" {
		p.Photo = common.DefaultPhotoURL
	}
	return p
}

// EnsureUser creates the user on first sighting with the default balance,
// or refreshes its profile fields. Handle and balance are never touched.
func (s *IdentityService) EnsureUser(ctx context.Context, externalID, email string, profile models.ProfileFields) (*models.User, error) {
	if externalID == "" || email == "" {
		return nil, fmt.Errorf("%w: external id and email are required", common.ErrValidation)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	user, created, err := s.repomanager.Users(s.db).Upsert(ctx, externalID, email, withProfileDefaults(profile))
	if err != nil {
		if errors.Is(err, common.ErrorAlreadyExists) {
			// email already used by another external ID
			return nil, fmt.Errorf("%w: %v", common.ErrConflict, err)
		}
		return nil, fmt.Errorf("%w: upsert user: %v", common.ErrTransientInfra, err)
	}
	if created {
		s.logger.Info(ctx, "user created", "external_id", externalID, "balance", user.CreditBalance)
	}
	return user, nil
}

// CheckAvailability reports whether candidate could be committed by
// requesterExternalID (which may be empty). It never writes.
func (s *IdentityService) CheckAvailability(ctx context.Context, candidate, requesterExternalID string) (Availability, error) {
	handle, err := handles.Validate(candidate)
	if err != nil {
		var v *handles.Violation
		if errors.As(err, &v) {
			return Availability{Available: false, Message: v.Message}, nil
		}
		return Availability{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	taken, err := s.repomanager.Users(s.db).HandleTakenByOther(ctx, handle, requesterExternalID)
	if err != nil {
		return Availability{}, fmt.Errorf("%w: check handle: %v", common.ErrTransientInfra, err)
	}
	if taken {
		return Availability{Available: false, Message: "Username is already taken"}, nil
	}
	return Availability{Available: true, Message: "Username is available"}, nil
}

// CommitHandle claims candidate for externalID. A user keeps the first handle
// it claims; committing the same handle again is a no-op success.
func (s *IdentityService) CommitHandle(ctx context.Context, externalID, candidate string) (*models.User, error) {
	handle, err := handles.Validate(candidate)
	if err != nil {
		return nil, err
	}

	user, err := s.claim(ctx, externalID, handle, s.provider == nil)
	if err != nil {
		return nil, err
	}
	s.logger.Info(ctx, "handle committed", "external_id", externalID, "handle", handle)

	if !user.HandleSynced {
		s.pushHandle(ctx, user)
	}
	return user, nil
}

func (s *IdentityService) claim(ctx context.Context, externalID, handle string, synced bool) (*models.User, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	repo := s.repomanager.Users(s.db)

	user, err := repo.ClaimHandle(ctx, externalID, handle, synced)
	switch {
	case err == nil:
		return user, nil
	case errors.Is(err, common.ErrConflict):
		return nil, common.ErrConflict
	case !errors.Is(err, common.ErrorNotFound):
		return nil, fmt.Errorf("%w: claim handle: %v", common.ErrTransientInfra, err)
	}

	// No row matched: tell an unknown user from one holding another handle.
	if _, err := repo.GetByExternalID(ctx, externalID); err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrUnknownUser
		}
		return nil, fmt.Errorf("%w: load user: %v", common.ErrTransientInfra, err)
	}
	return nil, common.ErrHandleAlreadyClaimed
}

// pushHandle copies the committed handle to the identity provider. Failures
// are logged and counted; the handle stays pending for the next sync sweep.
func (s *IdentityService) pushHandle(ctx context.Context, user *models.User) bool {
	if s.provider == nil || user.Handle == nil {
		return false
	}

	pushCtx, cancel := context.WithTimeout(ctx, s.timeout)
	err := s.provider.UpdateUsername(pushCtx, user.ExternalID, *user.Handle)
	cancel()
	if err != nil {
		s.logger.Warn(ctx, "error pushing handle to identity provider",
			"external_id", user.ExternalID, "handle", *user.Handle, "error", err)
		s.recordSyncFailure(ctx, user, err)
		return false
	}

	ctx, cancel = context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.repomanager.Users(s.db).MarkHandleSynced(ctx, user.ExternalID, *user.Handle); err != nil {
		s.logger.Warn(ctx, "error marking handle synced", "external_id", user.ExternalID, "error", err)
		return false
	}
	user.HandleSynced = true
	return true
}

// recordSyncFailure moves the user behind the other pending handles and
// flags it for review when the maxHandleSyncAttempts-th push fails.
func (s *IdentityService) recordSyncFailure(ctx context.Context, user *models.User, cause error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	attempts, err := s.repomanager.Users(s.db).RecordHandleSyncFailure(ctx, user.ExternalID)
	if err != nil {
		s.logger.Warn(ctx, "error recording handle sync failure", "external_id", user.ExternalID, "error", err)
		return
	}
	if attempts != maxHandleSyncAttempts {
		return
	}

	s.logger.Error(ctx, "giving up on handle sync",
		"external_id", user.ExternalID, "handle", *user.Handle, "attempts", attempts)
	if err := s.review.Flag(ctx, review.Item{
		Source:  identitySource,
		Reason:  review.ReasonHandleSyncFailed,
		EventID: user.ExternalID,
		Detail:  fmt.Sprintf("handle %s not accepted after %d attempts: %v", *user.Handle, attempts, cause),
	}); err != nil {
		s.logger.Error(ctx, "error flagging handle sync for review", "external_id", user.ExternalID, "error", err)
	}
}

// pushLocalUserID records the local user ID in the provider's public
// metadata. Failures are logged only.
func (s *IdentityService) pushLocalUserID(ctx context.Context, user *models.User) {
	if s.provider == nil {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.provider.SetLocalUserID(ctx, user.ExternalID, user.ID); err != nil {
		s.logger.Warn(ctx, "error pushing user id to identity provider", "external_id", user.ExternalID, "error", err)
	}
}

// ProfileStatus reports whether externalID has completed its profile.
// Unknown users are reported as not completed.
func (s *IdentityService) ProfileStatus(ctx context.Context, externalID string) (ProfileStatus, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	user, err := s.repomanager.Users(s.db).GetByExternalID(ctx, externalID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return ProfileStatus{}, nil
		}
		return ProfileStatus{}, fmt.Errorf("%w: load user: %v", common.ErrTransientInfra, err)
	}
	return ProfileStatus{ProfileCompleted: user.ProfileCompleted, Handle: user.Handle}, nil
}

// HandleIdentityEvent applies a verified identity notification.
func (s *IdentityService) HandleIdentityEvent(ctx context.Context, ev *svixsig.Event) error {
	switch ev.Type {
	case svixsig.EventUserCreated, svixsig.EventUserUpdated:
		return s.upsertFromEvent(ctx, ev)
	case svixsig.EventUserDeleted:
		return s.deleteFromEvent(ctx, ev)
	default:
		s.logger.Debug(ctx, "ignoring identity event", "type", ev.Type, "delivery_id", ev.DeliveryID)
		return common.ErrIgnoredEvent
	}
}

func (s *IdentityService) upsertFromEvent(ctx context.Context, ev *svixsig.Event) error {
	d := ev.Data
	email := d.PrimaryEmail()
	if d.ID == "" || email == "" {
		return s.malformed(ctx, ev, "missing user id or email")
	}

	user, err := s.EnsureUser(ctx, d.ID, email, models.ProfileFields{
		FirstName: deref(d.FirstName),
		LastName:  deref(d.LastName),
		Photo:     d.ImageURL,
	})
	if err != nil {
		if errors.Is(err, common.ErrConflict) {
			return s.malformed(ctx, ev, err.Error())
		}
		return err
	}

	if ev.Type == svixsig.EventUserCreated {
		s.pushLocalUserID(ctx, user)
	}

	if name := strings.TrimSpace(deref(d.Username)); name != "" {
		s.adoptProviderHandle(ctx, d.ID, name)
	}
	return nil
}

// adoptProviderHandle takes over a username set on the provider side while
// the local record has none. It is already in sync, so nothing is pushed.
func (s *IdentityService) adoptProviderHandle(ctx context.Context, externalID, name string) {
	handle, err := handles.Validate(name)
	if err != nil {
		s.logger.Info(ctx, "provider username is not a valid handle", "external_id", externalID, "username", name, "error", err)
		return
	}

	_, err = s.claim(ctx, externalID, handle, true)
	switch {
	case err == nil:
		s.logger.Info(ctx, "handle adopted from identity provider", "external_id", externalID, "handle", handle)
	case errors.Is(err, common.ErrHandleAlreadyClaimed):
		s.logger.Debug(ctx, "local handle kept", "external_id", externalID)
	default:
		s.logger.Warn(ctx, "provider username not adopted", "external_id", externalID, "handle", handle, "error", err)
	}
}

func (s *IdentityService) deleteFromEvent(ctx context.Context, ev *svixsig.Event) error {
	if ev.Data.ID == "" {
		return s.malformed(ctx, ev, "missing user id")
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	deleted, err := s.repomanager.Users(s.db).Delete(ctx, ev.Data.ID)
	if err != nil {
		return fmt.Errorf("%w: delete user: %v", common.ErrTransientInfra, err)
	}
	if !deleted {
		s.logger.Info(ctx, "delete for unknown user", "external_id", ev.Data.ID)
		return nil
	}
	s.logger.Info(ctx, "user deleted", "external_id", ev.Data.ID)
	return nil
}

// SyncPendingHandles pushes up to limit committed handles the identity
// provider has not confirmed yet and returns how many were synced.
func (s *IdentityService) SyncPendingHandles(ctx context.Context, limit int) (int, error) {
	if s.provider == nil {
		return 0, nil
	}

	listCtx, cancel := context.WithTimeout(ctx, s.timeout)
	pending, err := s.repomanager.Users(s.db).ListUnsyncedHandles(listCtx, limit, maxHandleSyncAttempts)
	cancel()
	if err != nil {
		return 0, fmt.Errorf("%w: list pending handles: %v", common.ErrTransientInfra, err)
	}

	synced := 0
	for _, u := range pending {
		if ctx.Err() != nil {
			return synced, ctx.Err()
		}
		if s.pushHandle(ctx, u) {
			synced++
		}
	}
	if len(pending) > 0 {
		s.logger.Info(ctx, "handle sync sweep", "pending", len(pending), "synced", synced)
	}
	return synced, nil
}

func (s *IdentityService) malformed(ctx context.Context, ev *svixsig.Event, detail string) error {
	s.logger.Warn(ctx, "malformed identity event", "type", ev.Type, "delivery_id", ev.DeliveryID, "detail", detail)
	payload, err := eventPayload(ev.Raw, ev)
	if err != nil {
		s.logger.Error(ctx, "error encoding identity event for review", "delivery_id", ev.DeliveryID, "error", err)
	}
	if err := s.review.Flag(ctx, review.Item{
		Source:  identitySource,
		Reason:  review.ReasonMalformedEvent,
		EventID: ev.DeliveryID,
		Detail:  detail,
		Payload: payload,
	}); err != nil {
		s.logger.Error(ctx, "error flagging identity event for review", "error", err)
	}
	return fmt.Errorf("%w: %s", common.ErrMalformedEvent, detail)
}

// eventPayload prefers the verified request body and only re-encodes ev
// when there is none.
func eventPayload(raw json.RawMessage, ev any) (json.RawMessage, error) {
	if len(raw) > 0 {
		return raw, nil
	}
	return json.Marshal(ev)
}

func deref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
