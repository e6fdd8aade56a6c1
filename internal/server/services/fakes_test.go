package services

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/creditkeeper/internal/common"
	"github.com/dmitrijs2005/creditkeeper/internal/dbx"
	"github.com/dmitrijs2005/creditkeeper/internal/server/models"
	"github.com/dmitrijs2005/creditkeeper/internal/server/repositories/creditgrants"
	"github.com/dmitrijs2005/creditkeeper/internal/server/repositories/transactions"
	"github.com/dmitrijs2005/creditkeeper/internal/server/repositories/users"
	"github.com/dmitrijs2005/creditkeeper/internal/server/review"
)

// memStore mimics the Postgres semantics the services rely on: unique
// payment IDs, unique handles and the conditional handle claim.
type memStore struct {
	mu     sync.Mutex
	txMu   sync.Mutex
	users  map[string]*models.User
	txs    map[string]*models.Transaction
	grants map[string]*models.CreditGrant

	// failed handle pushes per user, and the order they were last recorded in
	syncAttempts map[string]int
	syncTick     map[string]int
	tick         int

	addCreditsFailures int
	createErr          error
	listErr            error
}

func newMemStore() *memStore {
	return &memStore{
		users:  map[string]*models.User{},
		txs:    map[string]*models.Transaction{},
		grants: map[string]*models.CreditGrant{},

		syncAttempts: map[string]int{},
		syncTick:     map[string]int{},
	}
}

type memSnapshot struct {
	users  map[string]models.User
	grants map[string]models.CreditGrant
}

func (s *memStore) snapshot() memSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := memSnapshot{users: map[string]models.User{}, grants: map[string]models.CreditGrant{}}
	for k, u := range s.users {
		snap.users[k] = *u
	}
	for k, g := range s.grants {
		snap.grants[k] = *g
	}
	return snap
}

func (s *memStore) restore(snap memSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users = map[string]*models.User{}
	for k, u := range snap.users {
		u := u
		s.users[k] = &u
	}
	s.grants = map[string]*models.CreditGrant{}
	for k, g := range snap.grants {
		g := g
		s.grants[k] = &g
	}
}

func (s *memStore) user(externalID string) *models.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[externalID]
	if !ok {
		return nil
	}
	c := *u
	return &c
}

func (s *memStore) seedUser(externalID, email string, balance int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[externalID] = &models.User{
		ID: "id-" + externalID, ExternalID: externalID, Email: email,
		CreditBalance: balance, HandleSynced: true,
	}
}

// useMemTx swaps the transaction helper for one that serializes callers and
// restores the store when fn fails, the way a rolled back transaction would.
func useMemTx(t *testing.T, s *memStore) {
	t.Helper()
	orig := withTx
	t.Cleanup(func() { withTx = orig })

	withTx = func(ctx context.Context, _ *sql.DB, _ *sql.TxOptions, fn func(ctx context.Context, tx dbx.DBTX) error) error {
		s.txMu.Lock()
		defer s.txMu.Unlock()
		snap := s.snapshot()
		if err := fn(ctx, nil); err != nil {
			s.restore(snap)
			return err
		}
		return nil
	}
}

type memManager struct{ s *memStore }

func (m *memManager) RunMigrations(context.Context, *sql.DB) error { return nil }
func (m *memManager) Users(dbx.DBTX) users.Repository             { return &memUsers{m.s} }
func (m *memManager) Transactions(dbx.DBTX) transactions.Repository {
	return &memTransactions{m.s}
}
func (m *memManager) CreditGrants(dbx.DBTX) creditgrants.Repository { return &memGrants{m.s} }

type memUsers struct{ s *memStore }

func copyUser(u *models.User) *models.User {
	c := *u
	if u.Handle != nil {
		h := *u.Handle
		c.Handle = &h
	}
	return &c
}

func (r *memUsers) Upsert(_ context.Context, externalID, email string, p models.ProfileFields) (*models.User, bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, u := range r.s.users {
		if u.Email == email && u.ExternalID != externalID {
			return nil, false, common.ErrorAlreadyExists
		}
	}
	if u, ok := r.s.users[externalID]; ok {
		u.FirstName, u.LastName, u.Photo = p.FirstName, p.LastName, p.Photo
		return copyUser(u), false, nil
	}
	u := &models.User{
		ID: "id-" + externalID, ExternalID: externalID, Email: email,
		FirstName: p.FirstName, LastName: p.LastName, Photo: p.Photo,
		CreditBalance: common.DefaultCreditBalance, HandleSynced: true,
		CreatedAt: time.Now(), UpdatedAt: time.Now(),
	}
	r.s.users[externalID] = u
	return copyUser(u), true, nil
}

func (r *memUsers) GetByExternalID(_ context.Context, externalID string) (*models.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[externalID]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return copyUser(u), nil
}

func (r *memUsers) HandleTakenByOther(_ context.Context, handle, externalID string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, u := range r.s.users {
		if u.Handle != nil && *u.Handle == handle && u.ExternalID != externalID {
			return true, nil
		}
	}
	return false, nil
}

func (r *memUsers) ClaimHandle(_ context.Context, externalID, handle string, synced bool) (*models.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[externalID]
	if !ok || (u.Handle != nil && *u.Handle != handle) {
		return nil, common.ErrorNotFound
	}
	for _, o := range r.s.users {
		if o.ExternalID != externalID && o.Handle != nil && *o.Handle == handle {
			return nil, common.ErrConflict
		}
	}
	h := handle
	u.Handle, u.ProfileCompleted, u.HandleSynced = &h, true, synced
	delete(r.s.syncAttempts, externalID)
	delete(r.s.syncTick, externalID)
	return copyUser(u), nil
}

func (r *memUsers) MarkHandleSynced(_ context.Context, externalID, handle string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if u, ok := r.s.users[externalID]; ok && u.Handle != nil && *u.Handle == handle {
		u.HandleSynced = true
	}
	return nil
}

// ListUnsyncedHandles orders like the SQL query: never attempted first (by
// external ID, standing in for updated_at), then least recently attempted.
func (r *memUsers) ListUnsyncedHandles(_ context.Context, limit, maxAttempts int) ([]*models.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.listErr != nil {
		return nil, r.s.listErr
	}
	var out []*models.User
	for _, u := range r.s.users {
		if !u.HandleSynced && u.Handle != nil && r.s.syncAttempts[u.ExternalID] < maxAttempts {
			out = append(out, copyUser(u))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		ti, tj := r.s.syncTick[out[i].ExternalID], r.s.syncTick[out[j].ExternalID]
		if ti != tj {
			return ti < tj
		}
		return out[i].ExternalID < out[j].ExternalID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *memUsers) RecordHandleSyncFailure(_ context.Context, externalID string) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[externalID]
	if !ok || u.HandleSynced {
		return 0, common.ErrorNotFound
	}
	r.s.tick++
	r.s.syncTick[externalID] = r.s.tick
	r.s.syncAttempts[externalID]++
	return r.s.syncAttempts[externalID], nil
}

func (r *memUsers) AddCredits(_ context.Context, externalID string, credits int64) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.addCreditsFailures > 0 {
		r.s.addCreditsFailures--
		return 0, errors.New("connection reset")
	}
	u, ok := r.s.users[externalID]
	if !ok {
		return 0, common.ErrorNotFound
	}
	u.CreditBalance += credits
	return u.CreditBalance, nil
}

func (r *memUsers) Delete(_ context.Context, externalID string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.users[externalID]; !ok {
		return false, nil
	}
	delete(r.s.users, externalID)
	return true, nil
}

type memTransactions struct{ s *memStore }

func (r *memTransactions) CreateIfAbsent(_ context.Context, tx *models.Transaction) (*models.Transaction, bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.createErr != nil {
		return nil, false, r.s.createErr
	}
	if existing, ok := r.s.txs[tx.PaymentID]; ok {
		c := *existing
		return &c, false, nil
	}
	c := *tx
	c.ID = "tx-" + tx.PaymentID
	r.s.txs[tx.PaymentID] = &c
	out := c
	return &out, true, nil
}

func (r *memTransactions) GetByPaymentID(_ context.Context, paymentID string) (*models.Transaction, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t, ok := r.s.txs[paymentID]
	if !ok {
		return nil, common.ErrorNotFound
	}
	c := *t
	return &c, nil
}

type memGrants struct{ s *memStore }

func (r *memGrants) Insert(_ context.Context, g *models.CreditGrant) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.grants[g.PaymentID]; ok {
		return false, nil
	}
	c := *g
	r.s.grants[g.PaymentID] = &c
	return true, nil
}

type recordingQueue struct {
	mu    sync.Mutex
	items []review.Item
}

func (q *recordingQueue) Flag(_ context.Context, item review.Item) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, item)
	return nil
}

func (q *recordingQueue) reasons() []review.Reason {
	q.mu.Lock()
	defer q.mu.Unlock()
	var out []review.Reason
	for _, it := range q.items {
		out = append(out, it.Reason)
	}
	return out
}

type fakeProvider struct {
	mu       sync.Mutex
	err      error
	failFor  map[string]bool
	attempts map[string]int
	calls    map[string]string

	metadataErr error
	localIDs    map[string]string
}

func (p *fakeProvider) UpdateUsername(_ context.Context, externalID, handle string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.calls == nil {
		p.calls = map[string]string{}
		p.attempts = map[string]int{}
	}
	p.attempts[externalID]++
	if p.err != nil {
		return p.err
	}
	if p.failFor[externalID] {
		return errors.New("username rejected")
	}
	p.calls[externalID] = handle
	return nil
}

func (p *fakeProvider) SetLocalUserID(_ context.Context, externalID, userID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.metadataErr != nil {
		return p.metadataErr
	}
	if p.localIDs == nil {
		p.localIDs = map[string]string{}
	}
	p.localIDs[externalID] = userID
	return nil
}

func (p *fakeProvider) attemptsFor(externalID string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.attempts[externalID]
}
