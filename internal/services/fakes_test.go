package services

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/escrowdesk/backend/internal/events"
	"github.com/escrowdesk/backend/internal/models"
	"github.com/escrowdesk/backend/internal/repositories"
	"github.com/google/uuid"
)

// In-memory stores with the same conditional-write semantics as the
// postgres repositories: every mutation matches on (id, version, status)
// and a miss returns ErrVersionConflict.

type fakeEscrowStore struct {
	mu      sync.Mutex
	escrows map[uuid.UUID]*models.Escrow
	spent   map[uuid.UUID]int64
	earned  map[uuid.UUID]int64
}

func newFakeEscrowStore() *fakeEscrowStore {
	return &fakeEscrowStore{
		escrows: make(map[uuid.UUID]*models.Escrow),
		spent:   make(map[uuid.UUID]int64),
		earned:  make(map[uuid.UUID]int64),
	}
}

func (f *fakeEscrowStore) Create(ctx context.Context, e *models.Escrow) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	e.ID = uuid.New()
	e.Version = 1
	e.CreatedAt = time.Now().UTC()
	e.UpdatedAt = e.CreatedAt
	cp := *e
	f.escrows[e.ID] = &cp
	return nil
}

func (f *fakeEscrowStore) GetByID(ctx context.Context, id uuid.UUID) (*models.Escrow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.escrows[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	cp := *e
	return &cp, nil
}

func (f *fakeEscrowStore) GetByReference(ctx context.Context, reference string) (*models.Escrow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, e := range f.escrows {
		if e.Reference == reference {
			cp := *e
			return &cp, nil
		}
	}
	return nil, models.ErrNotFound
}

func (f *fakeEscrowStore) Fund(ctx context.Context, p repositories.FundParams) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.escrows[p.ID]
	if !ok || e.Version != p.Version || e.Status != models.EscrowStatusPendingPayment {
		return models.ErrVersionConflict
	}
	e.Status = models.EscrowStatusFunded
	e.Version++
	prov, ref := p.Provider, p.ProviderReference
	e.Provider = &prov
	e.ProviderReference = &ref
	e.ProviderPaymentID = p.ProviderPaymentID
	f.spent[p.BuyerID] += p.BuyerSpent
	return nil
}

func (f *fakeEscrowStore) MarkDelivery(ctx context.Context, p repositories.DeliveryParams) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.escrows[p.ID]
	if !ok || e.Version != p.Version || e.Status != models.EscrowStatusFunded {
		return models.ErrVersionConflict
	}
	e.Status = models.EscrowStatusDeliveryPending
	e.Version++
	e.TrackingCarrier = p.TrackingCarrier
	e.TrackingNumber = p.TrackingNumber
	e.DeliveryProofURL = p.DeliveryProofURL
	e.EstimatedDeliveryAt = p.EstimatedDeliveryAt
	delivered, release := p.DeliveredAt, p.AutoReleaseAt
	e.DeliveredAt = &delivered
	e.AutoReleaseAt = &release
	return nil
}

func (f *fakeEscrowStore) Complete(ctx context.Context, p repositories.CompleteParams) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.escrows[p.ID]
	if !ok || e.Version != p.Version || e.Status != models.EscrowStatusDeliveryPending {
		return models.ErrVersionConflict
	}
	e.Status = models.EscrowStatusCompleted
	e.Version++
	f.earned[p.SellerID] += p.SellerEarned
	return nil
}

func (f *fakeEscrowStore) Cancel(ctx context.Context, id uuid.UUID, version int, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.escrows[id]
	if !ok || e.Version != version || e.Status != models.EscrowStatusPendingPayment {
		return models.ErrVersionConflict
	}
	e.Status = models.EscrowStatusCancelled
	e.Version++
	e.CancelReason = &reason
	return nil
}

func (f *fakeEscrowStore) RecordPayout(ctx context.Context, p repositories.PayoutParams) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.escrows[p.ID]
	if !ok || e.Status != models.EscrowStatusCompleted || e.PaidOut {
		return fmt.Errorf("%w: escrow is not completed-and-unpaid", models.ErrPrecondition)
	}
	now := time.Now().UTC()
	acct, prov, tid := p.BankAccountID, p.Provider, p.TransferID
	e.PaidOut = true
	e.PaidOutAt = &now
	e.BankAccountID = &acct
	e.PayoutProvider = &prov
	e.PayoutTransferID = &tid
	return nil
}

func (f *fakeEscrowStore) ListAutoReleasable(ctx context.Context, now time.Time, limit int) ([]models.Escrow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Escrow
	for _, e := range f.escrows {
		if e.Status == models.EscrowStatusDeliveryPending && e.AutoReleaseAt != nil && !e.AutoReleaseAt.After(now) {
			out = append(out, *e)
		}
	}
	return out, nil
}

func (f *fakeEscrowStore) ListPendingOlderThan(ctx context.Context, cutoff time.Time, limit int) ([]models.Escrow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Escrow
	for _, e := range f.escrows {
		if e.Status == models.EscrowStatusPendingPayment && e.CreatedAt.Before(cutoff) {
			out = append(out, *e)
		}
	}
	return out, nil
}

func (f *fakeEscrowStore) CountCreatedSince(ctx context.Context, buyerID uuid.UUID, since time.Time) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, e := range f.escrows {
		if e.BuyerID == buyerID && !e.CreatedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

func (f *fakeEscrowStore) List(ctx context.Context, filter repositories.EscrowFilter) ([]models.Escrow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Escrow
	for _, e := range f.escrows {
		if filter.BuyerID != nil && filter.SellerID != nil {
			if e.BuyerID != *filter.BuyerID && e.SellerID != *filter.SellerID {
				continue
			}
		} else if filter.BuyerID != nil && e.BuyerID != *filter.BuyerID {
			continue
		} else if filter.SellerID != nil && e.SellerID != *filter.SellerID {
			continue
		}
		if filter.Status != nil && e.Status != *filter.Status {
			continue
		}
		out = append(out, *e)
	}
	return out, nil
}

// put replaces the stored escrow wholesale, for arranging test states.
func (f *fakeEscrowStore) put(e *models.Escrow) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *e
	f.escrows[e.ID] = &cp
}

type fakeUserStore struct {
	mu    sync.Mutex
	users map[uuid.UUID]*models.User
}

func newFakeUserStore(users ...*models.User) *fakeUserStore {
	f := &fakeUserStore{users: make(map[uuid.UUID]*models.User)}
	for _, u := range users {
		f.users[u.ID] = u
	}
	return f
}

func (f *fakeUserStore) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (f *fakeUserStore) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if strings.EqualFold(u.Email, email) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, models.ErrNotFound
}

type fakeDisputeStore struct {
	mu       sync.Mutex
	escrows  *fakeEscrowStore
	byID     map[uuid.UUID]*models.Dispute
	byEscrow map[uuid.UUID]uuid.UUID
}

func newFakeDisputeStore(escrows *fakeEscrowStore) *fakeDisputeStore {
	return &fakeDisputeStore{
		escrows:  escrows,
		byID:     make(map[uuid.UUID]*models.Dispute),
		byEscrow: make(map[uuid.UUID]uuid.UUID),
	}
}

func (f *fakeDisputeStore) Open(ctx context.Context, p repositories.OpenDisputeParams) (*models.Dispute, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.byEscrow[p.EscrowID]; exists {
		return nil, fmt.Errorf("%w: escrow already has a dispute", models.ErrPrecondition)
	}

	f.escrows.mu.Lock()
	defer f.escrows.mu.Unlock()
	e, ok := f.escrows.escrows[p.EscrowID]
	if !ok || e.Version != p.EscrowVersion {
		return nil, models.ErrVersionConflict
	}
	switch e.Status {
	case models.EscrowStatusFunded, models.EscrowStatusDeliveryPending, models.EscrowStatusCompleted:
	default:
		return nil, models.ErrVersionConflict
	}

	d := &models.Dispute{
		ID:          uuid.New(),
		EscrowID:    p.EscrowID,
		InitiatorID: p.InitiatorID,
		Reason:      p.Reason,
		Evidence:    p.Evidence,
		Status:      models.DisputeStatusOpen,
		FromStatus:  p.FromStatus,
		CreatedAt:   time.Now().UTC(),
	}
	e.Status = models.EscrowStatusDisputed
	e.Version++
	e.DisputeID = &d.ID

	f.byID[d.ID] = d
	f.byEscrow[p.EscrowID] = d.ID
	cp := *d
	return &cp, nil
}

func (f *fakeDisputeStore) GetByID(ctx context.Context, id uuid.UUID) (*models.Dispute, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.byID[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	cp := *d
	return &cp, nil
}

func (f *fakeDisputeStore) GetByEscrowID(ctx context.Context, escrowID uuid.UUID) (*models.Dispute, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id, ok := f.byEscrow[escrowID]
	if !ok {
		return nil, models.ErrNotFound
	}
	cp := *f.byID[id]
	return &cp, nil
}

func (f *fakeDisputeStore) MarkUnderReview(ctx context.Context, id, resolverID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.byID[id]
	if !ok || d.Status != models.DisputeStatusOpen {
		return fmt.Errorf("%w: dispute is not open", models.ErrPrecondition)
	}
	d.Status = models.DisputeStatusUnderReview
	d.ResolverID = &resolverID
	return nil
}

func (f *fakeDisputeStore) Resolve(ctx context.Context, p repositories.ResolveParams) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.escrows.mu.Lock()
	defer f.escrows.mu.Unlock()
	e, ok := f.escrows.escrows[p.EscrowID]
	if !ok || e.Version != p.EscrowVersion || e.Status != models.EscrowStatusDisputed {
		return models.ErrVersionConflict
	}

	d, ok := f.byID[p.DisputeID]
	if !ok || d.Status == models.DisputeStatusResolved {
		return fmt.Errorf("%w: dispute already resolved", models.ErrPrecondition)
	}

	e.Status = p.EscrowStatus
	e.Version++

	now := time.Now().UTC()
	winner, resolution := p.Winner, p.Resolution
	d.Status = models.DisputeStatusResolved
	d.Winner = &winner
	d.Resolution = &resolution
	d.RefundAmount = p.RefundAmount
	d.ResolverID = &p.ResolverID
	d.ResolvedAt = &now

	if p.Winner == models.DisputeWinnerSeller && p.SellerEarned > 0 {
		f.escrows.earned[p.SellerID] += p.SellerEarned
	}
	return nil
}

// seed inserts a dispute directly, for arranging test states.
func (f *fakeDisputeStore) seed(d *models.Dispute) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *d
	f.byID[d.ID] = &cp
	f.byEscrow[d.EscrowID] = d.ID
}

type fakeFeeSettingsStore struct {
	settings map[string]*models.FeeSettings
}

func (f *fakeFeeSettingsStore) GetActive(ctx context.Context, tier string) (*models.FeeSettings, error) {
	s, ok := f.settings[tier]
	if !ok {
		return nil, models.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

type fakeAuditStore struct {
	mu      sync.Mutex
	entries []models.AuditLog
}

func (f *fakeAuditStore) Log(ctx context.Context, entry models.AuditLog) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, entry)
	return nil
}

func (f *fakeAuditStore) GetByEntity(ctx context.Context, entityType string, entityID uuid.UUID, limit, offset int) ([]models.AuditLog, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.AuditLog
	for _, e := range f.entries {
		if e.EntityType == entityType && e.EntityID != nil && *e.EntityID == entityID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeAuditStore) actions() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, e := range f.entries {
		out = append(out, e.Action)
	}
	return out
}

type fakePublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (f *fakePublisher) Publish(ctx context.Context, stream string, event events.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
	return nil
}

type fakeBankAccountStore struct {
	mu       sync.Mutex
	accounts map[uuid.UUID]*models.BankAccount
}

func newFakeBankAccountStore() *fakeBankAccountStore {
	return &fakeBankAccountStore{accounts: make(map[uuid.UUID]*models.BankAccount)}
}

func (f *fakeBankAccountStore) Create(ctx context.Context, a *models.BankAccount) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	a.ID = uuid.New()
	a.CreatedAt = time.Now().UTC()
	cp := *a
	f.accounts[a.ID] = &cp
	return nil
}

func (f *fakeBankAccountStore) GetByID(ctx context.Context, id uuid.UUID) (*models.BankAccount, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.accounts[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (f *fakeBankAccountStore) ListByUser(ctx context.Context, userID uuid.UUID) ([]models.BankAccount, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.BankAccount
	for _, a := range f.accounts {
		if a.UserID == userID {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (f *fakeBankAccountStore) GetPrimary(ctx context.Context, userID uuid.UUID, currency string) (*models.BankAccount, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range f.accounts {
		if a.UserID == userID && a.Currency == currency && a.Primary && a.Verified {
			cp := *a
			return &cp, nil
		}
	}
	return nil, models.ErrNotFound
}

func (f *fakeBankAccountStore) SetPrimary(ctx context.Context, userID, accountID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	target, ok := f.accounts[accountID]
	if !ok || target.UserID != userID {
		return models.ErrNotFound
	}
	for _, a := range f.accounts {
		if a.UserID == userID && a.Currency == target.Currency {
			a.Primary = false
		}
	}
	target.Primary = true
	return nil
}

func (f *fakeBankAccountStore) SetVerified(ctx context.Context, id uuid.UUID, verified bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.accounts[id]
	if !ok {
		return models.ErrNotFound
	}
	a.Verified = verified
	return nil
}

type fakePayoutClient struct {
	mu           sync.Mutex
	failTransfer bool
	recipients   int
	transfers    []int64
}

func (f *fakePayoutClient) CreateRecipient(ctx context.Context, account *models.BankAccount) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recipients++
	return fmt.Sprintf("RCP_%d", f.recipients), nil
}

func (f *fakePayoutClient) Transfer(ctx context.Context, recipientCode string, amount int64, currency, reference, narration string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failTransfer {
		return "", fmt.Errorf("%w: transfer rejected", models.ErrProvider)
	}
	f.transfers = append(f.transfers, amount)
	return fmt.Sprintf("TRF_%d", len(f.transfers)), nil
}
