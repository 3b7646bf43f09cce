package services

import (
	"context"
	"fmt"

	"github.com/escrowdesk/backend/internal/events"
	"github.com/escrowdesk/backend/internal/models"
	"github.com/escrowdesk/backend/internal/providers"
	"github.com/escrowdesk/backend/internal/rbac"
	"github.com/escrowdesk/backend/internal/repositories"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type BankAccountStore interface {
	Create(ctx context.Context, a *models.BankAccount) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.BankAccount, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]models.BankAccount, error)
	GetPrimary(ctx context.Context, userID uuid.UUID, currency string) (*models.BankAccount, error)
	SetPrimary(ctx context.Context, userID, accountID uuid.UUID) error
	SetVerified(ctx context.Context, id uuid.UUID, verified bool) error
}

// PayoutClient is the provider-side transfer surface. Paystack serves NGN,
// flutterwave everything else.
type PayoutClient interface {
	CreateRecipient(ctx context.Context, account *models.BankAccount) (string, error)
	Transfer(ctx context.Context, recipientCode string, amount int64, currency, reference, narration string) (string, error)
}

// PayoutService disburses completed escrows to seller bank accounts.
// Disbursement is at-most-once per escrow: the recording step refuses
// unless the escrow is still completed-and-unpaid, and a provider failure
// leaves it in that state for an explicit retry.
type PayoutService struct {
	escrows   EscrowStore
	accounts  BankAccountStore
	audit     AuditStore
	publisher events.Publisher
	clients   map[string]PayoutClient // keyed by currency
	log       *zap.Logger
}

func NewPayoutService(
	escrows EscrowStore,
	accounts BankAccountStore,
	audit AuditStore,
	publisher events.Publisher,
	ngn PayoutClient,
	foreign PayoutClient,
	log *zap.Logger,
) *PayoutService {
	clients := map[string]PayoutClient{"NGN": ngn}
	for _, c := range []string{"USD", "EUR", "GBP"} {
		clients[c] = foreign
	}
	return &PayoutService{
		escrows:   escrows,
		accounts:  accounts,
		audit:     audit,
		publisher: publisher,
		clients:   clients,
		log:       log,
	}
}

func (s *PayoutService) providerFor(currency string) (string, PayoutClient, error) {
	client, ok := s.clients[currency]
	if !ok {
		return "", nil, fmt.Errorf("%w: no payout route for currency %q", models.ErrPrecondition, currency)
	}
	if currency == "NGN" {
		return providers.NamePaystack, client, nil
	}
	return providers.NameFlutterwave, client, nil
}

// Send pays the seller their share of a completed escrow. accountID is
// optional; without it the seller's primary verified account in the escrow
// currency is used. Calling again after a provider failure retries;
// calling again after success is a precondition error.
func (s *PayoutService) Send(ctx context.Context, reference string, actorID uuid.UUID, accountID *uuid.UUID) (*models.Escrow, error) {
	escrow, err := s.escrows.GetByReference(ctx, reference)
	if err != nil {
		return nil, err
	}
	role := rbac.PartyRole(escrow.BuyerID, escrow.SellerID, actorID, nil)
	if !rbac.HasPermission(role, rbac.PermRequestPayout) {
		return nil, fmt.Errorf("%w: only the seller can request a payout", models.ErrUnauthorized)
	}
	if escrow.Status != models.EscrowStatusCompleted {
		return nil, fmt.Errorf("%w: escrow is %s, payout requires completed", models.ErrPrecondition, escrow.Status)
	}
	if escrow.PaidOut {
		return nil, fmt.Errorf("%w: escrow has already been paid out", models.ErrPrecondition)
	}

	account, err := s.resolveAccount(ctx, escrow, accountID)
	if err != nil {
		return nil, err
	}

	providerName, client, err := s.providerFor(escrow.Currency)
	if err != nil {
		return nil, err
	}

	amount := escrow.SellerReceives()
	payoutRef := "PAYOUT-" + escrow.Reference

	recipient, err := client.CreateRecipient(ctx, account)
	if err != nil {
		return nil, err
	}
	transferID, err := client.Transfer(ctx, recipient, amount, escrow.Currency, payoutRef,
		fmt.Sprintf("Escrow payout %s", escrow.Reference))
	if err != nil {
		s.log.Error("payout transfer failed, escrow stays payable",
			zap.String("reference", escrow.Reference),
			zap.String("provider", providerName),
			zap.Error(err),
		)
		return nil, err
	}

	err = s.escrows.RecordPayout(ctx, repositories.PayoutParams{
		ID:            escrow.ID,
		BankAccountID: account.ID,
		Provider:      providerName,
		TransferID:    transferID,
	})
	if err != nil {
		// The money moved but the record did not. Loud log; reconciliation
		// against the provider dashboard is manual.
		s.log.Error("payout sent but recording failed",
			zap.String("reference", escrow.Reference),
			zap.String("transfer_id", transferID),
			zap.Error(err),
		)
		return nil, err
	}

	escrow.PaidOut = true
	escrow.BankAccountID = &account.ID
	escrow.PayoutProvider = &providerName
	escrow.PayoutTransferID = &transferID

	_ = s.audit.Log(ctx, models.AuditLog{
		ActorUserID: &actorID,
		ActorType:   "user",
		Action:      "payout_sent",
		EntityType:  "escrow",
		EntityID:    &escrow.ID,
		Meta: map[string]any{
			"provider":    providerName,
			"transfer_id": transferID,
			"amount":      amount,
			"currency":    escrow.Currency,
		},
	})
	_ = s.publisher.Publish(ctx, events.StreamEscrow, events.Event{
		Type: events.EventPayoutSent,
		Payload: map[string]any{
			"escrow_id": escrow.ID.String(),
			"reference": escrow.Reference,
			"seller_id": escrow.SellerID.String(),
			"amount":    amount,
			"currency":  escrow.Currency,
		},
	})

	return escrow, nil
}

func (s *PayoutService) resolveAccount(ctx context.Context, escrow *models.Escrow, accountID *uuid.UUID) (*models.BankAccount, error) {
	if accountID == nil {
		account, err := s.accounts.GetPrimary(ctx, escrow.SellerID, escrow.Currency)
		if err != nil {
			return nil, fmt.Errorf("%w: no primary verified %s account on file", models.ErrPrecondition, escrow.Currency)
		}
		return account, nil
	}

	account, err := s.accounts.GetByID(ctx, *accountID)
	if err != nil {
		return nil, err
	}
	if account.UserID != escrow.SellerID {
		return nil, fmt.Errorf("%w: account does not belong to the seller", models.ErrUnauthorized)
	}
	if !account.Verified {
		return nil, fmt.Errorf("%w: account is not verified", models.ErrPrecondition)
	}
	if account.Currency != escrow.Currency {
		return nil, fmt.Errorf("%w: account currency %s does not match escrow currency %s",
			models.ErrPrecondition, account.Currency, escrow.Currency)
	}
	return account, nil
}

// --- bank account management ---

type AddBankAccountInput struct {
	BankName      string
	BankCode      string
	AccountNumber string
	AccountName   string
	Currency      string
	Primary       bool
}

func (s *PayoutService) AddBankAccount(ctx context.Context, userID uuid.UUID, input AddBankAccountInput) (*models.BankAccount, error) {
	if input.BankName == "" || input.AccountNumber == "" || input.AccountName == "" {
		return nil, fmt.Errorf("%w: bank name, account number and account name are required", models.ErrValidation)
	}
	if _, ok := s.clients[input.Currency]; !ok {
		return nil, fmt.Errorf("%w: no payout route for currency %q", models.ErrValidation, input.Currency)
	}

	account := &models.BankAccount{
		UserID:        userID,
		BankName:      input.BankName,
		BankCode:      input.BankCode,
		AccountNumber: input.AccountNumber,
		AccountName:   input.AccountName,
		Currency:      input.Currency,
	}
	if err := s.accounts.Create(ctx, account); err != nil {
		return nil, err
	}
	if input.Primary {
		if err := s.accounts.SetPrimary(ctx, userID, account.ID); err != nil {
			return nil, err
		}
		account.Primary = true
	}

	_ = s.audit.Log(ctx, models.AuditLog{
		ActorUserID: &userID,
		ActorType:   "user",
		Action:      "bank_account_added",
		EntityType:  "bank_account",
		EntityID:    &account.ID,
		Meta:        map[string]any{"currency": account.Currency, "bank": account.BankName},
	})
	return account, nil
}

func (s *PayoutService) ListBankAccounts(ctx context.Context, userID uuid.UUID) ([]models.BankAccount, error) {
	return s.accounts.ListByUser(ctx, userID)
}

func (s *PayoutService) SetPrimaryAccount(ctx context.Context, userID, accountID uuid.UUID) error {
	return s.accounts.SetPrimary(ctx, userID, accountID)
}
