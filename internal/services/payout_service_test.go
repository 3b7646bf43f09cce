package services

import (
	"context"
	"errors"
	"testing"

	"github.com/escrowdesk/backend/internal/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type payoutEnv struct {
	*testEnv
	accounts *fakeBankAccountStore
	ngn      *fakePayoutClient
	foreign  *fakePayoutClient
	svc      *PayoutService
}

func newPayoutEnv(t *testing.T) *payoutEnv {
	env := newTestEnv(t)
	accounts := newFakeBankAccountStore()
	ngn := &fakePayoutClient{}
	foreign := &fakePayoutClient{}
	svc := NewPayoutService(env.escrows, accounts, env.audit, env.pub, ngn, foreign, zap.NewNop())
	return &payoutEnv{testEnv: env, accounts: accounts, ngn: ngn, foreign: foreign, svc: svc}
}

func (env *payoutEnv) seedAccount(t *testing.T, userID uuid.UUID, currency string, primary bool) *models.BankAccount {
	t.Helper()
	account := &models.BankAccount{
		UserID:        userID,
		BankName:      "GTBank",
		BankCode:      "058",
		AccountNumber: "0123456789",
		AccountName:   "Test Seller",
		Currency:      currency,
		Verified:      true,
		Primary:       primary,
	}
	if err := env.accounts.Create(context.Background(), account); err != nil {
		t.Fatalf("seed account: %v", err)
	}
	env.accounts.accounts[account.ID].Verified = true
	env.accounts.accounts[account.ID].Primary = primary
	return account
}

func (env *payoutEnv) completedEscrow(t *testing.T) *models.Escrow {
	t.Helper()
	escrow := env.submitDelivery(t, env.fund(t, env.createEscrow(t)))
	released, err := env.testEnv.svc.ConfirmRelease(context.Background(), escrow.Reference, env.buyer.ID)
	if err != nil {
		t.Fatalf("ConfirmRelease: %v", err)
	}
	return released
}

func TestPayoutToPrimaryAccount(t *testing.T) {
	env := newPayoutEnv(t)
	env.seedAccount(t, env.seller.ID, "NGN", true)
	escrow := env.completedEscrow(t)

	paid, err := env.svc.Send(context.Background(), escrow.Reference, env.seller.ID, nil)
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if !paid.PaidOut {
		t.Error("escrow not marked paid out")
	}
	if paid.PayoutProvider == nil || *paid.PayoutProvider != "paystack" {
		t.Errorf("payout provider = %v, want paystack for NGN", paid.PayoutProvider)
	}
	if len(env.ngn.transfers) != 1 || env.ngn.transfers[0] != escrow.SellerReceives() {
		t.Errorf("ngn transfers = %v, want one of %d", env.ngn.transfers, escrow.SellerReceives())
	}
	if len(env.foreign.transfers) != 0 {
		t.Errorf("foreign client used for NGN payout")
	}
}

func TestPayoutRoutesForeignCurrency(t *testing.T) {
	env := newPayoutEnv(t)

	escrow, err := env.testEnv.svc.Create(context.Background(), CreateEscrowInput{
		BuyerID:       env.buyer.ID,
		SellerEmail:   env.seller.Email,
		Title:         "Design retainer",
		Amount:        "500.00",
		Currency:      "USD",
		PaymentMethod: models.PaymentMethodBankTransfer,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	escrow = env.submitDelivery(t, env.fund(t, escrow))
	escrow, err = env.testEnv.svc.ConfirmRelease(context.Background(), escrow.Reference, env.buyer.ID)
	if err != nil {
		t.Fatalf("ConfirmRelease: %v", err)
	}
	env.seedAccount(t, env.seller.ID, "USD", true)

	paid, err := env.svc.Send(context.Background(), escrow.Reference, env.seller.ID, nil)
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if paid.PayoutProvider == nil || *paid.PayoutProvider != "flutterwave" {
		t.Errorf("payout provider = %v, want flutterwave for USD", paid.PayoutProvider)
	}
	if len(env.foreign.transfers) != 1 {
		t.Errorf("foreign transfers = %v, want exactly one", env.foreign.transfers)
	}
	if len(env.ngn.transfers) != 0 {
		t.Errorf("ngn client used for USD payout")
	}
}

func TestPayoutGuards(t *testing.T) {
	env := newPayoutEnv(t)
	env.seedAccount(t, env.seller.ID, "NGN", true)

	// Not completed yet.
	funded := env.fund(t, env.createEscrow(t))
	if _, err := env.svc.Send(context.Background(), funded.Reference, env.seller.ID, nil); !errors.Is(err, models.ErrPrecondition) {
		t.Errorf("Send on funded: error = %v, want ErrPrecondition", err)
	}

	escrow := env.completedEscrow(t)

	// Only the seller collects.
	if _, err := env.svc.Send(context.Background(), escrow.Reference, env.buyer.ID, nil); !errors.Is(err, models.ErrUnauthorized) {
		t.Errorf("Send by buyer: error = %v, want ErrUnauthorized", err)
	}
}

func TestPayoutSingleDisbursement(t *testing.T) {
	env := newPayoutEnv(t)
	env.seedAccount(t, env.seller.ID, "NGN", true)
	escrow := env.completedEscrow(t)

	if _, err := env.svc.Send(context.Background(), escrow.Reference, env.seller.ID, nil); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if _, err := env.svc.Send(context.Background(), escrow.Reference, env.seller.ID, nil); !errors.Is(err, models.ErrPrecondition) {
		t.Errorf("second Send: error = %v, want ErrPrecondition", err)
	}
	if len(env.ngn.transfers) != 1 {
		t.Errorf("transfers = %d, want exactly one", len(env.ngn.transfers))
	}
}

func TestPayoutRetryAfterProviderFailure(t *testing.T) {
	env := newPayoutEnv(t)
	env.seedAccount(t, env.seller.ID, "NGN", true)
	escrow := env.completedEscrow(t)

	env.ngn.failTransfer = true
	if _, err := env.svc.Send(context.Background(), escrow.Reference, env.seller.ID, nil); !errors.Is(err, models.ErrProvider) {
		t.Fatalf("Send with failing provider: error = %v, want ErrProvider", err)
	}

	// The escrow stays payable; an explicit retry succeeds.
	stored, _ := env.escrows.GetByID(context.Background(), escrow.ID)
	if stored.PaidOut {
		t.Fatal("failed transfer must not mark the escrow paid")
	}

	env.ngn.failTransfer = false
	if _, err := env.svc.Send(context.Background(), escrow.Reference, env.seller.ID, nil); err != nil {
		t.Fatalf("retry Send: %v", err)
	}
	if len(env.ngn.transfers) != 1 {
		t.Errorf("transfers = %d, want one successful", len(env.ngn.transfers))
	}
}

func TestPayoutExplicitAccountChecks(t *testing.T) {
	env := newPayoutEnv(t)
	escrow := env.completedEscrow(t)

	// Someone else's account.
	other := env.seedAccount(t, uuid.New(), "NGN", true)
	if _, err := env.svc.Send(context.Background(), escrow.Reference, env.seller.ID, &other.ID); !errors.Is(err, models.ErrUnauthorized) {
		t.Errorf("Send to foreign account: error = %v, want ErrUnauthorized", err)
	}

	// Currency mismatch.
	usd := env.seedAccount(t, env.seller.ID, "USD", false)
	if _, err := env.svc.Send(context.Background(), escrow.Reference, env.seller.ID, &usd.ID); !errors.Is(err, models.ErrPrecondition) {
		t.Errorf("Send to USD account for NGN escrow: error = %v, want ErrPrecondition", err)
	}

	// Unverified.
	unverified := env.seedAccount(t, env.seller.ID, "NGN", false)
	env.accounts.accounts[unverified.ID].Verified = false
	if _, err := env.svc.Send(context.Background(), escrow.Reference, env.seller.ID, &unverified.ID); !errors.Is(err, models.ErrPrecondition) {
		t.Errorf("Send to unverified account: error = %v, want ErrPrecondition", err)
	}

	// No primary on file and no explicit account.
	if _, err := env.svc.Send(context.Background(), escrow.Reference, env.seller.ID, nil); !errors.Is(err, models.ErrPrecondition) {
		t.Errorf("Send without account: error = %v, want ErrPrecondition", err)
	}
}

func TestAddBankAccount(t *testing.T) {
	env := newPayoutEnv(t)

	account, err := env.svc.AddBankAccount(context.Background(), env.seller.ID, AddBankAccountInput{
		BankName:      "GTBank",
		BankCode:      "058",
		AccountNumber: "0123456789",
		AccountName:   "Test Seller",
		Currency:      "NGN",
		Primary:       true,
	})
	if err != nil {
		t.Fatalf("AddBankAccount: %v", err)
	}
	if !account.Primary {
		t.Error("account not marked primary")
	}

	if _, err := env.svc.AddBankAccount(context.Background(), env.seller.ID, AddBankAccountInput{
		BankName: "GTBank", AccountNumber: "1", AccountName: "x", Currency: "JPY",
	}); !errors.Is(err, models.ErrValidation) {
		t.Errorf("AddBankAccount with unroutable currency: error = %v, want ErrValidation", err)
	}
}

func TestSetPrimaryDemotesOthers(t *testing.T) {
	env := newPayoutEnv(t)
	first := env.seedAccount(t, env.seller.ID, "NGN", true)
	second := env.seedAccount(t, env.seller.ID, "NGN", false)

	if err := env.svc.SetPrimaryAccount(context.Background(), env.seller.ID, second.ID); err != nil {
		t.Fatalf("SetPrimaryAccount: %v", err)
	}
	if env.accounts.accounts[first.ID].Primary {
		t.Error("previous primary not demoted")
	}
	if !env.accounts.accounts[second.ID].Primary {
		t.Error("new primary not promoted")
	}
}
