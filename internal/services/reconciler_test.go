package services

import (
	"context"
	"testing"

	"github.com/escrowdesk/backend/internal/models"
	"github.com/escrowdesk/backend/internal/providers"
	"go.uber.org/zap"
)

func newTestReconciler(env *testEnv) *Reconciler {
	return NewReconciler(env.escrows, env.audit, env.pub, zap.NewNop())
}

func successEvent(escrow *models.Escrow) providers.PaymentEvent {
	return providers.PaymentEvent{
		Provider:          providers.NamePaystack,
		Reference:         escrow.Reference,
		ProviderPaymentID: "PS_12345",
		Outcome:           providers.OutcomeSuccess,
		Currency:          escrow.Currency,
	}
}

func TestReconcileSuccessFunds(t *testing.T) {
	env := newTestEnv(t)
	rec := newTestReconciler(env)
	escrow := env.createEscrow(t)

	res, err := rec.Process(context.Background(), successEvent(escrow))
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if res.Action != ReconcileFunded {
		t.Fatalf("action = %s, want funded", res.Action)
	}

	stored, _ := env.escrows.GetByID(context.Background(), escrow.ID)
	if stored.Status != models.EscrowStatusFunded {
		t.Errorf("status = %s, want funded", stored.Status)
	}
	if stored.Version != 2 {
		t.Errorf("version = %d, want 2", stored.Version)
	}
	if got := env.escrows.spent[env.buyer.ID]; got != escrow.BuyerPays() {
		t.Errorf("buyer spent = %d, want %d", got, escrow.BuyerPays())
	}
}

func TestReconcileReplayIsNoOp(t *testing.T) {
	env := newTestEnv(t)
	rec := newTestReconciler(env)
	escrow := env.createEscrow(t)
	ev := successEvent(escrow)

	if _, err := rec.Process(context.Background(), ev); err != nil {
		t.Fatalf("first Process: %v", err)
	}

	// The provider redelivers the same webhook. Same final state, no
	// second spend.
	for i := 0; i < 3; i++ {
		res, err := rec.Process(context.Background(), ev)
		if err != nil {
			t.Fatalf("replay %d: %v", i, err)
		}
		if res.Action != ReconcileReplay {
			t.Errorf("replay %d action = %s, want replay", i, res.Action)
		}
	}

	stored, _ := env.escrows.GetByID(context.Background(), escrow.ID)
	if stored.Version != 2 {
		t.Errorf("version = %d after replays, want 2", stored.Version)
	}
	if got := env.escrows.spent[env.buyer.ID]; got != escrow.BuyerPays() {
		t.Errorf("buyer spent = %d after replays, want one charge of %d", got, escrow.BuyerPays())
	}
}

func TestReconcileUnknownReference(t *testing.T) {
	env := newTestEnv(t)
	rec := newTestReconciler(env)

	res, err := rec.Process(context.Background(), providers.PaymentEvent{
		Provider:  providers.NamePaystack,
		Reference: "ESC-ffffffffff",
		Outcome:   providers.OutcomeSuccess,
	})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if res.Action != ReconcileUnmatched {
		t.Errorf("action = %s, want unmatched", res.Action)
	}
}

func TestReconcileFailureCancels(t *testing.T) {
	env := newTestEnv(t)
	rec := newTestReconciler(env)
	escrow := env.createEscrow(t)

	res, err := rec.Process(context.Background(), providers.PaymentEvent{
		Provider:  providers.NameMonnify,
		Reference: escrow.Reference,
		Outcome:   providers.OutcomeFailed,
		Reason:    "insufficient funds",
	})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if res.Action != ReconcileCancelled {
		t.Fatalf("action = %s, want cancelled", res.Action)
	}

	stored, _ := env.escrows.GetByID(context.Background(), escrow.ID)
	if stored.Status != models.EscrowStatusCancelled {
		t.Errorf("status = %s, want cancelled", stored.Status)
	}
	if stored.CancelReason == nil || *stored.CancelReason != "payment failed: insufficient funds" {
		t.Errorf("cancel reason = %v", stored.CancelReason)
	}
	if env.escrows.spent[env.buyer.ID] != 0 {
		t.Errorf("failed payment must not charge the buyer")
	}
}

func TestReconcileLateFailureAfterFunding(t *testing.T) {
	env := newTestEnv(t)
	rec := newTestReconciler(env)
	escrow := env.createEscrow(t)

	if _, err := rec.Process(context.Background(), successEvent(escrow)); err != nil {
		t.Fatalf("fund: %v", err)
	}

	// A straggling failure event for an escrow that already funded is a
	// replay, never a rollback.
	res, err := rec.Process(context.Background(), providers.PaymentEvent{
		Provider:  providers.NamePaystack,
		Reference: escrow.Reference,
		Outcome:   providers.OutcomeExpired,
	})
	if err != nil {
		t.Fatalf("late failure: %v", err)
	}
	if res.Action != ReconcileReplay {
		t.Errorf("action = %s, want replay", res.Action)
	}
	stored, _ := env.escrows.GetByID(context.Background(), escrow.ID)
	if stored.Status != models.EscrowStatusFunded {
		t.Errorf("status = %s, want funded untouched", stored.Status)
	}
}

func TestReconcileIgnoredOutcome(t *testing.T) {
	env := newTestEnv(t)
	rec := newTestReconciler(env)
	escrow := env.createEscrow(t)

	res, err := rec.Process(context.Background(), providers.PaymentEvent{
		Provider:  providers.NameCryptoPay,
		Reference: escrow.Reference,
		Outcome:   providers.OutcomeIgnored,
	})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if res.Action != ReconcileIgnored {
		t.Errorf("action = %s, want ignored", res.Action)
	}
}

func TestReconcileCryptoStoresPaymentID(t *testing.T) {
	env := newTestEnv(t)
	rec := newTestReconciler(env)
	escrow := env.createEscrow(t)

	res, err := rec.Process(context.Background(), providers.PaymentEvent{
		Provider:          providers.NameCryptoPay,
		Reference:         escrow.Reference,
		ProviderPaymentID: "inv_9f2c",
		Outcome:           providers.OutcomeSuccess,
	})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if res.Action != ReconcileFunded {
		t.Fatalf("action = %s, want funded", res.Action)
	}
	stored, _ := env.escrows.GetByID(context.Background(), escrow.ID)
	if stored.ProviderPaymentID == nil || *stored.ProviderPaymentID != "inv_9f2c" {
		t.Errorf("ProviderPaymentID = %v, want inv_9f2c", stored.ProviderPaymentID)
	}
}
