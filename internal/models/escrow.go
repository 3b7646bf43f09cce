package models

import (
	"time"

	"github.com/google/uuid"
)

// Escrow statuses
const (
	EscrowStatusPendingPayment  = "pending_payment"
	EscrowStatusFunded          = "funded"
	EscrowStatusDeliveryPending = "delivery_pending"
	EscrowStatusCompleted       = "completed"
	EscrowStatusDisputed        = "disputed"
	EscrowStatusCancelled       = "cancelled"
	EscrowStatusRefunded        = "refunded"
)

// Valid state transitions: from -> []to
var ValidEscrowTransitions = map[string][]string{
	EscrowStatusPendingPayment:  {EscrowStatusFunded, EscrowStatusCancelled},
	EscrowStatusFunded:          {EscrowStatusDeliveryPending, EscrowStatusDisputed},
	EscrowStatusDeliveryPending: {EscrowStatusCompleted, EscrowStatusDisputed},
	EscrowStatusDisputed:        {EscrowStatusCompleted, EscrowStatusRefunded},
	EscrowStatusCompleted:       {EscrowStatusDisputed}, // refund window
	EscrowStatusCancelled:       {},
	EscrowStatusRefunded:        {},
}

func IsValidTransition(from, to string) bool {
	allowed, ok := ValidEscrowTransitions[from]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

// IsTerminalStatus reports whether the status permits no further transitions.
func IsTerminalStatus(status string) bool {
	allowed, ok := ValidEscrowTransitions[status]
	return ok && len(allowed) == 0
}

// Payment methods
const (
	PaymentMethodCard         = "card"
	PaymentMethodBankTransfer = "bank_transfer"
	PaymentMethodCrypto       = "crypto"
)

func IsValidPaymentMethod(m string) bool {
	switch m {
	case PaymentMethodCard, PaymentMethodBankTransfer, PaymentMethodCrypto:
		return true
	}
	return false
}

// Escrow is the held-funds transaction between one buyer and one seller.
// All monetary fields are integer minor units of Currency. Version is the
// optimistic-concurrency counter: every status change increments it, and
// every mutating operation must carry the version it read.
type Escrow struct {
	ID        uuid.UUID `json:"id"`
	Reference string    `json:"reference"`
	BuyerID   uuid.UUID `json:"buyer_id"`
	SellerID  uuid.UUID `json:"seller_id"`

	Title         string  `json:"title"`
	Description   *string `json:"description,omitempty"`
	Amount        int64   `json:"amount"`
	Currency      string  `json:"currency"`
	BuyerFee      int64   `json:"buyer_fee"`
	SellerFee     int64   `json:"seller_fee"`
	TotalFee      int64   `json:"total_fee"`
	PaymentMethod string  `json:"payment_method"`

	Status  string `json:"status"`
	Version int    `json:"version"`

	Provider          *string `json:"provider,omitempty"`
	ProviderReference *string `json:"provider_reference,omitempty"`
	ProviderPaymentID *string `json:"provider_payment_id,omitempty"`

	TrackingCarrier     *string    `json:"tracking_carrier,omitempty"`
	TrackingNumber      *string    `json:"tracking_number,omitempty"`
	DeliveryProofURL    *string    `json:"delivery_proof_url,omitempty"`
	EstimatedDeliveryAt *time.Time `json:"estimated_delivery_at,omitempty"`
	DeliveredAt         *time.Time `json:"delivered_at,omitempty"`
	AutoReleaseAt       *time.Time `json:"auto_release_at,omitempty"`

	DisputeID *uuid.UUID `json:"dispute_id,omitempty"`

	BankAccountID    *uuid.UUID `json:"bank_account_id,omitempty"`
	PayoutProvider   *string    `json:"payout_provider,omitempty"`
	PayoutTransferID *string    `json:"payout_transfer_id,omitempty"`
	PaidOut          bool       `json:"paid_out"`
	PaidOutAt        *time.Time `json:"paid_out_at,omitempty"`

	CancelReason *string   `json:"cancel_reason,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// BuyerPays returns the gross amount charged to the buyer.
func (e *Escrow) BuyerPays() int64 { return e.Amount + e.BuyerFee }

// SellerReceives returns the net amount disbursed to the seller.
func (e *Escrow) SellerReceives() int64 { return e.Amount - e.SellerFee }
