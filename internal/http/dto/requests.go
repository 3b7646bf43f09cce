package dto

import "time"

type CreateEscrowRequest struct {
	SellerEmail   string  `json:"seller_email"`
	Title         string  `json:"title"`
	Description   *string `json:"description,omitempty"`
	Amount        string  `json:"amount"` // major units, e.g. "1000.00"
	Currency      string  `json:"currency"`
	PaymentMethod string  `json:"payment_method"` // card / bank_transfer / crypto
}

type SubmitDeliveryRequest struct {
	TrackingCarrier     *string    `json:"tracking_carrier,omitempty"`
	TrackingNumber      *string    `json:"tracking_number,omitempty"`
	DeliveryProofURL    *string    `json:"delivery_proof_url,omitempty"`
	EstimatedDeliveryAt *time.Time `json:"estimated_delivery_at,omitempty"`
}

type CancelEscrowRequest struct {
	Reason string `json:"reason,omitempty"`
}

type OpenDisputeRequest struct {
	Reason   string  `json:"reason"`
	Evidence *string `json:"evidence,omitempty"`
}

type ResolveDisputeRequest struct {
	Winner       string `json:"winner"` // buyer / seller
	Resolution   string `json:"resolution"`
	RefundAmount *int64 `json:"refund_amount,omitempty"` // minor units
}

type PayoutRequest struct {
	BankAccountID *string `json:"bank_account_id,omitempty"` // defaults to the primary account
}

type AddBankAccountRequest struct {
	BankName      string `json:"bank_name"`
	BankCode      string `json:"bank_code,omitempty"`
	AccountNumber string `json:"account_number"`
	AccountName   string `json:"account_name"`
	Currency      string `json:"currency"`
	Primary       bool   `json:"primary,omitempty"`
}

type PublishFeeSettingsRequest struct {
	Tier          string `json:"tier"`
	FeeBPS        int    `json:"fee_bps"`
	MinFee        int64  `json:"min_fee"` // minor units
	MaxFeeBPS     int    `json:"max_fee_bps"`
	BuyerShareBPS int    `json:"buyer_share_bps"`
}
