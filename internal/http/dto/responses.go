package dto

type ErrorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

type SuccessResponse struct {
	OK   bool `json:"ok"`
	Data any  `json:"data,omitempty"`
}

// FeeQuoteResponse prices an escrow before it exists. Amounts are minor
// units; Formatted carries display strings in major units.
type FeeQuoteResponse struct {
	Amount    int64             `json:"amount"`
	Currency  string            `json:"currency"`
	TotalFee  int64             `json:"total_fee"`
	BuyerFee  int64             `json:"buyer_fee"`
	SellerFee int64             `json:"seller_fee"`
	BuyerPays int64             `json:"buyer_pays"`
	SellerGet int64             `json:"seller_receives"`
	Formatted map[string]string `json:"formatted"`
}

type WebhookResponse struct {
	Status string `json:"status"`
	Action string `json:"action,omitempty"`
}
