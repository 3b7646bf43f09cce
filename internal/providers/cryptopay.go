package providers

import (
	"encoding/json"
	"fmt"

	"github.com/escrowdesk/backend/internal/models"
)

// CryptoPay handles the crypto settlement provider. Its IPN callbacks are
// authenticated with a static shared secret in the x-cryptopay-token
// header, not a body signature.
type CryptoPay struct {
	ipnSecret string
}

// CryptoPaySignatureHeader carries the shared-secret token.
const CryptoPaySignatureHeader = "x-cryptopay-token"

func NewCryptoPay(ipnSecret string) *CryptoPay {
	return &CryptoPay{ipnSecret: ipnSecret}
}

// VerifyWebhook compares the token header against the shared secret.
func (c *CryptoPay) VerifyWebhook(_ []byte, token string) bool {
	return secureCompare(c.ipnSecret, token)
}

type cryptoPayWebhook struct {
	PaymentID     json.Number `json:"payment_id"`
	OrderID       string      `json:"order_id"`
	PaymentStatus string      `json:"payment_status"`
	PriceAmount   json.Number `json:"price_amount"`
	PriceCurrency string      `json:"price_currency"`
	PayCurrency   string      `json:"pay_currency"`
}

// ParseEvent normalizes a verified CryptoPay IPN body. OrderID carries our
// payment reference; payment_id is the provider's opaque crypto payment id.
func (c *CryptoPay) ParseEvent(body []byte) (PaymentEvent, error) {
	var w cryptoPayWebhook
	if err := json.Unmarshal(body, &w); err != nil {
		return PaymentEvent{}, fmt.Errorf("%w: cryptopay payload: %v", models.ErrValidation, err)
	}
	if w.OrderID == "" {
		return PaymentEvent{}, fmt.Errorf("%w: cryptopay payload missing order_id", models.ErrValidation)
	}

	ev := PaymentEvent{
		Provider:          NameCryptoPay,
		Reference:         w.OrderID,
		ProviderPaymentID: w.PaymentID.String(),
		Amount:            w.PriceAmount.String(),
		Currency:          w.PriceCurrency,
	}

	// Intermediate confirmations (waiting, confirming, partially_paid) are
	// ignored; only terminal settlement states drive reconciliation.
	switch w.PaymentStatus {
	case "finished":
		ev.Outcome = OutcomeSuccess
	case "failed", "refunded":
		ev.Outcome = OutcomeFailed
		ev.Reason = w.PaymentStatus
	case "expired":
		ev.Outcome = OutcomeExpired
		ev.Reason = "payment window expired"
	default:
		ev.Outcome = OutcomeIgnored
	}
	return ev, nil
}
