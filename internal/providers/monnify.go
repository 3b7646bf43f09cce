package providers

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/escrowdesk/backend/internal/models"
)

// Monnify handles the alternative bank-transfer collection flow. Webhooks
// are signed with HMAC-SHA512 of the raw body in the monnify-signature
// header, keyed on the client secret.
type Monnify struct {
	clientSecret string
}

// MonnifySignatureHeader carries the webhook signature.
const MonnifySignatureHeader = "monnify-signature"

func NewMonnify(clientSecret string) *Monnify {
	return &Monnify{clientSecret: clientSecret}
}

// VerifyWebhook checks the monnify-signature value against the raw body.
func (m *Monnify) VerifyWebhook(body []byte, signature string) bool {
	return verifyHMACSHA512(m.clientSecret, body, signature)
}

type monnifyWebhook struct {
	EventType string `json:"eventType"`
	EventData struct {
		PaymentReference     string `json:"paymentReference"`
		TransactionReference string `json:"transactionReference"`
		PaymentStatus        string `json:"paymentStatus"`
		AmountPaid           json.Number `json:"amountPaid"`
		CurrencyCode         string `json:"currencyCode"`
		PaymentDescription   string `json:"paymentDescription"`
	} `json:"eventData"`
}

// ParseEvent normalizes a verified Monnify webhook body.
func (m *Monnify) ParseEvent(body []byte) (PaymentEvent, error) {
	var w monnifyWebhook
	if err := json.Unmarshal(body, &w); err != nil {
		return PaymentEvent{}, fmt.Errorf("%w: monnify payload: %v", models.ErrValidation, err)
	}
	if w.EventData.PaymentReference == "" {
		return PaymentEvent{}, fmt.Errorf("%w: monnify payload missing paymentReference", models.ErrValidation)
	}

	ev := PaymentEvent{
		Provider:          NameMonnify,
		Reference:         w.EventData.PaymentReference,
		ProviderPaymentID: w.EventData.TransactionReference,
		Amount:            w.EventData.AmountPaid.String(),
		Currency:          w.EventData.CurrencyCode,
	}

	if w.EventType != "SUCCESSFUL_TRANSACTION" && w.EventType != "FAILED_TRANSACTION" {
		ev.Outcome = OutcomeIgnored
		return ev, nil
	}

	switch strings.ToUpper(w.EventData.PaymentStatus) {
	case "PAID":
		ev.Outcome = OutcomeSuccess
	case "EXPIRED":
		ev.Outcome = OutcomeExpired
		ev.Reason = "payment window expired"
	default:
		ev.Outcome = OutcomeFailed
		ev.Reason = strings.ToLower(w.EventData.PaymentStatus)
	}
	return ev, nil
}
