package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/escrowdesk/backend/internal/models"
	"go.uber.org/zap"
)

// Paystack handles card/bank collections (inbound webhooks) and NGN payouts
// (transfer recipient + transfer). Webhooks are signed with HMAC-SHA512 of
// the raw body in the x-paystack-signature header.
type Paystack struct {
	secretKey  string
	baseURL    string
	httpClient *http.Client
	log        *zap.Logger
}

const paystackBaseURL = "https://api.paystack.co"

// PaystackSignatureHeader carries the webhook signature.
const PaystackSignatureHeader = "x-paystack-signature"

func NewPaystack(secretKey string, log *zap.Logger) *Paystack {
	return &Paystack{
		secretKey: secretKey,
		baseURL:   paystackBaseURL,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		log: log,
	}
}

// WithBaseURL overrides the API host, for tests.
func (p *Paystack) WithBaseURL(url string) *Paystack {
	p.baseURL = strings.TrimRight(url, "/")
	return p
}

// VerifyWebhook checks the x-paystack-signature value against the raw body.
func (p *Paystack) VerifyWebhook(body []byte, signature string) bool {
	return verifyHMACSHA512(p.secretKey, body, signature)
}

type paystackWebhook struct {
	Event string `json:"event"`
	Data  struct {
		ID              int64  `json:"id"`
		Reference       string `json:"reference"`
		Status          string `json:"status"`
		GatewayResponse string `json:"gateway_response"`
		Amount          int64  `json:"amount"` // minor units already
		Currency        string `json:"currency"`
	} `json:"data"`
}

// ParseEvent normalizes a verified Paystack webhook body.
func (p *Paystack) ParseEvent(body []byte) (PaymentEvent, error) {
	var w paystackWebhook
	if err := json.Unmarshal(body, &w); err != nil {
		return PaymentEvent{}, fmt.Errorf("%w: paystack payload: %v", models.ErrValidation, err)
	}
	if w.Data.Reference == "" {
		return PaymentEvent{}, fmt.Errorf("%w: paystack payload missing reference", models.ErrValidation)
	}

	ev := PaymentEvent{
		Provider:          NamePaystack,
		Reference:         w.Data.Reference,
		ProviderPaymentID: fmt.Sprintf("%d", w.Data.ID),
		Amount:            fmt.Sprintf("%d.%02d", w.Data.Amount/100, w.Data.Amount%100),
		Currency:          w.Data.Currency,
		Reason:            w.Data.GatewayResponse,
	}

	switch w.Event {
	case "charge.success":
		ev.Outcome = OutcomeSuccess
	case "charge.failed":
		ev.Outcome = OutcomeFailed
	case "charge.expired":
		ev.Outcome = OutcomeExpired
	default:
		ev.Outcome = OutcomeIgnored
	}
	return ev, nil
}

type paystackEnvelope struct {
	Status  bool            `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (p *Paystack) post(ctx context.Context, path string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+path, strings.NewReader(string(body)))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+p.secretKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: paystack unavailable: %v", models.ErrProvider, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%w: paystack returned %d: %s", models.ErrProvider, resp.StatusCode, string(b))
	}

	var env paystackEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("%w: paystack response: %v", models.ErrProvider, err)
	}
	if !env.Status {
		return fmt.Errorf("%w: paystack rejected request: %s", models.ErrProvider, env.Message)
	}
	if out != nil {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("%w: paystack data: %v", models.ErrProvider, err)
		}
	}
	return nil
}

// CreateRecipient registers the bank account as a transfer recipient and
// returns its recipient code.
func (p *Paystack) CreateRecipient(ctx context.Context, acct *models.BankAccount) (string, error) {
	var data struct {
		RecipientCode string `json:"recipient_code"`
	}
	err := p.post(ctx, "/transferrecipient", map[string]any{
		"type":           "nuban",
		"name":           acct.AccountName,
		"account_number": acct.AccountNumber,
		"bank_code":      acct.BankCode,
		"currency":       acct.Currency,
	}, &data)
	if err != nil {
		return "", err
	}
	return data.RecipientCode, nil
}

// Transfer sends amount (minor units) to a recipient code. The reference
// makes the transfer idempotent on the provider side.
func (p *Paystack) Transfer(ctx context.Context, recipientCode string, amount int64, currency, reference, narration string) (string, error) {
	var data struct {
		TransferCode string `json:"transfer_code"`
		Status       string `json:"status"`
	}
	err := p.post(ctx, "/transfer", map[string]any{
		"source":    "balance",
		"amount":    amount,
		"currency":  currency,
		"recipient": recipientCode,
		"reference": reference,
		"reason":    narration,
	}, &data)
	if err != nil {
		return "", err
	}
	p.log.Info("paystack transfer initiated",
		zap.String("transfer_code", data.TransferCode),
		zap.String("reference", reference),
	)
	return data.TransferCode, nil
}
