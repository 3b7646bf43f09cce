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
	"github.com/escrowdesk/backend/internal/money"
	"go.uber.org/zap"
)

// Flutterwave is the payout adapter for foreign-currency (USD/EUR/GBP) bank
// accounts: create a beneficiary, then initiate a transfer to it.
type Flutterwave struct {
	secretKey  string
	baseURL    string
	httpClient *http.Client
	log        *zap.Logger
}

const flutterwaveBaseURL = "https://api.flutterwave.com/v3"

func NewFlutterwave(secretKey string, log *zap.Logger) *Flutterwave {
	return &Flutterwave{
		secretKey: secretKey,
		baseURL:   flutterwaveBaseURL,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		log: log,
	}
}

// WithBaseURL overrides the API host, for tests.
func (f *Flutterwave) WithBaseURL(url string) *Flutterwave {
	f.baseURL = strings.TrimRight(url, "/")
	return f
}

type flutterwaveEnvelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (f *Flutterwave) post(ctx context.Context, path string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.baseURL+path, strings.NewReader(string(body)))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+f.secretKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: flutterwave unavailable: %v", models.ErrProvider, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%w: flutterwave returned %d: %s", models.ErrProvider, resp.StatusCode, string(b))
	}

	var env flutterwaveEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("%w: flutterwave response: %v", models.ErrProvider, err)
	}
	if env.Status != "success" {
		return fmt.Errorf("%w: flutterwave rejected request: %s", models.ErrProvider, env.Message)
	}
	if out != nil {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("%w: flutterwave data: %v", models.ErrProvider, err)
		}
	}
	return nil
}

// CreateRecipient registers the bank account as a beneficiary and returns
// its id as the recipient code.
func (f *Flutterwave) CreateRecipient(ctx context.Context, acct *models.BankAccount) (string, error) {
	var data struct {
		ID int64 `json:"id"`
	}
	err := f.post(ctx, "/beneficiaries", map[string]any{
		"account_number":    acct.AccountNumber,
		"account_bank":      acct.BankCode,
		"beneficiary_name":  acct.AccountName,
		"currency":          acct.Currency,
	}, &data)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%d", data.ID), nil
}

// Transfer sends amount (minor units) to a beneficiary. Flutterwave wants
// major-unit decimals on the wire; the reference keeps it idempotent.
func (f *Flutterwave) Transfer(ctx context.Context, recipientCode string, amount int64, currency, reference, narration string) (string, error) {
	var data struct {
		ID     int64  `json:"id"`
		Status string `json:"status"`
	}
	err := f.post(ctx, "/transfers", map[string]any{
		"beneficiary": recipientCode,
		"amount":      money.Format(amount, currency),
		"currency":    currency,
		"reference":   reference,
		"narration":   narration,
	}, &data)
	if err != nil {
		return "", err
	}
	f.log.Info("flutterwave transfer initiated",
		zap.Int64("transfer_id", data.ID),
		zap.String("reference", reference),
	)
	return fmt.Sprintf("%d", data.ID), nil
}
