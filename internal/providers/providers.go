// Package providers holds the payment provider adapters. Each collection
// provider verifies its own webhook signature scheme and normalizes its
// payload into a PaymentEvent; each payout adapter speaks its own
// create-recipient-then-transfer protocol. Everything downstream of this
// package sees one event shape and one transfer contract.
package providers

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
)

// Provider names as stored on escrow records.
const (
	NamePaystack    = "paystack"
	NameMonnify     = "monnify"
	NameCryptoPay   = "cryptopay"
	NameFlutterwave = "flutterwave"
)

// Normalized webhook outcomes.
const (
	OutcomeSuccess = "success"
	OutcomeFailed  = "failed"
	OutcomeExpired = "expired"
	// OutcomeIgnored marks events this system does not act on
	// (e.g. transfer notifications on a collection endpoint).
	OutcomeIgnored = "ignored"
)

// PaymentEvent is a provider webhook normalized for reconciliation.
// Reference is our payment reference echoed back by the provider;
// ProviderPaymentID is the provider's own opaque id for the payment.
type PaymentEvent struct {
	Provider          string
	Reference         string
	ProviderPaymentID string
	Outcome           string
	Amount            string // provider-reported decimal, informational only
	Currency          string
	Reason            string // failure/expiry detail when present
}

// signHMACSHA512 computes the hex HMAC-SHA512 of body under key.
// Paystack and Monnify both sign the raw request body this way.
func signHMACSHA512(key string, body []byte) string {
	mac := hmac.New(sha512.New, []byte(key))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// verifyHMACSHA512 compares a header signature in constant time.
func verifyHMACSHA512(key string, body []byte, signature string) bool {
	if signature == "" {
		return false
	}
	expected := signHMACSHA512(key, body)
	return hmac.Equal([]byte(expected), []byte(signature))
}

// secureCompare does a constant-time comparison of two shared secrets.
func secureCompare(a, b string) bool {
	return a != "" && hmac.Equal([]byte(a), []byte(b))
}
