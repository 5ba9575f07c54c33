// Package transaction defines the immutable transaction fact and the
// scoring artifacts derived from it.
package transaction

import (
	"net"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/sentinelpay/fraud-scoring-backend/internal/domain/errors"
)

// InstrumentType categorizes the payment instrument
type InstrumentType string

const (
	InstrumentCredit  InstrumentType = "credit_card"
	InstrumentDebit   InstrumentType = "debit_card"
	InstrumentPrepaid InstrumentType = "prepaid_card"
	InstrumentWallet  InstrumentType = "wallet"
	InstrumentBank    InstrumentType = "bank_transfer"
)

// PaymentInstrument describes how the transaction was paid
type PaymentInstrument struct {
	Type  InstrumentType `json:"type" validate:"required,oneof=credit_card debit_card prepaid_card wallet bank_transfer"`
	BIN   string         `json:"bin" validate:"omitempty,numeric,min=6,max=8"`
	Last4 string         `json:"last4" validate:"omitempty,numeric,len=4"`
	Brand string         `json:"brand" validate:"omitempty,max=32"`
}

// Transaction is an immutable fact created once per inbound scoring request.
// The ID doubles as the idempotency fingerprint for the cached ScoreResult.
type Transaction struct {
	ID            string            `json:"transaction_id" validate:"required,max=128"`
	Amount        decimal.Decimal   `json:"amount"`
	Currency      string            `json:"currency" validate:"required,iso4217"`
	Timestamp     time.Time         `json:"timestamp" validate:"required"`
	CustomerEmail string            `json:"customer_email" validate:"required,email"`
	CustomerIP    string            `json:"customer_ip" validate:"required"`
	MerchantID    string            `json:"merchant_id" validate:"required,max=128"`
	Instrument    PaymentInstrument `json:"payment_instrument"`
}

var validate = validator.New()

// Validate checks the transaction before any I/O happens. Domain rules that
// struct tags cannot express (positive amount, parseable IP) live here.
func (t *Transaction) Validate() error {
	if err := validate.Struct(t); err != nil {
		return errors.NewValidationError("INVALID_TRANSACTION", err.Error()).WithCause(err)
	}
	if t.Amount.IsNegative() || t.Amount.IsZero() {
		return errors.NewValidationError("INVALID_AMOUNT", "amount must be positive")
	}
	if net.ParseIP(t.CustomerIP) == nil {
		return errors.NewValidationError("INVALID_IP", "customer_ip is not a valid IP address")
	}
	return nil
}

// Fingerprint returns the idempotency key for this transaction's score.
func (t *Transaction) Fingerprint() string {
	return t.ID
}

// EmailDomain returns the lower-cased domain part of the customer email,
// or an empty string when the address has no domain.
func (t *Transaction) EmailDomain() string {
	at := strings.LastIndexByte(t.CustomerEmail, '@')
	if at < 0 || at == len(t.CustomerEmail)-1 {
		return ""
	}
	return strings.ToLower(t.CustomerEmail[at+1:])
}

// EmailLocalPart returns the part of the customer email before the '@'.
func (t *Transaction) EmailLocalPart() string {
	at := strings.LastIndexByte(t.CustomerEmail, '@')
	if at < 0 {
		return t.CustomerEmail
	}
	return t.CustomerEmail[:at]
}
