package payment

import (
	"time"

	"github.com/cockroachdb/errors"
	"github.com/shopspring/decimal"
)

const (
	DefaultDescription = "QR payment"
	amountPlaces       = 2

	// Amounts fit NUMERIC(18,2). The exponent bounds keep Round and
	// StringFixed from expanding scientific notation like 1e10000000.
	maxAmountExponent = 16
	minAmountExponent = -32
)

var maxAmount = decimal.New(1, maxAmountExponent)

var (
	ErrMalformed      = errors.New("malformed payload")
	ErrInvalidAmount  = errors.New("amount must be a positive number")
	ErrMissingAccount = errors.New("account is required")
)

// Request is an immutable payment request. The zero value is not valid; build
// one with NewRequest or Decode.
type Request struct {
	accountID   string
	amount      decimal.Decimal
	description string
	issuedAt    time.Time
}

func NewRequest(accountID string, amount decimal.Decimal, description string, issuedAt time.Time) (Request, error) {
	if exp := amount.Exponent(); exp > maxAmountExponent || exp < minAmountExponent {
		return Request{}, errors.Wrapf(ErrInvalidAmount, "amount exponent %d out of range", exp)
	}
	amount = amount.Round(amountPlaces)
	if amount.GreaterThanOrEqual(maxAmount) {
		return Request{}, errors.Wrap(ErrInvalidAmount, "amount too large")
	}
	if !amount.IsPositive() {
		return Request{}, errors.Wrapf(ErrInvalidAmount, "amount %s", amount.StringFixed(amountPlaces))
	}
	if description == "" {
		description = DefaultDescription
	}
	return Request{
		accountID:   accountID,
		amount:      amount,
		description: description,
		issuedAt:    issuedAt.UTC(),
	}, nil
}

func (r Request) AccountID() string {
	return r.accountID
}

func (r Request) Amount() decimal.Decimal {
	return r.amount
}

func (r Request) Description() string {
	return r.description
}

func (r Request) IssuedAt() time.Time {
	return r.issuedAt
}

// AmountString renders the amount with its fixed two decimals.
func (r Request) AmountString() string {
	return r.amount.StringFixed(amountPlaces)
}

func (r Request) Equal(other Request) bool {
	return r.accountID == other.accountID &&
		r.amount.Equal(other.amount) &&
		r.description == other.description &&
		r.issuedAt.Equal(other.issuedAt)
}
