package payment

import (
	"encoding/json"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/shopspring/decimal"
)

const (
	fieldAccount     = "account"
	fieldAmount      = "amount"
	fieldDescription = "description"
	fieldTimestamp   = "timestamp"
)

// wirePayload fixes the key order of the encoded object. The keys match the
// QR data produced by the web client.
type wirePayload struct {
	Account     string      `json:"account,omitempty"`
	Amount      json.Number `json:"amount"`
	Description string      `json:"description"`
	Timestamp   string      `json:"timestamp,omitempty"`
}

// Encode renders r as a flat JSON object. It is deterministic for equal
// requests.
func Encode(r Request) string {
	w := wirePayload{
		Account:     r.accountID,
		Amount:      json.Number(r.amount.StringFixed(amountPlaces)),
		Description: r.description,
	}
	if !r.issuedAt.IsZero() {
		w.Timestamp = r.issuedAt.UTC().Format(time.RFC3339Nano)
	}
	// Marshal cannot fail here: every field is a string or a fixed-point number.
	content, _ := json.Marshal(w)
	return string(content)
}

// Decode parses a scanned payload. It never panics; failures carry one of
// ErrMalformed, ErrInvalidAmount or ErrMissingAccount.
func Decode(text string) (Request, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(text), &fields); err != nil {
		return Request{}, errors.Mark(errors.Wrap(err, "decode payload"), ErrMalformed)
	}
	if fields == nil {
		return Request{}, errors.Wrap(ErrMalformed, "payload is null")
	}

	account, err := stringField(fields, fieldAccount)
	if err != nil {
		return Request{}, err
	}
	description, err := stringField(fields, fieldDescription)
	if err != nil {
		return Request{}, err
	}
	issuedAt, err := timeField(fields, fieldTimestamp)
	if err != nil {
		return Request{}, err
	}

	amount, err := amountField(fields[fieldAmount])
	if err != nil {
		return Request{}, err
	}
	if account == "" {
		return Request{}, ErrMissingAccount
	}

	return NewRequest(account, amount, description, issuedAt)
}

func stringField(fields map[string]json.RawMessage, key string) (string, error) {
	raw, ok := fields[key]
	if !ok || isNull(raw) {
		return "", nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", errors.Mark(errors.Wrapf(err, "field %q", key), ErrMalformed)
	}
	return s, nil
}

func timeField(fields map[string]json.RawMessage, key string) (time.Time, error) {
	s, err := stringField(fields, key)
	if err != nil || s == "" {
		return time.Time{}, err
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, errors.Mark(errors.Wrapf(err, "field %q", key), ErrMalformed)
	}
	return t, nil
}

func amountField(raw json.RawMessage) (decimal.Decimal, error) {
	if len(raw) == 0 || isNull(raw) {
		return decimal.Decimal{}, errors.Wrap(ErrInvalidAmount, "amount is missing")
	}

	literal := string(raw)
	if raw[0] == '"' {
		if err := json.Unmarshal(raw, &literal); err != nil {
			return decimal.Decimal{}, errors.Mark(errors.Wrap(err, "amount"), ErrInvalidAmount)
		}
	}

	amount, err := decimal.NewFromString(literal)
	if err != nil {
		return decimal.Decimal{}, errors.Mark(errors.Wrapf(err, "amount %q", literal), ErrInvalidAmount)
	}
	return amount, nil
}

func isNull(raw json.RawMessage) bool {
	return string(raw) == "null"
}
