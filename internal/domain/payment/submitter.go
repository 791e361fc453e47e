package payment

//go:generate mockgen -source=submitter.go -destination=../../usecase/confirm/mocks/payment.go -package=mocks

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Receipt struct {
	Status         string
	Message        string
	Timestamp      time.Time
	IdempotencyKey string
}

// SubmitError is returned by a Submitter when the payment was not executed.
type SubmitError struct {
	Reason     string
	StatusCode int
	Transient  bool
}

func (e *SubmitError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("payment rejected (%d): %s", e.StatusCode, e.Reason)
	}
	return "payment failed: " + e.Reason
}

// Submitter executes a payment keyed by the literal scanned payload.
type Submitter interface {
	Submit(ctx context.Context, payload, idempotencyKey string) (*Receipt, error)
}

type AttemptOutcome string

const (
	OutcomeSucceeded AttemptOutcome = "succeeded"
	OutcomeFailed    AttemptOutcome = "failed"
)

// Attempt is the audit record of one submission.
type Attempt struct {
	IdempotencyKey string
	SessionID      uuid.UUID
	Payload        string
	AccountID      string
	Amount         decimal.Decimal
	Outcome        AttemptOutcome
	Reason         string
	CreatedAt      time.Time
}

type AttemptLog interface {
	Record(ctx context.Context, attempt Attempt) error
}

type NopAttemptLog struct{}

func (NopAttemptLog) Record(context.Context, Attempt) error {
	return nil
}
