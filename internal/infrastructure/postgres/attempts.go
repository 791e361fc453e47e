package postgres

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/Xausdorf/qr-pay-hub/pay-capture/internal/domain/payment"
)

var ErrNotFound = errors.New("not found")

const schema = `
CREATE TABLE IF NOT EXISTS payment_attempts (
	idempotency_key TEXT PRIMARY KEY,
	session_id      UUID NOT NULL,
	payload         TEXT NOT NULL,
	account         TEXT NOT NULL,
	amount          NUMERIC(18, 2) NOT NULL,
	outcome         TEXT NOT NULL,
	reason          TEXT NOT NULL DEFAULT '',
	created_at      TIMESTAMPTZ NOT NULL
)`

// AttemptRepo keeps one row per idempotency key; a key never changes outcome
// once written.
type AttemptRepo struct {
	pool *pgxpool.Pool
}

func NewAttemptRepo(pool *pgxpool.Pool) *AttemptRepo {
	return &AttemptRepo{pool: pool}
}

func (r *AttemptRepo) EnsureSchema(ctx context.Context) error {
	_, err := r.pool.Exec(ctx, schema)
	return errors.Wrap(err, "create payment_attempts")
}

func (r *AttemptRepo) Record(ctx context.Context, a payment.Attempt) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO payment_attempts
		   (idempotency_key, session_id, payload, account, amount, outcome, reason, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (idempotency_key) DO NOTHING`,
		a.IdempotencyKey, a.SessionID, a.Payload, a.AccountID, a.Amount.StringFixed(2),
		string(a.Outcome), a.Reason, a.CreatedAt,
	)
	return errors.Wrapf(err, "record attempt %s", a.IdempotencyKey)
}

func (r *AttemptRepo) Find(ctx context.Context, key string) (*payment.Attempt, error) {
	var (
		a       payment.Attempt
		session uuid.UUID
		amount  string
		outcome string
	)
	err := r.pool.QueryRow(ctx,
		`SELECT idempotency_key, session_id, payload, account, amount::text, outcome, reason, created_at
		 FROM payment_attempts WHERE idempotency_key = $1`,
		key,
	).Scan(&a.IdempotencyKey, &session, &a.Payload, &a.AccountID, &amount, &outcome, &a.Reason, &a.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrapf(err, "find attempt %s", key)
	}

	a.Amount, err = decimal.NewFromString(amount)
	if err != nil {
		return nil, errors.Wrapf(err, "attempt %s amount", key)
	}
	a.SessionID = session
	a.Outcome = payment.AttemptOutcome(outcome)
	return &a, nil
}
