package backend

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/Xausdorf/qr-pay-hub/pay-capture/internal/domain/payment"
)

const idempotencyHeader = "X-Idempotency-Key"

type qrPaymentRequest struct {
	QRData string `json:"qr_data"`
}

type qrPaymentResponse struct {
	Status    string `json:"status"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

// Submit posts the scanned payload verbatim. Retries are left to the caller,
// which reuses idempotencyKey for the same detection.
func (c *Client) Submit(ctx context.Context, payload, idempotencyKey string) (*payment.Receipt, error) {
	if c.token == "" || c.tokenExpired() {
		return nil, &payment.SubmitError{Reason: "not signed in", StatusCode: http.StatusUnauthorized}
	}

	header := http.Header{}
	header.Set(idempotencyHeader, idempotencyKey)
	resp, err := c.do(ctx, http.MethodPost, qrPaymentPath, qrPaymentRequest{QRData: payload}, header)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, errors.Wrap(ctxErr, "submit payment")
		}
		return nil, errors.WithStack(&payment.SubmitError{Reason: err.Error(), Transient: true})
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &payment.SubmitError{
			Reason:     readError(resp),
			StatusCode: resp.StatusCode,
			Transient:  transient(resp.StatusCode),
		}
	}

	var body qrPaymentResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		// The payment went through; only the receipt is unreadable.
		c.logger.Warn("unreadable payment receipt", "idempotency_key", idempotencyKey, "error", err)
	}

	receipt := &payment.Receipt{
		Status:         body.Status,
		Message:        body.Message,
		IdempotencyKey: idempotencyKey,
	}
	if ts, err := time.Parse(time.RFC3339Nano, body.Timestamp); err == nil {
		receipt.Timestamp = ts
	}
	c.logger.Info("payment submitted", "idempotency_key", idempotencyKey, "status", receipt.Status)
	return receipt, nil
}

func transient(status int) bool {
	return status >= 500 || status == http.StatusTooManyRequests || status == http.StatusRequestTimeout
}
