package payment_test

import (
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/go-cmp/cmp"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Xausdorf/qr-pay-hub/pay-capture/internal/domain/payment"
)

var requestComparer = cmp.Comparer(func(a, b payment.Request) bool { return a.Equal(b) })

func mustRequest(t *testing.T, account, amount, description string, issuedAt time.Time) payment.Request {
	t.Helper()
	req, err := payment.NewRequest(account, decimal.RequireFromString(amount), description, issuedAt)
	require.NoError(t, err)
	return req
}

func TestCodec_Encode_GenerateScenario(t *testing.T) {
	issuedAt := time.Date(2026, 10, 14, 9, 30, 0, 0, time.UTC)
	req := mustRequest(t, "ACC1", "12.5", "lunch", issuedAt)

	text := payment.Encode(req)
	assert.JSONEq(t, `{"account":"ACC1","amount":12.50,"description":"lunch","timestamp":"2026-10-14T09:30:00Z"}`, text)
	assert.Contains(t, text, `"amount":12.50`)

	decoded, err := payment.Decode(text)
	require.NoError(t, err)
	assert.Equal(t, "ACC1", decoded.AccountID())
	assert.Equal(t, "12.50", decoded.AmountString())
	assert.Equal(t, "lunch", decoded.Description())
	assert.True(t, decoded.IssuedAt().Equal(issuedAt))
}

func TestCodec_Encode_Deterministic(t *testing.T) {
	issuedAt := time.Date(2026, 1, 2, 3, 4, 5, 6, time.FixedZone("X", 3600))
	a := mustRequest(t, "ACC9", "3.999", "", issuedAt)
	b := mustRequest(t, "ACC9", "4.00", "", issuedAt.UTC())

	assert.Equal(t, payment.Encode(a), payment.Encode(b))
}

func TestCodec_RoundTrip(t *testing.T) {
	issuedAt := time.Date(2026, 10, 14, 12, 0, 0, 123456789, time.UTC)
	cases := []payment.Request{
		mustRequest(t, "ACC1", "12.5", "lunch", issuedAt),
		mustRequest(t, "ACC2", "40", "", issuedAt),
		mustRequest(t, "CHK-1234", "0.01", "coffee & cake <3", time.Time{}),
		mustRequest(t, "SAV-5678", "1000000.456", "ünïcode", issuedAt.Add(-time.Hour)),
	}

	for _, want := range cases {
		got, err := payment.Decode(payment.Encode(want))
		require.NoError(t, err)
		if diff := cmp.Diff(want, got, requestComparer); diff != "" {
			t.Errorf("round trip mismatch (-want +got):\n%s", diff)
		}
	}
}

func TestCodec_Decode_DefaultsDescription(t *testing.T) {
	req, err := payment.Decode(`{"account":"ACC2","amount":40}`)
	require.NoError(t, err)

	assert.Equal(t, payment.DefaultDescription, req.Description())
	assert.Equal(t, "40.00", req.AmountString())
	assert.True(t, req.IssuedAt().IsZero())
}

func TestCodec_Decode_AcceptsNumericString(t *testing.T) {
	req, err := payment.Decode(`{"account":"ACC2","amount":"7.125"}`)
	require.NoError(t, err)
	assert.Equal(t, "7.13", req.AmountString())
}

func TestCodec_Decode_Rejections(t *testing.T) {
	cases := []struct {
		name string
		text string
		want error
	}{
		{"not json", "not-json", payment.ErrMalformed},
		{"empty", "", payment.ErrMalformed},
		{"array", `[1,2]`, payment.ErrMalformed},
		{"null", `null`, payment.ErrMalformed},
		{"number account", `{"account":12,"amount":1}`, payment.ErrMalformed},
		{"bad timestamp", `{"account":"A","amount":1,"timestamp":"yesterday"}`, payment.ErrMalformed},
		{"missing amount", `{"account":"A"}`, payment.ErrInvalidAmount},
		{"null amount", `{"account":"A","amount":null}`, payment.ErrInvalidAmount},
		{"text amount", `{"account":"A","amount":"ten"}`, payment.ErrInvalidAmount},
		{"bool amount", `{"account":"A","amount":true}`, payment.ErrInvalidAmount},
		{"zero amount", `{"account":"A","amount":0}`, payment.ErrInvalidAmount},
		{"negative amount", `{"account":"A","amount":-5}`, payment.ErrInvalidAmount},
		{"rounds to zero", `{"account":"A","amount":0.004}`, payment.ErrInvalidAmount},
		{"nothing at all", `{}`, payment.ErrInvalidAmount},
		{"huge exponent", `{"account":"A","amount":1e10000000}`, payment.ErrInvalidAmount},
		{"huge exponent as string", `{"account":"A","amount":"1e10000000"}`, payment.ErrInvalidAmount},
		{"tiny exponent", `{"account":"A","amount":1e-10000000}`, payment.ErrInvalidAmount},
		{"too many integer digits", `{"account":"A","amount":10000000000000000}`, payment.ErrInvalidAmount},
		{"rounds past the limit", `{"account":"A","amount":9999999999999999.999}`, payment.ErrInvalidAmount},
		{"missing account", `{"amount":5}`, payment.ErrMissingAccount},
		{"empty account", `{"account":"","amount":5}`, payment.ErrMissingAccount},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := payment.Decode(tc.text)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tc.want), "got %v", err)
		})
	}
}

func TestNewRequest_RejectsNonPositive(t *testing.T) {
	_, err := payment.NewRequest("ACC1", decimal.Zero, "", time.Now())
	assert.True(t, errors.Is(err, payment.ErrInvalidAmount))

	_, err = payment.NewRequest("ACC1", decimal.RequireFromString("-1"), "", time.Now())
	assert.True(t, errors.Is(err, payment.ErrInvalidAmount))
}

func TestNewRequest_AmountBounds(t *testing.T) {
	req, err := payment.NewRequest("ACC1", decimal.RequireFromString("9999999999999999.99"), "", time.Now())
	require.NoError(t, err)
	assert.Equal(t, "9999999999999999.99", req.AmountString())

	req, err = payment.NewRequest("ACC1", decimal.RequireFromString("2.5e3"), "", time.Now())
	require.NoError(t, err)
	assert.Equal(t, "2500.00", req.AmountString())

	start := time.Now()
	_, err = payment.NewRequest("ACC1", decimal.New(1, 10_000_000), "", time.Now())
	assert.True(t, errors.Is(err, payment.ErrInvalidAmount))
	assert.Less(t, time.Since(start), 100*time.Millisecond)
}

func TestNewRequest_AllowsEmptyAccount(t *testing.T) {
	req, err := payment.NewRequest("", decimal.NewFromInt(5), "", time.Now())
	require.NoError(t, err)

	text := payment.Encode(req)
	assert.NotContains(t, text, `"account"`)

	_, err = payment.Decode(text)
	assert.True(t, errors.Is(err, payment.ErrMissingAccount))
}
