package http_test

import (
	"context"
	"encoding/json"
	"image/png"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	httpdelivery "github.com/Xausdorf/qr-pay-hub/pay-capture/internal/delivery/http"
	"github.com/Xausdorf/qr-pay-hub/pay-capture/internal/domain/camera"
	"github.com/Xausdorf/qr-pay-hub/pay-capture/internal/domain/camera/cameratest"
	"github.com/Xausdorf/qr-pay-hub/pay-capture/internal/domain/identity"
	"github.com/Xausdorf/qr-pay-hub/pay-capture/internal/domain/payment"
	"github.com/Xausdorf/qr-pay-hub/pay-capture/internal/domain/qrcode"
	"github.com/Xausdorf/qr-pay-hub/pay-capture/internal/infrastructure/clock"
	"github.com/Xausdorf/qr-pay-hub/pay-capture/internal/infrastructure/framesync"
	"github.com/Xausdorf/qr-pay-hub/pay-capture/internal/infrastructure/qrgenerator"
	"github.com/Xausdorf/qr-pay-hub/pay-capture/internal/usecase/camerasession"
	"github.com/Xausdorf/qr-pay-hub/pay-capture/internal/usecase/confirm"
	confirmmocks "github.com/Xausdorf/qr-pay-hub/pay-capture/internal/usecase/confirm/mocks"
	"github.com/Xausdorf/qr-pay-hub/pay-capture/internal/usecase/generateqr"
	generatemocks "github.com/Xausdorf/qr-pay-hub/pay-capture/internal/usecase/generateqr/mocks"
	"github.com/Xausdorf/qr-pay-hub/pay-capture/internal/usecase/scanloop"
)

const scannedPayload = `{"account":"ACC2","amount":40,"description":"dinner"}`

type server struct {
	router    http.Handler
	frames    *framesync.Manual
	driver    *cameratest.Driver
	provider  *generatemocks.MockProvider
	submitter *confirmmocks.MockSubmitter
	machine   *confirm.Machine
	cancel    context.CancelFunc
}

func newServer(t *testing.T) *server {
	t.Helper()
	ctrl := gomock.NewController(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	s := &server{
		frames:    framesync.NewManual(),
		driver:    cameratest.NewDriver(cameratest.NewFrame(scannedPayload)),
		provider:  generatemocks.NewMockProvider(ctrl),
		submitter: confirmmocks.NewMockSubmitter(ctrl),
	}

	session := camerasession.NewSession(s.driver, logger)
	loop := scanloop.NewLoop(session, cameratest.Decoder{}, s.frames, logger)
	s.machine = confirm.NewMachine(session, loop, s.submitter, confirm.WithLogger(logger))

	generateUC := generateqr.NewUseCase(s.provider, qrgenerator.NewGenerator(),
		clock.NewMockClock(time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)),
		qrcode.Options{Size: 256, Margin: 4, Level: qrcode.LevelMedium})

	s.router = httpdelivery.NewRouter(httpdelivery.NewHandler(generateUC, s.machine, camera.FacingRear, logger))

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	go func() { _ = s.machine.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-s.machine.Done()
	})
	return s
}

func (s *server) do(t *testing.T, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, httptest.NewRequest(method, target, reader))
	return rec
}

func (s *server) snapshot(t *testing.T, method, target, body string) httpdelivery.SnapshotResponse {
	t.Helper()
	rec := s.do(t, method, target, body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var snap httpdelivery.SnapshotResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&snap))
	return snap
}

func (s *server) waitState(t *testing.T, want string) httpdelivery.SnapshotResponse {
	t.Helper()
	var snap httpdelivery.SnapshotResponse
	require.Eventually(t, func() bool {
		rec := s.do(t, http.MethodGet, "/api/scan", "")
		if rec.Code != http.StatusOK {
			return false
		}
		snap = httpdelivery.SnapshotResponse{}
		return json.NewDecoder(rec.Body).Decode(&snap) == nil && snap.State == want
	}, 2*time.Second, time.Millisecond, "state %s not reached", want)
	return snap
}

func errorBody(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	var body httpdelivery.ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	return body.Error
}

func TestHandler_HandleQR(t *testing.T) {
	s := newServer(t)
	s.provider.EXPECT().CurrentUser(gomock.Any()).Return(&identity.User{AccountID: "ACC1"}, nil)

	rec := s.do(t, http.MethodGet, "/api/qr/current", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/qr?amount=25.5&description=coffee", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	assert.Equal(t,
		`{"account":"ACC1","amount":25.50,"description":"coffee","timestamp":"2024-01-15T10:30:00Z"}`,
		rec.Header().Get("X-Payment-Payload"))

	img, err := png.Decode(rec.Body)
	require.NoError(t, err)
	assert.Equal(t, 256, img.Bounds().Dx())

	rec = s.do(t, http.MethodGet, "/api/qr/current", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("X-Payment-Payload"), `"amount":25.50`)
}

func TestHandler_HandleQR_Errors(t *testing.T) {
	s := newServer(t)
	s.provider.EXPECT().CurrentUser(gomock.Any()).Return(&identity.User{AccountID: "ACC1"}, nil).AnyTimes()

	tests := []struct {
		name   string
		target string
		status int
	}{
		{"missing amount", "/api/qr", http.StatusBadRequest},
		{"not a number", "/api/qr?amount=abc", http.StatusBadRequest},
		{"zero amount", "/api/qr?amount=0", http.StatusBadRequest},
		{"negative amount", "/api/qr?amount=-3", http.StatusBadRequest},
		{"exponent amount", "/api/qr?amount=1e10000000", http.StatusBadRequest},
		{"too large", "/api/qr?amount=1&description=" + strings.Repeat("x", 5000), http.StatusRequestEntityTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(t, http.MethodGet, tt.target, "")
			assert.Equal(t, tt.status, rec.Code)
			assert.NotEmpty(t, errorBody(t, rec))
		})
	}

	rec := s.do(t, http.MethodGet, "/api/qr/current", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandler_ScanFlow(t *testing.T) {
	s := newServer(t)

	snap := s.snapshot(t, http.MethodPut, "/api/mode", `{"mode":"scan"}`)
	assert.Equal(t, "scan", snap.Mode)
	assert.Equal(t, "idle", snap.State)
	assert.NotEmpty(t, snap.SessionID)

	snap = s.snapshot(t, http.MethodPost, "/api/scan/start", `{"facing":"front"}`)
	assert.Equal(t, "acquiring", snap.State)
	assert.Equal(t, "front", snap.Facing)
	s.waitState(t, "scanning")

	require.True(t, s.frames.Tick())
	snap = s.waitState(t, "confirming")
	require.NotNil(t, snap.Candidate)
	assert.Equal(t, "ACC2", snap.Candidate.Account)
	assert.Equal(t, "40.00", snap.Candidate.Amount)
	assert.Equal(t, scannedPayload, snap.Candidate.Payload)

	s.submitter.EXPECT().Submit(gomock.Any(), scannedPayload, snap.IdempotencyKey).
		Return(&payment.Receipt{Status: "completed", Message: "QR payment processed successfully"}, nil)

	s.snapshot(t, http.MethodPost, "/api/scan/confirm", "")
	snap = s.waitState(t, "terminal(success)")
	require.NotNil(t, snap.Receipt)
	assert.Equal(t, "completed", snap.Receipt.Status)
	assert.Zero(t, s.driver.OpenStreams())

	rec := s.do(t, http.MethodPost, "/api/scan/confirm", "")
	assert.Equal(t, http.StatusConflict, rec.Code)

	snap = s.snapshot(t, http.MethodPost, "/api/scan/reset", "")
	assert.Equal(t, "idle", snap.State)
}

func TestHandler_ScanCommandErrors(t *testing.T) {
	s := newServer(t)

	rec := s.do(t, http.MethodPost, "/api/scan/start", "")
	assert.Equal(t, http.StatusConflict, rec.Code, "start requires scan mode")

	rec = s.do(t, http.MethodPut, "/api/mode", `{"mode":"pay"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = s.do(t, http.MethodPut, "/api/mode", `{`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	s.snapshot(t, http.MethodPut, "/api/mode", `{"mode":"scan"}`)
	rec = s.do(t, http.MethodPost, "/api/scan/start", `{"facing":"sideways"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	for _, cmd := range []string{"confirm", "cancel", "stop", "reset"} {
		rec = s.do(t, http.MethodPost, "/api/scan/"+cmd, "")
		assert.Equal(t, http.StatusConflict, rec.Code, cmd)
		assert.Contains(t, errorBody(t, rec), "invalid state transition")
	}

	snap := s.snapshot(t, http.MethodPost, "/api/scan/start", "")
	assert.Equal(t, "rear", snap.Facing)
	s.waitState(t, "scanning")
	snap = s.snapshot(t, http.MethodPost, "/api/scan/stop", "")
	assert.Equal(t, "terminal(cancelled)", snap.State)
}

func TestHandler_ClosedMachine(t *testing.T) {
	s := newServer(t)
	s.cancel()
	<-s.machine.Done()

	rec := s.do(t, http.MethodGet, "/api/scan", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
