package http

import (
	"bytes"
	"encoding/json"
	"image/png"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/shopspring/decimal"

	"github.com/Xausdorf/qr-pay-hub/pay-capture/internal/domain/camera"
	"github.com/Xausdorf/qr-pay-hub/pay-capture/internal/domain/payment"
	"github.com/Xausdorf/qr-pay-hub/pay-capture/internal/domain/qrcode"
	"github.com/Xausdorf/qr-pay-hub/pay-capture/internal/usecase/confirm"
	"github.com/Xausdorf/qr-pay-hub/pay-capture/internal/usecase/generateqr"
)

const (
	payloadHeader = "X-Payment-Payload"
	maxBodyBytes  = 1 << 10
)

type Handler struct {
	generateQRUC  *generateqr.UseCase
	machine       *confirm.Machine
	defaultFacing camera.Facing
	logger        *slog.Logger
}

func NewHandler(generateQRUC *generateqr.UseCase, machine *confirm.Machine, defaultFacing camera.Facing, logger *slog.Logger) *Handler {
	return &Handler{
		generateQRUC:  generateQRUC,
		machine:       machine,
		defaultFacing: defaultFacing,
		logger:        logger.With("component", "http"),
	}
}

type ModeRequest struct {
	Mode string `json:"mode"`
}

type StartRequest struct {
	Facing string `json:"facing"`
}

type CandidateResponse struct {
	Account     string `json:"account,omitempty"`
	Amount      string `json:"amount"`
	Description string `json:"description"`
	Timestamp   string `json:"timestamp,omitempty"`
	Payload     string `json:"payload"`
}

type ReceiptResponse struct {
	Status         string `json:"status"`
	Message        string `json:"message,omitempty"`
	Timestamp      string `json:"timestamp,omitempty"`
	IdempotencyKey string `json:"idempotency_key"`
}

type SnapshotResponse struct {
	SessionID      string             `json:"session_id,omitempty"`
	Mode           string             `json:"mode"`
	State          string             `json:"state"`
	Facing         string             `json:"facing"`
	Candidate      *CandidateResponse `json:"candidate,omitempty"`
	IdempotencyKey string             `json:"idempotency_key,omitempty"`
	Receipt        *ReceiptResponse   `json:"receipt,omitempty"`
	Error          string             `json:"error,omitempty"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

func (h *Handler) HandleQR(w http.ResponseWriter, r *http.Request) {
	amountStr := r.URL.Query().Get("amount")
	if amountStr == "" {
		h.writeError(w, http.StatusBadRequest, "amount query param required")
		return
	}
	amount, err := decimal.NewFromString(amountStr)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid amount")
		return
	}

	res, err := h.generateQRUC.Execute(r.Context(), generateqr.Request{
		Amount:      amount,
		Description: r.URL.Query().Get("description"),
	})
	if err != nil {
		h.fail(w, err)
		return
	}
	h.writePNG(w, res)
}

func (h *Handler) HandleCurrentQR(w http.ResponseWriter, _ *http.Request) {
	res, ok := h.generateQRUC.Current()
	if !ok {
		h.writeError(w, http.StatusNotFound, "no code generated yet")
		return
	}
	h.writePNG(w, res)
}

func (h *Handler) HandleSetMode(w http.ResponseWriter, r *http.Request) {
	var req ModeRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	mode, err := confirm.ParseMode(req.Mode)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.respond(w)(h.machine.SetMode(r.Context(), mode))
}

func (h *Handler) HandleScanStart(w http.ResponseWriter, r *http.Request) {
	facing := h.defaultFacing
	var req StartRequest
	err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req)
	switch {
	case errors.Is(err, io.EOF):
	case err != nil:
		h.writeError(w, http.StatusBadRequest, "invalid json")
		return
	case req.Facing != "":
		if facing, err = camera.ParseFacing(req.Facing); err != nil {
			h.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	h.respond(w)(h.machine.Start(r.Context(), facing))
}

func (h *Handler) HandleScanSwitch(w http.ResponseWriter, r *http.Request) {
	h.respond(w)(h.machine.SwitchFacing(r.Context()))
}

func (h *Handler) HandleScanConfirm(w http.ResponseWriter, r *http.Request) {
	h.respond(w)(h.machine.Confirm(r.Context()))
}

func (h *Handler) HandleScanCancel(w http.ResponseWriter, r *http.Request) {
	h.respond(w)(h.machine.Cancel(r.Context()))
}

func (h *Handler) HandleScanStop(w http.ResponseWriter, r *http.Request) {
	h.respond(w)(h.machine.Stop(r.Context()))
}

func (h *Handler) HandleScanReset(w http.ResponseWriter, r *http.Request) {
	h.respond(w)(h.machine.Reset(r.Context()))
}

func (h *Handler) HandleScanState(w http.ResponseWriter, r *http.Request) {
	h.respond(w)(h.machine.Snapshot(r.Context()))
}

func (h *Handler) respond(w http.ResponseWriter) func(confirm.Snapshot, error) {
	return func(snap confirm.Snapshot, err error) {
		if err != nil {
			h.fail(w, err)
			return
		}
		h.writeJSON(w, http.StatusOK, toSnapshotResponse(snap))
	}
}

func (h *Handler) writePNG(w http.ResponseWriter, res *generateqr.Result) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, res.Image); err != nil {
		h.fail(w, errors.Wrap(err, "encode png"))
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set(payloadHeader, res.Payload)
	_, _ = w.Write(buf.Bytes())
}

func (h *Handler) fail(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", "error", err)
	}
	h.writeError(w, status, err.Error())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, payment.ErrInvalidAmount),
		errors.Is(err, payment.ErrMalformed),
		errors.Is(err, qrcode.ErrEmptyPayload):
		return http.StatusBadRequest
	case errors.Is(err, confirm.ErrInvalidTransition),
		errors.Is(err, confirm.ErrWrongMode):
		return http.StatusConflict
	case errors.Is(err, qrcode.ErrPayloadTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, confirm.ErrClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, msg string) {
	h.writeJSON(w, status, ErrorResponse{Error: msg})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func toSnapshotResponse(s confirm.Snapshot) SnapshotResponse {
	resp := SnapshotResponse{
		Mode:           s.Mode.String(),
		State:          s.State.String(),
		Facing:         s.Facing.String(),
		IdempotencyKey: s.IdempotencyKey,
	}
	if s.Mode == confirm.ModeScan {
		resp.SessionID = s.SessionID.String()
	}
	if c := s.Candidate; c != nil {
		resp.Candidate = &CandidateResponse{
			Account:     c.AccountID(),
			Amount:      c.AmountString(),
			Description: c.Description(),
			Payload:     s.Payload,
		}
		if !c.IssuedAt().IsZero() {
			resp.Candidate.Timestamp = c.IssuedAt().Format(time.RFC3339Nano)
		}
	}
	if rc := s.Receipt; rc != nil {
		resp.Receipt = &ReceiptResponse{
			Status:         rc.Status,
			Message:        rc.Message,
			IdempotencyKey: rc.IdempotencyKey,
		}
		if !rc.Timestamp.IsZero() {
			resp.Receipt.Timestamp = rc.Timestamp.Format(time.RFC3339Nano)
		}
	}
	if s.Err != nil {
		resp.Error = s.Err.Error()
	}
	return resp
}
