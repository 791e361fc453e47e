package http //nolint:revive // directory-based package name, imported with alias

import (
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

const requestTimeout = 30 * time.Second

func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(requestTimeout))

	r.Get("/api/qr", h.HandleQR)
	r.Get("/api/qr/current", h.HandleCurrentQR)
	r.Put("/api/mode", h.HandleSetMode)

	r.Get("/api/scan", h.HandleScanState)
	r.Post("/api/scan/start", h.HandleScanStart)
	r.Post("/api/scan/switch", h.HandleScanSwitch)
	r.Post("/api/scan/confirm", h.HandleScanConfirm)
	r.Post("/api/scan/cancel", h.HandleScanCancel)
	r.Post("/api/scan/stop", h.HandleScanStop)
	r.Post("/api/scan/reset", h.HandleScanReset)

	return r
}
