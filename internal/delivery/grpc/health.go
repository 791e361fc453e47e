package grpc

import (
	"log/slog"

	"github.com/cockroachdb/errors"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/Xausdorf/qr-pay-hub/pay-capture/internal/domain/camera"
	"github.com/Xausdorf/qr-pay-hub/pay-capture/internal/usecase/confirm"
)

const ScanService = "paycapture.ScanSession"

// HealthReporter mirrors the scan session into the gRPC health service. A
// session that failed on the camera reports NOT_SERVING until the next
// transition.
type HealthReporter struct {
	srv    *health.Server
	logger *slog.Logger
	last   healthpb.HealthCheckResponse_ServingStatus
}

func NewHealthReporter(srv *health.Server, logger *slog.Logger) *HealthReporter {
	srv.SetServingStatus(ScanService, healthpb.HealthCheckResponse_SERVING)
	return &HealthReporter{
		srv:    srv,
		logger: logger.With("component", "health"),
		last:   healthpb.HealthCheckResponse_SERVING,
	}
}

// Observe is a confirm.Listener; it runs on the machine goroutine.
func (h *HealthReporter) Observe(s confirm.Snapshot) {
	status := healthpb.HealthCheckResponse_SERVING
	if s.State == confirm.StateFailed && cameraFailure(s.Err) {
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	if status == h.last {
		return
	}
	h.last = status
	h.srv.SetServingStatus(ScanService, status)
	h.logger.Info("scan session health changed", "status", status.String())
}

func cameraFailure(err error) bool {
	return errors.Is(err, camera.ErrPermissionDenied) ||
		errors.Is(err, camera.ErrNoDevice) ||
		errors.Is(err, camera.ErrDeviceBusy)
}

func NewServer(hs *health.Server) *grpc.Server {
	srv := grpc.NewServer()
	healthpb.RegisterHealthServer(srv, hs)
	reflection.Register(srv)
	return srv
}
