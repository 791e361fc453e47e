package main

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-chi/chi/v5"
	"go.uber.org/fx"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"

	grpcdelivery "github.com/Xausdorf/qr-pay-hub/pay-capture/internal/delivery/grpc"
	httpdelivery "github.com/Xausdorf/qr-pay-hub/pay-capture/internal/delivery/http"
	"github.com/Xausdorf/qr-pay-hub/pay-capture/internal/domain/camera"
	"github.com/Xausdorf/qr-pay-hub/pay-capture/internal/domain/identity"
	"github.com/Xausdorf/qr-pay-hub/pay-capture/internal/domain/payment"
	"github.com/Xausdorf/qr-pay-hub/pay-capture/internal/domain/qrcode"
	"github.com/Xausdorf/qr-pay-hub/pay-capture/internal/infrastructure/backend"
	"github.com/Xausdorf/qr-pay-hub/pay-capture/internal/infrastructure/clock"
	"github.com/Xausdorf/qr-pay-hub/pay-capture/internal/infrastructure/config"
	"github.com/Xausdorf/qr-pay-hub/pay-capture/internal/infrastructure/framesync"
	"github.com/Xausdorf/qr-pay-hub/pay-capture/internal/infrastructure/haptic"
	"github.com/Xausdorf/qr-pay-hub/pay-capture/internal/infrastructure/postgres"
	"github.com/Xausdorf/qr-pay-hub/pay-capture/internal/infrastructure/qrdecoder"
	"github.com/Xausdorf/qr-pay-hub/pay-capture/internal/infrastructure/qrgenerator"
	"github.com/Xausdorf/qr-pay-hub/pay-capture/internal/infrastructure/webcam"
	"github.com/Xausdorf/qr-pay-hub/pay-capture/internal/usecase/camerasession"
	"github.com/Xausdorf/qr-pay-hub/pay-capture/internal/usecase/confirm"
	"github.com/Xausdorf/qr-pay-hub/pay-capture/internal/usecase/generateqr"
	"github.com/Xausdorf/qr-pay-hub/pay-capture/internal/usecase/scanloop"
)

const (
	readHeaderTimeout     = 5 * time.Second
	gracefulShutdownDelay = 5 * time.Second
)

var InfrastructureModule = fx.Module("infrastructure",
	fx.Provide(
		newBackendClient,
		func(c *backend.Client) payment.Submitter { return c },
		func(c *backend.Client) identity.Provider { return c },
		fx.Annotate(qrgenerator.NewGenerator, fx.As(new(qrcode.Renderer))),
		newDecoder,
		newCameraDriver,
		newFrameSync,
		newAttemptLog,
		health.NewServer,
	),
)

var CaptureModule = fx.Module("capture",
	fx.Provide(
		camerasession.NewSession,
		newScanLoop,
		newMachine,
		newGenerateQR,
		grpcdelivery.NewHealthReporter,
	),
	fx.Invoke(runMachine),
)

var DeliveryModule = fx.Module("delivery",
	fx.Provide(
		newHTTPHandler,
		httpdelivery.NewRouter,
		grpcdelivery.NewServer,
	),
	fx.Invoke(startHTTPServer, startGRPCServer),
)

func newBackendClient(cfg config.Config, logger *slog.Logger) *backend.Client {
	return backend.NewClient(backend.Config{
		BaseURL: cfg.Backend.URL,
		Token:   cfg.Backend.Token,
		Timeout: cfg.Backend.Timeout,
	}, logger)
}

func newDecoder(lc fx.Lifecycle, cfg config.Config) qrcode.Decoder {
	if cfg.Scan.Decoder != config.DecoderOpenCV {
		return qrdecoder.NewDecoder()
	}
	d := webcam.NewDecoder()
	lc.Append(fx.StopHook(d.Close))
	return d
}

func newCameraDriver(cfg config.Config, logger *slog.Logger) camera.Driver {
	return webcam.NewDriver(webcam.Config{
		FrontIndex: cfg.Camera.FrontIndex,
		RearIndex:  cfg.Camera.RearIndex,
		Width:      cfg.Camera.Width,
		Height:     cfg.Camera.Height,
	}, logger)
}

func newFrameSync(cfg config.Config) scanloop.FrameSync {
	return framesync.NewTicker(cfg.Scan.FPS)
}

func newAttemptLog(lc fx.Lifecycle, cfg config.Config, logger *slog.Logger) (payment.AttemptLog, error) {
	if cfg.DB.URL == "" {
		logger.Info("attempt log disabled")
		return payment.NopAttemptLog{}, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownDelay)
	defer cancel()

	pool, err := postgres.NewPool(ctx, cfg.DB.URL)
	if err != nil {
		return nil, errors.Wrap(err, "database init")
	}
	repo := postgres.NewAttemptRepo(pool)
	if err := repo.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	lc.Append(fx.StopHook(pool.Close))
	return repo, nil
}

func newScanLoop(session *camerasession.Session, decoder qrcode.Decoder, fs scanloop.FrameSync, logger *slog.Logger) *scanloop.Loop {
	return scanloop.NewLoop(session, decoder, fs, logger)
}

func newMachine(
	cfg config.Config,
	session *camerasession.Session,
	loop *scanloop.Loop,
	submitter payment.Submitter,
	attempts payment.AttemptLog,
	reporter *grpcdelivery.HealthReporter,
	logger *slog.Logger,
) (*confirm.Machine, error) {
	facing, err := camera.ParseFacing(cfg.Camera.DefaultFacing)
	if err != nil {
		return nil, err
	}

	opts := []confirm.Option{
		confirm.WithLogger(logger),
		confirm.WithAttemptLog(attempts),
		confirm.WithDefaultFacing(facing),
		confirm.WithListener(reporter.Observe),
	}
	if cfg.Haptics.Enabled {
		opts = append(opts, confirm.WithHaptics(haptic.NewBell(os.Stderr)))
	}
	return confirm.NewMachine(session, loop, submitter, opts...), nil
}

func runMachine(lc fx.Lifecycle, m *confirm.Machine, logger *slog.Logger) {
	ctx, cancel := context.WithCancel(context.Background())
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				if err := m.Run(ctx); err != nil {
					logger.Error("confirmation machine stopped", "error", err)
				}
			}()
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()
			select {
			case <-m.Done():
				return nil
			case <-stopCtx.Done():
				return errors.Wrap(stopCtx.Err(), "wait for camera release")
			}
		},
	})
}

func newGenerateQR(cfg config.Config, provider identity.Provider, renderer qrcode.Renderer) (*generateqr.UseCase, error) {
	level, err := qrcode.ParseLevel(cfg.QR.Level)
	if err != nil {
		return nil, err
	}
	return generateqr.NewUseCase(provider, renderer, clock.NewRealClock(), qrcode.Options{
		Size:   cfg.QR.Size,
		Margin: cfg.QR.Margin,
		Level:  level,
	}), nil
}

func newHTTPHandler(cfg config.Config, uc *generateqr.UseCase, m *confirm.Machine, logger *slog.Logger) (*httpdelivery.Handler, error) {
	facing, err := camera.ParseFacing(cfg.Camera.DefaultFacing)
	if err != nil {
		return nil, err
	}
	return httpdelivery.NewHandler(uc, m, facing, logger), nil
}

func startHTTPServer(lc fx.Lifecycle, cfg config.Config, router *chi.Mux, logger *slog.Logger) {
	srv := &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: readHeaderTimeout,
	}
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			lis, err := net.Listen("tcp", cfg.Server.HTTPAddr)
			if err != nil {
				return errors.Wrap(err, "http listen")
			}
			go func() {
				logger.Info("HTTP server starting", "addr", cfg.Server.HTTPAddr)
				if serveErr := srv.Serve(lis); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
					logger.Error("http serve failed", "error", serveErr)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			logger.Info("shutting down HTTP server")
			shutdownCtx, cancel := context.WithTimeout(ctx, gracefulShutdownDelay)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

func startGRPCServer(lc fx.Lifecycle, cfg config.Config, srv *grpc.Server, hs *health.Server, logger *slog.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			lis, err := net.Listen("tcp", cfg.Server.GRPCAddr)
			if err != nil {
				return errors.Wrap(err, "grpc listen")
			}
			go func() {
				logger.Info("gRPC server starting", "addr", cfg.Server.GRPCAddr)
				if err := srv.Serve(lis); err != nil {
					logger.Error("grpc serve failed", "error", err)
				}
			}()
			return nil
		},
		OnStop: func(context.Context) error {
			hs.Shutdown()
			srv.GracefulStop()
			return nil
		},
	})
}
