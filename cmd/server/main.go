package main

import (
	"context"
	"log/slog"
	"os"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	"github.com/Xausdorf/qr-pay-hub/pay-capture/internal/infrastructure/config"
	"github.com/Xausdorf/qr-pay-hub/pay-capture/internal/infrastructure/logging"
)

func main() {
	app := fx.New(
		fx.Provide(
			config.Load,
			func(cfg config.Config) *slog.Logger {
				logger := logging.New(cfg.Log, os.Stdout)
				slog.SetDefault(logger)
				return logger
			},
		),
		fx.WithLogger(func(logger *slog.Logger) fxevent.Logger {
			return &fxevent.SlogLogger{Logger: logger}
		}),
		InfrastructureModule,
		CaptureModule,
		DeliveryModule,
	)

	if err := app.Start(context.Background()); err != nil {
		slog.Error("application start failed", "error", err)
		os.Exit(1)
	}

	<-app.Done()

	if err := app.Stop(context.Background()); err != nil {
		slog.Error("application stop failed", "error", err)
		os.Exit(1)
	}
}
