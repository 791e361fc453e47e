package config_test

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Xausdorf/qr-pay-hub/pay-capture/internal/infrastructure/config"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := config.Load()
	require.NoError(t, err)

	want := config.Config{
		Server:  config.ServerConfig{HTTPAddr: ":8080", GRPCAddr: ":50052"},
		Backend: config.BackendConfig{URL: "http://localhost:8000", Timeout: 10 * time.Second},
		Camera:  config.CameraConfig{FrontIndex: 0, RearIndex: 1, Width: 1280, Height: 720, DefaultFacing: "rear"},
		Scan:    config.ScanConfig{FPS: 30, Decoder: "goqr"},
		QR:      config.QRConfig{Size: 256, Margin: 4, Level: "medium"},
		Log:     config.LogConfig{Level: "info", Format: "json"},
		Haptics: config.HapticsConfig{Enabled: true},
	}
	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("HTTP_ADDR", "127.0.0.1:9090")
	t.Setenv("BACKEND_TOKEN", "secret")
	t.Setenv("BACKEND_TIMEOUT", "3s")
	t.Setenv("CAMERA_DEFAULT_FACING", "front")
	t.Setenv("SCAN_DECODER", "opencv")
	t.Setenv("SCAN_FPS", "60")
	t.Setenv("DATABASE_URL", "postgres://localhost/capture")
	t.Setenv("HAPTICS_ENABLED", "false")

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9090", cfg.Server.HTTPAddr)
	assert.Equal(t, "secret", cfg.Backend.Token)
	assert.Equal(t, 3*time.Second, cfg.Backend.Timeout)
	assert.Equal(t, "front", cfg.Camera.DefaultFacing)
	assert.Equal(t, config.DecoderOpenCV, cfg.Scan.Decoder)
	assert.Equal(t, 60, cfg.Scan.FPS)
	assert.Equal(t, "postgres://localhost/capture", cfg.DB.URL)
	assert.False(t, cfg.Haptics.Enabled)
}

func TestLoad_Invalid(t *testing.T) {
	tests := map[string]string{
		"SCAN_DECODER": "zbar",
		"SCAN_FPS":     "0",
		"QR_MARGIN":    "-1",
		"CAMERA_WIDTH": "wide",
	}
	for key, value := range tests {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, value)
			_, err := config.Load()
			assert.Error(t, err)
		})
	}
}
