package config

import (
	"time"

	"github.com/cockroachdb/errors"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Server  ServerConfig
	Backend BackendConfig
	Camera  CameraConfig
	Scan    ScanConfig
	QR      QRConfig
	DB      DBConfig
	Log     LogConfig
	Haptics HapticsConfig
}

type ServerConfig struct {
	HTTPAddr string `envconfig:"HTTP_ADDR" default:":8080"`
	GRPCAddr string `envconfig:"GRPC_ADDR" default:":50052"`
}

type BackendConfig struct {
	URL     string        `envconfig:"BACKEND_URL" default:"http://localhost:8000"`
	Token   string        `envconfig:"BACKEND_TOKEN"`
	Timeout time.Duration `envconfig:"BACKEND_TIMEOUT" default:"10s"`
}

type CameraConfig struct {
	FrontIndex    int    `envconfig:"CAMERA_FRONT_INDEX" default:"0"`
	RearIndex     int    `envconfig:"CAMERA_REAR_INDEX" default:"1"`
	Width         int    `envconfig:"CAMERA_WIDTH" default:"1280"`
	Height        int    `envconfig:"CAMERA_HEIGHT" default:"720"`
	DefaultFacing string `envconfig:"CAMERA_DEFAULT_FACING" default:"rear"`
}

type ScanConfig struct {
	FPS     int    `envconfig:"SCAN_FPS" default:"30"`
	Decoder string `envconfig:"SCAN_DECODER" default:"goqr"`
}

type QRConfig struct {
	Size   int    `envconfig:"QR_SIZE" default:"256"`
	Margin int    `envconfig:"QR_MARGIN" default:"4"`
	Level  string `envconfig:"QR_LEVEL" default:"medium"`
}

// DBConfig is optional; an empty URL disables the attempt log.
type DBConfig struct {
	URL string `envconfig:"DATABASE_URL"`
}

type LogConfig struct {
	Level  string `envconfig:"LOG_LEVEL" default:"info"`
	Format string `envconfig:"LOG_FORMAT" default:"json"`
}

type HapticsConfig struct {
	Enabled bool `envconfig:"HAPTICS_ENABLED" default:"true"`
}

const (
	DecoderGoQR   = "goqr"
	DecoderOpenCV = "opencv"
)

func Load() (Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, errors.Wrap(err, "process env config")
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch c.Scan.Decoder {
	case DecoderGoQR, DecoderOpenCV:
	default:
		return errors.Newf("SCAN_DECODER must be %q or %q, got %q", DecoderGoQR, DecoderOpenCV, c.Scan.Decoder)
	}
	if c.Scan.FPS <= 0 {
		return errors.Newf("SCAN_FPS must be positive, got %d", c.Scan.FPS)
	}
	if c.QR.Size <= 0 {
		return errors.Newf("QR_SIZE must be positive, got %d", c.QR.Size)
	}
	if c.QR.Margin < 0 {
		return errors.Newf("QR_MARGIN must not be negative, got %d", c.QR.Margin)
	}
	return nil
}
