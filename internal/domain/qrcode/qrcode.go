package qrcode

//go:generate mockgen -source=qrcode.go -destination=../../usecase/generateqr/mocks/qrcode.go -package=mocks

import (
	"image"
	"strings"

	"github.com/cockroachdb/errors"
)

var (
	ErrPayloadTooLarge = errors.New("payload exceeds qr code capacity")
	ErrEmptyPayload    = errors.New("payload is empty")
	ErrNoCode          = errors.New("no qr code found")
)

type Level int

const (
	LevelLow Level = iota
	LevelMedium
	LevelHigh
	LevelHighest
)

func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(s) {
	case "low", "l":
		return LevelLow, nil
	case "medium", "m", "":
		return LevelMedium, nil
	case "high", "q":
		return LevelHigh, nil
	case "highest", "h":
		return LevelHighest, nil
	default:
		return LevelMedium, errors.Newf("unknown recovery level %q", s)
	}
}

// Options controls the rendered bitmap. Size is the side length in pixels,
// Margin the quiet zone in modules.
type Options struct {
	Size   int
	Margin int
	Level  Level
}

type Renderer interface {
	Render(text string, opts Options) (image.Image, error)
}

// Decoder locates a code in a frame and returns its text, or ErrNoCode.
type Decoder interface {
	Decode(frame image.Image) (string, error)
}
