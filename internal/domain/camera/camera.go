package camera

import (
	"context"
	"image"
	"strings"

	"github.com/cockroachdb/errors"
)

var (
	ErrPermissionDenied = errors.New("camera permission denied")
	ErrNoDevice         = errors.New("no camera device")
	ErrDeviceBusy       = errors.New("camera already in use")
	ErrHandleReleased   = errors.New("camera handle released")
	ErrNotReady         = errors.New("camera frame not ready")
)

type Facing int

const (
	FacingRear Facing = iota
	FacingFront
)

func (f Facing) Opposite() Facing {
	if f == FacingFront {
		return FacingRear
	}
	return FacingFront
}

func (f Facing) String() string {
	if f == FacingFront {
		return "front"
	}
	return "rear"
}

func ParseFacing(s string) (Facing, error) {
	switch strings.ToLower(s) {
	case "rear", "back", "environment":
		return FacingRear, nil
	case "front", "user":
		return FacingFront, nil
	default:
		return FacingRear, errors.Newf("unknown facing %q", s)
	}
}

type Frame = image.Image

// Stream is one open capture device.
type Stream interface {
	Facing() Facing
	// Read returns the most recent frame, or ErrNotReady while the device has
	// not produced one yet. It does not block waiting for data.
	Read() (Frame, error)
	Close() error
}

type Driver interface {
	Open(ctx context.Context, facing Facing) (Stream, error)
}
