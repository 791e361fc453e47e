package camerasession

import (
	"context"
	"log/slog"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"

	"github.com/Xausdorf/qr-pay-hub/pay-capture/internal/domain/camera"
)

// Handle is the lifecycle token for an acquired stream. It carries no access
// to the stream itself.
type Handle struct {
	id     uuid.UUID
	facing camera.Facing
}

func (h *Handle) ID() uuid.UUID {
	return h.id
}

func (h *Handle) Facing() camera.Facing {
	return h.facing
}

// Session owns at most one open camera stream.
type Session struct {
	driver camera.Driver
	logger *slog.Logger

	mu     sync.Mutex
	active *Handle
	stream camera.Stream
}

func NewSession(driver camera.Driver, logger *slog.Logger) *Session {
	return &Session{
		driver: driver,
		logger: logger.With("component", "camera_session"),
	}
}

func (s *Session) Acquire(ctx context.Context, facing camera.Facing) (*Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active != nil {
		return nil, errors.Wrapf(camera.ErrDeviceBusy, "handle %s", s.active.id)
	}

	stream, err := s.driver.Open(ctx, facing)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s camera", facing)
	}

	h := &Handle{id: uuid.New(), facing: facing}
	s.active = h
	s.stream = stream
	s.logger.Info("camera acquired", "handle", h.id, "facing", facing.String())
	return h, nil
}

// Release closes the stream behind h. Releasing a nil, stale or already
// released handle does nothing.
func (s *Session) Release(h *Handle) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if h == nil || s.active != h {
		return
	}
	if err := s.stream.Close(); err != nil {
		s.logger.Warn("camera close failed", "handle", h.id, "error", err)
	}
	s.active = nil
	s.stream = nil
	s.logger.Info("camera released", "handle", h.id)
}

// SwitchFacing releases h and acquires the opposite facing. It is not atomic:
// if the second acquire fails the camera stays released.
func (s *Session) SwitchFacing(ctx context.Context, h *Handle) (*Handle, error) {
	if !s.owns(h) {
		return nil, camera.ErrHandleReleased
	}
	s.Release(h)
	return s.Acquire(ctx, h.facing.Opposite())
}

func (s *Session) ReadFrame(h *Handle) (camera.Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if h == nil || s.active != h {
		return nil, camera.ErrHandleReleased
	}
	return s.stream.Read()
}

func (s *Session) owns(h *Handle) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return h != nil && s.active == h
}
