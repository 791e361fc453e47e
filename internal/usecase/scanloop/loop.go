package scanloop

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/Xausdorf/qr-pay-hub/pay-capture/internal/domain/camera"
	"github.com/Xausdorf/qr-pay-hub/pay-capture/internal/domain/payment"
	"github.com/Xausdorf/qr-pay-hub/pay-capture/internal/domain/qrcode"
	"github.com/Xausdorf/qr-pay-hub/pay-capture/internal/usecase/camerasession"
)

var ErrAlreadyRunning = errors.New("scan loop already running")

type FrameReader interface {
	ReadFrame(h *camerasession.Handle) (camera.Frame, error)
}

// FrameSync delivers one tick per rendered frame.
type FrameSync interface {
	Subscribe() (<-chan time.Time, func())
}

type Detection struct {
	Payload string
	Request payment.Request
}

// DetectedFunc receives a detection on the loop goroutine. ctx is cancelled
// when the loop is stopped.
type DetectedFunc func(ctx context.Context, d Detection)

// Stats counts loop activity. Ticks counts frames whose cycle has finished,
// sampled or not.
type Stats struct {
	Ticks      int
	Reads      int
	Decodes    int
	Detections int
}

type status int

const (
	statusIdle status = iota
	statusRunning
	statusPaused
)

// Loop samples one frame per tick and stops sampling on the first payload that
// decodes into a payment request.
type Loop struct {
	reader  FrameReader
	decoder qrcode.Decoder
	sync    FrameSync
	logger  *slog.Logger

	mu     sync.Mutex
	status status
	cancel context.CancelFunc
	done   chan struct{}
	stats  Stats
}

func NewLoop(reader FrameReader, decoder qrcode.Decoder, fs FrameSync, logger *slog.Logger) *Loop {
	return &Loop{
		reader:  reader,
		decoder: decoder,
		sync:    fs,
		logger:  logger.With("component", "scan_loop"),
	}
}

func (l *Loop) Start(h *camerasession.Handle, onDetected DetectedFunc) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.done != nil {
		return ErrAlreadyRunning
	}

	ctx, cancel := context.WithCancel(context.Background())
	frames, unsubscribe := l.sync.Subscribe()
	l.cancel = cancel
	l.done = make(chan struct{})
	l.status = statusRunning

	go l.run(ctx, h, frames, unsubscribe, onDetected, l.done)
	return nil
}

func (l *Loop) Pause() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.status == statusRunning {
		l.status = statusPaused
	}
}

func (l *Loop) Resume() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.status == statusPaused {
		l.status = statusRunning
	}
}

// Stop cancels scheduling and waits for an in-flight cycle to finish. It must
// not be called from a DetectedFunc.
func (l *Loop) Stop() {
	l.mu.Lock()
	if l.done == nil {
		l.mu.Unlock()
		return
	}
	cancel, done := l.cancel, l.done
	l.cancel, l.done = nil, nil
	l.status = statusIdle
	l.mu.Unlock()

	cancel()
	<-done
}

func (l *Loop) Running() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.status == statusRunning
}

func (l *Loop) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stats
}

func (l *Loop) run(
	ctx context.Context,
	h *camerasession.Handle,
	frames <-chan time.Time,
	unsubscribe func(),
	onDetected DetectedFunc,
	done chan struct{},
) {
	defer close(done)
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return
		case <-frames:
		}

		if l.sampling() {
			if d, ok := l.cycle(h); ok && l.hold() {
				onDetected(ctx, d)
			}
		}
		l.count(func(s *Stats) { s.Ticks++ })
	}
}

func (l *Loop) sampling() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.status == statusRunning
}

func (l *Loop) cycle(h *camerasession.Handle) (Detection, bool) {
	l.count(func(s *Stats) { s.Reads++ })
	frame, err := l.reader.ReadFrame(h)
	if err != nil {
		if !errors.Is(err, camera.ErrNotReady) {
			l.logger.Warn("frame read failed", "error", err)
		}
		return Detection{}, false
	}

	l.count(func(s *Stats) { s.Decodes++ })
	text, err := l.decoder.Decode(frame)
	if err != nil {
		if !errors.Is(err, qrcode.ErrNoCode) {
			l.logger.Debug("frame decode failed", "error", err)
		}
		return Detection{}, false
	}

	req, err := payment.Decode(text)
	if err != nil {
		l.logger.Debug("payload rejected", "error", err)
		return Detection{}, false
	}
	return Detection{Payload: text, Request: req}, true
}

// hold pauses the loop for a detection. A cycle that finished after Pause or
// Stop is discarded.
func (l *Loop) hold() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.status != statusRunning {
		return false
	}
	l.status = statusPaused
	l.stats.Detections++
	return true
}

func (l *Loop) count(f func(*Stats)) {
	l.mu.Lock()
	f(&l.stats)
	l.mu.Unlock()
}
