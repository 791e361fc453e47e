// Package cameratest provides an in-memory camera driver and a matching
// decoder for exercising the capture pipeline without hardware.
package cameratest

import (
	"context"
	"image"
	"sync"

	"github.com/cockroachdb/errors"

	"github.com/Xausdorf/qr-pay-hub/pay-capture/internal/domain/camera"
	"github.com/Xausdorf/qr-pay-hub/pay-capture/internal/domain/qrcode"
)

// TextFrame is a frame whose QR content is known up front. An empty Text
// means no code is visible.
type TextFrame struct {
	image.Image
	Text string
}

func NewFrame(text string) TextFrame {
	return TextFrame{Image: image.NewGray(image.Rect(0, 0, 4, 4)), Text: text}
}

func BlankFrame() TextFrame {
	return NewFrame("")
}

// Decoder reads the Text of a TextFrame.
type Decoder struct{}

func (Decoder) Decode(frame image.Image) (string, error) {
	tf, ok := frame.(TextFrame)
	if !ok || tf.Text == "" {
		return "", qrcode.ErrNoCode
	}
	return tf.Text, nil
}

var errReadAfterClose = errors.New("read after close")

// Driver hands out Streams that replay a shared frame script. The last frame
// repeats once the script is exhausted.
type Driver struct {
	mu       sync.Mutex
	openErr  error
	warmup   int
	frames   []camera.Frame
	next     int
	streams  []*Stream
	openedBy []camera.Facing
}

func NewDriver(frames ...camera.Frame) *Driver {
	return &Driver{frames: frames}
}

// FailOpen makes every following Open return err. Pass nil to clear it.
func (d *Driver) FailOpen(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.openErr = err
}

// SetWarmup makes the first n reads of every stream return ErrNotReady.
func (d *Driver) SetWarmup(n int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.warmup = n
}

func (d *Driver) SetFrames(frames ...camera.Frame) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.frames = frames
	d.next = 0
}

func (d *Driver) Open(ctx context.Context, facing camera.Facing) (camera.Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.openErr != nil {
		return nil, d.openErr
	}
	s := &Stream{driver: d, facing: facing}
	d.streams = append(d.streams, s)
	d.openedBy = append(d.openedBy, facing)
	return s, nil
}

func (d *Driver) Streams() []*Stream {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*Stream(nil), d.streams...)
}

// Facings lists the facing of every Open call in order.
func (d *Driver) Facings() []camera.Facing {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]camera.Facing(nil), d.openedBy...)
}

// OpenStreams counts streams that were opened and not closed yet.
func (d *Driver) OpenStreams() int {
	n := 0
	for _, s := range d.Streams() {
		if s.CloseCount() == 0 {
			n++
		}
	}
	return n
}

func (d *Driver) warmupReads() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.warmup
}

func (d *Driver) frame() camera.Frame {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.frames) == 0 {
		return nil
	}
	f := d.frames[d.next]
	if d.next < len(d.frames)-1 {
		d.next++
	}
	return f
}

type Stream struct {
	driver *Driver
	facing camera.Facing

	mu              sync.Mutex
	reads           int
	closes          int
	readsAfterClose int
}

func (s *Stream) Facing() camera.Facing {
	return s.facing
}

func (s *Stream) Read() (camera.Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closes > 0 {
		s.readsAfterClose++
		return nil, errReadAfterClose
	}
	s.reads++
	if s.reads <= s.driver.warmupReads() {
		return nil, camera.ErrNotReady
	}
	f := s.driver.frame()
	if f == nil {
		return nil, camera.ErrNotReady
	}
	return f, nil
}

func (s *Stream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closes++
	return nil
}

func (s *Stream) Reads() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reads
}

func (s *Stream) CloseCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closes
}

func (s *Stream) ReadsAfterClose() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readsAfterClose
}
