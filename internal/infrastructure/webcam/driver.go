package webcam

import (
	"context"
	"image"
	"log/slog"

	"github.com/cockroachdb/errors"
	"gocv.io/x/gocv"

	"github.com/Xausdorf/qr-pay-hub/pay-capture/internal/domain/camera"
)

type Config struct {
	FrontIndex int
	RearIndex  int
	Width      int
	Height     int
}

// Driver opens V4L/AVFoundation devices through OpenCV. Each facing maps to a
// fixed device index.
type Driver struct {
	cfg    Config
	logger *slog.Logger
}

func NewDriver(cfg Config, logger *slog.Logger) *Driver {
	return &Driver{cfg: cfg, logger: logger.With("component", "webcam")}
}

func (d *Driver) index(facing camera.Facing) int {
	if facing == camera.FacingFront {
		return d.cfg.FrontIndex
	}
	return d.cfg.RearIndex
}

func (d *Driver) Open(ctx context.Context, facing camera.Facing) (camera.Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	idx := d.index(facing)
	if err := probe(devicePath(idx)); err != nil {
		return nil, err
	}

	vc, err := gocv.OpenVideoCapture(idx)
	if err != nil || vc == nil || !vc.IsOpened() {
		if vc != nil {
			vc.Close()
		}
		return nil, errors.Wrapf(camera.ErrNoDevice, "device %d: %v", idx, err)
	}
	if d.cfg.Width > 0 && d.cfg.Height > 0 {
		vc.Set(gocv.VideoCaptureFrameWidth, float64(d.cfg.Width))
		vc.Set(gocv.VideoCaptureFrameHeight, float64(d.cfg.Height))
	}

	d.logger.Info("video capture opened", "device", idx, "facing", facing.String())
	return &stream{vc: vc, mat: gocv.NewMat(), facing: facing}, nil
}

// stream is not safe for concurrent use; camerasession serializes access.
type stream struct {
	vc     *gocv.VideoCapture
	mat    gocv.Mat
	facing camera.Facing
}

func (s *stream) Facing() camera.Facing {
	return s.facing
}

func (s *stream) Read() (camera.Frame, error) {
	if ok := s.vc.Read(&s.mat); !ok || s.mat.Empty() {
		return nil, camera.ErrNotReady
	}
	return matToImage(s.mat), nil
}

func (s *stream) Close() error {
	return closeStream(s.mat.Close, s.vc.Close)
}

// closeStream always runs both closers so a failed buffer close does not leave
// the device open.
func closeStream(closeMat, closeCapture func() error) error {
	matErr := errors.Wrap(closeMat(), "close frame buffer")
	vcErr := errors.Wrap(closeCapture(), "close video capture")
	return errors.CombineErrors(matErr, vcErr)
}

// matToImage copies a BGR frame into memory owned by Go.
func matToImage(m gocv.Mat) image.Image {
	rgba := gocv.NewMat()
	defer rgba.Close()
	gocv.CvtColor(m, &rgba, gocv.ColorBGRToRGBA)

	img := image.NewRGBA(image.Rect(0, 0, rgba.Cols(), rgba.Rows()))
	copy(img.Pix, rgba.ToBytes())
	return img
}
