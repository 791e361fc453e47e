package webcam

import (
	"image"
	"sync"

	"github.com/cockroachdb/errors"
	"gocv.io/x/gocv"

	"github.com/Xausdorf/qr-pay-hub/pay-capture/internal/domain/qrcode"
)

// Decoder runs OpenCV's QR detector on a grayscale copy of the frame.
type Decoder struct {
	mu  sync.Mutex
	det gocv.QRCodeDetector
}

func NewDecoder() *Decoder {
	return &Decoder{det: gocv.NewQRCodeDetector()}
}

func (d *Decoder) Decode(frame image.Image) (string, error) {
	if frame == nil {
		return "", qrcode.ErrNoCode
	}
	src, err := gocv.ImageToMatRGB(frame)
	if err != nil {
		return "", errors.Wrap(err, "convert frame")
	}
	defer src.Close()

	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(src, &gray, gocv.ColorRGBToGray)

	points := gocv.NewMat()
	defer points.Close()
	straight := gocv.NewMat()
	defer straight.Close()

	d.mu.Lock()
	text := d.det.DetectAndDecode(gray, &points, &straight)
	d.mu.Unlock()

	if text == "" {
		return "", qrcode.ErrNoCode
	}
	return text, nil
}

func (d *Decoder) Close() error {
	return d.det.Close()
}
