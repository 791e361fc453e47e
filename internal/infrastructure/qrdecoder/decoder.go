package qrdecoder

import (
	"image"

	"github.com/cockroachdb/errors"
	"github.com/liyue201/goqr"

	"github.com/Xausdorf/qr-pay-hub/pay-capture/internal/domain/qrcode"
)

// Decoder locates codes with goqr and returns the first non-empty payload.
type Decoder struct{}

func NewDecoder() *Decoder {
	return &Decoder{}
}

func (d *Decoder) Decode(frame image.Image) (string, error) {
	if frame == nil {
		return "", qrcode.ErrNoCode
	}
	codes, err := goqr.Recognize(frame)
	if err != nil {
		return "", errors.Mark(errors.Wrap(err, "recognize"), qrcode.ErrNoCode)
	}
	for _, c := range codes {
		if len(c.Payload) > 0 {
			return string(c.Payload), nil
		}
	}
	return "", qrcode.ErrNoCode
}
