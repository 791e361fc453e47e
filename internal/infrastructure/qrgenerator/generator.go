package qrgenerator

import (
	"image"
	"image/color"
	"strings"

	"github.com/cockroachdb/errors"
	qr "github.com/skip2/go-qrcode"

	"github.com/Xausdorf/qr-pay-hub/pay-capture/internal/domain/qrcode"
)

const (
	DefaultSize   = 256
	DefaultMargin = 4
)

var palette = color.Palette{color.White, color.Black}

// Generator renders payloads with go-qrcode. The quiet zone is drawn here so
// that its width follows Options.Margin.
type Generator struct{}

// go-qrcode has no sentinel for oversized content, only this message.
const tooLongMessage = "too long"

func NewGenerator() *Generator {
	return &Generator{}
}

func (g *Generator) Render(text string, opts qrcode.Options) (image.Image, error) {
	if text == "" {
		return nil, qrcode.ErrEmptyPayload
	}

	code, err := qr.New(text, recoveryLevel(opts.Level))
	if err != nil {
		if strings.Contains(err.Error(), tooLongMessage) {
			return nil, errors.Mark(errors.Wrapf(err, "%d bytes", len(text)), qrcode.ErrPayloadTooLarge)
		}
		return nil, errors.Wrap(err, "encode qr code")
	}
	code.DisableBorder = true

	return draw(code.Bitmap(), opts), nil
}

func draw(bitmap [][]bool, opts qrcode.Options) image.Image {
	margin := opts.Margin
	if margin < 0 {
		margin = DefaultMargin
	}
	size := opts.Size
	if size <= 0 {
		size = DefaultSize
	}

	modules := len(bitmap) + 2*margin
	if size < modules {
		size = modules
	}
	scale := size / modules
	offset := (size - modules*scale) / 2

	img := image.NewPaletted(image.Rect(0, 0, size, size), palette)
	for y, row := range bitmap {
		for x, dark := range row {
			if !dark {
				continue
			}
			x0 := offset + (x+margin)*scale
			y0 := offset + (y+margin)*scale
			for dy := range scale {
				for dx := range scale {
					img.SetColorIndex(x0+dx, y0+dy, 1)
				}
			}
		}
	}
	return img
}

func recoveryLevel(l qrcode.Level) qr.RecoveryLevel {
	switch l {
	case qrcode.LevelLow:
		return qr.Low
	case qrcode.LevelHigh:
		return qr.High
	case qrcode.LevelHighest:
		return qr.Highest
	default:
		return qr.Medium
	}
}
