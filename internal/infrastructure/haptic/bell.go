package haptic

import (
	"context"
	"io"
	"sync"

	"github.com/cockroachdb/errors"
)

// Bell signals a detection by writing the terminal bell character. Hosts
// without a vibration motor use it as their tactile cue.
type Bell struct {
	mu sync.Mutex
	w  io.Writer
}

func NewBell(w io.Writer) *Bell {
	return &Bell{w: w}
}

func (b *Bell) Pulse(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	_, err := b.w.Write([]byte{'\a'})
	return errors.Wrap(err, "ring bell")
}
