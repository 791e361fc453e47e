package generateqr

import (
	"context"
	"image"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/shopspring/decimal"

	"github.com/Xausdorf/qr-pay-hub/pay-capture/internal/domain/identity"
	"github.com/Xausdorf/qr-pay-hub/pay-capture/internal/domain/payment"
	"github.com/Xausdorf/qr-pay-hub/pay-capture/internal/domain/qrcode"
)

type Clock interface {
	Now() time.Time
}

type Request struct {
	Amount      decimal.Decimal
	Description string
}

type Result struct {
	Request payment.Request
	Payload string
	Image   image.Image
}

// UseCase renders the signed-in user's payment request and remembers the last
// successful result.
type UseCase struct {
	identity identity.Provider
	renderer qrcode.Renderer
	clock    Clock
	opts     qrcode.Options

	mu      sync.RWMutex
	current *Result
}

func NewUseCase(identity identity.Provider, renderer qrcode.Renderer, clock Clock, opts qrcode.Options) *UseCase {
	return &UseCase{
		identity: identity,
		renderer: renderer,
		clock:    clock,
		opts:     opts,
	}
}

// Execute builds a fresh code. On failure the previous result stays current.
// Without a signed-in user the code carries no account.
func (uc *UseCase) Execute(ctx context.Context, req Request) (*Result, error) {
	user, err := uc.identity.CurrentUser(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "resolve current user")
	}
	var accountID string
	if user != nil {
		accountID = user.AccountID
	}

	pr, err := payment.NewRequest(accountID, req.Amount, req.Description, uc.clock.Now())
	if err != nil {
		return nil, err
	}

	payload := payment.Encode(pr)
	img, err := uc.renderer.Render(payload, uc.opts)
	if err != nil {
		return nil, errors.Wrap(err, "render payment code")
	}

	result := &Result{Request: pr, Payload: payload, Image: img}
	uc.mu.Lock()
	uc.current = result
	uc.mu.Unlock()
	return result, nil
}

func (uc *UseCase) Current() (*Result, bool) {
	uc.mu.RLock()
	defer uc.mu.RUnlock()
	return uc.current, uc.current != nil
}
