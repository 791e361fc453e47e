package confirm

import (
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"

	"github.com/Xausdorf/qr-pay-hub/pay-capture/internal/domain/camera"
	"github.com/Xausdorf/qr-pay-hub/pay-capture/internal/domain/payment"
)

type Mode int

const (
	ModeGenerate Mode = iota
	ModeScan
)

func (m Mode) String() string {
	if m == ModeScan {
		return "scan"
	}
	return "generate"
}

func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(s) {
	case "generate":
		return ModeGenerate, nil
	case "scan":
		return ModeScan, nil
	default:
		return ModeGenerate, errors.Newf("unknown mode %q", s)
	}
}

type State int

const (
	StateIdle State = iota
	StateAcquiring
	StateScanning
	StateDetected
	StateConfirming
	StateSubmitting
	StateSucceeded
	StateCancelled
	StateFailed
)

var stateNames = [...]string{
	StateIdle:       "idle",
	StateAcquiring:  "acquiring",
	StateScanning:   "scanning",
	StateDetected:   "detected",
	StateConfirming: "confirming",
	StateSubmitting: "submitting",
	StateSucceeded:  "terminal(success)",
	StateCancelled:  "terminal(cancelled)",
	StateFailed:     "terminal(failed)",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

func (s State) Terminal() bool {
	return s == StateSucceeded || s == StateCancelled || s == StateFailed
}

// holdsCamera reports whether a session in s owns an acquired stream.
func (s State) holdsCamera() bool {
	switch s {
	case StateScanning, StateDetected, StateConfirming, StateSubmitting:
		return true
	default:
		return false
	}
}

// Snapshot is a copy of the machine state handed to callers and listeners.
type Snapshot struct {
	SessionID      uuid.UUID
	Mode           Mode
	State          State
	Facing         camera.Facing
	Candidate      *payment.Request
	Payload        string
	IdempotencyKey string
	Receipt        *payment.Receipt
	Err            error
}
