package confirm

//go:generate mockgen -source=machine.go -destination=mocks/machine.go -package=mocks

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"

	"github.com/Xausdorf/qr-pay-hub/pay-capture/internal/domain/camera"
	"github.com/Xausdorf/qr-pay-hub/pay-capture/internal/domain/payment"
	"github.com/Xausdorf/qr-pay-hub/pay-capture/internal/usecase/camerasession"
	"github.com/Xausdorf/qr-pay-hub/pay-capture/internal/usecase/scanloop"
)

var (
	ErrInvalidTransition = errors.New("invalid state transition")
	ErrWrongMode         = errors.New("scan mode required")
	ErrClosed            = errors.New("confirmation machine closed")
	ErrAlreadyRunning    = errors.New("confirmation machine already running")
)

type Camera interface {
	Acquire(ctx context.Context, facing camera.Facing) (*camerasession.Handle, error)
	SwitchFacing(ctx context.Context, h *camerasession.Handle) (*camerasession.Handle, error)
	Release(h *camerasession.Handle)
}

type Scanner interface {
	Start(h *camerasession.Handle, onDetected scanloop.DetectedFunc) error
	Pause()
	Resume()
	Stop()
}

type Haptics interface {
	Pulse(ctx context.Context) error
}

// Listener is called on the machine goroutine after every transition. It must
// not call back into the Machine.
type Listener func(Snapshot)

type Option func(*Machine)

func WithHaptics(h Haptics) Option {
	return func(m *Machine) { m.haptics = h }
}

func WithListener(l Listener) Option {
	return func(m *Machine) { m.listeners = append(m.listeners, l) }
}

func WithAttemptLog(log payment.AttemptLog) Option {
	return func(m *Machine) { m.attempts = log }
}

func WithLogger(l *slog.Logger) Option {
	return func(m *Machine) { m.logger = l }
}

func WithDefaultFacing(f camera.Facing) Option {
	return func(m *Machine) { m.facing = f }
}

type op int

const (
	opSnapshot op = iota
	opSetMode
	opStart
	opSwitch
	opConfirm
	opCancel
	opStop
	opReset
)

type command struct {
	op     op
	mode   Mode
	facing camera.Facing
	reply  chan reply
}

type reply struct {
	snap Snapshot
	err  error
}

// acquired carries an acquisition result. The machine answers on taken
// whether it kept the handle; the acquiring goroutine releases it otherwise.
type acquired struct {
	epoch  uint64
	handle *camerasession.Handle
	err    error
	taken  chan<- bool
}

type detected struct {
	epoch     uint64
	detection scanloop.Detection
}

type submitted struct {
	epoch   uint64
	key     string
	receipt *payment.Receipt
	err     error
}

// Machine drives one scan session from camera acquisition to submission. All
// state is owned by the goroutine running Run; commands and asynchronous
// results reach it as events.
type Machine struct {
	camera    Camera
	scanner   Scanner
	submitter payment.Submitter
	attempts  payment.AttemptLog
	haptics   Haptics
	listeners []Listener
	logger    *slog.Logger

	events  chan any
	done    chan struct{}
	running atomic.Bool

	// Owned by Run. epoch changes whenever in-flight acquisitions, detections
	// and submissions must be ignored.
	ctx       context.Context
	epoch     uint64
	mode      Mode
	state     State
	facing    camera.Facing
	sessionID uuid.UUID
	handle    *camerasession.Handle
	candidate *payment.Request
	payload   string
	key       string
	receipt   *payment.Receipt
	lastErr   error

	// acquireDone is closed once the latest acquisition goroutine has handed
	// off or released its handle. The next acquisition waits for it.
	acquireDone chan struct{}
}

func NewMachine(cam Camera, scanner Scanner, submitter payment.Submitter, opts ...Option) *Machine {
	m := &Machine{
		camera:    cam,
		scanner:   scanner,
		submitter: submitter,
		attempts:  payment.NopAttemptLog{},
		logger:    slog.Default(),
		events:    make(chan any),
		done:      make(chan struct{}),
	}
	m.acquireDone = make(chan struct{})
	close(m.acquireDone)
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.With("component", "confirm")
	return m
}

// Run processes events until ctx is cancelled, then stops the loop, releases
// the camera and returns.
func (m *Machine) Run(ctx context.Context) error {
	if !m.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer close(m.done)

	m.ctx = ctx
	m.logger.Info("confirmation machine started")
	for {
		select {
		case <-ctx.Done():
			m.leaveScan()
			m.transition(StateIdle)
			m.logger.Info("confirmation machine stopped")
			return nil
		case ev := <-m.events:
			m.dispatch(ev)
		}
	}
}

// Done is closed once Run has returned and the camera is released.
func (m *Machine) Done() <-chan struct{} {
	return m.done
}

func (m *Machine) Snapshot(ctx context.Context) (Snapshot, error) {
	return m.do(ctx, command{op: opSnapshot})
}

// SetMode switches between generate and scan mode. Leaving scan mode stops the
// loop, releases the camera and resets to Idle.
func (m *Machine) SetMode(ctx context.Context, mode Mode) (Snapshot, error) {
	return m.do(ctx, command{op: opSetMode, mode: mode})
}

func (m *Machine) Start(ctx context.Context, facing camera.Facing) (Snapshot, error) {
	return m.do(ctx, command{op: opStart, facing: facing})
}

func (m *Machine) SwitchFacing(ctx context.Context) (Snapshot, error) {
	return m.do(ctx, command{op: opSwitch})
}

// Confirm submits the current candidate. It returns once Submitting is
// entered; the outcome is reported through snapshots.
func (m *Machine) Confirm(ctx context.Context) (Snapshot, error) {
	return m.do(ctx, command{op: opConfirm})
}

func (m *Machine) Cancel(ctx context.Context) (Snapshot, error) {
	return m.do(ctx, command{op: opCancel})
}

// Stop ends the camera session and stays in scan mode (terminal cancelled).
func (m *Machine) Stop(ctx context.Context) (Snapshot, error) {
	return m.do(ctx, command{op: opStop})
}

func (m *Machine) Reset(ctx context.Context) (Snapshot, error) {
	return m.do(ctx, command{op: opReset})
}

func (m *Machine) do(ctx context.Context, c command) (Snapshot, error) {
	c.reply = make(chan reply, 1)
	select {
	case m.events <- c:
	case <-m.done:
		return Snapshot{}, ErrClosed
	case <-ctx.Done():
		return Snapshot{}, ctx.Err()
	}
	r := <-c.reply
	return r.snap, r.err
}

func (m *Machine) post(ev any) bool {
	select {
	case m.events <- ev:
		return true
	case <-m.done:
		return false
	}
}

func (m *Machine) dispatch(ev any) {
	switch ev := ev.(type) {
	case command:
		err := m.apply(ev)
		ev.reply <- reply{snap: m.snapshot(), err: err}
	case acquired:
		m.onAcquired(ev)
	case detected:
		m.onDetected(ev)
	case submitted:
		m.onSubmitted(ev)
	}
}

func (m *Machine) apply(c command) error {
	switch c.op {
	case opSnapshot:
		return nil
	case opSetMode:
		return m.setMode(c.mode)
	case opStart:
		return m.start(c.facing)
	case opSwitch:
		return m.switchFacing()
	case opConfirm:
		return m.confirm()
	case opCancel:
		return m.cancel()
	case opStop:
		return m.stop()
	case opReset:
		return m.reset()
	default:
		return errors.Newf("unknown command %d", c.op)
	}
}

func (m *Machine) setMode(mode Mode) error {
	if mode == m.mode {
		return nil
	}
	if mode == ModeGenerate {
		m.leaveScan()
		m.mode = ModeGenerate
		m.sessionID = uuid.Nil
		m.clearOutcome()
		m.transition(StateIdle)
		return nil
	}
	m.mode = ModeScan
	m.sessionID = uuid.New()
	m.clearOutcome()
	m.transition(StateIdle)
	return nil
}

func (m *Machine) start(facing camera.Facing) error {
	if m.mode != ModeScan {
		return ErrWrongMode
	}
	if m.state != StateIdle && !m.state.Terminal() {
		return errors.Wrapf(ErrInvalidTransition, "start from %s", m.state)
	}
	m.facing = facing
	m.clearOutcome()
	m.beginAcquire(func(ctx context.Context) (*camerasession.Handle, error) {
		return m.camera.Acquire(ctx, facing)
	})
	return nil
}

func (m *Machine) switchFacing() error {
	if m.mode != ModeScan {
		return ErrWrongMode
	}
	switch {
	case m.state == StateIdle || m.state.Terminal():
		m.facing = m.facing.Opposite()
		m.notify()
		return nil
	case m.state == StateScanning:
		m.scanner.Stop()
		old := m.handle
		m.handle = nil
		m.facing = old.Facing().Opposite()
		m.beginAcquire(func(ctx context.Context) (*camerasession.Handle, error) {
			return m.camera.SwitchFacing(ctx, old)
		})
		return nil
	default:
		return errors.Wrapf(ErrInvalidTransition, "switch facing from %s", m.state)
	}
}

func (m *Machine) confirm() error {
	if m.state != StateConfirming {
		return errors.Wrapf(ErrInvalidTransition, "confirm from %s", m.state)
	}
	m.scanner.Stop()
	m.transition(StateSubmitting)

	ctx := m.ctx
	epoch, key, payload := m.epoch, m.key, m.payload
	attempt := payment.Attempt{
		IdempotencyKey: key,
		SessionID:      m.sessionID,
		Payload:        payload,
		AccountID:      m.candidate.AccountID(),
		Amount:         m.candidate.Amount(),
	}
	go func() {
		receipt, err := m.submitter.Submit(ctx, payload, key)
		m.record(ctx, attempt, err)
		m.post(submitted{epoch: epoch, key: key, receipt: receipt, err: err})
	}()
	return nil
}

func (m *Machine) cancel() error {
	if m.state != StateConfirming {
		return errors.Wrapf(ErrInvalidTransition, "cancel from %s", m.state)
	}
	m.clearCandidate()
	m.transition(StateScanning)
	m.scanner.Resume()
	return nil
}

func (m *Machine) stop() error {
	switch m.state {
	case StateAcquiring, StateScanning, StateDetected, StateConfirming:
		m.leaveScan()
		m.transition(StateCancelled)
		return nil
	default:
		return errors.Wrapf(ErrInvalidTransition, "stop from %s", m.state)
	}
}

func (m *Machine) reset() error {
	if !m.state.Terminal() {
		return errors.Wrapf(ErrInvalidTransition, "reset from %s", m.state)
	}
	m.clearOutcome()
	m.transition(StateIdle)
	return nil
}

func (m *Machine) beginAcquire(acquire func(context.Context) (*camerasession.Handle, error)) {
	m.epoch++
	epoch := m.epoch
	ctx := m.ctx
	prev := m.acquireDone
	done := make(chan struct{})
	m.acquireDone = done
	m.transition(StateAcquiring)

	go func() {
		defer close(done)
		select {
		case <-prev:
		case <-ctx.Done():
			return
		}

		h, err := acquire(ctx)
		taken := make(chan bool, 1)
		if !m.post(acquired{epoch: epoch, handle: h, err: err, taken: taken}) {
			if h != nil {
				m.camera.Release(h)
			}
			return
		}
		if h != nil && !<-taken {
			m.camera.Release(h)
		}
	}()
}

func (m *Machine) onAcquired(ev acquired) {
	fresh := ev.epoch == m.epoch && m.state == StateAcquiring
	if ev.taken != nil {
		ev.taken <- fresh && ev.handle != nil
	}
	if !fresh {
		if ev.handle != nil {
			m.logger.Info("releasing stale camera acquisition", "handle", ev.handle.ID())
		}
		return
	}
	if ev.err != nil {
		m.fail(errors.Wrap(ev.err, "acquire camera"))
		return
	}

	m.handle = ev.handle
	m.facing = ev.handle.Facing()
	if err := m.startLoop(); err != nil {
		m.fail(err)
		return
	}
	m.transition(StateScanning)
}

func (m *Machine) onDetected(ev detected) {
	if ev.epoch != m.epoch || m.state != StateScanning {
		m.logger.Debug("ignoring detection", "state", m.state.String())
		return
	}

	req := ev.detection.Request
	m.candidate = &req
	m.payload = ev.detection.Payload
	m.key = uuid.NewString()
	m.lastErr = nil
	m.scanner.Pause()
	m.transition(StateDetected)
	m.pulse()
	m.transition(StateConfirming)
}

func (m *Machine) onSubmitted(ev submitted) {
	if ev.epoch != m.epoch || m.state != StateSubmitting || ev.key != m.key {
		m.logger.Warn("submission resolved after its session ended",
			"idempotency_key", ev.key, "error", ev.err)
		return
	}

	if ev.err == nil {
		m.receipt = ev.receipt
		if m.receipt == nil {
			m.receipt = &payment.Receipt{}
		}
		if m.receipt.IdempotencyKey == "" {
			m.receipt.IdempotencyKey = ev.key
		}
		m.releaseCamera()
		m.transition(StateSucceeded)
		return
	}

	m.logger.Warn("payment submission failed", "idempotency_key", ev.key, "error", ev.err)
	m.lastErr = ev.err
	m.clearCandidate()
	if err := m.startLoop(); err != nil {
		m.fail(errors.CombineErrors(ev.err, err))
		return
	}
	m.transition(StateScanning)
}

func (m *Machine) startLoop() error {
	if m.handle == nil {
		return camera.ErrHandleReleased
	}
	return errors.Wrap(m.scanner.Start(m.handle, m.detectedFunc(m.epoch)), "start scan loop")
}

func (m *Machine) detectedFunc(epoch uint64) scanloop.DetectedFunc {
	return func(ctx context.Context, d scanloop.Detection) {
		select {
		case m.events <- detected{epoch: epoch, detection: d}:
		case <-ctx.Done():
		case <-m.done:
		}
	}
}

// leaveScan stops the loop, then releases the camera. In-flight results of
// the old epoch are dropped when they arrive.
func (m *Machine) leaveScan() {
	m.epoch++
	m.scanner.Stop()
	m.releaseCamera()
	m.clearCandidate()
}

func (m *Machine) fail(err error) {
	m.scanner.Stop()
	m.releaseCamera()
	m.lastErr = err
	m.logger.Error("scan session failed", "error", err)
	m.transition(StateFailed)
}

func (m *Machine) releaseCamera() {
	if m.handle == nil {
		return
	}
	m.camera.Release(m.handle)
	m.handle = nil
}

func (m *Machine) clearCandidate() {
	m.candidate = nil
	m.payload = ""
	m.key = ""
}

func (m *Machine) clearOutcome() {
	m.clearCandidate()
	m.receipt = nil
	m.lastErr = nil
}

func (m *Machine) pulse() {
	if m.haptics == nil {
		return
	}
	ctx := m.ctx
	go func() {
		if err := m.haptics.Pulse(ctx); err != nil {
			m.logger.Debug("haptic pulse failed", "error", err)
		}
	}()
}

func (m *Machine) record(ctx context.Context, attempt payment.Attempt, err error) {
	attempt.Outcome = payment.OutcomeSucceeded
	attempt.CreatedAt = time.Now().UTC()
	if err != nil {
		attempt.Outcome = payment.OutcomeFailed
		attempt.Reason = err.Error()
		var se *payment.SubmitError
		if errors.As(err, &se) {
			attempt.Reason = se.Reason
		}
	}
	if recErr := m.attempts.Record(ctx, attempt); recErr != nil {
		m.logger.Warn("attempt log write failed", "idempotency_key", attempt.IdempotencyKey, "error", recErr)
	}
}

func (m *Machine) transition(s State) {
	if s != m.state {
		m.logger.Info("state transition", "from", m.state.String(), "to", s.String(), "session", m.sessionID)
	}
	m.state = s
	if !s.holdsCamera() {
		m.releaseCamera()
	}
	m.notify()
}

func (m *Machine) notify() {
	if len(m.listeners) == 0 {
		return
	}
	snap := m.snapshot()
	for _, l := range m.listeners {
		l(snap)
	}
}

func (m *Machine) snapshot() Snapshot {
	s := Snapshot{
		SessionID:      m.sessionID,
		Mode:           m.mode,
		State:          m.state,
		Facing:         m.facing,
		Payload:        m.payload,
		IdempotencyKey: m.key,
		Err:            m.lastErr,
	}
	if m.candidate != nil {
		c := *m.candidate
		s.Candidate = &c
	}
	if m.receipt != nil {
		r := *m.receipt
		s.Receipt = &r
	}
	return s
}
