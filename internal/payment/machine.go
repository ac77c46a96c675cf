package payment

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"smartpos/engine/internal/domain"
)

type State string

const (
	// StateIdle means no payment attempt is in flight.
	StateIdle State = "idle"
	// StateMethodSelected means a method was chosen but the attempt has not
	// validated yet, e.g. cash rejected for insufficient tender and awaiting
	// a corrected amount.
	StateMethodSelected State = "method-selected"
	// StateValidating means a cash attempt passed tender checks and the
	// drawer interaction is in progress.
	StateValidating State = "validating"
	// StateAwaitingExternal means a QRIS code was issued and the machine is
	// waiting on the acquirer callback or the expiry deadline.
	StateAwaitingExternal State = "awaiting-external"
	// StateFinalized means the attempt succeeded and its result is readable.
	StateFinalized State = "finalized"
)

var (
	ErrEmptyCart          = errors.New("cart is empty")
	ErrInsufficientTender = errors.New("tendered amount below total")
	ErrInvalidState       = errors.New("invalid payment state")
)

// Result is the settled outcome of a finalized attempt.
type Result struct {
	Method        string
	ReferenceID   string
	Breakdown     domain.PricingBreakdown
	TenderedCents int64
	ChangeCents   int64
}

// Machine is the payment state machine for a single terminal. It is pure:
// it holds no timers and never reads the clock itself, so every timing
// decision is testable through the arguments. The owning controller drives
// expiry via Expire.
type Machine struct {
	state    State
	method   string
	result   Result
	deadline time.Time
}

func NewMachine() *Machine {
	return &Machine{state: StateIdle}
}

func (m *Machine) State() State {
	return m.state
}

// BeginCash validates a cash attempt. An empty cart never leaves Idle. A
// short tender moves to MethodSelected so the operator can re-enter the
// amount without re-picking the method.
func (m *Machine) BeginCash(breakdown domain.PricingBreakdown, lineCount int, tenderedCents int64) error {
	if m.state != StateIdle && !(m.state == StateMethodSelected && m.method == domain.PaymentMethodCash) {
		return fmt.Errorf("%w: cash attempt from %s", ErrInvalidState, m.state)
	}
	if lineCount == 0 {
		return ErrEmptyCart
	}
	if tenderedCents < breakdown.TotalCents {
		m.state = StateMethodSelected
		m.method = domain.PaymentMethodCash
		return ErrInsufficientTender
	}

	m.state = StateValidating
	m.method = domain.PaymentMethodCash
	m.result = Result{
		Method:        domain.PaymentMethodCash,
		Breakdown:     breakdown,
		TenderedCents: tenderedCents,
		ChangeCents:   tenderedCents - breakdown.TotalCents,
	}
	return nil
}

// CompleteCash finalizes a validating cash attempt once the drawer delay has
// elapsed.
func (m *Machine) CompleteCash() error {
	if m.state != StateValidating || m.method != domain.PaymentMethodCash {
		return fmt.Errorf("%w: cash completion from %s", ErrInvalidState, m.state)
	}
	m.state = StateFinalized
	return nil
}

// BeginQRIS issues a payment reference and arms the expiry deadline. The
// returned reference identifies the attempt toward the acquirer.
func (m *Machine) BeginQRIS(breakdown domain.PricingBreakdown, lineCount int, now time.Time, window time.Duration) (string, error) {
	if m.state != StateIdle && m.state != StateMethodSelected {
		return "", fmt.Errorf("%w: qris attempt from %s", ErrInvalidState, m.state)
	}
	if lineCount == 0 {
		return "", ErrEmptyCart
	}

	ref := "qris-" + uuid.NewString()
	m.state = StateAwaitingExternal
	m.method = domain.PaymentMethodQRIS
	m.deadline = now.Add(window)
	m.result = Result{
		Method:        domain.PaymentMethodQRIS,
		ReferenceID:   ref,
		Breakdown:     breakdown,
		TenderedCents: breakdown.TotalCents,
		ChangeCents:   0,
	}
	return ref, nil
}

// ConfirmExternal settles a pending QRIS attempt on acquirer confirmation.
func (m *Machine) ConfirmExternal() error {
	if m.state != StateAwaitingExternal {
		return fmt.Errorf("%w: external confirmation from %s", ErrInvalidState, m.state)
	}
	m.state = StateFinalized
	return nil
}

// SecondsRemaining reports the whole seconds left before a pending QRIS
// attempt expires, never below zero.
func (m *Machine) SecondsRemaining(now time.Time) int {
	if m.state != StateAwaitingExternal {
		return 0
	}
	left := int(m.deadline.Sub(now).Seconds())
	if left < 0 {
		return 0
	}
	return left
}

// Expire cancels a pending QRIS attempt whose deadline has passed. It
// reports whether the attempt was actually expired; a confirmation that
// raced ahead of the deadline wins.
func (m *Machine) Expire(now time.Time) bool {
	if m.state != StateAwaitingExternal || now.Before(m.deadline) {
		return false
	}
	m.abort()
	return true
}

// Cancel aborts any non-finalized attempt and returns to Idle. The cart is
// untouched; that is the controller's call.
func (m *Machine) Cancel() error {
	if m.state == StateIdle {
		return nil
	}
	if m.state == StateFinalized {
		return fmt.Errorf("%w: cannot cancel a finalized payment", ErrInvalidState)
	}
	m.abort()
	return nil
}

// Result returns the settled outcome of a finalized attempt.
func (m *Machine) Result() (Result, error) {
	if m.state != StateFinalized {
		return Result{}, fmt.Errorf("%w: no finalized result in %s", ErrInvalidState, m.state)
	}
	return m.result, nil
}

// Reset returns the machine to Idle after the result has been consumed.
func (m *Machine) Reset() {
	m.abort()
}

func (m *Machine) abort() {
	m.state = StateIdle
	m.method = ""
	m.result = Result{}
	m.deadline = time.Time{}
}
