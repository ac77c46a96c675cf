package payment

import (
	"errors"
	"testing"
	"time"

	"smartpos/engine/internal/domain"
)

var start = time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

func breakdown(total int64) domain.PricingBreakdown {
	return domain.PricingBreakdown{SubtotalCents: total, TotalCents: total}
}

func TestCashHappyPath(t *testing.T) {
	m := NewMachine()
	if err := m.BeginCash(breakdown(750000), 2, 1000000); err != nil {
		t.Fatalf("begin cash: %v", err)
	}
	if m.State() != StateValidating {
		t.Fatalf("expected validating, got %s", m.State())
	}
	if err := m.CompleteCash(); err != nil {
		t.Fatalf("complete cash: %v", err)
	}

	res, err := m.Result()
	if err != nil {
		t.Fatalf("result: %v", err)
	}
	if res.Method != domain.PaymentMethodCash {
		t.Fatalf("unexpected method %s", res.Method)
	}
	if res.ChangeCents != 250000 {
		t.Fatalf("expected change 250000, got %d", res.ChangeCents)
	}
}

func TestCashEmptyCartStaysIdle(t *testing.T) {
	m := NewMachine()
	if err := m.BeginCash(breakdown(0), 0, 500); !errors.Is(err, ErrEmptyCart) {
		t.Fatalf("expected ErrEmptyCart, got %v", err)
	}
	if m.State() != StateIdle {
		t.Fatalf("empty cart must not leave idle, got %s", m.State())
	}
}

func TestCashInsufficientTenderAllowsRetry(t *testing.T) {
	m := NewMachine()
	err := m.BeginCash(breakdown(750000), 2, 500000)
	if !errors.Is(err, ErrInsufficientTender) {
		t.Fatalf("expected ErrInsufficientTender, got %v", err)
	}
	if m.State() != StateMethodSelected {
		t.Fatalf("expected method-selected for retry, got %s", m.State())
	}

	// Corrected amount goes through without re-picking the method.
	if err := m.BeginCash(breakdown(750000), 2, 750000); err != nil {
		t.Fatalf("retry with exact tender: %v", err)
	}
	if err := m.CompleteCash(); err != nil {
		t.Fatalf("complete: %v", err)
	}
	res, _ := m.Result()
	if res.ChangeCents != 0 {
		t.Fatalf("exact tender must yield zero change, got %d", res.ChangeCents)
	}
}

func TestQRISConfirmBeforeDeadline(t *testing.T) {
	m := NewMachine()
	ref, err := m.BeginQRIS(breakdown(1200000), 3, start, 5*time.Minute)
	if err != nil {
		t.Fatalf("begin qris: %v", err)
	}
	if ref == "" {
		t.Fatalf("expected a payment reference")
	}

	if got := m.SecondsRemaining(start.Add(90 * time.Second)); got != 210 {
		t.Fatalf("expected 210s remaining, got %d", got)
	}
	if m.Expire(start.Add(90 * time.Second)) {
		t.Fatalf("must not expire before the deadline")
	}

	if err := m.ConfirmExternal(); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	res, err := m.Result()
	if err != nil {
		t.Fatalf("result: %v", err)
	}
	if res.ReferenceID != ref {
		t.Fatalf("result reference mismatch: %s vs %s", res.ReferenceID, ref)
	}
	if res.TenderedCents != 1200000 || res.ChangeCents != 0 {
		t.Fatalf("qris settles at exactly the total: %+v", res)
	}
}

func TestQRISExpiry(t *testing.T) {
	m := NewMachine()
	if _, err := m.BeginQRIS(breakdown(1200000), 3, start, 5*time.Minute); err != nil {
		t.Fatalf("begin qris: %v", err)
	}

	if !m.Expire(start.Add(5 * time.Minute)) {
		t.Fatalf("expected expiry at the deadline")
	}
	if m.State() != StateIdle {
		t.Fatalf("expired attempt must return to idle, got %s", m.State())
	}
	if err := m.ConfirmExternal(); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("late confirmation must be rejected, got %v", err)
	}
}

func TestQRISEmptyCart(t *testing.T) {
	m := NewMachine()
	if _, err := m.BeginQRIS(breakdown(0), 0, start, 5*time.Minute); !errors.Is(err, ErrEmptyCart) {
		t.Fatalf("expected ErrEmptyCart, got %v", err)
	}
}

func TestCancelPendingAttempt(t *testing.T) {
	m := NewMachine()
	if _, err := m.BeginQRIS(breakdown(500000), 1, start, 5*time.Minute); err != nil {
		t.Fatalf("begin qris: %v", err)
	}
	if err := m.Cancel(); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if m.State() != StateIdle {
		t.Fatalf("expected idle after cancel, got %s", m.State())
	}

	// A fresh attempt after cancel is allowed.
	if err := m.BeginCash(breakdown(500000), 1, 500000); err != nil {
		t.Fatalf("cash after cancel: %v", err)
	}
}

func TestCancelFinalizedRejected(t *testing.T) {
	m := NewMachine()
	m.BeginCash(breakdown(100), 1, 100)
	m.CompleteCash()
	if err := m.Cancel(); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState, got %v", err)
	}
}

func TestGuardedTransitions(t *testing.T) {
	m := NewMachine()
	if err := m.CompleteCash(); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("complete from idle must fail, got %v", err)
	}
	if err := m.ConfirmExternal(); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("confirm from idle must fail, got %v", err)
	}
	if _, err := m.Result(); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("result from idle must fail, got %v", err)
	}

	m.BeginCash(breakdown(100), 1, 100)
	if _, err := m.BeginQRIS(breakdown(100), 1, start, time.Minute); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("qris over a validating cash attempt must fail, got %v", err)
	}
}

func TestResetAfterResultConsumed(t *testing.T) {
	m := NewMachine()
	m.BeginCash(breakdown(100), 1, 200)
	m.CompleteCash()
	m.Reset()
	if m.State() != StateIdle {
		t.Fatalf("expected idle after reset, got %s", m.State())
	}
	if _, err := m.Result(); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("result must be cleared by reset, got %v", err)
	}
}
