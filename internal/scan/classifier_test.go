package scan

import (
	"testing"
	"time"
)

var t0 = time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

func feed(c *Classifier, s string, start time.Time, gap time.Duration, inTextField bool) time.Time {
	at := start
	for _, ch := range s {
		c.Key(ch, at, inTextField)
		at = at.Add(gap)
	}
	return at
}

func TestScannerBurstEmitsToken(t *testing.T) {
	c := NewClassifier()
	at := feed(c, "8992388123456", t0, 20*time.Millisecond, true)

	token, ok := c.Terminator(at)
	if !ok {
		t.Fatalf("expected burst input to emit a token")
	}
	if token != "8992388123456" {
		t.Fatalf("unexpected token: %s", token)
	}
	if c.Pending() != 0 {
		t.Fatalf("expected buffer cleared after emit, got %d pending", c.Pending())
	}
}

func TestHumanTypingInTextFieldIsNotDiverted(t *testing.T) {
	c := NewClassifier()
	at := t0
	for _, ch := range "abc" {
		if c.Key(ch, at, true) {
			t.Fatalf("slow keystroke %q should not be diverted from a text field", ch)
		}
		at = at.Add(300 * time.Millisecond)
	}
}

func TestAmbiguousInputOutsideTextFieldAccumulates(t *testing.T) {
	c := NewClassifier()
	// Two keystrokes are not enough for burst classification, but focus is
	// not on a text field so they accumulate anyway.
	if !c.Key('1', t0, false) {
		t.Fatalf("expected keystroke outside text field to be buffered")
	}
	if !c.Key('2', t0.Add(40*time.Millisecond), false) {
		t.Fatalf("expected second keystroke to be buffered")
	}
	if c.Pending() != 2 {
		t.Fatalf("expected 2 pending chars, got %d", c.Pending())
	}
}

func TestShortBufferDiscardedSilently(t *testing.T) {
	c := NewClassifier()
	at := feed(c, "123", t0, 20*time.Millisecond, true)

	token, ok := c.Terminator(at)
	if ok || token != "" {
		t.Fatalf("expected too-short buffer to be discarded, got %q", token)
	}
	if c.Discarded() != 1 {
		t.Fatalf("expected 1 discarded scan, got %d", c.Discarded())
	}
}

func TestBareTerminatorEmitsNothing(t *testing.T) {
	c := NewClassifier()
	token, ok := c.Terminator(t0)
	if ok || token != "" {
		t.Fatalf("expected no token from a bare Enter, got %q", token)
	}
	if c.Discarded() != 0 {
		t.Fatalf("a bare Enter is not a discarded scan")
	}
}

func TestIdleTimeoutClearsStalePartialScan(t *testing.T) {
	c := NewClassifier()
	at := feed(c, "89923", t0, 20*time.Millisecond, true)

	// Scanner jammed mid-scan; next attempt starts well past the idle window.
	at = at.Add(400 * time.Millisecond)
	at = feed(c, "8993675123789", at, 20*time.Millisecond, true)

	token, ok := c.Terminator(at)
	if !ok {
		t.Fatalf("expected second scan to emit")
	}
	if token != "8993675123789" {
		t.Fatalf("stale partial scan leaked into token: %s", token)
	}
}

func TestBurstClassification(t *testing.T) {
	c := NewClassifier()
	at := feed(c, "889", t0, 20*time.Millisecond, true)
	if !c.Burst(at) {
		t.Fatalf("expected rapid sequence to classify as burst")
	}

	c.Reset()
	at = feed(c, "889", t0, 400*time.Millisecond, false)
	if c.Burst(at) {
		t.Fatalf("expected slow sequence to classify as manual typing")
	}
}
