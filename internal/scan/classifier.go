package scan

import (
	"strings"
	"time"
)

const (
	// windowSize keystroke records are enough to separate a scanner burst
	// from human typing.
	windowSize = 10

	// burstThreshold is the spread between the 3rd-most-recent and the most
	// recent keystroke below which input is classified as scanner-originated.
	burstThreshold = 150 * time.Millisecond

	// idleTimeout clears a partial buffer so a stale half-scan cannot corrupt
	// the next attempt.
	idleTimeout = 250 * time.Millisecond

	// minTokenLength is the shortest buffer accepted as a viable barcode;
	// anything shorter on Enter is treated as an accidental terminator.
	minTokenLength = 4
)

type keystroke struct {
	at       time.Time
	ch       rune
	buffered bool
}

// Classifier decides, per keystroke, whether input belongs to a hardware
// barcode scanner burst or to manual typing, and accumulates scanner input
// into a token emitted on the terminator. It is a pure state machine: all
// timing comes from the caller-supplied timestamps.
//
// Burst classification needs three keystrokes, so when a scan lands on a
// focused text field the leading characters are captured retroactively once
// the burst is recognized.
type Classifier struct {
	window    []keystroke
	buffer    []rune
	lastKey   time.Time
	discarded int
}

func NewClassifier() *Classifier {
	return &Classifier{
		window: make([]keystroke, 0, windowSize),
	}
}

// Key consumes one printable character. inTextField reports whether a text
// control currently holds focus in the host UI. It returns true when the
// character was diverted into the scan buffer and should not reach the
// focused control; the host should also blank the control once Burst turns
// true, since a burst's first characters may already have landed there.
func (c *Classifier) Key(ch rune, at time.Time, inTextField bool) bool {
	c.expireIfIdle(at)

	c.window = append(c.window, keystroke{at: at, ch: ch})
	if len(c.window) > windowSize {
		c.window = c.window[len(c.window)-windowSize:]
	}
	c.lastKey = at

	burst := c.burst(at)
	if !burst && inTextField {
		return false
	}
	if burst {
		c.promote()
	}
	c.buffer = append(c.buffer, ch)
	c.window[len(c.window)-1].buffered = true
	return true
}

// Terminator handles the Enter key. A buffer shorter than the minimum viable
// barcode length is dropped silently; otherwise the trimmed buffer is emitted
// as a completed scan. State is cleared either way.
func (c *Classifier) Terminator(at time.Time) (string, bool) {
	c.expireIfIdle(at)

	token := strings.TrimSpace(string(c.buffer))
	hadInput := len(c.buffer) > 0
	c.reset()

	if len(token) < minTokenLength {
		if hadInput {
			c.discarded++
		}
		return "", false
	}
	return token, true
}

// Burst reports whether the most recent input is currently classified as
// scanner-originated.
func (c *Classifier) Burst(at time.Time) bool {
	if !c.lastKey.IsZero() && at.Sub(c.lastKey) > idleTimeout {
		return false
	}
	return c.burst(at)
}

// Pending returns the number of buffered characters awaiting a terminator.
func (c *Classifier) Pending() int {
	return len(c.buffer)
}

// Discarded returns how many too-short buffers were dropped, for diagnostic
// logging only.
func (c *Classifier) Discarded() int {
	return c.discarded
}

func (c *Classifier) Reset() {
	c.reset()
}

func (c *Classifier) burst(at time.Time) bool {
	if len(c.window) < 3 {
		return false
	}
	return at.Sub(c.window[len(c.window)-3].at) < burstThreshold
}

// promote pulls the burst's leading keystrokes into the buffer: contiguous
// unbuffered characters whose gaps stayed under the burst threshold belong
// to the same scan, not to the operator.
func (c *Classifier) promote() {
	start := len(c.window) - 1
	for start > 0 {
		prev := c.window[start-1]
		if prev.buffered || c.window[start].at.Sub(prev.at) >= burstThreshold {
			break
		}
		start--
	}
	for i := start; i < len(c.window)-1; i++ {
		if c.window[i].buffered {
			continue
		}
		c.buffer = append(c.buffer, c.window[i].ch)
		c.window[i].buffered = true
	}
}

func (c *Classifier) expireIfIdle(at time.Time) {
	if c.lastKey.IsZero() {
		return
	}
	if at.Sub(c.lastKey) > idleTimeout {
		c.reset()
	}
}

func (c *Classifier) reset() {
	c.buffer = c.buffer[:0]
	c.window = c.window[:0]
	c.lastKey = time.Time{}
}
