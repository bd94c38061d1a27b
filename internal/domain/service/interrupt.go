package service

import (
	"os"
	"time"

	"go.uber.org/zap"
	"golang.org/x/term"
)

const interruptByte = 0x1B // ESC

// InterruptDetector performs a non-blocking poll of stdin for the
// cancel key, called at three points in a turn: before each model
// call, after streaming completes, and between individual tool
// executions (§4.10).
type InterruptDetector struct {
	fd     int
	logger *zap.Logger
}

// NewInterruptDetector binds the detector to stdin. If stdin is not a
// terminal, Poll always returns false (non-interactive runs — e.g.
// tests, CI, piped input — never interrupt).
func NewInterruptDetector(logger *zap.Logger) *InterruptDetector {
	return &InterruptDetector{fd: int(os.Stdin.Fd()), logger: logger}
}

// Poll puts the terminal in raw mode momentarily, reads a single byte with an
// effectively zero timeout, and restores the previous terminal mode.
// A byte equal to ESC constitutes an interrupt.
func (d *InterruptDetector) Poll() bool {
	if !term.IsTerminal(d.fd) {
		return false
	}

	prevState, err := term.MakeRaw(d.fd)
	if err != nil {
		return false
	}
	defer term.Restore(d.fd, prevState)

	buf := make([]byte, 1)
	done := make(chan int, 1)
	go func() {
		n, _ := os.Stdin.Read(buf)
		done <- n
	}()

	select {
	case n := <-done:
		return n > 0 && buf[0] == interruptByte
	case <-time.After(5 * time.Millisecond):
		return false
	}
}
