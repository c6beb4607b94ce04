package scheduler

import (
	"errors"
	"fmt"
	"os"
	"syscall"
)

// InterruptError is the cancellation cause installed when the process
// receives interrupt, terminate or quit. All three are handled the same way.
type InterruptError struct {
	Signal os.Signal
}

// Error implements error.
func (e *InterruptError) Error() string {
	return fmt.Sprintf("sweep interrupted by signal %v", e.Signal)
}

// OSSignal returns the delivered signal. The supervisor uses it to name the
// signal in run logs.
func (e *InterruptError) OSSignal() os.Signal {
	return e.Signal
}

// ExitCode returns the conventional exit status for the signal, 128+n.
func (e *InterruptError) ExitCode() int {
	if sig, ok := e.Signal.(syscall.Signal); ok {
		return 128 + int(sig)
	}
	return 128 + int(syscall.SIGINT)
}

// IsInterrupt reports whether err is or wraps an InterruptError.
func IsInterrupt(err error) bool {
	var ie *InterruptError
	return errors.As(err, &ie)
}
