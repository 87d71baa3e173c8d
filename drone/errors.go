package drone

import (
	"errors"
	"fmt"
)

var (
	ErrAlreadyConnected = errors.New("session already connected or connecting")
	ErrConnectTimeout   = errors.New("drone did not answer the sdk mode request")
	ErrConnectRejected  = errors.New("drone rejected the sdk mode request")

	// ErrSessionClosed is returned to callers still queued for the command
	// channel when the session goes away.
	ErrSessionClosed = errors.New("session closed")

	// ErrNoPadFix means no mission pad is in view.
	ErrNoPadFix = errors.New("no mission pad detected")
)

// TransportError is a socket failure. It ends the session.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
