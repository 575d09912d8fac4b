package exchange

import (
	"errors"
	"fmt"
)

var (
	ErrNotConnected   = errors.New("backend is not connected")
	ErrUnknownSymbol  = errors.New("unknown symbol")
	ErrNoPrice        = errors.New("no price available")
	ErrUnknownTrade   = errors.New("unknown trade")
	ErrInvalidRequest = errors.New("invalid trade request")
)

// BackendError is returned by every Backend operation. The cause stays
// reachable through errors.Is and errors.As.
type BackendError struct {
	Op  string
	Err error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("backend %s: %v", e.Op, e.Err)
}

func (e *BackendError) Unwrap() error {
	return e.Err
}

// Wrap returns err as a BackendError for op, or nil when err is nil.
// An error that already is a BackendError is returned unchanged.
func Wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	var be *BackendError
	if errors.As(err, &be) {
		return err
	}
	return &BackendError{Op: op, Err: err}
}
