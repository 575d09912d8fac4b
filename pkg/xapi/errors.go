package xapi

import (
	"errors"
	"fmt"
	"net"
	"strconv"
)

var (
	ErrCommunication    = errors.New("communication error")
	ErrNotConnected     = errors.New("transport is not connected")
	ErrUnknownCode      = errors.New("unknown code")
	ErrTooManyRedirects = errors.New("too many redirects")
)

// CommunicationError covers every transport, framing and parse failure.
// errors.Is(err, ErrCommunication) holds for all of them.
type CommunicationError struct {
	Op  string
	Err error
}

func (e *CommunicationError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrCommunication, e.Op, e.Err)
}

func (e *CommunicationError) Unwrap() []error {
	return []error{ErrCommunication, e.Err}
}

func communicationError(op string, err error) error {
	var ce *CommunicationError
	if errors.As(err, &ce) {
		return err
	}
	return &CommunicationError{Op: op, Err: err}
}

// APIError is a well-formed response with status=false.
type APIError struct {
	Code        string
	Description string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %s: %s", e.Code, e.Description)
}

// RedirectError instructs the caller to reconnect elsewhere and reissue the command.
type RedirectError struct {
	Address       string
	MainPort      int
	StreamingPort int
}

func (e *RedirectError) Error() string {
	return "redirect to " + net.JoinHostPort(e.Address, strconv.Itoa(e.MainPort))
}

func newAPIError(code, description string) *APIError {
	if description == "" {
		description = ErrorDescription(code)
	}
	return &APIError{Code: code, Description: description}
}
