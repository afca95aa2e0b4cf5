package provider

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindConfiguration   Kind = "configuration"
	KindValidation      Kind = "validation"
	KindOAuth           Kind = "oauth"
	KindUnsupported     Kind = "unsupported_operation"
	KindTransient       Kind = "transient"
	KindMediaProcessing Kind = "media_processing"
	KindMediaTimeout    Kind = "media_timeout"
	KindPlatform        Kind = "platform"
)

// Sentinels for errors.Is. Every *Error matches the sentinel of its Kind.
var (
	ErrUnsupportedProvider  = errors.New("unsupported provider")
	ErrValidation           = errors.New("validation failed")
	ErrOAuth                = errors.New("oauth failed")
	ErrUnsupportedOperation = errors.New("operation not supported")
	ErrTransient            = errors.New("transient upstream failure")
	ErrMediaProcessing      = errors.New("media processing failed")
	ErrMediaTimeout         = errors.New("media processing timeout")
	ErrPlatform             = errors.New("platform rejected request")
)

var kindSentinels = map[Kind]error{
	KindConfiguration:   ErrUnsupportedProvider,
	KindValidation:      ErrValidation,
	KindOAuth:           ErrOAuth,
	KindUnsupported:     ErrUnsupportedOperation,
	KindTransient:       ErrTransient,
	KindMediaProcessing: ErrMediaProcessing,
	KindMediaTimeout:    ErrMediaTimeout,
	KindPlatform:        ErrPlatform,
}

// Error is the error type returned by every provider operation.
//
// Message is short and safe to show to end users. Code is a stable machine
// readable identifier. Remediation carries longer troubleshooting steps for
// account or app misconfiguration and is kept out of Error().
type Error struct {
	Kind        Kind
	Provider    Name
	Op          string
	Code        string
	Message     string
	Remediation string
	Err         error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Provider != "" {
		msg = string(e.Provider) + ": " + msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	return kindSentinels[e.Kind] == target
}

// KindOf returns the kind of a provider error, or "" for foreign errors.
func KindOf(err error) Kind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return ""
}

// AsError extracts the provider error from a chain.
func AsError(err error) (*Error, bool) {
	var pe *Error
	ok := errors.As(err, &pe)
	return pe, ok
}

// IsRetryable reports whether a failed attempt may succeed when repeated
// with the same input. Validation, OAuth and unsupported failures never are.
func IsRetryable(err error) bool {
	switch KindOf(err) {
	case KindTransient, KindMediaTimeout:
		return true
	}
	return false
}

func unsupportedProvider(name string) *Error {
	return &Error{
		Kind:    KindConfiguration,
		Code:    "unsupported_provider",
		Message: fmt.Sprintf("provider %q is not supported", name),
	}
}

func validationError(p Name, code, format string, args ...any) *Error {
	return &Error{
		Kind:     KindValidation,
		Provider: p,
		Op:       "publish",
		Code:     code,
		Message:  fmt.Sprintf(format, args...),
	}
}

func oauthError(p Name, code, message string, err error) *Error {
	return &Error{
		Kind:     KindOAuth,
		Provider: p,
		Op:       "handle_callback",
		Code:     code,
		Message:  message,
		Err:      err,
	}
}

func unsupportedOperation(p Name, op, message string) *Error {
	return &Error{
		Kind:     KindUnsupported,
		Provider: p,
		Op:       op,
		Code:     op + "_unsupported",
		Message:  message,
	}
}
