package connection

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/rickgao/dbn-live/internal/gateway"
)

// Errors
var (
	ErrValidation     = errors.New("validation error")
	ErrAuthentication = errors.New("authentication failed")
	ErrSubscription   = errors.New("subscription failed")
	ErrConnection     = errors.New("connection error")
	ErrServer         = errors.New("server error")
	ErrTimeout        = errors.New("operation timeout")

	ErrDisposed       = fmt.Errorf("%w: client disposed", ErrValidation)
	ErrAlreadyStarted = fmt.Errorf("%w: already started", ErrValidation)
	ErrStopped        = fmt.Errorf("%w: stream stopped", ErrValidation)
)

// Error codes raised by the callback boundary.
const (
	CodeRecordFault          = -999 // record callback failed
	CodeUnknownFault         = -998 // record callback failed without an error value
	CodeMetadataFault        = -997 // metadata callback failed
	CodeMetadataUnknownFault = -996 // metadata callback failed without an error value
)

// Kind classifies an Error.
type Kind int

const (
	KindValidation Kind = iota
	KindAuthentication
	KindSubscription
	KindConnection
	KindServer
	KindTimeout
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindAuthentication:
		return "authentication"
	case KindSubscription:
		return "subscription"
	case KindConnection:
		return "connection"
	case KindServer:
		return "server"
	case KindTimeout:
		return "timeout"
	}
	return "unknown"
}

func (k Kind) sentinel() error {
	switch k {
	case KindValidation:
		return ErrValidation
	case KindAuthentication:
		return ErrAuthentication
	case KindSubscription:
		return ErrSubscription
	case KindServer:
		return ErrServer
	case KindTimeout:
		return ErrTimeout
	}
	return ErrConnection
}

// Error is a transport failure with its classification.
type Error struct {
	Kind    Kind
	Op      string
	Code    int
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s error (code %d): %s", e.Op, e.Kind, e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Kind.sentinel()
}

// Retryable reports whether a reconnect may clear the failure.
func (e *Error) Retryable() bool {
	switch e.Kind {
	case KindConnection, KindServer, KindTimeout:
		return true
	}
	return false
}

// IsRetryable reports whether err is an *Error that is Retryable.
func IsRetryable(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Retryable()
}

var serverStatus = regexp.MustCompile(`\b5\d\d\b`)

// Classify maps a result code and message to an error kind.
func Classify(op string, code int, msg string) Kind {
	lower := strings.ToLower(msg)
	switch {
	case code == gateway.CodeInvalidArgument:
		return KindValidation
	case code == gateway.CodeTimeout:
		return KindTimeout
	case strings.Contains(lower, "auth"),
		strings.Contains(lower, "api key"),
		strings.Contains(lower, "credential"):
		return KindAuthentication
	case strings.HasPrefix(op, "subscribe"), op == "resubscribe":
		return KindSubscription
	case strings.Contains(lower, "server error"), serverStatus.MatchString(lower):
		return KindServer
	}
	return KindConnection
}

// Translate converts a transport error into an *Error. Context errors pass
// through untouched.
func Translate(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}

	var ce *gateway.CodeError
	if errors.As(err, &ce) {
		return &Error{
			Kind:    Classify(op, ce.Code, ce.Message),
			Op:      op,
			Code:    ce.Code,
			Message: ce.Message,
		}
	}
	return &Error{
		Kind:    Classify(op, gateway.CodeGatewayError, err.Error()),
		Op:      op,
		Code:    gateway.CodeGatewayError,
		Message: err.Error(),
	}
}

// CallbackError builds the error reported through the error callback.
func CallbackError(msg string, code int) *Error {
	return &Error{
		Kind:    Classify("callback", code, msg),
		Op:      "callback",
		Code:    code,
		Message: msg,
	}
}
