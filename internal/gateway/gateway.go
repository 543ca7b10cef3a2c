package gateway

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/rickgao/dbn-live/internal/dbn"
)

// Result codes reported by the transport.
const (
	CodeOK              = 0
	CodeGatewayError    = -1
	CodeInvalidArgument = -2
	CodeNotConnected    = -3
	CodeTimeout         = -4
)

// DefaultStopTimeout bounds StopAndWait when no timeout is given.
const DefaultStopTimeout = 10 * time.Second

// CodeError is a non-zero transport result with its error text.
type CodeError struct {
	Code    int
	Message string
}

func (e *CodeError) Error() string {
	return fmt.Sprintf("gateway error %d: %s", e.Code, e.Message)
}

// UpgradePolicy controls whether older DBN versions are upgraded by the
// gateway before delivery.
type UpgradePolicy uint8

const (
	UpgradeAsIs UpgradePolicy = iota
	UpgradeToV3
)

func (p UpgradePolicy) String() string {
	if p == UpgradeAsIs {
		return "as_is"
	}
	return "upgrade"
}

// Config holds the session parameters fixed at creation.
type Config struct {
	APIKey            string
	Dataset           string
	SendTsOut         bool
	UpgradePolicy     UpgradePolicy
	HeartbeatInterval time.Duration
}

// Request identifies what to subscribe to.
type Request struct {
	Dataset string
	Schema  dbn.Schema
	STypeIn dbn.SType
	Symbols []string
}

// Callbacks receive session output. They are invoked on a goroutine owned
// by the Session and must not call back into it.
type Callbacks struct {
	Metadata func(data []byte)
	Record   func(data []byte, rtype uint8)
	Error    func(msg string, code int)
}

// StopResult is the outcome of StopAndWait.
type StopResult int

const (
	StopOK      StopResult = 0
	StopTimeout StopResult = 1
)

// Session is one gateway session.
type Session interface {
	Subscribe(ctx context.Context, req Request) error
	SubscribeWithReplay(ctx context.Context, req Request, startNanos uint64) error
	SubscribeWithSnapshot(ctx context.Context, req Request) error

	// StartEx starts the stream and blocks until Stop, a connection drop, or
	// ctx is done. A nil return means the stream was stopped.
	StartEx(ctx context.Context, cb Callbacks) error

	Stop()
	StopAndWait(timeout time.Duration) (StopResult, error)

	Reconnect(ctx context.Context) error
	Resubscribe(ctx context.Context) error

	// Destroy releases the session. It is safe to call more than once.
	Destroy()
}

// Dialer creates sessions.
type Dialer interface {
	Create(ctx context.Context, cfg Config) (Session, error)
}

func (r Request) equal(o Request) bool {
	return r.Dataset == o.Dataset &&
		r.Schema == o.Schema &&
		r.STypeIn == o.STypeIn &&
		slices.Equal(r.Symbols, o.Symbols)
}

// ValidateRequest applies the checks every transport performs before
// sending a subscription.
func ValidateRequest(req Request) error {
	if req.Dataset == "" {
		return &CodeError{Code: CodeInvalidArgument, Message: "dataset cannot be empty"}
	}
	if len(req.Symbols) == 0 {
		return &CodeError{Code: CodeInvalidArgument, Message: "symbols cannot be empty"}
	}
	return nil
}
