package connection

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/rickgao/dbn-live/internal/gateway"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		op   string
		code int
		msg  string
		want Kind
	}{
		{"invalid argument", "subscribe", gateway.CodeInvalidArgument, "symbols cannot be empty", KindValidation},
		{"timeout code", "start", gateway.CodeTimeout, "start timed out", KindTimeout},
		{"auth failure", "create", gateway.CodeGatewayError, "authentication failed: 401 Unauthorized", KindAuthentication},
		{"api key", "create", gateway.CodeGatewayError, "Invalid API key", KindAuthentication},
		{"credentials", "start", gateway.CodeGatewayError, "bad credentials", KindAuthentication},
		{"subscribe op", "subscribe", gateway.CodeGatewayError, "symbol not found", KindSubscription},
		{"replay op", "subscribe_replay", gateway.CodeGatewayError, "start too early", KindSubscription},
		{"resubscribe op", "resubscribe", gateway.CodeGatewayError, "rejected", KindSubscription},
		{"server status", "create", gateway.CodeGatewayError, "connect: server error 503: bad handshake", KindServer},
		{"bare 5xx", "start", gateway.CodeGatewayError, "HTTP 502 from gateway", KindServer},
		{"4xx is not server", "start", gateway.CodeGatewayError, "HTTP 404", KindConnection},
		{"callback fault", "callback", CodeRecordFault, "index out of range", KindConnection},
		{"default", "reconnect", gateway.CodeGatewayError, "connection reset by peer", KindConnection},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.op, tt.code, tt.msg); got != tt.want {
				t.Errorf("Classify(%q, %d, %q) = %v, want %v", tt.op, tt.code, tt.msg, got, tt.want)
			}
		})
	}
}

func TestTranslate(t *testing.T) {
	t.Run("nil", func(t *testing.T) {
		if err := Translate("start", nil); err != nil {
			t.Errorf("Translate(nil) = %v, want nil", err)
		}
	})

	t.Run("context errors pass through", func(t *testing.T) {
		for _, in := range []error{context.Canceled, fmt.Errorf("wrapped: %w", context.DeadlineExceeded)} {
			if got := Translate("start", in); got != in {
				t.Errorf("Translate(%v) = %v, want unchanged", in, got)
			}
		}
	})

	t.Run("code error", func(t *testing.T) {
		err := Translate("subscribe", &gateway.CodeError{Code: -1, Message: "unknown dataset"})

		var e *Error
		if !errors.As(err, &e) {
			t.Fatalf("Translate() = %T, want *Error", err)
		}
		if e.Kind != KindSubscription || e.Code != -1 || e.Op != "subscribe" {
			t.Errorf("Translate() = %+v", e)
		}
		if !errors.Is(err, ErrSubscription) {
			t.Error("errors.Is(err, ErrSubscription) = false")
		}
		if e.Retryable() {
			t.Error("subscription errors should not be retryable")
		}
	})

	t.Run("plain error", func(t *testing.T) {
		err := Translate("reconnect", errors.New("dial tcp: connection refused"))
		if !errors.Is(err, ErrConnection) {
			t.Errorf("Translate() = %v, want ErrConnection", err)
		}
		if !IsRetryable(err) {
			t.Error("connection errors should be retryable")
		}
	})

	t.Run("already translated", func(t *testing.T) {
		in := &Error{Kind: KindServer, Op: "start", Code: -1, Message: "503"}
		if got := Translate("reconnect", fmt.Errorf("x: %w", in)); !errors.Is(got, ErrServer) {
			t.Errorf("Translate() = %v, want ErrServer", got)
		}
	})
}

func TestSentinels(t *testing.T) {
	if !errors.Is(ErrDisposed, ErrValidation) {
		t.Error("ErrDisposed should wrap ErrValidation")
	}
	if !errors.Is(ErrAlreadyStarted, ErrValidation) {
		t.Error("ErrAlreadyStarted should wrap ErrValidation")
	}
	if IsRetryable(ErrAlreadyStarted) {
		t.Error("validation errors are not retryable")
	}
}

func TestError_Retryable(t *testing.T) {
	for k, want := range map[Kind]bool{
		KindValidation:     false,
		KindAuthentication: false,
		KindSubscription:   false,
		KindConnection:     true,
		KindServer:         true,
		KindTimeout:        true,
	} {
		e := &Error{Kind: k}
		if got := e.Retryable(); got != want {
			t.Errorf("%v.Retryable() = %v, want %v", k, got, want)
		}
		if !errors.Is(e, k.sentinel()) {
			t.Errorf("%v does not match its sentinel", k)
		}
	}
}

func TestCallbackError(t *testing.T) {
	e := CallbackError("Unknown exception in record callback", CodeUnknownFault)
	if e.Code != CodeUnknownFault || e.Op != "callback" {
		t.Errorf("CallbackError() = %+v", e)
	}
	want := "callback: connection error (code -998): Unknown exception in record callback"
	if e.Error() != want {
		t.Errorf("Error() = %q, want %q", e.Error(), want)
	}
}
