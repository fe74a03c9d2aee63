package errors

import (
	"context"
	"crypto/x509"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"net"
	"strings"
	"syscall"
	"testing"

	"golang.org/x/net/http2"
)

func TestAppError_New_Retryable(t *testing.T) {
	tests := []struct {
		code      ErrorCode
		retryable bool
	}{
		{ErrCodeConnection, true},
		{ErrCodeTimeout, true},
		{ErrCodeResolver, true},
		{ErrCodeTLS, false},
		{ErrCodeCancelled, false},
		{ErrCodeInternal, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			if got := New(tt.code, "x").Retryable; got != tt.retryable {
				t.Errorf("expected retryable=%v for %s, got %v", tt.retryable, tt.code, got)
			}
		})
	}
}

func TestAppError_ErrorString(t *testing.T) {
	err := Internal(fmt.Errorf("boom"))
	if !strings.Contains(err.Error(), "INTERNAL_ERROR") || !strings.Contains(err.Error(), "boom") {
		t.Errorf("unexpected error string: %q", err.Error())
	}
	if got := AlreadyClosed("response").Error(); got != "ALREADY_CLOSED: response is already closed" {
		t.Errorf("unexpected error string: %q", got)
	}
}

func TestAppError_IsMatchesByCode(t *testing.T) {
	wrapped := fmt.Errorf("read: %w", Cancelled())
	if !stderrors.Is(wrapped, Cancelled()) {
		t.Error("expected errors.Is to match by code")
	}
	if stderrors.Is(wrapped, AlreadyClosed("x")) {
		t.Error("expected different codes not to match")
	}
}

func TestAppError_Unwrap(t *testing.T) {
	cause := fmt.Errorf("root")
	err := Connection(cause)
	if stderrors.Unwrap(err) != cause {
		t.Error("expected Unwrap to return cause")
	}
}

func TestAppError_WithDetails(t *testing.T) {
	err := New(ErrCodeProtocol, "bad frame").
		WithDetails(map[string]any{"frame": "text"}).
		WithDetail("opcode", 1).
		WithStatus(1002)
	if err.Details["frame"] != "text" || err.Details["opcode"] != 1 {
		t.Errorf("unexpected details: %v", err.Details)
	}
	if err.StatusCode != 1002 {
		t.Errorf("expected status 1002, got %d", err.StatusCode)
	}
}

func TestIdentity(t *testing.T) {
	seen := make(map[string]ErrorCode)
	for _, code := range Codes() {
		id := code.Identity()
		if !strings.HasPrefix(id, "ERR_NITAI_") {
			t.Errorf("identity %q of %s lacks prefix", id, code)
		}
		if prev, dup := seen[id]; dup {
			t.Errorf("identity %q shared by %s and %s", id, prev, code)
		}
		seen[id] = code
	}
	if ErrorCode("UNKNOWN").Identity() != "ERR_NITAI_INTERNAL" {
		t.Error("expected unknown codes to map to internal identity")
	}
	if ReadInProgress().Identity() != "ERR_NITAI_READ_IN_PROGRESS" {
		t.Errorf("unexpected identity %q", ReadInProgress().Identity())
	}
}

func TestConstructors(t *testing.T) {
	if e := InvalidArgument("header", "contains newline"); e.Details["field"] != "header" {
		t.Errorf("expected field detail, got %v", e.Details)
	}
	if e := InvalidArgument("", "bad"); e.Details != nil {
		t.Errorf("expected no details for empty field, got %v", e.Details)
	}
	if e := Resolver("example.invalid", nil); e.Details["host"] != "example.invalid" {
		t.Errorf("expected host detail, got %v", e.Details)
	}
	if e := Decode("json", nil); e.Code != ErrCodeDecode {
		t.Errorf("expected DECODE_ERROR, got %s", e.Code)
	}
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestTranslate(t *testing.T) {
	var syntaxErr error
	var v any
	syntaxErr = json.Unmarshal([]byte("{"), &v)

	tests := []struct {
		name string
		err  error
		want ErrorCode
	}{
		{"context canceled", context.Canceled, ErrCodeCancelled},
		{"wrapped deadline", fmt.Errorf("get: %w", context.DeadlineExceeded), ErrCodeTimeout},
		{"dns", &net.DNSError{Err: "no such host", Name: "nope.invalid", IsNotFound: true}, ErrCodeResolver},
		{"x509 authority", x509.UnknownAuthorityError{}, ErrCodeTLS},
		{"tls message", fmt.Errorf("remote error: tls: handshake failure"), ErrCodeTLS},
		{"net timeout", &net.OpError{Op: "read", Net: "tcp", Err: timeoutErr{}}, ErrCodeTimeout},
		{"refused", &net.OpError{Op: "dial", Net: "tcp", Err: syscall.ECONNREFUSED}, ErrCodeConnection},
		{"reset", fmt.Errorf("read: %w", syscall.ECONNRESET), ErrCodeConnection},
		{"eof", io.EOF, ErrCodeConnection},
		{"unexpected eof", io.ErrUnexpectedEOF, ErrCodeProtocol},
		{"malformed", fmt.Errorf("net/http: malformed HTTP response \"xx\""), ErrCodeProtocol},
		{"http2 stream", http2.StreamError{StreamID: 1, Code: http2.ErrCodeProtocol}, ErrCodeProtocol},
		{"json", syntaxErr, ErrCodeDecode},
		{"unknown", fmt.Errorf("something odd"), ErrCodeInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Translate(tt.err)
			if got == nil {
				t.Fatal("expected translated error")
			}
			if got.Code != tt.want {
				t.Errorf("expected %s, got %s (%v)", tt.want, got.Code, got)
			}
			if got.Cause == nil && tt.want != ErrCodeInternal {
				t.Error("expected cause to be preserved")
			}
		})
	}
}

func TestTranslate_NilAndPassthrough(t *testing.T) {
	if Translate(nil) != nil {
		t.Error("expected nil for nil error")
	}
	orig := ReadInProgress()
	if got := Translate(fmt.Errorf("wrap: %w", orig)); got != orig {
		t.Errorf("expected AppError passthrough, got %v", got)
	}
}

func TestIsHelpers(t *testing.T) {
	checks := []struct {
		name string
		fn   func(error) bool
		err  error
	}{
		{"connection", IsConnection, Connection(nil)},
		{"timeout", IsTimeout, Timeout("recv")},
		{"tls", IsTLS, TLS(nil)},
		{"resolver", IsResolver, Resolver("h", nil)},
		{"protocol", IsProtocol, Protocol(nil)},
		{"cancelled", IsCancelled, Cancelled()},
		{"closed", IsAlreadyClosed, AlreadyClosed("session")},
		{"read in progress", IsReadInProgress, ReadInProgress()},
	}
	for _, c := range checks {
		if !c.fn(fmt.Errorf("ctx: %w", c.err)) {
			t.Errorf("%s: expected helper to match", c.name)
		}
		if c.fn(fmt.Errorf("plain")) {
			t.Errorf("%s: expected helper not to match plain error", c.name)
		}
	}
	if !IsRetryable(Timeout("x")) || IsRetryable(Cancelled()) {
		t.Error("unexpected retryable classification")
	}
	if CodeOf(fmt.Errorf("plain")) != "" {
		t.Error("expected empty code for plain error")
	}
}
