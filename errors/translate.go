package errors

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	stderrors "errors"
	"io"
	"net"
	"strings"
	"syscall"

	"golang.org/x/net/http2"
)

// Translate maps any error raised below the boundary onto exactly one
// boundary error kind. An *AppError anywhere in the chain is returned as is.
func Translate(err error) *AppError {
	if err == nil {
		return nil
	}
	if appErr, ok := AsAppError(err); ok {
		return appErr
	}

	switch {
	case stderrors.Is(err, context.Canceled):
		return Cancelled().WithCause(err)
	case stderrors.Is(err, context.DeadlineExceeded):
		return Timeout("request").WithCause(err)
	}

	var dnsErr *net.DNSError
	if stderrors.As(err, &dnsErr) {
		return Resolver(dnsErr.Name, err)
	}
	if isTLS(err) {
		return TLS(err)
	}

	var netErr net.Error
	if stderrors.As(err, &netErr) && netErr.Timeout() {
		return Timeout("request").WithCause(err)
	}
	if isProtocol(err) {
		return Protocol(err)
	}
	if isConnection(err) {
		return Connection(err)
	}

	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if stderrors.As(err, &syntaxErr) || stderrors.As(err, &typeErr) {
		return Decode("json", err)
	}

	return Internal(err)
}

func isTLS(err error) bool {
	var (
		recordErr    tls.RecordHeaderError
		alertErr     tls.AlertError
		verifyErr    *tls.CertificateVerificationError
		authorityErr x509.UnknownAuthorityError
		hostnameErr  x509.HostnameError
		invalidErr   x509.CertificateInvalidError
	)
	switch {
	case stderrors.As(err, &recordErr),
		stderrors.As(err, &alertErr),
		stderrors.As(err, &verifyErr),
		stderrors.As(err, &authorityErr),
		stderrors.As(err, &hostnameErr),
		stderrors.As(err, &invalidErr):
		return true
	}
	return strings.Contains(err.Error(), "tls: ")
}

func isProtocol(err error) bool {
	var (
		streamErr http2.StreamError
		connErr   http2.ConnectionError
		goAwayErr http2.GoAwayError
	)
	switch {
	case stderrors.As(err, &streamErr),
		stderrors.As(err, &connErr),
		stderrors.As(err, &goAwayErr),
		stderrors.Is(err, io.ErrUnexpectedEOF):
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "malformed HTTP") ||
		strings.Contains(msg, "stopped after") ||
		strings.Contains(msg, "server gave HTTP response to HTTPS client")
}

func isConnection(err error) bool {
	var opErr *net.OpError
	switch {
	case stderrors.As(err, &opErr),
		stderrors.Is(err, syscall.ECONNREFUSED),
		stderrors.Is(err, syscall.ECONNRESET),
		stderrors.Is(err, syscall.EPIPE),
		stderrors.Is(err, net.ErrClosed),
		stderrors.Is(err, io.EOF):
		return true
	}
	return false
}
