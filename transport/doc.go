// Package transport is the protocol layer under the client: it sends HTTP
// requests, dials WebSocket sessions and resolves host names.
//
// Issue returns once response headers arrive. The body is left open in the
// returned State and stays valid until CloseBody, independent of the
// context that issued the request; that context only bounds the wait for
// headers. A Transport combines:
//
//   - protocol selection: automatic (HTTP/2 over TLS when offered), HTTP/1
//     only, or HTTP/2 only with prior-knowledge h2c for plain http URLs
//   - a shared Resolver used by every dial
//   - proxies, local address binding and a public-suffix aware cookie jar
//   - optional retry, circuit breaker and rate limiting from package resilience
//   - a client span per request and per dial
//
// Every error leaving this package is an *errors.AppError.
package transport
