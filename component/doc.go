// Package component defines the lifecycle contract of nitai's long-lived
// pieces: the host event loop, the connection pools and the clients.
//
// Lazy builds a value on first use and disposes of it on Reset; the
// package-level client functions keep their default Client in one.
package component
