// Package ws wraps an established WebSocket connection in a Session.
//
// A Session owns two goroutines: a reader that moves inbound frames into a
// bounded inbox, and a writer that performs queued sends. Host code talks to
// them through commands that return bridge Tasks, so a send or receive
// never blocks the loop goroutine.
//
// The Session is released exactly once, by Close, by a close frame from the
// peer, by a read failure, or by the garbage collector once the Session is
// unreachable. Release closes the connection and returns its pool lease.
// After release every command fails with ALREADY_CLOSED.
package ws
