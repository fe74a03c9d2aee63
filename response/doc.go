// Package response holds received HTTP responses until their body has been
// consumed or released.
//
// A Response moves through unconsumed, reading and consumed, and is
// released exactly once whichever way it gets there: a completed read,
// Close, cancellation of the read Task, or the garbage collector finding
// the Response unreachable. Every path returns the pool lease and closes
// the body through the same compare-and-set, so the lease is never leaked
// and never returned twice.
//
// Close during a read releases at once. The in-flight read then rejects
// with CANCELLED instead of returning data.
package response
