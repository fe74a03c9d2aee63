// Package pool tracks connection slots shared by every client configured
// with the same pool key.
//
// A Pool bounds the number of responses and sessions holding a connection at
// once. Each one holds a Lease, and releasing the Lease returns the slot.
// Available reports the free slots and is the pool health checked by tests:
// after every resource is released it is back at Size.
//
// Pools are process-scoped and reference counted through a Registry:
//
//	p := pool.Shared().Retain(pool.Config{Key: "default", Size: 64})
//	defer pool.Shared().Drop(ctx, "default")
//
// The first Retain for a key creates the pool. The last Drop shuts it down and
// closes idle connections of every transport attached to it.
package pool
