// Package loop provides the single-threaded event loop that owns every
// host-visible state transition in nitai.
//
// Work running on other goroutines never touches host state directly. It
// hands a callback to the loop with Post, and the goroutine running the
// loop executes callbacks one at a time in the order they were posted.
// The bridge package settles Tasks this way, so a Task's callbacks never
// race each other.
//
//	l := loop.New()
//	go l.Run(ctx)
//	l.Post(func() { fmt.Println("on the loop") })
//
// Default returns a process-wide loop already running on a background
// goroutine; most callers never create their own.
package loop
