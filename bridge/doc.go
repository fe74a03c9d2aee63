// Package bridge turns work running on goroutines into Tasks settled on a
// loop.Loop.
//
// Schedule starts fn on its own goroutine and returns immediately. When fn
// returns, its result is handed to the loop, and only the loop goroutine
// writes the Task's result slot and runs its callbacks. Results therefore
// reach callers in completion order, never issue order.
//
//	task := bridge.Schedule(l, ctx, func(ctx context.Context) (*response.Response, error) {
//	    return fetch(ctx)
//	}, (*response.Response).Discard)
//	task.Then(func(r *response.Response) { ... }, func(err error) { ... })
//
// Cancel is cooperative: it cancels the context passed to fn and marks the
// Task. If fn still produces a value, the release function passed to
// Schedule receives it before the Task rejects with CANCELLED, so nothing
// produced for a cancelled Task leaks. A panic inside fn rejects the Task
// with INTERNAL_ERROR instead of crashing the process.
package bridge
