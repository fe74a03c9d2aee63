// Package errors defines the error kinds visible to callers of nitai and the
// translator that maps transport, TLS, resolver and context failures onto them.
//
// Every failure surfaced through a Task rejection is an *AppError whose Code is
// one of a fixed set of kinds. Translate is total: unrecognized errors become
// INTERNAL_ERROR rather than being dropped.
//
//	resp, err := task.Await(ctx)
//	if errors.IsTimeout(err) {
//	    // retry with a longer deadline
//	}
package errors
