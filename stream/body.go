package stream

import (
	"io"
	"iter"
	"sync"
	"sync/atomic"

	"github.com/kbukum/nitai/errors"
)

// Body turns seq into a request body. Items are pulled one at a time, only
// when the transport has consumed the previous one. A non-nil error from
// seq fails the body read with that error. seq does not start until the
// first Read, so a body closed before it is sent never runs it.
func Body(seq iter.Seq2[[]byte, error]) io.ReadCloser {
	return &seqBody{seq: seq}
}

// Chunks is Body for a sequence that cannot fail.
func Chunks(seq iter.Seq[[]byte]) io.ReadCloser {
	return Body(func(yield func([]byte, error) bool) {
		for chunk := range seq {
			if !yield(chunk, nil) {
				return
			}
		}
	})
}

type seqBody struct {
	mu     sync.Mutex
	seq    iter.Seq2[[]byte, error]
	next   func() ([]byte, error, bool)
	stop   func()
	buf    []byte
	err    error
	closed atomic.Bool
}

func (b *seqBody) Read(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for len(b.buf) == 0 {
		if b.closed.Load() {
			b.halt()
			return 0, errors.AlreadyClosed("request body")
		}
		if b.err != nil {
			return 0, b.err
		}
		if b.next == nil {
			b.next, b.stop = iter.Pull2(b.seq)
		}
		chunk, err, ok := b.next()
		if b.closed.Load() {
			b.halt()
			return 0, errors.AlreadyClosed("request body")
		}
		switch {
		case !ok:
			b.err = io.EOF
		case err != nil:
			b.err = err
			b.halt()
		default:
			b.buf = chunk
		}
	}
	n := copy(p, b.buf)
	b.buf = b.buf[n:]
	return n, nil
}

// Close stops the sequence. When a Read is blocked inside the sequence the
// stop happens as soon as that Read returns.
func (b *seqBody) Close() error {
	if !b.closed.CompareAndSwap(false, true) {
		return nil
	}
	if b.mu.TryLock() {
		b.halt()
		b.mu.Unlock()
	}
	return nil
}

// halt stops a started sequence. Callers hold mu.
func (b *seqBody) halt() {
	if b.stop != nil {
		b.stop()
	}
}
