package stream

import (
	"context"
	"io"

	"github.com/kbukum/nitai/loop"
)

// DefaultChunkSize is the largest chunk a byte stream delivers at once.
const DefaultChunkSize = 32 << 10

type byteSource struct {
	body io.ReadCloser
	size int
	eof  bool
}

func (s *byteSource) Next(_ context.Context) ([]byte, error) {
	if s.eof {
		return nil, io.EOF
	}
	buf := make([]byte, s.size)
	for {
		n, err := s.body.Read(buf)
		if err == io.EOF {
			s.eof = true
			if n > 0 {
				return buf[:n], nil
			}
			return nil, io.EOF
		}
		if n > 0 || err != nil {
			return buf[:n], err
		}
	}
}

func (s *byteSource) Close() error { return s.body.Close() }

// Bytes streams body in chunks of at most size bytes. A size of zero or less
// uses DefaultChunkSize.
func Bytes(l *loop.Loop, body io.ReadCloser, size int, onFinish func(via string)) *Reader[[]byte] {
	if size <= 0 {
		size = DefaultChunkSize
	}
	return NewReader[[]byte](l, &byteSource{body: body, size: size}, onFinish)
}
