package response

import (
	"context"
	"encoding/json"
	"io"
	"mime"
	"runtime"
	"strings"

	"golang.org/x/net/html/charset"

	"github.com/kbukum/nitai/bridge"
	"github.com/kbukum/nitai/errors"
	"github.com/kbukum/nitai/observability"
	"github.com/kbukum/nitai/stream"
)

// claim moves the body from unconsumed to reading.
func (h *handle) claim() error {
	if h.released.Load() {
		return errors.AlreadyClosed("response")
	}
	if !h.consumed.CompareAndSwap(stateUnconsumed, stateReading) {
		if h.consumed.Load() == stateReading {
			return errors.ReadInProgress()
		}
		return errors.AlreadyClosed("response")
	}
	return nil
}

// drain reads the whole body, then releases. A release by anyone else
// while draining turns the read into CANCELLED.
func (h *handle) drain(ctx context.Context) ([]byte, error) {
	stop := context.AfterFunc(ctx, func() { h.release(observability.ViaCancel) })
	defer stop()

	data, err := io.ReadAll(h.state.Body)
	via := observability.ViaConsume
	if err != nil {
		via = observability.ViaError
	}
	won := h.release(via)

	switch {
	case !won:
		return nil, errors.Cancelled().WithCause(err)
	case err != nil:
		return nil, errors.Translate(err)
	}
	h.consumed.Store(stateConsumed)
	return data, nil
}

// Bytes reads the whole body.
func (r *Response) Bytes(ctx context.Context) *bridge.Task[[]byte] {
	if err := r.h.claim(); err != nil {
		return bridge.Rejected[[]byte](r.h.loop, err)
	}
	return bridge.Schedule(r.h.loop, ctx, func(ctx context.Context) ([]byte, error) {
		defer runtime.KeepAlive(r)
		return r.h.drain(ctx)
	}, nil)
}

// Text reads the whole body and decodes it using the charset of the
// Content-Type header. Invalid UTF-8 is replaced.
func (r *Response) Text(ctx context.Context) *bridge.Task[string] {
	return r.TextWithCharset(ctx, "")
}

// TextWithCharset is Text with the charset label given explicitly. An empty
// label uses the Content-Type header.
func (r *Response) TextWithCharset(ctx context.Context, label string) *bridge.Task[string] {
	if label == "" {
		label = contentCharset(r.h.state.Header.Get("Content-Type"))
	}
	if err := r.h.claim(); err != nil {
		return bridge.Rejected[string](r.h.loop, err)
	}
	return bridge.Schedule(r.h.loop, ctx, func(ctx context.Context) (string, error) {
		defer runtime.KeepAlive(r)
		data, err := r.h.drain(ctx)
		if err != nil {
			return "", err
		}
		return decodeText(data, label)
	}, nil)
}

// JSON reads the whole body and decodes it into an untyped value.
func (r *Response) JSON(ctx context.Context) *bridge.Task[any] {
	return JSON[any](ctx, r)
}

// JSON reads the whole body of r and decodes it into a T.
func JSON[T any](ctx context.Context, r *Response) *bridge.Task[T] {
	if err := r.h.claim(); err != nil {
		return bridge.Rejected[T](r.h.loop, err)
	}
	return bridge.Schedule(r.h.loop, ctx, func(ctx context.Context) (T, error) {
		defer runtime.KeepAlive(r)
		var v T
		data, err := r.h.drain(ctx)
		if err != nil {
			return v, err
		}
		if err := json.Unmarshal(data, &v); err != nil {
			return v, errors.Decode("json", err)
		}
		return v, nil
	}, nil)
}

// ByteStream is the body as a lazily pulled sequence of chunks. It keeps
// its Response reachable.
type ByteStream struct {
	*stream.Reader[[]byte]
	owner *Response
}

// Stream hands the body over as chunks of at most size bytes. The
// Response is released when the stream ends, fails or is closed.
func (r *Response) Stream(size int) (*ByteStream, error) {
	if err := r.h.claim(); err != nil {
		return nil, err
	}
	reader := stream.Bytes(r.h.loop, r.h.state.Body, size, r.h.finishStream)
	r.h.attach(reader)
	return &ByteStream{Reader: reader, owner: r}, nil
}

// EventStream is the body decoded as server-sent events. It keeps its
// Response reachable.
type EventStream struct {
	*stream.Reader[stream.Event]
	owner *Response
}

// Events hands the body over as server-sent events.
func (r *Response) Events() (*EventStream, error) {
	if err := r.h.claim(); err != nil {
		return nil, err
	}
	reader := stream.Events(r.h.loop, r.h.state.Body, r.h.finishStream)
	r.h.attach(reader)
	return &EventStream{Reader: reader, owner: r}, nil
}

func (h *handle) finishStream(via string) {
	if via == observability.ViaConsume {
		h.consumed.Store(stateConsumed)
	}
	h.release(via)
}

func contentCharset(contentType string) string {
	if contentType == "" {
		return ""
	}
	_, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return ""
	}
	return params["charset"]
}

// decodeText decodes data from label, UTF-8 when empty. Each maximal
// ill-formed subsequence becomes one U+FFFD.
func decodeText(data []byte, label string) (string, error) {
	if label == "" {
		label = "utf-8"
	}
	rd, err := charset.NewReaderLabel(label, strings.NewReader(string(data)))
	if err != nil {
		return "", errors.Decode("text", err).WithDetail("charset", label)
	}
	out, err := io.ReadAll(rd)
	if err != nil {
		return "", errors.Decode("text", err).WithDetail("charset", label)
	}
	return string(out), nil
}
