package stream

import (
	"bufio"
	"context"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/kbukum/nitai/loop"
)

const maxEventLine = 1 << 20

// Event is one server-sent event.
type Event struct {
	// Event is the type from "event:" lines. Empty for data-only events.
	Event string
	// Data joins the "data:" lines with newlines.
	Data string
	// ID is the last "id:" value seen on the stream, carried across events
	// until another "id:" line replaces it.
	ID string
	// Retry is the reconnection delay from a "retry:" line, if any.
	Retry time.Duration
}

type eventSource struct {
	scanner *bufio.Scanner
	body    io.ReadCloser
	lastID  string
}

func newEventSource(body io.ReadCloser) *eventSource {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 4096), maxEventLine)
	return &eventSource{scanner: scanner, body: body}
}

// Next returns the next event that carries data, or io.EOF.
func (s *eventSource) Next(_ context.Context) (Event, error) {
	var event Event
	var hasData bool

	for s.scanner.Scan() {
		line := s.scanner.Text()

		if line == "" {
			if hasData {
				event.ID = s.lastID
				return event, nil
			}
			event = Event{}
			continue
		}
		if strings.HasPrefix(line, ":") {
			continue
		}

		field, value := parseEventLine(line)
		switch field {
		case "data":
			if hasData {
				event.Data += "\n" + value
			} else {
				event.Data = value
				hasData = true
			}
		case "event":
			event.Event = value
		case "id":
			if !strings.ContainsRune(value, 0) {
				s.lastID = value
			}
		case "retry":
			if ms, err := strconv.Atoi(value); err == nil && ms >= 0 {
				event.Retry = time.Duration(ms) * time.Millisecond
			}
		}
	}

	if err := s.scanner.Err(); err != nil {
		return Event{}, err
	}
	if hasData {
		event.ID = s.lastID
		return event, nil
	}
	return Event{}, io.EOF
}

func (s *eventSource) Close() error { return s.body.Close() }

// Events decodes body as a text/event-stream.
func Events(l *loop.Loop, body io.ReadCloser, onFinish func(via string)) *Reader[Event] {
	return NewReader[Event](l, newEventSource(body), onFinish)
}

// parseEventLine splits a line into field and value, dropping one space
// after the colon.
func parseEventLine(line string) (field, value string) {
	field, value, found := strings.Cut(line, ":")
	if !found {
		return line, ""
	}
	return field, strings.TrimPrefix(value, " ")
}
