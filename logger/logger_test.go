package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func jsonLogger(buf *bytes.Buffer, level string) *Logger {
	return New(Config{Level: level, Format: FormatJSON}, buf)
}

func lastLine(t *testing.T, buf *bytes.Buffer) map[string]interface{} {
	t.Helper()
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	var m map[string]interface{}
	if err := json.Unmarshal([]byte(lines[len(lines)-1]), &m); err != nil {
		t.Fatalf("unexpected error: %v (output %q)", err, buf.String())
	}
	return m
}

func TestNew_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := jsonLogger(&buf, "")
	l.Info("hidden")
	if buf.Len() != 0 {
		t.Errorf("expected info filtered at the default level, got %q", buf.String())
	}
	if l.Enabled(zerolog.InfoLevel) || !l.Enabled(zerolog.WarnLevel) {
		t.Error("expected warn to be the default threshold")
	}
	l.Warn("shown")
	if m := lastLine(t, &buf); m["message"] != "shown" || m["level"] != "warn" {
		t.Errorf("unexpected entry %v", m)
	}
}

func TestNew_Console(t *testing.T) {
	var buf bytes.Buffer
	New(Config{Level: "debug", Format: FormatConsole, NoColor: true}, &buf).Debug("pretty", Fields("k", "v"))
	out := buf.String()
	if !strings.Contains(out, "pretty") || !strings.Contains(out, "k=v") {
		t.Errorf("unexpected console output %q", out)
	}
}

func TestWithComponentAndFields(t *testing.T) {
	var buf bytes.Buffer
	l := jsonLogger(&buf, "debug").
		WithComponent("response").
		WithFields(Fields(FieldResourceID, "r-1"))

	l.Info("released", Fields(FieldReleaseVia, "close"), Fields(FieldPoolKey, "default"))

	m := lastLine(t, &buf)
	if m[FieldComponent] != "response" || m[FieldResourceID] != "r-1" {
		t.Errorf("expected context fields, got %v", m)
	}
	if m[FieldReleaseVia] != "close" || m[FieldPoolKey] != "default" {
		t.Errorf("expected entry fields, got %v", m)
	}
	if _, ok := m["time"]; !ok {
		t.Error("expected a timestamp")
	}
}

func TestWithError(t *testing.T) {
	var buf bytes.Buffer
	jsonLogger(&buf, "info").WithError(errors.New("boom")).Error("failed")
	if m := lastLine(t, &buf); m[FieldError] != "boom" {
		t.Errorf("expected error 'boom', got %v", m[FieldError])
	}
}

func TestWithContext(t *testing.T) {
	l := Nop()
	if got := l.WithContext(context.Background()); got != l {
		t.Error("expected same logger when context carries no span")
	}

	tp := sdktrace.NewTracerProvider()
	defer func() { _ = tp.Shutdown(context.Background()) }()
	ctx, span := tp.Tracer("test").Start(context.Background(), "op")
	defer span.End()

	var buf bytes.Buffer
	jsonLogger(&buf, "info").WithContext(ctx).Info("traced")
	m := lastLine(t, &buf)
	if m[FieldTraceID] != span.SpanContext().TraceID().String() {
		t.Errorf("expected trace_id %s, got %v", span.SpanContext().TraceID(), m[FieldTraceID])
	}
	if m[FieldSpanID] != span.SpanContext().SpanID().String() {
		t.Errorf("expected span_id %s, got %v", span.SpanContext().SpanID(), m[FieldSpanID])
	}
}

func TestGlobalAndGet(t *testing.T) {
	prev := Global()
	t.Cleanup(func() { SetGlobal(prev) })

	var first, second bytes.Buffer
	SetGlobal(jsonLogger(&first, "debug"))
	Get("pool").Debug("one")
	if m := lastLine(t, &first); m[FieldComponent] != "pool" {
		t.Errorf("expected component tag, got %v", m)
	}
	if Get("pool") != Get("pool") {
		t.Error("expected component logger cached")
	}

	SetGlobal(jsonLogger(&second, "debug"))
	Get("pool").Debug("two")
	if second.Len() == 0 {
		t.Error("expected cached logger replaced after SetGlobal")
	}

	Warn("global warning")
	if m := lastLine(t, &second); m["message"] != "global warning" {
		t.Errorf("expected global entry, got %v", m)
	}
}

func TestRegister(t *testing.T) {
	named := Nop()
	Register("loop", named)
	if Get("loop") != named {
		t.Error("expected registered logger")
	}
	Unregister("loop")
	if Get("loop") == named {
		t.Error("expected derived logger after unregister")
	}
}

func TestInit(t *testing.T) {
	prev := Global()
	t.Cleanup(func() { SetGlobal(prev) })

	if err := Init(Config{Level: "loud"}); err == nil {
		t.Error("expected error for unknown level")
	}
	if err := Init(Config{Format: "xml"}); err == nil {
		t.Error("expected error for unknown format")
	}
	if err := Init(Config{Level: "DEBUG", Output: "stdout"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !Global().Enabled(zerolog.DebugLevel) {
		t.Error("expected debug enabled after Init")
	}
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv(EnvLevel, "error")
	t.Setenv(EnvFormat, "console")
	cfg := ConfigFromEnv()
	cfg.ApplyDefaults()
	if cfg.Level != "error" || cfg.Format != FormatConsole || cfg.Output != "stderr" {
		t.Errorf("unexpected config %+v", cfg)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestFieldHelpers(t *testing.T) {
	if f := Fields("a", 1, 2, "dropped", "dangling"); len(f) != 1 || f["a"] != 1 {
		t.Errorf("unexpected fields %v", f)
	}
	f := ErrorFields("read", errors.New("x"))
	if f[FieldOperation] != "read" || f[FieldError] != "x" {
		t.Errorf("unexpected error fields: %v", f)
	}
	if m := MergeWithError(nil, nil); len(m) != 0 {
		t.Errorf("expected empty map for nil error, got %v", m)
	}
}
