package component

import (
	"context"
	"fmt"
	"testing"
)

func TestCombine(t *testing.T) {
	tests := []struct {
		name    string
		parts   []Health
		status  HealthStatus
		message string
	}{
		{"no parts", nil, StatusHealthy, ""},
		{"all healthy", []Health{{Name: "loop", Status: StatusHealthy}, {Name: "pool:default", Status: StatusHealthy}}, StatusHealthy, ""},
		{"degraded pool", []Health{
			{Name: "loop", Status: StatusHealthy},
			{Name: "pool:default", Status: StatusDegraded, Message: "all 4 slots in use"},
		}, StatusDegraded, "pool:default: all 4 slots in use"},
		{"worst wins", []Health{
			{Name: "loop", Status: StatusUnhealthy},
			{Name: "pool:default", Status: StatusDegraded, Message: "full"},
		}, StatusUnhealthy, "loop: unhealthy; pool:default: full"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			h := Combine("client", tc.parts...)
			if h.Name != "client" || h.Status != tc.status || h.Message != tc.message {
				t.Errorf("expected %s %q, got %+v", tc.status, tc.message, h)
			}
		})
	}
}

func TestLazy(t *testing.T) {
	count := 0
	lz := NewLazy("default-client", func(ctx context.Context) (int, error) {
		count++
		return 42, nil
	})

	if lz.Name() != "default-client" {
		t.Errorf("expected name 'default-client', got %q", lz.Name())
	}
	if lz.IsInitialized() {
		t.Error("expected not initialized before Get()")
	}

	for i := 0; i < 3; i++ {
		v, err := lz.Get(context.Background())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if v != 42 {
			t.Errorf("expected 42, got %d", v)
		}
	}
	if count != 1 {
		t.Errorf("expected initializer called once, got %d", count)
	}
}

func TestLazyRetriesAfterFailure(t *testing.T) {
	fail := true
	lz := NewLazy("svc", func(ctx context.Context) (string, error) {
		if fail {
			return "", fmt.Errorf("not yet")
		}
		return "ok", nil
	})

	if _, err := lz.Get(context.Background()); err == nil {
		t.Fatal("expected initialization error")
	}
	fail = false
	v, err := lz.Get(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != "ok" {
		t.Errorf("expected 'ok', got %q", v)
	}
}

func TestLazyReset(t *testing.T) {
	closed := 0
	lz := NewLazy("svc", func(ctx context.Context) (int, error) { return 1, nil }).
		WithCloser(func(int) error {
			closed++
			return nil
		})

	if err := lz.Reset(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if closed != 0 {
		t.Error("expected no close before initialization")
	}

	lz.Get(context.Background())
	if err := lz.Reset(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if closed != 1 {
		t.Errorf("expected closer to run once, got %d", closed)
	}
	if lz.IsInitialized() {
		t.Error("expected not initialized after reset")
	}
}
