package bridge

import (
	"context"
	stderrors "errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kbukum/nitai/errors"
	"github.com/kbukum/nitai/loop"
)

func runLoop(t *testing.T) *loop.Loop {
	t.Helper()
	l := loop.New()
	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = l.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		l.Close()
	})
	return l
}

func awaitCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestSchedule_Resolves(t *testing.T) {
	l := runLoop(t)
	task := Schedule(l, context.Background(), func(context.Context) (int, error) {
		return 42, nil
	}, nil)

	v, err := task.Await(awaitCtx(t))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != 42 {
		t.Errorf("expected 42, got %d", v)
	}
	if task.ID() == "" {
		t.Error("expected task ID")
	}
}

func TestSchedule_RejectsWithTranslatedError(t *testing.T) {
	l := runLoop(t)
	task := Schedule(l, context.Background(), func(context.Context) (string, error) {
		return "", context.DeadlineExceeded
	}, nil)

	_, err := task.Await(awaitCtx(t))
	if !errors.IsTimeout(err) {
		t.Fatalf("expected TIMEOUT_ERROR, got %v", err)
	}
	if _, ok := errors.AsAppError(err); !ok {
		t.Errorf("expected *AppError, got %T", err)
	}
}

func TestSchedule_ThenRunsOnLoopInCompletionOrder(t *testing.T) {
	l := loop.New()
	gate := make(chan struct{})
	var order []string

	slow := Schedule(l, context.Background(), func(context.Context) (string, error) {
		<-gate
		return "slow", nil
	}, nil)
	fast := Schedule(l, context.Background(), func(context.Context) (string, error) {
		return "fast", nil
	}, nil)
	slow.Then(func(s string) { order = append(order, s) }, nil)
	fast.Then(func(s string) { order = append(order, s) }, nil)

	pump := func(until <-chan struct{}) {
		deadline := time.After(5 * time.Second)
		for {
			if _, err := l.Drain(); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			select {
			case <-until:
				_, _ = l.Drain()
				return
			case <-deadline:
				t.Fatal("timed out pumping loop")
			case <-time.After(time.Millisecond):
			}
		}
	}

	pump(fast.Done())
	close(gate)
	pump(slow.Done())

	if len(order) != 2 || order[0] != "fast" || order[1] != "slow" {
		t.Errorf("expected [fast slow], got %v", order)
	}
}

func TestSchedule_ThenAfterSettlement(t *testing.T) {
	l := runLoop(t)
	task := Resolved(l, "ok")
	if _, err := task.Await(awaitCtx(t)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got := make(chan string, 1)
	task.Then(func(s string) { got <- s }, func(err error) { t.Errorf("unexpected reject: %v", err) })
	select {
	case s := <-got:
		if s != "ok" {
			t.Errorf("expected ok, got %q", s)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("callback not run")
	}
}

func TestRejected(t *testing.T) {
	l := runLoop(t)
	rejected := make(chan error, 1)
	task := Rejected[int](l, errors.InvalidArgument("url", "is required"))
	task.Then(func(int) { t.Error("unexpected resolve") }, func(err error) { rejected <- err })

	select {
	case err := <-rejected:
		if errors.CodeOf(err) != errors.ErrCodeInvalidArgument {
			t.Errorf("expected INVALID_ARGUMENT, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("reject callback not run")
	}
}

func TestTask_CancelReleasesLateValue(t *testing.T) {
	l := runLoop(t)
	started := make(chan struct{})
	var released atomic.Int32

	task := Schedule(l, context.Background(), func(ctx context.Context) (int, error) {
		close(started)
		<-ctx.Done()
		return 7, nil
	}, func(v int) {
		if v == 7 {
			released.Add(1)
		}
	})

	<-started
	if !task.Cancel() {
		t.Fatal("expected first Cancel to succeed")
	}
	if task.Cancel() {
		t.Error("expected second Cancel to report false")
	}

	_, err := task.Await(awaitCtx(t))
	if !errors.IsCancelled(err) {
		t.Fatalf("expected CANCELLED, got %v", err)
	}
	if released.Load() != 1 {
		t.Errorf("expected late value released once, got %d", released.Load())
	}
}

func TestTask_CancelAfterSettlementIsNoop(t *testing.T) {
	l := runLoop(t)
	task := Resolved(l, 1)
	if _, err := task.Await(awaitCtx(t)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if task.Cancel() {
		t.Error("expected Cancel after settlement to report false")
	}
	v, err, ok := task.Result()
	if !ok || err != nil || v != 1 {
		t.Errorf("expected settled result 1, got %d, %v, %v", v, err, ok)
	}
}

func TestTask_CancelledFailureDoesNotRelease(t *testing.T) {
	l := runLoop(t)
	started := make(chan struct{})
	var released atomic.Int32

	task := Schedule(l, context.Background(), func(ctx context.Context) (int, error) {
		close(started)
		<-ctx.Done()
		return 0, ctx.Err()
	}, func(int) { released.Add(1) })

	<-started
	task.Cancel()
	_, err := task.Await(awaitCtx(t))
	if !errors.IsCancelled(err) {
		t.Fatalf("expected CANCELLED, got %v", err)
	}
	if released.Load() != 0 {
		t.Error("expected no release for a failed operation")
	}
}

func TestTask_PanicBecomesInternalError(t *testing.T) {
	l := runLoop(t)
	task := Schedule(l, context.Background(), func(context.Context) (int, error) {
		panic("boom")
	}, nil)

	_, err := task.Await(awaitCtx(t))
	if errors.CodeOf(err) != errors.ErrCodeInternal {
		t.Fatalf("expected INTERNAL_ERROR, got %v", err)
	}
}

func TestTask_AwaitContextDoesNotCancel(t *testing.T) {
	l := runLoop(t)
	gate := make(chan struct{})
	task := Schedule(l, context.Background(), func(context.Context) (int, error) {
		<-gate
		return 3, nil
	}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := task.Await(ctx); !errors.IsTimeout(err) {
		t.Fatalf("expected TIMEOUT_ERROR, got %v", err)
	}
	if _, _, ok := task.Result(); ok {
		t.Fatal("expected task still pending")
	}

	close(gate)
	v, err := task.Await(awaitCtx(t))
	if err != nil || v != 3 {
		t.Errorf("expected 3, got %d, %v", v, err)
	}
}

func TestTask_SettlesInPlaceWhenLoopClosed(t *testing.T) {
	l := loop.New()
	l.Close()

	task := Schedule(l, context.Background(), func(context.Context) (int, error) {
		return 0, stderrors.New("unreachable host")
	}, nil)

	_, err := task.Await(awaitCtx(t))
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestTask_ThenAcrossLoopClose(t *testing.T) {
	for range 50 {
		l := loop.New()
		go func() { _ = l.Run(context.Background()) }()

		gate := make(chan struct{})
		task := Schedule(l, context.Background(), func(context.Context) (int, error) {
			<-gate
			return 7, nil
		}, nil)

		const callbacks = 20
		var wg sync.WaitGroup
		var sum atomic.Int64
		wg.Add(callbacks)
		for range callbacks {
			task.Then(func(v int) {
				sum.Add(int64(v))
				wg.Done()
			}, func(error) { wg.Done() })
		}
		l.Close()
		close(gate)

		if _, err := task.Await(awaitCtx(t)); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		wg.Wait()
		if sum.Load() != 7*callbacks {
			t.Fatalf("expected every callback to see 7, got sum %d", sum.Load())
		}

		late := make(chan int, 1)
		task.Then(func(v int) { late <- v }, nil)
		select {
		case v := <-late:
			if v != 7 {
				t.Errorf("expected 7, got %d", v)
			}
		case <-time.After(5 * time.Second):
			t.Fatal("callback registered after close never ran")
		}
	}
}

func TestSchedule_ManyConcurrentTasks(t *testing.T) {
	l := runLoop(t)
	const n = 100
	tasks := make([]*Task[int], n)
	for i := range tasks {
		i := i
		tasks[i] = Schedule(l, context.Background(), func(context.Context) (int, error) {
			return i, nil
		}, nil)
	}

	var wg sync.WaitGroup
	var sum atomic.Int64
	for _, task := range tasks {
		wg.Add(1)
		task.Then(func(v int) {
			sum.Add(int64(v))
			wg.Done()
		}, func(error) { wg.Done() })
	}
	wg.Wait()
	if sum.Load() != n*(n-1)/2 {
		t.Errorf("expected sum %d, got %d", n*(n-1)/2, sum.Load())
	}
}
