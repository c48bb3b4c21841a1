package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"agentcore/internal/interrupt"
	"agentcore/internal/tools"
)

type fakeDispatcher struct {
	mu       sync.Mutex
	parallel map[string]bool
	sleep    time.Duration
	active   int
	maxActive int
}

func (f *fakeDispatcher) SupportsParallel(name string) bool { return f.parallel[name] }

func (f *fakeDispatcher) Dispatch(ctx context.Context, inv tools.Invocation) (tools.WireResult, error) {
	f.mu.Lock()
	f.active++
	if f.active > f.maxActive {
		f.maxActive = f.active
	}
	f.mu.Unlock()

	select {
	case <-time.After(f.sleep):
	case <-ctx.Done():
	}

	f.mu.Lock()
	f.active--
	f.mu.Unlock()

	return tools.WireResult{ToolUseID: inv.Call.CallID, Content: "ok"}, nil
}

func build(call tools.Call) tools.Invocation {
	return tools.Invocation{Call: call}
}

func TestRunBatchPreservesOrderRegardlessOfCompletionOrder(t *testing.T) {
	disp := &fakeDispatcher{parallel: map[string]bool{"fast": true, "slow": true}, sleep: 0}
	sched := New(disp, nil)

	calls := []tools.Call{
		{ToolName: "slow", CallID: "1"},
		{ToolName: "fast", CallID: "2"},
		{ToolName: "slow", CallID: "3"},
	}
	results, err := sched.RunBatch(context.Background(), calls, build)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i, r := range results {
		if r.ToolUseID != calls[i].CallID {
			t.Fatalf("result order mismatch at %d: got %s want %s", i, r.ToolUseID, calls[i].CallID)
		}
	}
}

func TestRunBatchParallelToolsOverlap(t *testing.T) {
	disp := &fakeDispatcher{parallel: map[string]bool{"p": true}, sleep: 150 * time.Millisecond}
	sched := New(disp, nil)

	calls := []tools.Call{{ToolName: "p", CallID: "1"}, {ToolName: "p", CallID: "2"}}
	start := time.Now()
	_, err := sched.RunBatch(context.Background(), calls, build)
	elapsed := time.Since(start)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if elapsed > 300*time.Millisecond {
		t.Fatalf("expected overlapping parallel execution, took %v", elapsed)
	}
	if disp.maxActive < 2 {
		t.Fatalf("expected both parallel calls to overlap, maxActive=%d", disp.maxActive)
	}
}

func TestRunBatchNonParallelToolsDoNotOverlap(t *testing.T) {
	disp := &fakeDispatcher{parallel: map[string]bool{}, sleep: 80 * time.Millisecond}
	sched := New(disp, nil)

	calls := []tools.Call{{ToolName: "s", CallID: "1"}, {ToolName: "s", CallID: "2"}}
	start := time.Now()
	_, err := sched.RunBatch(context.Background(), calls, build)
	elapsed := time.Since(start)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if elapsed < 150*time.Millisecond {
		t.Fatalf("expected serialized execution, took %v", elapsed)
	}
	if disp.maxActive > 1 {
		t.Fatalf("expected writers to never overlap, maxActive=%d", disp.maxActive)
	}
}

func TestRunBatchInterruptCancelsInFlight(t *testing.T) {
	disp := &fakeDispatcher{parallel: map[string]bool{"p": true}, sleep: time.Second}
	mgr := interrupt.New()
	mgr.Arm()
	sched := New(disp, mgr)

	calls := []tools.Call{{ToolName: "p", CallID: "1"}, {ToolName: "p", CallID: "2"}}
	go func() {
		time.Sleep(20 * time.Millisecond)
		mgr.Fire()
	}()

	start := time.Now()
	results, err := sched.RunBatch(context.Background(), calls, build)
	elapsed := time.Since(start)
	if err != nil {
		t.Fatalf("unexpected fatal error: %v", err)
	}
	if elapsed > 900*time.Millisecond {
		t.Fatalf("expected interrupt to cut the batch short, took %v", elapsed)
	}
	if len(results) != 2 {
		t.Fatalf("expected a result per call")
	}
}

func TestGuardReadersOverlapWritersExclusive(t *testing.T) {
	g := NewGuard()
	r1, err := g.AcquireRead(context.Background(), time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	r2, err := g.AcquireRead(context.Background(), time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	r1()
	r2()

	w, err := g.AcquireWrite(context.Background(), time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	w()
}

func TestGuardAcquisitionTimesOut(t *testing.T) {
	g := NewGuard()
	release, err := g.AcquireWrite(context.Background(), time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer release()

	_, err = g.AcquireWrite(context.Background(), 30*time.Millisecond)
	if err == nil {
		t.Fatalf("expected timeout error")
	}
}
