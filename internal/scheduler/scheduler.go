package scheduler

import (
	"context"
	"time"

	"agentcore/internal/errs"
	"agentcore/internal/interrupt"
	"agentcore/internal/tools"

	"golang.org/x/sync/errgroup"
)

// Dispatcher is the subset of the Tool Registry the scheduler needs.
type Dispatcher interface {
	Dispatch(ctx context.Context, inv tools.Invocation) (tools.WireResult, error)
	SupportsParallel(name string) bool
}

// Scheduler runs one turn's batch of tool calls under reader/writer
// discipline: reads run concurrently, writes run exclusively, and
// results come back in call order regardless of completion order.
type Scheduler struct {
	registry     Dispatcher
	guard        *Guard
	guardTimeout time.Duration
	interrupter  *interrupt.Manager
}

// New builds a Scheduler. A nil interrupter disables interrupt
// handling (every call runs to completion or timeout).
func New(registry Dispatcher, interrupter *interrupt.Manager) *Scheduler {
	return &Scheduler{
		registry:     registry,
		guard:        NewGuard(),
		guardTimeout: DefaultGuardTimeout,
		interrupter:  interrupter,
	}
}

// WithGuardTimeout overrides the default 30s guard-acquisition
// timeout.
func (s *Scheduler) WithGuardTimeout(d time.Duration) *Scheduler {
	s.guardTimeout = d
	return s
}

// InvocationBuilder produces the Invocation for one call; the orchestrator
// supplies this so the scheduler does not need to know about policy,
// tracker, or MCP pool wiring.
type InvocationBuilder func(call tools.Call) tools.Invocation

// RunBatch executes an ordered batch of calls, honoring each call's
// supports_parallel declaration, and returns results in the same
// order the calls were given regardless of completion order. If the
// interrupter fires mid-batch, in-flight calls are cancelled;
// already-completed results are preserved and cancelled calls produce
// a Cancelled result.
func (s *Scheduler) RunBatch(ctx context.Context, calls []tools.Call, build InvocationBuilder) ([]tools.WireResult, error) {
	results := make([]tools.WireResult, len(calls))

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	if s.interrupter != nil {
		go func() {
			select {
			case <-s.interrupter.Done():
				cancel()
			case <-runCtx.Done():
			}
		}()
	}

	g, gctx := errgroup.WithContext(runCtx)
	for i, call := range calls {
		i, call := i, call
		g.Go(func() error {
			result, err := s.runOne(gctx, call, build)
			if err != nil {
				return err
			}
			results[i] = result
			return nil
		})
	}

	err := g.Wait()
	if err != nil {
		fillCancelled(results, calls)
		if toolErr, ok := errs.As(err); ok && toolErr.Kind.Fatal() {
			return results, toolErr
		}
		return results, nil
	}
	return results, nil
}

func (s *Scheduler) runOne(ctx context.Context, call tools.Call, build InvocationBuilder) (tools.WireResult, error) {
	parallel := s.registry.SupportsParallel(call.ToolName)

	var release func()
	var err error
	if parallel {
		release, err = s.guard.AcquireRead(ctx, s.guardTimeout)
	} else {
		release, err = s.guard.AcquireWrite(ctx, s.guardTimeout)
	}
	if err != nil {
		return tools.WireResult{ToolUseID: call.CallID, IsError: true, Content: "guard acquisition failed: " + err.Error()}, nil
	}
	defer release()

	select {
	case <-ctx.Done():
		return tools.WireResult{ToolUseID: call.CallID, IsError: true, Content: "cancelled"}, nil
	default:
	}

	inv := build(call)
	return s.registry.Dispatch(ctx, inv)
}

// fillCancelled fills any still-zero-valued result slots with a
// Cancelled tool-result, used after a batch aborts early.
func fillCancelled(results []tools.WireResult, calls []tools.Call) {
	for i, r := range results {
		if r.ToolUseID == "" {
			results[i] = tools.WireResult{ToolUseID: calls[i].CallID, IsError: true, Content: "cancelled"}
		}
	}
}
