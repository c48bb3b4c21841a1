// Package scheduler implements the per-turn reader/writer scheduler:
// an async-rwlock-style runtime re-expressed over goroutines, with
// golang.org/x/sync/errgroup for task fan-out and await.
package scheduler

import (
	"context"
	"sync"
	"time"

	"agentcore/internal/errs"
)

// DefaultGuardTimeout is the default guard-acquisition timeout.
const DefaultGuardTimeout = 30 * time.Second

// Guard is a reader/writer lock with writer preference: readers that
// arrive while a writer is waiting queue behind that writer (no
// reader starves a writer), and a writer enters once current readers
// drain. Writers waiting at the same time are not ordered by arrival;
// whichever wakes first after a release takes the guard.
type Guard struct {
	mu           sync.Mutex
	activeReaders int
	writerActive bool
	waitingWriters int
	cond         *sync.Cond
}

// NewGuard constructs an unheld Guard.
func NewGuard() *Guard {
	g := &Guard{}
	g.cond = sync.NewCond(&g.mu)
	return g
}

// AcquireRead blocks until a read guard is available or timeout
// elapses, returning a release function. Queues behind any waiting or
// active writer.
func (g *Guard) AcquireRead(ctx context.Context, timeout time.Duration) (func(), error) {
	release, err := g.acquire(ctx, timeout, false)
	return release, err
}

// AcquireWrite blocks until a write guard is available or timeout
// elapses, returning a release function.
func (g *Guard) AcquireWrite(ctx context.Context, timeout time.Duration) (func(), error) {
	release, err := g.acquire(ctx, timeout, true)
	return release, err
}

func (g *Guard) acquire(ctx context.Context, timeout time.Duration, write bool) (func(), error) {
	done := make(chan struct{})

	go func() {
		g.mu.Lock()
		defer g.mu.Unlock()
		if write {
			g.waitingWriters++
			for g.writerActive || g.activeReaders > 0 {
				g.cond.Wait()
			}
			g.waitingWriters--
			g.writerActive = true
		} else {
			for g.writerActive || g.waitingWriters > 0 {
				g.cond.Wait()
			}
			g.activeReaders++
		}
		close(done)
	}()

	release := func() {
		g.mu.Lock()
		if write {
			g.writerActive = false
		} else {
			g.activeReaders--
		}
		g.mu.Unlock()
		g.cond.Broadcast()
	}

	select {
	case <-done:
		return release, nil
	case <-ctx.Done():
		go g.releaseOnceAcquired(done, release)
		return nil, errs.New(errs.Timeout, "guard acquisition cancelled")
	case <-time.After(timeout):
		go g.releaseOnceAcquired(done, release)
		return nil, errs.New(errs.Timeout, "guard acquisition timed out")
	}
}

// releaseOnceAcquired lets the background goroutine finish acquiring
// the guard after its caller gave up waiting, then immediately
// releases it, so the guard's internal counters never leak a
// permanently-held slot.
func (g *Guard) releaseOnceAcquired(done <-chan struct{}, release func()) {
	<-done
	release()
}
