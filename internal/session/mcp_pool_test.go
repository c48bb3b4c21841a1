package session

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"agentcore/internal/mcp"
)

type fakeMCPClient struct {
	healthy   atomic.Bool
	closed    atomic.Bool
	createIdx int
}

func (c *fakeMCPClient) CallTool(ctx context.Context, tool string, raw []byte) (mcp.CallToolResult, error) {
	return mcp.CallToolResult{}, nil
}
func (c *fakeMCPClient) HealthCheck(ctx context.Context) error {
	if c.healthy.Load() {
		return nil
	}
	return context.DeadlineExceeded
}
func (c *fakeMCPClient) Close(ctx context.Context) error {
	c.closed.Store(true)
	return nil
}

func TestMCPPoolCreatesOncePerServer(t *testing.T) {
	var created int32
	factory := func(ctx context.Context, server string) (mcp.Client, error) {
		atomic.AddInt32(&created, 1)
		c := &fakeMCPClient{}
		c.healthy.Store(true)
		return c, nil
	}
	pool := NewMCPPool(factory, 0)

	c1, err := pool.GetClient(context.Background(), "playwright")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	c2, err := pool.GetClient(context.Background(), "playwright")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c1 != c2 {
		t.Fatalf("expected pooled client reuse")
	}
	if atomic.LoadInt32(&created) != 1 {
		t.Fatalf("expected exactly one creation, got %d", created)
	}
}

func TestMCPPoolEvictsUnhealthyClient(t *testing.T) {
	var created int32
	factory := func(ctx context.Context, server string) (mcp.Client, error) {
		atomic.AddInt32(&created, 1)
		c := &fakeMCPClient{}
		c.healthy.Store(atomic.LoadInt32(&created) > 1)
		return c, nil
	}
	pool := NewMCPPool(factory, 0)

	first, _ := pool.GetClient(context.Background(), "aws")
	firstClient := first.(*fakeMCPClient)
	firstClient.healthy.Store(false)

	second, err := pool.GetClient(context.Background(), "aws")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if second == first {
		t.Fatalf("expected unhealthy client to be evicted and replaced")
	}
	if !firstClient.closed.Load() {
		t.Fatalf("expected evicted client to be closed")
	}
}

func TestMCPPoolTTLExpiry(t *testing.T) {
	factory := func(ctx context.Context, server string) (mcp.Client, error) {
		c := &fakeMCPClient{}
		c.healthy.Store(true)
		return c, nil
	}
	pool := NewMCPPool(factory, 10*time.Millisecond)

	first, _ := pool.GetClient(context.Background(), "svc")
	time.Sleep(20 * time.Millisecond)
	second, err := pool.GetClient(context.Background(), "svc")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first == second {
		t.Fatalf("expected TTL expiry to force recreation")
	}
}

func TestMCPPoolCloseAllClosesEveryClient(t *testing.T) {
	clients := []*fakeMCPClient{}
	factory := func(ctx context.Context, server string) (mcp.Client, error) {
		c := &fakeMCPClient{}
		c.healthy.Store(true)
		clients = append(clients, c)
		return c, nil
	}
	pool := NewMCPPool(factory, 0)
	_, _ = pool.GetClient(context.Background(), "a")
	_, _ = pool.GetClient(context.Background(), "b")

	pool.CloseAll(time.Second)
	for _, c := range clients {
		if !c.closed.Load() {
			t.Fatalf("expected all clients closed")
		}
	}
}
