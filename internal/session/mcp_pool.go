package session

import (
	"context"
	"sync"
	"time"

	"agentcore/internal/errs"
	"agentcore/internal/mcp"
)

// ServerDef mirrors one mcp.definitions config entry.
type ServerDef struct {
	Name       string
	Command    string
	Args       []string
	Env        map[string]string
	TTLSeconds *float64
}

type pooledClient struct {
	client    mcp.Client
	createdAt time.Time
	lastUsed  time.Time
}

// MCPPool is a TTL-evicting, health-checked pool of MCP clients, one
// per server name, guarded by per-server locks so that creation under
// contention does not serialize unrelated servers.
type MCPPool struct {
	factory mcp.ClientFactory
	ttl     time.Duration

	mu      sync.Mutex
	locks   map[string]*sync.Mutex
	clients map[string]*pooledClient
}

// NewMCPPool builds a pool backed by factory, evicting a client once
// ttl has passed since it was created (0 disables TTL eviction). A
// client is not evicted for being idle; lastUsed is recorded only.
func NewMCPPool(factory mcp.ClientFactory, ttl time.Duration) *MCPPool {
	return &MCPPool{
		factory: factory,
		ttl:     ttl,
		locks:   map[string]*sync.Mutex{},
		clients: map[string]*pooledClient{},
	}
}

func (p *MCPPool) serverLock(server string) *sync.Mutex {
	p.mu.Lock()
	defer p.mu.Unlock()
	l, ok := p.locks[server]
	if !ok {
		l = &sync.Mutex{}
		p.locks[server] = l
	}
	return l
}

// GetClient returns a healthy pooled client for server, creating one
// via the factory if absent, expired, or unhealthy. Creation happens
// under a per-server lock using double-checked creation: the
// expensive factory call happens outside the pool-wide lock so one
// slow server cannot stall lookups for another.
func (p *MCPPool) GetClient(ctx context.Context, server string) (mcp.Client, error) {
	lock := p.serverLock(server)
	lock.Lock()
	defer lock.Unlock()

	if existing := p.getLocked(server); existing != nil {
		if !p.expired(existing) {
			if err := existing.client.HealthCheck(ctx); err == nil {
				existing.lastUsed = time.Now()
				return existing.client, nil
			}
		}
		_ = existing.client.Close(ctx)
		p.deleteLocked(server)
	}

	if p.factory == nil {
		return nil, errs.New(errs.System, "no MCP client factory configured")
	}
	client, err := p.factory(ctx, server)
	if err != nil {
		return nil, errs.Wrap(errs.Transient, "failed to create MCP client for "+server, err)
	}

	now := time.Now()
	p.setLocked(server, &pooledClient{client: client, createdAt: now, lastUsed: now})
	return client, nil
}

// MarkUnhealthy evicts and closes the pooled client for server, if any.
func (p *MCPPool) MarkUnhealthy(server string) {
	lock := p.serverLock(server)
	lock.Lock()
	defer lock.Unlock()

	if existing := p.getLocked(server); existing != nil {
		_ = existing.client.Close(context.Background())
		p.deleteLocked(server)
	}
}

// CloseAll closes every pooled client, handing each Close a context
// that expires after grace; the pool takes no further step when that
// deadline passes. Best-effort: individual close errors do not abort
// the pass.
func (p *MCPPool) CloseAll(grace time.Duration) []error {
	p.mu.Lock()
	servers := make([]string, 0, len(p.clients))
	for name := range p.clients {
		servers = append(servers, name)
	}
	p.mu.Unlock()

	var errors []error
	for _, name := range servers {
		lock := p.serverLock(name)
		lock.Lock()
		if existing := p.getLocked(name); existing != nil {
			ctx, cancel := context.WithTimeout(context.Background(), grace)
			if err := existing.client.Close(ctx); err != nil {
				errors = append(errors, err)
			}
			cancel()
			p.deleteLocked(name)
		}
		lock.Unlock()
	}
	return errors
}

func (p *MCPPool) expired(pc *pooledClient) bool {
	if p.ttl <= 0 {
		return false
	}
	return time.Since(pc.createdAt) > p.ttl
}

func (p *MCPPool) getLocked(server string) *pooledClient {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.clients[server]
}

func (p *MCPPool) setLocked(server string, pc *pooledClient) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.clients[server] = pc
}

func (p *MCPPool) deleteLocked(server string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.clients, server)
}
