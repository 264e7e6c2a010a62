package stdiopool

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"sync"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/kwonye/mcpx/pkg/gatewayerr"
	"github.com/kwonye/mcpx/pkg/mcpxconfig"
)

// entry is the pool's unit of ownership for one upstream's child process.
// It is inserted before the connection completes so concurrent acquirers of
// the same upstream share the single in-flight attempt.
type entry struct {
	fingerprint string

	connecting bool
	connectCh  chan struct{}

	session *mcp.ClientSession
	err     error
}

// Pool is the StdioConnectionPool. It is safe for concurrent use.
type Pool struct {
	mu      sync.Mutex
	entries map[string]*entry

	clientName    string
	clientVersion string
	resolver      *mcpxconfig.Resolver
	logger        *slog.Logger
}

// Option configures a Pool.
type Option func(*Pool)

// WithClientIdentity sets the Implementation name/version the pool
// advertises to every stdio upstream it connects to.
func WithClientIdentity(name, version string) Option {
	return func(p *Pool) {
		p.clientName = name
		p.clientVersion = version
	}
}

// WithLogger attaches a structured logger; a nil logger disables logging.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pool) { p.logger = logger }
}

// New builds a Pool. resolver resolves secret://name references in the
// child process's environment before spawn.
func New(resolver *mcpxconfig.Resolver, opts ...Option) *Pool {
	p := &Pool{
		entries:       make(map[string]*entry),
		clientName:    "mcpx",
		clientVersion: "0.1.0",
		resolver:      resolver,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Acquire returns the live session for name, spawning (or respawning, if the
// spec's fingerprint changed) the child process as needed. The returned
// session is borrowed for the scope of one call; the pool retains ownership.
func (p *Pool) Acquire(ctx context.Context, name string, spec mcpxconfig.StdioSpec) (*mcp.ClientSession, error) {
	fp := mcpxconfig.Fingerprint(spec)

	for {
		p.mu.Lock()
		e, ok := p.entries[name]
		if ok && e.fingerprint == fp {
			if e.connecting {
				ch := e.connectCh
				p.mu.Unlock()
				select {
				case <-ch:
					continue
				case <-ctx.Done():
					return nil, ctx.Err()
				}
			}
			if e.err != nil {
				p.mu.Unlock()
				return nil, e.err
			}
			session := e.session
			p.mu.Unlock()
			return session, nil
		}
		if ok && e.fingerprint != fp {
			delete(p.entries, name)
			p.mu.Unlock()
			p.closeAsync(name, e)
			continue
		}

		fresh := &entry{fingerprint: fp, connecting: true, connectCh: make(chan struct{})}
		p.entries[name] = fresh
		p.mu.Unlock()

		session, err := p.connect(ctx, name, spec)

		p.mu.Lock()
		fresh.session = session
		fresh.err = err
		fresh.connecting = false
		close(fresh.connectCh)
		current, stillCurrent := p.entries[name]
		if stillCurrent && current == fresh && err != nil {
			delete(p.entries, name)
		}
		orphaned := !stillCurrent || current != fresh
		p.mu.Unlock()

		if orphaned {
			// Evicted (fingerprint changed or upstream removed) before this
			// attempt finished; close anything we opened and retry against
			// whatever the pool now holds for name.
			if err == nil {
				go func() { _ = session.Close() }()
			}
			continue
		}
		if err != nil {
			return nil, err
		}
		return session, nil
	}
}

func (p *Pool) connect(ctx context.Context, name string, spec mcpxconfig.StdioSpec) (*mcp.ClientSession, error) {
	env, err := p.resolver.ResolveMap(spec.Env)
	if err != nil {
		return nil, err
	}

	// exec.Command, not CommandContext: the child outlives this connection
	// attempt and must not be killed when the request context that drove
	// the acquire is later cancelled.
	cmd := exec.Command(spec.Command, spec.Args...)
	if cwd, ok := spec.Cwd.Get(); ok {
		cmd.Dir = cwd
	}
	if len(env) > 0 {
		cmd.Env = append(os.Environ(), envSlice(env)...)
	}

	client := mcp.NewClient(&mcp.Implementation{Name: p.clientName, Version: p.clientVersion}, nil)
	transport := &mcp.CommandTransport{Command: cmd}

	session, err := client.Connect(ctx, transport, nil)
	if err != nil {
		return nil, gatewayerr.StdioTransportError(name, fmt.Errorf("spawn %s: %w", spec.Command, err))
	}
	return session, nil
}

func envSlice(m map[string]string) []string {
	out := make([]string, 0, len(m))
	for k, v := range m {
		out = append(out, k+"="+v)
	}
	return out
}

// Invalidate evicts the entry for name, closing its session asynchronously.
// Called after any call surfaces a transport-level error (pipe I/O, process
// exit, protocol framing failure). Application-level JSON-RPC errors from
// the upstream must not call Invalidate.
func (p *Pool) Invalidate(name string) {
	p.mu.Lock()
	e, ok := p.entries[name]
	if ok {
		delete(p.entries, name)
	}
	p.mu.Unlock()
	if ok {
		p.closeAsync(name, e)
	}
}

// Reconcile evicts any pooled entry whose upstream name is no longer present
// in liveFingerprints (the upstream was removed from the configuration) or
// whose fingerprint no longer matches the configured spec (the upstream's
// command/args/env/cwd changed). A still-live, still-matching entry is left
// untouched; a concurrent Acquire against it keeps its connection.
func (p *Pool) Reconcile(liveFingerprints map[string]string) {
	var stale []string
	p.mu.Lock()
	for name, e := range p.entries {
		fp, ok := liveFingerprints[name]
		if !ok || fp != e.fingerprint {
			stale = append(stale, name)
		}
	}
	for _, name := range stale {
		e := p.entries[name]
		delete(p.entries, name)
		p.closeAsync(name, e)
	}
	p.mu.Unlock()
}

// Shutdown closes every pooled entry, ignoring close errors.
func (p *Pool) Shutdown() {
	p.mu.Lock()
	entries := p.entries
	p.entries = make(map[string]*entry)
	p.mu.Unlock()

	for name, e := range entries {
		p.closeAsync(name, e)
	}
}

func (p *Pool) closeAsync(name string, e *entry) {
	go func() {
		if e.connecting {
			<-e.connectCh
		}
		if e.session == nil {
			return
		}
		if err := e.session.Close(); err != nil && p.logger != nil {
			p.logger.Debug("stdio pool entry close failed", "upstream", name, "error", err)
		}
	}()
}
