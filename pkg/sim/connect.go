package sim

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// Endpoint is where a client finds its simulator.
type Endpoint struct {
	Backend string        // registered backend name, e.g. "headless"
	Host    string        // default 127.0.0.1
	Port    int           // default 2000
	Timeout time.Duration // connection timeout, default 2s
	Options map[string]string
}

// Dialer opens a World for an endpoint.
type Dialer func(ctx context.Context, ep Endpoint, logger *slog.Logger) (World, error)

var (
	backendsMu sync.RWMutex
	backends   = make(map[string]Dialer)
)

// Register makes a backend available by name. It panics if the name is
// registered twice, like database/sql drivers.
func Register(name string, d Dialer) {
	backendsMu.Lock()
	defer backendsMu.Unlock()
	if d == nil {
		panic("sim: Register dialer is nil")
	}
	if _, dup := backends[name]; dup {
		panic("sim: Register called twice for backend " + name)
	}
	backends[name] = d
}

// Backends lists registered backend names in sorted order.
func Backends() []string {
	backendsMu.RLock()
	defer backendsMu.RUnlock()
	names := make([]string, 0, len(backends))
	for name := range backends {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Connect opens the world served at ep. Failures are not retried.
func Connect(ctx context.Context, ep Endpoint, logger *slog.Logger) (World, error) {
	if ep.Host == "" {
		ep.Host = "127.0.0.1"
	}
	if ep.Port == 0 {
		ep.Port = 2000
	}
	if ep.Timeout == 0 {
		ep.Timeout = 2 * time.Second
	}

	backendsMu.RLock()
	dial, ok := backends[ep.Backend]
	backendsMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q (available: %v)", ErrUnknownBackend, ep.Backend, Backends())
	}

	dialCtx, cancel := context.WithTimeout(ctx, ep.Timeout)
	defer cancel()

	w, err := dial(dialCtx, ep, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to simulator at %s:%d: %w", ep.Host, ep.Port, err)
	}

	logger.Info("Connected to simulator",
		"backend", ep.Backend,
		"host", ep.Host,
		"port", ep.Port,
		"map", w.Map().Name())
	return w, nil
}
