package chain

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/log"
	"golang.org/x/sync/singleflight"
)

// Pool memoizes one Client per RPC URL, process-wide. RPC URLs are
// effectively immutable per network, so the cache never invalidates
// entries, only adds them (spec §4.6, §9: "avoid the anti-pattern of
// recreating HTTP transports per call").
//
// Readers take the read lock and return on a hit. A miss upgrades to the
// write lock; singleflight collapses concurrent dials for the same URL so
// only one goroutine actually calls Dialer while the rest wait on it.
type Pool struct {
	dial Dialer

	mu      sync.RWMutex
	clients map[string]Client

	group singleflight.Group
}

// NewPool builds an empty pool backed by dial.
func NewPool(dial Dialer) *Pool {
	return &Pool{
		dial:    dial,
		clients: make(map[string]Client),
	}
}

// Get returns the memoized Client for rpcURL, dialing it on first use.
func (p *Pool) Get(ctx context.Context, rpcURL string) (Client, error) {
	p.mu.RLock()
	c, ok := p.clients[rpcURL]
	p.mu.RUnlock()
	if ok {
		return c, nil
	}

	v, err, _ := p.group.Do(rpcURL, func() (interface{}, error) {
		// Double-check after losing the race to acquire the write lock:
		// another goroutine may have already populated this entry while we
		// were waiting to get here.
		p.mu.RLock()
		if c, ok := p.clients[rpcURL]; ok {
			p.mu.RUnlock()
			return c, nil
		}
		p.mu.RUnlock()

		log.Debug("dialing chain client", "rpc_url", rpcURL)
		client, err := p.dial(ctx, rpcURL)
		if err != nil {
			return nil, err
		}

		p.mu.Lock()
		p.clients[rpcURL] = client
		p.mu.Unlock()
		return client, nil
	})
	if err != nil {
		return nil, err
	}
	client, _ := v.(Client)
	return client, nil
}
