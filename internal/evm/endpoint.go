package evm

import (
	"errors"
	"sync"
)

// ErrAllEndpointsExhausted is returned once every configured endpoint has
// been marked dead. No further RPC work is possible and the run must abort.
var ErrAllEndpointsExhausted = errors.New("all rpc endpoints exhausted")

const defaultFailureThreshold = 2

type endpoint struct {
	url      string
	alive    bool
	failures int
}

// Pool tracks the health of the configured RPC endpoints. One endpoint is
// active at a time. Endpoints that fail repeatedly are marked dead and
// skipped when the pool fails over, they stay in the list so ordering is
// stable.
type Pool struct {
	mu        sync.Mutex
	endpoints []*endpoint
	active    int
	threshold int
}

// NewPool builds a pool over urls, keeping their order. threshold is the
// number of consecutive failures after which an endpoint is marked dead.
func NewPool(urls []string, threshold int) (*Pool, error) {
	if len(urls) == 0 {
		return nil, errors.New("at least one rpc endpoint required")
	}
	if threshold < 1 {
		threshold = defaultFailureThreshold
	}
	endpoints := make([]*endpoint, 0, len(urls))
	for _, u := range urls {
		endpoints = append(endpoints, &endpoint{url: u, alive: true})
	}
	return &Pool{endpoints: endpoints, threshold: threshold}, nil
}

// Current returns the URL of the active endpoint, or ErrAllEndpointsExhausted
// when every endpoint is dead.
func (p *Pool) Current() (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.endpoints[p.active].alive && !p.advance() {
		return "", ErrAllEndpointsExhausted
	}
	return p.endpoints[p.active].url, nil
}

// ReportFailure records a failed call against the endpoint with the given
// URL. Reaching the failure threshold marks the endpoint dead and, when it
// was the active one, fails over to the next alive endpoint.
func (p *Pool) ReportFailure(url string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	idx := p.find(url)
	if idx < 0 || !p.endpoints[idx].alive {
		return
	}
	ep := p.endpoints[idx]
	ep.failures++
	if ep.failures < p.threshold {
		return
	}
	ep.alive = false
	if idx == p.active {
		p.advance()
	}
}

// ReportSuccess resets the consecutive failure count of the endpoint with
// the given URL.
func (p *Pool) ReportSuccess(url string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if idx := p.find(url); idx >= 0 {
		p.endpoints[idx].failures = 0
	}
}

// Size returns the number of configured endpoints, dead ones included.
func (p *Pool) Size() int {
	return len(p.endpoints)
}

// Live returns how many endpoints are still alive.
func (p *Pool) Live() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, ep := range p.endpoints {
		if ep.alive {
			n++
		}
	}
	return n
}

// advance moves active to the next alive endpoint, wrapping around the list.
// Returns false when no endpoint is alive. Callers must hold the lock.
func (p *Pool) advance() bool {
	n := len(p.endpoints)
	for i := 1; i <= n; i++ {
		idx := (p.active + i) % n
		if p.endpoints[idx].alive {
			p.active = idx
			return true
		}
	}
	return false
}

func (p *Pool) find(url string) int {
	for i, ep := range p.endpoints {
		if ep.url == url {
			return i
		}
	}
	return -1
}
