// Package evm provides a fault tolerant JSON-RPC read client over a pool of
// endpoints, with per-call rate limiting, retries with exponential backoff
// and failover to the next endpoint when one keeps failing.
package evm

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/ratelimit"
	"go.uber.org/zap"

	"github.com/pauliax/token-spender-allowances/internal/clock"
)

const (
	defaultTimeout    = 60 * time.Second
	defaultMaxRetries = 3
	defaultRetryDelay = time.Second

	// maxBackoffDelay caps the exponential retry backoff.
	maxBackoffDelay = 30 * time.Second
)

// ClientConfig tunes timeout, retry and pacing behaviour.
type ClientConfig struct {
	// Timeout bounds every individual RPC attempt.
	Timeout time.Duration
	// MaxRetries is the attempt budget per endpoint. The total budget of one
	// operation is MaxRetries multiplied by the pool size.
	MaxRetries int
	// RetryDelay is the base backoff, doubled on every further attempt
	// against the same endpoint.
	RetryDelay time.Duration
	// RateLimitDelay is the minimum spacing between any two RPC calls, also
	// between calls of different operations. Zero disables pacing.
	RateLimitDelay time.Duration
}

// Client executes RPC reads against the active endpoint of a pool, retrying
// transient failures and resuming on the next endpoint once the pool fails
// over.
type Client struct {
	pool       *Pool
	dial       DialFunc
	logger     *zap.Logger
	metrics    Metrics
	limiter    ratelimit.Limiter
	sleep      func(ctx context.Context, d time.Duration) error
	timeout    time.Duration
	maxRetries int
	retryDelay time.Duration

	mu    sync.Mutex
	conns map[string]Backend
}

// NewClient builds a client over pool. dial defaults to EthDial when nil.
func NewClient(pool *Pool, dial DialFunc, cfg ClientConfig, logger *zap.Logger, metrics Metrics) (*Client, error) {
	if pool == nil {
		return nil, errors.New("endpoint pool required")
	}
	if dial == nil {
		dial = EthDial
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.MaxRetries < 1 {
		cfg.MaxRetries = defaultMaxRetries
	}
	if cfg.RetryDelay < 0 {
		cfg.RetryDelay = defaultRetryDelay
	}
	limiter := ratelimit.NewUnlimited()
	if cfg.RateLimitDelay > 0 {
		limiter = ratelimit.New(1, ratelimit.Per(cfg.RateLimitDelay))
	}
	return &Client{
		pool:       pool,
		dial:       dial,
		logger:     logger,
		metrics:    metrics,
		limiter:    limiter,
		sleep:      clock.SleepWithContext,
		timeout:    cfg.Timeout,
		maxRetries: cfg.MaxRetries,
		retryDelay: cfg.RetryDelay,
		conns:      make(map[string]Backend),
	}, nil
}

// EthDial opens a go-ethereum backend for an endpoint URL.
func EthDial(ctx context.Context, url string) (Backend, error) {
	client, err := ethclient.DialContext(ctx, url)
	if err != nil {
		return nil, err
	}
	return client, nil
}

// BlockNumber returns the latest block number.
func (c *Client) BlockNumber(ctx context.Context) (uint64, error) {
	var number uint64
	err := c.execute(ctx, "block_number", func(ctx context.Context, b Backend) error {
		n, err := b.BlockNumber(ctx)
		if err != nil {
			return err
		}
		number = n
		return nil
	})
	return number, err
}

// ChainID returns the chain id served by the endpoints.
func (c *Client) ChainID(ctx context.Context) (*big.Int, error) {
	var id *big.Int
	err := c.execute(ctx, "chain_id", func(ctx context.Context, b Backend) error {
		v, err := b.ChainID(ctx)
		if err != nil {
			return err
		}
		id = v
		return nil
	})
	return id, err
}

// FilterLogs runs eth_getLogs for the given query.
func (c *Client) FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	var logs []types.Log
	err := c.execute(ctx, "filter_logs", func(ctx context.Context, b Backend) error {
		res, err := b.FilterLogs(ctx, q)
		if err != nil {
			return err
		}
		logs = res
		return nil
	})
	return logs, err
}

// CallContract runs a read-only eth_call against the contract at to, at the
// latest block.
func (c *Client) CallContract(ctx context.Context, to common.Address, data []byte) ([]byte, error) {
	var out []byte
	err := c.execute(ctx, "call_contract", func(ctx context.Context, b Backend) error {
		res, err := b.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
		if err != nil {
			return err
		}
		out = res
		return nil
	})
	return out, err
}

// Close releases every open backend connection.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, b := range c.conns {
		b.Close()
	}
	c.conns = make(map[string]Backend)
}

// backend returns the cached connection for url, dialing on first use.
func (c *Client) backend(ctx context.Context, url string) (Backend, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if b, ok := c.conns[url]; ok {
		return b, nil
	}
	dialCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	b, err := c.dial(dialCtx, url)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	c.conns[url] = b
	return b, nil
}
