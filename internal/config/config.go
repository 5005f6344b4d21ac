// Package config loads the tracker configuration from flags, environment
// variables and an optional config.env file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jessevdk/go-flags"
	"github.com/joho/godotenv"
)

const (
	defaultEnvFile = "config.env"

	// latestToBlock selects the chain head as the scan upper bound.
	latestToBlock = "latest"
)

// Config is the raw flag and environment surface. Addresses and the block
// range stay untyped here, Settings carries the validated form.
type Config struct {
	RPCURLs           []string      `long:"rpc-url" env:"RPC_URLS" env-delim:"," required:"true" description:"EVM JSON-RPC endpoint, repeatable (comma-separated in env)"`
	RPCTimeout        time.Duration `long:"rpc-timeout" env:"RPC_TIMEOUT" default:"60s" description:"per-attempt RPC timeout"`
	MaxRetries        int           `long:"max-retries" env:"MAX_RETRIES" default:"3" description:"retry rounds per endpoint before giving up"`
	RetryDelay        time.Duration `long:"retry-delay" env:"RETRY_DELAY" default:"1s" description:"base delay for exponential retry backoff"`
	RateLimitDelay    time.Duration `long:"rate-limit-delay" env:"RATE_LIMIT_DELAY" default:"500ms" description:"fixed spacing between RPC calls"`
	FailoverThreshold int           `long:"failover-threshold" env:"FAILOVER_THRESHOLD" default:"2" description:"consecutive transport failures before an endpoint is marked dead"`

	TokenAddress     string `long:"token-address" env:"TOKEN_ADDRESS" required:"true" description:"ERC-20 token contract address"`
	SpenderAddress   string `long:"spender-address" env:"SPENDER_ADDRESS" required:"true" description:"spender whose allowances are tracked"`
	MulticallAddress string `long:"multicall-address" env:"MULTICALL_ADDRESS" default:"0xcA11bde05977b3631167028862bE2a173976CA11" description:"Multicall3 aggregator address, zero address disables aggregation"`

	FromBlock      uint64 `long:"from-block" env:"FROM_BLOCK" default:"0" description:"first block of the scan range"`
	ToBlock        string `long:"to-block" env:"TO_BLOCK" default:"latest" description:"last block of the scan range, or 'latest'"`
	BlockChunkSize uint64 `long:"block-chunk-size" env:"BLOCK_CHUNK_SIZE" default:"100000" description:"blocks per eth_getLogs request"`

	BatchSize    int `long:"batch-size" env:"BATCH_SIZE" default:"100" description:"owners per allowance/balance batch"`
	ScanWorkers  int `long:"scan-workers" env:"SCAN_WORKERS" default:"4" description:"concurrent chunk fetches"`
	QueryWorkers int `long:"query-workers" env:"QUERY_WORKERS" default:"4" description:"concurrent query batches"`

	OutputFile    string `long:"output-file" env:"OUTPUT_FILE" default:"active_allowances.txt" description:"report destination path"`
	ClickhouseDSN string `long:"clickhouse-dsn" env:"CLICKHOUSE_DSN" description:"optional ClickHouse DSN for snapshot persistence"`
	MetricsAddr   string `long:"metrics-addr" env:"METRICS_ADDR" description:"optional Prometheus listen address"`
}

// Settings is the validated, typed runtime configuration.
type Settings struct {
	Endpoints         []string
	RPCTimeout        time.Duration
	MaxRetries        int
	RetryDelay        time.Duration
	RateLimitDelay    time.Duration
	FailoverThreshold int

	Token     common.Address
	Spender   common.Address
	Multicall common.Address

	FromBlock      uint64
	ToBlock        uint64
	ToLatest       bool
	BlockChunkSize uint64

	BatchSize    int
	ScanWorkers  int
	QueryWorkers int

	OutputFile    string
	ClickhouseDSN string
	MetricsAddr   string
}

// Load reads config.env when present, parses args and validates the result.
// flags.Error values (help included) pass through unwrapped.
func Load(args []string) (Settings, error) {
	_ = godotenv.Load(envFile())

	var cfg Config
	if _, err := flags.ParseArgs(&cfg, args); err != nil {
		return Settings{}, err
	}
	return cfg.Settings()
}

func envFile() string {
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		return path
	}
	return defaultEnvFile
}

// Settings validates the raw configuration and converts it to typed form.
func (c Config) Settings() (Settings, error) {
	endpoints := make([]string, 0, len(c.RPCURLs))
	for _, url := range c.RPCURLs {
		url = strings.TrimSpace(url)
		if url != "" {
			endpoints = append(endpoints, url)
		}
	}
	if len(endpoints) == 0 {
		return Settings{}, errors.New("at least one rpc endpoint is required")
	}

	token, err := parseAddress("token", c.TokenAddress)
	if err != nil {
		return Settings{}, err
	}
	spender, err := parseAddress("spender", c.SpenderAddress)
	if err != nil {
		return Settings{}, err
	}

	multicall := common.Address{}
	if c.MulticallAddress != "" {
		multicall, err = parseAddress("multicall", c.MulticallAddress)
		if err != nil {
			return Settings{}, err
		}
	}

	if c.RPCTimeout <= 0 {
		return Settings{}, fmt.Errorf("rpc timeout must be positive, got %s", c.RPCTimeout)
	}
	if c.MaxRetries < 1 {
		return Settings{}, fmt.Errorf("max retries must be at least 1, got %d", c.MaxRetries)
	}
	if c.RetryDelay < 0 {
		return Settings{}, fmt.Errorf("retry delay must not be negative, got %s", c.RetryDelay)
	}
	if c.RateLimitDelay < 0 {
		return Settings{}, fmt.Errorf("rate limit delay must not be negative, got %s", c.RateLimitDelay)
	}
	if c.FailoverThreshold < 1 {
		return Settings{}, fmt.Errorf("failover threshold must be at least 1, got %d", c.FailoverThreshold)
	}
	if c.BlockChunkSize == 0 {
		return Settings{}, errors.New("block chunk size must be at least 1")
	}
	if c.BatchSize < 1 {
		return Settings{}, fmt.Errorf("batch size must be at least 1, got %d", c.BatchSize)
	}
	if c.ScanWorkers < 1 || c.QueryWorkers < 1 {
		return Settings{}, errors.New("worker counts must be at least 1")
	}
	if c.OutputFile == "" {
		return Settings{}, errors.New("output file is required")
	}

	s := Settings{
		Endpoints:         endpoints,
		RPCTimeout:        c.RPCTimeout,
		MaxRetries:        c.MaxRetries,
		RetryDelay:        c.RetryDelay,
		RateLimitDelay:    c.RateLimitDelay,
		FailoverThreshold: c.FailoverThreshold,
		Token:             token,
		Spender:           spender,
		Multicall:         multicall,
		FromBlock:         c.FromBlock,
		BlockChunkSize:    c.BlockChunkSize,
		BatchSize:         c.BatchSize,
		ScanWorkers:       c.ScanWorkers,
		QueryWorkers:      c.QueryWorkers,
		OutputFile:        c.OutputFile,
		ClickhouseDSN:     c.ClickhouseDSN,
		MetricsAddr:       c.MetricsAddr,
	}

	toBlock := strings.TrimSpace(strings.ToLower(c.ToBlock))
	switch toBlock {
	case "", latestToBlock:
		s.ToLatest = true
	default:
		height, parseErr := strconv.ParseUint(toBlock, 10, 64)
		if parseErr != nil {
			return Settings{}, fmt.Errorf("to block must be a block number or %q, got %q", latestToBlock, c.ToBlock)
		}
		if height < c.FromBlock {
			return Settings{}, fmt.Errorf("to block %d is below from block %d", height, c.FromBlock)
		}
		s.ToBlock = height
	}

	return s, nil
}

// MulticallEnabled reports whether batched reads go through the aggregator.
func (s Settings) MulticallEnabled() bool {
	return s.Multicall != (common.Address{})
}

func parseAddress(name, value string) (common.Address, error) {
	if !common.IsHexAddress(value) {
		return common.Address{}, fmt.Errorf("invalid %s address %q", name, value)
	}
	return common.HexToAddress(value), nil
}
