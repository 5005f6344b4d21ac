// Package query reads current allowances and balances for sets of owners. It
// batches the reads through Multicall3 when a multicall contract is
// configured and degrades to individual eth_call requests for batches the
// aggregated call cannot serve.
package query

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/pauliax/token-spender-allowances/internal/erc20"
	"github.com/pauliax/token-spender-allowances/internal/evm"
	"github.com/pauliax/token-spender-allowances/pkg/workerpool"
)

const defaultBatchSize = 100

// Batch execution modes reported to logs and metrics.
const (
	modeMulticall  = "multicall"
	modeIndividual = "individual"
)

type callKind int

const (
	kindAllowance callKind = iota
	kindBalance
)

func (k callKind) String() string {
	if k == kindBalance {
		return "balance_of"
	}
	return "allowance"
}

// Result maps each queried owner to the fetched amount. Owners missing from
// Amounts failed and appear in Errors instead, absence is never treated as a
// zero amount.
type Result struct {
	Amounts map[common.Address]*big.Int
	Errors  map[common.Address]error
	// Batches counts executed batches, FallbackBatches the subset that fell
	// back to individual calls after the aggregated call failed.
	Batches         int
	FallbackBatches int
}

// EngineConfig bounds batching and concurrency of the engine.
type EngineConfig struct {
	// BatchSize is the number of owners grouped into one batch.
	BatchSize int
	// Workers is the number of batches queried concurrently.
	Workers int
	// Multicall is the Multicall3 contract address. The zero address disables
	// aggregated calls, every owner is then queried individually.
	Multicall common.Address
}

// Engine fetches per-owner token state in batches.
type Engine struct {
	caller       ContractCaller
	logger       *zap.Logger
	metrics      EngineMetrics
	token        common.Address
	spender      common.Address
	multicall    common.Address
	useMulticall bool
	batchSize    int
	workers      int
}

// NewEngine builds an engine reading state of token for allowances towards
// spender.
func NewEngine(caller ContractCaller, token, spender common.Address, cfg EngineConfig, logger *zap.Logger, metrics EngineMetrics) *Engine {
	if cfg.BatchSize < 1 {
		cfg.BatchSize = defaultBatchSize
	}
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	return &Engine{
		caller:       caller,
		logger:       logger,
		metrics:      metrics,
		token:        token,
		spender:      spender,
		multicall:    cfg.Multicall,
		useMulticall: cfg.Multicall != (common.Address{}),
		batchSize:    cfg.BatchSize,
		workers:      cfg.Workers,
	}
}

// Allowances fetches allowance(owner, spender) for every owner.
func (e *Engine) Allowances(ctx context.Context, owners []common.Address) (*Result, error) {
	return e.run(ctx, kindAllowance, owners)
}

// Balances fetches balanceOf(owner) for every owner.
func (e *Engine) Balances(ctx context.Context, owners []common.Address) (*Result, error) {
	return e.run(ctx, kindBalance, owners)
}

func (e *Engine) run(ctx context.Context, kind callKind, owners []common.Address) (*Result, error) {
	result := &Result{
		Amounts: make(map[common.Address]*big.Int, len(owners)),
		Errors:  make(map[common.Address]error),
	}
	if len(owners) == 0 {
		return result, nil
	}

	// Sort for a deterministic batch layout regardless of scan order.
	sorted := make([]common.Address, len(owners))
	copy(sorted, owners)
	sort.Slice(sorted, func(i, j int) bool {
		return bytes.Compare(sorted[i][:], sorted[j][:]) < 0
	})
	batches := partition(sorted, e.batchSize)

	mode := modeIndividual
	if e.useMulticall {
		mode = modeMulticall
	}
	e.logger.Info("querying token state",
		zap.String("call", kind.String()),
		zap.Int("owners", len(sorted)),
		zap.Int("batches", len(batches)),
		zap.String("mode", mode))

	var mu sync.Mutex
	err := workerpool.Process(ctx, e.workers, batches, func(ctx context.Context, batch []common.Address) error {
		amounts, ownerErrs, fellBack, err := e.queryBatch(ctx, kind, batch)
		if err != nil {
			return err
		}
		if len(ownerErrs) > 0 {
			e.metrics.AddOwnerErrors(len(ownerErrs))
		}

		mu.Lock()
		defer mu.Unlock()
		for owner, v := range amounts {
			result.Amounts[owner] = v
		}
		for owner, oerr := range ownerErrs {
			result.Errors[owner] = oerr
		}
		result.Batches++
		if fellBack {
			result.FallbackBatches++
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", kind, err)
	}

	e.logger.Info("token state query complete",
		zap.String("call", kind.String()),
		zap.Int("owners", len(result.Amounts)),
		zap.Int("failed_owners", len(result.Errors)),
		zap.Int("fallback_batches", result.FallbackBatches))
	return result, nil
}

// queryBatch fetches one batch, preferring the aggregated call. A failed
// aggregated call degrades this batch to individual calls instead of
// disabling multicall globally.
func (e *Engine) queryBatch(ctx context.Context, kind callKind, owners []common.Address) (map[common.Address]*big.Int, map[common.Address]error, bool, error) {
	if !e.useMulticall {
		amounts, ownerErrs, err := e.individualBatch(ctx, kind, owners)
		return amounts, ownerErrs, false, err
	}

	amounts, ownerErrs, err := e.multicallBatch(ctx, kind, owners)
	if err == nil {
		return amounts, ownerErrs, false, nil
	}
	if fatal(ctx, err) {
		return nil, nil, false, err
	}

	e.logger.Warn("multicall batch failed, retrying owners individually",
		zap.String("call", kind.String()),
		zap.Int("owners", len(owners)),
		zap.Error(err))
	amounts, ownerErrs, err = e.individualBatch(ctx, kind, owners)
	return amounts, ownerErrs, true, err
}

func (e *Engine) multicallBatch(ctx context.Context, kind callKind, owners []common.Address) (amounts map[common.Address]*big.Int, ownerErrs map[common.Address]error, err error) {
	started := time.Now()
	defer func() {
		e.metrics.ObserveBatch(modeMulticall, err, len(owners), started)
	}()

	calls := make([]erc20.Call, 0, len(owners))
	for _, owner := range owners {
		data, perr := e.packCall(kind, owner)
		if perr != nil {
			err = fmt.Errorf("pack %s call: %w", kind, perr)
			return nil, nil, err
		}
		calls = append(calls, erc20.Call{Target: e.token, CallData: data})
	}

	payload, perr := erc20.PackTryAggregate(false, calls)
	if perr != nil {
		err = fmt.Errorf("pack tryAggregate: %w", perr)
		return nil, nil, err
	}

	raw, cerr := e.caller.CallContract(ctx, e.multicall, payload)
	if cerr != nil {
		err = cerr
		return nil, nil, err
	}

	results, uerr := erc20.UnpackTryAggregate(raw)
	if uerr != nil {
		err = uerr
		return nil, nil, err
	}
	if len(results) != len(owners) {
		err = fmt.Errorf("multicall returned %d results for %d calls", len(results), len(owners))
		return nil, nil, err
	}

	amounts = make(map[common.Address]*big.Int, len(owners))
	ownerErrs = make(map[common.Address]error)
	for i, res := range results {
		owner := owners[i]
		if !res.Success {
			ownerErrs[owner] = fmt.Errorf("%s reverted for %s", kind, owner.Hex())
			continue
		}
		value, derr := erc20.UnpackUint256(res.ReturnData)
		if derr != nil {
			ownerErrs[owner] = fmt.Errorf("decode %s return for %s: %w", kind, owner.Hex(), derr)
			continue
		}
		amounts[owner] = value
	}
	return amounts, ownerErrs, nil
}

func (e *Engine) individualBatch(ctx context.Context, kind callKind, owners []common.Address) (amounts map[common.Address]*big.Int, ownerErrs map[common.Address]error, err error) {
	started := time.Now()
	defer func() {
		e.metrics.ObserveBatch(modeIndividual, err, len(owners), started)
	}()

	amounts = make(map[common.Address]*big.Int, len(owners))
	ownerErrs = make(map[common.Address]error)
	for _, owner := range owners {
		if cerr := ctx.Err(); cerr != nil {
			err = cerr
			return nil, nil, err
		}

		data, perr := e.packCall(kind, owner)
		if perr != nil {
			err = fmt.Errorf("pack %s call: %w", kind, perr)
			return nil, nil, err
		}

		raw, cerr := e.caller.CallContract(ctx, e.token, data)
		if cerr != nil {
			if fatal(ctx, cerr) {
				err = cerr
				return nil, nil, err
			}
			ownerErrs[owner] = cerr
			continue
		}

		value, derr := erc20.UnpackUint256(raw)
		if derr != nil {
			ownerErrs[owner] = fmt.Errorf("decode %s return for %s: %w", kind, owner.Hex(), derr)
			continue
		}
		amounts[owner] = value
	}
	return amounts, ownerErrs, nil
}

func (e *Engine) packCall(kind callKind, owner common.Address) ([]byte, error) {
	if kind == kindBalance {
		return erc20.PackBalanceOf(owner)
	}
	return erc20.PackAllowance(owner, e.spender)
}

// fatal reports errors that abort the whole run instead of degrading a
// single owner or batch.
func fatal(ctx context.Context, err error) bool {
	return ctx.Err() != nil || errors.Is(err, evm.ErrAllEndpointsExhausted)
}

// partition splits owners into consecutive groups of at most size.
func partition(owners []common.Address, size int) [][]common.Address {
	batches := make([][]common.Address, 0, (len(owners)+size-1)/size)
	for start := 0; start < len(owners); start += size {
		end := start + size
		if end > len(owners) {
			end = len(owners)
		}
		batches = append(batches, owners[start:end])
	}
	return batches
}
