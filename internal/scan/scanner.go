// Package scan reconstructs the set of addresses that ever granted an
// allowance to a spender by walking historical Approval logs in bounded
// block chunks.
package scan

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"github.com/pauliax/token-spender-allowances/internal/erc20"
	"github.com/pauliax/token-spender-allowances/pkg/workerpool"
)

const defaultChunkSize = 100_000

// ScanError is returned when a scan aborts. It carries the end of the
// contiguous completed prefix so the run can be restarted without rescanning
// those blocks.
type ScanError struct {
	// LastCompleted is the highest block up to which the scan is complete.
	// Only meaningful when Resumable is true.
	LastCompleted uint64
	// Resumable is false when the scan failed before completing any chunk.
	Resumable bool
	Err       error
}

func (e *ScanError) Error() string {
	if !e.Resumable {
		return fmt.Sprintf("scan aborted before completing any chunk: %v", e.Err)
	}
	return fmt.Sprintf("scan aborted, complete up to block %d, restart with FROM_BLOCK=%d: %v",
		e.LastCompleted, e.LastCompleted+1, e.Err)
}

func (e *ScanError) Unwrap() error { return e.Err }

// Result is the outcome of a completed scan.
type Result struct {
	// Owners are the distinct addresses that approved the spender inside the
	// range, in no particular order.
	Owners []common.Address
	// Blocks is the number of blocks covered, Chunks the number of
	// eth_getLogs calls the range was cut into.
	Blocks uint64
	Chunks int
	// Events counts decoded Approval events, Malformed the logs that did not
	// decode as standard Approvals and were skipped.
	Events    uint64
	Malformed uint64
}

// ScannerConfig bounds chunking and concurrency of a scan.
type ScannerConfig struct {
	// ChunkSize is the maximum number of blocks per eth_getLogs call.
	ChunkSize uint64
	// Workers is the number of chunks fetched concurrently.
	Workers int
}

// Scanner walks a block range in chunks and collects the owners that emitted
// Approval events towards the configured spender.
type Scanner struct {
	reader    LogReader
	logger    *zap.Logger
	metrics   ScannerMetrics
	token     common.Address
	spender   common.Address
	chunkSize uint64
	workers   int
}

// NewScanner builds a scanner for Approval logs of token towards spender.
func NewScanner(reader LogReader, token, spender common.Address, cfg ScannerConfig, logger *zap.Logger, metrics ScannerMetrics) *Scanner {
	if cfg.ChunkSize == 0 {
		cfg.ChunkSize = defaultChunkSize
	}
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	return &Scanner{
		reader:    reader,
		logger:    logger,
		metrics:   metrics,
		token:     token,
		spender:   spender,
		chunkSize: cfg.ChunkSize,
		workers:   cfg.Workers,
	}
}

// Scan walks the inclusive block range [from, to] and returns the distinct
// owners that approved the spender. Any chunk failure aborts the scan with a
// ScanError naming the block to resume from.
func (s *Scanner) Scan(ctx context.Context, from, to uint64) (*Result, error) {
	started := time.Now()

	chunks, err := splitRange(from, to, s.chunkSize)
	if err != nil {
		return nil, err
	}

	s.logger.Info("scanning approval logs",
		zap.String("token", s.token.Hex()),
		zap.String("spender", s.spender.Hex()),
		zap.Uint64("from_block", from),
		zap.Uint64("to_block", to),
		zap.Int("chunks", len(chunks)),
		zap.Uint64("chunk_size", s.chunkSize))

	var (
		mu        sync.Mutex
		owners    = make(map[common.Address]struct{})
		events    uint64
		malformed uint64
	)
	prog := newProgress(to - from + 1)
	wm := newWatermark(chunks)

	indexes := make([]int, len(chunks))
	for i := range indexes {
		indexes[i] = i
	}

	err = workerpool.Process(ctx, s.workers, indexes, func(ctx context.Context, i int) error {
		chunk := chunks[i]
		logs, err := s.fetchChunk(ctx, chunk)
		if err != nil {
			return err
		}

		newOwners := 0
		mu.Lock()
		for _, lg := range logs {
			event, perr := erc20.ParseApproval(lg)
			if perr != nil {
				malformed++
				continue
			}
			events++
			// The query pins the spender topic, re-check for providers that
			// apply positional topic filters loosely.
			if event.Spender != s.spender {
				continue
			}
			if _, ok := owners[event.Owner]; !ok {
				owners[event.Owner] = struct{}{}
				newOwners++
			}
		}
		mu.Unlock()

		wm.complete(i)
		snap := prog.add(chunk.Blocks())
		s.logger.Info("chunk scanned",
			zap.Uint64("from_block", chunk.From),
			zap.Uint64("to_block", chunk.To),
			zap.Int("logs", len(logs)),
			zap.Int("new_owners", newOwners),
			zap.String("progress", fmt.Sprintf("%.1f%%", snap.Percent)),
			zap.Duration("elapsed", snap.Elapsed.Round(time.Second)),
			zap.Duration("eta", snap.Remaining.Round(time.Second)))
		return nil
	})
	if err != nil {
		s.metrics.ObserveScan(err, 0, started)
		boundary, ok := wm.boundary()
		return nil, &ScanError{LastCompleted: boundary, Resumable: ok, Err: err}
	}

	result := &Result{
		Owners:    make([]common.Address, 0, len(owners)),
		Blocks:    to - from + 1,
		Chunks:    len(chunks),
		Events:    events,
		Malformed: malformed,
	}
	for owner := range owners {
		result.Owners = append(result.Owners, owner)
	}

	s.metrics.ObserveScan(nil, len(result.Owners), started)
	s.logger.Info("scan complete",
		zap.Int("owners", len(result.Owners)),
		zap.Uint64("events", events),
		zap.Uint64("malformed", malformed),
		zap.Duration("elapsed", time.Since(started).Round(time.Millisecond)))
	return result, nil
}

func (s *Scanner) fetchChunk(ctx context.Context, chunk Chunk) ([]types.Log, error) {
	started := time.Now()
	logs, err := s.reader.FilterLogs(ctx, s.filterQuery(chunk))
	s.metrics.ObserveChunk(err, chunk.Blocks(), started)
	if err != nil {
		return nil, fmt.Errorf("fetch logs for blocks %d-%d: %w", chunk.From, chunk.To, err)
	}
	return logs, nil
}

func (s *Scanner) filterQuery(chunk Chunk) ethereum.FilterQuery {
	return ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(chunk.From),
		ToBlock:   new(big.Int).SetUint64(chunk.To),
		Addresses: []common.Address{s.token},
		Topics: [][]common.Hash{
			{erc20.ApprovalTopic},
			nil,
			{erc20.AddressTopic(s.spender)},
		},
	}
}
