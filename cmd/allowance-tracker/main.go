package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jessevdk/go-flags"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/pauliax/token-spender-allowances/internal/config"
	"github.com/pauliax/token-spender-allowances/internal/evm"
	"github.com/pauliax/token-spender-allowances/internal/metrics"
	"github.com/pauliax/token-spender-allowances/internal/query"
	"github.com/pauliax/token-spender-allowances/internal/repository/clickhouse"
	"github.com/pauliax/token-spender-allowances/internal/result"
	"github.com/pauliax/token-spender-allowances/internal/scan"
	"github.com/pauliax/token-spender-allowances/internal/sink"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger, err := zap.NewDevelopment()
	if err != nil {
		panic("can't initialize zap logger: " + err.Error())
	}
	defer func() {
		_ = logger.Sync()
	}()

	cfg, err := config.Load(os.Args)
	if err != nil {
		var ferr *flags.Error
		if errors.As(err, &ferr) && ferr.Type == flags.ErrHelp {
			return
		}
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("allowance tracker failed", zap.Error(err))
	}
}

func run(ctx context.Context, cfg config.Settings, logger *zap.Logger) error {
	started := time.Now()

	if cfg.MetricsAddr != "" {
		startMetricsServer(ctx, cfg.MetricsAddr, logger)
	}

	logger.Info("starting allowance tracker",
		zap.Strings("endpoints", cfg.Endpoints),
		zap.String("token", cfg.Token.Hex()),
		zap.String("spender", cfg.Spender.Hex()),
		zap.Bool("multicall", cfg.MulticallEnabled()),
		zap.Uint64("from_block", cfg.FromBlock),
		zap.Bool("to_latest", cfg.ToLatest),
		zap.Uint64("chunk_size", cfg.BlockChunkSize),
		zap.Int("batch_size", cfg.BatchSize),
		zap.String("output_file", cfg.OutputFile))

	pool, err := evm.NewPool(cfg.Endpoints, cfg.FailoverThreshold)
	if err != nil {
		return fmt.Errorf("init endpoint pool: %w", err)
	}

	client, err := evm.NewClient(pool, nil, evm.ClientConfig{
		Timeout:        cfg.RPCTimeout,
		MaxRetries:     cfg.MaxRetries,
		RetryDelay:     cfg.RetryDelay,
		RateLimitDelay: cfg.RateLimitDelay,
	}, logger.Named("rpc"), metrics.NewRPCClient())
	if err != nil {
		return fmt.Errorf("init rpc client: %w", err)
	}
	defer client.Close()

	chainID, err := client.ChainID(ctx)
	if err != nil {
		return fmt.Errorf("probe chain id: %w", err)
	}
	logger.Info("connected",
		zap.String("chain_id", chainID.String()),
		zap.Int("endpoints", pool.Size()))

	toBlock := cfg.ToBlock
	if cfg.ToLatest {
		head, headErr := client.BlockNumber(ctx)
		if headErr != nil {
			return fmt.Errorf("resolve latest block: %w", headErr)
		}
		toBlock = head
		logger.Info("resolved latest block", zap.Uint64("to_block", toBlock))
	}
	if toBlock < cfg.FromBlock {
		return fmt.Errorf("chain head %d is below from block %d", toBlock, cfg.FromBlock)
	}

	scanner := scan.NewScanner(client, cfg.Token, cfg.Spender, scan.ScannerConfig{
		ChunkSize: cfg.BlockChunkSize,
		Workers:   cfg.ScanWorkers,
	}, logger.Named("scanner"), metrics.NewScanner())

	scanned, err := scanner.Scan(ctx, cfg.FromBlock, toBlock)
	if err != nil {
		return fmt.Errorf("scan approvals: %w", err)
	}

	if len(scanned.Owners) == 0 {
		logger.Info("no approval events found, nothing to report",
			zap.Uint64("from_block", cfg.FromBlock),
			zap.Uint64("to_block", toBlock))
		return nil
	}

	engine := query.NewEngine(client, cfg.Token, cfg.Spender, query.EngineConfig{
		BatchSize: cfg.BatchSize,
		Workers:   cfg.QueryWorkers,
		Multicall: cfg.Multicall,
	}, logger.Named("query"), metrics.NewQueryEngine())

	allowances, err := engine.Allowances(ctx, scanned.Owners)
	if err != nil {
		return fmt.Errorf("query allowances: %w", err)
	}

	active := result.ActiveOwners(allowances.Amounts)
	logger.Info("allowances fetched",
		zap.Int("owners", len(scanned.Owners)),
		zap.Int("active", len(active)),
		zap.Int("failed_owners", len(allowances.Errors)))

	var balances *query.Result
	if len(active) > 0 {
		balances, err = engine.Balances(ctx, active)
		if err != nil {
			return fmt.Errorf("query balances: %w", err)
		}
	} else {
		balances = &query.Result{}
	}

	rows := result.Aggregate(allowances.Amounts, balances.Amounts)
	meta := result.Meta{
		ChainID:     chainID,
		Token:       cfg.Token,
		Spender:     cfg.Spender,
		FromBlock:   cfg.FromBlock,
		ToBlock:     toBlock,
		GeneratedAt: time.Now().UTC(),
	}

	if err := result.WriteReportFile(cfg.OutputFile, meta, rows); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	logger.Info("report written",
		zap.String("path", cfg.OutputFile),
		zap.Int("rows", len(rows)))

	if cfg.ClickhouseDSN != "" {
		persistSnapshots(ctx, cfg.ClickhouseDSN, logger, meta, rows)
	}

	logger.Info("done",
		zap.Int("owners", len(scanned.Owners)),
		zap.Uint64("events", scanned.Events),
		zap.Uint64("malformed_logs", scanned.Malformed),
		zap.Int("active_allowances", len(rows)),
		zap.Int("allowance_errors", len(allowances.Errors)),
		zap.Int("balance_errors", len(balances.Errors)),
		zap.Duration("elapsed", time.Since(started).Round(time.Millisecond)))
	return nil
}

// persistSnapshots streams report rows to ClickHouse. Persistence is best
// effort, failures are logged and never abort a finished run.
func persistSnapshots(ctx context.Context, dsn string, logger *zap.Logger, meta result.Meta, rows []result.Row) {
	repo, err := clickhouse.NewRepository(dsn, metrics.NewClickhouseRepository())
	if err != nil {
		logger.Warn("snapshot persistence skipped", zap.Error(err))
		return
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			logger.Warn("close clickhouse connection", zap.Error(closeErr))
		}
	}()

	chainID := uint64(0)
	if meta.ChainID != nil {
		chainID = meta.ChainID.Uint64()
	}
	if prev, found, err := repo.LatestSnapshotBlock(ctx, chainID, meta.Token.Hex(), meta.Spender.Hex()); err != nil {
		logger.Warn("read previous snapshot coverage", zap.Error(err))
	} else if found {
		logger.Info("previous snapshots found", zap.Uint64("covered_to_block", prev))
	}

	writer := sink.NewWriter(repo, logger.Named("sink"))
	writer.Start(ctx)

	written := 0
	for _, snapshot := range sink.SnapshotRows(meta, rows) {
		if err := writer.WriteSnapshot(ctx, snapshot); err != nil {
			logger.Warn("snapshot write aborted", zap.Error(err), zap.Int("written", written))
			break
		}
		written++
	}
	writer.Stop()

	logger.Info("snapshots persisted", zap.Int("rows", written))
}

func startMetricsServer(ctx context.Context, addr string, logger *zap.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info("starting metrics server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", zap.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to shutdown metrics server", zap.Error(err))
		}
	}()
}
