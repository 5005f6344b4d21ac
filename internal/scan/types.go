package scan

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/core/types"
)

//go:generate mockgen -source=$GOFILE -destination=mocks_test.go -package=$GOPACKAGE

type (
	// LogReader fetches historical logs. Implemented by evm.Client.
	LogReader interface {
		FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
	}

	ScannerMetrics interface {
		ObserveChunk(err error, blocks uint64, started time.Time)
		ObserveScan(err error, owners int, started time.Time)
	}
)
