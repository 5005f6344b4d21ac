package evm

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/core/types"
)

//go:generate mockgen -source=$GOFILE -destination=mocks_test.go -package=$GOPACKAGE

type (
	// Backend is the slice of the go-ethereum client surface the tracker
	// needs. Satisfied by *ethclient.Client.
	Backend interface {
		BlockNumber(ctx context.Context) (uint64, error)
		ChainID(ctx context.Context) (*big.Int, error)
		FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
		CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
		Close()
	}

	Metrics interface {
		Observe(operation, endpoint string, err error, started time.Time)
	}
)

// DialFunc opens a backend connection to an RPC endpoint.
type DialFunc func(ctx context.Context, url string) (Backend, error)
