package query

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

//go:generate mockgen -source=$GOFILE -destination=mocks_test.go -package=$GOPACKAGE

type (
	// ContractCaller runs read-only contract calls. Implemented by evm.Client.
	ContractCaller interface {
		CallContract(ctx context.Context, to common.Address, data []byte) ([]byte, error)
	}

	EngineMetrics interface {
		ObserveBatch(mode string, err error, owners int, started time.Time)
		AddOwnerErrors(n int)
	}
)
