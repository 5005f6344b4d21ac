// Package model defines the domain models shared across the allowance
// tracker services.
package model

import (
	"math/big"
	"time"
)

// AllowanceSnapshot describes one active allowance row stored in ClickHouse.
// Balance carries zero when BalanceKnown is false, the column pair keeps
// unavailable balances distinguishable from genuine zeroes.
type AllowanceSnapshot struct {
	ChainID      uint64
	Token        string
	Spender      string
	Owner        string
	Allowance    *big.Int
	Balance      *big.Int
	BalanceKnown bool
	FromBlock    uint64
	ToBlock      uint64
	GeneratedAt  time.Time
}
