// Package erc20 packs and unpacks the ERC-20 calldata and log payloads used
// by the allowance tracker: the allowance and balanceOf view calls and the
// Approval event.
package erc20

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

const erc20ABIJSON = `[
	{"constant":true,"inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],"name":"allowance","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
	{"constant":true,"inputs":[{"name":"account","type":"address"}],"name":"balanceOf","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
	{"anonymous":false,"inputs":[{"indexed":true,"name":"owner","type":"address"},{"indexed":true,"name":"spender","type":"address"},{"indexed":false,"name":"value","type":"uint256"}],"name":"Approval","type":"event"}
]`

var (
	erc20ABI abi.ABI

	// ApprovalTopic is the topic0 of the ERC-20 Approval(address,address,uint256) event.
	ApprovalTopic common.Hash
)

func init() {
	parsed, err := abi.JSON(strings.NewReader(erc20ABIJSON))
	if err != nil {
		panic(fmt.Sprintf("parse erc20 abi: %v", err))
	}
	erc20ABI = parsed
	ApprovalTopic = erc20ABI.Events["Approval"].ID
}

// ApprovalEvent is a decoded ERC-20 Approval log.
type ApprovalEvent struct {
	Owner   common.Address
	Spender common.Address
	Amount  *big.Int
	Block   uint64
}

// ParseApproval decodes an Approval log. Logs that do not carry the standard
// two indexed addresses plus a 32-byte amount are rejected, some non-standard
// tokens emit Approval with a different shape.
func ParseApproval(lg types.Log) (ApprovalEvent, error) {
	if len(lg.Topics) != 3 {
		return ApprovalEvent{}, fmt.Errorf("approval log has %d topics, want 3", len(lg.Topics))
	}
	if lg.Topics[0] != ApprovalTopic {
		return ApprovalEvent{}, fmt.Errorf("unexpected topic0 %s", lg.Topics[0])
	}
	if len(lg.Data) != 32 {
		return ApprovalEvent{}, fmt.Errorf("approval log data is %d bytes, want 32", len(lg.Data))
	}
	return ApprovalEvent{
		Owner:   common.BytesToAddress(lg.Topics[1].Bytes()),
		Spender: common.BytesToAddress(lg.Topics[2].Bytes()),
		Amount:  new(big.Int).SetBytes(lg.Data),
		Block:   lg.BlockNumber,
	}, nil
}

// AddressTopic left-pads an address to the 32-byte form it takes as an
// indexed event topic.
func AddressTopic(addr common.Address) common.Hash {
	return common.BytesToHash(common.LeftPadBytes(addr.Bytes(), common.HashLength))
}

// PackAllowance builds calldata for allowance(owner, spender).
func PackAllowance(owner, spender common.Address) ([]byte, error) {
	return erc20ABI.Pack("allowance", owner, spender)
}

// PackBalanceOf builds calldata for balanceOf(account).
func PackBalanceOf(account common.Address) ([]byte, error) {
	return erc20ABI.Pack("balanceOf", account)
}

// UnpackUint256 decodes the single uint256 word returned by the allowance and
// balanceOf calls.
func UnpackUint256(data []byte) (*big.Int, error) {
	if len(data) != 32 {
		return nil, fmt.Errorf("return data is %d bytes, want 32", len(data))
	}
	return new(big.Int).SetBytes(data), nil
}
