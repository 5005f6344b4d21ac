package erc20

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

const multicallABIJSON = `[
	{"inputs":[{"name":"requireSuccess","type":"bool"},{"components":[{"name":"target","type":"address"},{"name":"callData","type":"bytes"}],"name":"calls","type":"tuple[]"}],"name":"tryAggregate","outputs":[{"components":[{"name":"success","type":"bool"},{"name":"returnData","type":"bytes"}],"name":"returnData","type":"tuple[]"}],"stateMutability":"payable","type":"function"}
]`

var multicallABI abi.ABI

func init() {
	parsed, err := abi.JSON(strings.NewReader(multicallABIJSON))
	if err != nil {
		panic(fmt.Sprintf("parse multicall abi: %v", err))
	}
	multicallABI = parsed
}

// Call is a single sub-call inside a Multicall3 tryAggregate request.
type Call struct {
	Target   common.Address
	CallData []byte
}

// Result is the outcome of one sub-call. Success is false when the sub-call
// reverted, ReturnData then holds the revert payload if any.
type Result struct {
	Success    bool
	ReturnData []byte
}

// PackTryAggregate builds calldata for tryAggregate(requireSuccess, calls).
func PackTryAggregate(requireSuccess bool, calls []Call) ([]byte, error) {
	return multicallABI.Pack("tryAggregate", requireSuccess, calls)
}

// UnpackTryAggregate decodes a tryAggregate response into per-call results.
func UnpackTryAggregate(data []byte) ([]Result, error) {
	decoded, err := multicallABI.Unpack("tryAggregate", data)
	if err != nil {
		return nil, fmt.Errorf("unpack tryAggregate: %w", err)
	}
	raw, ok := decoded[0].([]struct {
		Success    bool    `json:"success"`
		ReturnData []uint8 `json:"returnData"`
	})
	if !ok {
		return nil, fmt.Errorf("unexpected tryAggregate result type %T", decoded[0])
	}
	results := make([]Result, 0, len(raw))
	for _, r := range raw {
		results = append(results, Result{Success: r.Success, ReturnData: r.ReturnData})
	}
	return results, nil
}

// PackTryAggregateResponse encodes per-call results back into the wire form
// tryAggregate returns. The inverse of UnpackTryAggregate.
func PackTryAggregateResponse(results []Result) ([]byte, error) {
	raw := make([]struct {
		Success    bool    `json:"success"`
		ReturnData []uint8 `json:"returnData"`
	}, 0, len(results))
	for _, r := range results {
		raw = append(raw, struct {
			Success    bool    `json:"success"`
			ReturnData []uint8 `json:"returnData"`
		}{Success: r.Success, ReturnData: r.ReturnData})
	}
	return multicallABI.Methods["tryAggregate"].Outputs.Pack(raw)
}
