package evm

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/rpc"
)

// Class buckets RPC failures by how the retry loop should react.
type Class int

const (
	// ClassTransport covers timeouts, connection failures and other transient
	// server errors. Retried, counted against endpoint health.
	ClassTransport Class = iota
	// ClassRateLimit covers throttling responses. Retried without counting
	// against endpoint health.
	ClassRateLimit
	// ClassData covers reverts and malformed requests. Not retried, another
	// attempt would fail the same way.
	ClassData
)

func (c Class) String() string {
	switch c {
	case ClassRateLimit:
		return "rate_limit"
	case ClassData:
		return "data"
	default:
		return "transport"
	}
}

// JSON-RPC error codes seen from public providers.
const (
	codeRateLimited     = -32005
	codeExecutionRevert = 3
	codeMethodNotFound  = -32601
	codeInvalidParams   = -32602
	codeParse           = -32700
)

// Classify buckets err for the retry loop. Unknown errors classify as
// transport, retrying is the safe default for anything a different endpoint
// might answer.
func Classify(err error) Class {
	var httpErr rpc.HTTPError
	if errors.As(err, &httpErr) {
		if httpErr.StatusCode == http.StatusTooManyRequests {
			return ClassRateLimit
		}
		return ClassTransport
	}

	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) {
		switch rpcErr.ErrorCode() {
		case codeRateLimited, http.StatusTooManyRequests:
			return ClassRateLimit
		case codeExecutionRevert, codeMethodNotFound, codeInvalidParams, codeParse:
			return ClassData
		}
	}

	var dataErr rpc.DataError
	if errors.As(err, &dataErr) && dataErr.ErrorData() != nil {
		return ClassData
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return ClassTransport
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ClassTransport
	}

	msg := strings.ToLower(err.Error())
	switch {
	case containsAny(msg, "too many requests", "rate limit", "ratelimit"):
		return ClassRateLimit
	case containsAny(msg, "execution reverted", "revert", "invalid opcode", "out of gas"):
		return ClassData
	}
	return ClassTransport
}

func containsAny(s string, tokens ...string) bool {
	for _, t := range tokens {
		if strings.Contains(s, t) {
			return true
		}
	}
	return false
}
