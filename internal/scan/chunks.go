package scan

import (
	"errors"
	"fmt"
	"math"

	"github.com/pauliax/token-spender-allowances/pkg/safe"
)

// Chunk is an inclusive block range covered by a single eth_getLogs call.
type Chunk struct {
	From uint64
	To   uint64
}

// Blocks returns the number of blocks the chunk covers.
func (c Chunk) Blocks() uint64 {
	return c.To - c.From + 1
}

// splitRange cuts the inclusive range [from, to] into consecutive chunks of
// at most size blocks. The chunks cover the range exactly, without gaps or
// overlaps.
func splitRange(from, to, size uint64) ([]Chunk, error) {
	if to < from {
		return nil, fmt.Errorf("block range end %d before start %d", to, from)
	}
	if size == 0 {
		return nil, errors.New("chunk size must be positive")
	}
	span := to - from
	if span == math.MaxUint64 {
		return nil, fmt.Errorf("block range [%d, %d] too large", from, to)
	}
	count, err := safe.Int(span/size + 1)
	if err != nil {
		return nil, fmt.Errorf("block range [%d, %d] with chunk size %d: %w", from, to, size, err)
	}

	chunks := make([]Chunk, 0, count)
	cur := from
	for {
		end := to
		// cur+size-1 without overflow.
		if size-1 <= to-cur {
			end = cur + size - 1
		}
		chunks = append(chunks, Chunk{From: cur, To: end})
		if end == to {
			return chunks, nil
		}
		cur = end + 1
	}
}
