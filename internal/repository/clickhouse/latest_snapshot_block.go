package clickhouse

import (
	"context"
	"fmt"
	"time"
)

// LatestSnapshotBlock returns the highest scanned-to block among stored
// snapshots for a chain, token and spender. found is false when no run
// has been persisted yet.
func (r *Repository) LatestSnapshotBlock(ctx context.Context, chainID uint64, token, spender string) (uint64, bool, error) {
	start := time.Now()
	var err error
	defer func() {
		r.metrics.Observe("latest_snapshot_block", err, start)
	}()

	const query = `
SELECT coalesce(max(to_block), toUInt64(0)) AS max_to_block, count() AS total
FROM allowance_snapshots
WHERE chain_id = ? AND token = ? AND spender = ?`

	rows, err := r.conn.Query(ctx, query, chainID, token, spender)
	if err != nil {
		return 0, false, fmt.Errorf("query latest snapshot block: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("close rows: %w", closeErr)
		}
	}()

	var (
		toBlock uint64
		total   uint64
	)
	if !rows.Next() {
		return 0, false, fmt.Errorf("latest snapshot block not found")
	}

	if err = rows.Scan(&toBlock, &total); err != nil {
		return 0, false, fmt.Errorf("scan latest snapshot block: %w", err)
	}
	if err = rows.Err(); err != nil {
		return 0, false, fmt.Errorf("iterate latest snapshot block: %w", err)
	}

	return toBlock, total > 0, nil
}
