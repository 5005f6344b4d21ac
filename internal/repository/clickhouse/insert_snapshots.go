package clickhouse

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/pauliax/token-spender-allowances/internal/model"
)

// InsertSnapshots stores allowance snapshot rows in ClickHouse.
func (r *Repository) InsertSnapshots(ctx context.Context, snapshots []model.AllowanceSnapshot) error {
	start := time.Now()
	var err error
	defer func() {
		r.metrics.Observe("insert_snapshots", err, start)
	}()

	if len(snapshots) == 0 {
		return nil
	}

	const query = `
INSERT INTO allowance_snapshots (
	chain_id,
	token,
	spender,
	owner,
	allowance,
	balance,
	balance_known,
	from_block,
	to_block,
	generated_at
) VALUES`

	batch, err := r.conn.PrepareBatch(ctx, query)
	if err != nil {
		return fmt.Errorf("prepare snapshots batch: %w", err)
	}

	for _, snapshot := range snapshots {
		if err = batch.Append(
			snapshot.ChainID,
			snapshot.Token,
			snapshot.Spender,
			snapshot.Owner,
			amountOrZero(snapshot.Allowance),
			amountOrZero(snapshot.Balance),
			snapshot.BalanceKnown,
			snapshot.FromBlock,
			snapshot.ToBlock,
			snapshot.GeneratedAt,
		); err != nil {
			return fmt.Errorf("append snapshot: %w", err)
		}
	}

	if err = batch.Send(); err != nil {
		return fmt.Errorf("insert snapshots: %w", err)
	}
	return nil
}

// amountOrZero keeps appends total for rows whose balance was unavailable,
// the balance_known column preserves the distinction.
func amountOrZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}
