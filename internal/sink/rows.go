package sink

import (
	"github.com/pauliax/token-spender-allowances/internal/model"
	"github.com/pauliax/token-spender-allowances/internal/result"
)

// SnapshotRows converts finished report rows into snapshot models.
func SnapshotRows(meta result.Meta, rows []result.Row) []model.AllowanceSnapshot {
	var chainID uint64
	if meta.ChainID != nil {
		chainID = meta.ChainID.Uint64()
	}

	snapshots := make([]model.AllowanceSnapshot, 0, len(rows))
	for _, row := range rows {
		snapshots = append(snapshots, model.AllowanceSnapshot{
			ChainID:      chainID,
			Token:        meta.Token.Hex(),
			Spender:      meta.Spender.Hex(),
			Owner:        row.Owner.Hex(),
			Allowance:    row.Allowance,
			Balance:      row.Balance,
			BalanceKnown: row.Balance != nil,
			FromBlock:    meta.FromBlock,
			ToBlock:      meta.ToBlock,
			GeneratedAt:  meta.GeneratedAt,
		})
	}
	return snapshots
}
