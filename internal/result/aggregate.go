// Package result joins fetched allowances and balances into the final report
// rows and renders the report.
package result

import (
	"bytes"
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum/common"
)

// Row is one line of the final report. Balance is nil when the balance could
// not be fetched, which is different from a zero balance.
type Row struct {
	Owner     common.Address
	Allowance *big.Int
	Balance   *big.Int
}

// ActiveOwners returns the owners whose fetched allowance is positive,
// sorted by address. Owners whose allowance lookup failed are absent from
// amounts and stay excluded.
func ActiveOwners(amounts map[common.Address]*big.Int) []common.Address {
	owners := make([]common.Address, 0, len(amounts))
	for owner, amount := range amounts {
		if amount != nil && amount.Sign() > 0 {
			owners = append(owners, owner)
		}
	}
	sort.Slice(owners, func(i, j int) bool {
		return bytes.Compare(owners[i][:], owners[j][:]) < 0
	})
	return owners
}

// Aggregate joins positive allowances with the fetched balances. Owners
// missing from balances keep a nil Balance. Rows come back sorted by balance
// descending, then allowance descending, then owner address ascending.
func Aggregate(allowances, balances map[common.Address]*big.Int) []Row {
	rows := make([]Row, 0, len(allowances))
	for owner, allowance := range allowances {
		if allowance == nil || allowance.Sign() <= 0 {
			continue
		}
		row := Row{Owner: owner, Allowance: allowance}
		if balance, ok := balances[owner]; ok {
			row.Balance = balance
		}
		rows = append(rows, row)
	}
	SortRows(rows)
	return rows
}

// SortRows orders rows by balance descending, allowance descending and owner
// address ascending. Unknown balances sort after every known balance.
func SortRows(rows []Row) {
	sort.Slice(rows, func(i, j int) bool {
		if c := cmpBalance(rows[i].Balance, rows[j].Balance); c != 0 {
			return c > 0
		}
		if c := rows[i].Allowance.Cmp(rows[j].Allowance); c != 0 {
			return c > 0
		}
		return bytes.Compare(rows[i].Owner[:], rows[j].Owner[:]) < 0
	})
}

// cmpBalance compares balances with nil (unknown) below any known value.
func cmpBalance(a, b *big.Int) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	default:
		return a.Cmp(b)
	}
}
