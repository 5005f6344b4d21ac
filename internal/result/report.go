package result

import (
	"bufio"
	"fmt"
	"io"
	"math/big"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// BalanceUnavailable is written in place of a balance that could not be
// fetched. An unknown balance must stay distinguishable from a zero one.
const BalanceUnavailable = "unavailable"

// Meta describes the run that produced the rows.
type Meta struct {
	ChainID     *big.Int
	Token       common.Address
	Spender     common.Address
	FromBlock   uint64
	ToBlock     uint64
	GeneratedAt time.Time
}

// WriteReport renders the commented header and one comma-separated line per
// row to w.
func WriteReport(w io.Writer, meta Meta, rows []Row) error {
	bw := bufio.NewWriter(w)

	fmt.Fprintln(bw, "# Token Allowance Analysis Report")
	fmt.Fprintf(bw, "# Generated: %s UTC\n", meta.GeneratedAt.UTC().Format("2006-01-02 15:04:05"))
	fmt.Fprintf(bw, "# Chain ID: %s\n", meta.ChainID)
	fmt.Fprintf(bw, "# Token: %s\n", meta.Token.Hex())
	fmt.Fprintf(bw, "# Spender: %s\n", meta.Spender.Hex())
	fmt.Fprintf(bw, "# Block Range: %d to %d\n", meta.FromBlock, meta.ToBlock)
	fmt.Fprintf(bw, "# Total Active Allowances: %d\n", len(rows))
	fmt.Fprintln(bw, "#")
	fmt.Fprintln(bw, "# Format: owner_address,allowance_amount,current_balance")
	fmt.Fprintln(bw, "# Sorted by: balance DESC, allowance DESC")
	fmt.Fprintln(bw)

	for _, row := range rows {
		balance := BalanceUnavailable
		if row.Balance != nil {
			balance = row.Balance.String()
		}
		fmt.Fprintf(bw, "%s,%s,%s\n", row.Owner.Hex(), row.Allowance, balance)
	}
	return bw.Flush()
}

// WriteReportFile writes the report to path, creating or truncating the file.
func WriteReportFile(path string, meta Meta, rows []Row) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create report file: %w", err)
	}
	if err := WriteReport(f, meta, rows); err != nil {
		f.Close()
		return fmt.Errorf("write report: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close report file: %w", err)
	}
	return nil
}
