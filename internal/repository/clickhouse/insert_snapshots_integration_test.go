package clickhouse

import (
	"math/big"
	"time"

	"github.com/golang/mock/gomock"

	"github.com/pauliax/token-spender-allowances/internal/model"
)

func (s *RepositorySuite) TestInsertSnapshots() {
	now := time.Now().UTC().Truncate(time.Millisecond)
	snapshots := []model.AllowanceSnapshot{
		newSnapshot("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa", 500, 1200, now),
		newSnapshot("0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb", 70, 0, now),
	}

	s.metrics.EXPECT().Observe("insert_snapshots", gomock.Nil(), gomock.Any()).Times(1)

	s.Require().NoError(s.repo.InsertSnapshots(s.testCtx, snapshots))
	s.Equal(uint64(len(snapshots)), s.countRows("allowance_snapshots"))
}

func (s *RepositorySuite) TestInsertSnapshotsEmptyStillRecordsMetrics() {
	s.metrics.EXPECT().Observe("insert_snapshots", gomock.Nil(), gomock.Any()).Times(1)

	s.Require().NoError(s.repo.InsertSnapshots(s.testCtx, nil))
	s.Equal(uint64(0), s.countRows("allowance_snapshots"))
}

func (s *RepositorySuite) TestInsertSnapshotsRoundTripsLargeAmounts() {
	now := time.Now().UTC().Truncate(time.Millisecond)
	snapshot := newSnapshot("0xcccccccccccccccccccccccccccccccccccccccc", 0, 0, now)
	snapshot.Allowance = new(big.Int).Lsh(big.NewInt(1), 255)
	snapshot.Balance = nil
	snapshot.BalanceKnown = false

	s.metrics.EXPECT().Observe("insert_snapshots", gomock.Nil(), gomock.Any()).Times(1)

	s.Require().NoError(s.repo.InsertSnapshots(s.testCtx, []model.AllowanceSnapshot{snapshot}))

	rows, err := s.repo.conn.Query(s.testCtx, `
SELECT allowance, balance, balance_known
FROM allowance_snapshots
WHERE owner = ?`, snapshot.Owner)
	s.Require().NoError(err)
	defer func() {
		s.Require().NoError(rows.Close())
	}()

	var (
		allowance big.Int
		balance   big.Int
		known     bool
	)
	s.Require().True(rows.Next())
	s.Require().NoError(rows.Scan(&allowance, &balance, &known))
	s.Equal(snapshot.Allowance.String(), allowance.String())
	s.Equal("0", balance.String())
	s.False(known)
}
