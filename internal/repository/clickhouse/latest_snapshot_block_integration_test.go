package clickhouse

import (
	"time"

	"github.com/golang/mock/gomock"

	"github.com/pauliax/token-spender-allowances/internal/model"
)

func (s *RepositorySuite) TestLatestSnapshotBlockEmpty() {
	s.metrics.EXPECT().Observe("latest_snapshot_block", gomock.Nil(), gomock.Any()).Times(1)

	_, found, err := s.repo.LatestSnapshotBlock(s.testCtx, 1, testToken, testSpender)
	s.Require().NoError(err)
	s.False(found)
}

func (s *RepositorySuite) TestLatestSnapshotBlock() {
	now := time.Now().UTC().Truncate(time.Millisecond)
	first := newSnapshot("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa", 10, 10, now)
	second := newSnapshot("0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb", 20, 20, now)
	second.ToBlock = 350

	s.metrics.EXPECT().Observe("insert_snapshots", gomock.Nil(), gomock.Any()).Times(1)
	s.metrics.EXPECT().Observe("latest_snapshot_block", gomock.Nil(), gomock.Any()).Times(2)

	s.Require().NoError(s.repo.InsertSnapshots(s.testCtx, []model.AllowanceSnapshot{first, second}))

	toBlock, found, err := s.repo.LatestSnapshotBlock(s.testCtx, 1, testToken, testSpender)
	s.Require().NoError(err)
	s.True(found)
	s.Equal(uint64(350), toBlock)

	_, found, err = s.repo.LatestSnapshotBlock(s.testCtx, 1, testToken, "0x9999999999999999999999999999999999999999")
	s.Require().NoError(err)
	s.False(found)
}
