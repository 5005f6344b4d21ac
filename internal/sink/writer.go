// Package sink streams allowance snapshots into the repository in batches.
package sink

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/pauliax/token-spender-allowances/internal/model"
	"github.com/pauliax/token-spender-allowances/pkg/batcher"
)

const (
	snapshotBatcherCapacity      = 500
	snapshotBatcherFlushInterval = 5 * time.Second
	snapshotBatcherRPS           = 1
)

// Writer buffers snapshot rows and flushes them to the repository.
// Stop performs the terminal flush, so every written snapshot is
// persisted once Stop returns.
type Writer struct {
	repo            Repository
	logger          *zap.Logger
	snapshotBatcher *batcher.Batcher[model.AllowanceSnapshot]
}

func NewWriter(repo Repository, logger *zap.Logger) *Writer {
	w := &Writer{
		repo:   repo,
		logger: logger,
	}
	w.snapshotBatcher = batcher.New[model.AllowanceSnapshot](
		logger.Named("snapshotBatcher"),
		w.flush,
		snapshotBatcherCapacity,
		snapshotBatcherFlushInterval,
		snapshotBatcherRPS,
	)
	return w
}

func (w *Writer) Start(ctx context.Context) {
	w.snapshotBatcher.Start(ctx)
}

func (w *Writer) Stop() {
	w.snapshotBatcher.Stop()
}

func (w *Writer) WriteSnapshot(ctx context.Context, snapshot model.AllowanceSnapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return w.snapshotBatcher.Add(ctx, snapshot)
}

func (w *Writer) flush(ctx context.Context, snapshots []model.AllowanceSnapshot) error {
	if err := w.repo.InsertSnapshots(ctx, snapshots); err != nil {
		return err
	}
	w.logger.Debug("InsertSnapshots", zap.Int("count", len(snapshots)))
	return nil
}
