package recovery

import (
	"context"
	"sync"
	"time"

	"PSyncProject/logger"
	"PSyncProject/module/sync/model"
	"PSyncProject/module/sync/projector"
	"PSyncProject/module/sync/store"
	"PSyncProject/tools/safe"

	"go.uber.org/zap"
)

// Worker sweeps the error log on a fixed schedule and re-derives failed
// projections from canonical state. It is safe to run concurrently with
// live projector traffic: both paths converge on the same idempotent
// re-read-and-upsert, so the worst case is a redundant write.
type Worker struct {
	proj   *projector.Projector
	errlog store.SyncErrorStore

	interval  time.Duration
	batchSize int64
	maxRetry  int

	// single-flight guard: overlapping schedule runs collapse to one.
	sweepMu sync.Mutex

	stopOnce sync.Once
	stopCh   chan struct{}
}

func NewWorker(proj *projector.Projector, errlog store.SyncErrorStore, interval time.Duration, batchSize int64, maxRetry int) *Worker {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	if maxRetry <= 0 {
		maxRetry = 5
	}
	return &Worker{
		proj:      proj,
		errlog:    errlog,
		interval:  interval,
		batchSize: batchSize,
		maxRetry:  maxRetry,
		stopCh:    make(chan struct{}),
	}
}

// Start runs the sweep loop until ctx is cancelled or Stop is called.
func (w *Worker) Start(ctx context.Context) {
	safe.SafeGo("recovery-sweep", func() {
		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-w.stopCh:
				return
			case <-ticker.C:
				processed, retried, err := w.ProcessFailedSyncs(ctx)
				if err != nil {
					logger.Error("recovery sweep failed", zap.Error(err))
					continue
				}
				if processed > 0 || retried > 0 {
					logger.Infof("recovery sweep done processed=%d retried=%d", processed, retried)
				}
			}
		}
	})
}

func (w *Worker) Stop() {
	w.stopOnce.Do(func() { close(w.stopCh) })
}

// ProcessFailedSyncs drains one batch of pending entries. Returns how
// many entries were marked processed and how many were left for another
// retry. A second concurrent call returns immediately.
func (w *Worker) ProcessFailedSyncs(ctx context.Context) (processed, retried int, err error) {
	if !w.sweepMu.TryLock() {
		return 0, 0, nil
	}
	defer w.sweepMu.Unlock()

	batch, err := w.errlog.LoadPending(ctx, w.batchSize, w.maxRetry)
	if err != nil {
		return 0, 0, err
	}
	for _, rec := range batch {
		select {
		case <-ctx.Done():
			return processed, retried, ctx.Err()
		default:
		}
		if w.retryOne(ctx, rec) {
			processed++
		} else {
			retried++
		}
	}
	return processed, retried, nil
}

// retryOne re-derives one entry. Reports true when the entry reached
// the processed state.
func (w *Worker) retryOne(ctx context.Context, rec *model.SyncErrorRecord) bool {
	now := time.Now().UnixMilli()

	// A later event may already have fixed the document; skip the write.
	if ok, err := w.proj.AlreadyConsistent(ctx, rec.MessageID); err == nil && ok {
		w.markProcessed(ctx, rec, now)
		return true
	}

	err := w.proj.Reproject(ctx, rec.EventType, rec.MessageID)
	if err == nil {
		w.markProcessed(ctx, rec, now)
		return true
	}

	// Integrity failures cannot be re-derived; one recheck above is all
	// they get before going terminal.
	terminal := rec.Integrity || model.IsDataIntegrity(err) || rec.RetryCount+1 >= w.maxRetry
	if merr := w.errlog.MarkRetry(ctx, rec.ID, err.Error(), now, terminal); merr != nil {
		logger.Error("mark retry failed", zap.String("id", rec.ID), zap.Error(merr))
	}
	if terminal {
		logger.Error("sync error went terminal",
			zap.String("id", rec.ID),
			zap.String("event_type", rec.EventType),
			zap.String("message_id", rec.MessageID),
			zap.Int("retry_count", rec.RetryCount+1),
			zap.Error(err))
	} else {
		logger.Warn("sync retry failed",
			zap.String("id", rec.ID),
			zap.String("message_id", rec.MessageID),
			zap.Int("retry_count", rec.RetryCount+1),
			zap.Error(err))
	}
	return false
}

func (w *Worker) markProcessed(ctx context.Context, rec *model.SyncErrorRecord, now int64) {
	if err := w.errlog.MarkProcessed(ctx, rec.ID, now); err != nil {
		logger.Error("mark processed failed", zap.String("id", rec.ID), zap.Error(err))
	}
}
