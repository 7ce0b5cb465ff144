package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/sync/errgroup"

	"fincontrol/internal/amqp"
	"fincontrol/internal/core"
	"fincontrol/internal/metrics"
	"fincontrol/internal/sheets"
	"fincontrol/internal/storage"
)

const (
	defaultBatchSize   = 20
	sweepConcurrency   = 4
	breakerMaxFailures = 3
	breakerOpenTimeout = time.Minute
)

// Store is the slice of the repository the worker needs.
type Store interface {
	FindTransaction(ctx context.Context, id int64) (core.Transaction, error)
	GetPendingSync(ctx context.Context, limit int) ([]storage.PendingSync, error)
	MarkSynced(ctx context.Context, id, version int64) error
	MarkSyncError(ctx context.Context, id int64) error
	RetryFailedSyncs(ctx context.Context) (int64, error)
}

// SyncWorker mirrors transactions from SQLite into the spreadsheet.
type SyncWorker struct {
	store     Store
	mirror    sheets.TransactionMirror
	breaker   *gobreaker.CircuitBreaker
	metrics   *metrics.Metrics
	batchSize int
}

func NewSyncWorker(store Store, mirror sheets.TransactionMirror, batchSize int, m *metrics.Metrics) *SyncWorker {
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	w := &SyncWorker{
		store:     store,
		mirror:    mirror,
		metrics:   m,
		batchSize: batchSize,
	}
	w.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "sheets-mirror",
		MaxRequests: 1,
		Timeout:     breakerOpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= breakerMaxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("Mirror circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
			w.metrics.BreakerState(int(to))
		},
	})
	return w
}

// HandleMessage processes one AMQP message. Mirror failures are recorded on
// the transaction and retried by the sweep; only storage failures are
// returned so the broker redelivers.
func (w *SyncWorker) HandleMessage(ctx context.Context, msg *amqp.SyncMessage) error {
	slog.InfoContext(ctx, "Processing mirror message", "type", msg.Type, "id", msg.ID, "version", msg.Version)
	switch msg.Type {
	case amqp.TypeDelete:
		return w.remove(ctx, msg.ID)
	case amqp.TypeSync:
		return w.sync(ctx, msg.ID, msg.Version)
	default:
		return fmt.Errorf("unknown message type %q", msg.Type)
	}
}

func (w *SyncWorker) sync(ctx context.Context, id, version int64) error {
	t, err := w.store.FindTransaction(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		// deleted after the event was published
		return w.remove(ctx, id)
	}
	if err != nil {
		return fmt.Errorf("load transaction %d: %w", id, err)
	}
	if version > 0 && version < t.Version {
		slog.DebugContext(ctx, "Skipping stale sync message", "id", id, "version", version, "current", t.Version)
		w.metrics.SyncResult(amqp.TypeSync, "stale")
		return nil
	}

	err = w.call(func() error { return w.mirror.Upsert(ctx, t) })
	switch {
	case isRejected(err):
		slog.WarnContext(ctx, "Mirror unavailable, leaving transaction pending", "id", id, "error", err)
		w.metrics.SyncResult(amqp.TypeSync, "rejected")
		return nil
	case err != nil:
		slog.ErrorContext(ctx, "Failed to mirror transaction", "id", id, "error", err)
		w.metrics.SyncResult(amqp.TypeSync, "error")
		if markErr := w.store.MarkSyncError(ctx, id); markErr != nil {
			return markErr
		}
		return nil
	}

	w.metrics.SyncResult(amqp.TypeSync, "ok")
	if err := w.store.MarkSynced(ctx, id, t.Version); err != nil {
		// the rows are already mirrored; the next sweep rewrites them
		slog.ErrorContext(ctx, "Failed to mark transaction synced", "id", id, "error", err)
	}
	return nil
}

func (w *SyncWorker) remove(ctx context.Context, id int64) error {
	err := w.call(func() error { return w.mirror.Delete(ctx, id) })
	if err != nil {
		result := "error"
		if isRejected(err) {
			result = "rejected"
		}
		w.metrics.SyncResult(amqp.TypeDelete, result)
		// nothing left in the database to retry from, so let the broker redeliver
		return fmt.Errorf("delete mirrored transaction %d: %w", id, err)
	}
	w.metrics.SyncResult(amqp.TypeDelete, "ok")
	slog.InfoContext(ctx, "Removed transaction from mirror", "id", id)
	return nil
}

func (w *SyncWorker) call(fn func() error) error {
	_, err := w.breaker.Execute(func() (interface{}, error) {
		return nil, fn()
	})
	return err
}

func isRejected(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}

// ProcessPending mirrors one batch of transactions still marked pending. It is
// the fallback for lost messages and worker downtime.
func (w *SyncWorker) ProcessPending(ctx context.Context) (int, error) {
	pending, err := w.store.GetPendingSync(ctx, w.batchSize)
	if err != nil {
		return 0, fmt.Errorf("get pending transactions: %w", err)
	}
	if len(pending) == 0 {
		return 0, nil
	}
	slog.InfoContext(ctx, "Processing pending transactions", "count", len(pending))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(sweepConcurrency)
	for _, p := range pending {
		g.Go(func() error {
			return w.sync(gctx, p.ID, p.Version)
		})
	}
	if err := g.Wait(); err != nil {
		return len(pending), err
	}
	return len(pending), nil
}

// Run sweeps every interval until ctx is done. Errored transactions are moved
// back to pending before each sweep.
func (w *SyncWorker) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	w.sweep(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

func (w *SyncWorker) sweep(ctx context.Context) {
	if w.breaker.State() == gobreaker.StateOpen {
		slog.DebugContext(ctx, "Mirror circuit open, skipping sweep")
		return
	}
	if n, err := w.store.RetryFailedSyncs(ctx); err != nil {
		slog.ErrorContext(ctx, "Failed to reset errored syncs", "error", err)
	} else if n > 0 {
		slog.InfoContext(ctx, "Retrying errored syncs", "count", n)
	}
	if _, err := w.ProcessPending(ctx); err != nil {
		slog.ErrorContext(ctx, "Pending sweep failed", "error", err)
	}
}
