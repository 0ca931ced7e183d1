package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/b0czek/linuxcnc-node-sub000/internal/config"
)

// ChangeRecord represents one change notification ready for insertion.
type ChangeRecord struct {
	ID       uuid.UUID
	Recorded time.Time
	Source   string // "status", "message" or "hal"
	Path     string
	Cursor   *uint64 // set for hal changes only
	OldValue any
	NewValue any
}

// Writer handles bulk change-record writes using pgx COPY protocol
type Writer struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
	cfg    *config.HistoryConfig

	// Buffering and flow control
	submitCh      chan ChangeRecord
	requeueBuffer []ChangeRecord
	bufferMu      sync.Mutex

	// Batch management
	currentBatch []ChangeRecord
	batchMu      sync.Mutex

	// Failure tracking
	consecutiveFailures int
	maxConsecutiveFails int

	wg sync.WaitGroup
}

// NewWriter creates a new Writer instance
func NewWriter(pool *pgxpool.Pool, cfg *config.HistoryConfig, logger *slog.Logger) *Writer {
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 100
	}

	return &Writer{
		pool:                pool,
		logger:              logger.With("component", "history-writer"),
		cfg:                 cfg,
		submitCh:            make(chan ChangeRecord, batchSize*2),
		requeueBuffer:       make([]ChangeRecord, 0, batchSize*10),
		currentBatch:        make([]ChangeRecord, 0, batchSize),
		maxConsecutiveFails: 5,
	}
}

// Submit queues a change record for the next batch. It never blocks: the
// writer sits on the watcher dispatch path, so when the queue is full the
// record is dropped and counted rather than stalling listener delivery.
func (w *Writer) Submit(record ChangeRecord) bool {
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	if record.Recorded.IsZero() {
		record.Recorded = time.Now()
	}
	select {
	case w.submitCh <- record:
		return true
	default:
		w.logger.Warn("history queue full, dropping record",
			"source", record.Source,
			"path", record.Path,
		)
		return false
	}
}

// Run starts the writer's main processing loop
func (w *Writer) Run(ctx context.Context) error {
	w.logger.Info("history writer starting",
		"batch_size", w.cfg.BatchSize,
		"flush_interval_ms", w.cfg.FlushIntervalMS,
	)

	w.wg.Add(1)
	defer w.wg.Done()

	flushTicker := time.NewTicker(w.cfg.FlushInterval())
	defer flushTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("history writer shutting down, flushing remaining data")
			w.drainSubmitQueue()
			if err := w.flush(context.Background()); err != nil {
				w.logger.Error("final flush failed", "error", err)
			}
			return ctx.Err()

		case record := <-w.submitCh:
			w.batchMu.Lock()
			w.currentBatch = append(w.currentBatch, record)
			currentSize := len(w.currentBatch)
			w.batchMu.Unlock()

			if currentSize >= w.cfg.BatchSize {
				if err := w.flush(ctx); err != nil {
					w.logger.Error("flush on batch size failed", "error", err)
				}
			}

		case <-flushTicker.C:
			w.batchMu.Lock()
			hasData := len(w.currentBatch) > 0
			w.batchMu.Unlock()

			if hasData {
				if err := w.flush(ctx); err != nil {
					w.logger.Error("periodic flush failed", "error", err)
				}
			}
		}
	}
}

// drainSubmitQueue moves already-queued records into the batch before the
// final flush.
func (w *Writer) drainSubmitQueue() {
	for {
		select {
		case record := <-w.submitCh:
			w.batchMu.Lock()
			w.currentBatch = append(w.currentBatch, record)
			w.batchMu.Unlock()
		default:
			return
		}
	}
}

// flush writes the current batch to the database
func (w *Writer) flush(ctx context.Context) error {
	w.batchMu.Lock()
	if len(w.currentBatch) == 0 {
		w.batchMu.Unlock()
		return nil
	}

	// Swap current batch with a new one
	batch := w.currentBatch
	w.currentBatch = make([]ChangeRecord, 0, w.cfg.BatchSize)
	w.batchMu.Unlock()

	// Include requeued items in this flush
	w.bufferMu.Lock()
	if len(w.requeueBuffer) > 0 {
		requeuedCount := len(w.requeueBuffer)
		batch = append(w.requeueBuffer, batch...)
		w.requeueBuffer = make([]ChangeRecord, 0, w.cfg.BatchSize*10)
		w.logger.Info("including requeued items in flush", "requeued_count", requeuedCount)
	}
	w.bufferMu.Unlock()

	startTime := time.Now()
	err := w.writeBatch(ctx, batch)
	duration := time.Since(startTime)

	if err != nil {
		w.logger.Error("batch write failed",
			"error", err,
			"batch_size", len(batch),
			"duration_ms", duration.Milliseconds(),
		)

		w.consecutiveFailures++
		if w.consecutiveFailures < w.maxConsecutiveFails {
			w.requeue(batch)
		} else {
			w.logger.Error("max consecutive failures reached, dropping batch",
				"consecutive_failures", w.consecutiveFailures,
				"dropped_count", len(batch),
			)
		}

		return err
	}

	w.consecutiveFailures = 0

	w.logger.Debug("batch written successfully",
		"batch_size", len(batch),
		"duration_ms", duration.Milliseconds(),
	)

	return nil
}

// writeBatch performs the actual database write using COPY protocol
func (w *Writer) writeBatch(ctx context.Context, batch []ChangeRecord) error {
	if len(batch) == 0 {
		return nil
	}

	tx, err := w.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			w.logger.Warn("failed to rollback transaction", "error", err)
		}
	}()

	copyCount, err := tx.Conn().CopyFrom(
		ctx,
		pgx.Identifier{"state_changes"},
		[]string{"id", "recorded", "source", "path", "cursor", "old_value", "new_value"},
		pgx.CopyFromSlice(len(batch), func(i int) ([]interface{}, error) {
			record := batch[i]

			oldJSON, err := marshalValue(record.OldValue)
			if err != nil {
				return nil, err
			}
			newJSON, err := marshalValue(record.NewValue)
			if err != nil {
				return nil, err
			}

			var cursor *int64
			if record.Cursor != nil {
				c := int64(*record.Cursor)
				cursor = &c
			}

			return []interface{}{
				record.ID,
				record.Recorded,
				record.Source,
				record.Path,
				cursor,
				oldJSON,
				newJSON,
			}, nil
		}),
	)

	if err != nil {
		return fmt.Errorf("COPY operation failed: %w", err)
	}

	if copyCount != int64(len(batch)) {
		return fmt.Errorf("COPY count mismatch: expected %d, got %d", len(batch), copyCount)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

func marshalValue(v any) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal value: %w", err)
	}
	return data, nil
}

// requeue adds failed batch back to the buffer for retry
func (w *Writer) requeue(batch []ChangeRecord) {
	w.bufferMu.Lock()
	defer w.bufferMu.Unlock()

	maxBufferSize := w.cfg.BatchSize * 10
	availableSpace := maxBufferSize - len(w.requeueBuffer)

	if availableSpace <= 0 {
		w.logger.Warn("requeue buffer full, dropping batch",
			"buffer_size", len(w.requeueBuffer),
			"dropping_count", len(batch),
		)
		return
	}

	toRequeue := batch
	if len(batch) > availableSpace {
		toRequeue = batch[:availableSpace]
		w.logger.Warn("partial requeue due to buffer limit",
			"requested", len(batch),
			"requeued", len(toRequeue),
			"dropped", len(batch)-len(toRequeue),
		)
	}

	w.requeueBuffer = append(w.requeueBuffer, toRequeue...)
}
