package storage

import (
	"context"
	"crypto/tls"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/harbinger-sec/warden/internal/audit"
	"go.uber.org/zap"
)

const (
	bufferSize    = 10_000
	flushInterval = 100 * time.Millisecond
	flushBatch    = 1000
	drainTimeout  = 2 * time.Second
)

// ClickHouseWriter exports audit entries to ClickHouse asynchronously.
// Export() is non-blocking: entries are buffered and batch-inserted in a
// background goroutine.
type ClickHouseWriter struct {
	conn    driver.Conn
	buffer  chan *audit.Entry
	done    chan struct{}
	flushed chan struct{} // closed by flushLoop when it returns
	logger  *zap.Logger
}

// NewClickHouseWriter creates a ClickHouseWriter and starts the background
// flush loop.
func NewClickHouseWriter(dsn string, logger *zap.Logger) (*ClickHouseWriter, error) {
	opts, err := clickhouse.ParseDSN(dsn)
	if err != nil {
		return nil, err
	}

	// ParseDSN sets TLS when ?secure=true is in the DSN; enforce it here
	// so managed deployments on TLS ports work without the flag.
	if opts.TLS == nil {
		opts.TLS = &tls.Config{}
	}

	conn, err := clickhouse.Open(opts)
	if err != nil {
		return nil, err
	}

	if err := conn.Ping(context.Background()); err != nil {
		return nil, err
	}

	w := &ClickHouseWriter{
		conn:    conn,
		buffer:  make(chan *audit.Entry, bufferSize),
		done:    make(chan struct{}),
		flushed: make(chan struct{}),
		logger:  logger,
	}

	go w.flushLoop()
	return w, nil
}

// Export queues an audit entry for async insertion.
// Non-blocking: drops the entry if the buffer is full.
func (w *ClickHouseWriter) Export(e *audit.Entry) {
	select {
	case w.buffer <- e:
	default:
		w.logger.Warn("clickhouse buffer full, dropping audit entry",
			zap.String("entry_id", e.ID),
		)
	}
}

// Close signals the flush loop to drain remaining entries, waits for it to
// finish (up to drainTimeout), and then returns. Safe to call once.
func (w *ClickHouseWriter) Close() {
	close(w.done)
	<-w.flushed
}

func (w *ClickHouseWriter) flushLoop() {
	defer close(w.flushed)

	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	batch := make([]*audit.Entry, 0, flushBatch)

	for {
		select {
		case e := <-w.buffer:
			batch = append(batch, e)
			if len(batch) >= flushBatch {
				w.flush(batch)
				batch = batch[:0]
			}
		case <-ticker.C:
			if len(batch) > 0 {
				w.flush(batch)
				batch = batch[:0]
			}
		case <-w.done:
			// Drain remaining entries from buffer
			drainCtx, cancel := context.WithTimeout(context.Background(), drainTimeout)
			defer cancel()
		drainLoop:
			for {
				select {
				case e := <-w.buffer:
					batch = append(batch, e)
				case <-drainCtx.Done():
					break drainLoop
				default:
					break drainLoop
				}
			}
			if len(batch) > 0 {
				w.flush(batch)
			}
			return
		}
	}
}

func (w *ClickHouseWriter) flush(entries []*audit.Entry) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	batch, err := w.conn.PrepareBatch(ctx, `
		INSERT INTO enforcement_audit (
			id, parent_id, request_id, timestamp,
			tool_name, category, severity, action, reason,
			payload_preview, payload_hash, metadata
		)
	`)
	if err != nil {
		w.logger.Error("clickhouse prepare batch failed", zap.Error(err))
		return
	}

	for _, e := range entries {
		if err := batch.Append(
			e.ID,
			e.ParentID,
			e.RequestID,
			e.Timestamp,
			e.ToolName,
			e.Category,
			e.Severity,
			e.Action,
			TruncateReason(e.Reason, ReasonMaxLength),
			e.PayloadPreview,
			e.PayloadHash,
			e.Metadata,
		); err != nil {
			w.logger.Error("clickhouse append entry failed",
				zap.String("entry_id", e.ID),
				zap.Error(err),
			)
		}
	}

	if err := batch.Send(); err != nil {
		w.logger.Error("clickhouse batch send failed",
			zap.Int("batch_size", len(entries)),
			zap.Error(err),
		)
	}
}

// LogWriter is a fallback ExportWriter for local development.
// It logs entries as structured JSON to stdout via zap.
type LogWriter struct {
	logger *zap.Logger
}

// NewLogWriter creates a LogWriter that outputs entries to the given logger.
func NewLogWriter(logger *zap.Logger) *LogWriter {
	return &LogWriter{logger: logger}
}

func (w *LogWriter) Export(e *audit.Entry) {
	w.logger.Info("audit_entry",
		zap.String("entry_id", e.ID),
		zap.String("parent_id", e.ParentID),
		zap.String("request_id", e.RequestID),
		zap.String("tool_name", e.ToolName),
		zap.String("category", e.Category),
		zap.String("severity", e.Severity),
		zap.String("action", e.Action),
		zap.String("reason", e.Reason),
		zap.String("payload_hash", e.PayloadHash),
	)
}

func (w *LogWriter) Close() {}
