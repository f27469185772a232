package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	_ "github.com/dolthub/driver" // embedded Dolt, CGO, database/sql driver name "dolt"
	_ "github.com/go-sql-driver/mysql"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/qualcode/ontocore/internal/apperr"
	"github.com/qualcode/ontocore/internal/ledger/migrations"
)

// Store is the ledger's connection handle: a database/sql pool against
// either an embedded Dolt database (driver "dolt") or a remote Dolt/MySQL
// server (driver "mysql"), mirroring the two connection modes the
// teacher's internal/storage/dolt.DoltStore supports.
type Store struct {
	db         *sql.DB
	serverMode bool
}

// Mode selects how Store connects to Dolt.
type Mode int

const (
	// ModeEmbedded opens a local Dolt database directory with no server,
	// via github.com/dolthub/driver (CGO).
	ModeEmbedded Mode = iota
	// ModeServer connects to a running dolt sql-server over the MySQL
	// wire protocol via github.com/go-sql-driver/mysql, the mode the
	// identity core uses in production for real concurrent writers.
	ModeServer
)

// Config configures Store.Open.
type Config struct {
	Mode Mode
	// DSN is the database/sql data source name: a filesystem path for
	// ModeEmbedded, or a "user:pass@tcp(host:port)/dbname" style DSN for
	// ModeServer.
	DSN string
	// MaxOpenConns bounds pool size; spec section 5 requires request and
	// background-job concurrency together not exceed the backend limit.
	MaxOpenConns int
}

// Open connects to the ledger backend and applies pending migrations.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	driverName := "dolt"
	if cfg.Mode == ModeServer {
		driverName = "mysql"
	}

	db, err := sql.Open(driverName, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("ledger: open %s: %w", driverName, err)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}

	if err := pingWithRetry(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ledger: ping: %w", err)
	}

	if err := migrations.Apply(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ledger: migrate: %w", err)
	}

	return &Store{db: db, serverMode: cfg.Mode == ModeServer}, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error { return s.db.Close() }

// pingWithRetry pings the freshly opened pool with backoff, covering the
// brief window after a dolt sql-server restart where the catalog has not
// yet caught up, mirroring the teacher's store-open ping retry (GH-1851).
func pingWithRetry(ctx context.Context, db *sql.DB) error {
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 30 * time.Second
	return backoff.Retry(func() error {
		err := db.PingContext(ctx)
		if err != nil && isRetryableConnErr(err) {
			return err
		}
		if err != nil {
			return backoff.Permanent(err)
		}
		return nil
	}, backoff.WithContext(bo, ctx))
}

// isRetryableConnErr classifies transient connection errors worth
// retrying in server mode, mirroring isRetryableError in the teacher's
// internal/storage/dolt/store.go.
func isRetryableConnErr(err error) bool {
	if err == nil {
		return false
	}
	s := strings.ToLower(err.Error())
	for _, needle := range []string{
		"driver: bad connection", "invalid connection", "broken pipe",
		"connection reset", "connection refused", "database is read only",
		"lost connection", "gone away", "i/o timeout", "unknown database",
	} {
		if strings.Contains(s, needle) {
			return true
		}
	}
	return false
}

var ledgerTracer = otel.Tracer("github.com/qualcode/ontocore/ledger")

var ledgerMetrics struct {
	retryCount metric.Int64Counter
	lockWaitMs metric.Float64Histogram
	txDuration metric.Float64Histogram
}

func init() {
	m := otel.Meter("github.com/qualcode/ontocore/ledger")
	ledgerMetrics.retryCount, _ = m.Int64Counter("ontocore.ledger.retry_count",
		metric.WithDescription("ledger operations retried due to transient errors"),
		metric.WithUnit("{retry}"))
	ledgerMetrics.lockWaitMs, _ = m.Float64Histogram("ontocore.ledger.lock_wait_ms",
		metric.WithDescription("time spent waiting on a project advisory lock"),
		metric.WithUnit("ms"))
	ledgerMetrics.txDuration, _ = m.Float64Histogram("ontocore.ledger.tx_duration_ms",
		metric.WithDescription("ledger transaction duration"),
		metric.WithUnit("ms"))
}

// withRetry wraps op with server-mode transient-error retry, matching
// DoltStore.withRetry. Embedded mode has driver-level retry already, so
// it runs op unwrapped.
func (s *Store) withRetry(ctx context.Context, op func() error) error {
	if !s.serverMode {
		return op()
	}
	attempts := 0
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 30 * time.Second
	err := backoff.Retry(func() error {
		attempts++
		err := op()
		if err != nil && isRetryableConnErr(err) {
			return err
		}
		if err != nil {
			return backoff.Permanent(err)
		}
		return nil
	}, backoff.WithContext(bo, ctx))
	if attempts > 1 {
		ledgerMetrics.retryCount.Add(ctx, int64(attempts-1))
	}
	return err
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// Tx is a project-scoped ledger transaction. Its methods take no
// projectID argument: the scope is fixed by the projectID handed to
// RunInTransaction, and every statement filters on it, per spec section
// 4.1's requirement that writes assert project scope.
type Tx struct {
	tx        *sql.Tx
	projectID string
}

// RunInTransaction executes fn inside a database transaction, retrying
// serialization failures, mirroring DoltStore.RunInTransaction. fn must
// only touch rows scoped to projectID.
func (s *Store) RunInTransaction(ctx context.Context, projectID string, fn func(*Tx) error) error {
	ctx, span := ledgerTracer.Start(ctx, "ledger.transaction",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attribute.String("ontocore.project_id", projectID)))
	start := time.Now()
	defer func() {
		ledgerMetrics.txDuration.Record(ctx, float64(time.Since(start).Milliseconds()))
	}()

	const maxRetries = 5
	retryDelay := 50 * time.Millisecond
	var lastErr error

	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				endSpan(span, ctx.Err())
				return ctx.Err()
			case <-time.After(retryDelay):
			}
			retryDelay *= 2
			if retryDelay > 2*time.Second {
				retryDelay = 2 * time.Second
			}
		}

		lastErr = s.runOnce(ctx, projectID, fn)
		if lastErr == nil {
			endSpan(span, nil)
			return nil
		}
		if !isSerializationConflict(lastErr) {
			endSpan(span, lastErr)
			return lastErr
		}
	}

	err := fmt.Errorf("ledger: transaction failed after %d retries: %w", maxRetries, lastErr)
	endSpan(span, err)
	return err
}

func (s *Store) runOnce(ctx context.Context, projectID string, fn func(*Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("ledger: begin transaction: %w", err)
	}
	tx := &Tx{tx: sqlTx, projectID: projectID}

	defer func() {
		if r := recover(); r != nil {
			_ = sqlTx.Rollback()
			panic(r)
		}
	}()

	if err := fn(tx); err != nil {
		_ = sqlTx.Rollback()
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("ledger: commit: %w", err)
	}
	return nil
}

// isSerializationConflict reports whether err is a MySQL/Dolt
// serialization or deadlock error (1213 deadlock, 1105 merge conflict)
// worth retrying the whole transaction for.
func isSerializationConflict(err error) bool {
	if err == nil {
		return false
	}
	s := strings.ToLower(err.Error())
	return strings.Contains(s, "deadlock") ||
		strings.Contains(s, "lock wait timeout") ||
		strings.Contains(s, "1213") ||
		strings.Contains(s, "1105")
}

// ListProjectIDs returns every project_id with ledger activity, the set
// the background projection worker iterates over each cycle.
func (s *Store) ListProjectIDs(ctx context.Context) ([]string, error) {
	var out []string
	err := s.withRetry(ctx, func() error {
		out = nil
		rows, err := s.db.QueryContext(ctx, `
			SELECT project_id FROM catalog
			UNION SELECT project_id FROM candidate
			UNION SELECT project_id FROM fragment_sync_status
		`)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var p string
			if err := rows.Scan(&p); err != nil {
				return err
			}
			out = append(out, p)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, scopedErr(err)
	}
	return out, nil
}

// scopedErr classifies a bare sql error into the apperr taxonomy.
func scopedErr(err error) error {
	if err == nil {
		return nil
	}
	if err == sql.ErrNoRows {
		return apperr.NotFound("no matching row")
	}
	s := strings.ToLower(err.Error())
	if strings.Contains(s, "duplicate") || strings.Contains(s, "unique") {
		return apperr.Conflict("uniqueness violation: %v", err)
	}
	return apperr.Dependency(err, "ledger store error")
}
