// Package warehouse executes read-only analytics queries against Snowflake
// through a lazily created, bounded connection pool. Logically identical
// queries in flight at the same time are coalesced into a single warehouse
// round-trip by the query lock manager.
package warehouse

import (
	"context"
	stderrors "errors"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/snowflakedb/gosnowflake"
	"golang.org/x/sync/singleflight"

	"github.com/linuxfoundation/lfx-gateway/internal/config"
	"github.com/linuxfoundation/lfx-gateway/internal/errors"
	"github.com/linuxfoundation/lfx-gateway/internal/logging"
	"github.com/linuxfoundation/lfx-gateway/internal/metrics"
	"github.com/linuxfoundation/lfx-gateway/internal/querylock"
)

// Result is the outcome of a warehouse query.
type Result struct {
	Rows            []map[string]interface{} `json:"rows"`
	Columns         []string                 `json:"columns"`
	RowCount        int                      `json:"row_count"`
	DurationMS      int64                    `json:"duration_ms"`
	StatementHandle string                   `json:"statement_handle"`
	Cached          bool                     `json:"cached,omitempty"`
}

// ResultCache caches settled query results by fingerprint. Implementations
// must fail open: a cache error is never a query error.
type ResultCache interface {
	Get(ctx context.Context, fingerprint string) (*Result, bool)
	Set(ctx context.Context, fingerprint string, res *Result)
}

// Executor owns the warehouse connection pool. It is constructed once per
// process and injected into the analytics controllers.
type Executor struct {
	cfg    config.WarehouseConfig
	logger *logging.Logger
	locks  *querylock.Manager
	cache  ResultCache

	// Lazy pool creation: one creation at a time, concurrent first callers
	// share the in-progress attempt's outcome, and a failed attempt is
	// retried fresh by the next caller.
	initGroup singleflight.Group
	db        atomic.Pointer[sqlx.DB]

	open func(driverName, dsn string) (*sqlx.DB, error)
}

// New creates an Executor. The pool is not created until the first Execute.
// cache may be nil.
func New(cfg config.WarehouseConfig, logger *logging.Logger, locks *querylock.Manager, cache ResultCache) *Executor {
	return &Executor{
		cfg:    cfg,
		logger: logger,
		locks:  locks,
		cache:  cache,
		open:   sqlx.Open,
	}
}

// NewWithDB creates an Executor over an existing database handle. Used by
// tests and callers that manage the pool themselves.
func NewWithDB(db *sqlx.DB, cfg config.WarehouseConfig, logger *logging.Logger, locks *querylock.Manager, cache ResultCache) *Executor {
	e := New(cfg, logger, locks, cache)
	e.db.Store(db)
	return e
}

// Execute validates, deduplicates, and runs a read-only query. Validation
// failures and missing configuration are reported before any connection is
// borrowed.
func (e *Executor) Execute(ctx context.Context, sqlText string, binds []interface{}) (*Result, error) {
	if err := validateReadOnly(sqlText); err != nil {
		return nil, err
	}

	fingerprint := querylock.Fingerprint(sqlText, binds)

	if e.cache != nil {
		if cached, ok := e.cache.Get(ctx, fingerprint); ok {
			metrics.RecordCacheHit()
			cached.Cached = true
			return cached, nil
		}
		metrics.RecordCacheMiss()
	}

	v, err := e.locks.Do(ctx, fingerprint, func(ctx context.Context) (interface{}, error) {
		return e.run(ctx, fingerprint, sqlText, binds)
	})
	if err != nil {
		return nil, err
	}

	res := v.(*Result)
	if e.cache != nil && !res.Cached {
		e.cache.Set(ctx, fingerprint, res)
	}
	return res, nil
}

// Stats returns the lock manager's dedup counters.
func (e *Executor) Stats() querylock.Stats {
	return e.locks.Stats()
}

// Close drains the connection pool.
func (e *Executor) Close() error {
	if db := e.db.Load(); db != nil {
		return db.Close()
	}
	return nil
}

func (e *Executor) run(ctx context.Context, fingerprint, sqlText string, binds []interface{}) (*Result, error) {
	db, err := e.pool(ctx)
	if err != nil {
		return nil, err
	}

	start := time.Now()

	// Borrowing is bounded separately from query execution so a saturated
	// pool surfaces as a timeout rather than an opaque hang.
	acquireCtx, cancelAcquire := context.WithTimeout(ctx, e.cfg.AcquireTimeout)
	conn, err := db.Connx(acquireCtx)
	cancelAcquire()
	if err != nil {
		if acquireCtx.Err() != nil {
			return nil, errors.Timeout("Timed out waiting for a warehouse connection", err).
				WithDetails("fingerprint", fingerprint)
		}
		return nil, errors.QueryFailed(err).WithDetails("fingerprint", fingerprint)
	}
	defer conn.Close()

	queryCtx, cancelQuery := context.WithTimeout(ctx, e.cfg.QueryTimeout)
	defer cancelQuery()

	rows, err := conn.QueryxContext(queryCtx, sqlText, binds...)
	if err != nil {
		return nil, e.queryError(fingerprint, start, err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, e.queryError(fingerprint, start, err)
	}

	collected := make([]map[string]interface{}, 0, 64)
	for rows.Next() {
		row := make(map[string]interface{}, len(columns))
		if err := rows.MapScan(row); err != nil {
			return nil, e.queryError(fingerprint, start, err)
		}
		collected = append(collected, row)
	}
	if err := rows.Err(); err != nil {
		return nil, e.queryError(fingerprint, start, err)
	}

	duration := time.Since(start)
	result := &Result{
		Rows:            collected,
		Columns:         columns,
		RowCount:        len(collected),
		DurationMS:      duration.Milliseconds(),
		StatementHandle: uuid.NewString(),
	}

	metrics.RecordQuery("success", duration, result.RowCount)
	e.reportPoolOccupancy(db)

	e.logger.WithContext(ctx).WithFields(map[string]interface{}{
		"fingerprint": fingerprint,
		"duration_ms": duration.Milliseconds(),
		"rows":        result.RowCount,
	}).Debug("Warehouse query completed")

	return result, nil
}

func (e *Executor) queryError(fingerprint string, start time.Time, err error) error {
	duration := time.Since(start)
	metrics.RecordQuery("error", duration, -1)

	if stderrors.Is(err, context.DeadlineExceeded) || stderrors.Is(err, context.Canceled) {
		return errors.Timeout("Warehouse query timed out", err).
			WithDetails("fingerprint", fingerprint).
			WithDetails("duration_ms", duration.Milliseconds())
	}

	return errors.QueryFailed(err).
		WithDetails("fingerprint", fingerprint).
		WithDetails("duration_ms", duration.Milliseconds())
}

// pool returns the connection pool, creating it on first use. Creation goes
// through a single-flight group: concurrent first callers share one attempt
// and its error, and nothing is cached on failure.
func (e *Executor) pool(ctx context.Context) (*sqlx.DB, error) {
	if db := e.db.Load(); db != nil {
		return db, nil
	}

	v, err, _ := e.initGroup.Do("init", func() (interface{}, error) {
		if db := e.db.Load(); db != nil {
			return db, nil
		}

		if err := e.cfg.Validate(); err != nil {
			return nil, errors.Configuration(err.Error())
		}

		db, err := e.open("snowflake", e.cfg.DSN())
		if err != nil {
			return nil, errors.Configuration("Failed to open warehouse connection: " + err.Error())
		}

		db.SetMaxOpenConns(e.cfg.MaxOpenConns)
		db.SetMaxIdleConns(e.cfg.MaxIdleConns)
		db.SetConnMaxIdleTime(e.cfg.ConnMaxIdleTime)

		if e.cfg.PingOnFirstUse {
			pingCtx, cancel := context.WithTimeout(ctx, e.cfg.AcquireTimeout)
			defer cancel()
			if err := db.PingContext(pingCtx); err != nil {
				db.Close()
				return nil, errors.Unavailable("Warehouse is unreachable", err)
			}
		}

		e.db.Store(db)
		e.logger.WithFields(map[string]interface{}{
			"max_open": e.cfg.MaxOpenConns,
			"max_idle": e.cfg.MaxIdleConns,
		}).Info("Warehouse connection pool created")

		return db, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*sqlx.DB), nil
}

func (e *Executor) reportPoolOccupancy(db *sqlx.DB) {
	s := db.Stats()
	metrics.RecordPoolOccupancy(s.OpenConnections, s.InUse, s.Idle, s.WaitCount)
}
