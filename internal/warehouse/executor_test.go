package warehouse

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/linuxfoundation/lfx-gateway/internal/config"
	"github.com/linuxfoundation/lfx-gateway/internal/errors"
	"github.com/linuxfoundation/lfx-gateway/internal/logging"
	"github.com/linuxfoundation/lfx-gateway/internal/querylock"
)

func testConfig() config.WarehouseConfig {
	return config.WarehouseConfig{
		MaxOpenConns:   4,
		MaxIdleConns:   1,
		AcquireTimeout: 5 * time.Second,
		QueryTimeout:   5 * time.Second,
	}
}

func newTestExecutor(t *testing.T, cache ResultCache) (*Executor, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	exec := NewWithDB(sqlx.NewDb(db, "sqlmock"), testConfig(), logging.New("test"), querylock.NewManager(), cache)
	return exec, mock
}

func TestExecute_ReturnsRows(t *testing.T) {
	exec, mock := newTestExecutor(t, nil)

	mock.ExpectQuery("SELECT id, name FROM projects").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).
			AddRow("p1", "kernel").
			AddRow("p2", "cncf"))

	res, err := exec.Execute(context.Background(), "SELECT id, name FROM projects", nil)
	require.NoError(t, err)
	require.Equal(t, 2, res.RowCount)
	require.Equal(t, []string{"id", "name"}, res.Columns)
	require.Equal(t, "kernel", res.Rows[0]["name"])
	require.NotEmpty(t, res.StatementHandle)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestExecute_RejectsWriteBeforePool(t *testing.T) {
	// No database at all: a write statement must fail validation without
	// the executor ever trying to create or borrow a connection.
	exec := New(config.WarehouseConfig{}, logging.New("test"), querylock.NewManager(), nil)

	_, err := exec.Execute(context.Background(), "INSERT INTO foo VALUES (1)", nil)
	require.Error(t, err)

	svcErr := errors.GetServiceError(err)
	require.NotNil(t, svcErr)
	require.Equal(t, errors.CodeForbiddenSQL, svcErr.Code)
}

func TestExecute_MissingCredentialsIsConfigurationError(t *testing.T) {
	exec := New(config.WarehouseConfig{AcquireTimeout: time.Second, QueryTimeout: time.Second}, logging.New("test"), querylock.NewManager(), nil)

	_, err := exec.Execute(context.Background(), "SELECT 1", nil)
	require.Error(t, err)

	svcErr := errors.GetServiceError(err)
	require.NotNil(t, svcErr)
	require.Equal(t, errors.CodeConfiguration, svcErr.Code)
}

func TestExecute_ConcurrentIdenticalQueriesCoalesce(t *testing.T) {
	exec, mock := newTestExecutor(t, nil)

	// One warehouse round-trip for two concurrent callers. The delay keeps
	// the first execution in flight long enough for the second caller to
	// attach to it.
	mock.ExpectQuery("SELECT 1").
		WillDelayFor(100 * time.Millisecond).
		WillReturnRows(sqlmock.NewRows([]string{"n"}).AddRow(1))

	var wg sync.WaitGroup
	results := make([]*Result, 2)
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = exec.Execute(context.Background(), "SELECT 1", nil)
		}(i)
	}
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	require.Equal(t, results[0].StatementHandle, results[1].StatementHandle,
		"both callers must observe the single execution's result")

	// A second expectation was never registered; if the query had run
	// twice, the mock would have failed it.
	require.NoError(t, mock.ExpectationsWereMet())

	stats := exec.Stats()
	require.Equal(t, uint64(1), stats.Misses)
}

func TestExecute_QueryErrorWrapped(t *testing.T) {
	exec, mock := newTestExecutor(t, nil)

	mock.ExpectQuery("SELECT broken").WillReturnError(context.DeadlineExceeded)

	_, err := exec.Execute(context.Background(), "SELECT broken", nil)
	require.Error(t, err)

	svcErr := errors.GetServiceError(err)
	require.NotNil(t, svcErr)
	require.Equal(t, errors.CodeTimeout, svcErr.Code)
	require.Contains(t, svcErr.Details, "fingerprint")
}

type fakeCache struct {
	mu      sync.Mutex
	entries map[string]*Result
	hits    int
	sets    int
}

func newFakeCache() *fakeCache {
	return &fakeCache{entries: make(map[string]*Result)}
}

func (c *fakeCache) Get(_ context.Context, fingerprint string) (*Result, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	res, ok := c.entries[fingerprint]
	if ok {
		c.hits++
		copied := *res
		return &copied, true
	}
	return nil, false
}

func (c *fakeCache) Set(_ context.Context, fingerprint string, res *Result) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sets++
	copied := *res
	c.entries[fingerprint] = &copied
}

func TestExecute_ResultCache(t *testing.T) {
	cache := newFakeCache()
	exec, mock := newTestExecutor(t, cache)

	mock.ExpectQuery("SELECT id FROM orgs").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("o1"))

	first, err := exec.Execute(context.Background(), "SELECT id FROM orgs", nil)
	require.NoError(t, err)
	require.False(t, first.Cached)
	require.Equal(t, 1, cache.sets)

	second, err := exec.Execute(context.Background(), "SELECT id FROM orgs", nil)
	require.NoError(t, err)
	require.True(t, second.Cached)
	require.Equal(t, first.RowCount, second.RowCount)

	// The second call never touched the database.
	require.NoError(t, mock.ExpectationsWereMet())
}
