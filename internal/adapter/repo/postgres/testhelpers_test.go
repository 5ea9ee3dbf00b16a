package postgres_test

import (
	"context"
	"errors"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/fairyhunter13/scrape-fleet/internal/adapter/repo/postgres"
)

// rowStub implements pgx.Row.
type rowStub struct{ scan func(dest ...any) error }

func (r rowStub) Scan(dest ...any) error { return r.scan(dest...) }

// call is one recorded statement with its positional args.
type call struct {
	sql  string
	args []any
}

// poolStub implements postgres.PgxPool for tests. Exec pops errors
// from execErrs (an exhausted or empty slice means success) and
// returns execTag; QueryRow and Query delegate to the configured
// hooks. Every statement is recorded in order.
type poolStub struct {
	mu       sync.Mutex
	calls    []call
	execErrs []error
	execTag  pgconn.CommandTag
	rowFn    func(sql string, args []any) pgx.Row
	queryFn  func(sql string, args []any) (pgx.Rows, error)
}

func (p *poolStub) record(sql string, args []any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, call{sql: sql, args: args})
}

func (p *poolStub) recorded() []call {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]call, len(p.calls))
	copy(out, p.calls)
	return out
}

func (p *poolStub) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	p.record(sql, args)
	p.mu.Lock()
	var err error
	if len(p.execErrs) > 0 {
		err = p.execErrs[0]
		p.execErrs = p.execErrs[1:]
	}
	p.mu.Unlock()
	if err != nil {
		return pgconn.CommandTag{}, err
	}
	return p.execTag, nil
}

func (p *poolStub) QueryRow(_ context.Context, sql string, args ...any) pgx.Row {
	p.record(sql, args)
	if p.rowFn == nil {
		return rowStub{scan: func(...any) error { return errors.New("no row configured") }}
	}
	return p.rowFn(sql, args)
}

func (p *poolStub) Query(_ context.Context, sql string, args ...any) (pgx.Rows, error) {
	p.record(sql, args)
	if p.queryFn == nil {
		return nil, errors.New("no rows configured")
	}
	return p.queryFn(sql, args)
}

func (p *poolStub) BeginTx(context.Context, pgx.TxOptions) (pgx.Tx, error) {
	return nil, errors.New("transactions are not used")
}

// countRow is one (label, count) pair for grouped-count queries.
type countRow struct {
	label string
	n     int64
}

// rowsStub implements pgx.Rows over countRow pairs.
type rowsStub struct {
	rows []countRow
	i    int
	err  error
}

func (r *rowsStub) Close()                                       {}
func (r *rowsStub) Err() error                                   { return r.err }
func (r *rowsStub) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (r *rowsStub) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *rowsStub) Next() bool                                   { r.i++; return r.i <= len(r.rows) }

func (r *rowsStub) Scan(dest ...any) error {
	row := r.rows[r.i-1]
	*(dest[0].(*string)) = row.label
	*(dest[1].(*int64)) = row.n
	return nil
}

func (r *rowsStub) Values() ([]any, error) { return nil, nil }
func (r *rowsStub) RawValues() [][]byte    { return nil }
func (r *rowsStub) Conn() *pgx.Conn        { return nil }

// fastRetry keeps failure-path tests instant.
func fastRetry(attempts int) postgres.RetryPolicy {
	return postgres.RetryPolicy{Attempts: attempts, Delay: 0}
}
