package sqlgate

import (
	"context"
	"errors"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// fakeDriver is an instrumented in-memory driver. It tracks every statement,
// separates committed statements from ones inside an open transaction, and
// counts how many statements are in flight at once so tests can assert the
// serialization guarantee.
type fakeDriver struct {
	dialect   Dialect
	execDelay time.Duration

	inFlight    atomic.Int32
	maxInFlight atomic.Int32

	mu         sync.Mutex
	connectErr error
	beginErr   error
	commitErr  error
	failing    bool

	stmts     []string
	committed []string
	open      []string
	queries   []string
	inTx      bool

	begins    int
	commits   int
	rollbacks int

	queryResult Result
	lastID      uint64
}

func newFakeDriver() *fakeDriver {
	return &fakeDriver{
		dialect: Dialect{
			Engine:         EngineMySQL,
			StringComparer: "= ",
			UpdateLimiter:  " LIMIT 1;",
			MultiRowInsert: true,
		},
	}
}

func (f *fakeDriver) Connect(ctx context.Context, p Params) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connectErr
}

func (f *fakeDriver) Close() error { return nil }

func (f *fakeDriver) Begin(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.begins++
	if f.beginErr != nil {
		return f.beginErr
	}
	f.inTx = true
	return nil
}

func (f *fakeDriver) Commit(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commits++
	f.inTx = false
	if f.commitErr != nil {
		f.open = nil
		return f.commitErr
	}
	f.committed = append(f.committed, f.open...)
	f.open = nil
	return nil
}

func (f *fakeDriver) Rollback(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rollbacks++
	f.open = nil
	f.inTx = false
	return nil
}

func (f *fakeDriver) Exec(ctx context.Context, stmt string) error {
	cur := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		max := f.maxInFlight.Load()
		if cur <= max || f.maxInFlight.CompareAndSwap(max, cur) {
			break
		}
	}
	if f.execDelay > 0 {
		time.Sleep(f.execDelay)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failing {
		return errors.New("exec failed")
	}
	f.stmts = append(f.stmts, stmt)
	if f.inTx {
		f.open = append(f.open, stmt)
	} else {
		f.committed = append(f.committed, stmt)
	}
	return nil
}

func (f *fakeDriver) Query(ctx context.Context, stmt string) (Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failing {
		return nil, errors.New("query failed")
	}
	f.queries = append(f.queries, stmt)
	return f.queryResult, nil
}

func (f *fakeDriver) EscapeString(s string) string { return "'" + s + "'" }
func (f *fakeDriver) EscapeBlob(b []byte) string   { return "'" + string(b) + "'" }
func (f *fakeDriver) LastInsertID() uint64         { return f.lastID }
func (f *fakeDriver) Dialect() Dialect             { return f.dialect }

func (f *fakeDriver) setFailing(v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failing = v
}

func (f *fakeDriver) statements() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.stmts)
}

func (f *fakeDriver) committedStatements() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.committed)
}

func (f *fakeDriver) queryStatements() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.queries)
}

func (f *fakeDriver) txCounts() (begins, commits, rollbacks int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.begins, f.commits, f.rollbacks
}

// fakeResult is the smallest Result a fake query can hand back.
type fakeResult struct {
	closed bool
}

func (r *fakeResult) Int(string) int       { return 0 }
func (r *fakeResult) Int64(string) int64   { return 0 }
func (r *fakeResult) String(string) string { return "" }
func (r *fakeResult) Bytes(string) []byte  { return nil }
func (r *fakeResult) Columns() []string    { return nil }
func (r *fakeResult) Next() bool           { return false }
func (r *fakeResult) RowCount() int        { return 1 }
func (r *fakeResult) Close() error {
	r.closed = true
	return nil
}

// newTestConn returns a connected Conn over a fresh fake driver.
func newTestConn(t *testing.T) (*Conn, *fakeDriver) {
	t.Helper()
	drv := newFakeDriver()
	conn := Open(drv)
	if err := conn.Connect(context.Background(), Params{}); err != nil {
		t.Fatalf("failed to connect fake driver: %v", err)
	}
	return conn, drv
}
