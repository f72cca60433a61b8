package sqlgate

import "context"

// Engine identifies the backend database engine behind a Driver.
type Engine int

const (
	EngineNone Engine = iota
	EngineMySQL
	EngineSQLite
)

func (e Engine) String() string {
	switch e {
	case EngineMySQL:
		return "mysql"
	case EngineSQLite:
		return "sqlite"
	default:
		return "none"
	}
}

// Params holds the connection parameters passed to a driver. Adapters ignore
// the fields that don't apply to them (SQLite only reads Database, which is
// the file path).
type Params struct {
	Host       string
	User       string
	Password   string
	Database   string
	Port       uint16
	UnixSocket string
}

// Dialect describes the SQL quirks of a backend that callers need when
// building statement text.
type Dialect struct {
	Engine Engine

	// StringComparer is the comparison operator text that yields a
	// case-insensitive match on this engine (e.g. "= " on MySQL, " LIKE "
	// on SQLite).
	StringComparer string

	// UpdateLimiter is the clause appended to single-row UPDATE statements
	// (e.g. " LIMIT 1;" on MySQL).
	UpdateLimiter string

	// MultiRowInsert reports whether the engine accepts multi-row VALUES
	// lists. When false, Insert falls back to one statement per row.
	MultiRowInsert bool
}

// Driver is the capability contract a backend adapter implements. A Driver is
// stateful and not safe for concurrent use; Conn serializes all access to it.
//
// Begin, Commit and Rollback must be correct no-ops (returning nil) on engines
// without transaction support: code written against this layer should keep
// working without integrity rather than fail.
type Driver interface {
	Connect(ctx context.Context, p Params) error
	Close() error

	Begin(ctx context.Context) error
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error

	// Exec runs a statement that returns no rows (INSERT, UPDATE, DELETE, DDL).
	Exec(ctx context.Context, stmt string) error

	// Query runs a statement expected to return rows. An empty result set is
	// reported as a nil Result with a nil error.
	Query(ctx context.Context, stmt string) (Result, error)

	// EscapeString quotes and escapes a string literal for this engine.
	EscapeString(s string) string

	// EscapeBlob quotes and escapes a binary literal for this engine.
	EscapeBlob(b []byte) string

	// LastInsertID returns the auto-increment id of the most recent INSERT,
	// or 0 if the last statement produced none.
	LastInsertID() uint64

	Dialect() Dialect
}

// Result is a cursor over the rows of a query. It is positioned on the first
// row when returned; Next advances to the following row. Ownership transfers
// to the caller, who must Close it.
type Result interface {
	Int(column string) int
	Int64(column string) int64
	String(column string) string
	Bytes(column string) []byte

	Columns() []string
	Next() bool
	RowCount() int
	Close() error
}
