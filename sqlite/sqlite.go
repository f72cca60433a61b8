// Package sqlite adapts a SQLite database file to the sqlgate driver
// contract, using the CGo-free modernc.org driver underneath.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/hex"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"

	"github.com/saltyorg/sqlgate"
	"github.com/saltyorg/sqlgate/internal/rowset"
)

// Driver is a SQLite backend adapter. Everything runs on one dedicated
// connection so wire-level BEGIN/COMMIT and last-insert-id stay coherent;
// sqlgate.Conn serializes the callers.
type Driver struct {
	db   *sql.DB
	conn *sql.Conn

	lastInsert atomic.Uint64
}

// New creates an unconnected SQLite driver.
func New() *Driver {
	return &Driver{}
}

// Connect opens the database file named by p.Database. The remaining
// parameters are meaningless for SQLite and ignored.
func (d *Driver) Connect(ctx context.Context, p sqlgate.Params) error {
	// WAL mode for concurrent readers; writes are serialized above anyway.
	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on", p.Database)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	conn, err := db.Conn(ctx)
	if err != nil {
		db.Close()
		return fmt.Errorf("failed to open connection: %w", err)
	}
	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	d.db = db
	d.conn = conn
	log.Debug().Str("path", p.Database).Msg("SQLite database opened")
	return nil
}

// Close releases the dedicated connection and the pool behind it.
func (d *Driver) Close() error {
	if d.conn != nil {
		d.conn.Close()
		d.conn = nil
	}
	if d.db != nil {
		err := d.db.Close()
		d.db = nil
		if err != nil {
			return fmt.Errorf("failed to close database: %w", err)
		}
	}
	return nil
}

// Begin starts a deferred transaction.
func (d *Driver) Begin(ctx context.Context) error {
	return d.Exec(ctx, "BEGIN")
}

// Commit commits the open transaction.
func (d *Driver) Commit(ctx context.Context) error {
	return d.Exec(ctx, "COMMIT")
}

// Rollback rolls back the open transaction.
func (d *Driver) Rollback(ctx context.Context) error {
	return d.Exec(ctx, "ROLLBACK")
}

// Exec runs a statement without result rows and records its last-insert id.
func (d *Driver) Exec(ctx context.Context, stmt string) error {
	if d.conn == nil {
		return sqlgate.ErrNotConnected
	}
	res, err := d.conn.ExecContext(ctx, stmt)
	if err != nil {
		return err
	}
	if id, err := res.LastInsertId(); err == nil && id > 0 {
		d.lastInsert.Store(uint64(id))
	}
	return nil
}

// Query runs a statement and buffers the full result. Empty results are
// reported as nil.
func (d *Driver) Query(ctx context.Context, stmt string) (sqlgate.Result, error) {
	if d.conn == nil {
		return nil, sqlgate.ErrNotConnected
	}
	rows, err := d.conn.QueryContext(ctx, stmt)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	rs, err := rowset.Load(rows)
	if err != nil {
		return nil, err
	}
	if rs == nil {
		return nil, nil
	}
	return rs, nil
}

// EscapeString quotes s as a SQLite string literal, doubling embedded quotes.
func (d *Driver) EscapeString(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// EscapeBlob quotes b as a SQLite hex blob literal.
func (d *Driver) EscapeBlob(b []byte) string {
	return "X'" + strings.ToUpper(hex.EncodeToString(b)) + "'"
}

// LastInsertID returns the rowid assigned by the most recent INSERT.
func (d *Driver) LastInsertID() uint64 {
	return d.lastInsert.Load()
}

// Dialect describes SQLite's quirks. Plain "=" is case-sensitive on SQLite,
// so LIKE is the case-insensitive comparer; multi-row VALUES has been
// supported since 3.7.11.
func (d *Driver) Dialect() sqlgate.Dialect {
	return sqlgate.Dialect{
		Engine:         sqlgate.EngineSQLite,
		StringComparer: " LIKE ",
		UpdateLimiter:  ";",
		MultiRowInsert: true,
	}
}
