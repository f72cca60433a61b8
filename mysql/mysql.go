// Package mysql adapts a MySQL-family server to the sqlgate driver contract.
package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/go-sql-driver/mysql"
	"github.com/rs/zerolog/log"

	"github.com/saltyorg/sqlgate"
	"github.com/saltyorg/sqlgate/internal/rowset"
)

// Driver is a MySQL backend adapter running on one dedicated connection, so
// LAST_INSERT_ID() and transaction state belong to exactly the statements
// sqlgate serialized onto it.
type Driver struct {
	db   *sql.DB
	conn *sql.Conn

	lastInsert atomic.Uint64
}

// New creates an unconnected MySQL driver.
func New() *Driver {
	return &Driver{}
}

// Connect dials the server over TCP, or over the unix socket when
// p.UnixSocket is set.
func (d *Driver) Connect(ctx context.Context, p sqlgate.Params) error {
	cfg := mysql.NewConfig()
	cfg.User = p.User
	cfg.Passwd = p.Password
	cfg.DBName = p.Database
	if p.UnixSocket != "" {
		cfg.Net = "unix"
		cfg.Addr = p.UnixSocket
	} else {
		cfg.Net = "tcp"
		cfg.Addr = net.JoinHostPort(p.Host, strconv.Itoa(int(p.Port)))
	}

	db, err := sql.Open("mysql", cfg.FormatDSN())
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
	log.Debug().Str("addr", cfg.Addr).Str("database", p.Database).Msg("MySQL connection established")
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

// Begin starts a transaction on the wire.
func (d *Driver) Begin(ctx context.Context) error {
	return d.Exec(ctx, "START TRANSACTION")
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

// EscapeString quotes s as a MySQL string literal with backslash escaping.
func (d *Driver) EscapeString(s string) string {
	var b strings.Builder
	b.Grow(len(s)*2 + 2)
	b.WriteByte('\'')
	for i := 0; i < len(s); i++ {
		switch c := s[i]; c {
		case 0:
			b.WriteString(`\0`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case 0x1a:
			b.WriteString(`\Z`)
		case '\'':
			b.WriteString(`\'`)
		case '"':
			b.WriteString(`\"`)
		case '\\':
			b.WriteString(`\\`)
		default:
			b.WriteByte(c)
		}
	}
	b.WriteByte('\'')
	return b.String()
}

// EscapeBlob quotes binary data using the same escaping as strings, which
// MySQL accepts for blob columns.
func (d *Driver) EscapeBlob(b []byte) string {
	return d.EscapeString(string(b))
}

// LastInsertID returns the auto-increment id assigned by the most recent
// INSERT.
func (d *Driver) LastInsertID() uint64 {
	return d.lastInsert.Load()
}

// Dialect describes MySQL's quirks. Default collations compare
// case-insensitively, so plain "=" is the comparer.
func (d *Driver) Dialect() sqlgate.Dialect {
	return sqlgate.Dialect{
		Engine:         sqlgate.EngineMySQL,
		StringComparer: "= ",
		UpdateLimiter:  " LIMIT 1;",
		MultiRowInsert: true,
	}
}
