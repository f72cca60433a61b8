package sqlgate

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
)

// ErrNotConnected is returned by Exec and Query before a successful Connect
// or after Close.
var ErrNotConnected = errors.New("sqlgate: not connected")

// Conn is the process-wide handle around the one live driver instance. Create
// it once with Open and pass it by reference; all statements issued through it
// are serialized by its Executor.
type Conn struct {
	drv  Driver
	exec *Executor

	connected atomic.Bool
	lastUse   atomic.Int64 // unix nanoseconds
}

// Open wraps a driver in a connection handle. The handle takes ownership of
// the driver; no other code may call it directly afterwards.
func Open(drv Driver) *Conn {
	return &Conn{drv: drv, exec: NewExecutor()}
}

// Executor returns the serialized section guarding this connection, for
// callers that need to hold it across several statements without a
// transaction.
func (c *Conn) Executor() *Executor {
	return c.exec
}

// Connect establishes the driver-level connection and records the outcome in
// the connected flag.
func (c *Conn) Connect(ctx context.Context, p Params) error {
	if err := c.drv.Connect(ctx, p); err != nil {
		c.connected.Store(false)
		return fmt.Errorf("failed to connect: %w", err)
	}
	c.connected.Store(true)
	c.MarkUsed()
	log.Debug().Str("engine", c.drv.Dialect().Engine.String()).Msg("Database connection established")
	return nil
}

// Close disconnects the driver. It waits for the exclusive section so an
// in-flight statement is never cut off mid-execution.
func (c *Conn) Close() error {
	_, release, err := c.exec.Acquire(context.Background())
	if err != nil {
		return err
	}
	defer release()

	c.connected.Store(false)
	if err := c.drv.Close(); err != nil {
		return fmt.Errorf("failed to close connection: %w", err)
	}
	return nil
}

// IsConnected reports whether the last Connect succeeded and no Close or
// fatal driver error has happened since.
func (c *Conn) IsConnected() bool {
	return c.connected.Load()
}

// MarkUsed records the current time as the last use of the connection.
// Callers use this for idle bookkeeping (see Keepalive); nothing is enforced
// here.
func (c *Conn) MarkUsed() {
	c.lastUse.Store(time.Now().UnixNano())
}

// LastUsed returns the time of the most recent statement or MarkUsed call.
func (c *Conn) LastUsed() time.Time {
	return time.Unix(0, c.lastUse.Load())
}

// Exec sends a statement with no result rows through the serialized section.
func (c *Conn) Exec(ctx context.Context, stmt string) error {
	if !c.connected.Load() {
		return ErrNotConnected
	}
	ctx, release, err := c.exec.Acquire(ctx)
	if err != nil {
		return err
	}
	defer release()

	c.MarkUsed()
	if err := c.drv.Exec(ctx, stmt); err != nil {
		log.Error().Err(err).Str("statement", trimStmt(stmt)).Msg("Statement failed")
		return fmt.Errorf("failed to execute statement: %w", err)
	}
	return nil
}

// Query sends a statement expected to return rows. A nil Result with a nil
// error means the statement succeeded but matched nothing. The caller owns
// the Result and must Close it.
func (c *Conn) Query(ctx context.Context, stmt string) (Result, error) {
	if !c.connected.Load() {
		return nil, ErrNotConnected
	}
	ctx, release, err := c.exec.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	c.MarkUsed()
	res, err := c.drv.Query(ctx, stmt)
	if err != nil {
		log.Error().Err(err).Str("statement", trimStmt(stmt)).Msg("Query failed")
		return nil, fmt.Errorf("failed to query: %w", err)
	}
	return res, nil
}

// LastInsertID returns the driver's last auto-increment id, 0 when the last
// statement produced none.
func (c *Conn) LastInsertID() uint64 {
	return c.drv.LastInsertID()
}

// Dialect returns the backend's SQL quirks.
func (c *Conn) Dialect() Dialect {
	return c.drv.Dialect()
}

// EscapeString quotes a string literal for the backend.
func (c *Conn) EscapeString(s string) string {
	return c.drv.EscapeString(s)
}

// EscapeBlob quotes a binary literal for the backend.
func (c *Conn) EscapeBlob(b []byte) string {
	return c.drv.EscapeBlob(b)
}

// trimStmt shortens long statement text for log lines.
func trimStmt(stmt string) string {
	const max = 256
	if len(stmt) <= max {
		return stmt
	}
	return stmt[:max] + "..."
}
