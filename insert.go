package sqlgate

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// DefaultMaxStatementSize is the byte cap on a batched INSERT statement
// before an automatic flush, matching what MySQL-family servers accept
// comfortably under default packet limits.
const DefaultMaxStatementSize = 8192

var (
	// ErrNoTemplate is returned by AddRow before SetTemplate has been called.
	ErrNoTemplate = errors.New("sqlgate: insert template not set")

	// ErrRowsBuffered is returned by SetTemplate while unflushed rows are
	// pending.
	ErrRowsBuffered = errors.New("sqlgate: rows buffered under current template")
)

// Insert accumulates row value-lists for a single INSERT template and flushes
// them as few physical statements as the backend allows. On engines without
// multi-row VALUES support every AddRow executes immediately as its own
// statement, so batching degrades to correctness-preserving pass-through.
//
// Insert holds no lock between calls; each AddRow or Flush acquires the
// connection's serialized section only for its own statement. The caller must
// Flush after the last AddRow or the tail rows are lost.
type Insert struct {
	conn     *Conn
	max      int
	multiRow bool

	prefix  string
	buf     strings.Builder
	rows    int
	flushed uint64
}

// NewInsert creates a batcher for one bulk-insert operation. maxSize caps the
// byte length of a physical statement (template plus value lists); 0 selects
// DefaultMaxStatementSize.
func NewInsert(conn *Conn, maxSize int) *Insert {
	if maxSize <= 0 {
		maxSize = DefaultMaxStatementSize
	}
	return &Insert{
		conn:     conn,
		max:      maxSize,
		multiRow: conn.Dialect().MultiRowInsert,
	}
}

// SetTemplate sets the fixed INSERT prefix (table and column list, up to and
// including "VALUES ") used for every statement this batcher emits. It must
// be called before the first AddRow and cannot be replaced while rows are
// buffered.
func (b *Insert) SetTemplate(prefix string) error {
	if b.rows > 0 {
		return ErrRowsBuffered
	}
	b.prefix = prefix
	return nil
}

// AddRow appends one row's serialized value list, e.g. "(1, 'name')". If the
// row would push the statement past the size cap the current buffer is
// flushed first and the row starts a new one. A row that alone exceeds the
// cap is still accepted and will go out as a one-row statement.
//
// When the flush fails the row is not appended and not retried; rows already
// flushed earlier are unaffected.
func (b *Insert) AddRow(ctx context.Context, row string) error {
	if b.prefix == "" {
		return ErrNoTemplate
	}

	if !b.multiRow {
		if err := b.conn.Exec(ctx, b.prefix+row); err != nil {
			return fmt.Errorf("failed to insert row: %w", err)
		}
		b.flushed++
		return nil
	}

	if b.rows > 0 && len(b.prefix)+b.buf.Len()+1+len(row) > b.max {
		if err := b.Flush(ctx); err != nil {
			return err
		}
	}
	if b.rows > 0 {
		b.buf.WriteByte(',')
	}
	b.buf.WriteString(row)
	b.rows++
	return nil
}

// Flush executes one physical statement from the buffered rows. On an empty
// buffer it does nothing and returns nil. On failure the buffer is left
// intact so the caller may retry.
func (b *Insert) Flush(ctx context.Context) error {
	if b.rows == 0 {
		return nil
	}
	if err := b.conn.Exec(ctx, b.prefix+b.buf.String()); err != nil {
		return fmt.Errorf("failed to flush %d rows: %w", b.rows, err)
	}
	b.flushed += uint64(b.rows)
	b.rows = 0
	b.buf.Reset()
	return nil
}

// Pending returns the number of buffered, unflushed rows.
func (b *Insert) Pending() int {
	return b.rows
}

// PendingBytes returns the serialized size of the buffered value lists,
// separators included.
func (b *Insert) PendingBytes() int {
	return b.buf.Len()
}

// FlushedRows returns the total number of rows successfully sent so far.
func (b *Insert) FlushedRows() uint64 {
	return b.flushed
}
