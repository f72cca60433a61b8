package sqlgate

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
)

var (
	// ErrTxNotOpen is returned by Commit when Begin was never called or
	// failed.
	ErrTxNotOpen = errors.New("sqlgate: transaction not open")

	// ErrTxDone is returned by Begin and Commit once the transaction has
	// been committed or rolled back.
	ErrTxDone = errors.New("sqlgate: transaction already finished")
)

type txState int

const (
	txFresh txState = iota
	txOpen
	txDone
)

// Tx is a scoped unit of work on a Conn. It holds the connection's exclusive
// section from a successful Begin until Commit or Close, so the statements
// inside it can never interleave with other callers.
//
// Usage:
//
//	tx := conn.NewTx()
//	ctx, err := tx.Begin(ctx)
//	if err != nil {
//		return err
//	}
//	defer tx.Close()
//
//	if err := conn.Exec(ctx, ...); err != nil {
//		return err
//	}
//	return tx.Commit()
//
// If the deferred Close runs while the transaction is still open (an error
// path skipped Commit), it rolls the transaction back. Close after Commit is
// a no-op.
type Tx struct {
	conn    *Conn
	state   txState
	ctx     context.Context
	release func()
}

// NewTx creates a fresh transaction guard bound to this connection. Nothing
// happens until Begin.
func (c *Conn) NewTx() *Tx {
	return &Tx{conn: c}
}

// Begin acquires the exclusive section and starts a driver-level transaction.
// It returns a context carrying ownership of the section; statements issued
// inside the transaction must use it (or a context derived from it) to
// re-enter without deadlocking.
//
// On failure the section is released, the guard stays fresh, and the unit of
// work is not protected: dropping the guard afterwards performs no rollback.
func (t *Tx) Begin(ctx context.Context) (context.Context, error) {
	switch t.state {
	case txOpen:
		return nil, errors.New("sqlgate: transaction already open")
	case txDone:
		return nil, ErrTxDone
	}
	if !t.conn.IsConnected() {
		return nil, ErrNotConnected
	}

	held, release, err := t.conn.exec.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	if err := t.conn.drv.Begin(held); err != nil {
		release()
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}

	t.state = txOpen
	t.ctx = held
	t.release = release
	t.conn.MarkUsed()
	return held, nil
}

// Commit finishes the transaction. Whatever the driver reports, the guard is
// done afterwards: a failed commit cannot be retried through the same guard,
// and a second Commit returns ErrTxDone without touching the driver.
func (t *Tx) Commit() error {
	switch t.state {
	case txFresh:
		return ErrTxNotOpen
	case txDone:
		return ErrTxDone
	}

	err := t.conn.drv.Commit(t.ctx)
	t.finish()
	if err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Close releases the guard. If the transaction is still open it is rolled
// back, so an error path that skipped Commit never leaves the connection in
// an open transaction. Safe to call multiple times and on a guard whose Begin
// failed or never ran.
func (t *Tx) Close() {
	if t.state != txOpen {
		return
	}
	if err := t.conn.drv.Rollback(t.ctx); err != nil {
		// Nobody left to report to; make it observable and move on.
		log.Error().Err(err).Msg("Failed to roll back abandoned transaction")
	} else {
		log.Debug().Msg("Rolled back abandoned transaction")
	}
	t.finish()
}

func (t *Tx) finish() {
	t.state = txDone
	release := t.release
	t.ctx = nil
	t.release = nil
	if release != nil {
		release()
	}
}
