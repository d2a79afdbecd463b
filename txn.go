// txn.go - transaction wrapper plus real SAVEPOINT support for SQLStore
package erp

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Tx represents a database transaction
// WARNING: Tx is NOT safe for concurrent use by multiple goroutines.
type Tx struct {
	tx pgx.Tx
}

// TxOptions defines the options for transactions
type TxOptions struct {
	// Isolation level for the transaction (use pgx.TxIsoLevel constants)
	IsoLevel       pgx.TxIsoLevel
	AccessMode     pgx.TxAccessMode
	DeferrableMode pgx.TxDeferrableMode
}

// Default transaction options
var DefaultTxOptions = TxOptions{
	IsoLevel:       pgx.ReadCommitted,
	AccessMode:     pgx.ReadWrite,
	DeferrableMode: pgx.NotDeferrable,
}

// ErrTxDone is returned when attempting an operation on a completed transaction
var ErrTxDone = errors.New("transaction has already been committed or rolled back")

// BeginTx starts a new transaction with the default options
func BeginTx(ctx context.Context) (*Tx, error) {
	return BeginTxWithOptions(ctx, DefaultTxOptions)
}

// BeginTxWithOptions starts a new transaction with the specified options
func BeginTxWithOptions(ctx context.Context, opts TxOptions) (*Tx, error) {
	if DB == nil {
		return nil, errors.New("database not initialized")
	}

	txOpts := pgx.TxOptions{
		IsoLevel:       opts.IsoLevel,
		AccessMode:     opts.AccessMode,
		DeferrableMode: opts.DeferrableMode,
	}

	tx, err := DB.BeginTx(ctx, txOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}

	return &Tx{tx: tx}, nil
}

// Commit commits the transaction (context optional for compatibility)
func (tx *Tx) Commit(ctx ...context.Context) error {
	if tx.tx == nil {
		return ErrTxDone
	}

	c := context.Background()
	if len(ctx) > 0 {
		c = ctx[0]
	}

	err := tx.tx.Commit(c)
	if err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// Rollback aborts the transaction (context optional for compatibility)
func (tx *Tx) Rollback(ctx ...context.Context) error {
	if tx.tx == nil {
		return ErrTxDone
	}

	c := context.Background()
	if len(ctx) > 0 {
		c = ctx[0]
	}

	err := tx.tx.Rollback(c)
	if err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		return fmt.Errorf("failed to rollback transaction: %w", err)
	}

	return nil
}

// ExecContext executes a query within the transaction with context
func (tx *Tx) ExecContext(ctx context.Context, query string, args ...interface{}) (pgconn.CommandTag, error) {
	if tx.tx == nil {
		return pgconn.CommandTag{}, ErrTxDone
	}

	return tx.tx.Exec(ctx, query, args...)
}

// QueryContext executes a query that returns rows with context
func (tx *Tx) QueryContext(ctx context.Context, query string, args ...interface{}) (pgx.Rows, error) {
	if tx.tx == nil {
		return nil, ErrTxDone
	}

	return tx.tx.Query(ctx, query, args...)
}

// QueryRowContext executes a query that returns a single row with context
func (tx *Tx) QueryRowContext(ctx context.Context, query string, args ...interface{}) pgx.Row {
	if tx.tx == nil {
		return nil
	}

	return tx.tx.QueryRow(ctx, query, args...)
}

// Savepoint opens a nested SAVEPOINT with the given (uuid-distinct) name.
func (tx *Tx) Savepoint(ctx context.Context, name string) error {
	if tx.tx == nil {
		return ErrTxDone
	}
	_, err := tx.tx.Exec(ctx, `SAVEPOINT `+quoteIdent(name))
	return err
}

// ReleaseSavepoint releases a previously opened SAVEPOINT, folding its
// writes into the enclosing transaction/savepoint.
func (tx *Tx) ReleaseSavepoint(ctx context.Context, name string) error {
	if tx.tx == nil {
		return ErrTxDone
	}
	_, err := tx.tx.Exec(ctx, `RELEASE SAVEPOINT `+quoteIdent(name))
	return err
}

// RollbackToSavepoint undoes every write made since the named SAVEPOINT was
// opened, without closing the enclosing transaction.
func (tx *Tx) RollbackToSavepoint(ctx context.Context, name string) error {
	if tx.tx == nil {
		return ErrTxDone
	}
	_, err := tx.tx.Exec(ctx, `ROLLBACK TO SAVEPOINT `+quoteIdent(name))
	return err
}

// quoteIdent turns a uuid-derived savepoint name into a valid, injection-safe
// Postgres identifier. Savepoint names in this system are always generated
// internally (see savepoint.go), never taken from user input, but they are
// quoted regardless since SAVEPOINT does not accept a parameter placeholder.
func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
