package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/portraitlab/server/internal/port/outbound"
	apperrors "github.com/portraitlab/server/internal/utils/errors"
	"gorm.io/gorm"
)

// ErrNoTransaction is returned by row-locking reads outside RunInTransaction.
var ErrNoTransaction = errors.New("postgres: row lock requires a transaction")

// SQLSTATE codes that mean a concurrent writer won.
const (
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
	codeUniqueViolation      = "23505"
)

// TransactionAdapter implements outbound.TransactionPort.
type TransactionAdapter struct {
	db *gorm.DB
}

// NewTransactionAdapter creates a new transaction adapter.
func NewTransactionAdapter(db *gorm.DB) *TransactionAdapter {
	return &TransactionAdapter{db: db}
}

// RunInTransaction runs fn in a transaction. A context that already carries
// a transaction joins it.
func (a *TransactionAdapter) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := txFrom(ctx); ok {
		return fn(ctx)
	}
	err := a.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Store tx in context for nested operations
		txCtx := context.WithValue(ctx, txContextKey, tx)
		return fn(txCtx)
	})
	return translateError(err)
}

// txContextKey is used to store transaction in context.
type txContextKeyType struct{}

var txContextKey = txContextKeyType{}

func txFrom(ctx context.Context) (*gorm.DB, bool) {
	tx, ok := ctx.Value(txContextKey).(*gorm.DB)
	return tx, ok && tx != nil
}

// conn returns the transaction carried by ctx, or db.
func conn(ctx context.Context, db *gorm.DB) *gorm.DB {
	if tx, ok := txFrom(ctx); ok {
		return tx.WithContext(ctx)
	}
	return db.WithContext(ctx)
}

// lockConn is conn for SELECT ... FOR UPDATE.
func lockConn(ctx context.Context) (*gorm.DB, error) {
	tx, ok := txFrom(ctx)
	if !ok {
		return nil, ErrNoTransaction
	}
	return tx.WithContext(ctx), nil
}

// translateError maps lost races onto apperrors.ErrConflict so callers can
// retry. Other errors pass through.
func translateError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, apperrors.ErrConflict) {
		return err
	}

	var code, msg string
	var pgErr *pgconn.PgError
	var pqErr *pq.Error
	switch {
	case errors.As(err, &pgErr):
		code, msg = pgErr.Code, pgErr.Message
	case errors.As(err, &pqErr):
		code, msg = string(pqErr.Code), pqErr.Message
	case errors.Is(err, gorm.ErrDuplicatedKey):
		code, msg = codeUniqueViolation, err.Error()
	default:
		return err
	}

	switch code {
	case codeSerializationFailure, codeDeadlockDetected, codeUniqueViolation:
		return fmt.Errorf("%w: %s", apperrors.ErrConflict, msg)
	}
	return err
}

// Compile-time check
var _ outbound.TransactionPort = (*TransactionAdapter)(nil)
