package outbound

import (
	"context"
)

// TransactionPort runs work inside a single store transaction.
//
// The transaction travels in the context passed to fn; every database port
// called with that context joins it. Returning an error from fn rolls back.
type TransactionPort interface {
	RunInTransaction(ctx context.Context, fn func(txCtx context.Context) error) error
}
