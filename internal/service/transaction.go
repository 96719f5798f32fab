package service

import "context"

// TransactionManager runs fn as one unit of work. Repositories called with
// the ctx passed to fn take part in the same transaction; any error from fn
// discards every write made through it.
type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
