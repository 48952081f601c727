package repository

import (
	"context"

	"github.com/jackc/pgx/v4"
)

// Tx is an infra-defined transaction handle (pgx.Tx for Postgres).
// Repositories accept NoTX for the non-transactional path.
type Tx interface{}

var NoTX Tx

// TransactionManager runs fn inside a transaction and commits when fn
// returns nil. Repositories called with the tx handed to fn join it.
type TransactionManager interface {
	WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx Tx) error) error
}
