package repo

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
}

// SyncRepo persists synced portal records and reads seller credentials.
type SyncRepo struct {
	Pool      DB
	qTimeout  time.Duration
	txTimeout time.Duration
	batchSize int
}

func NewSyncRepo(pool *pgxpool.Pool, batchSize int) *SyncRepo {
	return NewSyncRepoWith(pool, 2*time.Second, 30*time.Second, batchSize)
}

func NewSyncRepoWith(pool DB, qTimeout, txTimeout time.Duration, batchSize int) *SyncRepo {
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	return &SyncRepo{
		Pool:      pool,
		qTimeout:  qTimeout,
		txTimeout: txTimeout,
		batchSize: batchSize,
	}
}

func (r *SyncRepo) withQ(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, r.qTimeout)
}
func (r *SyncRepo) withTx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, r.txTimeout)
}

func (r *SyncRepo) Ping(ctx context.Context) error {
	ctxT, cancel := r.withQ(ctx)
	defer cancel()
	var x int
	if err := r.Pool.QueryRow(ctxT, qPing).Scan(&x); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	return nil
}
