package mssql

import (
	"context"

	"songlake/internal/storage"
)

// newRepository is a test hook that points to NewRepository by default.
var newRepository = NewRepository

var prepare = storage.DialectPreparer(Dialect, dropSQL)

func init() {
	storage.Register("mssql", open)
	storage.RegisterDDL("mssql", prepare)
}

func open(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
	r, closeFn, err := newRepository(ctx, Config{DSN: cfg.DSN})
	if err != nil {
		return nil, err
	}
	return &wrappedRepo{Repository: r, closeFn: closeFn}, nil
}

// wrappedRepo attaches the pool's close func to the Repository.
type wrappedRepo struct {
	*Repository
	closeFn func()
}

var _ storage.Repository = (*wrappedRepo)(nil)

func (w *wrappedRepo) Close() {
	if w.closeFn != nil {
		w.closeFn()
	}
}
