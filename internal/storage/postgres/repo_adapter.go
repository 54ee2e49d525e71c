package postgres

import (
	"context"

	"songlake/internal/storage"
)

// newRepository is a test hook that points to NewRepository by default.
var newRepository = NewRepository

// prepare drops and re-creates def, or deletes its rows.
var prepare = storage.DialectPreparer(Dialect, dropSQL)

func init() {
	storage.Register("postgres", open)
	storage.RegisterDDL("postgres", prepare)
}

func open(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
	r, closeFn, err := newRepository(ctx, Config{DSN: cfg.DSN})
	if err != nil {
		return nil, err
	}
	return &wrappedRepo{Repository: r, closeFn: closeFn}, nil
}

// wrappedRepo adds the Close returned by NewRepository.
type wrappedRepo struct {
	*Repository
	closeFn func()
}

var _ storage.Repository = (*wrappedRepo)(nil)

// Close implements storage.Repository.Close.
func (w *wrappedRepo) Close() {
	if w.closeFn != nil {
		w.closeFn()
	}
}
