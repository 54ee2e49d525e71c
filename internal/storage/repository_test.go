package storage

import (
	"context"
	"errors"
	"slices"
	"testing"
)

// fakeRepo is a minimal Repository implementation for tests.
type fakeRepo struct {
	dsn    string
	closed bool
}

func (f *fakeRepo) CopyFrom(ctx context.Context, table string, columns []string, rows [][]any) (int64, error) {
	return int64(len(rows)), nil
}
func (f *fakeRepo) Exec(ctx context.Context, sql string) error { return nil }
func (f *fakeRepo) Close()                                     { f.closed = true }

func TestNew_Registry(t *testing.T) {
	t.Parallel()

	boom := errors.New("warehouse unreachable")
	Register("test-ok", func(_ context.Context, cfg Config) (Repository, error) {
		return &fakeRepo{dsn: cfg.DSN}, nil
	})
	Register("test-err", func(context.Context, Config) (Repository, error) { return nil, boom })

	tests := []struct {
		name    string
		cfg     Config
		wantDSN string
		wantErr error
		wantMsg string
	}{
		{name: "dsn passed through", cfg: Config{Kind: "test-ok", DSN: "file:lake.db"}, wantDSN: "file:lake.db"},
		{name: "factory error bubbles up", cfg: Config{Kind: "test-err"}, wantErr: boom},
		{name: "unknown kind", cfg: Config{Kind: "redshift"}, wantMsg: "unsupported storage.kind=redshift"},
		{name: "empty kind", cfg: Config{}, wantMsg: "unsupported storage.kind="},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			repo, err := New(context.Background(), tc.cfg)
			switch {
			case tc.wantErr != nil:
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("err = %v, want %v", err, tc.wantErr)
				}
			case tc.wantMsg != "":
				if err == nil || err.Error() != tc.wantMsg {
					t.Fatalf("err = %v, want %q", err, tc.wantMsg)
				}
			default:
				if err != nil {
					t.Fatalf("New: %v", err)
				}
				if got := repo.(*fakeRepo).dsn; got != tc.wantDSN {
					t.Fatalf("dsn = %q, want %q", got, tc.wantDSN)
				}
			}
		})
	}
}

// Re-registering a kind replaces the previous factory.
func TestRegister_Override(t *testing.T) {
	t.Parallel()

	var used string
	Register("test-override", func(context.Context, Config) (Repository, error) {
		used = "first"
		return &fakeRepo{}, nil
	})
	Register("test-override", func(context.Context, Config) (Repository, error) {
		used = "second"
		return &fakeRepo{}, nil
	})
	if _, err := New(context.Background(), Config{Kind: "test-override"}); err != nil {
		t.Fatalf("New: %v", err)
	}
	if used != "second" {
		t.Fatalf("factory used = %q, want second", used)
	}
}

func TestListKinds_SortedSnapshot(t *testing.T) {
	t.Parallel()

	Register("test-zz", func(context.Context, Config) (Repository, error) { return &fakeRepo{}, nil })
	Register("test-aa", func(context.Context, Config) (Repository, error) { return &fakeRepo{}, nil })

	a := ListKinds()
	if !slices.IsSorted(a) {
		t.Fatalf("ListKinds not sorted: %v", a)
	}
	if !slices.Contains(a, "test-aa") || !slices.Contains(a, "test-zz") {
		t.Fatalf("registered kinds missing: %v", a)
	}
	a[0] = "mutated"
	if b := ListKinds(); b[0] == "mutated" {
		t.Fatalf("ListKinds returned the registry's own slice")
	}
}
