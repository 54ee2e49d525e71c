package storage

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"songlake/internal/ddl"
)

// TablePreparer readies a target table before a load. With recreate it drops
// and re-creates the table from def; otherwise it empties the existing table
// so every run leaves exactly the current rows.
//
// Backends (postgres, mssql, sqlite) register their implementation for their
// storage kind at init time.
type TablePreparer func(ctx context.Context, repo Repository, def ddl.TableDef, recreate bool) error

var (
	ddlMu  sync.RWMutex
	ddlFns = map[string]TablePreparer{}
)

// RegisterDDL registers (or replaces) the TablePreparer for kind.
func RegisterDDL(kind string, fn TablePreparer) {
	ddlMu.Lock()
	defer ddlMu.Unlock()
	ddlFns[kind] = fn
}

// PrepareTable invokes the TablePreparer registered for kind.
func PrepareTable(ctx context.Context, kind string, repo Repository, def ddl.TableDef, recreate bool) error {
	ddlMu.RLock()
	fn, ok := ddlFns[kind]
	ddlMu.RUnlock()
	if !ok {
		return fmt.Errorf("no DDL bootstrapper registered for storage.kind=%q", kind)
	}
	return fn(ctx, repo, def, recreate)
}

// Statements returns the SQL a preparer should run: drop and create when
// recreate is set, otherwise a DELETE of every row.
func Statements(def ddl.TableDef, d ddl.Dialect, dropSQL string, recreate bool) ([]string, error) {
	fqn := d.QuoteFQN(def.FQN)
	if fqn == "" {
		return nil, fmt.Errorf("ddl: table FQN must not be empty")
	}
	if !recreate {
		return []string{"DELETE FROM " + fqn}, nil
	}
	create, err := ddl.BuildCreateTableSQL(def, d)
	if err != nil {
		return nil, err
	}
	return []string{fmt.Sprintf(dropSQL, fqn), create}, nil
}

// ExecAll runs stmts in order and stops at the first failure.
func ExecAll(ctx context.Context, repo Repository, stmts []string) error {
	for _, s := range stmts {
		if err := repo.Exec(ctx, s); err != nil {
			line, _, _ := strings.Cut(s, "\n")
			return fmt.Errorf("exec %q: %w", line, err)
		}
	}
	return nil
}

// DialectPreparer is the TablePreparer every SQL backend uses: Statements
// rendered for d, executed in order. dropSQL takes the quoted FQN as its
// only verb.
func DialectPreparer(d ddl.Dialect, dropSQL string) TablePreparer {
	return func(ctx context.Context, repo Repository, def ddl.TableDef, recreate bool) error {
		stmts, err := Statements(def, d, dropSQL, recreate)
		if err != nil {
			return fmt.Errorf("%s: %w", d.Name, err)
		}
		return ExecAll(ctx, repo, stmts)
	}
}
