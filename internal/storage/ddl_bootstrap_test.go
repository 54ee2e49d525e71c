package storage

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"

	"songlake/internal/ddl"
)

var plain = ddl.Dialect{
	QuoteIdent: func(id string) string { return `"` + id + `"` },
	MapType:    func(string) string { return "TEXT" },
}

func TestStatements(t *testing.T) {
	t.Parallel()

	def := ddl.TableDef{FQN: "lake.users", Columns: []ddl.ColumnDef{{Name: "userId", Kind: ddl.KindString}}}

	got, err := Statements(def, plain, "DROP TABLE IF EXISTS %s", false)
	if err != nil {
		t.Fatalf("Statements: %v", err)
	}
	if !reflect.DeepEqual(got, []string{`DELETE FROM "lake"."users"`}) {
		t.Fatalf("truncate statements = %q", got)
	}

	got, err = Statements(def, plain, "DROP TABLE IF EXISTS %s", true)
	if err != nil {
		t.Fatalf("Statements: %v", err)
	}
	if len(got) != 2 || got[0] != `DROP TABLE IF EXISTS "lake"."users"` || !strings.HasPrefix(got[1], `CREATE TABLE "lake"."users"`) {
		t.Fatalf("recreate statements = %q", got)
	}

	if _, err := Statements(ddl.TableDef{}, plain, "%s", true); err == nil {
		t.Fatalf("empty FQN accepted")
	}
}

func TestPrepareTable_Registry(t *testing.T) {
	t.Parallel()

	var gotRecreate bool
	inner := DialectPreparer(plain, "DROP TABLE %s")
	RegisterDDL("prep-fake", func(ctx context.Context, repo Repository, def ddl.TableDef, recreate bool) error {
		gotRecreate = recreate
		return inner(ctx, repo, def, recreate)
	})

	repo := &recordingRepo{}
	def := ddl.TableDef{FQN: "songs", Columns: []ddl.ColumnDef{{Name: "song_id", Kind: ddl.KindString}}}
	if err := PrepareTable(context.Background(), "prep-fake", repo, def, true); err != nil {
		t.Fatalf("PrepareTable: %v", err)
	}
	if !gotRecreate || len(repo.execs) != 2 || repo.execs[0] != `DROP TABLE "songs"` {
		t.Fatalf("execs = %q", repo.execs)
	}

	if err := PrepareTable(context.Background(), "nope", repo, def, true); err == nil {
		t.Fatalf("unregistered kind accepted")
	}
}

type failingExec struct {
	recordingRepo
}

func (f *failingExec) Exec(_ context.Context, sql string) error {
	f.execs = append(f.execs, sql)
	return errors.New("permission denied")
}

func TestDialectPreparer_Errors(t *testing.T) {
	t.Parallel()

	plain := plain
	plain.Name = "fakesql"
	prep := DialectPreparer(plain, "DROP TABLE %s")

	err := prep(context.Background(), &recordingRepo{}, ddl.TableDef{}, true)
	if err == nil || !strings.HasPrefix(err.Error(), "fakesql: ") {
		t.Fatalf("empty FQN err = %v; want fakesql prefix", err)
	}

	repo := &failingExec{}
	def := ddl.TableDef{FQN: "times", Columns: []ddl.ColumnDef{{Name: "hour", Kind: ddl.KindInt}}}
	err = prep(context.Background(), repo, def, true)
	if err == nil || !strings.Contains(err.Error(), `exec "DROP TABLE \"times\""`) {
		t.Fatalf("err = %v", err)
	}
	if len(repo.execs) != 1 {
		t.Fatalf("statements after a failure were executed: %q", repo.execs)
	}
}
