// Package ddl defines a small, backend-agnostic model for SQL DDL and a
// renderer for CREATE TABLE statements parameterized by a Dialect.
//
// Backends (internal/storage/postgres, sqlite, mssql) supply a Dialect with
// their identifier quoting and type mapping; the statement shape is shared.
// ColumnDef.Default is emitted as raw SQL.
package ddl

import (
	"fmt"
	"strings"
)

// Dialect adapts rendering to one SQL flavor. A zero Dialect emits names
// verbatim and requires every column to carry an explicit SQLType.
type Dialect struct {
	Name       string
	QuoteIdent func(id string) string
	MapType    func(kind string) string
}

func (d Dialect) quote(id string) string {
	if d.QuoteIdent == nil {
		return id
	}
	return d.QuoteIdent(id)
}

// QuoteFQN quotes each non-empty segment of a dotted name.
func (d Dialect) QuoteFQN(fqn string) string {
	parts := strings.Split(fqn, ".")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, d.quote(p))
	}
	return strings.Join(out, ".")
}

// SQLType resolves the concrete type of c.
func (d Dialect) SQLType(c ColumnDef) string {
	if typ := strings.TrimSpace(c.SQLType); typ != "" {
		return typ
	}
	if d.MapType != nil && c.Kind != "" {
		return d.MapType(c.Kind)
	}
	return ""
}

// BuildCreateTableSQL renders a CREATE TABLE statement from a TableDef.
//
// Rules:
//
//   - t.FQN must be non-empty.
//
//   - Each column must have a non-empty Name and a resolvable type.
//
//   - A column is rendered as:
//
//     <Name> <SQLType> [NOT NULL] [DEFAULT <Default>]
//
//     where NOT NULL is added when Nullable == false or PrimaryKey == true.
//
//   - Columns with PrimaryKey == true are collected into a trailing
//     PRIMARY KEY (<col1>, <col2>, ...) clause in declaration order.
//
// The statement has the form:
//
//	CREATE TABLE <FQN> (
//	  <col1-def>,
//	  ...,
//	  [PRIMARY KEY (<pk-cols>)]
//	);
func BuildCreateTableSQL(t TableDef, d Dialect) (string, error) {
	fqn := strings.TrimSpace(t.FQN)
	if fqn == "" {
		return "", fmt.Errorf("ddl: table FQN must not be empty")
	}
	if len(t.Columns) == 0 {
		return "", fmt.Errorf("ddl: at least one column is required")
	}

	cols := make([]string, 0, len(t.Columns)+1)
	pks := make([]string, 0, len(t.Columns))

	for _, c := range t.Columns {
		name := strings.TrimSpace(c.Name)
		if name == "" {
			return "", fmt.Errorf("ddl: column with empty name in table %s", fqn)
		}
		typ := d.SQLType(c)
		if typ == "" {
			return "", fmt.Errorf("ddl: column %s missing SQLType", name)
		}

		var sb strings.Builder
		sb.WriteString(d.quote(name))
		sb.WriteByte(' ')
		sb.WriteString(typ)

		if !c.Nullable || c.PrimaryKey {
			sb.WriteString(" NOT NULL")
		}

		if def := strings.TrimSpace(c.Default); def != "" {
			sb.WriteString(" DEFAULT ")
			sb.WriteString(def)
		}

		cols = append(cols, sb.String())

		if c.PrimaryKey {
			pks = append(pks, d.quote(name))
		}
	}

	if len(pks) > 0 {
		cols = append(cols, fmt.Sprintf("PRIMARY KEY (%s)", strings.Join(pks, ", ")))
	}

	return fmt.Sprintf(
		"CREATE TABLE %s (\n  %s\n);",
		d.QuoteFQN(fqn),
		strings.Join(cols, ",\n  "),
	), nil
}
