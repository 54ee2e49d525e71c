package ddl

import "strings"

// Logical column kinds. Backends map them to concrete SQL types.
const (
	KindString    = "string"
	KindInt       = "int"
	KindFloat     = "float"
	KindTimestamp = "timestamp"
)

// ColumnDef describes a single column in a table definition.
//
// Fields:
//   - Name: logical column name (unquoted; quoting happens at render time)
//   - Kind: logical kind (KindString, KindInt, ...), mapped by a Dialect
//   - SQLType: explicit SQL type; overrides Kind when set
//   - Nullable: whether NULL is allowed
//   - PrimaryKey: whether the column is part of the primary key
//   - Default: raw default expression (e.g., 'free', CURRENT_TIMESTAMP)
type ColumnDef struct {
	Name       string
	Kind       string
	SQLType    string
	Nullable   bool
	PrimaryKey bool
	Default    string
}

// TableDef holds the table name (FQN) and an ordered list of columns. The FQN
// is expected in dotted form (e.g., "analytics.songs") and is quoted segment
// by segment by renderers.
type TableDef struct {
	FQN     string
	Columns []ColumnDef
}

// ColumnNames returns the column names in declaration order.
func (t TableDef) ColumnNames() []string {
	out := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		out[i] = strings.TrimSpace(c.Name)
	}
	return out
}
