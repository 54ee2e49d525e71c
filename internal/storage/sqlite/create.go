package sqlite

import (
	"strings"

	"songlake/internal/ddl"
)

// Dialect renders SQLite DDL with double-quoted identifiers and storage
// class affinities.
var Dialect = ddl.Dialect{
	Name:       "sqlite",
	QuoteIdent: quoteIdent,
	MapType:    MapType,
}

const dropSQL = "DROP TABLE IF EXISTS %s"

// MapType maps a logical column kind to a SQLite affinity. Timestamps are
// stored as ISO-8601 TEXT.
func MapType(kind string) string {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case ddl.KindInt, "integer", "bigint":
		return "INTEGER"
	case ddl.KindFloat, "double", "real":
		return "REAL"
	default:
		return "TEXT"
	}
}

func quoteIdent(id string) string {
	return `"` + strings.ReplaceAll(id, `"`, `""`) + `"`
}
