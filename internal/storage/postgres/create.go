package postgres

import (
	"strings"

	"songlake/internal/ddl"
)

// Dialect renders Postgres DDL: double-quoted identifiers and native types.
var Dialect = ddl.Dialect{
	Name:       "postgres",
	QuoteIdent: pgIdent,
	MapType:    MapType,
}

const dropSQL = "DROP TABLE IF EXISTS %s"

// MapType maps a logical column kind to a Postgres type.
//
//	int       -> BIGINT
//	float     -> DOUBLE PRECISION
//	timestamp -> TIMESTAMPTZ
//	other     -> TEXT
func MapType(kind string) string {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case ddl.KindInt, "integer", "bigint":
		return "BIGINT"
	case ddl.KindFloat, "double":
		return "DOUBLE PRECISION"
	case ddl.KindTimestamp, "timestamptz":
		return "TIMESTAMPTZ"
	default:
		return "TEXT"
	}
}

// pgIdent safely quotes a single identifier segment for Postgres.
func pgIdent(id string) string { return `"` + strings.ReplaceAll(id, `"`, `""`) + `"` }
