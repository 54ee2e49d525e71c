package mssql

import (
	"strings"

	"songlake/internal/ddl"
)

// Dialect renders T-SQL with [bracket] identifiers.
var Dialect = ddl.Dialect{
	Name:       "mssql",
	QuoteIdent: msIdent,
	MapType:    MapType,
}

// T-SQL has no DROP TABLE IF EXISTS before 2016; OBJECT_ID works everywhere.
const dropSQL = "IF OBJECT_ID(N'%[1]s', N'U') IS NOT NULL DROP TABLE %[1]s;"

// MapType maps a logical column kind to a SQL Server type. Unknown kinds fall
// back to NVARCHAR(MAX).
func MapType(kind string) string {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case ddl.KindInt, "integer", "bigint":
		return "BIGINT"
	case ddl.KindFloat, "double":
		return "FLOAT"
	case ddl.KindTimestamp, "datetime":
		return "DATETIME2(3)"
	default:
		return "NVARCHAR(MAX)"
	}
}

// msIdent quotes a SQL Server identifier using [brackets], escaping ].
func msIdent(id string) string { return `[` + strings.ReplaceAll(id, `]`, `]]`) + `]` }
