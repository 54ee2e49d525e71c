// Package all wires the built-in warehouse backends into the storage
// factory. Importing it for side effects registers:
//
//   - "postgres" (songlake/internal/storage/postgres)
//   - "mssql"    (songlake/internal/storage/mssql)
//   - "sqlite"   (songlake/internal/storage/sqlite)
//
// A binary that needs only a subset can import those packages directly.
package all

import (
	_ "songlake/internal/storage/mssql"
	_ "songlake/internal/storage/postgres"
	_ "songlake/internal/storage/sqlite"
)
