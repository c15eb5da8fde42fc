// Command generate_schema applies every migration to an empty in-memory
// database and writes the resulting schema to sqlc/schema.sql, which feeds
// both sqlc and the embedded database.Schema used by tests.
package main

import (
	"database/sql"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"photo-ingest/internal/database"
	"photo-ingest/internal/database/migrations"
)

const header = `-- Generated from internal/database/migrations/files by
-- 'go generate ./internal/database'. Edit the migrations, not this file.

`

// requiredTables must exist after migrating; a missing one means a
// migration was dropped or renamed.
var requiredTables = []string{"directory_cache", "exif_cache", "file_records", "ingest_runs"}

func main() {
	out := flag.String("out", filepath.Join("internal", "database", "sqlc", "schema.sql"), "output path")
	flag.Parse()
	log.SetFlags(0)

	db, err := database.OpenConnection(":memory:")
	if err != nil {
		log.Fatalf("opening database: %v", err)
	}
	defer db.Close()

	if err := migrations.MigrateUp(db); err != nil {
		log.Fatalf("applying migrations: %v", err)
	}

	schema, tables, err := dumpSchema(db)
	if err != nil {
		log.Fatalf("dumping schema: %v", err)
	}
	for _, name := range requiredTables {
		if !tables[name] {
			log.Fatalf("table %s missing after migration", name)
		}
	}

	if err := os.WriteFile(*out, []byte(header+schema), 0o644); err != nil {
		log.Fatalf("writing %s: %v", *out, err)
	}
	fmt.Printf("wrote %s (%d tables)\n", *out, len(tables))
}

// dumpSchema returns the CREATE statements for tables, then indexes, each
// group sorted by name. SQLite internals and the migrate bookkeeping table
// are left out.
func dumpSchema(db *sql.DB) (string, map[string]bool, error) {
	rows, err := db.Query(`
		SELECT type, name, sql
		FROM sqlite_master
		WHERE type IN ('table', 'index')
		  AND sql IS NOT NULL
		  AND name NOT LIKE 'sqlite_%'
		  AND tbl_name != 'schema_migrations'
		ORDER BY type = 'index', name`)
	if err != nil {
		return "", nil, err
	}
	defer rows.Close()

	var b strings.Builder
	tables := make(map[string]bool)
	for rows.Next() {
		var kind, name, stmt string
		if err := rows.Scan(&kind, &name, &stmt); err != nil {
			return "", nil, err
		}
		if kind == "table" {
			tables[name] = true
		}
		b.WriteString(stmt)
		b.WriteString(";\n\n")
	}
	return b.String(), tables, rows.Err()
}
