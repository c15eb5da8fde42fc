package database

import _ "embed"

// Schema is the full schema produced by applying every migration.
//
//go:embed sqlc/schema.sql
var Schema string
