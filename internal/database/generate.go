package database

// After changing a migration or query.sql run
//   go generate ./internal/database
// to rebuild sqlc/schema.sql and the sqlc query code, in that order.

//go:generate sh -c "cd ../.. && go run internal/database/tools/generate_schema.go -out internal/database/sqlc/schema.sql"
//go:generate sh -c "cd ../.. && sqlc generate -f internal/database/sqlc/sqlc.yaml"
