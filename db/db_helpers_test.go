package db_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/edgeiot/devicedb/db"
)

// testSchema covers every model shape the scenarios in spec.md §8 exercise:
// a User with an enum-constrained role and a generated id, an Event with a
// TTL field, and a plain Item used for pagination sweeps.
const testSchema = `{
	"params": { "timestamps": true, "typeField": "_type" },
	"indexes": { "primary": { "hash": "pk", "sort": "id" } },
	"models": {
		"User": {
			"id":       { "type": "string", "generate": "uid(10)" },
			"username": { "type": "string", "required": true },
			"email":    { "type": "string", "required": true },
			"role":     { "type": "string", "enum": ["user", "admin", "guest", "super"] },
			"created":  { "type": "date" },
			"updated":  { "type": "date" }
		},
		"Event": {
			"id":      { "type": "string", "generate": "ulid" },
			"name":    { "type": "string" },
			"expires": { "type": "date", "ttl": true }
		},
		"Item": {
			"id":    { "type": "string", "required": true },
			"label": { "type": "string" }
		}
	}
}`

// writeSchema writes schemaJSON into dir and returns its path.
func writeSchema(t *testing.T, dir, schemaJSON string) string {
	t.Helper()

	path := filepath.Join(dir, "schema.json5")
	require.NoError(t, os.WriteFile(path, []byte(schemaJSON), 0o644))

	return path
}

// openTestDB opens a fresh store backed by testSchema in a fresh temp dir,
// closing it automatically at test end.
func openTestDB(t *testing.T, cfg db.Config) *db.DB {
	t.Helper()

	dir := t.TempDir()
	schemaPath := writeSchema(t, dir, testSchema)
	dbPath := filepath.Join(dir, "store.ddb")

	d, err := db.Open(dbPath, schemaPath, cfg, db.OpenFlags{})
	require.NoError(t, err)

	t.Cleanup(func() { _ = d.Close() })

	return d
}

// openTestDBAt opens (or reopens) a store at an explicit dir/paths, without
// registering an automatic Close — callers that simulate a crash need to
// control exactly when (or whether) Close runs.
func openTestDBAt(t *testing.T, dir string, cfg db.Config, flags db.OpenFlags) (*db.DB, string, string) {
	t.Helper()

	schemaPath := filepath.Join(dir, "schema.json5")
	if _, err := os.Stat(schemaPath); os.IsNotExist(err) {
		schemaPath = writeSchema(t, dir, testSchema)
	}

	dbPath := filepath.Join(dir, "store.ddb")

	d, err := db.Open(dbPath, schemaPath, cfg, flags)
	require.NoError(t, err)

	return d, dbPath, schemaPath
}
