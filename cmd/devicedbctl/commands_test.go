package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const cliTestSchema = `{
	"params": { "timestamps": true },
	"indexes": { "primary": { "hash": "pk", "sort": "id" } },
	"models": {
		"Item": {
			"id":    { "type": "string", "required": true },
			"label": { "type": "string" }
		}
	}
}`

func newCLITestStore(t *testing.T) (dataPath, schemaPath string) {
	t.Helper()

	dir := t.TempDir()
	schemaPath = filepath.Join(dir, "schema.json5")
	require.NoError(t, os.WriteFile(schemaPath, []byte(cliTestSchema), 0o644))
	dataPath = filepath.Join(dir, "store.ddb")

	return dataPath, schemaPath
}

func TestRunCreate_ThenRunGet(t *testing.T) {
	dataPath, schemaPath := newCLITestStore(t)

	err := runCreate([]string{"--data", dataPath, "--schema", schemaPath, "--model", "Item", "id=a1", "label=hello"})
	require.NoError(t, err)

	err = runGet([]string{"--data", dataPath, "--schema", schemaPath, "--model", "Item", "id=a1"})
	require.NoError(t, err)
}

func TestRunFind_RespectsLimit(t *testing.T) {
	dataPath, schemaPath := newCLITestStore(t)

	for _, id := range []string{"f1", "f2", "f3"} {
		require.NoError(t, runCreate([]string{"--data", dataPath, "--schema", schemaPath, "--model", "Item", "id=" + id}))
	}

	err := runFind([]string{"--data", dataPath, "--schema", schemaPath, "--model", "Item", "--limit", "2"})
	require.NoError(t, err)
}

func TestRunExport_WritesJSONFileAtomically(t *testing.T) {
	dataPath, schemaPath := newCLITestStore(t)

	require.NoError(t, runCreate([]string{"--data", dataPath, "--schema", schemaPath, "--model", "Item", "id=e1", "label=x"}))
	require.NoError(t, runCreate([]string{"--data", dataPath, "--schema", schemaPath, "--model", "Item", "id=e2", "label=y"}))

	outPath := filepath.Join(filepath.Dir(dataPath), "export.json")

	err := runExport([]string{"--data", dataPath, "--schema", schemaPath, "--model", "Item", "--out", outPath})
	require.NoError(t, err)

	raw, err := os.ReadFile(outPath)
	require.NoError(t, err)

	var items []map[string]any
	require.NoError(t, json.Unmarshal(raw, &items))
	assert.Len(t, items, 2)
}

func TestRunExport_RequiresOutFlag(t *testing.T) {
	dataPath, schemaPath := newCLITestStore(t)

	err := runExport([]string{"--data", dataPath, "--schema", schemaPath})
	assert.Error(t, err)
}

func TestRunCompact_SucceedsOnEmptyStore(t *testing.T) {
	dataPath, schemaPath := newCLITestStore(t)

	err := runCompact([]string{"--data", dataPath, "--schema", schemaPath})
	require.NoError(t, err)
}

func TestParseProps_CoercesValueTypes(t *testing.T) {
	props, err := parseProps([]string{"id=a1", "count=3", "active=true"})
	require.NoError(t, err)

	assert.Equal(t, "a1", props["id"])
	assert.Equal(t, float64(3), props["count"])
	assert.Equal(t, true, props["active"])
}

func TestParseProps_RejectsMissingEquals(t *testing.T) {
	_, err := parseProps([]string{"noequalshere"})
	assert.Error(t, err)
}
