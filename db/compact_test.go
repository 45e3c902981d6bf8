package db_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edgeiot/devicedb/db"
)

func TestCompact_DoesNotChangeObservableContent(t *testing.T) {
	d := openTestDB(t, db.Config{})

	_, err := d.Create("Item", map[string]any{"id": "c1", "label": "x"}, db.Params{})
	require.NoError(t, err)

	d.Compact()

	got, err := d.Get("Item", map[string]any{"id": "c1"}, db.Params{})
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "x", got["label"])
}

func TestSave_ForcesImmediateSnapshot(t *testing.T) {
	d := openTestDB(t, db.Config{})

	_, err := d.Create("Item", map[string]any{"id": "s1"}, db.Params{})
	require.NoError(t, err)

	require.NoError(t, d.Save())

	got, err := d.Get("Item", map[string]any{"id": "s1"}, db.Params{})
	require.NoError(t, err)
	require.NotNil(t, got)
}
