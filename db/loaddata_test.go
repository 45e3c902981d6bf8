package db_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edgeiot/devicedb/db"
)

func TestLoadData_SingleModelArray(t *testing.T) {
	d := openTestDB(t, db.Config{})

	err := d.LoadData("Item", []byte(`[{"id":"l1","label":"a"},{"id":"l2","label":"b"}]`))
	require.NoError(t, err)

	items, _, err := d.Find("Item", nil, db.Params{})
	require.NoError(t, err)
	assert.Len(t, items, 2)
}

func TestLoadData_ObjectKeyedByModelName(t *testing.T) {
	d := openTestDB(t, db.Config{})

	err := d.LoadData("", []byte(`{
		"Item": [{"id":"m1","label":"x"}],
		"User": [{"id":"m2","username":"z","email":"z@x.com"}]
	}`))
	require.NoError(t, err)

	items, _, err := d.Find("Item", nil, db.Params{})
	require.NoError(t, err)
	assert.Len(t, items, 1)

	users, _, err := d.Find("User", nil, db.Params{})
	require.NoError(t, err)
	assert.Len(t, users, 1)
}
