package db_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edgeiot/devicedb/db"
)

// Invariant 2 (spec.md §8): update without upsert merges in the given
// fields and retains every field not named by the update.
func TestUpdate_WithoutUpsert_MergesAndRetainsUntouchedFields(t *testing.T) {
	d := openTestDB(t, db.Config{})

	_, err := d.Create("User", map[string]any{"id": "u1", "username": "bob", "email": "bob@x.com", "role": "user"}, db.Params{})
	require.NoError(t, err)

	updated, err := d.Update("User", map[string]any{"id": "u1", "role": "admin"}, db.Params{})
	require.NoError(t, err)

	assert.Equal(t, "admin", updated["role"])
	assert.Equal(t, "bob", updated["username"])
	assert.Equal(t, "bob@x.com", updated["email"])
}

// Invariant 3 (spec.md §8): update with upsert replaces the item's JSON
// entirely, merged only with defaults for fields still missing.
func TestUpdate_WithUpsert_ReplacesEntireDocument(t *testing.T) {
	d := openTestDB(t, db.Config{})

	_, err := d.Create("User", map[string]any{"id": "u2", "username": "carol", "email": "c@x.com", "role": "user"}, db.Params{})
	require.NoError(t, err)

	replaced, err := d.Update("User", map[string]any{"id": "u2", "username": "carol2", "email": "c2@x.com"}, db.Params{Upsert: true})
	require.NoError(t, err)

	assert.Equal(t, "carol2", replaced["username"])
	assert.Equal(t, "c2@x.com", replaced["email"])
	assert.Empty(t, replaced["role"]) // not carried over from the prior document
}

func TestUpdate_WithoutUpsert_MissingItemFailsNotFound(t *testing.T) {
	d := openTestDB(t, db.Config{})

	_, err := d.Update("User", map[string]any{"id": "ghost", "role": "admin"}, db.Params{})
	require.Error(t, err)
	assert.True(t, db.IsKind(err, db.KindNotFound))
}

func TestUpdate_WithUpsert_CreatesWhenMissing(t *testing.T) {
	d := openTestDB(t, db.Config{})

	created, err := d.Update("User", map[string]any{"id": "new1", "username": "dana", "email": "d@x.com"}, db.Params{Upsert: true})
	require.NoError(t, err)
	assert.Equal(t, "dana", created["username"])

	got, err := d.Get("User", map[string]any{"id": "new1"}, db.Params{})
	require.NoError(t, err)
	require.NotNil(t, got)
}

// Invariant 4 (spec.md §8): after a successful remove of one item, a
// subsequent get for the same key returns nil.
func TestRemove_ThenGet_ReturnsNil(t *testing.T) {
	d := openTestDB(t, db.Config{})

	_, err := d.Create("User", map[string]any{"id": "u3", "username": "eve", "email": "e@x.com"}, db.Params{})
	require.NoError(t, err)

	n, err := d.Remove("User", map[string]any{"id": "u3"}, db.Params{})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := d.Get("User", map[string]any{"id": "u3"}, db.Params{})
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestRemove_RespectsLimit(t *testing.T) {
	d := openTestDB(t, db.Config{})

	for i := 0; i < 5; i++ {
		_, err := d.Create("Item", map[string]any{"id": itemID(i)}, db.Params{})
		require.NoError(t, err)
	}

	n, err := d.Remove("Item", map[string]any{"id": "${id}"}, db.Params{Limit: 3})
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	items, _, err := d.Find("Item", nil, db.Params{})
	require.NoError(t, err)
	assert.Len(t, items, 2)
}

func TestSetField_FindsOrUpsertsAndSetsOneField(t *testing.T) {
	d := openTestDB(t, db.Config{})

	_, err := d.Create("User", map[string]any{"id": "u4", "username": "finn", "email": "f@x.com", "role": "user"}, db.Params{})
	require.NoError(t, err)

	updated, err := d.SetField("User", "role", "admin", map[string]any{"id": "u4"}, db.Params{})
	require.NoError(t, err)
	assert.Equal(t, "admin", updated["role"])
	assert.Equal(t, "finn", updated["username"])
}

func TestGetField_ReturnsStringFormOfField(t *testing.T) {
	d := openTestDB(t, db.Config{})

	_, err := d.Create("User", map[string]any{"id": "u5", "username": "gabi", "email": "g@x.com"}, db.Params{})
	require.NoError(t, err)

	v, ok, err := d.GetField("User", "username", map[string]any{"id": "u5"}, db.Params{})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "gabi", v)
}

func itemID(i int) string {
	digits := "0123456789"
	s := make([]byte, 4)
	for pos := 3; pos >= 0; pos-- {
		s[pos] = digits[i%10]
		i /= 10
	}
	return string(s)
}
