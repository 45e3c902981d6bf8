package db

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMatchProperties_IgnoresSortField(t *testing.T) {
	candidate := map[string]any{"id": "a", "role": "admin"}
	query := map[string]any{"id": "different", "role": "admin"}

	assert.True(t, matchProperties(candidate, query, "id"))
}

func TestMatchProperties_RequiresByteEqualStringRepresentation(t *testing.T) {
	candidate := map[string]any{"n": float64(1)}

	assert.True(t, matchProperties(candidate, map[string]any{"n": float64(1)}, "id"))
	assert.False(t, matchProperties(candidate, map[string]any{"n": float64(2)}, "id"))
}

func TestMatchProperties_MissingPropertyFails(t *testing.T) {
	candidate := map[string]any{"id": "a"}
	assert.False(t, matchProperties(candidate, map[string]any{"role": "admin"}, "id"))
}

func TestDeepByteEqual_RecursesIntoObjectsAndArrays(t *testing.T) {
	want := map[string]any{"a": []any{float64(1), float64(2)}}
	got := map[string]any{"a": []any{float64(1), float64(2)}}

	assert.True(t, deepByteEqual(got, want))

	got["a"] = []any{float64(1), float64(3)}
	assert.False(t, deepByteEqual(got, want))
}

func TestDeepByteEqual_ArrayLengthMismatchFails(t *testing.T) {
	want := []any{float64(1), float64(2)}
	got := []any{float64(1)}
	assert.False(t, deepByteEqual(got, want))
}

func TestScalarString_StringifiesScalars(t *testing.T) {
	assert.Equal(t, "", scalarString(nil))
	assert.Equal(t, "x", scalarString("x"))
	assert.Equal(t, "7", scalarString(float64(7)))
	assert.Equal(t, "true", scalarString(true))
}
