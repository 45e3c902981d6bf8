package db_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edgeiot/devicedb/db"
)

func TestAddCallback_FiresChangeAndCommitOnImmediateMutation(t *testing.T) {
	d := openTestDB(t, db.Config{})

	var events []db.Event
	d.AddCallback(func(args db.CallbackArgs) {
		events = append(events, args.Events)
	}, "Item", nil, db.EventChange|db.EventCommit)

	_, err := d.Create("Item", map[string]any{"id": "cb1"}, db.Params{})
	require.NoError(t, err)

	require.Len(t, events, 1)
	assert.Equal(t, db.EventChange|db.EventCommit, events[0])
}

func TestAddCallback_ModelFilterOnlyFiresForMatchingModel(t *testing.T) {
	d := openTestDB(t, db.Config{})

	var fired int
	d.AddCallback(func(args db.CallbackArgs) {
		fired++
	}, "User", nil, db.EventChange|db.EventCommit)

	_, err := d.Create("Item", map[string]any{"id": "x1"}, db.Params{})
	require.NoError(t, err)

	assert.Equal(t, 0, fired)
}

func TestAddCallback_NilModelFiresForEveryModel(t *testing.T) {
	d := openTestDB(t, db.Config{})

	var models []string
	d.AddCallback(func(args db.CallbackArgs) {
		models = append(models, args.Model)
	}, "", nil, db.EventChange|db.EventCommit)

	_, err := d.Create("Item", map[string]any{"id": "i1"}, db.Params{})
	require.NoError(t, err)
	_, err = d.Create("User", map[string]any{"id": "u1", "username": "a", "email": "a@b"}, db.Params{})
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"Item", "User"}, models)
}

func TestRemoveCallback_StopsFutureDispatch(t *testing.T) {
	d := openTestDB(t, db.Config{})

	var fired int
	cb := func(args db.CallbackArgs) { fired++ }

	d.AddCallback(cb, "Item", nil, db.EventChange|db.EventCommit)
	d.RemoveCallback(cb, "Item", nil)

	_, err := d.Create("Item", map[string]any{"id": "rc1"}, db.Params{})
	require.NoError(t, err)

	assert.Equal(t, 0, fired)
}

func TestDelayedCommit_FiresOnlyChangeSynchronously(t *testing.T) {
	d := openTestDB(t, db.Config{})

	events := make(chan db.Event, 4)
	d.AddCallback(func(args db.CallbackArgs) {
		events <- args.Events
	}, "Item", nil, db.EventChange|db.EventCommit)

	_, err := d.Create("Item", map[string]any{"id": "delayed1"}, db.Params{Delay: 1})
	require.NoError(t, err)

	select {
	case ev := <-events:
		assert.Equal(t, db.EventChange, ev)
	default:
		t.Fatal("expected synchronous change event")
	}
}

func TestAddContext_MergesIntoEveryMutation(t *testing.T) {
	d := openTestDB(t, db.Config{})

	d.AddContext("role", "super")

	created, err := d.Create("User", map[string]any{"id": "ctx1", "username": "z", "email": "z@x.com", "role": "user"}, db.Params{})
	require.NoError(t, err)

	assert.Equal(t, "super", created["role"])
}
