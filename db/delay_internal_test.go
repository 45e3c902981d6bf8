package db

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeScheduler records the last requested delay instead of actually
// scheduling anything, so delayTable's coalescing/rearm logic can be
// tested without real timers.
type fakeScheduler struct {
	lastDelay time.Duration
	armed     int
}

func (f *fakeScheduler) After(d time.Duration, fn func()) func() {
	f.lastDelay = d
	f.armed++
	return func() {}
}

func TestDelayTable_Add_KeepsEarliestDueTimeOnCoalesce(t *testing.T) {
	sched := &fakeScheduler{}
	dt := newDelayTable(sched)

	now := time.Now()

	dt.add("k1", "Item", journalRecord{Cmd: "create"}, 10*time.Second, now, func() {})
	dt.add("k1", "Item", journalRecord{Cmd: "update"}, 2*time.Second, now, func() {})

	due, ok := dt.nextDue()
	require.True(t, ok)
	assert.WithinDuration(t, now.Add(2*time.Second), due, time.Millisecond)

	// The replaced record content is the newest mutation, per spec.md §4.8.
	pending := dt.pending["k1"]
	require.NotNil(t, pending)
	assert.Equal(t, "update", pending.rec.Cmd)
}

func TestDelayTable_Due_ReturnsOnlyChangesAtOrBeforeNow(t *testing.T) {
	sched := &fakeScheduler{}
	dt := newDelayTable(sched)

	now := time.Now()
	dt.add("past", "Item", journalRecord{}, -time.Second, now, func() {})
	dt.add("future", "Item", journalRecord{}, time.Hour, now, func() {})

	due := dt.due(now)
	require.Len(t, due, 1)
	assert.Equal(t, "past", due[0].key)
}

func TestDelayTable_Remove_DropsPendingChange(t *testing.T) {
	sched := &fakeScheduler{}
	dt := newDelayTable(sched)

	dt.add("k1", "Item", journalRecord{}, time.Second, time.Now(), func() {})
	require.Equal(t, 1, dt.len())

	dt.remove("k1")
	assert.Equal(t, 0, dt.len())
}

func TestDelayTable_Stop_CancelsOutstandingTimer(t *testing.T) {
	sched := &fakeScheduler{}
	dt := newDelayTable(sched)

	dt.add("k1", "Item", journalRecord{}, time.Second, time.Now(), func() {})
	require.Equal(t, 1, sched.armed)

	dt.stop()
	assert.Nil(t, dt.cancel)
}
