package db

import "time"

// Scheduler is the two primitives spec.md §1 says the DB core borrows from
// the out-of-scope fiber runtime: schedule a callback after a delay, and
// cancel it. Expressing delayed commits behind this interface instead of
// calling time.AfterFunc directly keeps the db package honest about its
// only real external dependency on a runtime it doesn't own.
//
// This is the one seam in this package with no corpus grounding: fiber and
// event-loop code is explicitly out of scope (spec.md §1) and no example
// repo in the retrieval pack ships a pluggable timer abstraction to adopt
// instead — see DESIGN.md.
type Scheduler interface {
	// After arranges for fn to run, on its own goroutine, no earlier than
	// d from now. The returned cancel func stops a pending firing; calling
	// it after fn has already run is a no-op.
	After(d time.Duration, fn func()) (cancel func())
}

// stdScheduler is the default [Scheduler], backed by [time.AfterFunc].
type stdScheduler struct{}

func newStdScheduler() Scheduler {
	return stdScheduler{}
}

func (stdScheduler) After(d time.Duration, fn func()) func() {
	t := time.AfterFunc(d, fn)

	return func() { t.Stop() }
}

// pendingChange is an un-persisted mutation waiting for its delayed-commit
// timer to fire, per spec.md §4.8.
type pendingChange struct {
	key   string
	rec   journalRecord
	model string
	due   time.Time
}

// delayTable is the DB's change table: pending changes keyed by item key,
// coalesced by a single re-armable timer.
type delayTable struct {
	pending   map[string]*pendingChange
	cancel    func()
	scheduler Scheduler
}

func newDelayTable(s Scheduler) *delayTable {
	return &delayTable{pending: make(map[string]*pendingChange), scheduler: s}
}

// add records a delayed mutation for key, due in d. If a pending change
// already exists for key, the earliest due-time wins (spec.md §4.8:
// "storing the earliest due-time") but the record content is replaced with
// the newest mutation, since that's the one that should actually commit.
func (dt *delayTable) add(key, model string, rec journalRecord, d time.Duration, now time.Time, onFire func()) {
	due := now.Add(d)

	if existing, ok := dt.pending[key]; ok {
		if existing.due.Before(due) {
			due = existing.due
		}
	}

	dt.pending[key] = &pendingChange{key: key, rec: rec, model: model, due: due}
	dt.rearm(now, onFire)
}

// rearm cancels any outstanding timer and schedules a new one for the
// soonest pending due-time, if any. Idempotent, per spec.md §5.
func (dt *delayTable) rearm(now time.Time, onFire func()) {
	if dt.cancel != nil {
		dt.cancel()
		dt.cancel = nil
	}

	soonest, ok := dt.nextDue()
	if !ok {
		return
	}

	d := soonest.Sub(now)
	if d < 0 {
		d = 0
	}

	dt.cancel = dt.scheduler.After(d, onFire)
}

func (dt *delayTable) nextDue() (time.Time, bool) {
	var soonest time.Time
	found := false

	for _, pc := range dt.pending {
		if !found || pc.due.Before(soonest) {
			soonest = pc.due
			found = true
		}
	}

	return soonest, found
}

// due returns every pending change with due <= now, for the caller to
// commit.
func (dt *delayTable) due(now time.Time) []*pendingChange {
	var out []*pendingChange

	for _, pc := range dt.pending {
		if !pc.due.After(now) {
			out = append(out, pc)
		}
	}

	return out
}

func (dt *delayTable) remove(key string) {
	delete(dt.pending, key)
}

func (dt *delayTable) stop() {
	if dt.cancel != nil {
		dt.cancel()
		dt.cancel = nil
	}
}

func (dt *delayTable) len() int {
	return len(dt.pending)
}
