package db

import "time"

// WherePredicate is the optional filter predicate named in spec.md §6's
// Params structure: invoked with the candidate item's fields, its key, and
// the opaque Arg, and must return true for the item to survive.
type WherePredicate func(item map[string]any, key string, arg any) bool

// Params mirrors the "Params structure" from spec.md §6.
type Params struct {
	Index  string // only "primary" is meaningful; present for API symmetry
	Limit  int    // 0 means "default" (1 for remove, unlimited for find); negative = unlimited
	Next   string // pagination cursor: resume strictly after this key
	Delay  int    // -2 = in-mem, -1 = no-delay, >0 = per-call delay (seconds), 0 = model's setting
	Mem    bool   // alias for Delay == -2
	Upsert bool
	Bypass bool // internal: suppresses re-journaling during recovery
	Log    bool
	Where  WherePredicate
	Arg    any
}

// persistenceKind is the resolved form of spec.md §9's suggested
// Persistence{InMem, Immediate, Deferred(ms)} enum, collapsing the
// redundant delay=-2/params.mem code paths the source had.
type persistenceKind int

const (
	persistImmediate persistenceKind = iota
	persistInMemory
	persistDeferred
)

// resolvePersistence implements spec.md §4.8's delay resolution order:
// per-call mem/delay=-2 wins, then per-call delay=-1 (immediate), then a
// positive per-call delay, then the model's configured mem/delay, then
// immediate.
func resolvePersistence(p Params, model *Model) (persistenceKind, time.Duration) {
	if p.Mem || p.Delay == -2 {
		return persistInMemory, 0
	}

	if p.Delay == -1 {
		return persistImmediate, 0
	}

	if p.Delay > 0 {
		return persistDeferred, time.Duration(p.Delay) * time.Second
	}

	if model.Mem {
		return persistInMemory, 0
	}

	if model.Delay > 0 {
		return persistDeferred, time.Duration(model.Delay) * time.Second
	}

	return persistImmediate, 0
}
