package db

import "reflect"

// Event is a bit flag identifying why a callback fired, per spec.md §4.9.
type Event int

const (
	// EventChange fires synchronously within the mutating call, before it
	// returns.
	EventChange Event = 1 << iota
	// EventCommit fires when the change becomes durable: synchronously for
	// an immediate (delay=0) mutation, or from the delayed-commit timer.
	EventCommit
	// EventFree is reserved for future use, per spec.md §4.9; nothing in
	// this package emits it yet.
	EventFree
)

// CallbackArgs is the payload handed to every registered callback.
type CallbackArgs struct {
	DB     *DB
	Model  string
	Item   map[string]any // the item's current fields, read-only by convention
	Cmd    string         // "create" | "update" | "upsert" | "remove"
	Events Event          // the actual event(s) this invocation represents
	Arg    any            // the opaque value passed to AddCallback
}

// CallbackFunc is a registered change/commit trigger.
type CallbackFunc func(CallbackArgs)

// callbackEntry is one registered trigger, per spec.md §4.9's
// {proc, arg, model-name?, events}.
type callbackEntry struct {
	proc   CallbackFunc
	arg    any
	model  string // "" means "all models"
	events Event
}

// callbackRegistry is a flat, unordered list: add/remove/dispatch are all
// O(n), matching spec.md §4.9 exactly (no secondary index over callbacks
// is warranted for the handful registered by an embedding agent).
type callbackRegistry struct {
	entries []*callbackEntry
}

func (r *callbackRegistry) add(proc CallbackFunc, model string, arg any, events Event) {
	r.entries = append(r.entries, &callbackEntry{proc: proc, arg: arg, model: model, events: events})
}

// remove drops every entry matching proc (by function pointer identity),
// model, and arg — mirroring the C source's pointer-equality semantics for
// {proc, arg} pairs, since Go closures aren't otherwise comparable.
func (r *callbackRegistry) remove(proc CallbackFunc, model string, arg any) {
	target := reflect.ValueOf(proc).Pointer()

	kept := r.entries[:0]
	for _, e := range r.entries {
		if reflect.ValueOf(e.proc).Pointer() == target && e.model == model && e.arg == arg {
			continue
		}

		kept = append(kept, e)
	}

	r.entries = kept
}

// dispatch invokes every entry whose model matches (or is unset) and whose
// events intersect actual.
func (r *callbackRegistry) dispatch(dbHandle *DB, model string, item map[string]any, cmd string, actual Event) {
	for _, e := range r.entries {
		if e.model != "" && e.model != model {
			continue
		}

		if e.events&actual == 0 {
			continue
		}

		e.proc(CallbackArgs{DB: dbHandle, Model: model, Item: item, Cmd: cmd, Events: actual & e.events, Arg: e.arg})
	}
}
