// Package db implements the embedded, schema-validated JSON document store
// described by this repository's device agent: an ordered primary index,
// write-ahead journaling with crash recovery, TTL expiry, delayed/batched
// commits, change-trigger callbacks, and pagination — all addressed
// through a single *DB handle, single-threaded, single-process, per the
// concurrency model this package assumes (see Open).
package db

import (
	"fmt"
	"time"

	dbfs "github.com/edgeiot/devicedb/pkg/fs"
)

// DB is an open document store. The zero value is not usable; construct
// one with [Open].
//
// A *DB must not be used from more than one goroutine without external
// synchronization: this package assumes a single-threaded cooperative
// caller, the same model the device agent's fiber runtime provides, and
// performs none of its own locking.
type DB struct {
	schema *Schema
	cfg    Config
	flags  OpenFlags

	path        string // snapshot file path
	journalPath string

	index     *primaryIndex
	callbacks callbackRegistry
	delay     *delayTable
	context   map[string]any

	fsys dbfs.FS

	journal         dbfs.File
	journalSize     int64
	journalOpenedAt time.Time
	journalErrored  bool

	lastErr error
	closed  bool
}

// Open loads schemaPath, then opens (or creates) the document store at
// path, replaying its snapshot and journal per spec.md §4.7.
func Open(path, schemaPath string, cfg Config, flags OpenFlags) (*DB, error) {
	schema, err := LoadSchema(schemaPath)
	if err != nil {
		return nil, err
	}

	cfg.fillDefaults()
	if !cfg.Timestamps {
		cfg.Timestamps = schema.Params.Timestamps
	}
	if cfg.TypeField == "_type" && schema.Params.TypeField != "" {
		cfg.TypeField = schema.Params.TypeField
	}

	d := &DB{
		schema:      schema,
		cfg:         cfg,
		flags:       flags,
		path:        path,
		journalPath: path + ".jnl",
		index:       newPrimaryIndex(),
		delay:       newDelayTable(cfg.Scheduler),
		context:     make(map[string]any),
		fsys:        cfg.FS,
	}

	if flags.Reset {
		_ = d.fsys.Remove(path)
		_ = d.fsys.Remove(d.journalPath)
	}

	if err := d.recover(); err != nil {
		return nil, err
	}

	return d, nil
}

// Close stops the delayed-commit timer and, if the journal is non-empty,
// writes a final snapshot, per spec.md §5.
func (d *DB) Close() error {
	if d.closed {
		return nil
	}

	d.delay.stop()

	if !d.flags.ReadOnly && d.journalSize > 0 {
		if err := d.snapshotAndTruncate(); err != nil {
			d.lastErr = err
			d.closed = true
			return err
		}
	}

	if d.journal != nil {
		_ = d.journal.Close()
	}

	d.closed = true

	return nil
}

// getError returns the last error recorded on the DB handle, per spec.md
// §7's "also stored on the DB handle" propagation policy.
func (d *DB) getError() error {
	return d.lastErr
}

func (d *DB) setErr(err error) error {
	if err != nil {
		d.lastErr = err
	}

	return err
}

// Create inserts a new item, per spec.md §6's create operation.
func (d *DB) Create(model string, props map[string]any, params Params) (map[string]any, error) {
	if d.flags.ReadOnly {
		return nil, d.setErr(wrap(KindBadState, fmt.Errorf("create: db is read-only")))
	}

	p, err := d.setup("create", model, props, params)
	if err != nil {
		return nil, d.setErr(err)
	}

	out, err := d.doCreate(p)
	return out, d.setErr(err)
}

// Get returns a single item, or nil if none matches.
func (d *DB) Get(model string, props map[string]any, params Params) (map[string]any, error) {
	p, err := d.setup("get", model, props, params)
	if err != nil {
		return nil, d.setErr(err)
	}

	out, err := d.doGet(p)
	return out, d.setErr(err)
}

// GetField returns a single field of a matching item's JSON, rendered as a
// string, or "" with ok=false if no item matches or the field is absent.
func (d *DB) GetField(model, field string, props map[string]any, params Params) (string, bool, error) {
	item, err := d.Get(model, props, params)
	if err != nil {
		return "", false, err
	}

	if item == nil {
		return "", false, nil
	}

	v, ok := item[field]
	if !ok {
		return "", false, nil
	}

	return scalarString(v), true, nil
}

// Find returns every matching item, honoring params.Limit and params.Next
// pagination, per spec.md §4.4. The returned cursor is "" when the caller
// has reached the end of the result set.
func (d *DB) Find(model string, props map[string]any, params Params) (items []map[string]any, cursor string, err error) {
	p, setupErr := d.setup("find", model, props, params)
	if setupErr != nil {
		return nil, "", d.setErr(setupErr)
	}

	items, cursor, err = d.doFind(p)
	return items, cursor, d.setErr(err)
}

// FindOne returns the first matching item, or nil.
func (d *DB) FindOne(model string, props map[string]any, params Params) (map[string]any, error) {
	params.Limit = 1

	p, err := d.setup("findOne", model, props, params)
	if err != nil {
		return nil, d.setErr(err)
	}

	items, _, err := d.doFind(p)
	if err != nil {
		return nil, d.setErr(err)
	}

	if len(items) == 0 {
		return nil, nil
	}

	return items[0], nil
}

// Update mutates an existing item, per spec.md §6's update operation.
func (d *DB) Update(model string, props map[string]any, params Params) (map[string]any, error) {
	if d.flags.ReadOnly {
		return nil, d.setErr(wrap(KindBadState, fmt.Errorf("update: db is read-only")))
	}

	p, err := d.setup("update", model, props, params)
	if err != nil {
		return nil, d.setErr(err)
	}

	out, err := d.doUpdate(p)
	return out, d.setErr(err)
}

// SetField finds-or-upserts an item and sets a single field on it, per
// spec.md §4.3's typed setField operation.
func (d *DB) SetField(model, field string, value any, props map[string]any, params Params) (map[string]any, error) {
	if d.flags.ReadOnly {
		return nil, d.setErr(wrap(KindBadState, fmt.Errorf("setField: db is read-only")))
	}

	merged := cloneJSONMap(props)
	if merged == nil {
		merged = map[string]any{}
	}
	merged[field] = value

	params.Upsert = false

	p, err := d.setup("update", model, merged, params)
	if err != nil {
		return nil, d.setErr(err)
	}

	if _, found := d.index.get(p.searchKey); !found {
		params.Upsert = true

		if p, err = d.setup("update", model, merged, params); err != nil {
			return nil, d.setErr(err)
		}
	}

	out, err := d.doUpdate(p)
	return out, d.setErr(err)
}

// Remove deletes up to params.Limit (default 1; negative for no limit)
// matching items, returning the count removed.
func (d *DB) Remove(model string, props map[string]any, params Params) (int, error) {
	if d.flags.ReadOnly {
		return 0, d.setErr(wrap(KindBadState, fmt.Errorf("remove: db is read-only")))
	}

	p, err := d.setup("remove", model, props, params)
	if err != nil {
		return 0, d.setErr(err)
	}

	n, err := d.doRemove(p)
	return n, d.setErr(err)
}

// Save forces an immediate snapshot + journal truncate, ignoring the usual
// rollover thresholds.
func (d *DB) Save() error {
	if d.flags.ReadOnly {
		return d.setErr(wrap(KindBadState, fmt.Errorf("save: db is read-only")))
	}

	return d.setErr(d.snapshotAndTruncate())
}

// Compact forces every item to its cold (serialized-only) form, dropping
// any promoted parsed tree, per spec.md §6.
func (d *DB) Compact() {
	d.index.scan(0, func(it *item) bool {
		_ = it.sync()
		it.parsed = nil
		return true
	})
}

// AddCallback registers a trigger, per spec.md §4.9.
func (d *DB) AddCallback(proc CallbackFunc, model string, arg any, events Event) {
	d.callbacks.add(proc, model, arg, events)
}

// RemoveCallback deregisters a trigger previously added with matching
// proc/model/arg.
func (d *DB) RemoveCallback(proc CallbackFunc, model string, arg any) {
	d.callbacks.remove(proc, model, arg)
}

// AddContext registers a DB-wide context property merged into every
// mutation's properties at the top level, per the GLOSSARY.
func (d *DB) AddContext(name string, value any) {
	d.context[name] = value
}
