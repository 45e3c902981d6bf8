package db

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// prepared is the shared state setup() produces for create/update/upsert/
// remove/get/find/findOne, per spec.md §4.3.
type prepared struct {
	cmd       string
	model     *Model
	props     map[string]any // final, selected properties
	searchKey string
	prefix    bool
	mustMatch bool
	params    Params
}

// setup implements the twelve-step shared preparation from spec.md §4.3.
func (d *DB) setup(cmd, modelName string, props map[string]any, params Params) (*prepared, error) {
	// Step 1: clone caller-provided properties.
	work := map[string]any{}
	if props != nil {
		work = cloneJSONMap(props)
	}

	// Step 2: resolve model name from the type field if not given.
	if modelName == "" {
		if v, ok := work[d.cfg.TypeField]; ok {
			if s, ok := v.(string); ok {
				modelName = s
			}
		}
	}

	if modelName == "" {
		return nil, wrap(KindBadArgs, fmt.Errorf("%s: model name required", cmd))
	}

	// Step 3: resolve model + its sort field.
	model, err := d.schema.ModelFor(modelName)
	if err != nil {
		return nil, err
	}

	sortField := model.Sort
	hashField := d.schema.Primary.Hash

	// Step 4: reject/ignore fields not in the model; enforce enums.
	for k, v := range work {
		if hashField != "" && k == hashField {
			delete(work, k)
			continue
		}

		field, ok := model.Fields[k]
		if !ok {
			d.cfg.logf("devicedb: model %q: dropping unknown property %q", modelName, k)
			delete(work, k)
			continue
		}

		if len(field.Enum) > 0 && !enumContains(field.Enum, scalarString(v)) {
			return nil, wrap(KindBadArgs,
				fmt.Errorf("field %q: value %v not in enum", k, v), withModel(modelName))
		}
	}

	// Step 5: blend in process-wide context properties, overriding
	// request-supplied top-level values.
	for k, v := range d.context {
		work[k] = cloneJSONValue(v)
	}

	isCreate := cmd == "create" || cmd == "upsert" || (cmd == "update" && params.Upsert)

	// Step 6: defaults/generate for missing fields on create-ish ops.
	if isCreate {
		for name, field := range model.Fields {
			if _, present := work[name]; present {
				continue
			}

			if field.Default != "" {
				work[name] = field.Default
				continue
			}

			if field.Generate != "" {
				gen, ok := parseGenerate(field.Generate)
				if !ok {
					return nil, wrap(KindBadArgs,
						fmt.Errorf("field %q: invalid generate spec %q", name, field.Generate), withModel(modelName))
				}

				val, err := gen()
				if err != nil {
					return nil, wrap(KindMemory, err)
				}

				work[name] = val
			}
		}
	}

	// Step 7: timestamps.
	if d.cfg.Timestamps {
		now := isoNow()

		if isCreate {
			if _, ok := model.Fields["created"]; ok {
				work["created"] = now
			}
		}

		if _, ok := model.Fields["updated"]; ok && (isCreate || cmd == "update") {
			work["updated"] = now
		}
	}

	// Step 8: value templates.
	for name, field := range model.Fields {
		if field.Value == "" {
			continue
		}

		work[name] = renderTemplate(field.Value, work)
	}

	// Step 9: type mapping and validation.
	for name, field := range model.Fields {
		v, present := work[name]
		if !present {
			continue
		}

		coerced, err := coerceType(field.Type, v)
		if err != nil {
			return nil, wrap(KindBadArgs, fmt.Errorf("field %q: %w", name, err), withModel(modelName))
		}

		work[name] = coerced
	}

	// Step 10: select properties (drop anything not in the model); on
	// create/upsert also write the type field.
	final := make(map[string]any, len(model.Fields)+1)
	for name := range model.Fields {
		if v, ok := work[name]; ok {
			final[name] = v
		}
	}

	if isCreate {
		final[d.cfg.TypeField] = modelName
	} else if v, ok := work[d.cfg.TypeField]; ok {
		final[d.cfg.TypeField] = v
	}

	// Step 11: compute the search key.
	rawKey := ""
	if v, ok := final[sortField]; ok {
		rawKey = scalarString(v)
	}

	prefixMode := false

	if hasUnresolvedTemplate(rawKey) {
		switch {
		case cmd == "find" || cmd == "findOne" || cmd == "get":
			prefixMode = true
			rawKey = truncateAtTemplate(rawKey)
		case cmd == "remove" && params.Limit > 0:
			prefixMode = true
			rawKey = truncateAtTemplate(rawKey)
		default:
			return nil, wrap(KindBadArgs, fmt.Errorf("incomplete sort key %q", rawKey), withModel(modelName))
		}
	}

	if rawKey == "" && (cmd == "find" || cmd == "findOne" || cmd == "get") {
		prefixMode = true
	}

	if len(rawKey) > maxKeyBytes {
		return nil, wrap(KindWontFit, fmt.Errorf("key exceeds %d bytes", maxKeyBytes), withModel(modelName))
	}

	// Step 12: must-match flag (not currently branched on separately since
	// this package always evaluates TTL/predicate per candidate; recorded
	// for parity with spec.md's description of the pipeline).
	mustMatch := model.TTLField != "" || params.Where != nil

	return &prepared{
		cmd:       cmd,
		model:     model,
		props:     final,
		searchKey: rawKey,
		prefix:    prefixMode,
		mustMatch: mustMatch,
		params:    params,
	}, nil
}

func enumContains(enum []string, v string) bool {
	for _, e := range enum {
		if e == v {
			return true
		}
	}

	return false
}

func coerceType(t FieldType, v any) (any, error) {
	switch t {
	case TypeDate:
		return coerceDate(v)
	case TypeBoolean:
		return coerceBool(v)
	case TypeNumber:
		return coerceNumber(v)
	case TypeString:
		return scalarString(v), nil
	default:
		return v, nil
	}
}

func coerceDate(v any) (string, error) {
	switch t := v.(type) {
	case string:
		if !strings.HasSuffix(t, "Z") {
			return "", fmt.Errorf("date string must end in Z, got %q", t)
		}

		return t, nil
	case float64:
		return epochToISO(t), nil
	case int:
		return epochToISO(float64(t)), nil
	case int64:
		return epochToISO(float64(t)), nil
	default:
		return "", fmt.Errorf("unsupported date value %v", v)
	}
}

// epochToISO converts a numeric epoch (seconds, or milliseconds if large
// enough to plausibly be ms) to an ISO-8601 UTC instant.
func epochToISO(n float64) string {
	var t time.Time

	switch {
	case n > 1e12:
		t = time.UnixMilli(int64(n))
	case n > 1e10:
		t = time.UnixMilli(int64(n))
	default:
		secs := int64(n)
		frac := n - float64(secs)
		t = time.Unix(secs, int64(frac*1e9))
	}

	return isoFromTime(t)
}

func coerceBool(v any) (bool, error) {
	switch t := v.(type) {
	case bool:
		return t, nil
	case float64:
		switch t {
		case 1:
			return true, nil
		case 0:
			return false, nil
		}
	case string:
		switch t {
		case "true", "1":
			return true, nil
		case "false", "0":
			return false, nil
		}
	}

	return false, fmt.Errorf("invalid boolean value %v", v)
}

func coerceNumber(v any) (float64, error) {
	switch t := v.(type) {
	case float64:
		return t, nil
	case int:
		return float64(t), nil
	case string:
		n, err := strconv.ParseFloat(t, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid number value %q", t)
		}

		return n, nil
	default:
		return 0, fmt.Errorf("invalid number value %v", v)
	}
}

func checkRequired(model *Model, props map[string]any) error {
	for name, f := range model.Fields {
		if !f.Required {
			continue
		}

		if _, ok := props[name]; !ok {
			return wrap(KindBadArgs, fmt.Errorf("missing required field %q", name), withModel(model.Name))
		}
	}

	return nil
}

// commitMutation resolves the persistence kind for this call and routes
// the change to the journal (immediate), the delay table (deferred), or
// nowhere durable at all (in-memory), firing callbacks per spec.md §4.8.
// A Bypass call (recovery replay) applies purely in-memory: no journal
// write, no scheduling, no callbacks.
func (d *DB) commitMutation(p *prepared, cmd, key string, valueJSON []byte, fields map[string]any) {
	if p.params.Bypass {
		return
	}

	kind, dur := resolvePersistence(p.params, p.model)

	switch kind {
	case persistInMemory:
		d.callbacks.dispatch(d, p.model.Name, fields, cmd, EventChange|EventCommit)
	case persistDeferred:
		if it, ok := d.index.get(key); ok {
			it.delayed = true
		}

		d.delay.add(key, p.model.Name, journalRecord{Cmd: cmd, Model: p.model.Name, Value: valueJSON}, dur, time.Now(), d.fireDelayed)
		d.callbacks.dispatch(d, p.model.Name, fields, cmd, EventChange)
	default: // persistImmediate
		d.journalMutation(cmd, p.model.Name, key, valueJSON, p.params)
		d.callbacks.dispatch(d, p.model.Name, fields, cmd, EventChange|EventCommit)
	}
}

// doCreate implements spec.md §4.3's create operation.
func (d *DB) doCreate(p *prepared) (map[string]any, error) {
	key := p.searchKey
	if key == "" {
		return nil, wrap(KindBadArgs, fmt.Errorf("create: missing sort key"), withModel(p.model.Name))
	}

	_, exists := d.index.get(key)
	if exists && !p.params.Upsert {
		return nil, wrap(KindExists, fmt.Errorf("already exists"), withModel(p.model.Name), withKey(key))
	}

	if !exists {
		if err := checkRequired(p.model, p.props); err != nil {
			return nil, err
		}
	}

	raw, err := json.Marshal(p.props)
	if err != nil {
		return nil, wrap(KindMemory, err)
	}

	if len(raw) > maxItemBytes {
		return nil, wrap(KindWontFit, fmt.Errorf("item exceeds %d bytes", maxItemBytes), withModel(p.model.Name), withKey(key))
	}

	d.index.insert(&item{key: key, model: p.model.Name, raw: raw, parsed: p.props})

	cmd := "create"
	if exists || p.params.Upsert {
		cmd = "upsert"
	}

	d.commitMutation(p, cmd, key, raw, p.props)

	return cloneJSONMap(p.props), nil
}

// doUpdate implements spec.md §4.3's update operation (and upsert, which is
// expressed as create/update-with-upsert and journaled as "upsert").
func (d *DB) doUpdate(p *prepared) (map[string]any, error) {
	key := p.searchKey
	if key == "" {
		return nil, wrap(KindBadArgs, fmt.Errorf("update: missing sort key"), withModel(p.model.Name))
	}

	existing, found := d.index.get(key)

	if !found {
		if !p.params.Upsert {
			return nil, wrap(KindNotFound, fmt.Errorf("not found"), withModel(p.model.Name), withKey(key))
		}

		return d.doCreate(p)
	}

	var finalProps map[string]any

	cmd := "update"

	if p.params.Upsert {
		finalProps = p.props
		cmd = "upsert"
	} else {
		existingFields, err := existing.fields()
		if err != nil {
			return nil, wrap(KindBadFormat, err)
		}

		finalProps = cloneJSONMap(existingFields)
		for k, v := range p.props {
			finalProps[k] = v
		}
	}

	raw, err := json.Marshal(finalProps)
	if err != nil {
		return nil, wrap(KindMemory, err)
	}

	if len(raw) > maxItemBytes {
		return nil, wrap(KindWontFit, fmt.Errorf("item exceeds %d bytes", maxItemBytes), withModel(p.model.Name), withKey(key))
	}

	existing.raw = raw
	existing.parsed = finalProps

	d.commitMutation(p, cmd, key, raw, finalProps)

	return cloneJSONMap(finalProps), nil
}

// findItems is the scan entry point shared by get (prefix form), find, and
// findOne: it resolves the scan's start position from params.Next or the
// prepared search key, then delegates to scanMatching.
func (d *DB) findItems(p *prepared, limit int) ([]map[string]any, string, error) {
	startIdx := 0
	prefix := p.searchKey

	switch {
	case p.params.Next != "":
		idx := d.index.indexOf(p.params.Next)
		if idx < 0 {
			idx = d.index.startAt(p.params.Next) - 1
		}

		startIdx = idx + 1
	case prefix != "":
		startIdx = d.index.startAt(prefix)
	}

	results, cursor, _ := d.scanMatching(
		startIdx, prefix, p.prefix, p.model.Name, p.model,
		p.props, p.params.Where, p.params.Arg, limit, p.model.Sort,
	)

	items := make([]map[string]any, len(results))
	for i, r := range results {
		items[i] = r.fields
	}

	return items, cursor, nil
}

// doGet implements spec.md §4.3's get operation: a find capped to one
// result.
func (d *DB) doGet(p *prepared) (map[string]any, error) {
	items, _, err := d.findItems(p, 1)
	if err != nil {
		return nil, err
	}

	if len(items) == 0 {
		return nil, nil
	}

	return items[0], nil
}

// doFind implements spec.md §4.3/§4.4's find operation with pagination.
func (d *DB) doFind(p *prepared) ([]map[string]any, string, error) {
	return d.findItems(p, p.params.Limit)
}

// doRemove implements spec.md §4.3's remove operation: find matching items
// up to limit (default 1; a negative limit removes every match), delete
// them, and journal "remove" for each.
func (d *DB) doRemove(p *prepared) (int, error) {
	limit := p.params.Limit
	if limit == 0 {
		limit = 1
	}

	items, _, err := d.findItems(p, limit)
	if err != nil {
		return 0, err
	}

	count := 0

	for _, fields := range items {
		key := scalarString(fields[p.model.Sort])

		d.index.remove(key)

		valueJSON, _ := json.Marshal(map[string]any{p.model.Sort: key})
		d.commitMutation(p, "remove", key, valueJSON, fields)

		count++
	}

	return count, nil
}
