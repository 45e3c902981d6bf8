package db

import (
	"encoding/json"
	"time"
)

// isoLayout is the millisecond-precision ISO-8601 UTC layout this package
// writes for timestamps and TTL values. Lexicographic string comparison of
// two such strings agrees with chronological order, which is what makes
// the TTL check below a plain string compare (spec.md §9).
const isoLayout = "2006-01-02T15:04:05.000Z"

func isoNow() string {
	return time.Now().UTC().Format(isoLayout)
}

func isoFromTime(t time.Time) string {
	return t.UTC().Format(isoLayout)
}

// isExpired reports whether an ISO-8601 TTL value is <= now, by
// lexicographic comparison.
func isExpired(ttlValue, now string) bool {
	return ttlValue <= now
}

// RemoveExpired sweeps every model with a TTL field, per spec.md §4.10: for
// each, it prefix-scans the whole index (there's no secondary index to
// narrow by model, so the scan checks the type field per candidate) and
// removes items whose TTL field is <= now. When notify is true, remove
// callbacks fire for each removed item.
func (d *DB) RemoveExpired(notify bool) int {
	now := isoNow()
	removed := 0

	for _, model := range d.schema.Models {
		if model.TTLField == "" {
			continue
		}

		var toRemove []string

		d.index.scan(0, func(it *item) bool {
			fields, err := it.fields()
			if err != nil {
				return true
			}

			if fields[d.cfg.TypeField] != model.Name {
				return true
			}

			ttlVal, ok := fields[model.TTLField].(string)
			if !ok {
				return true
			}

			if isExpired(ttlVal, now) {
				toRemove = append(toRemove, it.key)
			}

			return true
		})

		for _, key := range toRemove {
			it, ok := d.index.get(key)
			if !ok {
				continue
			}

			fields, _ := it.fields()

			d.index.remove(key)
			valueJSON, _ := json.Marshal(map[string]any{model.Sort: key})
			d.journalMutation("remove", model.Name, key, valueJSON, Params{})

			if notify {
				d.callbacks.dispatch(d, model.Name, fields, "remove", EventChange|EventCommit)
			}

			removed++
		}
	}

	return removed
}
