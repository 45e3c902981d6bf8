package db

import (
	"fmt"
	"strings"
)

// matchProperties implements spec.md §4.3's "Property match" subsection:
// for each provided query property (other than the sort field), the
// candidate must contain a same-named property with a byte-equal string
// representation; object/array values recurse structurally with the same
// rule.
func matchProperties(candidate, query map[string]any, sortField string) bool {
	for k, want := range query {
		if k == sortField {
			continue
		}

		got, ok := candidate[k]
		if !ok {
			return false
		}

		if !deepByteEqual(got, want) {
			return false
		}
	}

	return true
}

func deepByteEqual(got, want any) bool {
	switch w := want.(type) {
	case map[string]any:
		g, ok := got.(map[string]any)
		if !ok {
			return false
		}

		for k, wv := range w {
			gv, ok := g[k]
			if !ok || !deepByteEqual(gv, wv) {
				return false
			}
		}

		return true
	case []any:
		g, ok := got.([]any)
		if !ok || len(g) != len(w) {
			return false
		}

		for i := range w {
			if !deepByteEqual(g[i], w[i]) {
				return false
			}
		}

		return true
	default:
		return scalarString(got) == scalarString(want)
	}
}

func scalarString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	default:
		return fmt.Sprint(t)
	}
}

// queryResult is one candidate surviving property match, predicate, and TTL
// checks during a scan.
type queryResult struct {
	key    string
	fields map[string]any
}

// scanMatching walks the index starting at startIdx (inclusive), in key
// order, yielding every item that: is of the right model (when modelName
// isn't empty), satisfies prefix/exact key constraints, matches query
// properties, passes the predicate, and isn't TTL-expired. Expired items
// encountered along the way are hidden from results and their keys
// collected into expiredKeys, but this scan never mutates the index itself
// — physical deletion is [DB.RemoveExpired]'s job alone, so its count of
// removed items stays accurate regardless of how many reads ran first.
// Callers that don't need the list (every current caller) may discard it.
//
// It collects at most limit results (limit <= 0 means unlimited) and
// reports the key to resume after (the last result's key) when at least one
// further matching item follows them, or "" when none does.
func (d *DB) scanMatching(
	startIdx int,
	prefix string,
	usePrefix bool,
	modelName string,
	model *Model,
	query map[string]any,
	where WherePredicate,
	arg any,
	limit int,
	sortField string,
) (results []queryResult, cursor string, expiredKeys []string) {
	now := isoNow()
	hasMore := false

	d.index.scan(startIdx, func(it *item) bool {
		if usePrefix {
			if !strings.HasPrefix(it.key, prefix) {
				// Keys are sorted; once we've passed the prefix range there
				// can be no further matches.
				if it.key > prefix {
					return false
				}

				return true
			}
		} else if prefix != "" && it.key != prefix {
			return it.key < prefix
		}

		fields, err := it.fields()
		if err != nil {
			return true
		}

		if model != nil && fields[d.cfg.TypeField] != modelName {
			return true
		}

		if model != nil && model.TTLField != "" {
			if ttlVal, ok := fields[model.TTLField].(string); ok && isExpired(ttlVal, now) {
				expiredKeys = append(expiredKeys, it.key)
				return true
			}
		}

		if !matchProperties(fields, query, sortField) {
			return true
		}

		if where != nil && !where(fields, it.key, arg) {
			return true
		}

		if limit > 0 && len(results) >= limit {
			// A further match exists past this page, so the cursor stands.
			hasMore = true
			return false
		}

		results = append(results, queryResult{key: it.key, fields: cloneJSONMap(fields)})
		cursor = it.key

		return true
	})

	if !hasMore {
		cursor = ""
	}

	return results, cursor, expiredKeys
}
