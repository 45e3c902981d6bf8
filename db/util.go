package db

// cloneJSONValue deep-copies a JSON-shaped value (the output of
// encoding/json.Unmarshal into `any`: maps, slices, strings, float64s,
// bools, or nil). The store always owns its own copy of anything it holds,
// never a caller's — the "clone-on-capture" discipline spec.md §9 calls
// for in place of the source's JSON_USER_ALLOC ownership flag.
func cloneJSONValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cloneJSONMap(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneJSONValue(e)
		}

		return out
	default:
		return t
	}
}

func cloneJSONMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneJSONValue(v)
	}

	return out
}
