package db

import (
	"encoding/json"
	"sort"
)

// item is a single stored record: a sort key plus either a parsed JSON
// object or its serialized ("cold") form. Reads promote cold to parsed on
// demand; the store always owns its own copy (clone-on-capture), never a
// caller's.
type item struct {
	key    string
	model  string
	raw    json.RawMessage        // always a valid serialization of the current value
	parsed map[string]any         // nil until promoted by fields()
	delayed bool                  // has an un-persisted change pending
}

// fields returns the item's parsed JSON object, promoting raw on first use.
func (it *item) fields() (map[string]any, error) {
	if it.parsed != nil {
		return it.parsed, nil
	}

	var m map[string]any
	if err := json.Unmarshal(it.raw, &m); err != nil {
		return nil, err
	}

	it.parsed = m

	return m, nil
}

// sync re-serializes parsed back into raw. Call after mutating fields() in
// place.
func (it *item) sync() error {
	if it.parsed == nil {
		return nil
	}

	b, err := json.Marshal(it.parsed)
	if err != nil {
		return err
	}

	it.raw = b

	return nil
}

// primaryIndex is the ordered associative container described in spec.md
// §4.2: a map for O(1) exact lookup plus a sorted key slice maintained via
// binary search for ordered iteration and prefix scans.
//
// No ordered-map/B-tree library appears anywhere in the retrieval pack, so
// this structure is the one piece of the db core built directly on the
// standard library (sort.Search) rather than a third-party dependency —
// see DESIGN.md.
type primaryIndex struct {
	items map[string]*item
	keys  []string // sorted ascending, lexicographic byte comparison
}

func newPrimaryIndex() *primaryIndex {
	return &primaryIndex{items: make(map[string]*item)}
}

func (p *primaryIndex) len() int {
	return len(p.keys)
}

func (p *primaryIndex) get(key string) (*item, bool) {
	it, ok := p.items[key]
	return it, ok
}

// insert adds or replaces the item stored under it.key.
func (p *primaryIndex) insert(it *item) {
	if _, exists := p.items[it.key]; exists {
		p.items[it.key] = it
		return
	}

	idx := sort.SearchStrings(p.keys, it.key)
	p.keys = append(p.keys, "")
	copy(p.keys[idx+1:], p.keys[idx:])
	p.keys[idx] = it.key
	p.items[it.key] = it
}

// remove deletes the item stored under key, reporting whether it existed.
func (p *primaryIndex) remove(key string) bool {
	if _, exists := p.items[key]; !exists {
		return false
	}

	delete(p.items, key)

	idx := sort.SearchStrings(p.keys, key)
	if idx < len(p.keys) && p.keys[idx] == key {
		p.keys = append(p.keys[:idx], p.keys[idx+1:]...)
	}

	return true
}

// startAt returns the slice index of the first key >= from (or len(keys) if
// none). Used both for an exact-prefix scan start and for resuming after a
// pagination cursor.
func (p *primaryIndex) startAt(from string) int {
	return sort.SearchStrings(p.keys, from)
}

// indexOf returns the slice position of key, or -1 if absent.
func (p *primaryIndex) indexOf(key string) int {
	idx := sort.SearchStrings(p.keys, key)
	if idx < len(p.keys) && p.keys[idx] == key {
		return idx
	}

	return -1
}

// scan calls fn for every item in key order starting at slice index from,
// stopping early if fn returns false.
func (p *primaryIndex) scan(from int, fn func(it *item) bool) {
	for i := from; i < len(p.keys); i++ {
		it := p.items[p.keys[i]]
		if !fn(it) {
			return
		}
	}
}
