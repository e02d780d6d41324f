package items

// DefaultEqualityBlacklist is the key-blacklist used by content equality
// (§4.2) when deciding whether a sync_conflict needs to produce a
// duplicate (§4.6): client_updated_at is volatile by definition, since
// every local mutation bumps it regardless of whether the payload
// actually changed.
var DefaultEqualityBlacklist = []string{"client_updated_at"}

// ContentEquivalent deep-compares this item's content and appData against
// other's, ignoring any key named in blacklist at any nesting depth. A
// nil blacklist falls back to DefaultEqualityBlacklist.
func (it *Item) ContentEquivalent(other *Item, blacklist []string) bool {
	if blacklist == nil {
		blacklist = DefaultEqualityBlacklist
	}
	skip := make(map[string]bool, len(blacklist))
	for _, k := range blacklist {
		skip[k] = true
	}

	a := stripKeys(map[string]any{"content": map[string]any(it.Content), "appData": anyAppData(it.AppData)}, skip)
	b := stripKeys(map[string]any{"content": map[string]any(other.Content), "appData": anyAppData(other.AppData)}, skip)
	return deepEqual(a, b)
}

func anyAppData(ad map[string]map[string]any) map[string]any {
	out := make(map[string]any, len(ad))
	for domain, kv := range ad {
		out[domain] = map[string]any(kv)
	}
	return out
}

func stripKeys(v any, skip map[string]bool) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			if skip[k] {
				continue
			}
			out[k] = stripKeys(val, skip)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = stripKeys(val, skip)
		}
		return out
	case []map[string]any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = stripKeys(map[string]any(val), skip)
		}
		return out
	default:
		return v
	}
}

// deepEqual compares two values built only from the JSON-ish primitives
// this package deals in (map[string]any, []any, scalars).
func deepEqual(a, b any) bool {
	switch av := a.(type) {
	case map[string]any:
		bv, ok := b.(map[string]any)
		if !ok || len(av) != len(bv) {
			return false
		}
		for k, v := range av {
			bvv, ok := bv[k]
			if !ok || !deepEqual(v, bvv) {
				return false
			}
		}
		return true
	case []any:
		bv, ok := b.([]any)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !deepEqual(av[i], bv[i]) {
				return false
			}
		}
		return true
	default:
		return a == b
	}
}
