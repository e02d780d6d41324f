package items

// Reference is an inter-item forward edge: {uuid, content_type} pointing
// at another item (§3).
type Reference struct {
	UUID        string `json:"uuid"`
	ContentType string `json:"content_type"`
}

// Content is the application-defined JSON object carried by an item. The
// "references" key is reserved for the forward-edge list; every other key
// is opaque to this library.
type Content map[string]any

// References extracts the content's references array, tolerating a
// []Reference, the []map[string]any written by SetReferences, and the
// generic []any produced by json.Unmarshal into map[string]any.
func (c Content) References() []Reference {
	raw, ok := c["references"]
	if !ok || raw == nil {
		return nil
	}
	switch v := raw.(type) {
	case []Reference:
		return append([]Reference(nil), v...)
	case []map[string]any:
		refs := make([]Reference, 0, len(v))
		for _, m := range v {
			uuid, _ := m["uuid"].(string)
			contentType, _ := m["content_type"].(string)
			refs = append(refs, Reference{UUID: uuid, ContentType: contentType})
		}
		return refs
	case []any:
		refs := make([]Reference, 0, len(v))
		for _, entry := range v {
			m, ok := entry.(map[string]any)
			if !ok {
				continue
			}
			uuid, _ := m["uuid"].(string)
			contentType, _ := m["content_type"].(string)
			refs = append(refs, Reference{UUID: uuid, ContentType: contentType})
		}
		return refs
	default:
		return nil
	}
}

// SetReferences returns a copy of c with its "references" key replaced.
func (c Content) SetReferences(refs []Reference) Content {
	out := make(Content, len(c))
	for k, v := range c {
		out[k] = v
	}
	list := make([]map[string]any, len(refs))
	for i, r := range refs {
		list[i] = map[string]any{"uuid": r.UUID, "content_type": r.ContentType}
	}
	out["references"] = list
	return out
}

// Clone performs a deep copy sufficient for the "clone content into a new
// item" step of UUID alternation (§4.4): nested maps and slices are
// copied, not shared.
func (c Content) Clone() Content {
	return deepCopyMap(c)
}

func deepCopyMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = deepCopyValue(v)
	}
	return out
}

func deepCopyValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return deepCopyMap(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = deepCopyValue(e)
		}
		return out
	case []map[string]any:
		out := make([]map[string]any, len(t))
		for i, e := range t {
			out[i] = deepCopyMap(e)
		}
		return out
	default:
		return v
	}
}

// DeepMerge merges src into dst: nested maps merge key-by-key recursively;
// any other value (including arrays, so "references") is overwritten
// wholesale by src's value when present. Keys present only in dst are left
// untouched, matching §4.2's "preserves client-only fields only if present
// in input" (i.e. omission in src never deletes a field dst already has).
func DeepMerge(dst, src map[string]any) map[string]any {
	if dst == nil {
		dst = map[string]any{}
	}
	for k, sv := range src {
		if dm, ok := dst[k].(map[string]any); ok {
			if sm, ok := sv.(map[string]any); ok {
				dst[k] = DeepMerge(deepCopyMap(dm), sm)
				continue
			}
		}
		dst[k] = deepCopyValue(sv)
	}
	return dst
}
