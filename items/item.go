package items

import "time"

// AppData domain used for client-only metadata such as client_updated_at,
// mirroring Standard Notes' "org.standardnotes.sn" convention referenced
// in the design notes.
const DefaultAppDataDomain = "org.standardnotes.sn"

// Item is the unit of storage and sync (§3).
type Item struct {
	UUID        string
	ContentType string
	Content     Content
	AppData     map[string]map[string]any

	CreatedAt time.Time
	UpdatedAt time.Time

	// Encryption envelope fields, present only in transit/at-rest.
	EncItemKey string
	AuthHash   string
	AuthParams string

	// Local-only state flags.
	Deleted                     bool
	Dirty                       bool
	DirtyCount                  int
	ErrorDecrypting             bool
	ErrorDecryptingValueChanged bool
	ConflictOf                  string

	// referencingObjects is the back-reference set: every item currently
	// referencing this one. Owned and mutated exclusively by package
	// store (§3 "Ownership"); never persisted.
	referencingObjects map[string]*Item
}

// New constructs a fresh local item with a client-generated UUID, dirty
// from the moment of creation.
func New(contentType string, content Content, now time.Time) *Item {
	it := &Item{
		UUID:        NewUUID(),
		ContentType: contentType,
		Content:     content,
		AppData:     map[string]map[string]any{},
	}
	it.SetDirty(true, false, now)
	return it
}

// SetDirty implements the two call shapes named in §4.2:
//   - SetDirty(true, dontUpdateClientDate, now): a mutation occurred;
//     increments DirtyCount and sets Dirty, bumping client_updated_at
//     unless dontUpdateClientDate.
//   - SetDirty(false, _, _): an unconditional clear, used by UUID
//     alternation (§4.4 step 5) to force the obsolete original clean.
//
// The sync engine does not use this method to clear dirty after a
// successful round trip — see SnapshotAndResetDirtyCount /
// ClearDirtyIfUnchanged, which implement the exact send-time/clear-time
// comparison semantics of §4.5 step 2 and step 9.
func (it *Item) SetDirty(flag bool, dontUpdateClientDate bool, now time.Time) {
	if !flag {
		it.DirtyCount = 0
		it.Dirty = false
		return
	}
	it.DirtyCount++
	it.Dirty = true
	if !dontUpdateClientDate {
		it.SetClientUpdatedAt(now)
	}
}

// SnapshotAndResetDirtyCount returns the current DirtyCount and resets it
// to zero. Called by the sync engine immediately before a dirty item is
// submitted on the wire (§4.5 step 2); any mutation landing after this
// point re-increments DirtyCount and is picked up by
// ClearDirtyIfUnchanged.
func (it *Item) SnapshotAndResetDirtyCount() int {
	n := it.DirtyCount
	it.DirtyCount = 0
	return n
}

// ClearDirtyIfUnchanged clears Dirty only if DirtyCount is still zero,
// i.e. nothing re-dirtied the item since SnapshotAndResetDirtyCount ran
// (§4.5 step 9, §9 open question on dirtyCount semantics).
func (it *Item) ClearDirtyIfUnchanged() {
	if it.DirtyCount == 0 {
		it.Dirty = false
	}
}

// SetClientUpdatedAt stamps appData[DefaultAppDataDomain].client_updated_at.
func (it *Item) SetClientUpdatedAt(now time.Time) {
	if it.AppData == nil {
		it.AppData = map[string]map[string]any{}
	}
	domain, ok := it.AppData[DefaultAppDataDomain]
	if !ok {
		domain = map[string]any{}
	}
	domain["client_updated_at"] = now.UTC().Format(time.RFC3339Nano)
	it.AppData[DefaultAppDataDomain] = domain
}

// ClientUpdatedAt reads back appData[DefaultAppDataDomain].client_updated_at.
func (it *Item) ClientUpdatedAt() (time.Time, bool) {
	domain, ok := it.AppData[DefaultAppDataDomain]
	if !ok {
		return time.Time{}, false
	}
	raw, ok := domain["client_updated_at"].(string)
	if !ok {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// Qualifies reports whether the item belongs in the dirty set a sync
// cycle collects (§4.5 step 1): dirty, and either not in a decrypt-error
// state or being deleted (deletion is the only mutation an errorDecrypting
// item may still sync, per §3). Items carry no dummy-placeholder marker,
// so no item is excluded on that ground.
func (it *Item) Qualifies() bool {
	if !it.Dirty {
		return false
	}
	if it.ErrorDecrypting && !it.Deleted {
		return false
	}
	return true
}

// HasRelationshipWithItem reports whether this item's forward references
// (§4.2) already include target.
func (it *Item) HasRelationshipWithItem(target *Item) bool {
	for _, r := range it.Content.References() {
		if r.UUID == target.UUID {
			return true
		}
	}
	return false
}

// AddItemAsRelationship appends target to this item's forward references
// and marks the item dirty, unless the relationship already exists.
func (it *Item) AddItemAsRelationship(target *Item, now time.Time) {
	if it.HasRelationshipWithItem(target) {
		return
	}
	refs := append(it.Content.References(), Reference{UUID: target.UUID, ContentType: target.ContentType})
	it.Content = it.Content.SetReferences(refs)
	it.SetDirty(true, false, now)
}

// RemoveItemAsRelationship drops target from this item's forward
// references and marks the item dirty, if the relationship existed.
func (it *Item) RemoveItemAsRelationship(target *Item, now time.Time) {
	refs := it.Content.References()
	out := make([]Reference, 0, len(refs))
	changed := false
	for _, r := range refs {
		if r.UUID == target.UUID {
			changed = true
			continue
		}
		out = append(out, r)
	}
	if !changed {
		return
	}
	it.Content = it.Content.SetReferences(out)
	it.SetDirty(true, false, now)
}

// ReferencingObjects returns the items currently referencing this one.
// Populated only by package store.
func (it *Item) ReferencingObjects() []*Item {
	out := make([]*Item, 0, len(it.referencingObjects))
	for _, ref := range it.referencingObjects {
		out = append(out, ref)
	}
	return out
}

// AddReferencingObject records that from references this item. Exported
// for package store; applications should never call this directly.
func (it *Item) AddReferencingObject(from *Item) {
	if it.referencingObjects == nil {
		it.referencingObjects = map[string]*Item{}
	}
	it.referencingObjects[from.UUID] = from
}

// RemoveReferencingObject drops the back-reference from fromUUID.
func (it *Item) RemoveReferencingObject(fromUUID string) {
	delete(it.referencingObjects, fromUUID)
}

// UpdateFromJSON deep-merges an application-defined content record into
// the item, per §4.2. Top-level server-set fields (created_at, updated_at)
// are promoted directly; content is deep-merged via DeepMerge so fields
// omitted by the incoming record are preserved, not deleted.
func (it *Item) UpdateFromJSON(record map[string]any, omitFields map[string]bool) {
	if !omitFields["created_at"] {
		if v, ok := record["created_at"].(time.Time); ok {
			it.CreatedAt = v
		}
	}
	if !omitFields["updated_at"] {
		if v, ok := record["updated_at"].(time.Time); ok {
			it.UpdatedAt = v
		}
	}
	if !omitFields["deleted"] {
		if v, ok := record["deleted"].(bool); ok {
			it.Deleted = v
		}
	}
	if !omitFields["content"] {
		if v, ok := record["content"].(map[string]any); ok {
			merged := DeepMerge(map[string]any(it.Content.Clone()), v)
			it.Content = Content(merged)
		}
	}
	if !omitFields["appData"] {
		if v, ok := record["appData"].(map[string]map[string]any); ok && v != nil {
			if it.AppData == nil {
				it.AppData = map[string]map[string]any{}
			}
			for domain, kv := range v {
				merged := DeepMerge(it.AppData[domain], kv)
				out := make(map[string]any, len(merged))
				for k, val := range merged {
					out[k] = val
				}
				it.AppData[domain] = out
			}
		}
	}
	if !omitFields["auth_hash"] {
		if v, ok := record["auth_hash"].(string); ok {
			it.AuthHash = v
		}
	}
	if !omitFields["enc_item_key"] {
		if v, ok := record["enc_item_key"].(string); ok {
			it.EncItemKey = v
		}
	}
}
