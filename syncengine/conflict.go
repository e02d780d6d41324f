package syncengine

import (
	"github.com/noteforge/core/crypto"
	"github.com/noteforge/core/items"
	"github.com/noteforge/core/store"
)

const (
	conflictTagUUID = "uuid_conflict"
	conflictTagSync = "sync_conflict"
)

// resolveConflicts implements §4.6 over one response's unsaved entries. It
// must run before that same response's retrieved_items are mapped, since a
// sync_conflict duplicate has to be built from the server's version before
// the authoritative retrieved copy overwrites the local item.
func (e *Engine) resolveConflicts(unsaved []UnsavedItem, keys *crypto.Keys) []*items.Item {
	var resolved []*items.Item

	for _, u := range unsaved {
		original, ok := e.store.Get(u.Item.UUID)
		if !ok {
			e.logger.Warn(nil, "unsaved entry for unknown item", "uuid", u.Item.UUID, "tag", u.Error.Tag)
			continue
		}

		switch u.Error.Tag {
		case conflictTagUUID:
			replacement := e.store.AlternateUUID(original)
			resolved = append(resolved, replacement)
			e.repeatOnCompletion = true

		case conflictTagSync:
			rec := e.decryptWireItem(u.Item, keys)
			if dup := e.duplicateForConflict(original, rec); dup != nil {
				resolved = append(resolved, dup)
				e.repeatOnCompletion = true
			}

		default:
			e.logger.Warn(nil, "unrecognized conflict tag, leaving item dirty for retry", "uuid", u.Item.UUID, "tag", u.Error.Tag)
		}
	}

	return resolved
}

// duplicateForConflict takes the already-decrypted server version of a
// sync_conflict entry and, if it actually differs from the local item, issues it as a
// brand new item carrying conflict_of, scheduled to resend with its
// original created_at/updated_at preserved (§4.6, additionalFields). If the
// server's content is equivalent to the local content there is nothing to
// duplicate and it returns nil.
func (e *Engine) duplicateForConflict(original *items.Item, rec store.Record) *items.Item {
	content := items.Content(rec.Content)
	if content == nil {
		content = items.Content{}
	}

	if !rec.ErrorDecrypting {
		probe := items.New(original.ContentType, content, e.clk.Now())
		if rec.AppData != nil {
			probe.AppData = rec.AppData
		}
		if original.ContentEquivalent(probe, nil) {
			return nil
		}
	}

	dup := items.New(original.ContentType, content, e.clk.Now())
	dup.ConflictOf = original.UUID
	dup.CreatedAt = original.CreatedAt
	dup.UpdatedAt = original.UpdatedAt
	dup.AppData = rec.AppData
	if dup.AppData == nil {
		dup.AppData = map[string]map[string]any{}
	}
	dup.ErrorDecrypting = rec.ErrorDecrypting

	e.store.Insert(dup, store.SourceLocalSaved)
	e.pendingAdditionalFields[dup.UUID] = true
	return dup
}
