package syncengine

import (
	"encoding/json"

	"github.com/noteforge/core/crypto"
	"github.com/noteforge/core/items"
	"github.com/noteforge/core/store"
)

// contentPayload is the plaintext that gets encrypted into WireItem.Content:
// both the application content and the item's local appData travel inside
// the same envelope, so a server that only ever sees ciphertext cannot
// distinguish one from the other.
type contentPayload struct {
	Content map[string]any            `json:"content"`
	AppData map[string]map[string]any `json:"appData,omitempty"`
}

// itemKeyFor returns the item's per-item key, unwrapping enc_item_key if
// present and caching the result, or minting a fresh one for a never-synced
// item.
func (e *Engine) itemKeyFor(it *items.Item, keys *crypto.Keys) (*crypto.ItemKey, error) {
	if ik, ok := e.itemKeys[it.UUID]; ok {
		return ik, nil
	}
	if it.EncItemKey != "" {
		if ik, err := crypto.UnwrapItemKey(it.EncItemKey, it.UUID, keys.Mk, keys.Ak); err == nil {
			e.itemKeys[it.UUID] = ik
			return ik, nil
		}
	}
	ik, err := crypto.GenerateItemKey(nil)
	if err != nil {
		return nil, err
	}
	e.itemKeys[it.UUID] = ik
	return ik, nil
}

// encryptItem builds the WireItem for a dirty item (§4.5 step 5).
// includeTimestamps is set for sync_conflict duplicates being resubmitted
// with their original created_at/updated_at preserved (§4.6).
func (e *Engine) encryptItem(it *items.Item, keys *crypto.Keys, includeTimestamps bool) (WireItem, error) {
	if it.Deleted {
		return WireItem{UUID: it.UUID, ContentType: it.ContentType, Deleted: true}, nil
	}

	ik, err := e.itemKeyFor(it, keys)
	if err != nil {
		return WireItem{}, err
	}

	plain, err := json.Marshal(contentPayload{Content: map[string]any(it.Content), AppData: it.AppData})
	if err != nil {
		return WireItem{}, err
	}

	contentEnvelope, err := crypto.Encrypt(e.protocolVersion, it.UUID, plain, ik.Ek, ik.Ak, e.authParams, nil)
	if err != nil {
		return WireItem{}, err
	}

	keyEnvelope, err := crypto.WrapItemKey(e.protocolVersion, it.UUID, ik, keys.Mk, keys.Ak, e.authParams, nil)
	if err != nil {
		return WireItem{}, err
	}
	it.EncItemKey = keyEnvelope

	wi := WireItem{UUID: it.UUID, ContentType: it.ContentType, Content: contentEnvelope, EncItemKey: keyEnvelope}
	if includeTimestamps {
		ca, ua := it.CreatedAt, it.UpdatedAt
		wi.CreatedAt, wi.UpdatedAt = &ca, &ua
	}
	return wi, nil
}

// decryptWireItem turns a retrieved or saved WireItem into a store.Record,
// decrypting content under the item's own enc_item_key.
func (e *Engine) decryptWireItem(wi WireItem, keys *crypto.Keys) store.Record {
	rec := store.Record{UUID: wi.UUID, ContentType: wi.ContentType, Deleted: wi.Deleted, EncItemKey: wi.EncItemKey}
	if wi.CreatedAt != nil {
		rec.CreatedAt = *wi.CreatedAt
	}
	if wi.UpdatedAt != nil {
		rec.UpdatedAt = *wi.UpdatedAt
	}
	if wi.Deleted || wi.Content == "" {
		return rec
	}

	ik, err := crypto.UnwrapItemKey(wi.EncItemKey, wi.UUID, keys.Mk, keys.Ak)
	if err != nil {
		rec.ErrorDecrypting = true
		return rec
	}
	e.itemKeys[wi.UUID] = ik

	plain, err := crypto.Decrypt(wi.Content, wi.UUID, ik.Ek, ik.Ak, "")
	if err != nil {
		rec.ErrorDecrypting = true
		return rec
	}

	var payload contentPayload
	if err := json.Unmarshal(plain, &payload); err != nil {
		rec.ErrorDecrypting = true
		return rec
	}
	rec.Content = payload.Content
	rec.AppData = payload.AppData
	return rec
}

// savedEchoRecord builds the metadata-only Record for a saved_items echo
// (§4.5 step 8): content and auth_hash are never resent by the server for
// its own echo, so the mapping call omits them explicitly.
func savedEchoRecord(wi WireItem) store.Record {
	rec := store.Record{UUID: wi.UUID, ContentType: wi.ContentType, Deleted: wi.Deleted}
	if wi.CreatedAt != nil {
		rec.CreatedAt = *wi.CreatedAt
	}
	if wi.UpdatedAt != nil {
		rec.UpdatedAt = *wi.UpdatedAt
	}
	return rec
}
