package syncengine

import (
	"context"
	"time"
)

// WireItem is the JSON shape of an item on the wire (§6): content is the
// opaque versioned envelope string produced by package crypto, never a
// decoded object.
type WireItem struct {
	UUID        string     `json:"uuid"`
	ContentType string     `json:"content_type,omitempty"`
	Content     string     `json:"content,omitempty"`
	EncItemKey  string     `json:"enc_item_key,omitempty"`
	AuthHash    string     `json:"auth_hash,omitempty"`
	AuthParams  string     `json:"auth_params,omitempty"`
	CreatedAt   *time.Time `json:"created_at,omitempty"`
	UpdatedAt   *time.Time `json:"updated_at,omitempty"`
	Deleted     bool       `json:"deleted,omitempty"`
}

// SyncRequest is the POST body for <server>/items/sync (§6).
type SyncRequest struct {
	Items       []WireItem `json:"items"`
	SyncToken   *string    `json:"sync_token"`
	CursorToken *string    `json:"cursor_token"`
	Limit       int        `json:"limit"`
}

// UnsavedError carries the conflict tag for an item the server refused.
type UnsavedError struct {
	Tag string `json:"tag"`
}

// UnsavedItem is one entry of the response's "unsaved" array (§4.6).
type UnsavedItem struct {
	Item  WireItem     `json:"item"`
	Error UnsavedError `json:"error"`
}

// SyncResponse is the JSON body returned by <server>/items/sync (§6).
type SyncResponse struct {
	RetrievedItems []WireItem    `json:"retrieved_items"`
	SavedItems     []WireItem    `json:"saved_items"`
	Unsaved        []UnsavedItem `json:"unsaved"`
	SyncToken      string        `json:"sync_token"`
	CursorToken    *string       `json:"cursor_token"`
}

// Transport is the out-of-scope external collaborator (§1) that issues
// the actual JSON POST. The default implementation lives in
// internal/transport; tests supply a stub.
type Transport interface {
	Sync(ctx context.Context, req SyncRequest) (SyncResponse, error)
}

// Persistence is the out-of-scope local database collaborator (§1, §2
// "Local persistence adapter — interface only"). The reference
// implementation lives in internal/persistence/sqlite.
type Persistence interface {
	SaveItems(ctx context.Context, items []PersistedItem) error
	SaveTokens(ctx context.Context, syncToken, cursorToken *string) error

	// LoadTokens returns the last persisted sync_token/cursor_token, both
	// nil on a never-synced database.
	LoadTokens(ctx context.Context) (syncToken, cursorToken *string, err error)

	// LoadChunk returns up to limit rows starting at offset, in a stable
	// order, for the bulk-load chunking algorithm (§5).
	LoadChunk(ctx context.Context, offset, limit int) ([]PersistedItem, error)
}

// PersistedItem is the shape the sync engine hands to Persistence: enough
// to round-trip an item to disk without the persistence adapter needing
// to know about crypto or the model store.
type PersistedItem struct {
	UUID        string
	ContentType string
	Content     map[string]any
	AppData     map[string]map[string]any
	EncItemKey  string
	AuthHash    string
	AuthParams  string
	CreatedAt   time.Time
	UpdatedAt   time.Time
	Deleted     bool
	Dirty       bool // suppressed (always false) when writing during offline sync, §4.5 step 3
}
