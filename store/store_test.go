package store

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/noteforge/core/clock"
	"github.com/noteforge/core/internal/logging"
	"github.com/noteforge/core/items"
	"github.com/noteforge/core/scheduler"
	"github.com/stretchr/testify/require"
)

// spyLogger records Warn calls so tests can assert on non-fatal paths that
// only ever surface through logging.
type spyLogger struct {
	logging.Logger
	warnings []string
}

func (s *spyLogger) Warn(ctx context.Context, msg string, args ...any) {
	s.warnings = append(s.warnings, msg)
}

func newTestStore() (*Store, *scheduler.Queue) {
	q := scheduler.NewQueue()
	s := New(clock.NewStub(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)), q, logging.NewSlogLogger(slog.Default()))
	return s, q
}

func TestStore_DeferredReferenceResolution(t *testing.T) {
	s, q := newTestStore()

	s.Map([]Record{{UUID: "a", ContentType: "Note", Content: map[string]any{
		"references": []any{map[string]any{"uuid": "b", "content_type": "Tag"}},
	}}}, SourceLocalRetrieved, nil)

	require.Equal(t, 1, s.MissedReferenceCount())
	q.Run()

	s.Map([]Record{{UUID: "b", ContentType: "Tag", Content: map[string]any{}}}, SourceLocalRetrieved, nil)
	q.Run()

	b, ok := s.Get("b")
	require.True(t, ok)
	require.Len(t, b.ReferencingObjects(), 1)
	require.Equal(t, "a", b.ReferencingObjects()[0].UUID)
	require.Equal(t, 0, s.MissedReferenceCount())
}

func TestStore_ReferenceInvariant_SameBatch(t *testing.T) {
	s, q := newTestStore()

	s.Map([]Record{
		{UUID: "a", ContentType: "Note", Content: map[string]any{
			"references": []any{map[string]any{"uuid": "b", "content_type": "Tag"}},
		}},
		{UUID: "b", ContentType: "Tag", Content: map[string]any{}},
	}, SourceLocalRetrieved, nil)
	q.Run()

	a, _ := s.Get("a")
	b, _ := s.Get("b")
	require.True(t, a.HasRelationshipWithItem(b))
	require.Contains(t, refUUIDs(b.ReferencingObjects()), "a")
}

func refUUIDs(its []*items.Item) []string {
	out := make([]string, len(its))
	for i, it := range its {
		out[i] = it.UUID
	}
	return out
}

func TestStore_IdempotentMapping_RemoteSaved(t *testing.T) {
	s, q := newTestStore()

	s.Map([]Record{{UUID: "a", ContentType: "Note", Content: map[string]any{"text": "hi"}}}, SourceLocalRetrieved, nil)
	q.Run()

	omit := OmitFields("content", "auth_hash")
	s.Map([]Record{{UUID: "a", ContentType: "Note", Content: nil, AuthHash: "ignored"}}, SourceRemoteSaved, omit)
	q.Run()

	a, ok := s.Get("a")
	require.True(t, ok)
	require.Equal(t, "hi", a.Content["text"])
}

func TestStore_DeletedDirtyItemExcludedFromViewsButKept(t *testing.T) {
	s, q := newTestStore()
	s.Map([]Record{{UUID: "a", ContentType: "Note", Content: map[string]any{}}}, SourceLocalRetrieved, nil)
	q.Run()
	a, _ := s.Get("a")
	a.SetDirty(true, true, time.Now())

	s.Map([]Record{{UUID: "a", ContentType: "Note", Content: map[string]any{}, Deleted: true}}, SourceRemoteRetrieved, nil)
	q.Run()

	_, ok := s.Get("a")
	require.True(t, ok, "deleted-but-dirty item must remain in the store")
	require.Empty(t, s.All(), "but excluded from collection views")
}

func TestStore_DeletedCleanItemRemovedAndNotified(t *testing.T) {
	s, q := newTestStore()
	s.Map([]Record{{UUID: "a", ContentType: "Note", Content: map[string]any{}}}, SourceLocalRetrieved, nil)
	q.Run()
	a, _ := s.Get("a")
	a.SetDirty(false, false, time.Now())

	var seen []*items.Item
	s.Observe(func(batch []*items.Item, source Source) {
		seen = append(seen, batch...)
	})

	s.Map([]Record{{UUID: "a", Content: map[string]any{}, Deleted: true}}, SourceRemoteRetrieved, nil)
	q.Run()

	_, ok := s.Get("a")
	require.False(t, ok)
	require.Len(t, seen, 1)
}

func TestStore_UUIDAlternation_PreservesReferenceGraph(t *testing.T) {
	s, q := newTestStore()

	s.Map([]Record{
		{UUID: "u1", ContentType: "Note", Content: map[string]any{"text": "a"}},
		{UUID: "r1", ContentType: "Note", Content: map[string]any{
			"references": []any{map[string]any{"uuid": "u1", "content_type": "Note"}},
		}},
	}, SourceLocalRetrieved, nil)
	q.Run()

	x, _ := s.Get("u1")
	r, _ := s.Get("r1")
	r.SetDirty(false, false, time.Now()) // clean before alternation, so we can observe it flip dirty

	replacement := s.AlternateUUID(x)
	q.Run()

	require.NotEqual(t, "u1", replacement.UUID)
	require.Equal(t, "a", replacement.Content["text"])
	require.True(t, replacement.Dirty)

	require.True(t, x.Deleted)
	require.False(t, x.Dirty)
	_, stillThere := s.Get("u1")
	require.False(t, stillThere)

	require.True(t, r.HasRelationshipWithItem(replacement))
	require.False(t, r.HasRelationshipWithItem(x))
	require.True(t, r.Dirty)
}

func TestStore_SchemaValidation_OptIn(t *testing.T) {
	s, q := newTestStore()
	spy := &spyLogger{}
	s.logger = spy

	registry := items.NewSchemaRegistry()
	require.NoError(t, registry.Register("Note", []byte(`{
		"type": "object",
		"required": ["text"],
		"properties": {"text": {"type": "string"}}
	}`)))
	s.SetSchemaRegistry(registry)

	s.Map([]Record{{UUID: "valid", ContentType: "Note", Content: map[string]any{"text": "hi"}}}, SourceLocalRetrieved, nil)
	q.Run()
	require.Empty(t, spy.warnings, "content matching its schema must not warn")

	s.Map([]Record{{UUID: "invalid", ContentType: "Note", Content: map[string]any{"text": 5}}}, SourceLocalRetrieved, nil)
	q.Run()
	require.Len(t, spy.warnings, 1, "content violating its registered schema must warn")

	_, ok := s.Get("invalid")
	require.True(t, ok, "schema validation is non-fatal: the item is still mapped")

	// A content_type with no registered schema always validates.
	s.Map([]Record{{UUID: "unregistered-type", ContentType: "Tag", Content: map[string]any{"anything": true}}}, SourceLocalRetrieved, nil)
	q.Run()
	require.Len(t, spy.warnings, 1, "a content_type with no registered schema must not warn")
}
