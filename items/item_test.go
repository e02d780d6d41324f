package items

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestItem_DirtyInvariant(t *testing.T) {
	now := time.Now()
	it := New("Note", Content{"text": "hi"}, now)
	require.True(t, it.Dirty)
	require.Equal(t, 1, it.DirtyCount)

	sent := it.SnapshotAndResetDirtyCount()
	require.Equal(t, 1, sent)
	require.Equal(t, 0, it.DirtyCount)
	require.True(t, it.Dirty) // Dirty flag itself is untouched until clear

	it.ClearDirtyIfUnchanged()
	require.False(t, it.Dirty)
	require.Equal(t, it.Dirty, it.DirtyCount > 0)
}

func TestItem_ReDirtyDuringFlightSurvivesClear(t *testing.T) {
	now := time.Now()
	it := New("Note", Content{"text": "hi"}, now)
	it.SnapshotAndResetDirtyCount()

	// re-dirtied mid-flight
	it.SetDirty(true, true, now)
	require.Equal(t, 1, it.DirtyCount)

	it.ClearDirtyIfUnchanged()
	require.True(t, it.Dirty, "re-dirtying during flight must survive the clear")
}

func TestItem_SetDirtyFalseForcesClear(t *testing.T) {
	now := time.Now()
	it := New("Note", Content{"text": "hi"}, now)
	it.DirtyCount = 5
	it.SetDirty(false, false, now)
	require.False(t, it.Dirty)
	require.Equal(t, 0, it.DirtyCount)
}

func TestItem_Relationships(t *testing.T) {
	now := time.Now()
	a := New("Note", Content{}, now)
	b := New("Tag", Content{}, now)

	a.AddItemAsRelationship(b, now)
	require.True(t, a.HasRelationshipWithItem(b))
	require.Len(t, a.Content.References(), 1)

	// idempotent
	a.AddItemAsRelationship(b, now)
	require.Len(t, a.Content.References(), 1)

	a.RemoveItemAsRelationship(b, now)
	require.False(t, a.HasRelationshipWithItem(b))
	require.Len(t, a.Content.References(), 0)
}

func TestItem_BackReferences(t *testing.T) {
	now := time.Now()
	a := New("Note", Content{}, now)
	b := New("Tag", Content{}, now)

	b.AddReferencingObject(a)
	require.Len(t, b.ReferencingObjects(), 1)
	require.Equal(t, a.UUID, b.ReferencingObjects()[0].UUID)

	b.RemoveReferencingObject(a.UUID)
	require.Len(t, b.ReferencingObjects(), 0)
}

func TestItem_ContentEquivalent_IgnoresClientUpdatedAt(t *testing.T) {
	now := time.Now()
	a := New("Note", Content{"text": "same"}, now)
	b := New("Note", Content{"text": "same"}, now.Add(time.Hour))

	require.True(t, a.ContentEquivalent(b, nil))

	b.Content["text"] = "different"
	require.False(t, a.ContentEquivalent(b, nil))
}

func TestPredicate_Operators(t *testing.T) {
	now := time.Now()
	it := New("Tag", Content{"title": "Groceries", "pinned": true}, now)

	require.True(t, it.Matches(Predicate{KeyPath: "content.title", Operator: "=", Value: "Groceries"}, now))
	require.True(t, it.Matches(Predicate{KeyPath: "content.title", Operator: "startsWith", Value: "Groc"}, now))
	require.True(t, it.Matches(Predicate{KeyPath: "content_type", Operator: "in", Value: []any{"Tag", "Note"}}, now))
	require.False(t, it.Matches(Predicate{KeyPath: "content.title", Operator: "=", Value: "Other"}, now))
}

func TestPredicate_RelativeDate(t *testing.T) {
	now := time.Now()
	it := New("Note", Content{}, now)
	it.CreatedAt = now.Add(-2 * time.Hour)

	require.True(t, it.Matches(Predicate{KeyPath: "created_at", Operator: ">", Value: "3.hours.ago"}, now))
	require.False(t, it.Matches(Predicate{KeyPath: "created_at", Operator: ">", Value: "1.hours.ago"}, now))
}

func TestPredicate_Includes(t *testing.T) {
	now := time.Now()
	it := New("Note", Content{
		"tags": []any{
			map[string]any{"label": "urgent"},
			map[string]any{"label": "home"},
		},
	}, now)

	nested := Predicate{KeyPath: "label", Operator: "=", Value: "urgent"}
	require.True(t, it.Matches(Predicate{KeyPath: "content.tags", Operator: "includes", Value: nested}, now))

	nested2 := Predicate{KeyPath: "label", Operator: "=", Value: "missing"}
	require.False(t, it.Matches(Predicate{KeyPath: "content.tags", Operator: "includes", Value: nested2}, now))
}
