package singleton

import (
	"testing"
	"time"

	"github.com/noteforge/core/items"
	"github.com/stretchr/testify/require"
)

func prefsPredicate() items.Predicate {
	return items.Predicate{KeyPath: "content_type", Operator: "=", Value: "UserPreferences"}
}

func TestResolver_ConvergesOnEarliestCreatedAt(t *testing.T) {
	now := time.Now()
	older := items.New("UserPreferences", items.Content{}, now)
	older.CreatedAt = now.Add(-time.Hour)
	newer := items.New("UserPreferences", items.Content{}, now)
	newer.CreatedAt = now

	var winner *items.Item
	var deletedBatch []*items.Item
	r := New([]items.Predicate{prefsPredicate()}, func(it *items.Item) { winner = it }, nil)

	r.Resolve([]*items.Item{older, newer}, []*items.Item{older, newer}, now, func(deleted []*items.Item) {
		deletedBatch = deleted
	})

	require.Equal(t, older.UUID, winner.UUID)
	require.Len(t, deletedBatch, 1)
	require.Equal(t, newer.UUID, deletedBatch[0].UUID)
	require.True(t, newer.Deleted)
	require.True(t, newer.Dirty)
	bound, ok := r.Bound()
	require.True(t, ok)
	require.Equal(t, older.UUID, bound.UUID)
}

func TestResolver_BindsSingleExistingMatch(t *testing.T) {
	now := time.Now()
	only := items.New("UserPreferences", items.Content{}, now)

	var winner *items.Item
	r := New([]items.Predicate{prefsPredicate()}, func(it *items.Item) { winner = it }, nil)
	r.Resolve([]*items.Item{only}, []*items.Item{only}, now, nil)

	require.Equal(t, only.UUID, winner.UUID)
}

func TestResolver_CreatesWhenNoneExists(t *testing.T) {
	now := time.Now()
	created := false

	r := New([]items.Predicate{prefsPredicate()}, func(it *items.Item) { created = true },
		func(insert func(*items.Item)) {
			it := items.New("UserPreferences", items.Content{}, now)
			insert(it)
		})

	r.Resolve(nil, nil, now, nil)
	require.True(t, created)
	_, bound := r.Bound()
	require.True(t, bound)
}

func TestResolver_DoesNotRecreateWhileBound(t *testing.T) {
	now := time.Now()
	createCount := 0
	r := New([]items.Predicate{prefsPredicate()}, nil,
		func(insert func(*items.Item)) {
			createCount++
			insert(items.New("UserPreferences", items.Content{}, now))
		})

	r.Resolve(nil, nil, now, nil)
	r.Resolve(nil, nil, now, nil)
	require.Equal(t, 1, createCount)
}
