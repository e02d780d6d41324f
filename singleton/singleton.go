// Package singleton implements the singleton resolver (§4.7): it keeps at
// most one instance of an item class alive per registered predicate set,
// using earliest-created_at as the deterministic tie-break (§4.7
// "Tie-break rationale", resolved per the open question in §9).
package singleton

import (
	"sort"
	"time"

	"github.com/noteforge/core/items"
)

// Resolver maintains one singleton registration: a predicate set, a
// resolution callback, and a create-block invoked when no instance
// exists anywhere.
type Resolver struct {
	Predicates         []items.Predicate
	ResolutionCallback func(winner *items.Item)
	CreateBlock        func(insert func(*items.Item))

	bound         *items.Item
	createInFlight bool
}

// New constructs a Resolver for one singleton class.
func New(predicates []items.Predicate, resolutionCallback func(*items.Item), createBlock func(insert func(*items.Item))) *Resolver {
	return &Resolver{Predicates: predicates, ResolutionCallback: resolutionCallback, CreateBlock: createBlock}
}

func (r *Resolver) matches(it *items.Item, now time.Time) bool {
	for _, p := range r.Predicates {
		if !it.Matches(p, now) {
			return false
		}
	}
	return true
}

// Resolve runs the §4.7 algorithm. remoteCandidates is the union of this
// cycle's retrieved and saved items (or, on initial load, every item just
// loaded); allLocal is every item currently in the store. triggerSync is
// called with items that were just marked dirty for deletion, so the
// caller can schedule the additional sync cycle those dirtied deletions
// need.
func (r *Resolver) Resolve(remoteCandidates, allLocal []*items.Item, now time.Time, triggerSync func([]*items.Item)) {
	var remoteMatches []*items.Item
	for _, it := range remoteCandidates {
		if r.matches(it, now) {
			remoteMatches = append(remoteMatches, it)
		}
	}

	if len(remoteMatches) >= 1 {
		var localMatches []*items.Item
		for _, it := range allLocal {
			if r.matches(it, now) {
				localMatches = append(localMatches, it)
			}
		}

		if len(localMatches) >= 2 {
			sort.Slice(localMatches, func(i, j int) bool {
				return localMatches[i].CreatedAt.Before(localMatches[j].CreatedAt)
			})
			winner := localMatches[0]
			var toDelete []*items.Item
			for _, dup := range localMatches[1:] {
				dup.Deleted = true
				dup.SetDirty(true, false, now)
				toDelete = append(toDelete, dup)
			}
			r.bound = winner
			r.createInFlight = false
			if triggerSync != nil {
				triggerSync(toDelete)
			}
			if r.ResolutionCallback != nil {
				r.ResolutionCallback(winner)
			}
			return
		}

		if len(localMatches) == 1 && r.bound == nil {
			r.bound = localMatches[0]
			r.createInFlight = false
			if r.ResolutionCallback != nil {
				r.ResolutionCallback(r.bound)
			}
		}
		return
	}

	if r.bound == nil && !r.createInFlight && r.CreateBlock != nil {
		r.createInFlight = true
		r.CreateBlock(func(created *items.Item) {
			r.bound = created
			r.createInFlight = false
			if r.ResolutionCallback != nil {
				r.ResolutionCallback(created)
			}
		})
	}
}

// Bound returns the currently bound singleton instance, if any.
func (r *Resolver) Bound() (*items.Item, bool) {
	return r.bound, r.bound != nil
}
