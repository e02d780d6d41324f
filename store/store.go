package store

import (
	"github.com/noteforge/core/clock"
	"github.com/noteforge/core/internal/logging"
	"github.com/noteforge/core/items"
	"github.com/noteforge/core/scheduler"
)

// Observer receives a coherent batch of items mapped (or deleted) in a
// single mapping pass, tagged with the source that produced them. It is
// never called reentrantly during a mapping pass (§9).
type Observer func(batch []*items.Item, source Source)

// UUIDChangeObserver is notified when UUID alternation (§4.4) replaces an
// item's identity, so collaborators (e.g. the singleton resolver) can
// rebind their own bookkeeping.
type UUIDChangeObserver func(old, replacement *items.Item)

// MapResult is the outcome of a single Map call.
type MapResult struct {
	Mapped  []*items.Item // the batch handed to observers: items created, updated or removed (errorDecrypting items excluded)
	Deleted []*items.Item // items removed immediately (non-dirty deletes)
}

type missedRef struct {
	refUUID string
	from    *items.Item
}

// Store is the in-memory model store (§4.3).
type Store struct {
	clock     clock.Clock
	scheduler scheduler.Scheduler
	logger    logging.Logger

	byUUID map[string]*items.Item
	order  []string // insertion order of UUIDs

	missedReferences map[string]missedRef // keyed "refUUID:fromUUID"
	pendingRemoval   map[string]bool

	allowList map[string]bool // nil means no restriction

	schemas *items.SchemaRegistry

	observers           []Observer
	uuidChangeObservers []UUIDChangeObserver
}

// New constructs an empty store.
func New(c clock.Clock, sched scheduler.Scheduler, logger logging.Logger) *Store {
	return &Store{
		clock:            c,
		scheduler:        sched,
		logger:           logger,
		byUUID:           map[string]*items.Item{},
		missedReferences: map[string]missedRef{},
		pendingRemoval:   map[string]bool{},
	}
}

// SetAllowList restricts mapping to the given content types; pass nil to
// clear the restriction.
func (s *Store) SetAllowList(types []string) {
	if types == nil {
		s.allowList = nil
		return
	}
	al := make(map[string]bool, len(types))
	for _, t := range types {
		al[t] = true
	}
	s.allowList = al
}

// SetSchemaRegistry wires an optional JSON Schema validation pass into
// Map: after a successful decrypt, a decoded record's content is checked
// against any schema registered for its content_type. A registry left nil
// (the default) skips validation entirely; content_types with no schema
// registered always validate regardless.
func (s *Store) SetSchemaRegistry(r *items.SchemaRegistry) {
	s.schemas = r
}

// Observe registers an observer for future mapping batches.
func (s *Store) Observe(ob Observer) {
	s.observers = append(s.observers, ob)
}

// ObserveUUIDChange registers a UUID-alternation observer.
func (s *Store) ObserveUUIDChange(ob UUIDChangeObserver) {
	s.uuidChangeObservers = append(s.uuidChangeObservers, ob)
}

// Get looks an item up by UUID.
func (s *Store) Get(uuid string) (*items.Item, bool) {
	it, ok := s.byUUID[uuid]
	return it, ok
}

// All returns every item currently indexed, in insertion order. Items
// that are Deleted-and-dirty (awaiting reap on next sync ack, §4.3 step
// 6) are excluded, per "exclude from collection views".
func (s *Store) All() []*items.Item {
	out := make([]*items.Item, 0, len(s.order))
	for _, uuid := range s.order {
		it, ok := s.byUUID[uuid]
		if !ok {
			continue
		}
		if it.Deleted && it.Dirty {
			continue
		}
		out = append(out, it)
	}
	return out
}

// Dirty returns every item qualifying for a sync cycle (§4.5 step 1).
func (s *Store) Dirty() []*items.Item {
	var out []*items.Item
	for _, uuid := range s.order {
		it, ok := s.byUUID[uuid]
		if ok && it.Qualifies() {
			out = append(out, it)
		}
	}
	return out
}

// MarkPendingRemoval records uuid as recently, locally deleted-and-acked,
// so a late server echo of the same UUID cannot resurrect it (§3
// Lifecycle).
func (s *Store) MarkPendingRemoval(uuid string) {
	s.pendingRemoval[uuid] = true
}

func (s *Store) index(it *items.Item) {
	if _, exists := s.byUUID[it.UUID]; !exists {
		s.order = append(s.order, it.UUID)
	}
	s.byUUID[it.UUID] = it
}

func (s *Store) remove(uuid string) {
	delete(s.byUUID, uuid)
	for i, u := range s.order {
		if u == uuid {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

// Map runs the two-pass mapping algorithm (§4.3) over a batch of
// decrypted records.
func (s *Store) Map(records []Record, source Source, omitFields map[string]bool) MapResult {
	type pass2entry struct {
		item *items.Item
		refs []items.Reference
	}

	var notifyBatch []*items.Item
	var removed []*items.Item
	var pass2 []pass2entry

	for _, rec := range records {
		recOmit := omitFields
		if rec.ContentType == "" && rec.Content == nil && rec.UUID == "" && !rec.Deleted && !rec.ErrorDecrypting {
			continue // step 1: missing all of {content_type, content, uuid}
		}

		if s.pendingRemoval[rec.UUID] {
			delete(s.pendingRemoval, rec.UUID) // step 4: drop and un-list
			continue
		}

		if s.allowList != nil && !s.allowList[rec.ContentType] {
			continue // step 5
		}

		existing, had := s.byUUID[rec.UUID]
		var it *items.Item
		if had {
			it = existing
			update := map[string]any{
				"created_at":   rec.CreatedAt,
				"updated_at":   rec.UpdatedAt,
				"deleted":      rec.Deleted,
				"auth_hash":    rec.AuthHash,
				"enc_item_key": rec.EncItemKey,
			}
			if rec.Content != nil {
				update["content"] = rec.Content
			} else {
				recOmit = withOmit(recOmit, "content")
			}
			if rec.AppData != nil {
				update["appData"] = rec.AppData
			} else {
				recOmit = withOmit(recOmit, "appData")
			}
			it.UpdateFromJSON(update, recOmit)
		} else {
			appData := rec.AppData
			if appData == nil {
				appData = map[string]map[string]any{}
			}
			it = &items.Item{
				UUID:        rec.UUID,
				ContentType: rec.ContentType,
				Content:     items.Content(rec.Content),
				CreatedAt:   rec.CreatedAt,
				UpdatedAt:   rec.UpdatedAt,
				AppData:     appData,
				EncItemKey:  rec.EncItemKey,
				AuthHash:    rec.AuthHash,
			}
		}
		it.ErrorDecrypting = rec.ErrorDecrypting

		if rec.Deleted {
			it.Deleted = true
			if it.Dirty {
				s.index(it) // step 6: keep, reaped on next sync-ack
			} else {
				s.remove(it.UUID)
				removed = append(removed, it)
				if !it.ErrorDecrypting {
					notifyBatch = append(notifyBatch, it)
				}
				continue
			}
		} else {
			s.index(it)
		}

		if !it.ErrorDecrypting {
			notifyBatch = append(notifyBatch, it)
		}

		if rec.Content != nil {
			if s.schemas != nil && !it.ErrorDecrypting {
				if err := s.schemas.Validate(it); err != nil {
					s.logger.Warn(nil, "content schema validation failed", "uuid", it.UUID, "content_type", it.ContentType, "error", err)
				}
			}
			pass2 = append(pass2, pass2entry{item: it, refs: items.Content(rec.Content).References()})
		}
	}

	// Pass 2: resolve references.
	for _, e := range pass2 {
		for _, ref := range e.refs {
			target, ok := s.byUUID[ref.UUID]
			if ok {
				target.AddReferencingObject(e.item)
			} else {
				key := ref.UUID + ":" + e.item.UUID
				s.missedReferences[key] = missedRef{refUUID: ref.UUID, from: e.item}
			}
		}
	}
	for _, e := range pass2 {
		for key, mr := range s.missedReferences {
			if mr.refUUID == e.item.UUID {
				e.item.AddReferencingObject(mr.from)
				delete(s.missedReferences, key)
			}
		}
	}

	if len(notifyBatch) > 0 {
		s.scheduler.Schedule(func() {
			for _, ob := range s.observers {
				ob(notifyBatch, source)
			}
		})
	}

	return MapResult{Mapped: notifyBatch, Deleted: removed}
}

func withOmit(omit map[string]bool, field string) map[string]bool {
	out := make(map[string]bool, len(omit)+1)
	for k, v := range omit {
		out[k] = v
	}
	out[field] = true
	return out
}

// Insert indexes a fully-formed item that was built outside the normal
// Map path (e.g. a sync-conflict duplicate, §4.6), resolving its forward
// references against the pass-2 algorithm used by Map and notifying
// observers.
func (s *Store) Insert(it *items.Item, source Source) {
	s.index(it)
	for _, ref := range it.Content.References() {
		if target, ok := s.byUUID[ref.UUID]; ok {
			target.AddReferencingObject(it)
		} else {
			key := ref.UUID + ":" + it.UUID
			s.missedReferences[key] = missedRef{refUUID: ref.UUID, from: it}
		}
	}
	for key, mr := range s.missedReferences {
		if mr.refUUID == it.UUID {
			it.AddReferencingObject(mr.from)
			delete(s.missedReferences, key)
		}
	}
	s.scheduler.Schedule(func() {
		for _, ob := range s.observers {
			ob([]*items.Item{it}, source)
		}
	})
}

// AlternateUUID runs the "alternate UUID" procedure (§4.4) on x, returning
// the replacement item x'.
func (s *Store) AlternateUUID(x *items.Item) *items.Item {
	now := s.clock.Now()

	replacement := &items.Item{
		UUID:        items.NewUUID(),
		ContentType: x.ContentType,
		Content:     x.Content.Clone(), // step 1: clone content (carries references, step 2)
		AppData:     cloneAppData(x.AppData),
		CreatedAt:   x.CreatedAt,
		UpdatedAt:   x.UpdatedAt,
	}

	for _, ob := range s.uuidChangeObservers { // step 3
		ob(x, replacement)
	}

	for _, r := range x.ReferencingObjects() { // step 4
		r.RemoveItemAsRelationship(x, now)
		r.AddItemAsRelationship(replacement, now)
		replacement.AddReferencingObject(r)
	}

	x.Content = x.Content.SetReferences(nil) // step 5
	x.Deleted = true
	x.SetDirty(false, false, now)
	s.remove(x.UUID)
	s.scheduler.Schedule(func() {
		for _, ob := range s.observers {
			ob([]*items.Item{x}, SourceLocalRetrieved)
		}
	})

	s.index(replacement) // step 6
	replacement.SetDirty(true, false, now)

	return replacement
}

func cloneAppData(ad map[string]map[string]any) map[string]map[string]any {
	out := make(map[string]map[string]any, len(ad))
	for domain, kv := range ad {
		copyKV := make(map[string]any, len(kv))
		for k, v := range kv {
			copyKV[k] = v
		}
		out[domain] = copyKV
	}
	return out
}

// MissedReferenceCount exposes the deferred-reference table's size,
// primarily for tests asserting §8 property/scenario 6.
func (s *Store) MissedReferenceCount() int {
	return len(s.missedReferences)
}
