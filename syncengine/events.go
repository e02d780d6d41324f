package syncengine

import "github.com/noteforge/core/items"

// EventType names one of the events named in §6.
type EventType string

const (
	EventSyncCompleted   EventType = "sync:completed"
	EventTakingTooLong   EventType = "sync:taking-too-long"
	EventUpdatedToken    EventType = "sync:updated_token"
	EventSyncError       EventType = "sync:error"
	EventSessionInvalid  EventType = "sync-session-invalid"
	EventSyncException   EventType = "sync-exception"
	EventMajorDataChange EventType = "major-data-change"
	EventLocalDataLoaded EventType = "local-data-loaded"
)

// Event is published to every registered observer. Payload's concrete
// type depends on Type; see the *Payload types in this file.
type Event struct {
	Type    EventType
	Payload any
}

// EventObserver receives every event the engine emits, in emission order,
// never reentrantly with respect to the cycle that produced it.
type EventObserver func(Event)

// SyncCompletedPayload is Event.Payload for EventSyncCompleted.
type SyncCompletedPayload struct {
	Retrieved   []*items.Item
	Saved       []*items.Item
	Unsaved     []*items.Item
	InitialSync bool
}

// Observe registers an observer for every future event.
func (e *Engine) Observe(ob EventObserver) {
	e.observers = append(e.observers, ob)
}

func (e *Engine) emit(ev Event) {
	for _, ob := range e.observers {
		ob(ev)
	}
}
