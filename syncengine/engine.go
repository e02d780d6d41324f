// Package syncengine implements the sync engine state machine (§4.5):
// at-most-one-in-flight cycle discipline, cursor-paginated push/pull,
// conflict resolution (§4.6) and the watchdog/event surface named in §6.
package syncengine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/noteforge/core/clock"
	"github.com/noteforge/core/crypto"
	"github.com/noteforge/core/internal/common"
	"github.com/noteforge/core/internal/logging"
	"github.com/noteforge/core/items"
	"github.com/noteforge/core/store"
)

// KeysProvider returns the current user's derived key hierarchy, or
// ok=false when no keys are available (signed out, or deliberately
// working offline, §4.5 step 3).
type KeysProvider func() (keys *crypto.Keys, ok bool)

// Engine is the sync state machine. One Engine serves one account.
type Engine struct {
	store     *store.Store
	transport Transport
	persist   Persistence
	clk       clock.Clock
	logger    logging.Logger
	keys      KeysProvider

	protocolVersion crypto.Version
	authParams      crypto.AuthParams
	itemKeys        map[string]*crypto.ItemKey

	perRequestCap     int
	pageLimit         int
	watchdogThreshold time.Duration
	watchdogTick      time.Duration
	reentryDelay      time.Duration
	sleep             func(time.Duration)

	mu                 sync.Mutex
	inFlight           bool
	repeatOnCompletion bool
	locked             bool

	syncToken   *string
	cursorToken *string

	localErr error

	pendingAdditionalFields map[string]bool

	observers []EventObserver
}

// Config bundles Engine's construction-time parameters; zero-valued
// numeric fields fall back to the defaults in §4.5/§5.
type Config struct {
	ProtocolVersion   crypto.Version
	AuthParams        crypto.AuthParams
	PerRequestCap     int
	PageLimit         int
	WatchdogThreshold time.Duration
	WatchdogTick      time.Duration
	ReentryDelay      time.Duration
}

// New constructs an Engine. st, transport, clk and logger are required;
// persist and keys may be supplied via SetPersistence/SetKeysProvider if
// not known yet at construction time.
func New(st *store.Store, transport Transport, clk clock.Clock, logger logging.Logger, cfg Config) *Engine {
	e := &Engine{
		store:                   st,
		transport:               transport,
		clk:                     clk,
		logger:                  logger,
		protocolVersion:         cfg.ProtocolVersion,
		authParams:              cfg.AuthParams,
		itemKeys:                map[string]*crypto.ItemKey{},
		perRequestCap:           cfg.PerRequestCap,
		pageLimit:               cfg.PageLimit,
		watchdogThreshold:       cfg.WatchdogThreshold,
		watchdogTick:            cfg.WatchdogTick,
		reentryDelay:            cfg.ReentryDelay,
		sleep:                   time.Sleep,
		pendingAdditionalFields: map[string]bool{},
	}
	if e.perRequestCap == 0 {
		e.perRequestCap = 100
	}
	if e.pageLimit == 0 {
		e.pageLimit = 150
	}
	if e.watchdogThreshold == 0 {
		e.watchdogThreshold = 5 * time.Second
	}
	if e.watchdogTick == 0 {
		e.watchdogTick = 500 * time.Millisecond
	}
	if e.reentryDelay == 0 {
		e.reentryDelay = 10 * time.Millisecond
	}
	return e
}

// SetPersistence wires the local-persistence adapter.
func (e *Engine) SetPersistence(p Persistence) { e.persist = p }

// SetKeysProvider wires the current session's key supplier.
func (e *Engine) SetKeysProvider(kp KeysProvider) { e.keys = kp }

// SetSleep overrides the pagination reentry delay function; tests use a
// no-op to avoid real waits.
func (e *Engine) SetSleep(fn func(time.Duration)) { e.sleep = fn }

// LocalError returns the error from the most recent local-persistence
// failure, or nil if the last attempted local write succeeded. A local
// failure never aborts a sync cycle (§7) since the server round trip is
// independent; callers surface this separately, e.g. in a status display.
func (e *Engine) LocalError() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.localErr
}

func (e *Engine) setLocalError(err error) {
	e.mu.Lock()
	e.localErr = err
	e.mu.Unlock()
}

// Lock prevents any further sync cycle from starting, used during
// sign-out (§4.5, §7).
func (e *Engine) Lock() {
	e.mu.Lock()
	e.locked = true
	e.mu.Unlock()
}

// Unlock re-permits sync cycles.
func (e *Engine) Unlock() {
	e.mu.Lock()
	e.locked = false
	e.mu.Unlock()
}

// Sync runs one logical sync operation, enforcing the at-most-one-in-flight
// discipline (§4.5, §5): a call arriving while another is in flight sets
// repeatOnCompletion and returns immediately without error; the in-flight
// call reruns once it finishes.
func (e *Engine) Sync(ctx context.Context) error {
	e.mu.Lock()
	if e.locked {
		e.mu.Unlock()
		return common.ErrSyncLocked
	}
	if e.inFlight {
		e.repeatOnCompletion = true
		e.mu.Unlock()
		return nil
	}
	e.inFlight = true
	e.mu.Unlock()

	err := e.runGuarded(ctx)

	e.mu.Lock()
	e.inFlight = false
	repeat := e.repeatOnCompletion
	e.repeatOnCompletion = false
	e.mu.Unlock()

	if repeat {
		return e.Sync(ctx)
	}
	return err
}

// runGuarded wraps run with a recover so that an unexpected panic mid-cycle
// (a bug, not a transport or persistence failure) surfaces as
// sync-exception instead of crashing the caller (§7: "nothing is
// panic-worthy"). The store and tokens are left exactly where the cycle
// left them, same as any other error return.
func (e *Engine) runGuarded(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error(ctx, "sync cycle panicked", "panic", r)
			e.emit(Event{Type: EventSyncException, Payload: r})
			err = fmt.Errorf("sync cycle panicked: %v", r)
		}
	}()
	return e.run(ctx)
}

// run executes one full cycle, including however many request/response
// round trips pagination requires (§4.5 steps 1-12).
func (e *Engine) run(ctx context.Context) error {
	now := e.clk.Now()
	dirty := e.store.Dirty() // step 1

	keys, online := e.keys()
	if !online {
		return e.runOffline(ctx, dirty, now)
	}

	initialSync := e.syncToken == nil
	savedThisSession := map[string]bool{}
	var allRetrieved, allSaved, allUnsaved []*items.Item

	remaining := dirty
	for {
		batch := remaining
		needsMoreSync := false
		if len(batch) > e.perRequestCap {
			batch = remaining[:e.perRequestCap]
			remaining = remaining[e.perRequestCap:]
			needsMoreSync = true
		} else {
			remaining = nil
		}

		for _, it := range batch {
			it.SnapshotAndResetDirtyCount() // step 2
		}

		wireItems := make([]WireItem, 0, len(batch))
		for _, it := range batch {
			wi, err := e.encryptItem(it, keys, e.pendingAdditionalFields[it.UUID])
			if err != nil {
				e.logger.Error(ctx, "encrypt item failed, leaving dirty", "uuid", it.UUID, "error", err)
				it.SetDirty(true, true, now) // re-dirty: this round's reset must not silently drop it
				continue
			}
			delete(e.pendingAdditionalFields, it.UUID)
			wireItems = append(wireItems, wi)
		}

		if e.persist != nil { // step 6: local save before the network round trip
			if err := e.persist.SaveItems(ctx, persistedFromItems(batch)); err != nil {
				e.logger.Warn(ctx, "local save before sync failed", "error", err)
				e.setLocalError(err)
			} else {
				e.setLocalError(nil)
			}
		}

		req := SyncRequest{Items: wireItems, SyncToken: e.syncToken, CursorToken: e.cursorToken, Limit: e.pageLimit}
		resp, err := e.doWithWatchdog(ctx, req)
		if err != nil {
			if errors.Is(err, errTransportPanic) {
				e.emit(Event{Type: EventSyncException, Payload: err})
			} else {
				e.emit(Event{Type: EventSyncError, Payload: err})
				if errors.Is(err, common.ErrorUnauthorized) {
					e.emit(Event{Type: EventSessionInvalid})
				}
			}
			return err
		}

		// Conflicts must resolve before the retrieved_items mapping below,
		// since a sync_conflict duplicate needs to snapshot the item's
		// pre-overwrite content (§4.6).
		resolved := e.resolveConflicts(resp.Unsaved, keys)
		allUnsaved = append(allUnsaved, resolved...)

		var roundSaved []store.Record
		for _, wi := range resp.SavedItems {
			savedThisSession[wi.UUID] = true
			roundSaved = append(roundSaved, savedEchoRecord(wi))
		}
		savedRes := e.store.Map(roundSaved, store.SourceRemoteSaved, store.OmitFields("content", "appData", "auth_hash"))
		allSaved = append(allSaved, savedRes.Mapped...)

		var roundRetrieved []store.Record
		for _, wi := range resp.RetrievedItems {
			if savedThisSession[wi.UUID] { // step 8 dedup
				continue
			}
			roundRetrieved = append(roundRetrieved, e.decryptWireItem(wi, keys))
		}
		retrievedRes := e.store.Map(roundRetrieved, store.SourceRemoteRetrieved, nil)
		allRetrieved = append(allRetrieved, retrievedRes.Mapped...)

		for _, it := range batch { // step 9
			it.ClearDirtyIfUnchanged()
		}

		e.syncToken = &resp.SyncToken
		e.cursorToken = resp.CursorToken
		if e.persist != nil {
			if err := e.persist.SaveTokens(ctx, e.syncToken, e.cursorToken); err != nil {
				e.logger.Warn(ctx, "persisting sync tokens failed", "error", err)
				e.setLocalError(err)
			} else {
				e.setLocalError(nil)
			}
		}
		e.emit(Event{Type: EventUpdatedToken})

		if len(resp.RetrievedItems) >= 10 || len(resp.SavedItems) >= 10 || len(resp.Unsaved) >= 10 { // step 12
			e.emit(Event{Type: EventMajorDataChange})
		}

		if e.cursorToken != nil || needsMoreSync { // step 11: more pages to pull or push
			e.sleep(e.reentryDelay)
			continue
		}
		break
	}

	e.emit(Event{Type: EventSyncCompleted, Payload: SyncCompletedPayload{
		Retrieved:   allRetrieved,
		Saved:       allSaved,
		Unsaved:     allUnsaved,
		InitialSync: initialSync,
	}})
	return nil
}

// runOffline implements §4.5 step 3: stamp, save locally with the dirty
// flag suppressed, reap anything deleted, and report completion without
// ever touching the network.
func (e *Engine) runOffline(ctx context.Context, dirty []*items.Item, now time.Time) error {
	for _, it := range dirty {
		it.UpdatedAt = now
	}
	if e.persist != nil {
		persisted := persistedFromItems(dirty)
		for i := range persisted {
			persisted[i].Dirty = false
		}
		if err := e.persist.SaveItems(ctx, persisted); err != nil {
			e.logger.Warn(ctx, "offline local save failed", "error", err)
			e.setLocalError(err)
		} else {
			e.setLocalError(nil)
		}
	}
	for _, it := range dirty {
		if it.Deleted {
			e.store.MarkPendingRemoval(it.UUID)
		}
	}
	e.emit(Event{Type: EventSyncCompleted, Payload: SyncCompletedPayload{InitialSync: e.syncToken == nil}})
	return nil
}

// errTransportPanic tags an error built from a recovered panic inside the
// transport goroutine, so callers can route it to sync-exception instead
// of the ordinary sync:error path (§7).
var errTransportPanic = errors.New("transport panicked")

// doWithWatchdog issues the request, firing sync:taking-too-long once, as
// soon as it has run past watchdogThreshold, polled every watchdogTick
// (§4.5, §6).
func (e *Engine) doWithWatchdog(ctx context.Context, req SyncRequest) (SyncResponse, error) {
	type result struct {
		resp SyncResponse
		err  error
	}
	done := make(chan result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- result{err: fmt.Errorf("%w: %v", errTransportPanic, r)}
			}
		}()
		resp, err := e.transport.Sync(ctx, req)
		done <- result{resp, err}
	}()

	elapsed := time.Duration(0)
	fired := false
	ticker := time.NewTicker(e.watchdogTick)
	defer ticker.Stop()

	for {
		select {
		case r := <-done:
			return r.resp, r.err
		case <-ticker.C:
			elapsed += e.watchdogTick
			if elapsed >= e.watchdogThreshold && !fired {
				fired = true
				e.emit(Event{Type: EventTakingTooLong})
			}
		}
	}
}

func persistedFromItems(its []*items.Item) []PersistedItem {
	out := make([]PersistedItem, 0, len(its))
	for _, it := range its {
		out = append(out, PersistedItem{
			UUID:        it.UUID,
			ContentType: it.ContentType,
			Content:     map[string]any(it.Content),
			AppData:     it.AppData,
			EncItemKey:  it.EncItemKey,
			AuthHash:    it.AuthHash,
			AuthParams:  it.AuthParams,
			CreatedAt:   it.CreatedAt,
			UpdatedAt:   it.UpdatedAt,
			Deleted:     it.Deleted,
			Dirty:       it.Dirty,
		})
	}
	return out
}
