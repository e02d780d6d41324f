package syncengine

import (
	"context"

	"github.com/noteforge/core/store"
)

// DefaultBulkLoadChunkSize is the page size the bulk-load algorithm reads
// local storage in (§5 Concurrency & Resource Model): large local
// databases are paged in rather than loaded in one pass, yielding
// cooperatively between pages.
const DefaultBulkLoadChunkSize = 100

// LoadLocal runs the bulk-load algorithm (§5): page through Persistence in
// chunkSize batches, mapping each into the store as SourceLocalRetrieved
// and yielding between pages so a single large database doesn't block the
// caller's event loop for one long stretch. It also restores the last
// persisted sync_token/cursor_token so the next Sync call resumes instead
// of re-pulling the full history. Emits local-data-loaded once complete.
func (e *Engine) LoadLocal(ctx context.Context, chunkSize int) error {
	if e.persist == nil {
		return nil
	}
	if chunkSize <= 0 {
		chunkSize = DefaultBulkLoadChunkSize
	}

	syncToken, cursorToken, err := e.persist.LoadTokens(ctx)
	if err != nil {
		return err
	}
	e.syncToken, e.cursorToken = syncToken, cursorToken

	offset := 0
	total := 0
	for {
		chunk, err := e.persist.LoadChunk(ctx, offset, chunkSize)
		if err != nil {
			return err
		}
		if len(chunk) == 0 {
			break
		}

		records := make([]store.Record, 0, len(chunk))
		for _, p := range chunk {
			records = append(records, store.Record{
				UUID: p.UUID, ContentType: p.ContentType, Content: p.Content, AppData: p.AppData,
				CreatedAt: p.CreatedAt, UpdatedAt: p.UpdatedAt, Deleted: p.Deleted,
				EncItemKey: p.EncItemKey, AuthHash: p.AuthHash,
			})
		}
		e.store.Map(records, store.SourceLocalRetrieved, nil)

		total += len(chunk)
		offset += len(chunk)
		if len(chunk) < chunkSize {
			break
		}
		e.sleep(e.reentryDelay) // cooperative yield between pages
	}

	e.emit(Event{Type: EventLocalDataLoaded, Payload: total})
	return nil
}
