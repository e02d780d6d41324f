// Package sqlite is the reference, non-authoritative local-persistence
// adapter (§2): a write-through cache of the item graph, never the source
// of truth for conflict resolution, which always happens server-side.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/noteforge/core/internal/dbx"
	"github.com/noteforge/core/internal/filex"
	"github.com/noteforge/core/internal/persistence/sqlite/migrations"
	"github.com/noteforge/core/syncengine"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"
)

// Store implements syncengine.Persistence over a sqlite database.
type Store struct {
	db dbx.DBTX
	raw *sql.DB
}

// Open opens (creating if absent) the sqlite database at dsn and runs
// pending migrations.
func Open(ctx context.Context, dsn string) (*Store, error) {
	if dsn != ":memory:" {
		if err := filex.EnsureParentDir(dsn); err != nil {
			return nil, fmt.Errorf("prepare database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := runMigrations(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db, raw: db}, nil
}

func runMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}
	if err := goose.UpContext(ctx, db, "."); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	if s.raw == nil {
		return nil
	}
	return s.raw.Close()
}

// SaveItems upserts a batch of items (§4.5 step 6 / offline step 3).
func (s *Store) SaveItems(ctx context.Context, items []syncengine.PersistedItem) error {
	if len(items) == 0 {
		return nil
	}
	return dbx.WithTx(ctx, s.raw, nil, func(ctx context.Context, tx dbx.DBTX) error {
		for _, it := range items {
			contentJSON, err := json.Marshal(it.Content)
			if err != nil {
				return fmt.Errorf("marshal content for %s: %w", it.UUID, err)
			}
			appDataJSON, err := json.Marshal(it.AppData)
			if err != nil {
				return fmt.Errorf("marshal appData for %s: %w", it.UUID, err)
			}
			_, err = tx.ExecContext(ctx, `
				INSERT INTO items (uuid, content_type, content, app_data, enc_item_key, auth_hash, auth_params, created_at, updated_at, deleted, dirty)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
				ON CONFLICT(uuid) DO UPDATE SET
					content_type = excluded.content_type,
					content      = excluded.content,
					app_data     = excluded.app_data,
					enc_item_key = excluded.enc_item_key,
					auth_hash    = excluded.auth_hash,
					auth_params  = excluded.auth_params,
					created_at   = excluded.created_at,
					updated_at   = excluded.updated_at,
					deleted      = excluded.deleted,
					dirty        = excluded.dirty
			`, it.UUID, it.ContentType, string(contentJSON), string(appDataJSON), it.EncItemKey, it.AuthHash, it.AuthParams,
				it.CreatedAt.UTC().Format(time.RFC3339Nano), it.UpdatedAt.UTC().Format(time.RFC3339Nano),
				boolToInt(it.Deleted), boolToInt(it.Dirty))
			if err != nil {
				return fmt.Errorf("upsert item %s: %w", it.UUID, err)
			}
		}
		return nil
	})
}

// SaveTokens persists the current sync_token/cursor_token pair.
func (s *Store) SaveTokens(ctx context.Context, syncToken, cursorToken *string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sync_state (id, sync_token, cursor_token) VALUES (1, ?, ?)
		ON CONFLICT(id) DO UPDATE SET sync_token = excluded.sync_token, cursor_token = excluded.cursor_token
	`, nullableString(syncToken), nullableString(cursorToken))
	if err != nil {
		return fmt.Errorf("save sync tokens: %w", err)
	}
	return nil
}

// LoadTokens returns the last persisted tokens, both nil if never synced.
func (s *Store) LoadTokens(ctx context.Context) (*string, *string, error) {
	row := s.db.QueryRowContext(ctx, `SELECT sync_token, cursor_token FROM sync_state WHERE id = 1`)
	var syncToken, cursorToken sql.NullString
	if err := row.Scan(&syncToken, &cursorToken); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil, nil
		}
		return nil, nil, fmt.Errorf("load sync tokens: %w", err)
	}
	return fromNullString(syncToken), fromNullString(cursorToken), nil
}

// LoadChunk returns up to limit rows ordered by uuid, for the bulk-load
// chunking algorithm (§5).
func (s *Store) LoadChunk(ctx context.Context, offset, limit int) ([]syncengine.PersistedItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT uuid, content_type, content, app_data, enc_item_key, auth_hash, auth_params, created_at, updated_at, deleted, dirty
		FROM items ORDER BY uuid LIMIT ? OFFSET ?
	`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("load item chunk: %w", err)
	}
	defer rows.Close()

	var out []syncengine.PersistedItem
	for rows.Next() {
		var it syncengine.PersistedItem
		var contentJSON, appDataJSON, createdAt, updatedAt string
		var deletedInt, dirtyInt int
		if err := rows.Scan(&it.UUID, &it.ContentType, &contentJSON, &appDataJSON, &it.EncItemKey, &it.AuthHash, &it.AuthParams,
			&createdAt, &updatedAt, &deletedInt, &dirtyInt); err != nil {
			return nil, fmt.Errorf("scan item row: %w", err)
		}
		if err := json.Unmarshal([]byte(contentJSON), &it.Content); err != nil {
			return nil, fmt.Errorf("unmarshal content for %s: %w", it.UUID, err)
		}
		if err := json.Unmarshal([]byte(appDataJSON), &it.AppData); err != nil {
			return nil, fmt.Errorf("unmarshal appData for %s: %w", it.UUID, err)
		}
		it.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		it.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
		it.Deleted = deletedInt != 0
		it.Dirty = dirtyInt != 0
		out = append(out, it)
	}
	return out, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullableString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func fromNullString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	v := ns.String
	return &v
}
