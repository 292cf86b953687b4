package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"
)

// batchLimit keeps IN (...) lists well below SQLite's variable limit
const batchLimit = 500

// FolderCache stores UID snapshots, the UID validity token and header blobs of one folder.
// Header blobs are opaque to the cache.
type FolderCache struct {
	db         *sqlx.DB
	accountKey string
	folder     string
	scope      string
	logger     *logrus.Entry
}

// Folder returns the cache for a folder of the account identified by accountKey (username@host)
func (c *Cache) Folder(accountKey, folder string) *FolderCache {
	return &FolderCache{
		db:         c.db,
		accountKey: accountKey,
		folder:     folder,
		logger: c.logger.WithFields(logrus.Fields{
			"cache_key": accountKey,
			"folder":    folder,
		}),
	}
}

// WithScope returns a view sharing headers and UID validity but keeping a separate UID snapshot
func (f *FolderCache) WithScope(scope string) *FolderCache {
	scoped := *f
	scoped.scope = scope
	scoped.logger = f.logger.WithField("scope", scope)
	return &scoped
}

// GetUIDValidity returns the cached UID validity token, or "" when none is cached
func (f *FolderCache) GetUIDValidity(ctx context.Context) (string, error) {
	var validity string
	err := f.db.GetContext(ctx, &validity,
		"SELECT uid_validity FROM folder_state WHERE account_key = ? AND folder = ?",
		f.accountKey, f.folder)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get uid validity: %w", err)
	}
	return validity, nil
}

// SetUIDValidity stores the UID validity token
func (f *FolderCache) SetUIDValidity(ctx context.Context, validity string) error {
	query := `
		INSERT INTO folder_state (account_key, folder, uid_validity, updated_at)
		VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(account_key, folder) DO UPDATE SET
			uid_validity = excluded.uid_validity,
			updated_at = CURRENT_TIMESTAMP
	`
	if _, err := f.db.ExecContext(ctx, query, f.accountKey, f.folder, validity); err != nil {
		return fmt.Errorf("failed to set uid validity: %w", err)
	}
	return nil
}

// GetUIDs returns the cached UID snapshot of this scope; ok is false when nothing is cached
func (f *FolderCache) GetUIDs(ctx context.Context) (uids []uint32, ok bool, err error) {
	var uidsJSON string
	err = f.db.GetContext(ctx, &uidsJSON,
		"SELECT uids FROM folder_uids WHERE account_key = ? AND folder = ? AND scope = ?",
		f.accountKey, f.folder, f.scope)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get uids: %w", err)
	}

	if err := json.Unmarshal([]byte(uidsJSON), &uids); err != nil {
		return nil, false, fmt.Errorf("failed to unmarshal uids: %w", err)
	}
	return uids, true, nil
}

// SetUIDs stores the UID snapshot of this scope
func (f *FolderCache) SetUIDs(ctx context.Context, uids []uint32) error {
	if uids == nil {
		uids = []uint32{}
	}
	uidsJSON, err := json.Marshal(uids)
	if err != nil {
		return fmt.Errorf("failed to marshal uids: %w", err)
	}

	query := `
		INSERT INTO folder_uids (account_key, folder, scope, uids, updated_at)
		VALUES (?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(account_key, folder, scope) DO UPDATE SET
			uids = excluded.uids,
			updated_at = CURRENT_TIMESTAMP
	`
	if _, err := f.db.ExecContext(ctx, query, f.accountKey, f.folder, f.scope, string(uidsJSON)); err != nil {
		return fmt.Errorf("failed to set uids: %w", err)
	}
	return nil
}

// GetHeaders returns the header blob for uid, or nil when it is not cached
func (f *FolderCache) GetHeaders(ctx context.Context, uid uint32) ([]byte, error) {
	var blob []byte
	err := f.db.GetContext(ctx, &blob,
		"SELECT headers FROM folder_headers WHERE account_key = ? AND folder = ? AND uid = ?",
		f.accountKey, f.folder, uid)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get headers: %w", err)
	}
	return blob, nil
}

// SetHeaders stores the header blob for uid
func (f *FolderCache) SetHeaders(ctx context.Context, uid uint32, blob []byte) error {
	return f.BatchSetHeaders(ctx, map[uint32][]byte{uid: blob})
}

// DeleteHeaders removes the header blob for uid
func (f *FolderCache) DeleteHeaders(ctx context.Context, uid uint32) error {
	return f.BatchDeleteHeaders(ctx, []uint32{uid})
}

type headerRow struct {
	UID     uint32 `db:"uid"`
	Headers []byte `db:"headers"`
}

// BatchGetHeaders returns the cached blobs for uids; misses are absent from the map
func (f *FolderCache) BatchGetHeaders(ctx context.Context, uids []uint32) (map[uint32][]byte, error) {
	found := make(map[uint32][]byte, len(uids))

	for _, chunk := range chunkUIDs(uids) {
		query, args, err := sqlx.In(
			"SELECT uid, headers FROM folder_headers WHERE account_key = ? AND folder = ? AND uid IN (?)",
			f.accountKey, f.folder, chunk)
		if err != nil {
			return nil, fmt.Errorf("failed to build headers query: %w", err)
		}

		var rows []headerRow
		if err := f.db.SelectContext(ctx, &rows, f.db.Rebind(query), args...); err != nil {
			return nil, fmt.Errorf("failed to get headers: %w", err)
		}
		for _, row := range rows {
			found[row.UID] = row.Headers
		}
	}

	return found, nil
}

// BatchSetHeaders stores many header blobs in one transaction
func (f *FolderCache) BatchSetHeaders(ctx context.Context, blobs map[uint32][]byte) error {
	if len(blobs) == 0 {
		return nil
	}

	tx, err := f.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PreparexContext(ctx, `
		INSERT INTO folder_headers (account_key, folder, uid, headers, cached_at)
		VALUES (?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(account_key, folder, uid) DO UPDATE SET
			headers = excluded.headers,
			cached_at = CURRENT_TIMESTAMP
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare headers insert: %w", err)
	}
	defer stmt.Close()

	for uid, blob := range blobs {
		if _, err := stmt.ExecContext(ctx, f.accountKey, f.folder, uid, blob); err != nil {
			return fmt.Errorf("failed to set headers for uid %d: %w", uid, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit headers: %w", err)
	}
	return nil
}

// BatchDeleteHeaders removes the header blobs of uids
func (f *FolderCache) BatchDeleteHeaders(ctx context.Context, uids []uint32) error {
	for _, chunk := range chunkUIDs(uids) {
		query, args, err := sqlx.In(
			"DELETE FROM folder_headers WHERE account_key = ? AND folder = ? AND uid IN (?)",
			f.accountKey, f.folder, chunk)
		if err != nil {
			return fmt.Errorf("failed to build headers delete: %w", err)
		}
		if _, err := f.db.ExecContext(ctx, f.db.Rebind(query), args...); err != nil {
			return fmt.Errorf("failed to delete headers: %w", err)
		}
	}
	return nil
}

// Bust deletes everything cached for the folder, across all scopes
func (f *FolderCache) Bust(ctx context.Context) error {
	tx, err := f.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	for _, table := range []string{"folder_state", "folder_uids", "folder_headers"} {
		query := fmt.Sprintf("DELETE FROM %s WHERE account_key = ? AND folder = ?", table)
		if _, err := tx.ExecContext(ctx, query, f.accountKey, f.folder); err != nil {
			return fmt.Errorf("failed to bust %s: %w", table, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit cache bust: %w", err)
	}

	f.logger.Info("Busted folder cache")
	return nil
}

func chunkUIDs(uids []uint32) [][]uint32 {
	var chunks [][]uint32
	for len(uids) > batchLimit {
		chunks = append(chunks, uids[:batchLimit])
		uids = uids[batchLimit:]
	}
	if len(uids) > 0 {
		chunks = append(chunks, uids)
	}
	return chunks
}
