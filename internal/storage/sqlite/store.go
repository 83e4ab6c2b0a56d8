package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/relves/groupsync/internal/storage"
	"github.com/relves/groupsync/pkg/types"
	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaSQL string

var _ storage.Store = (*GroupStore)(nil)

// ErrNotFound indicates a missing group record.
var ErrNotFound = errors.New("not found")

// ErrInvalidGroupID indicates a group ID that cannot safely name a
// database path.
var ErrInvalidGroupID = errors.New("invalid group id")

// validateGroupID rejects IDs that could escape the data directory when
// joined into a filesystem path. Locally minted IDs are UUIDs; anything
// resembling a path segment is hostile input.
func validateGroupID(groupID types.GroupID) error {
	id := string(groupID)
	if id == "" || id == "." || strings.Contains(id, "..") || strings.ContainsAny(id, `/\`) {
		return ErrInvalidGroupID
	}
	return nil
}

// GroupStore persists one group's member events and key history in a
// per-group SQLite database.
type GroupStore struct {
	db      *sql.DB
	groupID types.GroupID
	dbPath  string
}

// OpenGroupStore opens (creating if needed) the database for a group.
func OpenGroupStore(basePath string, groupID types.GroupID) (*GroupStore, error) {
	if err := validateGroupID(groupID); err != nil {
		return nil, err
	}
	groupDir := filepath.Join(basePath, "groups", string(groupID))
	if err := os.MkdirAll(groupDir, 0755); err != nil {
		return nil, fmt.Errorf("create group directory: %w", err)
	}

	dbPath := filepath.Join(groupDir, "group.db")
	db, err := sql.Open("sqlite", dbPath+
		"?_pragma=journal_mode(WAL)"+
		"&_pragma=foreign_keys(ON)"+
		"&_pragma=busy_timeout(5000)"+ // Wait up to 5s on lock instead of returning SQLITE_BUSY immediately
		"&_pragma=synchronous(NORMAL)")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Limit connection pool - SQLite handles concurrent writes poorly
	db.SetMaxOpenConns(2)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return &GroupStore{
		db:      db,
		groupID: groupID,
		dbPath:  dbPath,
	}, nil
}

func (s *GroupStore) Close() error {
	return s.db.Close()
}

func (s *GroupStore) GroupID() types.GroupID {
	return s.groupID
}

func (s *GroupStore) DBPath() string {
	return s.dbPath
}

// CreateGroupRecord registers a group. Idempotent via INSERT OR IGNORE.
func (s *GroupStore) CreateGroupRecord(ctx context.Context, groupID types.GroupID, name string) error {
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO groups (group_id, name, created_at, updated_at)
		 VALUES (?, ?, ?, ?)`,
		string(groupID), name, now, now)
	return err
}

// GetGroupRecord returns a group's metadata, or ErrNotFound.
func (s *GroupStore) GetGroupRecord(ctx context.Context, groupID types.GroupID) (*storage.GroupRecord, error) {
	var record storage.GroupRecord
	var gid, createdAt, updatedAt string

	err := s.db.QueryRowContext(ctx,
		`SELECT group_id, name, current_key_version, created_at, updated_at
		 FROM groups WHERE group_id = ?`,
		string(groupID)).Scan(&gid, &record.Name, &record.CurrentKeyVersion, &createdAt, &updatedAt)

	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	record.GroupID = types.GroupID(gid)
	record.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	record.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &record, nil
}

// AppendEvents inserts events keyed by content ID, skipping IDs already
// present, and returns how many were newly inserted.
func (s *GroupStore) AppendEvents(ctx context.Context, groupID types.GroupID, events []types.MemberEvent) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR IGNORE INTO member_events
		 (event_id, group_id, member_id, type, timestamp, actor_id, payload)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	inserted := 0
	for _, ev := range events {
		payload, err := ev.Serialize()
		if err != nil {
			return inserted, fmt.Errorf("serialize event %s: %w", ev.ID, err)
		}
		res, err := stmt.ExecContext(ctx,
			ev.ID, string(groupID), ev.MemberID, string(ev.Type),
			ev.Timestamp.UTC().Format(time.RFC3339Nano), ev.ActorID, payload)
		if err != nil {
			return inserted, err
		}
		if n, err := res.RowsAffected(); err == nil && n > 0 {
			inserted++
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return inserted, nil
}

// ListEvents returns every stored event for the group in arrival order.
func (s *GroupStore) ListEvents(ctx context.Context, groupID types.GroupID) ([]types.MemberEvent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT payload FROM member_events WHERE group_id = ? ORDER BY rowid`,
		string(groupID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []types.MemberEvent
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var ev types.MemberEvent
		if err := ev.Deserialize(payload); err != nil {
			return nil, fmt.Errorf("deserialize event: %w", err)
		}
		events = append(events, ev)
	}

	return events, rows.Err()
}

// AppendGroupKey stores one key version and marks it current.
func (s *GroupStore) AppendGroupKey(ctx context.Context, groupID types.GroupID, key types.GroupKey) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO group_keys (group_id, version, key, rotated_at, rotated_by)
		 VALUES (?, ?, ?, ?, ?)`,
		string(groupID), key.Version, key.Key,
		key.RotatedAt.UTC().Format(time.RFC3339Nano), key.RotatedBy)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE groups SET current_key_version = ?, updated_at = ? WHERE group_id = ?`,
		key.Version, time.Now().UTC().Format(time.RFC3339), string(groupID))
	if err != nil {
		return err
	}

	return tx.Commit()
}

// GetGroupKeys returns the full key history, oldest version first.
func (s *GroupStore) GetGroupKeys(ctx context.Context, groupID types.GroupID) (types.GroupKeysPayload, error) {
	record, err := s.GetGroupRecord(ctx, groupID)
	if err != nil {
		return types.GroupKeysPayload{}, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT version, key, rotated_at, rotated_by
		 FROM group_keys WHERE group_id = ? ORDER BY version`,
		string(groupID))
	if err != nil {
		return types.GroupKeysPayload{}, err
	}
	defer rows.Close()

	payload := types.GroupKeysPayload{
		GroupID:           groupID,
		CurrentKeyVersion: record.CurrentKeyVersion,
	}
	for rows.Next() {
		var k types.GroupKey
		var rotatedAt string
		if err := rows.Scan(&k.Version, &k.Key, &rotatedAt, &k.RotatedBy); err != nil {
			return types.GroupKeysPayload{}, err
		}
		k.RotatedAt, _ = time.Parse(time.RFC3339Nano, rotatedAt)
		payload.Keys = append(payload.Keys, k)
	}

	return payload, rows.Err()
}

// ReplaceGroupKeys installs a received key history wholesale. Used by a
// joiner after verifying and decrypting a key package.
func (s *GroupStore) ReplaceGroupKeys(ctx context.Context, payload types.GroupKeysPayload) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM group_keys WHERE group_id = ?`, string(payload.GroupID)); err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO group_keys (group_id, version, key, rotated_at, rotated_by)
		 VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, k := range payload.Keys {
		if _, err := stmt.ExecContext(ctx,
			string(payload.GroupID), k.Version, k.Key,
			k.RotatedAt.UTC().Format(time.RFC3339Nano), k.RotatedBy); err != nil {
			return err
		}
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE groups SET current_key_version = ?, updated_at = ? WHERE group_id = ?`,
		payload.CurrentKeyVersion, time.Now().UTC().Format(time.RFC3339),
		string(payload.GroupID)); err != nil {
		return err
	}

	return tx.Commit()
}
