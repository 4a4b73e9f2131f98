package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/Indrakargaurav/codeweave/core"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"
)

type sqliteStore struct {
	db *sql.DB
}

// NewStore creates a SQLite-backed room metadata store.
func NewStore(dataSourceName string) *sqliteStore {
	db, err := sql.Open("sqlite", dataSourceName)
	if err != nil {
		log.Fatalf("failed to open sqlite database: %v", err)
	}

	roomTableStmt := `
	CREATE TABLE IF NOT EXISTS rooms (
		id TEXT PRIMARY KEY,
		owner_id TEXT NOT NULL,
		active INTEGER NOT NULL DEFAULT 1,
		storage_key TEXT NOT NULL DEFAULT '',
		file_count INTEGER NOT NULL DEFAULT 0,
		total_size_kb REAL NOT NULL DEFAULT 0,
		file_types TEXT NOT NULL DEFAULT '[]',
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_rooms_owner ON rooms(owner_id);`
	if _, err = db.Exec(roomTableStmt); err != nil {
		log.Fatalf("failed to create rooms table: %v", err)
	}

	return &sqliteStore{db}
}

func (s *sqliteStore) CreateRoom(ctx context.Context, ownerID string) (*core.Room, error) {
	now := time.Now()
	rm := &core.Room{
		ID:        uuid.NewString(),
		OwnerID:   ownerID,
		Active:    true,
		Metadata:  core.RoomMetadata{FileTypes: []string{}},
		CreatedAt: now,
		UpdatedAt: now,
	}

	_, err := s.db.ExecContext(ctx,
		"INSERT INTO rooms (id, owner_id, active, created_at, updated_at) VALUES (?, ?, 1, ?, ?)",
		rm.ID, ownerID, now, now)
	if err != nil {
		logrus.WithError(err).WithField("owner", ownerID).Error("Failed to create room")
		return nil, err
	}
	logrus.WithFields(logrus.Fields{"room": rm.ID, "owner": ownerID}).Info("room created")
	return rm, nil
}

func (s *sqliteStore) GetRoom(ctx context.Context, roomID string) (*core.Room, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT id, owner_id, active, storage_key, file_count, total_size_kb, file_types, created_at, updated_at FROM rooms WHERE id = ?",
		roomID)
	rm, err := scanRoom(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("room %s: %w", roomID, core.ErrRoomNotFound)
		}
		logrus.WithError(err).WithField("room", roomID).Error("Failed to retrieve room")
		return nil, err
	}
	return rm, nil
}

func (s *sqliteStore) ListByOwner(ctx context.Context, ownerID string) ([]*core.Room, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, owner_id, active, storage_key, file_count, total_size_kb, file_types, created_at, updated_at FROM rooms WHERE owner_id = ? ORDER BY created_at DESC",
		ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*core.Room
	for rows.Next() {
		rm, err := scanRoom(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rm)
	}
	return out, rows.Err()
}

func (s *sqliteStore) Touch(ctx context.Context, roomID string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, "UPDATE rooms SET updated_at = ? WHERE id = ?", at, roomID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("room %s: %w", roomID, core.ErrRoomNotFound)
	}
	return nil
}

// SetInactive is the conditional close: the WHERE clause guards on active so
// only one of two racing shutdowns can flip the record.
func (s *sqliteStore) SetInactive(ctx context.Context, roomID, storageKey string, meta core.RoomMetadata, at time.Time) error {
	types, err := json.Marshal(meta.FileTypes)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		"UPDATE rooms SET active = 0, storage_key = ?, file_count = ?, total_size_kb = ?, file_types = ?, updated_at = ? WHERE id = ? AND active = 1",
		storageKey, meta.FileCount, meta.TotalSizeKB, string(types), at, roomID)
	if err != nil {
		logrus.WithError(err).WithField("room", roomID).Error("Failed to close room")
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("room %s not active: %w", roomID, core.ErrRoomNotFound)
	}
	logrus.WithFields(logrus.Fields{"room": roomID, "storage_key": storageKey}).Info("room marked inactive")
	return nil
}

func (s *sqliteStore) DeleteRoom(ctx context.Context, roomID string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM rooms WHERE id = ?", roomID)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRoom(row rowScanner) (*core.Room, error) {
	var rm core.Room
	var active int
	var types string
	if err := row.Scan(&rm.ID, &rm.OwnerID, &active, &rm.StorageKey, &rm.Metadata.FileCount,
		&rm.Metadata.TotalSizeKB, &types, &rm.CreatedAt, &rm.UpdatedAt); err != nil {
		return nil, err
	}
	rm.Active = active == 1
	if err := json.Unmarshal([]byte(types), &rm.Metadata.FileTypes); err != nil {
		rm.Metadata.FileTypes = []string{}
	}
	return &rm, nil
}
