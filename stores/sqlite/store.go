package sqlite

import (
	"context"
	"database/sql"
	"log"
	"time"

	"collab-space/core"

	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"
)

// sqliteStore implements core.SnapshotStore on a single snapshots table. Each
// Put replaces the whole blob in one statement, which keeps snapshot writes
// atomic from the reader's perspective.
type sqliteStore struct {
	db *sql.DB
}

// NewStore creates a new SQLite-based store.
func NewStore(dataSourceName string) *sqliteStore {
	db, err := sql.Open("sqlite", dataSourceName)
	if err != nil {
		log.Fatalf("failed to open sqlite database: %v", err)
	}

	tableStmt := `
	CREATE TABLE IF NOT EXISTS snapshots (
		id TEXT PRIMARY KEY,
		data BLOB NOT NULL,
		updated_at DATETIME NOT NULL
	);`
	if _, err = db.Exec(tableStmt); err != nil {
		log.Fatalf("failed to create snapshots table: %v", err)
	}

	return &sqliteStore{db}
}

func (s *sqliteStore) Get(ctx context.Context, id string) ([]byte, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, "SELECT data FROM snapshots WHERE id = ?", id).Scan(&data)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, core.ErrSnapshotNotFound
		}
		logrus.WithField("document_id", id).WithError(err).Error("Failed to read snapshot")
		return nil, err
	}
	return data, nil
}

func (s *sqliteStore) Put(ctx context.Context, id string, data []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO snapshots (id, data, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`,
		id, data, time.Now())
	if err != nil {
		logrus.WithField("document_id", id).WithError(err).Error("Failed to write snapshot")
		return err
	}
	logrus.WithFields(logrus.Fields{
		"document_id": id,
		"data_length": len(data),
	}).Debug("Snapshot written")
	return nil
}

func (s *sqliteStore) Delete(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM snapshots WHERE id = ?", id)
	return err
}

func (s *sqliteStore) List(ctx context.Context) ([]core.SnapshotInfo, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id, updated_at FROM snapshots")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var infos []core.SnapshotInfo
	for rows.Next() {
		var info core.SnapshotInfo
		if err := rows.Scan(&info.ID, &info.LastModified); err != nil {
			return nil, err
		}
		infos = append(infos, info)
	}
	return infos, rows.Err()
}
