//go:build sqlite

package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/joschabach/micropsi2-sub002/internal/model"
)

const DefaultStoreKind = "sqlite"

type SQLiteStore struct {
	path string

	mu sync.RWMutex
	db *sql.DB
}

func NewSQLiteStore(path string) *SQLiteStore {
	return &SQLiteStore{path: path}
}

func newSQLiteStore(path string) (Store, error) {
	return NewSQLiteStore(path), nil
}

// Driver names the database/sql driver this build links in.
func (s *SQLiteStore) Driver() string {
	return sqliteDriverName
}

func (s *SQLiteStore) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.path == "" {
		return errors.New("sqlite path is required")
	}
	if s.db != nil {
		return nil
	}

	db, err := sql.Open(sqliteDriverName, s.path)
	if err != nil {
		return err
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return err
	}

	if err := createTables(ctx, db); err != nil {
		_ = db.Close()
		return err
	}

	s.db = db
	return nil
}

func (s *SQLiteStore) SaveNet(ctx context.Context, record model.NetRecord) error {
	if err := checkVersion(record.VersionedRecord); err != nil {
		return err
	}
	db, err := s.getDB()
	if err != nil {
		return err
	}

	payload, err := EncodeNet(record)
	if err != nil {
		return err
	}

	summary := summarize(record)
	_, err = db.ExecContext(ctx, `
		INSERT INTO nets (uid, name, step, nodes, links, schema_version, codec_version, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(uid) DO UPDATE SET
			name = excluded.name,
			step = excluded.step,
			nodes = excluded.nodes,
			links = excluded.links,
			schema_version = excluded.schema_version,
			codec_version = excluded.codec_version,
			payload = excluded.payload
	`, summary.UID, summary.Name, summary.Step, summary.Nodes, summary.Links, record.SchemaVersion, record.CodecVersion, payload)
	return err
}

func (s *SQLiteStore) GetNet(ctx context.Context, uid string) (model.NetRecord, bool, error) {
	db, err := s.getDB()
	if err != nil {
		return model.NetRecord{}, false, err
	}

	var payload []byte
	err = db.QueryRowContext(ctx, `SELECT payload FROM nets WHERE uid = ?`, uid).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.NetRecord{}, false, nil
		}
		return model.NetRecord{}, false, err
	}

	record, err := DecodeNet(payload)
	if err != nil {
		return model.NetRecord{}, false, fmt.Errorf("decode net %s: %w", uid, err)
	}
	return record, true, nil
}

func (s *SQLiteStore) ListNets(ctx context.Context) ([]model.NetSummary, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, `SELECT uid, name, step, nodes, links FROM nets ORDER BY uid`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]model.NetSummary, 0)
	for rows.Next() {
		var summary model.NetSummary
		if err := rows.Scan(&summary.UID, &summary.Name, &summary.Step, &summary.Nodes, &summary.Links); err != nil {
			return nil, err
		}
		out = append(out, summary)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) DeleteNet(ctx context.Context, uid string) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, `DELETE FROM nets WHERE uid = ?`, uid)
	return err
}

func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func (s *SQLiteStore) getDB() (*sql.DB, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.db == nil {
		return nil, ErrNotInitialized
	}
	return s.db, nil
}

func createTables(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS nets (
			uid TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			step INTEGER NOT NULL,
			nodes INTEGER NOT NULL,
			links INTEGER NOT NULL,
			schema_version INTEGER NOT NULL,
			codec_version INTEGER NOT NULL,
			payload BLOB NOT NULL
		);
	`)
	return err
}
