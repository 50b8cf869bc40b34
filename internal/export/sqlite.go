package export

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteSink persists export events to a local SQLite database, adapted
// from the teacher's auth store: single-writer pool, WAL journal mode, and
// a schema migrated on open.
type SQLiteSink struct {
	db *sql.DB
}

// NewSQLiteSink opens (creating if necessary) a SQLite database at dbPath
// and ensures its schema exists.
func NewSQLiteSink(dbPath string) (*SQLiteSink, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open export db: %w", err)
	}
	// SQLite only supports one writer at a time; limit the pool to 1
	// connection to avoid SQLITE_BUSY under concurrent finalize callbacks.
	db.SetMaxOpenConns(1)

	s := &SQLiteSink{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate export db: %w", err)
	}
	return s, nil
}

func (s *SQLiteSink) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS raw_captions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			slot_index INTEGER NOT NULL,
			text TEXT NOT NULL,
			video_timestamp_ms INTEGER NOT NULL,
			received_at DATETIME NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_raw_slot ON raw_captions(slot_index);
		CREATE TABLE IF NOT EXISTS fused_captions (
			id TEXT PRIMARY KEY,
			text TEXT NOT NULL,
			slot_index INTEGER NOT NULL,
			overlap_count INTEGER NOT NULL,
			video_timestamp_ms INTEGER NOT NULL,
			created_at DATETIME NOT NULL
		);
		CREATE TABLE IF NOT EXISTS admin_actions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			action TEXT NOT NULL,
			detail TEXT,
			at DATETIME NOT NULL
		);
	`)
	return err
}

func (s *SQLiteSink) RawCaption(slotIndex int, text string, videoTimestamp int64, at time.Time) {
	_, err := s.db.Exec(
		"INSERT INTO raw_captions (slot_index, text, video_timestamp_ms, received_at) VALUES (?, ?, ?, ?)",
		slotIndex, text, videoTimestamp, at.Format(time.RFC3339Nano))
	if err != nil {
		slog.Error("export: insert raw caption", "error", err)
	}
}

func (s *SQLiteSink) FusedCaption(id, text string, slotIndex, overlapCount int, videoTimestamp int64, at time.Time) {
	_, err := s.db.Exec(
		"INSERT OR REPLACE INTO fused_captions (id, text, slot_index, overlap_count, video_timestamp_ms, created_at) VALUES (?, ?, ?, ?, ?, ?)",
		id, text, slotIndex, overlapCount, videoTimestamp, at.Format(time.RFC3339Nano))
	if err != nil {
		slog.Error("export: insert fused caption", "error", err)
	}
}

func (s *SQLiteSink) AdminAction(action, detail string, at time.Time) {
	_, err := s.db.Exec(
		"INSERT INTO admin_actions (action, detail, at) VALUES (?, ?, ?)",
		action, detail, at.Format(time.RFC3339Nano))
	if err != nil {
		slog.Error("export: insert admin action", "error", err)
	}
}

func (s *SQLiteSink) Close() error {
	return s.db.Close()
}
