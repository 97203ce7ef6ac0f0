package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Play is one completed or abandoned playback of a catalog item.
type Play struct {
	ID        int64
	ItemID    string
	Title     string
	Artist    string
	Album     string
	StartedAt time.Time
	Played    time.Duration
	Completed bool
}

// Store persists playback history in SQLite.
type Store struct {
	db *sql.DB
}

// NewStore opens or creates the history database at dbPath.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA busy_timeout = 10000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA journal_mode = WAL",
		"PRAGMA temp_store = MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	schema := `
		CREATE TABLE IF NOT EXISTS plays (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			item_id TEXT NOT NULL,
			title TEXT NOT NULL,
			artist TEXT NOT NULL,
			album TEXT,
			started_at INTEGER NOT NULL,
			played_ms INTEGER NOT NULL DEFAULT 0,
			completed BOOLEAN DEFAULT 0
		);

		CREATE INDEX IF NOT EXISTS idx_started_at ON plays(started_at);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Add records the start of a playback and returns its row id.
func (s *Store) Add(ctx context.Context, play Play) (int64, error) {
	query := `
		INSERT INTO plays (item_id, title, artist, album, started_at)
		VALUES (?, ?, ?, ?, ?)
	`

	result, err := s.db.ExecContext(ctx, query,
		play.ItemID,
		play.Title,
		play.Artist,
		play.Album,
		play.StartedAt.Unix(),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert play: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get insert id: %w", err)
	}
	return id, nil
}

// Finish records how the playback ended.
func (s *Store) Finish(ctx context.Context, id int64, played time.Duration, completed bool) error {
	query := `
		UPDATE plays
		SET played_ms = ?, completed = ?
		WHERE id = ?
	`

	result, err := s.db.ExecContext(ctx, query, played.Milliseconds(), completed, id)
	if err != nil {
		return fmt.Errorf("failed to finish play: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("play with id %d not found", id)
	}
	return nil
}

// Recent returns the most recent plays, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Play, error) {
	query := `
		SELECT id, item_id, title, artist, COALESCE(album, ''), started_at, played_ms, completed
		FROM plays
		ORDER BY started_at DESC, id DESC
	`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query plays: %w", err)
	}
	defer rows.Close()

	var plays []Play
	for rows.Next() {
		var p Play
		var startedUnix, playedMS int64

		if err := rows.Scan(
			&p.ID,
			&p.ItemID,
			&p.Title,
			&p.Artist,
			&p.Album,
			&startedUnix,
			&playedMS,
			&p.Completed,
		); err != nil {
			return nil, fmt.Errorf("failed to scan play: %w", err)
		}

		p.StartedAt = time.Unix(startedUnix, 0)
		p.Played = time.Duration(playedMS) * time.Millisecond
		plays = append(plays, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating plays: %w", err)
	}
	return plays, nil
}

// Cleanup removes plays older than maxAge and returns how many rows
// were deleted.
func (s *Store) Cleanup(ctx context.Context, maxAge time.Duration) (int64, error) {
	cutoff := time.Now().Add(-maxAge).Unix()

	result, err := s.db.ExecContext(ctx, "DELETE FROM plays WHERE started_at < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup old plays: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return deleted, nil
}

// Count returns the number of recorded plays.
func (s *Store) Count(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM plays").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count plays: %w", err)
	}
	return count, nil
}
