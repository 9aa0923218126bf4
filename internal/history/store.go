// Package history persists recognized tracks.
package history

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const (
	// ListLimit caps how many tracks List returns and how many rows are kept.
	ListLimit = 200

	// duplicate suppression window: same track within the most recent
	// dedupWindow entries, re-recognized inside dedupSeconds, is dropped.
	dedupWindow  = 12
	dedupSeconds = 180
)

// Track is one recognized song as stored in history.
type Track struct {
	ID            int64   `json:"id"`
	Title         string  `json:"title"`
	Artist        *string `json:"artist,omitempty"`
	ArtworkURL    *string `json:"artworkUrl,omitempty"`
	PrimaryLink   *string `json:"primaryLink,omitempty"`
	SecondaryLink *string `json:"secondaryLink,omitempty"`
	RecognizedAt  int64   `json:"recognizedAt"` // unix seconds
	SourceTitle   *string `json:"sourceTitle,omitempty"`
	SourceArtist  *string `json:"sourceArtist,omitempty"`
}

// Store is a SQLite-backed history of recognized tracks.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the history database at path. Use
// ":memory:" for an ephemeral store.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping history database: %w", err)
	}

	s := &Store{db: db}
	if err := s.createTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create history tables: %w", err)
	}
	return s, nil
}

// Close releases the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) createTables() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS tracks (
			id             INTEGER PRIMARY KEY AUTOINCREMENT,
			title          TEXT NOT NULL,
			artist         TEXT,
			artwork_url    TEXT,
			primary_link   TEXT,
			secondary_link TEXT,
			recognized_at  INTEGER NOT NULL,
			source_title   TEXT,
			source_artist  TEXT
		);
		CREATE INDEX IF NOT EXISTS idx_tracks_recognized_at ON tracks(recognized_at DESC);
	`)
	return err
}

// Append stores a track unless it duplicates a recent entry: same
// title+artist seen within the last dedupWindow entries no more than
// dedupSeconds ago. Duplicates are dropped silently. Older rows beyond
// ListLimit are pruned.
func (s *Store) Append(t Track) error {
	if t.RecognizedAt == 0 {
		t.RecognizedAt = time.Now().Unix()
	}

	recent, err := s.list(dedupWindow)
	if err != nil {
		return err
	}
	for _, prev := range recent {
		if isDuplicate(prev, t) {
			return nil
		}
	}

	_, err = s.db.Exec(`
		INSERT INTO tracks (title, artist, artwork_url, primary_link, secondary_link, recognized_at, source_title, source_artist)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		t.Title, t.Artist, t.ArtworkURL, t.PrimaryLink, t.SecondaryLink,
		t.RecognizedAt, t.SourceTitle, t.SourceArtist)
	if err != nil {
		return fmt.Errorf("failed to insert track: %w", err)
	}

	_, err = s.db.Exec(`
		DELETE FROM tracks WHERE id NOT IN (
			SELECT id FROM tracks ORDER BY recognized_at DESC, id DESC LIMIT ?
		)`, ListLimit)
	if err != nil {
		return fmt.Errorf("failed to prune history: %w", err)
	}
	return nil
}

// List returns stored tracks, newest first, capped at ListLimit.
func (s *Store) List() ([]Track, error) {
	return s.list(ListLimit)
}

func (s *Store) list(limit int) ([]Track, error) {
	rows, err := s.db.Query(`
		SELECT id, title, artist, artwork_url, primary_link, secondary_link, recognized_at, source_title, source_artist
		FROM tracks ORDER BY recognized_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list history: %w", err)
	}
	defer rows.Close()

	var tracks []Track
	for rows.Next() {
		var t Track
		if err := rows.Scan(&t.ID, &t.Title, &t.Artist, &t.ArtworkURL, &t.PrimaryLink,
			&t.SecondaryLink, &t.RecognizedAt, &t.SourceTitle, &t.SourceArtist); err != nil {
			return nil, fmt.Errorf("failed to scan track: %w", err)
		}
		tracks = append(tracks, t)
	}
	return tracks, rows.Err()
}

// Clear removes every stored track.
func (s *Store) Clear() error {
	if _, err := s.db.Exec(`DELETE FROM tracks`); err != nil {
		return fmt.Errorf("failed to clear history: %w", err)
	}
	return nil
}

func isDuplicate(prev, next Track) bool {
	if !strings.EqualFold(prev.Title, next.Title) {
		return false
	}
	if !equalPtr(prev.Artist, next.Artist) {
		return false
	}
	return prev.RecognizedAt+dedupSeconds >= next.RecognizedAt
}

func equalPtr(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
