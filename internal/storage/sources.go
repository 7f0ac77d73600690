package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/conorfennell/flashdeck/internal/domain"
)

// Source types.
const (
	SourceLocal = "local"
	SourceGit   = "git"
)

// Source represents a card source, either a local path or a Git URL,
// feeding one deck.
type Source struct {
	ID          int64
	DeckID      string
	Path        string
	Type        string
	LastScanned sql.NullTime
}

const sourceColumns = `id, deck_id, path, type, last_scanned`

func scanSource(row rowScanner) (Source, error) {
	var s Source
	err := row.Scan(&s.ID, &s.DeckID, &s.Path, &s.Type, &s.LastScanned)
	return s, err
}

// InsertSource inserts a new source and returns its ID.
func (db *DB) InsertSource(ctx context.Context, deckID, path, typ string) (int64, error) {
	res, err := db.conn.ExecContext(ctx, `
		INSERT INTO sources (deck_id, path, type)
		VALUES (?, ?, ?)
	`, deckID, path, typ)
	if err != nil {
		return 0, fmt.Errorf("failed to insert source %s: %w", path, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID for source %s: %w", path, err)
	}
	return id, nil
}

// FindSourceByPath retrieves a source by its path, or nil if it is unknown.
func (db *DB) FindSourceByPath(ctx context.Context, path string) (*Source, error) {
	row := db.conn.QueryRowContext(ctx, `SELECT `+sourceColumns+` FROM sources WHERE path = ?`, path)
	s, err := scanSource(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Source not found
		}
		return nil, fmt.Errorf("failed to find source by path %s: %w", path, err)
	}
	return &s, nil
}

// GetAllSources retrieves all stored sources.
func (db *DB) GetAllSources(ctx context.Context) ([]Source, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT `+sourceColumns+` FROM sources ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to get all sources: %w", err)
	}
	defer rows.Close()

	var sources []Source
	for rows.Next() {
		s, err := scanSource(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan source row: %w", err)
		}
		sources = append(sources, s)
	}
	return sources, rows.Err()
}

// DeleteSource removes a source. Cards imported from it stay in their deck
// and are detached from the source.
func (db *DB) DeleteSource(ctx context.Context, id int64) error {
	return db.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `UPDATE cards SET source_id = NULL WHERE source_id = ?`, id); err != nil {
			return fmt.Errorf("failed to detach cards of source %d: %w", id, err)
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM sources WHERE id = ?`, id)
		if err != nil {
			return fmt.Errorf("failed to delete source %d: %w", id, err)
		}
		return expectRow(res, domain.ErrSourceNotFound, fmt.Sprint(id))
	})
}

// UpdateSourceLastScanned updates the last_scanned timestamp for a source.
func (db *DB) UpdateSourceLastScanned(ctx context.Context, sourceID int64, now time.Time) error {
	_, err := db.conn.ExecContext(ctx, `
		UPDATE sources
		SET last_scanned = ?
		WHERE id = ?
	`, now.UTC(), sourceID)
	if err != nil {
		return fmt.Errorf("failed to update last scanned for source ID %d: %w", sourceID, err)
	}
	return nil
}
