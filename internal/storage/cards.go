package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/conorfennell/flashdeck/internal/domain"
	"github.com/conorfennell/flashdeck/internal/fsrs"
)

const cardColumns = `id, deck_id, type, data, hash, source_id, created_at, updated_at, deleted_at, version,
	due, stability, difficulty, elapsed_days, scheduled_days, learning_step, reps, lapses, state, last_review`

func scanCard(row rowScanner) (domain.Card, error) {
	var (
		c          domain.Card
		sourceID   sql.NullInt64
		deletedAt  sql.NullTime
		lastReview sql.NullTime
		state      int
	)
	err := row.Scan(
		&c.ID,
		&c.DeckID,
		&c.Type,
		jsonColumn{&c.Data},
		&c.Hash,
		&sourceID,
		&c.CreatedAt,
		&c.UpdatedAt,
		&deletedAt,
		&c.Version,
		&c.Memory.Due,
		&c.Memory.Stability,
		&c.Memory.Difficulty,
		&c.Memory.ElapsedDays,
		&c.Memory.ScheduledDays,
		&c.Memory.LearningStep,
		&c.Memory.Reps,
		&c.Memory.Lapses,
		&state,
		&lastReview,
	)
	if err != nil {
		return domain.Card{}, err
	}
	if sourceID.Valid {
		id := sourceID.Int64
		c.SourceID = &id
	}
	c.CreatedAt = c.CreatedAt.UTC()
	c.UpdatedAt = c.UpdatedAt.UTC()
	c.DeletedAt = timePtr(deletedAt)
	c.Memory.Due = c.Memory.Due.UTC()
	c.Memory.State = fsrs.State(state)
	c.Memory.LastReview = timePtr(lastReview)
	return c, nil
}

func collectCards(rows *sql.Rows) ([]domain.Card, error) {
	defer rows.Close()
	var cards []domain.Card
	for rows.Next() {
		c, err := scanCard(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan card row: %w", err)
		}
		cards = append(cards, c)
	}
	return cards, rows.Err()
}

func sourceIDValue(id *int64) any {
	if id == nil {
		return nil
	}
	return *id
}

// CreateCard inserts a card together with its memory state.
func (db *DB) CreateCard(ctx context.Context, c domain.Card) error {
	return insertCard(ctx, db.conn, c)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertCard(ctx context.Context, conn execer, c domain.Card) error {
	m := c.Memory
	_, err := conn.ExecContext(ctx, `
		INSERT INTO cards (`+cardColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		c.ID,
		c.DeckID,
		c.Type,
		jsonColumn{c.Data},
		c.Hash,
		sourceIDValue(c.SourceID),
		c.CreatedAt.UTC(),
		c.UpdatedAt.UTC(),
		nullableTime(c.DeletedAt),
		c.Version,
		m.Due.UTC(),
		m.Stability,
		m.Difficulty,
		m.ElapsedDays,
		m.ScheduledDays,
		m.LearningStep,
		m.Reps,
		m.Lapses,
		int(m.State),
		nullableTime(m.LastReview),
	)
	if err != nil {
		return fmt.Errorf("failed to insert card %s: %w", c.ID, err)
	}
	return nil
}

// GetCard retrieves a card by ID, including soft-deleted ones.
// It returns nil when the card does not exist.
func (db *DB) GetCard(ctx context.Context, id string) (*domain.Card, error) {
	row := db.conn.QueryRowContext(ctx, `SELECT `+cardColumns+` FROM cards WHERE id = ?`, id)
	c, err := scanCard(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Card not found
		}
		return nil, fmt.Errorf("failed to find card %s: %w", id, err)
	}
	return &c, nil
}

// GetCards retrieves the cards with the given IDs in no particular order.
// Unknown IDs are skipped.
func (db *DB) GetCards(ctx context.Context, ids []string) ([]domain.Card, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	rows, err := db.conn.QueryContext(ctx, `
		SELECT `+cardColumns+`
		FROM cards WHERE id IN (`+placeholders+`)
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get %d cards: %w", len(ids), err)
	}
	return collectCards(rows)
}

// ListCards returns the live cards of a deck in creation order.
func (db *DB) ListCards(ctx context.Context, deckID string) ([]domain.Card, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT `+cardColumns+`
		FROM cards WHERE deck_id = ? AND deleted_at IS NULL
		ORDER BY rowid
	`, deckID)
	if err != nil {
		return nil, fmt.Errorf("failed to list cards of deck %s: %w", deckID, err)
	}
	return collectCards(rows)
}

// GetCardsBySourceID retrieves the live cards imported from a source.
func (db *DB) GetCardsBySourceID(ctx context.Context, sourceID int64) ([]domain.Card, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT `+cardColumns+`
		FROM cards WHERE source_id = ? AND deleted_at IS NULL
	`, sourceID)
	if err != nil {
		return nil, fmt.Errorf("failed to get cards for source ID %d: %w", sourceID, err)
	}
	return collectCards(rows)
}

// UpdateCardContent stores new content for a card and bumps its version.
// The memory state is left alone.
func (db *DB) UpdateCardContent(ctx context.Context, c *domain.Card) error {
	res, err := db.conn.ExecContext(ctx, `
		UPDATE cards
		SET type = ?, data = ?, updated_at = ?, version = version + 1
		WHERE id = ? AND deleted_at IS NULL
	`, c.Type, jsonColumn{c.Data}, c.UpdatedAt.UTC(), c.ID)
	if err != nil {
		return fmt.Errorf("failed to update card %s: %w", c.ID, err)
	}
	if err := expectRow(res, domain.ErrCardNotFound, c.ID); err != nil {
		return err
	}
	c.Version++
	return nil
}

// DeleteCard soft-deletes a card. Its review history is kept.
func (db *DB) DeleteCard(ctx context.Context, id string, now time.Time) error {
	res, err := db.conn.ExecContext(ctx, `
		UPDATE cards SET deleted_at = ?, updated_at = ?, version = version + 1
		WHERE id = ? AND deleted_at IS NULL
	`, now.UTC(), now.UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to delete card %s: %w", id, err)
	}
	return expectRow(res, domain.ErrCardNotFound, id)
}

// ApplyReview persists the outcome of one review in a single transaction:
// the card's new memory state, the review log and, when progress is not nil,
// the session's progress. card.Version must hold the version that was read;
// when another writer bumped it first ErrCardConflict is returned and nothing
// is written. On success card.Version is incremented and the updated session,
// if any, is returned.
//
// The session is re-read inside the transaction, so reviews of different
// cards in one session never lose each other's progress.
func (db *DB) ApplyReview(ctx context.Context, card *domain.Card, log domain.ReviewLog, progress *domain.Progress) (*domain.Session, error) {
	var session *domain.Session
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		m := card.Memory
		res, err := tx.ExecContext(ctx, `
			UPDATE cards
			SET due = ?, stability = ?, difficulty = ?, elapsed_days = ?, scheduled_days = ?,
				learning_step = ?, reps = ?, lapses = ?, state = ?, last_review = ?,
				updated_at = ?, version = version + 1
			WHERE id = ? AND version = ? AND deleted_at IS NULL
		`,
			m.Due.UTC(),
			m.Stability,
			m.Difficulty,
			m.ElapsedDays,
			m.ScheduledDays,
			m.LearningStep,
			m.Reps,
			m.Lapses,
			int(m.State),
			nullableTime(m.LastReview),
			card.UpdatedAt.UTC(),
			card.ID,
			card.Version,
		)
		if err != nil {
			return fmt.Errorf("failed to update card state for %s: %w", card.ID, err)
		}
		if err := expectRow(res, domain.ErrCardConflict, card.ID); err != nil {
			return err
		}

		if err := insertReviewLog(ctx, tx, log); err != nil {
			return err
		}

		if progress != nil {
			session, err = advanceSession(ctx, tx, card.ID, progress)
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	card.Version++
	return session, nil
}
