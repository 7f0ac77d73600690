package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/conorfennell/flashdeck/internal/domain"
)

const deckColumns = `id, name, language, cards_per_session, created_at, updated_at, deleted_at`

func scanDeck(row rowScanner) (domain.Deck, error) {
	var (
		d         domain.Deck
		deletedAt sql.NullTime
	)
	if err := row.Scan(&d.ID, &d.Name, &d.Language, &d.CardsPerSession, &d.CreatedAt, &d.UpdatedAt, &deletedAt); err != nil {
		return domain.Deck{}, err
	}
	d.CreatedAt = d.CreatedAt.UTC()
	d.UpdatedAt = d.UpdatedAt.UTC()
	d.DeletedAt = timePtr(deletedAt)
	return d, nil
}

// CreateDeck inserts a new deck.
func (db *DB) CreateDeck(ctx context.Context, d domain.Deck) error {
	return insertDeck(ctx, db.conn, d)
}

// CreateDeckWithCards inserts a deck and its cards in one transaction.
// Nothing is stored when any insert fails.
func (db *DB) CreateDeckWithCards(ctx context.Context, d domain.Deck, cards []domain.Card) error {
	return db.withTx(ctx, func(tx *sql.Tx) error {
		if err := insertDeck(ctx, tx, d); err != nil {
			return err
		}
		for _, c := range cards {
			if err := insertCard(ctx, tx, c); err != nil {
				return err
			}
		}
		return nil
	})
}

func insertDeck(ctx context.Context, conn execer, d domain.Deck) error {
	_, err := conn.ExecContext(ctx, `
		INSERT INTO decks (`+deckColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		d.ID,
		d.Name,
		d.Language,
		d.CardsPerSession,
		d.CreatedAt.UTC(),
		d.UpdatedAt.UTC(),
		nullableTime(d.DeletedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert deck %s: %w", d.ID, err)
	}
	return nil
}

// GetDeck retrieves a deck by ID, including soft-deleted ones.
// It returns nil when the deck does not exist.
func (db *DB) GetDeck(ctx context.Context, id string) (*domain.Deck, error) {
	row := db.conn.QueryRowContext(ctx, `SELECT `+deckColumns+` FROM decks WHERE id = ?`, id)
	d, err := scanDeck(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Deck not found
		}
		return nil, fmt.Errorf("failed to find deck %s: %w", id, err)
	}
	return &d, nil
}

// ListDecks returns all decks that are not deleted, ordered by name.
func (db *DB) ListDecks(ctx context.Context) ([]domain.Deck, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT `+deckColumns+`
		FROM decks WHERE deleted_at IS NULL
		ORDER BY name, id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list decks: %w", err)
	}
	defer rows.Close()

	var decks []domain.Deck
	for rows.Next() {
		d, err := scanDeck(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan deck row: %w", err)
		}
		decks = append(decks, d)
	}
	return decks, rows.Err()
}

// CountDecks counts the decks that are not deleted.
func (db *DB) CountDecks(ctx context.Context) (int, error) {
	var n int
	if err := db.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM decks WHERE deleted_at IS NULL`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count decks: %w", err)
	}
	return n, nil
}

// UpdateDeck stores the editable fields of d.
func (db *DB) UpdateDeck(ctx context.Context, d domain.Deck) error {
	res, err := db.conn.ExecContext(ctx, `
		UPDATE decks
		SET name = ?, language = ?, cards_per_session = ?, updated_at = ?
		WHERE id = ? AND deleted_at IS NULL
	`, d.Name, d.Language, d.CardsPerSession, d.UpdatedAt.UTC(), d.ID)
	if err != nil {
		return fmt.Errorf("failed to update deck %s: %w", d.ID, err)
	}
	return expectRow(res, domain.ErrDeckNotFound, d.ID)
}

// DeleteDeck soft-deletes a deck and its cards.
func (db *DB) DeleteDeck(ctx context.Context, id string, now time.Time) error {
	return db.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE decks SET deleted_at = ?, updated_at = ?
			WHERE id = ? AND deleted_at IS NULL
		`, now.UTC(), now.UTC(), id)
		if err != nil {
			return fmt.Errorf("failed to delete deck %s: %w", id, err)
		}
		if err := expectRow(res, domain.ErrDeckNotFound, id); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE cards SET deleted_at = ?, updated_at = ?
			WHERE deck_id = ? AND deleted_at IS NULL
		`, now.UTC(), now.UTC(), id); err != nil {
			return fmt.Errorf("failed to delete cards of deck %s: %w", id, err)
		}
		return nil
	})
}

// expectRow turns an update that touched no row into notFound.
func expectRow(res sql.Result, notFound error, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows for %s: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", notFound, id)
	}
	return nil
}
