package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/conorfennell/flashdeck/internal/domain"
)

const sessionColumns = `id, deck_id, mode, card_ids, created_at, completed_at, total_cards, completed_cards, duration_seconds`

func scanSession(row rowScanner) (domain.Session, error) {
	var (
		s           domain.Session
		completedAt sql.NullTime
		duration    sql.NullInt64
	)
	err := row.Scan(
		&s.ID,
		&s.DeckID,
		&s.Mode,
		jsonColumn{&s.CardIDs},
		&s.CreatedAt,
		&completedAt,
		&s.TotalCards,
		&s.CompletedCards,
		&duration,
	)
	if err != nil {
		return domain.Session{}, err
	}
	s.CreatedAt = s.CreatedAt.UTC()
	s.CompletedAt = timePtr(completedAt)
	if duration.Valid {
		d := duration.Int64
		s.DurationSeconds = &d
	}
	if s.CardIDs == nil {
		s.CardIDs = []string{}
	}
	return s, nil
}

func durationValue(d *int64) any {
	if d == nil {
		return nil
	}
	return *d
}

// CreateSession inserts a new session with its fixed card order.
func (db *DB) CreateSession(ctx context.Context, s *domain.Session) error {
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO sessions (`+sessionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		s.ID,
		s.DeckID,
		s.Mode,
		jsonColumn{s.CardIDs},
		s.CreatedAt.UTC(),
		nullableTime(s.CompletedAt),
		s.TotalCards,
		s.CompletedCards,
		durationValue(s.DurationSeconds),
	)
	if err != nil {
		return fmt.Errorf("failed to insert session %s: %w", s.ID, err)
	}
	return nil
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// GetSession retrieves a session by ID. It returns nil when it does not exist.
func (db *DB) GetSession(ctx context.Context, id string) (*domain.Session, error) {
	return getSession(ctx, db.conn, id)
}

func getSession(ctx context.Context, conn queryer, id string) (*domain.Session, error) {
	row := conn.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, id)
	s, err := scanSession(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Session not found
		}
		return nil, fmt.Errorf("failed to find session %s: %w", id, err)
	}
	return &s, nil
}

// CompleteSession marks a session finished. The session is read and written
// in one transaction so a concurrent review cannot be overwritten.
func (db *DB) CompleteSession(ctx context.Context, id string, now time.Time, durationSeconds *int64) (*domain.Session, error) {
	var session *domain.Session
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		s, err := getSession(ctx, tx, id)
		if err != nil {
			return err
		}
		if s == nil {
			return fmt.Errorf("%w: %s", domain.ErrSessionNotFound, id)
		}
		if err := s.Complete(now, durationSeconds); err != nil {
			return err
		}
		if err := updateSession(ctx, tx, s); err != nil {
			return err
		}
		session = s
		return nil
	})
	if err != nil {
		return nil, err
	}
	return session, nil
}

// advanceSession counts card as reviewed in the session named by p and
// completes the session once no live card is left unreviewed. It must run in
// the transaction that wrote the review log.
func advanceSession(ctx context.Context, tx *sql.Tx, cardID string, p *domain.Progress) (*domain.Session, error) {
	s, err := getSession(ctx, tx, p.SessionID)
	if err != nil {
		return nil, err
	}
	if s == nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrSessionNotFound, p.SessionID)
	}
	if !s.Contains(cardID) {
		return nil, fmt.Errorf("%w: card %s, session %s", domain.ErrCardNotInSession, cardID, s.ID)
	}
	if err := s.Advance(p.At, p.DurationSeconds); err != nil {
		return nil, err
	}
	if !s.Completed() {
		pending, err := pendingCards(ctx, tx, s)
		if err != nil {
			return nil, err
		}
		s.CompleteIfDone(p.At, p.DurationSeconds, pending)
	}
	if err := updateSession(ctx, tx, s); err != nil {
		return nil, err
	}
	return s, nil
}

// pendingCards counts the live cards of s without a review in s.
func pendingCards(ctx context.Context, conn queryer, s *domain.Session) (int, error) {
	if len(s.CardIDs) == 0 {
		return 0, nil
	}
	args := make([]any, 0, len(s.CardIDs)+1)
	for _, id := range s.CardIDs {
		args = append(args, id)
	}
	args = append(args, s.ID)
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(s.CardIDs)), ",")

	var n int
	err := conn.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM cards c
		WHERE c.id IN (`+placeholders+`) AND c.deleted_at IS NULL
		AND NOT EXISTS (SELECT 1 FROM review_logs l WHERE l.card_id = c.id AND l.session_id = ?)
	`, args...).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count pending cards of session %s: %w", s.ID, err)
	}
	return n, nil
}

// PendingCards counts the live cards of s that have not been reviewed in it.
func (db *DB) PendingCards(ctx context.Context, s *domain.Session) (int, error) {
	return pendingCards(ctx, db.conn, s)
}

func updateSession(ctx context.Context, conn execer, s *domain.Session) error {
	res, err := conn.ExecContext(ctx, `
		UPDATE sessions
		SET completed_cards = ?, completed_at = ?, duration_seconds = ?
		WHERE id = ?
	`, s.CompletedCards, nullableTime(s.CompletedAt), durationValue(s.DurationSeconds), s.ID)
	if err != nil {
		return fmt.Errorf("failed to update session %s: %w", s.ID, err)
	}
	return expectRow(res, domain.ErrSessionNotFound, s.ID)
}

// ListSessions returns the sessions of a deck, newest first.
func (db *DB) ListSessions(ctx context.Context, deckID string) ([]domain.Session, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE deck_id = ?`, deckID)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions of deck %s: %w", deckID, err)
	}
	defer rows.Close()

	var sessions []domain.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session row: %w", err)
		}
		sessions = append(sessions, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	// Stored timestamps are not reliably ordered as text, so sort here.
	sort.SliceStable(sessions, func(i, j int) bool {
		return sessions[i].CreatedAt.After(sessions[j].CreatedAt)
	})
	return sessions, nil
}

// LatestActiveSession returns the newest uncompleted session of a deck in
// the given mode, or nil when there is none.
func (db *DB) LatestActiveSession(ctx context.Context, deckID string, mode domain.SessionMode) (*domain.Session, error) {
	sessions, err := db.ListSessions(ctx, deckID)
	if err != nil {
		return nil, err
	}
	for i := range sessions {
		if sessions[i].Mode == mode && !sessions[i].Completed() {
			return &sessions[i], nil
		}
	}
	return nil, nil
}
