package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/conorfennell/flashdeck/internal/domain"
	"github.com/conorfennell/flashdeck/internal/fsrs"
)

func insertReviewLog(ctx context.Context, conn execer, l domain.ReviewLog) error {
	_, err := conn.ExecContext(ctx, `
		INSERT INTO review_logs (id, card_id, session_id, rating, state, reviewed_at, elapsed_days, scheduled_days)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		l.ID,
		l.CardID,
		l.SessionID,
		int(l.Rating),
		int(l.State),
		l.ReviewedAt.UTC(),
		l.ElapsedDays,
		l.ScheduledDays,
	)
	if err != nil {
		return fmt.Errorf("failed to insert review log for card %s: %w", l.CardID, err)
	}
	return nil
}

// ListReviewLogs returns every review of the given cards in insertion order.
func (db *DB) ListReviewLogs(ctx context.Context, cardIDs []string) ([]domain.ReviewLog, error) {
	if len(cardIDs) == 0 {
		return nil, nil
	}
	args := make([]any, len(cardIDs))
	for i, id := range cardIDs {
		args[i] = id
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(cardIDs)), ",")
	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, card_id, session_id, rating, state, reviewed_at, elapsed_days, scheduled_days
		FROM review_logs WHERE card_id IN (`+placeholders+`)
		ORDER BY rowid
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list review logs: %w", err)
	}
	defer rows.Close()

	var logs []domain.ReviewLog
	for rows.Next() {
		var (
			l             domain.ReviewLog
			rating, state int
		)
		if err := rows.Scan(&l.ID, &l.CardID, &l.SessionID, &rating, &state, &l.ReviewedAt, &l.ElapsedDays, &l.ScheduledDays); err != nil {
			return nil, fmt.Errorf("failed to scan review log row: %w", err)
		}
		l.Rating = fsrs.Rating(rating)
		l.State = fsrs.State(state)
		l.ReviewedAt = l.ReviewedAt.UTC()
		logs = append(logs, l)
	}
	return logs, rows.Err()
}
