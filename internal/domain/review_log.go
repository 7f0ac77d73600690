package domain

import (
	"time"

	"github.com/google/uuid"

	"github.com/conorfennell/flashdeck/internal/fsrs"
)

// ReviewLog records a single review event for a card. Logs are append-only.
type ReviewLog struct {
	ID            string
	CardID        string
	SessionID     string // empty outside a session
	Rating        fsrs.Rating
	State         fsrs.State // state before the review
	ReviewedAt    time.Time
	ElapsedDays   int
	ScheduledDays int
}

// NewReviewLog attaches a scheduler log entry to a card.
func NewReviewLog(cardID, sessionID string, entry fsrs.ReviewLog) ReviewLog {
	return ReviewLog{
		ID:            uuid.NewString(),
		CardID:        cardID,
		SessionID:     sessionID,
		Rating:        entry.Rating,
		State:         entry.State,
		ReviewedAt:    entry.ReviewedAt,
		ElapsedDays:   entry.ElapsedDays,
		ScheduledDays: entry.ScheduledDays,
	}
}
