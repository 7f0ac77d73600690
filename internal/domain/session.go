package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SessionMode selects which side of a card is shown first.
type SessionMode string

const (
	LearningMode SessionMode = "learning"
	TestMode     SessionMode = "test"
)

// ParseSessionMode accepts "learning", "test" or empty (learning).
func ParseSessionMode(s string) (SessionMode, error) {
	switch SessionMode(s) {
	case "", LearningMode:
		return LearningMode, nil
	case TestMode:
		return TestMode, nil
	}
	return "", fmt.Errorf("%w: unknown mode %q", ErrInvalidSession, s)
}

// Session is one sampled study run over a deck. The card order is fixed at
// creation; only the progress counters change.
type Session struct {
	ID              string
	DeckID          string
	Mode            SessionMode
	CardIDs         []string
	CreatedAt       time.Time
	CompletedAt     *time.Time
	TotalCards      int
	CompletedCards  int
	DurationSeconds *int64
}

// NewSession starts an active session over cardIDs in the given order.
func NewSession(deckID string, mode SessionMode, cardIDs []string, now time.Time) *Session {
	ids := append([]string(nil), cardIDs...)
	return &Session{
		ID:         uuid.NewString(),
		DeckID:     deckID,
		Mode:       mode,
		CardIDs:    ids,
		CreatedAt:  now,
		TotalCards: len(ids),
	}
}

// Completed reports whether the session has been finished.
func (s *Session) Completed() bool {
	return s.CompletedAt != nil
}

// ResumeIndex is the position in CardIDs at which studying continues.
func (s *Session) ResumeIndex() int {
	return min(max(s.CompletedCards, 0), len(s.CardIDs))
}

// Remaining returns the card IDs not yet reviewed in this session.
func (s *Session) Remaining() []string {
	return s.CardIDs[s.ResumeIndex():]
}

// Contains reports whether cardID was sampled into the session.
func (s *Session) Contains(cardID string) bool {
	for _, id := range s.CardIDs {
		if id == cardID {
			return true
		}
	}
	return false
}

// Advance records one reviewed card and completes the session when the
// last card is done.
func (s *Session) Advance(now time.Time, durationSeconds *int64) error {
	if s.Completed() {
		return fmt.Errorf("%w: %s", ErrSessionCompleted, s.ID)
	}
	s.CompletedCards = min(s.CompletedCards+1, s.TotalCards)
	if s.CompletedCards >= s.TotalCards {
		return s.Complete(now, durationSeconds)
	}
	return nil
}

// CompleteIfDone completes an active session when pending, the number of
// live cards not yet reviewed in it, is zero. Cards deleted after sampling
// can never be reviewed, so they must not hold a session open.
func (s *Session) CompleteIfDone(now time.Time, durationSeconds *int64, pending int) bool {
	if s.Completed() || pending > 0 {
		return false
	}
	return s.Complete(now, durationSeconds) == nil
}

// Progress counts one review against a session.
type Progress struct {
	SessionID       string
	At              time.Time
	DurationSeconds *int64
}

// Complete marks the session finished. A completed session is never reopened.
func (s *Session) Complete(now time.Time, durationSeconds *int64) error {
	if s.Completed() {
		return fmt.Errorf("%w: %s", ErrSessionCompleted, s.ID)
	}
	completedAt := now
	s.CompletedAt = &completedAt
	s.CompletedCards = s.TotalCards
	if durationSeconds != nil {
		d := *durationSeconds
		s.DurationSeconds = &d
	}
	return nil
}
