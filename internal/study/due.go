package study

import (
	"time"

	"github.com/conorfennell/flashdeck/internal/domain"
)

// DueCards returns the cards that are not deleted and due at or before now.
// The input order is kept; callers decide the presentation order.
func DueCards(cards []domain.Card, now time.Time) []domain.Card {
	due := make([]domain.Card, 0, len(cards))
	for _, c := range cards {
		if c.Deleted() || c.Memory.Due.After(now) {
			continue
		}
		due = append(due, c)
	}
	return due
}
