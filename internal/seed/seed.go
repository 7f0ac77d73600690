package seed

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/conorfennell/flashdeck/internal/domain"
)

var demoWords = []domain.CardData{
	{Word: "hello", Translation: "你好"},
	{Word: "world", Translation: "世界"},
	{Word: "apple", Translation: "苹果"},
	{Word: "book", Translation: "书"},
	{Word: "water", Translation: "水"},
}

// Store is what seeding needs from persistence.
type Store interface {
	CountDecks(ctx context.Context) (int, error)
	CreateDeckWithCards(ctx context.Context, d domain.Deck, cards []domain.Card) error
}

// Guard makes sure the demo deck is created at most once per process.
type Guard struct {
	mu   sync.Mutex
	done bool
}

// EnsureDemoDeck creates a small "Demo" deck when the store has no decks.
// It reports whether a deck was created.
func EnsureDemoDeck(ctx context.Context, g *Guard, store Store, now time.Time) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.done {
		return false, nil
	}

	n, err := store.CountDecks(ctx)
	if err != nil {
		return false, err
	}
	if n > 0 {
		return false, nil
	}

	deck := domain.NewDeck("Demo", "English", now)
	cards := make([]domain.Card, len(demoWords))
	for i, data := range demoWords {
		cards[i] = domain.NewCard(deck.ID, domain.WordCard, data, now)
	}
	if err := store.CreateDeckWithCards(ctx, deck, cards); err != nil {
		return false, fmt.Errorf("failed to create demo deck: %w", err)
	}
	g.done = true
	return true, nil
}
