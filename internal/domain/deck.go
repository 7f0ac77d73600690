package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// DefaultCardsPerSession is used when a deck does not set its own limit.
const DefaultCardsPerSession = 30

// Deck groups cards studied together.
type Deck struct {
	ID              string
	Name            string `validate:"required,max=200"`
	Language        string `validate:"max=50"` // language used for playback, e.g. "English"
	CardsPerSession int    `validate:"gte=1,lte=500"`
	CreatedAt       time.Time
	UpdatedAt       time.Time
	DeletedAt       *time.Time
}

// NewDeck builds a deck with a fresh ID and default session size.
func NewDeck(name, language string, now time.Time) Deck {
	return Deck{
		ID:              uuid.NewString(),
		Name:            strings.TrimSpace(name),
		Language:        strings.TrimSpace(language),
		CardsPerSession: DefaultCardsPerSession,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

// Validate checks the user-editable fields.
func (d Deck) Validate() error {
	return validateStruct(ErrInvalidDeck, d)
}

// Deleted reports whether the deck was soft-deleted.
func (d Deck) Deleted() bool {
	return d.DeletedAt != nil
}

// SessionLimit is the number of cards a study session draws from this deck.
func (d Deck) SessionLimit() int {
	if d.CardsPerSession <= 0 {
		return DefaultCardsPerSession
	}
	return d.CardsPerSession
}
