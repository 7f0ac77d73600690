package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/conorfennell/flashdeck/internal/fsrs"
)

// CardType distinguishes vocabulary cards from whole-sentence cards.
type CardType string

const (
	WordCard     CardType = "word"
	SentenceCard CardType = "sentence"
)

// CardData is the content of a card. Word cards use Word and the optional
// detail fields; sentence cards use Sentence.
type CardData struct {
	Word            string `json:"word,omitempty" validate:"max=500"`
	Sentence        string `json:"sentence,omitempty" validate:"max=2000"`
	Translation     string `json:"translation" validate:"max=2000"`
	Pronunciation   string `json:"pronunciation,omitempty"`
	PartOfSpeech    string `json:"partOfSpeech,omitempty"`
	Definition      string `json:"definition,omitempty"`
	ExampleSentence string `json:"exampleSentence,omitempty"`
	Level           string `json:"level,omitempty" validate:"omitempty,oneof=A1 A2 B1 B2 C1 C2"`
}

// Card is a flashcard together with its scheduling state.
type Card struct {
	ID        string
	DeckID    string   `validate:"required"`
	Type      CardType `validate:"oneof=word sentence"`
	Data      CardData
	Hash      string // content hash for cards imported from a source
	SourceID  *int64
	CreatedAt time.Time
	UpdatedAt time.Time
	DeletedAt *time.Time
	Version   int64 // bumped on every state write
	Memory    fsrs.MemoryState
}

// NewCard builds a card with an empty memory state due at now.
func NewCard(deckID string, typ CardType, data CardData, now time.Time) Card {
	return Card{
		ID:        uuid.NewString(),
		DeckID:    deckID,
		Type:      typ,
		Data:      data.Normalized(),
		CreatedAt: now,
		UpdatedAt: now,
		Memory:    fsrs.NewMemoryState(now),
	}
}

// Validate checks the card type and content.
func (c Card) Validate() error {
	if err := validateStruct(ErrInvalidCard, c); err != nil {
		return err
	}
	if c.Front() == "" {
		return fmt.Errorf("%w: %s card has no front text", ErrInvalidCard, c.Type)
	}
	return nil
}

// Front is the text shown first in learning mode.
func (c Card) Front() string {
	if c.Type == SentenceCard {
		return c.Data.Sentence
	}
	return c.Data.Word
}

// Deleted reports whether the card was soft-deleted.
func (c Card) Deleted() bool {
	return c.DeletedAt != nil
}

// Normalized trims every field and upper-cases the level.
func (d CardData) Normalized() CardData {
	return CardData{
		Word:            strings.TrimSpace(d.Word),
		Sentence:        strings.TrimSpace(d.Sentence),
		Translation:     strings.TrimSpace(d.Translation),
		Pronunciation:   strings.TrimSpace(d.Pronunciation),
		PartOfSpeech:    strings.TrimSpace(d.PartOfSpeech),
		Definition:      strings.TrimSpace(d.Definition),
		ExampleSentence: strings.TrimSpace(d.ExampleSentence),
		Level:           strings.ToUpper(strings.TrimSpace(d.Level)),
	}
}
