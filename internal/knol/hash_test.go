package knol

import (
	"testing"

	"github.com/conorfennell/flashdeck/internal/domain"
)

func TestNormalize(t *testing.T) {
	card := domain.Card{
		Type: domain.SentenceCard,
		Data: domain.CardData{
			Sentence:    "  How ARE you? \r\n",
			Translation: "你好吗？",
			Level:       "A1",
		},
	}
	expected := "sentence\n\nhow are you?\n你好吗？\n\n\n\n\na1"
	normalized := Normalize(card)

	if normalized != expected {
		t.Errorf("Expected normalized string to be %q, but got %q", expected, normalized)
	}
}

func TestHash(t *testing.T) {
	t.Run("generates correct hash", func(t *testing.T) {
		card := domain.Card{
			Type: domain.WordCard,
			Data: domain.CardData{Word: "apple", Translation: "苹果"},
		}
		// Hash for "word\napple\n\n苹果\n\n\n\n\n"
		expectedHash := "b55198ef2251a6aaef31b96f8220f3da43843478ec83d13ffc7a1c0a194c9447"
		hash := Hash(card)

		if hash != expectedHash {
			t.Errorf("Expected hash '%s', but got '%s'", expectedHash, hash)
		}
	})

	t.Run("hash is deterministic", func(t *testing.T) {
		card1 := domain.Card{Type: domain.WordCard, Data: domain.CardData{Word: "Test"}}
		card2 := domain.Card{Type: domain.WordCard, Data: domain.CardData{Word: "Test"}}
		if Hash(card1) != Hash(card2) {
			t.Error("Expected hashes for identical cards to be the same")
		}
	})

	t.Run("normalization produces same hash", func(t *testing.T) {
		card1 := domain.Card{Type: domain.WordCard, Data: domain.CardData{Word: "  Water ", Translation: "水"}}
		card2 := domain.Card{Type: domain.WordCard, Data: domain.CardData{Word: "water", Translation: "水 \r\n"}}
		if Hash(card1) != Hash(card2) {
			t.Error("Expected hashes for cards differing only in case and whitespace to be the same")
		}
	})

	t.Run("fields do not run together", func(t *testing.T) {
		card1 := domain.Card{Type: domain.WordCard, Data: domain.CardData{Word: "ab", Translation: "c"}}
		card2 := domain.Card{Type: domain.WordCard, Data: domain.CardData{Word: "a", Translation: "bc"}}
		if Hash(card1) == Hash(card2) {
			t.Error("Expected different hashes for different field splits")
		}
	})

	t.Run("type is part of the hash", func(t *testing.T) {
		word := domain.Card{Type: domain.WordCard, Data: domain.CardData{Word: "hi"}}
		sentence := domain.Card{Type: domain.SentenceCard, Data: domain.CardData{Sentence: "hi"}}
		if Hash(word) == Hash(sentence) {
			t.Error("Expected a word and a sentence card to hash differently")
		}
	})
}
