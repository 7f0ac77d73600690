package knol

import (
	"crypto/sha256"
	"fmt"
	"strings"

	"github.com/conorfennell/flashdeck/internal/domain"
)

// Normalize concatenates the card's type and content after cleaning each
// part. It trims whitespace, lowercases, and normalizes line endings for each
// field before joining them.
func Normalize(card domain.Card) string {
	normalizePart := func(part string) string {
		p := strings.ToLower(part)
		p = strings.ReplaceAll(p, "\r\n", "\n")
		p = strings.TrimSpace(p)
		return p
	}

	d := card.Data
	parts := []string{
		string(card.Type),
		d.Word,
		d.Sentence,
		d.Translation,
		d.Pronunciation,
		d.PartOfSpeech,
		d.Definition,
		d.ExampleSentence,
		d.Level,
	}
	for i, p := range parts {
		parts[i] = normalizePart(p)
	}

	// Fields are joined with a newline so that adjacent fields cannot run
	// together into the same string.
	return strings.Join(parts, "\n")
}

// Hash takes a card, normalizes it, and returns its SHA-256 hash as a hex string.
func Hash(card domain.Card) string {
	normalized := Normalize(card)
	hashBytes := sha256.Sum256([]byte(normalized))
	return fmt.Sprintf("%x", hashBytes)
}
