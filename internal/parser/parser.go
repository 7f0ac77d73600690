package parser

import (
	"bufio"
	"io"
	"os"
	"strings"

	"github.com/conorfennell/flashdeck/internal/domain"
)

type field int

const (
	seeking field = iota
	readingWord
	readingSentence
	readingTranslation
	readingPronunciation
	readingPartOfSpeech
	readingDefinition
	readingExample
	readingLevel
)

// prefixes maps each line prefix to the field it starts. W: and S: also
// start a new card.
var prefixes = []struct {
	prefix string
	field  field
}{
	{"W:", readingWord},
	{"S:", readingSentence},
	{"T:", readingTranslation},
	{"P:", readingPronunciation},
	{"K:", readingPartOfSpeech},
	{"D:", readingDefinition},
	{"E:", readingExample},
	{"L:", readingLevel},
}

func matchPrefix(line string) (field, string, bool) {
	for _, p := range prefixes {
		if strings.HasPrefix(line, p.prefix) {
			return p.field, strings.TrimPrefix(line[len(p.prefix):], " "), true
		}
	}
	return seeking, "", false
}

// ParseFile reads a file from the given path and extracts all cards.
func ParseFile(path string) ([]domain.Card, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	return Parse(file)
}

// Parse reads from an io.Reader and extracts all cards. Only Type and Data
// are set on the returned cards; blocks without a word or sentence are
// dropped.
func Parse(r io.Reader) ([]domain.Card, error) {
	scanner := bufio.NewScanner(r)
	var cards []domain.Card
	var currentCard domain.Card
	var currentBlock []string
	currentState := seeking

	flushBlock := func() {
		if len(currentBlock) == 0 {
			return
		}
		content := strings.TrimSpace(strings.Join(currentBlock, "\n"))
		d := &currentCard.Data
		switch currentState {
		case readingWord:
			d.Word = content
		case readingSentence:
			d.Sentence = content
		case readingTranslation:
			d.Translation = content
		case readingPronunciation:
			d.Pronunciation = content
		case readingPartOfSpeech:
			d.PartOfSpeech = content
		case readingDefinition:
			d.Definition = content
		case readingExample:
			d.ExampleSentence = content
		case readingLevel:
			d.Level = strings.ToUpper(content)
		}
		currentBlock = nil
	}

	finishCard := func() {
		flushBlock()
		if currentCard.Front() != "" {
			cards = append(cards, currentCard)
		}
		currentCard = domain.Card{}
		currentState = seeking
	}

	for scanner.Scan() {
		line := scanner.Text()

		if strings.TrimSpace(line) == "---" {
			finishCard()
			continue
		}

		next, content, ok := matchPrefix(line)
		if !ok {
			if currentState != seeking {
				currentBlock = append(currentBlock, line)
			}
			continue
		}

		if next == readingWord || next == readingSentence {
			finishCard() // A new word or sentence always starts a new card
			currentCard.Type = domain.WordCard
			if next == readingSentence {
				currentCard.Type = domain.SentenceCard
			}
		} else {
			flushBlock()
		}
		currentState = next
		currentBlock = append(currentBlock, content)
	}

	finishCard() // Finish the very last card in the file

	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return cards, nil
}
