package web

import (
	"strings"
	"time"

	"github.com/conorfennell/flashdeck/internal/domain"
	"github.com/conorfennell/flashdeck/internal/fsrs"
	"github.com/conorfennell/flashdeck/internal/storage"
	"github.com/conorfennell/flashdeck/internal/study"
	"github.com/conorfennell/flashdeck/internal/sync"
)

// Requests

type deckRequest struct {
	Name            string `json:"name" validate:"required,max=200"`
	Language        string `json:"language" validate:"max=50"`
	CardsPerSession int    `json:"cardsPerSession" validate:"gte=0,lte=500"`
}

type cardRequest struct {
	Type string          `json:"type" validate:"required,oneof=word sentence"`
	Data domain.CardData `json:"data"`
}

type sessionRequest struct {
	Mode  string `json:"mode" validate:"omitempty,oneof=learning test"`
	Limit int    `json:"limit" validate:"gte=0,lte=500"`
}

type completeRequest struct {
	DurationSeconds *int64 `json:"durationSeconds" validate:"omitempty,gte=0"`
}

type reviewRequest struct {
	Rating          int    `json:"rating"`
	SessionID       string `json:"sessionId"`
	DurationSeconds *int64 `json:"durationSeconds" validate:"omitempty,gte=0"`
}

type sourceRequest struct {
	DeckID string `json:"deckId" validate:"required"`
	Path   string `json:"path" validate:"required"`
	Type   string `json:"type" validate:"omitempty,oneof=local git"`
}

// Responses

type deckJSON struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	Language        string    `json:"language"`
	CardsPerSession int       `json:"cardsPerSession"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

func newDeckJSON(d domain.Deck) deckJSON {
	return deckJSON{
		ID:              d.ID,
		Name:            d.Name,
		Language:        d.Language,
		CardsPerSession: d.CardsPerSession,
		CreatedAt:       d.CreatedAt,
		UpdatedAt:       d.UpdatedAt,
	}
}

type memoryJSON struct {
	Due           time.Time  `json:"due"`
	Stability     float64    `json:"stability"`
	Difficulty    float64    `json:"difficulty"`
	ElapsedDays   int        `json:"elapsedDays"`
	ScheduledDays int        `json:"scheduledDays"`
	LearningStep  int        `json:"learningStep"`
	Reps          int        `json:"reps"`
	Lapses        int        `json:"lapses"`
	State         string     `json:"state"`
	LastReview    *time.Time `json:"lastReview"`
}

func newMemoryJSON(m fsrs.MemoryState) memoryJSON {
	return memoryJSON{
		Due:           m.Due,
		Stability:     m.Stability,
		Difficulty:    m.Difficulty,
		ElapsedDays:   m.ElapsedDays,
		ScheduledDays: m.ScheduledDays,
		LearningStep:  m.LearningStep,
		Reps:          m.Reps,
		Lapses:        m.Lapses,
		State:         strings.ToLower(m.State.String()),
		LastReview:    m.LastReview,
	}
}

type cardJSON struct {
	ID        string          `json:"id"`
	DeckID    string          `json:"deckId"`
	Type      domain.CardType `json:"type"`
	Data      domain.CardData `json:"data"`
	Hash      string          `json:"hash,omitempty"`
	SourceID  *int64          `json:"sourceId,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
	Version   int64           `json:"version"`
	Memory    memoryJSON      `json:"memory"`
}

func newCardJSON(c domain.Card) cardJSON {
	return cardJSON{
		ID:        c.ID,
		DeckID:    c.DeckID,
		Type:      c.Type,
		Data:      c.Data,
		Hash:      c.Hash,
		SourceID:  c.SourceID,
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
		Version:   c.Version,
		Memory:    newMemoryJSON(c.Memory),
	}
}

func newCardsJSON(cards []domain.Card) []cardJSON {
	out := make([]cardJSON, len(cards))
	for i, c := range cards {
		out[i] = newCardJSON(c)
	}
	return out
}

type sessionJSON struct {
	ID              string             `json:"id"`
	DeckID          string             `json:"deckId"`
	Mode            domain.SessionMode `json:"mode"`
	CardIDs         []string           `json:"cardIds"`
	CreatedAt       time.Time          `json:"createdAt"`
	CompletedAt     *time.Time         `json:"completedAt"`
	TotalCards      int                `json:"totalCards"`
	CompletedCards  int                `json:"completedCards"`
	DurationSeconds *int64             `json:"durationSeconds"`
}

func newSessionJSON(s *domain.Session) *sessionJSON {
	if s == nil {
		return nil
	}
	return &sessionJSON{
		ID:              s.ID,
		DeckID:          s.DeckID,
		Mode:            s.Mode,
		CardIDs:         s.CardIDs,
		CreatedAt:       s.CreatedAt,
		CompletedAt:     s.CompletedAt,
		TotalCards:      s.TotalCards,
		CompletedCards:  s.CompletedCards,
		DurationSeconds: s.DurationSeconds,
	}
}

type sessionViewJSON struct {
	Session  *sessionJSON `json:"session"`
	Cards    []cardJSON   `json:"cards"`
	Position int          `json:"position"`
}

func newSessionViewJSON(v *study.SessionView) sessionViewJSON {
	return sessionViewJSON{
		Session:  newSessionJSON(v.Session),
		Cards:    newCardsJSON(v.Cards),
		Position: v.Position,
	}
}

type reviewLogJSON struct {
	ID            string    `json:"id"`
	CardID        string    `json:"cardId"`
	SessionID     string    `json:"sessionId,omitempty"`
	Rating        int       `json:"rating"`
	State         string    `json:"state"`
	ReviewedAt    time.Time `json:"reviewedAt"`
	ElapsedDays   int       `json:"elapsedDays"`
	ScheduledDays int       `json:"scheduledDays"`
}

type reviewJSON struct {
	Card    cardJSON      `json:"card"`
	Log     reviewLogJSON `json:"log"`
	Session *sessionJSON  `json:"session"`
}

func newReviewJSON(r *study.ReviewResult) reviewJSON {
	return reviewJSON{
		Card: newCardJSON(r.Card),
		Log: reviewLogJSON{
			ID:            r.Log.ID,
			CardID:        r.Log.CardID,
			SessionID:     r.Log.SessionID,
			Rating:        int(r.Log.Rating),
			State:         strings.ToLower(r.Log.State.String()),
			ReviewedAt:    r.Log.ReviewedAt,
			ElapsedDays:   r.Log.ElapsedDays,
			ScheduledDays: r.Log.ScheduledDays,
		},
		Session: newSessionJSON(r.Session),
	}
}

type previewJSON struct {
	Card           cardJSON              `json:"card"`
	Retrievability float64               `json:"retrievability"`
	Outcomes       map[string]memoryJSON `json:"outcomes"`
}

func newPreviewJSON(p *study.CardPreview) previewJSON {
	out := previewJSON{
		Card:           newCardJSON(p.Card),
		Retrievability: p.Retrievability,
		Outcomes:       make(map[string]memoryJSON, len(p.Outcomes)),
	}
	for rating, m := range p.Outcomes {
		out.Outcomes[strings.ToLower(rating.String())] = newMemoryJSON(m)
	}
	return out
}

type statsJSON struct {
	DeckID     string `json:"deckId"`
	Total      int    `json:"total"`
	New        int    `json:"new"`
	Learning   int    `json:"learning"`
	Review     int    `json:"review"`
	Relearning int    `json:"relearning"`
	Due        int    `json:"due"`
}

type sourceJSON struct {
	ID          int64      `json:"id"`
	DeckID      string     `json:"deckId"`
	Path        string     `json:"path"`
	Type        string     `json:"type"`
	LastScanned *time.Time `json:"lastScanned"`
}

func newSourceJSON(src storage.Source) sourceJSON {
	out := sourceJSON{ID: src.ID, DeckID: src.DeckID, Path: src.Path, Type: src.Type}
	if src.LastScanned.Valid {
		t := src.LastScanned.Time.UTC()
		out.LastScanned = &t
	}
	return out
}

type syncJSON struct {
	Report  *sync.Report `json:"report"`
	Sources []sourceJSON `json:"sources"`
}
