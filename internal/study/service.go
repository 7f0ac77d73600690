package study

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/conorfennell/flashdeck/internal/domain"
	"github.com/conorfennell/flashdeck/internal/fsrs"
)

// ratingWindowGrace extends a completed session's window when matching
// review logs to it.
const ratingWindowGrace = 5 * time.Minute

// Store is the persistence the study service needs. Finders return nil and
// no error when the record does not exist. ApplyReview must count progress
// against the stored session in the same transaction as the review.
type Store interface {
	GetDeck(ctx context.Context, id string) (*domain.Deck, error)
	GetCard(ctx context.Context, id string) (*domain.Card, error)
	GetCards(ctx context.Context, ids []string) ([]domain.Card, error)
	ListCards(ctx context.Context, deckID string) ([]domain.Card, error)
	ApplyReview(ctx context.Context, card *domain.Card, log domain.ReviewLog, progress *domain.Progress) (*domain.Session, error)

	CreateSession(ctx context.Context, s *domain.Session) error
	GetSession(ctx context.Context, id string) (*domain.Session, error)
	CompleteSession(ctx context.Context, id string, now time.Time, durationSeconds *int64) (*domain.Session, error)
	PendingCards(ctx context.Context, s *domain.Session) (int, error)
	ListSessions(ctx context.Context, deckID string) ([]domain.Session, error)
	LatestActiveSession(ctx context.Context, deckID string, mode domain.SessionMode) (*domain.Session, error)

	ListReviewLogs(ctx context.Context, cardIDs []string) ([]domain.ReviewLog, error)
}

// Service runs reviews and study sessions on top of a Store.
type Service struct {
	store     Store
	scheduler *fsrs.Scheduler
	sampler   *Sampler
	log       *slog.Logger
	clock     func() time.Time
}

// NewService wires the store with a scheduler and sampler.
func NewService(store Store, scheduler *fsrs.Scheduler, sampler *Sampler, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:     store,
		scheduler: scheduler,
		sampler:   sampler,
		log:       logger,
		clock:     func() time.Time { return time.Now().UTC() },
	}
}

// ReviewInput is one rating given to a card, optionally inside a session.
type ReviewInput struct {
	CardID          string
	Rating          int
	SessionID       string
	DurationSeconds *int64 // elapsed study time, stored if the review completes the session
}

// ReviewResult is the persisted outcome of a review.
type ReviewResult struct {
	Card    domain.Card
	Log     domain.ReviewLog
	Session *domain.Session // nil for reviews outside a session
}

// RecordReview schedules the card for the given rating and persists the new
// state, the review log and the session progress as one unit.
func (s *Service) RecordReview(ctx context.Context, in ReviewInput) (*ReviewResult, error) {
	rating, err := fsrs.ParseRating(in.Rating)
	if err != nil {
		return nil, err
	}

	card, err := s.liveCard(ctx, in.CardID)
	if err != nil {
		return nil, err
	}

	now := s.clock()
	var progress *domain.Progress
	if in.SessionID != "" {
		session, err := s.getSession(ctx, in.SessionID)
		if err != nil {
			return nil, err
		}
		if !session.Contains(card.ID) {
			return nil, fmt.Errorf("%w: card %s, session %s", domain.ErrCardNotInSession, card.ID, session.ID)
		}
		if session.Completed() {
			return nil, fmt.Errorf("%w: %s", domain.ErrSessionCompleted, session.ID)
		}
		progress = &domain.Progress{SessionID: session.ID, At: now, DurationSeconds: in.DurationSeconds}
	}

	prev := card.Memory.State
	next, entry, err := s.scheduler.Schedule(card.Memory, rating, now)
	if err != nil {
		return nil, fmt.Errorf("failed to schedule card %s: %w", card.ID, err)
	}
	card.Memory = next
	card.UpdatedAt = now

	log := domain.NewReviewLog(card.ID, in.SessionID, entry)
	session, err := s.store.ApplyReview(ctx, card, log, progress)
	if err != nil {
		return nil, err
	}

	s.log.Debug("review recorded",
		"card_id", card.ID,
		"rating", rating.String(),
		"from", prev.String(),
		"to", next.State.String(),
		"due", next.Due,
		"session_id", in.SessionID,
	)
	return &ReviewResult{Card: *card, Log: log, Session: session}, nil
}

// SessionView is a session with its cards in study order. Position is the
// index in Cards at which studying continues.
type SessionView struct {
	Session  *domain.Session
	Cards    []domain.Card
	Position int
}

// DueCardsForSession resumes the newest active session of the deck in mode,
// or samples a new one from the cards due now. An active session whose cards
// were all reviewed or deleted is completed instead of resumed. A limit of
// zero or less uses the deck's own session size. When nothing is due no
// session is created and the view is empty.
func (s *Service) DueCardsForSession(ctx context.Context, deckID string, mode domain.SessionMode, limit int) (*SessionView, error) {
	deck, err := s.liveDeck(ctx, deckID)
	if err != nil {
		return nil, err
	}
	if mode == "" {
		mode = domain.LearningMode
	}

	active, err := s.store.LatestActiveSession(ctx, deck.ID, mode)
	if err != nil {
		return nil, err
	}
	if active != nil {
		view, err := s.view(ctx, active)
		if err != nil {
			return nil, err
		}
		done, err := s.settle(ctx, view)
		if err != nil {
			return nil, err
		}
		if !done {
			s.log.Debug("resuming session", "session_id", active.ID, "position", view.Position)
			return view, nil
		}
	}

	if limit <= 0 {
		limit = deck.SessionLimit()
	}
	now := s.clock()
	cards, err := s.store.ListCards(ctx, deck.ID)
	if err != nil {
		return nil, err
	}
	picked := s.sampler.BuildSession(DueCards(cards, now), limit)
	if len(picked) == 0 {
		return &SessionView{Cards: []domain.Card{}}, nil
	}

	ids := make([]string, len(picked))
	for i, c := range picked {
		ids[i] = c.ID
	}
	session := domain.NewSession(deck.ID, mode, ids, now)
	if err := s.store.CreateSession(ctx, session); err != nil {
		return nil, err
	}
	s.log.Info("session created", "session_id", session.ID, "deck_id", deck.ID, "mode", string(mode), "cards", len(ids))
	return &SessionView{Session: session, Cards: picked}, nil
}

// ResumeSession reopens a session by ID with its saved card order.
func (s *Service) ResumeSession(ctx context.Context, id string) (*SessionView, error) {
	session, err := s.getSession(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.view(ctx, session)
}

// SessionHistory lists the sessions of a deck, newest first.
func (s *Service) SessionHistory(ctx context.Context, deckID string) ([]domain.Session, error) {
	if _, err := s.liveDeck(ctx, deckID); err != nil {
		return nil, err
	}
	sessions, err := s.store.ListSessions(ctx, deckID)
	if err != nil {
		return nil, err
	}
	if sessions == nil {
		sessions = []domain.Session{}
	}
	return sessions, nil
}

// SessionRatings returns the latest rating of each card reviewed during a
// completed session. Reviews are matched by time, from the session start up
// to a short grace period after completion. Active sessions have no ratings.
func (s *Service) SessionRatings(ctx context.Context, id string) (map[string]fsrs.Rating, error) {
	session, err := s.getSession(ctx, id)
	if err != nil {
		return nil, err
	}
	ratings := make(map[string]fsrs.Rating)
	if !session.Completed() || len(session.CardIDs) == 0 {
		return ratings, nil
	}

	logs, err := s.store.ListReviewLogs(ctx, session.CardIDs)
	if err != nil {
		return nil, err
	}
	end := session.CompletedAt.Add(ratingWindowGrace)
	latest := make(map[string]time.Time)
	for _, l := range logs {
		if l.ReviewedAt.Before(session.CreatedAt) || l.ReviewedAt.After(end) {
			continue
		}
		if at, ok := latest[l.CardID]; ok && !l.ReviewedAt.After(at) {
			continue
		}
		latest[l.CardID] = l.ReviewedAt
		ratings[l.CardID] = l.Rating
	}
	return ratings, nil
}

// CompleteSession marks a session finished, e.g. when the user stops early.
func (s *Service) CompleteSession(ctx context.Context, id string, durationSeconds *int64) (*domain.Session, error) {
	session, err := s.store.CompleteSession(ctx, id, s.clock(), durationSeconds)
	if err != nil {
		return nil, err
	}
	s.log.Info("session completed", "session_id", session.ID, "cards", session.TotalCards)
	return session, nil
}

// settle completes the session of view when none of its live cards is left
// to study, either by position or by review. It reports whether it did.
func (s *Service) settle(ctx context.Context, view *SessionView) (bool, error) {
	if view.Position < len(view.Cards) {
		pending, err := s.store.PendingCards(ctx, view.Session)
		if err != nil {
			return false, err
		}
		if pending > 0 {
			return false, nil
		}
	}
	if _, err := s.store.CompleteSession(ctx, view.Session.ID, s.clock(), nil); err != nil {
		if errors.Is(err, domain.ErrSessionCompleted) {
			return true, nil
		}
		return false, err
	}
	s.log.Info("completed exhausted session", "session_id", view.Session.ID, "deck_id", view.Session.DeckID)
	return true, nil
}

// CardPreview shows what each rating would do to a card right now.
type CardPreview struct {
	Card           domain.Card
	Retrievability float64
	Outcomes       map[fsrs.Rating]fsrs.MemoryState
}

// PreviewCard computes the outcome of every rating without persisting any.
func (s *Service) PreviewCard(ctx context.Context, id string) (*CardPreview, error) {
	card, err := s.liveCard(ctx, id)
	if err != nil {
		return nil, err
	}
	now := s.clock()
	outcomes, err := s.scheduler.Preview(card.Memory, now)
	if err != nil {
		return nil, fmt.Errorf("failed to preview card %s: %w", card.ID, err)
	}
	return &CardPreview{
		Card:           *card,
		Retrievability: s.scheduler.Retrievability(card.Memory, now),
		Outcomes:       outcomes,
	}, nil
}

// DeckStats counts the live cards of a deck per state.
type DeckStats struct {
	DeckID     string
	Total      int
	New        int
	Learning   int
	Review     int
	Relearning int
	Due        int
}

// DeckStats summarises a deck at the current time.
func (s *Service) DeckStats(ctx context.Context, deckID string) (*DeckStats, error) {
	deck, err := s.liveDeck(ctx, deckID)
	if err != nil {
		return nil, err
	}
	cards, err := s.store.ListCards(ctx, deck.ID)
	if err != nil {
		return nil, err
	}
	stats := &DeckStats{DeckID: deck.ID}
	for _, c := range cards {
		if c.Deleted() {
			continue
		}
		stats.Total++
		switch c.Memory.State {
		case fsrs.New:
			stats.New++
		case fsrs.Learning:
			stats.Learning++
		case fsrs.Review:
			stats.Review++
		case fsrs.Relearning:
			stats.Relearning++
		}
	}
	stats.Due = len(DueCards(cards, s.clock()))
	return stats, nil
}

// view loads the cards of a session in their saved order. Cards deleted
// since the session was sampled are left out.
func (s *Service) view(ctx context.Context, session *domain.Session) (*SessionView, error) {
	found, err := s.store.GetCards(ctx, session.CardIDs)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]domain.Card, len(found))
	for _, c := range found {
		byID[c.ID] = c
	}

	resume := session.ResumeIndex()
	view := &SessionView{Session: session, Cards: make([]domain.Card, 0, len(session.CardIDs))}
	for i, id := range session.CardIDs {
		c, ok := byID[id]
		if !ok || c.Deleted() {
			continue
		}
		if i < resume {
			view.Position++
		}
		view.Cards = append(view.Cards, c)
	}
	return view, nil
}

func (s *Service) liveDeck(ctx context.Context, id string) (*domain.Deck, error) {
	deck, err := s.store.GetDeck(ctx, id)
	if err != nil {
		return nil, err
	}
	if deck == nil || deck.Deleted() {
		return nil, fmt.Errorf("%w: %s", domain.ErrDeckNotFound, id)
	}
	return deck, nil
}

func (s *Service) liveCard(ctx context.Context, id string) (*domain.Card, error) {
	card, err := s.store.GetCard(ctx, id)
	if err != nil {
		return nil, err
	}
	if card == nil || card.Deleted() {
		return nil, fmt.Errorf("%w: %s", domain.ErrCardNotFound, id)
	}
	return card, nil
}

func (s *Service) getSession(ctx context.Context, id string) (*domain.Session, error) {
	session, err := s.store.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrSessionNotFound, id)
	}
	return session, nil
}
