package study

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math/rand"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/conorfennell/flashdeck/internal/domain"
	"github.com/conorfennell/flashdeck/internal/fsrs"
)

type fakeStore struct {
	mu       sync.Mutex
	decks    map[string]domain.Deck
	cards    map[string]domain.Card
	order    []string
	sessions map[string]domain.Session
	logs     []domain.ReviewLog
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		decks:    make(map[string]domain.Deck),
		cards:    make(map[string]domain.Card),
		sessions: make(map[string]domain.Session),
	}
}

func (f *fakeStore) addDeck(d domain.Deck) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.decks[d.ID] = d
}

func (f *fakeStore) addCard(c domain.Card) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cards[c.ID] = c
	f.order = append(f.order, c.ID)
}

func cloneSession(s domain.Session) *domain.Session {
	s.CardIDs = append([]string(nil), s.CardIDs...)
	return &s
}

func (f *fakeStore) GetDeck(ctx context.Context, id string) (*domain.Deck, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.decks[id]
	if !ok {
		return nil, nil
	}
	return &d, nil
}

func (f *fakeStore) GetCard(ctx context.Context, id string) (*domain.Card, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.cards[id]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (f *fakeStore) GetCards(ctx context.Context, ids []string) ([]domain.Card, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Card
	for _, id := range ids {
		if c, ok := f.cards[id]; ok {
			out = append(out, c)
		}
	}
	// Callers must not rely on the order.
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (f *fakeStore) ListCards(ctx context.Context, deckID string) ([]domain.Card, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Card
	for _, id := range f.order {
		c := f.cards[id]
		if c.DeckID == deckID && !c.Deleted() {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeStore) ApplyReview(ctx context.Context, card *domain.Card, log domain.ReviewLog, progress *domain.Progress) (*domain.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	stored, ok := f.cards[card.ID]
	if !ok || stored.Version != card.Version || stored.Deleted() {
		return nil, domain.ErrCardConflict
	}

	var session *domain.Session
	if progress != nil {
		s, ok := f.sessions[progress.SessionID]
		if !ok {
			return nil, domain.ErrSessionNotFound
		}
		session = cloneSession(s)
		if !session.Contains(card.ID) {
			return nil, domain.ErrCardNotInSession
		}
		if err := session.Advance(progress.At, progress.DurationSeconds); err != nil {
			return nil, err
		}
		pending := f.pending(session, card.ID)
		session.CompleteIfDone(progress.At, progress.DurationSeconds, pending)
		f.sessions[session.ID] = *cloneSession(*session)
	}

	card.Version++
	f.cards[card.ID] = *card
	f.logs = append(f.logs, log)
	return session, nil
}

// pending counts live cards of s without a review in s, treating reviewed
// as already reviewed. Callers hold f.mu.
func (f *fakeStore) pending(s *domain.Session, reviewed string) int {
	n := 0
	for _, id := range s.CardIDs {
		c, ok := f.cards[id]
		if !ok || c.Deleted() || id == reviewed {
			continue
		}
		seen := false
		for _, l := range f.logs {
			if l.CardID == id && l.SessionID == s.ID {
				seen = true
				break
			}
		}
		if !seen {
			n++
		}
	}
	return n
}

func (f *fakeStore) PendingCards(ctx context.Context, s *domain.Session) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pending(s, ""), nil
}

func (f *fakeStore) CompleteSession(ctx context.Context, id string, now time.Time, durationSeconds *int64) (*domain.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	stored, ok := f.sessions[id]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	s := cloneSession(stored)
	if err := s.Complete(now, durationSeconds); err != nil {
		return nil, err
	}
	f.sessions[id] = *cloneSession(*s)
	return s, nil
}

func (f *fakeStore) CreateSession(ctx context.Context, s *domain.Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessions[s.ID] = *cloneSession(*s)
	return nil
}

func (f *fakeStore) GetSession(ctx context.Context, id string) (*domain.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[id]
	if !ok {
		return nil, nil
	}
	return cloneSession(s), nil
}

func (f *fakeStore) ListSessions(ctx context.Context, deckID string) ([]domain.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Session
	for _, s := range f.sessions {
		if s.DeckID == deckID {
			out = append(out, *cloneSession(s))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (f *fakeStore) LatestActiveSession(ctx context.Context, deckID string, mode domain.SessionMode) (*domain.Session, error) {
	sessions, _ := f.ListSessions(ctx, deckID)
	for i := range sessions {
		if sessions[i].Mode == mode && !sessions[i].Completed() {
			return &sessions[i], nil
		}
	}
	return nil, nil
}

func (f *fakeStore) ListReviewLogs(ctx context.Context, cardIDs []string) ([]domain.ReviewLog, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	want := make(map[string]bool, len(cardIDs))
	for _, id := range cardIDs {
		want[id] = true
	}
	var out []domain.ReviewLog
	for _, l := range f.logs {
		if want[l.CardID] {
			out = append(out, l)
		}
	}
	return out, nil
}

type testClock struct {
	now time.Time
}

func (c *testClock) Now() time.Time { return c.now }

func (c *testClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestService(t *testing.T) (*Service, *fakeStore, *testClock) {
	t.Helper()
	params := fsrs.DefaultParams()
	params.EnableFuzz = false
	sched, err := fsrs.NewScheduler(params, rand.New(rand.NewSource(1)))
	if err != nil {
		t.Fatal(err)
	}
	store := newFakeStore()
	svc := NewService(store, sched, NewSampler(DefaultWeights(), rand.New(rand.NewSource(1))),
		slog.New(slog.NewTextHandler(io.Discard, nil)))
	clock := &testClock{now: t0}
	svc.clock = clock.Now
	return svc, store, clock
}

func seedDeck(store *fakeStore, n int) domain.Deck {
	d := domain.NewDeck("Test", "English", t0)
	store.addDeck(d)
	for i := 0; i < n; i++ {
		c := domain.NewCard(d.ID, domain.WordCard, domain.CardData{Word: string(rune('a' + i))}, t0)
		store.addCard(c)
	}
	return d
}

func TestRecordReview(t *testing.T) {
	ctx := context.Background()
	svc, store, clock := newTestService(t)
	d := seedDeck(store, 1)
	cards, _ := store.ListCards(ctx, d.ID)
	id := cards[0].ID

	clock.Advance(time.Minute)
	res, err := svc.RecordReview(ctx, ReviewInput{CardID: id, Rating: 3})
	if err != nil {
		t.Fatalf("RecordReview() returned an unexpected error: %v", err)
	}
	if res.Card.Memory.State != fsrs.Learning || res.Card.Memory.Reps != 1 || res.Card.Version != 1 {
		t.Errorf("unexpected card after review: %+v", res.Card.Memory)
	}
	if res.Log.Rating != fsrs.Good || res.Log.State != fsrs.New || res.Session != nil {
		t.Errorf("unexpected log %+v", res.Log)
	}

	stored, _ := store.GetCard(ctx, id)
	if !stored.Memory.Due.Equal(clock.now.Add(10 * time.Minute)) {
		t.Errorf("stored due = %v, want %v", stored.Memory.Due, clock.now.Add(10*time.Minute))
	}
	if len(store.logs) != 1 {
		t.Errorf("expected 1 review log, got %d", len(store.logs))
	}
}

func TestRecordReviewErrors(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := newTestService(t)
	d := seedDeck(store, 2)
	cards, _ := store.ListCards(ctx, d.ID)

	deleted := cards[1]
	gone := t0
	deleted.DeletedAt = &gone
	store.cards[deleted.ID] = deleted

	other := domain.NewSession(d.ID, domain.LearningMode, []string{"someone-else"}, t0)
	store.CreateSession(ctx, other)

	testCases := []struct {
		name string
		in   ReviewInput
		want error
	}{
		{"rating too low", ReviewInput{CardID: cards[0].ID, Rating: 0}, fsrs.ErrInvalidRating},
		{"rating too high", ReviewInput{CardID: cards[0].ID, Rating: 5}, fsrs.ErrInvalidRating},
		{"unknown card", ReviewInput{CardID: "missing", Rating: 3}, domain.ErrCardNotFound},
		{"deleted card", ReviewInput{CardID: deleted.ID, Rating: 3}, domain.ErrCardNotFound},
		{"unknown session", ReviewInput{CardID: cards[0].ID, Rating: 3, SessionID: "nope"}, domain.ErrSessionNotFound},
		{"card outside session", ReviewInput{CardID: cards[0].ID, Rating: 3, SessionID: other.ID}, domain.ErrCardNotInSession},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.RecordReview(ctx, tc.in)
			if !errors.Is(err, tc.want) {
				t.Fatalf("RecordReview() = %v, want %v", err, tc.want)
			}
		})
	}
	if len(store.logs) != 0 {
		t.Errorf("failed reviews wrote %d logs", len(store.logs))
	}
}

func TestSessionLifecycle(t *testing.T) {
	ctx := context.Background()
	svc, store, clock := newTestService(t)
	d := seedDeck(store, 5)

	view, err := svc.DueCardsForSession(ctx, d.ID, domain.LearningMode, 3)
	if err != nil {
		t.Fatalf("DueCardsForSession() returned an unexpected error: %v", err)
	}
	if view.Session == nil || len(view.Cards) != 3 || view.Position != 0 {
		t.Fatalf("unexpected new session view: %+v", view)
	}
	session := view.Session

	// Review the first card, then come back: same order, resumes at 1.
	clock.Advance(time.Minute)
	if _, err := svc.RecordReview(ctx, ReviewInput{CardID: view.Cards[0].ID, Rating: 1, SessionID: session.ID}); err != nil {
		t.Fatalf("RecordReview() returned an unexpected error: %v", err)
	}
	resumed, err := svc.DueCardsForSession(ctx, d.ID, domain.LearningMode, 3)
	if err != nil {
		t.Fatal(err)
	}
	if resumed.Session.ID != session.ID || resumed.Position != 1 {
		t.Fatalf("expected resume of %s at 1, got %s at %d", session.ID, resumed.Session.ID, resumed.Position)
	}
	for i := range view.Cards {
		if resumed.Cards[i].ID != view.Cards[i].ID {
			t.Fatalf("card order changed at %d", i)
		}
	}

	// A test-mode request does not pick up the learning session.
	testView, err := svc.DueCardsForSession(ctx, d.ID, domain.TestMode, 2)
	if err != nil {
		t.Fatal(err)
	}
	if testView.Session == nil || testView.Session.ID == session.ID {
		t.Fatalf("test mode reused the learning session")
	}

	clock.Advance(time.Minute)
	dur := int64(120)
	for _, c := range view.Cards[1:] {
		clock.Advance(10 * time.Second)
		if _, err := svc.RecordReview(ctx, ReviewInput{CardID: c.ID, Rating: 3, SessionID: session.ID, DurationSeconds: &dur}); err != nil {
			t.Fatalf("RecordReview() returned an unexpected error: %v", err)
		}
	}

	done, err := svc.ResumeSession(ctx, session.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !done.Session.Completed() || done.Position != 3 {
		t.Errorf("session not completed: %+v", done.Session)
	}
	if done.Session.DurationSeconds == nil || *done.Session.DurationSeconds != 120 {
		t.Errorf("DurationSeconds = %v, want 120", done.Session.DurationSeconds)
	}

	// A completed session accepts no more reviews.
	_, err = svc.RecordReview(ctx, ReviewInput{CardID: view.Cards[0].ID, Rating: 3, SessionID: session.ID})
	if !errors.Is(err, domain.ErrSessionCompleted) {
		t.Errorf("RecordReview() on completed session = %v, want ErrSessionCompleted", err)
	}

	ratings, err := svc.SessionRatings(ctx, session.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(ratings) != 3 || ratings[view.Cards[0].ID] != fsrs.Again || ratings[view.Cards[1].ID] != fsrs.Good {
		t.Errorf("SessionRatings() = %v", ratings)
	}

	history, err := svc.SessionHistory(ctx, d.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != 2 || history[0].ID != testView.Session.ID {
		t.Errorf("SessionHistory() = %+v, want test session first", history)
	}
}

func TestSessionRatingsUseLatestReviewInWindow(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := newTestService(t)
	d := seedDeck(store, 1)
	cards, _ := store.ListCards(ctx, d.ID)
	id := cards[0].ID

	session := domain.NewSession(d.ID, domain.LearningMode, []string{id}, t0)
	done := t0.Add(10 * time.Minute)
	session.CompletedAt = &done
	store.CreateSession(ctx, session)

	store.logs = []domain.ReviewLog{
		{CardID: id, Rating: fsrs.Easy, ReviewedAt: t0.Add(-time.Minute)},     // before the session
		{CardID: id, Rating: fsrs.Again, ReviewedAt: t0.Add(2 * time.Minute)}, // in window
		{CardID: id, Rating: fsrs.Hard, ReviewedAt: t0.Add(14 * time.Minute)}, // within grace
		{CardID: id, Rating: fsrs.Good, ReviewedAt: t0.Add(16 * time.Minute)}, // after grace
	}

	ratings, err := svc.SessionRatings(ctx, session.ID)
	if err != nil {
		t.Fatal(err)
	}
	if ratings[id] != fsrs.Hard {
		t.Errorf("rating = %v, want Hard", ratings[id])
	}

	active := domain.NewSession(d.ID, domain.LearningMode, []string{id}, t0)
	store.CreateSession(ctx, active)
	ratings, err = svc.SessionRatings(ctx, active.ID)
	if err != nil || len(ratings) != 0 {
		t.Errorf("SessionRatings() of active session = %v, %v; want empty", ratings, err)
	}
}

func TestDueCardsForSessionNothingDue(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := newTestService(t)
	d := seedDeck(store, 2)
	for id, c := range store.cards {
		c.Memory.Due = t0.Add(time.Hour)
		store.cards[id] = c
	}

	view, err := svc.DueCardsForSession(ctx, d.ID, domain.LearningMode, 0)
	if err != nil {
		t.Fatal(err)
	}
	if view.Session != nil || len(view.Cards) != 0 {
		t.Errorf("expected an empty view, got %+v", view)
	}
	if len(store.sessions) != 0 {
		t.Errorf("no session should be created, got %d", len(store.sessions))
	}

	if _, err := svc.DueCardsForSession(ctx, "missing", domain.LearningMode, 0); !errors.Is(err, domain.ErrDeckNotFound) {
		t.Errorf("DueCardsForSession(missing) = %v, want ErrDeckNotFound", err)
	}
}

func TestDueCardsForSessionUsesDeckLimit(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := newTestService(t)
	d := seedDeck(store, 6)
	d.CardsPerSession = 4
	store.addDeck(d)

	view, err := svc.DueCardsForSession(ctx, d.ID, "", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(view.Cards) != 4 || view.Session.Mode != domain.LearningMode {
		t.Errorf("got %d cards in %s mode, want 4 in learning", len(view.Cards), view.Session.Mode)
	}
}

func TestResumeSkipsDeletedCards(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := newTestService(t)
	d := seedDeck(store, 3)
	cards, _ := store.ListCards(ctx, d.ID)
	ids := []string{cards[0].ID, cards[1].ID, cards[2].ID}

	session := domain.NewSession(d.ID, domain.LearningMode, ids, t0)
	session.CompletedCards = 2
	store.CreateSession(ctx, session)

	c := store.cards[ids[0]]
	gone := t0
	c.DeletedAt = &gone
	store.cards[ids[0]] = c

	view, err := svc.ResumeSession(ctx, session.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(view.Cards) != 2 || view.Cards[0].ID != ids[1] || view.Cards[1].ID != ids[2] || view.Position != 1 {
		t.Errorf("unexpected view: %d cards at %d", len(view.Cards), view.Position)
	}

	if _, err := svc.ResumeSession(ctx, "nope"); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Errorf("ResumeSession(missing) = %v, want ErrSessionNotFound", err)
	}
}

func TestCompleteSession(t *testing.T) {
	ctx := context.Background()
	svc, store, clock := newTestService(t)
	d := seedDeck(store, 2)
	view, err := svc.DueCardsForSession(ctx, d.ID, domain.TestMode, 10)
	if err != nil {
		t.Fatal(err)
	}

	clock.Advance(5 * time.Minute)
	dur := int64(300)
	s, err := svc.CompleteSession(ctx, view.Session.ID, &dur)
	if err != nil {
		t.Fatalf("CompleteSession() returned an unexpected error: %v", err)
	}
	if !s.Completed() || s.CompletedCards != s.TotalCards || !s.CompletedAt.Equal(clock.now) {
		t.Errorf("unexpected session %+v", s)
	}
	if _, err := svc.CompleteSession(ctx, view.Session.ID, nil); !errors.Is(err, domain.ErrSessionCompleted) {
		t.Errorf("second CompleteSession() = %v, want ErrSessionCompleted", err)
	}

	// "Study again" samples a fresh session.
	again, err := svc.DueCardsForSession(ctx, d.ID, domain.TestMode, 10)
	if err != nil {
		t.Fatal(err)
	}
	if again.Session == nil || again.Session.ID == view.Session.ID {
		t.Errorf("expected a new session after completion")
	}
}

func TestPreviewCardAndStats(t *testing.T) {
	ctx := context.Background()
	svc, store, clock := newTestService(t)
	d := seedDeck(store, 3)
	cards, _ := store.ListCards(ctx, d.ID)

	preview, err := svc.PreviewCard(ctx, cards[0].ID)
	if err != nil {
		t.Fatalf("PreviewCard() returned an unexpected error: %v", err)
	}
	if len(preview.Outcomes) != 4 || preview.Outcomes[fsrs.Easy].State != fsrs.Review || preview.Retrievability != 0 {
		t.Errorf("unexpected preview %+v", preview)
	}
	if stored, _ := store.GetCard(ctx, cards[0].ID); stored.Memory.Reps != 0 {
		t.Error("PreviewCard() persisted a review")
	}

	clock.Advance(time.Minute)
	if _, err := svc.RecordReview(ctx, ReviewInput{CardID: cards[0].ID, Rating: 4}); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.RecordReview(ctx, ReviewInput{CardID: cards[1].ID, Rating: 1}); err != nil {
		t.Fatal(err)
	}

	stats, err := svc.DeckStats(ctx, d.ID)
	if err != nil {
		t.Fatalf("DeckStats() returned an unexpected error: %v", err)
	}
	want := DeckStats{DeckID: d.ID, Total: 3, New: 1, Learning: 1, Review: 1, Due: 1}
	if *stats != want {
		t.Errorf("DeckStats() = %+v, want %+v", *stats, want)
	}
}

func deleteCard(store *fakeStore, id string) {
	store.mu.Lock()
	defer store.mu.Unlock()
	c := store.cards[id]
	gone := t0
	c.DeletedAt = &gone
	store.cards[id] = c
}

func TestDueCardsForSessionReplacesExhaustedSession(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := newTestService(t)
	d := seedDeck(store, 1)

	first, err := svc.DueCardsForSession(ctx, d.ID, domain.LearningMode, 10)
	if err != nil {
		t.Fatal(err)
	}
	deleteCard(store, first.Cards[0].ID)
	fresh := domain.NewCard(d.ID, domain.WordCard, domain.CardData{Word: "late"}, t0)
	store.addCard(fresh)

	second, err := svc.DueCardsForSession(ctx, d.ID, domain.LearningMode, 10)
	if err != nil {
		t.Fatal(err)
	}
	if second.Session == nil || second.Session.ID == first.Session.ID {
		t.Fatalf("resumed a session with no cards left: %+v", second.Session)
	}
	if len(second.Cards) != 1 || second.Cards[0].ID != fresh.ID {
		t.Errorf("new session cards = %d, want the newly added card", len(second.Cards))
	}
	old, _ := store.GetSession(ctx, first.Session.ID)
	if !old.Completed() {
		t.Errorf("exhausted session was left active: %+v", old)
	}
}

func TestDueCardsForSessionCompletesWhenOnlyReviewedCardsRemain(t *testing.T) {
	ctx := context.Background()
	svc, store, clock := newTestService(t)
	d := seedDeck(store, 2)

	view, err := svc.DueCardsForSession(ctx, d.ID, domain.LearningMode, 10)
	if err != nil {
		t.Fatal(err)
	}
	// Review the last card first, then lose the other one.
	clock.Advance(time.Minute)
	last, other := view.Cards[1], view.Cards[0]
	if _, err := svc.RecordReview(ctx, ReviewInput{CardID: last.ID, Rating: 3, SessionID: view.Session.ID}); err != nil {
		t.Fatal(err)
	}
	deleteCard(store, other.ID)

	clock.Advance(time.Hour)
	next, err := svc.DueCardsForSession(ctx, d.ID, domain.LearningMode, 10)
	if err != nil {
		t.Fatal(err)
	}
	if next.Session == nil || next.Session.ID == view.Session.ID {
		t.Fatalf("expected a new session, got %+v", next.Session)
	}
	if old, _ := store.GetSession(ctx, view.Session.ID); !old.Completed() {
		t.Errorf("session %s should be completed", old.ID)
	}
}

func TestRecordReviewCompletesSessionWithDeletedCard(t *testing.T) {
	ctx := context.Background()
	svc, store, clock := newTestService(t)
	d := seedDeck(store, 2)

	view, err := svc.DueCardsForSession(ctx, d.ID, domain.LearningMode, 10)
	if err != nil {
		t.Fatal(err)
	}
	deleteCard(store, view.Cards[1].ID)

	clock.Advance(time.Minute)
	dur := int64(42)
	res, err := svc.RecordReview(ctx, ReviewInput{CardID: view.Cards[0].ID, Rating: 3, SessionID: view.Session.ID, DurationSeconds: &dur})
	if err != nil {
		t.Fatalf("RecordReview() returned an unexpected error: %v", err)
	}
	if res.Session == nil || !res.Session.Completed() || *res.Session.DurationSeconds != 42 {
		t.Errorf("session = %+v, want completed with its deleted card skipped", res.Session)
	}
}
