package study

import (
	"context"
	"io"
	"log/slog"
	"math/rand"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/conorfennell/flashdeck/internal/domain"
	"github.com/conorfennell/flashdeck/internal/fsrs"
	"github.com/conorfennell/flashdeck/internal/storage"
)

func newSQLiteService(t *testing.T) (*Service, *storage.DB) {
	t.Helper()
	db, err := storage.Open(filepath.Join(t.TempDir(), "study.db"))
	if err != nil {
		t.Fatalf("Open() returned an unexpected error: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	params := fsrs.DefaultParams()
	params.EnableFuzz = false
	sched, err := fsrs.NewScheduler(params, rand.New(rand.NewSource(1)))
	if err != nil {
		t.Fatal(err)
	}
	svc := NewService(db, sched, NewSampler(DefaultWeights(), rand.New(rand.NewSource(1))),
		slog.New(slog.NewTextHandler(io.Discard, nil)))
	svc.clock = func() time.Time { return t0 }
	return svc, db
}

func TestConcurrentReviewsKeepSessionProgress(t *testing.T) {
	ctx := context.Background()
	svc, db := newSQLiteService(t)

	const n = 10
	d := domain.NewDeck("Concurrent", "English", t0)
	if err := db.CreateDeck(ctx, d); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < n; i++ {
		c := domain.NewCard(d.ID, domain.WordCard, domain.CardData{Word: string(rune('a' + i))}, t0)
		if err := db.CreateCard(ctx, c); err != nil {
			t.Fatal(err)
		}
	}

	view, err := svc.DueCardsForSession(ctx, d.ID, domain.LearningMode, n)
	if err != nil {
		t.Fatal(err)
	}
	if len(view.Cards) != n {
		t.Fatalf("session has %d cards, want %d", len(view.Cards), n)
	}

	var wg sync.WaitGroup
	errs := make([]error, n)
	for i, c := range view.Cards {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = svc.RecordReview(ctx, ReviewInput{CardID: c.ID, Rating: 3, SessionID: view.Session.ID})
		}()
	}
	wg.Wait()
	for i, err := range errs {
		if err != nil {
			t.Errorf("review %d returned an unexpected error: %v", i, err)
		}
	}

	got, err := db.GetSession(ctx, view.Session.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.CompletedCards != n || !got.Completed() {
		t.Errorf("session progress = %d/%d, completed %v; want %d/%d completed",
			got.CompletedCards, got.TotalCards, got.Completed(), n, n)
	}
	logs, err := db.ListReviewLogs(ctx, view.Session.CardIDs)
	if err != nil || len(logs) != n {
		t.Errorf("ListReviewLogs() = %d logs, %v; want %d", len(logs), err, n)
	}
}
