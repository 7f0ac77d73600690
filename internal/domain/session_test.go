package domain

import (
	"errors"
	"testing"
	"time"
)

var now = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

func TestSessionResume(t *testing.T) {
	ids := []string{"a", "b", "c", "d", "e", "f", "g", "h", "i", "j"}
	s := NewSession("deck", LearningMode, ids, now)
	s.CompletedCards = 4

	if got := s.ResumeIndex(); got != 4 {
		t.Errorf("ResumeIndex() = %d, want 4", got)
	}
	if got := s.Remaining(); len(got) != 6 || got[0] != "e" {
		t.Errorf("Remaining() = %v, want to start at e", got)
	}

	t.Run("clamps out of range progress", func(t *testing.T) {
		s.CompletedCards = 42
		if got := s.ResumeIndex(); got != 10 {
			t.Errorf("ResumeIndex() = %d, want 10", got)
		}
		s.CompletedCards = -3
		if got := s.ResumeIndex(); got != 0 {
			t.Errorf("ResumeIndex() = %d, want 0", got)
		}
	})
}

func TestSessionAdvance(t *testing.T) {
	s := NewSession("deck", TestMode, []string{"a", "b"}, now)

	if err := s.Advance(now.Add(time.Minute), nil); err != nil {
		t.Fatalf("Advance() returned an unexpected error: %v", err)
	}
	if s.Completed() {
		t.Fatal("session completed after one of two cards")
	}

	duration := int64(95)
	if err := s.Advance(now.Add(2*time.Minute), &duration); err != nil {
		t.Fatalf("Advance() returned an unexpected error: %v", err)
	}
	if !s.Completed() || s.CompletedCards != 2 {
		t.Fatalf("expected completed session, got %+v", s)
	}
	if !s.CompletedAt.Equal(now.Add(2 * time.Minute)) {
		t.Errorf("CompletedAt = %v", s.CompletedAt)
	}
	if s.DurationSeconds == nil || *s.DurationSeconds != 95 {
		t.Errorf("DurationSeconds = %v, want 95", s.DurationSeconds)
	}

	if err := s.Advance(now.Add(3*time.Minute), nil); !errors.Is(err, ErrSessionCompleted) {
		t.Errorf("Advance() on completed session = %v, want ErrSessionCompleted", err)
	}
	if err := s.Complete(now, nil); !errors.Is(err, ErrSessionCompleted) {
		t.Errorf("Complete() on completed session = %v, want ErrSessionCompleted", err)
	}
}

func TestNewSessionCopiesOrder(t *testing.T) {
	ids := []string{"x", "y"}
	s := NewSession("deck", LearningMode, ids, now)
	ids[0] = "changed"
	if s.CardIDs[0] != "x" {
		t.Error("session order changed with the caller's slice")
	}
	if s.TotalCards != 2 || s.ID == "" {
		t.Errorf("unexpected session %+v", s)
	}
}

func TestParseSessionMode(t *testing.T) {
	testCases := []struct {
		in      string
		want    SessionMode
		wantErr bool
	}{
		{"", LearningMode, false},
		{"learning", LearningMode, false},
		{"test", TestMode, false},
		{"exam", "", true},
	}
	for _, tc := range testCases {
		got, err := ParseSessionMode(tc.in)
		if (err != nil) != tc.wantErr || got != tc.want {
			t.Errorf("ParseSessionMode(%q) = %q, %v", tc.in, got, err)
		}
	}
}

func TestSessionCompleteIfDone(t *testing.T) {
	testCases := []struct {
		name     string
		done     int
		pending  int
		complete bool
	}{
		{"cards left to study", 1, 2, false},
		{"remaining cards deleted", 1, 0, true},
		{"nothing reviewed, all deleted", 0, 0, true},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			s := NewSession("deck", LearningMode, []string{"a", "b", "c"}, now)
			s.CompletedCards = tc.done
			duration := int64(30)
			if got := s.CompleteIfDone(now.Add(time.Minute), &duration, tc.pending); got != tc.complete {
				t.Fatalf("CompleteIfDone() = %v, want %v", got, tc.complete)
			}
			if s.Completed() != tc.complete {
				t.Fatalf("Completed() = %v, want %v", s.Completed(), tc.complete)
			}
			if tc.complete && (s.CompletedCards != 3 || *s.DurationSeconds != 30) {
				t.Errorf("unexpected completed session %+v", s)
			}
		})
	}

	s := NewSession("deck", LearningMode, []string{"a"}, now)
	s.Complete(now, nil)
	if s.CompleteIfDone(now.Add(time.Hour), nil, 0) {
		t.Error("CompleteIfDone() completed an already completed session")
	}
}
