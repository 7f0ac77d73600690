package fsrs

import (
	"fmt"
	"time"
)

// State is the learning phase a card is in.
type State int

const (
	New State = iota
	Learning
	Review
	Relearning
)

var stateNames = [...]string{New: "New", Learning: "Learning", Review: "Review", Relearning: "Relearning"}

// Valid reports whether s is one of the four known states.
func (s State) Valid() bool {
	return s >= New && s <= Relearning
}

func (s State) String() string {
	if s.Valid() {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Rating is the user's response to a card review.
// At the API boundary it is always one of the integers 1 to 4.
type Rating int

const (
	Again Rating = 1 // Fail
	Hard  Rating = 2
	Good  Rating = 3
	Easy  Rating = 4
)

var ratingNames = [...]string{Again: "Again", Hard: "Hard", Good: "Good", Easy: "Easy"}

// Ratings lists every valid rating from worst to best.
var Ratings = []Rating{Again, Hard, Good, Easy}

// Valid reports whether r is one of the four grades.
func (r Rating) Valid() bool {
	return r >= Again && r <= Easy
}

func (r Rating) String() string {
	if r.Valid() {
		return ratingNames[r]
	}
	return fmt.Sprintf("Rating(%d)", int(r))
}

// ParseRating converts a boundary integer into a Rating.
func ParseRating(n int) (Rating, error) {
	r := Rating(n)
	if !r.Valid() {
		return 0, fmt.Errorf("%w: %d", ErrInvalidRating, n)
	}
	return r, nil
}

// NoStep is the LearningStep value of a card whose step ladder is exhausted.
const NoStep = -1

// MemoryState is the per-card scheduling state.
type MemoryState struct {
	Due           time.Time
	Stability     float64
	Difficulty    float64
	ElapsedDays   int
	ScheduledDays int
	LearningStep  int
	Reps          int
	Lapses        int
	State         State
	LastReview    *time.Time
}

// NewMemoryState returns the empty state of a freshly created card, due at now.
func NewMemoryState(now time.Time) MemoryState {
	return MemoryState{
		Due:   now,
		State: New,
	}
}

func (m MemoryState) clone() MemoryState {
	out := m
	if m.LastReview != nil {
		t := *m.LastReview
		out.LastReview = &t
	}
	return out
}

// validate rejects states that could not have been produced by the scheduler.
func (m MemoryState) validate() error {
	if !m.State.Valid() {
		return fmt.Errorf("%w: unknown state %d", ErrCorruptState, int(m.State))
	}
	if m.State == New {
		return nil
	}
	if m.Stability <= 0 {
		return fmt.Errorf("%w: stability %f in state %s", ErrCorruptState, m.Stability, m.State)
	}
	if m.Difficulty <= 0 {
		return fmt.Errorf("%w: difficulty %f in state %s", ErrCorruptState, m.Difficulty, m.State)
	}
	if m.Reps < 0 || m.Lapses < 0 {
		return fmt.Errorf("%w: negative counters reps=%d lapses=%d", ErrCorruptState, m.Reps, m.Lapses)
	}
	return nil
}

// ReviewLog describes one review as produced by the scheduler.
type ReviewLog struct {
	Rating        Rating
	State         State // state before the review
	ReviewedAt    time.Time
	ElapsedDays   int
	ScheduledDays int
}
