package fsrs

import (
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"
)

const day = 24 * time.Hour

// Scheduler computes the next memory state of a card after a review.
// It is safe for concurrent use.
type Scheduler struct {
	params Params
	model  model

	mu  sync.Mutex // guards rng
	rng *rand.Rand
}

// NewScheduler validates params and builds a scheduler. A nil params uses
// DefaultParams; a nil rng is seeded from the clock.
func NewScheduler(params *Params, rng *rand.Rand) (*Scheduler, error) {
	if params == nil {
		params = DefaultParams()
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	p := *params
	p.LearningSteps = append([]time.Duration(nil), params.LearningSteps...)
	p.RelearningSteps = append([]time.Duration(nil), params.RelearningSteps...)
	p.FuzzRanges = append([]FuzzRange(nil), params.FuzzRanges...)
	return &Scheduler{
		params: p,
		model:  newModel(p.Weights),
		rng:    rng,
	}, nil
}

// Params returns a copy of the scheduler's parameters.
func (s *Scheduler) Params() Params {
	return s.params
}

// Schedule applies rating to state at time now and returns the new state
// together with the log entry for the review. The input state is not modified.
func (s *Scheduler) Schedule(state MemoryState, rating Rating, now time.Time) (MemoryState, ReviewLog, error) {
	return s.schedule(state, rating, now, nil)
}

// passIntervals caches the Hard, Good and Easy intervals of a Review card so
// that every rating of one preview sees the same fuzzed values.
type passIntervals struct {
	days [3]int
	ok   bool
}

func (s *Scheduler) schedule(state MemoryState, rating Rating, now time.Time, pass *passIntervals) (MemoryState, ReviewLog, error) {
	if !rating.Valid() {
		return MemoryState{}, ReviewLog{}, fmt.Errorf("%w: %d", ErrInvalidRating, int(rating))
	}
	if err := state.validate(); err != nil {
		return MemoryState{}, ReviewLog{}, err
	}

	var elapsed float64
	if state.LastReview != nil {
		if now.Before(*state.LastReview) {
			return MemoryState{}, ReviewLog{}, fmt.Errorf("%w: now %s, last review %s",
				ErrReviewBeforeLastReview, now.Format(time.RFC3339), state.LastReview.Format(time.RFC3339))
		}
		elapsed = now.Sub(*state.LastReview).Hours() / 24
	}

	next := state.clone()
	next.ElapsedDays = int(math.Floor(elapsed))
	s.updateMemory(&next, state, rating, elapsed)

	var interval time.Duration
	if state.State == Review && rating != Again {
		if pass == nil {
			pass = &passIntervals{}
		}
		if !pass.ok {
			pass.days = s.passDays(state, elapsed)
			pass.ok = true
		}
		next.State = Review
		next.LearningStep = NoStep
		interval = time.Duration(pass.days[rating-Hard]) * day
	} else {
		interval = s.transition(&next, rating)
		if next.State == Review && s.params.EnableFuzz {
			if days := int(interval / day); days > 0 {
				s.mu.Lock()
				days = applyFuzz(days, s.params.MaximumInterval, s.params.FuzzRanges, s.rng)
				s.mu.Unlock()
				interval = time.Duration(days) * day
			}
		}
	}

	next.ScheduledDays = int(interval / day)
	next.Due = now.Add(interval)
	next.Reps++
	reviewedAt := now
	next.LastReview = &reviewedAt

	log := ReviewLog{
		Rating:        rating,
		State:         state.State,
		ReviewedAt:    now,
		ElapsedDays:   next.ElapsedDays,
		ScheduledDays: next.ScheduledDays,
	}
	return next, log, nil
}

// passDays returns the fuzzed intervals in days for Hard, Good and Easy on a
// Review card, kept in the order Hard <= Good <= Easy.
func (s *Scheduler) passDays(prev MemoryState, elapsed float64) [3]int {
	r := s.model.retrievability(elapsed, prev.Stability)
	var days [3]int
	for i, rating := range []Rating{Hard, Good, Easy} {
		stability := s.model.recallStability(prev.Difficulty, prev.Stability, r, rating)
		days[i] = s.model.nextInterval(stability, s.params.DesiredRetention, s.params.MaximumInterval)
	}
	if s.params.EnableFuzz {
		s.mu.Lock()
		for i := range days {
			days[i] = applyFuzz(days[i], s.params.MaximumInterval, s.params.FuzzRanges, s.rng)
		}
		s.mu.Unlock()
	}

	days[0] = min(days[0], days[1])
	days[1] = max(days[1], days[0]+1)
	days[2] = max(days[2], days[1]+1)
	for i := range days {
		days[i] = min(days[i], s.params.MaximumInterval)
	}
	return days
}

// Preview returns the state each rating would produce from state at now.
// Passing ratings of a Review card share one draw of fuzz, so their
// intervals keep the order Hard <= Good <= Easy.
func (s *Scheduler) Preview(state MemoryState, now time.Time) (map[Rating]MemoryState, error) {
	out := make(map[Rating]MemoryState, len(Ratings))
	var pass passIntervals
	for _, r := range Ratings {
		next, _, err := s.schedule(state, r, now, &pass)
		if err != nil {
			return nil, err
		}
		out[r] = next
	}
	return out, nil
}

// Retrievability is the modelled recall probability of the card at now.
// Cards that were never reviewed report 0.
func (s *Scheduler) Retrievability(state MemoryState, now time.Time) float64 {
	if state.LastReview == nil || state.Stability <= 0 {
		return 0
	}
	elapsed := math.Max(now.Sub(*state.LastReview).Hours()/24, 0)
	return s.model.retrievability(elapsed, state.Stability)
}

// updateMemory sets the new stability and difficulty on next.
func (s *Scheduler) updateMemory(next *MemoryState, prev MemoryState, rating Rating, elapsed float64) {
	if prev.State == New {
		next.Stability = s.model.initStability(rating)
		next.Difficulty = clampDifficulty(s.model.initDifficulty(rating))
		return
	}

	switch {
	case prev.State != Review && elapsed < 1:
		next.Stability = s.model.shortTermStability(prev.Stability, rating)
	case rating == Again:
		r := s.model.retrievability(elapsed, prev.Stability)
		next.Stability = s.model.lapseStability(prev.Difficulty, prev.Stability, r)
	default:
		r := s.model.retrievability(elapsed, prev.Stability)
		next.Stability = s.model.recallStability(prev.Difficulty, prev.Stability, r, rating)
	}
	next.Difficulty = s.model.nextDifficulty(prev.Difficulty, rating)
}

// transition moves next to its new state and returns the interval until due.
func (s *Scheduler) transition(next *MemoryState, rating Rating) time.Duration {
	switch next.State {
	case New:
		if len(s.params.LearningSteps) == 0 {
			return s.graduate(next)
		}
		next.State = Learning
		next.LearningStep = 0
		return s.climb(next, rating, s.params.LearningSteps)
	case Learning:
		return s.climb(next, rating, s.params.LearningSteps)
	case Relearning:
		return s.climb(next, rating, s.params.RelearningSteps)
	default:
		if rating == Again {
			next.Lapses++
			if len(s.params.RelearningSteps) > 0 {
				next.State = Relearning
				next.LearningStep = 0
				return s.params.RelearningSteps[0]
			}
		}
		return s.graduate(next)
	}
}

// climb advances a Learning or Relearning card along its step ladder.
func (s *Scheduler) climb(next *MemoryState, rating Rating, steps []time.Duration) time.Duration {
	step := next.LearningStep
	if step < 0 {
		step = len(steps)
	}
	if len(steps) == 0 || (step >= len(steps) && rating != Again) {
		return s.graduate(next)
	}

	switch rating {
	case Again:
		next.LearningStep = 0
		return steps[0]
	case Hard:
		if step == 0 && len(steps) == 1 {
			return steps[0] * 3 / 2
		}
		if step == 0 {
			return (steps[0] + steps[1]) / 2
		}
		return steps[step]
	case Good:
		if step+1 >= len(steps) {
			return s.graduate(next)
		}
		next.LearningStep = step + 1
		return steps[step+1]
	default:
		return s.graduate(next)
	}
}

// graduate puts next into Review with an interval derived from its stability.
func (s *Scheduler) graduate(next *MemoryState) time.Duration {
	next.State = Review
	next.LearningStep = NoStep
	days := s.model.nextInterval(next.Stability, s.params.DesiredRetention, s.params.MaximumInterval)
	return time.Duration(days) * day
}
