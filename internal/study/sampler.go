package study

import (
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/conorfennell/flashdeck/internal/domain"
	"github.com/conorfennell/flashdeck/internal/fsrs"
)

// Weights configures the proficiency weight of a card. A higher weight makes
// a card more likely to be drawn into a session. The defaults were chosen by
// hand and are open to tuning.
type Weights struct {
	New        float64
	Learning   float64
	Relearning float64
	Review     float64

	StabilityBonus  float64 // max bonus for low stability
	StabilityFactor float64 // bonus lost per day of stability
	LapseStep       float64 // bonus per lapse
	LapseCap        float64
	RepsBonus       float64 // max bonus for few reps
	RepsFactor      float64 // bonus lost per rep
}

// DefaultWeights returns the stock weighting.
func DefaultWeights() Weights {
	return Weights{
		New:             100,
		Learning:        80,
		Relearning:      60,
		Review:          40,
		StabilityBonus:  50,
		StabilityFactor: 0.1,
		LapseStep:       10,
		LapseCap:        30,
		RepsBonus:       20,
		RepsFactor:      2,
	}
}

// Weight scores how urgently c needs review.
func (w Weights) Weight(c domain.Card) float64 {
	var base float64
	switch c.Memory.State {
	case fsrs.New:
		base = w.New
	case fsrs.Learning:
		base = w.Learning
	case fsrs.Relearning:
		base = w.Relearning
	default:
		base = w.Review
	}
	m := c.Memory
	base += math.Max(0, w.StabilityBonus-m.Stability*w.StabilityFactor)
	base += math.Min(float64(m.Lapses)*w.LapseStep, w.LapseCap)
	base += math.Max(0, w.RepsBonus-float64(m.Reps)*w.RepsFactor)
	return base
}

// Sampler picks the cards of a study session. It is safe for concurrent use.
type Sampler struct {
	weights Weights

	mu  sync.Mutex // guards rng
	rng *rand.Rand
}

// NewSampler returns a sampler using w. A nil rng is seeded from the clock.
func NewSampler(w Weights, rng *rand.Rand) *Sampler {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Sampler{weights: w, rng: rng}
}

// Weights returns the sampler's weighting.
func (s *Sampler) Weights() Weights {
	return s.weights
}

// BuildSession selects at most limit cards from due. When the due set fits
// it is returned shuffled; otherwise cards are drawn by weight without
// replacement and the draw is shuffled, so weight decides selection but not
// presentation order.
func (s *Sampler) BuildSession(due []domain.Card, limit int) []domain.Card {
	if limit <= 0 || len(due) == 0 {
		return []domain.Card{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var picked []domain.Card
	if len(due) <= limit {
		picked = append([]domain.Card(nil), due...)
	} else {
		picked = s.draw(due, limit)
	}
	s.rng.Shuffle(len(picked), func(i, j int) {
		picked[i], picked[j] = picked[j], picked[i]
	})
	return picked
}

// candidate is one entry of the arena of cards still eligible for a draw.
type candidate struct {
	index  int // position in the due slice
	weight float64
}

// draw performs weighted sampling without replacement. The arena holds the
// remaining candidates; a picked candidate is swapped with the last live
// entry and the arena shrinks by one, so indices into due never move.
func (s *Sampler) draw(due []domain.Card, limit int) []domain.Card {
	arena := make([]candidate, len(due))
	for i, c := range due {
		arena[i] = candidate{index: i, weight: math.Max(s.weights.Weight(c), 0)}
	}

	cumulative := make([]float64, len(arena))
	picked := make([]domain.Card, 0, limit)
	for live := len(arena); len(picked) < limit && live > 0; live-- {
		var total float64
		for i := 0; i < live; i++ {
			total += arena[i].weight
			cumulative[i] = total
		}

		var at int
		if total <= 0 {
			at = s.rng.Intn(live)
		} else {
			target := s.rng.Float64() * total
			at = live - 1
			for i := 0; i < live; i++ {
				if target < cumulative[i] {
					at = i
					break
				}
			}
		}

		picked = append(picked, due[arena[at].index])
		arena[at], arena[live-1] = arena[live-1], arena[at]
	}
	return picked
}
