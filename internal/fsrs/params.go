package fsrs

import (
	"fmt"
	"math"
	"time"
)

// DefaultWeights are the FSRS-6 default model weights.
var DefaultWeights = [21]float64{
	0.212, 1.2931, 2.3065, 8.2956, // initial stability per rating
	6.4133, 0.8334, 3.0194, 0.001, // difficulty
	1.8722, 0.1666, 0.796, 1.4835, // recall stability
	0.0614, 0.2629, 1.6483, 0.6014, // forget stability, hard penalty
	1.8729, 0.5425, 0.0912, 0.0658, // easy bonus, short-term
	0.1542, // decay
}

var lowerBounds = [21]float64{
	0.001, 0.001, 0.001, 0.001,
	1.0, 0.001, 0.001, 0.001,
	0.0, 0.0, 0.001, 0.001,
	0.001, 0.001, 0.0, 0.0,
	1.0, 0.0, 0.0, 0.0,
	0.1,
}

var upperBounds = [21]float64{
	100.0, 100.0, 100.0, 100.0,
	10.0, 4.0, 4.0, 0.75,
	4.5, 0.8, 3.5, 5.0,
	0.25, 0.9, 4.0, 1.0,
	6.0, 2.0, 2.0, 0.8,
	0.8,
}

// FuzzRange widens the fuzz window by Factor for every day of the interval
// that falls inside [Start, End).
type FuzzRange struct {
	Start  float64
	End    float64
	Factor float64
}

// DefaultFuzzRanges are empirically chosen and open to tuning.
var DefaultFuzzRanges = []FuzzRange{
	{Start: 2.5, End: 7.0, Factor: 0.15},
	{Start: 7.0, End: 20.0, Factor: 0.10},
	{Start: 20.0, End: math.Inf(1), Factor: 0.05},
}

// Params holds the parameters for the FSRS algorithm.
type Params struct {
	Weights          [21]float64
	DesiredRetention float64         // target recall probability at the due date
	LearningSteps    []time.Duration // ladder for New/Learning cards
	RelearningSteps  []time.Duration // ladder after a lapse
	MaximumInterval  int             // days
	EnableFuzz       bool
	FuzzRanges       []FuzzRange
}

// DefaultParams provides the parameters used when nothing is configured.
func DefaultParams() *Params {
	return &Params{
		Weights:          DefaultWeights,
		DesiredRetention: 0.9,
		LearningSteps:    []time.Duration{time.Minute, 10 * time.Minute},
		RelearningSteps:  []time.Duration{10 * time.Minute},
		MaximumInterval:  36500,
		EnableFuzz:       true,
		FuzzRanges:       DefaultFuzzRanges,
	}
}

// Validate checks every parameter against its allowed range. NaN is never
// in range.
func (p *Params) Validate() error {
	for i, w := range p.Weights {
		if !(w >= lowerBounds[i] && w <= upperBounds[i]) {
			return fmt.Errorf("%w: w[%d] = %f, bounds [%f, %f]", ErrInvalidParams, i, w, lowerBounds[i], upperBounds[i])
		}
	}
	if !(p.DesiredRetention > 0 && p.DesiredRetention < 1) {
		return fmt.Errorf("%w: desired retention %f outside (0, 1)", ErrInvalidParams, p.DesiredRetention)
	}
	if p.MaximumInterval < 1 {
		return fmt.Errorf("%w: maximum interval %d must be at least 1 day", ErrInvalidParams, p.MaximumInterval)
	}
	for _, steps := range [][]time.Duration{p.LearningSteps, p.RelearningSteps} {
		for _, step := range steps {
			if step <= 0 {
				return fmt.Errorf("%w: non-positive step %s", ErrInvalidParams, step)
			}
		}
	}
	for _, r := range p.FuzzRanges {
		if !(r.Factor >= 0) || r.End < r.Start {
			return fmt.Errorf("%w: fuzz range %+v", ErrInvalidParams, r)
		}
	}
	return nil
}
