package fsrs

import "math"

const (
	minStability  = 0.001
	minDifficulty = 1.0
	maxDifficulty = 10.0
)

// model evaluates the FSRS formulas for one weight vector.
type model struct {
	w      [21]float64
	decay  float64 // -w[20]
	factor float64 // 0.9^(1/decay) - 1
}

func newModel(w [21]float64) model {
	decay := -w[20]
	return model{
		w:      w,
		decay:  decay,
		factor: math.Pow(0.9, 1/decay) - 1,
	}
}

// retrievability is the probability of recall after elapsedDays:
// R = (1 + factor * t / S) ^ decay
func (m *model) retrievability(elapsedDays, stability float64) float64 {
	return math.Pow(1+m.factor*elapsedDays/stability, m.decay)
}

func (m *model) initStability(r Rating) float64 {
	return clampStability(m.w[r-1])
}

// initDifficulty: D0 = w4 - e^(w5 * (G - 1)) + 1
func (m *model) initDifficulty(r Rating) float64 {
	return m.w[4] - math.Exp(m.w[5]*float64(r-1)) + 1
}

// nextInterval is the number of days until retrievability falls to retention.
func (m *model) nextInterval(stability, retention float64, maxInterval int) int {
	ivl := stability / m.factor * (math.Pow(retention, 1/m.decay) - 1)
	days := int(math.Round(ivl))
	return min(max(days, 1), maxInterval)
}

// nextDifficulty applies linear damping towards 10 and mean reversion
// towards D0(Easy).
func (m *model) nextDifficulty(d float64, r Rating) float64 {
	delta := -m.w[6] * (float64(r) - 3)
	damped := d + (10-d)*delta/9
	reverted := m.w[7]*m.initDifficulty(Easy) + (1-m.w[7])*damped
	return clampDifficulty(reverted)
}

// recallStability: S' = S * (1 + e^w8 * (11-D) * S^-w9 * (e^((1-R)*w10) - 1) * hard * easy)
func (m *model) recallStability(d, s, r float64, rating Rating) float64 {
	hardPenalty, easyBonus := 1.0, 1.0
	switch rating {
	case Hard:
		hardPenalty = m.w[15]
	case Easy:
		easyBonus = m.w[16]
	}
	growth := math.Exp(m.w[8]) *
		(11 - d) *
		math.Pow(s, -m.w[9]) *
		(math.Exp((1-r)*m.w[10]) - 1) *
		hardPenalty * easyBonus
	return clampStability(s * (1 + growth))
}

// lapseStability is the post-lapse stability, never above the short-term
// decay of the current stability.
func (m *model) lapseStability(d, s, r float64) float64 {
	long := m.w[11] *
		math.Pow(d, -m.w[12]) *
		(math.Pow(s+1, m.w[13]) - 1) *
		math.Exp((1-r)*m.w[14])
	short := s / math.Exp(m.w[17]*m.w[18])
	return clampStability(math.Min(long, short))
}

// shortTermStability handles reviews made less than a day apart.
func (m *model) shortTermStability(s float64, r Rating) float64 {
	inc := math.Exp(m.w[17]*(float64(r)-3+m.w[18])) * math.Pow(s, -m.w[19])
	if r == Good || r == Easy {
		inc = math.Max(inc, 1)
	}
	return clampStability(s * inc)
}

func clampStability(s float64) float64 {
	return math.Max(s, minStability)
}

func clampDifficulty(d float64) float64 {
	return math.Min(math.Max(d, minDifficulty), maxDifficulty)
}
