// Package scoring turns normalized analysis signals into a producibility
// decision. Pure arithmetic: no I/O, no clock, no randomness, so the engine is
// unit-testable without mocking any external service.
package scoring

import (
	"fmt"

	"github.com/goopick/madstamp/constants"
)

// Signals is the fixed input vector, each value pre-normalized to [0,100] by
// the analysis coordinator.
type Signals struct {
	Resolution           float64
	EdgeClarity          float64
	ColorSimplicity      float64
	BackgroundSeparation float64
	Complexity           float64
	AIJudgment           float64
}

// Weights for the linear combination. Must sum to 1.0.
type Weights struct {
	Resolution           float64
	EdgeClarity          float64
	ColorSimplicity      float64
	BackgroundSeparation float64
	Complexity           float64
	AIJudgment           float64
}

// DefaultWeights are the documented operational values.
func DefaultWeights() Weights {
	return Weights{
		Resolution:           0.15,
		EdgeClarity:          0.25,
		ColorSimplicity:      0.20,
		BackgroundSeparation: 0.15,
		Complexity:           0.15,
		AIJudgment:           0.10,
	}
}

// Sum returns the weight total; callers validate it is 1.0 ± epsilon.
func (w Weights) Sum() float64 {
	return w.Resolution + w.EdgeClarity + w.ColorSimplicity +
		w.BackgroundSeparation + w.Complexity + w.AIJudgment
}

// Result of scoring one signal vector.
type Result struct {
	Score           float64
	Level           constants.Producibility
	Recommendations []string
}

// Engine maps signal vectors to scores and levels.
type Engine struct {
	weights         Weights
	producibleAt    float64 // inclusive lower bound of the producible band
	clarificationAt float64 // inclusive lower bound of the clarification band
	goodEnoughAt    float64 // per-signal floor below which a recommendation is emitted
}

// NewEngine builds an engine. Zero thresholds fall back to the documented
// 80/50/70 policy values.
func NewEngine(w Weights, producibleAt, clarificationAt, goodEnoughAt float64) *Engine {
	if producibleAt == 0 {
		producibleAt = 80
	}
	if clarificationAt == 0 {
		clarificationAt = 50
	}
	if goodEnoughAt == 0 {
		goodEnoughAt = 70
	}
	return &Engine{
		weights:         w,
		producibleAt:    producibleAt,
		clarificationAt: clarificationAt,
		goodEnoughAt:    goodEnoughAt,
	}
}

// NewDefaultEngine uses the documented weights and bands.
func NewDefaultEngine() *Engine {
	return NewEngine(DefaultWeights(), 0, 0, 0)
}

// Score computes the fixed-weight linear combination and bands it. Ties at a
// band boundary belong to the higher band.
func (e *Engine) Score(s Signals) Result {
	score := s.Resolution*e.weights.Resolution +
		s.EdgeClarity*e.weights.EdgeClarity +
		s.ColorSimplicity*e.weights.ColorSimplicity +
		s.BackgroundSeparation*e.weights.BackgroundSeparation +
		s.Complexity*e.weights.Complexity +
		s.AIJudgment*e.weights.AIJudgment

	var level constants.Producibility
	switch {
	case score >= e.producibleAt:
		level = constants.VerdictProducible
	case score >= e.clarificationAt:
		level = constants.VerdictNeedsClarification
	default:
		level = constants.VerdictNotProducible
	}

	return Result{
		Score:           score,
		Level:           level,
		Recommendations: e.recommend(s),
	}
}

// recommend emits one human-readable string per deficient signal, in a fixed
// order so output is deterministic.
func (e *Engine) recommend(s Signals) []string {
	var recs []string
	add := func(value float64, msg string) {
		if value < e.goodEnoughAt {
			recs = append(recs, fmt.Sprintf("%s (scored %.0f, want %.0f+)", msg, value, e.goodEnoughAt))
		}
	}
	add(s.Resolution, "send a higher-resolution image")
	add(s.EdgeClarity, "edges are soft; scan or photograph the artwork more sharply")
	add(s.ColorSimplicity, "reduce the number of colors; stamps print in a single color")
	add(s.BackgroundSeparation, "separate the subject from the background")
	add(s.Complexity, "simplify the design; fine detail is lost when engraved")
	add(s.AIJudgment, "clarify what part of the image should become the stamp")
	return recs
}
