package scoring

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goopick/madstamp/constants"
)

func uniform(v float64) Signals {
	return Signals{
		Resolution:           v,
		EdgeClarity:          v,
		ColorSimplicity:      v,
		BackgroundSeparation: v,
		Complexity:           v,
		AIJudgment:           v,
	}
}

func TestDefaultWeightsSumToOne(t *testing.T) {
	assert.InDelta(t, 1.0, DefaultWeights().Sum(), 1e-9)
}

func TestScoreIsWeightedLinearSum(t *testing.T) {
	e := NewDefaultEngine()
	s := Signals{
		Resolution:           90,
		EdgeClarity:          80,
		ColorSimplicity:      70,
		BackgroundSeparation: 60,
		Complexity:           50,
		AIJudgment:           40,
	}
	want := 90*0.15 + 80*0.25 + 70*0.20 + 60*0.15 + 50*0.15 + 40*0.10
	got := e.Score(s)
	assert.InDelta(t, want, got.Score, 1e-9)
}

func TestLevelBands(t *testing.T) {
	e := NewDefaultEngine()
	tests := []struct {
		name  string
		value float64
		want  constants.Producibility
	}{
		{"well above producible", 92, constants.VerdictProducible},
		{"exactly at producible boundary", 80, constants.VerdictProducible},
		{"just below producible", 79.9, constants.VerdictNeedsClarification},
		{"mid band", 60, constants.VerdictNeedsClarification},
		{"exactly at clarification boundary", 50, constants.VerdictNeedsClarification},
		{"just below clarification", 49.9, constants.VerdictNotProducible},
		{"hopeless", 10, constants.VerdictNotProducible},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Uniform signals with weights summing to 1.0 score exactly the value.
			got := e.Score(uniform(tt.value))
			assert.InDelta(t, tt.value, got.Score, 1e-9)
			assert.Equal(t, tt.want, got.Level)
		})
	}
}

func TestRecommendationsPerDeficientSignal(t *testing.T) {
	e := NewDefaultEngine()

	got := e.Score(uniform(85))
	assert.Empty(t, got.Recommendations, "no recommendations when every signal is good")

	s := uniform(85)
	s.EdgeClarity = 40
	s.ColorSimplicity = 69.9
	got = e.Score(s)
	require.Len(t, got.Recommendations, 2)
	assert.Contains(t, got.Recommendations[0], "edges are soft")
	assert.Contains(t, got.Recommendations[1], "reduce the number of colors")
}

func TestScoreIsDeterministic(t *testing.T) {
	e := NewDefaultEngine()
	s := Signals{
		Resolution:           73.2,
		EdgeClarity:          64.1,
		ColorSimplicity:      88.8,
		BackgroundSeparation: 51.5,
		Complexity:           42.0,
		AIJudgment:           67.3,
	}
	first := e.Score(s)
	for i := 0; i < 100; i++ {
		got := e.Score(s)
		assert.Equal(t, first.Score, got.Score)
		assert.Equal(t, first.Level, got.Level)
		assert.Equal(t, first.Recommendations, got.Recommendations)
	}
}

func TestCustomBands(t *testing.T) {
	e := NewEngine(DefaultWeights(), 90, 60, 0)
	assert.Equal(t, constants.VerdictNeedsClarification, e.Score(uniform(85)).Level)
	assert.Equal(t, constants.VerdictProducible, e.Score(uniform(90)).Level)
	assert.Equal(t, constants.VerdictNotProducible, e.Score(uniform(59)).Level)
}
