package extraction

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func intPtr(v int) *int           { return &v }
func floatPtr(v float64) *float64 { return &v }

func TestAggregator_BothSources(t *testing.T) {
	a := NewAggregator()

	// Weighted 0.8*0.4 + 0.9*0.6 = 0.86, plus agreement bonus, clamped.
	c := a.Aggregate(intPtr(80), floatPtr(0.9), true)
	assert.GreaterOrEqual(t, c.Score, 0.86)
	assert.LessOrEqual(t, c.Score, 1.0)
	assert.Equal(t, LevelHigh, c.Level)
	assert.True(t, c.Components.Agreement)
	assert.NotNil(t, c.Components.Pattern)
	assert.NotNil(t, c.Components.LLM)
	assert.Contains(t, c.Explanation, "agree")

	// Disagreement: no bonus, explanation says so.
	c = a.Aggregate(intPtr(80), floatPtr(0.9), false)
	assert.InDelta(t, 0.86, c.Score, 1e-9)
	assert.Contains(t, c.Explanation, "disagree")
}

func TestAggregator_SingleSource(t *testing.T) {
	a := NewAggregator()

	c := a.Aggregate(nil, floatPtr(0.85), false)
	assert.InDelta(t, 0.75, c.Score, 1e-9)
	assert.Equal(t, LevelMedium, c.Level)
	assert.Contains(t, c.Explanation, "LLM analysis only")
	assert.Nil(t, c.Components.Pattern)

	c = a.Aggregate(intPtr(80), nil, false)
	assert.InDelta(t, 0.7, c.Score, 1e-9)
	assert.Equal(t, LevelMedium, c.Level)
	assert.Contains(t, c.Explanation, "Pattern matching only")
	assert.Nil(t, c.Components.LLM)
}

func TestAggregator_NoSources(t *testing.T) {
	a := NewAggregator()

	c := a.Aggregate(nil, nil, false)
	assert.Equal(t, 0.0, c.Score)
	assert.Equal(t, LevelLow, c.Level)
	assert.Equal(t, "No confidence data available", c.Explanation)
}

func TestAggregator_Clamping(t *testing.T) {
	a := NewAggregator()

	// Out-of-range inputs are clamped, not rejected.
	c := a.Aggregate(intPtr(150), floatPtr(1.5), true)
	assert.LessOrEqual(t, c.Score, 1.0)

	c = a.Aggregate(intPtr(-5), nil, false)
	assert.Equal(t, 0.0, c.Score)
}

func TestAggregator_ScoreToLevel(t *testing.T) {
	a := NewAggregator()

	tests := []struct {
		score float64
		want  Level
	}{
		{0.9, LevelHigh},
		{0.8, LevelHigh},
		{0.7, LevelMedium},
		{0.5, LevelMedium},
		{0.4, LevelLow},
		{0.1, LevelLow},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, a.ScoreToLevel(tt.score), "score %v", tt.score)
	}
}

func TestAggregator_Thresholds(t *testing.T) {
	a := NewAggregator()
	assert.Equal(t, Thresholds{High: 0.8, Medium: 0.5}, a.GetThresholds())

	a.SetThresholds(Thresholds{High: 0.9, Medium: 0.6})
	assert.Equal(t, LevelMedium, a.ScoreToLevel(0.85))

	// Invalid thresholds are clamped and reordered, never rejected.
	a.SetThresholds(Thresholds{High: 0.3, Medium: 1.7})
	got := a.GetThresholds()
	assert.Equal(t, Thresholds{High: 1.0, Medium: 0.3}, got)
}

func TestAggregator_MeetsThreshold(t *testing.T) {
	a := NewAggregator()

	assert.True(t, a.MeetsThreshold(0.9, LevelHigh))
	assert.False(t, a.MeetsThreshold(0.7, LevelHigh))
	assert.True(t, a.MeetsThreshold(0.7, LevelMedium))
	assert.False(t, a.MeetsThreshold(0.3, LevelMedium))
	assert.True(t, a.MeetsThreshold(0.0, LevelLow))
}

func TestAggregator_AggregateForTransaction(t *testing.T) {
	a := NewAggregator()

	// Agreement is derived from the classifications.
	c := a.AggregateForTransaction(
		&PatternVerdict{Related: true, Confidence: 80},
		&LLMVerdict{Related: true, Confidence: 0.9},
	)
	assert.True(t, c.Components.Agreement)
	assert.Equal(t, LevelHigh, c.Level)

	c = a.AggregateForTransaction(
		&PatternVerdict{Related: false, Confidence: 80},
		&LLMVerdict{Related: true, Confidence: 0.9},
	)
	assert.False(t, c.Components.Agreement)
	assert.InDelta(t, 0.86, c.Score, 1e-9)

	// A missing source falls through to the single-source branches.
	c = a.AggregateForTransaction(nil, &LLMVerdict{Related: true, Confidence: 0.85})
	assert.InDelta(t, 0.75, c.Score, 1e-9)

	c = a.AggregateForTransaction(&PatternVerdict{Related: true, Confidence: 60}, nil)
	assert.InDelta(t, 0.5, c.Score, 1e-9)

	c = a.AggregateForTransaction(nil, nil)
	assert.Equal(t, 0.0, c.Score)
	assert.Equal(t, LevelLow, c.Level)
}
