package extraction

import (
	"fmt"
	"sync"
)

// Level buckets a confidence score for user-facing display.
type Level string

const (
	LevelHigh   Level = "high"
	LevelMedium Level = "medium"
	LevelLow    Level = "low"
)

// Default level thresholds.
const (
	defaultHighThreshold   = 0.8
	defaultMediumThreshold = 0.5
)

// Confidence fusion constants. Pattern matching is precise but shallow, so
// the LLM carries more weight; agreement between independent methods earns
// a bonus, a lone method pays a penalty.
const (
	patternWeight       = 0.4
	llmWeight           = 0.6
	agreementBonus      = 0.15
	singleMethodPenalty = 0.1
)

// Thresholds are the score cutoffs for high and medium levels. The low
// threshold is implicitly zero.
type Thresholds struct {
	High   float64 `json:"high"`
	Medium float64 `json:"medium"`
}

// Components records what evidence went into an aggregated score. Pattern
// is normalized to [0,1]; the 0-100 scale never leaves this boundary.
type Components struct {
	Pattern   *float64 `json:"pattern,omitempty"`
	LLM       *float64 `json:"llm,omitempty"`
	Agreement bool     `json:"agreement"`
}

// Confidence is one aggregated, explained score. Immutable once returned.
type Confidence struct {
	Score       float64    `json:"score"` // always in [0,1]
	Level       Level      `json:"level"`
	Components  Components `json:"components"`
	Explanation string     `json:"explanation"`
}

// PatternVerdict is the pattern matcher's classification on its native
// 0-100 scale.
type PatternVerdict struct {
	Related    bool
	Confidence int // 0-100
}

// LLMVerdict is the LLM's classification on its native 0-1 scale.
type LLMVerdict struct {
	Related    bool
	Confidence float64 // 0-1
}

// Aggregator fuses confidence evidence from up to two sources into one
// explainable score. It never fails; out-of-range inputs are clamped.
type Aggregator struct {
	mu         sync.RWMutex
	thresholds Thresholds
}

// NewAggregator creates an aggregator with the default thresholds.
func NewAggregator() *Aggregator {
	return &Aggregator{
		thresholds: Thresholds{High: defaultHighThreshold, Medium: defaultMediumThreshold},
	}
}

// SetThresholds replaces the level thresholds. Values are clamped to [0,1]
// and swapped if medium exceeds high, keeping the aggregator's no-fail
// contract.
func (a *Aggregator) SetThresholds(t Thresholds) {
	t.High = clampScore(t.High)
	t.Medium = clampScore(t.Medium)
	if t.Medium > t.High {
		t.High, t.Medium = t.Medium, t.High
	}
	a.mu.Lock()
	a.thresholds = t
	a.mu.Unlock()
}

// GetThresholds returns the current level thresholds.
func (a *Aggregator) GetThresholds() Thresholds {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.thresholds
}

// Aggregate fuses a pattern confidence (0-100, nil when absent) and an LLM
// confidence (0-1, nil when absent). agreement reports whether the two
// methods reached the same classification; it only matters when both
// sources are present.
func (a *Aggregator) Aggregate(patternConfidence *int, llmConfidence *float64, agreement bool) Confidence {
	var c Confidence
	c.Components.Agreement = agreement

	var pattern *float64
	if patternConfidence != nil {
		normalized := clampScore(float64(*patternConfidence) / 100.0)
		pattern = &normalized
		c.Components.Pattern = &normalized
	}
	var llmScore *float64
	if llmConfidence != nil {
		normalized := clampScore(*llmConfidence)
		llmScore = &normalized
		c.Components.LLM = &normalized
	}

	switch {
	case pattern != nil && llmScore != nil:
		c.Score = *pattern*patternWeight + *llmScore*llmWeight
		verdict := "disagree"
		if agreement {
			c.Score += agreementBonus
			verdict = "agree"
		}
		c.Explanation = fmt.Sprintf("Pattern matching (%.0f%%) and LLM analysis (%.0f%%) %s",
			*pattern*100, *llmScore*100, verdict)

	case llmScore != nil:
		c.Score = *llmScore - singleMethodPenalty
		c.Explanation = fmt.Sprintf("LLM analysis only (%.0f%%)", *llmScore*100)

	case pattern != nil:
		c.Score = *pattern - singleMethodPenalty
		c.Explanation = fmt.Sprintf("Pattern matching only (%.0f%%)", *pattern*100)

	default:
		c.Score = 0
		c.Explanation = "No confidence data available"
	}

	c.Score = clampScore(c.Score)
	c.Level = a.ScoreToLevel(c.Score)
	return c
}

// AggregateForTransaction fuses two source verdicts. Agreement is computed
// from the classifications when both are present; a single verdict falls
// through to the single-source branches of Aggregate.
func (a *Aggregator) AggregateForTransaction(pattern *PatternVerdict, llmVerdict *LLMVerdict) Confidence {
	var patternConfidence *int
	var llmConfidence *float64
	agreement := true

	if pattern != nil {
		patternConfidence = &pattern.Confidence
	}
	if llmVerdict != nil {
		llmConfidence = &llmVerdict.Confidence
	}
	if pattern != nil && llmVerdict != nil {
		agreement = pattern.Related == llmVerdict.Related
	}

	return a.Aggregate(patternConfidence, llmConfidence, agreement)
}

// ScoreToLevel maps a score to its level under the current thresholds.
func (a *Aggregator) ScoreToLevel(score float64) Level {
	t := a.GetThresholds()
	switch {
	case score >= t.High:
		return LevelHigh
	case score >= t.Medium:
		return LevelMedium
	default:
		return LevelLow
	}
}

// MeetsThreshold reports whether score is at or above the numeric threshold
// for minLevel. The low threshold is zero, so every score meets LevelLow.
func (a *Aggregator) MeetsThreshold(score float64, minLevel Level) bool {
	t := a.GetThresholds()
	switch minLevel {
	case LevelHigh:
		return score >= t.High
	case LevelMedium:
		return score >= t.Medium
	default:
		return score >= 0
	}
}

func clampScore(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
