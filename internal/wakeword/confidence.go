package wakeword

import (
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"angelvoice/internal/domain"
)

// Heuristics holds the tunable constants of confidence correction and
// threshold adjustment.
type Heuristics struct {
	Base         float64 `mapstructure:"base"`
	PerCharacter float64 `mapstructure:"per_character"`
	LengthCap    float64 `mapstructure:"length_cap"`

	AgreementSimilarity float64 `mapstructure:"agreement_similarity"`
	AgreementBonus      float64 `mapstructure:"agreement_bonus"`
	AgreementCap        float64 `mapstructure:"agreement_cap"`
	MaxAlternatives     int     `mapstructure:"max_alternatives"`

	CandidateBonus        float64       `mapstructure:"candidate_bonus"`
	CandidateCap          float64       `mapstructure:"candidate_cap"`
	RecentDetectionBonus  float64       `mapstructure:"recent_detection_bonus"`
	RecentDetectionCap    float64       `mapstructure:"recent_detection_cap"`
	RecentDetectionWindow time.Duration `mapstructure:"recent_detection_window"`

	PositionBonus float64 `mapstructure:"position_bonus"`
	PositionCap   float64 `mapstructure:"position_cap"`

	Floor   float64 `mapstructure:"floor"`
	Ceiling float64 `mapstructure:"ceiling"`

	ThresholdReduction float64 `mapstructure:"threshold_reduction"`
	ThresholdFloor     float64 `mapstructure:"threshold_floor"`
	FuzzyMatch         float64 `mapstructure:"fuzzy_match"`
}

func DefaultHeuristics() Heuristics {
	return Heuristics{
		Base:                  0.4,
		PerCharacter:          0.02,
		LengthCap:             0.9,
		AgreementSimilarity:   0.7,
		AgreementBonus:        0.1,
		AgreementCap:          0.95,
		MaxAlternatives:       3,
		CandidateBonus:        0.2,
		CandidateCap:          0.9,
		RecentDetectionBonus:  0.1,
		RecentDetectionCap:    0.95,
		RecentDetectionWindow: 5 * time.Second,
		PositionBonus:         0.1,
		PositionCap:           0.9,
		Floor:                 0.3,
		Ceiling:               0.95,
		ThresholdReduction:    0.3,
		ThresholdFloor:        0.3,
		FuzzyMatch:            0.6,
	}
}

// Evidence is what correction knows about a result beyond its text.
type Evidence struct {
	Transcript   string
	Alternatives []domain.Alternative
	ResultIndex  int
	Candidate    bool
	// SinceLastDetection is negative when no detection has happened yet.
	SinceLastDetection time.Duration
}

// Correct computes a confidence for results the engine scored as zero.
func (h Heuristics) Correct(ev Evidence) float64 {
	length := utf8.RuneCountInString(strings.TrimSpace(ev.Transcript))
	confidence := math.Min(h.Base+float64(length)*h.PerCharacter, h.LengthCap)

	if len(ev.Alternatives) > 1 {
		first := normalize(ev.Alternatives[0].Transcript)
		limit := len(ev.Alternatives)
		if h.MaxAlternatives > 0 && limit > h.MaxAlternatives {
			limit = h.MaxAlternatives
		}
		agreeing := 0
		for _, alt := range ev.Alternatives[1:limit] {
			if Similarity(first, normalize(alt.Transcript)) > h.AgreementSimilarity {
				agreeing++
			}
		}
		if agreeing > 0 {
			confidence = math.Min(confidence+float64(agreeing)*h.AgreementBonus, h.AgreementCap)
		}
	}

	if ev.Candidate {
		confidence = math.Min(confidence+h.CandidateBonus, h.CandidateCap)
		if ev.SinceLastDetection >= 0 && ev.SinceLastDetection < h.RecentDetectionWindow {
			confidence = math.Min(confidence+h.RecentDetectionBonus, h.RecentDetectionCap)
		}
	}

	if ev.ResultIndex == 0 {
		confidence = math.Min(confidence+h.PositionBonus, h.PositionCap)
	}

	confidence = math.Max(h.Floor, math.Min(h.Ceiling, confidence))
	return math.Round(confidence*100) / 100
}

// Resolve returns the engine confidence when it is usable, otherwise the
// corrected value.
func (h Heuristics) Resolve(raw float64, ev Evidence) float64 {
	if raw > 0 && !math.IsNaN(raw) {
		return raw
	}
	return h.Correct(ev)
}

// EffectiveThreshold lowers threshold for wake word candidates.
func (h Heuristics) EffectiveThreshold(threshold float64, candidate bool) float64 {
	if !candidate {
		return threshold
	}
	return math.Max(h.ThresholdFloor, threshold-h.ThresholdReduction)
}
