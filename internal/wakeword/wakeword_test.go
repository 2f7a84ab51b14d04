package wakeword

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"angelvoice/internal/domain"
)

func TestSimilarity(t *testing.T) {
	t.Parallel()

	cases := []struct {
		a, b string
		want float64
	}{
		{"", "", 1.0},
		{"angel", "angel", 1.0},
		{"kitten", "sitting", 4.0 / 7.0},
		{"angèle", "angele", 5.0 / 6.0},
		{"abc", "", 0},
	}
	for _, tc := range cases {
		assert.InDelta(t, tc.want, Similarity(tc.a, tc.b), 1e-9, "%q vs %q", tc.a, tc.b)
		assert.InDelta(t, tc.want, Similarity(tc.b, tc.a), 1e-9, "%q vs %q reversed", tc.b, tc.a)
	}
}

func TestStripDiacritics(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "Angele", StripDiacritics("Angèle"))
	assert.Equal(t, "Ca va tres bien", StripDiacritics("Ça va très bien"))
	assert.Equal(t, "plain", StripDiacritics("plain"))
}

func TestMatcherCandidates(t *testing.T) {
	t.Parallel()

	m := NewMatcher("Angel", nil, 0.6)
	for _, transcript := range []string{"angel", "angèle", "anjel", "Angie", "ANGELA", "  andel "} {
		assert.True(t, m.IsCandidate(transcript), "expected candidate: %q", transcript)
	}
	for _, transcript := range []string{"bonjour il fait beau", "quelle heure est-il", ""} {
		assert.False(t, m.IsCandidate(transcript), "unexpected candidate: %q", transcript)
	}
}

func TestMatcherContainsDiacriticVariant(t *testing.T) {
	t.Parallel()

	m := NewMatcher("Angel", nil, 0.6)
	assert.True(t, m.Contains("bonjour angele comment vas-tu"))
	assert.True(t, m.Contains("Angèle"))
	assert.True(t, m.Contains("angél"), "similarity should accept one accented substitution")
}

func TestMatcherFollowsConfiguredWord(t *testing.T) {
	t.Parallel()

	m := NewMatcher("Computer", nil, 0.6)
	assert.Equal(t, "Computer", m.Word())
	assert.Equal(t, []string{"computer"}, m.Variants())

	assert.True(t, m.Contains("hey computer lights on"))
	assert.True(t, m.Contains("computr"))
	assert.False(t, m.Contains("angel"))
	assert.False(t, m.Contains("bonjour angele"))
}

func TestMatcherExtraVariants(t *testing.T) {
	t.Parallel()

	m := NewMatcher("Jarvis", []string{"jervis", "JARVIS"}, 0.6)
	assert.Equal(t, []string{"jarvis", "jervis"}, m.Variants())
	assert.True(t, m.Contains("ok jervis"))
}

func TestCorrectWakeWordCandidate(t *testing.T) {
	t.Parallel()

	h := DefaultHeuristics()

	got := h.Correct(Evidence{Transcript: "angel", Candidate: true, SinceLastDetection: -1})
	assert.InDelta(t, 0.8, got, 1e-9)

	recent := h.Correct(Evidence{Transcript: "angel", Candidate: true, SinceLastDetection: time.Second})
	assert.InDelta(t, 0.9, recent, 1e-9)

	stale := h.Correct(Evidence{Transcript: "angel", Candidate: true, SinceLastDetection: 6 * time.Second})
	assert.InDelta(t, 0.8, stale, 1e-9)
}

func TestCorrectAlternativeAgreement(t *testing.T) {
	t.Parallel()

	h := DefaultHeuristics()
	alts := []domain.Alternative{
		{Transcript: "turn on the light"},
		{Transcript: "turn on the lights"},
		{Transcript: "Turn on the night"},
		{Transcript: "turn on the light"},
	}

	got := h.Correct(Evidence{Transcript: "turn on the light", Alternatives: alts, ResultIndex: 1, SinceLastDetection: -1})
	assert.InDelta(t, 0.94, got, 1e-9, "only the two alternatives after the primary count")

	none := h.Correct(Evidence{
		Transcript:         "turn on the light",
		Alternatives:       []domain.Alternative{{Transcript: "turn on the light"}, {Transcript: "something else entirely"}},
		ResultIndex:        1,
		SinceLastDetection: -1,
	})
	assert.InDelta(t, 0.74, none, 1e-9)
}

func TestCorrectBoundsAndMonotonicity(t *testing.T) {
	t.Parallel()

	h := DefaultHeuristics()
	previous := 0.0
	for n := 0; n <= 80; n++ {
		transcript := strings.Repeat("x", n)
		for _, index := range []int{0, 1} {
			got := h.Correct(Evidence{Transcript: transcript, ResultIndex: index, SinceLastDetection: -1})
			require.GreaterOrEqual(t, got, 0.3)
			require.LessOrEqual(t, got, 0.95)
		}
		got := h.Correct(Evidence{Transcript: transcript, ResultIndex: 1, SinceLastDetection: -1})
		require.GreaterOrEqual(t, got, previous, "length %d", n)
		previous = got
	}
	assert.InDelta(t, 0.9, previous, 1e-9)
}

func TestCorrectClampsToFloor(t *testing.T) {
	t.Parallel()

	h := DefaultHeuristics()
	h.Base = 0.05
	h.PerCharacter = 0
	assert.InDelta(t, 0.3, h.Correct(Evidence{Transcript: "hi", ResultIndex: 2, SinceLastDetection: -1}), 1e-9)
}

func TestResolveKeepsEngineConfidence(t *testing.T) {
	t.Parallel()

	h := DefaultHeuristics()
	assert.InDelta(t, 0.42, h.Resolve(0.42, Evidence{Transcript: "anything"}), 1e-9)
	assert.InDelta(t, 0.8, h.Resolve(0, Evidence{Transcript: "angel", Candidate: true, SinceLastDetection: -1}), 1e-9)
}

func TestEffectiveThreshold(t *testing.T) {
	t.Parallel()

	h := DefaultHeuristics()
	assert.InDelta(t, 0.7, h.EffectiveThreshold(0.7, false), 1e-9)
	assert.InDelta(t, 0.4, h.EffectiveThreshold(0.7, true), 1e-9)
	assert.InDelta(t, 0.3, h.EffectiveThreshold(0.5, true), 1e-9)
}
