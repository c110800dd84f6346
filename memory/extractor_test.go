package memory

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/BaSui01/memflow/types"
)

func findFact(t *testing.T, facts []types.Fact, predicate, object string) types.Fact {
	t.Helper()
	for _, f := range facts {
		if f.Predicate == predicate && f.Object == object {
			return f
		}
	}
	t.Fatalf("fact %q %q not found in %v", predicate, object, facts)
	return types.Fact{}
}

func TestExtractPreferences(t *testing.T) {
	t.Parallel()
	e := NewExtractor(nil)

	facts, degraded := e.Extract(context.Background(), "u1", "I love hiking. I hate spam, and I'm into jazz.")
	require.False(t, degraded)

	hiking := findFact(t, facts, "prefers", "hiking")
	require.Equal(t, "user", hiking.Subject)
	require.Equal(t, types.FactPreference, hiking.Kind)
	require.InDelta(t, 0.7, hiking.Confidence, 1e-9)

	findFact(t, facts, "dislikes", "spam")
	findFact(t, facts, "prefers", "jazz")
}

func TestExtractFavoriteForm(t *testing.T) {
	t.Parallel()
	e := NewExtractor(nil)

	facts, _ := e.Extract(context.Background(), "u1", "My favorite color is teal.")
	f := findFact(t, facts, "favorite_color", "teal")
	require.InDelta(t, 0.8, f.Confidence, 1e-9)
}

func TestExtractBiographical(t *testing.T) {
	t.Parallel()
	e := NewExtractor(nil)

	facts, _ := e.Extract(context.Background(), "u1", "I live in Lisbon. My name is Ana. I'm 34 years old.")

	lisbon := findFact(t, facts, "has_attribute", "Lisbon")
	require.Equal(t, types.FactBiographical, lisbon.Kind)
	require.InDelta(t, 0.85, lisbon.Confidence, 1e-9)

	findFact(t, facts, "has_attribute", "name Ana")
	findFact(t, facts, "has_attribute", "34 years old")
}

func TestExtractBehavioralAndConjunction(t *testing.T) {
	t.Parallel()
	e := NewExtractor(nil)

	facts, _ := e.Extract(context.Background(), "u1", "I love hiking and I usually work remotely.")

	findFact(t, facts, "prefers", "hiking")
	remote := findFact(t, facts, "typically", "work remotely")
	require.Equal(t, types.FactBehavioral, remote.Kind)
	require.InDelta(t, 0.6, remote.Confidence, 1e-9)
}

func TestExtractEmptyAndGarbage(t *testing.T) {
	t.Parallel()
	e := NewExtractor(nil)

	facts, degraded := e.Extract(context.Background(), "u1", "")
	require.Empty(t, facts)
	require.False(t, degraded)

	facts, degraded = e.Extract(context.Background(), "u1", "zxcvb qwerty 12345 !!!")
	require.Empty(t, facts)
	require.False(t, degraded)
}

func TestExtractDedupsAcrossStrategies(t *testing.T) {
	t.Parallel()
	e := NewExtractor(nil)

	// Two sentences producing the same triple collapse to one fact.
	facts, _ := e.Extract(context.Background(), "u1", "I love hiking. I LOVE hiking.")
	count := 0
	for _, f := range facts {
		if f.Predicate == "prefers" && f.Object == "hiking" {
			count++
		}
	}
	require.Equal(t, 1, count)
}

type stubModel struct {
	output string
	err    error
}

func (m *stubModel) Complete(context.Context, string) (string, error) {
	return m.output, m.err
}

func TestModelStrategyParsesJSON(t *testing.T) {
	t.Parallel()

	model := &stubModel{output: "```json\n" +
		`[{"subject":"user","predicate":"works_at","object":"Acme","type":"biographical"},` +
		`{"object":"chess","type":"hobby"}]` + "\n```"}
	e := NewExtractor(nil, WithModelStrategy(model))

	facts, degraded := e.Extract(context.Background(), "u1", "random small talk")
	require.False(t, degraded)
	require.Len(t, facts, 2)

	acme := findFact(t, facts, "works_at", "Acme")
	require.InDelta(t, modelConfidence, acme.Confidence, 1e-9)

	// Missing predicate and unknown type fall back to defaults.
	chess := findFact(t, facts, "related_to", "chess")
	require.Equal(t, types.FactDeclarative, chess.Kind)
	require.Equal(t, "user", chess.Subject)
}

func TestModelStrategyDegradesOnFailure(t *testing.T) {
	t.Parallel()

	for _, model := range []*stubModel{
		{err: errors.New("model unavailable")},
		{output: "sorry, I cannot produce JSON"},
	} {
		e := NewExtractor(nil, WithModelStrategy(model))
		facts, degraded := e.Extract(context.Background(), "u1", "I love hiking.")
		require.True(t, degraded)
		// Rule output survives the model failure.
		findFact(t, facts, "prefers", "hiking")
	}
}

func TestSourceTextTruncation(t *testing.T) {
	t.Parallel()
	e := NewExtractor(nil)

	long := "I love hiking because " + strings.Repeat("the trail is long ", 20)
	facts, _ := e.Extract(context.Background(), "u1", long)
	require.NotEmpty(t, facts)
	for _, f := range facts {
		require.LessOrEqual(t, len([]rune(f.SourceText)), sourceTextLimit)
	}
}
