package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/BaSui01/memflow/types"
)

// sourceTextLimit bounds how much of the original utterance is kept on a fact.
const sourceTextLimit = 100

// Strategy extracts facts from a single utterance. Strategies run in order;
// duplicate triples across strategies collapse to the first occurrence.
type Strategy interface {
	Name() string
	Extract(ctx context.Context, text string) ([]types.Fact, error)
}

// Extractor runs a pipeline of extraction strategies over conversation text.
// Rule strategies never fail; a failing model strategy degrades the pipeline
// to rule-only output instead of failing the caller.
type Extractor struct {
	strategies []Strategy
	logger     *zap.Logger
	now        func() time.Time
}

// ExtractorOption customizes an Extractor.
type ExtractorOption func(*Extractor)

// WithModelStrategy appends a model-backed strategy after the rule strategies.
func WithModelStrategy(client ModelClient) ExtractorOption {
	return func(e *Extractor) {
		e.strategies = append(e.strategies, NewModelStrategy(client, e.logger))
	}
}

// WithStrategies replaces the strategy pipeline entirely.
func WithStrategies(strategies ...Strategy) ExtractorOption {
	return func(e *Extractor) {
		e.strategies = strategies
	}
}

// WithClock injects a clock for tests.
func WithClock(now func() time.Time) ExtractorOption {
	return func(e *Extractor) {
		e.now = now
	}
}

// NewExtractor builds an extractor with the default rule strategies:
// preference, biographical, behavioral.
func NewExtractor(logger *zap.Logger, opts ...ExtractorOption) *Extractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Extractor{
		strategies: []Strategy{
			newPreferenceStrategy(),
			newBiographicalStrategy(),
			newBehavioralStrategy(),
		},
		logger: logger.With(zap.String("component", "extractor")),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract runs every strategy over text and returns the deduplicated facts.
// The degraded flag reports that at least one strategy failed; the returned
// facts are still valid. Empty or unparseable input yields an empty slice,
// never an error.
func (e *Extractor) Extract(ctx context.Context, ownerID, text string) ([]types.Fact, bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, false
	}

	var (
		facts    []types.Fact
		seen     = make(map[string]struct{})
		degraded bool
	)
	for _, s := range e.strategies {
		extracted, err := s.Extract(ctx, text)
		if err != nil {
			degraded = true
			e.logger.Warn("extraction strategy failed",
				zap.String("strategy", s.Name()),
				zap.Error(err),
			)
			continue
		}
		for _, f := range extracted {
			h := FactHash(f.Subject, f.Predicate, f.Object)
			if _, dup := seen[h]; dup {
				continue
			}
			seen[h] = struct{}{}
			f.ID = uuid.NewString()
			f.OwnerID = ownerID
			f.CreatedAt = e.now()
			if f.SourceText == "" {
				f.SourceText = truncateRunes(text, sourceTextLimit)
			}
			facts = append(facts, f)
		}
	}
	return facts, degraded
}

func truncateRunes(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}

// -----------------------------------------------------------------------------
// Rule strategies
// -----------------------------------------------------------------------------

// A clause capture stops at sentence punctuation, a semicolon, a conjunction,
// or end of input, so "I love hiking and I usually work remotely" yields two
// separate objects instead of one run-on clause.
const clauseEnd = `(?:\.|,|;| and |$)`

type rulePattern struct {
	re         *regexp.Regexp
	confidence float64
	// predicate may reference capture groups via build.
	build func(match []string) (predicate, object string)
}

type ruleStrategy struct {
	name     string
	kind     types.FactKind
	patterns []rulePattern
}

func (s *ruleStrategy) Name() string { return s.name }

func (s *ruleStrategy) Extract(_ context.Context, text string) ([]types.Fact, error) {
	var facts []types.Fact
	for _, p := range s.patterns {
		for _, match := range p.re.FindAllStringSubmatch(text, -1) {
			predicate, object := p.build(match)
			object = strings.TrimSpace(object)
			if object == "" {
				continue
			}
			facts = append(facts, types.Fact{
				Subject:    "user",
				Predicate:  predicate,
				Object:     object,
				Kind:       s.kind,
				Confidence: p.confidence,
			})
		}
	}
	return facts, nil
}

func fixed(predicate string, objectGroup int) func([]string) (string, string) {
	return func(match []string) (string, string) {
		return predicate, match[objectGroup]
	}
}

func newPreferenceStrategy() *ruleStrategy {
	return &ruleStrategy{
		name: "preference",
		kind: types.FactPreference,
		patterns: []rulePattern{
			{
				re:         regexp.MustCompile(`(?i)\bI (?:like|love|prefer|enjoy) (.+?)` + clauseEnd),
				confidence: 0.7,
				build:      fixed("prefers", 1),
			},
			{
				re:         regexp.MustCompile(`(?i)\bI (?:hate|dislike) (.+?)` + clauseEnd),
				confidence: 0.7,
				build:      fixed("dislikes", 1),
			},
			{
				re:         regexp.MustCompile(`(?i)\bI'?m (?:a fan of|into|interested in) (.+?)` + clauseEnd),
				confidence: 0.7,
				build:      fixed("prefers", 1),
			},
			{
				re:         regexp.MustCompile(`(?i)\bmy favou?rite (\w+) is (.+?)` + clauseEnd),
				confidence: 0.8,
				build: func(match []string) (string, string) {
					return "favorite_" + strings.ToLower(match[1]), match[2]
				},
			},
		},
	}
}

func newBiographicalStrategy() *ruleStrategy {
	return &ruleStrategy{
		name: "biographical",
		kind: types.FactBiographical,
		patterns: []rulePattern{
			{
				re:         regexp.MustCompile(`(?i)\bI (?:am|work as|live in|was born in) (.+?)` + clauseEnd),
				confidence: 0.85,
				build:      fixed("has_attribute", 1),
			},
			{
				re:         regexp.MustCompile(`(?i)\bmy (name|job|location|age) is (.+?)` + clauseEnd),
				confidence: 0.85,
				build: func(match []string) (string, string) {
					return "has_attribute", strings.ToLower(match[1]) + " " + match[2]
				},
			},
			{
				re:         regexp.MustCompile(`(?i)\bI'?m (\d+) years old\b`),
				confidence: 0.85,
				build: func(match []string) (string, string) {
					return "has_attribute", match[1] + " years old"
				},
			},
		},
	}
}

func newBehavioralStrategy() *ruleStrategy {
	return &ruleStrategy{
		name: "behavioral",
		kind: types.FactBehavioral,
		patterns: []rulePattern{
			{
				re:         regexp.MustCompile(`(?i)\bI (?:usually|always|often|sometimes|never) (.+?)` + clauseEnd),
				confidence: 0.6,
				build:      fixed("typically", 1),
			},
			{
				re:         regexp.MustCompile(`(?i)\bI tend to (.+?)` + clauseEnd),
				confidence: 0.6,
				build:      fixed("typically", 1),
			},
		},
	}
}

// -----------------------------------------------------------------------------
// Model strategy
// -----------------------------------------------------------------------------

// ModelClient is the minimal completion surface the model strategy needs.
type ModelClient interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// modelConfidence is assigned to every model-extracted fact; the model's own
// certainty is not trusted.
const modelConfidence = 0.75

const modelPrompt = `Extract factual statements about the user from the text below.
Respond with a JSON array only, no prose. Each element:
{"subject": "...", "predicate": "...", "object": "...", "type": "preference|biographical|behavioral|contextual|relational|procedural|declarative"}

Text:
%s`

// ModelStrategy asks a language model for additional facts beyond what the
// rule strategies caught. Any model or parse failure is reported as an error
// so the extractor can degrade instead of fail.
type ModelStrategy struct {
	client ModelClient
	logger *zap.Logger
}

// NewModelStrategy wraps a model client as an extraction strategy.
func NewModelStrategy(client ModelClient, logger *zap.Logger) *ModelStrategy {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ModelStrategy{
		client: client,
		logger: logger.With(zap.String("component", "model_strategy")),
	}
}

func (s *ModelStrategy) Name() string { return "model" }

func (s *ModelStrategy) Extract(ctx context.Context, text string) ([]types.Fact, error) {
	raw, err := s.client.Complete(ctx, fmt.Sprintf(modelPrompt, text))
	if err != nil {
		return nil, fmt.Errorf("model completion: %w", err)
	}

	var items []struct {
		Subject   string `json:"subject"`
		Predicate string `json:"predicate"`
		Object    string `json:"object"`
		Type      string `json:"type"`
	}
	if err := json.Unmarshal([]byte(stripCodeFence(raw)), &items); err != nil {
		return nil, fmt.Errorf("model output is not a JSON array: %w", err)
	}

	facts := make([]types.Fact, 0, len(items))
	for _, it := range items {
		object := strings.TrimSpace(it.Object)
		if object == "" {
			continue
		}
		subject := strings.TrimSpace(it.Subject)
		if subject == "" {
			subject = "user"
		}
		predicate := strings.TrimSpace(it.Predicate)
		if predicate == "" {
			predicate = "related_to"
		}
		kind := types.FactKind(strings.ToLower(strings.TrimSpace(it.Type)))
		if !kind.Valid() {
			kind = types.FactDeclarative
		}
		facts = append(facts, types.Fact{
			Subject:    subject,
			Predicate:  predicate,
			Object:     object,
			Kind:       kind,
			Confidence: modelConfidence,
		})
	}
	return facts, nil
}

func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
