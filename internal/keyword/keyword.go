// Package keyword breaks a learner's free-form learning goal into the
// knowledge modules needed to reach it, using an LLM, and persists the
// breakdown for dialogue generation to draw on.
package keyword

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/talkdrill/talkdrill/internal/vocab"
	"github.com/talkdrill/talkdrill/pkg/provider/llm"
)

const analyzePrompt = `You are an experienced English education planner. Break the user's learning goal down into the core knowledge modules required to reach it.

Work through these steps:
1. Identify the goal type (exam such as IELTS/TOEFL/CET, applied such as daily or business conversation, or skill-building such as reading novels), the core requirement behind it, and its difficulty level.
2. For vocabulary, grammar and sentence skills, list the concrete knowledge the goal demands, matched to its difficulty.

Return a single JSON object, nothing else:
{
  "coreRequirements": "the core requirement",
  "difficultyLevel": "e.g. A1",
  "supplements": "supporting focus areas",
  "vocabularyScope": "vocabulary range",
  "keySentencePatterns": "key sentence patterns"
}

Give ranges, not exhaustive examples.`

// Analysis errors.
var (
	ErrEmptyGoal     = errors.New("keyword: goal must not be empty")
	ErrMalformedJSON = errors.New("keyword: analysis response is not valid JSON")
	ErrIncomplete    = errors.New("keyword: analysis response is missing fields")
)

// maxAttempts is how many times malformed model output is retried before
// giving up.
const maxAttempts = 2

// Analyzer runs goal analysis and stores the result.
type Analyzer struct {
	provider llm.Provider
	store    vocab.Store
	log      *slog.Logger
}

// NewAnalyzer creates an Analyzer. store may be nil, in which case results
// are returned without being persisted.
func NewAnalyzer(provider llm.Provider, store vocab.Store, log *slog.Logger) *Analyzer {
	if log == nil {
		log = slog.Default()
	}
	return &Analyzer{provider: provider, store: store, log: log}
}

// Analyze breaks goal into knowledge modules. When a store is configured the
// keyword is saved (upserted by text) and returned with its stored ID.
func (a *Analyzer) Analyze(ctx context.Context, goal string) (*vocab.Keyword, error) {
	goal = strings.TrimSpace(goal)
	if goal == "" {
		return nil, ErrEmptyGoal
	}

	var (
		kw      *vocab.Keyword
		lastErr error
	)
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		resp, err := a.provider.Complete(ctx, llm.CompletionRequest{
			SystemPrompt: analyzePrompt,
			Messages: []llm.Message{
				{Role: llm.RoleUser, Content: "Learning goal: " + goal},
			},
			JSONOnly: true,
		})
		if err != nil {
			return nil, fmt.Errorf("keyword: analyze %q: %w", goal, err)
		}

		kw, lastErr = parseAnalysis(goal, resp.Content)
		if lastErr == nil {
			break
		}
		a.log.Warn("analysis response rejected", "attempt", attempt, "error", lastErr)
	}
	if lastErr != nil {
		return nil, lastErr
	}

	if a.store != nil {
		if err := a.store.SaveKeyword(ctx, kw); err != nil {
			return nil, err
		}
	}

	a.log.Info("keyword analyzed", "goal", goal, "difficulty", kw.Difficulty)
	return kw, nil
}

// parseAnalysis decodes the model output into a keyword breakdown.
// A leading markdown fence is tolerated and stripped.
func parseAnalysis(goal, content string) (*vocab.Keyword, error) {
	var payload struct {
		CoreRequirements    string `json:"coreRequirements"`
		DifficultyLevel     string `json:"difficultyLevel"`
		Supplements         string `json:"supplements"`
		VocabularyScope     string `json:"vocabularyScope"`
		KeySentencePatterns string `json:"keySentencePatterns"`
	}
	if err := json.Unmarshal([]byte(stripFence(content)), &payload); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedJSON, err)
	}
	if payload.CoreRequirements == "" || payload.DifficultyLevel == "" {
		return nil, ErrIncomplete
	}

	return &vocab.Keyword{
		Text:                goal,
		CoreRequirements:    payload.CoreRequirements,
		Difficulty:          payload.DifficultyLevel,
		Supplements:         payload.Supplements,
		VocabularyScope:     payload.VocabularyScope,
		KeySentencePatterns: payload.KeySentencePatterns,
	}, nil
}

// stripFence removes a surrounding markdown code fence, which some models
// emit even when asked for bare JSON.
func stripFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
