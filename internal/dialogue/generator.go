package dialogue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/talkdrill/talkdrill/pkg/provider/llm"
)

const systemPrompt = `You are an English learning assistant who writes scene dialogues. Based on the scene the user provides and their word book, produce a natural, realistic English dialogue.

Requirements:
1. The dialogue is between two speakers tagged "A" and "B". Use only these role tags.
2. Produce 8-12 turns. Each turn should read like real film, fiction or everyday speech, with genuine depth rather than a simple exchange of facts.
3. Weave the requested keywords into the dialogue where they fit naturally. Never force a keyword into a turn where it does not belong.
4. New words beyond the learner's level may appear, but keep them under the given ratio of the total vocabulary. Everything else stays within the learner's level.
5. Do not end the dialogue by raising a fresh question. It is fine to end before the topic is exhausted.

Return a single JSON object, nothing else:
{
  "dialogue": [
    { "role": "A", "text": "English sentence", "text_cn": "translation (keep names untranslated, stay close to the original wording)" }
  ]
}`

// Request carries the inputs for one dialogue generation.
type Request struct {
	// Scene describes the situation to build the dialogue around. Required.
	Scene string

	// Keywords are words or phrases the dialogue should exercise. Optional.
	Keywords []string

	// Level is the learner's vocabulary level (e.g. "CET-4", "B1"). Optional.
	Level string

	// NewWordRatio is the maximum share of above-level words, in percent.
	// Zero means the generator default.
	NewWordRatio int
}

// Generator turns a scene description into a validated dialogue via an LLM.
type Generator struct {
	provider    llm.Provider
	log         *slog.Logger
	temperature float64
	maxAttempts int
}

// GeneratorOption configures a [Generator].
type GeneratorOption func(*Generator)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(log *slog.Logger) GeneratorOption {
	return func(g *Generator) {
		g.log = log
	}
}

// WithTemperature overrides the sampling temperature. Defaults to 0.7.
func WithTemperature(t float64) GeneratorOption {
	return func(g *Generator) {
		g.temperature = t
	}
}

// WithMaxAttempts sets how many times malformed model output is retried
// before giving up. Defaults to 2.
func WithMaxAttempts(n int) GeneratorOption {
	return func(g *Generator) {
		if n > 0 {
			g.maxAttempts = n
		}
	}
}

// NewGenerator creates a Generator backed by the given provider.
func NewGenerator(provider llm.Provider, opts ...GeneratorOption) *Generator {
	g := &Generator{
		provider:    provider,
		log:         slog.Default(),
		temperature: 0.7,
		maxAttempts: 2,
	}
	for _, o := range opts {
		o(g)
	}
	return g
}

// Generate asks the model for a dialogue matching req and validates the result.
// Malformed model output is retried up to the configured attempt count; the
// last validation error is wrapped in [ErrTooManyRetries].
func (g *Generator) Generate(ctx context.Context, req Request) ([]Line, error) {
	if strings.TrimSpace(req.Scene) == "" {
		return nil, ErrEmptyScene
	}

	user := buildUserPrompt(req)

	var lastErr error
	for attempt := 1; attempt <= g.maxAttempts; attempt++ {
		resp, err := g.provider.Complete(ctx, llm.CompletionRequest{
			SystemPrompt: systemPrompt,
			Messages: []llm.Message{
				{Role: llm.RoleUser, Content: user},
			},
			Temperature: g.temperature,
			JSONOnly:    true,
		})
		if err != nil {
			return nil, fmt.Errorf("dialogue: completion: %w", err)
		}
		if resp == nil || strings.TrimSpace(resp.Content) == "" {
			return nil, ErrEmptyResponse
		}

		lines, err := ParseLines(resp.Content)
		if err == nil {
			g.log.Debug("dialogue generated",
				"turns", len(lines),
				"prompt_tokens", resp.Usage.PromptTokens,
				"completion_tokens", resp.Usage.CompletionTokens)
			return lines, nil
		}

		lastErr = err
		g.log.Warn("dialogue response rejected", "attempt", attempt, "error", err)
	}

	return nil, fmt.Errorf("%w: %w", ErrTooManyRetries, lastErr)
}

// buildUserPrompt renders the per-request part of the prompt.
func buildUserPrompt(req Request) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Scene: %s\n", strings.TrimSpace(req.Scene))
	if len(req.Keywords) > 0 {
		fmt.Fprintf(&b, "Keywords to exercise: %s\n", strings.Join(req.Keywords, ", "))
	}
	if req.Level != "" {
		fmt.Fprintf(&b, "Learner vocabulary level: %s\n", req.Level)
	}
	ratio := req.NewWordRatio
	if ratio <= 0 {
		ratio = 10
	}
	fmt.Fprintf(&b, "Maximum share of above-level words: %d%%\n", ratio)
	return b.String()
}

// ParseLines decodes and validates a model response.
//
// The response must be a JSON object with a non-empty "dialogue" array in
// which every line carries a known role and non-empty text, and both roles
// speak at least once. A leading markdown fence is tolerated and stripped.
func ParseLines(content string) ([]Line, error) {
	var payload struct {
		Dialogue []Line `json:"dialogue"`
	}
	if err := json.Unmarshal([]byte(stripFence(content)), &payload); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedJSON, err)
	}
	if len(payload.Dialogue) == 0 {
		return nil, ErrEmptyDialogue
	}

	roles := map[string]bool{}
	for i, line := range payload.Dialogue {
		if line.Role != RoleA && line.Role != RoleB {
			return nil, fmt.Errorf("%w: line %d role %q", ErrUnknownRole, i, line.Role)
		}
		if strings.TrimSpace(line.Text) == "" {
			return nil, fmt.Errorf("%w: line %d", ErrEmptyLine, i)
		}
		roles[line.Role] = true
	}
	if len(roles) < 2 {
		return nil, ErrSingleSpeaker
	}

	return payload.Dialogue, nil
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
