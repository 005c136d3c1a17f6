package dialogue_test

import (
	"context"
	"errors"
	"testing"

	"github.com/talkdrill/talkdrill/internal/dialogue"
	"github.com/talkdrill/talkdrill/pkg/provider/llm"
	llmmock "github.com/talkdrill/talkdrill/pkg/provider/llm/mock"
)

const validResponse = `{
  "dialogue": [
    {"role": "A", "text": "Good morning, what can I get you?", "text_cn": "早上好，您要点什么？"},
    {"role": "B", "text": "A flat white, please.", "text_cn": "请来一杯馥芮白。"}
  ]
}`

func TestGenerate(t *testing.T) {
	t.Parallel()

	p := &llmmock.Provider{
		CompleteResponse: &llm.CompletionResponse{Content: validResponse},
	}
	g := dialogue.NewGenerator(p)

	lines, err := g.Generate(context.Background(), dialogue.Request{
		Scene:    "ordering coffee",
		Keywords: []string{"flat white"},
		Level:    "B1",
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2", len(lines))
	}
	if lines[0].Role != dialogue.RoleA || lines[1].Role != dialogue.RoleB {
		t.Errorf("unexpected roles: %q, %q", lines[0].Role, lines[1].Role)
	}
	if lines[1].Translation == "" {
		t.Error("translation missing on second line")
	}

	calls := p.Calls()
	if len(calls) != 1 {
		t.Fatalf("got %d provider calls, want 1", len(calls))
	}
	req := calls[0].Req
	if !req.JSONOnly {
		t.Error("request did not ask for JSON-only output")
	}
	if req.SystemPrompt == "" {
		t.Error("request has no system prompt")
	}
	if len(req.Messages) != 1 || req.Messages[0].Role != llm.RoleUser {
		t.Errorf("unexpected messages: %+v", req.Messages)
	}
}

func TestGenerateEmptyScene(t *testing.T) {
	t.Parallel()

	g := dialogue.NewGenerator(&llmmock.Provider{})
	if _, err := g.Generate(context.Background(), dialogue.Request{Scene: "   "}); !errors.Is(err, dialogue.ErrEmptyScene) {
		t.Errorf("got %v, want ErrEmptyScene", err)
	}
}

func TestGenerateRetriesMalformedOutput(t *testing.T) {
	t.Parallel()

	p := &llmmock.Provider{
		CompleteResponses: []*llm.CompletionResponse{
			{Content: `{"dialogue": "not an array"}`},
			{Content: validResponse},
		},
	}
	g := dialogue.NewGenerator(p)

	lines, err := g.Generate(context.Background(), dialogue.Request{Scene: "ordering coffee"})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(lines) != 2 {
		t.Errorf("got %d lines, want 2", len(lines))
	}
	if got := len(p.Calls()); got != 2 {
		t.Errorf("got %d provider calls, want 2", got)
	}
}

func TestGenerateGivesUpAfterRetries(t *testing.T) {
	t.Parallel()

	p := &llmmock.Provider{
		CompleteResponse: &llm.CompletionResponse{Content: `not json at all`},
	}
	g := dialogue.NewGenerator(p, dialogue.WithMaxAttempts(3))

	_, err := g.Generate(context.Background(), dialogue.Request{Scene: "ordering coffee"})
	if !errors.Is(err, dialogue.ErrTooManyRetries) {
		t.Fatalf("got %v, want ErrTooManyRetries", err)
	}
	if !errors.Is(err, dialogue.ErrMalformedJSON) {
		t.Errorf("error does not wrap ErrMalformedJSON: %v", err)
	}
	if got := len(p.Calls()); got != 3 {
		t.Errorf("got %d provider calls, want 3", got)
	}
}

func TestGenerateProviderError(t *testing.T) {
	t.Parallel()

	boom := errors.New("backend down")
	g := dialogue.NewGenerator(&llmmock.Provider{CompleteErr: boom})

	if _, err := g.Generate(context.Background(), dialogue.Request{Scene: "s"}); !errors.Is(err, boom) {
		t.Errorf("got %v, want wrapped backend error", err)
	}
}

func TestParseLines(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		content string
		wantErr error
		want    int
	}{
		{
			name:    "valid",
			content: validResponse,
			want:    2,
		},
		{
			name: "fenced",
			content: "```json\n" + validResponse + "\n```",
			want: 2,
		},
		{
			name:    "not json",
			content: "sorry, I cannot help with that",
			wantErr: dialogue.ErrMalformedJSON,
		},
		{
			name:    "empty dialogue",
			content: `{"dialogue": []}`,
			wantErr: dialogue.ErrEmptyDialogue,
		},
		{
			name:    "unknown role",
			content: `{"dialogue": [{"role": "C", "text": "hi", "text_cn": "嗨"}]}`,
			wantErr: dialogue.ErrUnknownRole,
		},
		{
			name:    "empty text",
			content: `{"dialogue": [{"role": "A", "text": " ", "text_cn": ""}, {"role": "B", "text": "hi", "text_cn": "嗨"}]}`,
			wantErr: dialogue.ErrEmptyLine,
		},
		{
			name:    "single speaker",
			content: `{"dialogue": [{"role": "A", "text": "hi", "text_cn": "嗨"}, {"role": "A", "text": "hello?", "text_cn": "你好？"}]}`,
			wantErr: dialogue.ErrSingleSpeaker,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			lines, err := dialogue.ParseLines(tt.content)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("got error %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseLines: %v", err)
			}
			if len(lines) != tt.want {
				t.Errorf("got %d lines, want %d", len(lines), tt.want)
			}
		})
	}
}
