package resilience

import (
	"context"
	"errors"
	"testing"

	"github.com/talkdrill/talkdrill/pkg/provider/llm"
	llmmock "github.com/talkdrill/talkdrill/pkg/provider/llm/mock"
)

func TestLLMFallbackUsesPrimary(t *testing.T) {
	t.Parallel()

	primary := &llmmock.Provider{
		CompleteResponse: &llm.CompletionResponse{Content: "primary"},
	}
	backup := &llmmock.Provider{
		CompleteResponse: &llm.CompletionResponse{Content: "backup"},
	}

	f := NewLLMFallback(primary, "primary", FallbackConfig{})
	f.AddFallback("backup", backup)

	resp, err := f.Complete(context.Background(), llm.CompletionRequest{
		Messages: []llm.Message{{Role: llm.RoleUser, Content: "hi"}},
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Content != "primary" {
		t.Errorf("Content = %q, want %q", resp.Content, "primary")
	}
	if calls := backup.Calls(); len(calls) != 0 {
		t.Errorf("backup received %d calls, want 0", len(calls))
	}
}

func TestLLMFallbackFailsOver(t *testing.T) {
	t.Parallel()

	primary := &llmmock.Provider{CompleteErr: errors.New("boom")}
	backup := &llmmock.Provider{
		CompleteResponse: &llm.CompletionResponse{Content: "backup"},
	}

	f := NewLLMFallback(primary, "primary", FallbackConfig{})
	f.AddFallback("backup", backup)

	resp, err := f.Complete(context.Background(), llm.CompletionRequest{
		Messages: []llm.Message{{Role: llm.RoleUser, Content: "hi"}},
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Content != "backup" {
		t.Errorf("Content = %q, want %q", resp.Content, "backup")
	}
}

func TestLLMFallbackAllFailed(t *testing.T) {
	t.Parallel()

	primary := &llmmock.Provider{CompleteErr: errors.New("boom")}

	f := NewLLMFallback(primary, "primary", FallbackConfig{})

	_, err := f.Complete(context.Background(), llm.CompletionRequest{
		Messages: []llm.Message{{Role: llm.RoleUser, Content: "hi"}},
	})
	if !errors.Is(err, ErrAllFailed) {
		t.Errorf("error = %v, want ErrAllFailed", err)
	}
}

func TestLLMFallbackSkipsOpenBreaker(t *testing.T) {
	t.Parallel()

	primary := &llmmock.Provider{CompleteErr: errors.New("boom")}
	backup := &llmmock.Provider{
		CompleteResponse: &llm.CompletionResponse{Content: "backup"},
	}

	f := NewLLMFallback(primary, "primary", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 2},
	})
	f.AddFallback("backup", backup)

	for i := 0; i < 3; i++ {
		if _, err := f.Complete(context.Background(), llm.CompletionRequest{
			Messages: []llm.Message{{Role: llm.RoleUser, Content: "hi"}},
		}); err != nil {
			t.Fatalf("Complete %d: %v", i, err)
		}
	}

	// Two failures tripped the primary's breaker; the third round never
	// reached it.
	if calls := primary.Calls(); len(calls) != 2 {
		t.Errorf("primary received %d calls, want 2", len(calls))
	}
	if calls := backup.Calls(); len(calls) != 3 {
		t.Errorf("backup received %d calls, want 3", len(calls))
	}
}
