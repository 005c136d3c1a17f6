// Package mock provides a mock implementation of the tts.Provider
// interface for testing.
package mock

import (
	"context"
	"sync"

	"github.com/talkdrill/talkdrill/pkg/provider/tts"
)

// Compile-time assertion that Provider implements tts.Provider.
var _ tts.Provider = (*Provider)(nil)

// SynthesizeCall records one invocation of Synthesize.
type SynthesizeCall struct {
	Ctx   context.Context
	Text  string
	Voice tts.Voice
}

// Provider is a configurable test double for tts.Provider.
type Provider struct {
	mu sync.Mutex

	// SynthesizeResult is returned by Synthesize when SynthesizeFunc is nil.
	SynthesizeResult []byte
	// SynthesizeErr is returned by Synthesize when SynthesizeFunc is nil.
	SynthesizeErr error
	// SynthesizeFunc, when set, overrides the canned result entirely.
	SynthesizeFunc func(ctx context.Context, text string, voice tts.Voice) ([]byte, error)

	calls []SynthesizeCall
}

// Synthesize implements tts.Provider.
func (p *Provider) Synthesize(ctx context.Context, text string, voice tts.Voice) ([]byte, error) {
	p.mu.Lock()
	p.calls = append(p.calls, SynthesizeCall{Ctx: ctx, Text: text, Voice: voice})
	fn := p.SynthesizeFunc
	result, err := p.SynthesizeResult, p.SynthesizeErr
	p.mu.Unlock()

	if fn != nil {
		return fn(ctx, text, voice)
	}
	return result, err
}

// Calls returns a copy of all recorded Synthesize invocations.
func (p *Provider) Calls() []SynthesizeCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]SynthesizeCall, len(p.calls))
	copy(out, p.calls)
	return out
}
