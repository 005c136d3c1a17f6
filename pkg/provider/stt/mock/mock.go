// Package mock provides a test double for the stt.Provider interface.
//
// Use Provider to feed controlled transcripts and inspect the clips a caller
// submitted, without a live recognition backend.
//
// Example:
//
//	p := &mock.Provider{
//	    TranscribeResult: stt.Transcript{Text: "a flat white please"},
//	}
//	transcript, err := p.Transcribe(ctx, stt.Audio{PCM: clip})
package mock

import (
	"context"
	"sync"

	"github.com/talkdrill/talkdrill/pkg/provider/stt"
)

// TranscribeCall records a single invocation of Transcribe.
type TranscribeCall struct {
	// Ctx is the context passed to Transcribe.
	Ctx context.Context
	// Audio is the clip passed to Transcribe.
	Audio stt.Audio
}

// Provider is a mock implementation of stt.Provider.
// Zero values cause Transcribe to return an empty transcript and nil error.
type Provider struct {
	mu sync.Mutex

	// TranscribeResult is returned by Transcribe.
	TranscribeResult stt.Transcript

	// TranscribeErr, if non-nil, is returned as the error from Transcribe.
	TranscribeErr error

	// TranscribeFunc, if non-nil, overrides the fields above.
	TranscribeFunc func(ctx context.Context, audio stt.Audio) (stt.Transcript, error)

	// TranscribeCalls records every invocation of Transcribe in order.
	TranscribeCalls []TranscribeCall
}

var _ stt.Provider = (*Provider)(nil)

// Transcribe records the call and returns the configured result or error.
func (p *Provider) Transcribe(ctx context.Context, audio stt.Audio) (stt.Transcript, error) {
	p.mu.Lock()
	p.TranscribeCalls = append(p.TranscribeCalls, TranscribeCall{Ctx: ctx, Audio: audio})
	fn := p.TranscribeFunc
	result, err := p.TranscribeResult, p.TranscribeErr
	p.mu.Unlock()

	if fn != nil {
		return fn(ctx, audio)
	}
	return result, err
}

// Calls returns a copy of all recorded Transcribe invocations.
func (p *Provider) Calls() []TranscribeCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]TranscribeCall, len(p.TranscribeCalls))
	copy(out, p.TranscribeCalls)
	return out
}
