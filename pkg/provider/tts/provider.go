// Package tts defines the Provider interface for Text-to-Speech backends.
//
// A TTS provider wraps a speech synthesis service (e.g., ElevenLabs) and
// exposes a one-shot interface used to render reference sentences for the
// learner to listen to. Whole sentences are short, so there is no streaming
// surface.
//
// Implementations must be safe for concurrent use.
package tts

import "context"

// Voice identifies a synthesis voice at the provider.
type Voice struct {
	// ID is the provider-assigned voice identifier.
	ID string

	// Name is the human-readable voice name, when known.
	Name string
}

// Provider is the abstraction over any TTS backend.
//
// Implementations must be safe for concurrent use; multiple sentences may be
// synthesised in parallel.
type Provider interface {
	// Synthesize renders text with the given voice and returns the encoded
	// audio. The encoding is provider-configured (e.g., MP3 or raw PCM);
	// callers treat the bytes as opaque playback data.
	Synthesize(ctx context.Context, text string, voice Voice) ([]byte, error)
}
