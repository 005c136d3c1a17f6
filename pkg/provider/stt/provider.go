// Package stt defines the Provider interface for Speech-to-Text backends.
//
// An STT provider wraps a transcription service (e.g., Deepgram or a local
// whisper.cpp model) and exposes a uniform one-shot interface: the caller
// records a complete spoken attempt, submits the clip, and receives the
// transcript. There is no streaming surface; spoken practice judges whole
// utterances, never partial ones.
//
// Implementations must be safe for concurrent use.
package stt

import (
	"context"
	"time"
)

// Audio is one recorded clip of raw 16-bit signed little-endian PCM.
type Audio struct {
	// PCM is the raw sample data.
	PCM []byte

	// SampleRate is the sample rate in Hz. Zero means the provider default
	// (typically 16000).
	SampleRate int

	// Channels is the channel count. Zero means mono. Implementors may
	// downmix multi-channel input internally.
	Channels int

	// Language is the BCP-47 language tag for recognition (e.g., "en",
	// "de-DE"). An empty string means the provider default.
	Language string
}

// Transcript is the recognition result for one clip.
type Transcript struct {
	// Text is the transcribed speech content.
	Text string

	// Confidence is the overall confidence score (0.0 to 1.0). May be zero
	// if the provider does not report confidence.
	Confidence float64

	// Words contains per-word detail when available. May be nil for
	// providers without word-level output.
	Words []WordDetail

	// Duration is the length of the recognised speech.
	Duration time.Duration
}

// WordDetail holds per-word metadata from STT providers that support it.
type WordDetail struct {
	Word       string
	Start      time.Duration
	End        time.Duration
	Confidence float64
}

// Provider is the abstraction over any STT backend.
//
// Implementations must be safe for concurrent use; multiple clips may be in
// flight simultaneously.
type Provider interface {
	// Transcribe submits one complete clip and blocks until the transcript
	// is available or ctx is cancelled.
	Transcribe(ctx context.Context, audio Audio) (Transcript, error)
}
