// Package whisper provides a local whisper.cpp-backed STT provider using the
// whisper.cpp CGO bindings. The whisper.cpp static library (libwhisper.a) and
// headers (whisper.h) must be available at link time via LIBRARY_PATH and
// C_INCLUDE_PATH environment variables.
//
// The model is loaded once at construction and shared across all concurrent
// Transcribe calls; each call runs inference in its own whisper context.
//
// Usage:
//
//	p, err := whisper.New("models/ggml-base.en.bin", whisper.WithLanguage("en"))
//	transcript, err := p.Transcribe(ctx, stt.Audio{PCM: clip})
//	p.Close()
package whisper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"

	"github.com/talkdrill/talkdrill/pkg/provider/stt"
)

const (
	// bitsPerSample is fixed at 16 for the 16-bit signed little-endian PCM
	// audio that whisper.cpp expects.
	bitsPerSample = 16

	defaultLanguage   = "en"
	defaultSampleRate = 16000
)

// Compile-time assertion that Provider implements stt.Provider.
var _ stt.Provider = (*Provider)(nil)

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithLanguage sets the BCP-47 language code for transcription (e.g., "en",
// "de", "fr"). Defaults to "en".
func WithLanguage(lang string) Option {
	return func(p *Provider) { p.language = lang }
}

// WithSampleRate sets the default sample rate in Hz for clips that do not
// carry one. Defaults to 16000, which is also what whisper.cpp expects.
func WithSampleRate(rate int) Option {
	return func(p *Provider) { p.sampleRate = rate }
}

// Provider implements stt.Provider using whisper.cpp Go bindings (CGO),
// eliminating HTTP overhead entirely.
type Provider struct {
	model      whisperlib.Model
	language   string
	sampleRate int
}

// New creates a Provider that loads the whisper.cpp model from the given
// file path. The caller must call Close when the provider is no longer
// needed.
func New(modelPath string, opts ...Option) (*Provider, error) {
	if modelPath == "" {
		return nil, errors.New("whisper: modelPath must not be empty")
	}
	model, err := whisperlib.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("whisper: load model %q: %w", modelPath, err)
	}

	p := &Provider{
		model:      model,
		language:   defaultLanguage,
		sampleRate: defaultSampleRate,
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Close releases the whisper model. Must be called when the provider is no
// longer needed.
func (p *Provider) Close() error {
	if p.model != nil {
		return p.model.Close()
	}
	return nil
}

// Transcribe implements stt.Provider. It converts the clip to float32 mono
// samples, runs whisper.cpp inference in a fresh context, and returns the
// concatenated segment text.
func (p *Provider) Transcribe(ctx context.Context, audio stt.Audio) (stt.Transcript, error) {
	if err := ctx.Err(); err != nil {
		return stt.Transcript{}, fmt.Errorf("whisper: context already cancelled: %w", err)
	}
	if len(audio.PCM) == 0 {
		return stt.Transcript{}, errors.New("whisper: empty clip")
	}

	lang := audio.Language
	if lang == "" {
		lang = p.language
	}
	channels := audio.Channels
	if channels <= 0 {
		channels = 1
	}
	sampleRate := audio.SampleRate
	if sampleRate <= 0 {
		sampleRate = p.sampleRate
	}

	samples := pcmToFloat32Mono(audio.PCM, channels)

	// Each whisper context is NOT thread-safe, but the model can be shared
	// across goroutines.
	wctx, err := p.model.NewContext()
	if err != nil {
		return stt.Transcript{}, fmt.Errorf("whisper: create context: %w", err)
	}

	if err := wctx.SetLanguage(lang); err != nil {
		slog.Warn("whisper: failed to set language, using default", "language", lang, "error", err)
	}

	if err := wctx.Process(samples, nil, nil, nil); err != nil {
		return stt.Transcript{}, fmt.Errorf("whisper: process audio: %w", err)
	}

	var parts []string
	for {
		segment, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return stt.Transcript{}, fmt.Errorf("whisper: read segment: %w", err)
		}
		text := strings.TrimSpace(segment.Text)
		if text != "" {
			parts = append(parts, text)
		}
	}

	return stt.Transcript{
		Text:     strings.Join(parts, " "),
		Duration: clipDuration(len(audio.PCM), sampleRate, channels),
	}, nil
}

// clipDuration derives the wall-clock length of a PCM clip from its byte
// count and format.
func clipDuration(byteLen, sampleRate, channels int) time.Duration {
	bytesPerSecond := sampleRate * channels * (bitsPerSample / 8)
	if bytesPerSecond <= 0 {
		return 0
	}
	return time.Duration(byteLen) * time.Second / time.Duration(bytesPerSecond)
}
