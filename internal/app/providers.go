package app

import (
	"fmt"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/talkdrill/talkdrill/internal/config"
	"github.com/talkdrill/talkdrill/internal/resilience"
	"github.com/talkdrill/talkdrill/pkg/provider/llm"
	"github.com/talkdrill/talkdrill/pkg/provider/llm/anyllm"
	"github.com/talkdrill/talkdrill/pkg/provider/llm/openai"
	"github.com/talkdrill/talkdrill/pkg/provider/stt"
	"github.com/talkdrill/talkdrill/pkg/provider/stt/deepgram"
	"github.com/talkdrill/talkdrill/pkg/provider/stt/whisper"
	"github.com/talkdrill/talkdrill/pkg/provider/tts"
	"github.com/talkdrill/talkdrill/pkg/provider/tts/elevenlabs"
)

// anyLLMProviders are the backends routed through the any-llm-go wrapper.
// "openai" is absent: it gets the native SDK provider instead.
var anyLLMProviders = []string{
	"anthropic", "gemini", "ollama", "deepseek",
	"mistral", "groq", "llamacpp", "llamafile",
}

// DefaultRegistry returns a [config.Registry] with every built-in provider
// factory registered. main.go calls this once; tests swap in their own
// registries with fake factories.
func DefaultRegistry() *config.Registry {
	reg := config.NewRegistry()

	reg.RegisterLLM("openai", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []openai.Option
		if entry.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(entry.BaseURL))
		}
		return openai.New(entry.APIKey, entry.Model, opts...)
	})
	for _, name := range anyLLMProviders {
		reg.RegisterLLM(name, func(entry config.ProviderEntry) (llm.Provider, error) {
			var opts []anyllmlib.Option
			if entry.APIKey != "" {
				opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
			}
			if entry.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			return anyllm.New(entry.Name, entry.Model, opts...)
		})
	}

	reg.RegisterSTT("whisper", func(entry config.ProviderEntry) (stt.Provider, error) {
		modelPath := optionString(entry.Options, "model_path")
		if modelPath == "" {
			return nil, fmt.Errorf("app: whisper provider requires options.model_path")
		}
		var opts []whisper.Option
		if lang := optionString(entry.Options, "language"); lang != "" {
			opts = append(opts, whisper.WithLanguage(lang))
		}
		if rate := optionInt(entry.Options, "sample_rate"); rate > 0 {
			opts = append(opts, whisper.WithSampleRate(rate))
		}
		return whisper.New(modelPath, opts...)
	})
	reg.RegisterSTT("deepgram", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []deepgram.Option
		if entry.Model != "" {
			opts = append(opts, deepgram.WithModel(entry.Model))
		}
		if lang := optionString(entry.Options, "language"); lang != "" {
			opts = append(opts, deepgram.WithLanguage(lang))
		}
		if entry.BaseURL != "" {
			opts = append(opts, deepgram.WithEndpoint(entry.BaseURL))
		}
		return deepgram.New(entry.APIKey, opts...)
	})

	reg.RegisterTTS("elevenlabs", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []elevenlabs.Option
		if entry.Model != "" {
			opts = append(opts, elevenlabs.WithModel(entry.Model))
		}
		if entry.BaseURL != "" {
			opts = append(opts, elevenlabs.WithBaseURL(entry.BaseURL))
		}
		return elevenlabs.New(entry.APIKey, opts...)
	})

	return reg
}

// buildLLM instantiates the configured LLM chain. With fallbacks declared,
// the chain is wrapped in a circuit-breaking [resilience.LLMFallback].
func buildLLM(reg *config.Registry, entry config.ProviderEntry) (llm.Provider, error) {
	primary, err := reg.CreateLLM(entry)
	if err != nil {
		return nil, err
	}
	if len(entry.Fallbacks) == 0 {
		return primary, nil
	}

	chain := resilience.NewLLMFallback(primary, entry.Name, fallbackConfig(entry.Name))
	for _, fb := range entry.Fallbacks {
		p, err := reg.CreateLLM(fb)
		if err != nil {
			return nil, fmt.Errorf("app: llm fallback %q: %w", fb.Name, err)
		}
		chain.AddFallback(fb.Name, p)
	}
	return chain, nil
}

// buildSTT instantiates the configured STT chain, wrapping declared fallbacks.
func buildSTT(reg *config.Registry, entry config.ProviderEntry) (stt.Provider, error) {
	primary, err := reg.CreateSTT(entry)
	if err != nil {
		return nil, err
	}
	if len(entry.Fallbacks) == 0 {
		return primary, nil
	}

	chain := resilience.NewSTTFallback(primary, entry.Name, fallbackConfig(entry.Name))
	for _, fb := range entry.Fallbacks {
		p, err := reg.CreateSTT(fb)
		if err != nil {
			return nil, fmt.Errorf("app: stt fallback %q: %w", fb.Name, err)
		}
		chain.AddFallback(fb.Name, p)
	}
	return chain, nil
}

// buildTTS instantiates the configured TTS chain, wrapping declared fallbacks.
func buildTTS(reg *config.Registry, entry config.ProviderEntry) (tts.Provider, error) {
	primary, err := reg.CreateTTS(entry)
	if err != nil {
		return nil, err
	}
	if len(entry.Fallbacks) == 0 {
		return primary, nil
	}

	chain := resilience.NewTTSFallback(primary, entry.Name, fallbackConfig(entry.Name))
	for _, fb := range entry.Fallbacks {
		p, err := reg.CreateTTS(fb)
		if err != nil {
			return nil, fmt.Errorf("app: tts fallback %q: %w", fb.Name, err)
		}
		chain.AddFallback(fb.Name, p)
	}
	return chain, nil
}

func fallbackConfig(name string) resilience.FallbackConfig {
	return resilience.FallbackConfig{
		CircuitBreaker: resilience.CircuitBreakerConfig{Name: name},
	}
}

// optionString reads a string value from a provider's options map.
func optionString(opts map[string]any, key string) string {
	if s, ok := opts[key].(string); ok {
		return s
	}
	return ""
}

// optionInt reads an integer value from a provider's options map. YAML
// decodes whole numbers as int, but floats appear when the value carries a
// decimal point.
func optionInt(opts map[string]any, key string) int {
	switch v := opts[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	}
	return 0
}
