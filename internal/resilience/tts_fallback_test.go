package resilience

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/talkdrill/talkdrill/pkg/provider/tts"
	ttsmock "github.com/talkdrill/talkdrill/pkg/provider/tts/mock"
)

func TestTTSFallbackUsesPrimary(t *testing.T) {
	t.Parallel()

	primary := &ttsmock.Provider{SynthesizeResult: []byte("primary-audio")}
	backup := &ttsmock.Provider{SynthesizeResult: []byte("backup-audio")}

	f := NewTTSFallback(primary, "primary", FallbackConfig{})
	f.AddFallback("backup", backup)

	audio, err := f.Synthesize(context.Background(), "Good morning.", tts.Voice{ID: "v1"})
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if !bytes.Equal(audio, []byte("primary-audio")) {
		t.Errorf("audio = %q, want %q", audio, "primary-audio")
	}
	if calls := backup.Calls(); len(calls) != 0 {
		t.Errorf("backup received %d calls, want 0", len(calls))
	}
}

func TestTTSFallbackFailsOver(t *testing.T) {
	t.Parallel()

	primary := &ttsmock.Provider{SynthesizeErr: errors.New("quota exceeded")}
	backup := &ttsmock.Provider{SynthesizeResult: []byte("backup-audio")}

	f := NewTTSFallback(primary, "primary", FallbackConfig{})
	f.AddFallback("backup", backup)

	audio, err := f.Synthesize(context.Background(), "Good morning.", tts.Voice{ID: "v1"})
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if !bytes.Equal(audio, []byte("backup-audio")) {
		t.Errorf("audio = %q, want %q", audio, "backup-audio")
	}
	if calls := primary.Calls(); len(calls) != 1 {
		t.Errorf("primary received %d calls, want 1", len(calls))
	}
}

func TestTTSFallbackAllFailed(t *testing.T) {
	t.Parallel()

	primary := &ttsmock.Provider{SynthesizeErr: errors.New("boom")}

	f := NewTTSFallback(primary, "primary", FallbackConfig{})

	_, err := f.Synthesize(context.Background(), "hi", tts.Voice{ID: "v1"})
	if !errors.Is(err, ErrAllFailed) {
		t.Errorf("error = %v, want ErrAllFailed", err)
	}
}
