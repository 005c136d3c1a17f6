// Package deepgram provides a Deepgram-backed STT provider. It submits each
// recorded clip over the Deepgram streaming WebSocket API and assembles the
// final results into one transcript, implementing the stt.Provider interface.
package deepgram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/coder/websocket"

	"github.com/talkdrill/talkdrill/pkg/provider/stt"
)

const (
	deepgramEndpoint  = "wss://api.deepgram.com/v1/listen"
	defaultModel      = "nova-3"
	defaultLanguage   = "en"
	defaultSampleRate = 16000

	// chunkSize is the binary message size used when feeding the clip to the
	// socket. Deepgram recommends chunks in the tens of kilobytes.
	chunkSize = 32 * 1024
)

// Compile-time assertion that Provider implements stt.Provider.
var _ stt.Provider = (*Provider)(nil)

// Option is a functional option for configuring the Deepgram Provider.
type Option func(*Provider)

// WithModel sets the Deepgram model to use (e.g., "nova-3", "base").
func WithModel(model string) Option {
	return func(p *Provider) {
		p.model = model
	}
}

// WithLanguage sets the BCP-47 language code for recognition (e.g., "en", "de-DE").
func WithLanguage(language string) Option {
	return func(p *Provider) {
		p.language = language
	}
}

// WithSampleRate sets the default sample rate in Hz for clips that do not
// carry one.
func WithSampleRate(rate int) Option {
	return func(p *Provider) {
		p.sampleRate = rate
	}
}

// WithEndpoint overrides the Deepgram WebSocket endpoint. Useful for tests
// and proxies.
func WithEndpoint(endpoint string) Option {
	return func(p *Provider) {
		p.endpoint = endpoint
	}
}

// Provider implements stt.Provider backed by the Deepgram API.
type Provider struct {
	apiKey     string
	endpoint   string
	model      string
	language   string
	sampleRate int
}

// New creates a new Deepgram Provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("deepgram: apiKey must not be empty")
	}
	p := &Provider{
		apiKey:     apiKey,
		endpoint:   deepgramEndpoint,
		model:      defaultModel,
		language:   defaultLanguage,
		sampleRate: defaultSampleRate,
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Transcribe implements stt.Provider. It opens a websocket, streams the clip
// in chunks followed by a CloseStream message, and concatenates the final
// results Deepgram returns before closing the connection.
func (p *Provider) Transcribe(ctx context.Context, audio stt.Audio) (stt.Transcript, error) {
	if len(audio.PCM) == 0 {
		return stt.Transcript{}, errors.New("deepgram: empty clip")
	}

	wsURL, err := p.buildURL(audio)
	if err != nil {
		return stt.Transcript{}, fmt.Errorf("deepgram: build URL: %w", err)
	}

	headers := http.Header{}
	headers.Set("Authorization", "Token "+p.apiKey)

	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		HTTPHeader: headers,
	})
	if err != nil {
		return stt.Transcript{}, fmt.Errorf("deepgram: dial: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "clip transcribed")

	for off := 0; off < len(audio.PCM); off += chunkSize {
		end := min(off+chunkSize, len(audio.PCM))
		if err := conn.Write(ctx, websocket.MessageBinary, audio.PCM[off:end]); err != nil {
			return stt.Transcript{}, fmt.Errorf("deepgram: send audio: %w", err)
		}
	}
	if err := conn.Write(ctx, websocket.MessageText, []byte(`{"type":"CloseStream"}`)); err != nil {
		return stt.Transcript{}, fmt.Errorf("deepgram: close stream: %w", err)
	}

	return collectFinals(ctx, conn)
}

// collectFinals reads messages until the server closes the connection and
// merges every final result into a single transcript.
func collectFinals(ctx context.Context, conn *websocket.Conn) (stt.Transcript, error) {
	var (
		texts      []string
		words      []stt.WordDetail
		confSum    float64
		confCount  int
		duration   time.Duration
		sawResults bool
	)

	for {
		_, msg, err := conn.Read(ctx)
		if err != nil {
			var closeErr websocket.CloseError
			if errors.As(err, &closeErr) && closeErr.Code == websocket.StatusNormalClosure {
				break
			}
			if ctx.Err() != nil {
				return stt.Transcript{}, fmt.Errorf("deepgram: read: %w", ctx.Err())
			}
			// Deepgram tears the socket down after the final result; treat
			// any post-results EOF as end of stream.
			if sawResults {
				break
			}
			return stt.Transcript{}, fmt.Errorf("deepgram: read: %w", err)
		}

		t, final, ok := parseResponse(msg)
		if !ok || !final {
			continue
		}
		sawResults = true
		if t.Text != "" {
			texts = append(texts, t.Text)
		}
		words = append(words, t.Words...)
		if t.Confidence > 0 {
			confSum += t.Confidence
			confCount++
		}
		if n := len(t.Words); n > 0 && t.Words[n-1].End > duration {
			duration = t.Words[n-1].End
		}
	}

	out := stt.Transcript{
		Words:    words,
		Duration: duration,
	}
	for i, text := range texts {
		if i > 0 {
			out.Text += " "
		}
		out.Text += text
	}
	if confCount > 0 {
		out.Confidence = confSum / float64(confCount)
	}
	return out, nil
}

// buildURL constructs the Deepgram streaming endpoint URL for the given clip.
func (p *Provider) buildURL(audio stt.Audio) (string, error) {
	u, err := url.Parse(p.endpoint)
	if err != nil {
		return "", err
	}

	lang := audio.Language
	if lang == "" {
		lang = p.language
	}
	sr := audio.SampleRate
	if sr == 0 {
		sr = p.sampleRate
	}
	ch := audio.Channels
	if ch == 0 {
		ch = 1
	}

	q := u.Query()
	q.Set("model", p.model)
	q.Set("language", lang)
	q.Set("punctuate", "true")
	q.Set("encoding", "linear16")
	q.Set("sample_rate", strconv.Itoa(sr))
	q.Set("channels", strconv.Itoa(ch))

	u.RawQuery = q.Encode()
	return u.String(), nil
}

// deepgramResponse is the JSON structure returned by Deepgram for a Results event.
type deepgramResponse struct {
	Type    string `json:"type"`
	IsFinal bool   `json:"is_final"`
	Channel struct {
		Alternatives []struct {
			Transcript string  `json:"transcript"`
			Confidence float64 `json:"confidence"`
			Words      []struct {
				Word       string  `json:"word"`
				Start      float64 `json:"start"`
				End        float64 `json:"end"`
				Confidence float64 `json:"confidence"`
			} `json:"words"`
		} `json:"alternatives"`
	} `json:"channel"`
}

// parseResponse parses a raw Deepgram message. ok is false for messages that
// should be ignored (metadata, keep-alives, malformed frames).
func parseResponse(data []byte) (t stt.Transcript, final, ok bool) {
	var resp deepgramResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return stt.Transcript{}, false, false
	}
	if resp.Type != "Results" || len(resp.Channel.Alternatives) == 0 {
		return stt.Transcript{}, false, false
	}

	alt := resp.Channel.Alternatives[0]
	words := make([]stt.WordDetail, 0, len(alt.Words))
	for _, w := range alt.Words {
		words = append(words, stt.WordDetail{
			Word:       w.Word,
			Start:      time.Duration(w.Start * float64(time.Second)),
			End:        time.Duration(w.End * float64(time.Second)),
			Confidence: w.Confidence,
		})
	}

	return stt.Transcript{
		Text:       alt.Transcript,
		Confidence: alt.Confidence,
		Words:      words,
	}, resp.IsFinal, true
}
