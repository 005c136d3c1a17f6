package server

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/talkdrill/talkdrill/pkg/provider/stt"
	"github.com/talkdrill/talkdrill/pkg/provider/tts"
)

// maxAudioBytes caps uploaded audio clips (a minute of 16 kHz mono PCM is
// under 2 MiB).
const maxAudioBytes = 16 << 20

// handleRecognize transcribes an uploaded PCM clip. The request body is raw
// 16-bit little-endian PCM; sample_rate, channels, and language arrive as
// query parameters.
func (s *Server) handleRecognize(w http.ResponseWriter, r *http.Request) {
	if s.stt == nil {
		writeError(w, http.StatusServiceUnavailable, errUnavailable)
		return
	}

	pcm, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxAudioBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if len(pcm) == 0 {
		writeError(w, http.StatusBadRequest, errors.New("audio body must not be empty"))
		return
	}

	q := r.URL.Query()
	sampleRate, _ := strconv.Atoi(q.Get("sample_rate"))
	if sampleRate <= 0 {
		sampleRate = 16000
	}
	channels, _ := strconv.Atoi(q.Get("channels"))
	if channels <= 0 {
		channels = 1
	}

	start := time.Now()
	transcript, err := s.stt.Transcribe(r.Context(), stt.Audio{
		PCM:        pcm,
		SampleRate: sampleRate,
		Channels:   channels,
		Language:   q.Get("language"),
	})
	s.metrics.STTDuration.Record(r.Context(), time.Since(start).Seconds())
	if err != nil {
		s.metrics.RecordProviderError(r.Context(), "stt", "stt")
		writeError(w, http.StatusBadGateway, err)
		return
	}

	type wordResult struct {
		Word       string  `json:"word"`
		StartMs    int64   `json:"start_ms"`
		EndMs      int64   `json:"end_ms"`
		Confidence float64 `json:"confidence"`
	}
	words := make([]wordResult, 0, len(transcript.Words))
	for _, wd := range transcript.Words {
		words = append(words, wordResult{
			Word:       wd.Word,
			StartMs:    wd.Start.Milliseconds(),
			EndMs:      wd.End.Milliseconds(),
			Confidence: wd.Confidence,
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"text":        transcript.Text,
		"confidence":  transcript.Confidence,
		"duration_ms": transcript.Duration.Milliseconds(),
		"words":       words,
	})
}

// handleSynthesize renders text to audio and streams the clip back.
func (s *Server) handleSynthesize(w http.ResponseWriter, r *http.Request) {
	if s.tts == nil {
		writeError(w, http.StatusServiceUnavailable, errUnavailable)
		return
	}

	var req struct {
		Text      string `json:"text"`
		VoiceID   string `json:"voice_id,omitempty"`
		VoiceName string `json:"voice_name,omitempty"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.Text == "" {
		writeError(w, http.StatusBadRequest, errors.New("text is required"))
		return
	}

	voice := tts.Voice{ID: req.VoiceID, Name: req.VoiceName}
	if voice.ID == "" {
		voice.ID = s.cfg.DefaultVoiceID
	}
	if voice.ID == "" {
		writeError(w, http.StatusBadRequest, errors.New("voice_id is required (no default voice configured)"))
		return
	}

	start := time.Now()
	audio, err := s.tts.Synthesize(r.Context(), req.Text, voice)
	s.metrics.TTSDuration.Record(r.Context(), time.Since(start).Seconds())
	if err != nil {
		s.metrics.RecordProviderError(r.Context(), "tts", "tts")
		writeError(w, http.StatusBadGateway, err)
		return
	}

	w.Header().Set("Content-Type", "audio/mpeg")
	w.Header().Set("Content-Length", strconv.Itoa(len(audio)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(audio); err != nil {
		s.log.Warn("synthesis response write failed", "err", err)
	}
}
