package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/talkdrill/talkdrill/internal/dialogue"
)

type generateDialogueRequest struct {
	Scene        string   `json:"scene"`
	Keywords     []string `json:"keywords,omitempty"`
	Level        string   `json:"level,omitempty"`
	NewWordRatio int      `json:"new_word_ratio,omitempty"`
}

func (s *Server) handleGenerateDialogue(w http.ResponseWriter, r *http.Request) {
	if s.generator == nil {
		writeError(w, http.StatusServiceUnavailable, errUnavailable)
		return
	}

	var req generateDialogueRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	start := time.Now()
	lines, err := s.generator.Generate(r.Context(), dialogue.Request{
		Scene:        req.Scene,
		Keywords:     req.Keywords,
		Level:        req.Level,
		NewWordRatio: req.NewWordRatio,
	})
	s.metrics.DialogueDuration.Record(r.Context(), time.Since(start).Seconds())
	if err != nil {
		status := http.StatusBadGateway
		if errors.Is(err, dialogue.ErrEmptyScene) {
			status = http.StatusBadRequest
		}
		writeError(w, status, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"dialogue": lines})
}

func (s *Server) handleAnalyzeKeyword(w http.ResponseWriter, r *http.Request) {
	if s.analyzer == nil {
		writeError(w, http.StatusServiceUnavailable, errUnavailable)
		return
	}

	var req struct {
		Goal string `json:"goal"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.Goal == "" {
		writeError(w, http.StatusBadRequest, errors.New("goal is required"))
		return
	}

	kw, err := s.analyzer.Analyze(r.Context(), req.Goal)
	if err != nil {
		writeError(w, http.StatusBadGateway, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"id":                    kw.ID,
		"text":                  kw.Text,
		"core_requirements":     kw.CoreRequirements,
		"difficulty":            kw.Difficulty,
		"supplements":           kw.Supplements,
		"vocabulary_scope":      kw.VocabularyScope,
		"key_sentence_patterns": kw.KeySentencePatterns,
	})
}
