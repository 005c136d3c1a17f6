package server

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/talkdrill/talkdrill/internal/vocab"
)

type wordView struct {
	ID            int64  `json:"id"`
	Word          string `json:"word"`
	Phonetic      string `json:"phonetic,omitempty"`
	Meanings      string `json:"meanings"`
	PartOfSpeech  string `json:"part_of_speech,omitempty"`
	Phrase        string `json:"phrase,omitempty"`
	PhraseMeaning string `json:"phrase_meaning,omitempty"`
	Difficulty    string `json:"difficulty,omitempty"`
	ErrorCount    int    `json:"error_count"`
}

func toWordView(e vocab.Entry) wordView {
	return wordView{
		ID:            e.ID,
		Word:          e.Word,
		Phonetic:      e.Phonetic,
		Meanings:      e.Meanings,
		PartOfSpeech:  e.PartOfSpeech,
		Phrase:        e.Phrase,
		PhraseMeaning: e.PhraseMeaning,
		Difficulty:    e.Difficulty,
		ErrorCount:    e.ErrorCount,
	}
}

func (s *Server) handleListWords(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeError(w, http.StatusServiceUnavailable, errUnavailable)
		return
	}

	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	limit, _ := strconv.Atoi(q.Get("limit"))
	filter := vocab.ListFilter{
		Search:     q.Get("search"),
		Difficulty: q.Get("difficulty"),
		Page:       page,
		Limit:      limit,
	}

	entries, total, err := s.store.ListWords(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	words := make([]wordView, 0, len(entries))
	for _, e := range entries {
		words = append(words, toWordView(e))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"words": words,
		"total": total,
	})
}

func (s *Server) handleUpsertWords(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeError(w, http.StatusServiceUnavailable, errUnavailable)
		return
	}

	var req struct {
		Words []struct {
			Word          string `json:"word"`
			Phonetic      string `json:"phonetic"`
			Meanings      string `json:"meanings"`
			PartOfSpeech  string `json:"part_of_speech"`
			Phrase        string `json:"phrase"`
			PhraseMeaning string `json:"phrase_meaning"`
			Difficulty    string `json:"difficulty"`
		} `json:"words"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if len(req.Words) == 0 {
		writeError(w, http.StatusBadRequest, errors.New("words must not be empty"))
		return
	}

	entries := make([]vocab.Entry, 0, len(req.Words))
	for _, word := range req.Words {
		entries = append(entries, vocab.Entry{
			Word:          word.Word,
			Phonetic:      word.Phonetic,
			Meanings:      word.Meanings,
			PartOfSpeech:  word.PartOfSpeech,
			Phrase:        word.Phrase,
			PhraseMeaning: word.PhraseMeaning,
			Difficulty:    word.Difficulty,
		})
	}

	if err := s.store.UpsertWords(r.Context(), entries); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"count": len(entries)})
}

func (s *Server) handleBumpError(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeError(w, http.StatusServiceUnavailable, errUnavailable)
		return
	}

	var req struct {
		Word string `json:"word"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.Word == "" {
		writeError(w, http.StatusBadRequest, errors.New("word is required"))
		return
	}

	count, err := s.store.BumpErrorCount(r.Context(), req.Word)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, vocab.ErrNotFound) {
			status = http.StatusNotFound
		}
		writeError(w, status, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"word":        req.Word,
		"error_count": count,
	})
}

// handleKeywordScope appends a trained scope to a keyword, or updates its
// rotation index when only the index is supplied.
func (s *Server) handleKeywordScope(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeError(w, http.StatusServiceUnavailable, errUnavailable)
		return
	}

	var req struct {
		KeywordID int64  `json:"keyword_id"`
		Scope     string `json:"scope,omitempty"`
		Index     *int   `json:"index,omitempty"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.KeywordID == 0 {
		writeError(w, http.StatusBadRequest, errors.New("keyword_id is required"))
		return
	}
	if req.Scope == "" && req.Index == nil {
		writeError(w, http.StatusBadRequest, errors.New("scope or index is required"))
		return
	}

	if req.Scope != "" {
		if err := s.store.AppendTrainedScope(r.Context(), req.KeywordID, req.Scope); err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, vocab.ErrNotFound) {
				status = http.StatusNotFound
			}
			writeError(w, status, err)
			return
		}
	}
	if req.Index != nil {
		if err := s.store.SetTrainedScopeIndex(r.Context(), req.KeywordID, *req.Index); err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, vocab.ErrNotFound) {
				status = http.StatusNotFound
			}
			writeError(w, status, err)
			return
		}
	}
	w.WriteHeader(http.StatusNoContent)
}
