package server

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/talkdrill/talkdrill/internal/compare"
	"github.com/talkdrill/talkdrill/internal/dialogue"
	"github.com/talkdrill/talkdrill/internal/practice"
	"github.com/talkdrill/talkdrill/internal/vocab"
)

// Task queue shapes accepted by session creation.
const (
	taskSelfDictation = "self_dictation"
	taskTurnTaking    = "turn_taking"
	taskFullSession   = "full_session"
)

type createSessionRequest struct {
	Dialogue []dialogue.Line `json:"dialogue"`

	// TaskType selects the queue builder: self_dictation, turn_taking, or
	// full_session. Default: self_dictation.
	TaskType string `json:"task_type"`

	// Role is the learner's role for turn_taking (the prompts they react to).
	Role string `json:"role"`

	// Mode is "typed" (exact match) or "spoken" (similarity threshold).
	// Default: typed.
	Mode string `json:"mode"`

	// SpokenThreshold overrides the server default pass bar for spoken mode.
	SpokenThreshold float64 `json:"spoken_threshold,omitempty"`

	Vocabulary   []string `json:"vocabulary,omitempty"`
	IgnoredWords []string `json:"ignored_words,omitempty"`
}

type attemptRequest struct {
	// Text is a free-form attempt. Ignored when Slots is present.
	Text string `json:"text"`

	// Slots holds one entry per reference word, from the word-by-word widget.
	Slots []string `json:"slots,omitempty"`
}

type taskView struct {
	PromptIndex int    `json:"prompt_index"`
	TargetIndex int    `json:"target_index"`
	Prompt      string `json:"prompt"`

	// TargetHint is the translation of the sentence to produce; the sentence
	// itself stays hidden until revealed.
	TargetHint string `json:"target_hint,omitempty"`
}

type sessionView struct {
	ID       string    `json:"id"`
	State    string    `json:"state"`
	Current  *taskView `json:"current,omitempty"`
	Progress struct {
		Current int `json:"current"`
		Total   int `json:"total"`
	} `json:"progress"`
	Revealed bool `json:"revealed"`
}

type segmentView struct {
	Kind    string `json:"kind"`
	Text    string `json:"text"`
	Correct bool   `json:"correct"`
	Attempt string `json:"attempt,omitempty"`
}

type attemptView struct {
	Passed     bool          `json:"passed"`
	Similarity float64       `json:"similarity"`
	Diff       []segmentView `json:"diff"`
	State      string        `json:"state"`
}

type logEntryView struct {
	PromptIndex int     `json:"prompt_index"`
	TargetIndex int     `json:"target_index"`
	Target      string  `json:"target"`
	Input       string  `json:"input"`
	Passed      bool    `json:"passed"`
	Similarity  float64 `json:"similarity"`
}

type reportView struct {
	Total       int            `json:"total"`
	Passed      int            `json:"passed"`
	Failed      int            `json:"failed"`
	MissedWords []string       `json:"missed_words"`
	Log         []logEntryView `json:"log"`
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if len(req.Dialogue) == 0 {
		writeError(w, http.StatusBadRequest, errors.New("dialogue must not be empty"))
		return
	}

	tasks, err := buildTasks(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	threshold := 0.0
	mode := "typed"
	if req.Mode == "spoken" {
		mode = "spoken"
		threshold = req.SpokenThreshold
		if threshold <= 0 {
			threshold = s.cfg.SpokenThreshold
		}
	} else if req.Mode != "" && req.Mode != "typed" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("unknown mode %q", req.Mode))
		return
	}

	sess, err := practice.NewSession(practice.SessionConfig{
		Lines:           req.Dialogue,
		Tasks:           tasks,
		IgnoredWords:    req.IgnoredWords,
		Vocabulary:      req.Vocabulary,
		SpokenThreshold: threshold,
	})
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	ps := s.sessions.Add(req.Dialogue, sess, mode)
	s.metrics.SessionsStarted.Add(r.Context(), 1)
	s.metrics.ActiveSessions.Add(r.Context(), 1)
	s.log.Info("practice session created",
		"id", ps.ID, "mode", mode, "task_type", req.TaskType, "tasks", len(tasks))

	writeJSON(w, http.StatusCreated, s.sessionView(ps))
}

// buildTasks constructs the task queue for the requested shape.
func buildTasks(req createSessionRequest) ([]practice.Task, error) {
	switch req.TaskType {
	case "", taskSelfDictation:
		return practice.SelfDictationTasks(req.Dialogue), nil

	case taskTurnTaking:
		if req.Role == "" {
			return nil, errors.New("turn_taking requires a role")
		}
		tasks := practice.TurnTakingTasks(req.Dialogue, req.Role)
		if len(tasks) == 0 {
			return nil, fmt.Errorf("role %q produces no tasks", req.Role)
		}
		return tasks, nil

	case taskFullSession:
		roleA, roleB, err := dialogueRoles(req.Dialogue)
		if err != nil {
			return nil, err
		}
		return practice.FullSessionTasks(req.Dialogue, roleA, roleB), nil

	default:
		return nil, fmt.Errorf("unknown task_type %q", req.TaskType)
	}
}

// dialogueRoles returns the two distinct speaker roles in appearance order.
func dialogueRoles(lines []dialogue.Line) (string, string, error) {
	var roles []string
	seen := make(map[string]struct{})
	for _, l := range lines {
		if _, ok := seen[l.Role]; ok {
			continue
		}
		seen[l.Role] = struct{}{}
		roles = append(roles, l.Role)
	}
	if len(roles) != 2 {
		return "", "", fmt.Errorf("full_session requires exactly 2 roles, dialogue has %d", len(roles))
	}
	return roles[0], roles[1], nil
}

func (s *Server) lookupSession(w http.ResponseWriter, r *http.Request) (*PracticeSession, bool) {
	ps, err := s.sessions.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return nil, false
	}
	return ps, true
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	ps, ok := s.lookupSession(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.sessionView(ps))
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.sessions.Remove(id); err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	s.metrics.ActiveSessions.Add(r.Context(), -1)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	ps, ok := s.lookupSession(w, r)
	if !ok {
		return
	}
	var req attemptRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	entry, err := ps.Session.Submit(attemptInput(req))
	if err != nil {
		writeError(w, http.StatusConflict, err)
		return
	}

	verdict := "incorrect"
	if entry.Passed {
		verdict = "correct"
	}
	s.metrics.RecordAttempt(r.Context(), ps.Mode, verdict)
	s.metrics.AttemptSimilarity.Record(r.Context(), entry.Similarity)

	writeJSON(w, http.StatusOK, attemptView{
		Passed:     entry.Passed,
		Similarity: entry.Similarity,
		Diff:       segmentViews(entry.Diff),
		State:      string(ps.Session.State()),
	})
}

func (s *Server) handleAdvance(w http.ResponseWriter, r *http.Request) {
	ps, ok := s.lookupSession(w, r)
	if !ok {
		return
	}

	before := ps.Session.State()
	after := ps.Session.Advance()
	if after == practice.StateCompleted && before != practice.StateCompleted {
		s.metrics.SessionsCompleted.Add(r.Context(), 1)
		s.metrics.RecordVocabularyMisses(r.Context(), int64(len(ps.Session.Report().MissedWords)))
	}

	writeJSON(w, http.StatusOK, s.sessionView(ps))
}

func (s *Server) handleReveal(w http.ResponseWriter, r *http.Request) {
	ps, ok := s.lookupSession(w, r)
	if !ok {
		return
	}
	var req attemptRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	diff, err := ps.Session.Reveal(attemptInput(req))
	if err != nil {
		writeError(w, http.StatusConflict, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"diff": segmentViews(diff)})
}

func (s *Server) handleForcePass(w http.ResponseWriter, r *http.Request) {
	ps, ok := s.lookupSession(w, r)
	if !ok {
		return
	}
	if err := ps.Session.ForcePass(); err != nil {
		writeError(w, http.StatusConflict, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRestart(w http.ResponseWriter, r *http.Request) {
	ps, ok := s.lookupSession(w, r)
	if !ok {
		return
	}
	ps.Session.Restart()
	writeJSON(w, http.StatusOK, s.sessionView(ps))
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	ps, ok := s.lookupSession(w, r)
	if !ok {
		return
	}

	summary := ps.Session.Report()
	view := reportView{
		Total:       summary.Total,
		Passed:      summary.Passed,
		Failed:      summary.Failed,
		MissedWords: summary.MissedWords,
		Log:         make([]logEntryView, 0, len(summary.Log)),
	}
	for _, entry := range summary.Log {
		view.Log = append(view.Log, logEntryView{
			PromptIndex: entry.Task.Prompt,
			TargetIndex: entry.Task.Target,
			Target:      ps.Lines[entry.Task.Target].Text,
			Input:       entry.Input,
			Passed:      entry.Passed,
			Similarity:  entry.Similarity,
		})
	}
	writeJSON(w, http.StatusOK, view)
}

// handleSaveAnalysis stores a vocabulary-test outcome for a keyword.
func (s *Server) handleSaveAnalysis(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeError(w, http.StatusServiceUnavailable, errUnavailable)
		return
	}

	var req struct {
		KeywordID int64  `json:"keyword_id"`
		Verdict   string `json:"verdict"`
		Report    string `json:"report"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.KeywordID == 0 || req.Verdict == "" {
		writeError(w, http.StatusBadRequest, errors.New("keyword_id and verdict are required"))
		return
	}

	res := &vocab.TestResult{
		KeywordID: req.KeywordID,
		Verdict:   req.Verdict,
		Report:    req.Report,
	}
	if err := s.store.SaveTestResult(r.Context(), res); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"id": res.ID})
}

// attemptInput converts the wire attempt into the engine representation.
func attemptInput(req attemptRequest) compare.AttemptInput {
	if req.Slots != nil {
		return compare.PerWordSlots(req.Slots)
	}
	return compare.FreeText(req.Text)
}

// sessionView renders a session snapshot.
func (s *Server) sessionView(ps *PracticeSession) sessionView {
	view := sessionView{
		ID:       ps.ID,
		State:    string(ps.Session.State()),
		Revealed: ps.Session.Revealed(),
	}
	view.Progress.Current, view.Progress.Total = ps.Session.Progress()

	if task, ok := ps.Session.Current(); ok {
		view.Current = &taskView{
			PromptIndex: task.Prompt,
			TargetIndex: task.Target,
			Prompt:      ps.Lines[task.Prompt].Text,
			TargetHint:  ps.Lines[task.Target].Translation,
		}
	}
	return view
}

// segmentViews converts diff segments to their wire form.
func segmentViews(diff []compare.Segment) []segmentView {
	views := make([]segmentView, 0, len(diff))
	for _, seg := range diff {
		views = append(views, segmentView{
			Kind:    string(seg.Kind),
			Text:    seg.Text,
			Correct: seg.Correct,
			Attempt: seg.Attempt,
		})
	}
	return views
}
