package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/talkdrill/talkdrill/internal/dialogue"
	"github.com/talkdrill/talkdrill/internal/server"
	"github.com/talkdrill/talkdrill/internal/vocab"
	"github.com/talkdrill/talkdrill/pkg/provider/stt"
	sttmock "github.com/talkdrill/talkdrill/pkg/provider/stt/mock"
	ttsmock "github.com/talkdrill/talkdrill/pkg/provider/tts/mock"
)

// stubGenerator returns canned lines or an error.
type stubGenerator struct {
	lines []dialogue.Line
	err   error
}

func (g *stubGenerator) Generate(_ context.Context, req dialogue.Request) ([]dialogue.Line, error) {
	if strings.TrimSpace(req.Scene) == "" {
		return nil, dialogue.ErrEmptyScene
	}
	return g.lines, g.err
}

// fakeStore implements the vocab.Store methods the handlers exercise.
type fakeStore struct {
	vocab.Store

	entries     []vocab.Entry
	upserted    []vocab.Entry
	bumpedWords []string
	scopes      map[int64][]string
	indexes     map[int64]int
	results     []*vocab.TestResult
}

func (f *fakeStore) ListWords(_ context.Context, _ vocab.ListFilter) ([]vocab.Entry, int, error) {
	return f.entries, len(f.entries), nil
}

func (f *fakeStore) UpsertWords(_ context.Context, entries []vocab.Entry) error {
	f.upserted = append(f.upserted, entries...)
	return nil
}

func (f *fakeStore) BumpErrorCount(_ context.Context, word string) (int, error) {
	for _, e := range f.entries {
		if e.Word == word {
			f.bumpedWords = append(f.bumpedWords, word)
			return 1, nil
		}
	}
	return 0, vocab.ErrNotFound
}

func (f *fakeStore) AppendTrainedScope(_ context.Context, keywordID int64, scope string) error {
	if f.scopes == nil {
		f.scopes = make(map[int64][]string)
	}
	f.scopes[keywordID] = append(f.scopes[keywordID], scope)
	return nil
}

func (f *fakeStore) SetTrainedScopeIndex(_ context.Context, keywordID int64, index int) error {
	if f.indexes == nil {
		f.indexes = make(map[int64]int)
	}
	f.indexes[keywordID] = index
	return nil
}

func (f *fakeStore) SaveTestResult(_ context.Context, res *vocab.TestResult) error {
	res.ID = int64(len(f.results) + 1)
	f.results = append(f.results, res)
	return nil
}

var testLines = []dialogue.Line{
	{Role: "A", Text: "Good morning, what can I get you?", Translation: "早上好，您要点什么？"},
	{Role: "B", Text: "A large latte to go, please.", Translation: "一杯大杯拿铁带走，谢谢。"},
	{Role: "A", Text: "Anything else with that?", Translation: "还需要别的吗？"},
	{Role: "B", Text: "No, that is all.", Translation: "不用了，就这些。"},
}

func newTestServer(t *testing.T, opts ...server.Option) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(server.New(server.Config{}, opts...).Router())
	t.Cleanup(srv.Close)
	return srv
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	payload, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func createSession(t *testing.T, srv *httptest.Server, body map[string]any) string {
	t.Helper()
	resp := postJSON(t, srv.URL+"/api/practice/sessions", body)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create session status = %d", resp.StatusCode)
	}
	var view struct {
		ID string `json:"id"`
	}
	decodeBody(t, resp, &view)
	if view.ID == "" {
		t.Fatal("created session has no id")
	}
	return view.ID
}

func TestPracticeSessionLifecycle(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t)

	id := createSession(t, srv, map[string]any{"dialogue": testLines})
	base := srv.URL + "/api/practice/sessions/" + id

	// Wrong attempt: not exact, stays failing.
	var attempt struct {
		Passed     bool    `json:"passed"`
		Similarity float64 `json:"similarity"`
		State      string  `json:"state"`
	}
	resp := postJSON(t, base+"/submit", map[string]any{"text": "Good evening, what can I get you?"})
	decodeBody(t, resp, &attempt)
	if attempt.Passed {
		t.Error("wrong attempt passed")
	}
	if attempt.Similarity <= 0 || attempt.Similarity >= 100 {
		t.Errorf("similarity = %v, want in (0, 100)", attempt.Similarity)
	}

	// The failed task was re-enqueued: total grows to 5.
	var view struct {
		State    string `json:"state"`
		Progress struct {
			Current int `json:"current"`
			Total   int `json:"total"`
		} `json:"progress"`
	}
	resp = postJSON(t, base+"/advance", nil)
	decodeBody(t, resp, &view)
	if view.Progress.Total != 5 {
		t.Errorf("queue total = %d, want 5", view.Progress.Total)
	}

	// Answer the remaining four tasks correctly (tasks 1..3 plus the retry
	// of task 0).
	targets := []string{testLines[1].Text, testLines[2].Text, testLines[3].Text, testLines[0].Text}
	for i, target := range targets {
		resp = postJSON(t, base+"/submit", map[string]any{"text": target})
		decodeBody(t, resp, &attempt)
		if !attempt.Passed {
			t.Fatalf("attempt %d for %q did not pass", i, target)
		}
		resp = postJSON(t, base+"/advance", nil)
		decodeBody(t, resp, &view)
	}
	if view.State != "completed" {
		t.Fatalf("state = %q, want completed", view.State)
	}

	// Report: 5 attempts, one failed.
	reportResp, err := http.Get(base + "/report")
	if err != nil {
		t.Fatalf("GET report: %v", err)
	}
	defer reportResp.Body.Close()
	var report struct {
		Total  int `json:"total"`
		Passed int `json:"passed"`
		Failed int `json:"failed"`
	}
	decodeBody(t, reportResp, &report)
	if report.Total != 5 || report.Passed != 4 || report.Failed != 1 {
		t.Errorf("report = %+v, want total 5 passed 4 failed 1", report)
	}
}

func TestCreateSessionValidation(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t)

	cases := []struct {
		name string
		body map[string]any
	}{
		{"empty dialogue", map[string]any{"dialogue": []dialogue.Line{}}},
		{"unknown task type", map[string]any{"dialogue": testLines, "task_type": "shadowing"}},
		{"turn taking without role", map[string]any{"dialogue": testLines, "task_type": "turn_taking"}},
		{"unknown mode", map[string]any{"dialogue": testLines, "mode": "whispered"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp := postJSON(t, srv.URL+"/api/practice/sessions", tc.body)
			if resp.StatusCode != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", resp.StatusCode)
			}
		})
	}
}

func TestTurnTakingSession(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t)

	id := createSession(t, srv, map[string]any{
		"dialogue":  testLines,
		"task_type": "turn_taking",
		"role":      "A",
	})

	resp, err := http.Get(srv.URL + "/api/practice/sessions/" + id)
	if err != nil {
		t.Fatalf("GET session: %v", err)
	}
	defer resp.Body.Close()

	var view struct {
		Current struct {
			PromptIndex int    `json:"prompt_index"`
			TargetIndex int    `json:"target_index"`
			Prompt      string `json:"prompt"`
			TargetHint  string `json:"target_hint"`
		} `json:"current"`
		Progress struct {
			Total int `json:"total"`
		} `json:"progress"`
	}
	decodeBody(t, resp, &view)

	// Role A speaks lines 0 and 2; each is answered by the following B line.
	if view.Progress.Total != 2 {
		t.Errorf("total = %d, want 2", view.Progress.Total)
	}
	if view.Current.PromptIndex != 0 || view.Current.TargetIndex != 1 {
		t.Errorf("current task = %d→%d, want 0→1", view.Current.PromptIndex, view.Current.TargetIndex)
	}
	if view.Current.Prompt != testLines[0].Text {
		t.Errorf("prompt = %q", view.Current.Prompt)
	}
	if view.Current.TargetHint != testLines[1].Translation {
		t.Errorf("target hint = %q", view.Current.TargetHint)
	}
}

func TestSpokenModeUsesThreshold(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t)

	id := createSession(t, srv, map[string]any{
		"dialogue": testLines,
		"mode":     "spoken",
	})

	// Close but not exact: fails typed, passes the default spoken bar.
	resp := postJSON(t, srv.URL+"/api/practice/sessions/"+id+"/submit",
		map[string]any{"text": "good morning what can I get yu"})
	var attempt struct {
		Passed     bool    `json:"passed"`
		Similarity float64 `json:"similarity"`
	}
	decodeBody(t, resp, &attempt)
	if !attempt.Passed {
		t.Errorf("spoken attempt failed at similarity %v", attempt.Similarity)
	}
}

func TestRevealAndForcePass(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t)

	id := createSession(t, srv, map[string]any{"dialogue": testLines})
	base := srv.URL + "/api/practice/sessions/" + id

	// Force pass before any attempt is a conflict.
	resp := postJSON(t, base+"/pass", nil)
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("pass without attempt status = %d, want 409", resp.StatusCode)
	}

	resp = postJSON(t, base+"/reveal", map[string]any{"text": "Good morning"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("reveal status = %d", resp.StatusCode)
	}
	var reveal struct {
		Diff []struct {
			Kind    string `json:"kind"`
			Text    string `json:"text"`
			Correct bool   `json:"correct"`
		} `json:"diff"`
	}
	decodeBody(t, resp, &reveal)
	if len(reveal.Diff) == 0 {
		t.Fatal("reveal returned no diff")
	}

	// After reveal, force pass records a synthetic passing attempt.
	resp = postJSON(t, base+"/pass", nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("pass after reveal status = %d, want 204", resp.StatusCode)
	}
}

func TestRestartClearsLog(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t)

	id := createSession(t, srv, map[string]any{"dialogue": testLines})
	base := srv.URL + "/api/practice/sessions/" + id

	postJSON(t, base+"/submit", map[string]any{"text": "wrong"})

	resp := postJSON(t, base+"/restart", nil)
	var view struct {
		State    string `json:"state"`
		Progress struct {
			Current int `json:"current"`
			Total   int `json:"total"`
		} `json:"progress"`
	}
	decodeBody(t, resp, &view)
	if view.State != "running" || view.Progress.Current != 0 || view.Progress.Total != len(testLines) {
		t.Errorf("after restart: %+v", view)
	}
}

func TestSessionNotFound(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t)

	resp := postJSON(t, srv.URL+"/api/practice/sessions/nope/submit", map[string]any{"text": "x"})
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestDeleteSession(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t)

	id := createSession(t, srv, map[string]any{"dialogue": testLines})

	req, _ := http.NewRequest(http.MethodDelete, srv.URL+"/api/practice/sessions/"+id+"/", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("DELETE: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("delete status = %d, want 204", resp.StatusCode)
	}

	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("second DELETE: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("second delete status = %d, want 404", resp.StatusCode)
	}
}

func TestGenerateDialogue(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t, server.WithGenerator(&stubGenerator{lines: testLines}))

	resp := postJSON(t, srv.URL+"/api/dialogue", map[string]any{"scene": "ordering coffee"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var body struct {
		Dialogue []dialogue.Line `json:"dialogue"`
	}
	decodeBody(t, resp, &body)
	if len(body.Dialogue) != len(testLines) {
		t.Errorf("dialogue length = %d, want %d", len(body.Dialogue), len(testLines))
	}

	resp = postJSON(t, srv.URL+"/api/dialogue", map[string]any{"scene": ""})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("empty scene status = %d, want 400", resp.StatusCode)
	}
}

func TestGenerateDialogueProviderError(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t, server.WithGenerator(&stubGenerator{err: errors.New("model offline")}))

	resp := postJSON(t, srv.URL+"/api/dialogue", map[string]any{"scene": "ordering coffee"})
	if resp.StatusCode != http.StatusBadGateway {
		t.Errorf("status = %d, want 502", resp.StatusCode)
	}
}

func TestMissingCollaboratorsReturn503(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t)

	paths := []struct {
		method string
		path   string
	}{
		{http.MethodPost, "/api/dialogue"},
		{http.MethodGet, "/api/vocabulary/"},
		{http.MethodPost, "/api/keywords/analyze"},
		{http.MethodPost, "/api/speech/recognize"},
		{http.MethodPost, "/api/speech/synthesize"},
	}
	for _, tc := range paths {
		req, _ := http.NewRequest(tc.method, srv.URL+tc.path, strings.NewReader("{}"))
		req.Header.Set("Content-Type", "application/json")
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("%s %s: %v", tc.method, tc.path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusServiceUnavailable {
			t.Errorf("%s %s status = %d, want 503", tc.method, tc.path, resp.StatusCode)
		}
	}
}

func TestVocabularyEndpoints(t *testing.T) {
	t.Parallel()
	store := &fakeStore{entries: []vocab.Entry{
		{ID: 1, Word: "latte", Meanings: "拿铁"},
		{ID: 2, Word: "morning", Meanings: "早上"},
	}}
	srv := newTestServer(t, server.WithStore(store))

	// List.
	resp, err := http.Get(srv.URL + "/api/vocabulary/?search=la")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	var list struct {
		Words []struct {
			Word string `json:"word"`
		} `json:"words"`
		Total int `json:"total"`
	}
	decodeBody(t, resp, &list)
	if list.Total != 2 || len(list.Words) != 2 {
		t.Errorf("list = %+v", list)
	}

	// Upsert.
	resp = postJSON(t, srv.URL+"/api/vocabulary/", map[string]any{
		"words": []map[string]any{{"word": "espresso", "meanings": "浓缩咖啡"}},
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("upsert status = %d", resp.StatusCode)
	}
	if len(store.upserted) != 1 || store.upserted[0].Word != "espresso" {
		t.Errorf("upserted = %+v", store.upserted)
	}

	// Bump.
	resp = postJSON(t, srv.URL+"/api/vocabulary/error", map[string]any{"word": "latte"})
	var bump struct {
		Word       string `json:"word"`
		ErrorCount int    `json:"error_count"`
	}
	decodeBody(t, resp, &bump)
	if bump.ErrorCount != 1 {
		t.Errorf("error_count = %d, want 1", bump.ErrorCount)
	}

	resp = postJSON(t, srv.URL+"/api/vocabulary/error", map[string]any{"word": "unknown"})
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown word status = %d, want 404", resp.StatusCode)
	}
}

func TestKeywordScope(t *testing.T) {
	t.Parallel()
	store := &fakeStore{}
	srv := newTestServer(t, server.WithStore(store))

	payload, _ := json.Marshal(map[string]any{"keyword_id": 7, "scope": "ordering drinks"})
	req, _ := http.NewRequest(http.MethodPut, srv.URL+"/api/keyword-scope", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("PUT: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", resp.StatusCode)
	}
	if got := store.scopes[7]; len(got) != 1 || got[0] != "ordering drinks" {
		t.Errorf("scopes = %v", got)
	}

	payload, _ = json.Marshal(map[string]any{"keyword_id": 7, "index": 2})
	req, _ = http.NewRequest(http.MethodPut, srv.URL+"/api/keyword-scope", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("PUT index: %v", err)
	}
	resp.Body.Close()
	if store.indexes[7] != 2 {
		t.Errorf("index = %d, want 2", store.indexes[7])
	}
}

func TestSaveAnalysis(t *testing.T) {
	t.Parallel()
	store := &fakeStore{}
	srv := newTestServer(t, server.WithStore(store))

	resp := postJSON(t, srv.URL+"/api/practice/analysis", map[string]any{
		"keyword_id": 3,
		"verdict":    "mostly reached",
		"report":     "Good coverage of ordering phrases.",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, want 201", resp.StatusCode)
	}
	if len(store.results) != 1 || store.results[0].Verdict != "mostly reached" {
		t.Errorf("results = %+v", store.results)
	}
}

func TestRecognize(t *testing.T) {
	t.Parallel()
	sttProv := &sttmock.Provider{
		TranscribeResult: stt.Transcript{Text: "a large latte to go please", Confidence: 0.93},
	}
	srv := newTestServer(t, server.WithSTT(sttProv))

	resp, err := http.Post(srv.URL+"/api/speech/recognize?sample_rate=16000&language=en",
		"application/octet-stream", bytes.NewReader(make([]byte, 3200)))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	var body struct {
		Text       string  `json:"text"`
		Confidence float64 `json:"confidence"`
	}
	decodeBody(t, resp, &body)
	if body.Text != "a large latte to go please" {
		t.Errorf("text = %q", body.Text)
	}

	calls := sttProv.Calls()
	if len(calls) != 1 {
		t.Fatalf("provider calls = %d, want 1", len(calls))
	}
	if calls[0].Audio.SampleRate != 16000 || calls[0].Audio.Language != "en" {
		t.Errorf("audio params = %+v", calls[0].Audio)
	}
}

func TestSynthesize(t *testing.T) {
	t.Parallel()
	ttsProv := &ttsmock.Provider{SynthesizeResult: []byte("mp3-bytes")}
	srv := newTestServer(t, server.WithTTS(ttsProv))

	resp := postJSON(t, srv.URL+"/api/speech/synthesize", map[string]any{
		"text":     "Good morning.",
		"voice_id": "v1",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "audio/mpeg" {
		t.Errorf("content type = %q", ct)
	}

	// No voice anywhere: request must fail.
	resp = postJSON(t, srv.URL+"/api/speech/synthesize", map[string]any{"text": "hi"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("missing voice status = %d, want 400", resp.StatusCode)
	}
}

func TestHealthEndpoints(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t)

	for _, path := range []string{"/healthz", "/readyz"} {
		resp, err := http.Get(srv.URL + path)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Errorf("%s status = %d, want 200", path, resp.StatusCode)
		}
	}
}
