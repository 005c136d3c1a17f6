// Package vocab persists the learner's word book, learning-goal keywords,
// and evaluation results. The practice engine reports mismatched words here;
// everything else reads through [Store].
package vocab

import (
	"errors"
	"time"
)

// ErrNotFound is returned by lookups when no matching row exists.
var ErrNotFound = errors.New("vocab: not found")

// Entry is one word-book row.
type Entry struct {
	ID           int64
	Word         string
	Phonetic     string
	Meanings     string
	PartOfSpeech string
	// Phrase and PhraseMeaning are set when the word was learned as part of
	// a phrase.
	Phrase        string
	PhraseMeaning string
	Difficulty    string

	// ErrorCount is clamped to 1: it records that the word was ever
	// mismatched during practice, not how often. Incrementing an already
	// flagged word is a no-op, which keeps retries idempotent.
	ErrorCount int

	LearnedAt time.Time
	UpdatedAt time.Time
}

// Validate reports whether the entry can be persisted.
func (e *Entry) Validate() error {
	if e.Word == "" {
		return errors.New("vocab: entry word must not be empty")
	}
	if e.Meanings == "" {
		return errors.New("vocab: entry meanings must not be empty")
	}
	return nil
}

// Keyword is a learning goal broken down into the knowledge modules required
// to reach it.
type Keyword struct {
	ID   int64
	Text string

	// Breakdown produced by keyword analysis.
	CoreRequirements    string
	Difficulty          string
	Supplements         string
	VocabularyScope     string
	KeySentencePatterns string

	// TrainedScopes lists the core-requirement slices already covered by
	// generated dialogues; TrainedScopeIndex points at the slice to train
	// next once all of them have been covered.
	TrainedScopes     []string
	TrainedScopeIndex int

	CreatedAt time.Time
	UpdatedAt time.Time
}

// TestResult is one stored vocabulary-test outcome for a keyword.
type TestResult struct {
	ID        int64
	KeywordID int64

	// Verdict is the evaluator's conclusion, e.g. "reached", "mostly
	// reached", "not reached".
	Verdict string

	// Report is the full evaluation text.
	Report string

	CreatedAt time.Time
}

// ListFilter narrows [Store.ListWords]. Zero values mean "no constraint";
// Limit zero means the store default page size.
type ListFilter struct {
	// Search matches Word or Meanings, case-insensitively.
	Search string

	Difficulty string

	Page  int
	Limit int
}
