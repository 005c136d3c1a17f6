package vocab

import "context"

// Store provides persistence for word-book entries, keywords, and test
// results. Implementations must be safe for concurrent use.
type Store interface {
	// ListWords returns a page of entries matching the filter plus the total
	// match count, newest first.
	ListWords(ctx context.Context, filter ListFilter) ([]Entry, int, error)

	// WordsByText returns the entries whose Word exactly matches one of the
	// given words. Unknown words are simply absent from the result.
	WordsByText(ctx context.Context, words []string) ([]Entry, error)

	// UpsertWords creates or refreshes entries in one batch, keyed by Word.
	// Every entry is validated first. ErrorCount is not touched on conflict.
	UpsertWords(ctx context.Context, entries []Entry) error

	// BumpErrorCount flags a word as mismatched and returns the new count.
	// Counts are clamped to 1, so flagging an already flagged word changes
	// nothing. Returns ErrNotFound for words outside the word book.
	BumpErrorCount(ctx context.Context, word string) (int, error)

	// SaveKeyword creates or replaces a keyword breakdown together with its
	// trained scopes, keyed by Text. The stored ID is written back.
	SaveKeyword(ctx context.Context, kw *Keyword) error

	// GetKeyword loads a keyword breakdown by its text.
	// Returns ErrNotFound when the keyword was never analyzed.
	GetKeyword(ctx context.Context, text string) (*Keyword, error)

	// AppendTrainedScope records one more covered core-requirement slice for
	// a keyword.
	AppendTrainedScope(ctx context.Context, keywordID int64, scope string) error

	// SetTrainedScopeIndex updates the rotation index used once all scopes
	// are covered.
	SetTrainedScopeIndex(ctx context.Context, keywordID int64, index int) error

	// SaveTestResult stores a vocabulary-test outcome. The stored ID and
	// timestamp are written back.
	SaveTestResult(ctx context.Context, res *TestResult) error
}
