package compare

import (
	"strings"
	"unicode"
)

// MissingSlot is the placeholder recorded in [Segment.Attempt] when the
// learner supplied nothing for a reference word's slot.
const MissingSlot = "___"

// SegmentKind distinguishes the two token types emitted by [Align].
type SegmentKind string

const (
	// SegmentWord is a word token of the reference sentence. It carries a
	// correctness flag and the learner's positionally-attributed input.
	SegmentWord SegmentKind = "word"

	// SegmentPunctuation is a punctuation token of the reference sentence.
	// It has no correctness semantics.
	SegmentPunctuation SegmentKind = "punctuation"
)

// Segment is one annotated token of the reference sentence. Segments are
// emitted in original sentence order; concatenating their Text fields (with
// single spaces rejoining consecutive words) reconstructs the reference up
// to whitespace collapsing.
type Segment struct {
	// Kind is the token type.
	Kind SegmentKind

	// Text is the token's literal text as it appears in the reference.
	Text string

	// Correct reports whether the learner reproduced this word. Only
	// meaningful when Kind is [SegmentWord].
	Correct bool

	// Attempt is the text the learner supplied for this word's slot, or
	// [MissingSlot] when the slot is absent or empty. Only set when Kind is
	// [SegmentWord].
	Attempt string
}

// AttemptInput is a tagged union of the two attempt representations accepted
// by [Align]: free text (self-dictation and turn-taking flows) and per-word
// slots (the word-by-word typing widget, which stores one entry per
// reference word). Callers must construct it via [FreeText] or
// [PerWordSlots] — the aligner never guesses which shape was supplied.
type AttemptInput struct {
	perWord bool
	text    string
	slots   []string
}

// FreeText wraps a single free-form attempt string. Slot attribution splits
// the raw text on literal commas, matching the wire format of the typing
// widget.
func FreeText(s string) AttemptInput {
	return AttemptInput{text: s, slots: strings.Split(s, ",")}
}

// PerWordSlots wraps an ordered list of per-reference-word entries. The
// joined form used for word extraction is the comma-joined text.
func PerWordSlots(words []string) AttemptInput {
	return AttemptInput{perWord: true, text: strings.Join(words, ","), slots: words}
}

// Raw returns the attempt as a single string, suitable for similarity
// scoring and exact matching against the reference.
func (a AttemptInput) Raw() string {
	if a.perWord {
		return strings.Join(a.slots, " ")
	}
	return a.text
}

// slot returns the attributed text for reference-word index i, or
// [MissingSlot] when no non-empty entry exists at that position.
func (a AttemptInput) slot(i int) string {
	if i < 0 || i >= len(a.slots) || a.slots[i] == "" {
		return MissingSlot
	}
	return a.slots[i]
}

// AlignOption configures a call to [Align].
type AlignOption func(*aligner)

// WithIgnoredWords marks the given words (typically the dialogue role names)
// as always correct: the learner is never required to reproduce them.
// Comparison is case-insensitive and punctuation-stripped.
func WithIgnoredWords(words ...string) AlignOption {
	return func(al *aligner) {
		for _, w := range words {
			if n := Normalize(w); n != "" {
				al.ignored[n] = struct{}{}
			}
		}
	}
}

type aligner struct {
	ignored map[string]struct{}
}

// Align tokenizes reference into word and punctuation tokens, aligns the
// word subsequence against the attempt's words using a longest-common-
// subsequence match over normalized forms, and returns one [Segment] per
// reference token in original order.
//
// A reference word is correct when it participated in the LCS match or when
// it is one of the ignored words. Punctuation in the attempt never affects
// the alignment. An empty attempt yields all words incorrect; a reference
// with no words yields only punctuation segments.
func Align(reference string, attempt AttemptInput, opts ...AlignOption) []Segment {
	al := &aligner{ignored: make(map[string]struct{})}
	for _, o := range opts {
		o(al)
	}

	refTokens := tokenize(reference)
	attemptWords := words(tokenize(attempt.text))

	refWords := words(refTokens)
	matched := lcsMatches(normalizeAll(refWords), normalizeAll(attemptWords))

	segments := make([]Segment, 0, len(refTokens))
	wordIndex := 0
	for _, tok := range refTokens {
		if !tok.word {
			segments = append(segments, Segment{Kind: SegmentPunctuation, Text: tok.text})
			continue
		}

		_, ignored := al.ignored[Normalize(tok.text)]
		_, inLCS := matched[wordIndex]
		segments = append(segments, Segment{
			Kind:    SegmentWord,
			Text:    tok.text,
			Correct: ignored || inLCS,
			Attempt: attempt.slot(wordIndex),
		})
		wordIndex++
	}

	return segments
}

// token is one lexical unit of a sentence: a word or a run of punctuation.
type token struct {
	text string
	word bool
}

// isWordRune reports whether r can appear inside a word token.
// Underscore counts as a word character, matching \w semantics.
func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_'
}

// isApostrophe reports whether r is a plain or smart apostrophe, which may
// join two word runs into a single token (e.g. "don't").
func isApostrophe(r rune) bool {
	return r == '\'' || r == '’'
}

// tokenize splits s into ordered word and punctuation tokens. Whitespace
// acts purely as a separator and is discarded. A word is a run of word
// characters, optionally containing internal apostrophes; a run of any
// other non-space characters is a single punctuation token.
func tokenize(s string) []token {
	runes := []rune(s)
	var tokens []token

	i := 0
	for i < len(runes) {
		r := runes[i]
		switch {
		case unicode.IsSpace(r):
			i++

		case isWordRune(r):
			start := i
			for i < len(runes) {
				if isWordRune(runes[i]) {
					i++
					continue
				}
				// An apostrophe stays inside the word only when flanked by
				// word characters on both sides.
				if isApostrophe(runes[i]) && i+1 < len(runes) && isWordRune(runes[i+1]) {
					i += 2
					continue
				}
				break
			}
			tokens = append(tokens, token{text: string(runes[start:i]), word: true})

		default:
			start := i
			for i < len(runes) && !unicode.IsSpace(runes[i]) && !isWordRune(runes[i]) {
				i++
			}
			tokens = append(tokens, token{text: string(runes[start:i])})
		}
	}

	return tokens
}

// words extracts the literal text of the word tokens, preserving order.
func words(tokens []token) []string {
	var out []string
	for _, t := range tokens {
		if t.word {
			out = append(out, t.text)
		}
	}
	return out
}

// normalizeAll maps [Normalize] over ws.
func normalizeAll(ws []string) []string {
	out := make([]string, len(ws))
	for i, w := range ws {
		out[i] = Normalize(w)
	}
	return out
}

// lcsMatches runs the standard longest-common-subsequence dynamic program
// over ref and attempt and returns the set of ref indices that participated
// in an equal-element match. The backtrack resolves ties by decrementing the
// ref cursor when lcs[i-1][j] > lcs[i][j-1], which determines which
// reference words count as skipped when the sequences differ in length.
func lcsMatches(ref, attempt []string) map[int]struct{} {
	m, n := len(ref), len(attempt)
	lcs := make([][]int, m+1)
	for i := range lcs {
		lcs[i] = make([]int, n+1)
	}

	for i := 1; i <= m; i++ {
		for j := 1; j <= n; j++ {
			if ref[i-1] == attempt[j-1] {
				lcs[i][j] = lcs[i-1][j-1] + 1
			} else if lcs[i-1][j] >= lcs[i][j-1] {
				lcs[i][j] = lcs[i-1][j]
			} else {
				lcs[i][j] = lcs[i][j-1]
			}
		}
	}

	matches := make(map[int]struct{})
	i, j := m, n
	for i > 0 && j > 0 {
		switch {
		case ref[i-1] == attempt[j-1]:
			matches[i-1] = struct{}{}
			i--
			j--
		case lcs[i-1][j] > lcs[i][j-1]:
			i--
		default:
			j--
		}
	}

	return matches
}
