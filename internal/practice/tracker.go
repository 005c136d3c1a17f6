package practice

import (
	"strings"

	"github.com/talkdrill/talkdrill/internal/compare"
)

// MissedVocabulary returns, in diff order and without duplicates, every
// mismatched word from diff that appears in the learner's vocabulary.
// Matching trims the reference word's surrounding whitespace and is exact
// and case-sensitive, mirroring how vocabulary entries are stored.
//
// The caller is expected to request an error-count increment for each
// returned word. The increment is bounded: error counts are clamped at 1,
// making the tracked signal a binary "was ever missed" flag that stays
// idempotent under retries.
func MissedVocabulary(diff []compare.Segment, vocabulary []string) []string {
	if len(vocabulary) == 0 {
		return nil
	}

	known := make(map[string]struct{}, len(vocabulary))
	for _, w := range vocabulary {
		known[w] = struct{}{}
	}

	var missed []string
	seen := make(map[string]struct{})
	for _, seg := range diff {
		if seg.Kind != compare.SegmentWord || seg.Correct {
			continue
		}
		word := strings.TrimSpace(seg.Text)
		if word == "" {
			continue
		}
		if _, ok := known[word]; !ok {
			continue
		}
		if _, dup := seen[word]; dup {
			continue
		}
		seen[word] = struct{}{}
		missed = append(missed, word)
	}
	return missed
}
