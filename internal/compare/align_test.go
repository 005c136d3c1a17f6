package compare_test

import (
	"reflect"
	"strings"
	"testing"

	"github.com/talkdrill/talkdrill/internal/compare"
)

// flatten concatenates segment texts with no separators, for comparison
// against the reference with its whitespace removed.
func flatten(segs []compare.Segment) string {
	var b strings.Builder
	for _, s := range segs {
		b.WriteString(s.Text)
	}
	return b.String()
}

func wordSegments(segs []compare.Segment) []compare.Segment {
	var out []compare.Segment
	for _, s := range segs {
		if s.Kind == compare.SegmentWord {
			out = append(out, s)
		}
	}
	return out
}

func TestAlign_PerfectAttempt(t *testing.T) {
	t.Parallel()

	ref := "That's a good motivation."
	segs := compare.Align(ref, compare.FreeText("That's a good motivation."))

	words := wordSegments(segs)
	if len(words) != 4 {
		t.Fatalf("got %d word segments, want 4", len(words))
	}
	for _, w := range words {
		if !w.Correct {
			t.Errorf("word %q marked incorrect on a perfect attempt", w.Text)
		}
	}
}

func TestAlign_SubstitutedWords(t *testing.T) {
	t.Parallel()

	ref := "That's a good motivation."
	segs := compare.Align(ref, compare.FreeText("This's a good movitation."))

	want := map[string]bool{
		"That's":     false,
		"a":          true,
		"good":       true,
		"motivation": false,
	}
	for _, w := range wordSegments(segs) {
		if w.Correct != want[w.Text] {
			t.Errorf("word %q: Correct=%v, want %v", w.Text, w.Correct, want[w.Text])
		}
	}
}

func TestAlign_ReconstructsReference(t *testing.T) {
	t.Parallel()

	refs := []string{
		"That's a good motivation.",
		"Hello, world! How are you?",
		"Wait... what?!",
		"你好，世界。",
	}
	for _, ref := range refs {
		segs := compare.Align(ref, compare.FreeText("anything else entirely"))
		// Every token of the reference appears exactly once, in order; only
		// the whitespace separators are discarded.
		got := flatten(segs)
		want := strings.Join(strings.Fields(ref), "")
		if got != want {
			t.Errorf("flatten(Align(%q)) = %q, want %q", ref, got, want)
		}
	}
}

func TestAlign_Deterministic(t *testing.T) {
	t.Parallel()

	ref := "The quick brown fox jumps over the lazy dog."
	attempt := compare.FreeText("quick fox over lazy the dog")

	first := compare.Align(ref, attempt, compare.WithIgnoredWords("fox"))
	second := compare.Align(ref, attempt, compare.WithIgnoredWords("fox"))
	if !reflect.DeepEqual(first, second) {
		t.Error("Align returned different results for identical inputs")
	}
}

func TestAlign_EmptyAttempt(t *testing.T) {
	t.Parallel()

	segs := compare.Align("Hello there.", compare.FreeText(""))
	for _, w := range wordSegments(segs) {
		if w.Correct {
			t.Errorf("word %q marked correct against an empty attempt", w.Text)
		}
		if w.Attempt != compare.MissingSlot {
			t.Errorf("word %q: Attempt=%q, want placeholder %q", w.Text, w.Attempt, compare.MissingSlot)
		}
	}
}

func TestAlign_IgnoredWordsAlwaysCorrect(t *testing.T) {
	t.Parallel()

	ref := "Alice: Hello there."
	segs := compare.Align(ref, compare.FreeText(""), compare.WithIgnoredWords("Alice", "Bob"))

	for _, w := range wordSegments(segs) {
		if w.Text == "Alice" && !w.Correct {
			t.Error("ignored word \"Alice\" marked incorrect")
		}
		if w.Text == "Hello" && w.Correct {
			t.Error("non-ignored word \"Hello\" marked correct against empty attempt")
		}
	}
}

func TestAlign_PunctuationOnlyReference(t *testing.T) {
	t.Parallel()

	segs := compare.Align("?! ...", compare.FreeText("whatever"))
	if len(segs) == 0 {
		t.Fatal("got no segments for punctuation-only reference")
	}
	for _, s := range segs {
		if s.Kind != compare.SegmentPunctuation {
			t.Errorf("got segment kind %q, want punctuation only", s.Kind)
		}
	}
}

func TestAlign_AttemptLongerThanReference(t *testing.T) {
	t.Parallel()

	segs := compare.Align("Good morning.", compare.FreeText("well good morning to you all"))
	want := map[string]bool{"Good": true, "morning": true}
	for _, w := range wordSegments(segs) {
		if w.Correct != want[w.Text] {
			t.Errorf("word %q: Correct=%v, want %v", w.Text, w.Correct, want[w.Text])
		}
	}
}

func TestAlign_ApostropheWords(t *testing.T) {
	t.Parallel()

	// Plain and smart apostrophes tokenize as one word and compare equal
	// after normalization.
	segs := compare.Align("Don't stop.", compare.FreeText("don’t stop"))
	for _, w := range wordSegments(segs) {
		if !w.Correct {
			t.Errorf("word %q marked incorrect, want correct", w.Text)
		}
	}
}

func TestAlign_PerWordSlotsAttribution(t *testing.T) {
	t.Parallel()

	ref := "That's a good motivation."
	segs := compare.Align(ref, compare.PerWordSlots([]string{"Thats", "", "good", "motivation"}))

	words := wordSegments(segs)
	wantAttempts := []string{"Thats", compare.MissingSlot, "good", "motivation"}
	if len(words) != len(wantAttempts) {
		t.Fatalf("got %d word segments, want %d", len(words), len(wantAttempts))
	}
	for i, w := range words {
		if w.Attempt != wantAttempts[i] {
			t.Errorf("slot %d: Attempt=%q, want %q", i, w.Attempt, wantAttempts[i])
		}
	}
	// The empty slot means "a" was never typed.
	if words[1].Correct {
		t.Error("word \"a\" marked correct although its slot was empty")
	}
}

func TestAlign_FreeTextSlotSplitOnComma(t *testing.T) {
	t.Parallel()

	// The typing widget stores one attempt word per reference word using
	// commas as the inter-word separator.
	segs := compare.Align("Hi there friend", compare.FreeText("hi,their,friend"))
	words := wordSegments(segs)
	if len(words) != 3 {
		t.Fatalf("got %d word segments, want 3", len(words))
	}
	if words[0].Attempt != "hi" || words[1].Attempt != "their" || words[2].Attempt != "friend" {
		t.Errorf("slot attribution = [%q %q %q], want [hi their friend]",
			words[0].Attempt, words[1].Attempt, words[2].Attempt)
	}
	if !words[0].Correct || words[1].Correct || !words[2].Correct {
		t.Errorf("correctness = [%v %v %v], want [true false true]",
			words[0].Correct, words[1].Correct, words[2].Correct)
	}
}

func TestAlign_ExactMatchImpliesAllCorrect(t *testing.T) {
	t.Parallel()

	ref := "Where is the train station?"
	attempt := "where is the train station"
	if !compare.ExactMatch(ref, attempt) {
		t.Fatalf("ExactMatch(%q, %q) = false, want true", ref, attempt)
	}
	for _, w := range wordSegments(compare.Align(ref, compare.FreeText(attempt))) {
		if !w.Correct {
			t.Errorf("exact match but word %q marked incorrect", w.Text)
		}
	}
}
