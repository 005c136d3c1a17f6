// Package dialogue generates two-role practice dialogues with an LLM and
// validates the model output into [Line] values the practice engine consumes.
package dialogue

import "errors"

// Role tags used in generated dialogues. The engine treats them as opaque.
const (
	RoleA = "A"
	RoleB = "B"
)

// Line is a single dialogue turn: who speaks, what they say, and the
// translation shown to the learner.
type Line struct {
	// Role is [RoleA] or [RoleB].
	Role string `json:"role"`

	// Text is the sentence in the target language.
	Text string `json:"text"`

	// Translation is the learner-language rendering of Text.
	Translation string `json:"text_cn"`
}

// Validation errors returned by [ParseLines] and [Generator.Generate].
var (
	ErrEmptyDialogue  = errors.New("dialogue: empty dialogue")
	ErrMalformedJSON  = errors.New("dialogue: response is not valid JSON")
	ErrUnknownRole    = errors.New("dialogue: line has unknown role")
	ErrEmptyLine      = errors.New("dialogue: line has empty text")
	ErrSingleSpeaker  = errors.New("dialogue: only one role speaks")
	ErrEmptyScene     = errors.New("dialogue: scene must not be empty")
	ErrEmptyResponse  = errors.New("dialogue: model returned empty content")
	ErrTooManyRetries = errors.New("dialogue: model kept returning malformed output")
)
