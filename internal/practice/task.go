// Package practice implements the practice session engine: sentence task
// construction from a generated dialogue, the bounded retry state machine
// that walks a session to completion, and per-word error accounting against
// the learner's vocabulary.
//
// The engine operates purely on in-memory strings and sequences. It performs
// no I/O; persistence of vocabulary error counts and session reports is the
// caller's responsibility.
package practice

import (
	"fmt"

	"github.com/talkdrill/talkdrill/internal/dialogue"
)

// Task identifies one unit of practice within a session: the line shown to
// the learner (Prompt) and the line the learner must reproduce (Target).
// Both are indices into the session's dialogue. In self-dictation tasks the
// two indices coincide.
type Task struct {
	Prompt int
	Target int
}

// SelfDictationTasks builds one task per dialogue line, with the line itself
// as both prompt and target: the learner reproduces every line verbatim,
// regardless of role.
func SelfDictationTasks(lines []dialogue.Line) []Task {
	tasks := make([]Task, len(lines))
	for i := range lines {
		tasks[i] = Task{Prompt: i, Target: i}
	}
	return tasks
}

// TurnTakingTasks builds tasks for one conversational direction: for every
// line spoken by role, the next line spoken by any other role becomes the
// target. Lines of role with no later reply produce no task.
func TurnTakingTasks(lines []dialogue.Line, role string) []Task {
	var tasks []Task
	for i, line := range lines {
		if line.Role != role {
			continue
		}
		for j := i + 1; j < len(lines); j++ {
			if lines[j].Role != role {
				tasks = append(tasks, Task{Prompt: i, Target: j})
				break
			}
		}
	}
	return tasks
}

// FullSessionTasks builds the complete two-round turn-taking queue: all tasks
// prompted by roleA first, then all tasks prompted by roleB, concatenated in
// dialogue order within each round.
func FullSessionTasks(lines []dialogue.Line, roleA, roleB string) []Task {
	tasks := TurnTakingTasks(lines, roleA)
	return append(tasks, TurnTakingTasks(lines, roleB)...)
}

// validateTasks checks that every task references an existing dialogue line.
// Task construction via the builders above guarantees valid indices; a
// failure here indicates a programming error in the caller.
func validateTasks(tasks []Task, lineCount int) error {
	for i, t := range tasks {
		if t.Prompt < 0 || t.Prompt >= lineCount {
			return fmt.Errorf("practice: task %d prompt index %d out of range [0, %d)", i, t.Prompt, lineCount)
		}
		if t.Target < 0 || t.Target >= lineCount {
			return fmt.Errorf("practice: task %d target index %d out of range [0, %d)", i, t.Target, lineCount)
		}
	}
	return nil
}
