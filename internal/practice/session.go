package practice

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/talkdrill/talkdrill/internal/compare"
	"github.com/talkdrill/talkdrill/internal/dialogue"
)

// ErrCompleted is returned by Submit, Advance, Reveal, and ForcePass once the
// session has reached the Completed state.
var ErrCompleted = errors.New("practice: session already completed")

// ErrNoAttempt is returned by ForcePass when the current task has no logged
// attempt and nothing was revealed — there is nothing to override.
var ErrNoAttempt = errors.New("practice: no attempt to override for current task")

// State is the lifecycle phase of a [Session].
type State string

const (
	// StateRunning is the primary pass over the constructed task queue.
	StateRunning State = "running"

	// StateReviewing is the dedicated second pass over only the tasks that
	// were still failing when the primary pass was exhausted.
	StateReviewing State = "reviewing"

	// StateCompleted is terminal: the review log is frozen and ready for
	// reporting.
	StateCompleted State = "completed"
)

// Attempt is one review-log entry, recorded per submission. Entries are
// append-only; every submission is logged, failed attempts are never
// overwritten by later ones.
type Attempt struct {
	// Task is the task this submission targeted.
	Task Task

	// Diff is the word-level alignment of the attempt against the target.
	Diff []compare.Segment

	// Passed reports the judge's verdict. It is mutated only by
	// [Session.ForcePass], never by a later submission.
	Passed bool

	// Input is the learner's raw attempt text.
	Input string

	// Similarity is the advisory likeness score in [0, 100].
	Similarity float64
}

// Summary is the terminal report exposed once a session is completed.
type Summary struct {
	// Total is the number of review-log entries (one per submission).
	Total int

	// Passed counts entries whose verdict is a pass; Failed is the rest.
	Passed int
	Failed int

	// Log is the full append-only review log in submission order.
	Log []Attempt

	// MissedWords lists vocabulary words mismatched at least once during the
	// session, each at most once regardless of how often it was missed.
	MissedWords []string
}

// SessionConfig carries everything needed to construct a [Session].
type SessionConfig struct {
	// Lines is the dialogue the session practices.
	Lines []dialogue.Line

	// Tasks is the ordered primary task queue, typically built by
	// [SelfDictationTasks] or [FullSessionTasks].
	Tasks []Task

	// IgnoredWords are words (role names) never marked wrong in a diff.
	IgnoredWords []string

	// Vocabulary is the learner's vocabulary word list used for mismatch
	// accounting. Matching is exact and case-sensitive.
	Vocabulary []string

	// SpokenThreshold, when positive, makes similarity ≥ threshold the pass
	// criterion instead of strict exact matching. Used by the spoken
	// practice flow (threshold 70); typed practice leaves it zero.
	SpokenThreshold float64
}

// Session is the practice state machine. It walks an ordered task queue,
// accepts one attempt per visit, re-enqueues failed tasks for a later retry
// within the same pass, and finishes with a review pass over whatever is
// still failing.
//
// Methods are safe for concurrent use; each event handler is atomic with
// respect to the session state. A session holds no external resources —
// abandoning one is simply dropping the reference.
type Session struct {
	mu  sync.Mutex
	cfg SessionConfig

	state    State
	queue    []Task
	cursor   int
	pending  map[int]int // target index → occurrences in queue after the cursor
	log      []Attempt
	missed   map[string]struct{}
	ordered  []string // missed words in first-miss order
	revealed bool
}

// NewSession constructs a session over the given dialogue and task queue and
// places it in the Running state. An empty task queue completes immediately.
// Returns an error when a task references a line that does not exist.
func NewSession(cfg SessionConfig) (*Session, error) {
	if err := validateTasks(cfg.Tasks, len(cfg.Lines)); err != nil {
		return nil, err
	}

	s := &Session{cfg: cfg}
	s.reset()
	return s, nil
}

// reset rebuilds the mutable state from the configured task queue.
// Callers must hold s.mu (or be the constructor).
func (s *Session) reset() {
	s.state = StateRunning
	s.queue = append([]Task(nil), s.cfg.Tasks...)
	s.cursor = 0
	s.pending = pendingTargets(s.queue)
	s.log = nil
	s.missed = make(map[string]struct{})
	s.ordered = nil
	s.revealed = false
	if len(s.queue) == 0 {
		s.state = StateCompleted
	}
}

// State returns the session's current lifecycle phase.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Current returns the task at the cursor. ok is false once the session is
// completed.
func (s *Session) Current() (task Task, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateCompleted {
		return Task{}, false
	}
	return s.queue[s.cursor], true
}

// Progress reports the cursor position and queue length of the current pass.
func (s *Session) Progress() (current, total int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursor, len(s.queue)
}

// Submit judges attempt against the current task's target sentence, appends
// the result to the review log, and on failure re-enqueues the task at the
// end of the current queue unless an identical task is already pending later.
// The cursor does not move; call [Session.Advance] to proceed.
func (s *Session) Submit(attempt compare.AttemptInput) (Attempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateCompleted {
		return Attempt{}, ErrCompleted
	}

	task := s.queue[s.cursor]
	target := s.cfg.Lines[task.Target].Text

	passed := s.judge(target, attempt)
	diff := compare.Align(target, attempt, compare.WithIgnoredWords(s.cfg.IgnoredWords...))

	entry := Attempt{
		Task:       task,
		Diff:       diff,
		Passed:     passed,
		Input:      attempt.Raw(),
		Similarity: compare.Similarity(target, attempt.Raw()),
	}
	s.log = append(s.log, entry)
	s.revealed = false

	if !passed {
		s.requeue(task)
		s.trackMismatches(diff)
	}

	slog.Debug("practice attempt submitted",
		"state", s.state,
		"target", task.Target,
		"passed", passed,
		"queue_len", len(s.queue),
	)

	return entry, nil
}

// judge applies the configured pass criterion: strict normalized equality
// for typed practice, similarity threshold for spoken practice.
func (s *Session) judge(target string, attempt compare.AttemptInput) bool {
	if s.cfg.SpokenThreshold > 0 {
		return compare.Similarity(target, attempt.Raw()) >= s.cfg.SpokenThreshold
	}
	return compare.ExactMatch(target, attempt.Raw())
}

// requeue appends task to the end of the queue unless a task with the same
// target is already pending later in this pass. The pending set keeps the
// invariant that a failing task is re-inserted at most once per failure.
func (s *Session) requeue(task Task) {
	if s.pending[task.Target] > 0 {
		return
	}
	s.queue = append(s.queue, task)
	s.pending[task.Target]++
}

// pendingTargets builds the multiset of target indices in queue positions
// after the cursor, which starts at 0.
func pendingTargets(queue []Task) map[int]int {
	pending := make(map[int]int)
	for _, t := range queue {
		pending[t.Target]++
	}
	if len(queue) > 0 {
		pending[queue[0].Target]--
	}
	return pending
}

// trackMismatches records every mismatched word that exists in the learner's
// vocabulary. A word is recorded at most once per session — the tracked
// signal is "was ever missed", not a running tally.
func (s *Session) trackMismatches(diff []compare.Segment) {
	for _, w := range MissedVocabulary(diff, s.cfg.Vocabulary) {
		if _, seen := s.missed[w]; seen {
			continue
		}
		s.missed[w] = struct{}{}
		s.ordered = append(s.ordered, w)
	}
}

// Advance moves the cursor to the next pending task. When the primary pass
// is exhausted it either starts the review pass (over tasks whose latest
// logged attempt failed) or completes; when the review pass is exhausted the
// session completes. The returned state is the phase after the move.
func (s *Session) Advance() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateCompleted {
		return s.state
	}

	s.revealed = false
	if s.cursor+1 < len(s.queue) {
		s.cursor++
		// The new current task is no longer "pending later"; a fresh failure
		// of its target may requeue it again.
		if s.pending[s.queue[s.cursor].Target]--; s.pending[s.queue[s.cursor].Target] <= 0 {
			delete(s.pending, s.queue[s.cursor].Target)
		}
		return s.state
	}

	if s.state == StateRunning {
		if failing := s.stillFailing(); len(failing) > 0 {
			s.state = StateReviewing
			s.queue = failing
			s.cursor = 0
			s.pending = pendingTargets(s.queue)
			slog.Debug("practice review pass started", "tasks", len(failing))
			return s.state
		}
	}

	s.state = StateCompleted
	slog.Debug("practice session completed", "attempts", len(s.log))
	return s.state
}

// stillFailing returns, in first-failure order, every distinct task whose
// review log shows a failed attempt with no later passing entry.
func (s *Session) stillFailing() []Task {
	latest := make(map[int]bool) // target index → latest verdict
	var order []int
	for _, entry := range s.log {
		if _, seen := latest[entry.Task.Target]; !seen {
			order = append(order, entry.Task.Target)
		}
		latest[entry.Task.Target] = entry.Passed
	}

	var failing []Task
	for _, target := range order {
		if latest[target] {
			continue
		}
		for _, entry := range s.log {
			if entry.Task.Target == target {
				failing = append(failing, entry.Task)
				break
			}
		}
	}
	return failing
}

// Reveal produces a diff of the current task's target against whatever
// partial input exists, without logging an attempt, without touching the
// vocabulary accounting, and without moving the cursor. The task enters a
// neutral revealed sub-state that still requires an explicit Advance (or a
// ForcePass) to proceed.
func (s *Session) Reveal(partial compare.AttemptInput) ([]compare.Segment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateCompleted {
		return nil, ErrCompleted
	}

	task := s.queue[s.cursor]
	target := s.cfg.Lines[task.Target].Text
	s.revealed = true
	return compare.Align(target, partial, compare.WithIgnoredWords(s.cfg.IgnoredWords...)), nil
}

// Revealed reports whether the current task is in the revealed sub-state.
func (s *Session) Revealed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.revealed
}

// ForcePass is the operator override for "I did get this right": it marks
// the current task's latest log entry as passed without re-running the
// judge. When the task was revealed without any submission, a synthetic
// passing entry is appended instead. The cursor still advances normally via
// [Session.Advance].
func (s *Session) ForcePass() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateCompleted {
		return ErrCompleted
	}

	task := s.queue[s.cursor]
	for i := len(s.log) - 1; i >= 0; i-- {
		if s.log[i].Task.Target == task.Target {
			s.log[i].Passed = true
			return nil
		}
	}

	if !s.revealed {
		return ErrNoAttempt
	}
	s.log = append(s.log, Attempt{Task: task, Passed: true, Similarity: 100})
	return nil
}

// Restart discards all session state, rebuilds the task queue from the same
// dialogue, clears the review log, and returns to the start of the primary
// pass.
func (s *Session) Restart() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reset()
}

// Log returns a copy of the review log as recorded so far.
func (s *Session) Log() []Attempt {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Attempt(nil), s.log...)
}

// Report builds the terminal summary. It may be called at any time, but the
// log is only frozen once the session is completed.
func (s *Session) Report() Summary {
	s.mu.Lock()
	defer s.mu.Unlock()

	passed := 0
	for _, entry := range s.log {
		if entry.Passed {
			passed++
		}
	}
	return Summary{
		Total:       len(s.log),
		Passed:      passed,
		Failed:      len(s.log) - passed,
		Log:         append([]Attempt(nil), s.log...),
		MissedWords: append([]string(nil), s.ordered...),
	}
}
