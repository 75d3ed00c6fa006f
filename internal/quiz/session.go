// Package quiz drives a learner through a fixed list of questions.
//
// A Session moves AwaitingAnswer -> Checked -> (AwaitingAnswer | Completed).
// A question without options moves on through Skip instead.
// It is not safe for concurrent use; callers serialize access per learner.
package quiz

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/pavelanni/edulingo/internal/model"
)

var (
	// ErrInvalidTransition is returned when an operation is not allowed in the
	// current phase.
	ErrInvalidTransition = errors.New("invalid transition")
	// ErrUnknownOption is returned when the selected label is not an option
	// of the current question.
	ErrUnknownOption = errors.New("unknown option")
	// ErrNoSelection is returned by Check when nothing has been selected.
	ErrNoSelection = errors.New("no answer selected")
)

// Meta is what a session carries into its result.
type Meta struct {
	Subject string
	Topic   string
	Scope   model.ScopeLabels
}

// Option configures a Session.
type Option func(*Session)

// WithClock sets the time source used for CompletedAt.
func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

// WithOnComplete registers a callback invoked exactly once when the session
// completes.
func WithOnComplete(fn func(model.SessionResult)) Option {
	return func(s *Session) { s.onComplete = fn }
}

// Session is one run through a quiz.
type Session struct {
	id        string
	meta      Meta
	questions []model.Question

	index       int
	selected    *model.Label
	phase       model.Phase
	lastCorrect bool
	score       int
	missed      []int

	result     *model.SessionResult
	emitted    bool
	now        func() time.Time
	onComplete func(model.SessionResult)
}

// New starts a session over questions. With no questions the session is
// completed immediately with a 0/0 result.
func New(meta Meta, questions []model.Question, opts ...Option) *Session {
	s := &Session{
		id:        uuid.NewString(),
		meta:      Meta{Subject: meta.Subject, Topic: meta.Topic, Scope: meta.Scope.Clone()},
		questions: append([]model.Question(nil), questions...),
		phase:     model.PhaseAwaitingAnswer,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if len(s.questions) == 0 {
		s.complete()
	}
	return s
}

// ID returns the session's unique identifier.
func (s *Session) ID() string { return s.id }

// Meta returns the subject, topic and scope of the session.
func (s *Session) Meta() Meta {
	return Meta{Subject: s.meta.Subject, Topic: s.meta.Topic, Scope: s.meta.Scope.Clone()}
}

// SelectAnswer records label as the tentative answer. Re-selecting before
// Check replaces the previous choice.
func (s *Session) SelectAnswer(label model.Label) error {
	if s.phase != model.PhaseAwaitingAnswer {
		return fmt.Errorf("select answer in phase %s: %w", s.phase, ErrInvalidTransition)
	}
	q := s.questions[s.index]
	label = model.Label(strings.TrimSpace(string(label)))
	if _, ok := q.Options[label]; !ok {
		return fmt.Errorf("select answer %q: %w", label, ErrUnknownOption)
	}
	s.selected = &label
	return nil
}

// Check grades the selected answer. In the Checked phase it returns the
// verdict already recorded.
func (s *Session) Check() (bool, error) {
	switch s.phase {
	case model.PhaseChecked:
		return s.lastCorrect, nil
	case model.PhaseAwaitingAnswer:
	default:
		return false, fmt.Errorf("check in phase %s: %w", s.phase, ErrInvalidTransition)
	}
	if s.selected == nil {
		return false, ErrNoSelection
	}

	q := s.questions[s.index]
	correct := strings.TrimSpace(string(*s.selected)) == strings.TrimSpace(string(q.CorrectLabel))
	if correct {
		s.score++
	} else {
		s.missed = append(s.missed, s.index)
	}
	s.lastCorrect = correct
	s.phase = model.PhaseChecked
	return correct, nil
}

// Advance moves past a checked question. After the last question it
// completes the session and returns the result; otherwise result is nil.
func (s *Session) Advance() (*model.SessionResult, error) {
	if s.phase != model.PhaseChecked {
		return nil, fmt.Errorf("advance in phase %s: %w", s.phase, ErrInvalidTransition)
	}
	return s.next(), nil
}

// Skip moves past a question that has no options, counting it as missed.
// Questions that can be answered must go through Check and Advance.
func (s *Session) Skip() (*model.SessionResult, error) {
	if s.phase != model.PhaseAwaitingAnswer {
		return nil, fmt.Errorf("skip in phase %s: %w", s.phase, ErrInvalidTransition)
	}
	if s.HasOptions() {
		return nil, fmt.Errorf("skip answerable question: %w", ErrInvalidTransition)
	}
	s.missed = append(s.missed, s.index)
	return s.next(), nil
}

func (s *Session) next() *model.SessionResult {
	s.selected = nil
	s.lastCorrect = false
	if s.index+1 >= len(s.questions) {
		s.index = len(s.questions)
		s.complete()
		r := *s.result
		return &r
	}
	s.index++
	s.phase = model.PhaseAwaitingAnswer
	return nil
}

func (s *Session) complete() {
	s.phase = model.PhaseCompleted
	if s.emitted {
		return
	}
	s.emitted = true
	s.result = &model.SessionResult{
		Subject:     s.meta.Subject,
		Topic:       s.meta.Topic,
		Scope:       s.meta.Scope.Clone(),
		Score:       s.score,
		Total:       len(s.questions),
		CompletedAt: s.now(),
	}
	if s.onComplete != nil {
		s.onComplete(*s.result)
	}
}

// State returns a snapshot of the session.
func (s *Session) State() model.SessionState {
	st := model.SessionState{
		Questions:   append([]model.Question(nil), s.questions...),
		Index:       s.index,
		Checked:     s.phase == model.PhaseChecked,
		LastCorrect: s.lastCorrect,
		Score:       s.score,
		Phase:       s.phase,
	}
	if s.selected != nil {
		l := *s.selected
		st.Selected = &l
	}
	return st
}

// Phase returns the current phase.
func (s *Session) Phase() model.Phase { return s.phase }

// Selected returns the tentative answer, if any.
func (s *Session) Selected() (model.Label, bool) {
	if s.selected == nil {
		return "", false
	}
	return *s.selected, true
}

// Current returns the question being answered. ok is false once completed.
func (s *Session) Current() (model.Question, bool) {
	if s.phase == model.PhaseCompleted || s.index >= len(s.questions) {
		return model.Question{}, false
	}
	return s.questions[s.index], true
}

// HasOptions reports whether the current question can be answered at all.
func (s *Session) HasOptions() bool {
	q, ok := s.Current()
	return ok && len(q.Options) > 0
}

// Progress returns how many questions have been checked and the total.
func (s *Session) Progress() (answered, total int) {
	answered = s.index
	if s.phase == model.PhaseChecked {
		answered++
	}
	return answered, len(s.questions)
}

// Result returns the completed result.
func (s *Session) Result() (model.SessionResult, bool) {
	if s.result == nil {
		return model.SessionResult{}, false
	}
	return *s.result, true
}

// Missed returns the questions answered wrongly so far, in order.
func (s *Session) Missed() []model.Question {
	out := make([]model.Question, 0, len(s.missed))
	for _, i := range s.missed {
		out = append(out, s.questions[i])
	}
	return out
}
