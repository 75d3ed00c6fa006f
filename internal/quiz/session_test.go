package quiz

import (
	"errors"
	"testing"
	"time"

	"github.com/pavelanni/edulingo/internal/model"
)

var fixedNow = time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)

func q(text string, correct model.Label) model.Question {
	return model.Question{
		Text: text,
		Options: map[model.Label]string{
			model.LabelA: "a", model.LabelB: "b", model.LabelC: "c", model.LabelD: "d",
		},
		CorrectLabel: correct,
		Topic:        "T",
	}
}

func answer(t *testing.T, s *Session, l model.Label) bool {
	t.Helper()
	if err := s.SelectAnswer(l); err != nil {
		t.Fatalf("SelectAnswer(%s): %v", l, err)
	}
	ok, err := s.Check()
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	return ok
}

func TestSessionScenario(t *testing.T) {
	var emitted []model.SessionResult
	s := New(Meta{Subject: "Math", Topic: "Algebra", Scope: model.ScopeLabels{"grade": "10"}},
		[]model.Question{q("q1", model.LabelA), q("q2", model.LabelB), q("q3", model.LabelC)},
		WithClock(func() time.Time { return fixedNow }),
		WithOnComplete(func(r model.SessionResult) { emitted = append(emitted, r) }),
	)

	if s.ID() == "" {
		t.Error("session should have an id")
	}

	if !answer(t, s, model.LabelA) {
		t.Error("q1 should be correct")
	}
	if r, err := s.Advance(); err != nil || r != nil {
		t.Fatalf("Advance after q1: %v, %v", r, err)
	}
	if answer(t, s, model.LabelD) {
		t.Error("q2 should be wrong")
	}
	if _, err := s.Advance(); err != nil {
		t.Fatalf("Advance after q2: %v", err)
	}
	if !answer(t, s, model.LabelC) {
		t.Error("q3 should be correct")
	}
	r, err := s.Advance()
	if err != nil {
		t.Fatalf("final Advance: %v", err)
	}
	if r == nil {
		t.Fatal("expected a result on completion")
	}

	want := model.SessionResult{Subject: "Math", Topic: "Algebra", Score: 2, Total: 3, CompletedAt: fixedNow}
	if r.Subject != want.Subject || r.Topic != want.Topic || r.Score != want.Score ||
		r.Total != want.Total || !r.CompletedAt.Equal(want.CompletedAt) || r.Scope["grade"] != "10" {
		t.Errorf("result = %+v, want %+v", *r, want)
	}
	if s.Phase() != model.PhaseCompleted {
		t.Errorf("phase = %s, want completed", s.Phase())
	}
	if len(emitted) != 1 {
		t.Fatalf("expected exactly one emission, got %d", len(emitted))
	}
	if _, err := s.Advance(); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("Advance after completion: expected ErrInvalidTransition, got %v", err)
	}
	if len(emitted) != 1 {
		t.Error("result emitted more than once")
	}

	missed := s.Missed()
	if len(missed) != 1 || missed[0].Text != "q2" {
		t.Errorf("Missed = %+v, want [q2]", missed)
	}
	if got, ok := s.Result(); !ok || got.Score != 2 {
		t.Errorf("Result() = %+v, %v", got, ok)
	}
}

func TestCheckIsIdempotent(t *testing.T) {
	s := New(Meta{Subject: "S", Topic: "T"}, []model.Question{q("q1", model.LabelB)})
	if err := s.SelectAnswer(model.LabelB); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 3; i++ {
		ok, err := s.Check()
		if err != nil || !ok {
			t.Fatalf("Check #%d = %v, %v", i+1, ok, err)
		}
	}
	if st := s.State(); st.Score != 1 {
		t.Errorf("score = %d, want 1", st.Score)
	}
}

func TestSelectAnswerTransitions(t *testing.T) {
	s := New(Meta{Subject: "S", Topic: "T"}, []model.Question{q("q1", model.LabelA), q("q2", model.LabelA)})

	if _, err := s.Check(); !errors.Is(err, ErrNoSelection) {
		t.Errorf("Check without selection: expected ErrNoSelection, got %v", err)
	}
	if _, err := s.Advance(); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("Advance before Check: expected ErrInvalidTransition, got %v", err)
	}
	if err := s.SelectAnswer("E"); !errors.Is(err, ErrUnknownOption) {
		t.Errorf("SelectAnswer(E): expected ErrUnknownOption, got %v", err)
	}

	if err := s.SelectAnswer(model.LabelB); err != nil {
		t.Fatal(err)
	}
	if err := s.SelectAnswer(model.LabelA); err != nil {
		t.Fatal(err)
	}
	if sel, _ := s.Selected(); sel != model.LabelA {
		t.Errorf("re-selection should replace, got %s", sel)
	}
	if st := s.State(); st.Score != 0 {
		t.Error("selecting must not touch the score")
	}

	if _, err := s.Check(); err != nil {
		t.Fatal(err)
	}
	if err := s.SelectAnswer(model.LabelB); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("SelectAnswer after Check: expected ErrInvalidTransition, got %v", err)
	}
	if answered, total := s.Progress(); answered != 1 || total != 2 {
		t.Errorf("Progress = %d/%d, want 1/2", answered, total)
	}

	if _, err := s.Advance(); err != nil {
		t.Fatal(err)
	}
	st := s.State()
	if st.Index != 1 || st.Selected != nil || st.Checked || st.Phase != model.PhaseAwaitingAnswer {
		t.Errorf("unexpected state after Advance: %+v", st)
	}
}

func TestZeroQuestions(t *testing.T) {
	calls := 0
	s := New(Meta{Subject: "S", Topic: "T"}, nil,
		WithOnComplete(func(model.SessionResult) { calls++ }))

	if s.Phase() != model.PhaseCompleted {
		t.Errorf("phase = %s, want completed", s.Phase())
	}
	if calls != 1 {
		t.Errorf("on-complete called %d times, want 1", calls)
	}
	r, ok := s.Result()
	if !ok || r.Score != 0 || r.Total != 0 {
		t.Errorf("Result = %+v, %v", r, ok)
	}
	if _, ok := s.Current(); ok {
		t.Error("Current should report no question")
	}
	if err := s.SelectAnswer(model.LabelA); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("expected ErrInvalidTransition, got %v", err)
	}
	if _, err := s.Check(); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestQuestionWithoutOptions(t *testing.T) {
	s := New(Meta{Subject: "S", Topic: "T"}, []model.Question{{Text: "broken", CorrectLabel: model.LabelA}})
	if s.HasOptions() {
		t.Error("HasOptions should be false")
	}
	for _, l := range model.Labels {
		if err := s.SelectAnswer(l); !errors.Is(err, ErrUnknownOption) {
			t.Errorf("SelectAnswer(%s): expected ErrUnknownOption, got %v", l, err)
		}
	}
	if _, err := s.Check(); !errors.Is(err, ErrNoSelection) {
		t.Errorf("expected ErrNoSelection, got %v", err)
	}
}

func TestSkipQuestionWithoutOptions(t *testing.T) {
	var emitted []model.SessionResult
	s := New(Meta{Subject: "S", Topic: "T"},
		[]model.Question{{Text: "broken", CorrectLabel: model.LabelA}, q("q2", model.LabelA), {Text: "also broken"}},
		WithOnComplete(func(r model.SessionResult) { emitted = append(emitted, r) }))

	res, err := s.Skip()
	if err != nil || res != nil {
		t.Fatalf("Skip() = %v, %v; want nil, nil", res, err)
	}
	if cur, _ := s.Current(); cur.Text != "q2" || s.Phase() != model.PhaseAwaitingAnswer {
		t.Fatalf("after skip: current %q, phase %s", cur.Text, s.Phase())
	}

	if _, err := s.Skip(); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("Skip on answerable question: expected ErrInvalidTransition, got %v", err)
	}
	if err := s.SelectAnswer(model.LabelA); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Check(); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Skip(); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("Skip in Checked: expected ErrInvalidTransition, got %v", err)
	}
	if _, err := s.Advance(); err != nil {
		t.Fatal(err)
	}

	res, err = s.Skip()
	if err != nil {
		t.Fatalf("Skip last: %v", err)
	}
	if res == nil || res.Score != 1 || res.Total != 3 {
		t.Fatalf("result = %+v, want 1/3", res)
	}
	if s.Phase() != model.PhaseCompleted || len(emitted) != 1 {
		t.Errorf("phase %s, emitted %d", s.Phase(), len(emitted))
	}
	if got := len(s.Missed()); got != 2 {
		t.Errorf("missed = %d, want 2", got)
	}
	if _, err := s.Skip(); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("Skip after completion: expected ErrInvalidTransition, got %v", err)
	}
}

func TestStateIsACopy(t *testing.T) {
	s := New(Meta{Subject: "S", Topic: "T"}, []model.Question{q("q1", model.LabelA)})
	st := s.State()
	st.Questions[0].Text = "changed"
	st.Score = 99
	if cur, _ := s.Current(); cur.Text != "q1" {
		t.Error("mutating the snapshot changed the session")
	}
	if s.State().Score != 0 {
		t.Error("mutating the snapshot changed the score")
	}
}
