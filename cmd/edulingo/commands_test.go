package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/spf13/viper"

	"github.com/pavelanni/edulingo/internal/model"
	"github.com/pavelanni/edulingo/internal/quiz"
)

func testQuestions() []model.Question {
	return []model.Question{
		{Text: "2+2?", Options: map[model.Label]string{"A": "3", "B": "4"}, CorrectLabel: "B"},
		{Text: "Capital of France?", Options: map[model.Label]string{"A": "Paris", "B": "Rome", "C": "Oslo"}, CorrectLabel: "A"},
	}
}

func TestPlayQuiz(t *testing.T) {
	var recorded []model.SessionResult
	s := quiz.New(quiz.Meta{Subject: "Mixed", Topic: "Basics"}, testQuestions(),
		quiz.WithOnComplete(func(r model.SessionResult) { recorded = append(recorded, r) }))

	// "x" is rejected and re-prompted; lower case is accepted.
	in := strings.NewReader("x\nb\nc\n")
	var out bytes.Buffer
	res, err := playQuiz(s, in, &out)
	if err != nil {
		t.Fatalf("playQuiz: %v", err)
	}
	if res.Score != 1 || res.Total != 2 {
		t.Errorf("result = %d/%d, want 1/2", res.Score, res.Total)
	}
	if len(recorded) != 1 {
		t.Errorf("completion recorded %d times, want 1", len(recorded))
	}

	text := out.String()
	for _, want := range []string{"Question 1 of 2", "Choose one of the listed letters.", "Correct!", "The correct answer is A."} {
		if !strings.Contains(text, want) {
			t.Errorf("output missing %q", want)
		}
	}
}

func TestPlayQuizSkipsQuestionWithoutOptions(t *testing.T) {
	var recorded []model.SessionResult
	questions := []model.Question{
		{Text: "empty", Options: map[model.Label]string{}},
		{Text: "q2", Options: map[model.Label]string{"A": "x"}, CorrectLabel: "A"},
	}
	s := quiz.New(quiz.Meta{Subject: "Mixed", Topic: "Basics"}, questions,
		quiz.WithOnComplete(func(r model.SessionResult) { recorded = append(recorded, r) }))

	var out bytes.Buffer
	res, err := playQuiz(s, strings.NewReader("A\n"), &out)
	if err != nil {
		t.Fatalf("playQuiz: %v", err)
	}
	if res.Score != 1 || res.Total != 2 {
		t.Errorf("result = %d/%d, want 1/2", res.Score, res.Total)
	}
	if len(recorded) != 1 {
		t.Errorf("completion recorded %d times, want 1", len(recorded))
	}
	if !strings.Contains(out.String(), "no answer options") {
		t.Errorf("output missing the no-options notice")
	}
}

func TestPlayQuizAbort(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"quit", "q\n"},
		{"eof", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			completed := false
			s := quiz.New(quiz.Meta{Subject: "Mixed", Topic: "Basics"}, testQuestions(),
				quiz.WithOnComplete(func(model.SessionResult) { completed = true }))
			if _, err := playQuiz(s, strings.NewReader(tt.input), &bytes.Buffer{}); err == nil {
				t.Fatal("expected abort error")
			}
			if completed {
				t.Error("aborted quiz was recorded")
			}
		})
	}
}

func TestLoadCatalog(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		cat := loadCatalog(viper.New())
		if !cat.Has("Physics", "Optics") {
			t.Errorf("default catalog missing Physics/Optics")
		}
	})

	t.Run("custom", func(t *testing.T) {
		v := viper.New()
		v.Set("catalog", map[string]any{
			"subjects": []map[string]any{
				{"name": "History", "topics": []string{"Rome", "Egypt"}},
			},
		})
		v.Set("scope-labels", []string{"school"})
		cat := loadCatalog(v)
		if !cat.Has("History", "Rome") || cat.Has("Physics", "Optics") {
			t.Errorf("custom catalog not applied: %+v", cat)
		}
		if len(cat.ScopeKeys) != 1 || cat.ScopeKeys[0] != "school" {
			t.Errorf("scope keys = %v", cat.ScopeKeys)
		}
	})

	t.Run("invalid falls back", func(t *testing.T) {
		v := viper.New()
		v.Set("catalog", map[string]any{"subjects": []map[string]any{}})
		cat := loadCatalog(v)
		if !cat.Has("Math", "Algebra") {
			t.Errorf("expected default catalog")
		}
	})
}
