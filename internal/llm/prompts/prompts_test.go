package prompts

import (
	"strings"
	"testing"

	"github.com/pavelanni/edulingo/internal/model"
	"github.com/pavelanni/edulingo/internal/question"
)

func TestBuildQuizPrompt(t *testing.T) {
	prompt, err := BuildQuizPrompt("Math", "Algebra", 5, nil)
	if err != nil {
		t.Fatalf("BuildQuizPrompt: %v", err)
	}
	for _, want := range []string{
		`subject "Math"`,
		`topic "Algebra"`,
		"Generate exactly 5 multiple-choice",
		question.Header,
		"Do NOT include any introduction",
		"only the letter (A, B, C, or D)",
	} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt should contain %q", want)
		}
	}
	if strings.Contains(prompt, "The questions are for") {
		t.Error("prompt should not contain a scope line without scope labels")
	}
}

func TestBuildQuizPromptDeterministic(t *testing.T) {
	scope := model.ScopeLabels{"grade": "10", "examType": "board"}
	a, err := BuildQuizPrompt("Physics", "Optics", 3, scope)
	if err != nil {
		t.Fatalf("BuildQuizPrompt: %v", err)
	}
	for i := 0; i < 5; i++ {
		b, _ := BuildQuizPrompt("Physics", "Optics", 3, scope)
		if a != b {
			t.Fatal("prompt must be deterministic")
		}
	}
	if !strings.Contains(a, `examType "board"; grade "10";`) {
		t.Errorf("scope labels should be rendered in key order:\n%s", a)
	}
}

func TestSanitizeField(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "Algebra", "Algebra"},
		{"newlines collapsed", "Line\none\n\ntwo", "Line one two"},
		{"quotes replaced", `say "hi"`, "say 'hi'"},
		{"empty", "   ", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := sanitizeField(tt.in); got != tt.want {
				t.Errorf("sanitizeField(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}

	long := strings.Repeat("x", maxFieldRunes+50)
	if got := sanitizeField(long); len(got) != maxFieldRunes {
		t.Errorf("expected truncation to %d runes, got %d", maxFieldRunes, len(got))
	}
}
