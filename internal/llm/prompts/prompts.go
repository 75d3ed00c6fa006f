package prompts

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"strings"
	"sync"
	"text/template"
	"unicode/utf8"

	"github.com/pavelanni/edulingo/internal/model"
	"github.com/pavelanni/edulingo/internal/question"
)

//go:embed templates/*.txt
var templateFS embed.FS

// maxFieldRunes bounds how much caller text is embedded in a prompt.
const maxFieldRunes = 200

var (
	loadOnce     sync.Once
	loadErr      error
	quizTemplate *template.Template
)

// ScopeEntry is one scope label rendered into the prompt.
type ScopeEntry struct {
	Key   string
	Value string
}

// QuizData holds template data for the quiz generation prompt.
type QuizData struct {
	Subject string
	Topic   string
	Count   int
	Header  string
	Scope   []ScopeEntry
}

// Load parses the embedded prompt templates once.
func Load() error {
	loadOnce.Do(func() {
		content, err := templateFS.ReadFile("templates/quiz.txt")
		if err != nil {
			loadErr = errors.New("failed to read prompt file templates/quiz.txt: " + err.Error())
			return
		}
		tmpl, err := template.New("quiz").Parse(string(content))
		if err != nil {
			loadErr = errors.New("failed to parse prompt template templates/quiz.txt: " + err.Error())
			return
		}
		quizTemplate = tmpl
	})
	return loadErr
}

// BuildQuizPrompt renders the generation prompt. The output is a pure
// function of its arguments; scope labels are rendered in key order.
func BuildQuizPrompt(subject, topic string, count int, scope model.ScopeLabels) (string, error) {
	if err := Load(); err != nil {
		return "", fmt.Errorf("load templates: %w", err)
	}

	data := QuizData{
		Subject: sanitizeField(subject),
		Topic:   sanitizeField(topic),
		Count:   count,
		Header:  question.Header,
	}
	for _, k := range scope.Keys() {
		v := sanitizeField(scope[k])
		if v == "" {
			continue
		}
		data.Scope = append(data.Scope, ScopeEntry{Key: sanitizeField(k), Value: v})
	}

	var buf bytes.Buffer
	if err := quizTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// sanitizeField keeps caller-supplied text on one line, without double
// quotes, and bounded in length.
func sanitizeField(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	s = strings.ReplaceAll(s, `"`, "'")
	if utf8.RuneCountInString(s) > maxFieldRunes {
		s = string([]rune(s)[:maxFieldRunes])
	}
	return s
}
