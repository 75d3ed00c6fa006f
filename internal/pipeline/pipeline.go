// Package pipeline turns a quiz request into validated questions: build the
// prompt, call the generator, clean and parse the text, normalize each row.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/pavelanni/edulingo/internal/llm"
	"github.com/pavelanni/edulingo/internal/llm/prompts"
	"github.com/pavelanni/edulingo/internal/model"
	"github.com/pavelanni/edulingo/internal/question"
	"github.com/pavelanni/edulingo/internal/tabular"
)

// DefaultCount is used when a request asks for zero or fewer questions.
const DefaultCount = 5

// Options tune pipeline policy.
type Options struct {
	// Truncate drops questions beyond the requested count. The default is
	// to pass over-fulfillment through.
	Truncate bool
}

// Pipeline generates quiz questions through a Generator.
type Pipeline struct {
	gen  llm.Generator
	opts Options
	gate *Gate
}

// New creates a Pipeline.
func New(gen llm.Generator, opts Options) *Pipeline {
	return &Pipeline{gen: gen, opts: opts, gate: NewGate()}
}

// Generate requests count questions about subject/topic. A zero-length
// result with a nil error means the service answered but no row survived
// validation; the caller decides what to offer the learner.
func (p *Pipeline) Generate(ctx context.Context, scope model.ScopeLabels, subject, topic string, count int) ([]model.Question, error) {
	subject = strings.TrimSpace(subject)
	topic = strings.TrimSpace(topic)
	if subject == "" || topic == "" {
		return nil, invalid("subject and topic are required")
	}
	if count <= 0 {
		count = DefaultCount
	}

	prompt, err := prompts.BuildQuizPrompt(subject, topic, count, scope)
	if err != nil {
		return nil, fmt.Errorf("build prompt: %w", err)
	}

	log := slog.With("subject", subject, "topic", topic, "requested", count)
	log.Info("generating questions")

	completion, err := p.gen.Generate(ctx, prompt)
	if err != nil {
		log.Error("generation call failed", "error", err)
		return nil, unavailable(err)
	}
	if completion == nil {
		return nil, blocked("no completion returned")
	}
	if !completion.Normal {
		log.Warn("generation stopped unexpectedly", "finish_reason", completion.FinishReason)
		return nil, blocked("generation stopped: %s", completion.FinishReason)
	}

	cleaned := tabular.StripFences(completion.Text)
	if cleaned == "" {
		log.Warn("empty response after cleaning", "raw", completion.Text)
		return nil, blocked("empty response")
	}

	parsed := tabular.Parse(cleaned)
	for _, a := range parsed.Anomalies {
		log.Warn("malformed row", "line", a.Line, "reason", a.Reason)
	}
	if !hasColumn(parsed.Header, question.FieldQuestion) {
		log.Warn("response has no question column", "raw", completion.Text)
		return nil, blocked("response is not in the requested tabular format")
	}

	questions, rejects := question.NormalizeAll(parsed.Records)
	for _, r := range rejects {
		log.Warn("dropped row", "error", r)
	}
	for i := range questions {
		if questions[i].Topic == "" {
			questions[i].Topic = topic
		}
	}

	switch {
	case len(questions) == 0:
		log.Warn("no valid questions in response", "rows", len(parsed.Records))
	case len(questions) != count:
		log.Warn("question count differs from request", "got", len(questions))
		if p.opts.Truncate && len(questions) > count {
			questions = questions[:count]
		}
	default:
		log.Info("generated questions", "count", len(questions))
	}

	return questions, nil
}

// GenerateGuarded is Generate with at most one request in flight per key.
// A concurrent request for the same key fails with ErrGenerationInProgress.
func (p *Pipeline) GenerateGuarded(ctx context.Context, key string, scope model.ScopeLabels, subject, topic string, count int) ([]model.Question, error) {
	release, ok := p.gate.TryAcquire(key)
	if !ok {
		return nil, ErrGenerationInProgress
	}
	defer release()
	return p.Generate(ctx, scope, subject, topic, count)
}

// Pending reports whether key has a generation in flight.
func (p *Pipeline) Pending(key string) bool {
	return p.gate.Pending(key)
}

func hasColumn(header []string, name string) bool {
	for _, h := range header {
		if strings.EqualFold(h, name) {
			return true
		}
	}
	return false
}
