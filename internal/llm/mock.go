package llm

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/pavelanni/edulingo/internal/question"
)

var (
	mockTopicRe = regexp.MustCompile(`topic "([^"]*)"`)
	mockCountRe = regexp.MustCompile(`Generate exactly (\d+) `)
)

// MockClient returns canned CSV for local development. It echoes the topic
// and count found in the prompt and wraps the output in a code fence, the
// way real models often do.
type MockClient struct{}

// NewMock creates a MockClient.
func NewMock() *MockClient {
	return &MockClient{}
}

// Generate builds count questions about the prompt's topic.
func (m *MockClient) Generate(ctx context.Context, prompt string) (*Completion, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	topic := "General"
	if match := mockTopicRe.FindStringSubmatch(prompt); match != nil && match[1] != "" {
		topic = match[1]
	}
	count := 5
	if match := mockCountRe.FindStringSubmatch(prompt); match != nil {
		if n, err := strconv.Atoi(match[1]); err == nil && n > 0 {
			count = n
		}
	}

	labels := []string{"A", "B", "C", "D"}
	var sb strings.Builder
	sb.WriteString("```csv\n")
	sb.WriteString(question.Header + "\n")
	for i := 0; i < count; i++ {
		correct := labels[i%len(labels)]
		fmt.Fprintf(&sb, "\"[Mock] Question %d about %s, part %d?\",\"First choice\",\"Second choice\",\"Third choice\",\"Fourth choice\",\"%s\",\"%s\"\n",
			i+1, topic, i+1, correct, topic)
	}
	sb.WriteString("```")

	return &Completion{
		Text:         sb.String(),
		FinishReason: "stop",
		Normal:       true,
	}, nil
}
