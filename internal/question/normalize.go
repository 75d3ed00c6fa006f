// Package question validates raw tabular records into canonical questions.
package question

import (
	"errors"
	"fmt"
	"strings"

	"github.com/pavelanni/edulingo/internal/model"
)

// Header is the wire header the generation prompt asks for.
const Header = "question,optionA,optionB,optionC,optionD,correct,topic"

// Field names of the wire format.
const (
	FieldQuestion = "question"
	FieldCorrect  = "correct"
	FieldTopic    = "topic"
)

// optionFields maps each label to its column.
var optionFields = map[model.Label]string{
	model.LabelA: "optionA",
	model.LabelB: "optionB",
	model.LabelC: "optionC",
	model.LabelD: "optionD",
}

// ErrMalformedRow is matched by every rejection returned from Normalize.
var ErrMalformedRow = errors.New("malformed row")

// MalformedRowError explains why a record was rejected.
type MalformedRowError struct {
	Row    int
	Reason string
}

func (e *MalformedRowError) Error() string {
	if e.Row > 0 {
		return fmt.Sprintf("row %d: %s", e.Row, e.Reason)
	}
	return e.Reason
}

// Is makes errors.Is(err, ErrMalformedRow) true for any MalformedRowError.
func (e *MalformedRowError) Is(target error) bool {
	return target == ErrMalformedRow
}

func reject(reason string) error {
	return &MalformedRowError{Reason: reason}
}

// Normalize validates rec and reshapes it into a Question.
func Normalize(rec model.RawRecord) (model.Question, error) {
	if len(rec) == 0 {
		return model.Question{}, reject("empty record")
	}

	text := strings.TrimSpace(field(rec, FieldQuestion))
	if text == "" {
		return model.Question{}, reject("missing question text")
	}

	options := make(map[model.Label]string, len(optionFields))
	for _, l := range model.Labels {
		if v := strings.TrimSpace(field(rec, optionFields[l])); v != "" {
			options[l] = v
		}
	}

	rawCorrect := field(rec, FieldCorrect)
	correct, ok := normalizeCorrect(rawCorrect, options)
	if !ok {
		return model.Question{}, reject(fmt.Sprintf("unrecognized correct answer %q", rawCorrect))
	}
	if _, ok := options[correct]; !ok {
		return model.Question{}, reject(fmt.Sprintf("correct answer %q has no option", correct))
	}

	return model.Question{
		Text:         text,
		Options:      options,
		CorrectLabel: correct,
		Topic:        strings.TrimSpace(field(rec, FieldTopic)),
	}, nil
}

// NormalizeAll normalizes every record, dropping rejects. Rejections are
// returned alongside, numbered from 1 in input order.
func NormalizeAll(recs []model.RawRecord) ([]model.Question, []error) {
	var (
		out  []model.Question
		errs []error
	)
	for i, rec := range recs {
		q, err := Normalize(rec)
		if err != nil {
			var me *MalformedRowError
			if errors.As(err, &me) {
				me.Row = i + 1
			}
			errs = append(errs, err)
			continue
		}
		out = append(out, q)
	}
	return out, errs
}

// field looks name up exactly, then case-insensitively.
func field(rec model.RawRecord, name string) string {
	if v, ok := rec[name]; ok {
		return v
	}
	for k, v := range rec {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}

// normalizeCorrect maps the many ways a model writes the answer onto a label:
// "C", " c ", "(C)", "C)", "C.", "Option C", "optionC", or the option text.
func normalizeCorrect(raw string, options map[model.Label]string) (model.Label, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", false
	}

	for l, field := range optionFields {
		if strings.EqualFold(s, field) {
			return l, true
		}
	}

	candidate := strings.ToUpper(s)
	candidate = strings.TrimPrefix(candidate, "OPTION")
	candidate = strings.TrimSpace(candidate)
	candidate = strings.Trim(candidate, `"'()[].:) `)
	if model.IsLabel(candidate) {
		return model.Label(candidate), true
	}

	for _, l := range model.Labels {
		if text, ok := options[l]; ok && strings.EqualFold(text, s) {
			return l, true
		}
	}
	return "", false
}
