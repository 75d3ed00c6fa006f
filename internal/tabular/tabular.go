// Package tabular turns the delimited text returned by a text-generation
// service into raw header-keyed records. It never fails on malformed rows:
// it repairs or omits them and reports what it did.
package tabular

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/pavelanni/edulingo/internal/model"
)

// RowAnomaly describes a row that was repaired or omitted.
type RowAnomaly struct {
	Line   int
	Reason string
}

func (a RowAnomaly) String() string {
	return fmt.Sprintf("line %d: %s", a.Line, a.Reason)
}

// Result is the outcome of parsing one text blob.
type Result struct {
	Header    []string
	Records   []model.RawRecord
	Anomalies []RowAnomaly
}

// StripFences removes markdown code-fence lines (``` with or without an info
// string) and surrounding whitespace.
func StripFences(text string) string {
	lines := strings.Split(text, "\n")
	kept := lines[:0]
	for _, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			continue
		}
		kept = append(kept, line)
	}
	return strings.TrimSpace(strings.Join(kept, "\n"))
}

// Parse reads text as one header line followed by data lines.
func Parse(text string) Result {
	var res Result

	text = StripFences(strings.ReplaceAll(text, "\r\n", "\n"))
	if text == "" {
		return res
	}

	text, skipped := skipPreamble(text)
	if skipped > 0 {
		res.Anomalies = append(res.Anomalies, RowAnomaly{
			Line:   1,
			Reason: fmt.Sprintf("skipped %d line(s) before header", skipped),
		})
	}

	r := csv.NewReader(strings.NewReader(text))
	r.LazyQuotes = true
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if err != nil {
		if !errors.Is(err, io.EOF) {
			res.Anomalies = append(res.Anomalies, RowAnomaly{Line: 1 + skipped, Reason: "unreadable header: " + err.Error()})
		}
		return res
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}
	res.Header = header

	for {
		fields, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var pe *csv.ParseError
			if errors.As(err, &pe) {
				res.Anomalies = append(res.Anomalies, RowAnomaly{Line: pe.StartLine + skipped, Reason: "omitted: " + pe.Err.Error()})
				continue
			}
			res.Anomalies = append(res.Anomalies, RowAnomaly{Reason: "read aborted: " + err.Error()})
			break
		}
		line, _ := r.FieldPos(0)
		line += skipped

		if blank(fields) {
			continue
		}

		switch {
		case len(fields) < len(header):
			res.Anomalies = append(res.Anomalies, RowAnomaly{
				Line:   line,
				Reason: fmt.Sprintf("padded %d missing field(s)", len(header)-len(fields)),
			})
		case len(fields) > len(header):
			res.Anomalies = append(res.Anomalies, RowAnomaly{
				Line:   line,
				Reason: fmt.Sprintf("dropped %d extra field(s)", len(fields)-len(header)),
			})
		}

		res.Records = append(res.Records, toRecord(header, fields))
	}

	return res
}

func toRecord(header, fields []string) model.RawRecord {
	rec := make(model.RawRecord, len(header))
	for i, name := range header {
		if name == "" {
			continue
		}
		var v string
		if i < len(fields) {
			v = strings.TrimSpace(fields[i])
		}
		rec[name] = v
	}
	return rec
}

func blank(fields []string) bool {
	for _, f := range fields {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}

// skipPreamble drops chatty lines a model sometimes puts before the header.
// The header is the first line whose first token is "question"; when no such
// line exists the text is returned unchanged.
func skipPreamble(text string) (string, int) {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		first, _, _ := strings.Cut(strings.TrimSpace(line), ",")
		first = strings.Trim(strings.TrimSpace(first), `"`)
		if strings.EqualFold(first, "question") {
			if i == 0 {
				return text, 0
			}
			return strings.Join(lines[i:], "\n"), i
		}
	}
	return text, 0
}
