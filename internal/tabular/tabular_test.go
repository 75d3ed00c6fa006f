package tabular

import (
	"strings"
	"testing"
)

const header = "question,optionA,optionB,optionC,optionD,correct,topic"

func TestParseScenario(t *testing.T) {
	res := Parse(header + "\n" + `"2+2?","2","3","4","5","C","Math"`)
	if len(res.Records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(res.Records))
	}
	rec := res.Records[0]
	want := map[string]string{
		"question": "2+2?", "optionA": "2", "optionB": "3", "optionC": "4",
		"optionD": "5", "correct": "C", "topic": "Math",
	}
	for k, v := range want {
		if rec[k] != v {
			t.Errorf("rec[%q] = %q, want %q", k, rec[k], v)
		}
	}
	if len(res.Anomalies) != 0 {
		t.Errorf("expected no anomalies, got %v", res.Anomalies)
	}
}

func TestParseEmptyInput(t *testing.T) {
	for _, in := range []string{"", "   ", "\n\n", "```csv\n```"} {
		res := Parse(in)
		if len(res.Records) != 0 {
			t.Errorf("Parse(%q): expected no records, got %d", in, len(res.Records))
		}
	}
}

func TestParseHeaderOnly(t *testing.T) {
	res := Parse(header)
	if len(res.Records) != 0 {
		t.Fatalf("expected no records, got %d", len(res.Records))
	}
	if len(res.Header) != 7 {
		t.Errorf("expected 7 header tokens, got %d", len(res.Header))
	}
}

func TestParseStripsFences(t *testing.T) {
	tests := []struct {
		name string
		in   string
	}{
		{"csv fence", "```csv\n" + header + "\nQ,a,b,c,d,A,T\n```"},
		{"bare fence", "```\n" + header + "\nQ,a,b,c,d,A,T\n```"},
		{"indented fence", "  ```csv  \n" + header + "\nQ,a,b,c,d,A,T\n  ```"},
		{"no fence", header + "\nQ,a,b,c,d,A,T"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Parse(tt.in)
			if len(res.Records) != 1 {
				t.Fatalf("expected 1 record, got %d", len(res.Records))
			}
			if res.Records[0]["question"] != "Q" {
				t.Errorf("question = %q, want Q", res.Records[0]["question"])
			}
		})
	}
}

func TestParseTrimsHeadersAndValues(t *testing.T) {
	in := " question , optionA ,optionB, correct \n  What? ,  yes , no ,  A  "
	res := Parse(in)
	if len(res.Records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(res.Records))
	}
	rec := res.Records[0]
	if rec["question"] != "What?" || rec["optionA"] != "yes" || rec["optionB"] != "no" || rec["correct"] != "A" {
		t.Errorf("unexpected record: %v", rec)
	}
}

func TestParseQuotedCommasAndNewlines(t *testing.T) {
	in := header + "\n" +
		`"Which, of these?","one, two","say ""hi""","multi` + "\n" + `line","d","B","Topic"`
	res := Parse(in)
	if len(res.Records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(res.Records))
	}
	rec := res.Records[0]
	if rec["question"] != "Which, of these?" {
		t.Errorf("question = %q", rec["question"])
	}
	if rec["optionA"] != "one, two" {
		t.Errorf("optionA = %q", rec["optionA"])
	}
	if rec["optionB"] != `say "hi"` {
		t.Errorf("optionB = %q", rec["optionB"])
	}
	if rec["optionC"] != "multi\nline" {
		t.Errorf("optionC = %q", rec["optionC"])
	}
}

func TestParseSkipsEmptyLines(t *testing.T) {
	in := header + "\n\nQ1,a,b,c,d,A,T\n\n\nQ2,a,b,c,d,B,T\n,,,,,,\n"
	res := Parse(in)
	if len(res.Records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(res.Records))
	}
}

func TestParseMalformedRowsAreRepaired(t *testing.T) {
	in := header + "\n" +
		"Short,a,b\n" +
		"Long,a,b,c,d,A,T,extra,more\n" +
		"Good,a,b,c,d,D,T"
	res := Parse(in)
	if len(res.Records) != 3 {
		t.Fatalf("expected 3 records, got %d", len(res.Records))
	}
	short := res.Records[0]
	if short["optionC"] != "" || short["correct"] != "" {
		t.Errorf("short row should be padded with empty strings: %v", short)
	}
	if _, ok := short["topic"]; !ok {
		t.Error("short row should still carry every header key")
	}
	if res.Records[1]["topic"] != "T" {
		t.Errorf("long row topic = %q, want T", res.Records[1]["topic"])
	}
	if len(res.Anomalies) != 2 {
		t.Fatalf("expected 2 anomalies, got %v", res.Anomalies)
	}
	if !strings.Contains(res.Anomalies[0].Reason, "padded") {
		t.Errorf("anomaly 0 = %q", res.Anomalies[0].Reason)
	}
	if !strings.Contains(res.Anomalies[1].Reason, "extra") {
		t.Errorf("anomaly 1 = %q", res.Anomalies[1].Reason)
	}
}

func TestParseBareQuotesDoNotAbort(t *testing.T) {
	in := header + "\n" +
		`He said "go" now,a,b,c,d,A,T` + "\n" +
		"Next,a,b,c,d,B,T"
	res := Parse(in)
	if len(res.Records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(res.Records))
	}
	if res.Records[1]["question"] != "Next" {
		t.Errorf("second question = %q", res.Records[1]["question"])
	}
}

func TestParseSkipsPreamble(t *testing.T) {
	in := "Sure! Here are your questions:\n" + header + "\nQ,a,b,c,d,A,T"
	res := Parse(in)
	if len(res.Records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(res.Records))
	}
	if res.Records[0]["question"] != "Q" {
		t.Errorf("question = %q", res.Records[0]["question"])
	}
	if len(res.Anomalies) != 1 {
		t.Errorf("expected preamble anomaly, got %v", res.Anomalies)
	}
}

func TestStripFences(t *testing.T) {
	got := StripFences("\n```csv\na,b\n```\n")
	if got != "a,b" {
		t.Errorf("StripFences = %q, want %q", got, "a,b")
	}
}
