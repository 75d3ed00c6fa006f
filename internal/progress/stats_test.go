package progress

import (
	"reflect"
	"testing"
	"time"

	"github.com/pavelanni/edulingo/internal/kv"
	"github.com/pavelanni/edulingo/internal/model"
)

func TestStats(t *testing.T) {
	tests := []struct {
		name    string
		results []model.SessionResult
		want    model.Stats
	}{
		{"no history", nil, model.Stats{}},
		{"zero totals", []model.SessionResult{result("S", "T", 0, 0)}, model.Stats{Completed: 1}},
		{"single", []model.SessionResult{result("S", "T", 2, 3)}, model.Stats{Completed: 1, AverageScore: 67}},
		{"weighted by questions", []model.SessionResult{result("S", "T", 2, 3), result("S", "T", 3, 5)}, model.Stats{Completed: 2, AverageScore: 63}},
		{"perfect", []model.SessionResult{result("S", "T", 5, 5)}, model.Stats{Completed: 1, AverageScore: 100}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, _ := newTestLedger(t, kv.NewMemory(), "alice")
			for _, r := range tt.results {
				l.RecordResult(r)
			}
			if got := l.Stats(); got != tt.want {
				t.Errorf("Stats = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestLevelFor(t *testing.T) {
	tests := []struct {
		xp   int
		want model.Level
	}{
		{0, model.Level{Level: 1, XPIntoLevel: 0, XPPerLevel: 1000}},
		{999, model.Level{Level: 1, XPIntoLevel: 999, XPPerLevel: 1000}},
		{1000, model.Level{Level: 2, XPIntoLevel: 0, XPPerLevel: 1000}},
		{2500, model.Level{Level: 3, XPIntoLevel: 500, XPPerLevel: 1000}},
	}
	for _, tt := range tests {
		if got := levelFor(tt.xp); got != tt.want {
			t.Errorf("levelFor(%d) = %+v, want %+v", tt.xp, got, tt.want)
		}
	}
}

func TestRecentHistory(t *testing.T) {
	l, _ := newTestLedger(t, kv.NewMemory(), "alice")
	for i := 1; i <= 7; i++ {
		l.RecordResult(result("S", "T", i, 10))
	}

	recent := l.RecentHistory(5)
	var scores []int
	for _, r := range recent {
		scores = append(scores, r.Score)
	}
	if want := []int{7, 6, 5, 4, 3}; !reflect.DeepEqual(scores, want) {
		t.Errorf("RecentHistory(5) scores = %v, want %v", scores, want)
	}
	if got := len(l.RecentHistory(0)); got != 7 {
		t.Errorf("RecentHistory(0) length = %d, want 7", got)
	}
	if got := len(l.RecentHistory(100)); got != 7 {
		t.Errorf("RecentHistory(100) length = %d, want 7", got)
	}
}

func TestWeakTopics(t *testing.T) {
	l, _ := newTestLedger(t, kv.NewMemory(), "alice")
	for _, r := range []model.SessionResult{
		result("Physics", "Optics", 1, 5),
		result("Physics", "Optics", 2, 5),
		result("Math", "Algebra", 5, 5),
		result("Chemistry", "Organic", 2, 4),
		result("GS", "Polity", 0, 0),
	} {
		l.RecordResult(r)
	}

	got := l.WeakTopics(60)
	want := []model.TopicAccuracy{
		{Subject: "Physics", Topic: "Optics", Score: 3, Total: 10, Accuracy: 30},
		{Subject: "Chemistry", Topic: "Organic", Score: 2, Total: 4, Accuracy: 50},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("WeakTopics(60) = %+v, want %+v", got, want)
	}
	if got := l.WeakTopics(0); len(got) != 0 {
		t.Errorf("WeakTopics(0) = %+v, want none", got)
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	date := time.Date(2026, 3, 14, 8, 45, 12, 0, time.UTC)
	st := model.ProgressState{
		XP:               120,
		Streak:           4,
		LastPracticeDate: &date,
		History: []model.SessionResult{
			{Subject: "Math", Topic: "Probability", Scope: model.ScopeLabels{"examType": "board"}, Score: 4, Total: 5, CompletedAt: date.Add(9 * time.Hour)},
		},
		LastPracticed: &model.Practice{Subject: "Math", Topic: "Probability", Scope: model.ScopeLabels{"examType": "board"}},
	}

	enc, err := Encode(st)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if enc[KeyXP] != "120" || enc[KeyStreak] != "4" || enc[KeyLastPracticeDate] != "2026-03-14T08:45:12Z" {
		t.Errorf("unexpected scalar encoding: %v", enc)
	}

	got, err := Decode(enc)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !reflect.DeepEqual(got, st) {
		t.Errorf("round trip mismatch:\n got %+v\nwant %+v", got, st)
	}
}

func TestDecodeEmpty(t *testing.T) {
	st, err := Decode(nil)
	if err != nil {
		t.Fatalf("Decode(nil): %v", err)
	}
	if !reflect.DeepEqual(st, model.ProgressState{}) {
		t.Errorf("Decode(nil) = %+v", st)
	}
}

func TestExport(t *testing.T) {
	l, _ := newTestLedger(t, kv.NewMemory(), "")
	l.RecordResult(result("Physics", "Optics", 1, 5))

	exp := l.Export()
	if exp.Identity != "anonymous" {
		t.Errorf("Identity = %q", exp.Identity)
	}
	if exp.XP != 10 || exp.Streak != 1 || exp.Stats.Completed != 1 || exp.Level.Level != 1 {
		t.Errorf("unexpected export: %+v", exp)
	}
	if len(exp.WeakTopics) != 1 || exp.WeakTopics[0].Topic != "Optics" {
		t.Errorf("WeakTopics = %+v", exp.WeakTopics)
	}
	if !exp.ExportedAt.Equal(day0) {
		t.Errorf("ExportedAt = %v", exp.ExportedAt)
	}
}
