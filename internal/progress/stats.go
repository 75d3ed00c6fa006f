package progress

import (
	"math"
	"sort"

	"github.com/pavelanni/edulingo/internal/model"
)

// XPPerLevel is the experience needed to go up one level.
const XPPerLevel = 1000

// Stats summarizes the history. AverageScore is the percentage of correct
// answers over all recorded questions, 0 with no data.
func (l *Ledger) Stats() model.Stats {
	l.mu.Lock()
	defer l.mu.Unlock()
	return computeStats(l.state.History)
}

func computeStats(history []model.SessionResult) model.Stats {
	var score, total int
	for _, r := range history {
		score += r.Score
		total += r.Total
	}
	st := model.Stats{Completed: len(history)}
	if total > 0 {
		st.AverageScore = percent(score, total)
	}
	return st
}

func percent(part, whole int) int {
	return int(math.Round(float64(part) / float64(whole) * 100))
}

// Streak is the streak to display: the stored streak while the last
// practice was today or yesterday, 0 once a day has been missed.
func (l *Ledger) Streak() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state.LastPracticeDate == nil {
		return 0
	}
	switch daysBetween(*l.state.LastPracticeDate, l.now(), l.loc) {
	case 0, 1:
		return l.state.Streak
	default:
		return 0
	}
}

// Level derives the level from XP. Everyone starts at level 1.
func (l *Ledger) Level() model.Level {
	l.mu.Lock()
	defer l.mu.Unlock()
	return levelFor(l.state.XP)
}

func levelFor(xp int) model.Level {
	return model.Level{
		Level:       xp/XPPerLevel + 1,
		XPIntoLevel: xp % XPPerLevel,
		XPPerLevel:  XPPerLevel,
	}
}

// RecentHistory returns up to n results, newest first. n <= 0 returns all.
func (l *Ledger) RecentHistory(n int) []model.SessionResult {
	l.mu.Lock()
	defer l.mu.Unlock()
	h := l.state.History
	if n <= 0 || n > len(h) {
		n = len(h)
	}
	out := make([]model.SessionResult, 0, n)
	for i := len(h) - 1; i >= len(h)-n; i-- {
		r := h[i]
		r.Scope = r.Scope.Clone()
		out = append(out, r)
	}
	return out
}

// WeakTopics returns the topics whose accuracy over the history is below
// threshold percent, worst first.
func (l *Ledger) WeakTopics(threshold int) []model.TopicAccuracy {
	l.mu.Lock()
	defer l.mu.Unlock()
	return weakTopics(l.state.History, threshold)
}

func weakTopics(history []model.SessionResult, threshold int) []model.TopicAccuracy {
	type topicKey struct{ subject, topic string }
	agg := make(map[topicKey]*model.TopicAccuracy)
	for _, r := range history {
		if r.Total <= 0 {
			continue
		}
		k := topicKey{r.Subject, r.Topic}
		a, ok := agg[k]
		if !ok {
			a = &model.TopicAccuracy{Subject: r.Subject, Topic: r.Topic}
			agg[k] = a
		}
		a.Score += r.Score
		a.Total += r.Total
	}

	var out []model.TopicAccuracy
	for _, a := range agg {
		a.Accuracy = percent(a.Score, a.Total)
		if a.Accuracy < threshold {
			out = append(out, *a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Accuracy != out[j].Accuracy {
			return out[i].Accuracy < out[j].Accuracy
		}
		if out[i].Total != out[j].Total {
			return out[i].Total > out[j].Total
		}
		if out[i].Subject != out[j].Subject {
			return out[i].Subject < out[j].Subject
		}
		return out[i].Topic < out[j].Topic
	})
	return out
}
