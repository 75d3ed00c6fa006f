// Package progress keeps a learner's experience points, daily streak and
// bounded quiz history, persisted under a per-identity key namespace.
package progress

import (
	"log/slog"
	"sync"
	"time"

	"github.com/pavelanni/edulingo/internal/kv"
	"github.com/pavelanni/edulingo/internal/model"
)

const (
	// DefaultHistoryLimit is the number of results kept in history.
	DefaultHistoryLimit = 50
	// XPPerPoint is the experience earned per correct answer.
	XPPerPoint = 10
)

// Option configures a Ledger.
type Option func(*Ledger)

// WithClock sets the time source.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// WithLocation sets the time zone whose calendar days the streak counts.
func WithLocation(loc *time.Location) Option {
	return func(l *Ledger) {
		if loc != nil {
			l.loc = loc
		}
	}
}

// WithHistoryLimit caps the stored history. Values below 1 are ignored.
func WithHistoryLimit(n int) Option {
	return func(l *Ledger) {
		if n > 0 {
			l.limit = n
		}
	}
}

// Ledger is one identity's progress. Mutations update memory first and then
// write through to the store; write failures are logged, never returned.
type Ledger struct {
	mu       sync.Mutex
	store    kv.Store
	identity string
	ns       string
	now      func() time.Time
	loc      *time.Location
	limit    int
	state    model.ProgressState
}

// Open loads the ledger for identity from store. Missing or unreadable
// fields start from their defaults.
func Open(store kv.Store, identity string, opts ...Option) *Ledger {
	l := &Ledger{
		store:    store,
		identity: identity,
		ns:       Namespace(identity),
		now:      time.Now,
		loc:      time.Local,
		limit:    DefaultHistoryLimit,
	}
	for _, opt := range opts {
		opt(l)
	}
	l.load()
	return l
}

func (l *Ledger) key(name string) string {
	return l.ns + ":" + name
}

func (l *Ledger) load() {
	values := make(map[string]string, len(Keys))
	for _, name := range Keys {
		v, ok, err := l.store.Get(l.key(name))
		if err != nil {
			slog.Error("persistence failure", "op", "read", "key", l.key(name), "error", err)
			continue
		}
		if ok {
			values[name] = v
		}
	}
	st, err := Decode(values)
	if err != nil {
		slog.Warn("discarding corrupt progress fields", "namespace", l.ns, "error", err)
	}
	if len(st.History) > l.limit {
		st.History = st.History[len(st.History)-l.limit:]
	}
	l.state = st
}

// Identity returns the identity the ledger was opened for.
func (l *Ledger) Identity() string { return l.identity }

// RecordResult folds a completed session into the ledger.
func (l *Ledger) RecordResult(r model.SessionResult) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if r.CompletedAt.IsZero() {
		r.CompletedAt = now
	}
	if r.Score < 0 {
		r.Score = 0
	}
	r.Scope = r.Scope.Clone()

	l.state.XP += r.Score * XPPerPoint

	streakChanged := l.advanceStreak(now)

	l.state.History = append(l.state.History, r)
	if over := len(l.state.History) - l.limit; over > 0 {
		l.state.History = append([]model.SessionResult(nil), l.state.History[over:]...)
	}
	l.state.LastPracticed = &model.Practice{Subject: r.Subject, Topic: r.Topic, Scope: r.Scope.Clone()}

	enc, err := Encode(l.state)
	if err != nil {
		slog.Error("persistence failure", "op", "encode", "namespace", l.ns, "error", err)
		return
	}
	l.write(KeyXP, enc[KeyXP])
	if streakChanged {
		l.write(KeyStreak, enc[KeyStreak])
		l.write(KeyLastPracticeDate, enc[KeyLastPracticeDate])
	}
	l.write(KeyHistory, enc[KeyHistory])
	l.write(KeyLastPracticed, enc[KeyLastPracticed])
}

// advanceStreak applies the calendar-day streak rule for a practice at now
// and reports whether the stored streak or date changed. The stored date is
// the practice time itself; only the comparison uses calendar days.
func (l *Ledger) advanceStreak(now time.Time) bool {
	stamp := now.Truncate(time.Second)
	if l.state.LastPracticeDate != nil {
		switch daysBetween(*l.state.LastPracticeDate, now, l.loc) {
		case 0:
			return false
		case 1:
			l.state.Streak++
			l.state.LastPracticeDate = &stamp
			return true
		}
	}
	l.state.Streak = 1
	l.state.LastPracticeDate = &stamp
	return true
}

// RecordLastPractice notes what the learner chose to practice without
// touching XP, streak or history.
func (l *Ledger) RecordLastPractice(p model.Practice) {
	l.mu.Lock()
	defer l.mu.Unlock()
	p.Scope = p.Scope.Clone()
	l.state.LastPracticed = &p
	enc, err := Encode(l.state)
	if err != nil {
		slog.Error("persistence failure", "op", "encode", "namespace", l.ns, "error", err)
		return
	}
	l.write(KeyLastPracticed, enc[KeyLastPracticed])
}

// Reset forgets everything stored for the identity.
func (l *Ledger) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.state = model.ProgressState{}
	for _, name := range Keys {
		if err := l.store.Remove(l.key(name)); err != nil {
			slog.Error("persistence failure", "op", "remove", "key", l.key(name), "error", err)
		}
	}
}

func (l *Ledger) write(name, value string) {
	if err := l.store.Set(l.key(name), value); err != nil {
		slog.Error("persistence failure", "op", "write", "key", l.key(name), "error", err)
	}
}

// State returns a deep copy of the stored aggregate.
func (l *Ledger) State() model.ProgressState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return cloneState(l.state)
}

func cloneState(st model.ProgressState) model.ProgressState {
	out := st
	if st.LastPracticeDate != nil {
		d := *st.LastPracticeDate
		out.LastPracticeDate = &d
	}
	if st.LastPracticed != nil {
		p := *st.LastPracticed
		p.Scope = p.Scope.Clone()
		out.LastPracticed = &p
	}
	if st.History != nil {
		out.History = make([]model.SessionResult, len(st.History))
		for i, r := range st.History {
			r.Scope = r.Scope.Clone()
			out.History[i] = r
		}
	}
	return out
}

// daysBetween counts calendar days from a to b in loc. It is negative when
// b is earlier than a.
func daysBetween(a, b time.Time, loc *time.Location) int {
	a, b = a.In(loc), b.In(loc)
	da := time.Date(a.Year(), a.Month(), a.Day(), 0, 0, 0, 0, time.UTC)
	db := time.Date(b.Year(), b.Month(), b.Day(), 0, 0, 0, 0, time.UTC)
	return int(db.Sub(da).Hours() / 24)
}
