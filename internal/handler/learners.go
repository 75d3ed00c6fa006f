package handler

import (
	"sync"

	"github.com/google/uuid"

	"github.com/pavelanni/edulingo/internal/event"
	"github.com/pavelanni/edulingo/internal/progress"
	"github.com/pavelanni/edulingo/internal/quiz"
)

// learner is the in-memory state of one identity. mu serializes every
// mutation of the learner's session and ledger.
type learner struct {
	mu      sync.Mutex
	ledger  *progress.Ledger
	session *quiz.Session
	// ticket identifies the generation request whose questions may replace
	// the session. Empty when none is pending.
	ticket string
	// outbox holds completion events recorded under mu and not yet published.
	outbox []event.SessionCompleted
}

// takeOutbox removes and returns the queued completion events.
func (l *learner) takeOutbox() []event.SessionCompleted {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := l.outbox
	l.outbox = nil
	return out
}

// newTicket reserves the right to install the next session and returns the
// previous ticket so a rejected request can restore it.
func (l *learner) newTicket() (ticket, prev string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	prev = l.ticket
	l.ticket = uuid.NewString()
	return l.ticket, prev
}

// restoreTicket undoes newTicket if nothing has replaced ticket since.
func (l *learner) restoreTicket(ticket, prev string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.ticket == ticket {
		l.ticket = prev
	}
}

// install replaces the session with the one built by start, but only while
// ticket is still current. Callers must not hold l.mu.
func (l *learner) install(ticket string, start func() *quiz.Session) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if ticket == "" || l.ticket != ticket {
		return false
	}
	l.ticket = ""
	l.session = start()
	return true
}

// abandon drops the current session and any pending generation.
func (l *learner) abandon() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.session = nil
	l.ticket = ""
}

// learners is the registry of per-identity state.
type learners struct {
	mu   sync.Mutex
	byID map[string]*learner
	open func(identity string) *progress.Ledger
}

func newLearners(open func(identity string) *progress.Ledger) *learners {
	return &learners{byID: make(map[string]*learner), open: open}
}

// get returns the learner for identity, loading its ledger on first use.
func (ls *learners) get(identity string) *learner {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	if l, ok := ls.byID[identity]; ok {
		return l
	}
	l := &learner{ledger: ls.open(identity)}
	ls.byID[identity] = l
	return l
}

// forget drops identity's cached state so the next get reloads it.
func (ls *learners) forget(identity string) {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	delete(ls.byID, identity)
}
