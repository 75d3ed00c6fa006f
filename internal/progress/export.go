package progress

import (
	"github.com/pavelanni/edulingo/internal/model"
)

// DefaultWeakThreshold is the accuracy percentage below which a topic is
// reported as weak.
const DefaultWeakThreshold = 60

// Export builds the export-ready view of the ledger.
func (l *Ledger) Export() model.ProgressExport {
	l.mu.Lock()
	st := cloneState(l.state)
	now := l.now()
	l.mu.Unlock()

	history := st.History
	if history == nil {
		history = []model.SessionResult{}
	}
	weak := weakTopics(history, DefaultWeakThreshold)
	if weak == nil {
		weak = []model.TopicAccuracy{}
	}

	return model.ProgressExport{
		Identity:      canonicalIdentity(l.identity),
		ExportedAt:    now,
		XP:            st.XP,
		Level:         levelFor(st.XP),
		Streak:        l.Streak(),
		Stats:         computeStats(history),
		LastPracticed: st.LastPracticed,
		WeakTopics:    weak,
		History:       history,
	}
}
