package model

import "time"

// ProgressExport is the top-level JSON structure for a learner's progress export.
type ProgressExport struct {
	Identity      string          `json:"identity"`
	ExportedAt    time.Time       `json:"exported_at"`
	XP            int             `json:"xp"`
	Level         Level           `json:"level"`
	Streak        int             `json:"streak"`
	Stats         Stats           `json:"stats"`
	LastPracticed *Practice       `json:"last_practiced,omitempty"`
	WeakTopics    []TopicAccuracy `json:"weak_topics"`
	History       []SessionResult `json:"history"`
}
