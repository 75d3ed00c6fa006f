package model

import (
	"context"
	"sort"
	"time"
)

// UserRole represents a user's access level.
type UserRole string

const (
	// UserRoleLearner is a regular learner account.
	UserRoleLearner UserRole = "learner"
	// UserRoleAdmin is an admin user role.
	UserRoleAdmin UserRole = "admin"
)

// User represents a login account. Its username is the identity that
// namespaces a learner's persisted progress.
type User struct {
	ID           int64
	Username     string
	DisplayName  string
	PasswordHash string
	Role         UserRole
	Active       bool
	CreatedAt    time.Time
}

// AuthSession represents an authentication session.
type AuthSession struct {
	ID        string
	UserID    int64
	CreatedAt time.Time
	ExpiresAt time.Time
}

type userCtxKey struct{}

// ContextWithUser stores a user in the request context.
func ContextWithUser(ctx context.Context, u *User) context.Context {
	return context.WithValue(ctx, userCtxKey{}, u)
}

// UserFromContext retrieves the authenticated user from context, or nil.
func UserFromContext(ctx context.Context) *User {
	u, _ := ctx.Value(userCtxKey{}).(*User)
	return u
}

// IdentityFromContext returns the username of the authenticated user, or ""
// when the request is anonymous.
func IdentityFromContext(ctx context.Context) string {
	if u := UserFromContext(ctx); u != nil {
		return u.Username
	}
	return ""
}

type basePathCtxKey struct{}

// ContextWithBasePath stores the base path prefix in context.
func ContextWithBasePath(ctx context.Context, basePath string) context.Context {
	return context.WithValue(ctx, basePathCtxKey{}, basePath)
}

// BasePathFromContext retrieves the base path from context (empty string if not set).
func BasePathFromContext(ctx context.Context) string {
	bp, _ := ctx.Value(basePathCtxKey{}).(string)
	return bp
}

type csrfCtxKey struct{}

// ContextWithCSRFToken stores the CSRF token in context.
func ContextWithCSRFToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, csrfCtxKey{}, token)
}

// CSRFTokenFromContext retrieves the CSRF token from context.
func CSRFTokenFromContext(ctx context.Context) string {
	t, _ := ctx.Value(csrfCtxKey{}).(string)
	return t
}

// Label identifies one answer option of a question.
type Label string

const (
	LabelA Label = "A"
	LabelB Label = "B"
	LabelC Label = "C"
	LabelD Label = "D"
)

// Labels is the fixed option alphabet, in presentation order.
var Labels = []Label{LabelA, LabelB, LabelC, LabelD}

// IsLabel reports whether s is one of the option labels.
func IsLabel(s string) bool {
	for _, l := range Labels {
		if string(l) == s {
			return true
		}
	}
	return false
}

// Question is a validated multiple-choice item. CorrectLabel is always a key
// of Options.
type Question struct {
	Text         string           `json:"question"`
	Options      map[Label]string `json:"options"`
	CorrectLabel Label            `json:"correct"`
	Topic        string           `json:"topic"`
}

// Option is a single labelled choice.
type Option struct {
	Label Label  `json:"label"`
	Text  string `json:"text"`
}

// OrderedOptions returns the populated options in label order.
func (q Question) OrderedOptions() []Option {
	opts := make([]Option, 0, len(q.Options))
	for _, l := range Labels {
		if text, ok := q.Options[l]; ok {
			opts = append(opts, Option{Label: l, Text: text})
		}
	}
	return opts
}

// RawRecord maps header names to trimmed field values for one parsed line.
type RawRecord map[string]string

// ScopeLabels are caller-defined classification tags (grade, exam track, ...)
// attached to a session for reporting only.
type ScopeLabels map[string]string

// Clone returns a copy of the labels, or nil when empty.
func (s ScopeLabels) Clone() ScopeLabels {
	if len(s) == 0 {
		return nil
	}
	out := make(ScopeLabels, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// Keys returns the label keys sorted.
func (s ScopeLabels) Keys() []string {
	keys := make([]string, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Phase is the state of a quiz session.
type Phase string

const (
	PhaseAwaitingAnswer Phase = "awaiting_answer"
	PhaseChecked        Phase = "checked"
	PhaseCompleted      Phase = "completed"
)

// SessionState is a snapshot of a quiz session.
type SessionState struct {
	Questions   []Question `json:"questions"`
	Index       int        `json:"index"`
	Selected    *Label     `json:"selected,omitempty"`
	Checked     bool       `json:"checked"`
	LastCorrect bool       `json:"lastCorrect"`
	Score       int        `json:"score"`
	Phase       Phase      `json:"phase"`
}

// SessionResult is the immutable outcome of one completed quiz session.
type SessionResult struct {
	Subject     string      `json:"subject"`
	Topic       string      `json:"topic"`
	Scope       ScopeLabels `json:"scope,omitempty"`
	Score       int         `json:"score"`
	Total       int         `json:"total"`
	CompletedAt time.Time   `json:"completedAt"`
}

// Practice describes what the learner practiced last.
type Practice struct {
	Subject string      `json:"subject"`
	Topic   string      `json:"topic"`
	Scope   ScopeLabels `json:"scope,omitempty"`
}

// ProgressState is the persisted per-identity aggregate.
type ProgressState struct {
	XP               int             `json:"xp"`
	Streak           int             `json:"streak"`
	LastPracticeDate *time.Time      `json:"lastPracticeDate,omitempty"`
	History          []SessionResult `json:"history"`
	LastPracticed    *Practice       `json:"lastPracticed,omitempty"`
}

// Stats are derived from history on demand.
type Stats struct {
	Completed    int `json:"completed"`
	AverageScore int `json:"averageScore"`
}

// Level describes XP progress toward the next level.
type Level struct {
	Level       int `json:"level"`
	XPIntoLevel int `json:"xpIntoLevel"`
	XPPerLevel  int `json:"xpPerLevel"`
}

// TopicAccuracy is a topic's aggregated accuracy over history.
type TopicAccuracy struct {
	Subject  string `json:"subject"`
	Topic    string `json:"topic"`
	Score    int    `json:"score"`
	Total    int    `json:"total"`
	Accuracy int    `json:"accuracy"`
}
