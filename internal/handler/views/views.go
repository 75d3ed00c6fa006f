// Package views renders the HTML pages as templ components.
package views

import (
	"context"
	"strconv"

	"github.com/a-h/templ"

	"github.com/pavelanni/edulingo/internal/catalog"
	appI18n "github.com/pavelanni/edulingo/internal/i18n"
	"github.com/pavelanni/edulingo/internal/model"
)

// Dashboard is what the learner sees on the home page.
type Dashboard struct {
	XP            int
	Level         model.Level
	Streak        int
	Stats         model.Stats
	Recent        []model.SessionResult
	Weak          []model.TopicAccuracy
	LastPracticed *model.Practice
}

// Learn is the subject picker.
type Learn struct {
	Catalog      catalog.Catalog
	NumQuestions int
	Error        string
}

// Quiz is the state of the learner's current quiz.
type Quiz struct {
	Subject     string
	Topic       string
	Phase       model.Phase
	Question    model.Question
	HasOptions  bool
	Selected    model.Label
	LastCorrect bool
	Number      int
	Total       int
	Score       int
	Result      *model.SessionResult
	XPEarned    int
	Missed      []model.Question
	Error       string
}

// link prefixes path with the base path stored in ctx.
func link(ctx context.Context, path string) templ.SafeURL {
	return templ.SafeURL(model.BasePathFromContext(ctx) + path)
}

func optionClasses(q Quiz, label model.Label) map[string]bool {
	checked := q.Phase == model.PhaseChecked
	correct := checked && label == q.Question.CorrectLabel
	return map[string]bool{
		"correct":  correct,
		"wrong":    checked && !correct && label == q.Selected,
		"selected": !checked && label == q.Selected,
	}
}

func advanceLabel(q Quiz) string {
	if q.Number == q.Total {
		return "FinishQuiz"
	}
	return "NextQuestion"
}

func answerText(q model.Question) string {
	return string(q.CorrectLabel) + ". " + q.Options[q.CorrectLabel]
}

func userAction(u model.User, action string) string {
	return "/admin/users/" + strconv.FormatInt(u.ID, 10) + "/" + action
}

func yesNo(ctx context.Context, v bool) string {
	if v {
		return appI18n.T(ctx, "Yes")
	}
	return appI18n.T(ctx, "No")
}
