package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/a-h/templ"
	"github.com/go-chi/chi/v5"

	"github.com/pavelanni/edulingo/internal/catalog"
	"github.com/pavelanni/edulingo/internal/event"
	"github.com/pavelanni/edulingo/internal/handler/views"
	appI18n "github.com/pavelanni/edulingo/internal/i18n"
	"github.com/pavelanni/edulingo/internal/kv"
	"github.com/pavelanni/edulingo/internal/model"
	"github.com/pavelanni/edulingo/internal/pipeline"
	"github.com/pavelanni/edulingo/internal/progress"
	"github.com/pavelanni/edulingo/internal/quiz"
	"github.com/pavelanni/edulingo/internal/store"
)

// Config holds the HTTP-facing settings.
type Config struct {
	NumQuestions  int
	HistoryLimit  int
	WeakThreshold int
	RecentCount   int
	BasePath      string
	SecureCookies bool
}

// Handler holds shared dependencies for HTTP handlers.
type Handler struct {
	store    *store.Store
	pipeline *pipeline.Pipeline
	catalog  catalog.Catalog
	events   event.Publisher
	config   Config
	learners *learners
}

// New creates a new Handler. Learner progress is kept in progressStore,
// which may differ from the account database.
func New(s *store.Store, progressStore kv.Store, p *pipeline.Pipeline, cat catalog.Catalog, pub event.Publisher, cfg Config) (*Handler, error) {
	if s == nil || progressStore == nil || p == nil {
		return nil, errors.New("handler: store, progress store and pipeline are required")
	}
	if pub == nil {
		pub = event.Nop{}
	}
	if cfg.NumQuestions <= 0 {
		cfg.NumQuestions = pipeline.DefaultCount
	}
	if cfg.WeakThreshold <= 0 {
		cfg.WeakThreshold = progress.DefaultWeakThreshold
	}
	if cfg.RecentCount <= 0 {
		cfg.RecentCount = 5
	}
	h := &Handler{
		store:    s,
		pipeline: p,
		catalog:  cat,
		events:   pub,
		config:   cfg,
	}
	h.learners = newLearners(func(identity string) *progress.Ledger {
		return progress.Open(progressStore, identity, progress.WithHistoryLimit(cfg.HistoryLimit))
	})
	return h, nil
}

// Routes registers all HTTP routes.
func (h *Handler) Routes(r chi.Router) {
	r.Use(h.csrfMiddleware)

	r.Get("/login", h.handleLoginPage)
	r.Post("/login", h.handleLogin)

	r.Group(func(r chi.Router) {
		r.Use(h.requireAuth)

		r.Post("/logout", h.handleLogout)
		r.Get("/", h.handleDashboard)
		r.Get("/learn", h.handleLearn)

		r.Post("/quiz/start", h.handleStartQuiz)
		r.Get("/quiz", h.handleQuizPage)
		r.Post("/quiz/select", h.handleSelect)
		r.Post("/quiz/check", h.handleCheck)
		r.Post("/quiz/advance", h.handleAdvance)
		r.Post("/quiz/skip", h.handleSkip)
		r.Post("/quiz/exit", h.handleExit)

		r.Get("/api/progress", h.handleProgressAPI)
		r.Get("/api/catalog", h.handleCatalogAPI)

		r.Group(func(r chi.Router) {
			r.Use(requireRole(model.UserRoleAdmin))
			r.Get("/admin/users", h.handleAdminUsersPage)
			r.Post("/admin/users", h.handleCreateUser)
			r.Post("/admin/users/{userID}/toggle", h.handleToggleUserActive)
			r.Post("/admin/users/{userID}/reset", h.handleResetProgress)
		})
	})
}

// BasePathMiddleware stores the configured URL prefix in the request context.
func (h *Handler) BasePathMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := model.ContextWithBasePath(r.Context(), h.config.BasePath)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (h *Handler) path(p string) string {
	return h.config.BasePath + p
}

func (h *Handler) cookiePath() string {
	if h.config.BasePath != "" {
		return h.config.BasePath + "/"
	}
	return "/"
}

func (h *Handler) learnerFor(r *http.Request) *learner {
	return h.learners.get(model.IdentityFromContext(r.Context()))
}

func (h *Handler) handleDashboard(w http.ResponseWriter, r *http.Request) {
	l := h.learnerFor(r)
	st := l.ledger.State()

	d := views.Dashboard{
		XP:            st.XP,
		Level:         l.ledger.Level(),
		Streak:        l.ledger.Streak(),
		Stats:         l.ledger.Stats(),
		Recent:        l.ledger.RecentHistory(h.config.RecentCount),
		Weak:          l.ledger.WeakTopics(h.config.WeakThreshold),
		LastPracticed: st.LastPracticed,
	}
	render(w, r, http.StatusOK, views.DashboardPage(d))
}

func (h *Handler) handleLearn(w http.ResponseWriter, r *http.Request) {
	h.renderLearn(w, r, http.StatusOK, "")
}

func (h *Handler) renderLearn(w http.ResponseWriter, r *http.Request, status int, errMsg string) {
	render(w, r, status, views.LearnPage(views.Learn{
		Catalog:      h.catalog,
		NumQuestions: h.config.NumQuestions,
		Error:        errMsg,
	}))
}

// scopeFromForm collects scope_<key> form fields allowed by the catalog.
func (h *Handler) scopeFromForm(r *http.Request) model.ScopeLabels {
	raw := make(map[string]string)
	for _, k := range h.catalog.ScopeKeys {
		raw[k] = r.FormValue("scope_" + k)
	}
	return h.catalog.FilterScope(raw)
}

func (h *Handler) handleStartQuiz(w http.ResponseWriter, r *http.Request) {
	identity := model.IdentityFromContext(r.Context())
	l := h.learners.get(identity)

	subject := strings.TrimSpace(r.FormValue("subject"))
	topic := strings.TrimSpace(r.FormValue("topic"))
	scope := h.scopeFromForm(r)

	if subject == "" || topic == "" {
		h.renderLearn(w, r, http.StatusBadRequest, appI18n.T(r.Context(), "ErrInvalidRequest"))
		return
	}
	l.ledger.RecordLastPractice(model.Practice{Subject: subject, Topic: topic, Scope: scope})

	ticket, prev := l.newTicket()
	questions, err := h.pipeline.GenerateGuarded(r.Context(), identity, scope, subject, topic, h.config.NumQuestions)
	if err != nil {
		if errors.Is(err, pipeline.ErrGenerationInProgress) {
			l.restoreTicket(ticket, prev)
		} else {
			l.restoreTicket(ticket, "")
		}
		status, msgID := pipelineStatus(err)
		slog.Warn("quiz generation failed", "identity", identity, "subject", subject, "topic", topic, "error", err)
		h.renderLearn(w, r, status, appI18n.T(r.Context(), msgID))
		return
	}
	if len(questions) == 0 {
		l.restoreTicket(ticket, "")
		h.renderLearn(w, r, http.StatusOK, appI18n.T(r.Context(), "NoQuestions"))
		return
	}

	meta := quiz.Meta{Subject: subject, Topic: topic, Scope: scope}
	installed := l.install(ticket, func() *quiz.Session {
		return quiz.New(meta, questions, quiz.WithOnComplete(func(res model.SessionResult) {
			h.complete(identity, l, res)
		}))
	})
	if !installed {
		slog.Info("discarding questions for a superseded quiz request", "identity", identity, "ticket", ticket)
	}
	http.Redirect(w, r, h.path("/quiz"), http.StatusSeeOther)
}

// complete records a finished session and queues its event. It runs with
// the learner locked; publishPending sends the event once the lock is gone.
func (h *Handler) complete(identity string, l *learner, res model.SessionResult) {
	l.ledger.RecordResult(res)
	l.outbox = append(l.outbox, event.NewSessionCompleted(identity, res))
	slog.Info("quiz completed", "identity", identity, "subject", res.Subject, "topic", res.Topic, "score", res.Score, "total", res.Total)
}

// publishPending sends l's queued completion events. Callers must not hold l.mu.
func (h *Handler) publishPending(l *learner) {
	for _, e := range l.takeOutbox() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := h.events.PublishSessionCompleted(ctx, e); err != nil {
			slog.Error("failed to publish session event", "identity", e.Identity, "error", err)
		}
		cancel()
	}
}

func (h *Handler) handleQuizPage(w http.ResponseWriter, r *http.Request) {
	l := h.learnerFor(r)
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.session == nil {
		http.Redirect(w, r, h.path("/learn"), http.StatusSeeOther)
		return
	}
	h.renderQuiz(w, r, l, http.StatusOK, "")
}

// renderQuiz renders l's session. Callers hold l.mu.
func (h *Handler) renderQuiz(w http.ResponseWriter, r *http.Request, l *learner, status int, errMsg string) {
	s := l.session
	meta := s.Meta()
	st := s.State()
	answered, total := s.Progress()

	v := views.Quiz{
		Subject:     meta.Subject,
		Topic:       meta.Topic,
		Phase:       st.Phase,
		HasOptions:  s.HasOptions(),
		LastCorrect: st.LastCorrect,
		Number:      st.Index + 1,
		Total:       total,
		Score:       st.Score,
		Error:       errMsg,
	}
	if q, ok := s.Current(); ok {
		v.Question = q
	}
	if st.Selected != nil {
		v.Selected = *st.Selected
	}
	if res, ok := s.Result(); ok {
		v.Result = &res
		v.XPEarned = res.Score * progress.XPPerPoint
		v.Missed = s.Missed()
		v.Number = answered
	}
	render(w, r, status, views.QuizPage(v))
}

// withSession runs fn on the learner's session, or redirects to /learn when
// there is none.
func (h *Handler) withSession(w http.ResponseWriter, r *http.Request, fn func(l *learner) error) {
	l := h.learnerFor(r)
	defer h.publishPending(l)
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.session == nil {
		http.Redirect(w, r, h.path("/learn"), http.StatusSeeOther)
		return
	}
	if err := fn(l); err != nil {
		status, msgID := quizStatus(err)
		h.renderQuiz(w, r, l, status, appI18n.T(r.Context(), msgID))
		return
	}
	http.Redirect(w, r, h.path("/quiz"), http.StatusSeeOther)
}

func (h *Handler) handleSelect(w http.ResponseWriter, r *http.Request) {
	label := model.Label(strings.ToUpper(strings.TrimSpace(r.FormValue("label"))))
	h.withSession(w, r, func(l *learner) error {
		return l.session.SelectAnswer(label)
	})
}

func (h *Handler) handleCheck(w http.ResponseWriter, r *http.Request) {
	h.withSession(w, r, func(l *learner) error {
		_, err := l.session.Check()
		return err
	})
}

func (h *Handler) handleAdvance(w http.ResponseWriter, r *http.Request) {
	h.withSession(w, r, func(l *learner) error {
		_, err := l.session.Advance()
		return err
	})
}

func (h *Handler) handleSkip(w http.ResponseWriter, r *http.Request) {
	h.withSession(w, r, func(l *learner) error {
		_, err := l.session.Skip()
		return err
	})
}

func (h *Handler) handleExit(w http.ResponseWriter, r *http.Request) {
	h.learnerFor(r).abandon()
	http.Redirect(w, r, h.path("/"), http.StatusSeeOther)
}

func (h *Handler) handleProgressAPI(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.learnerFor(r).ledger.Export())
}

func (h *Handler) handleCatalogAPI(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.catalog)
}

// pipelineStatus maps a generation failure to an HTTP status and message ID.
func pipelineStatus(err error) (int, string) {
	switch {
	case errors.Is(err, pipeline.ErrGenerationInProgress):
		return http.StatusConflict, "ErrGenerationInProgress"
	case errors.Is(err, pipeline.ErrInvalidRequest):
		return http.StatusBadRequest, "ErrInvalidRequest"
	case errors.Is(err, pipeline.ErrEmptyOrBlocked):
		return http.StatusUnprocessableEntity, "ErrEmptyOrBlocked"
	case errors.Is(err, pipeline.ErrServiceUnavailable):
		return http.StatusBadGateway, "ErrServiceUnavailable"
	default:
		return http.StatusInternalServerError, "ErrInternal"
	}
}

// quizStatus maps a session transition error to an HTTP status and message ID.
func quizStatus(err error) (int, string) {
	switch {
	case errors.Is(err, quiz.ErrNoSelection):
		return http.StatusBadRequest, "ErrNoSelection"
	case errors.Is(err, quiz.ErrUnknownOption):
		return http.StatusBadRequest, "ErrUnknownOption"
	case errors.Is(err, quiz.ErrInvalidTransition):
		return http.StatusConflict, "ErrInvalidTransition"
	default:
		return http.StatusInternalServerError, "ErrInternal"
	}
}

func render(w http.ResponseWriter, r *http.Request, status int, c templ.Component) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := c.Render(r.Context(), w); err != nil {
		slog.Error("render error", "error", err)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		slog.Error("encode json", "error", err)
	}
}
