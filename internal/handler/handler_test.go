package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/pavelanni/edulingo/internal/catalog"
	"github.com/pavelanni/edulingo/internal/event"
	appI18n "github.com/pavelanni/edulingo/internal/i18n"
	"github.com/pavelanni/edulingo/internal/kv"
	"github.com/pavelanni/edulingo/internal/llm"
	"github.com/pavelanni/edulingo/internal/model"
	"github.com/pavelanni/edulingo/internal/pipeline"
	"github.com/pavelanni/edulingo/internal/progress"
	"github.com/pavelanni/edulingo/internal/quiz"
	"github.com/pavelanni/edulingo/internal/store"
)

type testApp struct {
	t        *testing.T
	srv      *httptest.Server
	client   *http.Client
	store    *store.Store
	progress *kv.Memory
	handler  *Handler
}

func newTestApp(t *testing.T, gen llm.Generator) *testApp {
	t.Helper()
	if err := appI18n.Init("en"); err != nil {
		t.Fatalf("i18n.Init: %v", err)
	}

	s, err := store.New(":memory:")
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	createTestUser(t, s, "admin", "adminpw", model.UserRoleAdmin)
	createTestUser(t, s, "alice", "alicepw", model.UserRoleLearner)

	mem := kv.NewMemory()
	h, err := New(s, mem, pipeline.New(gen, pipeline.Options{}), catalog.Default(), nil, Config{NumQuestions: 3})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	r := chi.NewRouter()
	r.Use(appI18n.Middleware("en"))
	r.Use(h.BasePathMiddleware)
	h.Routes(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("cookiejar: %v", err)
	}
	client := &http.Client{
		Jar: jar,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	return &testApp{t: t, srv: srv, client: client, store: s, progress: mem, handler: h}
}

func createTestUser(t *testing.T, s *store.Store, username, password string, role model.UserRole) {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}
	_, err = s.CreateUser(model.User{
		Username:     username,
		DisplayName:  strings.ToUpper(username[:1]) + username[1:],
		PasswordHash: string(hash),
		Role:         role,
		Active:       true,
	})
	if err != nil {
		t.Fatalf("CreateUser %s: %v", username, err)
	}
}

func (a *testApp) csrfToken() string {
	u, _ := url.Parse(a.srv.URL)
	for _, c := range a.client.Jar.Cookies(u) {
		if c.Name == csrfCookieName {
			return c.Value
		}
	}
	return ""
}

func (a *testApp) get(path string) (*http.Response, string) {
	a.t.Helper()
	resp, err := a.client.Get(a.srv.URL + path)
	if err != nil {
		a.t.Fatalf("GET %s: %v", path, err)
	}
	return resp, readBody(a.t, resp)
}

// post submits form with the current CSRF token.
func (a *testApp) post(path string, form url.Values) (*http.Response, string) {
	a.t.Helper()
	if form == nil {
		form = url.Values{}
	}
	if form.Get("csrf_token") == "" {
		form.Set("csrf_token", a.csrfToken())
	}
	resp, err := a.client.PostForm(a.srv.URL+path, form)
	if err != nil {
		a.t.Fatalf("POST %s: %v", path, err)
	}
	return resp, readBody(a.t, resp)
}

func (a *testApp) login(username, password string) {
	a.t.Helper()
	a.get("/login")
	resp, body := a.post("/login", url.Values{"username": {username}, "password": {password}})
	if resp.StatusCode != http.StatusSeeOther {
		a.t.Fatalf("login %s: status %d, body %q", username, resp.StatusCode, body)
	}
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return string(b)
}

func expectRedirect(t *testing.T, resp *http.Response, location string) {
	t.Helper()
	if resp.StatusCode != http.StatusSeeOther {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusSeeOther)
	}
	if got := resp.Header.Get("Location"); got != location {
		t.Fatalf("Location = %q, want %q", got, location)
	}
}

func TestAuthRequired(t *testing.T) {
	app := newTestApp(t, llm.NewMock())

	resp, _ := app.get("/")
	expectRedirect(t, resp, "/login")

	resp, _ = app.get("/api/progress")
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("api status = %d, want 401", resp.StatusCode)
	}
}

func TestLogin(t *testing.T) {
	app := newTestApp(t, llm.NewMock())
	app.get("/login")

	resp, body := app.post("/login", url.Values{"username": {"alice"}, "password": {"wrong"}})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("bad password status = %d", resp.StatusCode)
	}
	if !strings.Contains(body, "Invalid username or password.") {
		t.Fatalf("expected login error in body")
	}

	resp, _ = app.post("/login", url.Values{"username": {"alice"}, "password": {"alicepw"}})
	expectRedirect(t, resp, "/")

	resp, body = app.get("/")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("dashboard status = %d", resp.StatusCode)
	}
	if !strings.Contains(body, "Alice") {
		t.Fatalf("dashboard does not show the user")
	}

	resp, _ = app.post("/logout", nil)
	expectRedirect(t, resp, "/login")
	resp, _ = app.get("/")
	expectRedirect(t, resp, "/login")
}

func TestCSRF(t *testing.T) {
	app := newTestApp(t, llm.NewMock())
	app.get("/login")

	tests := []struct {
		name  string
		token string
	}{
		{"missing", ""},
		{"mismatch", "not-the-cookie"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			form := url.Values{"username": {"alice"}, "password": {"alicepw"}}
			if tt.token != "" {
				form.Set("csrf_token", tt.token)
			}
			resp, err := app.client.PostForm(app.srv.URL+"/login", form)
			if err != nil {
				t.Fatalf("POST: %v", err)
			}
			resp.Body.Close()
			if resp.StatusCode != http.StatusForbidden {
				t.Fatalf("status = %d, want 403", resp.StatusCode)
			}
		})
	}
}

func TestQuizFlow(t *testing.T) {
	app := newTestApp(t, llm.NewMock())
	app.login("alice", "alicepw")

	resp, _ := app.post("/quiz/start", url.Values{
		"subject":     {"Physics"},
		"topic":       {"Kinematics"},
		"scope_grade": {"10"},
		"scope_bogus": {"x"},
	})
	expectRedirect(t, resp, "/quiz")

	_, body := app.get("/quiz")
	if !strings.Contains(body, "Question 1 of 3") {
		t.Fatalf("quiz page missing progress: %s", body)
	}
	if !strings.Contains(body, "Kinematics") {
		t.Fatalf("quiz page missing topic")
	}

	// Mock answers cycle A, B, C. Answer the second one wrong.
	for _, label := range []string{"A", "A", "C"} {
		resp, _ = app.post("/quiz/select", url.Values{"label": {label}})
		expectRedirect(t, resp, "/quiz")
		resp, _ = app.post("/quiz/check", nil)
		expectRedirect(t, resp, "/quiz")
		resp, _ = app.post("/quiz/advance", nil)
		expectRedirect(t, resp, "/quiz")
	}

	_, body = app.get("/quiz")
	if !strings.Contains(body, "You scored 2 out of 3.") {
		t.Fatalf("result page missing score: %s", body)
	}
	if !strings.Contains(body, "+20 XP") {
		t.Fatalf("result page missing XP")
	}

	resp, body = app.get("/api/progress")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("progress status = %d", resp.StatusCode)
	}
	var exp model.ProgressExport
	if err := json.Unmarshal([]byte(body), &exp); err != nil {
		t.Fatalf("decode progress: %v", err)
	}
	if exp.Identity != "alice" {
		t.Errorf("identity = %q", exp.Identity)
	}
	if exp.XP != 20 {
		t.Errorf("xp = %d, want 20", exp.XP)
	}
	if exp.Streak != 1 {
		t.Errorf("streak = %d, want 1", exp.Streak)
	}
	if len(exp.History) != 1 {
		t.Fatalf("history = %d entries, want 1", len(exp.History))
	}
	h := exp.History[0]
	if h.Score != 2 || h.Total != 3 || h.Topic != "Kinematics" {
		t.Errorf("history[0] = %+v", h)
	}
	if h.Scope["grade"] != "10" || len(h.Scope) != 1 {
		t.Errorf("scope = %v, want only grade=10", h.Scope)
	}
	if exp.LastPracticed == nil || exp.LastPracticed.Topic != "Kinematics" {
		t.Errorf("lastPracticed = %+v", exp.LastPracticed)
	}

	// Progress lives in the progress store under the learner's namespace.
	if len(app.progress.Keys(progress.Namespace("alice"))) == 0 {
		t.Errorf("no progress keys written for alice")
	}

	// Completed quiz stays visible; further transitions are rejected.
	resp, _ = app.post("/quiz/advance", nil)
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("advance after completion = %d, want 409", resp.StatusCode)
	}
}

// recordingPublisher notes each event and whether its learner was unlocked
// at publish time.
type recordingPublisher struct {
	learner *learner

	mu       sync.Mutex
	events   []event.SessionCompleted
	unlocked []bool
}

func (p *recordingPublisher) PublishSessionCompleted(_ context.Context, e event.SessionCompleted) error {
	free := p.learner.mu.TryLock()
	if free {
		p.learner.mu.Unlock()
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	p.unlocked = append(p.unlocked, free)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func TestSessionEventPublishedAfterUnlock(t *testing.T) {
	app := newTestApp(t, llm.NewMock())
	pub := &recordingPublisher{learner: app.handler.learners.get("alice")}
	app.handler.events = pub
	app.login("alice", "alicepw")

	resp, _ := app.post("/quiz/start", url.Values{"subject": {"Math"}, "topic": {"Algebra"}})
	expectRedirect(t, resp, "/quiz")
	for _, label := range []string{"A", "B", "C"} {
		app.post("/quiz/select", url.Values{"label": {label}})
		app.post("/quiz/check", nil)
		resp, _ = app.post("/quiz/advance", nil)
		expectRedirect(t, resp, "/quiz")
	}

	pub.mu.Lock()
	defer pub.mu.Unlock()
	if len(pub.events) != 1 {
		t.Fatalf("published %d events, want 1", len(pub.events))
	}
	e := pub.events[0]
	if e.Type != event.TypeSessionCompleted || e.Identity != "alice" || e.Result.Score != 3 {
		t.Errorf("event = %+v", e)
	}
	if !pub.unlocked[0] {
		t.Errorf("event published while the learner was locked")
	}
	if n := len(pub.learner.takeOutbox()); n != 0 {
		t.Errorf("outbox still holds %d events", n)
	}
}

func TestSkipQuestionWithoutOptions(t *testing.T) {
	app := newTestApp(t, llm.NewMock())
	app.login("alice", "alicepw")

	var recorded []model.SessionResult
	questions := []model.Question{
		{Text: "Broken question", Options: map[model.Label]string{}},
		{Text: "2+2?", Options: map[model.Label]string{"A": "3", "B": "4"}, CorrectLabel: "B"},
	}
	l := app.handler.learners.get("alice")
	ticket, _ := l.newTicket()
	l.install(ticket, func() *quiz.Session {
		return quiz.New(quiz.Meta{Subject: "Math", Topic: "Arithmetic"}, questions,
			quiz.WithOnComplete(func(r model.SessionResult) { recorded = append(recorded, r) }))
	})

	_, body := app.get("/quiz")
	for _, want := range []string{"This question has no answer options.", "Skip question"} {
		if !strings.Contains(body, want) {
			t.Fatalf("quiz page missing %q: %s", want, body)
		}
	}

	resp, _ := app.post("/quiz/skip", nil)
	expectRedirect(t, resp, "/quiz")
	_, body = app.get("/quiz")
	if !strings.Contains(body, "Question 2 of 2") {
		t.Fatalf("skip did not move on: %s", body)
	}

	resp, body = app.post("/quiz/skip", nil)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("skip answerable question = %d, want 409", resp.StatusCode)
	}
	if !strings.Contains(body, "That action is not available right now.") {
		t.Errorf("body missing transition error")
	}

	app.post("/quiz/select", url.Values{"label": {"B"}})
	app.post("/quiz/check", nil)
	resp, _ = app.post("/quiz/advance", nil)
	expectRedirect(t, resp, "/quiz")
	_, body = app.get("/quiz")
	if !strings.Contains(body, "You scored 1 out of 2.") {
		t.Fatalf("result page missing score: %s", body)
	}
	if !strings.Contains(body, "Broken question") {
		t.Errorf("skipped question not listed for review")
	}
	if len(recorded) != 1 {
		t.Errorf("completion recorded %d times, want 1", len(recorded))
	}
}

func TestQuizTransitionErrors(t *testing.T) {
	app := newTestApp(t, llm.NewMock())
	app.login("alice", "alicepw")

	resp, _ := app.post("/quiz/check", nil)
	expectRedirect(t, resp, "/learn")

	resp, _ = app.post("/quiz/start", url.Values{"subject": {"Math"}, "topic": {"Algebra"}})
	expectRedirect(t, resp, "/quiz")

	tests := []struct {
		name   string
		path   string
		form   url.Values
		status int
		msg    string
	}{
		{"check without selection", "/quiz/check", nil, http.StatusBadRequest, "Select an answer first."},
		{"unknown option", "/quiz/select", url.Values{"label": {"Z"}}, http.StatusBadRequest, "That option is not part of this question."},
		{"advance before check", "/quiz/advance", nil, http.StatusConflict, "That action is not available right now."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := app.post(tt.path, tt.form)
			if resp.StatusCode != tt.status {
				t.Fatalf("status = %d, want %d", resp.StatusCode, tt.status)
			}
			if !strings.Contains(body, tt.msg) {
				t.Fatalf("body missing %q", tt.msg)
			}
		})
	}

	resp, _ = app.post("/quiz/exit", nil)
	expectRedirect(t, resp, "/")
	resp, _ = app.get("/quiz")
	expectRedirect(t, resp, "/learn")
}

func TestStartQuizFailures(t *testing.T) {
	tests := []struct {
		name   string
		gen    llm.Generator
		form   url.Values
		status int
		msg    string
	}{
		{
			name:   "missing topic",
			gen:    llm.NewMock(),
			form:   url.Values{"subject": {"Physics"}},
			status: http.StatusBadRequest,
			msg:    "Please choose a subject and a topic.",
		},
		{
			name: "transport failure",
			gen: llm.GeneratorFunc(func(context.Context, string) (*llm.Completion, error) {
				return nil, errors.New("connection refused")
			}),
			form:   url.Values{"subject": {"Physics"}, "topic": {"Optics"}},
			status: http.StatusBadGateway,
			msg:    "The question service is unavailable.",
		},
		{
			name: "blocked",
			gen: llm.GeneratorFunc(func(context.Context, string) (*llm.Completion, error) {
				return &llm.Completion{FinishReason: "SAFETY"}, nil
			}),
			form:   url.Values{"subject": {"Physics"}, "topic": {"Optics"}},
			status: http.StatusUnprocessableEntity,
			msg:    "The question service returned no usable content.",
		},
		{
			name: "no valid rows",
			gen: llm.GeneratorFunc(func(context.Context, string) (*llm.Completion, error) {
				return &llm.Completion{
					Text:         "question,optionA,optionB,optionC,optionD,correct,topic\n\"Q?\",\"\",\"\",\"\",\"\",\"A\",\"Optics\"\n",
					FinishReason: "stop",
					Normal:       true,
				}, nil
			}),
			form:   url.Values{"subject": {"Physics"}, "topic": {"Optics"}},
			status: http.StatusOK,
			msg:    "No questions could be generated for this topic.",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := newTestApp(t, tt.gen)
			app.login("alice", "alicepw")

			resp, body := app.post("/quiz/start", tt.form)
			if resp.StatusCode != tt.status {
				t.Fatalf("status = %d, want %d", resp.StatusCode, tt.status)
			}
			if !strings.Contains(body, tt.msg) {
				t.Fatalf("body missing %q", tt.msg)
			}
			resp, _ = app.get("/quiz")
			expectRedirect(t, resp, "/learn")
		})
	}
}

func TestAdminUsers(t *testing.T) {
	app := newTestApp(t, llm.NewMock())
	app.login("alice", "alicepw")
	resp, _ := app.get("/admin/users")
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("learner admin access = %d, want 403", resp.StatusCode)
	}

	admin := newTestApp(t, llm.NewMock())
	admin.login("admin", "adminpw")
	resp, body := admin.get("/admin/users")
	if resp.StatusCode != http.StatusOK || !strings.Contains(body, "alice") {
		t.Fatalf("users page status %d", resp.StatusCode)
	}

	resp, _ = admin.post("/admin/users", url.Values{"username": {"bob"}, "password": {"bobpw"}})
	expectRedirect(t, resp, "/admin/users")
	bob, err := admin.store.GetUserByUsername("bob")
	if err != nil || bob == nil {
		t.Fatalf("bob not created: %v", err)
	}
	if bob.Role != model.UserRoleLearner || bob.DisplayName != "bob" {
		t.Errorf("bob = %+v", bob)
	}

	resp, _ = admin.post("/admin/users", url.Values{"username": {"bob"}, "password": {"other"}})
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("duplicate user status = %d, want 409", resp.StatusCode)
	}

	resp, _ = admin.post(fmt.Sprintf("/admin/users/%d/toggle", bob.ID), nil)
	expectRedirect(t, resp, "/admin/users")
	bob, _ = admin.store.GetUserByID(bob.ID)
	if bob.Active {
		t.Errorf("bob still active after toggle")
	}

	resp, _ = admin.post("/admin/users/9999/toggle", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown user toggle = %d, want 404", resp.StatusCode)
	}
}

func TestResetProgress(t *testing.T) {
	app := newTestApp(t, llm.NewMock())
	alice, err := app.store.GetUserByUsername("alice")
	if err != nil || alice == nil {
		t.Fatalf("alice: %v", err)
	}
	ledger := app.handler.learners.get("alice").ledger
	ledger.RecordResult(model.SessionResult{Subject: "GS", Topic: "Polity", Score: 3, Total: 4})
	if ledger.State().XP != 30 {
		t.Fatalf("xp = %d, want 30", ledger.State().XP)
	}

	app.login("admin", "adminpw")
	resp, body := app.post(fmt.Sprintf("/admin/users/%d/reset", alice.ID), nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("reset status = %d", resp.StatusCode)
	}
	if !strings.Contains(body, "Progress reset for alice.") {
		t.Fatalf("reset message missing")
	}
	st := ledger.State()
	if st.XP != 0 || len(st.History) != 0 {
		t.Errorf("state after reset = %+v", st)
	}
}

func TestLearnerTickets(t *testing.T) {
	l := &learner{}
	start := func() *quiz.Session {
		return quiz.New(quiz.Meta{Subject: "Math", Topic: "Algebra"}, nil)
	}

	first, prev := l.newTicket()
	if prev != "" {
		t.Fatalf("prev = %q, want empty", prev)
	}
	second, prev := l.newTicket()
	if prev != first {
		t.Fatalf("prev = %q, want first ticket", prev)
	}
	if l.install(first, start) {
		t.Fatalf("superseded ticket installed a session")
	}
	if l.session != nil {
		t.Fatalf("session set by superseded ticket")
	}
	if !l.install(second, start) {
		t.Fatalf("current ticket rejected")
	}
	if l.install(second, start) {
		t.Fatalf("ticket reused")
	}

	third, _ := l.newTicket()
	l.abandon()
	if l.session != nil || l.install(third, start) {
		t.Fatalf("abandon did not discard the pending request")
	}

	fourth, prev := l.newTicket()
	l.restoreTicket(fourth, prev)
	if l.ticket != prev {
		t.Fatalf("restoreTicket did not restore")
	}
}

func TestPipelineStatus(t *testing.T) {
	tests := []struct {
		err    error
		status int
		msgID  string
	}{
		{pipeline.ErrGenerationInProgress, http.StatusConflict, "ErrGenerationInProgress"},
		{fmt.Errorf("start: %w", pipeline.ErrInvalidRequest), http.StatusBadRequest, "ErrInvalidRequest"},
		{pipeline.ErrEmptyOrBlocked, http.StatusUnprocessableEntity, "ErrEmptyOrBlocked"},
		{pipeline.ErrServiceUnavailable, http.StatusBadGateway, "ErrServiceUnavailable"},
		{errors.New("boom"), http.StatusInternalServerError, "ErrInternal"},
	}
	for _, tt := range tests {
		t.Run(tt.msgID, func(t *testing.T) {
			status, msgID := pipelineStatus(tt.err)
			if status != tt.status || msgID != tt.msgID {
				t.Errorf("pipelineStatus(%v) = %d, %s; want %d, %s", tt.err, status, msgID, tt.status, tt.msgID)
			}
		})
	}
}

func TestQuizStatus(t *testing.T) {
	tests := []struct {
		err    error
		status int
		msgID  string
	}{
		{quiz.ErrNoSelection, http.StatusBadRequest, "ErrNoSelection"},
		{quiz.ErrUnknownOption, http.StatusBadRequest, "ErrUnknownOption"},
		{quiz.ErrInvalidTransition, http.StatusConflict, "ErrInvalidTransition"},
		{errors.New("boom"), http.StatusInternalServerError, "ErrInternal"},
	}
	for _, tt := range tests {
		t.Run(tt.msgID, func(t *testing.T) {
			status, msgID := quizStatus(tt.err)
			if status != tt.status || msgID != tt.msgID {
				t.Errorf("quizStatus(%v) = %d, %s; want %d, %s", tt.err, status, msgID, tt.status, tt.msgID)
			}
		})
	}
}
