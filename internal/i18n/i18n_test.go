package i18n

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func initLang(t *testing.T, lang string) context.Context {
	t.Helper()
	if err := Init(lang); err != nil {
		t.Fatalf("Init(%q): %v", lang, err)
	}
	loc := NewLocalizer(lang)
	return WithLocalizer(context.Background(), loc)
}

func TestTranslateEnglish(t *testing.T) {
	ctx := initLang(t, "en")

	if got := T(ctx, "AppTitle"); got != "Edulingo" {
		t.Errorf("T(AppTitle) = %q, want 'Edulingo'", got)
	}
	if got := T(ctx, "StartQuiz"); got != "Start Quiz" {
		t.Errorf("T(StartQuiz) = %q, want 'Start Quiz'", got)
	}
}

func TestTranslateRussian(t *testing.T) {
	ctx := initLang(t, "ru")

	if got := T(ctx, "StartQuiz"); got != "Начать тест" {
		t.Errorf("T(StartQuiz) = %q, want 'Начать тест'", got)
	}
	if got := T(ctx, "CheckAnswer"); got != "Проверить" {
		t.Errorf("T(CheckAnswer) = %q, want 'Проверить'", got)
	}
}

func TestPluralTranslation(t *testing.T) {
	ctx := initLang(t, "en")

	tests := []struct {
		id    string
		count int
		want  string
	}{
		{"QuestionsAvailable", 1, "1 question available."},
		{"QuestionsAvailable", 5, "5 questions available."},
		{"StreakDays", 1, "1 day streak"},
		{"StreakDays", 3, "3 day streak"},
	}
	for _, tt := range tests {
		if got := Tp(ctx, tt.id, tt.count); got != tt.want {
			t.Errorf("Tp(%s, %d) = %q, want %q", tt.id, tt.count, got, tt.want)
		}
	}
}

func TestRussianPlural(t *testing.T) {
	ctx := initLang(t, "ru")

	tests := []struct {
		count int
		want  string
	}{
		{1, "Доступен 1 вопрос."},
		{3, "Доступно 3 вопроса."},
		{5, "Доступно 5 вопросов."},
	}
	for _, tt := range tests {
		if got := Tp(ctx, "QuestionsAvailable", tt.count); got != tt.want {
			t.Errorf("Tp(QuestionsAvailable, %d) = %q, want %q", tt.count, got, tt.want)
		}
	}
}

func TestTemplateDataTranslation(t *testing.T) {
	ctx := initLang(t, "en")

	got := Td(ctx, "FinalScore", map[string]any{"Score": 2, "Total": 3})
	if got != "You scored 2 out of 3." {
		t.Errorf("Td(FinalScore) = %q, want 'You scored 2 out of 3.'", got)
	}
}

func TestMissingKey(t *testing.T) {
	ctx := initLang(t, "en")

	if got := T(ctx, "NonExistentKey"); got != "NonExistentKey" {
		t.Errorf("T(NonExistentKey) = %q, want 'NonExistentKey'", got)
	}
}

func TestLanguages(t *testing.T) {
	initLang(t, "en")
	langs := Languages()
	found := map[string]bool{}
	for _, l := range langs {
		found[l] = true
	}
	if !found["en"] || !found["ru"] {
		t.Errorf("Languages() = %v, want en and ru", langs)
	}
}

func TestMiddlewareNegotiation(t *testing.T) {
	if err := Init("en"); err != nil {
		t.Fatal(err)
	}

	var got string
	h := Middleware("en")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = T(r.Context(), "StartQuiz")
	}))

	tests := []struct {
		name   string
		target string
		header string
		want   string
	}{
		{"default", "/", "", "Start Quiz"},
		{"accept-language", "/", "ru-RU,ru;q=0.9", "Начать тест"},
		{"query wins", "/?lang=en", "ru", "Start Quiz"},
		{"unsupported falls back", "/", "fr", "Start Quiz"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.target, nil)
			if tt.header != "" {
				req.Header.Set("Accept-Language", tt.header)
			}
			h.ServeHTTP(httptest.NewRecorder(), req)
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}
