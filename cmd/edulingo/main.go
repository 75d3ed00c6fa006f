package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"golang.org/x/crypto/bcrypt"

	"github.com/pavelanni/edulingo/internal/catalog"
	"github.com/pavelanni/edulingo/internal/event"
	"github.com/pavelanni/edulingo/internal/handler"
	appI18n "github.com/pavelanni/edulingo/internal/i18n"
	"github.com/pavelanni/edulingo/internal/kv"
	"github.com/pavelanni/edulingo/internal/llm"
	"github.com/pavelanni/edulingo/internal/model"
	"github.com/pavelanni/edulingo/internal/pipeline"
	"github.com/pavelanni/edulingo/internal/store"
)

//go:generate templ generate -path ../../internal/handler/views

func main() {
	// A missing .env is fine; real environment variables still apply.
	_ = godotenv.Load()

	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "edulingo",
		Short: "Adaptive multiple-choice practice with generated quizzes",
	}

	serve := serveCmd()
	root.AddCommand(serve, quizCmd(), statsCmd(), exportCmd(), userCmd())

	// Make "serve" the default when no subcommand is given.
	root.RunE = serve.RunE
	root.Flags().AddFlagSet(serve.Flags())

	return root
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP practice server",
		RunE:  runServe,
	}
	f := cmd.Flags()
	f.StringP("addr", "a", ":8080", "HTTP listen address")
	storageFlags(f)
	generatorFlags(f)
	f.StringP("lang", "l", "en", "UI language (en, ru)")
	f.String("events-url", "", "AMQP URL for completion events (empty disables publishing)")
	f.String("events-exchange", event.DefaultExchange, "AMQP topic exchange for completion events")
	f.String("base-path", "", "URL prefix for sub-path deployments (e.g. /ru)")
	f.Bool("secure-cookies", true, "Set Secure flag on session cookies")
	f.String("admin-password", "", "Initial admin password (or set EDULINGO_ADMIN_PASSWORD)")
	logFlags(f)
	return cmd
}

// storageFlags registers the account database and progress store flags.
func storageFlags(f *pflag.FlagSet) {
	f.String("db", "edulingo.db", "SQLite database path")
	f.String("kv", "sqlite", "Progress store backend (sqlite, redis)")
	f.String("redis-url", "redis://localhost:6379/0", "Redis URL when --kv=redis")
	f.Int("history-limit", 50, "Maximum quiz results kept per learner")
}

func generatorFlags(f *pflag.FlagSet) {
	f.String("provider", llm.ProviderOpenAI, "Question generator (openai, anthropic, mock)")
	f.String("llm-url", "http://localhost:11434/v1", "OpenAI-compatible API base URL")
	f.String("llm-key", "ollama", "API key for the generator")
	f.String("llm-model", "llama3.2", "Model name")
	f.Duration("llm-timeout", 90*time.Second, "Per-request generation timeout")
	f.IntP("num-questions", "n", pipeline.DefaultCount, "Questions requested per quiz")
	f.Bool("truncate-questions", false, "Drop questions beyond --num-questions")
}

func logFlags(f *pflag.FlagSet) {
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
}

func setupLogging(cmd *cobra.Command) {
	v := viperForCmd(cmd)

	var logLevel slog.Level
	switch strings.ToLower(v.GetString("log-level")) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	handlerOpts := &slog.HandlerOptions{Level: logLevel}
	var logHandler slog.Handler
	switch strings.ToLower(v.GetString("log-format")) {
	case "json":
		logHandler = slog.NewJSONHandler(os.Stderr, handlerOpts)
	default:
		logHandler = slog.NewTextHandler(os.Stderr, handlerOpts)
	}
	slog.SetDefault(slog.New(logHandler))
}

// viperForCmd binds a command's flags and environment to a fresh viper instance.
func viperForCmd(cmd *cobra.Command) *viper.Viper {
	v := viper.New()
	_ = v.BindPFlags(cmd.Flags())

	v.SetEnvPrefix("EDULINGO")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName("edulingo")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/edulingo")
	v.AddConfigPath("/etc/edulingo")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			slog.Warn("error reading config file", "error", err)
		}
	} else {
		slog.Debug("loaded config file", "path", v.ConfigFileUsed())
	}

	return v
}

// loadCatalog reads the "catalog" config section, falling back to the
// built-in subjects. "scope-labels" overrides the accepted scope keys.
func loadCatalog(v *viper.Viper) catalog.Catalog {
	cat := catalog.Default()
	if v.IsSet("catalog") {
		var custom catalog.Catalog
		if err := v.UnmarshalKey("catalog", &custom); err != nil {
			slog.Warn("invalid catalog config, using defaults", "error", err)
		} else if !custom.Valid() {
			slog.Warn("catalog config has no usable subjects, using defaults")
		} else {
			if custom.ScopeKeys == nil {
				custom.ScopeKeys = cat.ScopeKeys
			}
			cat = custom
		}
	}
	if v.IsSet("scope-labels") {
		cat.ScopeKeys = v.GetStringSlice("scope-labels")
	}
	return cat
}

func newPipeline(ctx context.Context, v *viper.Viper) (*pipeline.Pipeline, error) {
	cfg := llm.Config{
		Provider: v.GetString("provider"),
		BaseURL:  v.GetString("llm-url"),
		APIKey:   v.GetString("llm-key"),
		Model:    v.GetString("llm-model"),
		Timeout:  v.GetDuration("llm-timeout"),
	}
	gen, err := llm.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("create generator: %w", err)
	}
	if p := strings.ToLower(strings.TrimSpace(cfg.Provider)); p == "" || p == llm.ProviderOpenAI {
		if err := llm.NewOpenAI(cfg).Ping(ctx); err != nil {
			return nil, fmt.Errorf("LLM health check: %w", err)
		}
		slog.Info("LLM endpoint OK", "url", cfg.BaseURL, "model", cfg.Model)
	}
	return pipeline.New(gen, pipeline.Options{Truncate: v.GetBool("truncate-questions")}), nil
}

// openProgressStore returns the configured progress backend and a function
// releasing it. db backs the sqlite option.
func openProgressStore(ctx context.Context, v *viper.Viper, db *store.Store) (kv.Store, func(), error) {
	switch strings.ToLower(v.GetString("kv")) {
	case "", "sqlite":
		return db.KV(), func() {}, nil
	case "redis":
		r, err := kv.NewRedis(ctx, v.GetString("redis-url"))
		if err != nil {
			return nil, nil, fmt.Errorf("connect to redis: %w", err)
		}
		return r, func() { _ = r.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown progress store %q", v.GetString("kv"))
	}
}

func newPublisher(v *viper.Viper) (event.Publisher, error) {
	url := v.GetString("events-url")
	if url == "" {
		return event.Nop{}, nil
	}
	return event.NewAMQPPublisher(url, v.GetString("events-exchange"))
}

func runServe(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)
	ctx := cmdContext(cmd)

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	if err := seedAdmin(db, v.GetString("admin-password")); err != nil {
		return fmt.Errorf("seed admin: %w", err)
	}
	if err := db.CleanupExpiredSessions(); err != nil {
		slog.Warn("failed to clean up expired sessions", "error", err)
	}

	progressStore, closeProgress, err := openProgressStore(ctx, v, db)
	if err != nil {
		return err
	}
	defer closeProgress()

	lang := v.GetString("lang")
	if err := appI18n.Init(lang); err != nil {
		return fmt.Errorf("init i18n: %w", err)
	}

	p, err := newPipeline(ctx, v)
	if err != nil {
		return err
	}

	pub, err := newPublisher(v)
	if err != nil {
		return fmt.Errorf("create event publisher: %w", err)
	}
	defer pub.Close()

	basePath := strings.TrimRight(v.GetString("base-path"), "/")
	if basePath != "" && !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}

	cat := loadCatalog(v)
	h, err := handler.New(db, progressStore, p, cat, pub, handler.Config{
		NumQuestions:  v.GetInt("num-questions"),
		HistoryLimit:  v.GetInt("history-limit"),
		BasePath:      basePath,
		SecureCookies: v.GetBool("secure-cookies"),
	})
	if err != nil {
		return fmt.Errorf("create handler: %w", err)
	}

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(appI18n.Middleware(lang))

	if basePath != "" {
		r.Route(basePath, func(sub chi.Router) {
			sub.Use(h.BasePathMiddleware)
			h.Routes(sub)
		})
		r.Get(basePath, func(w http.ResponseWriter, r *http.Request) {
			http.Redirect(w, r, basePath+"/", http.StatusMovedPermanently)
		})
	} else {
		r.Use(h.BasePathMiddleware)
		h.Routes(r)
	}

	addr := v.GetString("addr")
	slog.Info("starting server",
		"addr", addr,
		"provider", v.GetString("provider"),
		"model", v.GetString("llm-model"),
		"lang", lang,
		"kv", v.GetString("kv"),
		"num_questions", v.GetInt("num-questions"),
		"subjects", len(cat.Subjects),
		"base_path", basePath,
		"events", v.GetString("events-url") != "",
	)
	return http.ListenAndServe(addr, r)
}

func seedAdmin(db *store.Store, password string) error {
	count, err := db.UserCount()
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	if password == "" {
		return fmt.Errorf("admin password is required: set --admin-password flag or EDULINGO_ADMIN_PASSWORD env var")
	}

	if _, err := createUser(db, "admin", "Administrator", password, model.UserRoleAdmin); err != nil {
		return fmt.Errorf("create admin user: %w", err)
	}
	slog.Info("seeded default admin user", "username", "admin")
	return nil
}

func createUser(db *store.Store, username, displayName, password string, role model.UserRole) (int64, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return 0, fmt.Errorf("hash password: %w", err)
	}
	return db.CreateUser(model.User{
		Username:     username,
		DisplayName:  displayName,
		PasswordHash: string(hash),
		Role:         role,
		Active:       true,
	})
}
