package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/pavelanni/edulingo/internal/event"
	"github.com/pavelanni/edulingo/internal/model"
	"github.com/pavelanni/edulingo/internal/progress"
	"github.com/pavelanni/edulingo/internal/quiz"
	"github.com/pavelanni/edulingo/internal/store"
)

func quizCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "quiz",
		Short: "Take a generated quiz in the terminal",
		RunE:  runQuiz,
	}
	f := cmd.Flags()
	f.StringP("subject", "s", "", "Subject (defaults to the catalog subject of --topic)")
	f.StringP("topic", "t", "", "Topic to practice (required)")
	f.StringToString("scope", nil, "Scope labels, e.g. grade=10,examType=board")
	f.String("identity", "", "Learner identity (empty = anonymous)")
	f.String("events-url", "", "AMQP URL for completion events (empty disables publishing)")
	f.String("events-exchange", event.DefaultExchange, "AMQP topic exchange for completion events")
	storageFlags(f)
	generatorFlags(f)
	logFlags(f)
	_ = cmd.MarkFlagRequired("topic")
	return cmd
}

func statsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Print a learner's progress",
		RunE:  runStats,
	}
	f := cmd.Flags()
	f.String("identity", "", "Learner identity (empty = anonymous)")
	f.Int("weak-threshold", progress.DefaultWeakThreshold, "Accuracy below which a topic is weak")
	f.Int("recent", 5, "Number of recent quizzes to show")
	storageFlags(f)
	logFlags(f)
	return cmd
}

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export a learner's progress as JSON",
		RunE:  runExport,
	}
	f := cmd.Flags()
	f.String("identity", "", "Learner identity (empty = anonymous)")
	f.StringP("output", "o", "-", "Output file path (- for stdout)")
	storageFlags(f)
	logFlags(f)
	return cmd
}

func userCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage login accounts",
	}
	add := &cobra.Command{
		Use:   "add",
		Short: "Create a login account",
		RunE:  runUserAdd,
	}
	f := add.Flags()
	f.StringP("username", "u", "", "Login name (required)")
	f.StringP("password", "p", "", "Password (or set EDULINGO_PASSWORD)")
	f.String("display-name", "", "Display name (defaults to username)")
	f.String("role", string(model.UserRoleLearner), "Role (learner, admin)")
	f.String("db", "edulingo.db", "SQLite database path")
	logFlags(f)
	_ = add.MarkFlagRequired("username")
	cmd.AddCommand(add)
	return cmd
}

// openLedger opens the database, the progress store and identity's ledger.
// The returned function releases everything.
func openLedger(ctx context.Context, cmd *cobra.Command) (*progress.Ledger, func(), error) {
	v := viperForCmd(cmd)
	db, err := store.New(v.GetString("db"))
	if err != nil {
		return nil, nil, fmt.Errorf("open database: %w", err)
	}
	ps, closeProgress, err := openProgressStore(ctx, v, db)
	if err != nil {
		db.Close()
		return nil, nil, err
	}
	ledger := progress.Open(ps, v.GetString("identity"), progress.WithHistoryLimit(v.GetInt("history-limit")))
	return ledger, func() {
		closeProgress()
		db.Close()
	}, nil
}

func runQuiz(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)
	ctx := cmdContext(cmd)

	cat := loadCatalog(v)
	topic := strings.TrimSpace(v.GetString("topic"))
	subject := strings.TrimSpace(v.GetString("subject"))
	if subject == "" {
		s, ok := cat.SubjectOf(topic)
		if !ok {
			return fmt.Errorf("topic %q is not in the catalog; pass --subject", topic)
		}
		subject = s
	}
	scope := cat.FilterScope(v.GetStringMapString("scope"))

	ledger, release, err := openLedger(ctx, cmd)
	if err != nil {
		return err
	}
	defer release()

	p, err := newPipeline(ctx, v)
	if err != nil {
		return err
	}
	pub, err := newPublisher(v)
	if err != nil {
		return fmt.Errorf("create event publisher: %w", err)
	}
	defer pub.Close()

	ledger.RecordLastPractice(model.Practice{Subject: subject, Topic: topic, Scope: scope})

	fmt.Fprintf(cmd.ErrOrStderr(), "Generating questions on %s / %s...\n", subject, topic)
	questions, err := p.Generate(ctx, scope, subject, topic, v.GetInt("num-questions"))
	if err != nil {
		return fmt.Errorf("generate questions: %w", err)
	}
	if len(questions) == 0 {
		return errors.New("no usable questions were generated; try another topic")
	}

	identity := ledger.Identity()
	s := quiz.New(quiz.Meta{Subject: subject, Topic: topic, Scope: scope}, questions,
		quiz.WithOnComplete(func(res model.SessionResult) {
			ledger.RecordResult(res)
			pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()
			if err := pub.PublishSessionCompleted(pctx, event.NewSessionCompleted(identity, res)); err != nil {
				slog.Error("failed to publish session event", "identity", identity, "error", err)
			}
		}))

	res, err := playQuiz(s, cmd.InOrStdin(), cmd.OutOrStdout())
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "\nYou scored %d out of %d (+%d XP).\n", res.Score, res.Total, res.Score*progress.XPPerPoint)
	fmt.Fprintf(out, "Streak: %d, level %d.\n", ledger.Streak(), ledger.Level().Level)
	return nil
}

// playQuiz drives s from terminal input until it completes. Answers are a
// single option letter; "q" quits without recording.
func playQuiz(s *quiz.Session, in io.Reader, out io.Writer) (model.SessionResult, error) {
	sc := bufio.NewScanner(in)
	for s.Phase() != model.PhaseCompleted {
		q, _ := s.Current()
		answered, total := s.Progress()
		fmt.Fprintf(out, "\nQuestion %d of %d\n%s\n", answered+1, total, q.Text)
		if !s.HasOptions() {
			fmt.Fprintln(out, "This question has no answer options, skipping.")
			if _, err := s.Skip(); err != nil {
				return model.SessionResult{}, err
			}
			continue
		}
		for _, o := range q.OrderedOptions() {
			fmt.Fprintf(out, "  %s) %s\n", o.Label, o.Text)
		}

		for {
			fmt.Fprint(out, "> ")
			if !sc.Scan() {
				if err := sc.Err(); err != nil {
					return model.SessionResult{}, fmt.Errorf("read answer: %w", err)
				}
				return model.SessionResult{}, errors.New("quiz aborted")
			}
			answer := strings.ToUpper(strings.TrimSpace(sc.Text()))
			if answer == "Q" {
				return model.SessionResult{}, errors.New("quiz aborted")
			}
			if err := s.SelectAnswer(model.Label(answer)); err != nil {
				fmt.Fprintf(out, "Choose one of the listed letters.\n")
				continue
			}
			break
		}

		correct, err := s.Check()
		if err != nil {
			return model.SessionResult{}, err
		}
		if correct {
			fmt.Fprintln(out, "Correct!")
		} else {
			fmt.Fprintf(out, "Incorrect. The correct answer is %s.\n", q.CorrectLabel)
		}
		if _, err := s.Advance(); err != nil {
			return model.SessionResult{}, err
		}
	}
	res, _ := s.Result()
	return res, nil
}

func runStats(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	ledger, release, err := openLedger(cmdContext(cmd), cmd)
	if err != nil {
		return err
	}
	defer release()

	out := cmd.OutOrStdout()
	st := ledger.State()
	lvl := ledger.Level()
	stats := ledger.Stats()
	fmt.Fprintf(out, "Learner:   %s\n", ledger.Identity())
	fmt.Fprintf(out, "XP:        %d (level %d, %d/%d)\n", st.XP, lvl.Level, lvl.XPIntoLevel, lvl.XPPerLevel)
	fmt.Fprintf(out, "Streak:    %d\n", ledger.Streak())
	fmt.Fprintf(out, "Quizzes:   %d, average %d%%\n", stats.Completed, stats.AverageScore)
	if st.LastPracticed != nil {
		fmt.Fprintf(out, "Last:      %s / %s\n", st.LastPracticed.Subject, st.LastPracticed.Topic)
	}

	if recent := ledger.RecentHistory(v.GetInt("recent")); len(recent) > 0 {
		fmt.Fprintln(out, "\nRecent:")
		for _, r := range recent {
			fmt.Fprintf(out, "  %s  %-12s %-16s %d/%d\n", r.CompletedAt.Local().Format("2006-01-02"), r.Subject, r.Topic, r.Score, r.Total)
		}
	}
	if weak := ledger.WeakTopics(v.GetInt("weak-threshold")); len(weak) > 0 {
		fmt.Fprintln(out, "\nWeak topics:")
		for _, w := range weak {
			fmt.Fprintf(out, "  %-12s %-16s %d%% (%d/%d)\n", w.Subject, w.Topic, w.Accuracy, w.Score, w.Total)
		}
	}
	return nil
}

func runExport(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	ledger, release, err := openLedger(cmdContext(cmd), cmd)
	if err != nil {
		return err
	}
	defer release()

	data, err := json.MarshalIndent(ledger.Export(), "", "  ")
	if err != nil {
		return fmt.Errorf("marshal JSON: %w", err)
	}

	outPath := v.GetString("output")
	var w io.Writer
	if outPath == "" || outPath == "-" {
		w = cmd.OutOrStdout()
	} else {
		f, err := os.Create(outPath)
		if err != nil {
			return fmt.Errorf("create output file: %w", err)
		}
		defer f.Close()
		w = f
	}

	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	_, _ = fmt.Fprintln(w)
	return nil
}

func runUserAdd(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	username := strings.TrimSpace(v.GetString("username"))
	password := v.GetString("password")
	if password == "" {
		return errors.New("password is required: set --password or EDULINGO_PASSWORD")
	}
	role := model.UserRole(v.GetString("role"))
	if role != model.UserRoleAdmin && role != model.UserRoleLearner {
		return fmt.Errorf("unknown role %q", role)
	}
	displayName := v.GetString("display-name")
	if displayName == "" {
		displayName = username
	}

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	id, err := createUser(db, username, displayName, password, role)
	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	slog.Info("user created", "id", id, "username", username, "role", role)
	return nil
}

func cmdContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
