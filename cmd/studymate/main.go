package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pavelanni/studymate/internal/analytics"
	"github.com/pavelanni/studymate/internal/handler"
	appI18n "github.com/pavelanni/studymate/internal/i18n"
	"github.com/pavelanni/studymate/internal/ingest"
	"github.com/pavelanni/studymate/internal/llm"
	"github.com/pavelanni/studymate/internal/model"
	"github.com/pavelanni/studymate/internal/rag"
	"github.com/pavelanni/studymate/internal/retrieval"
	"github.com/pavelanni/studymate/internal/store"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "studymate",
		Short:        "Study assistant with grounded answers and progress analytics",
		SilenceUsage: true,
	}

	serve := serveCmd()
	root.AddCommand(serve, askCmd(), headlinesCmd(), progressCmd(), gapsCmd(), exportCmd(), importCmd(), embedCmd())

	// Make "serve" the default when no subcommand is given.
	root.RunE = serve.RunE

	// Register serve flags on root so bare `studymate --addr ...` still works.
	root.Flags().AddFlagSet(serve.Flags())

	return root
}

// commonFlags registers the database, gateway, language and logging flags.
func commonFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("db", "studymate.db", "SQLite database path")
	f.String("llm-url", "http://localhost:11434/v1", "OpenAI-compatible API base URL")
	f.String("llm-key", "ollama", "API key for LLM")
	f.String("llm-model", "llama3.2", "LLM model name")
	f.String("embed-model", "nomic-embed-text", "Embedding model name (empty disables semantic search)")
	f.StringP("lang", "l", "en", "Language of fixed texts (en, ru)")
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		RunE:  runServe,
	}
	commonFlags(cmd)
	f := cmd.Flags()
	f.StringP("addr", "a", ":8080", "HTTP listen address")
	f.String("api-key", "", "API key required on /api requests (or set STUDYMATE_API_KEY)")
	f.Int("headline-concurrency", 1, "Sets generated in parallel for aggregate headlines")
	f.Bool("skip-llm-check", false, "Skip the LLM endpoint check at startup")
	return cmd
}

func askCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ask <question...>",
		Short: "Answer a question from the stored material",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runAsk,
	}
	commonFlags(cmd)
	cmd.Flags().StringP("set", "s", "", "Restrict the search to one set")
	return cmd
}

func headlinesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "headlines",
		Short: "Generate headlines for one set or the most recent sets",
		RunE:  runHeadlines,
	}
	commonFlags(cmd)
	f := cmd.Flags()
	f.StringP("set", "s", "", "Set to generate headlines for (default: most recent sets)")
	f.IntP("limit", "n", 0, "Number of headlines (0 = default)")
	f.Int("headline-concurrency", 1, "Sets generated in parallel in aggregate mode")
	return cmd
}

func progressCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "progress",
		Short: "Print the progress overview and a coaching recommendation",
		RunE:  runProgress,
	}
	commonFlags(cmd)
	return cmd
}

func gapsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "gaps",
		Short: "Print the weak-area analysis of a set",
		RunE:  runGaps,
	}
	commonFlags(cmd)
	cmd.Flags().StringP("set", "s", "", "Set to analyze (required)")
	_ = cmd.MarkFlagRequired("set")
	return cmd
}

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export sets, activity history and progress as JSON",
		RunE:  runExport,
	}
	commonFlags(cmd)
	cmd.Flags().StringP("output", "o", "-", "Output file path (- for stdout)")
	return cmd
}

func importCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import <file.json...>",
		Short: "Import pre-chunked study material and activity history",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runImport,
	}
	commonFlags(cmd)
	return cmd
}

func embedCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "embed",
		Short: "Embed stored passages that have no embedding yet",
		RunE:  runEmbed,
	}
	commonFlags(cmd)
	cmd.Flags().IntP("limit", "n", 0, "Maximum passages to embed (0 = all)")
	return cmd
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

	v.SetEnvPrefix("STUDYMATE")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName("studymate")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/studymate")
	v.AddConfigPath("/etc/studymate")
	v.AddConfigPath("/data")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Warn("error reading config file", "error", err)
		}
	} else {
		slog.Debug("loaded config file", "path", v.ConfigFileUsed())
	}

	return v
}

// app holds the components shared by the subcommands.
type app struct {
	db        *store.Store
	llm       *llm.Client
	embedder  retrieval.Embedder
	rag       *rag.Engine
	analytics *analytics.Analyzer
	ctx       context.Context
}

func newApp(v *viper.Viper) (*app, error) {
	lang := v.GetString("lang")
	if err := appI18n.Init(lang); err != nil {
		return nil, fmt.Errorf("init i18n: %w", err)
	}

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	llmClient, err := llm.New(
		v.GetString("llm-url"),
		v.GetString("llm-key"),
		v.GetString("llm-model"),
		v.GetString("embed-model"),
	)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create LLM client: %w", err)
	}

	// A nil interface disables the semantic path.
	var embedder retrieval.Embedder
	if v.GetString("embed-model") != "" {
		embedder = llmClient
	}

	engine := rag.New(retrieval.New(embedder, db), db, llmClient)
	engine.SetConcurrency(v.GetInt("headline-concurrency"))

	return &app{
		db:        db,
		llm:       llmClient,
		embedder:  embedder,
		rag:       engine,
		analytics: analytics.New(db, llmClient),
		ctx:       appI18n.WithLang(context.Background(), lang),
	}, nil
}

func (a *app) Close() error {
	return a.db.Close()
}

func runServe(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	a, err := newApp(v)
	if err != nil {
		return err
	}
	defer a.Close()

	if !v.GetBool("skip-llm-check") {
		if err := a.llm.Ping(context.Background()); err != nil {
			return fmt.Errorf("LLM health check: %w", err)
		}
		slog.Info("LLM endpoint OK", "url", v.GetString("llm-url"), "model", v.GetString("llm-model"))
	}

	cfg := model.ServeConfig{
		APIKey: v.GetString("api-key"),
		Lang:   v.GetString("lang"),
	}
	h, err := handler.New(a.db, a.rag, a.analytics, cfg)
	if err != nil {
		return fmt.Errorf("create handler: %w", err)
	}

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	h.Routes(r)

	addr := v.GetString("addr")
	slog.Info("starting server",
		"addr", addr,
		"model", v.GetString("llm-model"),
		"embed_model", v.GetString("embed-model"),
		"llm_url", v.GetString("llm-url"),
		"lang", cfg.Lang,
		"api_key", cfg.APIKey != "",
		"headline_concurrency", a.rag.Concurrency(),
	)
	return http.ListenAndServe(addr, r)
}

func runAsk(cmd *cobra.Command, args []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	a, err := newApp(v)
	if err != nil {
		return err
	}
	defer a.Close()

	res, err := a.rag.Answer(a.ctx, strings.Join(args, " "), v.GetString("set"))
	if err != nil {
		return fmt.Errorf("answer: %w", err)
	}
	return writeJSON(cmd.OutOrStdout(), res)
}

func runHeadlines(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	a, err := newApp(v)
	if err != nil {
		return err
	}
	defer a.Close()

	var headlines []model.Headline
	if setID := v.GetString("set"); setID != "" {
		headlines, err = a.rag.Headlines(a.ctx, setID, v.GetInt("limit"))
	} else {
		headlines, err = a.rag.AllHeadlines(a.ctx, v.GetInt("limit"))
	}
	if err != nil {
		return fmt.Errorf("headlines: %w", err)
	}
	return writeJSON(cmd.OutOrStdout(), headlines)
}

func runProgress(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	a, err := newApp(v)
	if err != nil {
		return err
	}
	defer a.Close()

	rows, err := a.analytics.ProgressOverview(a.ctx)
	if err != nil {
		return err
	}
	reco := a.analytics.Recommend(a.ctx, rows)
	if n := len(reco.StrugglingTopics); n > 0 {
		fmt.Fprintln(cmd.ErrOrStderr(), appI18n.Tp(a.ctx, "StrugglingTopics", n))
	}
	return writeJSON(cmd.OutOrStdout(), map[string]any{
		"overview":       rows,
		"recommendation": reco,
	})
}

func runGaps(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	a, err := newApp(v)
	if err != nil {
		return err
	}
	defer a.Close()

	gaps, err := a.analytics.AnalyzeGaps(a.ctx, v.GetString("set"))
	if err != nil {
		return err
	}
	return writeJSON(cmd.OutOrStdout(), gaps)
}

func runExport(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	a, err := newApp(v)
	if err != nil {
		return err
	}
	defer a.Close()

	sets, err := a.db.ExportSets(a.ctx)
	if err != nil {
		return fmt.Errorf("export sets: %w", err)
	}
	rows, err := a.analytics.ProgressOverview(a.ctx)
	if err != nil {
		return err
	}
	report := model.ProgressReport{
		GeneratedAt:    time.Now().UTC(),
		Sets:           sets,
		Overview:       rows,
		Recommendation: a.analytics.Recommend(a.ctx, rows),
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
	return writeJSON(w, report)
}

func runImport(cmd *cobra.Command, args []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	a, err := newApp(v)
	if err != nil {
		return err
	}
	defer a.Close()

	im := ingest.New(a.db, a.embedder)
	summaries := make([]model.ImportSummary, 0, len(args))
	for _, path := range args {
		s, err := im.ImportFile(a.ctx, path)
		if err != nil {
			return err
		}
		summaries = append(summaries, s)
	}
	return writeJSON(cmd.OutOrStdout(), summaries)
}

func runEmbed(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	a, err := newApp(v)
	if err != nil {
		return err
	}
	defer a.Close()

	n, err := ingest.New(a.db, a.embedder).Backfill(a.ctx, v.GetInt("limit"))
	slog.Info("embedded passages", "count", n)
	return err
}

func writeJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal JSON: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	// Ensure trailing newline.
	_, _ = fmt.Fprintln(w)
	return nil
}
