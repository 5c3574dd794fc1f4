package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/pavelanni/focusroom/internal/cache"
	"github.com/pavelanni/focusroom/internal/content"
	"github.com/pavelanni/focusroom/internal/handler"
	appI18n "github.com/pavelanni/focusroom/internal/i18n"
	"github.com/pavelanni/focusroom/internal/llm"
	"github.com/pavelanni/focusroom/internal/llm/prompts"
	"github.com/pavelanni/focusroom/internal/metrics"
	"github.com/pavelanni/focusroom/internal/model"
	"github.com/pavelanni/focusroom/internal/room"
	"github.com/pavelanni/focusroom/internal/session"
	"github.com/pavelanni/focusroom/internal/store"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "focusroom",
		Short: "Guided daily learning sessions powered by LLMs",
	}

	serve := serveCmd()
	root.AddCommand(serve, exportCmd(), normalizeCmd())

	// Make "serve" the default when no subcommand is given.
	root.RunE = serve.RunE

	// Register serve flags on root so bare `focusroom --addr ...` still works.
	root.Flags().AddFlagSet(serve.Flags())

	return root
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP session server",
		RunE:  runServe,
	}
	defaults := model.DefaultEngineConfig()
	f := cmd.Flags()
	f.StringP("addr", "a", ":8080", "HTTP listen address")
	f.String("db", "focusroom.db", "SQLite database path")
	f.String("base-path", "", "URL prefix for sub-path deployments (e.g. /hu)")
	f.StringP("lang", "l", defaults.Lang, "UI and feedback language (en, hu)")
	f.String("llm-url", "http://localhost:11434/v1", "OpenAI-compatible API base URL")
	f.String("llm-key", "ollama", "API key for LLM")
	f.String("llm-model", "llama3.2", "LLM model name")
	f.Float64("llm-rps", 2, "Maximum LLM requests per second (0 = unlimited)")
	f.Bool("skip-llm-check", false, "Start without checking the LLM endpoint")
	f.String("tts-model", "tts-1", "Speech synthesis model")
	f.String("tts-voice", "alloy", "Speech synthesis voice")
	f.Bool("muted", false, "Disable narration for new sessions")
	f.Int("max-attempts", defaults.MaxAttempts, "Attempts per exercise sent to the evaluator")
	f.Duration("transition-delay", defaults.TransitionDelay, "Pause between the lesson and the first exercise")
	f.String("eval-variant", string(prompts.PromptStandard), "Evaluation prompt variant (strict, standard, lenient)")
	f.String("cache", "sqlite", "Day content cache backend (sqlite, redis, memory, none)")
	f.String("redis-addr", "localhost:6379", "Redis address for --cache=redis")
	f.Duration("cache-ttl", defaults.CacheTTL, "Age after which cached day content is regenerated")
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "auto", "Log format (text, json, auto)")
	return cmd
}

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export archived sessions as JSON or YAML",
		RunE:  runExport,
	}
	f := cmd.Flags()
	f.String("db", "focusroom.db", "SQLite database path")
	f.String("room", "", "Only export sessions of this room")
	f.String("format", "json", "Output format (json, yaml)")
	f.StringP("output", "o", "-", "Output file path (- for stdout)")
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "auto", "Log format (text, json, auto)")
	return cmd
}

func normalizeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "normalize FILE...",
		Short: "Validate and repair generated task content",
		Long: "Reads raw task JSON documents (- for stdin) and prints the validation " +
			"result and the normalized item for each.",
		Args: cobra.MinimumNArgs(1),
		RunE: runNormalize,
	}
	f := cmd.Flags()
	f.String("format", "json", "Output format (json, yaml)")
	f.Bool("strict", false, "Exit with an error if any document needed repair")
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "auto", "Log format (text, json, auto)")
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
	format := strings.ToLower(v.GetString("log-format"))
	if format == "auto" {
		format = "text"
		if !isatty.IsTerminal(os.Stderr.Fd()) && !isatty.IsCygwinTerminal(os.Stderr.Fd()) {
			format = "json"
		}
	}
	var logHandler slog.Handler
	switch format {
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

	v.SetEnvPrefix("FOCUSROOM")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName("focusroom")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/focusroom")
	v.AddConfigPath("/etc/focusroom")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Warn("error reading config file", "error", err)
		}
	} else {
		slog.Debug("loaded config file", "path", v.ConfigFileUsed())
	}

	return v
}

func runServe(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Open database.
	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	// Initialize i18n.
	lang := v.GetString("lang")
	if err := appI18n.Init(lang); err != nil {
		return fmt.Errorf("init i18n: %w", err)
	}

	engineCfg := model.DefaultEngineConfig()
	engineCfg.Lang = lang
	engineCfg.MaxAttempts = v.GetInt("max-attempts")
	engineCfg.TransitionDelay = v.GetDuration("transition-delay")
	engineCfg.CacheTTL = v.GetDuration("cache-ttl")
	engineCfg.Muted = v.GetBool("muted")
	engineCfg.BasePath = normalizeBasePath(v.GetString("base-path"))
	if engineCfg.MaxAttempts < 1 {
		slog.Warn("invalid max-attempts, using default", "max_attempts", engineCfg.MaxAttempts)
		engineCfg.MaxAttempts = model.DefaultEngineConfig().MaxAttempts
	}

	contentCache, closeCache, err := openCache(ctx, v, db, engineCfg.CacheTTL)
	if err != nil {
		return fmt.Errorf("open cache: %w", err)
	}
	defer closeCache()

	// Create LLM client.
	variant := strings.ToLower(strings.TrimSpace(v.GetString("eval-variant")))
	if !prompts.IsValidVariant(variant) {
		slog.Warn("invalid eval-variant, using standard", "variant", variant)
		variant = string(prompts.PromptStandard)
	}
	llmClient := llm.New(llm.Config{
		BaseURL:     v.GetString("llm-url"),
		APIKey:      v.GetString("llm-key"),
		Model:       v.GetString("llm-model"),
		SpeechModel: v.GetString("tts-model"),
		Voice:       v.GetString("tts-voice"),
		Lang:        lang,
		Variant:     prompts.PromptVariant(variant),
		RPS:         v.GetFloat64("llm-rps"),
		MaxTTSChars: engineCfg.NarrationMaxChars,
	})
	if !v.GetBool("skip-llm-check") {
		if err := llmClient.Ping(ctx); err != nil {
			return fmt.Errorf("LLM health check: %w", err)
		}
		slog.Info("LLM endpoint OK", "url", v.GetString("llm-url"), "model", v.GetString("llm-model"))
	}

	rooms := room.New(llmClient, db, slog.Default())
	manager := session.NewManager(engineCfg, session.Deps{
		Loader:    rooms,
		Closer:    rooms,
		Evaluator: llmClient,
		Synth:     llmClient,
		Cache:     contentCache,
		Archiver:  db,
		Text:      appI18n.Td,
		Logger:    slog.Default(),
	})
	defer manager.Shutdown()

	m := metrics.New(manager.Len)
	manager.Observe(m.Observe)

	h, err := handler.New(manager, db, m.Handler(), engineCfg)
	if err != nil {
		return fmt.Errorf("create handler: %w", err)
	}

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(appI18n.Middleware(lang))

	basePath := engineCfg.BasePath
	if basePath != "" {
		r.Route(basePath, func(sub chi.Router) {
			sub.Use(h.BasePathMiddleware)
			h.Routes(sub)
		})
	} else {
		r.Use(h.BasePathMiddleware)
		h.Routes(r)
	}

	addr := v.GetString("addr")
	srv := &http.Server{Addr: addr, Handler: r, ReadHeaderTimeout: 10 * time.Second}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	slog.Info("starting server",
		"addr", addr,
		"model", v.GetString("llm-model"),
		"llm_url", v.GetString("llm-url"),
		"lang", lang,
		"max_attempts", engineCfg.MaxAttempts,
		"eval_variant", variant,
		"cache", v.GetString("cache"),
		"muted", engineCfg.Muted,
		"base_path", basePath,
	)

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}
	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func normalizeBasePath(p string) string {
	p = strings.TrimRight(p, "/")
	if p != "" && !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return p
}

// openCache returns the configured day content cache and its cleanup. The
// sqlite backend is the database itself; stale rows are purged on start.
func openCache(ctx context.Context, v *viper.Viper, db *store.Store, ttl time.Duration) (cache.Cache, func(), error) {
	noop := func() {}
	switch backend := strings.ToLower(v.GetString("cache")); backend {
	case "sqlite", "":
		n, err := db.PurgeCache(ctx, time.Now().Add(-ttl))
		if err != nil {
			return nil, noop, err
		}
		slog.Debug("purged stale cache entries", "count", n)
		return db, noop, nil
	case "redis":
		rc, err := cache.NewRedis(ctx, v.GetString("redis-addr"), ttl)
		if err != nil {
			return nil, noop, err
		}
		return rc, func() { _ = rc.Close() }, nil
	case "memory":
		return cache.NewMemory(), noop, nil
	case "none":
		return nil, noop, nil
	default:
		return nil, noop, fmt.Errorf("unknown cache backend %q", backend)
	}
}

func runExport(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	export, err := db.ExportAllSessions(v.GetString("room"))
	if err != nil {
		return fmt.Errorf("export sessions: %w", err)
	}

	data, err := marshal(export, v.GetString("format"))
	if err != nil {
		return err
	}

	w, closeOut, err := openOutput(v.GetString("output"))
	if err != nil {
		return err
	}
	defer closeOut()

	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	slog.Info("exported sessions", "count", len(export.Sessions))
	return nil
}

type normalizeResult struct {
	File     string        `json:"file" yaml:"file"`
	Valid    bool          `json:"valid" yaml:"valid"`
	Problems []string      `json:"problems,omitempty" yaml:"problems,omitempty"`
	Item     *content.Item `json:"item" yaml:"-"`
	ItemMap  any           `json:"-" yaml:"item"`
}

func runNormalize(cmd *cobra.Command, args []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	var results []normalizeResult
	repaired := 0
	for _, path := range args {
		data, err := readInput(cmd.InOrStdin(), path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		res := content.ValidateJSON(data)
		if !res.Valid {
			repaired++
			slog.Warn("content repaired", "file", path, "problems", len(res.Problems))
		}
		results = append(results, normalizeResult{
			File:     path,
			Valid:    res.Valid,
			Problems: res.Problems,
			Item:     res.Item,
			ItemMap:  res.Item.Map(),
		})
	}

	out, err := marshal(results, v.GetString("format"))
	if err != nil {
		return err
	}
	if _, err := cmd.OutOrStdout().Write(out); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	if v.GetBool("strict") && repaired > 0 {
		return fmt.Errorf("%d of %d documents needed repair", repaired, len(args))
	}
	return nil
}

func readInput(stdin io.Reader, path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(stdin)
	}
	return os.ReadFile(path)
}

func marshal(v any, format string) ([]byte, error) {
	switch strings.ToLower(format) {
	case "yaml", "yml":
		data, err := yaml.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("marshal YAML: %w", err)
		}
		return data, nil
	case "json", "":
		data, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("marshal JSON: %w", err)
		}
		return append(data, '\n'), nil
	default:
		return nil, fmt.Errorf("unknown format %q (json, yaml)", format)
	}
}

func openOutput(path string) (io.Writer, func(), error) {
	if path == "" || path == "-" {
		return os.Stdout, func() {}, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("create output file: %w", err)
	}
	return f, func() { _ = f.Close() }, nil
}
