package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"dealdesk/config"
	"dealdesk/domain"
	httpLayer "dealdesk/http"
	"dealdesk/repository"
	"dealdesk/service"
)

var (
	// Global flags
	configPath string
	verbose    bool

	// match / detect flags
	profilePath   string
	currentCredit float64

	cfg    config.Config
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "dealdesk",
	Short: "Lender matching for real estate investors",
	Long: `dealdesk scores a buyer profile against a lender catalog and ranks every
lender by confidence. The serve command exposes scoring and the conversational
assistant over HTTP.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}

		zc := zap.NewProductionConfig()
		if cfg.Log.Development {
			zc = zap.NewDevelopmentConfig()
		}
		level, err := zapcore.ParseLevel(cfg.Log.Level)
		if err != nil {
			return eris.Wrap(err, "invalid log level")
		}
		if verbose {
			level = zapcore.DebugLevel
		}
		zc.Level = zap.NewAtomicLevelAt(level)

		logger, err = zc.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

var matchCmd = &cobra.Command{
	Use:   "match",
	Short: "Score a buyer profile JSON file and print the ranked lenders",
	Example: `  dealdesk match --profile buyer.json
  cat buyer.json | dealdesk match --profile -`,
	Args: cobra.NoArgs,
	RunE: runMatch,
}

var detectCmd = &cobra.Command{
	Use:   "detect [message]",
	Short: "Print the parameter changes found in a chat message",
	Example: `  dealdesk detect "My credit score is actually 720"
  dealdesk detect --credit 750 "What if my credit score was 100 points lower?"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runDetect,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to a YAML config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	matchCmd.Flags().StringVar(&profilePath, "profile", "", "buyer profile JSON file, or - for stdin")
	_ = matchCmd.MarkFlagRequired("profile")

	detectCmd.Flags().Float64Var(&currentCredit, "credit", 0, "current credit score, for relative changes")

	rootCmd.AddCommand(serveCmd, matchCmd, detectCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadCatalog(ctx context.Context) (domain.Catalog, error) {
	raw, err := repository.NewFileCatalogSource(cfg.Catalog.Path).Load(ctx)
	if err != nil {
		return domain.Catalog{}, err
	}
	return service.BuildCatalog(raw)
}

func matcherConfig() service.MatcherConfig {
	return service.MatcherConfig{
		BaseConfidence:    cfg.Scoring.BaseConfidence,
		DefaultConfidence: cfg.Scoring.DefaultConfidence,
		InclusionFloor:    cfg.Scoring.InclusionFloor,
		MatchThreshold:    cfg.Scoring.MatchThreshold,
		Limit:             cfg.Scoring.Limit,
		CacheTTL:          cfg.Scoring.CacheTTL,
	}
}

// openCache prefers redis and falls back to the in-memory cache when no
// address is configured or the server does not answer.
func openCache(ctx context.Context) (repository.CacheRepository, func()) {
	if cfg.Redis.Addr == "" {
		return repository.NewMemoryCache(), func() {}
	}

	redisCache := repository.NewRedisCache(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := redisCache.Ping(pingCtx); err != nil {
		logger.Warn("redis unavailable, using in-memory cache",
			zap.String("addr", cfg.Redis.Addr), zap.Error(err))
		_ = redisCache.Close()
		return repository.NewMemoryCache(), func() {}
	}

	logger.Info("using redis cache", zap.String("addr", cfg.Redis.Addr))
	return redisCache, func() {
		if err := redisCache.Close(); err != nil {
			logger.Warn("failed to close redis", zap.Error(err))
		}
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	catalog, err := loadCatalog(ctx)
	if err != nil {
		logger.Error("failed to load lender catalog", zap.String("path", cfg.Catalog.Path), zap.Error(err))
		return err
	}
	logger.Info("lender catalog loaded", zap.Int("lenders", len(catalog.Lenders)))

	formFields, err := service.ParseFields(cfg.Scoring.RequiredFields)
	if err != nil {
		return err
	}
	chatFields, err := service.ParseFields(cfg.Chat.RequiredFields)
	if err != nil {
		return err
	}

	cache, closeCache := openCache(ctx)
	defer closeCache()

	ai := service.NewAIService(service.AIConfig{
		APIKey:     cfg.LLM.APIKey,
		BaseURL:    cfg.LLM.BaseURL,
		Model:      cfg.LLM.Model,
		MaxTokens:  cfg.LLM.MaxTokens,
		Timeout:    cfg.LLM.Timeout,
		MaxRetries: cfg.LLM.MaxRetries,
		RetryDelay: cfg.LLM.RetryDelay,
	}, logger.Named("llm"))
	if !ai.Enabled() {
		logger.Warn("no LLM API key configured, replies use the built-in fallback")
	}

	insights := service.NewInsightsService(service.InsightsConfig{
		APIKey:     cfg.Insights.APIKey,
		BaseURL:    cfg.Insights.BaseURL,
		Timeout:    cfg.Insights.Timeout,
		CacheTTL:   cfg.Insights.CacheTTL,
		MaxRetries: cfg.Insights.MaxRetries,
		RetryDelay: cfg.Insights.RetryDelay,
	}, cache, logger.Named("insights"))

	matcher := service.NewLenderMatcher(catalog, matcherConfig(), cache, logger.Named("matcher"))
	sessions := repository.NewSessionRepositoryMemory()
	chat := service.NewChatService(sessions, matcher, ai, chatFields, cfg.Chat.HistoryLimit, logger.Named("chat"))
	match := service.NewMatchService(matcher, chat, ai, formFields, logger.Named("match"))

	rateLimiter := httpLayer.NewRateLimiter(cfg.RateLimit.Requests, cfg.RateLimit.Window)
	defer rateLimiter.Stop()

	handler := httpLayer.NewRouter(httpLayer.Handlers{
		Match:    httpLayer.NewMatchHandler(match, logger),
		Chat:     httpLayer.NewChatHandler(chat, logger),
		Insights: httpLayer.NewInsightsHandler(insights, logger),
		Health:   httpLayer.NewHealthHandler(len(catalog.Lenders), ai, insights, logger),
	}, rateLimiter)

	server := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("API listening", zap.String("addr", cfg.Server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		logger.Error("server failed", zap.Error(err))
		return err
	case <-quit:
		logger.Info("shutting down server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("error during server shutdown", zap.Error(err))
		return err
	}

	logger.Info("server exited")
	return nil
}

func runMatch(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	var data []byte
	var err error
	if profilePath == "-" {
		data, err = io.ReadAll(cmd.InOrStdin())
	} else {
		data, err = os.ReadFile(profilePath)
	}
	if err != nil {
		return eris.Wrapf(err, "read profile %s", profilePath)
	}

	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return eris.Wrap(err, "parse profile")
	}
	// accept either a bare profile or a full match request
	if inner, ok := raw["buyerProfile"].(map[string]any); ok {
		raw = inner
	}

	catalog, err := loadCatalog(ctx)
	if err != nil {
		return err
	}
	required, err := service.ParseFields(cfg.Scoring.RequiredFields)
	if err != nil {
		return err
	}

	matcher := service.NewLenderMatcher(catalog, matcherConfig(), nil, logger)
	resp := matcher.MatchProfile(ctx, service.NormalizeProfile(raw), required)
	return printJSON(cmd, resp)
}

func runDetect(cmd *cobra.Command, args []string) error {
	var current domain.BuyerProfile
	if currentCredit > 0 {
		current.CreditScore = domain.Float(currentCredit)
	}
	cs := service.DetectParameterChanges(strings.Join(args, " "), current)
	return printJSON(cmd, cs)
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
