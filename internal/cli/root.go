// Package cli wires configuration, authentication and the collection
// pipeline behind the gather command.
package cli

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/coursestats/gather/internal/config"
	"github.com/coursestats/gather/internal/gather"
	"github.com/coursestats/gather/internal/githubapi"
	"github.com/coursestats/gather/internal/milestone"
	"github.com/coursestats/gather/internal/progress"
	"github.com/coursestats/gather/internal/snapshot"
	"github.com/coursestats/gather/internal/telemetry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/time/rate"
)

type rootFlags struct {
	configPath    string
	outputDir     string
	usernamesPath string
	since         string
	branch        string
	onlyCommits   bool
	onlyIssues    bool
	onlyPRs       bool
	verbose       bool
	debug         bool
}

// NewRootCommand builds the gather command.
func NewRootCommand() *cobra.Command {
	flags := &rootFlags{}

	cmd := &cobra.Command{
		Use:           "gather",
		Short:         "Gather commit, issue and PR activity into milestone snapshots",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), flags)
		},
	}

	cmd.Flags().StringVar(&flags.configPath, "config", "config/gather.yaml", "path to YAML config file")
	cmd.Flags().StringVar(&flags.outputDir, "output", "", "snapshot output directory (overrides config)")
	cmd.Flags().StringVar(&flags.usernamesPath, "usernames", "", "username mapping JSON path (overrides config)")
	cmd.Flags().StringVar(&flags.since, "since", "", "gather activity since this day (YYYY-MM-DD, overrides config cutoff)")
	cmd.Flags().StringVar(&flags.branch, "branch", "", "commit ref for targets without a pinned branch")
	cmd.Flags().BoolVar(&flags.onlyCommits, "only-commits", false, "gather commits only")
	cmd.Flags().BoolVar(&flags.onlyIssues, "only-issues", false, "gather issues only")
	cmd.Flags().BoolVar(&flags.onlyPRs, "only-prs", false, "gather pull requests only")
	cmd.Flags().BoolVarP(&flags.verbose, "verbose", "v", false, "enable debug logging")
	cmd.Flags().BoolVar(&flags.debug, "debug", false, "enable debug logging")

	return cmd
}

func run(ctx context.Context, flags *rootFlags) error {
	cfg, err := loadConfig(flags)
	if err != nil {
		return err
	}

	logger, err := buildLogger(cfg.Logging.Level)
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	telemetryRuntime, err := telemetry.Setup(telemetry.Config{
		Enabled:          cfg.Telemetry.OTELEnabled,
		ServiceName:      "gather",
		TraceMode:        cfg.Telemetry.OTELTraceMode,
		TraceSampleRatio: cfg.Telemetry.OTELTraceSampleRatio,
	})
	if err != nil {
		return fmt.Errorf("setup telemetry: %w", err)
	}
	defer func() {
		_ = telemetryRuntime.Shutdown(context.Background())
	}()

	httpClient, err := buildHTTPClient(cfg, logger)
	if err != nil {
		return err
	}

	requestClient := githubapi.NewClient(httpClient, githubapi.RetryConfig{
		MaxAttempts:    cfg.Retry.MaxAttempts,
		InitialBackoff: cfg.Retry.InitialBackoff,
		MaxBackoff:     cfg.Retry.MaxBackoff,
	}, githubapi.WaitPolicy{MaxWait: cfg.RateLimit.MaxResetWait})
	if cfg.GitHub.RequestsPerSecond > 0 {
		requestClient.Pacer = rate.NewLimiter(rate.Limit(cfg.GitHub.RequestsPerSecond), 1)
	}

	dataClient, err := githubapi.NewDataClient(cfg.GitHub.APIBaseURL, requestClient)
	if err != nil {
		return fmt.Errorf("build data client: %w", err)
	}
	restClient, err := githubapi.NewGitHubRESTClient(httpClient, cfg.GitHub.APIBaseURL)
	if err != nil {
		return fmt.Errorf("build rest client: %w", err)
	}

	usernames, err := config.LoadUsernames(cfg.Output.UsernamesPath)
	if err != nil {
		logger.Warn("username mapping unavailable, using raw usernames",
			zap.String("path", cfg.Output.UsernamesPath), zap.Error(err))
		usernames = config.UsernameMap{}
	}

	if err := os.MkdirAll(cfg.Output.Dir, 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	metrics := progress.NewMetrics()
	if cfg.Progress.ListenAddr != "" {
		go progress.Serve(ctx, cfg.Progress.ListenAddr, progress.NewHandler(metrics), logger)
	}

	writer := snapshot.Writer{}
	orchestrator := &gather.Orchestrator{
		Checker: gather.NewRepositoryChecker(restClient),
		Writer:  writer,
		Commits: &gather.CommitCollector{
			Client:    dataClient,
			Writer:    writer,
			Usernames: usernames,
			Metrics:   metrics,
			Logger:    logger,
		},
		Issues: &gather.IssuePRCollector{
			Client:    dataClient,
			Writer:    writer,
			Usernames: usernames,
			Metrics:   metrics,
			Logger:    logger,
		},
		Schedule:       milestone.NewSchedule(cfg.Schedule.NotBefore, cfg.Schedule.Milestones),
		Categories:     cfg.Categories,
		OutputDir:      cfg.Output.Dir,
		BranchOverride: flags.branch,
		Metrics:        metrics,
		Logger:         logger,
	}

	logger.Info("run starting",
		zap.Int("repositories", len(cfg.Repositories)),
		zap.Int("milestones", len(cfg.Schedule.Milestones)),
		zap.Time("not_before", cfg.Schedule.NotBefore))

	results := orchestrator.Run(ctx, cfg.Repositories)

	if err := gather.RenderSummary(os.Stdout, results); err != nil {
		logger.Warn("summary render failed", zap.Error(err))
	}
	logger.Info("run complete", zap.Int("repositories", len(results)))
	return nil
}

func loadConfig(flags *rootFlags) (*config.Config, error) {
	configFile, err := os.Open(flags.configPath)
	if err != nil {
		return nil, fmt.Errorf("open config file: %w", err)
	}
	defer func() {
		_ = configFile.Close()
	}()

	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	if flags.outputDir != "" {
		cfg.Output.Dir = flags.outputDir
	}
	if flags.usernamesPath != "" {
		cfg.Output.UsernamesPath = flags.usernamesPath
	}
	if flags.since != "" {
		if err := cfg.ApplySince(flags.since); err != nil {
			return nil, err
		}
	}
	if flags.onlyCommits || flags.onlyIssues || flags.onlyPRs {
		cfg.Categories = config.CategoriesConfig{
			Commits: flags.onlyCommits,
			Issues:  flags.onlyIssues,
			PRs:     flags.onlyPRs,
		}
	}
	if flags.verbose || flags.debug {
		cfg.Logging.Level = "debug"
	}
	return cfg, nil
}

func buildLogger(level string) (*zap.Logger, error) {
	loggerConfig := zap.NewProductionConfig()
	loggerConfig.Level = zap.NewAtomicLevelAt(logLevel(level))
	return loggerConfig.Build()
}

func logLevel(raw string) zapcore.Level {
	switch strings.ToLower(raw) {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// buildHTTPClient authenticates requests per the configured mode. Token mode
// with an unset environment variable degrades to anonymous access, which the
// platform serves at a much lower rate limit.
func buildHTTPClient(cfg *config.Config, logger *zap.Logger) (*http.Client, error) {
	switch cfg.GitHub.Auth.Mode {
	case "app":
		client, err := githubapi.NewInstallationHTTPClient(githubapi.InstallationAuthConfig{
			AppID:          cfg.GitHub.Auth.AppID,
			InstallationID: cfg.GitHub.Auth.InstallationID,
			PrivateKeyPath: cfg.GitHub.Auth.PrivateKeyPath,
			Timeout:        cfg.GitHub.RequestTimeout,
		})
		if err != nil {
			return nil, fmt.Errorf("build app auth client: %w", err)
		}
		return client, nil
	case "token":
		token := os.Getenv(cfg.GitHub.Auth.TokenEnv)
		if strings.TrimSpace(token) == "" {
			logger.Warn("token environment variable is empty, requests are anonymous",
				zap.String("env", cfg.GitHub.Auth.TokenEnv))
		}
		return githubapi.NewTokenHTTPClient(token, cfg.GitHub.RequestTimeout), nil
	default:
		return githubapi.NewTokenHTTPClient("", cfg.GitHub.RequestTimeout), nil
	}
}
