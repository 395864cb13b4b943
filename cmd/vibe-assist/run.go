package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/vibe-assist/vibe-assist/internal/ai"
	"github.com/vibe-assist/vibe-assist/internal/analysis"
	"github.com/vibe-assist/vibe-assist/internal/api"
	"github.com/vibe-assist/vibe-assist/internal/capture"
	"github.com/vibe-assist/vibe-assist/internal/config"
	"github.com/vibe-assist/vibe-assist/internal/cost"
	"github.com/vibe-assist/vibe-assist/internal/fswatch"
	"github.com/vibe-assist/vibe-assist/internal/git"
	"github.com/vibe-assist/vibe-assist/internal/journal"
	"github.com/vibe-assist/vibe-assist/internal/logging"
	"github.com/vibe-assist/vibe-assist/internal/scheduler"
	"github.com/vibe-assist/vibe-assist/internal/state"
)

const shutdownTimeout = 10 * time.Second

var runCmd = &cobra.Command{
	Use:   "run [project]",
	Short: "Run the monitoring daemon",
	Long: `Start the analyzers and the HTTP API for a project (default: the
current directory). Configuration is read from .vibe-assist/config.yaml,
.env files and the environment; flags override all of them.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		project := "."
		if len(args) == 1 {
			project = args[0]
		}

		cfg, err := config.Load(project)
		if err != nil {
			return err
		}
		if err := applyRunFlags(cmd, cfg); err != nil {
			return err
		}
		noScreen, _ := cmd.Flags().GetBool("no-screen")

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return runDaemon(ctx, cfg, !noScreen)
	},
}

func init() {
	runCmd.Flags().String("host", "", "Bind host")
	runCmd.Flags().IntP("port", "p", 0, "Bind port")
	runCmd.Flags().String("provider", "", "Reasoning provider: auto, gemini or anthropic")
	runCmd.Flags().String("log-level", "", "Log level: debug, info, warn or error")
	runCmd.Flags().String("log-format", "", "Log format: console or json")
	runCmd.Flags().Bool("no-watch", false, "Disable file-change nudges")
	runCmd.Flags().Bool("no-screen", false, "Disable screen capture")
	rootCmd.AddCommand(runCmd)
}

// applyRunFlags overlays explicitly set flags and revalidates
func applyRunFlags(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()
	if flags.Changed("host") {
		cfg.Host, _ = flags.GetString("host")
	}
	if flags.Changed("port") {
		cfg.Port, _ = flags.GetInt("port")
	}
	if flags.Changed("provider") {
		cfg.Provider, _ = flags.GetString("provider")
	}
	if flags.Changed("log-level") {
		cfg.LogLevel, _ = flags.GetString("log-level")
	}
	if flags.Changed("log-format") {
		cfg.LogFormat, _ = flags.GetString("log-format")
	}
	if noWatch, _ := flags.GetBool("no-watch"); noWatch {
		cfg.WatchFiles = false
	}
	return cfg.Validate()
}

// daemon holds everything runDaemon starts, for orderly shutdown
type daemon struct {
	logger    *zap.Logger
	scheduler *scheduler.Scheduler
	server    *api.Server
	journal   *journal.Journal
	branch    string
}

func runDaemon(ctx context.Context, cfg *config.Config, withScreen bool) error {
	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	d, err := buildDaemon(ctx, cfg, withScreen, logger)
	if err != nil {
		return err
	}
	defer d.close()

	if err := d.scheduler.Start(ctx); err != nil {
		return err
	}
	if err := d.server.Start(ctx); err != nil {
		stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = d.scheduler.Stop(stopCtx)
		return err
	}

	printBanner(cfg, d)
	<-ctx.Done()
	logger.Info("shutting down")

	stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	var errs []error
	if err := d.server.Shutdown(stopCtx); err != nil {
		errs = append(errs, fmt.Errorf("api shutdown: %w", err))
	}
	if err := d.scheduler.Stop(stopCtx); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// buildDaemon wires the components. Only git is fatal; a missing reasoning
// provider, journal or display degrades the daemon instead.
func buildDaemon(ctx context.Context, cfg *config.Config, withScreen bool, logger *zap.Logger) (*daemon, error) {
	repo, err := git.Open(ctx, cfg.ProjectPath)
	if err != nil {
		return nil, err
	}
	d := &daemon{logger: logger}
	if d.branch, err = repo.CurrentBranch(ctx); err != nil {
		logger.Debug("failed to read current branch", zap.Error(err))
	}

	budgetCfg := cost.DefaultConfig()
	budgetCfg.MaxTokensPerHour = cfg.HourlyTokenBudget
	budget, err := cost.NewTracker(budgetCfg, logging.Named(logger, "budget"))
	if err != nil {
		return nil, err
	}

	if cfg.JournalPath != "" {
		j, err := journal.Open(cfg.JournalPath)
		if err != nil {
			logger.Warn("reasoning journal disabled", zap.String("path", cfg.JournalPath), zap.Error(err))
		} else {
			d.journal = j
		}
	}

	client, err := buildReasoning(ctx, cfg, budget, d.journal, logger)
	if err != nil {
		logger.Warn("reasoning disabled, analyzers will idle", zap.Error(err))
	}

	st := state.New()
	fast, err := analysis.NewFastPath(&analysis.FastPathConfig{
		Diffs:   repo,
		Judge:   client,
		State:   st,
		Penalty: cfg.SecurityPenalty,
		Logger:  logging.Named(logger, "fast_path"),
	})
	if err != nil {
		return nil, err
	}
	deep, err := analysis.NewDeepPath(&analysis.DeepPathConfig{
		Commits:  repo,
		Reviewer: client,
		State:    st,
		Logger:   logging.Named(logger, "deep_path"),
	})
	if err != nil {
		return nil, err
	}
	screen, err := analysis.NewScreenAnalyzer(&analysis.ScreenConfig{
		Source: buildCapture(cfg, withScreen, logger),
		Judge:  client,
		State:  st,
		Logger: logging.Named(logger, "screen"),
	})
	if err != nil {
		return nil, err
	}
	contextInit, err := analysis.NewContextInitializer(&analysis.ContextConfig{
		Root:      repo.Root(),
		Repo:      repo,
		Describer: client,
		State:     st,
		Logger:    logging.Named(logger, "context"),
	})
	if err != nil {
		return nil, err
	}

	schedCfg := &scheduler.Config{
		State:           st,
		FastPath:        fast,
		DeepPath:        deep,
		Screen:          screen,
		FastInterval:    cfg.FastInterval,
		DeepInterval:    cfg.DeepInterval,
		ScreenInterval:  cfg.ScreenInterval,
		SummaryInterval: cfg.SummaryInterval,
		RecalcInterval:  cfg.RecalcInterval,
		ContextInit:     contextInit,
		Budget:          budget,
		Logger:          logging.Named(logger, "scheduler"),
	}
	if client != nil {
		schedCfg.Reasoning = client
	}
	if cfg.WatchFiles {
		w, err := fswatch.New(repo.Root(), fswatch.DefaultDebounce, logging.Named(logger, "fswatch"))
		if err != nil {
			logger.Warn("file watching disabled", zap.Error(err))
		} else {
			schedCfg.Watcher = w
		}
	}
	d.scheduler, err = scheduler.New(schedCfg)
	if err != nil {
		return nil, err
	}

	d.server, err = api.NewServer(d.scheduler, api.Settings{
		Addr:           cfg.Addr(),
		AllowedOrigins: cfg.AllowedOrigins,
	}, logging.Named(logger, "api"))
	if err != nil {
		return nil, err
	}
	return d, nil
}

// buildReasoning returns a nil client when no provider is configured
func buildReasoning(ctx context.Context, cfg *config.Config, budget *cost.Tracker, j *journal.Journal, logger *zap.Logger) (*ai.Client, error) {
	model, err := ai.NewModel(ctx, ai.ProviderConfig{
		Provider:        cfg.Provider,
		GeminiAPIKey:    cfg.GeminiAPIKey,
		AnthropicAPIKey: cfg.AnthropicAPIKey,
		FastModel:       cfg.FastModel,
		DeepModel:       cfg.DeepModel,
	})
	if err != nil {
		return nil, err
	}

	retry := ai.DefaultRetryConfig()
	retry.Timeout = cfg.ReasoningTimeout
	aiCfg := ai.Config{
		Model:             model,
		Retry:             retry,
		RequestsPerMinute: cfg.RequestsPerMinute,
		Budget:            budget,
		Logger:            logging.Named(logger, "ai"),
	}
	if j != nil {
		aiCfg.Journal = j
	}
	return ai.NewClient(aiCfg)
}

// buildCapture returns nil when capture is disabled or the display is unavailable
func buildCapture(cfg *config.Config, enabled bool, logger *zap.Logger) capture.Source {
	if !enabled {
		return nil
	}
	src, err := capture.NewScreenSource(cfg.Display)
	if err != nil {
		logger.Warn("screen analysis disabled", zap.Error(err))
		return nil
	}
	if cfg.ScreenshotDir == "" {
		return src
	}
	archive, err := capture.NewArchive(cfg.ScreenshotDir)
	if err != nil {
		logger.Warn("screenshot archive disabled", zap.String("dir", cfg.ScreenshotDir), zap.Error(err))
		return src
	}
	return capture.Archiving(src, archive, logging.Named(logger, "capture"))
}

func (d *daemon) close() {
	if d.journal != nil {
		if err := d.journal.Close(); err != nil {
			d.logger.Warn("failed to close journal", zap.Error(err))
		}
	}
}

func printBanner(cfg *config.Config, d *daemon) {
	cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
	green := color.New(color.FgGreen).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()

	fmt.Fprintf(os.Stderr, "\n%s\n", cyan("Vibe Assist is watching"))
	fmt.Fprintf(os.Stderr, "  Project:   %s\n", cfg.ProjectPath)
	if d.branch != "" {
		fmt.Fprintf(os.Stderr, "  Branch:    %s\n", d.branch)
	}
	fmt.Fprintf(os.Stderr, "  API:       http://%s\n", d.server.Addr())
	if d.scheduler.ReasoningReady() {
		fmt.Fprintf(os.Stderr, "  Reasoning: %s\n", green(d.scheduler.Stats().Reasoning.Provider))
	} else {
		fmt.Fprintf(os.Stderr, "  Reasoning: %s\n", yellow("not configured"))
	}
	if d.journal != nil {
		fmt.Fprintf(os.Stderr, "  Journal:   %s\n", d.journal.Path())
	}
	fmt.Fprintln(os.Stderr)
}
