package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"advisor/internal/config"
	"advisor/internal/decision"
	"advisor/internal/inference"
	"advisor/internal/logging"
	"advisor/internal/pipeline"
	"advisor/internal/runtime"
	"advisor/internal/server"
	"advisor/internal/store"
	"advisor/internal/types"
	"advisor/internal/world"
)

var (
	verbose      bool
	configPath   string
	workspace    string
	agentID      string
	manifestPath string

	cfg    *config.Config
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "advisor",
	Short: "Autonomous analysis and recommendation pipeline",
	Long: `advisor classifies the capabilities of a host agent environment,
gathers context, executes the relevant read-only capabilities, synthesizes a
four-section analysis, and generates actionable recommendations that humans
accept or reject. Accepted recommendations execute in the background with
full status tracking.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zcfg := zap.NewProductionConfig()
		if verbose {
			zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zcfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		if configPath == "" {
			configPath = config.DefaultConfigPath()
		}
		cfg, err = config.Load(configPath)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid config: %w", err)
		}

		if err := logging.Initialize(workspace); err != nil {
			return fmt.Errorf("failed to initialize logging: %w", err)
		}
		if err := logging.InitAudit(); err != nil {
			return fmt.Errorf("failed to initialize audit log: %w", err)
		}
		logging.Boot("advisor starting (config=%s agent=%s)", configPath, agentID)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.CloseAudit()
		logging.CloseAll()
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP surface",
	Long: `Starts the analysis and decision API. POST /analysis triggers a run,
GET /analysis lists results, POST /actions/decide applies verdicts. The
config file is watched and reloaded on change.`,
	RunE: runServe,
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Run one analysis pass in the foreground",
	RunE:  runAnalyze,
}

var decideCmd = &cobra.Command{
	Use:   "decide",
	Short: "Accept or reject pending recommendations",
	Long: `Applies verdicts from the command line and waits for accepted
recommendations to finish executing.

Example:
  advisor decide --accept 8f14e45f --reject c9f0f895`,
	RunE: runDecide,
}

var (
	acceptIDs []string
	rejectIDs []string
)

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config.yaml (default .advisor/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&workspace, "workspace", ".", "workspace directory for logs and data")
	rootCmd.PersistentFlags().StringVar(&agentID, "agent", "default-agent", "agent identity for world and analysis ownership")
	rootCmd.PersistentFlags().StringVar(&manifestPath, "manifest", "host.yaml", "host environment manifest")

	decideCmd.Flags().StringSliceVar(&acceptIDs, "accept", nil, "action ids to accept")
	decideCmd.Flags().StringSliceVar(&rejectIDs, "reject", nil, "action ids to reject")

	rootCmd.AddCommand(serveCmd, analyzeCmd, decideCmd)
}

// components holds everything wired from the config.
type components struct {
	store     *store.LocalStore
	registry  *runtime.MemoryRegistry
	host      runtime.Host
	worlds    *world.Manager
	scheduler *inference.Scheduler
	orch      *pipeline.Orchestrator
	processor *decision.Processor
}

func buildComponents() (*components, error) {
	registry := runtime.NewMemoryRegistry()
	host, err := runtime.NewManifestHost(manifestPath, registry)
	if err != nil {
		return nil, fmt.Errorf("failed to load host manifest: %w", err)
	}

	st, err := store.NewLocalStore(cfg.Store.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	gemini := inference.NewGeminiClientWithConfig(inference.GeminiConfig{
		APIKey:     cfg.LLM.APIKey,
		BaseURL:    cfg.LLM.BaseURL,
		Model:      cfg.LLM.Model,
		Timeout:    cfg.GetLLMTimeout(),
		MaxRetries: cfg.LLM.MaxRetries,
		RateLimit:  cfg.GetRateLimitInterval(),
	})
	scheduler := inference.NewScheduler(inference.SchedulerConfig{Slots: cfg.LLM.Slots})
	llm := inference.NewScheduledClient(scheduler, "pipeline", gemini)

	worlds := world.NewManager(host, cfg.World.WorldName, cfg.World.CleanupRoom)
	orch := pipeline.NewOrchestrator(llm, host, registry, st, worlds, pipeline.Options{
		MaxConcurrentExecutions: cfg.Pipeline.MaxConcurrentExecutions,
		MaxRecommendations:      cfg.Pipeline.MaxRecommendations,
		RunTimeout:              cfg.GetRunTimeout(),
	})
	processor := decision.NewProcessor(st, host, registry, worlds, cfg.GetRunTimeout())

	return &components{
		store:     st,
		registry:  registry,
		host:      host,
		worlds:    worlds,
		scheduler: scheduler,
		orch:      orch,
		processor: processor,
	}, nil
}

func (c *components) close() {
	c.processor.Wait()
	c.scheduler.Stop()
	if err := c.store.Close(); err != nil {
		logging.BootError("Failed to close store: %v", err)
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	comps, err := buildComponents()
	if err != nil {
		return err
	}
	defer comps.close()

	watcher, err := config.NewWatcher(configPath, func(updated *config.Config) {
		cfg = updated
		logger.Info("config reloaded", zap.String("path", configPath))
	})
	if err != nil {
		logger.Warn("config watcher unavailable", zap.Error(err))
	} else {
		ctx := cmd.Context()
		if err := watcher.Start(ctx); err != nil {
			logger.Warn("config watcher failed to start", zap.Error(err))
		} else {
			defer watcher.Stop()
		}
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := server.New(comps.store, comps.orch, comps.processor, agentID, logger, server.Options{
		Addr:            cfg.Server.Addr,
		ReadTimeout:     cfg.GetReadTimeout(),
		WriteTimeout:    cfg.GetWriteTimeout(),
		ShutdownTimeout: cfg.GetShutdownTimeout(),
	})
	return srv.ListenAndServe(ctx)
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	comps, err := buildComponents()
	if err != nil {
		return err
	}
	defer comps.close()

	start := time.Now()
	analysis, err := comps.orch.Run(cmd.Context(), agentID)
	if err != nil {
		return fmt.Errorf("analysis run failed: %w", err)
	}

	actions, err := comps.store.ListActions(analysis.ID)
	if err != nil {
		return fmt.Errorf("failed to load recommendations: %w", err)
	}

	logger.Info("analysis complete",
		zap.String("id", analysis.ID),
		zap.Int("recommendations", len(actions)),
		zap.Duration("took", time.Since(start)),
	)
	return printJSON(map[string]interface{}{
		"analysis": analysis,
		"actions":  actions,
	})
}

func runDecide(cmd *cobra.Command, args []string) error {
	if len(acceptIDs) == 0 && len(rejectIDs) == 0 {
		return fmt.Errorf("nothing to decide: pass --accept and/or --reject")
	}

	comps, err := buildComponents()
	if err != nil {
		return err
	}
	defer comps.close()

	var decisions []types.Decision
	for _, id := range acceptIDs {
		decisions = append(decisions, types.Decision{ActionID: id, Verdict: types.VerdictAccept})
	}
	for _, id := range rejectIDs {
		decisions = append(decisions, types.Decision{ActionID: id, Verdict: types.VerdictReject})
	}

	outcome := comps.processor.Process(cmd.Context(), decisions)
	comps.processor.Wait()

	// Report the terminal state of every accepted action.
	statuses := map[string]string{}
	for _, id := range outcome.Accepted {
		action, err := comps.store.GetAction(id)
		if err != nil {
			statuses[id] = "unknown"
			continue
		}
		statuses[id] = string(action.Status)
	}
	return printJSON(map[string]interface{}{
		"accepted": outcome.Accepted,
		"rejected": outcome.Rejected,
		"statuses": statuses,
	})
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
