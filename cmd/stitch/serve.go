package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/stitch-works/stitch/internal/blob"
	"github.com/stitch-works/stitch/internal/config"
	"github.com/stitch-works/stitch/internal/connections"
	"github.com/stitch-works/stitch/internal/engines"
	"github.com/stitch-works/stitch/internal/home"
	"github.com/stitch-works/stitch/internal/ingest"
	"github.com/stitch-works/stitch/internal/jobs"
	"github.com/stitch-works/stitch/internal/match"
	"github.com/stitch-works/stitch/internal/providers"
	"github.com/stitch-works/stitch/internal/reconcile"
	"github.com/stitch-works/stitch/internal/server"
	"github.com/stitch-works/stitch/internal/store"
	"github.com/stitch-works/stitch/internal/svcctx"
)

var (
	serveHost     string
	servePort     string
	serveNoWorker bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the stitch server",
	Long: `Start the stitch HTTP server.

By default the background job worker runs inside the server process,
so a single 'stitch serve' handles both the API and queued ingest,
reconciliation, and detection jobs. Use --no-worker to run the API
alone and 'stitch worker' in separate processes.

Examples:
  stitch serve                    # Start on default port 8080
  stitch serve --port 3000        # Start on custom port
  stitch serve --no-worker        # API only, workers run elsewhere`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		logger := newLogger()

		cm, err := config.NewManager(cfgFile)
		if err != nil {
			return err
		}
		cfg := cm.Get()

		services, err := buildServices(ctx, cfg, logger)
		if err != nil {
			return err
		}

		host := serveHost
		if host == "" {
			host = cfg.Server.Host
		}
		port := servePort
		if port == "" {
			port = cfg.Server.Port
		}

		var worker *jobs.Worker
		if cfg.Worker.Enabled && !serveNoWorker {
			worker = jobs.NewWorker(jobs.Deps{
				Store:       services.Store,
				Reconciler:  services.Reconciler,
				Connections: services.Connections,
				Ingester:    services.Ingester,
			}, workerConfig(cfg), logger)
		}

		srv, err := server.New(server.Config{
			Host:     host,
			Port:     port,
			Services: services,
			Worker:   worker,
			Logger:   logger,
		})
		if err != nil {
			return err
		}

		// Pick up config.yaml edits without a restart.
		cm.WatchConfig()

		return srv.Start(ctx)
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveHost, "host", "", "host to bind to (default from config)")
	serveCmd.Flags().StringVar(&servePort, "port", "", "port to listen on (default from config)")
	serveCmd.Flags().BoolVar(&serveNoWorker, "no-worker", false, "do not run the embedded job worker")

	rootCmd.AddCommand(serveCmd)
}

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}

// buildServices opens the store and blob root under the stitch home
// directory and wires the full service graph. Both serve and worker
// commands go through here.
func buildServices(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*svcctx.Services, error) {
	h, err := home.New(homeDir)
	if err != nil {
		return nil, err
	}
	if err := h.EnsureExists(); err != nil {
		return nil, fmt.Errorf("failed to create home directory: %w", err)
	}

	dsn := cfg.Database.DSN
	if dsn == "" && (cfg.Database.Driver == "" || cfg.Database.Driver == "sqlite") {
		dsn = h.DatabasePath()
	}
	st, err := store.Open(store.Config{Driver: cfg.Database.Driver, DSN: dsn}, logger)
	if err != nil {
		return nil, err
	}

	blobRoot := cfg.Blobs.Root
	if blobRoot == "" {
		blobRoot = h.BlobPath()
	}
	blobs, err := blob.NewFS(blobRoot)
	if err != nil {
		return nil, err
	}

	settings := config.NewStore(st)
	if err := config.SeedDefaults(ctx, settings, logger); err != nil {
		return nil, err
	}

	matcher := match.NewMatcher(matcherConfig(ctx, settings), logger)

	var engineSet []engines.Engine
	if apiKey := config.ResolveEnvVars(cfg.OpenAI.APIKey); cfg.OpenAI.Enabled && apiKey != "" {
		client := providers.NewOpenAIClient(providers.OpenAIConfig{
			APIKey:     apiKey,
			EmbedModel: cfg.OpenAI.EmbeddingModel,
			ChatModel:  cfg.OpenAI.ChatModel,
			BaseURL:    cfg.OpenAI.BaseURL,
			RateLimit:  int(cfg.OpenAI.RateLimit * 60),
		})
		matcher.SetEmbedder(client)
		engineSet = []engines.Engine{
			engines.NewSemantic(client, logger),
			engines.NewContradiction(client, client, logger),
			engines.NewBridge(client, client, logger),
		}
	} else {
		logger.Warn("openai provider disabled, embedding fallback and detection engines unavailable")
	}

	weights := connections.NewWeightCache(weightLoader(settings, cfg))

	return &svcctx.Services{
		Store:       st,
		Blobs:       blobs,
		Reconciler:  reconcile.NewService(st, blobs, matcher, logger),
		Connections: connections.NewManager(st, blobs, engineSet, weights, logger),
		Ingester:    ingest.NewService(st, blobs, logger),
		Weights:     weights,
		Settings:    settings,
		Logger:      logger,
		Home:        h,
	}, nil
}

// matcherConfig starts from the standard tuning and applies any
// database-backed overrides.
func matcherConfig(ctx context.Context, settings config.Store) match.Config {
	mc := match.DefaultConfig()
	mc.MinSimilarity = config.Float(ctx, settings, "matcher.min_similarity", mc.MinSimilarity)
	mc.EmbeddingMinScore = config.Float(ctx, settings, "matcher.embedding_threshold", mc.EmbeddingMinScore)
	return mc
}

// weightLoader resolves a user's engine weights: per-user settings
// override the global weight settings, which override the config file.
func weightLoader(settings config.Store, cfg *config.Config) connections.WeightLoader {
	return func(ctx context.Context, userID string) (connections.EngineWeights, error) {
		resolve := func(engine string, fileDefault float64) float64 {
			global := config.Float(ctx, settings, "detection.weights."+engine, fileDefault)
			if userID == "" {
				return global
			}
			return config.Float(ctx, settings, config.UserWeightKey(userID, engine), global)
		}
		return connections.EngineWeights{
			Semantic:      resolve("semantic", cfg.Detection.Weights.Semantic),
			Contradiction: resolve("contradiction", cfg.Detection.Weights.Contradiction),
			Bridge:        resolve("bridge", cfg.Detection.Weights.Bridge),
		}, nil
	}
}

func workerConfig(cfg *config.Config) jobs.Config {
	wc := jobs.DefaultConfig()
	if cfg.Worker.PollIntervalSeconds > 0 {
		wc.PollInterval = time.Duration(cfg.Worker.PollIntervalSeconds) * time.Second
	}
	if cfg.Worker.StaleAfterMinutes > 0 {
		wc.StaleAfter = time.Duration(cfg.Worker.StaleAfterMinutes) * time.Minute
	}
	if cfg.Worker.MaxRetries > 0 {
		wc.Retry.MaxRetries = cfg.Worker.MaxRetries
	}
	return wc
}
