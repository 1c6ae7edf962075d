package cli

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"go.uber.org/zap"

	"haccp-training-service/internal/app"
	"haccp-training-service/internal/config"
	"haccp-training-service/internal/domain"
	"haccp-training-service/internal/infra/badgerstore"
	"haccp-training-service/internal/infra/memory"
	pgrepo "haccp-training-service/internal/infra/postgres"
	redisinfra "haccp-training-service/internal/infra/redis"
	transport "haccp-training-service/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the training game server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	log, err := zap.NewProduction()
	if err != nil {
		return err
	}
	defer log.Sync()

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg, log); err != nil {
			return err
		}
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}

	var bunDB *bun.DB
	var pgPool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(cfg.Postgres.URL)))
		bunDB = bun.NewDB(sqldb, pgdialect.New())
		defer bunDB.Close()

		pgPool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pgPool.Close()
	}

	local, err := badgerstore.Open(cfg.Local.Path)
	if err != nil {
		return err
	}
	defer local.Close()

	// Repositories: postgres when configured, in-process otherwise.
	var (
		progressRepo    app.ProgressRepository
		leaderboardRepo app.LeaderboardRepository
		checkpointRepo  app.CheckpointRepository
		attemptRepo     app.AttemptRepository
		scenarioLoader  memory.ScenarioLoader
		questionPool    app.QuestionPool
	)
	if bunDB != nil {
		progressRepo = pgrepo.NewProgressRepository(bunDB)
		leaderboardRepo = pgrepo.NewLeaderboardRepository(bunDB)
		checkpointRepo = pgrepo.NewCheckpointRepository(bunDB)
		attemptRepo = pgrepo.NewAttemptRepository(bunDB)
		loader := pgrepo.NewContentLoader(pgPool)
		scenarioLoader = loader
		questionPool = loader
	} else {
		progressRepo = memory.NewProgressRepository()
		leaderboardRepo = memory.NewLeaderboardRepository()
		checkpointRepo = memory.NewCheckpointRepository()
		attemptRepo = memory.NewAttemptRepository()
		scenarioLoader = memory.NewStaticScenarioLoader(sampleScenarios())
		questionPool = memory.NewStaticQuestionPool(sampleQuestionPools())
	}
	if redisClient != nil {
		checkpointRepo = redisinfra.NewCheckpointCache(redisClient, checkpointRepo,
			config.TTLDuration(cfg.Redis.TTL, 30*time.Minute))
	}

	contentTTL := config.TTLDuration(cfg.Content.TTL, 10*time.Minute)
	scenarios := memory.NewScenarioRepository(scenarioLoader, contentTTL)

	progress := app.NewProgressStore(progressRepo, leaderboardRepo, local, log.Named("progress"))

	var flagSource app.FlagSource
	if redisClient != nil {
		flagSource = redisinfra.NewFlagSource(redisClient)
	} else {
		flagSource = memory.NewFlagSource(domain.FeatureFlags{TrainingEnabled: true})
	}
	unlock := app.NewUnlockEngine(flagSource, progress, app.UnlockOptions{
		QualifierLevel: cfg.Flags.QualifierLevel,
		FinalLevel:     cfg.Flags.FinalLevel,
		TTL:            config.TTLDuration(cfg.Flags.TTL, time.Minute),
	}, log.Named("unlock"))

	pollInterval := config.TTLDuration(cfg.Flags.PollInterval, time.Minute)
	stopWatch := unlock.WatchSpecials(ctx, pollInterval, func(flags domain.FeatureFlags) {
		log.Info("hackathon gates changed",
			zap.Bool("qualifierOpen", flags.QualifierOpen),
			zap.Bool("finalOpen", flags.FinalOpen))
	})
	defer stopWatch()

	clues := app.NewClueLedger(local, log.Named("clues"))

	simCfg := app.SimulationConfig{
		QuestionCount:  cfg.Game.QuestionCount,
		ClockSeconds:   cfg.Game.ClockSeconds,
		CountdownTicks: cfg.Game.CountdownTicks,
		ResaveInterval: config.TTLDuration(cfg.Game.ResaveInterval, 30*time.Second),
		TeamSize:       cfg.Game.TeamSize,
		Weights: app.ScoreWeights{
			Violation: cfg.Game.ViolationPoints,
			RootCause: cfg.Game.RootCausePoints,
			Solution:  cfg.Game.SolutionPoints,
		},
	}
	registry := memory.NewSessionRegistry(app.SessionDeps{
		Checkpoints: checkpointRepo,
		Attempts:    attemptRepo,
		Pool:        questionPool,
	}, simCfg, log.Named("simulation"))

	diagnostic := app.NewDiagnosticService(scenarios, progress, app.DefaultAccuracyParams(),
		config.TTLDuration(cfg.Game.SaveDebounce, time.Second), log.Named("diagnostic"))
	defer diagnostic.Close()

	wsHandler := transport.NewWSHandler(transport.GameDeps{
		Registry:   registry,
		Progress:   progress,
		Diagnostic: diagnostic,
		Unlock:     unlock,
		Clues:      clues,
	}, log.Named("ws"))

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/ws", wsHandler.ServeWS)

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Info("starting training service", zap.String("port", finalPort))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("failed to start server", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Info("shutting down server")
	case <-ctx.Done():
		log.Info("context canceled, shutting down server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// sampleScenarios provides minimal diagnostic content for the no-database
// demo mode; production loads JSONB content instead.
func sampleScenarios() map[int]domain.Scenario {
	return map[int]domain.Scenario{
		1: {
			ID:    "cold-chain-break",
			Level: 1,
			Title: "Refrigerated trailer above temperature",
			Questions: []domain.DiagnosticQuestion{
				{ID: "q1", Text: "What does the trailer temperature log show?", Relevant: true},
				{ID: "q2", Text: "When was the compressor last serviced?", Relevant: true},
				{ID: "q3", Text: "What color is the trailer?", Relevant: false},
			},
			Resolutions: []domain.ResolutionOption{
				{ID: "r1", Text: "Reject the load and document the deviation", Correct: true},
				{ID: "r2", Text: "Accept the load and sell it first", Correct: false},
			},
		},
	}
}

func sampleQuestionPools() map[int][]domain.SimQuestion {
	return map[int][]domain.SimQuestion{
		1: {
			{ID: "s1", Prompt: "Raw chicken stored above ready-to-eat salads", Violation: "cross-contamination", RootCause: "improper storage order", Solution: "restack by cook temperature"},
			{ID: "s2", Prompt: "Sanitizer bucket tests at 0 ppm", Violation: "inadequate sanitation", RootCause: "solution not refreshed", Solution: "remix sanitizer and retest"},
			{ID: "s3", Prompt: "Cook line thermometer uncalibrated for a month", Violation: "monitoring failure", RootCause: "missed calibration schedule", Solution: "calibrate and log daily"},
			{ID: "s4", Prompt: "Handwash sink blocked by a prep cart", Violation: "hygiene barrier", RootCause: "poor station layout", Solution: "clear access and retrain staff"},
			{ID: "s5", Prompt: "Walk-in cooler at 48F overnight", Violation: "temperature abuse", RootCause: "door gasket failure", Solution: "repair gasket and discard exposed food"},
			{ID: "s6", Prompt: "Allergen labels missing on repacked items", Violation: "labeling violation", RootCause: "repack process skips labeling", Solution: "add label check to repack step"},
		},
	}
}
