package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/querywright/querywright/internal/answer"
	"github.com/querywright/querywright/internal/api"
	"github.com/querywright/querywright/internal/archive"
	"github.com/querywright/querywright/internal/auth"
	catalogpostgres "github.com/querywright/querywright/internal/catalog/postgres"
	"github.com/querywright/querywright/internal/completion"
	"github.com/querywright/querywright/internal/config"
	"github.com/querywright/querywright/internal/credentials"
	"github.com/querywright/querywright/internal/nl2sql"
	"github.com/querywright/querywright/internal/observability"
	"github.com/querywright/querywright/internal/schema"
	s3store "github.com/querywright/querywright/internal/storage/s3"
)

const schemaSampleRows = 3

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("failed to load .env file", slog.Any("error", err))
	}

	cfg, err := config.LoadFromEnv("querywright-api")
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg, os.Stdout)
	catalogDB, err := catalogpostgres.Open(context.Background(), cfg.Catalog)
	if err != nil {
		logger.Error("failed to open catalog db", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() { _ = catalogDB.Close() }()
	catalogRepo := catalogpostgres.NewRepository(catalogDB)

	resolver, err := credentials.NewFernetResolver(cfg.Encryption.Keys, cfg.Encryption.TokenTTL)
	if err != nil {
		logger.Error("failed to initialize credential resolver", slog.Any("error", err))
		os.Exit(1)
	}

	completionClient, err := completion.NewClient(completion.Config{
		BaseURL: cfg.AI.BaseURL,
		APIKey:  cfg.AI.APIKey,
		Timeout: cfg.AI.Timeout,
	})
	if err != nil {
		logger.Error("failed to initialize completion client", slog.Any("error", err))
		os.Exit(1)
	}

	var composer nl2sql.Composer = answer.PassthroughComposer{}
	if cfg.Answer.ExecuteSQL {
		var answerer nl2sql.Completer
		if cfg.AI.NLAnswerEnabled {
			answerer = completionClient
		}
		composer = answer.NewExecutingComposer(nil, answer.Config{
			RowLimit:         cfg.Answer.RowLimit,
			ExecutionTimeout: cfg.Answer.ExecutionTimeout,
			NLAnswerModel:    cfg.AI.NLAnswerModel,
		}, answerer, logger)
	}

	readiness := []api.ReadinessCheck{api.CheckCatalog(catalogRepo)}
	var archiver nl2sql.Archiver
	var datasets api.DatasetStore
	if cfg.Archive.Enabled {
		store, err := s3store.New(context.Background(), cfg.Archive)
		if err != nil {
			logger.Error("failed to initialize archive store", slog.Any("error", err))
			os.Exit(1)
		}
		generationArchive := archive.New(store)
		archiver = generationArchive
		datasets = generationArchive
		readiness = append(readiness, api.CheckObjectStore(store))
	}

	generator, err := nl2sql.NewFineTunedGenerator(nl2sql.FineTunedConfig{
		Model:       cfg.AI.Model,
		Temperature: cfg.AI.Temperature,
		Retry: nl2sql.RetryPolicy{
			MaxAttempts:         cfg.Retry.MaxAttempts,
			InitialInterval:     cfg.Retry.InitialInterval,
			MaxInterval:         cfg.Retry.MaxInterval,
			Multiplier:          cfg.Retry.Multiplier,
			RandomizationFactor: cfg.Retry.RandomizationFactor,
		},
	}, nl2sql.FineTunedDependencies{
		Credentials: resolver,
		Schema:      schema.NewIntrospector(schemaSampleRows),
		Completer:   completionClient,
		Composer:    composer,
		Archiver:    archiver,
		Logger:      logger,
	})
	if err != nil {
		logger.Error("failed to initialize generator", slog.Any("error", err))
		os.Exit(1)
	}
	registry, err := nl2sql.NewRegistry(cfg.AI.DefaultStrategy, generator)
	if err != nil {
		logger.Error("failed to initialize strategy registry", slog.Any("error", err))
		os.Exit(1)
	}

	deps := api.Dependencies{
		Logger:            logger,
		Catalog:           catalogRepo,
		Generators:        registry,
		Credentials:       resolver,
		Datasets:          datasets,
		Readiness:         api.CombineReadinessChecks(readiness...),
		DependencyTimeout: time.Second,
	}
	if cfg.Auth.Required {
		validator, err := auth.NewStaticAPIKeyValidator(cfg.Auth.StaticKeys)
		if err != nil {
			logger.Error("failed to parse static auth keys", slog.Any("error", err))
			os.Exit(1)
		}
		logger.Info("api key auth enabled", slog.Int("keys", validator.Len()))
		deps.AuthMiddleware = auth.Middleware(logger, validator)
	}

	handler := api.NewHandler(cfg, deps)
	server := &http.Server{
		Addr:         cfg.HTTP.Address,
		Handler:      handler,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("starting api server",
			slog.String("addr", cfg.HTTP.Address),
			slog.String("model", cfg.AI.Model),
			slog.Any("strategies", registry.Names()),
			slog.Bool("execute_sql", cfg.Answer.ExecuteSQL),
			slog.Bool("archive", cfg.Archive.Enabled),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("api server failed", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger.Info("shutting down api server")
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", slog.Any("error", err))
		_ = server.Close()
		os.Exit(1)
	}
}
