package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nlquery/nlquery/internal/api"
	"github.com/nlquery/nlquery/internal/config"
	"github.com/nlquery/nlquery/internal/history"
	"github.com/nlquery/nlquery/internal/nl2sql"
	"github.com/nlquery/nlquery/internal/observability"
	"github.com/nlquery/nlquery/internal/pipeline"
	"github.com/nlquery/nlquery/internal/query"
	"github.com/nlquery/nlquery/internal/query/duckdb"
	"github.com/nlquery/nlquery/internal/query/postgres"
	"github.com/nlquery/nlquery/internal/query/sqlexec"
	"github.com/nlquery/nlquery/internal/schema"
	"github.com/nlquery/nlquery/internal/sqlguard"
	"github.com/nlquery/nlquery/internal/storage"
	s3store "github.com/nlquery/nlquery/internal/storage/s3"
)

func main() {
	if err := config.LoadDotEnv(); err != nil {
		slog.Error("failed to load env file", slog.Any("error", err))
		os.Exit(1)
	}
	cfg, err := config.LoadFromEnv("nlquery-api")
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg, os.Stdout)
	desc, err := schema.Load(cfg.Schema.File)
	if err != nil {
		logger.Error("failed to load schema", slog.Any("error", err))
		os.Exit(1)
	}

	db, closeDB, err := openDatabase(context.Background(), cfg)
	if err != nil {
		logger.Error("failed to open database", slog.String("driver", cfg.Database.Driver), slog.Any("error", err))
		os.Exit(1)
	}
	defer closeDB()

	executor, err := sqlexec.New(db, sqlexec.Config{
		Timeout:  cfg.Database.QueryTimeout,
		RowLimit: cfg.Database.RowLimit,
	})
	if err != nil {
		logger.Error("failed to initialize query executor", slog.Any("error", err))
		os.Exit(1)
	}

	completer, info, err := nl2sql.NewCompleter(context.Background(), nl2sql.ProviderConfig{
		Provider:    cfg.AI.Provider,
		BaseURL:     cfg.AI.BaseURL,
		APIKey:      cfg.AI.APIKey,
		Model:       cfg.AI.Model,
		Temperature: cfg.AI.Temperature,
		Timeout:     cfg.AI.Timeout,
	})
	if err != nil {
		logger.Error("failed to initialize llm provider", slog.Any("error", err))
		os.Exit(1)
	}
	translator, err := nl2sql.NewTranslator(completer, info)
	if err != nil {
		logger.Error("failed to initialize query translator", slog.Any("error", err))
		os.Exit(1)
	}

	policy := sqlguard.NewReadOnlyPolicy()
	sessions := history.NewRegistry(history.RegistryConfig{
		Capacity:    cfg.Pipeline.HistoryCapacity,
		MaxSessions: cfg.Pipeline.MaxSessions,
		OnChange:    observability.SetHistoryExchanges,
	})
	assistant, err := pipeline.New(pipeline.Config{
		MaxQuestionLength: cfg.Pipeline.MaxQuestionLength,
		Summarize:         cfg.Pipeline.Summarize,
		FallbackAnswer:    cfg.Pipeline.FallbackAnswer,
		RowLimit:          cfg.Database.RowLimit,
	}, pipeline.Dependencies{
		Schema:      desc,
		Translator:  translator,
		Policy:      policy,
		Engine:      executor,
		Synthesizer: pipeline.NewSynthesizer(completer, cfg.Pipeline.FallbackAnswer, logger),
		History:     sessions,
		Logger:      logger,
	})
	if err != nil {
		logger.Error("failed to initialize pipeline", slog.Any("error", err))
		os.Exit(1)
	}

	handler := api.NewHandler(cfg, api.Dependencies{
		Logger:            logger,
		Readiness:         api.CheckDatabase(executor),
		DependencyTimeout: time.Second,
		Pipeline:          assistant,
		Policy:            policy,
		Sessions:          sessions,
	})
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
			slog.String("driver", cfg.Database.Driver),
			slog.String("provider", info.Provider),
			slog.String("model", info.Model),
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
		closeDB()
		os.Exit(1)
	}
}

func openDatabase(ctx context.Context, cfg config.Config) (*sql.DB, func(), error) {
	pool := query.PoolConfig{
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxIdleTime: cfg.Database.ConnMaxIdleTime,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	}

	switch cfg.Database.Driver {
	case config.DriverPostgres:
		db, err := postgres.Open(ctx, postgres.Config{DSN: cfg.Database.DSN, Pool: pool, ReadOnly: true})
		if err != nil {
			return nil, nil, err
		}
		return db, func() { _ = db.Close() }, nil
	case config.DriverDuckDB:
		tables, err := storage.ParseDatasetTables(cfg.Dataset.Tables)
		if err != nil {
			return nil, nil, err
		}
		var store storage.ObjectStore
		if len(tables) > 0 {
			store, err = s3store.New(s3store.Config{
				Endpoint:        cfg.ObjectStore.Endpoint,
				Region:          cfg.ObjectStore.Region,
				Bucket:          cfg.ObjectStore.Bucket,
				AccessKeyID:     cfg.ObjectStore.AccessKeyID,
				SecretAccessKey: cfg.ObjectStore.SecretAccessKey,
				UseSSL:          cfg.ObjectStore.UseSSL,
				Prefix:          cfg.ObjectStore.Prefix,
			})
			if err != nil {
				return nil, nil, fmt.Errorf("initialize object store: %w", err)
			}
		}
		database, err := duckdb.Open(ctx, duckdb.Config{
			Path:     cfg.Database.DSN,
			Pool:     pool,
			Store:    store,
			Tables:   tables,
			ReadOnly: true,
		})
		if err != nil {
			return nil, nil, err
		}
		return database.DB, func() { _ = database.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unsupported database driver %q", cfg.Database.Driver)
	}
}
