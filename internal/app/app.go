package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/httplog/v2"
	"github.com/vadimbarashkov/playlist-tracker/internal/adapter/cache"
	"github.com/vadimbarashkov/playlist-tracker/internal/adapter/repository/postgres"
	"github.com/vadimbarashkov/playlist-tracker/internal/adapter/spotify"
	"github.com/vadimbarashkov/playlist-tracker/internal/config"
	"github.com/vadimbarashkov/playlist-tracker/internal/usecase"
	"golang.org/x/sync/errgroup"

	delivery "github.com/vadimbarashkov/playlist-tracker/internal/adapter/delivery/http"
	pg "github.com/vadimbarashkov/playlist-tracker/pkg/postgres"
)

const (
	serviceName     = "playlist-tracker"
	shutdownTimeout = 10 * time.Second
)

func newLogger(env string) *httplog.Logger {
	opts := httplog.Options{
		LogLevel:        slog.LevelDebug,
		Concise:         true,
		RequestHeaders:  false,
		TimeFieldFormat: time.RFC3339,
		Tags: map[string]string{
			"env": env,
		},
		QuietDownRoutes: []string{"/health", "/metrics"},
		QuietDownPeriod: time.Minute,
	}

	if env == config.EnvProd || env == config.EnvStage {
		opts.LogLevel = slog.LevelInfo
		opts.JSON = true
		opts.Concise = false
	}

	return httplog.NewLogger(serviceName, opts)
}

func Run(ctx context.Context, cfg *config.Config) error {
	const op = "app.Run"

	logger := newLogger(cfg.Env)

	if missing := cfg.Missing(); len(missing) > 0 {
		logger.Warn("configuration incomplete", slog.Any("missing", missing))
	}

	version, err := pg.RunMigrations(cfg.MigrationsPath, cfg.Postgres.DSN())
	if err != nil {
		return fmt.Errorf("%s: failed to run migrations: %w", op, err)
	}
	logger.Info("database schema up to date", slog.Uint64("version", uint64(version)))

	db, err := pg.New(
		ctx,
		cfg.Postgres.DSN(),
		pg.WithConnMaxIdleTime(cfg.Postgres.ConnMaxIdleTime),
		pg.WithConnMaxLifetime(cfg.Postgres.ConnMaxLifetime),
		pg.WithMaxIdleConns(cfg.Postgres.MaxIdleConns),
		pg.WithMaxOpenConns(cfg.Postgres.MaxOpenConns),
	)
	if err != nil {
		return fmt.Errorf("%s: failed to connect to database: %w", op, err)
	}
	defer db.Close()

	repo := postgres.NewRepository(db)

	spotifyClient := spotify.New(spotify.Config{
		ClientID:          cfg.Spotify.ClientID,
		ClientSecret:      cfg.Spotify.ClientSecret,
		TokenURL:          cfg.Spotify.TokenURL,
		APIURL:            cfg.Spotify.APIURL,
		Timeout:           cfg.Spotify.Timeout,
		RequestsPerSecond: cfg.Spotify.RequestsPerSecond,
		Burst:             cfg.Spotify.Burst,
	}, logger.Logger.With(slog.String("component", "spotify")))

	linkUseCase := usecase.NewLinkUseCase(repo, spotifyClient, logger.Logger, usecase.LinkConfig{
		BaseURL:        cfg.BaseURL,
		SlugLength:     cfg.Links.SlugLength,
		SlugMaxRetries: cfg.Links.SlugMaxRetries,
	})

	metricsUseCase := usecase.NewMetricsUseCase(repo, usecase.Thresholds{
		Plays:   cfg.Metrics.SuperListenerPlays,
		Minutes: cfg.Metrics.SuperListenerMinutes,
	})

	cachedMetrics := cache.NewMetricsCache(metricsUseCase, cache.Config{
		Enabled: cfg.Cache.Enabled,
		SizeMB:  cfg.Cache.SizeMB,
		TTL:     cfg.Cache.TTL,
	}, logger.Logger)

	overviewUseCase := usecase.NewOverviewUseCase(repo, cachedMetrics, logger.Logger, cfg.Overview.Concurrency)

	router := delivery.NewRouter(logger, delivery.Services{
		Links:         linkUseCase,
		Overview:      overviewUseCase,
		Metrics:       cachedMetrics,
		Store:         repo,
		MissingConfig: cfg.Missing(),
	})

	server := &http.Server{
		Addr:           cfg.HTTPServer.Addr(),
		Handler:        router,
		ReadTimeout:    cfg.HTTPServer.ReadTimeout,
		WriteTimeout:   cfg.HTTPServer.WriteTimeout,
		IdleTimeout:    cfg.HTTPServer.IdleTimeout,
		MaxHeaderBytes: cfg.HTTPServer.MaxHeaderBytes,
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("starting server", slog.String("addr", server.Addr), slog.String("env", cfg.Env))

		var err error

		switch cfg.Env {
		case config.EnvProd:
			err = server.ListenAndServeTLS(cfg.HTTPServer.CertFile, cfg.HTTPServer.KeyFile)
		default:
			err = server.ListenAndServe()
		}

		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("%s: server error occurred: %w", op, err)
		}

		return nil
	})

	g.Go(func() error {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		logger.Info("shutting down server")

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("%s: failed to shutdown server: %w", op, err)
		}

		return nil
	})

	return g.Wait()
}
