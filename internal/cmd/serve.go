package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/fulmenhq/gofulmen/signals"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/hookgate/hookgate/internal/config"
	"github.com/hookgate/hookgate/internal/core/events"
	"github.com/hookgate/hookgate/internal/core/pipeline"
	"github.com/hookgate/hookgate/internal/core/ratelimit"
	"github.com/hookgate/hookgate/internal/core/signature"
	"github.com/hookgate/hookgate/internal/core/store"
	errwrap "github.com/hookgate/hookgate/internal/errors"
	"github.com/hookgate/hookgate/internal/integrations"
	"github.com/hookgate/hookgate/internal/metrics"
	"github.com/hookgate/hookgate/internal/observability"
	"github.com/hookgate/hookgate/internal/server"
	"github.com/hookgate/hookgate/internal/server/handlers"
)

var (
	serverPort int
	serverHost string
)

// webhookHealth reports the pipeline error rate as a health check.
func webhookHealth(recorder *metrics.Recorder) handlers.CheckFunc {
	return func(ctx context.Context) error {
		summary := recorder.Summary()
		switch summary.Health {
		case metrics.HealthUnhealthy:
			return fmt.Errorf("webhook error rate %.2f%%", summary.ErrorRate)
		case metrics.HealthDegraded:
			return &handlers.DegradedError{Reason: fmt.Sprintf("webhook error rate %.2f%%", summary.ErrorRate)}
		}
		return nil
	}
}

// openServeStore opens the integration store for serve. On failure it logs a
// warning and returns nil: the server then runs health and version only.
func openServeStore(ctx context.Context, cfg *config.Config, logger observability.Logger) *store.Store {
	db, err := openStore(ctx, cfg)
	if err != nil {
		logger.Warn("Integration store unavailable, webhook routes disabled",
			zap.String("driver", cfg.Store.Driver),
			zap.Error(errwrap.WrapDatabaseError(ctx, err, "store initialization failed")))
		return nil
	}
	return db
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the webhook server",
	Long: `Start the webhook server with graceful shutdown support.

Signal Handling:
  • Ctrl+C (SIGINT) or SIGTERM: Graceful shutdown
  • Ctrl+C twice within 2s: Force quit
  • SIGHUP: Re-read and validate the config file (restart to apply)

When the integration store cannot be opened the server still starts, serving
health, version and metrics without the webhook routes.

On shutdown the server drains in-flight requests, stops background sweepers,
closes the event bus and the store, flushes traces, then flushes logs.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		observability.InitServerLogger(config.AppName, cfg.Logging.Level, cfg.Logging.Environment, config.AppName)
		logger := observability.ServerLogger

		recorder := metrics.NewRecorder()
		recorder.Logger = logger
		recorder.IntegrationTTL = cfg.Integrations.MetricsTTL
		if cfg.Metrics.Enabled {
			recorder.Prom = metrics.NewCollectors()
			collectors := append(metrics.AppCollectors(), recorder.Prom.Collectors()...)
			if err := observability.InitMetrics(collectors...); err != nil {
				logger.Error("Failed to initialize metrics", zap.Error(err))
				return errwrap.WrapInternal(cmd.Context(), err, "metrics initialization failed")
			}
		}

		var shutdownTracing func(context.Context) error
		if cfg.Tracing.Enabled {
			shutdownTracing, err = observability.InitTracing(observability.TracingOptions{
				ServiceName: config.AppName,
				Version:     versionInfo.Version,
				Exporter:    cfg.Tracing.Exporter,
				SampleRatio: cfg.Tracing.SampleRatio,
			})
			if err != nil {
				logger.Error("Failed to initialize tracing", zap.Error(err))
				return errwrap.WrapConfigInvalid(cmd.Context(), err, "tracing initialization failed")
			}
		}

		ctx := context.Background()

		db := openServeStore(ctx, cfg, logger)
		var (
			finder    store.Finder
			incidents events.IncidentStore
		)
		if db != nil {
			finder, incidents = db, db
		}

		limiter := ratelimit.NewLimiter(nil, cfg.Integrations.RateLimit)
		limiter.Logger = logger
		limiter.Init(ctx)
		recorder.Init(ctx)

		bus := events.NewBus(cfg.Events.BufferSize, events.NewWatermillLogger(logger))
		processor := events.NewIncidentProcessor(incidents, bus)
		processor.Topic = cfg.Events.Topic
		processor.Logger = logger

		consumer := events.NewConsumer(bus, cfg.Events.Topic, nil)
		consumer.Logger = logger
		if err := consumer.Start(ctx); err != nil {
			return errwrap.WrapInternal(cmd.Context(), err, "event consumer failed to start")
		}

		verifier := signature.NewVerifier()
		if cfg.Integrations.SignatureMaxAge > 0 {
			verifier.MaxAge = cfg.Integrations.SignatureMaxAge
		}

		hm := handlers.NewHealthManager(versionInfo.Version)
		if db != nil {
			hm.RegisterChecker("store", handlers.CheckFunc(db.Ping))
		}
		hm.RegisterChecker("webhooks", webhookHealth(recorder))

		srv := server.New(server.Options{
			Host:         cfg.Server.Host,
			Port:         cfg.Server.Port,
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
			IdleTimeout:  cfg.Server.IdleTimeout,
			Health:       hm,
			Integrations: integrations.Deps{
				Deps: pipeline.Deps{
					Integrations: finder,
					Limiter:      limiter,
					Verifier:     verifier,
					Metrics:      recorder,
					Logger:       logger,
					Settings: pipeline.Settings{
						VerifySignatures: cfg.Integrations.VerifySignatures,
						RateLimitEnabled: cfg.Integrations.RateLimitEnabled,
						MaxBodyBytes:     cfg.Integrations.MaxBodyBytes,
						Timeout:          cfg.Integrations.Timeout,
					},
				},
				Events: processor,
			},
			MetricsEnabled: cfg.Metrics.Enabled,
			AdminToken:     os.Getenv(config.EnvPrefix + "_ADMIN_TOKEN"),
		})

		logger.Info("Initializing server",
			zap.String("service", config.AppName),
			zap.String("version", versionInfo.Version),
			zap.String("host", cfg.Server.Host),
			zap.Int("port", cfg.Server.Port),
			zap.String("store", db.Driver()),
			zap.Bool("tracing", cfg.Tracing.Enabled),
			zap.Bool("verify_signatures", cfg.Integrations.VerifySignatures),
			zap.Bool("rate_limit", cfg.Integrations.RateLimitEnabled))

		shutdownTimeout := cfg.Server.ShutdownTimeout
		if shutdownTimeout == 0 {
			shutdownTimeout = 10 * time.Second
		}

		// Shutdown handlers run LIFO.
		signals.OnShutdown(func(ctx context.Context) error {
			logger.Info("Flushing logger...")
			if err := logger.Sync(); err != nil {
				logger.Warn("Logger sync returned error (may be benign)", zap.Error(err))
			}
			return nil
		})

		if shutdownTracing != nil {
			signals.OnShutdown(func(ctx context.Context) error {
				if err := shutdownTracing(ctx); err != nil {
					logger.Warn("Tracer provider shutdown failed", zap.Error(err))
				}
				return nil
			})
		}

		signals.OnShutdown(func(ctx context.Context) error {
			if err := db.Close(); err != nil {
				logger.Warn("Store close failed", zap.Error(err))
			}
			return nil
		})

		signals.OnShutdown(func(ctx context.Context) error {
			consumer.Shutdown()
			if err := bus.Close(); err != nil {
				logger.Warn("Event bus close failed", zap.Error(err))
			}
			limiter.Shutdown()
			recorder.Shutdown()
			return nil
		})

		signals.OnShutdown(func(ctx context.Context) error {
			logger.Info("Shutting down HTTP server...")
			shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
			defer cancel()

			if err := srv.Shutdown(shutdownCtx); err != nil {
				return errwrap.WrapInternal(ctx, err, "server shutdown failed")
			}

			logger.Info("HTTP server stopped gracefully")
			return nil
		})

		signals.OnReload(func(ctx context.Context) error {
			logger.Info("Received SIGHUP: attempting config reload")

			if err := viper.ReadInConfig(); err != nil {
				if _, ok := err.(viper.ConfigFileNotFoundError); ok {
					logger.Info("No config file found - using defaults and environment variables")
					return nil
				}
				logger.Error("Failed to reload config file",
					zap.String("file", viper.ConfigFileUsed()),
					zap.Error(err))
				return errwrap.WrapConfigInvalid(ctx, err, "config reload failed")
			}

			if _, err := loadConfig(); err != nil {
				return errwrap.WrapConfigInvalid(ctx, err, "config reload failed")
			}

			// Running components keep their settings until restart.
			logger.Info("Configuration file validated; restart to apply changes",
				zap.String("file", viper.ConfigFileUsed()))
			return nil
		})

		if err := signals.EnableDoubleTap(signals.DoubleTapConfig{
			Window:  2 * time.Second,
			Message: "Press Ctrl+C again within 2 seconds to force quit",
		}); err != nil {
			logger.Warn("Failed to enable double-tap force quit", zap.Error(err))
		}

		metrics.SetServerStartTime(time.Now().Unix())

		errChan := make(chan error, 1)
		go func() {
			if err := srv.Start(); err != nil {
				errChan <- err
			}
		}()

		go func() {
			if err := signals.Listen(cmd.Context()); err != nil {
				logger.Error("Signal handler error", zap.Error(err))
				errChan <- err
			}
		}()

		if err := <-errChan; err != nil {
			return errwrap.WrapInternal(cmd.Context(), err, "server error")
		}

		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serverHost, "host", "localhost", "server host")
	serveCmd.Flags().IntVarP(&serverPort, "port", "p", 8080, "server port")

	_ = viper.BindPFlag("server.host", serveCmd.Flags().Lookup("host"))
	_ = viper.BindPFlag("server.port", serveCmd.Flags().Lookup("port"))
}
