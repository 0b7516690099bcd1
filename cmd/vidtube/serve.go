// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/vidtube/vidtube/internal/auth"
	"github.com/vidtube/vidtube/internal/auth/memory"
	"github.com/vidtube/vidtube/internal/auth/postgres"
	"github.com/vidtube/vidtube/internal/config"
	"github.com/vidtube/vidtube/internal/logging"
	"github.com/vidtube/vidtube/internal/observability"
	"github.com/vidtube/vidtube/internal/store"
	"github.com/vidtube/vidtube/internal/web"
	"github.com/vidtube/vidtube/internal/xdg"
)

const serviceName = "vidtube"

// ServeDeps contains injectable dependencies for the serve command.
// All fields with nil values will use their default implementations.
type ServeDeps struct {
	// Connect opens the PostgreSQL pool.
	// Default: store.Connect with store.DefaultConnectOptions
	Connect func(ctx context.Context, url string, logger *slog.Logger) (*pgxpool.Pool, error)

	// Migrate applies pending migrations when store.auto_migrate is set.
	// Default: store.NewMigrator(...).Up
	Migrate func(url string, logger *slog.Logger) error

	// LogWriter receives log output.
	// Default: os.Stderr
	LogWriter io.Writer

	// Ready is called once both listeners are bound.
	Ready func(apiAddr, metricsAddr string)
}

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the user API server",
		Long: `Start the HTTP API for registration, login, token refresh, logout,
password changes and the current-user lookup.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServeWithDeps(ctx, cmd, nil)
		},
	}
	config.RegisterFlags(cmd.Flags())
	return cmd
}

func (d *ServeDeps) withDefaults() *ServeDeps {
	if d == nil {
		d = &ServeDeps{}
	}
	if d.Connect == nil {
		d.Connect = func(ctx context.Context, url string, logger *slog.Logger) (*pgxpool.Pool, error) {
			return store.Connect(ctx, url, store.DefaultConnectOptions(), logger)
		}
	}
	if d.Migrate == nil {
		d.Migrate = migrateUp
	}
	if d.LogWriter == nil {
		d.LogWriter = os.Stderr
	}
	return d
}

// resolveConfigPath prefers --config and falls back to the XDG config file.
func resolveConfigPath(flagValue string) (string, error) {
	if flagValue != "" {
		return flagValue, nil
	}
	return xdg.FindConfigFile()
}

func migrateUp(url string, logger *slog.Logger) error {
	m, err := store.NewMigrator(url, logger)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := m.Close(); closeErr != nil {
			logger.Warn("error closing migrator", "error", closeErr)
		}
	}()
	return m.Up()
}

func runServeWithDeps(ctx context.Context, cmd *cobra.Command, deps *ServeDeps) error {
	deps = deps.withDefaults()

	path, err := resolveConfigPath(configFile)
	if err != nil {
		return err
	}
	cfg, err := config.Load(path, cmd.Flags())
	if err != nil {
		return err
	}

	logger := logging.Setup(serviceName, version, cfg.Log.Format, cfg.Log.Level, deps.LogWriter)
	slog.SetDefault(logger)
	gin.SetMode(gin.ReleaseMode)

	logger.Info("starting vidtube",
		"config_file", path,
		"http_addr", cfg.HTTP.Addr,
		"base_path", cfg.HTTP.BasePath,
		"store_driver", cfg.Store.Driver,
		"uniform_login_errors", cfg.Auth.UniformLoginErrors,
	)

	var (
		users auth.UserRepository
		pool  *pgxpool.Pool
	)
	switch cfg.Store.Driver {
	case config.DriverMemory:
		logger.Warn("using in-memory credential store; accounts are lost on exit")
		users = memory.NewUserRepository()
	default:
		if cfg.Store.AutoMigrate {
			if err := deps.Migrate(cfg.Store.DatabaseURL, logger); err != nil {
				return oops.Code("MIGRATION_FAILED").With("operation", "auto migrate").Wrap(err)
			}
			logger.Info("database migrations applied")
		}
		pool, err = deps.Connect(ctx, cfg.Store.DatabaseURL, logger)
		if err != nil {
			return err
		}
		defer pool.Close()
		users = postgres.NewUserRepository(pool)
		logger.Info("connected to database")
	}

	access, err := auth.NewJWTCodec(auth.UseAccess, cfg.Auth.AccessTokenSecret, cfg.Auth.AccessTokenTTL)
	if err != nil {
		return err
	}
	refresh, err := auth.NewJWTCodec(auth.UseRefresh, cfg.Auth.RefreshTokenSecret, cfg.Auth.RefreshTokenTTL)
	if err != nil {
		return err
	}
	svc, err := auth.NewService(users, auth.NewArgon2idHasher(), access, refresh,
		auth.WithLogger(logger),
		auth.WithUniformLoginErrors(cfg.Auth.UniformLoginErrors),
	)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var ready atomic.Bool
	var failure serverFailure
	var (
		obsServer *observability.Server
		metrics   *observability.Metrics
	)
	if cfg.Metrics.Addr != "" {
		obsServer = observability.NewServer(cfg.Metrics.Addr, logger, func(checkCtx context.Context) error {
			if !ready.Load() {
				return observability.ErrNotReady
			}
			if pool == nil {
				return nil
			}
			return pool.Ping(checkCtx)
		})
		metrics = obsServer.Metrics()
		obsErrChan, err := obsServer.Start()
		if err != nil {
			return oops.Code("OBSERVABILITY_START_FAILED").Wrap(err)
		}
		go monitorServerErrors(ctx, cancel, logger, obsErrChan, "observability", &failure)
	}

	apiServer, err := web.NewServer(svc, web.Config{
		Addr:       cfg.HTTP.Addr,
		BasePath:   cfg.HTTP.BasePath,
		CORSOrigin: cfg.HTTP.CORSOrigin,
		Cookie: web.CookieConfig{
			Secure:   cfg.Cookie.Secure,
			SameSite: cfg.Cookie.SameSiteMode(),
			Domain:   cfg.Cookie.Domain,
			Path:     cfg.Cookie.Path,
		},
		Logger:  logger,
		Metrics: metrics,
	})
	if err != nil {
		stopServers(logger, cfg.HTTP.ShutdownTimeout, nil, obsServer)
		return err
	}
	apiErrChan, err := apiServer.Start()
	if err != nil {
		stopServers(logger, cfg.HTTP.ShutdownTimeout, nil, obsServer)
		return oops.Code("API_START_FAILED").Wrap(err)
	}
	go monitorServerErrors(ctx, cancel, logger, apiErrChan, "api", &failure)

	ready.Store(true)
	cmd.Println("VidTube API started")
	metricsAddr := ""
	if obsServer != nil {
		metricsAddr = obsServer.Addr()
	}
	logger.Info("vidtube ready", "api_addr", apiServer.Addr(), "metrics_addr", metricsAddr)
	if deps.Ready != nil {
		deps.Ready(apiServer.Addr(), metricsAddr)
	}

	<-ctx.Done()
	logger.Info("shutting down...")
	ready.Store(false)
	stopServers(logger, cfg.HTTP.ShutdownTimeout, apiServer, obsServer)
	if err := failure.Err(); err != nil {
		logger.Error("shutdown after server failure", "error", err)
		return err
	}
	logger.Info("shutdown complete")
	return nil
}

// stopServers stops the API before the observability server so health checks
// keep answering while requests drain.
func stopServers(logger *slog.Logger, timeout time.Duration, api *web.Server, obs *observability.Server) {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if api != nil {
		if err := api.Stop(shutdownCtx); err != nil {
			logger.Warn("error stopping api server", "error", err)
		}
	}
	if obs != nil {
		if err := obs.Stop(shutdownCtx); err != nil {
			logger.Warn("error stopping observability server", "error", err)
		}
	}
}

// serverFailure holds the first runtime error reported by any listener.
type serverFailure struct {
	mu  sync.Mutex
	err error
}

func (f *serverFailure) record(name string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err == nil {
		f.err = oops.Code("SERVER_FAILED").With("server", name).Wrapf(err, "%s server failed", name)
	}
}

// Err returns the first recorded failure, or nil after a clean shutdown.
func (f *serverFailure) Err() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err
}

// monitorServerErrors records a runtime server error and cancels ctx.
func monitorServerErrors(ctx context.Context, cancel context.CancelFunc, logger *slog.Logger, errCh <-chan error, name string, failure *serverFailure) {
	select {
	case err, ok := <-errCh:
		if ok && err != nil {
			logger.Error("server failed", "server", name, "error", err)
			failure.record(name, err)
			cancel()
		}
	case <-ctx.Done():
	}
}
