package registry

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/agentregistry-dev/modelregistry/internal/mcp/deploymentserver"
	"github.com/agentregistry-dev/modelregistry/internal/registry/api"
	v0 "github.com/agentregistry-dev/modelregistry/internal/registry/api/handlers/v0"
	"github.com/agentregistry-dev/modelregistry/internal/registry/api/router"
	"github.com/agentregistry-dev/modelregistry/internal/registry/config"
	internaldb "github.com/agentregistry-dev/modelregistry/internal/registry/database"
	"github.com/agentregistry-dev/modelregistry/internal/registry/importer"
	"github.com/agentregistry-dev/modelregistry/internal/registry/jobs"
	"github.com/agentregistry-dev/modelregistry/internal/registry/monitor"
	"github.com/agentregistry-dev/modelregistry/internal/registry/rollback"
	"github.com/agentregistry-dev/modelregistry/internal/registry/service"
	"github.com/agentregistry-dev/modelregistry/internal/registry/telemetry"
	"github.com/agentregistry-dev/modelregistry/internal/runtime"
	"github.com/agentregistry-dev/modelregistry/internal/version"
	"github.com/agentregistry-dev/modelregistry/pkg/models"
	"github.com/agentregistry-dev/modelregistry/pkg/registry/database"
	"github.com/agentregistry-dev/modelregistry/pkg/types"
)

const (
	connectTimeout  = 10 * time.Second
	startupTimeout  = 2 * time.Minute
	shutdownTimeout = 30 * time.Second
	// resumePageSize bounds each page read while restoring watches
	resumePageSize = 200
)

// App runs the registry until ctx is cancelled or SIGINT/SIGTERM arrives
func App(ctx context.Context, opts ...types.AppOptions) error {
	var options types.AppOptions
	if len(opts) > 0 {
		options = opts[0]
	}

	cfg, err := config.NewConfig()
	if err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}

	logger := options.Logger
	if logger == nil {
		logger, err = NewLogger(cfg.LogLevel, cfg.LogFormat)
		if err != nil {
			return err
		}
		defer func() { _ = logger.Sync() }()
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := openStore(ctx, cfg, options, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.Error("error closing database connection", zap.Error(err))
		} else {
			logger.Info("database connection closed")
		}
	}()

	baseService := service.NewDeploymentManager(db, logger)
	var deployments service.DeploymentService = baseService
	if options.ServiceFactory != nil {
		deployments = options.ServiceFactory(baseService)
	}
	if options.OnServiceCreated != nil {
		options.OnServiceCreated(deployments)
	}

	logger.Info("starting model registry",
		zap.String("version", version.Version),
		zap.String("commit", version.GitCommit),
		zap.String("store", cfg.Store))

	versionInfo := &v0.VersionBody{
		Version:   version.Version,
		GitCommit: version.GitCommit,
		BuildTime: version.BuildDate,
	}

	shutdownTelemetry, metrics, err := telemetry.InitMetrics(cfg.Version)
	if err != nil {
		return fmt.Errorf("failed to initialize metrics: %w", err)
	}
	defer func() {
		if err := shutdownTelemetry(context.Background()); err != nil {
			logger.Error("failed to shutdown telemetry", zap.Error(err))
		}
	}()

	if cfg.SeedFrom != "" {
		seedVersions(ctx, cfg.SeedFrom, deployments, logger)
	}

	substrate := newSubstrate(cfg, deployments, logger)
	if options.SubstrateFactory != nil {
		substrate = options.SubstrateFactory(substrate)
	}

	jobManager := jobs.NewManager()
	defer jobManager.Close()

	rollbackOpts := []rollback.Option{rollback.WithLogger(logger), rollback.WithMetrics(metrics)}
	if options.VersionRegistry != nil {
		rollbackOpts = append(rollbackOpts, rollback.WithVersionRegistry(options.VersionRegistry))
	}
	orchestrator := rollback.NewOrchestrator(deployments, db, substrate, jobManager, cfg.Rollback, rollbackOpts...)
	mon := monitor.New(deployments, orchestrator, cfg.Monitor,
		monitor.WithLogger(logger),
		monitor.WithMetrics(metrics),
	)
	orchestrator.SetWatcher(mon)

	if cfg.ResumeOnStartup {
		resume(ctx, orchestrator, mon, deployments, logger)
	}

	baseServer := api.NewServer(cfg, router.Services{
		Deployments: deployments,
		Rollbacks:   orchestrator,
		Monitor:     mon,
	}, metrics, versionInfo, logger)

	var server types.Server = baseServer
	if options.HTTPServerFactory != nil {
		server = options.HTTPServerFactory(baseServer)
	}
	if options.OnHTTPServerCreated != nil {
		options.OnHTTPServerCreated(server)
	}

	var mcpHTTPServer *http.Server
	if cfg.MCPPort > 0 {
		mcpHTTPServer = newMCPServer(cfg.MCPPort, deploymentserver.NewServer(deployments, orchestrator, mon))
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("failed to start server: %w", err)
		}
		return nil
	})
	if mcpHTTPServer != nil {
		g.Go(func() error {
			logger.Info("MCP HTTP server starting", zap.String("address", mcpHTTPServer.Addr))
			if err := mcpHTTPServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("failed to start MCP server: %w", err)
			}
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down server")

		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		var errs []error
		if err := server.Shutdown(sctx); err != nil {
			errs = append(errs, fmt.Errorf("server forced to shutdown: %w", err))
		}
		if mcpHTTPServer != nil {
			if err := mcpHTTPServer.Shutdown(sctx); err != nil {
				errs = append(errs, fmt.Errorf("MCP server forced to shutdown: %w", err))
			}
		}
		mon.Shutdown()
		if err := orchestrator.Shutdown(sctx); err != nil {
			errs = append(errs, fmt.Errorf("rollbacks did not stop: %w", err))
		}
		return errors.Join(errs...)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("server exiting")
	return nil
}

// openStore selects the deployment store. DatabaseFactory, when set, wraps
// or replaces the configured store.
func openStore(ctx context.Context, cfg *config.Config, options types.AppOptions, logger *zap.Logger) (database.Database, error) {
	var base database.Database
	switch cfg.Store {
	case config.StoreMemory:
		logger.Warn("using the in-memory store; state is lost on restart")
		base = internaldb.NewMemory()
	default:
		cctx, cancel := context.WithTimeout(ctx, connectTimeout)
		defer cancel()
		pg, err := internaldb.NewPostgreSQL(cctx, cfg.DatabaseURL, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
		}
		base = pg
	}

	if options.DatabaseFactory == nil {
		return base, nil
	}
	db, err := options.DatabaseFactory(ctx, cfg.DatabaseURL, base, logger)
	if err != nil {
		if err := base.Close(); err != nil {
			logger.Error("error closing base database connection", zap.Error(err))
		}
		return nil, fmt.Errorf("failed to create extended database: %w", err)
	}
	return db, nil
}

// seedVersions imports the version catalog named by SEED_FROM. Failures are
// logged; the registry starts without the missing versions.
func seedVersions(ctx context.Context, source string, catalog importer.VersionCatalog, logger *zap.Logger) {
	ctx, cancel := context.WithTimeout(ctx, startupTimeout)
	defer cancel()

	logger.Info("importing model versions", zap.String("source", source))
	if _, err := importer.NewService(catalog, logger).ImportFromPath(ctx, source); err != nil {
		logger.Warn("failed to import model versions", zap.String("source", source), zap.Error(err))
	}
}

// newMCPServer serves the deployment MCP tools over streamable HTTP
func newMCPServer(port uint16, mcpServer *mcp.Server) *http.Server {
	handler := mcp.NewStreamableHTTPHandler(func(_ *http.Request) *mcp.Server {
		return mcpServer
	}, &mcp.StreamableHTTPOptions{})

	return &http.Server{
		Addr:              ":" + strconv.Itoa(int(port)),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// newSubstrate returns the in-process runtime, probed over HTTP when
// HEALTH_PROBE=http
func newSubstrate(cfg *config.Config, deployments runtime.DeploymentLookup, logger *zap.Logger) runtime.Substrate {
	substrate := runtime.NewLocalRuntime(logger).Substrate()
	if cfg.HealthProbe == config.ProbeHTTP {
		substrate.Health = runtime.NewHTTPProbe(deployments, nil)
	}
	return substrate
}

// resume fails rollbacks a previous process left in flight and restarts the
// watches of every active deployment
func resume(ctx context.Context, orchestrator *rollback.Orchestrator, mon *monitor.Monitor, deployments service.DeploymentService, logger *zap.Logger) {
	ctx, cancel := context.WithTimeout(ctx, startupTimeout)
	defer cancel()

	recovered, err := orchestrator.RecoverInterrupted(ctx)
	if err != nil {
		logger.Warn("failed to recover interrupted rollbacks", zap.Error(err))
	} else if recovered > 0 {
		logger.Info("marked interrupted rollbacks as failed", zap.Int("count", recovered))
	}

	active := models.DeploymentStatusActive
	watched := 0
	for offset := 0; ; offset += resumePageSize {
		page, err := deployments.ListDeployments(ctx, &models.DeploymentFilter{Status: &active}, resumePageSize, offset)
		if err != nil {
			logger.Warn("failed to list active deployments; monitoring not resumed", zap.Error(err))
			return
		}
		for _, d := range page {
			if err := mon.StartMonitoring(ctx, d.ID); err != nil {
				logger.Warn("failed to resume monitoring", zap.String("deployment_id", d.ID), zap.Error(err))
				continue
			}
			watched++
		}
		if len(page) < resumePageSize {
			break
		}
	}
	logger.Info("resumed monitoring", zap.Int("deployments", watched))
}
