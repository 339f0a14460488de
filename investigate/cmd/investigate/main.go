package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/redis/go-redis/v9"
	"github.com/telhawk-systems/telhawk-investigate/common/audit"
	"github.com/telhawk-systems/telhawk-investigate/common/logging"
	natsclient "github.com/telhawk-systems/telhawk-investigate/common/messaging/nats"
	"github.com/telhawk-systems/telhawk-investigate/investigate/internal/accesslog"
	"github.com/telhawk-systems/telhawk-investigate/investigate/internal/auth"
	"github.com/telhawk-systems/telhawk-investigate/investigate/internal/config"
	"github.com/telhawk-systems/telhawk-investigate/investigate/internal/correlation"
	"github.com/telhawk-systems/telhawk-investigate/investigate/internal/geoip"
	"github.com/telhawk-systems/telhawk-investigate/investigate/internal/graph"
	"github.com/telhawk-systems/telhawk-investigate/investigate/internal/handlers"
	"github.com/telhawk-systems/telhawk-investigate/investigate/internal/metrics"
	investnats "github.com/telhawk-systems/telhawk-investigate/investigate/internal/nats"
	"github.com/telhawk-systems/telhawk-investigate/investigate/internal/repository"
	"github.com/telhawk-systems/telhawk-investigate/investigate/internal/server"
	"github.com/telhawk-systems/telhawk-investigate/investigate/internal/service"
	"github.com/telhawk-systems/telhawk-investigate/investigate/internal/timeline"
)

func main() {
	// Parse command-line flags
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := logging.New(logging.ParseLevel(cfg.Logging.Level), cfg.Logging.Format)
	logging.SetDefault(logger)
	ctx := context.Background()

	connString := cfg.Database.Postgres.ConnString()

	// Run database migrations
	logger.Info("running database migrations")
	m, err := migrate.New(cfg.Database.Postgres.MigrationsPath, connString)
	if err != nil {
		fatal(logger, "failed to initialize migrations", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		fatal(logger, "failed to run migrations", err)
	}
	logger.Info("database migrations completed")

	// Initialize repository
	repo, err := repository.NewPostgresRepository(ctx, connString)
	if err != nil {
		fatal(logger, "failed to connect to PostgreSQL", err)
	}
	defer repo.Close()
	records := repo.Records()

	locator := newLocator(ctx, cfg, logger)
	accessLogs := newAccessLogStore(ctx, cfg, logger)
	signer := audit.NewChainSigner(cfg.Auth.AuditKey)

	corr := correlation.NewEngine(repo, records, locator, signer, correlationConfig(cfg.Correlation), logger,
		correlation.WithObserver(metrics.Observer{}))
	tl := timeline.NewEngine(timeline.Sources{
		Reports:     records,
		Evidence:    records,
		Escalations: records,
		Risk:        records,
		AccessLogs:  accessLogs,
		Locator:     locator,
	}, timelineConfig(cfg.Timeline), logger, timeline.WithObserver(metrics.Observer{}))

	var opts []service.Option
	if projector := newProjector(ctx, cfg, logger); projector != nil {
		defer projector.Close(context.Background())
		opts = append(opts, service.WithProjector(projector))
	}

	// NATS is optional; without it lifecycle events are not published and
	// link requests are only accepted over HTTP.
	var natsClient *natsclient.Client
	if cfg.NATS.Enabled {
		natsCfg := natsclient.DefaultConfig()
		natsCfg.URL = cfg.NATS.URL
		natsCfg.MaxReconnects = cfg.NATS.MaxReconnects
		natsCfg.ReconnectWait = cfg.NATS.ReconnectWait
		natsClient, err = natsclient.NewClient(natsCfg, logger.Logger)
		if err != nil {
			logger.Warn("NATS unavailable, continuing without events", logging.Error(err))
			natsClient = nil
		} else {
			opts = append(opts, service.WithPublisher(investnats.NewPublisher(natsClient)))
		}
	}

	svc := service.NewService(repo, records, corr, tl, signer, logger, opts...)

	var natsHandler *investnats.Handler
	if natsClient != nil {
		natsHandler = investnats.NewHandler(natsClient, svc, logger)
		if err := natsHandler.Start(ctx); err != nil {
			fatal(logger, "failed to start NATS handler", err)
		}
	}

	// Setup HTTP router
	handler := handlers.NewHandler(svc, logger)
	router := server.NewRouter(handler,
		auth.Middleware(auth.NewTokenValidator(cfg.Auth.JWTSecret), cfg.Auth.Required, logger),
		accesslog.Middleware(accessLogs, logger),
	)

	// Create HTTP server
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start server in goroutine
	go func() {
		logger.Info("investigate service listening", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			fatal(logger, "server error", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if natsHandler != nil {
		_ = natsHandler.Stop()
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", logging.Error(err))
	}
	if natsClient != nil {
		if err := natsClient.Drain(); err != nil {
			logger.Warn("failed to drain NATS connection", logging.Error(err))
		}
	}

	logger.Info("server stopped gracefully")
}

func fatal(logger *logging.Logger, msg string, err error) {
	logger.Error(msg, logging.Error(err))
	os.Exit(1)
}

// newLocator fronts the HTTP Geo-IP API with the Redis cache when Redis is
// reachable.
func newLocator(ctx context.Context, cfg *config.Config, logger *logging.Logger) geoip.Locator {
	var locator geoip.Locator = geoip.NewHTTPLocator(cfg.GeoIP.BaseURL, cfg.GeoIP.Timeout)
	if !cfg.Redis.Enabled {
		return locator
	}

	opts, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		logger.Warn("invalid redis url, geoip cache disabled", logging.Error(err))
		return locator
	}
	client := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Warn("redis unavailable, geoip cache disabled", logging.Error(err))
		_ = client.Close()
		return locator
	}
	return geoip.NewCachedLocator(locator, client, cfg.Redis.CacheTTL, logger.Component("geoip").Logger)
}

// accessLogStore both records this service's own requests and answers
// timeline queries.
type accessLogStore interface {
	accesslog.Recorder
	timeline.AccessLogSource
}

func newAccessLogStore(ctx context.Context, cfg *config.Config, logger *logging.Logger) accessLogStore {
	if !cfg.OpenSearch.Enabled {
		logger.Info("opensearch disabled, keeping access logs in memory")
		return accesslog.NewMemoryStore()
	}
	store, err := accesslog.NewOpenSearchStore(accesslog.Config{
		URL:      cfg.OpenSearch.URL,
		Username: cfg.OpenSearch.Username,
		Password: cfg.OpenSearch.Password,
		Insecure: cfg.OpenSearch.Insecure,
		Index:    cfg.OpenSearch.Index,
	})
	if err != nil {
		fatal(logger, "failed to create OpenSearch client", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := store.Ping(pingCtx); err != nil {
		logger.Warn("opensearch not reachable yet, access-log events may be missing", logging.Error(err))
		return store
	}
	if err := store.EnsureTemplate(pingCtx); err != nil {
		logger.Warn("failed to install access-log index template", logging.Error(err))
	}
	return store
}

func newProjector(ctx context.Context, cfg *config.Config, logger *logging.Logger) *graph.Projector {
	if !cfg.Neo4j.Enabled {
		return nil
	}
	client, err := graph.NewNeo4jClient(ctx, graph.Options{
		URI:      cfg.Neo4j.URI,
		Database: cfg.Neo4j.Database,
		Username: cfg.Neo4j.Username,
		Password: cfg.Neo4j.Password,
	})
	if err != nil {
		logger.Warn("neo4j unavailable, graph projection disabled", logging.Error(err))
		return nil
	}
	return graph.NewProjector(client, logger)
}

func correlationConfig(c config.CorrelationConfig) correlation.Config {
	return correlation.Config{
		SameInvestigationRadiusKm: c.SameInvestigationRadiusKm,
		GeoProximityRadiusKm:      c.GeoProximityRadiusKm,
		TemporalWindow:            c.TemporalWindow,
		MinStrength:               c.MinStrength,
		EvidenceLinkStrength:      c.EvidenceLinkStrength,
		BehavioralValueWeight:     c.BehavioralValueWeight,
		BehavioralFrequencyWeight: c.BehavioralFrequencyWeight,
		BehavioralThreshold:       c.BehavioralThreshold,
		CandidateLimit:            c.CandidateLimit,
		MaxEntities:               c.MaxEntities,
		RiskEntityWeight:          c.RiskEntityWeight,
		RiskEntityCap:             c.RiskEntityCap,
		RiskConnectionWeight:      c.RiskConnectionWeight,
		RiskTemporalWeight:        c.RiskTemporalWeight,
		RiskGeoWeight:             c.RiskGeoWeight,
	}
}

func timelineConfig(c config.TimelineConfig) timeline.Config {
	return timeline.Config{
		CrossEntityWindow: c.CrossEntityWindow,
		AccessLogLimit:    c.AccessLogLimit,
		MaxLinkedEntities: c.MaxLinkedEntities,
		IPTraceOffset:     c.IPTraceOffset,
	}
}
