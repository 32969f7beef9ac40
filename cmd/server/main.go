package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/pesio-ai/be-ai-governance/internal/client"
	"github.com/pesio-ai/be-ai-governance/internal/common/database"
	"github.com/pesio-ai/be-ai-governance/internal/common/logger"
	"github.com/pesio-ai/be-ai-governance/internal/common/middleware"
	"github.com/pesio-ai/be-ai-governance/internal/config"
	"github.com/pesio-ai/be-ai-governance/internal/governance"
	"github.com/pesio-ai/be-ai-governance/internal/handler"
	"github.com/pesio-ai/be-ai-governance/internal/metrics"
	"github.com/pesio-ai/be-ai-governance/internal/repository"
	"github.com/pesio-ai/be-ai-governance/internal/repository/memory"
	"github.com/pesio-ai/be-ai-governance/internal/service"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New(logger.Config{
		Level:       cfg.Log.Level,
		Environment: cfg.Service.Environment,
		ServiceName: cfg.Service.Name,
		Version:     cfg.Service.Version,
		FilePath:    cfg.Log.File,
	})

	log.Info().
		Str("service", cfg.Service.Name).
		Str("version", cfg.Service.Version).
		Str("environment", cfg.Service.Environment).
		Str("storage", cfg.Database.Driver).
		Msg("Starting AI Governance Service")

	if err := run(cfg, log); err != nil {
		log.Fatal().Err(err).Msg("Service stopped with error")
	}
	log.Info().Msg("Server stopped")
}

func run(cfg *config.Config, log *logger.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load governance policy
	policyFile := &config.PolicyFile{Policy: governance.DefaultPolicy()}
	if cfg.PolicyFile != "" {
		loaded, err := config.LoadPolicyFile(cfg.PolicyFile)
		if err != nil {
			return err
		}
		policyFile = loaded
		log.Info().Str("file", cfg.PolicyFile).Msg("Governance policy loaded")
	}

	// Initialize storage
	stores, ready, closeStores, err := openStores(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeStores()

	m := metrics.New()

	// Initialize notifications
	var notifier service.Notifier
	if cfg.NATS.URL != "" {
		nc, err := client.ConnectNATS(client.NATSConfig{
			URL:           cfg.NATS.URL,
			Name:          cfg.Service.Name,
			MaxReconnects: cfg.NATS.MaxReconnects,
			ReconnectWait: cfg.NATS.ReconnectWait,
		}, log.Logger)
		if err != nil {
			return err
		}
		async := client.NewAsyncNotifier(
			client.NewNotificationPublisher(nc, log.Logger),
			m,
			client.RetryConfig{
				BaseDelay:  cfg.Notify.BaseDelay,
				MaxRetries: cfg.Notify.MaxRetries,
				Timeout:    cfg.Notify.Timeout,
			},
			log.Logger,
		)
		defer func() {
			waitCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
			defer cancel()
			if err := async.Wait(waitCtx); err != nil {
				log.Warn().Err(err).Msg("Pending notifications abandoned")
			}
			if err := nc.Close(); err != nil {
				log.Warn().Err(err).Msg("NATS drain failed")
			}
		}()
		notifier = async
		log.Info().Str("url", cfg.NATS.URL).Msg("NATS notifications enabled")
	} else {
		log.Info().Msg("NATS_URL not set, notifications disabled")
	}

	// Initialize services
	governanceService := service.NewGovernanceService(stores, policyFile.Policy, notifier, m, log)
	proposalService := service.NewProposalService(stores, governanceService, notifier, log)
	policyService := service.NewPolicyService(stores, notifier, log)
	reviewService := service.NewReviewService(stores, governanceService, notifier, m, log)

	if err := seedPolicy(ctx, policyService, policyFile, log); err != nil {
		return err
	}

	// Setup HTTP routes
	httpHandler := handler.NewHTTPHandler(governanceService, proposalService, policyService, reviewService, log)
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		if err := ready(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status":"unavailable"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy"}`))
	})
	mux.Handle("GET /metrics", m.Handler())
	httpHandler.Routes(mux)

	// Apply middleware
	var h http.Handler = mux
	h = middleware.RequestID(h)
	h = middleware.Logger(&log.Logger)(h)
	h = middleware.Recovery(&log.Logger)(h)
	h = middleware.CORS([]string{"*"})(h)
	h = middleware.Timeout(30 * time.Second)(h)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      h,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Setup gRPC server
	grpcHandler := handler.NewGRPCHandler(governanceService, proposalService, reviewService, log.Logger)
	grpcServer := grpc.NewServer(grpc.ChainUnaryInterceptor(grpcHandler.UnaryInterceptor))
	handler.RegisterGovernanceServer(grpcServer, grpcHandler)
	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus(handler.GovernanceServiceName, healthpb.HealthCheckResponse_SERVING)
	reflection.Register(grpcServer) // Enable reflection for debugging

	grpcListener, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Server.GRPCPort))
	if err != nil {
		return fmt.Errorf("create gRPC listener: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Int("port", cfg.Server.Port).Msg("Starting HTTP server")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		log.Info().Int("port", cfg.Server.GRPCPort).Msg("Starting gRPC server")
		if err := grpcServer.Serve(grpcListener); err != nil {
			return fmt.Errorf("gRPC server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Shutting down server...")
		healthServer.Shutdown()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("HTTP server shutdown failed")
		}
		grpcServer.GracefulStop()
		return nil
	})
	return g.Wait()
}

// openStores connects the configured storage driver. ready reports whether
// the store can serve requests.
func openStores(ctx context.Context, cfg *config.Config, log *logger.Logger) (service.Stores, func(context.Context) error, func(), error) {
	if cfg.Database.Driver == "memory" {
		db := memory.New()
		stores := service.Stores{
			Proposals:    db.Proposals(),
			Rates:        db.Rates(),
			Rules:        db.Rules(),
			Voting:       db.Voting(),
			AutoDecision: db.AutoDecisions(),
			Capabilities: db.Capabilities(),
			Audit:        db.Audit(),
			Reviews:      db.Reviews(),
			Valuations:   db.Valuations(),
		}
		log.Warn().Msg("Using in-memory storage; state is lost on restart")
		return stores, func(context.Context) error { return nil }, func() {}, nil
	}

	db, err := database.New(ctx, database.Config{
		Host:        cfg.Database.Host,
		Port:        cfg.Database.Port,
		User:        cfg.Database.User,
		Password:    cfg.Database.Password,
		Database:    cfg.Database.Database,
		SSLMode:     cfg.Database.SSLMode,
		MaxConns:    cfg.Database.MaxConns,
		MinConns:    cfg.Database.MinConns,
		MaxConnTime: cfg.Database.MaxConnTime,
		MaxIdleTime: cfg.Database.MaxIdleTime,
		HealthCheck: cfg.Database.HealthCheck,
	})
	if err != nil {
		return service.Stores{}, nil, nil, fmt.Errorf("connect to database: %w", err)
	}
	log.Info().Msg("Database connection established")

	if cfg.Database.Migrate {
		if err := repository.Migrate(ctx, db); err != nil {
			db.Close()
			return service.Stores{}, nil, nil, fmt.Errorf("migrate schema: %w", err)
		}
		log.Info().Msg("Database schema up to date")
	}

	stores := service.Stores{
		Proposals:    repository.NewProposalRepository(db),
		Rates:        repository.NewRateTableRepository(db),
		Rules:        repository.NewAutoApprovalRulesRepository(db),
		Voting:       repository.NewVotingRepository(db),
		AutoDecision: repository.NewAutoDecisionRepository(db),
		Capabilities: repository.NewCapabilityRepository(db),
		Audit:        repository.NewAuditRepository(db),
		Reviews:      repository.NewReviewRepository(db),
		Valuations:   repository.NewValuationRepository(db),
	}
	return stores, db.Ping, db.Close, nil
}

// seedPolicy loads the policy file's rate table and grants. Grants are
// idempotent so restarts are safe.
func seedPolicy(ctx context.Context, policy *service.PolicyService, pf *config.PolicyFile, log *logger.Logger) error {
	if pf.Rates != nil {
		if err := policy.SeedRateTable(ctx, pf.Rates); err != nil {
			return fmt.Errorf("seed rate table: %w", err)
		}
	}
	grants := 0
	for capability, identities := range pf.Grants {
		for _, identity := range identities {
			if _, err := policy.SeedCapability(ctx, identity, string(capability)); err != nil {
				return fmt.Errorf("seed %s grant for %s: %w", capability, identity, err)
			}
			grants++
		}
	}
	log.Info().Int("grants", grants).Bool("rates", pf.Rates != nil).Msg("Policy seeded")
	return nil
}
