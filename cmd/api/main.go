// Package main is the entry point for the Voyage API server.
//
// It loads configuration, connects the database pool and AWS clients, wires
// the domain services (auth, entitlement, billing, storage, export) into the
// core chassis, and serves HTTP with graceful shutdown on SIGINT/SIGTERM.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/jackc/pgx/v5/pgxpool"

	"voyage/internal/api/handlers"
	"voyage/internal/auth"
	"voyage/internal/config"
	"voyage/internal/core"
	"voyage/internal/db"
	"voyage/internal/entitlement"
	"voyage/internal/export"
	"voyage/internal/external"
	"voyage/internal/queue"
	"voyage/internal/storage"
	"voyage/internal/telemetry"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// run encapsulates the startup lifecycle so that main() can cleanly exit on error.
func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := newLogger(cfg.LogLevel)
	logger.Info("voyage API starting",
		"environment", cfg.Environment,
		"version", cfg.Build.Version,
		"commit", cfg.Build.Commit,
		"port", cfg.Server.Port,
	)

	ctx := context.Background()

	// Database pool and repositories.
	pool, err := db.NewPool(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connecting database: %w", err)
	}

	profileRepo := db.NewProfileRepository(pool)
	voyageRepo := db.NewVoyageRepository(pool)
	pinRepo := db.NewPinRepository(pool)
	sessionRepo := db.NewSessionRepository(pool)
	shareRepo := db.NewShareLinkRepository(pool)

	// AWS clients. BaseEndpoint override supports LocalStack in local dev.
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWS.Region))
	if err != nil {
		return fmt.Errorf("loading AWS config: %w", err)
	}
	endpoint := cfg.AWS.EndpointURL
	s3Client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	})
	sqsClient := sqs.NewFromConfig(awsCfg, func(o *sqs.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	})
	cwClient := cloudwatch.NewFromConfig(awsCfg, func(o *cloudwatch.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	})

	metrics := telemetry.NewCloudWatchMetrics(cwClient, cfg.Observability.MetricNamespace, logger)

	// Auth: bcrypt hashing, bearer-token sessions.
	sessionSvc := auth.NewSessionService(
		sessionRepo,
		nil,
		auth.SessionConfig{TTL: cfg.Auth.SessionTTL, TokenPrefix: "sess_"},
		nil,
		logger,
	)
	authSvc := auth.NewService(auth.ServiceConfig{
		Profiles: profileRepo,
		Sessions: sessionSvc,
		Hasher:   auth.NewBcryptHasher(cfg.Auth.BcryptCost),
		Logger:   logger,
	})

	// Billing: Stripe REST client behind the resilient base client.
	stripeClient := external.NewStripeClient(
		&http.Client{Timeout: 30 * time.Second},
		profileRepo,
		external.StripeClientConfig{
			SecretKey:      cfg.Billing.StripeSecretKey.Unmask(),
			PremiumPriceID: cfg.Billing.PremiumPriceID,
			Logger:         logger,
		},
	)

	// Entitlement: Stripe primary, profile record fallback.
	resolver := entitlement.NewResolver(
		stripeClient,
		profileRepo,
		entitlement.NewStaticPolicyRegistry(),
		nil,
		nil,
		logger,
		entitlement.ResolverConfig{RemoteTimeout: cfg.Entitlement.RemoteTimeout},
	)
	resolver.Metrics = metrics

	photoStore := storage.NewPhotoStore(
		s3.NewPresignClient(s3Client),
		s3Client,
		storage.PhotoStoreConfig{
			Bucket:       cfg.AWS.PhotoBucket,
			Region:       cfg.AWS.Region,
			UploadURLTTL: cfg.Storage.UploadURLTTL,
			MaxBytes:     cfg.Storage.MaxPhotoBytes,
		},
		nil,
		logger,
	)

	eventPublisher := queue.NewSubscriptionEventPublisher(sqsClient, cfg.AWS.SubscriptionQueue, logger)

	// Build the server.
	srv, err := core.NewServer(cfg, logger)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}
	srv.Authenticator = authSvc
	srv.Metrics = metrics
	srv.HealthProbes = []core.HealthProbe{dbProbe{pool: pool}}
	srv.OnShutdown(func() error {
		pool.Close()
		return nil
	})

	// Domain handlers, mounted under /v1.
	authHandler := handlers.NewAuthHandler(authSvc, resolver, srv.Validator, logger)
	profileHandler := handlers.NewProfileHandler(profileRepo, photoStore, srv.Validator, logger)
	voyageHandler := handlers.NewVoyageHandler(voyageRepo, photoStore, resolver, metrics, srv.Validator, logger)
	pinHandler := handlers.NewPinHandler(pinRepo, voyageRepo, resolver, metrics, srv.Validator, logger)
	billingHandler := handlers.NewBillingHandler(stripeClient, resolver, cfg.Server.AppURL, logger)
	exportHandler := handlers.NewExportHandler(profileRepo, voyageRepo, export.NewPDFRenderer(), resolver, metrics, logger)
	shareHandler := handlers.NewShareHandler(
		shareRepo,
		voyageRepo,
		&auth.CryptoTokenGenerator{Prefix: "shr_"},
		resolver,
		metrics,
		cfg.Server.AppURL,
		logger,
	)
	webhookHandler := handlers.NewStripeWebhookHandler(
		&external.StripeVerifier{},
		eventPublisher,
		profileRepo,
		cfg.Billing.StripeWebhookSecret,
		logger,
	)

	srv.V1RouteRegistrars = append(srv.V1RouteRegistrars,
		authHandler.RegisterRoutes,
		profileHandler.RegisterRoutes,
		voyageHandler.RegisterRoutes,
		pinHandler.RegisterRoutes,
		billingHandler.RegisterRoutes,
		exportHandler.RegisterRoutes,
		shareHandler.RegisterRoutes,
		webhookHandler.RegisterRoutes,
	)

	// Mount all routes (middleware chain + versioned endpoints + health).
	srv.MountRoutes()

	return runHTTPServer(srv, cfg, logger)
}

// dbProbe reports database connectivity for the health endpoint.
type dbProbe struct {
	pool *pgxpool.Pool
}

func (p dbProbe) Name() string { return "database" }

func (p dbProbe) Check(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

// runHTTPServer starts the server in standard HTTP mode with graceful shutdown.
func runHTTPServer(srv *core.Server, cfg *config.Config, logger *slog.Logger) error {
	addr := ":" + cfg.Server.Port

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// Channel to capture server errors from ListenAndServe.
	serverErr := make(chan error, 1)

	go func() {
		logger.Info("HTTP server listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	// Wait for shutdown signal or server error.
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-shutdown:
		logger.Info("shutdown signal received", "signal", sig.String())
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	// Graceful shutdown with a 10-second deadline.
	logger.Info("initiating graceful shutdown")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
	}

	// Shutdown server resources (DB pool, etc.).
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server resource shutdown error", "error", err)
		return fmt.Errorf("server shutdown: %w", err)
	}

	logger.Info("server stopped cleanly")
	return nil
}

// newLogger creates a structured slog.Logger configured for the given log level.
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "info":
		lvl = slog.LevelInfo
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level:     lvl,
		AddSource: false,
	})
	return slog.New(handler)
}

// Compile-time checks that concrete services satisfy the handler contracts.
var (
	_ core.Authenticator             = (*auth.Service)(nil)
	_ handlers.AuthService           = (*auth.Service)(nil)
	_ handlers.SessionInvalidator    = (*entitlement.Resolver)(nil)
	_ handlers.EntitlementSource     = (*entitlement.Resolver)(nil)
	_ handlers.EntitlementRefresher  = (*entitlement.Resolver)(nil)
	_ handlers.VoyageStore           = (*db.VoyageRepository)(nil)
	_ handlers.ShareVoyageStore      = (*db.VoyageRepository)(nil)
	_ handlers.PinVoyageChecker      = (*db.VoyageRepository)(nil)
	_ handlers.ExportVoyageLister    = (*db.VoyageRepository)(nil)
	_ handlers.PinStore              = (*db.PinRepository)(nil)
	_ handlers.ShareStore            = (*db.ShareLinkRepository)(nil)
	_ handlers.ExportProfileGetter   = (*db.ProfileRepository)(nil)
	_ handlers.ProfileStore          = (*db.ProfileRepository)(nil)
	_ entitlement.ResolutionRecorder = (*telemetry.CloudWatchMetrics)(nil)
	_ handlers.WebhookAccountMapper  = (*db.ProfileRepository)(nil)
	_ handlers.PhotoIssuer           = (*storage.PhotoStore)(nil)
	_ handlers.BillingProvider       = (*external.StripeClient)(nil)
	_ handlers.WebhookVerifier       = (*external.StripeVerifier)(nil)
	_ handlers.SubscriptionEventSink = (*queue.SubscriptionEventPublisher)(nil)
	_ handlers.DenialRecorder        = (*telemetry.CloudWatchMetrics)(nil)
	_ handlers.JournalRenderer       = (*export.PDFRenderer)(nil)
	_ core.MetricsCollector          = (*telemetry.CloudWatchMetrics)(nil)
	_ handlers.ShareTokenGenerator   = (*auth.CryptoTokenGenerator)(nil)
	_ core.HealthProbe               = dbProbe{}
)
