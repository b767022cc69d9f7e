// Package main wires together the fetchguard service binary.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	gpubsub "cloud.google.com/go/pubsub"
	"cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/fetchguard/fetchguard/internal/api"
	"github.com/fetchguard/fetchguard/internal/archive"
	gcsarchive "github.com/fetchguard/fetchguard/internal/archive/gcs"
	"github.com/fetchguard/fetchguard/internal/audit"
	auditpostgres "github.com/fetchguard/fetchguard/internal/audit/postgres"
	"github.com/fetchguard/fetchguard/internal/clock/system"
	"github.com/fetchguard/fetchguard/internal/config"
	"github.com/fetchguard/fetchguard/internal/fetch"
	"github.com/fetchguard/fetchguard/internal/id/uuid"
	"github.com/fetchguard/fetchguard/internal/logging"
	"github.com/fetchguard/fetchguard/internal/metrics"
	"github.com/fetchguard/fetchguard/internal/publisher"
	pubsubpublisher "github.com/fetchguard/fetchguard/internal/publisher/pubsub"
)

func main() {
	cfgPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if syncErr := logger.Sync(); syncErr != nil {
			fmt.Fprintf(os.Stderr, "logger sync failed: %v\n", syncErr)
		}
	}()
	zap.ReplaceGlobals(logger)
	metrics.Init()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	auditor, err := buildAuditor(ctx, cfg)
	if err != nil {
		logger.Fatal("audit provider init failed", zap.Error(err))
	}
	defer auditor.Close()

	archiver, err := buildArchiver(ctx, cfg)
	if err != nil {
		logger.Fatal("archive provider init failed", zap.Error(err))
	}
	defer func() {
		if closeErr := archiver.Close(); closeErr != nil {
			logger.Warn("archive close failed", zap.Error(closeErr))
		}
	}()

	pub, err := buildPublisher(ctx, cfg)
	if err != nil {
		logger.Fatal("event publisher init failed", zap.Error(err))
	}
	defer func() {
		if closeErr := pub.Close(); closeErr != nil {
			logger.Warn("publisher close failed", zap.Error(closeErr))
		}
	}()

	engine := fetch.New(fetch.Config{
		Namespace:       cfg.Fetch.Namespace,
		UserAgent:       cfg.Fetch.UserAgent,
		DefaultTimeout:  time.Duration(cfg.Fetch.TimeoutSeconds) * time.Second,
		DefaultRetries:  cfg.Fetch.MaxRetries,
		MaxRedirects:    cfg.Fetch.MaxRedirects,
		MaxBodyBytes:    cfg.Fetch.MaxBodyBytes,
		MaxURLLength:    cfg.Fetch.MaxURLLength,
		CacheTTL:        time.Duration(cfg.Cache.TTLSeconds) * time.Second,
		CacheMaxKeys:    cfg.Cache.MaxKeys,
		CacheMaxContent: cfg.Cache.MaxContentBytes,
		BlockedHosts:    cfg.Fetch.BlockedHosts,
		Concurrency:     cfg.Fetch.Concurrency,
		PerHostQPS:      cfg.Fetch.PerHostQPS,
	}, fetch.WithLogger(logger.Named("fetch")))

	apiServer := api.NewServer(
		engine,
		auditor,
		archiver,
		pub,
		uuid.New(),
		system.New(),
		logger.Named("api"),
		cfg,
	)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server started", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
	logger.Info("shutdown complete")
}

func buildAuditor(ctx context.Context, cfg config.Config) (audit.Provider, error) {
	switch cfg.Audit.Provider {
	case "postgres":
		store, err := auditpostgres.NewStore(ctx, auditpostgres.StoreConfig{
			DSN:   cfg.Audit.DSN,
			Table: cfg.Audit.Table,
		})
		if err != nil {
			return nil, fmt.Errorf("postgres audit store: %w", err)
		}
		return store, nil
	case "noop", "":
		return audit.NoOp{}, nil
	default:
		return nil, fmt.Errorf("unknown audit provider %q", cfg.Audit.Provider)
	}
}

func buildArchiver(ctx context.Context, cfg config.Config) (archive.Provider, error) {
	switch cfg.Archive.Provider {
	case "gcs":
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("storage client: %w", err)
		}
		store, err := gcsarchive.New(client, gcsarchive.Config{Bucket: cfg.Archive.Bucket})
		if err != nil {
			return nil, fmt.Errorf("gcs blob store: %w", err)
		}
		return store, nil
	case "noop", "":
		return archive.NoOp{}, nil
	default:
		return nil, fmt.Errorf("unknown archive provider %q", cfg.Archive.Provider)
	}
}

func buildPublisher(ctx context.Context, cfg config.Config) (publisher.Publisher, error) {
	switch cfg.Events.Provider {
	case "pubsub":
		client, err := gpubsub.NewClient(ctx, cfg.Events.ProjectID)
		if err != nil {
			return nil, fmt.Errorf("pubsub client: %w", err)
		}
		pub, err := pubsubpublisher.New(client, cfg.Events.TopicName)
		if err != nil {
			return nil, fmt.Errorf("pubsub publisher: %w", err)
		}
		return pub, nil
	case "noop", "":
		return publisher.NoOp{}, nil
	default:
		return nil, fmt.Errorf("unknown events provider %q", cfg.Events.Provider)
	}
}
