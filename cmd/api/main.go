package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/your-org/marina/internal/api"
	"github.com/your-org/marina/internal/api/ws"
	"github.com/your-org/marina/internal/auth"
	"github.com/your-org/marina/internal/config"
	"github.com/your-org/marina/internal/dashboard"
	"github.com/your-org/marina/internal/ingest"
	"github.com/your-org/marina/internal/models"
	"github.com/your-org/marina/internal/observability"
	"github.com/your-org/marina/internal/queue"
	"github.com/your-org/marina/internal/recon"
	"github.com/your-org/marina/internal/storage"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	observability.SetupLogger(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("starting marina API service", "port", cfg.Server.Port)

	// Connect to Postgres
	db, err := storage.NewPostgresStore(cfg.Database)
	if err != nil {
		slog.Error("connect to postgres", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := db.InitSchema(context.Background()); err != nil {
		slog.Error("init schema", "error", err)
		os.Exit(1)
	}

	if cfg.Server.InitDB {
		if err := storage.Seed(context.Background(), db, cfg.Server.AdminPassword, auth.HashPassword); err != nil {
			slog.Error("seed database", "error", err)
			os.Exit(1)
		}
	}

	// Connect to MinIO
	minioStore, err := storage.NewMinIOStore(cfg.MinIO)
	if err != nil {
		slog.Error("connect to minio", "error", err)
		os.Exit(1)
	}
	if err := minioStore.EnsureBucket(context.Background()); err != nil {
		slog.Warn("ensure minio bucket", "error", err)
	}

	// Connect to NATS
	producer, err := queue.NewProducer(cfg.NATS.URL)
	if err != nil {
		slog.Error("connect to nats", "error", err)
		os.Exit(1)
	}
	defer producer.Close()

	if err := producer.EnsureStreams(context.Background()); err != nil {
		slog.Warn("ensure nats streams", "error", err)
	}

	// Domain services
	tokens := auth.NewTokenService(cfg.Server.JWTSecret, cfg.Server.JWTExpiration)
	ingestSvc := ingest.NewService(db, minioStore)

	var policy recon.Policy
	switch cfg.Reconciliation.Policy {
	case "identifier_match":
		policy = recon.IdentifierMatchPolicy{}
	default:
		policy = recon.AlwaysOpenPolicy{}
	}
	reconciler := recon.New(db, policy, cfg.Reconciliation.DefaultTimeInMarina)
	aggregator := dashboard.New(db)

	// WebSocket hub
	hub := ws.NewHub(tokens)
	go hub.Run()

	// Consume relay traffic: passes feed ingest + reconciliation, previews
	// feed the hub.
	consumer, err := queue.NewConsumer(cfg.NATS.URL)
	if err != nil {
		slog.Error("create relay consumer", "error", err)
		os.Exit(1)
	}
	defer consumer.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	err = consumer.ConsumePasses(ctx, "api-passes", func(ctx context.Context, msg jetstream.Msg) error {
		var event models.PassEvent
		if err := json.Unmarshal(msg.Data(), &event); err != nil {
			return err
		}

		pass, err := ingestSvc.Record(ctx, ingest.Detection{
			CameraID:           event.CameraID,
			Timestamp:          event.Timestamp,
			RawText:            event.RawText,
			DetectedIdentifier: event.DetectedIdentifier,
			BoatLength:         event.BoatLength,
			VisitStart:         event.VisitStart,
			BoundingBoxes:      event.BoundingBoxes,
			ImageKey:           event.ImageKey,
		})
		if err != nil {
			return err
		}

		if _, err := reconciler.OpenOrAttach(ctx, pass); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		slog.Warn("start pass consumer", "error", err)
	}

	err = consumer.ConsumePreviews(ctx, "api-previews", func(ctx context.Context, msg jetstream.Msg) error {
		var frame models.PreviewFrame
		if err := json.Unmarshal(msg.Data(), &frame); err != nil {
			return err
		}
		hub.PublishFrame(&frame)
		return nil
	})
	if err != nil {
		slog.Warn("start preview consumer", "error", err)
	}

	// Setup router
	router := api.NewRouter(api.RouterConfig{
		DB:         db,
		MinIO:      minioStore,
		Producer:   producer,
		Hub:        hub,
		Tokens:     tokens,
		Ingest:     ingestSvc,
		Reconciler: reconciler,
		Aggregator: aggregator,
	})

	// Start HTTP server
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("API server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down API server...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	slog.Info("API server stopped")
}
