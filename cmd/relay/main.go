// relay is the capture side of the boundary: it watches a spool directory
// the camera pipeline drops JPEG frames into, stores each frame, and
// publishes the pass event and preview frame the API service consumes.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/your-org/marina/internal/config"
	"github.com/your-org/marina/internal/models"
	"github.com/your-org/marina/internal/observability"
	"github.com/your-org/marina/internal/queue"
	"github.com/your-org/marina/internal/storage"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to config file")
	spoolDir := flag.String("spool", "spool", "directory the camera pipeline writes frames into")
	cameraID := flag.Int("camera", 1, "camera identifier for published events")
	interval := flag.Duration("interval", 2*time.Second, "spool poll interval")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	observability.SetupLogger(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("starting capture relay", "spool", *spoolDir, "camera_id", *cameraID)

	minioStore, err := storage.NewMinIOStore(cfg.MinIO)
	if err != nil {
		slog.Error("connect to minio", "error", err)
		os.Exit(1)
	}
	if err := minioStore.EnsureBucket(context.Background()); err != nil {
		slog.Warn("ensure minio bucket", "error", err)
	}

	producer, err := queue.NewProducer(cfg.NATS.URL)
	if err != nil {
		slog.Error("connect to nats", "error", err)
		os.Exit(1)
	}
	defer producer.Close()

	if err := producer.EnsureStreams(context.Background()); err != nil {
		slog.Warn("ensure nats streams", "error", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		cancel()
	}()

	ticker := time.NewTicker(*interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("capture relay stopped")
			return
		case <-ticker.C:
			if err := drainSpool(ctx, *spoolDir, *cameraID, minioStore, producer); err != nil {
				slog.Error("drain spool", "error", err)
			}
		}
	}
}

// drainSpool publishes every JPEG found in the spool and removes it.
func drainSpool(ctx context.Context, dir string, cameraID int, images *storage.MinIOStore, producer *queue.Producer) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read spool dir: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(strings.ToLower(entry.Name()), ".jpg") {
			continue
		}

		path := filepath.Join(dir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			slog.Error("read frame", "path", path, "error", err)
			continue
		}

		now := time.Now()
		key := fmt.Sprintf("passes/%s.jpg", uuid.New().String())
		if err := images.PutObject(ctx, key, data, "image/jpeg"); err != nil {
			slog.Error("store frame", "key", key, "error", err)
			continue
		}

		if err := producer.PublishPass(ctx, cameraID, models.PassEvent{
			CameraID:   cameraID,
			Timestamp:  now,
			ImageKey:   key,
			VisitStart: true,
		}); err != nil {
			slog.Error("publish pass", "error", err)
			continue
		}

		if err := producer.PublishPreview(ctx, cameraID, models.PreviewFrame{
			CameraID:  cameraID,
			Timestamp: now,
			Image:     data,
		}); err != nil {
			slog.Error("publish preview", "error", err)
		}

		if err := os.Remove(path); err != nil {
			slog.Warn("remove spooled frame", "path", path, "error", err)
		}
		slog.Debug("relayed frame", "key", key)
	}
	return nil
}
