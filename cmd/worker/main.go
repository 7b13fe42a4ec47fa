package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/your-org/pixelmind/internal/config"
	"github.com/your-org/pixelmind/internal/faces"
	"github.com/your-org/pixelmind/internal/imaging"
	"github.com/your-org/pixelmind/internal/labels"
	"github.com/your-org/pixelmind/internal/models"
	"github.com/your-org/pixelmind/internal/observability"
	"github.com/your-org/pixelmind/internal/palette"
	"github.com/your-org/pixelmind/internal/pipeline"
	"github.com/your-org/pixelmind/internal/queue"
	"github.com/your-org/pixelmind/internal/storage"
	"github.com/your-org/pixelmind/internal/vision"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to config file")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	observability.SetupLogger(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("starting PixelMind worker",
		"workers", cfg.Vision.WorkerCount,
		"backend", cfg.Vision.Backend,
		"cpu_cores", runtime.NumCPU(),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Connect to Postgres
	db, err := storage.NewPostgresStore(cfg.Database)
	if err != nil {
		slog.Error("connect to postgres", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := db.EnsureSchema(ctx); err != nil {
		slog.Error("ensure schema", "error", err)
		os.Exit(1)
	}

	// Connect to MinIO
	minioStore, err := storage.NewMinIOStore(cfg.MinIO)
	if err != nil {
		slog.Error("connect to minio", "error", err)
		os.Exit(1)
	}
	if err := minioStore.EnsureBucket(ctx); err != nil {
		slog.Warn("ensure minio bucket", "error", err)
	}

	// Connect to NATS
	producer, err := queue.NewProducer(cfg.NATS.URL)
	if err != nil {
		slog.Error("connect to nats producer", "error", err)
		os.Exit(1)
	}
	defer producer.Close()

	if err := producer.EnsureStreams(ctx); err != nil {
		slog.Warn("ensure nats streams", "error", err)
	}

	// Model backends load lazily on first use
	backends, err := vision.New(cfg.Vision)
	if err != nil {
		slog.Error("init vision backends", "error", err)
		os.Exit(1)
	}
	defer vision.Shutdown()
	defer backends.Close()

	frames := imaging.NewKeyframeExtractor()
	frames.Binary = cfg.Pipeline.FFmpegPath
	frames.Timeout = cfg.Pipeline.KeyframeTimeout

	proc := pipeline.New(pipeline.Deps{
		Blobs:   minioStore,
		Assets:  db,
		Labeler: labels.NewLabeler(backends.Objects),
		Faces:   faces.NewAnalyzer(backends.Faces),
		Clusterer: faces.NewClusterer(db,
			faces.WithThreshold(cfg.Pipeline.ClusterThreshold),
			faces.WithMaxSamples(cfg.Pipeline.MaxPersonSamples),
		),
		Palette: palette.New(),
		Frames:  frames,
	}, pipeline.Options{
		Thumbnail: imaging.ThumbnailOptions{
			Size:    cfg.Pipeline.ThumbnailSize,
			Quality: cfg.Pipeline.ThumbnailQuality,
		},
		MaxOriginalBytes: cfg.Pipeline.MaxOriginalBytes,
	})

	slog.Info("pipeline initialized")

	// Create NATS consumer
	consumer, err := queue.NewConsumer(cfg.NATS.URL)
	if err != nil {
		slog.Error("create consumer", "error", err)
		os.Exit(1)
	}
	defer consumer.Close()

	handler := func(ctx context.Context, task models.AssetTask) error {
		out := proc.ProcessAsset(ctx, task)
		if out.Err != nil {
			if errors.Is(out.Err, storage.ErrNotFound) {
				// Nothing to retry against: the asset row is gone.
				return fmt.Errorf("%w: asset %s: %v", queue.ErrMalformed, task.FileID, out.Err)
			}
			return fmt.Errorf("process asset %s: %w", task.FileID, out.Err)
		}

		ev := models.AssetProcessed{
			FileID:    task.FileID,
			OwnerID:   task.OwnerID,
			Status:    out.Status,
			FaceCount: out.FaceCount,
			Labels:    out.Labels,
			SceneType: out.SceneType,
			Timestamp: time.Now().UTC(),
		}
		if out.Failure != nil {
			ev.Error = out.Failure.Error()
		}
		if err := producer.PublishProcessed(ctx, ev); err != nil {
			slog.Warn("publish processed event", "file_id", task.FileID, "error", err)
		}
		return nil
	}

	err = consumer.ConsumeTasks(ctx, "pixelmind-workers", handler, queue.TaskOptions{
		Workers:    cfg.Vision.WorkerCount,
		AckWait:    cfg.NATS.AckWait,
		MaxDeliver: cfg.NATS.MaxDeliver,
		NakDelay:   5 * time.Second,
	})
	if err != nil {
		slog.Error("start task consumer", "error", err)
		os.Exit(1)
	}

	// Metrics endpoint
	metricsAddr := fmt.Sprintf(":%d", cfg.Server.MetricsPort)
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	metricsSrv := &http.Server{Addr: metricsAddr, Handler: mux}
	go func() {
		slog.Info("worker metrics listening", "addr", metricsAddr)
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics server error", "error", err)
		}
	}()

	// Periodically report queue depth
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				depth, err := producer.QueueDepth(ctx)
				if err == nil {
					observability.QueueDepth.Set(float64(depth))
				}
			}
		}
	}()

	// Wait for shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down worker...")
	cancel()
	consumer.Wait()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = metricsSrv.Shutdown(shutdownCtx)

	slog.Info("worker stopped")
}
