package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/yusufkaraaslan/lazy-bird/internal/api"
	"github.com/yusufkaraaslan/lazy-bird/internal/config"
	"github.com/yusufkaraaslan/lazy-bird/internal/executor"
	"github.com/yusufkaraaslan/lazy-bird/internal/queue"
	"github.com/yusufkaraaslan/lazy-bird/internal/store"
	"github.com/yusufkaraaslan/lazy-bird/internal/supervisor"
	"github.com/yusufkaraaslan/lazy-bird/internal/worker"
)

var (
	serveAddr         string
	serveArtifactsDir string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the test coordination server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address as host:port (overrides LAZY_BIRD_HOST/PORT)")
	serveCmd.Flags().StringVar(&serveArtifactsDir, "artifacts-dir", "", "artifact root (overrides LAZY_BIRD_ARTIFACTS_DIR)")
	rootCmd.AddCommand(serveCmd)
}

func runServe() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := applyAddr(cfg, serveAddr); err != nil {
		return err
	}
	if serveArtifactsDir != "" {
		cfg.ArtifactsDir = serveArtifactsDir
	}
	logger := newLogger(cfg.LogLevel)

	if cfg.ArtifactsDir, err = filepath.Abs(cfg.ArtifactsDir); err != nil {
		return fmt.Errorf("resolve artifacts dir: %w", err)
	}
	if err := os.MkdirAll(cfg.ArtifactsDir, 0o755); err != nil {
		return fmt.Errorf("create artifacts dir: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
		<-ch
		cancel()
	}()

	q := queue.New(cfg.MaxQueueSize)
	exec := executor.New(cfg, q, logger)
	w := worker.New(cfg, q, exec, logger)
	projects := store.NewConfigStore(cfg.ConfigPath)
	tasks := store.NewTaskStore(cfg.QueueDir)
	services := supervisor.New()

	go w.Run(ctx)
	go runSweeper(ctx, cfg, q, logger)

	server := api.New(cfg, q, w, projects, tasks, services, logger)
	httpServer := &http.Server{
		Addr:    cfg.Addr(),
		Handler: server.Router(),
	}

	logger.Info("server listening",
		slog.String("addr", cfg.Addr()),
		slog.String("artifacts_dir", cfg.ArtifactsDir),
		slog.Int("max_queue_size", cfg.MaxQueueSize))
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("listen", slog.Any("error", err))
			cancel()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	logger.Info("server stopped")
	return nil
}

// runSweeper drops finished jobs past the retention age and removes their
// artifact directories.
func runSweeper(ctx context.Context, cfg *config.Config, q *queue.JobQueue, logger *slog.Logger) {
	ticker := time.NewTicker(cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed := q.Sweep(cfg.RetentionAge)
			for _, id := range removed {
				if err := os.RemoveAll(filepath.Join(cfg.ArtifactsDir, id)); err != nil {
					logger.Warn("remove artifacts", slog.String("job_id", id), slog.Any("error", err))
				}
			}
			if len(removed) > 0 {
				logger.Info("swept finished jobs", slog.Int("count", len(removed)))
			}
		}
	}
}
