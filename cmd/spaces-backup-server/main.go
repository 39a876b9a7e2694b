// spaces-backup-server exposes the backup invocation over HTTP and,
// when BACKUP_SCHEDULE is set, runs it on a cron schedule. Prometheus
// metrics are served on the same listener.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-logr/logr"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"

	"github.com/dc-tec/spaces-backup/internal/backup"
	"github.com/dc-tec/spaces-backup/internal/config"
	"github.com/dc-tec/spaces-backup/internal/function"
	"github.com/dc-tec/spaces-backup/internal/logging"
)

// invocationTimeout bounds a single backup run. Large buckets stream for a
// while, so this is generous.
const invocationTimeout = 4 * time.Hour

// server holds the pieces shared by the HTTP handlers and the cron job.
type server struct {
	log     logr.Logger
	cfg     *config.Config
	handler *function.Handler

	// mu serializes backup runs; overlapping full-bucket backups of the
	// same source would double cost for no benefit.
	mu sync.Mutex
}

func (s *server) runBackup(ctx context.Context) function.Response {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, invocationTimeout)
	defer cancel()
	return s.handler.Invoke(ctx, s.cfg)
}

func (s *server) handleBackup(c *gin.Context) {
	resp := s.runBackup(c.Request.Context())
	c.JSON(resp.StatusCode, resp.Body)
}

func (s *server) handleHealthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *server) startScheduler(ctx context.Context) (*cron.Cron, error) {
	expr := s.cfg.BackupSchedule
	warning, err := backup.ValidateSchedule(expr)
	if err != nil {
		return nil, err
	}
	if warning != "" {
		s.log.Info("schedule warning", "schedule", expr, "warning", warning)
	}

	c := cron.New(cron.WithParser(backup.Parser))
	_, err = c.AddFunc(expr, func() {
		s.log.Info("scheduled backup starting", "schedule", expr)
		resp := s.runBackup(ctx)
		if resp.StatusCode != http.StatusOK {
			s.log.Info("scheduled backup failed", "response", resp.Body)
			return
		}
		s.log.Info("scheduled backup finished", "response", resp.Body)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to register schedule %q: %w", expr, err)
	}

	c.Start()
	return c, nil
}

func run(ctx context.Context) error {
	devMode := flag.Bool("dev", false, "use console log encoding and debug level")
	verbosity := flag.Int("v", 0, "log verbosity")
	flag.Parse()

	_ = godotenv.Load()

	log, err := logging.NewLogger(logging.Options{Development: *devMode, Level: *verbosity})
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	s := &server{
		log:     log,
		cfg:     cfg,
		handler: function.NewHandler(log),
	}

	if !*devMode {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.POST("/backup", s.handleBackup)
	router.GET("/healthz", s.handleHealthz)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	if cfg.BackupSchedule != "" {
		scheduler, err := s.startScheduler(ctx)
		if err != nil {
			return fmt.Errorf("failed to start scheduler: %w", err)
		}
		defer scheduler.Stop()
		log.Info("scheduler started", "schedule", cfg.BackupSchedule)
	}

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server listening", "addr", cfg.ListenAddr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server stopped: %w", err)
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("shutdown failed: %w", err)
	}
	return nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "spaces-backup-server error: %v\n", err)
		os.Exit(1)
	}
}
