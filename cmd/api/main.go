package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/bryanwahyu/sapiens-pipeline/internal/application/pipeline"
	"github.com/bryanwahyu/sapiens-pipeline/internal/config"
	"github.com/bryanwahyu/sapiens-pipeline/internal/domain/analysis"
	aiclient "github.com/bryanwahyu/sapiens-pipeline/internal/infra/ai/openai"
	auditsink "github.com/bryanwahyu/sapiens-pipeline/internal/infra/audit"
	"github.com/bryanwahyu/sapiens-pipeline/internal/infra/httpserver"
	minioStore "github.com/bryanwahyu/sapiens-pipeline/internal/infra/storage"
	"github.com/bryanwahyu/sapiens-pipeline/internal/middleware"
	"github.com/bryanwahyu/sapiens-pipeline/internal/security"
)

func main() {
	// path config.yaml
	path := "config.yaml"
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		path = v
	}

	cfg, err := config.Load(path)
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	defer logger.Sync()

	// drop zone for the external front-end
	if err := os.MkdirAll(cfg.Uploads.Dir, 0o755); err != nil {
		log.Fatalf("uploads dir error: %v", err)
	}

	ctx := context.Background()

	// audit sink: the only durable store this service owns
	sink := auditsink.NewFileSink(auditsink.Options{
		Path:       cfg.Audit.Path,
		MaxSizeMB:  cfg.Audit.MaxSizeMB,
		MaxAgeDays: cfg.Audit.MaxAgeDays,
		BufferSize: cfg.Audit.BufferSize,
	}, logger)
	defer sink.Close()

	validator := security.NewValidator(security.Config{
		AllowedExtensions: cfg.Uploads.AllowedExtensions,
		MaxSizeBytes:      cfg.Uploads.MaxSizeBytes,
		PIIDetection:      cfg.Security.PIIDetection,
		PIIReject:         cfg.Security.PIIReject,
	}, sink, logger)

	var reasoner analysis.Reasoner
	if cfg.OpenAI.APIKey != "" {
		reasoner = aiclient.NewClient(cfg.OpenAI.APIKey, cfg.OpenAI.Model, cfg.OpenAI.Timeout.Duration())
	} else {
		logger.Warn("no OpenAI key configured; gate and narratives degrade to heuristics")
	}

	var store analysis.ReportStore
	if cfg.Minio.Enabled {
		s, err := minioStore.New(ctx,
			cfg.Minio.Endpoint,
			cfg.Minio.Region,
			cfg.Minio.BucketName,
			cfg.Minio.AccessKey,
			cfg.Minio.SecretKey,
			cfg.Minio.UseSSL,
		)
		if err != nil {
			log.Fatalf("minio init error: %v", err)
		}
		store = s
	}

	orch := &pipeline.Orchestrator{
		Validator: validator,
		Reasoner:  reasoner,
		Audit:     sink,
		Store:     store,
		Log:       logger,
	}
	runner := pipeline.NewRunner(orch, pipeline.NewAdmission(cfg.Pipeline.MaxConcurrent), cfg.Pipeline.Timeout.Duration(), sink, logger)

	checkers := map[string]middleware.HealthChecker{
		"audit": auditCheck{sink},
	}

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      httpserver.NewRouter(runner, checkers, logger),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	// graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	logger.Info("shutting down server")

	ctx2, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx2); err != nil {
		logger.Error("shutdown error", zap.Error(err))
	}
}

// auditCheck reports unhealthy once the sink starts dropping records.
type auditCheck struct {
	sink *auditsink.FileSink
}

func (a auditCheck) Check(ctx context.Context) error {
	if n := a.sink.Dropped(); n > 0 {
		return fmt.Errorf("%d audit records dropped", n)
	}
	return nil
}
