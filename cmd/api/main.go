package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"online-school/internal/api"
	"online-school/internal/catalogue"
	"online-school/internal/config"
	"online-school/internal/crawler"
	"online-school/internal/storage"
)

func main() {
	cfgPath := flag.String("config", "configs/config.yaml", "Path to server configuration (optional)")
	flag.Parse()

	cfg, err := config.LoadOrDefault(*cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := config.BuildLogger(cfg.Logging, os.Stdout)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := os.MkdirAll(cfg.Storage.DataDir, 0o755); err != nil {
		log.Fatalf("failed to create data dir: %v", err)
	}
	store := catalogue.NewStore(cfg.Storage.BooksPath(), cfg.Storage.QuizzesPath(), logger)
	if err := store.EnsureSeed(ctx); err != nil {
		if errors.Is(err, catalogue.ErrCorruptDocument) {
			logger.Error("catalogue document is corrupt; fix or remove it before starting", "error", err)
		}
		log.Fatalf("failed to initialise catalogue: %v", err)
	}

	uploads, err := storage.NewFileUploadStore(cfg.Storage.UploadsPath())
	if err != nil {
		log.Fatalf("failed to initialise uploads: %v", err)
	}

	crawl, err := crawler.NewFromConfig(*cfg, store, logger)
	if err != nil {
		log.Fatalf("failed to initialise crawler: %v", err)
	}

	server := api.NewServer(catalogue.NewService(store, store, logger), crawl, uploads, api.Options{
		PublicDir:      cfg.Server.PublicDir,
		MaxUploadBytes: cfg.Server.MaxUploadBytes,
		Seeds:          cfg.Crawl.Seeds,
		Logger:         logger,
	})

	middleware := []api.Middleware{api.AccessLog(logger), api.Recover(logger), api.CORS(cfg.Server.CORSOrigin)}
	if cfg.Telemetry.Enabled {
		middleware = append([]api.Middleware{api.OTel(cfg.Telemetry.ServiceName)}, middleware...)
	}

	httpServer := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           api.Chain(server, middleware...),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("http shutdown error", "error", err)
		}
	}()

	logger.Info("api server listening",
		"addr", cfg.Server.Addr,
		"data_dir", cfg.Storage.DataDir,
		"public_dir", cfg.Server.PublicDir,
	)
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("server error: %v", err)
	}
	logger.Info("api server stopped")
}
