package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/example/trackfetch/api-go/internal/blob"
	"github.com/example/trackfetch/api-go/internal/config"
	"github.com/example/trackfetch/api-go/internal/convert"
	"github.com/example/trackfetch/api-go/internal/httpapi"
	"github.com/example/trackfetch/api-go/internal/janitor"
	"github.com/example/trackfetch/api-go/internal/jobs"
	"github.com/example/trackfetch/api-go/internal/store"
)

func main() {
	loadDotEnv()
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()}))

	blobStore := blob.LocalFS{Root: cfg.OutputDir}
	if err := blobStore.EnsureRoot(); err != nil {
		log.Fatalf("mkdir output dir: %v", err)
	}

	registry, err := openRegistry(cfg.Registry)
	if err != nil {
		log.Fatalf("open job registry: %v", err)
	}
	defer registry.Close()

	converter := convert.NewCommand(cfg.Converter, cfg.ConverterArgs, cfg.ConvertTimeout)
	manager := jobs.NewManager(registry, blobStore, converter, jobs.Options{
		Extensions:     cfg.ArtifactExts,
		AllowedSchemes: cfg.AllowedSchemes,
		MaxConcurrent:  cfg.MaxConcurrent,
		Logger:         logger,
	})

	baseURL := os.Getenv("TRACKFETCH_BASE_URL")
	if baseURL == "" {
		addr := cfg.Addr
		if strings.HasPrefix(addr, ":") {
			addr = "localhost" + addr
		}
		baseURL = fmt.Sprintf("http://%s", addr)
	}

	server := httpapi.Server{
		Jobs:        manager,
		Blobs:       blobStore,
		BaseURL:     baseURL,
		CORSOrigins: cfg.CORSOrigins,
		Logger:      logger,
	}
	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	var sweeper *janitor.Janitor
	if cfg.SweepCron != "" {
		sweeper = janitor.New(blobStore, cfg.ArtifactTTL, logger)
		if err := sweeper.Start(cfg.SweepCron); err != nil {
			log.Fatalf("schedule artifact sweep: %v", err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("API listening", "addr", cfg.Addr, "baseURL", baseURL, "registry", cfg.Registry, "outputDir", cfg.OutputDir)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if sweeper != nil {
			<-sweeper.Stop().Done()
		}
		return httpServer.Shutdown(shutdownCtx)
	})
	if err := g.Wait(); err != nil {
		logger.Error("server stopped", "err", err)
	}
	// a second signal now terminates the process
	stop()

	logger.Info("waiting for running jobs")
	manager.Wait()
}

func openRegistry(kind string) (store.Registry, error) {
	switch kind {
	case config.RegistrySQLite:
		return store.OpenSQLite()
	default:
		return store.NewMemory(), nil
	}
}

func loadDotEnv() {
	dir, err := os.Getwd()
	if err != nil {
		return
	}
	for i := 0; i < 5; i++ {
		envPath := filepath.Join(dir, ".env")
		if _, err := os.Stat(envPath); err == nil {
			_ = godotenv.Load(envPath)
			return
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return
		}
		dir = parent
	}
}
