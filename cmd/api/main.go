package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/jwebster45206/quest-engine/internal/config"
	"github.com/jwebster45206/quest-engine/internal/content"
	"github.com/jwebster45206/quest-engine/internal/handlers"
	"github.com/jwebster45206/quest-engine/internal/logger"
	"github.com/jwebster45206/quest-engine/internal/storage"
	"github.com/jwebster45206/quest-engine/pkg/engine"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	log := logger.Setup(cfg)

	log.Info("Starting Quest Engine API",
		"port", cfg.Port,
		"environment", cfg.Environment,
		"store", cfg.Store,
		"data_dir", cfg.DataDir)

	lib, err := content.Load(cfg.DataDir, log)
	if err != nil {
		logger.WithError(log, err).Error("Failed to load content")
		os.Exit(1)
	}
	if problems := lib.Validate(); len(problems) > 0 {
		for _, problem := range problems {
			log.Error("Content problem", "problem", problem)
		}
		log.Error("Refusing to serve invalid content", "data_dir", cfg.DataDir, "problems", len(problems))
		os.Exit(1)
	}

	storageCtx, storageCancel := context.WithTimeout(context.Background(), 2*time.Minute)
	backend, err := storage.Open(storageCtx, cfg, log)
	storageCancel()
	if err != nil {
		logger.WithError(log, err).Error("Failed to open progress store")
		os.Exit(1)
	}
	log.Info("Progress store ready", "store", cfg.Store)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	eng := engine.New(lib, backend.Progress, log).
		WithLocker(backend.Locker).
		WithMetrics(engine.NewMetrics(reg))

	router := handlers.NewRouter(handlers.RouterConfig{
		Players: handlers.NewPlayerHandler(eng, log),
		Health:  handlers.NewHealthHandler(eng, lib, log),
		Metrics: promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		Features: handlers.Features{
			Quests:   cfg.EnableQuests,
			Crafting: cfg.EnableCrafting,
		},
		Logger: log,
	})

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("Server starting", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("Server is shutting down...")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()
		return server.Shutdown(shutdownCtx)
	})

	exitCode := 0
	if err := g.Wait(); err != nil {
		logger.WithError(log, err).Error("Server stopped with error")
		exitCode = 1
	}

	if err := backend.Progress.Close(); err != nil {
		logger.WithError(log, err).Error("Error closing progress store")
	}

	log.Info("Server exited")
	os.Exit(exitCode)
}
