package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/lmoretti/taskdeck/internal/a2a"
	"github.com/lmoretti/taskdeck/internal/config"
	"github.com/lmoretti/taskdeck/internal/engine"
	"github.com/lmoretti/taskdeck/internal/httpapi"
	"github.com/lmoretti/taskdeck/internal/observability"
	"github.com/lmoretti/taskdeck/internal/protocol"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	backend, err := a2a.NewClient(cfg.BackendRPCURL, cfg.SendTimeout)
	if err != nil {
		log.Fatalf("backend client init failed: %v", err)
	}

	ctrl := engine.NewController(backend, metrics, cfg.HistoryLength)

	runCtx, runCancel := context.WithCancel(context.Background())
	defer runCancel()

	// Seed the task list before serving. A cold backend is not fatal; the
	// list fills in as updates arrive.
	if err := ctrl.LoadTasks(runCtx); err != nil {
		log.Printf("initial task listing failed: %v", err)
	}

	if cfg.StreamWSURL != "" {
		updates := make(chan protocol.StateUpdate, 256)
		sub := a2a.NewSubscriber(cfg.StreamWSURL, cfg.StreamTopic, metrics)
		go func() {
			if err := sub.Run(runCtx, updates); err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("update stream stopped: %v", err)
			}
			close(updates)
		}()
		go ctrl.RunStream(runCtx, updates)
		log.Printf("subscribed to %s on %s", cfg.StreamTopic, cfg.StreamWSURL)
	} else {
		log.Printf("STREAM_WS_URL not set; running without live updates")
	}

	api := httpapi.New(cfg, ctrl, metrics)
	httpServer := &http.Server{
		Addr:    cfg.BindAddr,
		Handler: api.Router(),
	}

	go func() {
		log.Printf("server listening on %s", cfg.BindAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen error: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Printf("shutdown signal received")

	runCancel()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
		_ = httpServer.Close()
	}

	log.Printf("shutdown complete")
}
