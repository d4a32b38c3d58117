// Command pps-server is the primary HTTP + admin entrypoint: one process per
// entity, opening every configured layer store and serving the tool surface
// over HTTP at PPS_HTTP_PORT (default 8201; additional entities bind
// 8201+10*n per spec).
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/JDHayesBC/Awareness-sub005/internal/anchors"
	"github.com/JDHayesBC/Awareness-sub005/internal/api"
	"github.com/JDHayesBC/Awareness-sub005/internal/capture"
	"github.com/JDHayesBC/Awareness-sub005/internal/composer"
	"github.com/JDHayesBC/Awareness-sub005/internal/crystallize"
	"github.com/JDHayesBC/Awareness-sub005/internal/embedclient"
	"github.com/JDHayesBC/Awareness-sub005/internal/entityenv"
	"github.com/JDHayesBC/Awareness-sub005/internal/health"
	"github.com/JDHayesBC/Awareness-sub005/internal/ingestctl"
	"github.com/JDHayesBC/Awareness-sub005/internal/inventory"
	"github.com/JDHayesBC/Awareness-sub005/internal/llmclient"
	"github.com/JDHayesBC/Awareness-sub005/internal/logging"
	"github.com/JDHayesBC/Awareness-sub005/internal/texture"
)

func main() {
	cfg, err := entityenv.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config error:", err)
		os.Exit(2)
	}
	logging.Init(cfg.ClaudeHome, cfg.LogLevel)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cap, err := capture.Open(cfg.CapturePath)
	if err != nil {
		logging.Log.WithError(err).Fatal("opening L1 capture store")
	}
	defer cap.Close()

	crystal, err := crystallize.Open(cap)
	if err != nil {
		logging.Log.WithError(err).Fatal("opening L4 crystallize store")
	}

	inv, err := inventory.Open(cap)
	if err != nil {
		logging.Log.WithError(err).Fatal("opening L5 inventory store")
	}

	var embed *embedclient.Client
	if cfg.EmbeddingsHost != "" {
		embed = embedclient.New(cfg.EmbeddingsHost, cfg.EmbeddingsAPIKey, cfg.EmbeddingsModel, cfg.EmbeddingsDimensions)
	}
	var llm *llmclient.Client
	if cfg.CompletionsHost != "" {
		llm = llmclient.New(cfg.CompletionsHost, cfg.CompletionsAPIKey, cfg.CompletionsModel)
	}

	var anchorStore *anchors.Store
	if cfg.QdrantURL != "" {
		anchorStore, err = anchors.Open(ctx, cfg.QdrantURL, cfg.QdrantCollection, embed, cfg.AnchorsDir)
		if err != nil {
			logging.Log.WithError(err).Error("opening L2 anchors store; continuing without it (advisory layer)")
		} else {
			defer anchorStore.Close()
			watcher, err := anchors.NewWatcher(anchorStore, 0)
			if err != nil {
				logging.Log.WithError(err).Warn("starting anchors directory watcher")
			} else if err := watcher.Start(ctx); err != nil {
				logging.Log.WithError(err).Warn("starting anchors directory watcher")
			} else {
				defer watcher.Stop()
			}
		}
	}

	var textureStore *texture.Store
	if cfg.GraphDSN != "" {
		textureStore, err = texture.Open(ctx, cfg.GraphDSN, embed, llm, cfg.EmbeddingsDimensions)
		if err != nil {
			logging.Log.WithError(err).Fatal("opening L3 texture store")
		}
		defer textureStore.Close()
	}

	comp := &composer.Composer{Capture: cap, Anchors: anchorStore, Texture: textureStore, Crystallize: crystal}

	// health.Aggregator.Prober fields must be a genuine nil interface, not a
	// typed nil *Store, for probeLayer's "not configured" check to fire —
	// assign only when the layer actually opened.
	aggregator := &health.Aggregator{L1: cap, L4: crystal, L5: inv}
	if anchorStore != nil {
		aggregator.L2 = anchorStore
	}
	if textureStore != nil {
		aggregator.L3 = textureStore
	}

	var ingestController *ingestctl.Controller
	if textureStore != nil {
		ingestController = ingestctl.New(cap, textureStore, ingestctl.Config{})
		go ingestController.Run(ctx)
	}

	deps := &api.Deps{
		Capture: cap, Anchors: anchorStore, Texture: textureStore, Crystallize: crystal,
		Inventory: inv, Composer: comp, Health: aggregator, PrimaryEntityName: cfg.PrimaryEntityName,
	}
	registry := api.BuildRegistry(deps)
	server := api.NewServer(registry)

	addr := fmt.Sprintf(":%d", cfg.HTTPPort)
	httpServer := &http.Server{Addr: addr, Handler: server}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	errChan := make(chan error, 1)
	go func() {
		logging.Log.WithField("addr", addr).Info("pattern-persistence server listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	select {
	case err := <-errChan:
		logging.Log.WithError(err).Fatal("http server error")
	case sig := <-sigChan:
		logging.Log.WithField("signal", sig.String()).Info("shutting down")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}
}
