package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"studydeck/config"
	"studydeck/config/database"
	"studydeck/internal/content/model"
	"studydeck/pkg/logger"
	"studydeck/router"
	"studydeck/socket"
	"studydeck/store"
)

func main() {
	cfg := config.Load()
	logger.Init(cfg.LogLevel)
	defer logger.Log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Locks live only as long as the sessions holding them, so they are
	// never part of a snapshot.
	tree := store.NewTree(model.LocksRoot)

	var persister *store.PostgresPersister
	if cfg.DatabaseURL == "" {
		logger.Sugar.Warn("No database configured, content is kept in memory only")
	} else {
		db, err := database.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Sugar.Fatalf("Database unavailable: %v", err)
		}
		defer db.Close()

		persister = store.NewPostgresPersister(db)
		if err := persister.EnsureSchema(ctx); err != nil {
			logger.Sugar.Fatalf("Failed to prepare schema: %v", err)
		}
		snapshot, err := persister.Load(ctx)
		if err != nil {
			logger.Sugar.Fatalf("Failed to load content: %v", err)
		}
		if snapshot != nil {
			if err := tree.Restore(snapshot); err != nil {
				logger.Sugar.Fatalf("Failed to restore content: %v", err)
			}
			logger.Sugar.Infof("Restored %d bytes of content", len(snapshot))
		}
	}

	hub := socket.NewHub(tree)
	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router.Setup(cfg, tree, hub),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		hub.Run(gctx)
		return nil
	})
	if persister != nil {
		g.Go(func() error {
			tree.SaveWorker(gctx, persister, cfg.SaveInterval)
			return nil
		})
	}
	g.Go(func() error {
		logger.Sugar.Infof("studydeck listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Sugar.Errorf("Server stopped: %v", err)
		os.Exit(1)
	}
	logger.Sugar.Info("Server stopped")
}
