// Command creditsd runs the credits-service backend: the credit ledger and
// redemption engines behind a thin HTTP surface.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/littlewriters/credits-service/internal/cache"
	"github.com/littlewriters/credits-service/internal/cleanup"
	"github.com/littlewriters/credits-service/internal/config"
	"github.com/littlewriters/credits-service/internal/database"
	"github.com/littlewriters/credits-service/internal/httpapi"
	"github.com/littlewriters/credits-service/internal/ledger"
	"github.com/littlewriters/credits-service/internal/redemption"
	"github.com/littlewriters/credits-service/pkg/logger"
)

func main() {
	var tunablesPath = flag.String("config", "config/credits.yaml", "Path to tunables file (optional)")
	flag.Parse()

	cfg, err := config.Load(*tunablesPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New("creditsd", cfg.Server.LogLevel)

	store, err := database.NewClient(database.Config{
		URL:               cfg.Supabase.URL,
		AnonKey:           cfg.Supabase.AnonKey,
		ServiceKey:        cfg.Supabase.ServiceKey,
		RequestTimeout:    cfg.Tunables.Store.RequestTimeout,
		MaxRetries:        cfg.Tunables.Store.MaxRetries,
		InitialBackoff:    cfg.Tunables.Store.InitialBackoff,
		MaxBackoff:        cfg.Tunables.Store.MaxBackoff,
		RequestsPerSecond: cfg.Tunables.Store.RequestsPerSecond,
	}, logger.New("database", cfg.Server.LogLevel))
	if err != nil {
		log.WithError(err).Error("create store gateway")
		os.Exit(1)
	}

	// One process-wide cache, created here and cleared only on demand.
	sharedCache := cache.NewWithTTL(cfg.Tunables.Cache.UserDataTTL)

	ledgerEngine := ledger.New(store, store, sharedCache, logger.New("ledger", cfg.Server.LogLevel))
	redeemEngine := redemption.New(store, store, store, sharedCache, logger.New("redemption", cfg.Server.LogLevel))
	reporter := redemption.NewReporter(store, store)

	job := cleanup.NewJob(store, cfg.Tunables.Cleanup.Schedule, logger.New("cleanup", cfg.Server.LogLevel))
	if err := job.Start(); err != nil {
		log.WithError(err).Error("start cleanup schedule")
		os.Exit(1)
	}
	defer job.Stop()

	api := httpapi.NewServer(ledgerEngine, redeemEngine, reporter, store, sharedCache, logger.New("httpapi", cfg.Server.LogLevel))

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           api.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Infof("credits service listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Error("http server failed")
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("shutdown incomplete")
	}
}
