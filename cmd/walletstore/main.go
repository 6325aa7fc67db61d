// Package main запускает хранилище кошелька и его управляющий HTTP-сервер.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mmeshcher/wallet-store/internal/analytics"
	"github.com/mmeshcher/wallet-store/internal/backend"
	"github.com/mmeshcher/wallet-store/internal/config"
	"github.com/mmeshcher/wallet-store/internal/handler"
	"github.com/mmeshcher/wallet-store/internal/persistence"
	"github.com/mmeshcher/wallet-store/internal/pricefeed"
	"github.com/mmeshcher/wallet-store/internal/repository"
	"github.com/mmeshcher/wallet-store/internal/service"
	"github.com/mmeshcher/wallet-store/internal/store"
)

type snapshotStorage interface {
	persistence.Storage
	Close() error
}

func openStorage(cfg *config.Config) (snapshotStorage, string, error) {
	switch {
	case cfg.DatabaseURI != "":
		repo, err := repository.NewPostgresRepository(cfg.DatabaseURI)
		return repo, "postgres", err
	case cfg.RedisAddress != "":
		repo, err := repository.NewRedisRepository(cfg.RedisAddress)
		return repo, "redis", err
	default:
		return repository.NewMemoryRepository(), "memory", nil
	}
}

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	sugar := logger.Sugar()

	cfg, err := config.Parse()
	if err != nil {
		sugar.Fatalw("configuration error", "error", err.Error())
	}

	repo, kind, err := openStorage(cfg)
	if err != nil {
		sugar.Fatalw("snapshot storage initialization error", "storage", kind, "error", err.Error())
	}
	defer repo.Close()
	sugar.Infow("snapshot storage ready", "storage", kind)

	client := backend.NewClient(cfg.BackendAddress)

	promSink := analytics.NewPrometheusSink()
	dispatcher := analytics.NewDispatcher(cfg.AnalyticsBuffer, analytics.NewZapSink(logger), promSink)
	defer dispatcher.Close()

	st := store.New(client, dispatcher, logger)

	controller := persistence.NewController(st, repo, cfg.PersistThrottle, logger)

	registry := prometheus.NewRegistry()
	registry.MustRegister(controller.Collector(), promSink.Collector())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := controller.Load(ctx); err != nil {
		sugar.Fatalw("snapshot load error", "error", err.Error())
	}

	if cfg.SessionToken != "" {
		if err := st.RestoreSession(cfg.SessionToken); err != nil {
			sugar.Warnw("session token ignored", "error", err.Error())
		}
	}

	var catalog service.Catalog
	if cfg.BackendAddress != "" {
		catalog = client
	}
	svc := service.NewService(st, catalog, logger)

	h := handler.NewHandler(st, logger, promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	server := &http.Server{
		Addr:    cfg.RunAddress,
		Handler: h.SetupRouter(),
	}

	g, ctx := errgroup.WithContext(ctx)

	// Снимки пишутся до закрытия хранилища, финальный снимок — после него.
	g.Go(func() error {
		return controller.Run(context.WithoutCancel(ctx))
	})

	g.Go(func() error {
		if err := svc.SeedCatalog(ctx); err != nil {
			sugar.Warnw("reward catalog not loaded", "error", err.Error())
		}
		svc.StartAccountRefresh(ctx)
		return nil
	})

	if cfg.BackendAddress != "" {
		feed := pricefeed.New(client, st, cfg.PriceSchedule, logger)
		if err := feed.Start(ctx); err != nil {
			sugar.Fatalw("price feed error", "error", err.Error())
		}
	}

	g.Go(func() error {
		sugar.Infow("starting wallet store server", "addr", cfg.RunAddress)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	// Graceful shutdown при отмене контекста (сигнал или ошибка в другой горутине)
	g.Go(func() error {
		<-ctx.Done()
		sugar.Info("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		err := server.Shutdown(shutdownCtx)

		st.Close()
		sugar.Info("store closed")

		if err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
		sugar.Info("server stopped gracefully")
		return nil
	})

	if err := g.Wait(); err != nil {
		sugar.Fatalw("application terminated with error", "error", err)
	}
}
