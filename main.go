// Package main, mqvi-sync istemci sync engine'inin giriş noktasıdır.
//
// Bu dosyanın görevi: Dependency Injection "wire-up":
//
//	1.  Config'i yükle
//	2.  Logger'ı kur
//	3.  Oturumu (access token) çöz
//	4.  Metrics registry'sini kur
//	5.  REST client + repository'leri oluştur
//	6.  Store'ları oluştur
//	7.  Dispatcher + push Hub'ı kur
//	8.  Service'leri oluştur
//	9.  Hub callback'leri + change feed
//	10. Handler'lar, middleware, router, CORS
//	11. Arka plan worker'ları + workspace bağlantıları
//	12. Graceful shutdown
//
// Global değişken YOK: her şey run() içinde oluşturulup birbirine bağlanıyor.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/cors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/akinalp/mqvi-sync/auth"
	"github.com/akinalp/mqvi-sync/config"
	"github.com/akinalp/mqvi-sync/handlers"
	"github.com/akinalp/mqvi-sync/middleware"
	"github.com/akinalp/mqvi-sync/pkg"
	"github.com/akinalp/mqvi-sync/pkg/metrics"
	"github.com/akinalp/mqvi-sync/repository"
	"github.com/akinalp/mqvi-sync/ws"
)

// version, build sırasında -ldflags "-X main.version=..." ile set edilir.
var version = "dev"

// shutdownTimeout, kapanışta uçuştaki isteklere ve bridge'e verilen süre.
const shutdownTimeout = 5 * time.Second

// initialLoadConcurrency, açılışta paralel yüklenen workspace sayısı.
const initialLoadConcurrency = 4

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "mqvi-sync",
		Short:        "Client-side sync engine for mqvi workspaces",
		SilenceUsage: true,
	}
	root.AddCommand(newRunCmd(), newVersionCmd())
	return root
}

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Connect to the configured workspaces and serve the view bridge",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx)
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version)
		},
	}
}

// newLogger, level "debug" ise development, değilse production zap logger'ı kurar.
func newLogger(level string) (*zap.Logger, error) {
	if level == "debug" {
		return zap.NewDevelopment()
	}
	cfg := zap.NewProductionConfig()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	return cfg.Build()
}

func run(ctx context.Context) error {
	// ─── 1. Config ───
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// ─── 2. Logger ───
	logger, err := newLogger(cfg.Log.Level)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()
	mainLog := logger.Named("main")
	mainLog.Info("mqvi-sync starting", zap.String("version", version))

	if len(cfg.Workspaces) == 0 {
		return fmt.Errorf("no workspaces configured (MQVI_WORKSPACES)")
	}

	// ─── 3. Session ───
	session, err := auth.ParseSession(cfg.API.AccessToken)
	if err != nil {
		return fmt.Errorf("failed to parse access token: %w", err)
	}
	mainLog.Info("session ready",
		zap.String("user_id", session.UserID),
		zap.String("username", session.Username),
	)

	clk := clock.New()

	// ─── 4. Metrics ───
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(registry)

	// ─── 5. Repository Layer ───
	client, err := repository.NewClient(repository.ClientOptions{
		BaseURL:     cfg.API.BaseURL,
		AccessToken: session.AccessToken,
		RateLimit:   cfg.API.RateLimit,
		RateBurst:   cfg.API.RateBurst,
		Timeout:     cfg.API.Timeout,
		Logger:      logger,
	})
	if err != nil {
		return fmt.Errorf("failed to create api client: %w", err)
	}
	repos := initRepositories(client)

	// ─── 6. Stores ───
	stores := initStores(cfg, clk, logger, m)

	// ─── 7. Dispatcher + Push Hub ───
	dispatcher := ws.NewDispatcher(stores.Messages, stores.Channels, stores.Presence, session.UserID, clk, logger, m)
	hub := initHub(cfg, session, dispatcher, clk, logger, m)

	// ─── 8. Service Layer ───
	svcs := initServices(cfg, repos, stores, hub, session, clk, logger, m)

	// ─── 9. Hub Callbacks + Change Feed ───
	feed := handlers.NewChangeFeed(cfg.Bridge.AllowedOrigins, logger)
	unwatch := feed.Watch(stores.Messages, stores.Channels, stores.Presence)
	defer unwatch()
	registerHubCallbacks(ctx, hub, svcs.Sync, feed, logger.Named("hub"))

	// ─── 10. Handlers, Middleware, Router, CORS ───
	h := initHandlers(stores, svcs, hub, session, clk)
	mux := http.NewServeMux()
	initRoutes(mux, h, feed, middleware.NewBridgeAuth(cfg.Bridge.Token), registry)

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   cfg.Bridge.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
	})
	srv := &http.Server{
		Addr:        cfg.Bridge.Addr(),
		Handler:     corsHandler.Handler(middleware.RequestLogger(logger)(mux)),
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	// ─── 11. Background Workers ───
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return stores.Presence.Run(gctx) })
	g.Go(func() error { return svcs.Typing.Run(gctx) })

	if cfg.Bridge.Enabled {
		g.Go(func() error {
			mainLog.Info("bridge listening", zap.String("addr", srv.Addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("bridge server: %w", err)
			}
			return nil
		})
	}

	// Kanal listesi hata verse bile push bağlantısı açılır; reconnect
	// sonrası Resync listeyi yeniden çeker.
	g.Go(func() error {
		load, lctx := errgroup.WithContext(gctx)
		load.SetLimit(initialLoadConcurrency)
		for _, workspaceID := range cfg.Workspaces {
			load.Go(func() error {
				if err := svcs.Sync.RefreshChannels(lctx, workspaceID); err != nil {
					mainLog.Warn("initial channel load failed",
						zap.String("workspace_id", workspaceID),
						zap.Error(err),
					)
				}
				if err := hub.Connect(workspaceID); err != nil && !errors.Is(err, pkg.ErrConnectionClosed) {
					return err
				}
				return nil
			})
		}
		return load.Wait()
	})

	// ─── 12. Graceful Shutdown ───
	<-gctx.Done()
	mainLog.Info("shutting down...")

	// Önce push bağlantıları kapatılır; kapanış sırasında store'a yeni
	// event yazılmaz. Sonra uçuştaki mutation'lar iptal edilip rollback
	// edilir, en son bridge kapatılır.
	hub.Shutdown()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := svcs.Mutation.Shutdown(shutdownCtx); err != nil {
		mainLog.Warn("mutations did not settle before shutdown", zap.Error(err))
	}
	feed.Close()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		mainLog.Warn("forced bridge shutdown", zap.Error(err))
	}

	if err := g.Wait(); err != nil {
		mainLog.Error("stopped with error", zap.Error(err))
		return err
	}
	mainLog.Info("stopped gracefully")
	return nil
}
